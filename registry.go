// Copyright © 2020 Jonathan Whitaker <github@whitaker.io>.
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package crush

// Declaration is what a host registers for one built-in command at
// startup (§6 "Command registry bootstrap"): a path, the Command (which
// supplies its own CanBlock and argument descriptions), a short/long help
// pair, and an advisory output description. Register uses only Path and
// Command. This mirrors the teacher's loader.go RegisterPluginProvider
// bootstrap shape, generalized from stream-vertex plugins to arbitrary
// named commands.
type Declaration struct {
	Path        string
	Command     Command
	ShortHelp   string
	LongHelp    string
	Output      OutputDescription
}

// CreateNamespace declares a fresh child Scope of root (no caller, not a
// loop) under path as a Scope-kinded value and returns it (§6
// "namespaces created via create_namespace"). Names declared into the
// returned scope are not reachable from root by a dotted path: Get looks
// a name up as a whole, and Declare uses only a dotted path's final
// segment.
func CreateNamespace(root *Scope, path string) (*Scope, error) {
	ns := root.CreateChild(nil, false)
	if err := root.Declare(path, ScopeValue(ns)); err != nil {
		return nil, err
	}
	return ns, nil
}

// Register declares each Declaration into scope via Scope.Declare, the
// path the core accepts host bootstrap through per §6.
func Register(scope *Scope, decls ...Declaration) error {
	for _, d := range decls {
		if err := scope.Declare(d.Path, CommandValue(d.Command)); err != nil {
			return Wrap(ErrName, err)
		}
	}
	return nil
}
