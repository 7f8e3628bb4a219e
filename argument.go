// Copyright © 2020 Jonathan Whitaker <github@whitaker.io>.
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package crush

import "github.com/mitchellh/mapstructure"

// ArgumentDescription describes one named parameter of a Command's
// signature (§4.4 / C8). Commands declaring NamedVarargs or
// UnnamedVarargs act as sinks for arguments that do not match any other
// description, exactly as spec.md §4.4 requires.
type ArgumentDescription struct {
	Name           string
	Type           *ValueType
	AllowedValues  []Value
	Default        *Value
	NamedVarargs   bool
	UnnamedVarargs bool
}

// Argument is one supplied call-site argument: an optional name plus an
// already evaluated value. Its compile-time counterpart, which carries an
// unevaluated Expression instead of a Value, is NamedExpression.
type Argument struct {
	Name  string
	Value Value
}

// ResolvedArguments is the outcome of matching supplied Arguments against
// a Command's ArgumentDescriptions: each description name maps to its
// bound Value, with NamedVarargs/UnnamedVarargs sinks addressable
// separately.
type ResolvedArguments struct {
	Bound          map[string]Value
	NamedVarargs   map[string]Value
	UnnamedVarargs []Value
}

// Get returns the bound value for a described parameter name.
func (r *ResolvedArguments) Get(name string) (Value, bool) {
	v, ok := r.Bound[name]
	return v, ok
}

// Decode uses mapstructure to unmarshal the bound arguments into a typed
// Go struct, the same decode-into-struct idiom the teacher's
// loader.serialization.go uses to turn generic maps into
// VertexSerialization fields — useful for Commands whose Go
// implementation wants a concrete options struct rather than repeated
// Get calls.
func (r *ResolvedArguments) Decode(out interface{}) error {
	raw := make(map[string]interface{}, len(r.Bound))
	for k, v := range r.Bound {
		raw[k] = rawOf(v)
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return Wrap(ErrInternal, err)
	}
	if err := dec.Decode(raw); err != nil {
		return Wrap(ErrArgument, err)
	}
	return nil
}

func rawOf(v Value) interface{} {
	switch v.Type().Kind {
	case KindText:
		return v.TextValue()
	case KindInteger:
		return v.IntegerValue()
	case KindFloat:
		return v.FloatValue()
	case KindBool:
		return v.BoolValue()
	case KindDuration:
		return v.DurationValue()
	case KindFile:
		return v.FileValue()
	default:
		return v
	}
}

// ResolveArguments matches supplied arguments against descriptions per
// §4.4:
//   - positional arguments fill descriptions in order, skipping those
//     already satisfied by name;
//   - named arguments bind by name;
//   - surplus positionals land in the UnnamedVarargs sink if one exists,
//     else fail;
//   - surplus named arguments land in the NamedVarargs sink if one
//     exists, else fail;
//   - missing arguments take their declared default; absence without a
//     default fails;
//   - type mismatches fail with the parameter name and expected type.
//
// Resolution is pure and collects every violation before returning,
// satisfying §4.4's "reports all violations as argument errors".
func ResolveArguments(descriptions []ArgumentDescription, supplied []Argument) (*ResolvedArguments, []error) {
	var errs []error
	result := &ResolvedArguments{
		Bound:        map[string]Value{},
		NamedVarargs: map[string]Value{},
	}

	byName := map[string]*ArgumentDescription{}
	var namedSink, unnamedSink *ArgumentDescription
	for i := range descriptions {
		d := &descriptions[i]
		byName[d.Name] = d
		if d.NamedVarargs {
			namedSink = d
		}
		if d.UnnamedVarargs {
			unnamedSink = d
		}
	}

	satisfied := map[string]bool{}
	var positionals []Argument

	for _, arg := range supplied {
		if arg.Name == "" {
			positionals = append(positionals, arg)
			continue
		}
		if d, ok := byName[arg.Name]; ok {
			if err := bindTyped(result, d, arg.Value); err != nil {
				errs = append(errs, err)
			}
			satisfied[arg.Name] = true
		} else if namedSink != nil {
			result.NamedVarargs[arg.Name] = arg.Value
		} else {
			errs = append(errs, NewError(ErrArgument, "unexpected named argument %q", arg.Name))
		}
	}

	pIdx := 0
	for i := range descriptions {
		d := &descriptions[i]
		if d.NamedVarargs || d.UnnamedVarargs || satisfied[d.Name] {
			continue
		}
		if pIdx < len(positionals) {
			if err := bindTyped(result, d, positionals[pIdx].Value); err != nil {
				errs = append(errs, err)
			}
			satisfied[d.Name] = true
			pIdx++
		}
	}

	for pIdx < len(positionals) {
		if unnamedSink != nil {
			result.UnnamedVarargs = append(result.UnnamedVarargs, positionals[pIdx].Value)
		} else {
			errs = append(errs, NewError(ErrArgument, "unexpected positional argument"))
		}
		pIdx++
	}

	for i := range descriptions {
		d := &descriptions[i]
		if d.NamedVarargs || d.UnnamedVarargs || satisfied[d.Name] {
			continue
		}
		if d.Default != nil {
			result.Bound[d.Name] = *d.Default
			continue
		}
		errs = append(errs, NewError(ErrArgument, "missing required argument %q", d.Name))
	}

	return result, errs
}

func bindTyped(result *ResolvedArguments, d *ArgumentDescription, v Value) error {
	if d.Type != nil && !d.Type.Equal(v.Type()) {
		return NewError(ErrArgument, "argument %q expected type %s, got %s", d.Name, d.Type, v.Type())
	}
	if len(d.AllowedValues) > 0 {
		ok := false
		for _, allowed := range d.AllowedValues {
			if allowed.Equal(v) {
				ok = true
				break
			}
		}
		if !ok {
			return NewError(ErrArgument, "argument %q has disallowed value", d.Name)
		}
	}
	result.Bound[d.Name] = v
	return nil
}
