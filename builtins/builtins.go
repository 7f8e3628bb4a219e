// Package builtins is a small library of concrete Command implementations
// exercising crush's Command contract (§4.5). The full built-in command
// library is out of scope per spec.md §1 ("concrete built-in commands:
// library of implementations of the command contract"); this package
// supplies just enough commands — grounded on the teacher's loader/
// package plugin dispatchers (map.go, fold.go, fork.go, sort.go, loop.go,
// remover.go) — to exercise every operation spec.md §8's end-to-end
// scenarios name (S1-S6).
//
// Copyright © 2020 Jonathan Whitaker <github@whitaker.io>.
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.
package builtins

import (
	"sort"

	crush "github.com/crush-sh/crush"
)

// Let declares a new binding in the invoking scope, grounded on the
// teacher's map.go dispatcher shape (decode one typed argument, apply a
// single effect, pass rows through).
var Let = &crush.SimpleCommand{
	Name:   "let",
	Blocks: false,
	Args: []crush.ArgumentDescription{
		{Name: "name", Type: crush.TypeText},
		{Name: "value"},
	},
	Run: func(ictx *crush.InvokeContext) error {
		name, _ := ictx.Arguments.Get("name")
		value, _ := ictx.Arguments.Get("value")
		if err := ictx.Scope.Declare(name.TextValue(), value); err != nil {
			return err
		}
		ictx.Output.Initialize(&crush.Schema{})
		return nil
	},
}

// Set reassigns an existing binding; Scope.Set enforces the
// same-type-on-reassignment invariant (§3 invariant 3, S2's "Type
// mismatch when reassigning variable x").
var Set = &crush.SimpleCommand{
	Name:   "set",
	Blocks: false,
	Args: []crush.ArgumentDescription{
		{Name: "name", Type: crush.TypeText},
		{Name: "value"},
	},
	Run: func(ictx *crush.InvokeContext) error {
		name, _ := ictx.Arguments.Get("name")
		value, _ := ictx.Arguments.Get("value")
		if err := ictx.Scope.Set(name.TextValue(), value); err != nil {
			return err
		}
		ictx.Output.Initialize(&crush.Schema{})
		return nil
	},
}

// Echo resolves a variable reference (or literal) and emits a single-row,
// single-column table, used as the terminal stage of scenario S1.
var Echo = &crush.SimpleCommand{
	Name:   "echo",
	Blocks: false,
	Args: []crush.ArgumentDescription{
		{Name: "value"},
	},
	Run: func(ictx *crush.InvokeContext) error {
		value, _ := ictx.Arguments.Get("value")
		schema, err := crush.NewSchema(crush.Column{Name: "value", Type: value.Type()})
		if err != nil {
			return err
		}
		ictx.Output.Initialize(schema)
		return ictx.Output.Send(ictx.Ctx, crush.Row{Values: []crush.Value{value}})
	},
}

// ListNew builds the list:new command, which emits a new empty list of
// the given element type (integer by default); the list: commands are
// grounded on loader/remover.go + loader/fold.go's aggregate-mutation
// dispatch shape, generalized to an explicit receiver (BoundCommand)
// instead of a single Applicative callback.
func ListNew() *crush.SimpleCommand {
	return &crush.SimpleCommand{
		Name:   "list:new",
		Blocks: false,
		Args: []crush.ArgumentDescription{
			{Name: "type", Type: crush.TypeType, Default: ptr(crush.TypeToValue(crush.TypeInteger))},
		},
		Run: func(ictx *crush.InvokeContext) error {
			elemVal, _ := ictx.Arguments.Get("type")
			elem := crush.ValueToType(elemVal)
			list := crush.NewList(elem)
			schema, err := crush.NewSchema(crush.Column{Name: "list", Type: list.Type()})
			if err != nil {
				return err
			}
			ictx.Output.Initialize(schema)
			return ictx.Output.Send(ictx.Ctx, crush.Row{Values: []crush.Value{list}})
		},
	}
}

// ListPush pushes one value into the receiver list passed via `this`
// (bind a list Value to get the receiver), forwarding the list downstream
// so calls can be chained `list:new | list:push 1 | list:push 2`.
var ListPush = &crush.SimpleCommand{
	Name:   "list:push",
	Blocks: false,
	Args: []crush.ArgumentDescription{
		{Name: "value"},
	},
	Run: func(ictx *crush.InvokeContext) error {
		list, err := receiverOrFirstRow(ictx, "list")
		if err != nil {
			return err
		}
		value, _ := ictx.Arguments.Get("value")
		if err := list.ListPush(value); err != nil {
			return err
		}
		schema, err := crush.NewSchema(crush.Column{Name: "list", Type: list.Type()})
		if err != nil {
			return err
		}
		ictx.Output.Initialize(schema)
		return ictx.Output.Send(ictx.Ctx, crush.Row{Values: []crush.Value{list}})
	},
}

// ListLen emits the element count of the receiver list as a single
// Integer row (scenario S3's final stage).
var ListLen = &crush.SimpleCommand{
	Name:   "list:len",
	Blocks: false,
	Run: func(ictx *crush.InvokeContext) error {
		list, err := receiverOrFirstRow(ictx, "list")
		if err != nil {
			return err
		}
		schema, err := crush.NewSchema(crush.Column{Name: "len", Type: crush.TypeInteger})
		if err != nil {
			return err
		}
		ictx.Output.Initialize(schema)
		return ictx.Output.Send(ictx.Ctx, crush.Row{Values: []crush.Value{crush.Integer(list.ListLen())}})
	},
}

// DictCreate builds an empty Dict(key,value) and emits it as a single row
// (scenario S6).
func DictCreate() *crush.SimpleCommand {
	return &crush.SimpleCommand{
		Name:   "dict:create",
		Blocks: false,
		Args: []crush.ArgumentDescription{
			{Name: "key", Type: crush.TypeType},
			{Name: "value", Type: crush.TypeType},
		},
		Run: func(ictx *crush.InvokeContext) error {
			keyVal, _ := ictx.Arguments.Get("key")
			valVal, _ := ictx.Arguments.Get("value")
			dict := crush.NewDict(crush.ValueToType(keyVal), crush.ValueToType(valVal))
			schema, err := crush.NewSchema(crush.Column{Name: "dict", Type: dict.Type()})
			if err != nil {
				return err
			}
			ictx.Output.Initialize(schema)
			return ictx.Output.Send(ictx.Ctx, crush.Row{Values: []crush.Value{dict}})
		},
	}
}

// DictInsert inserts a key/value pair into the receiver dict, forwarding
// it downstream (scenario S6).
var DictInsert = &crush.SimpleCommand{
	Name:   "dict:insert",
	Blocks: false,
	Args: []crush.ArgumentDescription{
		{Name: "key"},
		{Name: "value"},
	},
	Run: func(ictx *crush.InvokeContext) error {
		dict, err := receiverOrFirstRow(ictx, "dict")
		if err != nil {
			return err
		}
		key, _ := ictx.Arguments.Get("key")
		value, _ := ictx.Arguments.Get("value")
		if err := dict.DictInsert(key, value); err != nil {
			return err
		}
		schema, err := crush.NewSchema(crush.Column{Name: "dict", Type: dict.Type()})
		if err != nil {
			return err
		}
		ictx.Output.Initialize(schema)
		return ictx.Output.Send(ictx.Ctx, crush.Row{Values: []crush.Value{dict}})
	},
}

// DictGet emits the value bound to key, or Empty() if absent (scenario
// S6's `get "b"` emitting empty).
var DictGet = &crush.SimpleCommand{
	Name:   "dict:get",
	Blocks: false,
	Args: []crush.ArgumentDescription{
		{Name: "key"},
	},
	Run: func(ictx *crush.InvokeContext) error {
		dict, err := receiverOrFirstRow(ictx, "dict")
		if err != nil {
			return err
		}
		key, _ := ictx.Arguments.Get("key")
		value, ok := dict.DictGet(key)
		if !ok {
			value = crush.Empty()
		}
		schema, err := crush.NewSchema(crush.Column{Name: "value", Type: value.Type()})
		if err != nil {
			return err
		}
		ictx.Output.Initialize(schema)
		return ictx.Output.Send(ictx.Ctx, crush.Row{Values: []crush.Value{value}})
	},
}

// receiverOrFirstRow returns ictx.This if the command was invoked bound
// (`value:method`), else reads the single upstream row under columnName
// — both call shapes chain naturally in a pipeline like
// `list:new | list:push 1`.
func receiverOrFirstRow(ictx *crush.InvokeContext, columnName string) (crush.Value, error) {
	if ictx.This != nil {
		return *ictx.This, nil
	}
	schema, err := ictx.Input.Types(ictx.Ctx)
	if err != nil {
		return crush.Value{}, err
	}
	row, ok, err := ictx.Input.Read(ictx.Ctx)
	if err != nil {
		return crush.Value{}, err
	}
	if !ok {
		return crush.Value{}, crush.NewError(crush.ErrType, "no receiver available")
	}
	v, ok := row.Get(schema, columnName)
	if ok {
		return v, nil
	}
	if len(row.Values) > 0 {
		return row.Values[0], nil
	}
	return crush.Value{}, crush.NewError(crush.ErrType, "no receiver available")
}

func ptr(v crush.Value) *crush.Value { return &v }

// If is a ConditionalCommand (§4.5 "Conditional"): its CanBlock is the
// disjunction of its argument expressions' CanBlock rather than a static
// flag, since whichever branch closure is actually invoked determines
// whether the call can block — grounded on the teacher's loop.go/fork.go
// branch-dispatch shape, generalized from routing a Packet to invoking
// one of two Closures.
var If = &crush.ConditionalCommand{
	Name: "if",
	Args: []crush.ArgumentDescription{
		{Name: "condition", Type: crush.TypeBool},
		{Name: "then", Type: crush.TypeClosure},
		{Name: "else", Type: crush.TypeClosure, Default: ptr(crush.Empty())},
	},
	Run: func(ictx *crush.InvokeContext) error {
		cond, _ := ictx.Arguments.Get("condition")
		branch, ok := ictx.Arguments.Get("then")
		if cond.BoolValue() {
			if !ok {
				ictx.Output.Initialize(&crush.Schema{})
				return nil
			}
		} else {
			elseBranch, hasElse := ictx.Arguments.Get("else")
			if !hasElse || elseBranch.Type().Kind != crush.KindClosure {
				ictx.Output.Initialize(&crush.Schema{})
				return nil
			}
			branch = elseBranch
		}
		branchIctx := *ictx
		branchIctx.Arguments = &crush.ResolvedArguments{
			Bound:        map[string]crush.Value{},
			NamedVarargs: map[string]crush.Value{},
		}
		return branch.Closure().Invoke(&branchIctx)
	},
}

// For iterates the elements of a list, invoking a body Closure once per
// element with the element bound to "item" in a fresh loop-scope
// (isLoop=true), so that a break/continue command issued from inside the
// body — which walks the *caller* chain, not the body closure's own
// child scope — reaches this loop's scope and halts iteration, per
// §4.6/§4.3's do_break contract.
//
// This implementation does not distinguish continue from break (both set
// the same isStopped flag, per scope.go's propagateStop): producing that
// distinction requires the surface parser to report which control-flow
// value a body step produced, which spec.md places out of scope. For
// therefore always stops the whole iteration once isStopped is observed.
var For = &crush.SimpleCommand{
	Name:   "for",
	Blocks: true,
	Args: []crush.ArgumentDescription{
		{Name: "list"},
		{Name: "body", Type: crush.TypeClosure},
	},
	Run: func(ictx *crush.InvokeContext) error {
		list, _ := ictx.Arguments.Get("list")
		bodyVal, _ := ictx.Arguments.Get("body")
		body := bodyVal.Closure()

		loopScope := ictx.Scope.CreateChild(ictx.Scope, true)

		for _, item := range list.AsList() {
			loopScope.ResetStopped()
			bodyIctx := &crush.InvokeContext{
				Ctx:   ictx.Ctx,
				Scope: loopScope,
				Arguments: &crush.ResolvedArguments{
					Bound:        map[string]crush.Value{"item": item},
					NamedVarargs: map[string]crush.Value{},
				},
				Input:  crush.EmptyRowChannel(),
				Output: crush.NewRowChannel(0),
			}
			if err := body.Invoke(bodyIctx); err != nil {
				return err
			}
			if loopScope.IsStopped() {
				break
			}
		}

		ictx.Output.Initialize(&crush.Schema{})
		return nil
	},
}

// Break and Continue expose Scope.DoBreak/DoContinue as commands, the
// call shape a surface-parser-compiled `break`/`continue` statement would
// dispatch to.
var Break = &crush.SimpleCommand{
	Name:   "break",
	Blocks: false,
	Run: func(ictx *crush.InvokeContext) error {
		ictx.Scope.DoBreak()
		ictx.Output.Initialize(&crush.Schema{})
		return nil
	},
}

var Continue = &crush.SimpleCommand{
	Name:   "continue",
	Blocks: false,
	Run: func(ictx *crush.InvokeContext) error {
		ictx.Scope.DoContinue()
		ictx.Output.Initialize(&crush.Schema{})
		return nil
	},
}

// Sort copies the receiver list's elements, orders them by Value.Compare
// and emits them as a new list; the receiver list is left unchanged.
// Grounded on the teacher's loader/sort.go comparator dispatch generalized
// from []*Packet to a crush List's elements.
var Sort = &crush.SimpleCommand{
	Name:   "sort",
	Blocks: false,
	Run: func(ictx *crush.InvokeContext) error {
		list, err := receiverOrFirstRow(ictx, "list")
		if err != nil {
			return err
		}
		items := list.AsList()
		sorted := make([]crush.Value, len(items))
		copy(sorted, items)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].Compare(sorted[j]) < 0 })

		out := crush.NewList(list.Type().Element)
		for _, v := range sorted {
			if err := out.ListPush(v); err != nil {
				return err
			}
		}
		schema, err := crush.NewSchema(crush.Column{Name: "list", Type: out.Type()})
		if err != nil {
			return err
		}
		ictx.Output.Initialize(schema)
		return ictx.Output.Send(ictx.Ctx, crush.Row{Values: []crush.Value{out}})
	},
}

// Register declares every command in this package into scope under its
// Name, the bootstrap shape a cmd/crush main would call once against the
// root scope at startup (§6, grounded on registry.go's Register + the
// teacher's loader.go RegisterPluginProvider bootstrap list).
func Register(scope *crush.Scope) error {
	return crush.Register(scope,
		crush.Declaration{Path: Let.Name, Command: Let},
		crush.Declaration{Path: Set.Name, Command: Set},
		crush.Declaration{Path: Echo.Name, Command: Echo},
		crush.Declaration{Path: "list:new", Command: ListNew()},
		crush.Declaration{Path: ListPush.Name, Command: ListPush},
		crush.Declaration{Path: ListLen.Name, Command: ListLen},
		crush.Declaration{Path: "dict:create", Command: DictCreate()},
		crush.Declaration{Path: DictInsert.Name, Command: DictInsert},
		crush.Declaration{Path: DictGet.Name, Command: DictGet},
		crush.Declaration{Path: If.Name, Command: If},
		crush.Declaration{Path: For.Name, Command: For},
		crush.Declaration{Path: Break.Name, Command: Break},
		crush.Declaration{Path: Continue.Name, Command: Continue},
		crush.Declaration{Path: Sort.Name, Command: Sort},
	)
}
