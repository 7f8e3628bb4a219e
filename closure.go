// Copyright © 2020 Jonathan Whitaker <github@whitaker.io>.
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package crush

// Closure is a user-defined Command carrying a captured lexical scope and
// a parameter signature (§4.6 / C6). Its body is the list of compiled
// Jobs executed in a freshly created child scope on Invoke.
type Closure struct {
	Captured *Scope
	Params   []ArgumentDescription
	Body     []*Job
	outKind  OutputDescription
}

// NewClosure captures scope as the lexical parent for every future
// invocation.
func NewClosure(scope *Scope, params []ArgumentDescription, body []*Job) *Closure {
	return &Closure{Captured: scope, Params: params, Body: body, outKind: Unknown()}
}

// CanBlock for a Closure is conservative: invoking a closure always may
// block, since its body is itself a pipeline that may contain blocking
// stages the caller cannot see from argument expressions alone.
func (c *Closure) CanBlock([]Expression, *CompileContext) bool { return true }

func (c *Closure) Arguments() []ArgumentDescription { return c.Params }

func (c *Closure) Output(*Schema) OutputDescription { return c.outKind }

func (c *Closure) Bind(receiver Value) Command {
	return &BoundCommand{cmd: c, receiver: &receiver}
}

func (c *Closure) Copy() Command {
	cp := *c
	return &cp
}

// Invoke implements §4.6's four steps:
//  1. create a child scope (parent = captured scope, caller = invoking
//     scope, is_loop=false);
//  2. resolve arguments against the signature into the child scope;
//  3. run each compiled Job of the body against that scope, propagating
//     break/continue through the scope's is_stopped flag;
//  4. the final Job's output becomes the closure's output.
//
// A Closure with an empty signature is invocable with no arguments; a
// Closure with required parameters fails with an argument error when
// those are missing, exactly as the empty-signature note of §4.6 states.
func (c *Closure) Invoke(ictx *InvokeContext) error {
	child := c.Captured.CreateChild(ictx.Scope, false)

	var supplied []Argument
	if ictx.Arguments != nil {
		for name, v := range ictx.Arguments.Bound {
			supplied = append(supplied, Argument{Name: name, Value: v})
		}
		for name, v := range ictx.Arguments.NamedVarargs {
			supplied = append(supplied, Argument{Name: name, Value: v})
		}
		for _, v := range ictx.Arguments.UnnamedVarargs {
			supplied = append(supplied, Argument{Value: v})
		}
	}

	resolved, errs := ResolveArguments(c.Params, supplied)
	if len(errs) > 0 {
		return errs[0]
	}
	for name, v := range resolved.Bound {
		if err := child.Declare(name, v); err != nil {
			return err
		}
	}
	if err := declareVarargSinks(child, c.Params, resolved); err != nil {
		return err
	}

	runner := NewRunner(nil)
	input := ictx.Input
	if input == nil {
		input = EmptyRowChannel()
	}

	for i, job := range c.Body {
		var out *RowChannel
		if i == len(c.Body)-1 {
			out = ictx.Output
		} else {
			out = NewRowChannel(0)
		}

		if child.stopRequested() {
			out.Close(nil)
			input = out
			continue
		}

		handle, err := runner.Run(ictx.Ctx, job, child, input, out)
		if err != nil {
			return err
		}
		if err := handle.Join(); err != nil {
			return err
		}
		input = out
	}

	return nil
}

// declareVarargSinks binds the one NamedVarargs and one UnnamedVarargs
// sink parameter a closure's signature may declare (§4.4) into child,
// exactly as resolved.Bound's parameters are declared above — step 2 of
// §4.6 requires varargs be bound "exactly as in §4.4", which for a
// Closure body means addressable by name like any other parameter rather
// than only reachable off ResolvedArguments the way a Go SimpleCommand
// reads them. A sink's declared Type, if any, is the element type shared
// by every value the sink collects; absent that, the first observed
// value's type stands in, falling back to TypeText for an empty sink.
func declareVarargSinks(child *Scope, params []ArgumentDescription, resolved *ResolvedArguments) error {
	for i := range params {
		d := &params[i]
		switch {
		case d.NamedVarargs:
			elem := d.Type
			if elem == nil {
				for _, v := range resolved.NamedVarargs {
					t := v.Type()
					elem = &t
					break
				}
			}
			if elem == nil {
				elem = TypeText
			}
			sink := NewDict(TypeText, elem)
			for k, v := range resolved.NamedVarargs {
				if err := sink.DictInsert(Text(k), v); err != nil {
					return err
				}
			}
			if err := child.Declare(d.Name, sink); err != nil {
				return err
			}
		case d.UnnamedVarargs:
			elem := d.Type
			if elem == nil && len(resolved.UnnamedVarargs) > 0 {
				t := resolved.UnnamedVarargs[0].Type()
				elem = &t
			}
			if elem == nil {
				elem = TypeText
			}
			sink := NewList(elem)
			for _, v := range resolved.UnnamedVarargs {
				if err := sink.ListPush(v); err != nil {
					return err
				}
			}
			if err := child.Declare(d.Name, sink); err != nil {
				return err
			}
		}
	}
	return nil
}
