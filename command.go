// Copyright © 2020 Jonathan Whitaker <github@whitaker.io>.
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package crush

import "context"

// OutputKind distinguishes the three advisory output-schema shapes a
// Command may declare (§4.5 output).
type OutputKind int

const (
	// OutputUnknown means the schema cannot be predicted statically.
	OutputUnknown OutputKind = iota
	// OutputKnown means Schema holds the declared output schema.
	OutputKnown
	// OutputPassthrough means the output has the same columns as the
	// input.
	OutputPassthrough
)

// OutputDescription is the result of Command.Output.
type OutputDescription struct {
	Kind   OutputKind
	Schema *Schema
}

// Known builds an OutputDescription advertising a concrete schema.
func Known(s *Schema) OutputDescription { return OutputDescription{Kind: OutputKnown, Schema: s} }

// Unknown builds an OutputDescription that declines to predict its shape.
func Unknown() OutputDescription { return OutputDescription{Kind: OutputUnknown} }

// Passthrough builds an OutputDescription equal to whatever input schema
// the caller supplies.
func Passthrough() OutputDescription { return OutputDescription{Kind: OutputPassthrough} }

// Expression is a compile-time argument expression: a literal, a variable
// reference, or a nested command call (subpipeline). The real surface
// parser (out of scope per spec.md §1) is what would normally produce
// these; this engine only needs the contract it must consume, per command
// /mod.rs's CanBlock(args, compile_ctx) taking "argument expressions
// (which may themselves contain subpipelines)".
type Expression interface {
	// CanBlock reports whether evaluating this expression may itself
	// block the caller — used to compute a ConditionalCommand's
	// disjunction (§4.5).
	CanBlock(cctx *CompileContext) bool
	// Eval evaluates the expression against an invocation context.
	Eval(ictx *InvokeContext) (Value, error)
}

// LiteralExpr is a compile-time-known Value.
type LiteralExpr struct{ Value Value }

func (e LiteralExpr) CanBlock(*CompileContext) bool      { return false }
func (e LiteralExpr) Eval(*InvokeContext) (Value, error) { return e.Value, nil }

// VarRefExpr resolves a name against the invocation scope.
type VarRefExpr struct{ Name string }

func (e VarRefExpr) CanBlock(*CompileContext) bool { return false }
func (e VarRefExpr) Eval(ictx *InvokeContext) (Value, error) {
	v, ok := ictx.Scope.Get(e.Name)
	if !ok {
		return Empty(), NewError(ErrName, "unknown variable %q", e.Name)
	}
	return v, nil
}

// CallExpr is a nested command invocation appearing as an argument
// expression (a subpipeline). Its CanBlock disjoins the callee's own
// CanBlock with its own arguments' CanBlock, the same recursive shape
// ConditionCommand uses one level up (§4.5, §9 open question: this
// disjoins over the *input* expressions only, never over side effects of
// evaluating them — the stated, deliberately narrow contract).
type CallExpr struct {
	Target Command
	Args   []NamedExpression
}

// NamedExpression pairs an optional argument name with its Expression,
// the compile-time analogue of Argument.
type NamedExpression struct {
	Name string
	Expr Expression
}

func (e CallExpr) CanBlock(cctx *CompileContext) bool {
	if e.Target.CanBlock(exprArgs(e.Args), cctx) {
		return true
	}
	for _, a := range e.Args {
		if a.Expr.CanBlock(cctx) {
			return true
		}
	}
	return false
}

func (e CallExpr) Eval(ictx *InvokeContext) (Value, error) {
	args := make([]Argument, len(e.Args))
	for i, a := range e.Args {
		v, err := a.Expr.Eval(ictx)
		if err != nil {
			return Empty(), err
		}
		args[i] = Argument{Name: a.Name, Value: v}
	}
	resolved, errs := ResolveArguments(e.Target.Arguments(), args)
	if len(errs) > 0 {
		return Empty(), errs[0]
	}
	sub := &InvokeContext{
		Ctx:       ictx.Ctx,
		Scope:     ictx.Scope,
		Arguments: resolved,
		Input:     EmptyRowChannel(),
		// Buffered by one: Invoke runs synchronously in this goroutine, so
		// a target that Sends its single row (as Echo/receiverOrFirstRow-
		// style commands do) must not block waiting on a concurrent
		// reader that does not exist yet.
		Output: NewRowChannel(1),
	}
	if err := e.Target.Invoke(sub); err != nil {
		return Empty(), err
	}
	row, ok, err := sub.Output.Read(ictx.Ctx)
	if err != nil {
		return Empty(), err
	}
	if !ok || len(row.Values) == 0 {
		return Empty(), nil
	}
	return row.Values[0], nil
}

func exprArgs(named []NamedExpression) []Expression {
	out := make([]Expression, len(named))
	for i, n := range named {
		out[i] = n.Expr
	}
	return out
}

// CompileContext is handed to Command.CanBlock and carries the surrounding
// Scope; the call site's static argument Expressions are passed separately
// as CanBlock's args parameter (§4.5, §4.7 step 1).
type CompileContext struct {
	Scope *Scope
}

// InvokeContext is handed to Command.Invoke: everything a command needs
// to run synchronously in its caller's goroutine (§4.5 invoke).
type InvokeContext struct {
	Ctx       context.Context
	Scope     *Scope
	Arguments *ResolvedArguments
	Input     *RowChannel
	Output    *RowChannel
	This      *Value
	JobID     string
	StageID   string
}

// Command is the two-phase protocol of §4.5.
type Command interface {
	// CanBlock is a pure predicate over the argument expressions at this
	// call site; it must not perform I/O or block (§9).
	CanBlock(args []Expression, cctx *CompileContext) bool
	// Invoke executes synchronously in the caller's goroutine.
	Invoke(ictx *InvokeContext) error
	// Bind produces a new Command with a receiver pre-applied.
	Bind(receiver Value) Command
	// Output advertises the declared output schema.
	Output(inputSchema *Schema) OutputDescription
	// Arguments is the description list consumed by C8.
	Arguments() []ArgumentDescription
	// Copy clones the handle with the same behavior.
	Copy() Command
}

// SimpleCommand wraps a pure Go callable with a static CanBlock boolean
// (§4.5 "Simple").
type SimpleCommand struct {
	Name       string
	Blocks     bool
	Args       []ArgumentDescription
	OutputFunc func(*Schema) OutputDescription
	Run        func(*InvokeContext) error
}

func (c *SimpleCommand) CanBlock([]Expression, *CompileContext) bool { return c.Blocks }
func (c *SimpleCommand) Invoke(ictx *InvokeContext) error            { return c.Run(ictx) }
func (c *SimpleCommand) Arguments() []ArgumentDescription            { return c.Args }

func (c *SimpleCommand) Output(input *Schema) OutputDescription {
	if c.OutputFunc != nil {
		return c.OutputFunc(input)
	}
	return Unknown()
}

func (c *SimpleCommand) Bind(receiver Value) Command {
	return &BoundCommand{cmd: c, receiver: &receiver}
}

func (c *SimpleCommand) Copy() Command {
	cp := *c
	return &cp
}

// ConditionalCommand behaves like Simple but its CanBlock is the
// disjunction of its argument expressions' own CanBlock — used by
// short-circuit operators and if-like commands whose blocking depends on
// whether a branch is taken (§4.5 "Conditional").
type ConditionalCommand struct {
	Name       string
	Args       []ArgumentDescription
	OutputFunc func(*Schema) OutputDescription
	Run        func(*InvokeContext) error
}

func (c *ConditionalCommand) CanBlock(args []Expression, cctx *CompileContext) bool {
	for _, a := range args {
		if a.CanBlock(cctx) {
			return true
		}
	}
	return false
}

func (c *ConditionalCommand) Invoke(ictx *InvokeContext) error { return c.Run(ictx) }
func (c *ConditionalCommand) Arguments() []ArgumentDescription { return c.Args }

func (c *ConditionalCommand) Output(input *Schema) OutputDescription {
	if c.OutputFunc != nil {
		return c.OutputFunc(input)
	}
	return Unknown()
}

func (c *ConditionalCommand) Bind(receiver Value) Command {
	return &BoundCommand{cmd: c, receiver: &receiver}
}

func (c *ConditionalCommand) Copy() Command {
	cp := *c
	return &cp
}

// BoundCommand is a receiver pre-applied to a Command (`value:method`),
// the third built-in shape of §4.5.
type BoundCommand struct {
	cmd      Command
	receiver *Value
}

// Receiver returns the bound value, if any.
func (b *BoundCommand) Receiver() *Value { return b.receiver }

// Unbound returns the wrapped Command.
func (b *BoundCommand) Unbound() Command { return b.cmd }

func (b *BoundCommand) CanBlock(args []Expression, cctx *CompileContext) bool {
	return b.cmd.CanBlock(args, cctx)
}

func (b *BoundCommand) Invoke(ictx *InvokeContext) error {
	ictx.This = b.receiver
	return b.cmd.Invoke(ictx)
}

func (b *BoundCommand) Bind(receiver Value) Command {
	return &BoundCommand{cmd: b.cmd, receiver: &receiver}
}

func (b *BoundCommand) Output(input *Schema) OutputDescription { return b.cmd.Output(input) }
func (b *BoundCommand) Arguments() []ArgumentDescription       { return b.cmd.Arguments() }

func (b *BoundCommand) Copy() Command {
	cp := *b
	return &cp
}
