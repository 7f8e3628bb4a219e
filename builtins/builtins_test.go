// Copyright © 2020 Jonathan Whitaker <github@whitaker.io>.
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package builtins

import (
	"context"
	"testing"

	crush "github.com/crush-sh/crush"
)

func run(t *testing.T, scope *crush.Scope, cmd crush.Command, args ...crush.Argument) crush.Row {
	t.Helper()
	resolved, errs := crush.ResolveArguments(cmd.Arguments(), args)
	if len(errs) != 0 {
		t.Fatalf("unexpected resolve errors: %v", errs)
	}
	ictx := &crush.InvokeContext{
		Ctx:       context.Background(),
		Scope:     scope,
		Arguments: resolved,
		Input:     crush.EmptyRowChannel(),
		Output:    crush.NewRowChannel(1),
	}
	if err := cmd.Invoke(ictx); err != nil {
		t.Fatalf("unexpected invoke error: %v", err)
	}
	// Close the sender as the Runner does after a stage returns, so a
	// command that emits no row reads as EOF instead of blocking.
	ictx.Output.Close(nil)
	row, ok, err := ictx.Output.Read(ictx.Ctx)
	if err != nil {
		t.Fatalf("unexpected read error: %v", err)
	}
	if !ok {
		return crush.Row{}
	}
	return row
}

// Scenario S1: let x = 1; echo x.
func TestLetThenEcho(t *testing.T) {
	scope := crush.NewRootScope()
	run(t, scope, Let, crush.Argument{Name: "name", Value: crush.Text("x")}, crush.Argument{Name: "value", Value: crush.Integer(1)})

	v, ok := scope.Get("x")
	if !ok || v.IntegerValue() != 1 {
		t.Fatalf("expected x=1 bound after let, got %v ok=%v", v, ok)
	}

	row := run(t, scope, Echo, crush.Argument{Name: "value", Value: v})
	if row.Values[0].IntegerValue() != 1 {
		t.Fatalf("expected echo to emit 1, got %v", row.Values[0])
	}
}

// Scenario S2: reassigning with a different type fails.
func TestSetTypeMismatchFails(t *testing.T) {
	scope := crush.NewRootScope()
	run(t, scope, Let, crush.Argument{Name: "name", Value: crush.Text("x")}, crush.Argument{Name: "value", Value: crush.Integer(1)})

	resolved, errs := crush.ResolveArguments(Set.Arguments(), []crush.Argument{
		{Name: "name", Value: crush.Text("x")},
		{Name: "value", Value: crush.Text("oops")},
	})
	if len(errs) != 0 {
		t.Fatalf("unexpected resolve errors: %v", errs)
	}
	ictx := &crush.InvokeContext{
		Ctx:       context.Background(),
		Scope:     scope,
		Arguments: resolved,
		Input:     crush.EmptyRowChannel(),
		Output:    crush.NewRowChannel(1),
	}
	if err := Set.Invoke(ictx); err == nil {
		t.Fatalf("expected reassigning x with a different type to fail")
	}
}

// Scenario S3: build a list, push elements, take its length.
func TestListBuildPushLen(t *testing.T) {
	scope := crush.NewRootScope()
	listRow := run(t, scope, ListNew(), crush.Argument{Name: "type", Value: crush.TypeToValue(crush.TypeInteger)})
	list := listRow.Values[0]

	pushed := run(t, scope, ListPush.Bind(list), crush.Argument{Name: "value", Value: crush.Integer(1)})
	list = pushed.Values[0]
	pushed = run(t, scope, ListPush.Bind(list), crush.Argument{Name: "value", Value: crush.Integer(2)})
	list = pushed.Values[0]

	lenRow := run(t, scope, ListLen.Bind(list))
	if lenRow.Values[0].IntegerValue() != 2 {
		t.Fatalf("expected list length 2, got %d", lenRow.Values[0].IntegerValue())
	}
}

func TestIfTakesThenBranch(t *testing.T) {
	scope := crush.NewRootScope()
	thenJob := crush.NewJob("then", &crush.StageDef{ID: "s0", Command: Echo, Args: []crush.NamedExpression{
		{Name: "value", Expr: crush.LiteralExpr{Value: crush.Integer(1)}},
	}})
	thenClosure := crush.NewClosure(scope, nil, []*crush.Job{thenJob})

	row := run(t, scope, If,
		crush.Argument{Name: "condition", Value: crush.Bool(true)},
		crush.Argument{Name: "then", Value: crush.ClosureValue(thenClosure)},
	)
	if row.Values[0].IntegerValue() != 1 {
		t.Fatalf("expected the then branch's row, got %v", row)
	}
}

func TestIfSkipsElseWhenAbsentAndConditionFalse(t *testing.T) {
	scope := crush.NewRootScope()
	thenJob := crush.NewJob("then", &crush.StageDef{ID: "s0", Command: Echo, Args: []crush.NamedExpression{
		{Name: "value", Expr: crush.LiteralExpr{Value: crush.Integer(1)}},
	}})
	thenClosure := crush.NewClosure(scope, nil, []*crush.Job{thenJob})

	resolved, errs := crush.ResolveArguments(If.Arguments(), []crush.Argument{
		{Name: "condition", Value: crush.Bool(false)},
		{Name: "then", Value: crush.ClosureValue(thenClosure)},
	})
	if len(errs) != 0 {
		t.Fatalf("unexpected resolve errors: %v", errs)
	}
	ictx := &crush.InvokeContext{
		Ctx:       context.Background(),
		Scope:     scope,
		Arguments: resolved,
		Input:     crush.EmptyRowChannel(),
		Output:    crush.NewRowChannel(1),
	}
	if err := If.Invoke(ictx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ictx.Output.Close(nil)
	_, ok, err := ictx.Output.Read(ictx.Ctx)
	if err != nil {
		t.Fatalf("unexpected read error: %v", err)
	}
	if ok {
		t.Fatalf("expected no row when condition is false and no else branch is supplied")
	}
}

func TestForBreakStopsIteration(t *testing.T) {
	scope := crush.NewRootScope()

	var seen []int64
	breakAtTwo := &crush.SimpleCommand{
		Args: []crush.ArgumentDescription{{Name: "item", Type: crush.TypeInteger}},
		Run: func(ictx *crush.InvokeContext) error {
			item, _ := ictx.Arguments.Get("item")
			seen = append(seen, item.IntegerValue())
			if item.IntegerValue() == 2 {
				ictx.Scope.DoBreak()
			}
			ictx.Output.Initialize(&crush.Schema{})
			return nil
		},
	}
	body := crush.NewClosure(scope, []crush.ArgumentDescription{{Name: "item", Type: crush.TypeInteger}},
		[]*crush.Job{crush.NewJob("body", &crush.StageDef{
			ID:      "s0",
			Command: breakAtTwo,
			Args:    []crush.NamedExpression{{Name: "item", Expr: crush.VarRefExpr{Name: "item"}}},
		})})

	list := crush.NewList(crush.TypeInteger)
	for _, n := range []int64{1, 2, 3, 4} {
		_ = list.ListPush(crush.Integer(n))
	}

	run(t, scope, For,
		crush.Argument{Name: "list", Value: list},
		crush.Argument{Name: "body", Value: crush.ClosureValue(body)},
	)

	if len(seen) != 2 || seen[0] != 1 || seen[1] != 2 {
		t.Fatalf("expected the loop to stop right after item=2, got %v", seen)
	}
}

// Scenario S4: a loop body with two separate steps — the first breaks on
// item==2, the second just records what ran — must skip the second step
// for the very iteration that broke, not merely stop future iterations.
func TestForBreakSkipsRemainingBodySteps(t *testing.T) {
	scope := crush.NewRootScope()

	var ran []int64
	breakAtTwo := &crush.SimpleCommand{
		Args: []crush.ArgumentDescription{{Name: "item", Type: crush.TypeInteger}},
		Run: func(ictx *crush.InvokeContext) error {
			item, _ := ictx.Arguments.Get("item")
			if item.IntegerValue() == 2 {
				ictx.Scope.DoBreak()
			}
			ictx.Output.Initialize(&crush.Schema{})
			return nil
		},
	}
	recordStep := &crush.SimpleCommand{
		Args: []crush.ArgumentDescription{{Name: "item", Type: crush.TypeInteger}},
		Run: func(ictx *crush.InvokeContext) error {
			item, _ := ictx.Arguments.Get("item")
			ran = append(ran, item.IntegerValue())
			ictx.Output.Initialize(&crush.Schema{})
			return nil
		},
	}

	itemArg := []crush.NamedExpression{{Name: "item", Expr: crush.VarRefExpr{Name: "item"}}}
	body := crush.NewClosure(scope, []crush.ArgumentDescription{{Name: "item", Type: crush.TypeInteger}},
		[]*crush.Job{
			crush.NewJob("check", &crush.StageDef{ID: "s0", Command: breakAtTwo, Args: itemArg}),
			crush.NewJob("record", &crush.StageDef{ID: "s0", Command: recordStep, Args: itemArg}),
		})

	list := crush.NewList(crush.TypeInteger)
	for _, n := range []int64{1, 2, 3, 4} {
		_ = list.ListPush(crush.Integer(n))
	}

	run(t, scope, For,
		crush.Argument{Name: "list", Value: list},
		crush.Argument{Name: "body", Value: crush.ClosureValue(body)},
	)

	if len(ran) != 1 || ran[0] != 1 {
		t.Fatalf("expected only item=1's record step to run, got %v", ran)
	}
}

// Scenario S6: build a dict, insert a key, read it back, and confirm a
// missing key yields Empty().
func TestDictCreateInsertGet(t *testing.T) {
	scope := crush.NewRootScope()
	dictRow := run(t, scope, DictCreate(),
		crush.Argument{Name: "key", Value: crush.TypeToValue(crush.TypeText)},
		crush.Argument{Name: "value", Value: crush.TypeToValue(crush.TypeInteger)},
	)
	dict := dictRow.Values[0]

	inserted := run(t, scope, DictInsert.Bind(dict),
		crush.Argument{Name: "key", Value: crush.Text("a")},
		crush.Argument{Name: "value", Value: crush.Integer(1)},
	)
	dict = inserted.Values[0]

	got := run(t, scope, DictGet.Bind(dict), crush.Argument{Name: "key", Value: crush.Text("a")})
	if got.Values[0].IntegerValue() != 1 {
		t.Fatalf("expected a=1, got %v", got.Values[0])
	}

	missing := run(t, scope, DictGet.Bind(dict), crush.Argument{Name: "key", Value: crush.Text("b")})
	if missing.Values[0].Type().Kind != crush.KindEmpty {
		t.Fatalf("expected missing key to yield Empty(), got %v", missing.Values[0])
	}
}

func TestSortOrdersElements(t *testing.T) {
	scope := crush.NewRootScope()
	list := crush.NewList(crush.TypeInteger)
	for _, n := range []int64{3, 1, 2} {
		_ = list.ListPush(crush.Integer(n))
	}

	row := run(t, scope, Sort.Bind(list))
	sorted := row.Values[0].AsList()
	if len(sorted) != 3 || sorted[0].IntegerValue() != 1 || sorted[1].IntegerValue() != 2 || sorted[2].IntegerValue() != 3 {
		t.Fatalf("expected sorted [1 2 3], got %v", sorted)
	}
}

func TestRegisterDeclaresEveryCommand(t *testing.T) {
	scope := crush.NewRootScope()
	if err := Register(scope); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, name := range []string{"let", "set", "echo", "list:new", "list:push", "list:len", "dict:create", "dict:insert", "dict:get", "if", "for", "break", "continue", "sort"} {
		if _, ok := scope.Get(name); !ok {
			t.Errorf("expected %q to be registered", name)
		}
	}
}
