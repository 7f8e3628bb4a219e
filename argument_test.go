// Copyright © 2020 Jonathan Whitaker <github@whitaker.io>.
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package crush

import "testing"

func TestResolveArgumentsPositionalAndNamed(t *testing.T) {
	descs := []ArgumentDescription{
		{Name: "a", Type: TypeInteger},
		{Name: "b", Type: TypeText},
	}
	resolved, errs := ResolveArguments(descs, []Argument{
		{Value: Integer(1)},
		{Name: "b", Value: Text("x")},
	})
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	a, _ := resolved.Get("a")
	b, _ := resolved.Get("b")
	if a.IntegerValue() != 1 || b.TextValue() != "x" {
		t.Fatalf("unexpected bound values: a=%v b=%v", a, b)
	}
}

func TestResolveArgumentsAppliesDefault(t *testing.T) {
	def := Integer(99)
	descs := []ArgumentDescription{{Name: "a", Type: TypeInteger, Default: &def}}
	resolved, errs := ResolveArguments(descs, nil)
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	a, _ := resolved.Get("a")
	if a.IntegerValue() != 99 {
		t.Fatalf("expected default value 99, got %d", a.IntegerValue())
	}
}

func TestResolveArgumentsMissingRequiredFails(t *testing.T) {
	descs := []ArgumentDescription{{Name: "a", Type: TypeInteger}}
	_, errs := ResolveArguments(descs, nil)
	if len(errs) != 1 {
		t.Fatalf("expected exactly one missing-argument error, got %v", errs)
	}
}

func TestResolveArgumentsTypeMismatchFails(t *testing.T) {
	descs := []ArgumentDescription{{Name: "a", Type: TypeInteger}}
	_, errs := ResolveArguments(descs, []Argument{{Name: "a", Value: Text("wrong")}})
	if len(errs) != 1 {
		t.Fatalf("expected exactly one type-mismatch error, got %v", errs)
	}
}

func TestResolveArgumentsCollectsAllViolations(t *testing.T) {
	descs := []ArgumentDescription{
		{Name: "a", Type: TypeInteger},
		{Name: "b", Type: TypeText},
	}
	_, errs := ResolveArguments(descs, []Argument{
		{Name: "a", Value: Text("wrong")},
	})
	// "a" mismatches its type, "b" is missing entirely: both should surface.
	if len(errs) != 2 {
		t.Fatalf("expected two violations (type mismatch + missing), got %d: %v", len(errs), errs)
	}
}

func TestResolveArgumentsUnnamedVarargsSink(t *testing.T) {
	descs := []ArgumentDescription{{Name: "rest", UnnamedVarargs: true}}
	resolved, errs := ResolveArguments(descs, []Argument{
		{Value: Integer(1)},
		{Value: Integer(2)},
	})
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if len(resolved.UnnamedVarargs) != 2 {
		t.Fatalf("expected both positionals to land in the vararg sink, got %v", resolved.UnnamedVarargs)
	}
}

func TestResolveArgumentsNamedVarargsSink(t *testing.T) {
	descs := []ArgumentDescription{{Name: "opts", NamedVarargs: true}}
	resolved, errs := ResolveArguments(descs, []Argument{
		{Name: "extra", Value: Text("x")},
	})
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if v, ok := resolved.NamedVarargs["extra"]; !ok || v.TextValue() != "x" {
		t.Fatalf("expected extra=x in named vararg sink, got %v", resolved.NamedVarargs)
	}
}

func TestResolveArgumentsAllowedValues(t *testing.T) {
	descs := []ArgumentDescription{{Name: "a", Type: TypeText, AllowedValues: []Value{Text("x"), Text("y")}}}
	if _, errs := ResolveArguments(descs, []Argument{{Name: "a", Value: Text("z")}}); len(errs) != 1 {
		t.Fatalf("expected disallowed value to fail")
	}
	if _, errs := ResolveArguments(descs, []Argument{{Name: "a", Value: Text("x")}}); len(errs) != 0 {
		t.Fatalf("expected allowed value to succeed")
	}
}

func TestResolvedArgumentsDecode(t *testing.T) {
	descs := []ArgumentDescription{
		{Name: "name", Type: TypeText},
		{Name: "count", Type: TypeInteger},
	}
	resolved, errs := ResolveArguments(descs, []Argument{
		{Name: "name", Value: Text("widget")},
		{Name: "count", Value: Integer(3)},
	})
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}

	var out struct {
		Name  string
		Count int64
	}
	if err := resolved.Decode(&out); err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}
	if out.Name != "widget" || out.Count != 3 {
		t.Fatalf("unexpected decoded struct: %+v", out)
	}
}
