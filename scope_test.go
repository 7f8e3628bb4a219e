// Copyright © 2020 Jonathan Whitaker <github@whitaker.io>.
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package crush

import "testing"

func TestScopeDeclareGetRemoveRoundTrip(t *testing.T) {
	s := NewRootScope()
	if err := s.Declare("x", Integer(1)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	v, ok := s.Get("x")
	if !ok || v.IntegerValue() != 1 {
		t.Fatalf("expected x=1, got %v ok=%v", v, ok)
	}
	if err := s.Remove("x"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := s.Get("x"); ok {
		t.Fatalf("expected x to be gone after Remove")
	}
}

func TestScopeDeclareTwiceFails(t *testing.T) {
	s := NewRootScope()
	_ = s.Declare("x", Integer(1))
	if err := s.Declare("x", Integer(2)); err == nil {
		t.Fatalf("expected redeclaration to fail")
	}
}

func TestScopeSetEnforcesSameType(t *testing.T) {
	s := NewRootScope()
	_ = s.Declare("x", Integer(1))
	if err := s.Set("x", Integer(2)); err != nil {
		t.Fatalf("unexpected error reassigning same type: %v", err)
	}
	if err := s.Set("x", Text("oops")); err == nil {
		t.Fatalf("expected type mismatch on reassignment to fail")
	}
}

func TestScopeReadonlySealsWrites(t *testing.T) {
	s := NewRootScope()
	_ = s.Declare("x", Integer(1))
	s.Readonly()
	if err := s.Declare("y", Integer(2)); err == nil {
		t.Fatalf("expected declare on read-only scope to fail")
	}
	if err := s.Set("x", Integer(2)); err == nil {
		t.Fatalf("expected set on read-only scope to fail")
	}
}

func TestScopeGetWalksParentThenImports(t *testing.T) {
	root := NewRootScope()
	_ = root.Declare("fromParent", Integer(1))

	imported := NewRootScope()
	_ = imported.Declare("fromImport", Integer(2))

	child := root.CreateChild(nil, false)
	child.Use(imported)
	_ = child.Declare("local", Integer(3))

	for _, name := range []string{"local", "fromParent", "fromImport"} {
		if _, ok := child.Get(name); !ok {
			t.Errorf("expected %q to be visible from child", name)
		}
	}
	if _, ok := child.Get("missing"); ok {
		t.Errorf("expected unknown name to be absent")
	}
}

func TestScopeLocalShadowsParent(t *testing.T) {
	root := NewRootScope()
	_ = root.Declare("x", Integer(1))
	child := root.CreateChild(nil, false)
	_ = child.Declare("x", Text("shadowed"))

	v, _ := child.Get("x")
	if v.Type().Kind != KindText {
		t.Fatalf("expected child's local binding to shadow the parent's")
	}
}

func TestDoBreakWalksCallerChainToNearestLoop(t *testing.T) {
	root := NewRootScope()
	loop := root.CreateChild(nil, true)
	body := root.CreateChild(loop, false)
	nested := root.CreateChild(body, false)

	if !nested.DoBreak() {
		t.Fatalf("expected DoBreak to find the enclosing loop scope via the caller chain")
	}
	if !loop.IsStopped() {
		t.Fatalf("expected the loop scope itself to be marked stopped")
	}
	if body.IsStopped() || nested.IsStopped() {
		t.Fatalf("expected only the loop scope to carry isStopped, not intermediate caller scopes")
	}
}

func TestStopRequestedSeesLoopMarkedThroughCallerChain(t *testing.T) {
	root := NewRootScope()
	loop := root.CreateChild(nil, true)
	body := root.CreateChild(loop, false)
	nested := root.CreateChild(body, false)

	if body.stopRequested() || nested.stopRequested() {
		t.Fatalf("expected stopRequested to be false before any break/continue")
	}
	if !nested.DoBreak() {
		t.Fatalf("expected DoBreak to find the enclosing loop scope via the caller chain")
	}
	if !body.stopRequested() || !nested.stopRequested() {
		t.Fatalf("expected stopRequested to observe the loop scope's isStopped via the caller chain")
	}
}

func TestDoBreakWithNoEnclosingLoopReturnsFalse(t *testing.T) {
	root := NewRootScope()
	orphan := root.CreateChild(nil, false)
	if orphan.DoBreak() {
		t.Fatalf("expected DoBreak with no caller chain and no loop to report false")
	}
}

func TestResetStoppedClearsFlag(t *testing.T) {
	root := NewRootScope()
	loop := root.CreateChild(nil, true)
	loop.isStopped = true
	loop.ResetStopped()
	if loop.IsStopped() {
		t.Fatalf("expected ResetStopped to clear isStopped")
	}
}

func TestDumpOrdersParentsThenImportsThenLocals(t *testing.T) {
	root := NewRootScope()
	_ = root.Declare("p", Integer(1))
	imported := NewRootScope()
	_ = imported.Declare("i", Integer(2))
	child := root.CreateChild(nil, false)
	child.Use(imported)
	_ = child.Declare("c", Text("x"))

	pos := map[string]int{}
	for i, pair := range child.Dump() {
		pos[pair.Name] = i
	}
	p, okP := pos["p"]
	i, okI := pos["i"]
	c, okC := pos["c"]
	if !okP || !okI || !okC {
		t.Fatalf("expected dump to include parent, imported and local names, got %v", pos)
	}
	if !(p < i && i < c) {
		t.Fatalf("expected parent, then import, then local order, got %v", pos)
	}
}
