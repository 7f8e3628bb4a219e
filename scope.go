// Copyright © 2020 Jonathan Whitaker <github@whitaker.io>.
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package crush

import (
	"strings"
	"sync"
)

// Scope is the shared, mutex-guarded name->value environment node of §4.3.
// Scopes are shared by handle: multiple *Scope pointers may reference the
// same node, and the node lives until the last holder releases it (Go's
// GC does this for us — there is no explicit refcount, unlike the Rust
// original's Rc<RefCell<..>>).
//
// The parent edge is the lexical parent used for name resolution; the
// caller edge is the dynamic caller used for break/continue propagation.
// The mandatory locking discipline (§4.3, §5): a goroutine holds at most
// one Scope's mutex at a time. Every method below locks, reads what it
// needs (including a handle to the next Scope to recurse into), unlocks,
// and only then recurses — the same "lock, read, drop, recurse" shape the
// teacher's vertex.cascade/router.cascade use to walk the vertex graph
// without nesting locks.
type Scope struct {
	mu         sync.Mutex
	id         string
	parent     *Scope
	caller     *Scope
	imports    []*Scope
	locals     map[string]Value
	isLoop     bool
	isStopped  bool
	isReadonly bool
}

// NewRootScope creates a scope with no parent or caller, the entry point
// for a top-level job runner.
func NewRootScope() *Scope {
	return &Scope{
		id:     newHandleID(),
		locals: map[string]Value{},
	}
}

// ID returns the scope's identifier, used by dump/telemetry/debugserver.
func (s *Scope) ID() string { return s.id }

// CreateChild returns a new scope whose parent is s and whose caller is
// the supplied invocation-site scope, per §4.3 create_child.
func (s *Scope) CreateChild(caller *Scope, isLoop bool) *Scope {
	return &Scope{
		id:     newHandleID(),
		parent: s,
		caller: caller,
		locals: map[string]Value{},
		isLoop: isLoop,
	}
}

// Use appends other to the imported list; it is a lookup-only addition,
// no ownership transfer (§4.3 use).
func (s *Scope) Use(other *Scope) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.imports = append(s.imports, other)
}

// Readonly seals the scope's bindings. Values already bound — in
// particular the elements of a List/Dict reachable through a binding —
// remain mutable through their handles; only declare/set/remove on this
// scope are sealed (§4.3 readonly, SPEC_FULL.md supplemented feature #2).
func (s *Scope) Readonly() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.isReadonly = true
}

// Declare binds a new name in this scope. For a dotted path only the
// final segment is used, and it is declared in s itself (see
// resolveContainer). Declaring a name that already exists in s, or
// declaring into a read-only scope, fails with a name error (§4.3 declare, §3 invariant "Scope write rules").
func (s *Scope) Declare(path string, value Value) error {
	scope, name := s.resolveContainer(path)
	scope.mu.Lock()
	defer scope.mu.Unlock()
	if scope.isReadonly {
		return NewError(ErrName, "cannot declare %q: scope is read-only", name)
	}
	if _, exists := scope.locals[name]; exists {
		return NewError(ErrName, "cannot declare %q: already exists in this scope", name)
	}
	scope.locals[name] = value
	return nil
}

// Set updates an existing binding found by walking the parent chain. It
// fails if the new value's type differs from the old (§3 invariant 3), or
// if the owning scope is read-only, with a message suggesting remove
// before re-typing, per §4.3 set.
func (s *Scope) Set(path string, value Value) error {
	scope, name := s.resolveContainer(path)
	owner, existing, ok := scope.findOwner(name)
	if !ok {
		return NewError(ErrName, "cannot set %q: unknown name", name)
	}

	owner.mu.Lock()
	defer owner.mu.Unlock()
	if owner.isReadonly {
		return NewError(ErrName, "cannot set %q: scope is read-only", name)
	}
	if !existing.Type().Equal(value.Type()) {
		return NewError(ErrArgument,
			"type mismatch when reassigning variable %s: remove it first to change its type", name)
	}
	owner.locals[name] = value
	return nil
}

// Get searches the local mapping, then the parent chain, then each
// imported scope in order, per §4.3 get.
func (s *Scope) Get(name string) (Value, bool) {
	_, value, ok := s.findOwner(name)
	return value, ok
}

// findOwner performs the get search and additionally returns the owning
// *Scope, used internally by Set. It never holds more than one scope's
// lock at a time: it locks s, reads the local value plus handles to the
// parent and each import, unlocks, and only then recurses into those
// handles — the one-lock invariant of §4.3/§5.
func (s *Scope) findOwner(name string) (*Scope, Value, bool) {
	s.mu.Lock()
	value, ok := s.locals[name]
	parent := s.parent
	imports := append([]*Scope(nil), s.imports...)
	s.mu.Unlock()

	if ok {
		return s, value, true
	}
	if parent != nil {
		if owner, v, ok := parent.findOwner(name); ok {
			return owner, v, true
		}
	}
	for _, imp := range imports {
		if owner, v, ok := imp.findOwner(name); ok {
			return owner, v, true
		}
	}
	return nil, Value{}, false
}

// Remove deletes name from whichever scope it is found in, respecting
// read-only (§4.3 remove).
func (s *Scope) Remove(path string) error {
	scope, name := s.resolveContainer(path)
	owner, _, ok := scope.findOwner(name)
	if !ok {
		return NewError(ErrName, "cannot remove %q: unknown name", name)
	}
	owner.mu.Lock()
	defer owner.mu.Unlock()
	if owner.isReadonly {
		return NewError(ErrName, "cannot remove %q: scope is read-only", name)
	}
	delete(owner.locals, name)
	return nil
}

// resolveContainer splits a dotted path, returning s and the final
// segment name. Non-final segments are ignored: no namespace lookup is
// made through them, so Declare, Set and Remove always start from s with
// the final segment alone.
func (s *Scope) resolveContainer(path string) (*Scope, string) {
	idx := strings.LastIndex(path, ".")
	if idx < 0 {
		return s, path
	}
	return s, path[idx+1:]
}

// DoBreak walks the calling chain (not the parent chain) until it finds a
// scope with isLoop=true, marks it isStopped, and returns whether the
// intent was honored. A read-only scope refuses the request (§4.3
// do_break). DoContinue is identical: "break" and "continue" are both
// represented by the single isStopped flag, and nothing records which of
// the two was requested.
func (s *Scope) DoBreak() bool { return s.propagateStop() }

// DoContinue behaves exactly like DoBreak: it walks the caller chain to
// the nearest loop scope and sets the same isStopped flag. A loop driver
// cannot tell a continue from a break; the For builtin stops the whole
// loop on either.
func (s *Scope) DoContinue() bool { return s.propagateStop() }

func (s *Scope) propagateStop() bool {
	s.mu.Lock()
	if s.isReadonly {
		s.mu.Unlock()
		return false
	}
	isLoop := s.isLoop
	caller := s.caller
	if isLoop {
		s.isStopped = true
	}
	s.mu.Unlock()

	if isLoop {
		return true
	}
	if caller == nil {
		return false
	}
	return caller.propagateStop()
}

// IsStopped reports whether this scope's own isStopped flag is set. The
// For builtin checks it on its loop scope after each iteration; a body
// closure checks stopRequested instead before each of its job steps
// (§4.7 "Break/continue").
func (s *Scope) IsStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isStopped
}

// stopRequested reports whether the nearest loop scope reachable from s
// through the caller chain has been marked stopped. propagateStop marks
// that scope, never s itself unless s is the loop scope — so a body
// closure invoked as a loop's step must ask this, not s.IsStopped(), to
// learn whether a break/continue issued somewhere inside it should skip
// the rest of its own steps.
func (s *Scope) stopRequested() bool {
	s.mu.Lock()
	isLoop := s.isLoop
	stopped := s.isStopped
	caller := s.caller
	s.mu.Unlock()

	if isLoop {
		return stopped
	}
	if caller == nil {
		return false
	}
	return caller.stopRequested()
}

// ResetStopped clears isStopped at the top of a fresh loop iteration.
func (s *Scope) ResetStopped() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.isStopped = false
}

// NamePair is one entry of a Dump snapshot.
type NamePair struct {
	Name string
	Type *ValueType
}

// Dump returns a snapshot of every name visible from s: parents first,
// then imports, then locals, so that locals shadow correctly when the
// caller builds a name->type map from the slice in order (§4.3 dump).
func (s *Scope) Dump() []NamePair {
	var out []NamePair
	if s.parent != nil {
		out = append(out, s.parent.Dump()...)
	}
	s.mu.Lock()
	imports := append([]*Scope(nil), s.imports...)
	locals := make(map[string]Value, len(s.locals))
	for k, v := range s.locals {
		locals[k] = v
	}
	s.mu.Unlock()

	for _, imp := range imports {
		out = append(out, imp.Dump()...)
	}
	for name, v := range locals {
		out = append(out, NamePair{Name: name, Type: v.Type()})
	}
	return out
}
