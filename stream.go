// Copyright © 2020 Jonathan Whitaker <github@whitaker.io>.
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package crush

import (
	"context"
	"sync/atomic"
)

// Stream is the lazy, single-consumer row source variant of §3. Copying a
// Stream Value is forbidden (§5 "Resource ownership"); this is enforced
// at the Go level with an internal "taken" flag rather than a move-only
// type, the affordance §9 "First-class streams" recommends for
// garbage-collected languages.
type Stream struct {
	Schema *Schema
	source *RowChannel
	taken  int32
}

// NewStream wraps a RowChannel producing rows of the given schema as a
// first-class Stream value.
func NewStream(schema *Schema, source *RowChannel) *Stream {
	return &Stream{Schema: schema, source: source}
}

// take marks the Stream as consumed, returning an error on the second
// attempt per §3 invariant 4 / §8 testable property 5.
func (s *Stream) take() error {
	if !atomic.CompareAndSwapInt32(&s.taken, 0, 1) {
		return NewError(ErrType, "stream already consumed")
	}
	return nil
}

// drain reads the Stream to completion into rows, failing if the Stream
// was already consumed. This is the primitive Materialize builds on.
func (s *Stream) drain() ([]Row, error) {
	if err := s.take(); err != nil {
		return nil, err
	}
	ctx := context.Background()
	rows := []Row{}
	for {
		row, ok, err := s.source.Read(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			return rows, nil
		}
		rows = append(rows, row)
	}
}
