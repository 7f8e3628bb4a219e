// Copyright © 2020 Jonathan Whitaker <github@whitaker.io>.
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package crush

import (
	"context"
	"sync"
)

// ValueChannel is the one-shot, capacity-1, single-producer/single-consumer
// primitive of §4.2. send succeeds once; recv blocks until the value
// arrives or the sender is dropped, in which case it yields end-of-stream
// rather than a value — grounded on the teacher's channel.go/edge.go
// one-directional chan wrapper idiom, narrowed to a single handoff.
type ValueChannel struct {
	ch     chan Value
	once   sync.Once
	closed chan struct{}
}

// NewValueChannel allocates an unbound one-shot channel.
func NewValueChannel() *ValueChannel {
	return &ValueChannel{
		ch:     make(chan Value, 1),
		closed: make(chan struct{}),
	}
}

// Send delivers v exactly once. Only the first Send (or Drop) takes
// effect; any later Send is silently ignored.
func (c *ValueChannel) Send(v Value) {
	c.once.Do(func() {
		c.ch <- v
		close(c.closed)
	})
}

// Drop releases the sender without ever calling Send, the in-band EOF
// signal of §5 "Resource ownership".
func (c *ValueChannel) Drop() {
	c.once.Do(func() {
		close(c.closed)
	})
}

// Recv blocks until the single value arrives, the sender is dropped
// (ok=false), or ctx is done.
func (c *ValueChannel) Recv(ctx context.Context) (Value, bool, error) {
	select {
	case v := <-c.ch:
		return v, true, nil
	case <-c.closed:
		select {
		case v := <-c.ch:
			return v, true, nil
		default:
			return Empty(), false, nil
		}
	case <-ctx.Done():
		return Empty(), false, Wrap(ErrIO, ctx.Err())
	}
}

// rowChannelState tracks the two-phase initialize/transport protocol of
// §4.2: a RowChannel begins uninitialized and the consumer's Types()
// blocks until the producer calls Initialize.
type rowChannelState int

const (
	rowChannelUninitialized rowChannelState = iota
	rowChannelInitialized
	rowChannelClosed
)

// RowChannel is the bounded FIFO row stream of §4.2/§4.3. It begins life
// uninitialized; before any row flows the producer calls Initialize(schema),
// after which Send/Read transport schema-conforming rows. Dropping the
// sender after initialization is a clean EOF; dropping it before
// initialization is reported to the consumer as a block error, per §4.2's
// rationale paragraph and the original Rust source's drop.rs contract
// (see SPEC_FULL.md "Supplemented features" #4).
type RowChannel struct {
	mu        sync.Mutex
	state     rowChannelState
	schema    *Schema
	schemaSet chan struct{}
	rows      chan Row
	done      chan struct{}
	initErr   error
}

// NewRowChannel allocates an uninitialized RowChannel with the given
// buffer capacity, grounded on the teacher's newEdge(bufferSize) helper.
func NewRowChannel(bufferSize int) *RowChannel {
	return &RowChannel{
		schemaSet: make(chan struct{}),
		rows:      make(chan Row, bufferSize),
		done:      make(chan struct{}),
	}
}

// Initialize binds the schema the producer will send conforming rows
// against. Calling it twice is a programmer error.
func (rc *RowChannel) Initialize(schema *Schema) {
	rc.mu.Lock()
	if rc.state != rowChannelUninitialized {
		rc.mu.Unlock()
		panic("crush: RowChannel initialized twice")
	}
	rc.schema = schema
	rc.state = rowChannelInitialized
	rc.mu.Unlock()
	close(rc.schemaSet)
}

// Types blocks until initialization happens (or the channel is dropped
// before initialization, which is an error), per §4.2.
func (rc *RowChannel) Types(ctx context.Context) (*Schema, error) {
	select {
	case <-rc.schemaSet:
		return rc.schema, nil
	case <-rc.done:
		rc.mu.Lock()
		err := rc.initErr
		rc.mu.Unlock()
		if err != nil {
			return nil, err
		}
		return nil, NewError(ErrBlock, "row channel dropped before initialization")
	case <-ctx.Done():
		return nil, Wrap(ErrIO, ctx.Err())
	}
}

// Send transports a conforming row. It blocks if the bounded buffer is
// full, is one of §5's named suspension points.
func (rc *RowChannel) Send(ctx context.Context, row Row) error {
	rc.mu.Lock()
	initialized := rc.state == rowChannelInitialized
	schema := rc.schema
	rc.mu.Unlock()
	if !initialized {
		return NewError(ErrBlock, "send before initialize")
	}
	if !row.Conforms(schema) {
		return NewError(ErrType, "row does not conform to schema %s", schema)
	}
	select {
	case rc.rows <- row:
		return nil
	case <-rc.done:
		return NewError(ErrBlock, "send on closed channel")
	case <-ctx.Done():
		return Wrap(ErrIO, ctx.Err())
	}
}

// Read receives the next row, or ok=false at clean EOF.
func (rc *RowChannel) Read(ctx context.Context) (Row, bool, error) {
	select {
	case row, ok := <-rc.rows:
		if !ok {
			return Row{}, false, nil
		}
		return row, true, nil
	case <-ctx.Done():
		return Row{}, false, Wrap(ErrIO, ctx.Err())
	}
}

// Close drops the sender endpoint. If the channel was never initialized,
// blocked Types() callers receive err, or a block error when err is nil;
// otherwise
// it is a clean EOF (closing the row channel lets any buffered rows still
// drain via Read before the closed signal is observed).
func (rc *RowChannel) Close(err error) {
	rc.mu.Lock()
	if rc.state == rowChannelClosed {
		rc.mu.Unlock()
		return
	}
	wasInitialized := rc.state == rowChannelInitialized
	rc.state = rowChannelClosed
	rc.initErr = err
	rc.mu.Unlock()

	if wasInitialized {
		close(rc.rows)
	}
	close(rc.done)
}

// EmptyRowChannel returns an already-closed, schema-less RowChannel representing
// "no upstream" — a single-stage job's input, per §8 boundary behavior
// "single-stage pipeline with no upstream".
func EmptyRowChannel() *RowChannel {
	rc := NewRowChannel(0)
	rc.Initialize(&Schema{})
	close(rc.rows)
	close(rc.done)
	rc.state = rowChannelClosed
	return rc
}

// Pipe forwards every row from src to dst until src reaches EOF, then
// closes dst, mirroring the teacher's (*edge).sendTo forwarding goroutine
// in channel.go/edge.go/types.go — a helper for splicing one RowChannel's
// rows into another without an intervening worker. The Runner does not
// call it.
func (rc *RowChannel) Pipe(ctx context.Context, dst *RowChannel) {
	go func() {
		schema, err := rc.Types(ctx)
		if err != nil {
			dst.Close(err)
			return
		}
		dst.Initialize(schema)
		for {
			row, ok, err := rc.Read(ctx)
			if err != nil {
				dst.Close(err)
				return
			}
			if !ok {
				dst.Close(nil)
				return
			}
			if err := dst.Send(ctx, row); err != nil {
				return
			}
		}
	}()
}
