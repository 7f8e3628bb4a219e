// Copyright © 2020 Jonathan Whitaker <github@whitaker.io>.
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package crush

import (
	"context"
	"testing"
	"time"
)

func TestValueChannelSendOnce(t *testing.T) {
	ctx := context.Background()
	c := NewValueChannel()
	c.Send(Integer(1))
	c.Send(Integer(2)) // second Send is a documented no-op (once.Do)

	v, ok, err := c.Recv(ctx)
	if err != nil || !ok {
		t.Fatalf("unexpected recv result: %v %v %v", v, ok, err)
	}
	if v.IntegerValue() != 1 {
		t.Fatalf("expected first-sent value to win, got %d", v.IntegerValue())
	}
}

func TestValueChannelDropYieldsEOF(t *testing.T) {
	ctx := context.Background()
	c := NewValueChannel()
	c.Drop()
	_, ok, err := c.Recv(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatalf("expected ok=false after Drop without Send")
	}
}

func TestRowChannelSendBeforeInitializeFails(t *testing.T) {
	ctx := context.Background()
	rc := NewRowChannel(1)
	if err := rc.Send(ctx, Row{}); err == nil {
		t.Fatalf("expected send-before-initialize to fail")
	}
}

func TestRowChannelCleanEOFAfterInitialize(t *testing.T) {
	ctx := context.Background()
	rc := NewRowChannel(1)
	schema, _ := NewSchema(Column{Name: "a", Type: TypeInteger})
	rc.Initialize(schema)

	if err := rc.Send(ctx, Row{Values: []Value{Integer(1)}}); err != nil {
		t.Fatalf("unexpected send error: %v", err)
	}
	rc.Close(nil)

	row, ok, err := rc.Read(ctx)
	if err != nil || !ok || row.Values[0].IntegerValue() != 1 {
		t.Fatalf("expected buffered row before EOF, got %v %v %v", row, ok, err)
	}

	_, ok, err = rc.Read(ctx)
	if err != nil || ok {
		t.Fatalf("expected clean EOF after drain, got ok=%v err=%v", ok, err)
	}
}

func TestRowChannelDroppedBeforeInitializeReportsBlockError(t *testing.T) {
	ctx := context.Background()
	rc := NewRowChannel(0)
	rc.Close(nil)

	_, err := rc.Types(ctx)
	if err == nil {
		t.Fatalf("expected block error for a channel dropped before initialize")
	}
	ce, ok := err.(*Error)
	if !ok || ce.Kind != ErrBlock {
		t.Fatalf("expected ErrBlock, got %v", err)
	}
}

func TestEmptyRowChannelIsPreClosed(t *testing.T) {
	ctx := context.Background()
	rc := EmptyRowChannel()
	schema, err := rc.Types(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(schema.Columns) != 0 {
		t.Fatalf("expected empty schema, got %s", schema)
	}
	_, ok, err := rc.Read(ctx)
	if err != nil || ok {
		t.Fatalf("expected immediate EOF from an empty row channel")
	}
}

func TestRowChannelPipeForwardsUntilEOF(t *testing.T) {
	ctx := context.Background()
	src := NewRowChannel(0)
	dst := NewRowChannel(0)
	schema, _ := NewSchema(Column{Name: "a", Type: TypeInteger})

	src.Pipe(ctx, dst)

	go func() {
		src.Initialize(schema)
		_ = src.Send(ctx, Row{Values: []Value{Integer(42)}})
		src.Close(nil)
	}()

	gotSchema, err := dst.Types(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !gotSchema.Equal(schema) {
		t.Fatalf("expected forwarded schema to match source")
	}

	deadline := time.After(2 * time.Second)
	select {
	case row := <-dst.rows:
		if row.Values[0].IntegerValue() != 42 {
			t.Fatalf("expected forwarded row value 42, got %d", row.Values[0].IntegerValue())
		}
	case <-deadline:
		t.Fatalf("timed out waiting for forwarded row")
	}

	select {
	case _, ok := <-dst.rows:
		if ok {
			t.Fatalf("expected dst to be closed once src reached EOF")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for dst to close after src EOF")
	}
}
