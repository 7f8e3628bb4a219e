// Copyright © 2020 Jonathan Whitaker <github@whitaker.io>.
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package crush

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Kind enumerates the closed tagged union of Value variants (§3 Value
// kinds). Kind ordinals double as the primary sort key across
// heterogeneous collections (§4.1).
type Kind int

const (
	KindEmpty Kind = iota
	KindText
	KindInteger
	KindFloat
	KindBool
	KindTime
	KindDuration
	KindFile
	KindField
	KindType
	KindList
	KindDict
	KindTable
	KindStream
	KindCommand
	KindBoundCommand
	KindClosure
	KindScope
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindEmpty:
		return "empty"
	case KindText:
		return "text"
	case KindInteger:
		return "integer"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	case KindTime:
		return "time"
	case KindDuration:
		return "duration"
	case KindFile:
		return "file"
	case KindField:
		return "field"
	case KindType:
		return "type"
	case KindList:
		return "list"
	case KindDict:
		return "dict"
	case KindTable:
		return "table"
	case KindStream:
		return "stream"
	case KindCommand:
		return "command"
	case KindBoundCommand:
		return "bound_command"
	case KindClosure:
		return "closure"
	case KindScope:
		return "scope"
	case KindError:
		return "error"
	default:
		return "unknown"
	}
}

// ValueType is a reified, first-class description of a Value's shape.
// Equality is nominal for scalar Kinds and structural (componentwise) for
// List/Dict/Table/Stream, per §3.
type ValueType struct {
	Kind    Kind
	Element *ValueType // List element type; Dict value type
	Key     *ValueType // Dict key type
	Schema  *Schema    // Table/Stream schema
}

// Equal reports nominal equality for scalars and structural equality for
// aggregates, as required by §3 "Value types".
func (t *ValueType) Equal(o *ValueType) bool {
	if t == nil || o == nil {
		return t == o
	}
	if t.Kind != o.Kind {
		return false
	}
	switch t.Kind {
	case KindList:
		return t.Element.Equal(o.Element)
	case KindDict:
		return t.Key.Equal(o.Key) && t.Element.Equal(o.Element)
	case KindTable, KindStream:
		return t.Schema.Equal(o.Schema)
	default:
		return true
	}
}

func (t *ValueType) String() string {
	switch t.Kind {
	case KindList:
		return fmt.Sprintf("list<%s>", t.Element)
	case KindDict:
		return fmt.Sprintf("dict<%s,%s>", t.Key, t.Element)
	case KindTable:
		return fmt.Sprintf("table<%s>", t.Schema)
	case KindStream:
		return fmt.Sprintf("stream<%s>", t.Schema)
	default:
		return t.Kind.String()
	}
}

// Simple type constructors for the scalar Kinds.
var (
	TypeEmpty    = &ValueType{Kind: KindEmpty}
	TypeText     = &ValueType{Kind: KindText}
	TypeInteger  = &ValueType{Kind: KindInteger}
	TypeFloat    = &ValueType{Kind: KindFloat}
	TypeBool     = &ValueType{Kind: KindBool}
	TypeTime     = &ValueType{Kind: KindTime}
	TypeDuration = &ValueType{Kind: KindDuration}
	TypeFile     = &ValueType{Kind: KindFile}
	TypeField    = &ValueType{Kind: KindField}
	TypeType     = &ValueType{Kind: KindType}
	TypeCommand  = &ValueType{Kind: KindCommand}
	TypeClosure  = &ValueType{Kind: KindClosure}
	TypeScope    = &ValueType{Kind: KindScope}
	TypeError    = &ValueType{Kind: KindError}
)

// ListType builds the ValueType for a List of elem.
func ListType(elem *ValueType) *ValueType { return &ValueType{Kind: KindList, Element: elem} }

// DictType builds the ValueType for a Dict from key to elem.
func DictType(key, elem *ValueType) *ValueType {
	return &ValueType{Kind: KindDict, Key: key, Element: elem}
}

// TableType builds the ValueType for a Table/materialized Stream with schema.
func TableType(schema *Schema) *ValueType { return &ValueType{Kind: KindTable, Schema: schema} }

// StreamType builds the ValueType for a lazy Stream with schema.
func StreamType(schema *Schema) *ValueType { return &ValueType{Kind: KindStream, Schema: schema} }

// Value is the closed tagged union described in §3. Scalar variants own
// their data; aggregate variants (List, Dict, Table, Scope) share a single
// underlying storage by handle, exactly as the teacher's Packet.Data
// aggregates (map/slice) are shared by reference rather than copied.
type Value struct {
	typ *ValueType

	text     string
	integer  int64
	float    float64
	boolean  bool
	when     time.Time
	duration time.Duration
	file     string
	field    []string

	vtype *ValueType

	list   *sharedList
	dict   *sharedDict
	table  *Table
	stream *Stream

	command *BoundCommand
	closure *Closure
	scope   *Scope
	err     *Error
}

type sharedList struct {
	mu    sync.Mutex
	elem  *ValueType
	items []Value
}

type sharedDict struct {
	mu    sync.Mutex
	key   *ValueType
	elem  *ValueType
	items map[string]dictEntry
}

type dictEntry struct {
	key   Value
	value Value
}

// Type returns the Value's reified ValueType.
func (v Value) Type() *ValueType { return v.typ }

// Empty is the Empty/unit value.
func Empty() Value { return Value{typ: TypeEmpty} }

// Text constructs a Text value.
func Text(s string) Value { return Value{typ: TypeText, text: s} }

// Integer constructs an Integer value (128-bit signed per spec; int64
// backed here, the same pragmatic narrowing the teacher's numeric fields
// use throughout Data/typed.Typed-style conversions).
func Integer(i int64) Value { return Value{typ: TypeInteger, integer: i} }

// Float constructs a Float value.
func Float(f float64) Value { return Value{typ: TypeFloat, float: f} }

// Bool constructs a Bool value.
func Bool(b bool) Value { return Value{typ: TypeBool, boolean: b} }

// Time constructs a Time value.
func Time(t time.Time) Value { return Value{typ: TypeTime, when: t} }

// Duration constructs a Duration value.
func Duration(d time.Duration) Value { return Value{typ: TypeDuration, duration: d} }

// File constructs a File (path) value.
func File(path string) Value { return Value{typ: TypeFile, file: path} }

// Field constructs a Field (column-path) value from ordered identifier
// segments.
func Field(segments ...string) Value {
	out := make([]string, len(segments))
	copy(out, segments)
	return Value{typ: TypeField, field: out}
}

// NewList constructs an empty, mutable List(elem) value.
func NewList(elem *ValueType) Value {
	return Value{typ: ListType(elem), list: &sharedList{elem: elem}}
}

// NewDict constructs an empty, mutable Dict(key,elem) value.
func NewDict(key, elem *ValueType) Value {
	return Value{typ: DictType(key, elem), dict: &sharedDict{key: key, elem: elem, items: map[string]dictEntry{}}}
}

// TableValue wraps a materialized Table as a Value.
func TableValue(t *Table) Value { return Value{typ: TableType(t.Schema), table: t} }

// StreamValue wraps a lazy, single-consumer Stream as a Value.
func StreamValue(s *Stream) Value { return Value{typ: StreamType(s.Schema), stream: s} }

// CommandValue wraps a Command as a Value.
func CommandValue(c Command) Value {
	return Value{typ: TypeCommand, command: &BoundCommand{cmd: c}}
}

// BoundCommandValue wraps a receiver-bound Command as a Value.
func BoundCommandValue(b *BoundCommand) Value { return Value{typ: TypeCommand, command: b} }

// ClosureValue wraps a Closure as a Value.
func ClosureValue(c *Closure) Value { return Value{typ: TypeClosure, closure: c} }

// ScopeValue wraps a Scope handle as a Value.
func ScopeValue(s *Scope) Value { return Value{typ: TypeScope, scope: s} }

// ErrorValue wraps an *Error as a first-class Value.
func ErrorValue(e *Error) Value { return Value{typ: TypeError, err: e} }

// TypeToValue reifies a ValueType as a first-class Type-kinded Value, the
// counterpart the argument resolver needs whenever a command parameter is
// itself a type descriptor (e.g. list:new's element type argument).
func TypeToValue(t *ValueType) Value { return Value{typ: TypeType, vtype: t} }

// ValueToType extracts the ValueType carried by a Type-kinded Value.
func ValueToType(v Value) *ValueType { return v.vtype }

// AsList returns the underlying elements. Safe for concurrent callers
// since the handle serializes access through its mutex.
func (v Value) AsList() []Value {
	v.list.mu.Lock()
	defer v.list.mu.Unlock()
	out := make([]Value, len(v.list.items))
	copy(out, v.list.items)
	return out
}

// ListPush appends a value, failing with ErrType if it does not conform
// to the list's element type.
func (v Value) ListPush(item Value) error {
	if !v.list.elem.Equal(item.Type()) {
		return NewError(ErrType, "cannot push %s into list<%s>", item.Type(), v.list.elem)
	}
	v.list.mu.Lock()
	defer v.list.mu.Unlock()
	v.list.items = append(v.list.items, item)
	return nil
}

// ListLen returns the number of elements currently held.
func (v Value) ListLen() int64 {
	v.list.mu.Lock()
	defer v.list.mu.Unlock()
	return int64(len(v.list.items))
}

// DictInsert inserts or replaces the value bound to key.
func (v Value) DictInsert(key, value Value) error {
	if !v.dict.key.Equal(key.Type()) {
		return NewError(ErrType, "dict key type mismatch: expected %s got %s", v.dict.key, key.Type())
	}
	if !v.dict.elem.Equal(value.Type()) {
		return NewError(ErrType, "dict value type mismatch: expected %s got %s", v.dict.elem, value.Type())
	}
	v.dict.mu.Lock()
	defer v.dict.mu.Unlock()
	v.dict.items[dictKey(key)] = dictEntry{key: key, value: value}
	return nil
}

// DictGet looks up key, returning Empty() and false if absent.
func (v Value) DictGet(key Value) (Value, bool) {
	v.dict.mu.Lock()
	defer v.dict.mu.Unlock()
	entry, ok := v.dict.items[dictKey(key)]
	if !ok {
		return Empty(), false
	}
	return entry.value, true
}

func dictKey(v Value) string {
	switch v.typ.Kind {
	case KindText:
		return "t:" + v.text
	case KindInteger:
		return fmt.Sprintf("i:%d", v.integer)
	case KindBool:
		return fmt.Sprintf("b:%v", v.boolean)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// Table returns the underlying *Table for a KindTable Value.
func (v Value) Table() *Table { return v.table }

// Stream returns the underlying *Stream for a KindStream Value.
func (v Value) Stream() *Stream { return v.stream }

// Command returns the underlying *BoundCommand for a Command-kinded Value.
func (v Value) Command() *BoundCommand { return v.command }

// Closure returns the underlying *Closure for a Closure-kinded Value.
func (v Value) Closure() *Closure { return v.closure }

// Scope returns the underlying *Scope for a Scope-kinded Value.
func (v Value) Scope() *Scope { return v.scope }

// Err returns the underlying *Error for an Error-kinded Value.
func (v Value) Err() *Error { return v.err }

// TextValue/IntegerValue/FloatValue/BoolValue/WhenValue/DurationValue/
// FileValue/FieldValue are scalar accessors; callers are expected to have checked Type().Kind first, the
// same unchecked-accessor convention the teacher's Packet.Data[key].(T)
// assertions follow.
func (v Value) TextValue() string            { return v.text }
func (v Value) IntegerValue() int64          { return v.integer }
func (v Value) FloatValue() float64          { return v.float }
func (v Value) BoolValue() bool              { return v.boolean }
func (v Value) WhenValue() time.Time         { return v.when }
func (v Value) DurationValue() time.Duration { return v.duration }
func (v Value) FileValue() string            { return v.file }
func (v Value) FieldValue() []string         { return v.field }

// Equal implements value equality. Ordering across distinct Kinds is
// total by ordinal (§4.1); within a Kind it is variant-specific.
func (v Value) Equal(o Value) bool {
	return v.Compare(o) == 0
}

// Compare returns -1/0/1. Sorting keys are (Kind ordinal, intra-variant
// order) so heterogeneous collections have deterministic order (§4.1).
func (v Value) Compare(o Value) int {
	if v.typ.Kind != o.typ.Kind {
		if v.typ.Kind < o.typ.Kind {
			return -1
		}
		return 1
	}
	switch v.typ.Kind {
	case KindText:
		return compareString(v.text, o.text)
	case KindInteger:
		return compareInt(v.integer, o.integer)
	case KindFloat:
		return compareFloat(v.float, o.float)
	case KindBool:
		return compareBool(v.boolean, o.boolean)
	case KindTime:
		return compareInt(v.when.UnixNano(), o.when.UnixNano())
	case KindDuration:
		return compareInt(int64(v.duration), int64(o.duration))
	case KindFile:
		return compareString(v.file, o.file)
	case KindField:
		return compareString(fmt.Sprint(v.field), fmt.Sprint(o.field))
	default:
		// Undefined intra-variant order for aggregates/handles; identity
		// comparison is the only defined relation (§4.1 "undefined across
		// variants" extends here to "unordered within" for handle kinds).
		if sameHandle(v, o) {
			return 0
		}
		return -1
	}
}

// sameHandle reports whether v and o, already known to share a Kind,
// wrap the same underlying handle. Each aggregate/reference Kind keeps
// its identity in its own field, so this must switch on Kind rather than
// comparing a single field (v.list is nil for every non-List Value).
func sameHandle(v, o Value) bool {
	switch v.typ.Kind {
	case KindEmpty:
		return true
	case KindList:
		return v.list == o.list
	case KindDict:
		return v.dict == o.dict
	case KindTable:
		return v.table == o.table
	case KindStream:
		return v.stream == o.stream
	case KindCommand, KindBoundCommand:
		return v.command == o.command
	case KindClosure:
		return v.closure == o.closure
	case KindScope:
		return v.scope == o.scope
	case KindError:
		return v.err == o.err
	case KindType:
		return v.vtype == o.vtype
	default:
		return false
	}
}

func compareString(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func compareInt(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func compareFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func compareBool(a, b bool) int {
	if a == b {
		return 0
	}
	if !a {
		return -1
	}
	return 1
}

// Materialize converts a lazy Stream into a fully-realized Table and
// materializes a List's elements recursively into a new List, satisfying
// the round-trip law materialize(materialize(v)) == materialize(v). Dict
// and Table values are returned as they are: Streams held in Dict entries
// or Table rows are not materialized. List elements are
// reconstructed element-wise rather than through a reflect-based deep
// copy: Value's fields are unexported by design (§3's closed tagged
// union), scalar variants already copy correctly by plain Go struct
// assignment, and aggregate variants are meant to keep sharing their
// underlying storage by handle (see the Value doc comment above).
func (v Value) Materialize() (Value, error) {
	switch v.typ.Kind {
	case KindStream:
		rows, err := v.stream.drain()
		if err != nil {
			return Value{}, err
		}
		return TableValue(&Table{Schema: v.stream.Schema, Rows: rows}), nil
	case KindTable:
		return v, nil
	case KindList:
		items := v.AsList()
		out := make([]Value, len(items))
		for i, item := range items {
			m, err := item.Materialize()
			if err != nil {
				return Value{}, err
			}
			out[i] = m
		}
		nv := NewList(v.list.elem)
		nv.list.items = deepCopyValues(out)
		return nv, nil
	case KindDict:
		return v, nil
	default:
		return v, nil
	}
}

// deepCopyValues returns a new slice holding the same Values as in.
// Scalar Values copy correctly by ordinary struct assignment; aggregate
// Values (list/dict/table/stream) intentionally keep sharing their
// underlying storage by handle, so copying the slice itself is enough
// to give Materialize its own backing array without aliasing the
// source list's storage.
func deepCopyValues(in []Value) []Value {
	out := make([]Value, len(in))
	copy(out, in)
	return out
}

// newHandleID is used by NewJob and the Scope constructors needing a
// unique identifier, grounded on the teacher's uuid.New().String() use in
// machine.go/vertex.go for Packet and trace span IDs.
func newHandleID() string { return uuid.New().String() }
