// Copyright © 2020 Jonathan Whitaker <github@whitaker.io>.
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package crush

import "strings"

// Column is a named, typed slot within a Schema (§3).
type Column struct {
	Name string
	Type *ValueType
}

// Schema is an ordered sequence of Columns with unique names (§3 Row &
// column schema, invariant 1 "Schema uniqueness").
type Schema struct {
	Columns []Column
}

// NewSchema validates column-name uniqueness before returning a Schema,
// enforcing invariant 1 at construction time rather than at first use.
func NewSchema(columns ...Column) (*Schema, error) {
	seen := map[string]struct{}{}
	for _, c := range columns {
		if _, ok := seen[c.Name]; ok {
			return nil, NewError(ErrType, "duplicate column name %q in schema", c.Name)
		}
		seen[c.Name] = struct{}{}
	}
	return &Schema{Columns: columns}, nil
}

// IndexOf returns the position of name, or -1.
func (s *Schema) IndexOf(name string) int {
	for i, c := range s.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// Equal is structural: componentwise name+type equality, in order, per
// §3's "structural for List, Dict, Table, Stream" rule.
func (s *Schema) Equal(o *Schema) bool {
	if s == nil || o == nil {
		return s == o
	}
	if len(s.Columns) != len(o.Columns) {
		return false
	}
	for i, c := range s.Columns {
		oc := o.Columns[i]
		if c.Name != oc.Name || !c.Type.Equal(oc.Type) {
			return false
		}
	}
	return true
}

func (s *Schema) String() string {
	parts := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		parts[i] = c.Name + ":" + c.Type.String()
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// Row is an ordered sequence of Values conforming to a Schema
// componentwise (§3 invariant 2).
type Row struct {
	Values []Value
}

// Conforms checks invariant 1 of §8: every value-type of r[i] equals
// schema(s)[i].Type.
func (r Row) Conforms(s *Schema) bool {
	if len(r.Values) != len(s.Columns) {
		return false
	}
	for i, v := range r.Values {
		if !v.Type().Equal(s.Columns[i].Type) {
			return false
		}
	}
	return true
}

// Get returns the value bound to the named column, or Empty()/false if
// the schema has no such column.
func (r Row) Get(s *Schema, name string) (Value, bool) {
	idx := s.IndexOf(name)
	if idx < 0 || idx >= len(r.Values) {
		return Empty(), false
	}
	return r.Values[idx], true
}

// Table is a materialized Schema + rows Value variant.
type Table struct {
	Schema *Schema
	Rows   []Row
}

// Validate checks every row against the schema, per invariant 2 of §8.
func (t *Table) Validate() error {
	for i, row := range t.Rows {
		if !row.Conforms(t.Schema) {
			return NewError(ErrType, "row %d does not conform to schema %s", i, t.Schema)
		}
	}
	return nil
}
