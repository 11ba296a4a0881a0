// Package schema defines the typed table registry shared by both stores.
//
// The registry is the single source of truth for column names, logical types,
// and JSON-valued flags. The clause builder consults it before emitting any
// SQL text, and the transformer uses it to decide coercion targets. DDL text
// itself lives with the storage backends; this package only describes the
// logical shape.
package schema

import (
	"fmt"
	"strings"
)

// LogicalType is the dialect-neutral column type.
type LogicalType string

const (
	TypeInteger   LogicalType = "integer"
	TypeFloat     LogicalType = "float"
	TypeText      LogicalType = "text"
	TypeBool      LogicalType = "boolean"
	TypeTimestamp LogicalType = "timestamp"
	TypeJSON      LogicalType = "json"

	// TypeJSONDynamic is returned by ValidateField for paths that terminate
	// inside an untyped JSON document. It never appears on a declared column.
	TypeJSONDynamic LogicalType = "json-dynamic"
)

// Store identifies which of the two stores a table lives in.
type Store string

const (
	StoreDetailed Store = "detailed"
	StoreAnalytic Store = "analytic"
)

// Column describes a single declared column.
type Column struct {
	Name     string      `json:"name"`
	Type     LogicalType `json:"type"`
	Nullable bool        `json:"nullable,omitempty"`
}

// Table is an ordered column list for one table in one store.
type Table struct {
	Name    string   `json:"name"`
	Store   Store    `json:"store"`
	Columns []Column `json:"columns"`
}

// Column returns the declared column with the given name, if present.
func (t Table) Column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// ColumnNames returns the declared column names in order.
func (t Table) ColumnNames() []string {
	out := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		out[i] = c.Name
	}
	return out
}

// FieldError reports an invalid table/field reference. Query building fails
// fast with a FieldError before any SQL text is generated.
type FieldError struct {
	Table string
	Field string
	Msg   string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("schema: table %q field %q: %s", e.Table, e.Field, e.Msg)
}

// Registry holds the table definitions for both stores.
type Registry struct {
	tables map[string]Table
}

// NewRegistry builds a registry from the given tables. Duplicate table names
// or duplicate column names within a table are rejected.
func NewRegistry(tables ...Table) (*Registry, error) {
	r := &Registry{tables: make(map[string]Table, len(tables))}
	for _, t := range tables {
		if t.Name == "" {
			return nil, fmt.Errorf("schema: table with empty name")
		}
		if _, dup := r.tables[t.Name]; dup {
			return nil, fmt.Errorf("schema: duplicate table %q", t.Name)
		}
		seen := make(map[string]struct{}, len(t.Columns))
		for _, c := range t.Columns {
			if _, dup := seen[c.Name]; dup {
				return nil, fmt.Errorf("schema: table %q: duplicate column %q", t.Name, c.Name)
			}
			seen[c.Name] = struct{}{}
		}
		r.tables[t.Name] = t
	}
	return r, nil
}

// Get returns the table definition for name.
func (r *Registry) Get(name string) (Table, error) {
	t, ok := r.tables[name]
	if !ok {
		return Table{}, &FieldError{Table: name, Msg: "unknown table"}
	}
	return t, nil
}

// ValidateField resolves a field reference against a table. The reference is
// either a bare column name or a dotted JSON path "column.key1.key2...".
//
// Rules:
//   - the root column must exist;
//   - a multi-segment path is valid only when the root column is JSON-valued;
//   - a path into a JSON column resolves to TypeJSONDynamic (the payload
//     carries no declared leaf types).
func (r *Registry) ValidateField(table, field string) (LogicalType, error) {
	t, err := r.Get(table)
	if err != nil {
		return "", err
	}
	if field == "" {
		return "", &FieldError{Table: table, Field: field, Msg: "empty field reference"}
	}
	segs := strings.Split(field, ".")
	col, ok := t.Column(segs[0])
	if !ok {
		return "", &FieldError{Table: table, Field: field, Msg: "unknown column"}
	}
	if len(segs) == 1 {
		return col.Type, nil
	}
	if col.Type != TypeJSON {
		return "", &FieldError{
			Table: table,
			Field: field,
			Msg:   fmt.Sprintf("column %q is %s, not json; path access is invalid", col.Name, col.Type),
		}
	}
	for _, s := range segs[1:] {
		if s == "" {
			return "", &FieldError{Table: table, Field: field, Msg: "empty path segment"}
		}
	}
	return TypeJSONDynamic, nil
}
