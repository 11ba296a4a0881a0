// Package query builds dialect-specific SQL fragments from a dialect-neutral
// filter specification.
//
// The two target dialects (Postgres for the detailed store, ClickHouse for
// the analytic store) differ in placeholder style, identifier quoting, and
// JSON extraction syntax. Those differences live behind the Dialect strategy;
// a single predicate-tree walker produces the text for both. Every field
// reference is resolved against the schema registry before any text is
// generated, and literals are always bound as positional parameters, never
// inlined.
package query

// Op enumerates the supported predicate operators.
type Op string

const (
	OpEq       Op = "eq"
	OpNe       Op = "ne"
	OpLt       Op = "lt"
	OpGt       Op = "gt"
	OpIn       Op = "in"
	OpIsNull   Op = "is-null"
	OpNotNull  Op = "not-null"
	OpContains Op = "contains"
)

// Connective joins a predicate to the node that follows it.
type Connective string

const (
	And Connective = "AND"
	Or  Connective = "OR"
)

// Predicate is one node of the filter specification.
//
// Field is a column name or a dotted JSON path ("column.key1.key2"). Value
// carries the literal for scalar operators; Values carries the list for OpIn.
// Next is the connective to the following node in the same list (And when
// empty). When Group is non-empty the node is a parenthesized sub-list and
// Field/Op/Value are ignored.
type Predicate struct {
	Field  string      `json:"field,omitempty"`
	Op     Op          `json:"operator,omitempty"`
	Value  any         `json:"value,omitempty"`
	Values []any       `json:"values,omitempty"`
	Next   Connective  `json:"connective,omitempty"`
	Group  []Predicate `json:"group,omitempty"`
}

// Ordering is one (field, direction) pair of an ORDER BY list.
type Ordering struct {
	Field string `json:"field"`
	Desc  bool   `json:"desc,omitempty"`
}

// Aggregate describes grouping applied on top of a filter.
type Aggregate struct {
	GroupBy []string    `json:"group_by,omitempty"`
	Having  []Predicate `json:"having,omitempty"`
	OrderBy []Ordering  `json:"order_by,omitempty"`
	Limit   int         `json:"limit,omitempty"`
}

// Select is a full statement specification consumed by Build. Columns may be
// plain column names (validated against the registry) or aggregate
// expressions such as "count(*)".
type Select struct {
	Table   string      `json:"table"`
	Columns []string    `json:"columns"`
	Where   []Predicate `json:"where,omitempty"`
	GroupBy []string    `json:"group_by,omitempty"`
	Having  []Predicate `json:"having,omitempty"`
	OrderBy []Ordering  `json:"order_by,omitempty"`
	Limit   int         `json:"limit,omitempty"`
}
