package query

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"callsync/internal/schema"
)

// BuildWhere renders a WHERE fragment (without the leading keyword) for the
// given table and dialect. The returned parameters are positional and must be
// bound by the caller in order. Identical input yields identical text and
// parameter order.
func BuildWhere(reg *schema.Registry, table string, d Dialect, preds []Predicate) (string, []any, error) {
	b, err := newBuilder(reg, table, d)
	if err != nil {
		return "", nil, err
	}
	text, err := b.walk(preds, false)
	if err != nil {
		return "", nil, err
	}
	return text, b.params, nil
}

// BuildHaving renders a HAVING fragment. Fields may be aggregate expressions
// such as "count(*)" or "sum(duration_seconds)" in addition to plain columns.
func BuildHaving(reg *schema.Registry, table string, d Dialect, preds []Predicate) (string, []any, error) {
	b, err := newBuilder(reg, table, d)
	if err != nil {
		return "", nil, err
	}
	text, err := b.walk(preds, true)
	if err != nil {
		return "", nil, err
	}
	return text, b.params, nil
}

// BuildGroupBy renders a GROUP BY column list. Every field must resolve
// against the schema before any text is produced.
func BuildGroupBy(reg *schema.Registry, table string, d Dialect, fields []string) (string, error) {
	b, err := newBuilder(reg, table, d)
	if err != nil {
		return "", err
	}
	return b.fieldList(fields)
}

// BuildOrderBy renders an ORDER BY list with explicit directions.
func BuildOrderBy(reg *schema.Registry, table string, d Dialect, orderings []Ordering) (string, error) {
	b, err := newBuilder(reg, table, d)
	if err != nil {
		return "", err
	}
	parts := make([]string, 0, len(orderings))
	for _, o := range orderings {
		expr, err := b.fieldText(o.Field)
		if err != nil {
			return "", err
		}
		dir := "ASC"
		if o.Desc {
			dir = "DESC"
		}
		parts = append(parts, expr+" "+dir)
	}
	return strings.Join(parts, ", "), nil
}

// Build assembles a full SELECT statement from a Select specification.
// GroupBy fields referenced in OrderBy or projected columns are validated the
// same way as filter fields; parameter numbering runs across WHERE and HAVING.
func Build(reg *schema.Registry, d Dialect, sel Select) (string, []any, error) {
	b, err := newBuilder(reg, sel.Table, d)
	if err != nil {
		return "", nil, err
	}

	cols := "*"
	if len(sel.Columns) > 0 {
		parts := make([]string, 0, len(sel.Columns))
		for _, c := range sel.Columns {
			expr, err := b.projection(c)
			if err != nil {
				return "", nil, err
			}
			parts = append(parts, expr)
		}
		cols = strings.Join(parts, ", ")
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(cols)
	sb.WriteString(" FROM ")
	sb.WriteString(d.QuoteIdent(sel.Table))

	if len(sel.Where) > 0 {
		text, err := b.walk(sel.Where, false)
		if err != nil {
			return "", nil, err
		}
		sb.WriteString(" WHERE ")
		sb.WriteString(text)
	}
	if len(sel.GroupBy) > 0 {
		text, err := b.fieldList(sel.GroupBy)
		if err != nil {
			return "", nil, err
		}
		sb.WriteString(" GROUP BY ")
		sb.WriteString(text)
	}
	if len(sel.Having) > 0 {
		if len(sel.GroupBy) == 0 {
			return "", nil, fmt.Errorf("query: having requires group_by")
		}
		text, err := b.walk(sel.Having, true)
		if err != nil {
			return "", nil, err
		}
		sb.WriteString(" HAVING ")
		sb.WriteString(text)
	}
	if len(sel.OrderBy) > 0 {
		parts := make([]string, 0, len(sel.OrderBy))
		for _, o := range sel.OrderBy {
			expr, err := b.fieldText(o.Field)
			if err != nil {
				return "", nil, err
			}
			dir := "ASC"
			if o.Desc {
				dir = "DESC"
			}
			parts = append(parts, expr+" "+dir)
		}
		sb.WriteString(" ORDER BY ")
		sb.WriteString(strings.Join(parts, ", "))
	}
	if sel.Limit > 0 {
		fmt.Fprintf(&sb, " LIMIT %d", sel.Limit)
	}
	return sb.String(), b.params, nil
}

// builder carries walker state: the resolved table, the dialect, and the
// accumulated positional parameters.
type builder struct {
	reg    *schema.Registry
	table  schema.Table
	d      Dialect
	params []any
}

func newBuilder(reg *schema.Registry, table string, d Dialect) (*builder, error) {
	t, err := reg.Get(table)
	if err != nil {
		return nil, err
	}
	return &builder{reg: reg, table: t, d: d}, nil
}

func (b *builder) bind(v any) string {
	b.params = append(b.params, v)
	return b.d.Placeholder(len(b.params))
}

// walk renders an ordered predicate list, inserting each node's declared
// connective and parenthesizing nested groups explicitly so precedence never
// depends on dialect defaults.
func (b *builder) walk(preds []Predicate, having bool) (string, error) {
	if len(preds) == 0 {
		return "", fmt.Errorf("query: empty predicate list")
	}
	var sb strings.Builder
	for i, p := range preds {
		if i > 0 {
			conn := preds[i-1].Next
			if conn == "" {
				conn = And
			}
			if conn != And && conn != Or {
				return "", fmt.Errorf("query: unknown connective %q", conn)
			}
			sb.WriteString(" " + string(conn) + " ")
		}
		if len(p.Group) > 0 {
			inner, err := b.walk(p.Group, having)
			if err != nil {
				return "", err
			}
			sb.WriteString("(" + inner + ")")
			continue
		}
		atom, err := b.atom(p, having)
		if err != nil {
			return "", err
		}
		sb.WriteString(atom)
	}
	return sb.String(), nil
}

func (b *builder) atom(p Predicate, having bool) (string, error) {
	ref, err := b.resolve(p.Field, having)
	if err != nil {
		return "", err
	}

	switch p.Op {
	case OpEq, OpNe, OpLt, OpGt:
		if p.Value == nil {
			return "", fmt.Errorf("query: field %q: operator %s requires a value", p.Field, p.Op)
		}
		lhs := ref.expr(b, literalType(p.Value))
		return lhs + " " + cmpToken(p.Op) + " " + b.bind(p.Value), nil

	case OpIn:
		if len(p.Values) == 0 {
			// Static contradiction instead of malformed "IN ()".
			return b.d.ConstFalse(), nil
		}
		lhs := ref.expr(b, literalType(p.Values[0]))
		marks := make([]string, len(p.Values))
		for i, v := range p.Values {
			marks[i] = b.bind(v)
		}
		return lhs + " IN (" + strings.Join(marks, ", ") + ")", nil

	case OpIsNull:
		if ref.isJSONPath() {
			return b.d.JSONIsNull(ref.col, ref.path), nil
		}
		return ref.expr(b, schema.TypeText) + " IS NULL", nil

	case OpNotNull:
		if ref.isJSONPath() {
			return b.d.JSONNotNull(ref.col, ref.path), nil
		}
		return ref.expr(b, schema.TypeText) + " IS NOT NULL", nil

	case OpContains:
		s, ok := p.Value.(string)
		if !ok {
			return "", fmt.Errorf("query: field %q: contains-substring requires a string value", p.Field)
		}
		if !ref.textual() {
			return "", fmt.Errorf("query: field %q: contains-substring on non-text field (%s)", p.Field, ref.typ)
		}
		lhs := ref.expr(b, schema.TypeText)
		return lhs + " LIKE " + b.bind("%"+escapeLike(s)+"%"), nil

	default:
		return "", fmt.Errorf("query: field %q: unknown operator %q", p.Field, p.Op)
	}
}

func cmpToken(op Op) string {
	switch op {
	case OpEq:
		return "="
	case OpNe:
		return "<>"
	case OpLt:
		return "<"
	default:
		return ">"
	}
}

// escapeLike escapes the LIKE metacharacters in a bound substring so the
// match is literal. Both dialects use backslash as the default escape.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// fieldRef is a resolved field reference: either a plain column, a JSON path
// into a JSON-valued column, or (in HAVING position) an aggregate expression.
type fieldRef struct {
	agg  string   // canonical aggregate expression; set only in HAVING
	col  string   // quoted root column
	path []string // JSON path segments below the root
	typ  schema.LogicalType
}

func (r fieldRef) isJSONPath() bool { return len(r.path) > 0 }

func (r fieldRef) textual() bool {
	return r.typ == schema.TypeText || r.typ == schema.TypeJSONDynamic
}

// expr renders the left-hand side. JSON paths are extracted with an explicit
// cast to the literal's type; plain columns and aggregates pass through.
func (r fieldRef) expr(b *builder, lit schema.LogicalType) string {
	if r.agg != "" {
		return r.agg
	}
	if len(r.path) > 0 {
		return b.d.JSONExtract(r.col, r.path, lit)
	}
	return r.col
}

var (
	pathSegmentRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	aggregateRe   = regexp.MustCompile(`^(count|sum|avg|min|max|uniqExact)\(\s*(\*|[A-Za-z_][A-Za-z0-9_]*)\s*\)$`)
)

func (b *builder) resolve(field string, having bool) (fieldRef, error) {
	if having {
		if m := aggregateRe.FindStringSubmatch(field); m != nil {
			arg := m[2]
			if arg != "*" {
				if _, err := b.reg.ValidateField(b.table.Name, arg); err != nil {
					return fieldRef{}, err
				}
				arg = b.d.QuoteIdent(arg)
			}
			return fieldRef{agg: m[1] + "(" + arg + ")", typ: schema.TypeInteger}, nil
		}
	}

	typ, err := b.reg.ValidateField(b.table.Name, field)
	if err != nil {
		return fieldRef{}, err
	}
	segs := strings.Split(field, ".")
	for _, s := range segs[1:] {
		if !pathSegmentRe.MatchString(s) {
			return fieldRef{}, &schema.FieldError{
				Table: b.table.Name, Field: field,
				Msg: fmt.Sprintf("invalid path segment %q", s),
			}
		}
	}
	return fieldRef{
		col:  b.d.QuoteIdent(segs[0]),
		path: segs[1:],
		typ:  typ,
	}, nil
}

// fieldText renders a bare field reference for GROUP BY / ORDER BY position.
// JSON paths are extracted as text in these positions.
func (b *builder) fieldText(field string) (string, error) {
	ref, err := b.resolve(field, false)
	if err != nil {
		return "", err
	}
	return ref.expr(b, schema.TypeText), nil
}

func (b *builder) fieldList(fields []string) (string, error) {
	if len(fields) == 0 {
		return "", fmt.Errorf("query: empty field list")
	}
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		expr, err := b.fieldText(f)
		if err != nil {
			return "", err
		}
		parts = append(parts, expr)
	}
	return strings.Join(parts, ", "), nil
}

// projection renders one projected column, accepting aggregate expressions in
// addition to schema fields.
func (b *builder) projection(c string) (string, error) {
	if m := aggregateRe.FindStringSubmatch(c); m != nil {
		arg := m[2]
		if arg != "*" {
			if _, err := b.reg.ValidateField(b.table.Name, arg); err != nil {
				return "", err
			}
			arg = b.d.QuoteIdent(arg)
		}
		return m[1] + "(" + arg + ")", nil
	}
	return b.fieldText(c)
}

// literalType infers the logical type of a bound literal, driving the
// explicit cast emitted for JSON-path predicates.
func literalType(v any) schema.LogicalType {
	switch v.(type) {
	case bool:
		return schema.TypeBool
	case int, int8, int16, int32, int64, uint, uint32, uint64:
		return schema.TypeInteger
	case float32, float64:
		return schema.TypeFloat
	case time.Time:
		return schema.TypeTimestamp
	default:
		return schema.TypeText
	}
}
