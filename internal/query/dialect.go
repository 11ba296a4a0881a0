package query

import (
	"fmt"
	"strings"

	"callsync/internal/schema"
)

// Dialect abstracts the SQL differences between the two target stores. One
// implementation exists per store; the predicate walker in build.go is shared.
type Dialect interface {
	// Name is the dialect tag used in configuration and logs.
	Name() string

	// Placeholder returns the positional parameter marker for the n-th
	// parameter (1-based).
	Placeholder(n int) string

	// QuoteIdent quotes a single identifier segment.
	QuoteIdent(ident string) string

	// JSONExtract returns an expression extracting path from a JSON column,
	// cast to the given logical type. col is already quoted; path segments
	// are pre-validated identifiers.
	JSONExtract(col string, path []string, t schema.LogicalType) string

	// JSONIsNull and JSONNotNull return boolean expressions testing the
	// presence of a JSON path.
	JSONIsNull(col string, path []string) string
	JSONNotNull(col string, path []string) string

	// ConstFalse is the dialect's always-false fragment, used for the empty
	// in-set case.
	ConstFalse() string
}

// Postgres targets the detailed store ($n placeholders, #>> extraction).
var Postgres Dialect = postgresDialect{}

// ClickHouse targets the analytic store (? placeholders, typed JSONExtract
// functions).
var ClickHouse Dialect = clickhouseDialect{}

// Dialects maps dialect tags to implementations for config-driven selection.
func Dialects() map[string]Dialect {
	return map[string]Dialect{
		Postgres.Name():   Postgres,
		ClickHouse.Name(): ClickHouse,
	}
}

type postgresDialect struct{}

func (postgresDialect) Name() string { return "postgres" }

func (postgresDialect) Placeholder(n int) string { return fmt.Sprintf("$%d", n) }

func (postgresDialect) QuoteIdent(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

// pgCastType maps logical types onto Postgres SQL types for JSON extraction
// casts. Extracted values come out as text (#>>), so the cast is always
// emitted, even for text targets.
func pgCastType(t schema.LogicalType) string {
	switch t {
	case schema.TypeInteger:
		return "BIGINT"
	case schema.TypeFloat:
		return "DOUBLE PRECISION"
	case schema.TypeBool:
		return "BOOLEAN"
	case schema.TypeTimestamp:
		return "TIMESTAMPTZ"
	default:
		return "TEXT"
	}
}

func pgPathLiteral(path []string) string {
	return "'{" + strings.Join(path, ",") + "}'"
}

func (d postgresDialect) JSONExtract(col string, path []string, t schema.LogicalType) string {
	return fmt.Sprintf("CAST(%s #>> %s AS %s)", col, pgPathLiteral(path), pgCastType(t))
}

func (d postgresDialect) JSONIsNull(col string, path []string) string {
	return fmt.Sprintf("%s #> %s IS NULL", col, pgPathLiteral(path))
}

func (d postgresDialect) JSONNotNull(col string, path []string) string {
	return fmt.Sprintf("%s #> %s IS NOT NULL", col, pgPathLiteral(path))
}

func (postgresDialect) ConstFalse() string { return "FALSE" }

type clickhouseDialect struct{}

func (clickhouseDialect) Name() string { return "clickhouse" }

func (clickhouseDialect) Placeholder(int) string { return "?" }

func (clickhouseDialect) QuoteIdent(ident string) string {
	return "`" + strings.ReplaceAll(ident, "`", "\\`") + "`"
}

// chExtractFunc selects the typed extraction function. The typed function is
// ClickHouse's explicit cast: JSONExtractInt('{"a":1}', 'a') yields Int64.
func chExtractFunc(t schema.LogicalType) string {
	switch t {
	case schema.TypeInteger:
		return "JSONExtractInt"
	case schema.TypeFloat:
		return "JSONExtractFloat"
	case schema.TypeBool:
		return "JSONExtractBool"
	default:
		return "JSONExtractString"
	}
}

func chPathArgs(path []string) string {
	parts := make([]string, len(path))
	for i, p := range path {
		parts[i] = "'" + p + "'"
	}
	return strings.Join(parts, ", ")
}

func (d clickhouseDialect) JSONExtract(col string, path []string, t schema.LogicalType) string {
	return fmt.Sprintf("%s(%s, %s)", chExtractFunc(t), col, chPathArgs(path))
}

func (d clickhouseDialect) JSONIsNull(col string, path []string) string {
	return fmt.Sprintf("JSONHas(%s, %s) = 0", col, chPathArgs(path))
}

func (d clickhouseDialect) JSONNotNull(col string, path []string) string {
	return fmt.Sprintf("JSONHas(%s, %s) = 1", col, chPathArgs(path))
}

func (clickhouseDialect) ConstFalse() string { return "0" }
