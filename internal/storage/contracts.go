// Package storage defines the store contracts the pipelines consume and a
// registry of backend DDL bootstrappers. Backend packages (postgres,
// clickhouse) implement the contracts and register their DDL at init time.
package storage

import (
	"context"
	"time"

	"callsync/internal/query"
	"callsync/internal/schema"
)

// Detailed is the row-oriented store holding normalized conversation records.
type Detailed interface {
	// UpsertCall writes a call with its messages and features atomically.
	// Re-writing the same call_id replaces the children, never duplicates.
	UpsertCall(ctx context.Context, call schema.Call, msgs []schema.CallMessage, feats schema.CallFeatures) error

	// CallsAfter returns up to limit calls strictly after the
	// (started_at, call_id) cursor, ordered by (started_at, call_id).
	CallsAfter(ctx context.Context, after time.Time, afterID string, limit int) ([]schema.Call, error)

	Messages(ctx context.Context, callID string) ([]schema.CallMessage, error)
	Features(ctx context.Context, callID string) (schema.CallFeatures, error)

	Count(ctx context.Context) (int64, error)
	DateRange(ctx context.Context) (min, max time.Time, err error)

	// CallIDsBetween lists call IDs whose started_at falls in [from, to],
	// newest first, capped at limit, for reconciliation sampling. Both
	// bounds are inclusive: Postgres stores timestamptz at microsecond
	// precision, so a half-open upper bound cannot be nudged past a max
	// taken from the same column.
	CallIDsBetween(ctx context.Context, from, to time.Time, limit int) ([]string, error)
}

// Analytic is the columnar store holding one flattened row per call.
type Analytic interface {
	UpsertRow(ctx context.Context, row schema.AnalyticsRow) error

	// MaxCursor returns the highest (call_timestamp, call_id) pair present,
	// or zero values when the table is empty.
	MaxCursor(ctx context.Context) (time.Time, string, error)

	Count(ctx context.Context) (int64, error)
	DateRange(ctx context.Context) (min, max time.Time, err error)

	// HasCallIDs reports, for each given ID, whether a row exists.
	HasCallIDs(ctx context.Context, ids []string) (map[string]bool, error)

	// Select runs a built query against the store and returns generic rows.
	Select(ctx context.Context, sel query.Select) ([]map[string]any, error)
}
