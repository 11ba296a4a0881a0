// Package postgres implements the detailed-store contract over pgx v5. Calls
// upsert via INSERT ON CONFLICT; child rows are replaced inside the same
// transaction, with CopyFrom for the message batch.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"callsync/internal/schema"
)

// Config holds detailed-store connection settings.
type Config struct {
	DSN string
}

// Repository is the pgx-backed detailed store.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository opens a pool and returns a close function for cleanup.
func NewRepository(ctx context.Context, cfg Config) (*Repository, func(), error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("pgxpool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("postgres ping: %w", err)
	}
	return &Repository{pool: pool}, pool.Close, nil
}

// Exec runs one statement, satisfying storage.Execer for DDL bootstrap.
func (r *Repository) Exec(ctx context.Context, sql string) error {
	_, err := r.pool.Exec(ctx, sql)
	return err
}

const upsertCallSQL = `
INSERT INTO calls
  (call_id, source_file, source_seq, operator_id, subscriber_id, expert_id,
   started_at, ended_at, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now(), now())
ON CONFLICT (call_id) DO UPDATE SET
  source_file   = EXCLUDED.source_file,
  source_seq    = EXCLUDED.source_seq,
  operator_id   = EXCLUDED.operator_id,
  subscriber_id = EXCLUDED.subscriber_id,
  expert_id     = EXCLUDED.expert_id,
  started_at    = EXCLUDED.started_at,
  ended_at      = EXCLUDED.ended_at,
  updated_at    = now()`

const upsertFeaturesSQL = `
INSERT INTO call_features (call_id, features, created_at)
VALUES ($1, $2, now())
ON CONFLICT (call_id) DO UPDATE SET
  features = EXCLUDED.features`

// UpsertCall writes the call, replaces its messages, and upserts its feature
// document in one transaction. Replaying the same call is a no-op in effect.
func (r *Repository) UpsertCall(ctx context.Context, call schema.Call, msgs []schema.CallMessage, feats schema.CallFeatures) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, upsertCallSQL,
			call.CallID, call.SourceFile, call.SourceSeq,
			call.OperatorID, call.SubscriberID, call.ExpertID,
			call.StartedAt, call.EndedAt,
		); err != nil {
			return fmt.Errorf("upsert call %s: %w", call.CallID, pgDetail(err))
		}

		if _, err := tx.Exec(ctx, `DELETE FROM call_messages WHERE call_id = $1`, call.CallID); err != nil {
			return fmt.Errorf("clear messages %s: %w", call.CallID, err)
		}
		if len(msgs) > 0 {
			rows := make([][]any, len(msgs))
			for i, m := range msgs {
				rows[i] = []any{call.CallID, m.Seq, m.Role, m.Text}
			}
			if _, err := tx.CopyFrom(ctx,
				pgx.Identifier{"call_messages"},
				[]string{"call_id", "seq", "role", "text"},
				pgx.CopyFromRows(rows),
			); err != nil {
				return fmt.Errorf("copy messages %s: %w", call.CallID, pgDetail(err))
			}
		}

		doc, err := json.Marshal(feats.Features)
		if err != nil {
			return fmt.Errorf("encode features %s: %w", call.CallID, err)
		}
		if _, err := tx.Exec(ctx, upsertFeaturesSQL, call.CallID, doc); err != nil {
			return fmt.Errorf("upsert features %s: %w", call.CallID, pgDetail(err))
		}
		return nil
	})
}

const callsAfterSQL = `
SELECT call_id, source_file, source_seq, operator_id, subscriber_id, expert_id,
       started_at, ended_at, created_at, updated_at
FROM calls
WHERE (started_at, call_id) > ($1, $2)
ORDER BY started_at, call_id
LIMIT $3`

// CallsAfter pages with a (started_at, call_id) keyset cursor so batches that
// split equal timestamps never skip records.
func (r *Repository) CallsAfter(ctx context.Context, after time.Time, afterID string, limit int) ([]schema.Call, error) {
	rows, err := r.pool.Query(ctx, callsAfterSQL, after, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("calls after: %w", err)
	}
	defer rows.Close()

	var out []schema.Call
	for rows.Next() {
		var c schema.Call
		if err := rows.Scan(&c.CallID, &c.SourceFile, &c.SourceSeq,
			&c.OperatorID, &c.SubscriberID, &c.ExpertID,
			&c.StartedAt, &c.EndedAt, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan call: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *Repository) Messages(ctx context.Context, callID string) ([]schema.CallMessage, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT call_id, seq, role, text FROM call_messages WHERE call_id = $1 ORDER BY seq`, callID)
	if err != nil {
		return nil, fmt.Errorf("messages %s: %w", callID, err)
	}
	defer rows.Close()

	var out []schema.CallMessage
	for rows.Next() {
		var m schema.CallMessage
		if err := rows.Scan(&m.CallID, &m.Seq, &m.Role, &m.Text); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Features returns the feature document for a call. A call without one yields
// an empty document, not an error.
func (r *Repository) Features(ctx context.Context, callID string) (schema.CallFeatures, error) {
	f := schema.CallFeatures{CallID: callID, Features: map[string]any{}}
	var doc []byte
	err := r.pool.QueryRow(ctx,
		`SELECT features, created_at FROM call_features WHERE call_id = $1`, callID).
		Scan(&doc, &f.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return f, nil
	}
	if err != nil {
		return f, fmt.Errorf("features %s: %w", callID, err)
	}
	if err := json.Unmarshal(doc, &f.Features); err != nil {
		return f, fmt.Errorf("decode features %s: %w", callID, err)
	}
	return f, nil
}

func (r *Repository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM calls`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count calls: %w", err)
	}
	return n, nil
}

func (r *Repository) DateRange(ctx context.Context) (time.Time, time.Time, error) {
	var min, max *time.Time
	if err := r.pool.QueryRow(ctx,
		`SELECT min(started_at), max(started_at) FROM calls`).Scan(&min, &max); err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("date range: %w", err)
	}
	if min == nil || max == nil {
		return time.Time{}, time.Time{}, nil
	}
	return *min, *max, nil
}

func (r *Repository) CallIDsBetween(ctx context.Context, from, to time.Time, limit int) ([]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT call_id FROM calls WHERE started_at >= $1 AND started_at <= $2 ORDER BY started_at DESC, call_id DESC LIMIT $3`,
		from, to, limit)
	if err != nil {
		return nil, fmt.Errorf("call ids between: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan call id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// pgDetail surfaces the server's Detail text, which pgx hides behind the
// generic error string.
func pgDetail(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Detail != "" {
		return fmt.Errorf("%s (%s): %s", pgErr.Message, pgErr.SQLState(), pgErr.Detail)
	}
	return err
}
