package postgres

import (
	"context"
	"fmt"

	"callsync/internal/storage"
)

// Fixed detailed-store schema. The statements are the schema; nothing in the
// pipeline derives or alters them.
var ddlStatements = []string{
	`CREATE TABLE IF NOT EXISTS calls (
  call_id       TEXT PRIMARY KEY,
  source_file   TEXT NOT NULL DEFAULT '',
  source_seq    BIGINT NOT NULL DEFAULT 0,
  operator_id   BIGINT,
  subscriber_id BIGINT,
  expert_id     BIGINT,
  started_at    TIMESTAMPTZ NOT NULL,
  ended_at      TIMESTAMPTZ NOT NULL,
  created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
	`CREATE INDEX IF NOT EXISTS calls_started_at_idx ON calls (started_at, call_id)`,
	`CREATE TABLE IF NOT EXISTS call_messages (
  call_id TEXT NOT NULL REFERENCES calls (call_id) ON DELETE CASCADE,
  seq     INTEGER NOT NULL,
  role    TEXT NOT NULL,
  text    TEXT NOT NULL,
  PRIMARY KEY (call_id, seq)
)`,
	`CREATE TABLE IF NOT EXISTS call_features (
  call_id    TEXT PRIMARY KEY REFERENCES calls (call_id) ON DELETE CASCADE,
  features   JSONB NOT NULL DEFAULT '{}'::jsonb,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
}

func init() {
	storage.RegisterDDL("postgres", func(ctx context.Context, exec storage.Execer) error {
		for _, stmt := range ddlStatements {
			if err := exec.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("postgres ddl: %w", err)
			}
		}
		return nil
	})
}
