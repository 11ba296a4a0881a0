package clickhouse

import (
	"context"
	"fmt"

	"callsync/internal/storage"
)

// Fixed analytic-store schema. ReplacingMergeTree keyed by call_id gives
// last-write-wins upsert semantics; loaded_at is the version column.
var ddlStatements = []string{
	`CREATE TABLE IF NOT EXISTS call_analytics (
  call_id              String,
  subscriber_id        Nullable(Int64),
  expert_id            Nullable(Int64),
  call_timestamp       DateTime64(3, 'UTC'),
  duration_seconds     Int64,
  message_count        Int32,
  expert_messages      Int32,
  subscriber_messages  Int32,
  sentiment_expert     LowCardinality(String),
  sentiment_subscriber LowCardinality(String),
  bad_words_expert     Bool,
  bad_words_subscriber Bool,
  start_greeting       Bool,
  end_greeting         Bool,
  category             LowCardinality(String),
  subcategory          LowCardinality(String),
  summary              String,
  features             String,
  loaded_at            DateTime64(3, 'UTC')
)
ENGINE = ReplacingMergeTree(loaded_at)
ORDER BY call_id`,
}

func init() {
	storage.RegisterDDL("clickhouse", func(ctx context.Context, exec storage.Execer) error {
		for _, stmt := range ddlStatements {
			if err := exec.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("clickhouse ddl: %w", err)
			}
		}
		return nil
	})
}
