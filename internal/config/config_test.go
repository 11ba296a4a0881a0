package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

const sampleConfig = `{
  "job": "callsync",
  "stores": {
    "postgres":   { "dsn": "postgresql://u:p@localhost:5432/calls" },
    "clickhouse": { "dsn": "clickhouse://u:p@localhost:9000/analytics" }
  },
  "runtime": { "ingest_workers": 8, "batch_size": 250 },
  "metrics": { "backend": "prompush", "options": { "push_url": "http://pg:9091", "interval_seconds": 15 } }
}`

func TestLoad(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		t.Fatal(err)
	}

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Job != "callsync" {
		t.Fatalf("job = %q", c.Job)
	}
	if c.Stores.Postgres.DSN == "" || c.Stores.ClickHouse.DSN == "" {
		t.Fatalf("stores = %+v", c.Stores)
	}
	if c.Runtime.BatchSize != 250 {
		t.Fatalf("batch_size = %d", c.Runtime.BatchSize)
	}
	if got := c.Metrics.Options.String("push_url", ""); got != "http://pg:9091" {
		t.Fatalf("push_url = %q", got)
	}
	if got := c.Metrics.Options.Int("interval_seconds", 0); got != 15 {
		t.Fatalf("interval_seconds = %d", got)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatal("missing file accepted")
	}
}

func TestRuntimeNormalize(t *testing.T) {
	t.Parallel()

	r := RuntimeConfig{}.Normalize()
	if r.IngestWorkers != DefaultIngestWorkers || r.BatchSize != DefaultBatchSize || r.ReconcileSample != DefaultReconcileSample {
		t.Fatalf("defaults = %+v", r)
	}

	r = RuntimeConfig{IngestWorkers: 2, BatchSize: 10, ReconcileSample: 5}.Normalize()
	if r.IngestWorkers != 2 || r.BatchSize != 10 || r.ReconcileSample != 5 {
		t.Fatalf("explicit values overwritten: %+v", r)
	}
}

func TestOptionsNullDecodesEmpty(t *testing.T) {
	t.Parallel()

	var m Metrics
	if err := json.Unmarshal([]byte(`{"backend":"nop","options":null}`), &m); err != nil {
		t.Fatal(err)
	}
	if m.Options == nil {
		t.Fatal("options = nil, want empty map")
	}
	if got := m.Options.Bool("missing", true); !got {
		t.Fatal("default not returned for missing key")
	}
}
