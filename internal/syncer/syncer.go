// Package syncer propagates detailed-store calls into the analytic store in
// watermark-ordered batches. One record failing never stops the batch, but
// the watermark only advances past records that are safely written, so a
// retry replays from the first failure and the analytic upsert absorbs the
// overlap.
package syncer

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"callsync/internal/metrics"
	"callsync/internal/schema"
	"callsync/internal/storage"
	"callsync/internal/transform"
)

// Watermark is the keyset cursor into the detailed store: the last call known
// to be fully represented in the analytic store. The compound (Timestamp,
// CallID) ordering means batches that split equal timestamps never skip
// records.
type Watermark struct {
	Timestamp time.Time
	CallID    string
}

// IsZero reports an unset watermark (sync from the beginning).
func (w Watermark) IsZero() bool {
	return w.Timestamp.IsZero() && w.CallID == ""
}

func (w Watermark) String() string {
	if w.IsZero() {
		return "start"
	}
	return fmt.Sprintf("%s/%s", w.Timestamp.Format(time.RFC3339Nano), w.CallID)
}

// SyncError is one record that could not be propagated in this run.
type SyncError struct {
	CallID string
	Reason string
}

// Errors in the report are capped at this sample size; Skipped counts all.
const maxErrorSample = 10

// SyncReport summarizes one Run invocation.
type SyncReport struct {
	RunID    uuid.UUID
	Read     int
	Synced   int
	Skipped  int
	Warnings int
	Errors   []SyncError
}

// Syncer reads from the detailed store and writes to the analytic store.
// Callers serialize Run invocations; the watermark protocol assumes a single
// writer.
type Syncer struct {
	Job      string
	Detailed storage.Detailed
	Analytic storage.Analytic

	// Now stamps loaded_at; tests pin it. Defaults to time.Now.
	Now func() time.Time
}

// InitialWatermark recomputes the cursor from the analytic store's own
// contents. Nothing is persisted between processes; the store is the record.
func (s *Syncer) InitialWatermark(ctx context.Context) (Watermark, error) {
	ts, id, err := s.Analytic.MaxCursor(ctx)
	if err != nil {
		return Watermark{}, fmt.Errorf("initial watermark: %w", err)
	}
	return Watermark{Timestamp: ts, CallID: id}, nil
}

// Run processes one batch of calls after wm and returns the advanced
// watermark. A batch read failure is fatal and returns wm unchanged. A
// per-record failure is recorded and later records still sync, but the
// returned watermark holds at the last success before the first failure.
// An empty report (Read == 0) means the stores are level.
func (s *Syncer) Run(ctx context.Context, wm Watermark, batchSize int) (SyncReport, Watermark, error) {
	rep := SyncReport{RunID: uuid.New()}
	now := s.Now
	if now == nil {
		now = time.Now
	}

	calls, err := s.Detailed.CallsAfter(ctx, wm.Timestamp, wm.CallID, batchSize)
	if err != nil {
		return rep, wm, fmt.Errorf("read batch after %s: %w", wm, err)
	}
	rep.Read = len(calls)
	if len(calls) == 0 {
		return rep, wm, nil
	}
	metrics.RecordBatches(s.Job, 1)

	advance := true
	for _, call := range calls {
		if err := s.syncOne(ctx, call, now, &rep); err != nil {
			rep.Skipped++
			if len(rep.Errors) < maxErrorSample {
				rep.Errors = append(rep.Errors, SyncError{CallID: call.CallID, Reason: err.Error()})
			}
			log.Printf("level=error step=sync run_id=%s call_id=%s err=%q", rep.RunID, call.CallID, err.Error())
			advance = false
			continue
		}
		rep.Synced++
		if advance {
			wm = Watermark{Timestamp: call.StartedAt, CallID: call.CallID}
		}
	}

	metrics.RecordRecords(s.Job, "synced", int64(rep.Synced))
	metrics.RecordRecords(s.Job, "sync_errors", int64(rep.Skipped))
	metrics.RecordRecords(s.Job, "transform_warnings", int64(rep.Warnings))
	log.Printf("level=info step=sync run_id=%s read=%d synced=%d skipped=%d warnings=%d watermark=%s",
		rep.RunID, rep.Read, rep.Synced, rep.Skipped, rep.Warnings, wm)
	return rep, wm, nil
}

func (s *Syncer) syncOne(ctx context.Context, call schema.Call, now func() time.Time, rep *SyncReport) error {
	msgs, err := s.Detailed.Messages(ctx, call.CallID)
	if err != nil {
		return fmt.Errorf("load messages: %w", err)
	}
	feats, err := s.Detailed.Features(ctx, call.CallID)
	if err != nil {
		return fmt.Errorf("load features: %w", err)
	}

	row, warns := transform.Flatten(call, msgs, feats.Features)
	rep.Warnings += len(warns)
	for _, w := range warns {
		log.Printf("level=warn step=sync run_id=%s call_id=%s path=%s msg=%q", rep.RunID, call.CallID, w.Path, w.Reason)
	}

	row.LoadedAt = now().UTC()
	if err := s.Analytic.UpsertRow(ctx, row); err != nil {
		return fmt.Errorf("write analytic row: %w", err)
	}
	return nil
}
