package ingest

import (
	"context"
	"errors"
	"log"
	"sync"

	"golang.org/x/sync/errgroup"

	"callsync/internal/metrics"
	"callsync/internal/schema"
	"callsync/internal/storage"
)

// Pipeline validates raw records and upserts them into the detailed store.
type Pipeline struct {
	Job   string
	Store storage.Detailed
}

// Rejection is one skipped record in a batch report.
type Rejection struct {
	CallID string
	Reason string
}

// Report summarizes one ingest batch.
type Report struct {
	Ingested   int
	Rejected   int
	Rejections []Rejection
}

// One validates and upserts a single record, returning the call ID it was
// stored under. A ValidationError means the record was skipped; any other
// error is a store failure.
func (p *Pipeline) One(ctx context.Context, rec RawRecord) (string, error) {
	if err := validate(rec); err != nil {
		return "", err
	}

	key := rec.NaturalKey()
	call := schema.Call{
		CallID:       key,
		SourceFile:   rec.SourceFile,
		SourceSeq:    rec.Seq,
		OperatorID:   rec.OperatorID,
		SubscriberID: rec.SubscriberID,
		ExpertID:     rec.ExpertID,
		StartedAt:    rec.StartedAt,
		EndedAt:      rec.EndedAt,
	}

	// A zero seq anywhere renumbers the whole slice by position. Mixing
	// positional and supplied seqs would collide on (call_id, seq).
	renumber := false
	for _, m := range rec.Messages {
		if m.Seq == 0 {
			renumber = true
			break
		}
	}
	msgs := make([]schema.CallMessage, len(rec.Messages))
	for i, m := range rec.Messages {
		seq := m.Seq
		if renumber {
			seq = i + 1
		}
		msgs[i] = schema.CallMessage{CallID: key, Seq: seq, Role: m.Role, Text: m.Text}
	}

	feats := schema.CallFeatures{CallID: key, Features: rec.Features}
	if feats.Features == nil {
		feats.Features = map[string]any{}
	}

	if err := p.Store.UpsertCall(ctx, call, msgs, feats); err != nil {
		return "", err
	}
	return key, nil
}

// Batch ingests independent records concurrently, at most workers at a time.
// A ValidationError skips that record and the batch continues; a store
// failure cancels the remaining work and is returned alongside the partial
// report.
func (p *Pipeline) Batch(ctx context.Context, recs []RawRecord, workers int) (Report, error) {
	if workers <= 0 {
		workers = 1
	}

	var (
		mu  sync.Mutex
		rep Report
	)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for _, rec := range recs {
		rec := rec
		g.Go(func() error {
			_, err := p.One(ctx, rec)
			mu.Lock()
			defer mu.Unlock()

			var verr *ValidationError
			switch {
			case err == nil:
				rep.Ingested++
			case errors.As(err, &verr):
				rep.Rejected++
				rep.Rejections = append(rep.Rejections, Rejection{CallID: verr.CallID, Reason: verr.Error()})
				log.Printf("level=warn step=ingest call_id=%s msg=%q", verr.CallID, verr.Error())
			default:
				log.Printf("level=error step=ingest call_id=%s err=%q", rec.NaturalKey(), err.Error())
				return err
			}
			return nil
		})
	}

	err := g.Wait()
	metrics.RecordRecords(p.Job, "ingested", int64(rep.Ingested))
	metrics.RecordRecords(p.Job, "rejected", int64(rep.Rejected))
	return rep, err
}
