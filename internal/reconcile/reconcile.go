// Package reconcile compares the two stores without writing to either. A
// mismatch is a reported finding for operators; it is never an error, because
// the stores are legitimately apart between sync runs.
package reconcile

import (
	"context"
	"fmt"
	"time"

	"callsync/internal/query"
	"callsync/internal/schema"
	"callsync/internal/storage"
)

// Range is a closed min/max call-timestamp interval.
type Range struct {
	Min, Max time.Time
}

func (r Range) IsZero() bool { return r.Min.IsZero() && r.Max.IsZero() }

// CategoryCount is one analytic-store category with its distinct call count.
type CategoryCount struct {
	Category string
	Calls    int64
}

// Report is the outcome of one reconciliation pass.
type Report struct {
	DetailedCalls int64
	AnalyticCalls int64
	DetailedRange Range
	AnalyticRange Range

	CountsMatch bool
	RangesMatch bool

	// MissingSample holds up to the requested limit of call IDs present in
	// the detailed store but absent from the analytic store.
	MissingSample []string

	// Categories is the analytic store's per-category distinct call count,
	// produced through the clause builder.
	Categories []CategoryCount
}

// InSync reports whether the pass found no divergence.
func (r Report) InSync() bool {
	return r.CountsMatch && r.RangesMatch && len(r.MissingSample) == 0
}

// Reconciler reads both stores. It never writes.
type Reconciler struct {
	Detailed storage.Detailed
	Analytic storage.Analytic
	Registry *schema.Registry
}

// Reconcile gathers counts, date ranges, a bounded missing-ID sample, and the
// analytic category breakdown. sampleLimit bounds both the IDs fetched from
// the detailed store and the sample reported.
func (r *Reconciler) Reconcile(ctx context.Context, sampleLimit int) (Report, error) {
	var rep Report

	var err error
	if rep.DetailedCalls, err = r.Detailed.Count(ctx); err != nil {
		return rep, fmt.Errorf("detailed count: %w", err)
	}
	if rep.AnalyticCalls, err = r.Analytic.Count(ctx); err != nil {
		return rep, fmt.Errorf("analytic count: %w", err)
	}
	rep.CountsMatch = rep.DetailedCalls == rep.AnalyticCalls

	if rep.DetailedRange.Min, rep.DetailedRange.Max, err = r.Detailed.DateRange(ctx); err != nil {
		return rep, fmt.Errorf("detailed date range: %w", err)
	}
	if rep.AnalyticRange.Min, rep.AnalyticRange.Max, err = r.Analytic.DateRange(ctx); err != nil {
		return rep, fmt.Errorf("analytic date range: %w", err)
	}
	rep.RangesMatch = rep.DetailedRange.Min.Equal(rep.AnalyticRange.Min) &&
		rep.DetailedRange.Max.Equal(rep.AnalyticRange.Max)

	if sampleLimit > 0 && !rep.DetailedRange.IsZero() {
		// Inclusive window, newest first: calls at the maximum timestamp
		// are the ones a lagging sync has not reached yet.
		ids, err := r.Detailed.CallIDsBetween(ctx,
			rep.DetailedRange.Min, rep.DetailedRange.Max, sampleLimit)
		if err != nil {
			return rep, fmt.Errorf("sample call ids: %w", err)
		}
		if len(ids) > 0 {
			present, err := r.Analytic.HasCallIDs(ctx, ids)
			if err != nil {
				return rep, fmt.Errorf("check analytic presence: %w", err)
			}
			for _, id := range ids {
				if !present[id] {
					rep.MissingSample = append(rep.MissingSample, id)
				}
			}
		}
	}

	if rep.Categories, err = r.categories(ctx); err != nil {
		return rep, fmt.Errorf("category breakdown: %w", err)
	}
	return rep, nil
}

// categories runs the per-category distinct call count through the clause
// builder and the analytic store's generic Select.
func (r *Reconciler) categories(ctx context.Context) ([]CategoryCount, error) {
	rows, err := r.Analytic.Select(ctx, query.Select{
		Table:   schema.TableCallAnalytics,
		Columns: []string{"category", "uniqExact(call_id)"},
		GroupBy: []string{"category"},
		OrderBy: []query.Ordering{{Field: "category"}},
	})
	if err != nil {
		return nil, err
	}

	out := make([]CategoryCount, 0, len(rows))
	for _, row := range rows {
		var cc CategoryCount
		for key, v := range row {
			if key == "category" {
				if s, ok := v.(string); ok {
					cc.Category = s
				}
				continue
			}
			// The aggregate's column name varies by server; take whichever
			// non-category value is numeric.
			switch n := v.(type) {
			case uint64:
				cc.Calls = int64(n)
			case int64:
				cc.Calls = n
			case int:
				cc.Calls = int64(n)
			}
		}
		out = append(out, cc)
	}
	return out, nil
}
