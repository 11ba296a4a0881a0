package reconcile

import (
	"context"
	"errors"
	"reflect"
	"sort"
	"testing"
	"time"

	"callsync/internal/query"
	"callsync/internal/schema"
)

type fakeDetailed struct {
	count    int64
	min, max time.Time
	ids      []string
	times    map[string]time.Time // optional started_at per id
	countErr error

	sampleFrom, sampleTo time.Time
}

func (f *fakeDetailed) Count(context.Context) (int64, error) {
	if f.countErr != nil {
		return 0, f.countErr
	}
	return f.count, nil
}
func (f *fakeDetailed) DateRange(context.Context) (time.Time, time.Time, error) {
	return f.min, f.max, nil
}
func (f *fakeDetailed) CallIDsBetween(_ context.Context, from, to time.Time, limit int) ([]string, error) {
	f.sampleFrom, f.sampleTo = from, to
	ids := f.ids
	if f.times != nil {
		ids = nil
		for _, id := range f.ids {
			ts := f.times[id]
			if !ts.Before(from) && !ts.After(to) {
				ids = append(ids, id)
			}
		}
		sort.SliceStable(ids, func(i, j int) bool {
			return f.times[ids[i]].After(f.times[ids[j]])
		})
	}
	if len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}
func (f *fakeDetailed) UpsertCall(context.Context, schema.Call, []schema.CallMessage, schema.CallFeatures) error {
	return nil
}
func (f *fakeDetailed) CallsAfter(context.Context, time.Time, string, int) ([]schema.Call, error) {
	return nil, nil
}
func (f *fakeDetailed) Messages(context.Context, string) ([]schema.CallMessage, error) {
	return nil, nil
}
func (f *fakeDetailed) Features(context.Context, string) (schema.CallFeatures, error) {
	return schema.CallFeatures{}, nil
}

type fakeAnalytic struct {
	count      int64
	min, max   time.Time
	present    map[string]bool
	selectRows []map[string]any
	selectSQL  query.Select
}

func (f *fakeAnalytic) Count(context.Context) (int64, error) { return f.count, nil }
func (f *fakeAnalytic) DateRange(context.Context) (time.Time, time.Time, error) {
	return f.min, f.max, nil
}
func (f *fakeAnalytic) HasCallIDs(_ context.Context, ids []string) (map[string]bool, error) {
	out := map[string]bool{}
	for _, id := range ids {
		out[id] = f.present[id]
	}
	return out, nil
}
func (f *fakeAnalytic) Select(_ context.Context, sel query.Select) ([]map[string]any, error) {
	f.selectSQL = sel
	return f.selectRows, nil
}
func (f *fakeAnalytic) UpsertRow(context.Context, schema.AnalyticsRow) error { return nil }
func (f *fakeAnalytic) MaxCursor(context.Context) (time.Time, string, error) {
	return time.Time{}, "", nil
}

func day(d int) time.Time {
	return time.Date(2025, 6, d, 0, 0, 0, 0, time.UTC)
}

func TestReconcile_InSync(t *testing.T) {
	t.Parallel()

	d := &fakeDetailed{count: 3, min: day(1), max: day(3), ids: []string{"a", "b", "c"}}
	a := &fakeAnalytic{
		count: 3, min: day(1), max: day(3),
		present: map[string]bool{"a": true, "b": true, "c": true},
		selectRows: []map[string]any{
			{"category": "billing", "uniqExact(call_id)": uint64(2)},
			{"category": "support", "uniqExact(call_id)": uint64(1)},
		},
	}
	r := &Reconciler{Detailed: d, Analytic: a, Registry: schema.Default()}

	rep, err := r.Reconcile(context.Background(), 10)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if !rep.InSync() {
		t.Fatalf("report = %+v, want in sync", rep)
	}
	if !rep.CountsMatch || !rep.RangesMatch || len(rep.MissingSample) != 0 {
		t.Fatalf("report = %+v", rep)
	}

	want := []CategoryCount{{"billing", 2}, {"support", 1}}
	if !reflect.DeepEqual(rep.Categories, want) {
		t.Fatalf("categories = %v", rep.Categories)
	}

	// The breakdown is issued as a grouped statement against the analytic table.
	if a.selectSQL.Table != schema.TableCallAnalytics || len(a.selectSQL.GroupBy) != 1 {
		t.Fatalf("select statement = %+v", a.selectSQL)
	}
}

func TestReconcile_FindsDrift(t *testing.T) {
	t.Parallel()

	d := &fakeDetailed{count: 3, min: day(1), max: day(3), ids: []string{"a", "b", "c"}}
	a := &fakeAnalytic{
		count: 2, min: day(1), max: day(2),
		present: map[string]bool{"a": true, "c": true},
	}
	r := &Reconciler{Detailed: d, Analytic: a, Registry: schema.Default()}

	rep, err := r.Reconcile(context.Background(), 10)
	if err != nil {
		t.Fatalf("Reconcile: %v, drift must be a finding, not an error", err)
	}
	if rep.InSync() || rep.CountsMatch || rep.RangesMatch {
		t.Fatalf("report = %+v", rep)
	}
	if !reflect.DeepEqual(rep.MissingSample, []string{"b"}) {
		t.Fatalf("missing = %v", rep.MissingSample)
	}
}

func TestReconcile_SampleWindowIncludesNewest(t *testing.T) {
	t.Parallel()

	// The newest call is the one a lagging sync has not reached. The sample
	// window must reach the maximum timestamp itself, and with a tight limit
	// the newest ids must be inspected first.
	d := &fakeDetailed{
		count: 3, min: day(1), max: day(3),
		ids:   []string{"a", "b", "c"},
		times: map[string]time.Time{"a": day(1), "b": day(2), "c": day(3)},
	}
	a := &fakeAnalytic{
		count: 2, min: day(1), max: day(2),
		present: map[string]bool{"a": true, "b": true},
	}
	r := &Reconciler{Detailed: d, Analytic: a, Registry: schema.Default()}

	rep, err := r.Reconcile(context.Background(), 1)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if !d.sampleTo.Equal(day(3)) {
		t.Fatalf("sample upper bound = %v, want the max timestamp itself", d.sampleTo)
	}
	if !reflect.DeepEqual(rep.MissingSample, []string{"c"}) {
		t.Fatalf("missing = %v, want the newest call", rep.MissingSample)
	}
}

func TestReconcile_SampleWindowSingleTimestamp(t *testing.T) {
	t.Parallel()

	// Every call at one instant: min == max, so the window degenerates to a
	// single point and must still cover it.
	at := day(2)
	d := &fakeDetailed{
		count: 2, min: at, max: at,
		ids:   []string{"a", "b"},
		times: map[string]time.Time{"a": at, "b": at},
	}
	a := &fakeAnalytic{
		count: 1, min: at, max: at,
		present: map[string]bool{"a": true},
	}
	r := &Reconciler{Detailed: d, Analytic: a, Registry: schema.Default()}

	rep, err := r.Reconcile(context.Background(), 10)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if !reflect.DeepEqual(rep.MissingSample, []string{"b"}) {
		t.Fatalf("missing = %v", rep.MissingSample)
	}
}

func TestReconcile_SampleLimit(t *testing.T) {
	t.Parallel()

	d := &fakeDetailed{count: 5, min: day(1), max: day(5), ids: []string{"a", "b", "c", "d", "e"}}
	a := &fakeAnalytic{count: 0, present: map[string]bool{}}
	r := &Reconciler{Detailed: d, Analytic: a, Registry: schema.Default()}

	rep, err := r.Reconcile(context.Background(), 2)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if len(rep.MissingSample) != 2 {
		t.Fatalf("missing = %v, want bounded at 2", rep.MissingSample)
	}
}

func TestReconcile_EmptyStores(t *testing.T) {
	t.Parallel()

	r := &Reconciler{Detailed: &fakeDetailed{}, Analytic: &fakeAnalytic{}, Registry: schema.Default()}
	rep, err := r.Reconcile(context.Background(), 10)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if !rep.InSync() {
		t.Fatalf("report = %+v, two empty stores are level", rep)
	}
}

func TestReconcile_StoreErrorIsFatal(t *testing.T) {
	t.Parallel()

	d := &fakeDetailed{countErr: errors.New("connection refused")}
	r := &Reconciler{Detailed: d, Analytic: &fakeAnalytic{}, Registry: schema.Default()}
	if _, err := r.Reconcile(context.Background(), 10); err == nil {
		t.Fatal("store failure not surfaced")
	}
}
