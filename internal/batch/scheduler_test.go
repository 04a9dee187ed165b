package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vietddude/siteline/internal/core/domain"
	"github.com/vietddude/siteline/internal/infra/cache"
)

func makeItems(n int) []domain.BatchItem {
	items := make([]domain.BatchItem, n)
	for i := range items {
		items[i] = domain.BatchItem{
			Coordinates: domain.Coordinates{Lat: float64(i), Lng: float64(-i)},
			Priority:    float64(i) / float64(n),
		}
	}
	return items
}

func TestConcurrencyCeiling(t *testing.T) {
	s := New[string](cache.NewMemory(), cache.KindViability)

	var current, peak int64
	op := func(ctx context.Context, lat, lng float64) (string, error) {
		n := atomic.AddInt64(&current, 1)
		for {
			p := atomic.LoadInt64(&peak)
			if n <= p || atomic.CompareAndSwapInt64(&peak, p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt64(&current, -1)
		return "ok", nil
	}

	results, stats := s.Process(context.Background(), makeItems(10), op, Options{
		BatchSize:   10,
		Concurrency: 3,
	})

	if got := atomic.LoadInt64(&peak); got > 3 {
		t.Errorf("peak concurrent invocations = %d, want <= 3", got)
	}
	if len(results) != 10 || stats.Errors != 0 {
		t.Fatalf("results = %d, errors = %d", len(results), stats.Errors)
	}
}

func TestCacheShortCircuit(t *testing.T) {
	gw := cache.NewMemory()
	s := New[string](gw, cache.KindViability)
	ctx := context.Background()

	items := makeItems(4)
	for _, item := range items {
		key := cache.Key(cache.KindViability, item.Lat, item.Lng)
		if err := cache.SetTyped(ctx, gw, key, "cached:"+item.Key(), 0); err != nil {
			t.Fatal(err)
		}
	}

	var calls int64
	op := func(ctx context.Context, lat, lng float64) (string, error) {
		atomic.AddInt64(&calls, 1)
		return "fresh", nil
	}

	results, stats := s.Process(ctx, items, op, Options{EnableCaching: true})

	if calls != 0 {
		t.Errorf("operation invoked %d times for fully cached batch, want 0", calls)
	}
	if stats.CacheHits != 4 {
		t.Errorf("cache hits = %d, want 4", stats.CacheHits)
	}
	for i, r := range results {
		if !r.CacheHit {
			t.Errorf("result %d not marked as cache hit", i)
		}
		if want := "cached:" + items[i].Key(); r.Value != want {
			t.Errorf("result %d = %q, want %q", i, r.Value, want)
		}
	}
}

func TestPriorityOrdering(t *testing.T) {
	s := New[string](cache.NewMemory(), cache.KindViability)

	items := []domain.BatchItem{
		{Coordinates: domain.Coordinates{Lat: 1}, Priority: 0.5},
		{Coordinates: domain.Coordinates{Lat: 2}, Priority: 0.9},
		{Coordinates: domain.Coordinates{Lat: 3}, Priority: 0.3},
	}

	var mu sync.Mutex
	var order []float64
	op := func(ctx context.Context, lat, lng float64) (string, error) {
		mu.Lock()
		order = append(order, lat)
		mu.Unlock()
		return "ok", nil
	}

	s.Process(context.Background(), items, op, Options{
		BatchSize:         3,
		Concurrency:       1,
		PrioritizeByScore: true,
	})

	want := []float64{2, 1, 3} // priorities 0.9, 0.5, 0.3
	if len(order) != 3 {
		t.Fatalf("invocations = %d, want 3", len(order))
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("invocation order = %v, want %v", order, want)
		}
	}
}

func TestChunkingAndPacing(t *testing.T) {
	s := New[string](cache.NewMemory(), cache.KindViability)

	op := func(ctx context.Context, lat, lng float64) (string, error) {
		return "ok", nil
	}

	start := time.Now()
	results, stats := s.Process(context.Background(), makeItems(25), op, Options{
		BatchSize:           10,
		Concurrency:         3,
		DelayBetweenBatches: 100 * time.Millisecond,
	})
	elapsed := time.Since(start)

	if stats.Chunks != 3 {
		t.Errorf("chunks = %d, want 3", stats.Chunks)
	}
	if elapsed < 200*time.Millisecond {
		t.Errorf("elapsed = %v, want >= 200ms (two inter-chunk delays)", elapsed)
	}
	if len(results) != 25 {
		t.Fatalf("results = %d, want 25", len(results))
	}
	seen := map[string]int{}
	for _, r := range results {
		seen[r.Item.Key()]++
	}
	for key, n := range seen {
		if n != 1 {
			t.Errorf("item %s appears %d times, want exactly once", key, n)
		}
	}
	if len(seen) != 25 {
		t.Errorf("distinct items = %d, want 25", len(seen))
	}
}

func TestErrorIsolation(t *testing.T) {
	s := New[string](cache.NewMemory(), cache.KindViability)

	op := func(ctx context.Context, lat, lng float64) (string, error) {
		if lat == 3 {
			return "", errors.New("enrichment failed")
		}
		return "ok", nil
	}

	results, stats := s.Process(context.Background(), makeItems(10), op, Options{
		BatchSize:   5,
		Concurrency: 3,
	})

	if stats.Errors != 1 {
		t.Errorf("errors = %d, want 1", stats.Errors)
	}
	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
			if r.Item.Lat != 3 {
				t.Errorf("wrong item failed: %+v", r.Item)
			}
		} else if !r.HasValue {
			t.Errorf("successful item %s missing value", r.Item.Key())
		}
	}
	if failed != 1 {
		t.Errorf("failed results = %d, want 1", failed)
	}
}

func TestResultsKeepDispatchOrder(t *testing.T) {
	s := New[string](cache.NewMemory(), cache.KindViability)

	op := func(ctx context.Context, lat, lng float64) (string, error) {
		// Jittered latency so completion order differs from dispatch order.
		time.Sleep(time.Duration(int64(lat)%3) * 5 * time.Millisecond)
		return fmt.Sprintf("%v", lat), nil
	}

	items := makeItems(9)
	results, _ := s.Process(context.Background(), items, op, Options{
		BatchSize:   9,
		Concurrency: 4,
	})

	for i, r := range results {
		if r.Item.Key() != items[i].Key() {
			t.Fatalf("result %d is %s, want %s (dispatch order)", i, r.Item.Key(), items[i].Key())
		}
	}
}

func TestWriteThrough(t *testing.T) {
	gw := cache.NewMemory()
	s := New[string](gw, cache.KindViability)
	ctx := context.Background()

	items := makeItems(3)
	op := func(ctx context.Context, lat, lng float64) (string, error) {
		return "computed", nil
	}

	s.Process(ctx, items, op, Options{EnableCaching: true})

	for _, item := range items {
		key := cache.Key(cache.KindViability, item.Lat, item.Lng)
		v, ok, err := cache.GetTyped[string](ctx, gw, key)
		if err != nil || !ok {
			t.Fatalf("missing write-through for %s: ok=%v err=%v", key, ok, err)
		}
		if v != "computed" {
			t.Errorf("cached value = %q", v)
		}
	}
}

func TestProcessProfilesFullyCached(t *testing.T) {
	gw := cache.NewMemory()
	s := New[string](gw, cache.KindDemographicProfile)
	ctx := context.Background()

	items := makeItems(5)
	for _, item := range items {
		key := cache.Key(cache.KindDemographicProfile, item.Lat, item.Lng)
		if err := cache.SetTyped(ctx, gw, key, "profile:"+item.Key(), 0); err != nil {
			t.Fatal(err)
		}
	}

	var calls int64
	op := func(ctx context.Context, lat, lng float64) (string, error) {
		atomic.AddInt64(&calls, 1)
		return "fresh", nil
	}

	profiles, stats := s.ProcessProfiles(ctx, items, op, DefaultOptions())

	if calls != 0 {
		t.Errorf("operation invoked %d times, want 0 (no scheduling work)", calls)
	}
	if stats.Chunks != 0 {
		t.Errorf("chunks = %d, want 0", stats.Chunks)
	}
	if len(profiles) != 5 {
		t.Fatalf("profiles = %d, want 5", len(profiles))
	}
	for _, item := range items {
		if profiles[item.Key()] != "profile:"+item.Key() {
			t.Errorf("profile for %s = %q", item.Key(), profiles[item.Key()])
		}
	}
}

func TestProcessProfilesPartiallyCached(t *testing.T) {
	gw := cache.NewMemory()
	s := New[string](gw, cache.KindDemographicProfile)
	ctx := context.Background()

	items := makeItems(6)
	for _, item := range items[:3] {
		key := cache.Key(cache.KindDemographicProfile, item.Lat, item.Lng)
		if err := cache.SetTyped(ctx, gw, key, "cached", 0); err != nil {
			t.Fatal(err)
		}
	}

	op := func(ctx context.Context, lat, lng float64) (string, error) {
		return "fresh", nil
	}

	profiles, stats := s.ProcessProfiles(ctx, items, op, DefaultOptions())

	if len(profiles) != 6 {
		t.Fatalf("profiles = %d, want 6", len(profiles))
	}
	if stats.CacheHits != 3 {
		t.Errorf("cache hits = %d, want 3", stats.CacheHits)
	}
	for i, item := range items {
		want := "fresh"
		if i < 3 {
			want = "cached"
		}
		if profiles[item.Key()] != want {
			t.Errorf("profile for %s = %q, want %q", item.Key(), profiles[item.Key()], want)
		}
	}
}

func TestProcessWithCacheSplit(t *testing.T) {
	gw := cache.NewMemory()
	s := New[string](gw, cache.KindCompetitive)
	ctx := context.Background()

	items := makeItems(8)
	for _, item := range items[2:5] {
		key := cache.Key(cache.KindCompetitive, item.Lat, item.Lng)
		if err := cache.SetTyped(ctx, gw, key, "cached", 0); err != nil {
			t.Fatal(err)
		}
	}

	var calls int64
	op := func(ctx context.Context, lat, lng float64) (string, error) {
		atomic.AddInt64(&calls, 1)
		return "fresh", nil
	}

	results, stats := s.ProcessWithCacheSplit(ctx, items, op, Options{
		BatchSize:   4,
		Concurrency: 2,
	})

	if len(results) != 8 {
		t.Fatalf("results = %d, want 8", len(results))
	}
	if stats.CacheHits != 3 {
		t.Errorf("cache hits = %d, want 3", stats.CacheHits)
	}
	if calls != 5 {
		t.Errorf("operation invoked %d times, want 5 (misses only)", calls)
	}
	for i, r := range results {
		if r.Item.Key() != items[i].Key() {
			t.Fatalf("result %d out of order: %s, want %s", i, r.Item.Key(), items[i].Key())
		}
		wantHit := i >= 2 && i < 5
		if r.CacheHit != wantHit {
			t.Errorf("result %d cache hit = %v, want %v", i, r.CacheHit, wantHit)
		}
	}
}

type captureSink struct {
	mu      sync.Mutex
	records []AuditRecord
}

func (c *captureSink) SaveResults(_ context.Context, records []AuditRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, records...)
	return nil
}

func TestAuditSinkReceivesOutcomes(t *testing.T) {
	gw := cache.NewMemory()
	sink := &captureSink{}
	s := New(gw, cache.KindViability, WithAudit[string](sink))
	ctx := context.Background()

	items := makeItems(4)
	key := cache.Key(cache.KindViability, items[0].Lat, items[0].Lng)
	if err := cache.SetTyped(ctx, gw, key, "cached", 0); err != nil {
		t.Fatal(err)
	}

	op := func(ctx context.Context, lat, lng float64) (string, error) {
		if lat == 2 {
			return "", errors.New("enrichment failed")
		}
		return "ok", nil
	}

	s.Process(ctx, items, op, Options{EnableCaching: true, BatchSize: 4, Concurrency: 2})

	if len(sink.records) != 4 {
		t.Fatalf("audit records = %d, want one per item", len(sink.records))
	}
	batchID := sink.records[0].BatchID
	if batchID == "" {
		t.Fatal("audit records must carry a batch id")
	}
	for i, rec := range sink.records {
		if rec.BatchID != batchID {
			t.Errorf("record %d batch id = %q, want %q", i, rec.BatchID, batchID)
		}
		if rec.Kind != string(cache.KindViability) {
			t.Errorf("record %d kind = %q", i, rec.Kind)
		}
		if rec.CoordKey != items[i].Key() {
			t.Errorf("record %d coord = %q, want %q", i, rec.CoordKey, items[i].Key())
		}
	}
	if !sink.records[0].CacheHit || !sink.records[0].Success {
		t.Errorf("cached item not audited as a hit: %+v", sink.records[0])
	}
	if sink.records[2].Success || sink.records[2].Error == "" {
		t.Errorf("failed item not audited as a failure: %+v", sink.records[2])
	}
}

func TestProcessMemoryAware(t *testing.T) {
	s := New[string](cache.NewMemory(), cache.KindViability)

	op := func(ctx context.Context, lat, lng float64) (string, error) {
		return "ok", nil
	}

	results, stats := s.ProcessMemoryAware(context.Background(), makeItems(23), op,
		Options{Concurrency: 3}, 1<<20, 8<<30)

	if len(results) != 23 {
		t.Fatalf("results = %d, want 23", len(results))
	}
	if stats.Errors != 0 {
		t.Errorf("errors = %d", stats.Errors)
	}
	// Plenty of headroom: batches are clamped to the upper bound, so at
	// least ceil(23/10) outer iterations happened.
	if stats.Chunks < 3 {
		t.Errorf("chunks = %d, want >= 3", stats.Chunks)
	}
}

func TestContextCancellationFailsRemainingItems(t *testing.T) {
	s := New[string](cache.NewMemory(), cache.KindViability)
	ctx, cancel := context.WithCancel(context.Background())

	op := func(ctx context.Context, lat, lng float64) (string, error) {
		cancel()
		return "ok", nil
	}

	results, stats := s.Process(ctx, makeItems(10), op, Options{
		BatchSize:           5,
		Concurrency:         2,
		DelayBetweenBatches: 50 * time.Millisecond,
	})

	if len(results) != 10 {
		t.Fatalf("results = %d, want one entry per input item", len(results))
	}
	if stats.Errors != 5 {
		t.Errorf("errors = %d, want 5 (second chunk cancelled)", stats.Errors)
	}
}
