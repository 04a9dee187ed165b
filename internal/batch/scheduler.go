// Package batch executes independent enrichment work items with priority
// ordering, cache short-circuiting, concurrency-bounded parallel dispatch,
// and inter-chunk pacing.
package batch

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/siteline/internal/core/domain"
	"github.com/vietddude/siteline/internal/infra/cache"
	"github.com/vietddude/siteline/internal/metrics"
	"github.com/vietddude/siteline/internal/perf"
	"github.com/vietddude/siteline/internal/recovery"
)

// Operation is the business-layer processing function for one coordinate.
// It must be idempotent enough to retry safely.
type Operation[T any] func(ctx context.Context, lat, lng float64) (T, error)

// Scheduler defaults.
const (
	DefaultBatchSize   = 5
	DefaultConcurrency = 3
	DefaultDelay       = 100 * time.Millisecond
)

// Options controls one scheduler invocation. Zero BatchSize/Concurrency
// take defaults; a zero delay means back-to-back chunks.
type Options struct {
	BatchSize           int
	Concurrency         int
	DelayBetweenBatches time.Duration
	EnableCaching       bool
	PrioritizeByScore   bool
}

// DefaultOptions returns the standard invocation options.
func DefaultOptions() Options {
	return Options{
		BatchSize:           DefaultBatchSize,
		Concurrency:         DefaultConcurrency,
		DelayBetweenBatches: DefaultDelay,
		EnableCaching:       true,
	}
}

// Result is one item's outcome. Exactly one Result is returned per input
// item, in dispatch order (the priority-sorted input order).
type Result[T any] struct {
	Item     domain.BatchItem
	Value    T
	HasValue bool
	CacheHit bool
	Err      error
	Elapsed  time.Duration
}

// AuditRecord is one per-item outcome handed to the audit sink.
type AuditRecord struct {
	BatchID   string
	CoordKey  string
	Kind      string
	Success   bool
	CacheHit  bool
	Error     string
	ElapsedMs int64
}

// AuditSink persists the per-item outcomes of one scheduler invocation.
// Persistence failures are logged, never surfaced to callers.
type AuditSink interface {
	SaveResults(ctx context.Context, records []AuditRecord) error
}

// Stats accumulates per-invocation counters for the metrics surface.
type Stats struct {
	Items     int
	CacheHits int
	Errors    int
	Chunks    int
	Elapsed   time.Duration
}

// Scheduler dispatches batches of one result type against one cache
// namespace, optionally guarding each miss through the recovery
// coordinator under a named dependency.
type Scheduler[T any] struct {
	gateway cache.Gateway
	kind    cache.Kind
	ttl     time.Duration
	coord   *recovery.Coordinator
	service string
	tracker *perf.Tracker
	audit   AuditSink
	log     *slog.Logger
}

// Option customizes a Scheduler.
type Option[T any] func(*Scheduler[T])

// WithRecovery routes every cache miss through the coordinator, recorded
// against the named dependency.
func WithRecovery[T any](c *recovery.Coordinator, service string) Option[T] {
	return func(s *Scheduler[T]) {
		s.coord = c
		s.service = service
	}
}

// WithTracker attaches per-item performance tracking.
func WithTracker[T any](t *perf.Tracker) Option[T] {
	return func(s *Scheduler[T]) { s.tracker = t }
}

// WithTTL sets the write-through cache TTL (default: no expiry).
func WithTTL[T any](ttl time.Duration) Option[T] {
	return func(s *Scheduler[T]) { s.ttl = ttl }
}

// WithAudit persists every invocation's per-item outcomes through sink.
func WithAudit[T any](sink AuditSink) Option[T] {
	return func(s *Scheduler[T]) { s.audit = sink }
}

// New creates a scheduler over the given gateway and cache namespace.
func New[T any](gateway cache.Gateway, kind cache.Kind, opts ...Option[T]) *Scheduler[T] {
	s := &Scheduler[T]{
		gateway: gateway,
		kind:    kind,
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Process runs op for every item: priority sort, chunking, per-chunk cache
// short-circuit, concurrency-bounded dispatch, write-through on success,
// and pacing between chunks. One item's failure never aborts its siblings.
func (s *Scheduler[T]) Process(
	ctx context.Context,
	items []domain.BatchItem,
	op Operation[T],
	opts Options,
) ([]Result[T], Stats) {
	start := time.Now()
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}

	ordered := items
	if opts.PrioritizeByScore {
		ordered = sortByPriority(items)
	}

	stats := Stats{Items: len(items)}
	results := make([]Result[T], 0, len(items))

	for offset := 0; offset < len(ordered); offset += opts.BatchSize {
		end := min(offset+opts.BatchSize, len(ordered))
		chunk := ordered[offset:end]

		results = append(results, s.processChunk(ctx, chunk, op, opts, &stats)...)
		stats.Chunks++
		metrics.BatchChunksTotal.Inc()

		if end < len(ordered) && opts.DelayBetweenBatches > 0 {
			select {
			case <-ctx.Done():
				// Surface the remaining items as failed rather than
				// dropping them: one entry per input item, always.
				for _, item := range ordered[end:] {
					results = append(results, Result[T]{Item: item, Err: ctx.Err()})
					stats.Errors++
				}
				stats.Elapsed = time.Since(start)
				s.recordAudit(results)
				return results, stats
			case <-time.After(opts.DelayBetweenBatches):
			}
		}
	}

	stats.Elapsed = time.Since(start)
	s.recordAudit(results)
	return results, stats
}

// recordAudit hands one invocation's outcomes to the audit sink under a
// fresh batch id. The context is detached so a cancelled batch still gets
// audited.
func (s *Scheduler[T]) recordAudit(results []Result[T]) {
	if s.audit == nil || len(results) == 0 {
		return
	}

	batchID := uuid.New().String()
	records := make([]AuditRecord, len(results))
	for i, r := range results {
		rec := AuditRecord{
			BatchID:   batchID,
			CoordKey:  r.Item.Key(),
			Kind:      string(s.kind),
			Success:   r.Err == nil,
			CacheHit:  r.CacheHit,
			ElapsedMs: r.Elapsed.Milliseconds(),
		}
		if r.Err != nil {
			rec.Error = r.Err.Error()
		}
		records[i] = rec
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.audit.SaveResults(ctx, records); err != nil {
		s.log.Warn("audit write failed", "kind", s.kind, "batch_id", batchID, "error", err)
	}
}

// processChunk resolves one chunk: cache lookups first, then misses through
// a semaphore-bounded dispatch. Each worker writes only its own index, so
// results keep dispatch order regardless of completion order.
func (s *Scheduler[T]) processChunk(
	ctx context.Context,
	chunk []domain.BatchItem,
	op Operation[T],
	opts Options,
	stats *Stats,
) []Result[T] {
	out := make([]Result[T], len(chunk))
	sem := make(chan struct{}, opts.Concurrency)
	var wg sync.WaitGroup

	for i, item := range chunk {
		if opts.EnableCaching {
			key := cache.Key(s.kind, item.Lat, item.Lng)
			if v, ok, err := cache.GetTyped[T](ctx, s.gateway, key); err == nil && ok {
				out[i] = Result[T]{Item: item, Value: v, HasValue: true, CacheHit: true}
				stats.CacheHits++
				metrics.CacheHitsTotal.WithLabelValues(string(s.kind)).Inc()
				s.trackHit(item)
				continue
			}
			metrics.CacheMissesTotal.WithLabelValues(string(s.kind)).Inc()
		}

		// Acquire before launching so invocation order follows input
		// order and in-flight work never exceeds the concurrency bound.
		sem <- struct{}{}
		wg.Add(1)
		go func(i int, item domain.BatchItem) {
			defer wg.Done()
			defer func() { <-sem }()
			out[i] = s.invoke(ctx, item, op, opts)
		}(i, item)
	}

	wg.Wait()

	for _, r := range out {
		if r.Err != nil {
			stats.Errors++
		}
	}
	return out
}

// invoke runs op for a single cache miss, through the coordinator when one
// is configured, and writes successes back through the gateway.
func (s *Scheduler[T]) invoke(
	ctx context.Context,
	item domain.BatchItem,
	op Operation[T],
	opts Options,
) Result[T] {
	start := time.Now()
	res := Result[T]{Item: item}

	var trackID string
	if s.tracker != nil {
		trackID = s.tracker.Start("batch."+string(s.kind), map[string]any{
			"coord":    item.Key(),
			"priority": item.Priority,
		})
	}

	if s.coord != nil {
		ectx := domain.ErrorContext{
			Service:   s.service,
			Operation: string(s.kind),
			Timestamp: time.Now(),
		}
		out := recovery.Execute(ctx, s.coord, ectx, recovery.Fail[T](),
			func(ctx context.Context) (T, error) {
				return op(ctx, item.Lat, item.Lng)
			})
		res.Value = out.Data
		res.HasValue = out.HasData
		res.Err = out.Err
		if out.Success {
			res.Err = nil
		}
	} else {
		// Retry-free fast path when the caller disables recovery.
		v, err := op(ctx, item.Lat, item.Lng)
		if err != nil {
			res.Err = err
		} else {
			res.Value = v
			res.HasValue = true
		}
	}

	if res.Err == nil && res.HasValue && opts.EnableCaching {
		key := cache.Key(s.kind, item.Lat, item.Lng)
		if err := cache.SetTyped(ctx, s.gateway, key, res.Value, s.ttl); err != nil {
			s.log.Warn("cache write-through failed", "key", key, "error", err)
		}
	}

	if s.tracker != nil {
		errMsg := ""
		if res.Err != nil {
			errMsg = res.Err.Error()
		}
		s.tracker.Stop(trackID, res.Err == nil, errMsg, map[string]any{"cache_hit": false})
	}
	res.Elapsed = time.Since(start)
	return res
}

// trackHit records a cache hit as an instantaneous successful event so the
// hit rate stays visible in the summary.
func (s *Scheduler[T]) trackHit(item domain.BatchItem) {
	if s.tracker == nil {
		return
	}
	id := s.tracker.Start("batch."+string(s.kind), map[string]any{
		"coord":    item.Key(),
		"priority": item.Priority,
	})
	s.tracker.Stop(id, true, "", map[string]any{"cache_hit": true})
}

// sortByPriority returns a copy of items stable-sorted by priority
// descending; ties keep their original relative order.
func sortByPriority(items []domain.BatchItem) []domain.BatchItem {
	sorted := make([]domain.BatchItem, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority > sorted[j].Priority
	})
	return sorted
}
