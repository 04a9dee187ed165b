package batch

import (
	"context"
	"encoding/json"
	"runtime"
	"time"

	"github.com/vietddude/siteline/internal/core/domain"
	"github.com/vietddude/siteline/internal/infra/cache"
	"github.com/vietddude/siteline/internal/metrics"
)

// ProcessProfiles is Process specialized for a single keyed cache: it
// bulk-checks the gateway first, returns a map keyed by "<lat>,<lng>", and
// performs no scheduling work at all when every item is already cached.
// Duplicate coordinates collapse to one map entry.
func (s *Scheduler[T]) ProcessProfiles(
	ctx context.Context,
	items []domain.BatchItem,
	op Operation[T],
	opts Options,
) (map[string]T, Stats) {
	start := time.Now()
	stats := Stats{Items: len(items)}
	profiles := make(map[string]T, len(items))

	keys := make([]string, len(items))
	for i, item := range items {
		keys[i] = cache.Key(s.kind, item.Lat, item.Lng)
	}

	cached, err := s.gateway.GetMulti(ctx, keys)
	if err != nil {
		s.log.Warn("bulk cache lookup failed", "kind", s.kind, "error", err)
		cached = nil
	}

	var missing []domain.BatchItem
	for i, item := range items {
		raw, ok := cached[keys[i]]
		if !ok {
			missing = append(missing, item)
			continue
		}
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			missing = append(missing, item)
			continue
		}
		profiles[item.Key()] = v
		stats.CacheHits++
		metrics.CacheHitsTotal.WithLabelValues(string(s.kind)).Inc()
	}

	if len(missing) == 0 {
		stats.Elapsed = time.Since(start)
		return profiles, stats
	}

	results, procStats := s.Process(ctx, missing, op, opts)
	for _, r := range results {
		if r.HasValue {
			profiles[r.Item.Key()] = r.Value
		}
	}
	stats.CacheHits += procStats.CacheHits
	stats.Errors = procStats.Errors
	stats.Chunks = procStats.Chunks
	stats.Elapsed = time.Since(start)
	return profiles, stats
}

// ProcessWithCacheSplit resolves the cached/uncached split up front: cached
// items are answered in O(1) from one bulk lookup and only genuine misses
// flow through the chunked, concurrency-bounded path. The combined result
// set preserves priority ordering across both halves.
func (s *Scheduler[T]) ProcessWithCacheSplit(
	ctx context.Context,
	items []domain.BatchItem,
	op Operation[T],
	opts Options,
) ([]Result[T], Stats) {
	start := time.Now()
	stats := Stats{Items: len(items)}

	ordered := items
	if opts.PrioritizeByScore {
		ordered = sortByPriority(items)
	}

	keys := make([]string, len(ordered))
	for i, item := range ordered {
		keys[i] = cache.Key(s.kind, item.Lat, item.Lng)
	}
	cached, err := s.gateway.GetMulti(ctx, keys)
	if err != nil {
		s.log.Warn("bulk cache lookup failed", "kind", s.kind, "error", err)
		cached = nil
	}

	hit := make([]bool, len(ordered))
	values := make([]T, len(ordered))
	var missing []domain.BatchItem
	for i := range ordered {
		raw, ok := cached[keys[i]]
		if ok {
			var v T
			if err := json.Unmarshal(raw, &v); err == nil {
				hit[i] = true
				values[i] = v
				stats.CacheHits++
				metrics.CacheHitsTotal.WithLabelValues(string(s.kind)).Inc()
				continue
			}
		}
		missing = append(missing, ordered[i])
	}

	subOpts := opts
	subOpts.PrioritizeByScore = false // already ordered
	var processed []Result[T]
	if len(missing) > 0 {
		var procStats Stats
		processed, procStats = s.Process(ctx, missing, op, subOpts)
		stats.Errors = procStats.Errors
		stats.Chunks = procStats.Chunks
	}

	// Merge in the ordered positions: cached answers in place, processed
	// results consumed sequentially (Process preserves dispatch order).
	results := make([]Result[T], 0, len(ordered))
	next := 0
	for i, item := range ordered {
		if hit[i] {
			results = append(results, Result[T]{
				Item:     item,
				Value:    values[i],
				HasValue: true,
				CacheHit: true,
			})
			continue
		}
		if next < len(processed) {
			results = append(results, processed[next])
			next++
		}
	}

	stats.Elapsed = time.Since(start)
	return results, stats
}

// defaultPerItemCost is the assumed per-item working-set size when the
// caller provides no estimate.
const defaultPerItemCost = 4 << 20 // 4 MiB

// ProcessMemoryAware recomputes the effective batch size from current heap
// headroom divided by the estimated per-item cost before each outer
// iteration, shrinking batches when headroom is low and yielding briefly
// for reclamation when usage exceeds the ceiling.
func (s *Scheduler[T]) ProcessMemoryAware(
	ctx context.Context,
	items []domain.BatchItem,
	op Operation[T],
	opts Options,
	perItemBytes, ceilingBytes uint64,
) ([]Result[T], Stats) {
	start := time.Now()
	if perItemBytes == 0 {
		perItemBytes = defaultPerItemCost
	}
	if ceilingBytes == 0 {
		ceilingBytes = 512 << 20
	}

	ordered := items
	if opts.PrioritizeByScore {
		ordered = sortByPriority(items)
	}
	subOpts := opts
	subOpts.PrioritizeByScore = false

	stats := Stats{Items: len(items)}
	results := make([]Result[T], 0, len(items))

	var ms runtime.MemStats
	for offset := 0; offset < len(ordered); {
		runtime.ReadMemStats(&ms)
		if ms.HeapAlloc > ceilingBytes {
			runtime.GC()
			time.Sleep(10 * time.Millisecond)
			runtime.ReadMemStats(&ms)
		}

		headroom := uint64(0)
		if ceilingBytes > ms.HeapAlloc {
			headroom = ceilingBytes - ms.HeapAlloc
		}
		size := clampBatch(int(headroom / perItemBytes))

		end := min(offset+size, len(ordered))
		subOpts.BatchSize = size
		sub, subStats := s.Process(ctx, ordered[offset:end], op, subOpts)
		results = append(results, sub...)
		stats.CacheHits += subStats.CacheHits
		stats.Errors += subStats.Errors
		stats.Chunks += subStats.Chunks
		offset = end

		if offset < len(ordered) && opts.DelayBetweenBatches > 0 {
			select {
			case <-ctx.Done():
				for _, item := range ordered[offset:] {
					results = append(results, Result[T]{Item: item, Err: ctx.Err()})
					stats.Errors++
				}
				stats.Elapsed = time.Since(start)
				return results, stats
			case <-time.After(opts.DelayBetweenBatches):
			}
		}
	}

	stats.Elapsed = time.Since(start)
	return results, stats
}
