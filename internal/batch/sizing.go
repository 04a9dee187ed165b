package batch

import "time"

// Adaptive batch size bounds.
const (
	MinAdaptiveBatch = 1
	MaxAdaptiveBatch = 10
)

func clampBatch(n int) int {
	if n < MinAdaptiveBatch {
		return MinAdaptiveBatch
	}
	if n > MaxAdaptiveBatch {
		return MaxAdaptiveBatch
	}
	return n
}

// OptimalBatchSize computes an advisory batch size that keeps the expected
// end-to-end latency near the target:
//
//	floor(targetLatency / (avgLatency * maxConcurrentBatches))
//
// clamped to [1,10] and never larger than the item count. It is not wired
// into Process automatically; callers choose when to apply it.
func OptimalBatchSize(
	totalItems int,
	avgLatency, targetLatency time.Duration,
	maxConcurrentBatches int,
) int {
	if totalItems <= 0 {
		return MinAdaptiveBatch
	}
	if avgLatency <= 0 || targetLatency <= 0 || maxConcurrentBatches <= 0 {
		return min(DefaultBatchSize, totalItems)
	}

	size := clampBatch(int(targetLatency / (avgLatency * time.Duration(maxConcurrentBatches))))
	return min(size, totalItems)
}
