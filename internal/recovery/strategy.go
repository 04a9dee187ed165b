package recovery

import (
	"time"

	"github.com/vietddude/siteline/internal/core/domain"
)

// Strategy declares how a single coordinated call recovers after its retry
// loop is exhausted. Immutable per call.
type Strategy[T any] struct {
	Type        domain.StrategyType
	MaxAttempts int              // 0 = coordinator default
	BackoffBase time.Duration    // 0 = coordinator default
	Fallback    T                // used when Type is fallback
	Retryable   func(error) bool // nil = DefaultRetryable
}

// Retry retries up to maxAttempts and then surfaces the last error.
func Retry[T any](maxAttempts int, base time.Duration) Strategy[T] {
	return Strategy[T]{Type: domain.StrategyRetry, MaxAttempts: maxAttempts, BackoffBase: base}
}

// Fallback substitutes value after the retry loop fails, keeping the last
// error visible on the outcome so callers can tell degraded from real success.
func Fallback[T any](value T) Strategy[T] {
	return Strategy[T]{Type: domain.StrategyFallback, Fallback: value}
}

// Skip resolves a failed call as a success with no data.
func Skip[T any]() Strategy[T] {
	return Strategy[T]{Type: domain.StrategySkip}
}

// Fail surfaces the last error after the retry loop.
func Fail[T any]() Strategy[T] {
	return Strategy[T]{Type: domain.StrategyFail}
}

// Outcome is the authoritative result of one coordinated call. Success with
// Applied set to fallback means "degraded but usable". Failures are always
// returned as values, never panics, so a batch of a thousand items can
// absorb dozens of hard failures without aborting the rest.
type Outcome[T any] struct {
	Success  bool
	Data     T
	HasData  bool
	Err      error
	Applied  domain.StrategyType // empty when no recovery was used
	Attempts int
	Elapsed  time.Duration
}
