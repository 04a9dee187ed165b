package recovery

import (
	"context"
	"time"

	"github.com/vietddude/siteline/internal/core/domain"
	"github.com/vietddude/siteline/internal/metrics"
)

// Execute wraps a single operation invocation with breaker admission, a
// bounded retry loop, and the requested recovery strategy.
//
// The fail-fast path (breaker open, cooldown not elapsed) returns without
// invoking op and performs no I/O. Recoverable outcomes never escape as
// failures: fallback and skip strategies resolve to Success=true with the
// last error kept visible so callers can lower downstream confidence.
func Execute[T any](
	ctx context.Context,
	c *Coordinator,
	ectx domain.ErrorContext,
	strat Strategy[T],
	op func(context.Context) (T, error),
) Outcome[T] {
	start := time.Now()

	if err := c.admit(ectx.Service); err != nil {
		return Outcome[T]{Success: false, Err: err, Elapsed: time.Since(start)}
	}

	maxAttempts := strat.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = c.cfg.MaxAttempts
	}
	base := strat.BackoffBase
	if base <= 0 {
		base = c.cfg.BackoffBase
	}
	retryable := strat.Retryable
	if retryable == nil {
		retryable = DefaultRetryable
	}

	var trackID string
	if c.tracker != nil {
		trackID = c.tracker.Start(ectx.Operation, map[string]any{"service": ectx.Service})
	}

	var lastErr error
	attempts := 0
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		attempts = attempt
		metrics.OperationsTotal.WithLabelValues(ectx.Service, ectx.Operation).Inc()

		callStart := time.Now()
		data, err := op(ctx)
		metrics.OperationLatency.WithLabelValues(ectx.Service, ectx.Operation).
			Observe(time.Since(callStart).Seconds())

		if err == nil {
			c.RecordSuccess(ectx.Service)
			if c.tracker != nil {
				c.tracker.Stop(trackID, true, "", nil)
			}
			return Outcome[T]{
				Success:  true,
				Data:     data,
				HasData:  true,
				Attempts: attempt,
				Elapsed:  time.Since(start),
			}
		}

		lastErr = err
		c.RecordError(ectx, err)
		metrics.OperationErrorsTotal.WithLabelValues(ectx.Service, ectx.Operation).Inc()

		if !retryable(err) || attempt == maxAttempts {
			break
		}
		if err := backoff(ctx.Done(), base, attempt); err != nil {
			break
		}
	}

	if c.tracker != nil {
		c.tracker.Stop(trackID, false, lastErr.Error(), nil)
	}

	out := Outcome[T]{
		Err:      lastErr,
		Attempts: attempts,
	}

	switch strat.Type {
	case domain.StrategyFallback:
		out.Success = true
		out.Data = strat.Fallback
		out.HasData = true
		out.Applied = domain.StrategyFallback
		metrics.RecoveriesTotal.WithLabelValues(ectx.Service, string(domain.StrategyFallback)).Inc()
		c.log.Info("fallback applied",
			"service", ectx.Service, "operation", ectx.Operation, "error", lastErr)
	case domain.StrategySkip:
		out.Success = true
		out.Applied = domain.StrategySkip
		metrics.RecoveriesTotal.WithLabelValues(ectx.Service, string(domain.StrategySkip)).Inc()
	default:
		// fail, retry, or unrecognized: surface the last error
		out.Success = false
	}

	out.Elapsed = time.Since(start)
	return out
}
