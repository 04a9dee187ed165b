package recovery

import (
	"context"

	"github.com/vietddude/siteline/internal/core/domain"
)

// ExecuteStoreCall wraps a database lookup. Connection errors and timeouts
// are retried; constraint and unique violations surface immediately as hard
// failures so the caller knows the write was rejected. Exhausted transient
// failures degrade to the zero value with the error kept on the outcome, so
// an unavailable database never blocks the pipeline.
func ExecuteStoreCall[T any](
	ctx context.Context,
	c *Coordinator,
	ectx domain.ErrorContext,
	op func(context.Context) (T, error),
) Outcome[T] {
	strat := Strategy[T]{
		Type:      domain.StrategyFail,
		Retryable: StoreRetryable,
	}

	out := Execute(ctx, c, ectx, strat, op)
	if out.Success {
		return out
	}
	if out.Err != nil && containsAny(out.Err.Error(), storeTerminalPatterns) {
		return out
	}

	out.Success = true
	out.HasData = true
	out.Applied = domain.StrategyFallback
	c.log.Info("store call degraded to zero value",
		"service", ectx.Service, "operation", ectx.Operation, "error", out.Err)
	return out
}
