package recovery

import (
	"context"
	"strings"
	"time"

	"github.com/vietddude/siteline/internal/core/domain"
)

// modelBackoffBase keeps AI retry delays short: rate-limit windows are
// seconds, not minutes.
const modelBackoffBase = 250 * time.Millisecond

// ExecuteModelCall wraps an AI-provider invocation. Rate limiting and
// timeouts are retried with short backoff, malformed requests surface as
// failures, and anything else degrades to a synthesized payload specific
// to the operation name.
func ExecuteModelCall(
	ctx context.Context,
	c *Coordinator,
	ectx domain.ErrorContext,
	op func(context.Context) (map[string]any, error),
) Outcome[map[string]any] {
	strat := Strategy[map[string]any]{
		Type:        domain.StrategyFail,
		BackoffBase: modelBackoffBase,
		Retryable:   ModelRetryable,
	}

	out := Execute(ctx, c, ectx, strat, op)
	if out.Success {
		return out
	}
	if out.Err != nil && containsAny(out.Err.Error(), []string{"invalid_request"}) {
		return out
	}

	out.Success = true
	out.Data = SynthesizedPayload(ectx.Operation)
	out.HasData = true
	out.Applied = domain.StrategyFallback
	c.log.Info("model call degraded to synthesized payload",
		"service", ectx.Service, "operation", ectx.Operation, "error", out.Err)
	return out
}

// neutralScore is the midpoint of the 0-100 scoring scale used by the
// enrichment analyzers.
const neutralScore = 50.0

// SynthesizedPayload builds a deterministic degraded response for a named
// AI operation. Every payload carries degraded=true so downstream scoring
// can mark its confidence as LOW.
func SynthesizedPayload(operation string) map[string]any {
	op := strings.ToLower(operation)

	switch {
	case strings.Contains(op, "demographic"):
		return map[string]any{
			"score":              neutralScore,
			"population_density": "unknown",
			"income_band":        "unknown",
			"degraded":           true,
		}
	case strings.Contains(op, "competit"):
		return map[string]any{
			"score":            neutralScore,
			"saturation":       "unknown",
			"competitor_count": nil,
			"degraded":         true,
		}
	case strings.Contains(op, "viability"):
		return map[string]any{
			"score":      neutralScore,
			"confidence": "LOW",
			"degraded":   true,
		}
	default:
		return map[string]any{
			"insights": []string{},
			"degraded": true,
		}
	}
}
