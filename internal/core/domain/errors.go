package domain

import "time"

// ErrorContext identifies which dependency and which call failed.
// Service is the circuit-breaker and health-tracking key.
type ErrorContext struct {
	Service   string    `json:"service"`
	Operation string    `json:"operation"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
}

// StrategyType names a recovery policy.
type StrategyType string

const (
	StrategyRetry    StrategyType = "retry"
	StrategyFallback StrategyType = "fallback"
	StrategySkip     StrategyType = "skip"
	StrategyFail     StrategyType = "fail"
)
