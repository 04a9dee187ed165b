package domain

import "time"

// BreakerState is a snapshot of one dependency's circuit breaker.
// Open implies at least the configured threshold of consecutive failures
// since the last success or reset.
type BreakerState struct {
	Open                bool      `json:"open"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	OpenedAt            time.Time `json:"opened_at,omitempty"`
}
