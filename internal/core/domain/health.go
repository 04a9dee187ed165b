package domain

import "time"

// ServiceStatus classifies a dependency by its recent success rate.
type ServiceStatus string

const (
	StatusOperational ServiceStatus = "OPERATIONAL"
	StatusDegraded    ServiceStatus = "DEGRADED"
	StatusFailing     ServiceStatus = "FAILING"
	StatusDown        ServiceStatus = "DOWN"
)

// ServiceHealth holds per-dependency counters. Status is derived, never
// set directly.
type ServiceHealth struct {
	Service      string        `json:"service"`
	ErrorCount   int           `json:"error_count"`
	SuccessCount int           `json:"success_count"`
	LastErrorAt  time.Time     `json:"last_error_at,omitempty"`
	Status       ServiceStatus `json:"status"`
}

// SuccessRate returns successes over total recorded outcomes. A service
// with no history counts as fully healthy.
func (h ServiceHealth) SuccessRate() float64 {
	total := h.SuccessCount + h.ErrorCount
	if total == 0 {
		return 1.0
	}
	return float64(h.SuccessCount) / float64(total)
}

// StatusForRate maps a success rate onto a ServiceStatus.
func StatusForRate(rate float64) ServiceStatus {
	switch {
	case rate >= 0.95:
		return StatusOperational
	case rate >= 0.80:
		return StatusDegraded
	case rate >= 0.50:
		return StatusFailing
	default:
		return StatusDown
	}
}
