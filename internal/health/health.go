// Package health aggregates coordinator and tracker state into the
// operator-facing status report.
package health

import (
	"context"
	"sync"
	"time"

	"github.com/vietddude/siteline/internal/core/domain"
	"github.com/vietddude/siteline/internal/perf"
	"github.com/vietddude/siteline/internal/recovery"
)

// SystemStatus represents the overall health state of the pipeline.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

// AlertStore provides persisted performance alerts for the detailed report.
type AlertStore interface {
	RecentAlerts(ctx context.Context, limit int) ([]perf.Alert, error)
}

// ResultStore provides persisted batch outcome counts.
type ResultStore interface {
	CountByOutcome(ctx context.Context, since time.Time) (succeeded, failed int, err error)
}

// AuditSummary is the persisted-store slice of the detailed report.
type AuditSummary struct {
	Succeeded int          `json:"succeeded"`
	Failed    int          `json:"failed"`
	Alerts    []perf.Alert `json:"alerts,omitempty"`
}

// Report is the full operator-facing health report.
type Report struct {
	OverallHealth   SystemStatus             `json:"overall_health"`
	Services        []domain.ServiceHealth   `json:"services"`
	ErrorStatistics recovery.ErrorStatistics `json:"error_statistics"`
	Summary         perf.Summary             `json:"summary"`
	Audit           *AuditSummary            `json:"audit,omitempty"`
}

// Monitor builds health reports from the coordinator and tracker.
type Monitor struct {
	coord   *recovery.Coordinator
	tracker *perf.Tracker
	window  time.Duration
	alerts  AlertStore
	results ResultStore

	mu         sync.Mutex
	lastCheck  time.Time
	lastReport Report
	hasReport  bool
}

// MonitorOption customizes a Monitor.
type MonitorOption func(*Monitor)

// WithAlertStore includes recently persisted alerts in detailed reports.
func WithAlertStore(store AlertStore) MonitorOption {
	return func(m *Monitor) { m.alerts = store }
}

// WithResultStore includes persisted batch outcome counts in detailed
// reports.
func WithResultStore(store ResultStore) MonitorOption {
	return func(m *Monitor) { m.results = store }
}

// NewMonitor creates a monitor reporting over the given summary window
// (default 15 minutes).
func NewMonitor(coord *recovery.Coordinator, tracker *perf.Tracker, window time.Duration, opts ...MonitorOption) *Monitor {
	if window <= 0 {
		window = 15 * time.Minute
	}
	m := &Monitor{coord: coord, tracker: tracker, window: window}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Check builds the current report. Results are cached briefly so a polled
// endpoint cannot hammer the underlying components.
func (m *Monitor) Check() Report {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.hasReport && time.Since(m.lastCheck) < 10*time.Second {
		return m.lastReport
	}

	report := Report{
		OverallHealth:   StatusHealthy,
		Services:        m.coord.AllServiceHealth(),
		ErrorStatistics: m.coord.ErrorStatistics(),
		Summary:         m.tracker.Summary(m.window),
	}
	if m.alerts != nil || m.results != nil {
		report.Audit = m.auditSummary()
	}

	trackerHealth := m.tracker.HealthCheck()

	// Worst case wins.
	switch {
	case trackerHealth.Status == "unhealthy":
		report.OverallHealth = StatusCritical
	case trackerHealth.Status == "degraded":
		report.OverallHealth = StatusDegraded
	}
	for _, svc := range report.Services {
		if svc.Status == domain.StatusDown {
			report.OverallHealth = StatusCritical
			break
		}
		if svc.Status == domain.StatusFailing || svc.Status == domain.StatusDegraded {
			if report.OverallHealth == StatusHealthy {
				report.OverallHealth = StatusDegraded
			}
		}
	}
	for _, st := range report.ErrorStatistics.Breakers {
		if st.Open {
			report.OverallHealth = StatusCritical
			break
		}
	}

	m.lastCheck = time.Now()
	m.lastReport = report
	m.hasReport = true
	return report
}

// auditSummary reads the persisted stores best-effort: an unavailable audit
// database never fails a health check.
func (m *Monitor) auditSummary() *AuditSummary {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	s := &AuditSummary{}
	if m.results != nil {
		if succeeded, failed, err := m.results.CountByOutcome(ctx, time.Now().Add(-m.window)); err == nil {
			s.Succeeded, s.Failed = succeeded, failed
		}
	}
	if m.alerts != nil {
		if alerts, err := m.alerts.RecentAlerts(ctx, 20); err == nil {
			s.Alerts = alerts
		}
	}
	return s
}
