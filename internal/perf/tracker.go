// Package perf records start/stop timestamps of named operations, derives
// rolling summaries over a sliding window, and raises alerts when configured
// thresholds are exceeded. Telemetry must never break the caller: unknown
// tracking ids are logged and ignored.
package perf

import (
	"log/slog"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/siteline/internal/metrics"
)

// Severity grades a performance alert.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Event is one completed tracked operation.
type Event struct {
	ID        string         `json:"id"`
	Operation string         `json:"operation"`
	StartedAt time.Time      `json:"started_at"`
	Elapsed   time.Duration  `json:"elapsed"`
	Success   bool           `json:"success"`
	Error     string         `json:"error,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Alert is a threshold breach. Alerts are observability only; they are
// never consulted for control flow.
type Alert struct {
	Severity  Severity  `json:"severity"`
	Message   string    `json:"message"`
	Metric    string    `json:"metric"`
	Value     float64   `json:"value"`
	Threshold float64   `json:"threshold"`
	At        time.Time `json:"at"`
}

// Config holds tracker thresholds and history bounds.
type Config struct {
	SlowResponse       time.Duration // per-operation latency threshold
	MemoryLimitBytes   uint64        // heap ceiling before alerting
	ErrorRateThreshold float64       // rolling error rate over recent events
	MaxConcurrent      int           // in-flight operations before alerting
	EventHistoryLimit  int
	AlertHistoryLimit  int
}

// DefaultConfig returns the standard tracker thresholds.
func DefaultConfig() Config {
	return Config{
		SlowResponse:       5 * time.Second,
		MemoryLimitBytes:   512 << 20,
		ErrorRateThreshold: 0.10,
		MaxConcurrent:      50,
		EventHistoryLimit:  1000,
		AlertHistoryLimit:  200,
	}
}

// errorRateWindow is how many trailing events the rolling error rate covers.
const errorRateWindow = 100

type span struct {
	operation string
	startedAt time.Time
	metadata  map[string]any
}

// Tracker is the metrics recorder. All state lives behind one mutex.
type Tracker struct {
	mu        sync.Mutex
	cfg       Config
	log       *slog.Logger
	alertSink func(Alert)
	inflight  map[string]span
	events    []Event
	alerts    []Alert
}

// Option customizes a Tracker.
type Option func(*Tracker)

// WithAlertSink forwards every raised alert to sink, for example a
// persistent audit store. Delivery is asynchronous and never blocks the
// caller; the sink must be safe for concurrent use.
func WithAlertSink(sink func(Alert)) Option {
	return func(t *Tracker) { t.alertSink = sink }
}

// NewTracker creates a tracker with the given thresholds. Zero-valued
// fields take defaults.
func NewTracker(cfg Config, opts ...Option) *Tracker {
	def := DefaultConfig()
	if cfg.SlowResponse <= 0 {
		cfg.SlowResponse = def.SlowResponse
	}
	if cfg.MemoryLimitBytes == 0 {
		cfg.MemoryLimitBytes = def.MemoryLimitBytes
	}
	if cfg.ErrorRateThreshold <= 0 {
		cfg.ErrorRateThreshold = def.ErrorRateThreshold
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = def.MaxConcurrent
	}
	if cfg.EventHistoryLimit <= 0 {
		cfg.EventHistoryLimit = def.EventHistoryLimit
	}
	if cfg.AlertHistoryLimit <= 0 {
		cfg.AlertHistoryLimit = def.AlertHistoryLimit
	}
	t := &Tracker{
		cfg:      cfg,
		log:      slog.Default(),
		inflight: make(map[string]span),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Start records the start of a named operation and returns its tracking id.
func (t *Tracker) Start(operation string, metadata map[string]any) string {
	id := uuid.New().String()

	t.mu.Lock()
	t.inflight[id] = span{operation: operation, startedAt: time.Now(), metadata: metadata}
	if len(t.inflight) > t.cfg.MaxConcurrent {
		t.raiseLocked(SeverityHigh, "concurrent operations above limit",
			"concurrent_requests", float64(len(t.inflight)), float64(t.cfg.MaxConcurrent))
	}
	t.mu.Unlock()

	metrics.InflightOperations.Inc()
	return id
}

// Stop completes a tracked operation, appends its event, and evaluates
// thresholds. Stopping an unknown id is a no-op.
func (t *Tracker) Stop(id string, success bool, errMsg string, metadata map[string]any) {
	t.mu.Lock()
	sp, ok := t.inflight[id]
	if !ok {
		t.mu.Unlock()
		t.log.Debug("stop for unknown tracking id", "id", id)
		return
	}
	delete(t.inflight, id)

	elapsed := time.Since(sp.startedAt)
	// Merge into a fresh map: both inputs are caller-owned.
	var merged map[string]any
	if len(sp.metadata)+len(metadata) > 0 {
		merged = make(map[string]any, len(sp.metadata)+len(metadata))
		for k, v := range sp.metadata {
			merged[k] = v
		}
		for k, v := range metadata {
			merged[k] = v
		}
	}

	t.events = append(t.events, Event{
		ID:        id,
		Operation: sp.operation,
		StartedAt: sp.startedAt,
		Elapsed:   elapsed,
		Success:   success,
		Error:     errMsg,
		Metadata:  merged,
	})
	if len(t.events) > t.cfg.EventHistoryLimit {
		t.events = t.events[len(t.events)-t.cfg.EventHistoryLimit:]
	}

	t.checkThresholdsLocked(sp.operation, elapsed)
	t.mu.Unlock()

	metrics.InflightOperations.Dec()
}

// RaiseAlert appends an alert to the bounded history.
func (t *Tracker) RaiseAlert(severity Severity, message, metric string, value, threshold float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.raiseLocked(severity, message, metric, value, threshold)
}

// Reset clears all tracker state. Intended for test isolation.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.inflight = make(map[string]span)
	t.events = nil
	t.alerts = nil
}

func (t *Tracker) raiseLocked(severity Severity, message, metric string, value, threshold float64) {
	alert := Alert{
		Severity:  severity,
		Message:   message,
		Metric:    metric,
		Value:     value,
		Threshold: threshold,
		At:        time.Now(),
	}
	t.alerts = append(t.alerts, alert)
	if len(t.alerts) > t.cfg.AlertHistoryLimit {
		t.alerts = t.alerts[len(t.alerts)-t.cfg.AlertHistoryLimit:]
	}
	t.log.Warn("performance alert",
		"severity", severity, "metric", metric, "value", value, "threshold", threshold)
	if t.alertSink != nil {
		go t.alertSink(alert)
	}
}

func (t *Tracker) checkThresholdsLocked(operation string, elapsed time.Duration) {
	if elapsed > t.cfg.SlowResponse {
		severity := SeverityMedium
		if elapsed > 2*t.cfg.SlowResponse {
			severity = SeverityHigh
		}
		t.raiseLocked(severity, "slow operation: "+operation,
			"response_time", elapsed.Seconds(), t.cfg.SlowResponse.Seconds())
	}

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	if ms.HeapAlloc > t.cfg.MemoryLimitBytes {
		t.raiseLocked(SeverityHigh, "heap above configured ceiling",
			"memory_usage", float64(ms.HeapAlloc), float64(t.cfg.MemoryLimitBytes))
	}

	recent := t.events
	if len(recent) > errorRateWindow {
		recent = recent[len(recent)-errorRateWindow:]
	}
	if len(recent) > 0 {
		failures := 0
		for _, e := range recent {
			if !e.Success {
				failures++
			}
		}
		rate := float64(failures) / float64(len(recent))
		if rate > t.cfg.ErrorRateThreshold {
			t.raiseLocked(SeverityCritical, "rolling error rate above threshold",
				"error_rate", rate, t.cfg.ErrorRateThreshold)
		}
	}
}

// SlowOperation summarizes one operation's latency profile.
type SlowOperation struct {
	Operation      string        `json:"operation"`
	AverageElapsed time.Duration `json:"average_elapsed"`
	Count          int           `json:"count"`
}

// Summary aggregates the trailing window of events and alerts.
type Summary struct {
	TotalRequests       int             `json:"total_requests"`
	AverageResponseTime time.Duration   `json:"average_response_time"`
	ErrorRate           float64         `json:"error_rate"`
	CacheHitRate        float64         `json:"cache_hit_rate"`
	MemoryUsage         uint64          `json:"memory_usage"`
	ConcurrentRequests  int             `json:"concurrent_requests"`
	Alerts              []Alert         `json:"alerts"`
	TopSlowOperations   []SlowOperation `json:"top_slow_operations"`
}

// Summary returns aggregates over the trailing window.
func (t *Tracker) Summary(window time.Duration) Summary {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.summaryLocked(window)
}

func (t *Tracker) summaryLocked(window time.Duration) Summary {
	cutoff := time.Now().Add(-window)

	var (
		total     int
		failures  int
		elapsed   time.Duration
		hits      int
		cacheOps  int
		perOpSum  = make(map[string]time.Duration)
		perOpNum  = make(map[string]int)
		winAlerts []Alert
	)

	for _, e := range t.events {
		if e.StartedAt.Before(cutoff) {
			continue
		}
		total++
		elapsed += e.Elapsed
		if !e.Success {
			failures++
		}
		if hit, ok := e.Metadata["cache_hit"].(bool); ok {
			cacheOps++
			if hit {
				hits++
			}
		}
		perOpSum[e.Operation] += e.Elapsed
		perOpNum[e.Operation]++
	}

	for _, a := range t.alerts {
		if !a.At.Before(cutoff) {
			winAlerts = append(winAlerts, a)
		}
	}

	s := Summary{
		TotalRequests:      total,
		Alerts:             winAlerts,
		ConcurrentRequests: len(t.inflight),
	}
	if total > 0 {
		s.AverageResponseTime = elapsed / time.Duration(total)
		s.ErrorRate = float64(failures) / float64(total)
	}
	if cacheOps > 0 {
		s.CacheHitRate = float64(hits) / float64(cacheOps)
	}

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	s.MemoryUsage = ms.HeapAlloc

	for op, n := range perOpNum {
		s.TopSlowOperations = append(s.TopSlowOperations, SlowOperation{
			Operation:      op,
			AverageElapsed: perOpSum[op] / time.Duration(n),
			Count:          n,
		})
	}
	sort.Slice(s.TopSlowOperations, func(i, j int) bool {
		return s.TopSlowOperations[i].AverageElapsed > s.TopSlowOperations[j].AverageElapsed
	})
	if len(s.TopSlowOperations) > 5 {
		s.TopSlowOperations = s.TopSlowOperations[:5]
	}

	return s
}

// Health is the tracker's own status report.
type Health struct {
	Status  string         `json:"status"`
	Details map[string]any `json:"details"`
}

// HealthCheck reports unhealthy if a critical alert fired in the last five
// minutes, degraded if the five-minute error rate or average latency is
// above thresholds, healthy otherwise.
func (t *Tracker) HealthCheck() Health {
	t.mu.Lock()
	defer t.mu.Unlock()

	window := 5 * time.Minute
	s := t.summaryLocked(window)

	status := "healthy"
	for _, a := range s.Alerts {
		if a.Severity == SeverityCritical {
			status = "unhealthy"
			break
		}
	}
	if status == "healthy" {
		if s.ErrorRate > t.cfg.ErrorRateThreshold || s.AverageResponseTime > t.cfg.SlowResponse {
			status = "degraded"
		}
	}

	return Health{
		Status: status,
		Details: map[string]any{
			"window":           window.String(),
			"total_requests":   s.TotalRequests,
			"error_rate":       s.ErrorRate,
			"avg_response_ms":  s.AverageResponseTime.Milliseconds(),
			"concurrent":       s.ConcurrentRequests,
			"alerts_in_window": len(s.Alerts),
		},
	}
}
