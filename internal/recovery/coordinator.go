// Package recovery wraps single operation invocations with retry, backoff,
// fallback, and per-dependency circuit breaking.
package recovery

import (
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"github.com/vietddude/siteline/internal/core/domain"
	"github.com/vietddude/siteline/internal/metrics"
	"github.com/vietddude/siteline/internal/perf"
)

// Config holds coordinator-wide defaults.
type Config struct {
	BreakerThreshold  int           // consecutive failures before opening
	BreakerTimeout    time.Duration // cooldown before a call is admitted again
	MaxAttempts       int
	BackoffBase       time.Duration
	ErrorHistoryLimit int // recent errors kept per service
}

// DefaultConfig returns the standard coordinator settings.
func DefaultConfig() Config {
	return Config{
		BreakerThreshold:  5,
		BreakerTimeout:    60 * time.Second,
		MaxAttempts:       3,
		BackoffBase:       500 * time.Millisecond,
		ErrorHistoryLimit: 100,
	}
}

// maxBackoff caps a single backoff sleep.
const maxBackoff = 30 * time.Second

// ErrorRecord is one recorded dependency failure.
type ErrorRecord struct {
	Service   string    `json:"service"`
	Operation string    `json:"operation"`
	Message   string    `json:"message"`
	RequestID string    `json:"request_id,omitempty"`
	At        time.Time `json:"at"`
}

// serviceRecord is the per-dependency state. Mutated only under the
// coordinator mutex, one atomic read-modify-write per recorded outcome.
type serviceRecord struct {
	errorCount          int
	successCount        int
	lastErrorAt         time.Time
	consecutiveFailures int
	breakerOpen         bool
	openedAt            time.Time
	recent              []ErrorRecord
}

// Coordinator owns per-dependency health and breaker state. Construct one
// explicitly and inject it; there is no package-level instance.
type Coordinator struct {
	mu       sync.Mutex
	cfg      Config
	services map[string]*serviceRecord
	tracker  *perf.Tracker
	log      *slog.Logger
}

// Option customizes a Coordinator.
type Option func(*Coordinator)

// WithTracker attaches a perf tracker for optional instrumentation. The
// coordinator stays correct without one.
func WithTracker(t *perf.Tracker) Option {
	return func(c *Coordinator) { c.tracker = t }
}

// WithLogger overrides the default logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) { c.log = l }
}

// New creates a coordinator. Zero-valued config fields take defaults.
func New(cfg Config, opts ...Option) *Coordinator {
	def := DefaultConfig()
	if cfg.BreakerThreshold <= 0 {
		cfg.BreakerThreshold = def.BreakerThreshold
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = def.BreakerTimeout
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = def.BackoffBase
	}
	if cfg.ErrorHistoryLimit <= 0 {
		cfg.ErrorHistoryLimit = def.ErrorHistoryLimit
	}

	c := &Coordinator{
		cfg:      cfg,
		services: make(map[string]*serviceRecord),
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// admit checks the breaker for service. An expired cooldown heals the
// breaker and admits the call; its outcome decides whether it re-opens.
func (c *Coordinator) admit(service string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.services[service]
	if !ok || !rec.breakerOpen {
		return nil
	}
	if time.Since(rec.openedAt) > c.cfg.BreakerTimeout {
		rec.breakerOpen = false
		metrics.BreakerOpen.WithLabelValues(service).Set(0)
		c.log.Info("circuit breaker cooldown elapsed, admitting call", "service", service)
		return nil
	}
	return fmt.Errorf("circuit breaker open for %s", service)
}

func (c *Coordinator) record(service string) *serviceRecord {
	rec, ok := c.services[service]
	if !ok {
		rec = &serviceRecord{}
		c.services[service] = rec
	}
	return rec
}

// RecordSuccess counts a successful call against service, resetting the
// consecutive-failure counter and closing the breaker.
func (c *Coordinator) RecordSuccess(service string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec := c.record(service)
	rec.successCount++
	rec.consecutiveFailures = 0
	if rec.breakerOpen {
		rec.breakerOpen = false
		metrics.BreakerOpen.WithLabelValues(service).Set(0)
		c.log.Info("circuit breaker closed", "service", service)
	}
}

// RecordError counts a failed call against service, opening the breaker
// once consecutive failures reach the threshold.
func (c *Coordinator) RecordError(ectx domain.ErrorContext, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec := c.record(ectx.Service)
	rec.errorCount++
	rec.lastErrorAt = time.Now()
	rec.consecutiveFailures++

	rec.recent = append(rec.recent, ErrorRecord{
		Service:   ectx.Service,
		Operation: ectx.Operation,
		Message:   err.Error(),
		RequestID: ectx.RequestID,
		At:        rec.lastErrorAt,
	})
	if len(rec.recent) > c.cfg.ErrorHistoryLimit {
		rec.recent = rec.recent[len(rec.recent)-c.cfg.ErrorHistoryLimit:]
	}

	if rec.consecutiveFailures >= c.cfg.BreakerThreshold {
		wasOpen := rec.breakerOpen
		rec.breakerOpen = true
		rec.openedAt = time.Now()
		if !wasOpen {
			metrics.BreakerOpen.WithLabelValues(ectx.Service).Set(1)
			c.log.Warn("circuit breaker opened",
				"service", ectx.Service,
				"consecutive_failures", rec.consecutiveFailures)
		}
	}
}

// backoff sleeps for an exponential delay with up to 10% jitter, capped at
// maxBackoff, interruptible by ctx.
func backoff(done <-chan struct{}, base time.Duration, attempt int) error {
	delay := float64(base) * math.Pow(2, float64(attempt-1))
	delay *= 1 + rand.Float64()*0.1
	if delay > float64(maxBackoff) {
		delay = float64(maxBackoff)
	}

	select {
	case <-done:
		return errInterrupted
	case <-time.After(time.Duration(delay)):
		return nil
	}
}

var errInterrupted = fmt.Errorf("backoff interrupted: context done")

// ServiceHealth returns the derived health for one dependency. Unknown
// names report a synthetic fully-healthy default rather than erroring.
func (c *Coordinator) ServiceHealth(service string) domain.ServiceHealth {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.healthLocked(service)
}

func (c *Coordinator) healthLocked(service string) domain.ServiceHealth {
	rec, ok := c.services[service]
	if !ok {
		return domain.ServiceHealth{Service: service, Status: domain.StatusOperational}
	}
	h := domain.ServiceHealth{
		Service:      service,
		ErrorCount:   rec.errorCount,
		SuccessCount: rec.successCount,
		LastErrorAt:  rec.lastErrorAt,
	}
	h.Status = domain.StatusForRate(h.SuccessRate())
	return h
}

// AllServiceHealth returns health for every tracked dependency, sorted by
// service name for stable output.
func (c *Coordinator) AllServiceHealth() []domain.ServiceHealth {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]domain.ServiceHealth, 0, len(c.services))
	for name := range c.services {
		out = append(out, c.healthLocked(name))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Service < out[j].Service })
	return out
}

// BreakerSnapshot returns the breaker state for one dependency. An open
// breaker whose cooldown has elapsed reports as closed.
func (c *Coordinator) BreakerSnapshot(service string) domain.BreakerState {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.services[service]
	if !ok {
		return domain.BreakerState{}
	}
	return c.breakerLocked(rec)
}

func (c *Coordinator) breakerLocked(rec *serviceRecord) domain.BreakerState {
	st := domain.BreakerState{
		ConsecutiveFailures: rec.consecutiveFailures,
	}
	if rec.breakerOpen && time.Since(rec.openedAt) <= c.cfg.BreakerTimeout {
		st.Open = true
		st.OpenedAt = rec.openedAt
	}
	return st
}

// ErrorStatistics aggregates recorded failures across all dependencies.
type ErrorStatistics struct {
	TotalErrors     int                            `json:"total_errors"`
	ErrorsByService map[string]int                 `json:"errors_by_service"`
	RecentErrors    []ErrorRecord                  `json:"recent_errors"`
	Breakers        map[string]domain.BreakerState `json:"circuit_breaker_status"`
}

// recentPerService and recentTotal bound the RecentErrors list.
const (
	recentPerService = 5
	recentTotal      = 20
)

// ErrorStatistics returns totals, per-service counts, the most recent
// errors (newest first), and breaker states.
func (c *Coordinator) ErrorStatistics() ErrorStatistics {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := ErrorStatistics{
		ErrorsByService: make(map[string]int, len(c.services)),
		Breakers:        make(map[string]domain.BreakerState, len(c.services)),
	}

	for name, rec := range c.services {
		stats.TotalErrors += rec.errorCount
		if rec.errorCount > 0 {
			stats.ErrorsByService[name] = rec.errorCount
		}
		stats.Breakers[name] = c.breakerLocked(rec)

		recent := rec.recent
		if len(recent) > recentPerService {
			recent = recent[len(recent)-recentPerService:]
		}
		stats.RecentErrors = append(stats.RecentErrors, recent...)
	}

	sort.Slice(stats.RecentErrors, func(i, j int) bool {
		return stats.RecentErrors[i].At.After(stats.RecentErrors[j].At)
	})
	if len(stats.RecentErrors) > recentTotal {
		stats.RecentErrors = stats.RecentErrors[:recentTotal]
	}

	return stats
}

// Reset clears all per-service state. Intended for test isolation.
func (c *Coordinator) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for name := range c.services {
		metrics.BreakerOpen.WithLabelValues(name).Set(0)
	}
	c.services = make(map[string]*serviceRecord)
}
