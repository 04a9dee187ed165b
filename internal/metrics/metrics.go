package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OperationsTotal tracks coordinated operation invocations per dependency
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "siteline_operations_total",
			Help: "Total number of operation invocations",
		},
		[]string{"service", "operation"},
	)

	// OperationErrorsTotal tracks failed invocations per dependency
	OperationErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "siteline_operation_errors_total",
			Help: "Total number of failed operation invocations",
		},
		[]string{"service", "operation"},
	)

	// OperationLatency tracks operation latency per dependency
	OperationLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "siteline_operation_latency_seconds",
			Help:    "Operation latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service", "operation"},
	)

	// RecoveriesTotal tracks applied recovery strategies per dependency
	RecoveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "siteline_recoveries_total",
			Help: "Total number of applied recovery strategies",
		},
		[]string{"service", "strategy"},
	)

	// BreakerOpen reports whether a dependency's circuit breaker is open
	BreakerOpen = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "siteline_breaker_open",
			Help: "1 when the circuit breaker for a service is open",
		},
		[]string{"service"},
	)

	// CacheHitsTotal tracks cache hits per namespace
	CacheHitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "siteline_cache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"kind"},
	)

	// CacheMissesTotal tracks cache misses per namespace
	CacheMissesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "siteline_cache_misses_total",
			Help: "Total number of cache misses",
		},
		[]string{"kind"},
	)

	// BatchChunksTotal tracks processed scheduler chunks
	BatchChunksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "siteline_batch_chunks_total",
			Help: "Total number of scheduler chunks processed",
		},
	)

	// InflightOperations tracks currently tracked in-flight operations
	InflightOperations = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "siteline_inflight_operations",
			Help: "Number of tracked operations currently in flight",
		},
	)
)
