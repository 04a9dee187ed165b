package config

import (
	"github.com/vietddude/siteline/internal/infra/cache"
	"github.com/vietddude/siteline/internal/infra/storage/postgres"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server   ServerConfig      `yaml:"server"`
	Logging  LoggingConfig     `yaml:"logging"`
	Redis    cache.RedisConfig `yaml:"redis"`
	Database postgres.Config   `yaml:"database"`
	Recovery RecoveryConfig    `yaml:"recovery"`
	Batch    BatchConfig       `yaml:"batch"`
	Perf     PerfConfig        `yaml:"perf"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// RecoveryConfig holds coordinator settings. Each field can be overridden
// by the environment variable of the same (upper-cased) name.
type RecoveryConfig struct {
	BreakerThreshold  int `yaml:"circuit_breaker_threshold"`
	BreakerTimeoutMs  int `yaml:"circuit_breaker_timeout_ms"`
	MaxRetryAttempts  int `yaml:"max_retry_attempts"`
	ErrorHistoryLimit int `yaml:"error_history_limit"`
}

// BatchConfig holds scheduler defaults.
type BatchConfig struct {
	BatchSize             int `yaml:"batch_size"`
	Concurrency           int `yaml:"concurrency"`
	DelayBetweenBatchesMs int `yaml:"delay_between_batches_ms"`
}

// PerfConfig holds tracker thresholds.
type PerfConfig struct {
	SlowResponseMs     int     `yaml:"slow_response_ms"`
	MemoryLimitMB      int     `yaml:"memory_limit_mb"`
	ErrorRateThreshold float64 `yaml:"error_rate_threshold"`
	MaxConcurrent      int     `yaml:"max_concurrent"`
}
