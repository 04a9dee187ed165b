package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v2"
)

// Load reads configuration from a YAML file, expands environment variables
// in its content, applies recognized environment overrides, and fills
// defaults. A missing file yields the defaults alone.
func Load(path string) (*AppConfig, error) {
	var cfg AppConfig

	data, err := os.ReadFile(path)
	if err == nil {
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)
	return &cfg, nil
}

func applyEnvOverrides(cfg *AppConfig) {
	envInt("CIRCUIT_BREAKER_THRESHOLD", &cfg.Recovery.BreakerThreshold)
	envInt("CIRCUIT_BREAKER_TIMEOUT_MS", &cfg.Recovery.BreakerTimeoutMs)
	envInt("MAX_RETRY_ATTEMPTS", &cfg.Recovery.MaxRetryAttempts)
	envInt("ERROR_HISTORY_LIMIT", &cfg.Recovery.ErrorHistoryLimit)
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}

	if cfg.Recovery.BreakerThreshold == 0 {
		cfg.Recovery.BreakerThreshold = 5
	}
	if cfg.Recovery.BreakerTimeoutMs == 0 {
		cfg.Recovery.BreakerTimeoutMs = 60000
	}
	if cfg.Recovery.MaxRetryAttempts == 0 {
		cfg.Recovery.MaxRetryAttempts = 3
	}
	if cfg.Recovery.ErrorHistoryLimit == 0 {
		cfg.Recovery.ErrorHistoryLimit = 100
	}

	if cfg.Batch.BatchSize == 0 {
		cfg.Batch.BatchSize = 5
	}
	if cfg.Batch.Concurrency == 0 {
		cfg.Batch.Concurrency = 3
	}
	if cfg.Batch.DelayBetweenBatchesMs == 0 {
		cfg.Batch.DelayBetweenBatchesMs = 100
	}

	if cfg.Perf.SlowResponseMs == 0 {
		cfg.Perf.SlowResponseMs = 5000
	}
	if cfg.Perf.MemoryLimitMB == 0 {
		cfg.Perf.MemoryLimitMB = 512
	}
	if cfg.Perf.ErrorRateThreshold == 0 {
		cfg.Perf.ErrorRateThreshold = 0.10
	}
	if cfg.Perf.MaxConcurrent == 0 {
		cfg.Perf.MaxConcurrent = 50
	}
}

func envInt(name string, dst *int) {
	v := os.Getenv(name)
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return
	}
	*dst = n
}
