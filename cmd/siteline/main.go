package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"

	"github.com/vietddude/siteline/internal/core/config"
	"github.com/vietddude/siteline/internal/health"
	"github.com/vietddude/siteline/internal/infra/cache"
	"github.com/vietddude/siteline/internal/infra/storage/postgres"
	"github.com/vietddude/siteline/internal/perf"
	"github.com/vietddude/siteline/internal/recovery"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	isDebug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	slogLevel := slog.LevelInfo
	if *isDebug || cfg.Logging.Level == "debug" {
		slogLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      slogLevel,
		TimeFormat: time.RFC3339,
	})))
	slog.Info("Logger initialized", "level", slogLevel.String())

	// Cache gateway: Redis when configured, in-memory otherwise.
	var gateway cache.Gateway
	if cfg.Redis.URL != "" {
		rdb, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			slog.Error("Failed to connect to redis", "error", err)
			os.Exit(1)
		}
		defer rdb.Close()
		gateway = rdb
		slog.Info("Using Redis cache gateway")
	} else {
		gateway = cache.NewMemory()
		slog.Info("Using in-memory cache gateway")
	}
	// Round-trip probe so a misconfigured gateway fails at boot, not on
	// the first batch. The key lives outside every cache namespace.
	const probeKey = "siteline:probe"
	probeCtx, probeCancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := gateway.Set(probeCtx, probeKey, []byte(`"ok"`), time.Minute); err != nil {
		probeCancel()
		slog.Error("Cache gateway probe failed", "error", err)
		os.Exit(1)
	}
	probeCancel()

	// Optional audit store: raised alerts are persisted, and the detailed
	// health report carries recent alerts plus batch outcome counts.
	var trackerOpts []perf.Option
	var monitorOpts []health.MonitorOption
	if cfg.Database.URL != "" {
		db, err := postgres.NewDB(context.Background(), cfg.Database)
		if err != nil {
			slog.Error("Failed to init db", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := db.Migrate(); err != nil {
			slog.Error("Failed to migrate db", "error", err)
			os.Exit(1)
		}

		alertRepo := postgres.NewAlertRepo(db)
		resultRepo := postgres.NewResultRepo(db)
		trackerOpts = append(trackerOpts, perf.WithAlertSink(func(a perf.Alert) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := alertRepo.Save(ctx, a); err != nil {
				slog.Warn("Failed to persist alert", "error", err)
			}
		}))
		monitorOpts = append(monitorOpts,
			health.WithAlertStore(alertRepo),
			health.WithResultStore(resultRepo))
		slog.Info("Using PostgreSQL audit store")
	}

	tracker := perf.NewTracker(perf.Config{
		SlowResponse:       time.Duration(cfg.Perf.SlowResponseMs) * time.Millisecond,
		MemoryLimitBytes:   uint64(cfg.Perf.MemoryLimitMB) << 20,
		ErrorRateThreshold: cfg.Perf.ErrorRateThreshold,
		MaxConcurrent:      cfg.Perf.MaxConcurrent,
	}, trackerOpts...)

	coordinator := recovery.New(recovery.Config{
		BreakerThreshold:  cfg.Recovery.BreakerThreshold,
		BreakerTimeout:    time.Duration(cfg.Recovery.BreakerTimeoutMs) * time.Millisecond,
		MaxAttempts:       cfg.Recovery.MaxRetryAttempts,
		ErrorHistoryLimit: cfg.Recovery.ErrorHistoryLimit,
	}, recovery.WithTracker(tracker))

	monitor := health.NewMonitor(coordinator, tracker, 15*time.Minute, monitorOpts...)
	server := health.NewServer(monitor, cfg.Server.Port)

	go func() {
		slog.Info("Health server listening", "port", cfg.Server.Port)
		if err := server.Start(); err != nil {
			slog.Error("Health server stopped", "error", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	slog.Info("Received signal, shutting down...", "signal", sig)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Stop(shutdownCtx); err != nil {
		slog.Error("Failed to stop health server", "error", err)
	}
}
