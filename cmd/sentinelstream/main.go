// SentinelStream - Real-time transaction risk scoring.
// Copyright (c) 2025 ganga0312
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/ganga0312/sentinelstream/internal/alert"
	"github.com/ganga0312/sentinelstream/internal/api"
	"github.com/ganga0312/sentinelstream/internal/bus"
	"github.com/ganga0312/sentinelstream/internal/cache"
	"github.com/ganga0312/sentinelstream/internal/config"
	"github.com/ganga0312/sentinelstream/internal/domain"
	"github.com/ganga0312/sentinelstream/internal/history"
	"github.com/ganga0312/sentinelstream/internal/metrics"
	"github.com/ganga0312/sentinelstream/internal/rules"
	"github.com/ganga0312/sentinelstream/internal/scoring"
	"github.com/ganga0312/sentinelstream/internal/velocity"
	"github.com/ganga0312/sentinelstream/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	// Optional .env for local development
	_ = godotenv.Load()

	// Initialize structured logger
	logLevel := slog.LevelInfo
	if os.Getenv("SENTINEL_DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	slog.Info("starting sentinelstream",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	// Load configuration
	cfg := domain.DefaultConfig()

	// Check for Pro tier via environment
	if os.Getenv("SENTINEL_TIER") == "pro" {
		cfg = domain.ProConfig()
		slog.Info("running in Pro tier mode")
	}

	cfg.APIKey = os.Getenv("SENTINEL_API_KEY")
	if path := os.Getenv("SENTINEL_RULES_PATH"); path != "" {
		cfg.RulesPath = path
	}

	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"history", cfg.History.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Initialize risk configuration snapshot
	snap, err := loadSnapshot(cfg.RulesPath)
	if err != nil {
		slog.Error("failed to load risk configuration", "error", err)
		os.Exit(1)
	}
	configStore := config.NewStore(snap)
	slog.Info("risk configuration loaded", "rules", len(snap.Rules), "path", cfg.RulesPath)

	// Initialize History Store
	store, err := history.New(cfg.History)
	if err != nil {
		slog.Error("failed to initialize history store", "error", err)
		os.Exit(1)
	}
	defer store.Close()
	slog.Info("history store initialized", "driver", cfg.History.Driver)

	// Initialize Cache
	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	// Initialize EventBus
	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	// Initialize pipeline components
	aggregator := velocity.New(store)
	engine := rules.NewEngine()
	alertSink := alert.NewBusSink(busImpl)
	m := metrics.New()

	orchestrator := scoring.New(configStore, store, aggregator, engine, alertSink, cacheImpl, m, cfg.EvalTimeout)
	slog.Info("scoring orchestrator initialized", "eval_timeout", cfg.EvalTimeout)

	// Start async ingestion worker
	ingestWorker := worker.New(busImpl, orchestrator)
	if err := ingestWorker.Start(ctx); err != nil {
		slog.Error("failed to start ingestion worker", "error", err)
		os.Exit(1)
	}

	// Initialize Server
	srv := api.NewServer(*cfg, orchestrator, configStore, store, cacheImpl, busImpl, m, Version)

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("sentinelstream is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	if err := ingestWorker.Stop(); err != nil {
		slog.Error("failed to stop ingestion worker", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("sentinelstream shutdown complete")
}

// loadSnapshot reads the risk configuration document from disk, falling
// back to the built-in defaults when no path is configured.
func loadSnapshot(path string) (*domain.Snapshot, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.LoadFile(path)
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════╗")
	fmt.Println("  ║            SENTINELSTREAM                 ║")
	fmt.Println("  ║   Transaction Risk Scoring Engine         ║")
	fmt.Println("  ║    Every transaction, scored.             ║")
	fmt.Println("  ╚═══════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /evaluate          - Evaluate a transaction")
	fmt.Println("    POST /evaluate/async    - Queue a transaction for evaluation")
	fmt.Println("    GET  /transactions/{id} - Get transaction by ID")
	fmt.Println("    GET  /outcomes/{id}     - Get evaluation outcome by ID")
	fmt.Println("    GET  /dashboard         - Recent evaluation summary")
	fmt.Println("    GET  /config            - Active risk configuration")
	fmt.Println("    POST /config/reload     - Hot-reload the rules file")
	fmt.Println("    GET  /health            - Health check")
	fmt.Println("    GET  /metrics           - Prometheus metrics")
	fmt.Println()
}
