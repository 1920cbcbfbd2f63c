// Shrike - Invoice fraud scoring that deploys in 60 seconds.
// Copyright (c) 2025 opensource.finance
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

	"github.com/opensource-finance/shrike/internal/anomaly"
	"github.com/opensource-finance/shrike/internal/api"
	"github.com/opensource-finance/shrike/internal/bus"
	"github.com/opensource-finance/shrike/internal/cache"
	"github.com/opensource-finance/shrike/internal/decision"
	"github.com/opensource-finance/shrike/internal/dedup"
	"github.com/opensource-finance/shrike/internal/domain"
	"github.com/opensource-finance/shrike/internal/ensemble"
	"github.com/opensource-finance/shrike/internal/explain"
	"github.com/opensource-finance/shrike/internal/features"
	"github.com/opensource-finance/shrike/internal/predict"
	"github.com/opensource-finance/shrike/internal/repository"
	"github.com/opensource-finance/shrike/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	// Initialize structured logger
	logLevel := slog.LevelInfo
	if os.Getenv("SHRIKE_DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// Log startup
	slog.Info("starting shrike",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	// Load configuration
	cfg := domain.DefaultConfig()

	// Check for Pro tier via environment
	if os.Getenv("SHRIKE_TIER") == "pro" {
		cfg = domain.ProConfig()
		slog.Info("running in Pro tier mode")
	}

	if dir := os.Getenv("SHRIKE_MODELS_DIR"); dir != "" {
		cfg.Models.Dir = dir
	}
	if path := os.Getenv("SHRIKE_REFERENCE_PATH"); path != "" {
		cfg.Models.ReferencePath = path
	}

	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
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

	// Initialize Repository
	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

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

	// Load classifier registry (artifacts from disk, builtins otherwise)
	registry, err := loadRegistry(cfg.Models.Dir)
	if err != nil {
		slog.Error("failed to load classifier artifacts", "error", err)
		os.Exit(1)
	}
	slog.Info("classifier registry loaded", "count", registry.Len(), "models", registry.Names())

	// Load anomaly reference distribution
	reference, err := loadReference(cfg.Models.ReferencePath)
	if err != nil {
		slog.Error("failed to load anomaly reference", "error", err)
		os.Exit(1)
	}
	scorer := anomaly.NewScorer(reference)
	slog.Info("anomaly scorer initialized", "available", scorer.Available())

	// Initialize risk-factor explainer
	explainer, err := explain.NewExplainer(explain.DefaultCatalog(), logger)
	if err != nil {
		slog.Error("failed to initialize explainer", "error", err)
		os.Exit(1)
	}
	slog.Info("explainer initialized", "rules_count", explainer.RulesCount())

	// Initialize scoring pipeline
	service := predict.NewService(
		features.NewExtractor(),
		scorer,
		ensemble.New(registry, 10, logger),
		decision.NewAggregator(),
		explainer,
		logger,
	)

	// Initialize duplicate-submission tracker
	tracker := dedup.NewTracker(cacheImpl, repo, dedup.DefaultWindow)
	slog.Info("duplicate tracker initialized", "window", tracker.Window())

	// Initialize async Worker for /submit processing
	asyncWorker := worker.NewWorker(busImpl, repo, service)
	if err := asyncWorker.Start(); err != nil {
		slog.Error("failed to start async worker", "error", err)
	}

	// Initialize Server
	srv := api.NewServer(cfg.Server, service, repo, cacheImpl, busImpl, tracker, cfg.Models.Dir, Version)

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("shrike is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	// Stop async worker first
	if err := asyncWorker.Stop(); err != nil {
		slog.Error("failed to stop async worker", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("shrike shutdown complete")
}

// loadRegistry loads classifier artifacts from dir, falling back to the
// built-in models when no directory is configured.
func loadRegistry(dir string) (*ensemble.Registry, error) {
	if dir == "" {
		slog.Info("no models directory configured, using built-in classifiers")
		return ensemble.BuiltinRegistry(), nil
	}
	return ensemble.LoadDir(dir)
}

// loadReference loads the anomaly reference distribution, falling back
// to the built-in reference when no path is configured.
func loadReference(path string) (*anomaly.Reference, error) {
	if path == "" {
		slog.Info("no reference path configured, using built-in reference")
		return anomaly.DefaultReference(), nil
	}
	return anomaly.LoadReference(path)
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════╗")
	fmt.Println("  ║               🪶 SHRIKE                   ║")
	fmt.Println("  ║      Invoice Fraud Scoring Engine         ║")
	fmt.Println("  ║      Every invoice, inspected.            ║")
	fmt.Println("  ╚═══════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /predict           - Score an invoice")
	fmt.Println("    POST /predict/{model}   - Score with one model")
	fmt.Println("    POST /submit            - Queue an invoice for async scoring")
	fmt.Println("    GET  /predictions/{id}  - Get prediction by ID")
	fmt.Println("    GET  /features          - List feature schema")
	fmt.Println("    GET  /models            - List loaded classifiers")
	fmt.Println("    POST /models/reload     - Hot-reload classifier artifacts")
	fmt.Println("    GET  /health            - Health check")
	fmt.Println()
}
