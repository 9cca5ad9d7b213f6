// Kestrel - Deterministic retail transaction classification.
// Copyright (c) 2025 retail-insights
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/retail-insights/kestrel/internal/api"
	"github.com/retail-insights/kestrel/internal/bus"
	"github.com/retail-insights/kestrel/internal/cache"
	"github.com/retail-insights/kestrel/internal/classify"
	"github.com/retail-insights/kestrel/internal/domain"
	"github.com/retail-insights/kestrel/internal/repository"
	"github.com/retail-insights/kestrel/internal/screen"
	"github.com/retail-insights/kestrel/internal/window"
	"github.com/retail-insights/kestrel/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	// Load .env if present; environment variables win
	_ = godotenv.Load()

	// Initialize structured logger
	logLevel := slog.LevelInfo
	if os.Getenv("KESTREL_DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// Log startup
	slog.Info("starting kestrel",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	// Load configuration
	cfg := domain.DefaultConfig()

	// Check for Pro tier via environment
	if os.Getenv("KESTREL_TIER") == "pro" {
		cfg = domain.ProConfig()
		slog.Info("running in Pro tier mode")
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

	// Initialize Window Service
	windowSvc := window.NewService(repo, cacheImpl,
		time.Duration(cfg.Classifier.AggregateTTL)*time.Second)
	slog.Info("window service initialized",
		"aggregate_ttl_s", cfg.Classifier.AggregateTTL,
	)

	// Initialize Classification Engine
	engine := classify.NewEngine(cfg.Classifier.MaxWorkers)
	slog.Info("classification engine initialized",
		"version", classify.EngineVersion,
		"max_workers", cfg.Classifier.MaxWorkers,
	)

	// Initialize Screen Engine
	screens, err := screen.NewEngine(cfg.Classifier.MaxWorkers)
	if err != nil {
		slog.Error("failed to initialize screen engine", "error", err)
		os.Exit(1)
	}

	// Load screens from database (no hardcoded defaults - configure via API)
	if err := loadScreensFromDatabase(ctx, repo, screens); err != nil {
		slog.Error("failed to load screens", "error", err)
		os.Exit(1)
	}
	slog.Info("screen engine initialized", "screens_count", screens.ScreensCount())

	// Initialize async Worker (Pro tier)
	var asyncWorker *worker.Worker
	if cfg.Tier == domain.TierPro || os.Getenv("KESTREL_ASYNC_WORKER") == "true" {
		asyncWorker = worker.NewWorker(busImpl, repo, engine, screens, windowSvc)

		// Get tenant IDs to process (from environment or default)
		tenantIDs := []string{}
		if envTenants := os.Getenv("KESTREL_TENANTS"); envTenants != "" {
			for _, t := range strings.Split(envTenants, ",") {
				if t = strings.TrimSpace(t); t != "" {
					tenantIDs = append(tenantIDs, t)
				}
			}
		}

		workerCfg := worker.Config{
			TenantIDs: tenantIDs,
		}

		if err := asyncWorker.Start(workerCfg); err != nil {
			slog.Error("failed to start async worker", "error", err)
		} else {
			slog.Info("async worker started", "tenant_count", len(tenantIDs))
		}
	}

	// Initialize Server
	srv := api.NewServer(cfg.Server, repo, cacheImpl, busImpl, engine, screens, Version)

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("kestrel is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	// Stop async worker first
	if asyncWorker != nil {
		if err := asyncWorker.Stop(); err != nil {
			slog.Error("failed to stop async worker", "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("kestrel shutdown complete")
}

// loadScreensFromDatabase loads screens from the database into the engine.
// All screens must be configured via POST /screens API - no hardcoded defaults.
func loadScreensFromDatabase(ctx context.Context, repo domain.Repository, screens *screen.Engine) error {
	dbScreens, err := repo.ListScreenConfigs(ctx, api.GlobalTenantID)
	if err != nil {
		slog.Warn("failed to list screens from database", "error", err)
		return nil // Start with empty screens - they can be added via API
	}

	if len(dbScreens) > 0 {
		slog.Info("loading screens from database", "count", len(dbScreens))
		return screens.LoadScreens(dbScreens)
	}

	slog.Info("no screens in database - configure via POST /screens API")
	return nil
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════╗")
	fmt.Println("  ║               KESTREL                     ║")
	fmt.Println("  ║   Retail Classification Engine            ║")
	fmt.Println("  ║   Every row gets a label.                 ║")
	fmt.Println("  ╚═══════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /classify                    - Classify a batch of records")
	fmt.Println("    POST /records                     - Ingest records for async classification")
	fmt.Println("    GET  /records/{id}                - Get record by ID")
	fmt.Println("    GET  /records/{id}/classification - Get latest classification for a record")
	fmt.Println("    GET  /classifications/{id}        - Get classification by ID")
	fmt.Println("    GET  /labels                      - Label vocabulary")
	fmt.Println("    GET  /screens                     - List all screens")
	fmt.Println("    POST /screens                     - Create a new screen")
	fmt.Println("    POST /screens/reload              - Hot-reload screens from database")
	fmt.Println("    GET  /health                      - Health check")
	fmt.Println()
}
