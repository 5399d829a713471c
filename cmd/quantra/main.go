// Quantra serves fraud, anomaly, forecast, default-risk and KYC scoring
// over HTTP, falling back to built-in rules when trained models are absent.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/opensource-finance/quantra/internal/api"
	"github.com/opensource-finance/quantra/internal/bus"
	"github.com/opensource-finance/quantra/internal/cache"
	"github.com/opensource-finance/quantra/internal/config"
	"github.com/opensource-finance/quantra/internal/domain"
	"github.com/opensource-finance/quantra/internal/logging"
	"github.com/opensource-finance/quantra/internal/model"
	"github.com/opensource-finance/quantra/internal/repository"
	"github.com/opensource-finance/quantra/internal/velocity"
	"github.com/opensource-finance/quantra/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	configPath := flag.String("config", os.Getenv("QUANTRA_CONFIG"), "path to a YAML or JSON config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.SetDefault(logging.New(cfg.Logging))

	slog.Info("starting quantra",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)
	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
		"models_dir", cfg.Models.Dir,
	)

	if err := run(cfg); err != nil {
		slog.Error("quantra stopped with error", "error", err)
		os.Exit(1)
	}
	slog.Info("quantra shutdown complete")
}

func run(cfg *domain.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Tracing.Enabled {
		otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		))
		slog.Info("trace context propagation enabled", "service", cfg.Tracing.ServiceName)
	}

	// Models load once; a missing artifact leaves its capability on rules.
	set := model.Load(ctx, cfg.Models, cfg.Remote, cfg.Breaker)
	slog.Info("capabilities resolved", "models", set.Summary())

	repo, err := repository.New(cfg.Repository)
	if err != nil {
		return fmt.Errorf("failed to initialize repository: %w", err)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		return fmt.Errorf("failed to initialize cache: %w", err)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		return fmt.Errorf("failed to initialize event bus: %w", err)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	vel := velocity.NewService(cfg.Enrichment, cacheImpl, repo)
	svc := api.NewServices(cfg, set, vel)

	var asyncWorker *worker.Worker
	if cfg.Worker.Enabled {
		asyncWorker = worker.NewWorker(busImpl, repo, svc.Fraud, vel)
		if err := asyncWorker.Start(cfg.Worker); err != nil {
			slog.Error("failed to start async worker", "error", err)
			asyncWorker = nil
		} else {
			slog.Info("async worker started",
				"concurrency", cfg.Worker.Concurrency,
				"tenant_count", len(cfg.Worker.TenantIDs),
			)
		}
	}

	srv := api.NewServer(cfg, svc, api.Deps{Repo: repo, Cache: cacheImpl, Bus: busImpl}, Version)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	slog.Info("quantra is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)
	printBanner(cfg, Version)

	var serveErr error
	select {
	case <-ctx.Done():
		slog.Info("received shutdown signal")
	case serveErr = <-errCh:
		slog.Error("server failed", "error", serveErr)
	}

	slog.Info("shutting down...")

	// Stop the worker first so in-flight decisions finish against live backends.
	if asyncWorker != nil {
		if err := asyncWorker.Stop(); err != nil {
			slog.Error("failed to stop async worker", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	return serveErr
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  QUANTRA  risk scoring engine")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /fraud/detect          - Score a transaction")
	fmt.Println("    POST /fraud/explain         - Explain a fraud score")
	fmt.Println("    POST /fraud/anomaly         - Anomaly check")
	fmt.Println("    POST /fraud/submit          - Queue a transaction for async scoring")
	fmt.Println("    POST /forecast/generate     - Spending or income forecast")
	fmt.Println("    POST /forecast/default-risk - Default-risk assessment")
	fmt.Println("    POST /kyc/verify            - Full KYC verification")
	fmt.Println("    POST /chat/message          - Assistant reply")
	fmt.Println("    GET  /assessments/{id}      - Audit record by ID")
	fmt.Println("    GET  /health                - Health check")
	fmt.Println("    GET  /metrics               - Prometheus metrics")
	fmt.Println()
}
