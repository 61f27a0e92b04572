// Kestrel - Supply-chain risk scoring and alert lifecycle engine.
// Copyright (c) 2025 opensource.finance
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/opensource-finance/kestrel/internal/alerting"
	"github.com/opensource-finance/kestrel/internal/api"
	"github.com/opensource-finance/kestrel/internal/bus"
	"github.com/opensource-finance/kestrel/internal/cache"
	"github.com/opensource-finance/kestrel/internal/config"
	"github.com/opensource-finance/kestrel/internal/decision"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/metrics"
	"github.com/opensource-finance/kestrel/internal/repository"
	"github.com/opensource-finance/kestrel/internal/rules"
	"github.com/opensource-finance/kestrel/internal/scoring"
	"github.com/opensource-finance/kestrel/internal/submission"
	"github.com/opensource-finance/kestrel/internal/throttle"
	"github.com/opensource-finance/kestrel/internal/worker"
)

// Set via ldflags.
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

const shutdownTimeout = 10 * time.Second

func main() {
	slog.SetDefault(config.BootLogger())

	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(config.NewLogger(cfg.Logging))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("kestrel stopped with error", "error", err)
		os.Exit(1)
	}
	slog.Info("kestrel shutdown complete")
}

func run(ctx context.Context, cfg *domain.Config) error {
	slog.Info("starting kestrel",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
		"rate_limit", cfg.RateLimit.Enabled,
		"async_intake", cfg.Workers.AsyncIntake,
	)

	repo, err := repository.New(cfg.Repository)
	if err != nil {
		return fmt.Errorf("repository: %w", err)
	}
	defer repo.Close()
	go metrics.StartDBStatsCollector(ctx, repo.DB(), 15*time.Second)

	store, err := cache.New(cfg.Cache)
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	defer store.Close()

	events, err := bus.New(cfg.EventBus)
	if err != nil {
		return fmt.Errorf("event bus: %w", err)
	}
	defer events.Close()

	engine, err := rules.NewEngine(100)
	if err != nil {
		return fmt.Errorf("rule engine: %w", err)
	}
	defer engine.Close()
	if err := loadRules(ctx, repo, engine); err != nil {
		return fmt.Errorf("rule engine: %w", err)
	}

	processor := decision.NewProcessor(
		alerting.NewPolicy(alerting.DefaultThresholds()),
		decision.WithRules(engine),
		decision.WithNoise(scoring.NewSeededNoise(cfg.Scoring.NoiseSeed)),
	)
	submissions := submission.NewService(repo, processor)

	relay := worker.NewRelay(repo, events, cfg.Workers)
	relay.Start(ctx)

	notifier := worker.NewNotifier(events, worker.LogSink{Logger: slog.Default()})
	if err := notifier.Start(ctx); err != nil {
		slog.Error("failed to start alert notifier", "error", err)
	}

	var intake *worker.Intake
	if cfg.Workers.AsyncIntake {
		intake = worker.NewIntake(events, submissions)
		if err := intake.Start(worker.Config{}); err != nil {
			slog.Error("async intake disabled", "error", err)
			intake = nil
		}
	}

	srv := api.NewServer(cfg.Server, api.Deps{
		Repo:        repo,
		Cache:       store,
		Bus:         events,
		Engine:      engine,
		Submissions: submissions,
		Alerts:      alerting.NewManager(repo, alerting.WithDedup(cfg.Alerts.Dedup)),
		Limiter:     throttle.NewLimiter(store, cfg.RateLimit),
		AsyncIntake: intake != nil,
		Tracing:     cfg.Tracing.Enabled,
		Version:     Version,
	})

	serveErr := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	slog.Info("kestrel is ready", "host", cfg.Server.Host, "port", cfg.Server.Port)
	printBanner(cfg)

	var runErr error
	select {
	case <-ctx.Done():
		slog.Info("shutting down")
	case runErr = <-serveErr:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}
	// Stop intake before the last relay pass so no new outbox rows appear.
	if intake != nil {
		if err := intake.Stop(); err != nil {
			slog.Error("failed to stop async intake", "error", err)
		}
	}
	relay.Stop()
	if n, err := relay.RunOnce(shutdownCtx); err != nil {
		slog.Warn("final outbox pass failed", "error", err, "published", n)
	}
	notifier.Stop()

	return runErr
}

// loadRules loads the global rules into the engine. An unreadable rule table
// leaves the engine empty.
func loadRules(ctx context.Context, repo domain.Repository, engine *rules.Engine) error {
	stored, err := repo.ListRuleConfigs(ctx, rules.GlobalTenant)
	if err != nil {
		slog.Warn("failed to list rules from database", "error", err)
		return nil
	}
	if err := engine.ReloadRules(stored); err != nil {
		return err
	}
	slog.Info("rule engine initialized", "rules_count", engine.RulesCount())
	return nil
}

var endpoints = [][2]string{
	{"POST /suppliers", "register a supplier"},
	{"POST /invoices", "submit and score an invoice"},
	{"POST /shipments", "submit and score a shipment"},
	{"POST /transactions", "submit and classify a transaction"},
	{"PUT  /invoices/{id}/status", "approve or reject an invoice"},
	{"GET  /alerts?status=active", "list alerts"},
	{"POST /alerts/{id}/resolve", "resolve an alert"},
	{"GET  /reports/summary", "dashboard summary"},
	{"POST /rules", "create a custom scoring rule"},
	{"POST /rules/reload", "reload rules from the database"},
	{"GET  /metrics", "prometheus metrics"},
}

func printBanner(cfg *domain.Config) {
	fmt.Printf("\n  KESTREL %s (%s tier)\n  http://%s:%d\n\n", Version, cfg.Tier, cfg.Server.Host, cfg.Server.Port)
	for _, e := range endpoints {
		fmt.Printf("    %-30s %s\n", e[0], e[1])
	}
	fmt.Println()
}
