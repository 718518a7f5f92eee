package main

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"jobmate/jobfeed-service/internal/config"
	"jobmate/jobfeed-service/internal/db"
	"jobmate/jobfeed-service/internal/events"
	"jobmate/jobfeed-service/internal/logger"
	"jobmate/jobfeed-service/internal/metrics"
	"jobmate/jobfeed-service/internal/orchestrator"
	"jobmate/jobfeed-service/internal/pipeline"
	"jobmate/jobfeed-service/internal/scraper"
	"jobmate/jobfeed-service/internal/store"
)

// app is the wired service shared by serve and run-once.
type app struct {
	cfg       *config.Config
	log       logger.Logger
	registry  *prometheus.Registry
	artifacts *store.Store
	orch      *orchestrator.Orchestrator

	closers []func()
}

// newApp loads configuration and connects every configured backend.
// Optional backends that are unset are skipped; configured ones that cannot
// be reached are fatal.
func newApp(ctx context.Context) (*app, error) {
	// ── Config ──────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	log, err := logger.New(logger.Config{Level: cfg.LogLevel})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	log = log.With(logger.String("service", "jobfeed-service"), logger.String("version", version))

	a := &app{
		cfg:       cfg,
		log:       log,
		registry:  prometheus.NewRegistry(),
		artifacts: store.New(),
	}
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	// ── Sinks ───────────────────────────────────────────────────────────────
	var (
		sinks    []orchestrator.Sink
		snapshot *store.PostgresSnapshot
	)
	if cfg.OutputPath != "" {
		sinks = append(sinks, store.NewFileSink(cfg.OutputPath))
	}

	// ── PostgreSQL ──────────────────────────────────────────────────────────
	if cfg.DatabaseURL != "" {
		log.Info("Connecting to PostgreSQL")
		pool, err := db.NewPostgresPool(ctx, cfg.DatabaseURL)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("postgres: %w", err)
		}
		a.closers = append(a.closers, pool.Close)

		snapshot = store.NewPostgresSnapshot(pool)
		if err := snapshot.EnsureSchema(ctx); err != nil {
			a.Close()
			return nil, err
		}
		sinks = append(sinks, snapshot)
		log.Info("PostgreSQL connected")
	}

	// ── Redis ───────────────────────────────────────────────────────────────
	if cfg.RedisURL != "" {
		log.Info("Connecting to Redis")
		rdb, err := db.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("redis: %w", err)
		}
		a.closers = append(a.closers, func() { _ = rdb.Close() })
		sinks = append(sinks, events.NewNotifier(rdb, cfg.RedisChannel))
		log.Info("Redis connected", logger.String("channel", cfg.RedisChannel))
	}

	// ── Orchestrator ────────────────────────────────────────────────────────
	if cfg.AdzunaAppID == "" || cfg.AdzunaAppKey == "" {
		log.Warn("ADZUNA_APP_ID / ADZUNA_APP_KEY not set, every fetch will fail")
	}
	fetcher := scraper.NewAdzunaFetcher(cfg.AdzunaAppID, cfg.AdzunaAppKey, cfg.AdzunaCountry)

	a.orch = orchestrator.New(orchestrator.Config{
		Queries:      cfg.Queries(),
		FetchOptions: cfg.FetchOptions(),
		Filter: pipeline.Options{
			Keywords:         cfg.Keywords,
			ExcludeTerms:     cfg.ExcludeTerms,
			MinSalary:        cfg.MinSalary,
			DescriptionLimit: cfg.DescriptionLimit,
		},
		FetchTimeout:     cfg.FetchTimeout,
		FetchConcurrency: cfg.FetchConcurrency,
	}, fetcher, a.artifacts, log,
		orchestrator.WithSinks(sinks...),
		orchestrator.WithMetrics(metrics.New(a.registry)),
	)

	if snapshot != nil {
		a.restore(ctx, snapshot)
	}

	log.Info("Service configured",
		logger.Int("queries", len(cfg.Queries())),
		logger.Int("sinks", len(sinks)),
		logger.Duration("interval", cfg.Interval()),
	)
	return a, nil
}

// restore seeds the orchestrator from the last persisted snapshot so the
// artifact and its run metadata survive restarts. A failed restore only
// costs the warm start.
func (a *app) restore(ctx context.Context, snapshot *store.PostgresSnapshot) {
	artifact, err := snapshot.Load(ctx)
	if err != nil {
		a.log.Info("No artifact restored", logger.Error(err))
		return
	}
	if !a.orch.Seed(artifact) {
		return
	}
	a.log.Info("Artifact restored from PostgreSQL",
		logger.String("run_id", artifact.RunID),
		logger.Int("records", artifact.Count),
		logger.Time("generated_at", artifact.GeneratedAt),
	)
}

// Close releases backend connections in reverse order and flushes the logger.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
	_ = a.log.Sync()
}
