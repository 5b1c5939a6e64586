package cmd

import (
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/time/rate"

	"github.com/Aman-CERP/wikisearch/internal/bulk"
	"github.com/Aman-CERP/wikisearch/internal/config"
	"github.com/Aman-CERP/wikisearch/internal/engine"
	"github.com/Aman-CERP/wikisearch/internal/lifecycle"
	"github.com/Aman-CERP/wikisearch/internal/notify"
	"github.com/Aman-CERP/wikisearch/internal/preflight"
	"github.com/Aman-CERP/wikisearch/internal/reindex"
	"github.com/Aman-CERP/wikisearch/internal/search"
	"github.com/Aman-CERP/wikisearch/internal/source"
	"github.com/Aman-CERP/wikisearch/internal/store"
	"github.com/Aman-CERP/wikisearch/internal/telemetry"
	"github.com/Aman-CERP/wikisearch/internal/wiki"
)

// app holds the wired collaborators shared by every command.
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	meta     *store.SQLiteStore
	engine   *engine.BleveService
	docs     *wiki.Store
	registry *source.Registry
	loader   *bulk.Loader
	coord    *lifecycle.Coordinator
	job      *reindex.Job
	searcher *telemetry.InstrumentedSearcher
	stats    *telemetry.QueryMetrics
	statsDB  *telemetry.SQLiteMetricsStore
}

// openApp loads configuration, sets up logging and wires the application.
func openApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger, err := setupLogging(cfg)
	if err != nil {
		return nil, err
	}
	return newApp(cfg, logger)
}

func newApp(cfg *config.Config, logger *slog.Logger) (*app, error) {
	meta, err := store.NewSQLiteStore(cfg.DatabasePath())
	if err != nil {
		return nil, fmt.Errorf("failed to open metadata store: %w", err)
	}

	svc, err := engine.NewBleveService(engine.Options{
		Dir:     cfg.IndexDir(),
		Timeout: cfg.Index.Timeout,
		MaxOpen: cfg.Index.OpenIndexes,
		Logger:  logger,
	})
	if err != nil {
		_ = meta.Close()
		return nil, fmt.Errorf("failed to open index service: %w", err)
	}

	m, err := wiki.Mapping()
	if err != nil {
		_ = svc.Close()
		_ = meta.Close()
		return nil, fmt.Errorf("failed to build index mapping: %w", err)
	}

	settings := engine.Settings{
		RefreshInterval:  cfg.Index.RefreshInterval,
		NumberOfReplicas: cfg.Index.Replicas,
	}

	docs := wiki.NewStore(meta.DB())
	registry := source.NewRegistry(wiki.NewDocType(docs, cfg.Reindex.ExcludePrefixes))

	var limiter *rate.Limiter
	if cfg.Reindex.ChunksPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.Reindex.ChunksPerSecond), 1)
	}
	loader := bulk.NewLoader(svc, registry, bulk.Options{
		ChunkSize: cfg.Reindex.ChunkSize,
		Strict:    cfg.Reindex.Strict,
		Defaults:  settings,
		Limiter:   limiter,
		Logger:    logger,
	})

	coord := lifecycle.NewCoordinator(meta, svc, reindex.NewRescheduler(loader, cfg.Index.Prefix), lifecycle.Options{
		Prefix:      cfg.Index.Prefix,
		DefaultName: cfg.Index.DefaultName,
		Settings:    settings,
		Mapping:     m,
		Logger:      logger,
	})
	reindex.NewLiveIndexer(coord, loader, logger).Attach(docs)

	notifier, err := newNotifier(cfg, logger)
	if err != nil {
		_ = svc.Close()
		_ = meta.Close()
		return nil, err
	}

	job, err := reindex.NewJob(reindex.Dependencies{
		Coordinator: coord,
		Registry:    registry,
		Loader:      loader,
		Notifier:    notifier,
		SiteName:    cfg.Notify.SiteName,
		SoftLimit:   cfg.Reindex.SoftLimit,
		Logger:      logger,
	})
	if err != nil {
		_ = svc.Close()
		_ = meta.Close()
		return nil, err
	}

	statsDB, err := telemetry.NewSQLiteMetricsStore(meta.DB())
	if err != nil {
		_ = svc.Close()
		_ = meta.Close()
		return nil, err
	}
	statsCfg := telemetry.DefaultConfig()
	statsCfg.Logger = logger
	stats := telemetry.NewWithConfig(statsDB, statsCfg)

	return &app{
		cfg:      cfg,
		logger:   logger,
		meta:     meta,
		engine:   svc,
		docs:     docs,
		registry: registry,
		loader:   loader,
		coord:    coord,
		job:      job,
		searcher: telemetry.Instrument(search.NewSearcher(coord, svc, meta, logger), stats),
		stats:    stats,
		statsDB:  statsDB,
	}, nil
}

// newNotifier always logs outcomes and mails them when SMTP is configured.
func newNotifier(cfg *config.Config, logger *slog.Logger) (notify.Sink, error) {
	sinks := notify.Multi{notify.NewLogSink(logger)}
	if cfg.Notify.SMTPHost == "" || len(cfg.Notify.To) == 0 {
		return sinks, nil
	}
	smtp, err := notify.NewSMTPSink(notify.SMTPConfig{
		Host:     cfg.Notify.SMTPHost,
		Port:     cfg.Notify.SMTPPort,
		Username: cfg.Notify.Username,
		Password: cfg.Notify.Password,
		From:     cfg.Notify.From,
		To:       cfg.Notify.To,
	})
	if err != nil {
		return nil, fmt.Errorf("invalid notification settings: %w", err)
	}
	return append(sinks, smtp), nil
}

func (a *app) preflightTarget() preflight.Target {
	return preflight.Target{
		DataDir:  a.cfg.Paths.DataDir,
		IndexDir: a.cfg.IndexDir(),
		LockDir:  a.cfg.LockDir(),
		Prefix:   a.cfg.Index.Prefix,
		Current:  a.meta,
		Probe:    a.engine,
	}
}

// Close flushes search statistics, then releases the index service and
// the metadata store.
func (a *app) Close() error {
	return errors.Join(a.stats.Close(), a.engine.Close(), a.meta.Close())
}
