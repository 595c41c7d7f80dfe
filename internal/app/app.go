package app

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/dartseries/internal/common"
	"github.com/ternarybob/dartseries/internal/dart"
	"github.com/ternarybob/dartseries/internal/handlers"
	"github.com/ternarybob/dartseries/internal/interfaces"
	"github.com/ternarybob/dartseries/internal/metrics"
	"github.com/ternarybob/dartseries/internal/services/batch"
	"github.com/ternarybob/dartseries/internal/services/pipeline"
	"github.com/ternarybob/dartseries/internal/services/resolver"
	"github.com/ternarybob/dartseries/internal/services/scheduler"
	"github.com/ternarybob/dartseries/internal/services/statements"
	"github.com/ternarybob/dartseries/internal/storage"
)

// App holds all application components and dependencies
type App struct {
	Config         *common.Config
	Logger         arbor.ILogger
	ctx            context.Context
	cancelCtx      context.CancelFunc
	StorageManager interfaces.StorageManager

	// Observability
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics

	// Upstream
	DartClient *dart.Client

	// Pipeline services
	Resolver    *resolver.Service
	Fetcher     *statements.Fetcher
	Pipeline    *pipeline.Service
	BatchRunner *batch.Runner
	Scheduler   *scheduler.Scheduler

	// HTTP handlers
	SeriesHandler *handlers.SeriesHandler
	StatusHandler *handlers.StatusHandler
}

// New initializes the application with all dependencies
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}
	app.ctx, app.cancelCtx = context.WithCancel(context.Background())

	if err := app.initDatabase(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := app.initServices(); err != nil {
		app.StorageManager.Close()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	app.initHandlers()

	logger.Info().
		Str("environment", cfg.Environment).
		Str("storage", cfg.Storage.Type).
		Int("max_concurrent_years", cfg.Pipeline.MaxConcurrentYears).
		Msg("Application initialization complete")

	return app, nil
}

// initDatabase initializes the storage layer
func (a *App) initDatabase() error {
	storageManager, err := storage.NewStorageManager(a.Logger, a.Config)
	if err != nil {
		return fmt.Errorf("failed to create storage manager: %w", err)
	}

	a.StorageManager = storageManager
	a.Logger.Debug().
		Str("storage", a.Config.Storage.Type).
		Msg("Storage layer initialized")

	return nil
}

// initServices builds the DART client and the pipeline on top of it
func (a *App) initServices() error {
	apiKey, err := common.ResolveAPIKey(a.Config.Dart.APIKey)
	if err != nil {
		return err
	}

	a.Registry = prometheus.NewRegistry()
	a.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.Metrics = metrics.New(a.Registry)

	userAgent := a.Config.Dart.UserAgent
	if userAgent == "" {
		userAgent = common.UserAgent()
	}

	a.DartClient = dart.NewClient(apiKey,
		dart.WithBaseURL(a.Config.Dart.BaseURL),
		dart.WithTimeout(a.Config.DartTimeout()),
		dart.WithRateLimit(a.Config.Dart.RateLimit),
		dart.WithUserAgent(userAgent),
		dart.WithLogger(a.Logger),
		dart.WithObserver(a.Metrics.ObserveUpstream),
	)

	a.Resolver = resolver.NewService(
		a.DartClient,
		a.StorageManager.DirectoryStorage(),
		a.Logger,
		resolver.WithMinSimilarity(a.Config.Resolver.MinSimilarity),
		resolver.WithMaxAge(a.Config.DirectoryMaxAge()),
	)

	a.Fetcher = statements.NewFetcher(a.DartClient, a.Config.RetryPolicy(), a.Logger)

	a.Pipeline = pipeline.NewService(
		a.Resolver,
		a.Fetcher,
		a.StorageManager.RecordStorage(),
		a.Logger,
		pipeline.WithMaxConcurrentYears(a.Config.Pipeline.MaxConcurrentYears),
		pipeline.WithMetrics(a.Metrics),
	)

	a.BatchRunner = batch.NewRunner(
		a.Pipeline,
		a.Resolver,
		a.StorageManager.DirectoryStorage(),
		a.StorageManager.ProgressStorage(),
		a.Config.BatchPause(),
		a.Logger,
	)

	a.Scheduler = scheduler.NewScheduler(a.Resolver, a.Logger)

	a.Logger.Debug().
		Str("base_url", a.Config.Dart.BaseURL).
		Float64("rate_limit", a.Config.Dart.RateLimit).
		Msg("Pipeline services initialized")

	return nil
}

func (a *App) initHandlers() {
	a.SeriesHandler = handlers.NewSeriesHandler(a.Pipeline, a.Resolver, a.Logger)
	a.StatusHandler = handlers.NewStatusHandler()
}

// Context is cancelled when the app closes
func (a *App) Context() context.Context {
	return a.ctx
}

// StartBackground starts the scheduled directory refresh. Used by serve mode only.
func (a *App) StartBackground() error {
	if err := a.Scheduler.Start(a.Config.Resolver.RefreshSchedule); err != nil {
		return fmt.Errorf("failed to start directory scheduler: %w", err)
	}

	// Load the directory up front so the first request does not pay for it
	common.SafeGoWithContext(a.ctx, a.Logger, "directory-warmup", func() {
		count, err := a.Resolver.Load(a.ctx)
		if err != nil {
			a.Logger.Warn().Err(err).Msg("Directory warm-up failed")
			return
		}
		a.Logger.Info().Int("corporations", count).Msg("Corp code directory ready")
	})

	return nil
}

// Close closes all application resources
func (a *App) Close() error {
	if a.cancelCtx != nil {
		a.cancelCtx()
	}

	if a.Scheduler != nil {
		a.Scheduler.Stop()
	}

	if a.StorageManager != nil {
		if err := a.StorageManager.Close(); err != nil {
			return fmt.Errorf("failed to close storage: %w", err)
		}
		a.Logger.Info().Msg("Storage closed")
	}

	return nil
}
