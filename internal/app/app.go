// Package app initializes and holds long-lived application services, acting as a dependency injection container.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/sitemap-harvester/internal/api"
	"github.com/JakeFAU/sitemap-harvester/internal/config"
	"github.com/JakeFAU/sitemap-harvester/internal/failurelog"
	collyfetcher "github.com/JakeFAU/sitemap-harvester/internal/fetcher/colly"
	"github.com/JakeFAU/sitemap-harvester/internal/harvest"
	"github.com/JakeFAU/sitemap-harvester/internal/id/uuid"
	"github.com/JakeFAU/sitemap-harvester/internal/lifecycle"
	"github.com/JakeFAU/sitemap-harvester/internal/policy/ratelimit"
	"github.com/JakeFAU/sitemap-harvester/internal/processor"
	"github.com/JakeFAU/sitemap-harvester/internal/service"
	"github.com/JakeFAU/sitemap-harvester/internal/sitemap"
	"github.com/JakeFAU/sitemap-harvester/internal/storage"
)

// App holds the shared, long-lived services for one invocation of the CLI.
// Sinks that a run writes to (artifact store, failure logs) are opened per
// run by Harvest so read-only commands never touch them.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	service   *service.Client
	lifecycle *lifecycle.Controller
	index     *sitemap.Source
	checker   *collyfetcher.Fetcher
	limiter   *ratelimit.Limiter
	store     storage.BlobStore
}

// Option customizes an App.
type Option func(*options)

type options struct {
	runner lifecycle.Runner
	store  storage.BlobStore
}

// WithRunner replaces the command runner used by the lifecycle controller.
func WithRunner(r lifecycle.Runner) Option {
	return func(o *options) { o.runner = r }
}

// WithBlobStore bypasses storage.Open and writes artifacts to store.
func WithBlobStore(store storage.BlobStore) Option {
	return func(o *options) { o.store = store }
}

// New creates the App from configuration.
func New(cfg config.Config, logger *zap.Logger, opts ...Option) *App {
	if logger == nil {
		logger = zap.NewNop()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	indexFetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent: cfg.Index.UserAgent,
		Timeout:   cfg.Index.Timeout,
	})
	checker := collyfetcher.New(collyfetcher.Config{
		UserAgent: cfg.Index.UserAgent,
		Timeout:   cfg.Harvest.ExistenceTimeout,
	})

	return &App{
		cfg:    cfg,
		logger: logger,
		service: service.New(service.Config{
			BaseURL:        cfg.Service.BaseURL,
			ProbeTimeout:   cfg.Service.ProbeTimeout,
			ExtractTimeout: cfg.Service.ExtractTimeout,
			FilterMode:     cfg.Service.FilterMode,
			CacheBust:      cfg.Service.CacheBust,
		}, nil),
		lifecycle: lifecycle.NewController(lifecycle.Config{
			Binary:          cfg.Lifecycle.Binary,
			Candidates:      cfg.Lifecycle.Candidates,
			DefaultName:     cfg.Lifecycle.DefaultName,
			CommandTimeout:  cfg.Lifecycle.CommandTimeout,
			DiscoverTimeout: cfg.Lifecycle.DiscoverTimeout,
		}, o.runner, logger.Named("lifecycle")),
		index:   sitemap.New(cfg.Index.BaseURL, indexFetcher),
		checker: checker,
		limiter: ratelimit.New(ratelimit.Config{RPS: cfg.Harvest.HostRPS, Burst: 1}),
		store:   o.store,
	}
}

// Logger returns the shared zap logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Config returns the configuration the App was built from.
func (a *App) Config() config.Config {
	return a.cfg
}

// Prober returns the extraction service health prober.
func (a *App) Prober() harvest.HealthProber {
	return a.service
}

// Lifecycle returns the container controller.
func (a *App) Lifecycle() *lifecycle.Controller {
	return a.lifecycle
}

// Harvest opens the run sinks, performs one orchestrated run and closes the
// sinks again. When metrics.port is set the status server runs alongside.
func (a *App) Harvest(ctx context.Context) (harvest.Summary, error) {
	runID := uuid.NewRunID()
	logger := a.logger.With(zap.String("run_id", runID))

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return harvest.Summary{RunID: runID, Status: harvest.StateAborted, Err: err}, err
	}
	defer func() {
		if err := closeStore(); err != nil {
			logger.Warn("error closing artifact store", zap.Error(err))
		}
	}()

	failures, closeFailures, err := a.openFailures(ctx, logger)
	if err != nil {
		return harvest.Summary{RunID: runID, Status: harvest.StateAborted, Err: err}, err
	}
	defer closeFailures()

	proc := processor.New(a.checker, a.service, store, logger.Named("processor"),
		processor.WithLimiter(a.limiter))

	orch := harvest.NewOrchestrator(a.harvestConfig(), harvest.Components{
		Index:         a.index,
		Processor:     proc,
		Prober:        a.service,
		Lifecycle:     a.lifecycle,
		Failures:      failures,
		RecoveryPause: a.cfg.Recovery.Pause,
	}, runID, a.logger)

	if a.cfg.Metrics.Port > 0 {
		serverCtx, stopServer := context.WithCancel(ctx)
		done := make(chan struct{})
		go func() {
			defer close(done)
			addr := net.JoinHostPort("", strconv.Itoa(a.cfg.Metrics.Port))
			srv := api.NewServer(orch, a.service, logger.Named("api"))
			if err := srv.ListenAndServe(serverCtx, addr); err != nil {
				logger.Error("status server failed", zap.Error(err))
			}
		}()
		defer func() {
			stopServer()
			<-done
		}()
	}

	return orch.Run(ctx)
}

func (a *App) harvestConfig() harvest.Config {
	budget := func(b config.BudgetConfig) harvest.PollBudget {
		return harvest.PollBudget{Interval: b.Interval, Attempts: b.Attempts}
	}
	return harvest.Config{
		StartPage:       a.cfg.Index.StartPage,
		MaxPage:         a.cfg.Index.MaxPage,
		MaxURLsPerPage:  a.cfg.Index.MaxURLsPerPage,
		BatchSize:       a.cfg.Harvest.BatchSize,
		MaxAttempts:     a.cfg.Harvest.MaxAttempts,
		RetryDelay:      a.cfg.Harvest.RetryDelay,
		PageDelay:       a.cfg.Harvest.PageDelay,
		BatchDelay:      a.cfg.Harvest.BatchDelay,
		RestartInterval: a.cfg.Harvest.RestartInterval,
		Preventive:      budget(a.cfg.Recovery.Preventive),
		Crash:           budget(a.cfg.Recovery.Crash),
		Unresponsive:    budget(a.cfg.Recovery.Unresponsive),
	}
}

func (a *App) openStore(ctx context.Context) (storage.BlobStore, func() error, error) {
	if a.store != nil {
		return a.store, func() error { return nil }, nil
	}
	store, closeFn, err := storage.Open(ctx, storage.Config{
		Provider:  a.cfg.Storage.Provider,
		OutputDir: a.cfg.Storage.OutputDir,
		GCSBucket: a.cfg.Storage.GCSBucket,
		Prefix:    a.cfg.Storage.Prefix,
	}, a.logger)
	if err != nil {
		return nil, nil, fmt.Errorf("open artifact store: %w", err)
	}
	return store, closeFn, nil
}

// openFailures builds the file log and, when a DSN is configured, the
// Postgres log, fanned out through a Tee.
func (a *App) openFailures(ctx context.Context, logger *zap.Logger) (harvest.FailureLog, func(), error) {
	fileLog, err := failurelog.OpenFile(a.cfg.Failures.Path, a.cfg.Failures.Truncate, time.Now())
	if err != nil {
		return nil, nil, fmt.Errorf("open failure log: %w", err)
	}
	sinks := failurelog.Tee{fileLog}
	closers := []func() error{fileLog.Close}

	if a.cfg.Failures.PostgresDSN != "" {
		pgLog, err := failurelog.OpenPostgres(ctx, failurelog.PostgresConfig{
			DSN:   a.cfg.Failures.PostgresDSN,
			Table: a.cfg.Failures.Table,
		})
		if err == nil {
			err = pgLog.EnsureTable(ctx)
			if err != nil {
				_ = pgLog.Close()
			}
		}
		if err != nil {
			_ = fileLog.Close()
			return nil, nil, fmt.Errorf("open postgres failure log: %w", err)
		}
		sinks = append(sinks, pgLog)
		closers = append(closers, pgLog.Close)
	}

	closeAll := func() {
		var errs []error
		for _, c := range closers {
			errs = append(errs, c())
		}
		if err := errors.Join(errs...); err != nil {
			logger.Warn("error closing failure logs", zap.Error(err))
		}
	}
	return sinks, closeAll, nil
}

// Close flushes the logger.
func (a *App) Close() {
	// Sync fails on some terminals; nothing useful can be done about it.
	_ = a.logger.Sync()
}
