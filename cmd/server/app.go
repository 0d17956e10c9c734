package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/phrazzld/taskforperks/internal/config"
	"github.com/phrazzld/taskforperks/internal/platform/clock"
	"github.com/phrazzld/taskforperks/internal/platform/metrics"
	"github.com/phrazzld/taskforperks/internal/platform/postgres"
	"github.com/phrazzld/taskforperks/internal/realtime"
	"github.com/phrazzld/taskforperks/internal/service"
	"github.com/phrazzld/taskforperks/internal/service/auth"
	"github.com/phrazzld/taskforperks/internal/store"
	"github.com/phrazzld/taskforperks/internal/sweeper"
	"github.com/phrazzld/taskforperks/internal/task"
	"github.com/uptrace/bun"
)

// application holds the shared dependencies so they are built once and
// released together on shutdown.
type application struct {
	config *config.Config
	logger *slog.Logger
	db     *bun.DB
	clock  clock.Clock

	metrics *metrics.Metrics

	claimStore store.ClaimStore
	taskStore  store.TaskStore

	jwtService     auth.JWTService
	hub            *realtime.Hub
	publisher      realtime.Publisher
	listener       *postgres.Listener
	gateway        *realtime.Gateway
	claimService   service.ClaimService
	summaryService service.SummaryService

	sweeper   *sweeper.Sweeper
	scheduler *task.Scheduler

	cleanupOnce sync.Once
}

// newApplication builds the application on top of an open database.
func newApplication(cfg *config.Config, logger *slog.Logger, db *bun.DB) (*application, error) {
	if db == nil {
		return nil, errors.New("database cannot be nil")
	}
	app := &application{config: cfg, logger: logger, db: db, clock: clock.Real()}
	err := app.wire(
		postgres.NewPostgresClaimStore(db, logger),
		postgres.NewPostgresTaskStore(db, logger),
	)
	if err != nil {
		return nil, err
	}
	return app, nil
}

// wire constructs everything above the stores.
func (app *application) wire(claims store.ClaimStore, tasks store.TaskStore) error {
	cfg := app.config
	if app.clock == nil {
		app.clock = clock.Real()
	}
	app.claimStore = claims
	app.taskStore = tasks
	app.metrics = metrics.New()

	var err error
	app.jwtService, err = auth.NewJWTService(cfg.Auth)
	if err != nil {
		return fmt.Errorf("failed to initialize JWT service: %w", err)
	}

	app.hub = realtime.NewHub(cfg.Realtime.SubscriberBuffer, app.logger,
		realtime.WithDropHook(app.metrics.EventDropped))

	switch cfg.Realtime.Transport {
	case "memory":
		app.publisher = app.hub
	case "postgres":
		if app.db == nil {
			return errors.New("postgres realtime transport requires a database")
		}
		app.publisher = postgres.NewNotifyPublisher(app.db.DB, cfg.Realtime.NotifyChannel, app.logger)
		app.listener = postgres.NewListener(cfg.Database.URL, cfg.Realtime.NotifyChannel, app.hub, app.logger)
	default:
		return fmt.Errorf("unknown realtime transport %q", cfg.Realtime.Transport)
	}
	app.logger.Info("realtime transport initialized", "transport", cfg.Realtime.Transport)

	app.gateway, err = realtime.NewGateway(cfg.Realtime, tasks, app.clock)
	if err != nil {
		return fmt.Errorf("failed to initialize realtime gateway: %w", err)
	}

	app.claimService, err = service.NewClaimService(claims, app.publisher, app.clock, app.logger)
	if err != nil {
		return fmt.Errorf("failed to create claim service: %w", err)
	}
	app.summaryService, err = service.NewSummaryService(claims, app.logger)
	if err != nil {
		return fmt.Errorf("failed to create summary service: %w", err)
	}

	app.sweeper = sweeper.New(claims, app.publisher, app.logger,
		sweeper.WithRecorder(app.metrics),
		sweeper.WithPublishConcurrency(cfg.Sweeper.PublishConcurrency),
		sweeper.WithClock(app.clock))

	app.scheduler, err = task.NewScheduler(app.sweeper, task.SchedulerConfig{
		Interval:   cfg.Sweeper.Interval,
		Timeout:    cfg.Sweeper.CycleTimeout(),
		Jitter:     cfg.Sweeper.Jitter,
		RunOnStart: true,
	}, app.logger, task.WithObserver(app.metrics), task.WithClock(app.clock))
	if err != nil {
		return fmt.Errorf("failed to create sweeper scheduler: %w", err)
	}

	app.logger.Info("application initialized")
	return nil
}

// Run starts the background components and serves HTTP until ctx is done.
func (app *application) Run(ctx context.Context) error {
	defer app.cleanup()

	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer func() {
		cancel()
		wg.Wait()
	}()

	if app.listener != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := app.listener.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				app.logger.Error("notification listener stopped", "error", err)
			}
		}()
	}

	if app.config.Sweeper.Enabled {
		if err := app.scheduler.Start(); err != nil {
			return fmt.Errorf("failed to start sweeper: %w", err)
		}
		defer app.scheduler.Stop()
	} else {
		app.logger.Info("claim expiry sweeper disabled")
	}

	if err := app.startHTTPServer(ctx, app.setupRouter()); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// sweepOnce runs a single expiry cycle with the configured timeout.
func (app *application) sweepOnce(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, app.config.Sweeper.CycleTimeout())
	defer cancel()

	res, err := app.sweeper.Sweep(ctx)
	if err != nil {
		return fmt.Errorf("sweep failed: %w", err)
	}
	app.logger.Info("manual sweep finished",
		"matched", res.Matched,
		"expired", res.Expired,
		"tasks_notified", res.TasksNotified,
		"publish_failures", res.PublishFailures)
	return nil
}

// cleanup releases resources. It is safe to call more than once.
func (app *application) cleanup() {
	app.cleanupOnce.Do(func() {
		if app.scheduler != nil {
			app.scheduler.Stop()
		}
		if app.hub != nil {
			app.hub.Close()
		}
		if app.db != nil {
			if err := app.db.Close(); err != nil {
				app.logger.Error("error closing database connection", "error", err)
			}
		}
		app.logger.Info("application shutdown completed")
	})
}
