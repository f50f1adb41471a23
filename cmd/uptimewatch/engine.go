package main

import (
	"context"
	"fmt"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"uptimewatch/internal/checker"
	"uptimewatch/internal/config"
	"uptimewatch/internal/logging"
	"uptimewatch/internal/storage"
	"uptimewatch/internal/storage/memory"
	"uptimewatch/internal/storage/mongo"
	"uptimewatch/internal/storage/postgres"
	"uptimewatch/internal/storage/sqlite"
)

// app bundles everything the commands share.
type app struct {
	cfg       *config.Config
	logger    *zap.Logger
	store     storage.Storer
	prober    *checker.HTTPProber
	runner    *checker.Runner
	scheduler *checker.Scheduler
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}

	logger.Info("initializing storage", zap.String("driver", cfg.DatabaseDriver))
	store, err := openStore(ctx, cfg)
	if err != nil {
		logger.Sync()
		return nil, err
	}

	clock := clockwork.NewRealClock()
	prober := checker.NewHTTPProber(
		checker.WithProbeTimeout(cfg.ProbeTimeout),
		checker.WithUserAgent(cfg.UserAgent),
		checker.WithStrictStatus(cfg.StrictStatus),
	)
	policy := checker.NewRetryPolicy(prober,
		checker.WithBackoff(cfg.RetrySchedule),
		checker.WithClock(clock),
		checker.WithRetryLogger(logger.Named("retry")),
	)
	runner := checker.NewRunner(store, policy, clock, logger.Named("runner"))
	scheduler := checker.NewScheduler(store, runner, checker.SchedulerConfig{
		Cadence:        cfg.TickInterval,
		MaxConcurrency: cfg.MaxConcurrency,
		Clock:          clock,
		Logger:         logger.Named("scheduler"),
	})

	return &app{
		cfg:       cfg,
		logger:    logger,
		store:     store,
		prober:    prober,
		runner:    runner,
		scheduler: scheduler,
	}, nil
}

func (a *app) close() {
	a.prober.Close()
	if err := a.store.Close(); err != nil {
		a.logger.Warn("failed to close storage", zap.Error(err))
	}
	a.logger.Sync()
}

// openStore returns the Storer selected by cfg.DatabaseDriver.
func openStore(ctx context.Context, cfg *config.Config) (storage.Storer, error) {
	switch cfg.DatabaseDriver {
	case config.DriverMemory:
		return memory.New(), nil
	case config.DriverSQLite:
		store, err := sqlite.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize sqlite storage: %w", err)
		}
		return store, nil
	case config.DriverPostgres:
		store, err := postgres.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize postgres storage: %w", err)
		}
		return store, nil
	case config.DriverMongo:
		store, err := mongo.New(ctx, cfg.DatabaseURL, cfg.DatabaseName)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize mongo storage: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.DatabaseDriver)
	}
}
