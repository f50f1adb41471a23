package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"uptimewatch/internal/api"
	"uptimewatch/internal/config"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scheduler and the HTTP API until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		return serve(cmd.Context(), cfg)
	},
}

func serve(parent context.Context, cfg *config.Config) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	server := api.NewServer(cfg.HTTPPort, api.Dependencies{
		Store:      a.store,
		Runner:     a.runner,
		Scheduler:  a.scheduler,
		Prober:     a.prober,
		CronSecret: cfg.CronSecret,
		Logger:     a.logger.Named("api"),
	})

	if err := a.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	serverErr := server.Start()
	a.logger.Info("application is running",
		zap.String("port", cfg.HTTPPort),
		zap.Duration("tick_interval", cfg.TickInterval),
		zap.Int("max_concurrency", cfg.MaxConcurrency),
	)

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received, starting graceful shutdown")
	case err := <-serverErr:
		if err != nil {
			runErr = fmt.Errorf("http server failed: %w", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
	defer shutdownCancel()

	// Stop the scheduler first so no new cycles start, then drain HTTP.
	if err := a.scheduler.Stop(shutdownCtx); err != nil {
		a.logger.Warn("in-flight checks did not finish before the grace period", zap.Error(err))
	}
	if err := server.Shutdown(shutdownCtx); err != nil && runErr == nil {
		runErr = fmt.Errorf("http server shutdown error: %w", err)
	}
	if runErr == nil {
		a.logger.Info("application shut down gracefully")
	}
	return runErr
}
