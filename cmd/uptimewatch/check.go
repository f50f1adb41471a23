package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"uptimewatch/internal/config"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Run the checks that are currently due, then exit",
	Long: `Run a single scheduling cycle against the configured store and print the
URLs that were checked. Intended for driving uptimewatch from an external cron.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.close()

		checked, err := runOnce(ctx, a)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Checked %d URLs\n", len(checked))
		for _, u := range checked {
			fmt.Fprintln(out, u)
		}
		return nil
	},
}

func runOnce(ctx context.Context, a *app) ([]string, error) {
	checked, err := a.scheduler.RunDueChecks(ctx)
	stopCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownGrace)
	defer cancel()
	if stopErr := a.scheduler.Stop(stopCtx); stopErr != nil && err == nil {
		err = stopErr
	}
	if err != nil {
		return nil, fmt.Errorf("check cycle failed: %w", err)
	}
	return checked, nil
}
