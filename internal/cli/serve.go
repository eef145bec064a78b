package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the insight daemon",
	Long: `Run the scheduler daemon: the insight extraction batch plus its
maintenance jobs (dedup sweep, cleanup, embedding backfill, analytics),
each on its own interval. Stops gracefully on SIGINT/SIGTERM, waiting up
to the configured shutdown grace for in-flight runs.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	a, err := buildApp(ctx)
	if err != nil {
		return err
	}

	sched := newScheduler()
	if err := a.registerJobs(sched); err != nil {
		return err
	}

	sched.Start()
	logger.Info("insightd serving",
		"insight_interval", cfg.InsightInterval,
		"batch_size", cfg.BatchSize,
		"max_concurrent", cfg.MaxConcurrent)

	// Kick off one pass immediately rather than waiting a full interval.
	go sched.Run(ctx, jobInsights)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	received := <-sig
	logger.Info("shutting down", "signal", received.String())

	stopCtx, cancel := context.WithTimeout(ctx, cfg.ShutdownGrace)
	defer cancel()
	if err := sched.Stop(stopCtx); err != nil {
		return fmt.Errorf("shutdown incomplete: %w", err)
	}
	return nil
}
