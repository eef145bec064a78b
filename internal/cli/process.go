package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Run one batch pass over pending memories",
	Long: `Run a single pipeline pass: claim queue backlog, process pending and
retryable memories, and print the batch counts. Useful for draining a backlog
without starting the daemon.`,
	Args: cobra.NoArgs,
	RunE: runProcess,
}

func init() {
	rootCmd.AddCommand(processCmd)
}

func runProcess(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	a, err := buildApp(ctx)
	if err != nil {
		return err
	}

	result, err := a.pipeline.ProcessUnprocessed(ctx)
	if err != nil {
		return err
	}
	if result.AlreadyRunning {
		return fmt.Errorf("a batch pass is already running")
	}

	fmt.Printf("Processed %d memories in %s\n", result.Processed, result.Duration.Round(time.Millisecond))
	fmt.Printf("  Accepted: %d\n", result.Accepted)
	fmt.Printf("  Merged:   %d\n", result.Merged)
	fmt.Printf("  Rejected: %d\n", result.Rejected)
	if result.Failed > 0 {
		fmt.Printf("  Failed:   %d\n", result.Failed)
	}
	return nil
}
