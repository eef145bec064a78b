package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/raphaelgruber/insightd-go/internal/scheduler"
	"github.com/spf13/cobra"
)

var jobsExclude []string

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List the maintenance jobs",
	Long: `List the registered maintenance jobs with their intervals.

Examples:
  insightd jobs                          # List all jobs
  insightd jobs run                      # Trigger every job once and report
  insightd jobs run --exclude insights   # Trigger all but the batch pass`,
	Args: cobra.NoArgs,
	RunE: runJobsList,
}

var jobsRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Trigger every job once and report per-job results",
	Args:  cobra.NoArgs,
	RunE:  runJobsOnce,
}

func init() {
	jobsRunCmd.Flags().StringSliceVar(&jobsExclude, "exclude", nil, "job ids to skip")
	jobsCmd.AddCommand(jobsRunCmd)
	rootCmd.AddCommand(jobsCmd)
}

func newScheduler() *scheduler.Scheduler {
	return scheduler.New(logger)
}

func runJobsList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	sched := newScheduler()
	if err := a.registerJobs(sched); err != nil {
		return err
	}

	fmt.Printf("%-20s %-10s %-8s %s\n", "ID", "INTERVAL", "ENABLED", "DESCRIPTION")
	fmt.Println("--------------------------------------------------------------------------------")
	for _, st := range sched.AllStatus() {
		fmt.Printf("%-20s %-10s %-8v %s\n", st.ID, st.Interval, st.Enabled, st.Description)
	}
	return nil
}

func runJobsOnce(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	sched := newScheduler()
	if err := a.registerJobs(sched); err != nil {
		return err
	}

	results := sched.TriggerAll(ctx, jobsExclude...)

	failures := 0
	fmt.Printf("%-20s %-8s %-10s %s\n", "JOB", "OK", "DURATION", "ERROR")
	fmt.Println("--------------------------------------------------------------------------------")
	for _, r := range results {
		status, _ := sched.Status(r.JobID)
		errMsg := ""
		if r.Err != nil {
			errMsg = r.Err.Error()
			failures++
		}
		fmt.Printf("%-20s %-8v %-10s %s\n",
			r.JobID, r.Success, status.Stats.LastDuration.Round(time.Millisecond), errMsg)
	}

	if failures > 0 {
		return fmt.Errorf("%d of %d jobs failed", failures, len(results))
	}
	return nil
}
