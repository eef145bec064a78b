package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/raphaelgruber/insightd-go/internal/models"
	"github.com/spf13/cobra"
)

var (
	addType    string
	addProject string
	addEnqueue bool
)

var addCmd = &cobra.Command{
	Use:   "add <content>",
	Short: "Capture a memory record",
	Long: `Capture a memory record in pending state. The next batch pass picks it
up; --enqueue additionally writes a durable backlog entry so a capture burst
survives a restart.

Examples:
  insightd add "retry with backoff fixed the flaky suite" --type note
  insightd add "picked surrealdb over postgres" --type decision --project core`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAdd,
}

func init() {
	addCmd.Flags().StringVarP(&addType, "type", "t", "note", "memory type (note, observation, conversation, snippet, decision, preference)")
	addCmd.Flags().StringVarP(&addProject, "project", "p", "", "project the memory belongs to")
	addCmd.Flags().BoolVar(&addEnqueue, "enqueue", false, "also create a durable queue entry")
	rootCmd.AddCommand(addCmd)
}

func runAdd(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	content := strings.Join(args, " ")

	rec, err := dbClient.CreateMemory(ctx, addType, content, addProject)
	if err != nil {
		return err
	}
	id := models.MustRecordIDString(rec.ID)

	if addEnqueue {
		a, err := buildApp(ctx)
		if err != nil {
			return err
		}
		if err := a.pipeline.EnqueueMemory(ctx, id); err != nil {
			return err
		}
	}

	fmt.Printf("Captured memory %s (%s)\n", id, addType)
	return nil
}
