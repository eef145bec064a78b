package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/raphaelgruber/insightd-go/internal/models"
	"github.com/spf13/cobra"
)

var (
	insightsCategory string
	insightsLimit    int
)

var insightsCmd = &cobra.Command{
	Use:   "insights",
	Short: "List recent insights",
	Long: `List recent non-archived insights, newest first.

Examples:
  insightd insights
  insightd insights --category error-handling --limit 10`,
	Args: cobra.NoArgs,
	RunE: runInsightsList,
}

func init() {
	insightsCmd.Flags().StringVarP(&insightsCategory, "category", "c", "", "filter by category")
	insightsCmd.Flags().IntVarP(&insightsLimit, "limit", "n", 20, "maximum rows")
	rootCmd.AddCommand(insightsCmd)
}

func runInsightsList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	insights, err := dbClient.ListInsights(ctx, insightsCategory, insightsLimit)
	if err != nil {
		return err
	}
	if len(insights) == 0 {
		fmt.Println("No insights found")
		return nil
	}

	fmt.Printf("%-10s %-12s %-20s %-6s %-14s %s\n", "ID", "TYPE", "CATEGORY", "CONF", "VALIDATION", "TECH")
	fmt.Println("--------------------------------------------------------------------------------")
	for _, ins := range insights {
		id, err := models.RecordIDString(ins.ID)
		if err != nil {
			id = "?"
		}
		category := ins.Category
		if ins.Subcategory != "" {
			category += "/" + ins.Subcategory
		}
		fmt.Printf("%-10s %-12s %-20s %-6.2f %-14s %s\n",
			id, ins.Type, category, ins.Confidence, ins.ValidationStatus,
			strings.Join(ins.Technologies, ","))
	}
	return nil
}
