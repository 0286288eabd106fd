package task

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/qzwhatnext/qzwhatnext/adapter/cli"
	"github.com/qzwhatnext/qzwhatnext/internal/tasks/domain"
)

var showCmd = &cobra.Command{
	Use:   "show [id]",
	Short: "Show one task with its scheduled blocks",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := cli.RequireApp()
		if err != nil {
			return err
		}
		userID, err := app.RequireUser()
		if err != nil {
			return err
		}
		taskID, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid task id: %w", err)
		}

		t, err := app.Tasks.FindByID(cmd.Context(), userID, taskID)
		if err != nil {
			return err
		}

		fmt.Printf("Task %s\n", t.ID())
		fmt.Printf("  title:    %s\n", t.Title())
		fmt.Printf("  status:   %s\n", t.Status())
		fmt.Printf("  category: %s\n", t.Category())
		fmt.Printf("  energy:   %s\n", t.Energy())
		fmt.Printf("  duration: %dm (confidence %.2f)\n", t.EstimatedDuration(), t.DurationConfidence())
		fmt.Printf("  tier:     %d\n", t.LastTier())
		fmt.Printf("  risk:     %.2f  impact: %.2f\n", t.RiskScore(), t.ImpactScore())
		if t.Deadline() != nil {
			fmt.Printf("  deadline: %s\n", t.Deadline().Format(time.RFC3339))
		}
		if t.DueBy() != nil {
			fmt.Printf("  due by:   %s\n", t.DueBy())
		}
		if len(t.Dependencies()) > 0 {
			fmt.Println("  depends on:")
			for _, dep := range t.Dependencies() {
				fmt.Printf("    %s\n", dep)
			}
		}
		if domain.IsAIExcluded(t) {
			fmt.Println("  ai:       excluded")
		}
		if t.Notes() != "" {
			fmt.Printf("  notes:    %s\n", t.Notes())
		}

		blocks, err := app.Blocks.ListByTask(cmd.Context(), userID, taskID)
		if err != nil {
			return err
		}
		if len(blocks) > 0 {
			fmt.Println("  scheduled:")
			for _, b := range blocks {
				marker := ""
				if b.Pinned() {
					marker = " (pinned)"
				}
				fmt.Printf("    %s - %s%s\n",
					b.Start().Format("2006-01-02 15:04"),
					b.End().Format("15:04"),
					marker,
				)
			}
		}
		return nil
	},
}
