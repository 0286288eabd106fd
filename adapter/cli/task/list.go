package task

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/qzwhatnext/qzwhatnext/adapter/cli"
	"github.com/qzwhatnext/qzwhatnext/internal/tasks/domain"
)

var (
	listStatus   string
	listCategory string
	listDeleted  bool
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := cli.RequireApp()
		if err != nil {
			return err
		}
		userID, err := app.RequireUser()
		if err != nil {
			return err
		}

		filter := domain.ListFilter{IncludeDeleted: listDeleted}
		if listStatus != "" {
			status := domain.Status(listStatus)
			filter.Status = &status
		}
		if listCategory != "" {
			category := domain.ParseCategory(listCategory)
			filter.Category = &category
		}

		tasks, err := app.Tasks.List(cmd.Context(), userID, filter)
		if err != nil {
			return fmt.Errorf("failed to list tasks: %w", err)
		}
		if len(tasks) == 0 {
			fmt.Println("No tasks found.")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSTATUS\tCATEGORY\tTIER\tDUR\tTITLE")
		for _, t := range tasks {
			status := string(t.Status())
			if t.IsDeleted() {
				status += " (deleted)"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%dm\t%s\n",
				t.ID(), status, t.Category(), t.LastTier(), t.EstimatedDuration(), t.Title())
		}
		return w.Flush()
	},
}

func init() {
	listCmd.Flags().StringVar(&listStatus, "status", "", "filter by status (open, completed, missed)")
	listCmd.Flags().StringVar(&listCategory, "category", "", "filter by category")
	listCmd.Flags().BoolVar(&listDeleted, "deleted", false, "include soft-deleted tasks")
}
