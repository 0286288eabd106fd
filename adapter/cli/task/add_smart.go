package task

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/qzwhatnext/qzwhatnext/adapter/cli"
	"github.com/qzwhatnext/qzwhatnext/internal/tasks/application/commands"
	"github.com/qzwhatnext/qzwhatnext/internal/tasks/domain"
)

var addSmartCmd = &cobra.Command{
	Use:   "add-smart [text...]",
	Short: "Add a task from free text",
	Long: `Add a task from free text. The title is derived from the first
line and attribute inference fills in the rest during the next rebuild.
A leading "." keeps the task away from inference entirely.

Examples:
  qzwhatnext task add-smart "Call the dentist about the appointment"
  qzwhatnext task add-smart ".meds refill"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := cli.RequireApp()
		if err != nil {
			return err
		}
		userID, err := app.RequireUser()
		if err != nil {
			return err
		}

		created, err := app.TaskHandler.AddSmart(cmd.Context(), commands.AddSmartTaskCommand{
			UserID: userID,
			Text:   strings.Join(args, " "),
		})
		if err != nil {
			return fmt.Errorf("failed to add task: %w", err)
		}

		fmt.Printf("Task added: %s\n", created.ID())
		fmt.Printf("  title: %s\n", created.Title())
		if domain.IsAIExcluded(created) {
			fmt.Println("  ai: excluded")
		}
		return nil
	},
}
