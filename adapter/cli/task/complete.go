package task

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/qzwhatnext/qzwhatnext/adapter/cli"
	"github.com/qzwhatnext/qzwhatnext/internal/tasks/application/commands"
)

var completeCmd = &cobra.Command{
	Use:   "complete [id]",
	Short: "Mark a task completed",
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

		err = app.TaskHandler.Complete(cmd.Context(), commands.CompleteTaskCommand{
			UserID: userID,
			TaskID: taskID,
		})
		if err != nil {
			return fmt.Errorf("failed to complete task: %w", err)
		}
		fmt.Printf("Task completed: %s\n", taskID)
		return nil
	},
}
