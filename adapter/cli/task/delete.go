package task

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/qzwhatnext/qzwhatnext/adapter/cli"
	"github.com/qzwhatnext/qzwhatnext/internal/tasks/application/commands"
)

var deleteCmd = &cobra.Command{
	Use:   "delete [id]",
	Short: "Soft-delete a task and unschedule it",
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

		err = app.TaskHandler.Delete(cmd.Context(), commands.DeleteTaskCommand{
			UserID: userID,
			TaskID: taskID,
		})
		if err != nil {
			return fmt.Errorf("failed to delete task: %w", err)
		}
		fmt.Printf("Task deleted: %s (restore with: qzwhatnext task restore %s)\n", taskID, taskID)
		return nil
	},
}

var restoreCmd = &cobra.Command{
	Use:   "restore [id]",
	Short: "Bring a soft-deleted task back",
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

		err = app.TaskHandler.Restore(cmd.Context(), commands.RestoreTaskCommand{
			UserID: userID,
			TaskID: taskID,
		})
		if err != nil {
			return fmt.Errorf("failed to restore task: %w", err)
		}
		fmt.Printf("Task restored: %s\n", taskID)
		return nil
	},
}

var purgeCmd = &cobra.Command{
	Use:   "purge [id]",
	Short: "Remove a task irreversibly",
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

		err = app.TaskHandler.Purge(cmd.Context(), commands.PurgeTaskCommand{
			UserID: userID,
			TaskID: taskID,
		})
		if err != nil {
			return fmt.Errorf("failed to purge task: %w", err)
		}
		fmt.Printf("Task purged: %s\n", taskID)
		return nil
	},
}
