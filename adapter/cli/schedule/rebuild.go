package schedule

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/qzwhatnext/qzwhatnext/adapter/cli"
	"github.com/qzwhatnext/qzwhatnext/internal/scheduling/application"
)

var rebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Run a full schedule rebuild now",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := cli.RequireApp()
		if err != nil {
			return err
		}
		userID, err := app.RequireUser()
		if err != nil {
			return err
		}

		result, ran, err := app.Coordinator.Trigger(cmd.Context(), userID, "manual")
		if err != nil {
			if errors.Is(err, application.ErrRebuildLocked) {
				return fmt.Errorf("a rebuild is already running for this user, try again shortly")
			}
			return fmt.Errorf("rebuild failed: %w", err)
		}
		if !ran {
			fmt.Println("Rebuild already in flight; your request was folded into it.")
			return nil
		}

		fmt.Printf("Schedule rebuilt (rebuild %s)\n", result.RebuildID)
		fmt.Printf("  placed:     %d\n", result.Placed)
		fmt.Printf("  overflowed: %d\n", len(result.Overflowed))
		for _, of := range result.Overflowed {
			fmt.Printf("    %s (%s)\n", of.TaskID, of.Reason)
		}
		return nil
	},
}
