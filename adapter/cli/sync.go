package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Reconcile scheduled blocks with the calendar",
	Long: `Run one calendar sync pass: push local blocks, import external
edits on managed events and drop blocks whose events were deleted. When
the pass imports changes a rebuild follows.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := RequireApp()
		if err != nil {
			return err
		}
		userID, err := app.RequireUser()
		if err != nil {
			return err
		}

		result, err := app.Synchronizer.Sync(cmd.Context(), userID, time.Now())
		if err != nil {
			return fmt.Errorf("sync failed: %w", err)
		}

		fmt.Println("Sync complete")
		fmt.Printf("  pushed:         %d\n", result.Pushed)
		fmt.Printf("  imported:       %d\n", result.Imported)
		fmt.Printf("  blocks removed: %d\n", result.BlocksRemoved)
		fmt.Printf("  events removed: %d\n", result.EventsRemoved)
		if result.Conflicts > 0 {
			fmt.Printf("  conflicts:      %d (flagged sync-pending)\n", result.Conflicts)
		}

		if result.Dirty() {
			if _, _, err := app.Coordinator.Trigger(cmd.Context(), userID, "calendar_change"); err != nil {
				return fmt.Errorf("sync imported changes but rebuild failed: %w", err)
			}
			fmt.Println("Schedule rebuilt to absorb imported changes.")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
}
