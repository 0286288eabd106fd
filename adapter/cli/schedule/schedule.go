// Package schedule contains the schedule command group.
package schedule

import (
	"github.com/spf13/cobra"
)

// Cmd is the schedule command group.
var Cmd = &cobra.Command{
	Use:   "schedule",
	Short: "Rebuild and inspect the schedule",
}

func init() {
	Cmd.AddCommand(rebuildCmd)
	Cmd.AddCommand(showCmd)
}
