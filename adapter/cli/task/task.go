// Package task contains the task command group.
package task

import (
	"github.com/spf13/cobra"
)

// Cmd is the task command group.
var Cmd = &cobra.Command{
	Use:   "task",
	Short: "Manage tasks",
	Long:  `Add, list, complete and manage your tasks.`,
}

func init() {
	Cmd.AddCommand(addCmd)
	Cmd.AddCommand(addSmartCmd)
	Cmd.AddCommand(listCmd)
	Cmd.AddCommand(showCmd)
	Cmd.AddCommand(completeCmd)
	Cmd.AddCommand(deleteCmd)
	Cmd.AddCommand(restoreCmd)
	Cmd.AddCommand(purgeCmd)
}
