// Package user contains the user command group.
package user

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/qzwhatnext/qzwhatnext/adapter/cli"
)

// Cmd is the user command group.
var Cmd = &cobra.Command{
	Use:   "user",
	Short: "Manage accounts",
}

var (
	registerName     string
	registerTimezone string
)

var registerCmd = &cobra.Command{
	Use:   "register [email]",
	Short: "Register a new account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := cli.RequireApp()
		if err != nil {
			return err
		}

		registered, err := app.Identity.Register(cmd.Context(), args[0], registerName, registerTimezone)
		if err != nil {
			return fmt.Errorf("failed to register user: %w", err)
		}
		fmt.Printf("User registered: %s\n", registered.ID())
		fmt.Printf("  email:    %s\n", registered.Email())
		fmt.Printf("  timezone: %s\n", registered.Timezone())
		fmt.Printf("\nSet QZWN_USER_ID=%s to act as this user.\n", registered.ID())
		return nil
	},
}

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the current account",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := cli.RequireApp()
		if err != nil {
			return err
		}
		userID, err := app.RequireUser()
		if err != nil {
			return err
		}

		u, err := app.Identity.GetUser(cmd.Context(), userID)
		if err != nil {
			return err
		}
		fmt.Printf("User %s\n", u.ID())
		fmt.Printf("  email:    %s\n", u.Email())
		fmt.Printf("  name:     %s\n", u.Name())
		fmt.Printf("  timezone: %s\n", u.Timezone())
		return nil
	},
}

func init() {
	registerCmd.Flags().StringVar(&registerName, "name", "", "display name")
	registerCmd.Flags().StringVar(&registerTimezone, "timezone", "", "IANA timezone (defaults to UTC)")
	Cmd.AddCommand(registerCmd)
	Cmd.AddCommand(showCmd)
}
