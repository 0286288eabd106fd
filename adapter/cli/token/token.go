// Package token contains the automation token command group.
package token

import (
	"fmt"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/qzwhatnext/qzwhatnext/adapter/cli"
)

// Cmd is the token command group.
var Cmd = &cobra.Command{
	Use:   "token",
	Short: "Manage automation tokens",
	Long:  `Automation tokens let email hooks and other integrations create tasks on your behalf.`,
}

var issueLabel string

var issueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Issue a new automation token",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := cli.RequireApp()
		if err != nil {
			return err
		}
		userID, err := app.RequireUser()
		if err != nil {
			return err
		}

		issued, secret, err := app.Identity.IssueToken(cmd.Context(), userID, issueLabel)
		if err != nil {
			return fmt.Errorf("failed to issue token: %w", err)
		}
		fmt.Printf("Token issued: %s\n", issued.ID())
		fmt.Printf("  label:  %s\n", issued.Label())
		fmt.Printf("  secret: %s\n", secret)
		fmt.Println("\nStore the secret now; it is not shown again.")
		return nil
	},
}

var revokeCmd = &cobra.Command{
	Use:   "revoke [id]",
	Short: "Revoke an automation token",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := cli.RequireApp()
		if err != nil {
			return err
		}
		tokenID, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid token id: %w", err)
		}
		if err := app.Identity.RevokeToken(cmd.Context(), tokenID); err != nil {
			return fmt.Errorf("failed to revoke token: %w", err)
		}
		fmt.Printf("Token revoked: %s\n", tokenID)
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List your automation tokens",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := cli.RequireApp()
		if err != nil {
			return err
		}
		userID, err := app.RequireUser()
		if err != nil {
			return err
		}

		tokens, err := app.Tokens.ListByUser(cmd.Context(), userID)
		if err != nil {
			return fmt.Errorf("failed to list tokens: %w", err)
		}
		if len(tokens) == 0 {
			fmt.Println("No tokens.")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tLABEL\tPREFIX\tSTATUS\tLAST USED")
		for _, t := range tokens {
			status := "active"
			if t.Revoked() {
				status = "revoked"
			}
			lastUsed := "-"
			if t.LastUsedAt() != nil {
				lastUsed = t.LastUsedAt().Format("2006-01-02 15:04")
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", t.ID(), t.Label(), t.Prefix(), status, lastUsed)
		}
		return w.Flush()
	},
}

func init() {
	issueCmd.Flags().StringVar(&issueLabel, "label", "", "what this token is for")
	Cmd.AddCommand(issueCmd)
	Cmd.AddCommand(revokeCmd)
	Cmd.AddCommand(listCmd)
}
