package series

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/qzwhatnext/qzwhatnext/adapter/cli"
)

var deleteCmd = &cobra.Command{
	Use:   "delete [id]",
	Short: "Stop a series from producing new occurrences",
	Long: `Soft-delete a series. Already materialized tasks stay; no new
occurrences are produced.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := cli.RequireApp()
		if err != nil {
			return err
		}
		userID, err := app.RequireUser()
		if err != nil {
			return err
		}
		seriesID, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid series id: %w", err)
		}

		s, err := app.Series.FindByID(cmd.Context(), userID, seriesID)
		if err != nil {
			return err
		}
		s.Delete()
		if err := app.Series.Save(cmd.Context(), s); err != nil {
			return fmt.Errorf("failed to delete series: %w", err)
		}
		fmt.Printf("Series deleted: %s\n", seriesID)
		return nil
	},
}
