package series

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/qzwhatnext/qzwhatnext/adapter/cli"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List active series",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := cli.RequireApp()
		if err != nil {
			return err
		}
		userID, err := app.RequireUser()
		if err != nil {
			return err
		}

		active, err := app.Series.ListActive(cmd.Context(), userID)
		if err != nil {
			return fmt.Errorf("failed to list series: %w", err)
		}
		if len(active) == 0 {
			fmt.Println("No active series.")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tFREQ\tWINDOW\tDUR\tCATEGORY\tTITLE")
		for _, s := range active {
			preset := s.Preset()
			window := string(preset.Window)
			if window == "" {
				window = "-"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%dm\t%s\t%s\n",
				s.ID(), preset.Frequency, window, s.DurationDefault(), s.CategoryDefault(), s.TitleTemplate())
		}
		return w.Flush()
	},
}
