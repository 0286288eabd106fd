package series

import (
	"fmt"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/qzwhatnext/qzwhatnext/adapter/cli"
	"github.com/qzwhatnext/qzwhatnext/internal/recurrence/domain"
)

// TimeBlockCmd is the timeblock command group. Recurring time blocks
// reserve calendar time without materializing tasks.
var TimeBlockCmd = &cobra.Command{
	Use:   "timeblock",
	Short: "Manage recurring reserved time blocks",
}

var (
	tbDuration int
	tbFreq     string
	tbInterval int
	tbDays     []string
	tbCount    int
	tbWindow   string
)

var tbAddCmd = &cobra.Command{
	Use:   "add [title]",
	Short: "Reserve a recurring block of time",
	Long: `Reserve a recurring block of time. Reserved intervals count as
busy during rebuilds; no task is created.

Example:
  qzwhatnext timeblock add "Deep work" --freq daily --window morning --duration 90`,
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

		preset, err := buildPreset(tbFreq, tbInterval, tbDays, tbCount, tbWindow)
		if err != nil {
			return err
		}
		created, err := domain.NewTimeBlock(userID, args[0], preset, tbDuration)
		if err != nil {
			return err
		}
		if err := app.TimeBlocks.Save(cmd.Context(), created); err != nil {
			return fmt.Errorf("failed to save time block: %w", err)
		}
		fmt.Printf("Time block added: %s\n", created.ID())
		return nil
	},
}

var tbListCmd = &cobra.Command{
	Use:   "list",
	Short: "List active time blocks",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := cli.RequireApp()
		if err != nil {
			return err
		}
		userID, err := app.RequireUser()
		if err != nil {
			return err
		}

		active, err := app.TimeBlocks.ListActive(cmd.Context(), userID)
		if err != nil {
			return fmt.Errorf("failed to list time blocks: %w", err)
		}
		if len(active) == 0 {
			fmt.Println("No active time blocks.")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tFREQ\tWINDOW\tDUR\tTITLE")
		for _, b := range active {
			preset := b.Preset()
			window := string(preset.Window)
			if window == "" {
				window = "-"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%dm\t%s\n",
				b.ID(), preset.Frequency, window, b.DurationMinutes(), b.Title())
		}
		return w.Flush()
	},
}

var tbDeleteCmd = &cobra.Command{
	Use:   "delete [id]",
	Short: "Stop reserving a recurring time block",
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
		blockID, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid time block id: %w", err)
		}

		b, err := app.TimeBlocks.FindByID(cmd.Context(), userID, blockID)
		if err != nil {
			return err
		}
		b.Delete()
		if err := app.TimeBlocks.Save(cmd.Context(), b); err != nil {
			return fmt.Errorf("failed to delete time block: %w", err)
		}
		fmt.Printf("Time block deleted: %s\n", blockID)
		return nil
	},
}

func init() {
	TimeBlockCmd.AddCommand(tbAddCmd)
	TimeBlockCmd.AddCommand(tbListCmd)
	TimeBlockCmd.AddCommand(tbDeleteCmd)

	tbAddCmd.Flags().IntVarP(&tbDuration, "duration", "d", 0, "duration in minutes")
	tbAddCmd.Flags().StringVar(&tbFreq, "freq", "daily", "frequency (daily, weekly, monthly, yearly)")
	tbAddCmd.Flags().IntVar(&tbInterval, "interval", 0, "every N periods")
	tbAddCmd.Flags().StringSliceVar(&tbDays, "days", nil, "weekdays for weekly recurrence (mon..sun)")
	tbAddCmd.Flags().IntVar(&tbCount, "count", 0, "occurrences per period")
	tbAddCmd.Flags().StringVar(&tbWindow, "window", "", "time-of-day window")
}
