package schedule

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/qzwhatnext/qzwhatnext/adapter/cli"
)

var showDays int

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show scheduled blocks in the coming days",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := cli.RequireApp()
		if err != nil {
			return err
		}
		userID, err := app.RequireUser()
		if err != nil {
			return err
		}

		days := showDays
		if days == 0 {
			days = app.HorizonDays
		}
		now := time.Now()
		blocks, err := app.Blocks.ListInWindow(cmd.Context(), userID, now, now.AddDate(0, 0, days))
		if err != nil {
			return fmt.Errorf("failed to load schedule: %w", err)
		}
		if len(blocks) == 0 {
			fmt.Println("Nothing scheduled. Run: qzwhatnext schedule rebuild")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "START\tEND\tTASK\tFLAGS")
		lastDay := ""
		for _, b := range blocks {
			day := b.Start().Format("Mon 2006-01-02")
			if day != lastDay {
				fmt.Fprintf(w, "%s\t\t\t\n", day)
				lastDay = day
			}
			var flags []string
			if b.Pinned() {
				flags = append(flags, "pinned")
			}
			if b.SyncPending() {
				flags = append(flags, "sync-pending")
			}
			title := b.TaskID().String()
			if t, err := app.Tasks.FindByID(cmd.Context(), userID, b.TaskID()); err == nil {
				title = t.Title()
			}
			fmt.Fprintf(w, "  %s\t%s\t%s\t%s\n",
				b.Start().Format("15:04"),
				b.End().Format("15:04"),
				title,
				joinFlags(flags),
			)
		}
		return w.Flush()
	},
}

func joinFlags(flags []string) string {
	if len(flags) == 0 {
		return ""
	}
	out := flags[0]
	for _, f := range flags[1:] {
		out += "," + f
	}
	return out
}

func init() {
	showCmd.Flags().IntVar(&showDays, "days", 0, "window length in days (defaults to the configured horizon)")
}
