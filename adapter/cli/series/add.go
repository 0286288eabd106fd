package series

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/qzwhatnext/qzwhatnext/adapter/cli"
	"github.com/qzwhatnext/qzwhatnext/internal/recurrence/domain"
	taskdomain "github.com/qzwhatnext/qzwhatnext/internal/tasks/domain"
)

var (
	addNotes    string
	addCategory string
	addDuration int
	addFreq     string
	addInterval int
	addDays     []string
	addCount    int
	addWindow   string
	addExclude  bool
)

var addCmd = &cobra.Command{
	Use:   "add [title]",
	Short: "Add a recurring task series",
	Long: `Add a recurring task series. Occurrences materialize as tasks
ahead of each rebuild window.

Examples:
  qzwhatnext series add "Water the plants" --freq daily --window morning
  qzwhatnext series add "Gym" --freq weekly --count 3 --duration 60
  qzwhatnext series add "Review finances" --freq monthly`,
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

		preset, err := buildPreset(addFreq, addInterval, addDays, addCount, addWindow)
		if err != nil {
			return err
		}
		created, err := domain.NewTaskSeries(
			userID,
			args[0],
			addNotes,
			addDuration,
			taskdomain.ParseCategory(addCategory),
			preset,
			addExclude,
		)
		if err != nil {
			return err
		}
		if err := app.Series.Save(cmd.Context(), created); err != nil {
			return fmt.Errorf("failed to save series: %w", err)
		}

		fmt.Printf("Series added: %s\n", created.ID())
		fmt.Printf("  title: %s\n", created.TitleTemplate())
		fmt.Printf("  recurrence: %s\n", addFreq)
		return nil
	},
}

func init() {
	addCmd.Flags().StringVar(&addNotes, "notes", "", "notes template for materialized tasks")
	addCmd.Flags().StringVar(&addCategory, "category", "", "category for materialized tasks")
	addCmd.Flags().IntVarP(&addDuration, "duration", "d", 0, "default duration in minutes")
	addCmd.Flags().StringVar(&addFreq, "freq", "daily", "frequency (daily, weekly, monthly, yearly)")
	addCmd.Flags().IntVar(&addInterval, "interval", 0, "every N periods")
	addCmd.Flags().StringSliceVar(&addDays, "days", nil, "weekdays for weekly recurrence (mon..sun)")
	addCmd.Flags().IntVar(&addCount, "count", 0, "occurrences per period")
	addCmd.Flags().StringVar(&addWindow, "window", "", "time-of-day window (wake_up, morning, afternoon, evening, night)")
	addCmd.Flags().BoolVar(&addExclude, "exclude", false, "withhold materialized tasks from inference")
}
