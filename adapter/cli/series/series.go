// Package series contains the recurring series and time block command
// groups.
package series

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/qzwhatnext/qzwhatnext/internal/recurrence/domain"
)

// Cmd is the series command group.
var Cmd = &cobra.Command{
	Use:   "series",
	Short: "Manage recurring task series",
	Long:  `Recurring series materialize into tasks ahead of each rebuild window.`,
}

func init() {
	Cmd.AddCommand(addCmd)
	Cmd.AddCommand(listCmd)
	Cmd.AddCommand(deleteCmd)
}

var weekdayNames = map[string]time.Weekday{
	"mon": time.Monday,
	"tue": time.Tuesday,
	"wed": time.Wednesday,
	"thu": time.Thursday,
	"fri": time.Friday,
	"sat": time.Saturday,
	"sun": time.Sunday,
}

func parseWeekdays(names []string) ([]time.Weekday, error) {
	var days []time.Weekday
	for _, name := range names {
		day, ok := weekdayNames[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			return nil, fmt.Errorf("unknown weekday %q (use mon..sun)", name)
		}
		days = append(days, day)
	}
	return days, nil
}

func buildPreset(freq string, interval int, days []string, count int, window string) (domain.Preset, error) {
	weekdays, err := parseWeekdays(days)
	if err != nil {
		return domain.Preset{}, err
	}
	preset := domain.Preset{
		Frequency:      domain.Frequency(strings.ToLower(freq)),
		Interval:       interval,
		ByWeekday:      weekdays,
		CountPerPeriod: count,
		Window:         domain.TimeOfDayWindow(strings.ToLower(window)),
	}
	if err := preset.Validate(); err != nil {
		return domain.Preset{}, err
	}
	return preset, nil
}
