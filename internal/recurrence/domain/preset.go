// Package domain contains recurring series: the structured recurrence
// preset, the task series and reserved time blocks it produces, and the
// time-of-day windows occurrences land in.
package domain

import (
	"fmt"
	"time"

	"github.com/teambition/rrule-go"

	shareddomain "github.com/qzwhatnext/qzwhatnext/internal/shared/domain"
)

// Frequency is the recurrence cadence.
type Frequency string

const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
	FrequencyYearly  Frequency = "yearly"
)

// TimeOfDayWindow names a part of the day an occurrence should land in.
type TimeOfDayWindow string

const (
	WindowNone      TimeOfDayWindow = ""
	WindowWakeUp    TimeOfDayWindow = "wake_up"
	WindowMorning   TimeOfDayWindow = "morning"
	WindowAfternoon TimeOfDayWindow = "afternoon"
	WindowEvening   TimeOfDayWindow = "evening"
	WindowNight     TimeOfDayWindow = "night"
)

type windowBounds struct {
	startMin int // minutes after local midnight
	endMin   int // may exceed 24h for windows crossing midnight
}

var windowTable = map[TimeOfDayWindow]windowBounds{
	WindowWakeUp:    {startMin: 5 * 60, endMin: 6*60 + 30},
	WindowMorning:   {startMin: 6*60 + 30, endMin: 11 * 60},
	WindowAfternoon: {startMin: 11 * 60, endMin: 17 * 60},
	WindowEvening:   {startMin: 17 * 60, endMin: 21 * 60},
	WindowNight:     {startMin: 21 * 60, endMin: 26 * 60},
}

// Preset is a structured recurrence rule. It compiles to an RRULE for
// occurrence expansion.
type Preset struct {
	Frequency      Frequency
	Interval       int            // every N periods; 0 means 1
	ByWeekday      []time.Weekday // weekly only
	CountPerPeriod int            // N occurrences per period, spread across days
	Window         TimeOfDayWindow
}

// Validate checks the preset's internal consistency.
func (p Preset) Validate() error {
	switch p.Frequency {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly, FrequencyYearly:
	default:
		return shareddomain.ConstraintViolation(fmt.Sprintf("unknown recurrence frequency %q", p.Frequency))
	}
	if p.Interval < 0 {
		return shareddomain.ConstraintViolation("recurrence interval cannot be negative")
	}
	if p.CountPerPeriod < 0 {
		return shareddomain.ConstraintViolation("count per period cannot be negative")
	}
	if len(p.ByWeekday) > 0 && p.Frequency != FrequencyWeekly {
		return shareddomain.ConstraintViolation("by_weekday applies only to weekly recurrence")
	}
	if p.Window != WindowNone {
		if _, ok := windowTable[p.Window]; !ok {
			return shareddomain.ConstraintViolation(fmt.Sprintf("unknown time-of-day window %q", p.Window))
		}
	}
	return nil
}

var rruleFreq = map[Frequency]rrule.Frequency{
	FrequencyDaily:   rrule.DAILY,
	FrequencyWeekly:  rrule.WEEKLY,
	FrequencyMonthly: rrule.MONTHLY,
	FrequencyYearly:  rrule.YEARLY,
}

var rruleWeekday = map[time.Weekday]rrule.Weekday{
	time.Monday:    rrule.MO,
	time.Tuesday:   rrule.TU,
	time.Wednesday: rrule.WE,
	time.Thursday:  rrule.TH,
	time.Friday:    rrule.FR,
	time.Saturday:  rrule.SA,
	time.Sunday:    rrule.SU,
}

// spreadWeekdays picks n days evenly across the week for weekly presets
// that specify a count but no explicit days.
var spreadWeekdays = [][]rrule.Weekday{
	nil,
	{rrule.MO},
	{rrule.MO, rrule.TH},
	{rrule.MO, rrule.WE, rrule.FR},
	{rrule.MO, rrule.TU, rrule.TH, rrule.SA},
	{rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR},
	{rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR, rrule.SA},
	{rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR, rrule.SA, rrule.SU},
}

// compile builds the RRULE anchored at dtstart.
func (p Preset) compile(dtstart time.Time) (*rrule.RRule, error) {
	interval := p.Interval
	if interval == 0 {
		interval = 1
	}

	opt := rrule.ROption{
		Freq:     rruleFreq[p.Frequency],
		Interval: interval,
		Dtstart:  dtstart,
	}
	if p.Frequency == FrequencyWeekly {
		switch {
		case len(p.ByWeekday) > 0:
			for _, wd := range p.ByWeekday {
				opt.Byweekday = append(opt.Byweekday, rruleWeekday[wd])
			}
		case p.CountPerPeriod > 0 && p.CountPerPeriod < len(spreadWeekdays):
			opt.Byweekday = spreadWeekdays[p.CountPerPeriod]
		case p.CountPerPeriod >= len(spreadWeekdays):
			opt.Byweekday = spreadWeekdays[7]
		}
	}
	return rrule.NewRRule(opt)
}

// Occurrence is one concrete firing of a series: the identity instant and
// the local window the occurrence must be completed in.
type Occurrence struct {
	Start     time.Time // identity; part of the dedupe key
	WindowEnd time.Time // open occurrences past this instant are missed
}

// OccurrencesBetween expands the preset into occurrences whose windows
// overlap [from, to). dtstart anchors the rule; loc is the user's
// timezone, which fixes day boundaries and time-of-day windows.
func (p Preset) OccurrencesBetween(dtstart, from, to time.Time, loc *time.Location) ([]Occurrence, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	rule, err := p.compile(dtstart.In(loc))
	if err != nil {
		return nil, fmt.Errorf("failed to compile recurrence rule: %w", err)
	}

	// Widen the query by a day either side so windows that cross the
	// range boundary are not dropped.
	instants := rule.Between(from.Add(-24*time.Hour), to.Add(24*time.Hour), true)

	var out []Occurrence
	for _, instant := range instants {
		occ := p.occurrenceAt(instant, loc)
		if occ.WindowEnd.After(from) && occ.Start.Before(to) {
			out = append(out, occ)
		}
	}
	return out, nil
}

// occurrenceAt resolves an RRULE instant to an occurrence with its local
// completion window.
func (p Preset) occurrenceAt(instant time.Time, loc *time.Location) Occurrence {
	local := instant.In(loc)
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)

	if bounds, ok := windowTable[p.Window]; ok {
		return Occurrence{
			Start:     midnight.Add(time.Duration(bounds.startMin) * time.Minute),
			WindowEnd: midnight.Add(time.Duration(bounds.endMin) * time.Minute),
		}
	}
	// No window: the whole local day.
	return Occurrence{
		Start:     midnight,
		WindowEnd: midnight.AddDate(0, 0, 1),
	}
}
