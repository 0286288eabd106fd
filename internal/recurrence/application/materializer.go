// Package application contains the recurring series materializer.
package application

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	auditapp "github.com/qzwhatnext/qzwhatnext/internal/audit/application"
	auditdomain "github.com/qzwhatnext/qzwhatnext/internal/audit/domain"
	"github.com/qzwhatnext/qzwhatnext/internal/recurrence/domain"
	taskdomain "github.com/qzwhatnext/qzwhatnext/internal/tasks/domain"
)

// Materializer rolls recurring series forward. Habit semantics: at most
// one open occurrence per series; an open occurrence whose window has
// passed is flipped to missed; exactly the next upcoming occurrence is
// materialized. Re-running within the same horizon creates nothing new.
type Materializer struct {
	series domain.SeriesRepository
	tasks  taskdomain.TaskRepository
	audit  *auditapp.Emitter
	logger *slog.Logger
}

// NewMaterializer creates a materializer.
func NewMaterializer(series domain.SeriesRepository, tasks taskdomain.TaskRepository, audit *auditapp.Emitter, logger *slog.Logger) *Materializer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Materializer{series: series, tasks: tasks, audit: audit, logger: logger}
}

// Result summarizes one materializer run.
type Result struct {
	Missed       []uuid.UUID
	Materialized []uuid.UUID
}

// Run processes every active series of the user against the horizon
// [now, now+horizon). loc is the user's timezone.
func (m *Materializer) Run(ctx context.Context, userID uuid.UUID, now time.Time, horizon time.Duration, loc *time.Location) (*Result, error) {
	result := &Result{}

	seriesList, err := m.series.ListActive(ctx, userID)
	if err != nil {
		return nil, err
	}

	for _, series := range seriesList {
		if err := m.rollForward(ctx, series, now, horizon, loc, result); err != nil {
			return nil, err
		}
	}
	return result, nil
}

func (m *Materializer) rollForward(ctx context.Context, series *domain.TaskSeries, now time.Time, horizon time.Duration, loc *time.Location, result *Result) error {
	open, err := m.tasks.ListOpenBySeries(ctx, series.UserID(), series.ID())
	if err != nil {
		return err
	}

	// Flip open occurrences whose completion window has passed.
	openRemaining := 0
	for _, task := range open {
		windowEnd := occurrenceWindowEnd(task, loc)
		if windowEnd.After(now) {
			openRemaining++
			continue
		}
		if err := task.MarkMissed(); err != nil {
			return err
		}
		if err := m.tasks.Save(ctx, task); err != nil {
			return err
		}
		m.audit.Emit(series.UserID(), auditdomain.EventScheduleUpdated, task.ID(), "task", auditdomain.Details{
			"action":    "occurrence_missed",
			"series_id": series.ID().String(),
		})
		result.Missed = append(result.Missed, task.ID())
	}

	// One open occurrence at a time.
	if openRemaining > 0 {
		return nil
	}

	occs, err := series.Preset().OccurrencesBetween(series.Anchor(), now, now.Add(horizon), loc)
	if err != nil {
		return err
	}
	for _, occ := range occs {
		if !occ.WindowEnd.After(now) {
			continue
		}
		existing, err := m.tasks.FindByOccurrence(ctx, series.UserID(), series.ID(), occ.Start)
		if err == nil {
			if existing.IsOpen() {
				return nil
			}
			// Already completed or missed; try the next occurrence.
			continue
		}
		if !errors.Is(err, taskdomain.ErrTaskNotFound) {
			return err
		}

		task, err := series.MaterializeOccurrence(occ)
		if err != nil {
			return err
		}
		if err := m.tasks.Save(ctx, task); err != nil {
			if errors.Is(err, taskdomain.ErrDuplicateTask) {
				// Concurrent materialization won the race.
				return nil
			}
			return err
		}
		m.audit.Emit(series.UserID(), auditdomain.EventTaskImported, task.ID(), "task", auditdomain.Details{
			"action":           "materialized",
			"series_id":        series.ID().String(),
			"occurrence_start": occ.Start.UTC().Format(time.RFC3339),
		})
		result.Materialized = append(result.Materialized, task.ID())
		return nil
	}

	// No occurrence fires within the horizon: nothing to do.
	return nil
}

// occurrenceWindowEnd recovers the completion window of a materialized
// occurrence. The flexibility window carries it; tasks without one fall
// back to the end of the occurrence's local day.
func occurrenceWindowEnd(task *taskdomain.Task, loc *time.Location) time.Time {
	if w := task.FlexWindow(); w != nil {
		return w.LatestEnd
	}
	start := task.OccurrenceStart()
	if start == nil {
		return task.CreatedAt().AddDate(0, 0, 1)
	}
	local := start.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc).AddDate(0, 0, 1)
}
