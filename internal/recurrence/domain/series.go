package domain

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	shareddomain "github.com/qzwhatnext/qzwhatnext/internal/shared/domain"
	taskdomain "github.com/qzwhatnext/qzwhatnext/internal/tasks/domain"
)

var (
	ErrEmptySeriesTitle = errors.New("series title template cannot be empty")
	ErrSeriesNotFound   = errors.New("recurring series not found")
	ErrBlockNotFound    = errors.New("recurring time block not found")
)

// TaskSeries is a recurring task template. Occurrences materialize as
// ordinary tasks keyed by (user, series, occurrence start). Default
// semantics are habit / non-accumulating: at most one open occurrence.
type TaskSeries struct {
	shareddomain.BaseAggregateRoot
	userID          uuid.UUID
	titleTemplate   string
	notesTemplate   string
	durationDefault int // minutes
	categoryDefault taskdomain.Category
	preset          Preset
	aiExcluded      bool
	anchor          time.Time // dtstart for the recurrence rule
	deletedAt       *time.Time
}

// NewTaskSeries creates a recurring task series.
func NewTaskSeries(userID uuid.UUID, title, notes string, durationMinutes int, category taskdomain.Category, preset Preset, aiExcluded bool) (*TaskSeries, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, ErrEmptySeriesTitle
	}
	if err := preset.Validate(); err != nil {
		return nil, err
	}
	if durationMinutes == 0 {
		durationMinutes = taskdomain.DefaultDurationMinutes
	}
	if category == "" {
		category = taskdomain.CategoryUnknown
	}
	return &TaskSeries{
		BaseAggregateRoot: shareddomain.NewBaseAggregateRoot(),
		userID:            userID,
		titleTemplate:     title,
		notesTemplate:     notes,
		durationDefault:   durationMinutes,
		categoryDefault:   category,
		preset:            preset,
		aiExcluded:        aiExcluded,
		anchor:            time.Now().UTC(),
	}, nil
}

// RehydrateTaskSeries reconstructs a series from persistence.
func RehydrateTaskSeries(
	id, userID uuid.UUID,
	title, notes string,
	durationMinutes int,
	category taskdomain.Category,
	preset Preset,
	aiExcluded bool,
	anchor time.Time,
	deletedAt *time.Time,
	createdAt, updatedAt time.Time,
) *TaskSeries {
	return &TaskSeries{
		BaseAggregateRoot: shareddomain.RehydrateBaseAggregateRoot(shareddomain.RehydrateBaseEntity(id, createdAt, updatedAt)),
		userID:            userID,
		titleTemplate:     title,
		notesTemplate:     notes,
		durationDefault:   durationMinutes,
		categoryDefault:   category,
		preset:            preset,
		aiExcluded:        aiExcluded,
		anchor:            anchor,
		deletedAt:         deletedAt,
	}
}

func (s *TaskSeries) UserID() uuid.UUID                     { return s.userID }
func (s *TaskSeries) TitleTemplate() string                 { return s.titleTemplate }
func (s *TaskSeries) NotesTemplate() string                 { return s.notesTemplate }
func (s *TaskSeries) DurationDefault() int                  { return s.durationDefault }
func (s *TaskSeries) CategoryDefault() taskdomain.Category  { return s.categoryDefault }
func (s *TaskSeries) Preset() Preset                        { return s.preset }
func (s *TaskSeries) AIExcluded() bool                      { return s.aiExcluded }
func (s *TaskSeries) Anchor() time.Time                     { return s.anchor }
func (s *TaskSeries) DeletedAt() *time.Time                 { return s.deletedAt }
func (s *TaskSeries) IsDeleted() bool                       { return s.deletedAt != nil }

// Delete soft-deletes the series; existing occurrences are untouched.
func (s *TaskSeries) Delete() {
	if s.deletedAt != nil {
		return
	}
	now := time.Now().UTC()
	s.deletedAt = &now
	s.Touch()
}

// Restore clears the soft-delete marker.
func (s *TaskSeries) Restore() {
	if s.deletedAt == nil {
		return
	}
	s.deletedAt = nil
	s.Touch()
}

// MaterializeOccurrence builds the concrete task for one occurrence. The
// task inherits ai_excluded from the series and carries the recurrence
// linkage for dedupe.
func (s *TaskSeries) MaterializeOccurrence(occ Occurrence) (*taskdomain.Task, error) {
	seriesID := s.ID()
	start := occ.Start
	windowEnd := occ.WindowEnd
	return taskdomain.NewTask(s.userID, s.titleTemplate, taskdomain.NewTaskParams{
		Notes:             s.notesTemplate,
		EstimatedDuration: s.durationDefault,
		Category:          s.categoryDefault,
		AIExcluded:        s.aiExcluded,
		SeriesID:          &seriesID,
		OccurrenceStart:   &start,
		FlexWindow: &taskdomain.FlexibilityWindow{
			EarliestStart: start,
			LatestEnd:     windowEnd,
		},
	})
}

// TimeBlock is a recurring reserved interval (a standing commitment).
// It is never a schedulable task; the availability builder subtracts it.
type TimeBlock struct {
	shareddomain.BaseAggregateRoot
	userID          uuid.UUID
	title           string
	preset          Preset
	durationMinutes int
	calendarEventID *string // external recurring master, when linked
	deletedAt       *time.Time
}

// NewTimeBlock creates a recurring reserved block.
func NewTimeBlock(userID uuid.UUID, title string, preset Preset, durationMinutes int) (*TimeBlock, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, ErrEmptySeriesTitle
	}
	if err := preset.Validate(); err != nil {
		return nil, err
	}
	if durationMinutes <= 0 {
		durationMinutes = 60
	}
	return &TimeBlock{
		BaseAggregateRoot: shareddomain.NewBaseAggregateRoot(),
		userID:            userID,
		title:             title,
		preset:            preset,
		durationMinutes:   durationMinutes,
	}, nil
}

// RehydrateTimeBlock reconstructs a time block from persistence.
func RehydrateTimeBlock(
	id, userID uuid.UUID,
	title string,
	preset Preset,
	durationMinutes int,
	calendarEventID *string,
	deletedAt *time.Time,
	createdAt, updatedAt time.Time,
) *TimeBlock {
	return &TimeBlock{
		BaseAggregateRoot: shareddomain.RehydrateBaseAggregateRoot(shareddomain.RehydrateBaseEntity(id, createdAt, updatedAt)),
		userID:            userID,
		title:             title,
		preset:            preset,
		durationMinutes:   durationMinutes,
		calendarEventID:   calendarEventID,
		deletedAt:         deletedAt,
	}
}

func (b *TimeBlock) UserID() uuid.UUID        { return b.userID }
func (b *TimeBlock) Title() string            { return b.title }
func (b *TimeBlock) Preset() Preset           { return b.preset }
func (b *TimeBlock) DurationMinutes() int     { return b.durationMinutes }
func (b *TimeBlock) CalendarEventID() *string { return b.calendarEventID }
func (b *TimeBlock) DeletedAt() *time.Time    { return b.deletedAt }
func (b *TimeBlock) IsDeleted() bool          { return b.deletedAt != nil }

// LinkCalendarEvent records the external recurring master event.
func (b *TimeBlock) LinkCalendarEvent(eventID string) {
	b.calendarEventID = &eventID
	b.Touch()
}

// Delete soft-deletes the time block.
func (b *TimeBlock) Delete() {
	if b.deletedAt != nil {
		return
	}
	now := time.Now().UTC()
	b.deletedAt = &now
	b.Touch()
}

// ReservedIntervals expands the block into concrete reserved intervals
// overlapping [from, to).
func (b *TimeBlock) ReservedIntervals(from, to time.Time, loc *time.Location) ([][2]time.Time, error) {
	occs, err := b.preset.OccurrencesBetween(b.CreatedAt(), from, to, loc)
	if err != nil {
		return nil, err
	}
	duration := time.Duration(b.durationMinutes) * time.Minute
	out := make([][2]time.Time, 0, len(occs))
	for _, occ := range occs {
		out = append(out, [2]time.Time{occ.Start, occ.Start.Add(duration)})
	}
	return out, nil
}

// SeriesRepository persists recurring task series.
type SeriesRepository interface {
	Save(ctx context.Context, series *TaskSeries) error
	FindByID(ctx context.Context, userID, id uuid.UUID) (*TaskSeries, error)
	ListActive(ctx context.Context, userID uuid.UUID) ([]*TaskSeries, error)
}

// TimeBlockRepository persists recurring time blocks.
type TimeBlockRepository interface {
	Save(ctx context.Context, block *TimeBlock) error
	FindByID(ctx context.Context, userID, id uuid.UUID) (*TimeBlock, error)
	ListActive(ctx context.Context, userID uuid.UUID) ([]*TimeBlock, error)
}
