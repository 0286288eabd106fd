// Package domain contains the task bounded context: the task aggregate,
// its repository contract, the AI-exclusion gate and the dependency graph
// checks applied at write time.
package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	shareddomain "github.com/qzwhatnext/qzwhatnext/internal/shared/domain"
)

var (
	ErrEmptyTitle          = errors.New("task title cannot be empty")
	ErrTaskNotFound        = errors.New("task not found")
	ErrTaskDeleted         = errors.New("task is deleted")
	ErrTaskNotDeleted      = errors.New("task is not deleted")
	ErrTaskAlreadyComplete = errors.New("task is already completed")
	ErrDuplicateTask       = errors.New("task with the same source already exists")
)

// Duration bounds in minutes.
const (
	MinDurationMinutes     = 5
	MaxDurationMinutes     = 600
	DefaultDurationMinutes = 30
)

// Status is the lifecycle state of a task.
type Status string

const (
	StatusOpen      Status = "open"
	StatusCompleted Status = "completed"
	StatusMissed    Status = "missed"
)

// Category is the closed set of task categories.
type Category string

const (
	CategoryWork     Category = "work"
	CategoryChild    Category = "child"
	CategoryFamily   Category = "family"
	CategoryHealth   Category = "health"
	CategoryPersonal Category = "personal"
	CategoryIdeas    Category = "ideas"
	CategoryHome     Category = "home"
	CategoryAdmin    Category = "admin"
	CategoryUnknown  Category = "unknown"
)

// ValidCategories lists every accepted category value.
var ValidCategories = []Category{
	CategoryWork, CategoryChild, CategoryFamily, CategoryHealth,
	CategoryPersonal, CategoryIdeas, CategoryHome, CategoryAdmin,
	CategoryUnknown,
}

// ParseCategory maps a string to a category, defaulting to unknown.
func ParseCategory(s string) Category {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	for _, valid := range ValidCategories {
		if c == valid {
			return c
		}
	}
	return CategoryUnknown
}

// EnergyIntensity is reserved for future placement heuristics; the placer
// ignores it today.
type EnergyIntensity string

const (
	EnergyLow    EnergyIntensity = "low"
	EnergyMedium EnergyIntensity = "medium"
	EnergyHigh   EnergyIntensity = "high"
)

// ParseEnergy maps a string to an energy intensity, defaulting to medium.
func ParseEnergy(s string) EnergyIntensity {
	switch EnergyIntensity(strings.ToLower(strings.TrimSpace(s))) {
	case EnergyLow:
		return EnergyLow
	case EnergyHigh:
		return EnergyHigh
	default:
		return EnergyMedium
	}
}

// LocalDate is a calendar date without a timezone. start_after and due_by
// are user-local dates resolved to instants with the user's timezone at
// rebuild time.
type LocalDate struct {
	Year  int
	Month time.Month
	Day   int
}

// NewLocalDate builds a LocalDate from a time instant interpreted in loc.
func NewLocalDate(t time.Time, loc *time.Location) LocalDate {
	y, m, d := t.In(loc).Date()
	return LocalDate{Year: y, Month: m, Day: d}
}

// ParseLocalDate parses an ISO date string (2006-01-02).
func ParseLocalDate(s string) (LocalDate, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return LocalDate{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return LocalDate{Year: t.Year(), Month: t.Month(), Day: t.Day()}, nil
}

// Midnight resolves the date to local midnight in loc.
func (d LocalDate) Midnight(loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

// EndOfDay resolves the date to the start of the following day in loc.
// Deadlines derived from due_by use this exclusive bound.
func (d LocalDate) EndOfDay(loc *time.Location) time.Time {
	return d.Midnight(loc).AddDate(0, 0, 1)
}

func (d LocalDate) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// IsZero reports whether the date is unset.
func (d LocalDate) IsZero() bool { return d.Year == 0 }

// FlexibilityWindow constrains a task to be fully contained inside
// [EarliestStart, LatestEnd).
type FlexibilityWindow struct {
	EarliestStart time.Time
	LatestEnd     time.Time
}

// SourceRef identifies where an imported task came from. Together with the
// recurrence linkage it forms the dedupe key for create-or-fail writes.
type SourceRef struct {
	Type string
	ID   string
}

// Attributes is the mutable schedule-relevant attribute set of a task.
// It exists so commands and inference can express partial updates.
type Attributes struct {
	Title              *string
	Notes              *string
	Deadline           *time.Time
	ClearDeadline      bool
	StartAfter         *LocalDate
	DueBy              *LocalDate
	EstimatedDuration  *int
	DurationConfidence *float64
	Category           *Category
	Energy             *EnergyIntensity
	RiskScore          *float64
	ImpactScore        *float64
	Dependencies       []uuid.UUID
	FlexWindow         *FlexibilityWindow
}

// Task is the aggregate root for a unit of work to be scheduled.
type Task struct {
	shareddomain.BaseAggregateRoot
	userID             uuid.UUID
	title              string
	notes              string
	status             Status
	deadline           *time.Time
	startAfter         *LocalDate
	dueBy              *LocalDate
	estimatedDuration  int // minutes
	durationConfidence float64
	category           Category
	energy             EnergyIntensity
	riskScore          float64
	impactScore        float64
	dependencies       []uuid.UUID
	flexWindow         *FlexibilityWindow
	aiExcluded         bool
	titleAutoGenerated bool
	manualPriorityLock bool
	userLocked         bool
	manuallyScheduled  bool
	lastTier           int // 0 = never assigned
	source             *SourceRef
	seriesID           *uuid.UUID
	occurrenceStart    *time.Time
	completedAt        *time.Time
	deletedAt          *time.Time
}

// NewTaskParams carries optional fields for task creation. Zero values
// fall back to the documented defaults.
type NewTaskParams struct {
	Notes              string
	Deadline           *time.Time
	StartAfter         *LocalDate
	DueBy              *LocalDate
	EstimatedDuration  int
	DurationConfidence float64
	Category           Category
	Energy             EnergyIntensity
	RiskScore          *float64
	ImpactScore        *float64
	Dependencies       []uuid.UUID
	FlexWindow         *FlexibilityWindow
	AIExcluded         bool
	TitleAutoGenerated bool
	Source             *SourceRef
	SeriesID           *uuid.UUID
	OccurrenceStart    *time.Time
}

// NewTask creates an open task for a user. Defaults: duration 30 minutes,
// category unknown, energy medium, risk and impact 0.3.
func NewTask(userID uuid.UUID, title string, params NewTaskParams) (*Task, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, ErrEmptyTitle
	}

	duration := params.EstimatedDuration
	if duration == 0 {
		duration = DefaultDurationMinutes
	}
	category := params.Category
	if category == "" {
		category = CategoryUnknown
	}
	energy := params.Energy
	if energy == "" {
		energy = EnergyMedium
	}
	risk := 0.3
	if params.RiskScore != nil {
		risk = *params.RiskScore
	}
	impact := 0.3
	if params.ImpactScore != nil {
		impact = *params.ImpactScore
	}

	t := &Task{
		BaseAggregateRoot:  shareddomain.NewBaseAggregateRoot(),
		userID:             userID,
		title:              title,
		notes:              params.Notes,
		status:             StatusOpen,
		deadline:           params.Deadline,
		startAfter:         params.StartAfter,
		dueBy:              params.DueBy,
		estimatedDuration:  duration,
		durationConfidence: params.DurationConfidence,
		category:           category,
		energy:             energy,
		riskScore:          risk,
		impactScore:        impact,
		dependencies:       dedupeIDs(params.Dependencies),
		flexWindow:         params.FlexWindow,
		aiExcluded:         params.AIExcluded,
		titleAutoGenerated: params.TitleAutoGenerated,
		source:             params.Source,
		seriesID:           params.SeriesID,
		occurrenceStart:    params.OccurrenceStart,
	}
	if err := t.validate(); err != nil {
		return nil, err
	}

	t.AddDomainEvent(NewTaskCreatedEvent(t))
	return t, nil
}

func (t *Task) UserID() uuid.UUID              { return t.userID }
func (t *Task) Title() string                  { return t.title }
func (t *Task) Notes() string                  { return t.notes }
func (t *Task) Status() Status                 { return t.status }
func (t *Task) Deadline() *time.Time           { return t.deadline }
func (t *Task) StartAfter() *LocalDate         { return t.startAfter }
func (t *Task) DueBy() *LocalDate              { return t.dueBy }
func (t *Task) EstimatedDuration() int         { return t.estimatedDuration }
func (t *Task) Duration() time.Duration        { return time.Duration(t.estimatedDuration) * time.Minute }
func (t *Task) DurationConfidence() float64    { return t.durationConfidence }
func (t *Task) Category() Category             { return t.category }
func (t *Task) Energy() EnergyIntensity        { return t.energy }
func (t *Task) RiskScore() float64             { return t.riskScore }
func (t *Task) ImpactScore() float64           { return t.impactScore }
func (t *Task) Dependencies() []uuid.UUID      { return t.dependencies }
func (t *Task) FlexWindow() *FlexibilityWindow { return t.flexWindow }
func (t *Task) AIExcluded() bool               { return t.aiExcluded }
func (t *Task) TitleAutoGenerated() bool       { return t.titleAutoGenerated }
func (t *Task) ManualPriorityLocked() bool     { return t.manualPriorityLock }
func (t *Task) UserLocked() bool               { return t.userLocked }
func (t *Task) ManuallyScheduled() bool        { return t.manuallyScheduled }
func (t *Task) LastTier() int                  { return t.lastTier }
func (t *Task) Source() *SourceRef             { return t.source }
func (t *Task) SeriesID() *uuid.UUID           { return t.seriesID }
func (t *Task) OccurrenceStart() *time.Time    { return t.occurrenceStart }
func (t *Task) CompletedAt() *time.Time        { return t.completedAt }
func (t *Task) DeletedAt() *time.Time          { return t.deletedAt }

// IsOpen reports whether the task is still schedulable.
func (t *Task) IsOpen() bool { return t.status == StatusOpen }

// IsDeleted reports whether the task is soft-deleted.
func (t *Task) IsDeleted() bool { return t.deletedAt != nil }

// Apply merges a partial attribute update into the task, re-validating
// the aggregate invariants. Returns the list of changed field names.
func (t *Task) Apply(attrs Attributes) ([]string, error) {
	if t.IsDeleted() {
		return nil, ErrTaskDeleted
	}

	prev := *t
	var changed []string

	if attrs.Title != nil {
		title := strings.TrimSpace(*attrs.Title)
		if title == "" {
			return nil, ErrEmptyTitle
		}
		if title != t.title {
			t.title = title
			changed = append(changed, "title")
		}
	}
	if attrs.Notes != nil && *attrs.Notes != t.notes {
		t.notes = *attrs.Notes
		changed = append(changed, "notes")
	}
	if attrs.ClearDeadline {
		if t.deadline != nil {
			t.deadline = nil
			changed = append(changed, "deadline")
		}
	} else if attrs.Deadline != nil {
		if t.deadline == nil || !t.deadline.Equal(*attrs.Deadline) {
			deadline := *attrs.Deadline
			t.deadline = &deadline
			changed = append(changed, "deadline")
		}
	}
	if attrs.StartAfter != nil && (t.startAfter == nil || *t.startAfter != *attrs.StartAfter) {
		d := *attrs.StartAfter
		t.startAfter = &d
		changed = append(changed, "start_after")
	}
	if attrs.DueBy != nil && (t.dueBy == nil || *t.dueBy != *attrs.DueBy) {
		d := *attrs.DueBy
		t.dueBy = &d
		changed = append(changed, "due_by")
	}
	if attrs.EstimatedDuration != nil && *attrs.EstimatedDuration != t.estimatedDuration {
		t.estimatedDuration = *attrs.EstimatedDuration
		changed = append(changed, "estimated_duration")
	}
	if attrs.DurationConfidence != nil && *attrs.DurationConfidence != t.durationConfidence {
		t.durationConfidence = *attrs.DurationConfidence
		changed = append(changed, "duration_confidence")
	}
	if attrs.Category != nil && *attrs.Category != t.category {
		t.category = *attrs.Category
		changed = append(changed, "category")
	}
	if attrs.Energy != nil && *attrs.Energy != t.energy {
		t.energy = *attrs.Energy
		changed = append(changed, "energy_intensity")
	}
	if attrs.RiskScore != nil && *attrs.RiskScore != t.riskScore {
		t.riskScore = *attrs.RiskScore
		changed = append(changed, "risk_score")
	}
	if attrs.ImpactScore != nil && *attrs.ImpactScore != t.impactScore {
		t.impactScore = *attrs.ImpactScore
		changed = append(changed, "impact_score")
	}
	if attrs.Dependencies != nil {
		t.dependencies = dedupeIDs(attrs.Dependencies)
		changed = append(changed, "dependencies")
	}
	if attrs.FlexWindow != nil {
		w := *attrs.FlexWindow
		t.flexWindow = &w
		changed = append(changed, "flexibility_window")
	}

	if len(changed) == 0 {
		return nil, nil
	}
	if err := t.validate(); err != nil {
		*t = prev
		return nil, err
	}

	t.Touch()
	t.AddDomainEvent(NewTaskUpdatedEvent(t, changed))
	return changed, nil
}

// Complete marks the task completed.
func (t *Task) Complete() error {
	if t.IsDeleted() {
		return ErrTaskDeleted
	}
	if t.status == StatusCompleted {
		return ErrTaskAlreadyComplete
	}
	now := time.Now().UTC()
	t.status = StatusCompleted
	t.completedAt = &now
	t.Touch()
	t.AddDomainEvent(NewTaskCompletedEvent(t))
	return nil
}

// MarkMissed flips an open task to missed. Used by the recurring series
// materializer when an occurrence's window has passed.
func (t *Task) MarkMissed() error {
	if t.status != StatusOpen {
		return fmt.Errorf("cannot miss a %s task", t.status)
	}
	t.status = StatusMissed
	t.Touch()
	t.AddDomainEvent(NewTaskMissedEvent(t))
	return nil
}

// Reopen returns a completed or missed task to the open state.
func (t *Task) Reopen() error {
	if t.IsDeleted() {
		return ErrTaskDeleted
	}
	if t.status == StatusOpen {
		return nil
	}
	t.status = StatusOpen
	t.completedAt = nil
	t.Touch()
	t.AddDomainEvent(NewTaskUpdatedEvent(t, []string{"status"}))
	return nil
}

// Delete soft-deletes the task. Deleting twice is a no-op.
func (t *Task) Delete() {
	if t.deletedAt != nil {
		return
	}
	now := time.Now().UTC()
	t.deletedAt = &now
	t.Touch()
	t.AddDomainEvent(NewTaskDeletedEvent(t))
}

// Restore clears the soft-delete marker.
func (t *Task) Restore() error {
	if t.deletedAt == nil {
		return ErrTaskNotDeleted
	}
	t.deletedAt = nil
	t.Touch()
	t.AddDomainEvent(NewTaskRestoredEvent(t))
	return nil
}

// SetAIExcluded toggles the explicit exclusion flag.
func (t *Task) SetAIExcluded(excluded bool) {
	if t.aiExcluded == excluded {
		return
	}
	t.aiExcluded = excluded
	t.Touch()
	t.AddDomainEvent(NewTaskUpdatedEvent(t, []string{"ai_excluded"}))
}

// LockPriority freezes the governing tier at its last recorded value.
func (t *Task) LockPriority(locked bool) {
	if t.manualPriorityLock == locked {
		return
	}
	t.manualPriorityLock = locked
	t.Touch()
}

// SetUserLocked marks the task as pinned by the user.
func (t *Task) SetUserLocked(locked bool) {
	if t.userLocked == locked {
		return
	}
	t.userLocked = locked
	t.Touch()
}

// SetManuallyScheduled records that the user placed this task by hand.
func (t *Task) SetManuallyScheduled(manual bool) {
	if t.manuallyScheduled == manual {
		return
	}
	t.manuallyScheduled = manual
	t.Touch()
}

// RecordTier stores the governing tier assigned by the last rebuild.
func (t *Task) RecordTier(tier int) {
	if t.lastTier == tier {
		return
	}
	t.lastTier = tier
	t.Touch()
}

func (t *Task) validate() error {
	if t.estimatedDuration < MinDurationMinutes || t.estimatedDuration > MaxDurationMinutes {
		return shareddomain.ConstraintViolation(
			fmt.Sprintf("estimated duration must be between %d and %d minutes, got %d",
				MinDurationMinutes, MaxDurationMinutes, t.estimatedDuration))
	}
	if t.riskScore < 0 || t.riskScore > 1 {
		return shareddomain.ConstraintViolation("risk score must be in [0, 1]")
	}
	if t.impactScore < 0 || t.impactScore > 1 {
		return shareddomain.ConstraintViolation("impact score must be in [0, 1]")
	}
	if t.durationConfidence < 0 || t.durationConfidence > 1 {
		return shareddomain.ConstraintViolation("duration confidence must be in [0, 1]")
	}
	for _, dep := range t.dependencies {
		if dep == t.ID() {
			return shareddomain.ConstraintViolation("task cannot depend on itself")
		}
	}
	if t.startAfter != nil && t.deadline != nil {
		// start_after is a local date; compare conservatively in UTC.
		if t.startAfter.Midnight(time.UTC).After(*t.deadline) {
			return shareddomain.ConstraintViolation("start_after must not be later than deadline")
		}
	}
	if t.flexWindow != nil {
		if !t.flexWindow.EarliestStart.Before(t.flexWindow.LatestEnd) {
			return shareddomain.ConstraintViolation("flexibility window must have earliest_start < latest_end")
		}
		if t.deadline != nil && t.deadline.After(t.flexWindow.LatestEnd) {
			return shareddomain.ConstraintViolation("flexibility window must contain the deadline")
		}
		if t.startAfter != nil && t.startAfter.Midnight(time.UTC).Before(t.flexWindow.EarliestStart) {
			return shareddomain.ConstraintViolation("flexibility window must contain start_after")
		}
	}
	return nil
}

func dedupeIDs(ids []uuid.UUID) []uuid.UUID {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[uuid.UUID]bool, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
