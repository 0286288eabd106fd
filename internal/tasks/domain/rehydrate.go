package domain

import (
	"time"

	"github.com/google/uuid"

	shareddomain "github.com/qzwhatnext/qzwhatnext/internal/shared/domain"
)

// TaskState is the flat persistence shape of a task.
type TaskState struct {
	ID                 uuid.UUID
	UserID             uuid.UUID
	Title              string
	Notes              string
	Status             Status
	Deadline           *time.Time
	StartAfter         *LocalDate
	DueBy              *LocalDate
	EstimatedDuration  int
	DurationConfidence float64
	Category           Category
	Energy             EnergyIntensity
	RiskScore          float64
	ImpactScore        float64
	Dependencies       []uuid.UUID
	FlexWindow         *FlexibilityWindow
	AIExcluded         bool
	TitleAutoGenerated bool
	ManualPriorityLock bool
	UserLocked         bool
	ManuallyScheduled  bool
	LastTier           int
	Source             *SourceRef
	SeriesID           *uuid.UUID
	OccurrenceStart    *time.Time
	CompletedAt        *time.Time
	DeletedAt          *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// RehydrateTask reconstructs a task from persisted state without emitting
// events or re-running creation validation.
func RehydrateTask(s TaskState) *Task {
	return &Task{
		BaseAggregateRoot:  shareddomain.RehydrateBaseAggregateRoot(shareddomain.RehydrateBaseEntity(s.ID, s.CreatedAt, s.UpdatedAt)),
		userID:             s.UserID,
		title:              s.Title,
		notes:              s.Notes,
		status:             s.Status,
		deadline:           s.Deadline,
		startAfter:         s.StartAfter,
		dueBy:              s.DueBy,
		estimatedDuration:  s.EstimatedDuration,
		durationConfidence: s.DurationConfidence,
		category:           s.Category,
		energy:             s.Energy,
		riskScore:          s.RiskScore,
		impactScore:        s.ImpactScore,
		dependencies:       s.Dependencies,
		flexWindow:         s.FlexWindow,
		aiExcluded:         s.AIExcluded,
		titleAutoGenerated: s.TitleAutoGenerated,
		manualPriorityLock: s.ManualPriorityLock,
		userLocked:         s.UserLocked,
		manuallyScheduled:  s.ManuallyScheduled,
		lastTier:           s.LastTier,
		source:             s.Source,
		seriesID:           s.SeriesID,
		occurrenceStart:    s.OccurrenceStart,
		completedAt:        s.CompletedAt,
		deletedAt:          s.DeletedAt,
	}
}

// State flattens a task into its persistence shape.
func (t *Task) State() TaskState {
	return TaskState{
		ID:                 t.ID(),
		UserID:             t.userID,
		Title:              t.title,
		Notes:              t.notes,
		Status:             t.status,
		Deadline:           t.deadline,
		StartAfter:         t.startAfter,
		DueBy:              t.dueBy,
		EstimatedDuration:  t.estimatedDuration,
		DurationConfidence: t.durationConfidence,
		Category:           t.category,
		Energy:             t.energy,
		RiskScore:          t.riskScore,
		ImpactScore:        t.impactScore,
		Dependencies:       t.dependencies,
		FlexWindow:         t.flexWindow,
		AIExcluded:         t.aiExcluded,
		TitleAutoGenerated: t.titleAutoGenerated,
		ManualPriorityLock: t.manualPriorityLock,
		UserLocked:         t.userLocked,
		ManuallyScheduled:  t.manuallyScheduled,
		LastTier:           t.lastTier,
		Source:             t.source,
		SeriesID:           t.seriesID,
		OccurrenceStart:    t.occurrenceStart,
		CompletedAt:        t.completedAt,
		DeletedAt:          t.deletedAt,
		CreatedAt:          t.CreatedAt(),
		UpdatedAt:          t.UpdatedAt(),
	}
}
