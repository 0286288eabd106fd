// Package commands contains the write-side task use cases. Each handler
// runs inside a unit of work and flushes audit events with the state
// change it records.
package commands

import (
	"time"

	"github.com/google/uuid"

	"github.com/qzwhatnext/qzwhatnext/internal/tasks/domain"
)

// CreateTaskCommand creates a task from explicit user input.
type CreateTaskCommand struct {
	UserID             uuid.UUID
	Title              string
	Notes              string
	Deadline           *time.Time
	StartAfter         *domain.LocalDate
	DueBy              *domain.LocalDate
	EstimatedDuration  int
	Category           domain.Category
	Energy             domain.EnergyIntensity
	RiskScore          *float64
	ImpactScore        *float64
	Dependencies       []uuid.UUID
	FlexWindow         *domain.FlexibilityWindow
	AIExcluded         bool
	Source             *domain.SourceRef
}

// AddSmartTaskCommand captures free text; the title is derived from the
// text and the remainder becomes notes. Attribute inference fills the rest
// during the next rebuild.
type AddSmartTaskCommand struct {
	UserID uuid.UUID
	Text   string
	Source *domain.SourceRef
}

// UpdateTaskCommand applies a partial attribute update.
type UpdateTaskCommand struct {
	UserID uuid.UUID
	TaskID uuid.UUID
	Attrs  domain.Attributes
}

// CompleteTaskCommand marks a task completed.
type CompleteTaskCommand struct {
	UserID uuid.UUID
	TaskID uuid.UUID
}

// DeleteTaskCommand soft-deletes a task and removes its scheduled blocks.
type DeleteTaskCommand struct {
	UserID uuid.UUID
	TaskID uuid.UUID
}

// RestoreTaskCommand clears a task's soft-delete marker.
type RestoreTaskCommand struct {
	UserID uuid.UUID
	TaskID uuid.UUID
}

// PurgeTaskCommand removes a task irreversibly, cascading to its blocks.
type PurgeTaskCommand struct {
	UserID uuid.UUID
	TaskID uuid.UUID
}
