package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ListFilter narrows task reads. All reads are user-scoped; soft-deleted
// rows are excluded unless IncludeDeleted is set.
type ListFilter struct {
	Status         *Status
	Category       *Category
	SeriesID       *uuid.UUID
	IncludeDeleted bool
}

// TaskRepository persists tasks. Every operation is scoped to an owner;
// implementations must never return another user's rows.
type TaskRepository interface {
	// Save upserts a task. Creates enforce the dedupe key
	// (user, source_type, source_id, series_id, occurrence_start):
	// a second create with the same key fails with ErrDuplicateTask.
	Save(ctx context.Context, task *Task) error

	FindByID(ctx context.Context, userID, id uuid.UUID) (*Task, error)
	List(ctx context.Context, userID uuid.UUID, filter ListFilter) ([]*Task, error)

	// ListOpenBySeries returns open, non-deleted occurrences of a series.
	ListOpenBySeries(ctx context.Context, userID, seriesID uuid.UUID) ([]*Task, error)

	// FindByOccurrence locates the materialized task for a specific
	// series occurrence, regardless of status.
	FindByOccurrence(ctx context.Context, userID, seriesID uuid.UUID, occurrenceStart time.Time) (*Task, error)

	// Purge removes the row irreversibly. Referencing scheduled blocks
	// must be removed by the caller in the same transaction.
	Purge(ctx context.Context, userID, id uuid.UUID) error
}
