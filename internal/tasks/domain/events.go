package domain

import (
	"github.com/google/uuid"

	shareddomain "github.com/qzwhatnext/qzwhatnext/internal/shared/domain"
)

const aggregateType = "task"

// TaskCreatedEvent is emitted when a task is created.
type TaskCreatedEvent struct {
	shareddomain.BaseEvent
	UserID   uuid.UUID `json:"user_id"`
	Title    string    `json:"title"`
	Category Category  `json:"category"`
	SeriesID *uuid.UUID `json:"series_id,omitempty"`
}

func NewTaskCreatedEvent(t *Task) *TaskCreatedEvent {
	return &TaskCreatedEvent{
		BaseEvent: shareddomain.NewBaseEvent(t.ID(), aggregateType, "task.created"),
		UserID:    t.UserID(),
		Title:     t.Title(),
		Category:  t.Category(),
		SeriesID:  t.SeriesID(),
	}
}

// TaskUpdatedEvent is emitted when schedule-relevant attributes change.
type TaskUpdatedEvent struct {
	shareddomain.BaseEvent
	UserID        uuid.UUID `json:"user_id"`
	ChangedFields []string  `json:"changed_fields"`
}

func NewTaskUpdatedEvent(t *Task, changed []string) *TaskUpdatedEvent {
	return &TaskUpdatedEvent{
		BaseEvent:     shareddomain.NewBaseEvent(t.ID(), aggregateType, "task.updated"),
		UserID:        t.UserID(),
		ChangedFields: changed,
	}
}

// TaskCompletedEvent is emitted when a task completes.
type TaskCompletedEvent struct {
	shareddomain.BaseEvent
	UserID uuid.UUID `json:"user_id"`
}

func NewTaskCompletedEvent(t *Task) *TaskCompletedEvent {
	return &TaskCompletedEvent{
		BaseEvent: shareddomain.NewBaseEvent(t.ID(), aggregateType, "task.completed"),
		UserID:    t.UserID(),
	}
}

// TaskMissedEvent is emitted when a recurring occurrence's window passes
// without completion.
type TaskMissedEvent struct {
	shareddomain.BaseEvent
	UserID   uuid.UUID  `json:"user_id"`
	SeriesID *uuid.UUID `json:"series_id,omitempty"`
}

func NewTaskMissedEvent(t *Task) *TaskMissedEvent {
	return &TaskMissedEvent{
		BaseEvent: shareddomain.NewBaseEvent(t.ID(), aggregateType, "task.missed"),
		UserID:    t.UserID(),
		SeriesID:  t.SeriesID(),
	}
}

// TaskDeletedEvent is emitted on soft delete.
type TaskDeletedEvent struct {
	shareddomain.BaseEvent
	UserID uuid.UUID `json:"user_id"`
}

func NewTaskDeletedEvent(t *Task) *TaskDeletedEvent {
	return &TaskDeletedEvent{
		BaseEvent: shareddomain.NewBaseEvent(t.ID(), aggregateType, "task.deleted"),
		UserID:    t.UserID(),
	}
}

// TaskRestoredEvent is emitted when a soft-deleted task is restored.
type TaskRestoredEvent struct {
	shareddomain.BaseEvent
	UserID uuid.UUID `json:"user_id"`
}

func NewTaskRestoredEvent(t *Task) *TaskRestoredEvent {
	return &TaskRestoredEvent{
		BaseEvent: shareddomain.NewBaseEvent(t.ID(), aggregateType, "task.restored"),
		UserID:    t.UserID(),
	}
}
