// Package domain contains the append-only audit trail. Every pipeline
// stage and every schedule-relevant task write records what happened and
// why, so rebuilds are explainable and replayable.
package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EventType enumerates the recorded occurrences.
type EventType string

const (
	EventTaskImported        EventType = "task_imported"
	EventTaskUpdated         EventType = "task_updated"
	EventAttributeInferred   EventType = "attribute_inferred"
	EventTierChanged         EventType = "tier_changed"
	EventScheduleBuilt       EventType = "schedule_built"
	EventScheduleUpdated     EventType = "schedule_updated"
	EventRescheduled         EventType = "rescheduled"
	EventCompleted           EventType = "completed"
	EventOverflowFlagged     EventType = "overflow_flagged"
	EventCalendarEditImported EventType = "calendar_edit_imported"
)

// Details is the structured payload of an audit event. Values must be
// JSON-serializable.
type Details map[string]any

// AuditEvent is a single append-only record. Events are never mutated.
type AuditEvent struct {
	ID         uuid.UUID
	UserID     uuid.UUID
	Type       EventType
	TargetID   uuid.UUID
	TargetType string
	RebuildID  uuid.UUID
	Details    Details
	OccurredAt time.Time
}

// NewAuditEvent creates an audit record with the current timestamp.
func NewAuditEvent(userID uuid.UUID, eventType EventType, targetID uuid.UUID, targetType string, details Details) *AuditEvent {
	if details == nil {
		details = Details{}
	}
	return &AuditEvent{
		ID:         uuid.New(),
		UserID:     userID,
		Type:       eventType,
		TargetID:   targetID,
		TargetType: targetType,
		Details:    details,
		OccurredAt: time.Now().UTC(),
	}
}

// Filter narrows audit reads.
type Filter struct {
	Type      *EventType
	TargetID  *uuid.UUID
	RebuildID *uuid.UUID
	Since     *time.Time
}

// Repository is the append-only audit store. There is no update or delete.
type Repository interface {
	Append(ctx context.Context, events ...*AuditEvent) error
	List(ctx context.Context, userID uuid.UUID, filter Filter) ([]*AuditEvent, error)
}
