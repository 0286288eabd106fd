// Package application provides the audit emitter used by commands and the
// rebuild pipeline.
package application

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/qzwhatnext/qzwhatnext/internal/audit/domain"
)

// Emitter buffers audit events during a unit of work and flushes them with
// the corresponding state change so partial failures never leave
// undocumented mutations.
type Emitter struct {
	repo domain.Repository

	mu        sync.Mutex
	buffered  []*domain.AuditEvent
	rebuildID uuid.UUID
}

// NewEmitter creates an emitter writing to the given repository.
func NewEmitter(repo domain.Repository) *Emitter {
	return &Emitter{repo: repo}
}

// ForRebuild returns an emitter that stamps every event with the rebuild id.
func (e *Emitter) ForRebuild(rebuildID uuid.UUID) *Emitter {
	return &Emitter{repo: e.repo, rebuildID: rebuildID}
}

// Emit buffers an event. Nothing is persisted until Flush.
func (e *Emitter) Emit(userID uuid.UUID, eventType domain.EventType, targetID uuid.UUID, targetType string, details domain.Details) {
	event := domain.NewAuditEvent(userID, eventType, targetID, targetType, details)
	event.RebuildID = e.rebuildID

	e.mu.Lock()
	defer e.mu.Unlock()
	e.buffered = append(e.buffered, event)
}

// Pending returns the number of buffered events.
func (e *Emitter) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.buffered)
}

// Flush appends all buffered events inside the caller's transaction
// context and clears the buffer.
func (e *Emitter) Flush(ctx context.Context) error {
	e.mu.Lock()
	events := e.buffered
	e.buffered = nil
	e.mu.Unlock()

	if len(events) == 0 {
		return nil
	}
	return e.repo.Append(ctx, events...)
}

// Discard drops buffered events without persisting, used on rollback.
func (e *Emitter) Discard() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.buffered = nil
}
