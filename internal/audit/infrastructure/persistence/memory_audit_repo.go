// Package persistence provides audit repository implementations.
package persistence

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/qzwhatnext/qzwhatnext/internal/audit/domain"
)

// MemoryAuditRepository is an in-memory append-only audit store.
type MemoryAuditRepository struct {
	mu     sync.RWMutex
	events []*domain.AuditEvent
}

func NewMemoryAuditRepository() *MemoryAuditRepository {
	return &MemoryAuditRepository{}
}

func (r *MemoryAuditRepository) Append(_ context.Context, events ...*domain.AuditEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, events...)
	return nil
}

func (r *MemoryAuditRepository) List(_ context.Context, userID uuid.UUID, filter domain.Filter) ([]*domain.AuditEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*domain.AuditEvent
	for _, e := range r.events {
		if e.UserID != userID {
			continue
		}
		if filter.Type != nil && e.Type != *filter.Type {
			continue
		}
		if filter.TargetID != nil && e.TargetID != *filter.TargetID {
			continue
		}
		if filter.RebuildID != nil && e.RebuildID != *filter.RebuildID {
			continue
		}
		if filter.Since != nil && e.OccurredAt.Before(*filter.Since) {
			continue
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].OccurredAt.Before(out[j].OccurredAt)
	})
	return out, nil
}
