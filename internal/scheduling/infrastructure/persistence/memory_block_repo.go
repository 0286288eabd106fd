// Package persistence provides scheduled-block repositories.
package persistence

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/qzwhatnext/qzwhatnext/internal/scheduling/domain"
)

// MemoryBlockRepository is an in-memory BlockRepository for local mode and
// tests.
type MemoryBlockRepository struct {
	mu     sync.RWMutex
	blocks map[uuid.UUID]*domain.ScheduledBlock
}

func NewMemoryBlockRepository() *MemoryBlockRepository {
	return &MemoryBlockRepository{blocks: make(map[uuid.UUID]*domain.ScheduledBlock)}
}

func (r *MemoryBlockRepository) Save(_ context.Context, block *domain.ScheduledBlock) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.blocks[block.ID()] = block
	return nil
}

func (r *MemoryBlockRepository) FindByID(_ context.Context, userID, id uuid.UUID) (*domain.ScheduledBlock, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	block, ok := r.blocks[id]
	if !ok || block.UserID() != userID {
		return nil, domain.ErrBlockNotFound
	}
	return block, nil
}

func (r *MemoryBlockRepository) ListInWindow(_ context.Context, userID uuid.UUID, start, end time.Time) ([]*domain.ScheduledBlock, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domain.ScheduledBlock
	for _, block := range r.blocks {
		if block.UserID() != userID {
			continue
		}
		if block.Start().Before(end) && block.End().After(start) {
			out = append(out, block)
		}
	}
	sortBlocks(out)
	return out, nil
}

func (r *MemoryBlockRepository) ListByTask(_ context.Context, userID, taskID uuid.UUID) ([]*domain.ScheduledBlock, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domain.ScheduledBlock
	for _, block := range r.blocks {
		if block.UserID() == userID && block.TaskID() == taskID {
			out = append(out, block)
		}
	}
	sortBlocks(out)
	return out, nil
}

func (r *MemoryBlockRepository) ListSynced(_ context.Context, userID uuid.UUID) ([]*domain.ScheduledBlock, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domain.ScheduledBlock
	for _, block := range r.blocks {
		if block.UserID() == userID && block.CalendarEventID() != nil {
			out = append(out, block)
		}
	}
	sortBlocks(out)
	return out, nil
}

func (r *MemoryBlockRepository) Delete(_ context.Context, userID, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	block, ok := r.blocks[id]
	if !ok || block.UserID() != userID {
		return domain.ErrBlockNotFound
	}
	delete(r.blocks, id)
	return nil
}

func (r *MemoryBlockRepository) RemoveForTask(_ context.Context, userID, taskID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, block := range r.blocks {
		if block.UserID() == userID && block.TaskID() == taskID {
			delete(r.blocks, id)
		}
	}
	return nil
}

func sortBlocks(blocks []*domain.ScheduledBlock) {
	sort.Slice(blocks, func(i, j int) bool {
		if !blocks[i].Start().Equal(blocks[j].Start()) {
			return blocks[i].Start().Before(blocks[j].Start())
		}
		return blocks[i].ID().String() < blocks[j].ID().String()
	})
}
