// Package persistence provides recurrence repository implementations.
package persistence

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/qzwhatnext/qzwhatnext/internal/recurrence/domain"
)

// MemorySeriesRepository is an in-memory SeriesRepository.
type MemorySeriesRepository struct {
	mu     sync.RWMutex
	series map[uuid.UUID]*domain.TaskSeries
}

func NewMemorySeriesRepository() *MemorySeriesRepository {
	return &MemorySeriesRepository{series: make(map[uuid.UUID]*domain.TaskSeries)}
}

func (r *MemorySeriesRepository) Save(_ context.Context, series *domain.TaskSeries) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.series[series.ID()] = series
	return nil
}

func (r *MemorySeriesRepository) FindByID(_ context.Context, userID, id uuid.UUID) (*domain.TaskSeries, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	series, ok := r.series[id]
	if !ok || series.UserID() != userID {
		return nil, domain.ErrSeriesNotFound
	}
	return series, nil
}

func (r *MemorySeriesRepository) ListActive(_ context.Context, userID uuid.UUID) ([]*domain.TaskSeries, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domain.TaskSeries
	for _, series := range r.series {
		if series.UserID() == userID && !series.IsDeleted() {
			out = append(out, series)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt().Before(out[j].CreatedAt())
	})
	return out, nil
}

// MemoryTimeBlockRepository is an in-memory TimeBlockRepository.
type MemoryTimeBlockRepository struct {
	mu     sync.RWMutex
	blocks map[uuid.UUID]*domain.TimeBlock
}

func NewMemoryTimeBlockRepository() *MemoryTimeBlockRepository {
	return &MemoryTimeBlockRepository{blocks: make(map[uuid.UUID]*domain.TimeBlock)}
}

func (r *MemoryTimeBlockRepository) Save(_ context.Context, block *domain.TimeBlock) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.blocks[block.ID()] = block
	return nil
}

func (r *MemoryTimeBlockRepository) FindByID(_ context.Context, userID, id uuid.UUID) (*domain.TimeBlock, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	block, ok := r.blocks[id]
	if !ok || block.UserID() != userID {
		return nil, domain.ErrBlockNotFound
	}
	return block, nil
}

func (r *MemoryTimeBlockRepository) ListActive(_ context.Context, userID uuid.UUID) ([]*domain.TimeBlock, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domain.TimeBlock
	for _, block := range r.blocks {
		if block.UserID() == userID && !block.IsDeleted() {
			out = append(out, block)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt().Before(out[j].CreatedAt())
	})
	return out, nil
}
