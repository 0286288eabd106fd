// Package persistence provides task repository implementations.
package persistence

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/qzwhatnext/qzwhatnext/internal/tasks/domain"
)

type dedupeKey struct {
	userID          uuid.UUID
	sourceType      string
	sourceID        string
	seriesID        uuid.UUID
	occurrenceStart int64
}

func dedupeKeyFor(t *domain.Task) (dedupeKey, bool) {
	key := dedupeKey{userID: t.UserID()}
	hasAny := false
	if src := t.Source(); src != nil {
		key.sourceType = src.Type
		key.sourceID = src.ID
		hasAny = true
	}
	if sid := t.SeriesID(); sid != nil {
		key.seriesID = *sid
		hasAny = true
	}
	if occ := t.OccurrenceStart(); occ != nil {
		key.occurrenceStart = occ.UTC().Unix()
	}
	return key, hasAny
}

// MemoryTaskRepository is an in-memory TaskRepository for tests and local
// mode. It enforces the same user scoping and dedupe semantics as the
// database-backed repositories.
type MemoryTaskRepository struct {
	mu     sync.RWMutex
	tasks  map[uuid.UUID]domain.TaskState
	dedupe map[dedupeKey]uuid.UUID
}

func NewMemoryTaskRepository() *MemoryTaskRepository {
	return &MemoryTaskRepository{
		tasks:  make(map[uuid.UUID]domain.TaskState),
		dedupe: make(map[dedupeKey]uuid.UUID),
	}
}

func (r *MemoryTaskRepository) Save(_ context.Context, task *domain.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if key, ok := dedupeKeyFor(task); ok {
		if existing, found := r.dedupe[key]; found && existing != task.ID() {
			return domain.ErrDuplicateTask
		}
		r.dedupe[key] = task.ID()
	}
	r.tasks[task.ID()] = task.State()
	return nil
}

func (r *MemoryTaskRepository) FindByID(_ context.Context, userID, id uuid.UUID) (*domain.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	state, ok := r.tasks[id]
	if !ok || state.UserID != userID {
		return nil, domain.ErrTaskNotFound
	}
	return domain.RehydrateTask(state), nil
}

func (r *MemoryTaskRepository) List(_ context.Context, userID uuid.UUID, filter domain.ListFilter) ([]*domain.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*domain.Task
	for _, state := range r.tasks {
		if state.UserID != userID {
			continue
		}
		if state.DeletedAt != nil && !filter.IncludeDeleted {
			continue
		}
		if filter.Status != nil && state.Status != *filter.Status {
			continue
		}
		if filter.Category != nil && state.Category != *filter.Category {
			continue
		}
		if filter.SeriesID != nil && (state.SeriesID == nil || *state.SeriesID != *filter.SeriesID) {
			continue
		}
		out = append(out, domain.RehydrateTask(state))
	}
	sortTasks(out)
	return out, nil
}

func (r *MemoryTaskRepository) ListOpenBySeries(ctx context.Context, userID, seriesID uuid.UUID) ([]*domain.Task, error) {
	status := domain.StatusOpen
	return r.List(ctx, userID, domain.ListFilter{Status: &status, SeriesID: &seriesID})
}

func (r *MemoryTaskRepository) FindByOccurrence(_ context.Context, userID, seriesID uuid.UUID, occurrenceStart time.Time) (*domain.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, state := range r.tasks {
		if state.UserID != userID || state.SeriesID == nil || *state.SeriesID != seriesID {
			continue
		}
		if state.OccurrenceStart != nil && state.OccurrenceStart.Equal(occurrenceStart) {
			return domain.RehydrateTask(state), nil
		}
	}
	return nil, domain.ErrTaskNotFound
}

func (r *MemoryTaskRepository) Purge(_ context.Context, userID, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	state, ok := r.tasks[id]
	if !ok || state.UserID != userID {
		return domain.ErrTaskNotFound
	}
	delete(r.tasks, id)
	for key, mapped := range r.dedupe {
		if mapped == id {
			delete(r.dedupe, key)
		}
	}
	return nil
}

func sortTasks(tasks []*domain.Task) {
	sort.Slice(tasks, func(i, j int) bool {
		if !tasks[i].CreatedAt().Equal(tasks[j].CreatedAt()) {
			return tasks[i].CreatedAt().Before(tasks[j].CreatedAt())
		}
		return tasks[i].ID().String() < tasks[j].ID().String()
	})
}
