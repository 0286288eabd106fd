package infrastructure

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/qzwhatnext/qzwhatnext/internal/inference/domain"
)

// FixedAdapter returns pre-configured proposals. It exists for tests and
// replay: rebuilds are deterministic when inference outputs are fixed.
type FixedAdapter struct {
	mu        sync.Mutex
	proposals map[uuid.UUID]domain.ProposalSet
	calls     [][]domain.TaskSnapshot
	err       error
}

// NewFixedAdapter creates an adapter returning the given proposals.
func NewFixedAdapter(proposals map[uuid.UUID]domain.ProposalSet) *FixedAdapter {
	if proposals == nil {
		proposals = map[uuid.UUID]domain.ProposalSet{}
	}
	return &FixedAdapter{proposals: proposals}
}

// FailWith makes every subsequent call return err.
func (a *FixedAdapter) FailWith(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.err = err
}

// Propose implements domain.Adapter.
func (a *FixedAdapter) Propose(_ context.Context, tasks []domain.TaskSnapshot) (map[uuid.UUID]domain.ProposalSet, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, tasks)
	if a.err != nil {
		return nil, a.err
	}

	out := make(map[uuid.UUID]domain.ProposalSet)
	for _, t := range tasks {
		if set, ok := a.proposals[t.ID]; ok {
			out[t.ID] = set
		}
	}
	return out, nil
}

// Calls returns every snapshot batch the adapter has seen.
func (a *FixedAdapter) Calls() [][]domain.TaskSnapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

// SawTask reports whether any call included the given task.
func (a *FixedAdapter) SawTask(id uuid.UUID) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, batch := range a.calls {
		for _, t := range batch {
			if t.ID == id {
				return true
			}
		}
	}
	return false
}
