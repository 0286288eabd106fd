package domain

import (
	"fmt"

	"github.com/google/uuid"

	shareddomain "github.com/qzwhatnext/qzwhatnext/internal/shared/domain"
)

// CheckDependencyCycle verifies that adding candidate's dependency edges
// keeps the user's task graph acyclic. existing must contain the user's
// current tasks; candidate may or may not be among them (its stored edges
// are replaced by its in-memory ones). Returns a ConstraintViolation
// naming the cycle entry point when one is found.
//
// Cycles are rejected at write time rather than discovered mid-rebuild.
func CheckDependencyCycle(candidate *Task, existing []*Task) error {
	edges := make(map[uuid.UUID][]uuid.UUID, len(existing)+1)
	for _, t := range existing {
		if t.IsDeleted() {
			continue
		}
		edges[t.ID()] = t.Dependencies()
	}
	edges[candidate.ID()] = candidate.Dependencies()

	const (
		unvisited = 0
		inStack   = 1
		done      = 2
	)
	state := make(map[uuid.UUID]int, len(edges))

	var visit func(id uuid.UUID) error
	visit = func(id uuid.UUID) error {
		switch state[id] {
		case inStack:
			return shareddomain.ConstraintViolation(
				fmt.Sprintf("dependency cycle detected through task %s", id))
		case done:
			return nil
		}
		state[id] = inStack
		for _, dep := range edges[id] {
			if err := visit(dep); err != nil {
				return err
			}
		}
		state[id] = done
		return nil
	}

	return visit(candidate.ID())
}
