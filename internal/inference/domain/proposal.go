// Package domain defines the attribute inference boundary: the adapter
// contract, its input snapshot and the per-attribute proposals it returns.
package domain

import (
	"context"

	"github.com/google/uuid"
)

// TaskSnapshot is the subset of a task the adapter may see. Excluded
// tasks are filtered out before this type is ever constructed for them.
type TaskSnapshot struct {
	ID       uuid.UUID
	Title    string
	Notes    string
	Category string
	Duration int // minutes; 0 when unknown
}

// Proposal is a proposed attribute value with the adapter's confidence.
type Proposal struct {
	Value      any
	Confidence float64
}

// ProposalSet maps attribute names to proposals for one task. Recognized
// attributes: category, title, estimated_duration, duration_confidence,
// energy_intensity, risk_score, impact_score.
type ProposalSet map[string]Proposal

// Adapter requests structured attribute proposals. Implementations must be
// side-effect-free: same input, no state mutation. A failed call returns
// an error; the caller applies defaults.
type Adapter interface {
	Propose(ctx context.Context, tasks []TaskSnapshot) (map[uuid.UUID]ProposalSet, error)
}
