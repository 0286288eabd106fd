// Package application applies inference proposals to tasks under the
// acceptance policy.
package application

import (
	"math"

	"github.com/qzwhatnext/qzwhatnext/internal/inference/domain"
	taskdomain "github.com/qzwhatnext/qzwhatnext/internal/tasks/domain"
)

// Policy is the proposal acceptance policy.
type Policy struct {
	// ConfidenceThreshold is the minimum confidence to accept a proposal.
	ConfidenceThreshold float64
	// TierChangeConfirmThreshold gates automatic tier changes driven by
	// inferred attributes; below it the change is staged for confirmation.
	TierChangeConfirmThreshold float64
}

// DefaultPolicy returns the documented defaults.
func DefaultPolicy() Policy {
	return Policy{ConfidenceThreshold: 0.6, TierChangeConfirmThreshold: 0.8}
}

// Applied describes the outcome of applying one proposal set.
type Applied struct {
	Accepted map[string]domain.Proposal
	Rejected map[string]domain.Proposal
	// MaxConfidence is the highest accepted confidence; tier-change
	// staging compares it against TierChangeConfirmThreshold.
	MaxConfidence float64
}

// Apply merges accepted proposals into task attributes. Durations round to
// the nearest 15 minutes and clamp to [5, 600]. Proposals below the
// threshold, with unknown attribute names, or with mistyped values are
// rejected. Inference never sets the tier or hard constraints.
func Apply(task *taskdomain.Task, proposals domain.ProposalSet, policy Policy) (*Applied, error) {
	applied := &Applied{
		Accepted: make(map[string]domain.Proposal),
		Rejected: make(map[string]domain.Proposal),
	}
	attrs := taskdomain.Attributes{}

	for name, proposal := range proposals {
		if proposal.Confidence < policy.ConfidenceThreshold {
			applied.Rejected[name] = proposal
			continue
		}
		if !applyOne(&attrs, name, proposal) {
			applied.Rejected[name] = proposal
			continue
		}
		applied.Accepted[name] = proposal
		if proposal.Confidence > applied.MaxConfidence {
			applied.MaxConfidence = proposal.Confidence
		}
	}

	if len(applied.Accepted) == 0 {
		return applied, nil
	}
	if _, err := task.Apply(attrs); err != nil {
		return nil, err
	}
	return applied, nil
}

func applyOne(attrs *taskdomain.Attributes, name string, proposal domain.Proposal) bool {
	switch name {
	case "category":
		s, ok := proposal.Value.(string)
		if !ok {
			return false
		}
		category := taskdomain.ParseCategory(s)
		attrs.Category = &category
	case "title":
		s, ok := proposal.Value.(string)
		if !ok || s == "" {
			return false
		}
		attrs.Title = &s
	case "estimated_duration":
		minutes, ok := asMinutes(proposal.Value)
		if !ok {
			return false
		}
		rounded := roundDuration(minutes)
		attrs.EstimatedDuration = &rounded
	case "duration_confidence":
		f, ok := asFloat(proposal.Value)
		if !ok || f < 0 || f > 1 {
			return false
		}
		attrs.DurationConfidence = &f
	case "energy_intensity":
		s, ok := proposal.Value.(string)
		if !ok {
			return false
		}
		energy := taskdomain.ParseEnergy(s)
		attrs.Energy = &energy
	case "risk_score":
		f, ok := asFloat(proposal.Value)
		if !ok || f < 0 || f > 1 {
			return false
		}
		attrs.RiskScore = &f
	case "impact_score":
		f, ok := asFloat(proposal.Value)
		if !ok || f < 0 || f > 1 {
			return false
		}
		attrs.ImpactScore = &f
	default:
		return false
	}
	return true
}

// roundDuration rounds to the nearest 15-minute increment and clamps to
// the valid duration range.
func roundDuration(minutes int) int {
	rounded := int(math.Round(float64(minutes)/15.0)) * 15
	if rounded < taskdomain.MinDurationMinutes {
		return taskdomain.MinDurationMinutes
	}
	if rounded > taskdomain.MaxDurationMinutes {
		return taskdomain.MaxDurationMinutes
	}
	return rounded
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	}
	return 0, false
}

func asMinutes(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case float64:
		return int(n), true
	}
	return 0, false
}
