package domain

import (
	"time"

	taskdomain "github.com/qzwhatnext/qzwhatnext/internal/tasks/domain"
)

// Governing tiers, 1 highest to 9 lowest. The first matching trigger wins.
const (
	TierDeadline = 1
	TierRisk     = 2
	TierImpact   = 3
	TierChild    = 4
	TierHealth   = 5
	TierWork     = 6
	TierStress   = 7
	TierFamily   = 8
	TierHome     = 9
)

// Reason tokens recorded in audit details.
const (
	ReasonDeadlineWithin24h = "deadline_within_24h"
	ReasonRiskThreshold     = "risk_threshold"
	ReasonImpactThreshold   = "impact_threshold"
	ReasonUnlocksOther      = "unlocks_other_task"
	ReasonChildCategory     = "child_category"
	ReasonHealthCategory    = "health_category"
	ReasonWorkCategory      = "work_category"
	ReasonPersonalCategory  = "personal_category"
	ReasonFamilyCategory    = "family_category"
	ReasonDefaultCategory   = "default_category"
	ReasonTierFrozen        = "manual_priority_locked"
)

// TierConfig holds the thresholds for tier triggers. The impact threshold
// is configurable; risk and the 24h deadline window are fixed.
type TierConfig struct {
	ImpactThreshold float64
}

// DefaultTierConfig returns the documented defaults.
func DefaultTierConfig() TierConfig {
	return TierConfig{ImpactThreshold: 0.7}
}

const (
	riskThreshold  = 0.7
	deadlineWindow = 24 * time.Hour
)

// TierAssignment is the result of assigning one task.
type TierAssignment struct {
	Tier   int
	Reason string
	// Frozen is set when manual_priority_locked kept the previous tier.
	Frozen bool
}

// AssignTier deterministically maps a task to exactly one governing tier.
// unlocksOther is true when at least one other open task depends on this
// one. manual_priority_locked freezes the tier at its last recorded value.
func AssignTier(task *taskdomain.Task, now time.Time, unlocksOther bool, cfg TierConfig) TierAssignment {
	if task.ManualPriorityLocked() && task.LastTier() != 0 {
		return TierAssignment{Tier: task.LastTier(), Reason: ReasonTierFrozen, Frozen: true}
	}

	// Past deadlines also land in tier 1 so they surface immediately.
	if d := task.Deadline(); d != nil && d.Sub(now) <= deadlineWindow {
		return TierAssignment{Tier: TierDeadline, Reason: ReasonDeadlineWithin24h}
	}
	if task.RiskScore() >= riskThreshold {
		return TierAssignment{Tier: TierRisk, Reason: ReasonRiskThreshold}
	}
	if task.ImpactScore() >= cfg.ImpactThreshold {
		return TierAssignment{Tier: TierImpact, Reason: ReasonImpactThreshold}
	}
	if unlocksOther {
		return TierAssignment{Tier: TierImpact, Reason: ReasonUnlocksOther}
	}

	switch task.Category() {
	case taskdomain.CategoryChild:
		return TierAssignment{Tier: TierChild, Reason: ReasonChildCategory}
	case taskdomain.CategoryHealth:
		return TierAssignment{Tier: TierHealth, Reason: ReasonHealthCategory}
	case taskdomain.CategoryWork:
		return TierAssignment{Tier: TierWork, Reason: ReasonWorkCategory}
	case taskdomain.CategoryPersonal:
		return TierAssignment{Tier: TierStress, Reason: ReasonPersonalCategory}
	case taskdomain.CategoryFamily:
		return TierAssignment{Tier: TierFamily, Reason: ReasonFamilyCategory}
	default:
		// home, admin, ideas, unknown
		return TierAssignment{Tier: TierHome, Reason: ReasonDefaultCategory}
	}
}
