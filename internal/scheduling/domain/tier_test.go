package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	taskdomain "github.com/qzwhatnext/qzwhatnext/internal/tasks/domain"
)

func buildTask(t *testing.T, params taskdomain.NewTaskParams) *taskdomain.Task {
	t.Helper()
	task, err := taskdomain.NewTask(uuid.New(), "task", params)
	require.NoError(t, err)
	return task
}

func TestAssignTier(t *testing.T) {
	now := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	cfg := DefaultTierConfig()

	t.Run("deadline within 24h wins over everything", func(t *testing.T) {
		deadline := now.Add(2 * time.Hour)
		risk := 0.9
		task := buildTask(t, taskdomain.NewTaskParams{
			Deadline:  &deadline,
			RiskScore: &risk,
			Category:  taskdomain.CategoryChild,
		})
		a := AssignTier(task, now, false, cfg)
		assert.Equal(t, TierDeadline, a.Tier)
		assert.Equal(t, ReasonDeadlineWithin24h, a.Reason)
	})

	t.Run("past deadline is still tier 1", func(t *testing.T) {
		deadline := now.Add(-time.Hour)
		task := buildTask(t, taskdomain.NewTaskParams{Deadline: &deadline})
		assert.Equal(t, TierDeadline, AssignTier(task, now, false, cfg).Tier)
	})

	t.Run("distant deadline does not trigger tier 1", func(t *testing.T) {
		deadline := now.Add(48 * time.Hour)
		task := buildTask(t, taskdomain.NewTaskParams{Deadline: &deadline, Category: taskdomain.CategoryWork})
		assert.Equal(t, TierWork, AssignTier(task, now, false, cfg).Tier)
	})

	t.Run("risk then impact then unlocks", func(t *testing.T) {
		risk := 0.7
		task := buildTask(t, taskdomain.NewTaskParams{RiskScore: &risk})
		assert.Equal(t, TierRisk, AssignTier(task, now, false, cfg).Tier)

		impact := 0.7
		task = buildTask(t, taskdomain.NewTaskParams{ImpactScore: &impact})
		assert.Equal(t, TierImpact, AssignTier(task, now, false, cfg).Tier)

		task = buildTask(t, taskdomain.NewTaskParams{})
		a := AssignTier(task, now, true, cfg)
		assert.Equal(t, TierImpact, a.Tier)
		assert.Equal(t, ReasonUnlocksOther, a.Reason)
	})

	t.Run("category ladder", func(t *testing.T) {
		tests := []struct {
			category taskdomain.Category
			tier     int
		}{
			{taskdomain.CategoryChild, TierChild},
			{taskdomain.CategoryHealth, TierHealth},
			{taskdomain.CategoryWork, TierWork},
			{taskdomain.CategoryPersonal, TierStress},
			{taskdomain.CategoryFamily, TierFamily},
			{taskdomain.CategoryHome, TierHome},
			{taskdomain.CategoryAdmin, TierHome},
			{taskdomain.CategoryIdeas, TierHome},
			{taskdomain.CategoryUnknown, TierHome},
		}
		for _, tt := range tests {
			task := buildTask(t, taskdomain.NewTaskParams{Category: tt.category})
			assert.Equal(t, tt.tier, AssignTier(task, now, false, cfg).Tier, "category %s", tt.category)
		}
	})

	t.Run("manual priority lock freezes the tier", func(t *testing.T) {
		task := buildTask(t, taskdomain.NewTaskParams{Category: taskdomain.CategoryHome})
		task.RecordTier(TierHome)
		task.LockPriority(true)

		// Would now be tier 1 without the lock.
		deadline := now.Add(time.Hour)
		_, err := task.Apply(taskdomain.Attributes{Deadline: &deadline})
		require.NoError(t, err)

		a := AssignTier(task, now, false, cfg)
		assert.Equal(t, TierHome, a.Tier)
		assert.True(t, a.Frozen)
	})

	t.Run("deterministic", func(t *testing.T) {
		task := buildTask(t, taskdomain.NewTaskParams{Category: taskdomain.CategoryHealth})
		first := AssignTier(task, now, false, cfg)
		for i := 0; i < 10; i++ {
			assert.Equal(t, first, AssignTier(task, now, false, cfg))
		}
	})
}
