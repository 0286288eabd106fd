package application

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qzwhatnext/qzwhatnext/internal/inference/domain"
	taskdomain "github.com/qzwhatnext/qzwhatnext/internal/tasks/domain"
)

func newTask(t *testing.T) *taskdomain.Task {
	t.Helper()
	task, err := taskdomain.NewTask(uuid.New(), "Sort out insurance", taskdomain.NewTaskParams{})
	require.NoError(t, err)
	return task
}

func TestApply(t *testing.T) {
	policy := DefaultPolicy()

	t.Run("accepts high-confidence proposals", func(t *testing.T) {
		task := newTask(t)
		applied, err := Apply(task, domain.ProposalSet{
			"category":   {Value: "admin", Confidence: 0.9},
			"risk_score": {Value: 0.8, Confidence: 0.7},
		}, policy)
		require.NoError(t, err)

		assert.Len(t, applied.Accepted, 2)
		assert.Equal(t, taskdomain.CategoryAdmin, task.Category())
		assert.Equal(t, 0.8, task.RiskScore())
		assert.Equal(t, 0.9, applied.MaxConfidence)
	})

	t.Run("rejects below threshold", func(t *testing.T) {
		task := newTask(t)
		applied, err := Apply(task, domain.ProposalSet{
			"category": {Value: "work", Confidence: 0.5},
		}, policy)
		require.NoError(t, err)

		assert.Empty(t, applied.Accepted)
		assert.Len(t, applied.Rejected, 1)
		assert.Equal(t, taskdomain.CategoryUnknown, task.Category())
	})

	t.Run("rounds duration to nearest 15 minutes", func(t *testing.T) {
		tests := []struct {
			proposed int
			want     int
		}{
			{proposed: 50, want: 45},
			{proposed: 53, want: 60},
			{proposed: 2, want: taskdomain.MinDurationMinutes},
			{proposed: 900, want: taskdomain.MaxDurationMinutes},
		}
		for _, tt := range tests {
			task := newTask(t)
			_, err := Apply(task, domain.ProposalSet{
				"estimated_duration": {Value: tt.proposed, Confidence: 0.9},
			}, policy)
			require.NoError(t, err)
			assert.Equal(t, tt.want, task.EstimatedDuration(), "proposed %d", tt.proposed)
		}
	})

	t.Run("rejects mistyped values", func(t *testing.T) {
		task := newTask(t)
		applied, err := Apply(task, domain.ProposalSet{
			"risk_score": {Value: "very risky", Confidence: 0.9},
		}, policy)
		require.NoError(t, err)
		assert.Empty(t, applied.Accepted)
		assert.Equal(t, 0.3, task.RiskScore())
	})

	t.Run("rejects out-of-range scores", func(t *testing.T) {
		task := newTask(t)
		applied, err := Apply(task, domain.ProposalSet{
			"impact_score": {Value: 1.4, Confidence: 0.9},
		}, policy)
		require.NoError(t, err)
		assert.Empty(t, applied.Accepted)
	})

	t.Run("rejects unknown attribute names", func(t *testing.T) {
		task := newTask(t)
		applied, err := Apply(task, domain.ProposalSet{
			"tier": {Value: 1, Confidence: 0.99},
		}, policy)
		require.NoError(t, err)
		assert.Empty(t, applied.Accepted)
		assert.Len(t, applied.Rejected, 1)
	})

	t.Run("unknown category maps to unknown", func(t *testing.T) {
		task := newTask(t)
		_, err := Apply(task, domain.ProposalSet{
			"category": {Value: "extreme sports", Confidence: 0.9},
		}, policy)
		require.NoError(t, err)
		assert.Equal(t, taskdomain.CategoryUnknown, task.Category())
	})
}
