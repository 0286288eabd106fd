package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	shareddomain "github.com/qzwhatnext/qzwhatnext/internal/shared/domain"
)

func TestNewTask(t *testing.T) {
	userID := uuid.New()

	t.Run("applies defaults", func(t *testing.T) {
		task, err := NewTask(userID, "Write report", NewTaskParams{})
		require.NoError(t, err)
		assert.Equal(t, StatusOpen, task.Status())
		assert.Equal(t, DefaultDurationMinutes, task.EstimatedDuration())
		assert.Equal(t, CategoryUnknown, task.Category())
		assert.Equal(t, EnergyMedium, task.Energy())
		assert.Equal(t, 0.3, task.RiskScore())
		assert.Equal(t, 0.3, task.ImpactScore())
		assert.Nil(t, task.DeletedAt())
	})

	t.Run("rejects empty title", func(t *testing.T) {
		_, err := NewTask(userID, "   ", NewTaskParams{})
		assert.ErrorIs(t, err, ErrEmptyTitle)
	})

	t.Run("rejects duration out of range", func(t *testing.T) {
		_, err := NewTask(userID, "tiny", NewTaskParams{EstimatedDuration: 3})
		assert.True(t, shareddomain.IsKind(err, shareddomain.KindConstraintViolation))

		_, err = NewTask(userID, "huge", NewTaskParams{EstimatedDuration: 601})
		assert.True(t, shareddomain.IsKind(err, shareddomain.KindConstraintViolation))
	})

	t.Run("rejects start_after later than deadline", func(t *testing.T) {
		deadline := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		after := LocalDate{Year: 2026, Month: 3, Day: 5}
		_, err := NewTask(userID, "conflict", NewTaskParams{
			Deadline:   &deadline,
			StartAfter: &after,
		})
		assert.True(t, shareddomain.IsKind(err, shareddomain.KindConstraintViolation))
	})

	t.Run("rejects flex window not containing deadline", func(t *testing.T) {
		deadline := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
		window := FlexibilityWindow{
			EarliestStart: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
			LatestEnd:     time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC),
		}
		_, err := NewTask(userID, "squeezed", NewTaskParams{
			Deadline:   &deadline,
			FlexWindow: &window,
		})
		assert.True(t, shareddomain.IsKind(err, shareddomain.KindConstraintViolation))
	})

	t.Run("emits created event", func(t *testing.T) {
		task, err := NewTask(userID, "Write report", NewTaskParams{})
		require.NoError(t, err)
		events := task.DomainEvents()
		require.Len(t, events, 1)
		assert.Equal(t, "task.created", events[0].RoutingKey())
	})
}

func TestTaskApply(t *testing.T) {
	userID := uuid.New()

	t.Run("reports changed fields", func(t *testing.T) {
		task, err := NewTask(userID, "Draft", NewTaskParams{})
		require.NoError(t, err)

		category := CategoryWork
		duration := 60
		changed, err := task.Apply(Attributes{Category: &category, EstimatedDuration: &duration})
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"category", "estimated_duration"}, changed)
		assert.Equal(t, CategoryWork, task.Category())
		assert.Equal(t, 60, task.EstimatedDuration())
	})

	t.Run("no-op update emits nothing", func(t *testing.T) {
		task, err := NewTask(userID, "Draft", NewTaskParams{})
		require.NoError(t, err)
		task.ClearDomainEvents()

		changed, err := task.Apply(Attributes{})
		require.NoError(t, err)
		assert.Empty(t, changed)
		assert.Empty(t, task.DomainEvents())
	})

	t.Run("invalid update rolls back", func(t *testing.T) {
		task, err := NewTask(userID, "Draft", NewTaskParams{})
		require.NoError(t, err)

		bad := 2
		_, err = task.Apply(Attributes{EstimatedDuration: &bad})
		require.Error(t, err)
		assert.Equal(t, DefaultDurationMinutes, task.EstimatedDuration())
	})

	t.Run("rejects update of deleted task", func(t *testing.T) {
		task, err := NewTask(userID, "Draft", NewTaskParams{})
		require.NoError(t, err)
		task.Delete()

		title := "renamed"
		_, err = task.Apply(Attributes{Title: &title})
		assert.ErrorIs(t, err, ErrTaskDeleted)
	})
}

func TestTaskLifecycle(t *testing.T) {
	userID := uuid.New()

	t.Run("complete then reopen", func(t *testing.T) {
		task, err := NewTask(userID, "Ship it", NewTaskParams{})
		require.NoError(t, err)

		require.NoError(t, task.Complete())
		assert.Equal(t, StatusCompleted, task.Status())
		assert.NotNil(t, task.CompletedAt())
		assert.ErrorIs(t, task.Complete(), ErrTaskAlreadyComplete)

		require.NoError(t, task.Reopen())
		assert.Equal(t, StatusOpen, task.Status())
		assert.Nil(t, task.CompletedAt())
	})

	t.Run("mark missed only from open", func(t *testing.T) {
		task, err := NewTask(userID, "Daily stretch", NewTaskParams{})
		require.NoError(t, err)

		require.NoError(t, task.MarkMissed())
		assert.Equal(t, StatusMissed, task.Status())
		assert.Error(t, task.MarkMissed())
	})

	t.Run("soft delete and restore", func(t *testing.T) {
		task, err := NewTask(userID, "Maybe later", NewTaskParams{})
		require.NoError(t, err)

		task.Delete()
		assert.True(t, task.IsDeleted())
		first := *task.DeletedAt()

		task.Delete()
		assert.Equal(t, first, *task.DeletedAt())

		require.NoError(t, task.Restore())
		assert.False(t, task.IsDeleted())
		assert.ErrorIs(t, task.Restore(), ErrTaskNotDeleted)
	})
}

func TestRehydrateRoundTrip(t *testing.T) {
	userID := uuid.New()
	deadline := time.Date(2026, 5, 1, 17, 0, 0, 0, time.UTC)
	task, err := NewTask(userID, "Round trip", NewTaskParams{
		Notes:    "details",
		Deadline: &deadline,
		Category: CategoryHealth,
	})
	require.NoError(t, err)

	restored := RehydrateTask(task.State())
	assert.Equal(t, task.ID(), restored.ID())
	assert.Equal(t, task.Title(), restored.Title())
	assert.Equal(t, task.Category(), restored.Category())
	require.NotNil(t, restored.Deadline())
	assert.True(t, restored.Deadline().Equal(deadline))
	assert.Empty(t, restored.DomainEvents())
}
