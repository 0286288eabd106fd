package domain

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	shareddomain "github.com/qzwhatnext/qzwhatnext/internal/shared/domain"
)

func mustTask(t *testing.T, userID uuid.UUID, title string, deps ...uuid.UUID) *Task {
	t.Helper()
	task, err := NewTask(userID, title, NewTaskParams{Dependencies: deps})
	require.NoError(t, err)
	return task
}

func TestCheckDependencyCycle(t *testing.T) {
	userID := uuid.New()

	t.Run("accepts a chain", func(t *testing.T) {
		a := mustTask(t, userID, "a")
		b := mustTask(t, userID, "b", a.ID())
		c := mustTask(t, userID, "c", b.ID())
		assert.NoError(t, CheckDependencyCycle(c, []*Task{a, b}))
	})

	t.Run("accepts a diamond", func(t *testing.T) {
		a := mustTask(t, userID, "a")
		b := mustTask(t, userID, "b", a.ID())
		c := mustTask(t, userID, "c", a.ID())
		d := mustTask(t, userID, "d", b.ID(), c.ID())
		assert.NoError(t, CheckDependencyCycle(d, []*Task{a, b, c}))
	})

	t.Run("rejects a two-task cycle", func(t *testing.T) {
		a := mustTask(t, userID, "a")
		b := mustTask(t, userID, "b", a.ID())

		// Point a back at b.
		_, err := a.Apply(Attributes{Dependencies: []uuid.UUID{b.ID()}})
		require.NoError(t, err)

		err = CheckDependencyCycle(a, []*Task{b})
		assert.True(t, shareddomain.IsKind(err, shareddomain.KindConstraintViolation))
	})

	t.Run("ignores edges of deleted tasks", func(t *testing.T) {
		a := mustTask(t, userID, "a")
		b := mustTask(t, userID, "b", a.ID())
		_, err := a.Apply(Attributes{Dependencies: []uuid.UUID{b.ID()}})
		require.NoError(t, err)
		b.Delete()

		assert.NoError(t, CheckDependencyCycle(a, []*Task{b}))
	})
}
