package application

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qzwhatnext/qzwhatnext/internal/audit/domain"
	"github.com/qzwhatnext/qzwhatnext/internal/audit/infrastructure/persistence"
)

func TestEmitter_FlushWritesBufferedEvents(t *testing.T) {
	repo := persistence.NewMemoryAuditRepository()
	emitter := NewEmitter(repo)
	userID := uuid.New()
	taskID := uuid.New()

	emitter.Emit(userID, domain.EventTaskUpdated, taskID, "task", domain.Details{"field": "title"})
	emitter.Emit(userID, domain.EventCompleted, taskID, "task", nil)
	assert.Equal(t, 2, emitter.Pending())

	// Nothing lands before Flush.
	events, err := repo.List(context.Background(), userID, domain.Filter{})
	require.NoError(t, err)
	assert.Empty(t, events)

	require.NoError(t, emitter.Flush(context.Background()))
	assert.Equal(t, 0, emitter.Pending())

	events, err = repo.List(context.Background(), userID, domain.Filter{})
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, domain.EventTaskUpdated, events[0].Type)
	assert.Equal(t, "title", events[0].Details["field"])
}

func TestEmitter_DiscardDropsBufferedEvents(t *testing.T) {
	repo := persistence.NewMemoryAuditRepository()
	emitter := NewEmitter(repo)
	userID := uuid.New()

	emitter.Emit(userID, domain.EventTierChanged, uuid.New(), "task", nil)
	emitter.Discard()

	require.NoError(t, emitter.Flush(context.Background()))
	events, err := repo.List(context.Background(), userID, domain.Filter{})
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestEmitter_ForRebuildStampsRebuildID(t *testing.T) {
	repo := persistence.NewMemoryAuditRepository()
	rebuildID := uuid.New()
	emitter := NewEmitter(repo).ForRebuild(rebuildID)
	userID := uuid.New()

	emitter.Emit(userID, domain.EventScheduleBuilt, uuid.New(), "schedule", nil)
	require.NoError(t, emitter.Flush(context.Background()))

	events, err := repo.List(context.Background(), userID, domain.Filter{RebuildID: &rebuildID})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, rebuildID, events[0].RebuildID)
}
