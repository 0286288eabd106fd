package commands

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auditapp "github.com/qzwhatnext/qzwhatnext/internal/audit/application"
	auditdomain "github.com/qzwhatnext/qzwhatnext/internal/audit/domain"
	auditpersistence "github.com/qzwhatnext/qzwhatnext/internal/audit/infrastructure/persistence"
	shareddomain "github.com/qzwhatnext/qzwhatnext/internal/shared/domain"
	sharedpersistence "github.com/qzwhatnext/qzwhatnext/internal/shared/infrastructure/persistence"
	"github.com/qzwhatnext/qzwhatnext/internal/tasks/domain"
	taskpersistence "github.com/qzwhatnext/qzwhatnext/internal/tasks/infrastructure/persistence"
)

type noopBlockRemover struct {
	removed []uuid.UUID
}

func (r *noopBlockRemover) RemoveForTask(_ context.Context, _, taskID uuid.UUID) error {
	r.removed = append(r.removed, taskID)
	return nil
}

type handlerFixture struct {
	handler   *Handler
	repo      *taskpersistence.MemoryTaskRepository
	auditRepo *auditpersistence.MemoryAuditRepository
	blocks    *noopBlockRemover
	userID    uuid.UUID
}

func newFixture(t *testing.T) *handlerFixture {
	t.Helper()
	repo := taskpersistence.NewMemoryTaskRepository()
	auditRepo := auditpersistence.NewMemoryAuditRepository()
	blocks := &noopBlockRemover{}
	handler := NewHandler(repo, blocks, auditapp.NewEmitter(auditRepo), sharedpersistence.NoopUnitOfWork{}, nil, nil)
	return &handlerFixture{
		handler:   handler,
		repo:      repo,
		auditRepo: auditRepo,
		blocks:    blocks,
		userID:    uuid.New(),
	}
}

func (f *handlerFixture) auditEvents(t *testing.T, eventType auditdomain.EventType) []*auditdomain.AuditEvent {
	t.Helper()
	events, err := f.auditRepo.List(context.Background(), f.userID, auditdomain.Filter{Type: &eventType})
	require.NoError(t, err)
	return events
}

func TestCreateTask(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t.Run("persists and audits", func(t *testing.T) {
		task, err := f.handler.Create(ctx, CreateTaskCommand{
			UserID:   f.userID,
			Title:    "Write quarterly review",
			Category: domain.CategoryWork,
		})
		require.NoError(t, err)

		found, err := f.repo.FindByID(ctx, f.userID, task.ID())
		require.NoError(t, err)
		assert.Equal(t, "Write quarterly review", found.Title())

		assert.Len(t, f.auditEvents(t, auditdomain.EventTaskUpdated), 1)
	})

	t.Run("imported tasks audit as task_imported", func(t *testing.T) {
		_, err := f.handler.Create(ctx, CreateTaskCommand{
			UserID: f.userID,
			Title:  "From email",
			Source: &domain.SourceRef{Type: "email", ID: "msg-1"},
		})
		require.NoError(t, err)
		assert.Len(t, f.auditEvents(t, auditdomain.EventTaskImported), 1)
	})

	t.Run("rejects dependency cycle", func(t *testing.T) {
		g := newFixture(t)
		a, err := g.handler.Create(ctx, CreateTaskCommand{UserID: g.userID, Title: "a"})
		require.NoError(t, err)
		b, err := g.handler.Create(ctx, CreateTaskCommand{
			UserID: g.userID, Title: "b", Dependencies: []uuid.UUID{a.ID()},
		})
		require.NoError(t, err)

		_, err = g.handler.Update(ctx, UpdateTaskCommand{
			UserID: g.userID,
			TaskID: a.ID(),
			Attrs:  domain.Attributes{Dependencies: []uuid.UUID{b.ID()}},
		})
		assert.True(t, shareddomain.IsKind(err, shareddomain.KindConstraintViolation))
	})
}

func TestAddSmartTask(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t.Run("derives title from first line", func(t *testing.T) {
		task, err := f.handler.AddSmart(ctx, AddSmartTaskCommand{
			UserID: f.userID,
			Text:   "Call the dentist about the appointment\nneeds to happen before Friday",
		})
		require.NoError(t, err)
		assert.Equal(t, "Call the dentist about the appointment", task.Title())
		assert.True(t, task.TitleAutoGenerated())
		assert.Contains(t, task.Notes(), "before Friday")
	})

	t.Run("caps title length", func(t *testing.T) {
		task, err := f.handler.AddSmart(ctx, AddSmartTaskCommand{
			UserID: f.userID,
			Text:   "one two three four five six seven eight nine ten",
		})
		require.NoError(t, err)
		assert.Equal(t, "one two three four five six seven eight", task.Title())
	})

	t.Run("dot prefix excludes from inference", func(t *testing.T) {
		task, err := f.handler.AddSmart(ctx, AddSmartTaskCommand{
			UserID: f.userID,
			Text:   ".pick up prescription",
		})
		require.NoError(t, err)
		assert.True(t, domain.IsAIExcluded(task))
	})
}

func TestTaskLifecycleCommands(t *testing.T) {
	ctx := context.Background()

	t.Run("complete emits completed audit", func(t *testing.T) {
		f := newFixture(t)
		task, err := f.handler.Create(ctx, CreateTaskCommand{UserID: f.userID, Title: "Finish"})
		require.NoError(t, err)

		require.NoError(t, f.handler.Complete(ctx, CompleteTaskCommand{UserID: f.userID, TaskID: task.ID()}))

		found, err := f.repo.FindByID(ctx, f.userID, task.ID())
		require.NoError(t, err)
		assert.Equal(t, domain.StatusCompleted, found.Status())
		assert.Len(t, f.auditEvents(t, auditdomain.EventCompleted), 1)
	})

	t.Run("delete cascades to blocks and hides task", func(t *testing.T) {
		f := newFixture(t)
		task, err := f.handler.Create(ctx, CreateTaskCommand{UserID: f.userID, Title: "Remove me"})
		require.NoError(t, err)

		require.NoError(t, f.handler.Delete(ctx, DeleteTaskCommand{UserID: f.userID, TaskID: task.ID()}))
		assert.Contains(t, f.blocks.removed, task.ID())

		listed, err := f.repo.List(ctx, f.userID, domain.ListFilter{})
		require.NoError(t, err)
		assert.Empty(t, listed)

		withDeleted, err := f.repo.List(ctx, f.userID, domain.ListFilter{IncludeDeleted: true})
		require.NoError(t, err)
		assert.Len(t, withDeleted, 1)
	})

	t.Run("restore brings a deleted task back", func(t *testing.T) {
		f := newFixture(t)
		task, err := f.handler.Create(ctx, CreateTaskCommand{UserID: f.userID, Title: "Back again"})
		require.NoError(t, err)
		require.NoError(t, f.handler.Delete(ctx, DeleteTaskCommand{UserID: f.userID, TaskID: task.ID()}))

		require.NoError(t, f.handler.Restore(ctx, RestoreTaskCommand{UserID: f.userID, TaskID: task.ID()}))
		listed, err := f.repo.List(ctx, f.userID, domain.ListFilter{})
		require.NoError(t, err)
		assert.Len(t, listed, 1)
	})

	t.Run("purge removes irreversibly", func(t *testing.T) {
		f := newFixture(t)
		task, err := f.handler.Create(ctx, CreateTaskCommand{UserID: f.userID, Title: "Gone"})
		require.NoError(t, err)

		require.NoError(t, f.handler.Purge(ctx, PurgeTaskCommand{UserID: f.userID, TaskID: task.ID()}))
		_, err = f.repo.FindByID(ctx, f.userID, task.ID())
		assert.ErrorIs(t, err, domain.ErrTaskNotFound)
	})
}

func TestUserScoping(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	task, err := f.handler.Create(ctx, CreateTaskCommand{UserID: f.userID, Title: "Mine"})
	require.NoError(t, err)

	otherUser := uuid.New()
	_, err = f.repo.FindByID(ctx, otherUser, task.ID())
	assert.ErrorIs(t, err, domain.ErrTaskNotFound)

	listed, err := f.repo.List(ctx, otherUser, domain.ListFilter{})
	require.NoError(t, err)
	assert.Empty(t, listed)
}
