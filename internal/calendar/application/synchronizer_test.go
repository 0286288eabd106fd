package application_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auditapp "github.com/qzwhatnext/qzwhatnext/internal/audit/application"
	auditdomain "github.com/qzwhatnext/qzwhatnext/internal/audit/domain"
	auditpersistence "github.com/qzwhatnext/qzwhatnext/internal/audit/infrastructure/persistence"
	"github.com/qzwhatnext/qzwhatnext/internal/calendar/application"
	"github.com/qzwhatnext/qzwhatnext/internal/calendar/domain"
	"github.com/qzwhatnext/qzwhatnext/internal/calendar/infrastructure"
	schedulingdomain "github.com/qzwhatnext/qzwhatnext/internal/scheduling/domain"
	schedulingpersistence "github.com/qzwhatnext/qzwhatnext/internal/scheduling/infrastructure/persistence"
	sharedpersistence "github.com/qzwhatnext/qzwhatnext/internal/shared/infrastructure/persistence"
	taskdomain "github.com/qzwhatnext/qzwhatnext/internal/tasks/domain"
	taskpersistence "github.com/qzwhatnext/qzwhatnext/internal/tasks/infrastructure/persistence"
)

var syncClock = time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)

type syncFixture struct {
	userID    uuid.UUID
	client    *infrastructure.MemoryClient
	blocks    *schedulingpersistence.MemoryBlockRepository
	tasks     *taskpersistence.MemoryTaskRepository
	auditRepo *auditpersistence.MemoryAuditRepository
	sync      *application.Synchronizer
}

func newSyncFixture(t *testing.T) *syncFixture {
	t.Helper()
	f := &syncFixture{
		userID:    uuid.New(),
		client:    infrastructure.NewMemoryClient(),
		blocks:    schedulingpersistence.NewMemoryBlockRepository(),
		tasks:     taskpersistence.NewMemoryTaskRepository(),
		auditRepo: auditpersistence.NewMemoryAuditRepository(),
	}
	f.sync = application.NewSynchronizer(
		infrastructure.NewStaticClientSource(f.client),
		f.blocks,
		f.tasks,
		auditapp.NewEmitter(f.auditRepo),
		sharedpersistence.NoopUnitOfWork{},
		7*24*time.Hour,
		slog.Default(),
	)
	return f
}

// scheduledTask creates a task with one system block inside the sync window.
func (f *syncFixture) scheduledTask(t *testing.T, title string, start time.Time, minutes int) (*taskdomain.Task, *schedulingdomain.ScheduledBlock) {
	t.Helper()
	ctx := context.Background()
	task, err := taskdomain.NewTask(f.userID, title, taskdomain.NewTaskParams{EstimatedDuration: minutes})
	require.NoError(t, err)
	require.NoError(t, f.tasks.Save(ctx, task))

	block, err := schedulingdomain.NewScheduledBlock(f.userID, task.ID(),
		start, start.Add(time.Duration(minutes)*time.Minute), schedulingdomain.ScheduledBySystem)
	require.NoError(t, err)
	require.NoError(t, f.blocks.Save(ctx, block))
	return task, block
}

func (f *syncFixture) auditByType(t *testing.T, eventType auditdomain.EventType) []*auditdomain.AuditEvent {
	t.Helper()
	events, err := f.auditRepo.List(context.Background(), f.userID, auditdomain.Filter{Type: &eventType})
	require.NoError(t, err)
	return events
}

func TestSynchronizer(t *testing.T) {
	ctx := context.Background()

	t.Run("publishes new blocks and is idempotent", func(t *testing.T) {
		f := newSyncFixture(t)
		task, block := f.scheduledTask(t, "deep work", syncClock.Add(time.Hour), 60)

		result, err := f.sync.Sync(ctx, f.userID, syncClock)
		require.NoError(t, err)
		assert.Equal(t, 1, result.Pushed)
		assert.False(t, result.Dirty())

		stored, err := f.blocks.FindByID(ctx, f.userID, block.ID())
		require.NoError(t, err)
		require.NotNil(t, stored.CalendarEventID())

		event, ok := f.client.Event(*stored.CalendarEventID())
		require.True(t, ok)
		assert.Equal(t, task.Title(), event.Summary)
		require.NotNil(t, event.BlockID)
		assert.Equal(t, block.ID(), *event.BlockID)

		// A second pass has nothing to do.
		again, err := f.sync.Sync(ctx, f.userID, syncClock)
		require.NoError(t, err)
		assert.Equal(t, &application.SyncResult{}, again)
	})

	t.Run("imports an externally moved event and pins the block", func(t *testing.T) {
		f := newSyncFixture(t)
		_, block := f.scheduledTask(t, "review", syncClock.Add(time.Hour), 30)
		_, err := f.sync.Sync(ctx, f.userID, syncClock)
		require.NoError(t, err)

		stored, err := f.blocks.FindByID(ctx, f.userID, block.ID())
		require.NoError(t, err)
		eventID := *stored.CalendarEventID()
		newStart := syncClock.Add(4 * time.Hour)
		require.NoError(t, f.client.EditExternally(eventID, func(e *domain.Event) {
			e.Start = newStart
			e.End = newStart.Add(30 * time.Minute)
		}))

		result, err := f.sync.Sync(ctx, f.userID, syncClock)
		require.NoError(t, err)
		assert.Equal(t, 1, result.Imported)
		assert.True(t, result.Dirty())

		moved, err := f.blocks.FindByID(ctx, f.userID, block.ID())
		require.NoError(t, err)
		assert.Equal(t, newStart, moved.Start())
		assert.True(t, moved.Locked())

		imported := f.auditByType(t, auditdomain.EventCalendarEditImported)
		require.Len(t, imported, 1)
		assert.Equal(t, "moved", imported[0].Details["action"])

		// The import settles: the next pass changes nothing.
		again, err := f.sync.Sync(ctx, f.userID, syncClock)
		require.NoError(t, err)
		assert.Equal(t, &application.SyncResult{}, again)
	})

	t.Run("imports an external title edit onto the task", func(t *testing.T) {
		f := newSyncFixture(t)
		task, block := f.scheduledTask(t, "old title", syncClock.Add(time.Hour), 30)
		_, err := f.sync.Sync(ctx, f.userID, syncClock)
		require.NoError(t, err)

		stored, err := f.blocks.FindByID(ctx, f.userID, block.ID())
		require.NoError(t, err)
		require.NoError(t, f.client.EditExternally(*stored.CalendarEventID(), func(e *domain.Event) {
			e.Summary = "new title"
		}))

		result, err := f.sync.Sync(ctx, f.userID, syncClock)
		require.NoError(t, err)
		assert.Equal(t, 1, result.Imported)

		updated, err := f.tasks.FindByID(ctx, f.userID, task.ID())
		require.NoError(t, err)
		assert.Equal(t, "new title", updated.Title())

		imported := f.auditByType(t, auditdomain.EventCalendarEditImported)
		require.Len(t, imported, 1)
		assert.Equal(t, "text_edited", imported[0].Details["action"])
	})

	t.Run("drops the block when its event was deleted externally", func(t *testing.T) {
		f := newSyncFixture(t)
		_, block := f.scheduledTask(t, "optional", syncClock.Add(time.Hour), 30)
		_, err := f.sync.Sync(ctx, f.userID, syncClock)
		require.NoError(t, err)

		stored, err := f.blocks.FindByID(ctx, f.userID, block.ID())
		require.NoError(t, err)
		require.NoError(t, f.client.Delete(ctx, *stored.CalendarEventID()))

		result, err := f.sync.Sync(ctx, f.userID, syncClock)
		require.NoError(t, err)
		assert.Equal(t, 1, result.BlocksRemoved)
		assert.True(t, result.Dirty())

		_, err = f.blocks.FindByID(ctx, f.userID, block.ID())
		assert.ErrorIs(t, err, schedulingdomain.ErrBlockNotFound)
	})

	t.Run("pushes a locally moved block with the etag precondition", func(t *testing.T) {
		f := newSyncFixture(t)
		_, block := f.scheduledTask(t, "shifted", syncClock.Add(time.Hour), 30)
		_, err := f.sync.Sync(ctx, f.userID, syncClock)
		require.NoError(t, err)

		stored, err := f.blocks.FindByID(ctx, f.userID, block.ID())
		require.NoError(t, err)
		newStart := syncClock.Add(5 * time.Hour)
		require.NoError(t, stored.MoveTo(newStart, newStart.Add(30*time.Minute)))
		require.NoError(t, f.blocks.Save(ctx, stored))

		result, err := f.sync.Sync(ctx, f.userID, syncClock)
		require.NoError(t, err)
		assert.Equal(t, 1, result.Pushed)

		event, ok := f.client.Event(*stored.CalendarEventID())
		require.True(t, ok)
		assert.Equal(t, newStart, event.Start)
	})

	t.Run("skips events whose marker was stripped", func(t *testing.T) {
		f := newSyncFixture(t)
		_, block := f.scheduledTask(t, "tampered", syncClock.Add(time.Hour), 30)
		_, err := f.sync.Sync(ctx, f.userID, syncClock)
		require.NoError(t, err)

		stored, err := f.blocks.FindByID(ctx, f.userID, block.ID())
		require.NoError(t, err)
		eventID := *stored.CalendarEventID()
		require.NoError(t, f.client.EditExternally(eventID, func(e *domain.Event) {
			e.BlockID = nil
			e.Summary = "mine now"
		}))

		result, err := f.sync.Sync(ctx, f.userID, syncClock)
		require.NoError(t, err)
		assert.Equal(t, 1, result.Conflicts)

		flagged, err := f.blocks.FindByID(ctx, f.userID, block.ID())
		require.NoError(t, err)
		assert.True(t, flagged.SyncPending())

		// The event keeps the user's edit.
		event, ok := f.client.Event(eventID)
		require.True(t, ok)
		assert.Equal(t, "mine now", event.Summary)
	})

	t.Run("removes orphaned managed events", func(t *testing.T) {
		f := newSyncFixture(t)
		orphanBlockID := uuid.New()
		_, err := f.client.Insert(ctx, domain.Event{
			Summary: "stale engine event",
			Start:   syncClock.Add(2 * time.Hour),
			End:     syncClock.Add(3 * time.Hour),
			BlockID: &orphanBlockID,
		})
		require.NoError(t, err)

		result, err := f.sync.Sync(ctx, f.userID, syncClock)
		require.NoError(t, err)
		assert.Equal(t, 1, result.EventsRemoved)
		assert.Equal(t, 0, f.client.Len())
	})

	t.Run("removes block and event when the task is gone", func(t *testing.T) {
		f := newSyncFixture(t)
		task, block := f.scheduledTask(t, "purged", syncClock.Add(time.Hour), 30)
		_, err := f.sync.Sync(ctx, f.userID, syncClock)
		require.NoError(t, err)

		require.NoError(t, f.tasks.Purge(ctx, f.userID, task.ID()))

		result, err := f.sync.Sync(ctx, f.userID, syncClock)
		require.NoError(t, err)
		assert.Equal(t, 1, result.BlocksRemoved)
		assert.Equal(t, 1, result.EventsRemoved)

		_, err = f.blocks.FindByID(ctx, f.userID, block.ID())
		assert.ErrorIs(t, err, schedulingdomain.ErrBlockNotFound)
		assert.Equal(t, 0, f.client.Len())
	})
}

// failingClient errors on every read, for snapshot fallback tests.
type failingClient struct{ err error }

func (c *failingClient) ListEvents(context.Context, time.Time, time.Time) ([]domain.Event, error) {
	return nil, c.err
}
func (c *failingClient) Insert(context.Context, domain.Event) (domain.Event, error) {
	return domain.Event{}, c.err
}
func (c *failingClient) Patch(context.Context, string, string, domain.Event) (domain.Event, error) {
	return domain.Event{}, c.err
}
func (c *failingClient) Delete(context.Context, string) error { return c.err }

type switchableSource struct{ client domain.Client }

func (s *switchableSource) ClientFor(context.Context, uuid.UUID) (domain.Client, error) {
	return s.client, nil
}

func TestAvailabilityProvider(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()
	from := syncClock
	to := syncClock.Add(24 * time.Hour)

	t.Run("serves live reads and caches them", func(t *testing.T) {
		client := infrastructure.NewMemoryClient()
		_, err := client.Insert(ctx, domain.Event{
			Summary: "standup",
			Start:   syncClock.Add(time.Hour),
			End:     syncClock.Add(90 * time.Minute),
		})
		require.NoError(t, err)

		cache := application.NewMemorySnapshotCache()
		provider := application.NewAvailabilityProvider(&switchableSource{client: client}, cache, 5*time.Minute, slog.Default())

		busy, err := provider.BusyIntervals(ctx, userID, from, to)
		require.NoError(t, err)
		require.Len(t, busy, 1)
		assert.False(t, busy[0].Managed)

		snapshot, err := cache.Get(ctx, userID)
		require.NoError(t, err)
		require.NotNil(t, snapshot)
		assert.Len(t, snapshot.Busy, 1)
	})

	t.Run("falls back to a fresh snapshot when the read fails", func(t *testing.T) {
		client := infrastructure.NewMemoryClient()
		_, err := client.Insert(ctx, domain.Event{
			Summary: "standup",
			Start:   syncClock.Add(time.Hour),
			End:     syncClock.Add(90 * time.Minute),
		})
		require.NoError(t, err)

		source := &switchableSource{client: client}
		cache := application.NewMemorySnapshotCache()
		provider := application.NewAvailabilityProvider(source, cache, 5*time.Minute, slog.Default())

		_, err = provider.BusyIntervals(ctx, userID, from, to)
		require.NoError(t, err)

		source.client = &failingClient{err: errors.New("upstream down")}
		busy, err := provider.BusyIntervals(ctx, userID, from, to)
		require.NoError(t, err)
		assert.Len(t, busy, 1)
	})

	t.Run("stale snapshot makes availability unavailable", func(t *testing.T) {
		source := &switchableSource{client: infrastructure.NewMemoryClient()}
		cache := application.NewMemorySnapshotCache()
		provider := application.NewAvailabilityProvider(source, cache, 5*time.Minute, slog.Default())

		_, err := provider.BusyIntervals(ctx, userID, from, to)
		require.NoError(t, err)

		source.client = &failingClient{err: errors.New("upstream down")}
		application.SetProviderClockForTest(provider, func() time.Time { return time.Now().Add(10 * time.Minute) })

		_, err = provider.BusyIntervals(ctx, userID, from, to)
		require.Error(t, err)
	})

	t.Run("no snapshot at all is unavailable immediately", func(t *testing.T) {
		source := &switchableSource{client: &failingClient{err: errors.New("upstream down")}}
		provider := application.NewAvailabilityProvider(source, application.NewMemorySnapshotCache(), 5*time.Minute, slog.Default())

		_, err := provider.BusyIntervals(ctx, userID, from, to)
		require.Error(t, err)
	})
}
