package application

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auditapp "github.com/qzwhatnext/qzwhatnext/internal/audit/application"
	auditdomain "github.com/qzwhatnext/qzwhatnext/internal/audit/domain"
	auditpersistence "github.com/qzwhatnext/qzwhatnext/internal/audit/infrastructure/persistence"
	identitydomain "github.com/qzwhatnext/qzwhatnext/internal/identity/domain"
	identitypersistence "github.com/qzwhatnext/qzwhatnext/internal/identity/infrastructure/persistence"
	inferencedomain "github.com/qzwhatnext/qzwhatnext/internal/inference/domain"
	inferenceinfra "github.com/qzwhatnext/qzwhatnext/internal/inference/infrastructure"
	recurrencepersistence "github.com/qzwhatnext/qzwhatnext/internal/recurrence/infrastructure/persistence"
	"github.com/qzwhatnext/qzwhatnext/internal/scheduling/domain"
	schedulingpersistence "github.com/qzwhatnext/qzwhatnext/internal/scheduling/infrastructure/persistence"
	shareddomain "github.com/qzwhatnext/qzwhatnext/internal/shared/domain"
	sharedpersistence "github.com/qzwhatnext/qzwhatnext/internal/shared/infrastructure/persistence"
	taskdomain "github.com/qzwhatnext/qzwhatnext/internal/tasks/domain"
	taskpersistence "github.com/qzwhatnext/qzwhatnext/internal/tasks/infrastructure/persistence"
)

type stubAvailability struct {
	mu    sync.Mutex
	busy  []domain.BusyInterval
	err   error
	wait  chan struct{}
	calls int
}

func (s *stubAvailability) BusyIntervals(context.Context, uuid.UUID, time.Time, time.Time) ([]domain.BusyInterval, error) {
	s.mu.Lock()
	s.calls++
	busy, err, wait := s.busy, s.err, s.wait
	s.mu.Unlock()
	if wait != nil {
		<-wait
	}
	return busy, err
}

func (s *stubAvailability) busyCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type pipelineFixture struct {
	user         *identitydomain.User
	tasks        *taskpersistence.MemoryTaskRepository
	blocks       *schedulingpersistence.MemoryBlockRepository
	adapter      *inferenceinfra.FixedAdapter
	auditRepo    *auditpersistence.MemoryAuditRepository
	availability *stubAvailability
	pipeline     *Pipeline
}

func newPipelineFixture(t *testing.T, proposals map[uuid.UUID]inferencedomain.ProposalSet) *pipelineFixture {
	t.Helper()

	users := identitypersistence.NewMemoryUserRepository()
	user, err := identitydomain.NewUser("sam@example.com", "Sam", "UTC")
	require.NoError(t, err)
	require.NoError(t, users.Save(context.Background(), user))

	f := &pipelineFixture{
		user:         user,
		tasks:        taskpersistence.NewMemoryTaskRepository(),
		blocks:       schedulingpersistence.NewMemoryBlockRepository(),
		adapter:      inferenceinfra.NewFixedAdapter(proposals),
		auditRepo:    auditpersistence.NewMemoryAuditRepository(),
		availability: &stubAvailability{},
	}
	f.pipeline = NewPipeline(
		PipelineConfig{Horizon: 7 * 24 * time.Hour},
		users,
		f.tasks,
		recurrencepersistence.NewMemorySeriesRepository(),
		recurrencepersistence.NewMemoryTimeBlockRepository(),
		f.blocks,
		f.adapter,
		f.availability,
		auditapp.NewEmitter(f.auditRepo),
		sharedpersistence.NoopUnitOfWork{},
		slog.Default(),
	)
	return f
}

func (f *pipelineFixture) addTask(t *testing.T, title string, params taskdomain.NewTaskParams) *taskdomain.Task {
	t.Helper()
	task, err := taskdomain.NewTask(f.user.ID(), title, params)
	require.NoError(t, err)
	require.NoError(t, f.tasks.Save(context.Background(), task))
	return task
}

func (f *pipelineFixture) auditByType(t *testing.T, eventType auditdomain.EventType) []*auditdomain.AuditEvent {
	t.Helper()
	events, err := f.auditRepo.List(context.Background(), f.user.ID(), auditdomain.Filter{Type: &eventType})
	require.NoError(t, err)
	return events
}

func (f *pipelineFixture) auditFor(t *testing.T, eventType auditdomain.EventType, targetID uuid.UUID) []*auditdomain.AuditEvent {
	t.Helper()
	events, err := f.auditRepo.List(context.Background(), f.user.ID(), auditdomain.Filter{Type: &eventType, TargetID: &targetID})
	require.NoError(t, err)
	return events
}

var rebuildClock = time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)

func TestPipelineRebuild(t *testing.T) {
	ctx := context.Background()

	t.Run("places open tasks and records the build", func(t *testing.T) {
		f := newPipelineFixture(t, nil)
		report := f.addTask(t, "write report", taskdomain.NewTaskParams{Category: taskdomain.CategoryWork, EstimatedDuration: 60})
		invoice := f.addTask(t, "pay invoice", taskdomain.NewTaskParams{Category: taskdomain.CategoryAdmin, EstimatedDuration: 30})

		result, err := f.pipeline.Rebuild(ctx, f.user.ID(), rebuildClock, "manual")
		require.NoError(t, err)
		assert.Equal(t, 2, result.Placed)
		assert.Empty(t, result.Overflowed)

		stored, err := f.blocks.ListInWindow(ctx, f.user.ID(), rebuildClock, rebuildClock.Add(7*24*time.Hour))
		require.NoError(t, err)
		require.Len(t, stored, 2)
		// Work outranks admin, so it gets the earlier slot.
		assert.Equal(t, rebuildClock, stored[0].Start())
		assert.Equal(t, rebuildClock.Add(time.Hour), stored[1].Start())

		built := f.auditFor(t, auditdomain.EventScheduleBuilt, f.user.ID())
		require.Len(t, built, 1)
		assert.Equal(t, "manual", built[0].Details["trigger"])
		assert.NotEqual(t, uuid.Nil, built[0].RebuildID)

		// Each placement leaves its own decision record with reasons.
		for _, task := range []*taskdomain.Task{report, invoice} {
			decisions := f.auditFor(t, auditdomain.EventScheduleBuilt, task.ID())
			require.Len(t, decisions, 1)
			assert.Contains(t, decisions[0].Details["reasons"], "earliest_fit")
		}
	})

	t.Run("dependency ranked below its dependent still places first", func(t *testing.T) {
		f := newPipelineFixture(t, nil)
		prep := f.addTask(t, "prep slides", taskdomain.NewTaskParams{Category: taskdomain.CategoryHome, EstimatedDuration: 60})
		deadline := rebuildClock.Add(2 * time.Hour)
		rehearse := f.addTask(t, "rehearse talk", taskdomain.NewTaskParams{
			Category:          taskdomain.CategoryHome,
			EstimatedDuration: 30,
			Deadline:          &deadline,
			Dependencies:      []uuid.UUID{prep.ID()},
		})

		result, err := f.pipeline.Rebuild(ctx, f.user.ID(), rebuildClock, "manual")
		require.NoError(t, err)
		assert.Equal(t, 2, result.Placed)
		assert.Empty(t, result.Overflowed)

		prepBlocks, err := f.blocks.ListByTask(ctx, f.user.ID(), prep.ID())
		require.NoError(t, err)
		require.Len(t, prepBlocks, 1)
		rehearseBlocks, err := f.blocks.ListByTask(ctx, f.user.ID(), rehearse.ID())
		require.NoError(t, err)
		require.Len(t, rehearseBlocks, 1)
		assert.False(t, rehearseBlocks[0].Start().Before(prepBlocks[0].End()))
	})

	t.Run("same inputs produce the same schedule", func(t *testing.T) {
		f := newPipelineFixture(t, nil)
		for _, title := range []string{"one", "two", "three"} {
			f.addTask(t, title, taskdomain.NewTaskParams{EstimatedDuration: 45})
		}

		first, err := f.pipeline.Rebuild(ctx, f.user.ID(), rebuildClock, "manual")
		require.NoError(t, err)
		second, err := f.pipeline.Rebuild(ctx, f.user.ID(), rebuildClock, "manual")
		require.NoError(t, err)

		require.Len(t, second.Blocks, len(first.Blocks))
		for i := range first.Blocks {
			assert.Equal(t, first.Blocks[i].Start(), second.Blocks[i].Start())
			assert.Equal(t, first.Blocks[i].End(), second.Blocks[i].End())
			assert.Equal(t, first.Blocks[i].TaskID(), second.Blocks[i].TaskID())
		}
	})

	t.Run("excluded tasks never reach the adapter but still schedule", func(t *testing.T) {
		f := newPipelineFixture(t, nil)
		meds := f.addTask(t, ".meds", taskdomain.NewTaskParams{EstimatedDuration: 15})
		chore := f.addTask(t, "fold laundry", taskdomain.NewTaskParams{EstimatedDuration: 30})

		result, err := f.pipeline.Rebuild(ctx, f.user.ID(), rebuildClock, "manual")
		require.NoError(t, err)
		assert.Equal(t, 2, result.Placed)

		assert.False(t, f.adapter.SawTask(meds.ID()))
		assert.True(t, f.adapter.SawTask(chore.ID()))

		for _, event := range f.auditByType(t, auditdomain.EventAttributeInferred) {
			assert.NotEqual(t, meds.ID(), event.TargetID)
		}
	})

	t.Run("inference failure falls back to defaults", func(t *testing.T) {
		f := newPipelineFixture(t, nil)
		f.adapter.FailWith(errors.New("model unavailable"))
		task := f.addTask(t, "mystery chore", taskdomain.NewTaskParams{EstimatedDuration: 30})

		result, err := f.pipeline.Rebuild(ctx, f.user.ID(), rebuildClock, "manual")
		require.NoError(t, err)
		assert.Equal(t, 1, result.Placed)

		inferred := f.auditByType(t, auditdomain.EventAttributeInferred)
		require.Len(t, inferred, 1)
		assert.Equal(t, task.ID(), inferred[0].TargetID)
		assert.Equal(t, "defaults_applied", inferred[0].Details["action"])
	})

	t.Run("accepted proposals update the task and the audit trail", func(t *testing.T) {
		proposals := map[uuid.UUID]inferencedomain.ProposalSet{}
		f := newPipelineFixture(t, proposals)
		task := f.addTask(t, "prepare talk", taskdomain.NewTaskParams{EstimatedDuration: 30})
		proposals[task.ID()] = inferencedomain.ProposalSet{
			"category":           {Value: "work", Confidence: 0.9},
			"estimated_duration": {Value: 50, Confidence: 0.85},
		}

		_, err := f.pipeline.Rebuild(ctx, f.user.ID(), rebuildClock, "manual")
		require.NoError(t, err)

		updated, err := f.tasks.FindByID(ctx, f.user.ID(), task.ID())
		require.NoError(t, err)
		assert.Equal(t, taskdomain.CategoryWork, updated.Category())
		assert.Equal(t, 45, updated.EstimatedDuration()) // 50 rounds to 45

		inferred := f.auditByType(t, auditdomain.EventAttributeInferred)
		require.Len(t, inferred, 1)
		assert.Equal(t, "proposals_applied", inferred[0].Details["action"])
	})

	t.Run("low confidence tier change is staged", func(t *testing.T) {
		proposals := map[uuid.UUID]inferencedomain.ProposalSet{}
		f := newPipelineFixture(t, proposals)
		task := f.addTask(t, "vague errand", taskdomain.NewTaskParams{Category: taskdomain.CategoryHome, EstimatedDuration: 30})
		task.RecordTier(domain.TierHome)
		require.NoError(t, f.tasks.Save(ctx, task))

		proposals[task.ID()] = inferencedomain.ProposalSet{
			"risk_score": {Value: 0.9, Confidence: 0.7},
		}

		_, err := f.pipeline.Rebuild(ctx, f.user.ID(), rebuildClock, "manual")
		require.NoError(t, err)

		updated, err := f.tasks.FindByID(ctx, f.user.ID(), task.ID())
		require.NoError(t, err)
		assert.Equal(t, domain.TierHome, updated.LastTier())

		changes := f.auditByType(t, auditdomain.EventTierChanged)
		require.Len(t, changes, 1)
		assert.Equal(t, true, changes[0].Details["staged"])
		assert.Equal(t, domain.TierRisk, changes[0].Details["to"])
	})

	t.Run("availability failure aborts and keeps old blocks", func(t *testing.T) {
		f := newPipelineFixture(t, nil)
		task := f.addTask(t, "existing", taskdomain.NewTaskParams{EstimatedDuration: 30})

		_, err := f.pipeline.Rebuild(ctx, f.user.ID(), rebuildClock, "manual")
		require.NoError(t, err)
		before, err := f.blocks.ListInWindow(ctx, f.user.ID(), rebuildClock, rebuildClock.Add(7*24*time.Hour))
		require.NoError(t, err)
		require.Len(t, before, 1)

		f.availability.err = shareddomain.NewKindError(shareddomain.KindAvailabilityUnavailable, "snapshot_stale", nil)
		_, err = f.pipeline.Rebuild(ctx, f.user.ID(), rebuildClock, "manual")
		require.Error(t, err)
		assert.True(t, shareddomain.IsKind(err, shareddomain.KindAvailabilityUnavailable))

		after, err := f.blocks.ListInWindow(ctx, f.user.ID(), rebuildClock, rebuildClock.Add(7*24*time.Hour))
		require.NoError(t, err)
		require.Len(t, after, 1)
		assert.Equal(t, before[0].ID(), after[0].ID())
		_ = task
	})

	t.Run("pinned block survives rebuild and its task is not replaced", func(t *testing.T) {
		f := newPipelineFixture(t, nil)
		moved := f.addTask(t, "dentist", taskdomain.NewTaskParams{EstimatedDuration: 60})
		f.addTask(t, "emails", taskdomain.NewTaskParams{EstimatedDuration: 30})

		pinned, err := domain.NewScheduledBlock(f.user.ID(), moved.ID(),
			rebuildClock.Add(3*time.Hour), rebuildClock.Add(4*time.Hour), domain.ScheduledByUser)
		require.NoError(t, err)
		require.NoError(t, f.blocks.Save(ctx, pinned))

		result, err := f.pipeline.Rebuild(ctx, f.user.ID(), rebuildClock, "manual")
		require.NoError(t, err)
		assert.Equal(t, 1, result.Placed) // only the email task

		forMoved, err := f.blocks.ListByTask(ctx, f.user.ID(), moved.ID())
		require.NoError(t, err)
		require.Len(t, forMoved, 1)
		assert.Equal(t, pinned.ID(), forMoved[0].ID())
		assert.Equal(t, pinned.Start(), forMoved[0].Start())
	})

	t.Run("overflow is flagged with a reason", func(t *testing.T) {
		f := newPipelineFixture(t, nil)
		f.availability.busy = []domain.BusyInterval{{
			Interval: domain.Interval{Start: rebuildClock, End: rebuildClock.Add(7 * 24 * time.Hour)},
		}}
		task := f.addTask(t, "no room", taskdomain.NewTaskParams{EstimatedDuration: 30})

		result, err := f.pipeline.Rebuild(ctx, f.user.ID(), rebuildClock, "manual")
		require.NoError(t, err)
		require.Len(t, result.Overflowed, 1)
		assert.Equal(t, domain.OverflowNoCapacity, result.Overflowed[0].Reason)

		flagged := f.auditByType(t, auditdomain.EventOverflowFlagged)
		require.Len(t, flagged, 1)
		assert.Equal(t, task.ID(), flagged[0].TargetID)
		assert.Equal(t, domain.OverflowNoCapacity, flagged[0].Details["reason"])
	})
}

func TestMemoryRebuildLock(t *testing.T) {
	ctx := context.Background()
	lock := NewMemoryRebuildLock()
	userID := uuid.New()

	ok, err := lock.TryAcquire(ctx, userID, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = lock.TryAcquire(ctx, userID, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, lock.Release(ctx, userID))
	ok, err = lock.TryAcquire(ctx, userID, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCoordinatorCoalescesTriggers(t *testing.T) {
	ctx := context.Background()

	f := newPipelineFixture(t, nil)
	f.addTask(t, "steady work", taskdomain.NewTaskParams{EstimatedDuration: 30})
	f.availability.wait = make(chan struct{})

	coordinator := NewCoordinator(f.pipeline, NewMemoryRebuildLock(), time.Minute, slog.Default())
	coordinator.clock = func() time.Time { return rebuildClock }

	done := make(chan error, 1)
	go func() {
		_, ran, err := coordinator.Trigger(ctx, f.user.ID(), "task_created")
		if err == nil && !ran {
			err = errors.New("owning trigger should have run the rebuild")
		}
		done <- err
	}()

	// Wait for the rebuild to park inside the availability read, then pile
	// on more triggers; they must coalesce into exactly one extra rebuild.
	waitFor(t, func() bool { return f.availability.busyCalls() >= 1 })
	for i := 0; i < 3; i++ {
		result, ran, err := coordinator.Trigger(ctx, f.user.ID(), "task_updated")
		require.NoError(t, err)
		assert.False(t, ran)
		assert.Nil(t, result)
	}

	close(f.availability.wait)
	require.NoError(t, <-done)

	builds := f.auditFor(t, auditdomain.EventScheduleBuilt, f.user.ID())
	assert.Len(t, builds, 2)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition never became true")
}
