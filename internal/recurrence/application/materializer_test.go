package application

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auditapp "github.com/qzwhatnext/qzwhatnext/internal/audit/application"
	auditpersistence "github.com/qzwhatnext/qzwhatnext/internal/audit/infrastructure/persistence"
	"github.com/qzwhatnext/qzwhatnext/internal/recurrence/domain"
	recpersistence "github.com/qzwhatnext/qzwhatnext/internal/recurrence/infrastructure/persistence"
	taskdomain "github.com/qzwhatnext/qzwhatnext/internal/tasks/domain"
	taskpersistence "github.com/qzwhatnext/qzwhatnext/internal/tasks/infrastructure/persistence"
)

type materializerFixture struct {
	materializer *Materializer
	seriesRepo   *recpersistence.MemorySeriesRepository
	taskRepo     *taskpersistence.MemoryTaskRepository
	userID       uuid.UUID
	loc          *time.Location
}

func newMaterializerFixture(t *testing.T) *materializerFixture {
	t.Helper()
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	seriesRepo := recpersistence.NewMemorySeriesRepository()
	taskRepo := taskpersistence.NewMemoryTaskRepository()
	audit := auditapp.NewEmitter(auditpersistence.NewMemoryAuditRepository())
	return &materializerFixture{
		materializer: NewMaterializer(seriesRepo, taskRepo, audit, nil),
		seriesRepo:   seriesRepo,
		taskRepo:     taskRepo,
		userID:       uuid.New(),
		loc:          loc,
	}
}

func (f *materializerFixture) addDailySeries(t *testing.T) *domain.TaskSeries {
	t.Helper()
	series, err := domain.NewTaskSeries(f.userID, "Morning stretch", "", 15,
		taskdomain.CategoryHealth, domain.Preset{Frequency: domain.FrequencyDaily}, false)
	require.NoError(t, err)
	require.NoError(t, f.seriesRepo.Save(context.Background(), series))
	return series
}

func (f *materializerFixture) openTasks(t *testing.T, seriesID uuid.UUID) []*taskdomain.Task {
	t.Helper()
	tasks, err := f.taskRepo.ListOpenBySeries(context.Background(), f.userID, seriesID)
	require.NoError(t, err)
	return tasks
}

func TestMaterializerRun(t *testing.T) {
	ctx := context.Background()
	horizon := 7 * 24 * time.Hour

	t.Run("materializes exactly one occurrence", func(t *testing.T) {
		f := newMaterializerFixture(t)
		series := f.addDailySeries(t)

		now := time.Now().Add(time.Hour)
		result, err := f.materializer.Run(ctx, f.userID, now, horizon, f.loc)
		require.NoError(t, err)
		assert.Len(t, result.Materialized, 1)
		assert.Empty(t, result.Missed)
		assert.Len(t, f.openTasks(t, series.ID()), 1)
	})

	t.Run("idempotent within the same horizon", func(t *testing.T) {
		f := newMaterializerFixture(t)
		series := f.addDailySeries(t)
		now := time.Now().Add(time.Hour)

		_, err := f.materializer.Run(ctx, f.userID, now, horizon, f.loc)
		require.NoError(t, err)
		result, err := f.materializer.Run(ctx, f.userID, now, horizon, f.loc)
		require.NoError(t, err)

		assert.Empty(t, result.Materialized)
		assert.Len(t, f.openTasks(t, series.ID()), 1)
	})

	t.Run("missed roll-forward keeps one open occurrence", func(t *testing.T) {
		f := newMaterializerFixture(t)
		series := f.addDailySeries(t)

		// Materialize yesterday's occurrence, then run again today.
		yesterday := time.Now().AddDate(0, 0, -1)
		_, err := f.materializer.Run(ctx, f.userID, yesterday, horizon, f.loc)
		require.NoError(t, err)
		require.Len(t, f.openTasks(t, series.ID()), 1)
		staleID := f.openTasks(t, series.ID())[0].ID()

		today := time.Now().Add(time.Hour)
		result, err := f.materializer.Run(ctx, f.userID, today, horizon, f.loc)
		require.NoError(t, err)

		assert.Len(t, result.Missed, 1)
		assert.Equal(t, staleID, result.Missed[0])
		require.Len(t, result.Materialized, 1)

		stale, err := f.taskRepo.FindByID(ctx, f.userID, staleID)
		require.NoError(t, err)
		assert.Equal(t, taskdomain.StatusMissed, stale.Status())

		open := f.openTasks(t, series.ID())
		require.Len(t, open, 1)
		assert.NotEqual(t, staleID, open[0].ID())
	})

	t.Run("occurrences inherit exclusion from the series", func(t *testing.T) {
		f := newMaterializerFixture(t)
		series, err := domain.NewTaskSeries(f.userID, "Therapy journal", "", 20,
			taskdomain.CategoryPersonal, domain.Preset{Frequency: domain.FrequencyDaily}, true)
		require.NoError(t, err)
		require.NoError(t, f.seriesRepo.Save(ctx, series))

		_, err = f.materializer.Run(ctx, f.userID, time.Now().Add(time.Hour), horizon, f.loc)
		require.NoError(t, err)

		open := f.openTasks(t, series.ID())
		require.Len(t, open, 1)
		assert.True(t, open[0].AIExcluded())
		assert.True(t, taskdomain.IsAIExcluded(open[0]))
	})

	t.Run("series with no occurrence in horizon is a no-op", func(t *testing.T) {
		f := newMaterializerFixture(t)
		series, err := domain.NewTaskSeries(f.userID, "Yearly checkup", "", 60,
			taskdomain.CategoryHealth, domain.Preset{Frequency: domain.FrequencyYearly}, false)
		require.NoError(t, err)
		require.NoError(t, f.seriesRepo.Save(ctx, series))

		// Run far from the anchor date so no occurrence falls in range.
		farFuture := series.Anchor().AddDate(0, 2, 0)
		result, err := f.materializer.Run(ctx, f.userID, farFuture, horizon, f.loc)
		require.NoError(t, err)
		assert.Empty(t, result.Materialized)
		assert.Empty(t, result.Missed)
	})
}
