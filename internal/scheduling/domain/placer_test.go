package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	taskdomain "github.com/qzwhatnext/qzwhatnext/internal/tasks/domain"
)

func newPlacer(t *testing.T, free *FreeList, now time.Time) *Placer {
	t.Helper()
	return NewPlacer(PlacerConfig{
		Now:        now,
		HorizonEnd: now.Add(7 * 24 * time.Hour),
		Location:   time.UTC,
	}, free)
}

func taskWith(t *testing.T, params taskdomain.NewTaskParams) *taskdomain.Task {
	t.Helper()
	task, err := taskdomain.NewTask(uuid.New(), "task", params)
	require.NoError(t, err)
	return task
}

func TestPlacerDeadlinePreemption(t *testing.T) {
	// Higher-ranked deadline task takes the earliest slot; the longer
	// task follows immediately after.
	now := at(8, 0)
	free := NewFreeList(Interval{Start: now.Add(30 * time.Minute), End: now.Add(5 * time.Hour)})
	placer := newPlacer(t, free, now)

	deadline := now.Add(2 * time.Hour)
	urgent := taskWith(t, taskdomain.NewTaskParams{
		EstimatedDuration: 30,
		Category:          taskdomain.CategoryHome,
		Deadline:          &deadline,
	})
	longer := taskWith(t, taskdomain.NewTaskParams{
		EstimatedDuration: 60,
		Category:          taskdomain.CategoryWork,
	})

	first := placer.Place(urgent, ReasonDeadlineWithin24h)
	require.True(t, first.Placed())
	assert.Equal(t, Interval{Start: at(8, 30), End: at(9, 0)}, first.Blocks[0])
	assert.Contains(t, first.Reasons, ReasonDeadlineWithin24h)
	assert.Contains(t, first.Reasons, "earliest_fit")

	second := placer.Place(longer, ReasonWorkCategory)
	require.True(t, second.Placed())
	assert.Equal(t, Interval{Start: at(9, 0), End: at(10, 0)}, second.Blocks[0])
}

func TestPlacerOverflowNoCapacity(t *testing.T) {
	// Five 180-minute tasks, one 120-minute interval: everything
	// overflows with no_capacity.
	now := at(8, 0)
	free := NewFreeList(Interval{Start: at(9, 0), End: at(11, 0)})
	placer := NewPlacer(PlacerConfig{Now: now, HorizonEnd: at(11, 0), Location: time.UTC}, free)

	for i := 0; i < 5; i++ {
		task := taskWith(t, taskdomain.NewTaskParams{EstimatedDuration: 180})
		placement := placer.Place(task, "")
		assert.False(t, placement.Placed())
		assert.Equal(t, OverflowNoCapacity, placement.OverflowReason)
	}
}

func TestPlacerDependencyOrdering(t *testing.T) {
	now := at(8, 0)

	t.Run("dependent starts after dependency end", func(t *testing.T) {
		free := NewFreeList(Interval{Start: at(9, 0), End: at(12, 0)})
		free.Subtract(Interval{Start: at(10, 0), End: at(11, 0)})
		placer := newPlacer(t, free, now)

		p := taskWith(t, taskdomain.NewTaskParams{EstimatedDuration: 30})
		q := taskWith(t, taskdomain.NewTaskParams{
			EstimatedDuration: 30,
			Dependencies:      []uuid.UUID{p.ID()},
		})

		first := placer.Place(p, "")
		require.True(t, first.Placed())
		assert.Equal(t, Interval{Start: at(9, 0), End: at(9, 30)}, first.Blocks[0])

		second := placer.Place(q, "")
		require.True(t, second.Placed())
		assert.Equal(t, Interval{Start: at(9, 30), End: at(10, 0)}, second.Blocks[0])
		assert.True(t, !second.Blocks[0].Start.Before(first.Blocks[0].End))
	})

	t.Run("dependent offered before its expected dependency overflows", func(t *testing.T) {
		// Rank inversion: the dependent outranks its dependency. Both are
		// announced up front, so offering the dependent first must not
		// schedule it ahead of the dependency.
		free := NewFreeList(Interval{Start: at(8, 0), End: at(17, 0)})
		placer := newPlacer(t, free, now)

		p := taskWith(t, taskdomain.NewTaskParams{
			EstimatedDuration: 60,
			Category:          taskdomain.CategoryHome,
		})
		deadline := now.Add(2 * time.Hour)
		q := taskWith(t, taskdomain.NewTaskParams{
			EstimatedDuration: 30,
			Deadline:          &deadline,
			Dependencies:      []uuid.UUID{p.ID()},
		})
		placer.ExpectTask(p.ID())
		placer.ExpectTask(q.ID())

		first := placer.Place(q, ReasonDeadlineWithin24h)
		assert.False(t, first.Placed())
		assert.Equal(t, OverflowDepUnplaced, first.OverflowReason)

		second := placer.Place(p, "")
		require.True(t, second.Placed())
		assert.Equal(t, Interval{Start: at(8, 0), End: at(9, 0)}, second.Blocks[0])
	})

	t.Run("overflowed dependency cascades as dep_unplaced", func(t *testing.T) {
		free := NewFreeList(Interval{Start: at(9, 0), End: at(9, 30)})
		placer := newPlacer(t, free, now)

		p := taskWith(t, taskdomain.NewTaskParams{EstimatedDuration: 120})
		q := taskWith(t, taskdomain.NewTaskParams{
			EstimatedDuration: 30,
			Dependencies:      []uuid.UUID{p.ID()},
		})

		assert.False(t, placer.Place(p, "").Placed())
		placement := placer.Place(q, "")
		assert.False(t, placement.Placed())
		assert.Equal(t, OverflowDepUnplaced, placement.OverflowReason)
	})
}

func TestPlacerSplitting(t *testing.T) {
	now := at(8, 0)

	t.Run("splits across intervals with 30 minute chunks", func(t *testing.T) {
		free := NewFreeList(Interval{Start: at(9, 0), End: at(17, 0)})
		free.Subtract(Interval{Start: at(10, 0), End: at(16, 0)})
		// Free: [9:00,10:00) and [16:00,17:00).
		placer := newPlacer(t, free, now)

		task := taskWith(t, taskdomain.NewTaskParams{EstimatedDuration: 90})
		placement := placer.Place(task, "")
		require.True(t, placement.Placed())
		require.Len(t, placement.Blocks, 2)
		assert.Equal(t, Interval{Start: at(9, 0), End: at(10, 0)}, placement.Blocks[0])
		assert.Equal(t, Interval{Start: at(16, 0), End: at(16, 30)}, placement.Blocks[1])

		var total time.Duration
		for _, b := range placement.Blocks {
			total += b.Duration()
		}
		assert.Equal(t, 90*time.Minute, total)
	})

	t.Run("never leaves an undersized tail", func(t *testing.T) {
		free := NewFreeList(Interval{Start: at(9, 0), End: at(17, 0)})
		free.Subtract(Interval{Start: at(10, 0), End: at(16, 0)})
		placer := newPlacer(t, free, now)

		// 100 minutes: 60 + 40 would leave no undersized chunk, but a
		// naive 60 + 40 split is fine; 80 minutes would need 60 + 20,
		// which must instead become 50 + 30.
		task := taskWith(t, taskdomain.NewTaskParams{EstimatedDuration: 80})
		placement := placer.Place(task, "")
		require.True(t, placement.Placed())
		for _, b := range placement.Blocks {
			assert.GreaterOrEqual(t, b.Duration(), MinChunk)
		}
	})

	t.Run("coarser granularity rejects fragments a finer one uses", func(t *testing.T) {
		// Free: [9:00,9:30) and [16:00,18:00). At the default 30-minute
		// granularity a 150-minute task splits 30 + 120; at one hour the
		// leading fragment is unusable and the task overflows.
		layout := func() *FreeList {
			free := NewFreeList(Interval{Start: at(9, 0), End: at(18, 0)})
			free.Subtract(Interval{Start: at(9, 30), End: at(16, 0)})
			return free
		}

		fine := newPlacer(t, layout(), now)
		task := taskWith(t, taskdomain.NewTaskParams{EstimatedDuration: 150})
		placement := fine.Place(task, "")
		require.True(t, placement.Placed())
		require.Len(t, placement.Blocks, 2)
		assert.Equal(t, Interval{Start: at(9, 0), End: at(9, 30)}, placement.Blocks[0])
		assert.Equal(t, Interval{Start: at(16, 0), End: at(18, 0)}, placement.Blocks[1])

		coarse := NewPlacer(PlacerConfig{
			Now:         now,
			HorizonEnd:  now.Add(7 * 24 * time.Hour),
			Granularity: time.Hour,
			Location:    time.UTC,
		}, layout())
		hourly := taskWith(t, taskdomain.NewTaskParams{EstimatedDuration: 150})
		rejected := coarse.Place(hourly, "")
		assert.False(t, rejected.Placed())
		assert.Equal(t, OverflowNoCapacity, rejected.OverflowReason)
	})

	t.Run("short task consumes only its duration", func(t *testing.T) {
		free := NewFreeList(Interval{Start: at(9, 0), End: at(10, 0)})
		placer := newPlacer(t, free, now)

		short := taskWith(t, taskdomain.NewTaskParams{EstimatedDuration: 10})
		placement := placer.Place(short, "")
		require.True(t, placement.Placed())
		assert.Equal(t, Interval{Start: at(9, 0), End: at(9, 10)}, placement.Blocks[0])

		// The remainder of the slot is still reservable.
		next := taskWith(t, taskdomain.NewTaskParams{EstimatedDuration: 30})
		nextPlacement := placer.Place(next, "")
		require.True(t, nextPlacement.Placed())
		assert.Equal(t, Interval{Start: at(9, 10), End: at(9, 40)}, nextPlacement.Blocks[0])
	})
}

func TestPlacerConstraintBounds(t *testing.T) {
	now := at(8, 0)

	t.Run("deadline unreachable", func(t *testing.T) {
		free := NewFreeList(Interval{Start: at(12, 0), End: at(17, 0)})
		placer := newPlacer(t, free, now)

		deadline := at(10, 0)
		task := taskWith(t, taskdomain.NewTaskParams{EstimatedDuration: 30, Deadline: &deadline})
		placement := placer.Place(task, "")
		assert.False(t, placement.Placed())
		assert.Equal(t, OverflowDeadlineUnreachable, placement.OverflowReason)
	})

	t.Run("flex window empty", func(t *testing.T) {
		free := NewFreeList(Interval{Start: at(9, 0), End: at(17, 0)})
		free.Subtract(Interval{Start: at(10, 0), End: at(11, 0)})
		placer := newPlacer(t, free, now)

		task := taskWith(t, taskdomain.NewTaskParams{
			EstimatedDuration: 45,
			FlexWindow: &taskdomain.FlexibilityWindow{
				EarliestStart: at(10, 0),
				LatestEnd:     at(11, 0),
			},
		})
		placement := placer.Place(task, "")
		assert.False(t, placement.Placed())
		assert.Equal(t, OverflowFlexWindowEmpty, placement.OverflowReason)
	})

	t.Run("start_after binds at local midnight", func(t *testing.T) {
		loc, err := time.LoadLocation("America/New_York")
		require.NoError(t, err)

		// Horizon across two days in NY time.
		start := time.Date(2026, 4, 1, 12, 0, 0, 0, loc)
		free := NewFreeList(Interval{Start: start, End: start.Add(48 * time.Hour)})
		placer := NewPlacer(PlacerConfig{
			Now:        start,
			HorizonEnd: start.Add(48 * time.Hour),
			Location:   loc,
		}, free)

		after := taskdomain.LocalDate{Year: 2026, Month: 4, Day: 2}
		task := taskWith(t, taskdomain.NewTaskParams{EstimatedDuration: 30, StartAfter: &after})
		placement := placer.Place(task, "")
		require.True(t, placement.Placed())

		midnight := time.Date(2026, 4, 2, 0, 0, 0, 0, loc)
		assert.False(t, placement.Blocks[0].Start.Before(midnight))
	})

	t.Run("pinned blocks are not reused", func(t *testing.T) {
		free := NewFreeList(Interval{Start: at(9, 0), End: at(11, 0)})
		placer := newPlacer(t, free, now)

		pinned, err := NewScheduledBlock(uuid.New(), uuid.New(), at(9, 0), at(10, 0), ScheduledByUser)
		require.NoError(t, err)
		placer.RecordExisting(pinned)

		task := taskWith(t, taskdomain.NewTaskParams{EstimatedDuration: 60})
		placement := placer.Place(task, "")
		require.True(t, placement.Placed())
		assert.Equal(t, Interval{Start: at(10, 0), End: at(11, 0)}, placement.Blocks[0])
	})
}
