package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func at(h, m int) time.Time {
	return time.Date(2026, 4, 1, h, m, 0, 0, time.UTC)
}

func uuidFor(n byte) uuid.UUID {
	var b [16]byte
	b[15] = n
	return uuid.UUID(b)
}

func TestFreeListSubtract(t *testing.T) {
	t.Run("splits around a busy interval", func(t *testing.T) {
		free := NewFreeList(Interval{Start: at(9, 0), End: at(17, 0)})
		free.Subtract(Interval{Start: at(12, 0), End: at(13, 0)})

		got := free.Intervals()
		require.Len(t, got, 2)
		assert.Equal(t, Interval{Start: at(9, 0), End: at(12, 0)}, got[0])
		assert.Equal(t, Interval{Start: at(13, 0), End: at(17, 0)}, got[1])
	})

	t.Run("trims overlapping edges", func(t *testing.T) {
		free := NewFreeList(Interval{Start: at(9, 0), End: at(12, 0)})
		free.Subtract(Interval{Start: at(8, 0), End: at(10, 0)})
		free.Subtract(Interval{Start: at(11, 30), End: at(14, 0)})

		got := free.Intervals()
		require.Len(t, got, 1)
		assert.Equal(t, Interval{Start: at(10, 0), End: at(11, 30)}, got[0])
	})

	t.Run("full cover empties the list", func(t *testing.T) {
		free := NewFreeList(Interval{Start: at(9, 0), End: at(10, 0)})
		free.Subtract(Interval{Start: at(8, 0), End: at(11, 0)})
		assert.Empty(t, free.Intervals())
	})

	t.Run("adjacent busy interval is a no-op", func(t *testing.T) {
		free := NewFreeList(Interval{Start: at(9, 0), End: at(10, 0)})
		free.Subtract(Interval{Start: at(10, 0), End: at(11, 0)})
		assert.Len(t, free.Intervals(), 1)
	})
}

func TestNormalizeIntervals(t *testing.T) {
	got := NormalizeIntervals([]Interval{
		{Start: at(13, 0), End: at(14, 0)},
		{Start: at(9, 0), End: at(10, 30)},
		{Start: at(10, 0), End: at(11, 0)},
		{Start: at(11, 0), End: at(12, 0)},
		{Start: at(15, 0), End: at(15, 0)}, // invalid, dropped
	})
	require.Len(t, got, 2)
	assert.Equal(t, Interval{Start: at(9, 0), End: at(12, 0)}, got[0])
	assert.Equal(t, Interval{Start: at(13, 0), End: at(14, 0)}, got[1])
}

func TestBuildAvailability(t *testing.T) {
	horizon := Interval{Start: at(9, 0), End: at(17, 0)}

	t.Run("subtracts pinned blocks and unmanaged events", func(t *testing.T) {
		block, err := NewScheduledBlock(uuidFor(1), uuidFor(2), at(10, 0), at(11, 0), ScheduledByUser)
		require.NoError(t, err)

		free := BuildAvailability(horizon, []*ScheduledBlock{block}, []BusyInterval{
			{Interval: Interval{Start: at(13, 0), End: at(14, 0)}, Managed: false},
			{Interval: Interval{Start: at(15, 0), End: at(16, 0)}, Managed: true},
		})

		got := free.Intervals()
		require.Len(t, got, 3)
		assert.Equal(t, Interval{Start: at(9, 0), End: at(10, 0)}, got[0])
		assert.Equal(t, Interval{Start: at(11, 0), End: at(13, 0)}, got[1])
		// The managed event is not subtracted.
		assert.Equal(t, Interval{Start: at(14, 0), End: at(17, 0)}, got[2])
	})
}
