package google

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromWire(t *testing.T) {
	t.Run("timed event keeps its instants", func(t *testing.T) {
		event, ok := fromWire(wireEvent{
			ID:      "evt-1",
			Summary: "standup",
			Start:   wireEventTime{DateTime: "2026-04-01T09:00:00Z"},
			End:     wireEventTime{DateTime: "2026-04-01T09:15:00Z"},
		})
		require.True(t, ok)
		assert.Equal(t, time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC), event.Start)
		assert.Equal(t, time.Date(2026, 4, 1, 9, 15, 0, 0, time.UTC), event.End)
	})

	t.Run("opaque all-day event reserves the whole day", func(t *testing.T) {
		event, ok := fromWire(wireEvent{
			ID:      "evt-2",
			Summary: "offsite",
			Start:   wireEventTime{Date: "2026-04-01"},
			End:     wireEventTime{Date: "2026-04-02"},
		})
		require.True(t, ok)
		assert.Equal(t, time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC), event.Start)
		assert.Equal(t, time.Date(2026, 4, 2, 0, 0, 0, 0, time.UTC), event.End)
	})

	t.Run("all-day bounds follow the event timezone", func(t *testing.T) {
		loc, err := time.LoadLocation("America/New_York")
		require.NoError(t, err)

		event, ok := fromWire(wireEvent{
			ID:    "evt-3",
			Start: wireEventTime{Date: "2026-04-01", TimeZone: "America/New_York"},
			End:   wireEventTime{Date: "2026-04-02", TimeZone: "America/New_York"},
		})
		require.True(t, ok)
		assert.True(t, event.Start.Equal(time.Date(2026, 4, 1, 0, 0, 0, 0, loc)))
		assert.True(t, event.End.Equal(time.Date(2026, 4, 2, 0, 0, 0, 0, loc)))
	})

	t.Run("transparent event is skipped", func(t *testing.T) {
		_, ok := fromWire(wireEvent{
			ID:           "evt-4",
			Transparency: "transparent",
			Start:        wireEventTime{Date: "2026-04-01"},
			End:          wireEventTime{Date: "2026-04-02"},
		})
		assert.False(t, ok)
	})

	t.Run("event without usable bounds is skipped", func(t *testing.T) {
		_, ok := fromWire(wireEvent{ID: "evt-5"})
		assert.False(t, ok)
	})
}
