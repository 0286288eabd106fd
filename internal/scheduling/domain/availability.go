package domain

// BusyInterval is an external calendar interval as seen by the
// availability builder. Only the interval and the managed marker are
// consumed; titles, notes and attendees are never read.
type BusyInterval struct {
	Interval
	// Managed is true when the interval originates from an
	// engine-managed event.
	Managed bool
}

// BuildAvailability computes the free list for a rebuild: the horizon
// minus pinned scheduled blocks minus external events that are not
// engine-managed. Managed events are excluded from subtraction; the
// engine re-derives their intervals from its own blocks.
func BuildAvailability(horizon Interval, pinned []*ScheduledBlock, external []BusyInterval) *FreeList {
	free := NewFreeList(horizon)

	var busy []Interval
	for _, block := range pinned {
		busy = append(busy, block.Interval())
	}
	for _, ext := range external {
		if ext.Managed {
			continue
		}
		busy = append(busy, ext.Interval)
	}
	free.SubtractAll(NormalizeIntervals(busy))
	return free
}
