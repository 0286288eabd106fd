package domain

import (
	"sort"
	"time"
)

// Interval is a half-open time range [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

// Duration returns End - Start.
func (i Interval) Duration() time.Duration { return i.End.Sub(i.Start) }

// IsValid reports Start < End.
func (i Interval) IsValid() bool { return i.Start.Before(i.End) }

// Overlaps reports whether two half-open intervals intersect.
func (i Interval) Overlaps(other Interval) bool {
	return i.Start.Before(other.End) && other.Start.Before(i.End)
}

// Contains reports whether other lies fully inside i.
func (i Interval) Contains(other Interval) bool {
	return !other.Start.Before(i.Start) && !other.End.After(i.End)
}

// Clamp trims the interval to [start, end). The zero Interval is returned
// when nothing remains.
func (i Interval) Clamp(start, end time.Time) Interval {
	s, e := i.Start, i.End
	if s.Before(start) {
		s = start
	}
	if e.After(end) {
		e = end
	}
	if !s.Before(e) {
		return Interval{}
	}
	return Interval{Start: s, End: e}
}

// FreeList is an ordered, non-overlapping list of free intervals. It is
// rebuild-local state; nothing shares it across invocations.
type FreeList struct {
	intervals []Interval
}

// NewFreeList creates a free list covering the whole horizon.
func NewFreeList(horizon Interval) *FreeList {
	if !horizon.IsValid() {
		return &FreeList{}
	}
	return &FreeList{intervals: []Interval{horizon}}
}

// Intervals returns a copy of the current free intervals.
func (f *FreeList) Intervals() []Interval {
	out := make([]Interval, len(f.intervals))
	copy(out, f.intervals)
	return out
}

// Subtract removes a busy interval from the free list, splitting free
// intervals as needed. Invalid busy intervals are ignored.
func (f *FreeList) Subtract(busy Interval) {
	if !busy.IsValid() {
		return
	}
	var out []Interval
	for _, free := range f.intervals {
		if !free.Overlaps(busy) {
			out = append(out, free)
			continue
		}
		if free.Start.Before(busy.Start) {
			out = append(out, Interval{Start: free.Start, End: busy.Start})
		}
		if busy.End.Before(free.End) {
			out = append(out, Interval{Start: busy.End, End: free.End})
		}
	}
	f.intervals = out
}

// SubtractAll removes every busy interval.
func (f *FreeList) SubtractAll(busy []Interval) {
	for _, b := range busy {
		f.Subtract(b)
	}
}

// Within returns the free intervals clipped to [start, end), in order.
func (f *FreeList) Within(start, end time.Time) []Interval {
	var out []Interval
	for _, free := range f.intervals {
		clipped := free.Clamp(start, end)
		if clipped.IsValid() {
			out = append(out, clipped)
		}
	}
	return out
}

// TotalWithin returns the cumulative free duration inside [start, end).
func (f *FreeList) TotalWithin(start, end time.Time) time.Duration {
	var total time.Duration
	for _, iv := range f.Within(start, end) {
		total += iv.Duration()
	}
	return total
}

// NormalizeIntervals sorts and merges overlapping or adjacent intervals
// into a canonical ordered, non-overlapping list.
func NormalizeIntervals(intervals []Interval) []Interval {
	var valid []Interval
	for _, iv := range intervals {
		if iv.IsValid() {
			valid = append(valid, iv)
		}
	}
	if len(valid) == 0 {
		return nil
	}
	sort.Slice(valid, func(i, j int) bool { return valid[i].Start.Before(valid[j].Start) })

	out := []Interval{valid[0]}
	for _, iv := range valid[1:] {
		last := &out[len(out)-1]
		if !iv.Start.After(last.End) {
			if iv.End.After(last.End) {
				last.End = iv.End
			}
			continue
		}
		out = append(out, iv)
	}
	return out
}
