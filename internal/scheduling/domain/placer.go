package domain

import (
	"time"

	"github.com/google/uuid"

	taskdomain "github.com/qzwhatnext/qzwhatnext/internal/tasks/domain"
)

// Overflow reasons. Overflow is a first-class per-task outcome, not an
// error.
const (
	OverflowNoCapacity         = "no_capacity"
	OverflowDeadlineUnreachable = "deadline_unreachable"
	OverflowFlexWindowEmpty    = "flex_window_empty"
	OverflowDepUnplaced        = "dep_unplaced"
)

// MinChunk is the default minimum chunk for split tasks when no
// granularity is configured.
const MinChunk = 30 * time.Minute

// Placement is the outcome for one task: either Blocks is non-empty, or
// OverflowReason is set. Never both, never neither.
type Placement struct {
	TaskID         uuid.UUID
	Blocks         []Interval
	OverflowReason string
	Reasons        []string
}

// Placed reports whether the task got blocks.
func (p Placement) Placed() bool { return len(p.Blocks) > 0 }

// PlacerConfig holds the placement parameters.
type PlacerConfig struct {
	Now         time.Time
	HorizonEnd  time.Time
	Granularity time.Duration
	Location    *time.Location
}

// Placer walks tasks in rank order and assigns free intervals.
type Placer struct {
	cfg  PlacerConfig
	free *FreeList
	// end instants of placed tasks, for dependency ordering
	placedEnd map[uuid.UUID]time.Time
	failed    map[uuid.UUID]bool
	// tasks announced via ExpectTask but not yet offered
	pending map[uuid.UUID]bool
}

// NewPlacer creates a placer over the given free list. The placer mutates
// the free list as it places.
func NewPlacer(cfg PlacerConfig, free *FreeList) *Placer {
	if cfg.Granularity == 0 {
		cfg.Granularity = MinChunk
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Placer{
		cfg:       cfg,
		free:      free,
		placedEnd: make(map[uuid.UUID]time.Time),
		failed:    make(map[uuid.UUID]bool),
		pending:   make(map[uuid.UUID]bool),
	}
}

// ExpectTask announces a task that will be offered later. A dependent
// offered while one of its dependencies is still expected overflows with
// dep_unplaced instead of jumping ahead of it: a dependency ranked below
// its dependent must never be outrun.
func (p *Placer) ExpectTask(id uuid.UUID) {
	p.pending[id] = true
}

// RecordExisting registers a pinned block so later tasks see its task as
// placed and its interval as busy.
func (p *Placer) RecordExisting(block *ScheduledBlock) {
	p.free.Subtract(block.Interval())
	if end, ok := p.placedEnd[block.TaskID()]; !ok || block.End().After(end) {
		p.placedEnd[block.TaskID()] = block.End()
	}
}

// Place assigns intervals for one task. Tasks must be offered with every
// open dependency before its dependents, regardless of rank; announce the
// whole batch with ExpectTask so misordered offers are caught.
func (p *Placer) Place(task *taskdomain.Task, tierReason string) Placement {
	delete(p.pending, task.ID())
	placement := Placement{TaskID: task.ID()}
	if tierReason != "" {
		placement.Reasons = append(placement.Reasons, tierReason)
	}

	// A task whose dependency overflowed, or has not been placed yet, is
	// itself overflow.
	earliest := p.cfg.Now
	for _, dep := range task.Dependencies() {
		if p.failed[dep] || p.pending[dep] {
			placement.OverflowReason = OverflowDepUnplaced
			p.failed[task.ID()] = true
			return placement
		}
		if end, ok := p.placedEnd[dep]; ok && end.After(earliest) {
			earliest = end
		}
	}

	if sa := task.StartAfter(); sa != nil {
		// start_after binds at local midnight in the user's timezone.
		if m := sa.Midnight(p.cfg.Location); m.After(earliest) {
			earliest = m
		}
	}
	latest := p.cfg.HorizonEnd
	deadlineBound := false
	flexBound := false
	if d := task.Deadline(); d != nil && d.Before(latest) {
		latest = *d
		deadlineBound = true
	}
	if w := task.FlexWindow(); w != nil {
		if w.EarliestStart.After(earliest) {
			earliest = w.EarliestStart
		}
		if w.LatestEnd.Before(latest) {
			latest = w.LatestEnd
			flexBound = true
			deadlineBound = false
		}
	}

	duration := task.Duration()
	if !earliest.Before(latest) || p.free.TotalWithin(earliest, latest) < duration {
		placement.OverflowReason = p.overflowReason(earliest, latest, deadlineBound, flexBound)
		p.failed[task.ID()] = true
		return placement
	}

	blocks, ok := p.fit(earliest, latest, duration)
	if !ok {
		placement.OverflowReason = p.overflowReason(earliest, latest, deadlineBound, flexBound)
		p.failed[task.ID()] = true
		return placement
	}

	for _, b := range blocks {
		p.free.Subtract(b)
		if end, exists := p.placedEnd[task.ID()]; !exists || b.End.After(end) {
			p.placedEnd[task.ID()] = b.End
		}
	}
	placement.Blocks = blocks
	placement.Reasons = append(placement.Reasons, "earliest_fit")
	return placement
}

// fit finds the earliest placement of duration inside [earliest, latest).
// A single contiguous interval is preferred; otherwise the task splits
// across intervals with every chunk at least the configured granularity.
// Tasks shorter than one slot consume only their duration.
func (p *Placer) fit(earliest, latest time.Time, duration time.Duration) ([]Interval, bool) {
	candidates := p.free.Within(earliest, latest)

	// First pass: earliest single contiguous interval that fits.
	for _, iv := range candidates {
		if iv.Duration() >= duration {
			return []Interval{{Start: iv.Start, End: iv.Start.Add(duration)}}, true
		}
	}

	// Split across intervals. Every chunk must be at least one granule,
	// and no chunk may leave an unplaceable undersized tail.
	minChunk := p.cfg.Granularity
	var blocks []Interval
	remaining := duration
	for _, iv := range candidates {
		if remaining <= 0 {
			break
		}
		chunk := iv.Duration()
		if chunk > remaining {
			chunk = remaining
		}
		if chunk < minChunk {
			continue
		}
		if tail := remaining - chunk; tail > 0 && tail < minChunk {
			chunk = remaining - minChunk
			if chunk < minChunk {
				continue
			}
		}
		blocks = append(blocks, Interval{Start: iv.Start, End: iv.Start.Add(chunk)})
		remaining -= chunk
	}
	if remaining > 0 {
		return nil, false
	}
	return blocks, true
}

func (p *Placer) overflowReason(earliest, latest time.Time, deadlineBound, flexBound bool) string {
	if !earliest.Before(latest) {
		switch {
		case flexBound:
			return OverflowFlexWindowEmpty
		case deadlineBound:
			return OverflowDeadlineUnreachable
		default:
			return OverflowNoCapacity
		}
	}
	if flexBound {
		return OverflowFlexWindowEmpty
	}
	if deadlineBound {
		return OverflowDeadlineUnreachable
	}
	return OverflowNoCapacity
}
