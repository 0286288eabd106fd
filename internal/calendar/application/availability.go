// Package application implements calendar-facing use cases: the
// availability snapshot provider and the managed-event synchronizer.
package application

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/qzwhatnext/qzwhatnext/internal/calendar/domain"
	schedulingdomain "github.com/qzwhatnext/qzwhatnext/internal/scheduling/domain"
	shareddomain "github.com/qzwhatnext/qzwhatnext/internal/shared/domain"
)

// Snapshot is a cached availability read.
type Snapshot struct {
	TakenAt time.Time                       `json:"taken_at"`
	From    time.Time                       `json:"from"`
	To      time.Time                       `json:"to"`
	Busy    []schedulingdomain.BusyInterval `json:"busy"`
}

// SnapshotCache stores the last good availability read per user. Get
// returns (nil, nil) on a miss.
type SnapshotCache interface {
	Get(ctx context.Context, userID uuid.UUID) (*Snapshot, error)
	Put(ctx context.Context, userID uuid.UUID, snapshot *Snapshot) error
}

// AvailabilityProvider reads busy intervals from the external calendar,
// falling back to a recent snapshot when the live read fails. A stale or
// missing snapshot makes availability unavailable and the rebuild aborts.
type AvailabilityProvider struct {
	source domain.ClientSource
	cache  SnapshotCache
	maxAge time.Duration
	clock  func() time.Time
	logger *slog.Logger
}

// NewAvailabilityProvider wires a provider. maxAge bounds snapshot
// staleness.
func NewAvailabilityProvider(source domain.ClientSource, cache SnapshotCache, maxAge time.Duration, logger *slog.Logger) *AvailabilityProvider {
	if maxAge == 0 {
		maxAge = 5 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AvailabilityProvider{
		source: source,
		cache:  cache,
		maxAge: maxAge,
		clock:  time.Now,
		logger: logger,
	}
}

// BusyIntervals implements the rebuild availability port.
func (p *AvailabilityProvider) BusyIntervals(ctx context.Context, userID uuid.UUID, from, to time.Time) ([]schedulingdomain.BusyInterval, error) {
	client, err := p.source.ClientFor(ctx, userID)
	if err != nil {
		// Revoked access is not recoverable from a snapshot.
		return nil, err
	}

	events, err := client.ListEvents(ctx, from, to)
	if err != nil {
		if shareddomain.IsKind(err, shareddomain.KindUnauthorized) {
			return nil, err
		}
		return p.fromSnapshot(ctx, userID, err)
	}

	busy := make([]schedulingdomain.BusyInterval, 0, len(events))
	for _, event := range events {
		busy = append(busy, schedulingdomain.BusyInterval{
			Interval: schedulingdomain.Interval{Start: event.Start, End: event.End},
			Managed:  event.Managed(),
		})
	}

	snapshot := &Snapshot{TakenAt: p.clock(), From: from, To: to, Busy: busy}
	if err := p.cache.Put(ctx, userID, snapshot); err != nil {
		p.logger.WarnContext(ctx, "availability snapshot write failed", "user_id", userID, "error", err)
	}
	return busy, nil
}

func (p *AvailabilityProvider) fromSnapshot(ctx context.Context, userID uuid.UUID, cause error) ([]schedulingdomain.BusyInterval, error) {
	snapshot, err := p.cache.Get(ctx, userID)
	if err != nil || snapshot == nil {
		return nil, shareddomain.NewKindError(shareddomain.KindAvailabilityUnavailable, "no_snapshot", cause)
	}
	if p.clock().Sub(snapshot.TakenAt) > p.maxAge {
		return nil, shareddomain.NewKindError(shareddomain.KindAvailabilityUnavailable, "snapshot_stale", cause)
	}
	p.logger.WarnContext(ctx, "live availability read failed, serving snapshot",
		"user_id", userID, "taken_at", snapshot.TakenAt, "error", cause)
	return snapshot.Busy, nil
}

// MemorySnapshotCache is the in-process cache for local mode and tests.
type MemorySnapshotCache struct {
	mu        sync.RWMutex
	snapshots map[uuid.UUID]*Snapshot
}

func NewMemorySnapshotCache() *MemorySnapshotCache {
	return &MemorySnapshotCache{snapshots: make(map[uuid.UUID]*Snapshot)}
}

func (c *MemorySnapshotCache) Get(_ context.Context, userID uuid.UUID) (*Snapshot, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshots[userID], nil
}

func (c *MemorySnapshotCache) Put(_ context.Context, userID uuid.UUID, snapshot *Snapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snapshots[userID] = snapshot
	return nil
}
