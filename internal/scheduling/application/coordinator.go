package application

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrRebuildLocked is returned when another process holds the per-user
// rebuild lock.
var ErrRebuildLocked = errors.New("rebuild already running for user")

// RebuildLock is a per-user advisory lock shared across processes. The TTL
// bounds how long a crashed holder can block others.
type RebuildLock interface {
	TryAcquire(ctx context.Context, userID uuid.UUID, ttl time.Duration) (bool, error)
	Release(ctx context.Context, userID uuid.UUID) error
}

// MemoryRebuildLock is the single-process lock used in local mode and
// tests.
type MemoryRebuildLock struct {
	mu    sync.Mutex
	until map[uuid.UUID]time.Time
}

// NewMemoryRebuildLock creates an in-process rebuild lock.
func NewMemoryRebuildLock() *MemoryRebuildLock {
	return &MemoryRebuildLock{until: make(map[uuid.UUID]time.Time)}
}

func (l *MemoryRebuildLock) TryAcquire(_ context.Context, userID uuid.UUID, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if deadline, held := l.until[userID]; held && time.Now().Before(deadline) {
		return false, nil
	}
	l.until[userID] = time.Now().Add(ttl)
	return true, nil
}

func (l *MemoryRebuildLock) Release(_ context.Context, userID uuid.UUID) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.until, userID)
	return nil
}

type userState struct {
	running bool
	queued  bool
}

// Coordinator serializes rebuilds per user. A trigger arriving while a
// rebuild runs does not start a second one; it marks the user dirty and
// exactly one more rebuild follows when the in-flight one completes, no
// matter how many triggers coalesced.
type Coordinator struct {
	pipeline *Pipeline
	lock     RebuildLock
	lockTTL  time.Duration
	clock    func() time.Time
	logger   *slog.Logger

	mu    sync.Mutex
	users map[uuid.UUID]*userState
}

// NewCoordinator creates a rebuild coordinator.
func NewCoordinator(pipeline *Pipeline, lock RebuildLock, lockTTL time.Duration, logger *slog.Logger) *Coordinator {
	if lockTTL == 0 {
		lockTTL = 2 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		pipeline: pipeline,
		lock:     lock,
		lockTTL:  lockTTL,
		clock:    time.Now,
		logger:   logger,
		users:    make(map[uuid.UUID]*userState),
	}
}

// Trigger requests a rebuild. When one is already in flight for the user
// the request coalesces and Trigger returns (nil, false, nil); the caller
// that owns the running rebuild will pick it up.
func (c *Coordinator) Trigger(ctx context.Context, userID uuid.UUID, trigger string) (*RebuildResult, bool, error) {
	c.mu.Lock()
	st := c.users[userID]
	if st == nil {
		st = &userState{}
		c.users[userID] = st
	}
	if st.running {
		st.queued = true
		c.mu.Unlock()
		c.logger.DebugContext(ctx, "rebuild trigger coalesced", "user_id", userID, "trigger", trigger)
		return nil, false, nil
	}
	st.running = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		st.running = false
		c.mu.Unlock()
	}()

	acquired, err := c.lock.TryAcquire(ctx, userID, c.lockTTL)
	if err != nil {
		return nil, false, err
	}
	if !acquired {
		return nil, false, ErrRebuildLocked
	}
	defer func() {
		if err := c.lock.Release(context.WithoutCancel(ctx), userID); err != nil {
			c.logger.WarnContext(ctx, "rebuild lock release failed", "user_id", userID, "error", err)
		}
	}()

	var result *RebuildResult
	for {
		result, err = c.pipeline.Rebuild(ctx, userID, c.clock(), trigger)
		if err != nil {
			return nil, false, err
		}

		c.mu.Lock()
		queued := st.queued
		st.queued = false
		c.mu.Unlock()
		if !queued {
			return result, true, nil
		}
		trigger = "coalesced"
	}
}
