package infrastructure

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/qzwhatnext/qzwhatnext/internal/calendar/application"
)

// snapshotTTL keeps stale snapshots from accumulating; staleness for
// serving purposes is judged by the provider, not by expiry.
const snapshotTTL = 24 * time.Hour

// RedisSnapshotCache stores availability snapshots in redis.
type RedisSnapshotCache struct {
	client *redis.Client
}

func NewRedisSnapshotCache(client *redis.Client) *RedisSnapshotCache {
	return &RedisSnapshotCache{client: client}
}

func (c *RedisSnapshotCache) key(userID uuid.UUID) string {
	return fmt.Sprintf("qzwhatnext:availability:%s", userID)
}

func (c *RedisSnapshotCache) Get(ctx context.Context, userID uuid.UUID) (*application.Snapshot, error) {
	raw, err := c.client.Get(ctx, c.key(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read availability snapshot: %w", err)
	}
	var snapshot application.Snapshot
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to decode availability snapshot: %w", err)
	}
	return &snapshot, nil
}

func (c *RedisSnapshotCache) Put(ctx context.Context, userID uuid.UUID, snapshot *application.Snapshot) error {
	raw, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to encode availability snapshot: %w", err)
	}
	if err := c.client.Set(ctx, c.key(userID), raw, snapshotTTL).Err(); err != nil {
		return fmt.Errorf("failed to store availability snapshot: %w", err)
	}
	return nil
}
