// Package infrastructure provides the distributed rebuild lock.
package infrastructure

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock only when this process still owns it, so
// an expired-and-reacquired lock is never released by the old holder.
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`

// RedisRebuildLock is a per-user advisory lock backed by redis SET NX.
type RedisRebuildLock struct {
	client *redis.Client
	owner  string
}

// NewRedisRebuildLock creates a lock keyed per user. Each process gets a
// distinct owner token.
func NewRedisRebuildLock(client *redis.Client) *RedisRebuildLock {
	return &RedisRebuildLock{client: client, owner: uuid.NewString()}
}

func (l *RedisRebuildLock) key(userID uuid.UUID) string {
	return fmt.Sprintf("qzwhatnext:rebuild-lock:%s", userID)
}

// TryAcquire takes the lock when free. Returns false without error when
// another holder owns it.
func (l *RedisRebuildLock) TryAcquire(ctx context.Context, userID uuid.UUID, ttl time.Duration) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key(userID), l.owner, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire rebuild lock: %w", err)
	}
	return ok, nil
}

// Release frees the lock if this process holds it.
func (l *RedisRebuildLock) Release(ctx context.Context, userID uuid.UUID) error {
	if err := l.client.Eval(ctx, releaseScript, []string{l.key(userID)}, l.owner).Err(); err != nil {
		return fmt.Errorf("failed to release rebuild lock: %w", err)
	}
	return nil
}
