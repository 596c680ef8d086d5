package worker

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// FastCache receives the per-position P&L figures every cycle, regardless of
// whether the durable store was written. UIs read from here.
type FastCache interface {
	WritePnL(ctx context.Context, positionID uint, unrealized, day, price float64) error
}

// CycleStats summarizes one worker pass for liveness monitoring. A beat that
// only carries a timestamp cannot distinguish a healthy worker from one that
// scans zero rows or errors on every write.
type CycleStats struct {
	Scanned int
	Updated int
	Skipped int
	Errors  int
	Elapsed time.Duration
	At      time.Time
}

// HeartbeatStore records worker liveness and the outcome of the last cycle
type HeartbeatStore interface {
	Beat(ctx context.Context, worker string, stats CycleStats) error
}

// RedisFastCache implements FastCache on a Redis hash per position
type RedisFastCache struct {
	redis *redis.Client
	ttl   time.Duration
}

// NewRedisFastCache creates a RedisFastCache. Entries expire after ttl so a
// closed position's stale P&L does not linger.
func NewRedisFastCache(rdb *redis.Client, ttl time.Duration) *RedisFastCache {
	return &RedisFastCache{redis: rdb, ttl: ttl}
}

// WritePnL implements FastCache
func (c *RedisFastCache) WritePnL(ctx context.Context, positionID uint, unrealized, day, price float64) error {
	key := "position_pnl:" + strconv.FormatUint(uint64(positionID), 10)
	if err := c.redis.HSet(ctx, key, map[string]interface{}{
		"unrealized": unrealized,
		"day":        day,
		"price":      price,
		"ts":         time.Now().UnixMilli(),
	}).Err(); err != nil {
		return fmt.Errorf("fast cache write for position %d: %w", positionID, err)
	}
	return c.redis.Expire(ctx, key, c.ttl).Err()
}

// RedisHeartbeatStore implements HeartbeatStore on a Redis key per worker
type RedisHeartbeatStore struct {
	redis *redis.Client
}

// NewRedisHeartbeatStore creates a RedisHeartbeatStore
func NewRedisHeartbeatStore(rdb *redis.Client) *RedisHeartbeatStore {
	return &RedisHeartbeatStore{redis: rdb}
}

// Beat implements HeartbeatStore
func (s *RedisHeartbeatStore) Beat(ctx context.Context, worker string, stats CycleStats) error {
	key := "worker_heartbeat:" + worker
	if err := s.redis.HSet(ctx, key, map[string]interface{}{
		"scanned":    stats.Scanned,
		"updated":    stats.Updated,
		"skipped":    stats.Skipped,
		"errors":     stats.Errors,
		"elapsed_ms": stats.Elapsed.Milliseconds(),
		"at":         stats.At.UnixMilli(),
	}).Err(); err != nil {
		return fmt.Errorf("heartbeat write for worker %s: %w", worker, err)
	}
	return s.redis.Expire(ctx, key, 5*time.Minute).Err()
}
