package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/agentarena/internal/domain"
)

const liveMatchesKey = "live:matches"

// LiveCounter implements domain.LiveCounter on a single Redis integer key,
// shared across server instances.
type LiveCounter struct {
	rdb *redis.Client
}

// NewLiveCounter creates a LiveCounter backed by the given Client.
func NewLiveCounter(c *Client) *LiveCounter {
	return &LiveCounter{rdb: c.rdb}
}

// Incr bumps the live match count.
func (lc *LiveCounter) Incr(ctx context.Context) error {
	if err := lc.rdb.Incr(ctx, liveMatchesKey).Err(); err != nil {
		return fmt.Errorf("redis: incr live counter: %w", err)
	}
	return nil
}

// Decr drops the live match count, clamping at zero so a crashed run that
// never incremented cannot push it negative.
func (lc *LiveCounter) Decr(ctx context.Context) error {
	n, err := lc.rdb.Decr(ctx, liveMatchesKey).Result()
	if err != nil {
		return fmt.Errorf("redis: decr live counter: %w", err)
	}
	if n < 0 {
		_ = lc.rdb.Set(ctx, liveMatchesKey, 0, 0).Err()
	}
	return nil
}

// Get returns the current live match count.
func (lc *LiveCounter) Get(ctx context.Context) (int64, error) {
	n, err := lc.rdb.Get(ctx, liveMatchesKey).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis: get live counter: %w", err)
	}
	return n, nil
}

// Compile-time interface check.
var _ domain.LiveCounter = (*LiveCounter)(nil)
