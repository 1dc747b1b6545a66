package domain

import (
	"context"
	"io"
	"time"
)

// SignalBus is the raw pub/sub transport live events ride on. Implemented by
// Redis pub/sub in production and by an in-memory bus in tests and
// single-process deployments.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// EventPublisher is the engine-facing event surface. Publish never blocks the
// round loop and never returns an error; delivery is best-effort.
type EventPublisher interface {
	Publish(matchID string, typ EventType, payload any)
}

// LiveCounter tracks the number of currently live matches.
type LiveCounter interface {
	Incr(ctx context.Context) error
	Decr(ctx context.Context) error
	Get(ctx context.Context) (int64, error)
}

// LockManager provides coarse distributed mutual exclusion, used to guard
// tournament round advancement against concurrent sync calls.
type LockManager interface {
	// Acquire returns ErrLockHeld when the lock is already taken.
	Acquire(ctx context.Context, key string, ttlSeconds int) (release func(), err error)
}

// RateLimiter answers whether a keyed action is allowed under a fixed-window
// quota. Used for per-IP limits on the public API.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// BlobWriter uploads an object to blob storage. Used for archived match
// transcripts.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}
