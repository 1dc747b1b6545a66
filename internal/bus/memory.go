package bus

import (
	"context"
	"path"
	"sync"

	"github.com/alanyoungcy/agentarena/internal/domain"
)

// MemoryBus is an in-process SignalBus. It supports the same glob-style
// channel patterns on subscribe as the Redis bus. Slow subscribers drop
// messages rather than block publishers.
type MemoryBus struct {
	mu   sync.RWMutex
	subs []*memorySub
}

type memorySub struct {
	pattern string
	ch      chan []byte
}

// NewMemoryBus creates an empty in-memory bus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{}
}

// Publish delivers the payload to every matching subscriber without blocking.
func (b *MemoryBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		if matched, _ := path.Match(sub.pattern, channel); !matched {
			continue
		}
		select {
		case sub.ch <- payload:
		default:
		}
	}
	return nil
}

// Subscribe registers a channel or glob pattern. The subscription is removed
// and its channel closed when ctx is cancelled.
func (b *MemoryBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	sub := &memorySub{pattern: channel, ch: make(chan []byte, 128)}

	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		for i, s := range b.subs {
			if s == sub {
				b.subs = append(b.subs[:i], b.subs[i+1:]...)
				break
			}
		}
		b.mu.Unlock()
		close(sub.ch)
	}()

	return sub.ch, nil
}

// MemoryLiveCounter is an in-process LiveCounter for tests and simulate mode.
type MemoryLiveCounter struct {
	mu sync.Mutex
	n  int64
}

// NewMemoryLiveCounter creates a zeroed counter.
func NewMemoryLiveCounter() *MemoryLiveCounter {
	return &MemoryLiveCounter{}
}

func (c *MemoryLiveCounter) Incr(context.Context) error {
	c.mu.Lock()
	c.n++
	c.mu.Unlock()
	return nil
}

func (c *MemoryLiveCounter) Decr(context.Context) error {
	c.mu.Lock()
	if c.n > 0 {
		c.n--
	}
	c.mu.Unlock()
	return nil
}

func (c *MemoryLiveCounter) Get(context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n, nil
}

// Compile-time interface checks.
var (
	_ domain.SignalBus   = (*MemoryBus)(nil)
	_ domain.LiveCounter = (*MemoryLiveCounter)(nil)
)
