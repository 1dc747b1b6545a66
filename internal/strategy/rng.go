package strategy

import (
	"math/rand"
	"sync"
)

// Rand is the random source every stochastic decision draws from. Injecting
// it lets tests supply a seeded source for deterministic replay.
type Rand interface {
	// Float64 returns a value in [0, 1).
	Float64() float64
	// Intn returns a value in [0, n).
	Intn(n int) int
}

// lockedRand wraps math/rand with a mutex so one source can serve concurrent
// matches.
type lockedRand struct {
	mu  sync.Mutex
	src *rand.Rand
}

// NewRand returns a Rand seeded with the given value.
func NewRand(seed int64) Rand {
	return &lockedRand{src: rand.New(rand.NewSource(seed))}
}

func (r *lockedRand) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.src.Float64()
}

func (r *lockedRand) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.src.Intn(n)
}

// noise returns a uniform value in [-span, span).
func noise(rng Rand, span float64) float64 {
	return (rng.Float64()*2 - 1) * span
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
