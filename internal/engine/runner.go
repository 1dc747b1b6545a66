package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Runner launches matches as fire-and-forget tasks on a bounded worker pool.
// Each task carries its own error boundary: a panic or engine error cancels
// that match only, never the pool. Callers of Launch never await completion.
type Runner struct {
	engine *Engine
	group  *errgroup.Group
	ctx    context.Context
	logger *slog.Logger

	mu      sync.Mutex
	stopped bool
}

// NewRunner creates a Runner executing at most maxConcurrent matches at a
// time on the given lifecycle context.
func NewRunner(ctx context.Context, engine *Engine, maxConcurrent int, logger *slog.Logger) *Runner {
	g, gctx := errgroup.WithContext(ctx)
	if maxConcurrent > 0 {
		g.SetLimit(maxConcurrent)
	}
	return &Runner{
		engine: engine,
		group:  g,
		ctx:    gctx,
		logger: logger.With(slog.String("component", "runner")),
	}
}

// Launch schedules a match run and returns immediately. The spawned task
// absorbs panics and errors; worker errors never propagate to the pool.
func (r *Runner) Launch(matchID string) {
	// The mutex stays held across Go so a racing Shutdown cannot reach
	// Wait between the stopped check and the task being added.
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		r.logger.Warn("launch after shutdown ignored", slog.String("match_id", matchID))
		return
	}

	r.group.Go(func() error {
		defer func() {
			if rec := recover(); rec != nil {
				r.logger.Error("match run panicked",
					slog.String("match_id", matchID),
					slog.Any("panic", rec),
				)
				m, err := r.engine.matches.GetByID(context.WithoutCancel(r.ctx), matchID)
				if err == nil {
					r.engine.cancelMatch(r.ctx, m, fmt.Errorf("engine: panic: %v", rec))
				}
			}
		}()

		if _, err := r.engine.RunMatch(r.ctx, matchID); err != nil {
			// Already handled inside RunMatch (cancel + status event); log
			// and swallow so one bad match never stops the pool.
			r.logger.Error("match run failed",
				slog.String("match_id", matchID),
				slog.String("error", err.Error()),
			)
		}
		return nil
	})
}

// Shutdown stops accepting launches and waits for in-flight matches.
func (r *Runner) Shutdown() {
	r.mu.Lock()
	r.stopped = true
	r.mu.Unlock()
	_ = r.group.Wait()
}
