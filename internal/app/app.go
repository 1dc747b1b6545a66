// Package app owns the process lifecycle: it wires the stores, transport,
// blob storage, engine, matchmaking, tournaments and notifications, then
// runs whichever operating mode the config selects.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/agentarena/internal/config"
)

// App carries the config, the root logger and the teardown stack.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates an App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run wires the dependency graph and blocks in the selected mode until the
// context ends.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting arena",
		slog.String("mode", a.cfg.Mode),
		slog.String("log_level", a.cfg.LogLevel),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	switch strings.ToLower(a.cfg.Mode) {
	case "serve":
		return a.ServeMode(ctx, deps)
	case "simulate":
		return a.SimulateMode(ctx, deps)
	}
	return fmt.Errorf("app: unsupported mode %q", a.cfg.Mode)
}

// Close unwinds the teardown stack, newest first. Calling it again after
// the first pass is a no-op.
func (a *App) Close() {
	a.logger.Info("shutting down arena")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
