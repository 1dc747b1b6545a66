package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/agentarena/internal/bus"
	"github.com/alanyoungcy/agentarena/internal/domain"
	"github.com/alanyoungcy/agentarena/internal/engine"
	"github.com/alanyoungcy/agentarena/internal/market"
	"github.com/alanyoungcy/agentarena/internal/queue"
	"github.com/alanyoungcy/agentarena/internal/server"
	"github.com/alanyoungcy/agentarena/internal/server/handler"
	"github.com/alanyoungcy/agentarena/internal/server/ws"
	"github.com/alanyoungcy/agentarena/internal/settle"
	"github.com/alanyoungcy/agentarena/internal/strategy"
	"github.com/alanyoungcy/agentarena/internal/tournament"
)

// core bundles the match pipeline built on top of wired dependencies.
type core struct {
	engine *engine.Engine
	runner *engine.Runner
}

// buildCore assembles the market maker, rating settler and match engine.
func (a *App) buildCore(ctx context.Context, deps *Dependencies, pacing engine.Pacing) *core {
	maker := market.NewMaker(deps.Markets, deps.Notifications, a.logger)
	settler := settle.NewService(deps.Agents, deps.Stats, deps.Notifications, a.logger)
	publisher := bus.NewPublisher(deps.SignalBus, a.logger)

	seed := a.cfg.Engine.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	// Typed-nil guard: only hand the engine an archiver when one exists.
	var archiver engine.Archiver
	if deps.Archiver != nil {
		archiver = deps.Archiver
	}

	eng := engine.New(engine.Config{
		Matches:  deps.Matches,
		Rounds:   deps.Rounds,
		Messages: deps.Messages,
		Agents:   deps.Agents,
		Maker:    maker,
		Settler:  settler,
		Pub:      publisher,
		Live:     deps.LiveCounter,
		Archiver: archiver,
		Alerter:  deps.Notifier,
		Rng:      strategy.NewRand(seed),
		Pacing:   pacing,
	}, a.logger)

	runner := engine.NewRunner(ctx, eng, a.cfg.Engine.MaxConcurrentMatches, a.logger)
	return &core{engine: eng, runner: runner}
}

// ServeMode runs the full platform: HTTP + WebSocket API, matchmaking queue,
// tournaments and the live match engine.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode")

	g, ctx := errgroup.WithContext(ctx)

	pacing := engine.Pacing{
		Enabled:       a.cfg.Engine.PacingEnabled,
		MaxDelay:      a.cfg.Engine.MaxDelay.Duration,
		SpeedTradeMax: a.cfg.Engine.SpeedTradeMax.Duration,
	}
	c := a.buildCore(ctx, deps, pacing)
	defer c.runner.Shutdown()

	var queueSvc *queue.Service
	if a.cfg.Queue.Enabled {
		queueSvc = queue.NewService(deps.Matches, deps.Agents, c.engine, c.runner, a.logger)
	}

	brackets := tournament.NewOrchestrator(
		deps.Tournaments, deps.Matches, deps.Agents, c.engine, c.runner, deps.LockManager, a.logger,
	)

	// WebSocket hub bridging the signal bus to spectators.
	hub := ws.NewHub(deps.SignalBus, a.logger)
	g.Go(func() error {
		return hub.Run(ctx)
	})

	if a.cfg.Server.Enabled {
		var transcripts handler.TranscriptReader
		if deps.Transcripts != nil {
			transcripts = deps.Transcripts
		}

		handlers := server.Handlers{
			Health:  handler.NewHealthHandler(),
			Status:  handler.NewStatusHandler(a.cfg.Mode, deps.LiveCounter, a.logger),
			Users:   handler.NewUserHandler(deps.Users, deps.Notifications, deps.Bets, a.logger),
			Agents:  handler.NewAgentHandler(deps.Agents, deps.Stats, a.logger),
			Matches: handler.NewMatchHandler(c.engine, c.runner, deps.Matches, deps.Rounds, deps.Messages, transcripts, a.logger),
			Markets: handler.NewMarketHandler(deps.Markets, deps.Bets, a.logger),
			Tournaments: handler.NewTournamentHandler(
				brackets, deps.Tournaments, a.logger,
			),
		}
		if queueSvc != nil {
			handlers.Queue = handler.NewQueueHandler(queueSvc, a.logger)
		}

		srv := server.NewServer(server.Config{
			Port:        a.cfg.Server.Port,
			CORSOrigins: a.cfg.Server.CORSOrigins,
			AdminToken:  a.cfg.Server.AdminToken,
		}, handlers, hub, deps.RateLimiter, a.logger)

		g.Go(srv.Start)
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	return g.Wait()
}

// simRoster pairs an archetype with a display name for the seeded exhibition
// run.
var simRoster = []struct {
	name     string
	strategy domain.StrategyType
}{
	{"Hammer", domain.StrategyAggressive},
	{"Anchor", domain.StrategyDefensive},
	{"Broker", domain.StrategyBalanced},
	{"Wildcard", domain.StrategyChaotic},
	{"Piledriver", domain.StrategyAggressive},
	{"Bulwark", domain.StrategyDefensive},
	{"Diplomat", domain.StrategyBalanced},
	{"Joker", domain.StrategyChaotic},
}

// simArenas is the order exhibition matches are run in.
var simArenas = []domain.Arena{
	domain.ArenaNegotiation,
	domain.ArenaAuction,
	domain.ArenaSpeedTrade,
	domain.ArenaBarter,
}

// SimulateMode seeds a roster of agents and runs one exhibition match per
// arena to completion, with pacing disabled. Useful for smoke-testing the
// whole pipeline against a fresh database.
func (a *App) SimulateMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting simulate mode")

	c := a.buildCore(ctx, deps, engine.Pacing{Enabled: false})

	agents, err := a.seedRoster(ctx, deps)
	if err != nil {
		return err
	}

	created := 0
	for i, arena := range simArenas {
		a1, a2 := agents[2*i], agents[2*i+1]
		pool := arena.MinPrizePool() * 10

		m, err := c.engine.CreateMatch(ctx, a1.ID, a2.ID, arena, pool, 0)
		if err != nil {
			a.logger.ErrorContext(ctx, "simulate: match creation failed",
				slog.String("arena", string(arena)),
				slog.String("error", err.Error()),
			)
			continue
		}
		c.runner.Launch(m.ID)
		created++
	}

	// Wait for all launched matches to reach a terminal state.
	c.runner.Shutdown()

	a.logger.InfoContext(ctx, "simulation finished", slog.Int("matches", created))
	return nil
}

// seedRoster creates two owners and the exhibition agents.
func (a *App) seedRoster(ctx context.Context, deps *Dependencies) ([]domain.Agent, error) {
	now := time.Now().UTC()

	owners := make([]domain.User, 2)
	for i := range owners {
		owners[i] = domain.User{
			ID:        fmt.Sprintf("sim-user-%d", i+1),
			Name:      fmt.Sprintf("Sim Owner %d", i+1),
			Balance:   10000,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := deps.Users.Create(ctx, owners[i]); err != nil {
			return nil, fmt.Errorf("app: seed user: %w", err)
		}
	}

	agents := make([]domain.Agent, 0, len(simRoster))
	for i, r := range simRoster {
		agent := domain.Agent{
			ID:        fmt.Sprintf("sim-agent-%d", i+1),
			OwnerID:   owners[i%2].ID,
			Name:      r.name,
			Strategy:  r.strategy,
			Rating:    1200,
			Active:    true,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := deps.Agents.Create(ctx, agent); err != nil {
			return nil, fmt.Errorf("app: seed agent %s: %w", agent.Name, err)
		}
		agents = append(agents, agent)
	}
	return agents, nil
}
