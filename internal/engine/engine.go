// Package engine drives matches from creation to settlement: four
// arena-specific round loops over the strategy engine, live event emission,
// market repricing, and terminal settlement. A match is owned exclusively by
// its engine goroutine while live; matches never share mutable state except
// through the stores.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/agentarena/internal/domain"
	"github.com/alanyoungcy/agentarena/internal/market"
	"github.com/alanyoungcy/agentarena/internal/settle"
	"github.com/alanyoungcy/agentarena/internal/strategy"
)

// platformFeeRate is the share of the prize pool retained by the platform.
const platformFeeRate = 0.05

// Archiver uploads a completed match transcript to cold storage and returns
// the storage key. Archival is best-effort and runs outside settlement.
type Archiver interface {
	Archive(ctx context.Context, m domain.Match, rounds []domain.RoundRecord, msgs []domain.MatchMessage) (string, error)
}

// Alerter receives operator alerts for abnormal match terminations.
type Alerter interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Pacing controls the cosmetic delays between decisions. Delays have no
// bearing on correctness and are fully compressible to zero in tests.
type Pacing struct {
	Enabled       bool
	MaxDelay      time.Duration
	SpeedTradeMax time.Duration
}

// DefaultPacing is the spectator-friendly pacing profile.
var DefaultPacing = Pacing{
	Enabled:       true,
	MaxDelay:      2500 * time.Millisecond,
	SpeedTradeMax: 600 * time.Millisecond,
}

// Engine creates and runs matches.
type Engine struct {
	matches  domain.MatchStore
	rounds   domain.RoundStore
	messages domain.MessageStore
	agents   domain.AgentStore
	maker    *market.Maker
	settler  *settle.Service
	pub      domain.EventPublisher
	live     domain.LiveCounter
	archiver Archiver // optional
	alerter  Alerter  // optional
	rng      strategy.Rand
	pacing   Pacing
	logger   *slog.Logger
}

// Config bundles the engine's dependencies. Archiver and Alerter are
// optional; Live may be nil in tests.
type Config struct {
	Matches  domain.MatchStore
	Rounds   domain.RoundStore
	Messages domain.MessageStore
	Agents   domain.AgentStore
	Maker    *market.Maker
	Settler  *settle.Service
	Pub      domain.EventPublisher
	Live     domain.LiveCounter
	Archiver Archiver
	Alerter  Alerter
	Rng      strategy.Rand
	Pacing   Pacing
}

// New creates an Engine.
func New(cfg Config, logger *slog.Logger) *Engine {
	return &Engine{
		matches:  cfg.Matches,
		rounds:   cfg.Rounds,
		messages: cfg.Messages,
		agents:   cfg.Agents,
		maker:    cfg.Maker,
		settler:  cfg.Settler,
		pub:      cfg.Pub,
		live:     cfg.Live,
		archiver: cfg.Archiver,
		alerter:  cfg.Alerter,
		rng:      cfg.Rng,
		pacing:   cfg.Pacing,
		logger:   logger.With(slog.String("component", "engine")),
	}
}

// CreateMatch validates the pairing and funds the match: the
// agent-availability check and the entry-fee debit happen in one storage
// transaction so two concurrent creations cannot double-book an agent.
func (e *Engine) CreateMatch(ctx context.Context, agent1ID, agent2ID string, arena domain.Arena, prizePool float64, maxRounds int) (domain.Match, error) {
	return e.createMatch(ctx, agent1ID, agent2ID, arena, prizePool, maxRounds, nil, nil)
}

// CreateTournamentMatch is CreateMatch with bracket linkage.
func (e *Engine) CreateTournamentMatch(ctx context.Context, agent1ID, agent2ID string, arena domain.Arena, prizePool float64, tournamentID string, round int) (domain.Match, error) {
	return e.createMatch(ctx, agent1ID, agent2ID, arena, prizePool, 0, &tournamentID, &round)
}

func (e *Engine) createMatch(ctx context.Context, agent1ID, agent2ID string, arena domain.Arena, prizePool float64, maxRounds int, tournamentID *string, tournamentRound *int) (domain.Match, error) {
	if agent1ID == agent2ID {
		return domain.Match{}, domain.ErrSelfMatch
	}
	if !domain.ValidArena(arena) {
		return domain.Match{}, fmt.Errorf("engine: %q: %w", arena, domain.ErrUnknownArena)
	}
	if prizePool < arena.MinPrizePool() {
		return domain.Match{}, fmt.Errorf("engine: pool %.2f: %w", prizePool, domain.ErrPrizePoolTooSmall)
	}
	if maxRounds <= 0 {
		maxRounds = arena.DefaultRounds()
	}

	m, err := e.matches.CreateFunded(ctx, domain.CreateMatchParams{
		Agent1ID:        agent1ID,
		Agent2ID:        agent2ID,
		Arena:           arena,
		PrizePool:       prizePool,
		PlatformFee:     prizePool * platformFeeRate,
		MaxRounds:       maxRounds,
		EntryFee:        prizePool / 2,
		TournamentID:    tournamentID,
		TournamentRound: tournamentRound,
	})
	if err != nil {
		return domain.Match{}, fmt.Errorf("engine: create match: %w", err)
	}

	e.logger.InfoContext(ctx, "match created",
		slog.String("match_id", m.ID),
		slog.String("arena", string(arena)),
		slog.Float64("prize_pool", prizePool),
	)
	return m, nil
}

// RunMatch drives one match to a terminal state and returns its result.
// Runtime errors force the match to cancelled with a terminal status event;
// cancelled matches are abandoned, never resumed.
func (e *Engine) RunMatch(ctx context.Context, matchID string) (domain.MatchResult, error) {
	m, err := e.matches.GetByID(ctx, matchID)
	if err != nil {
		return domain.MatchResult{}, fmt.Errorf("engine: load match: %w", err)
	}
	if m.Status != domain.MatchStatusPending {
		return domain.MatchResult{}, fmt.Errorf("engine: match %s is %s, not pending", m.ID, m.Status)
	}
	if m.Agent2ID == nil {
		return domain.MatchResult{}, fmt.Errorf("engine: match %s has no opponent", m.ID)
	}

	a1, err := e.agents.GetByID(ctx, m.Agent1ID)
	if err != nil {
		return domain.MatchResult{}, fmt.Errorf("engine: load agent 1: %w", err)
	}
	a2, err := e.agents.GetByID(ctx, *m.Agent2ID)
	if err != nil {
		return domain.MatchResult{}, fmt.Errorf("engine: load agent 2: %w", err)
	}

	res, err := e.runLive(ctx, m, a1, a2)
	if err != nil {
		e.cancelMatch(ctx, m, err)
		return domain.MatchResult{}, err
	}
	return res, nil
}

func (e *Engine) runLive(ctx context.Context, m domain.Match, a1, a2 domain.Agent) (domain.MatchResult, error) {
	now := time.Now().UTC()
	if err := e.matches.Start(ctx, m.ID, now); err != nil {
		return domain.MatchResult{}, fmt.Errorf("engine: start match: %w", err)
	}
	m.Status = domain.MatchStatusLive
	m.StartedAt = &now

	if e.live != nil {
		if err := e.live.Incr(ctx); err != nil {
			e.logger.WarnContext(ctx, "live counter incr failed", slog.String("error", err.Error()))
		}
		defer func() {
			if err := e.live.Decr(context.WithoutCancel(ctx)); err != nil {
				e.logger.WarnContext(ctx, "live counter decr failed", slog.String("error", err.Error()))
			}
		}()
	}

	markets, err := e.maker.CreateForMatch(ctx, m, a1, a2)
	if err != nil {
		return domain.MatchResult{}, err
	}

	e.pub.Publish(m.ID, domain.EventMatchStart, map[string]any{
		"arena":      m.Arena,
		"agent1":     a1.Name,
		"agent2":     a2.Name,
		"max_rounds": m.MaxRounds,
		"prize_pool": m.PrizePool,
	})
	e.publishOdds(m.ID, markets)
	e.systemMessage(ctx, m.ID, 0, fmt.Sprintf("%s vs %s — %s, %d rounds, %.2f on the table.",
		a1.Name, a2.Name, m.Arena, m.MaxRounds, m.PrizePool))

	first := e.firstMover(a1, a2)

	var res domain.MatchResult
	switch m.Arena {
	case domain.ArenaAuction:
		res, err = e.runAuction(ctx, m, a1, a2)
	case domain.ArenaBarter:
		res, err = e.runBarter(ctx, m, a1, a2, first)
	default:
		res, err = e.runBargaining(ctx, m, a1, a2, first)
	}
	if err != nil {
		return domain.MatchResult{}, err
	}

	ended := time.Now().UTC()
	if err := e.matches.Complete(ctx, res, ended); err != nil {
		return domain.MatchResult{}, fmt.Errorf("engine: complete match: %w", err)
	}

	if err := e.maker.SettleAll(ctx, res); err != nil {
		// The market stays in its pre-settlement state and can be retried;
		// the match outcome itself stands.
		e.logger.ErrorContext(ctx, "market settlement failed",
			slog.String("match_id", m.ID),
			slog.String("error", err.Error()),
		)
	}
	if err := e.settler.Apply(ctx, m, res); err != nil {
		e.logger.ErrorContext(ctx, "rating settlement failed",
			slog.String("match_id", m.ID),
			slog.String("error", err.Error()),
		)
	}

	e.pub.Publish(m.ID, domain.EventMatchEnd, map[string]any{
		"agreed":       res.Agreed,
		"winner_id":    res.WinnerID,
		"split1":       res.Split1,
		"split2":       res.Split2,
		"total_rounds": res.TotalRounds,
	})

	e.archive(ctx, m)

	e.logger.InfoContext(ctx, "match completed",
		slog.String("match_id", m.ID),
		slog.Bool("agreed", res.Agreed),
		slog.Int("rounds", res.TotalRounds),
	)
	return res, nil
}

// firstMover picks who opens: rating difference tilts the coin, but the
// draw is never purely deterministic.
func (e *Engine) firstMover(a1, a2 domain.Agent) int {
	bias := float64(a1.Rating-a2.Rating) / 800
	if bias > 0.2 {
		bias = 0.2
	}
	if bias < -0.2 {
		bias = -0.2
	}
	if e.rng.Float64() < 0.5+bias {
		return 1
	}
	return 2
}

// cancelMatch forces a match to cancelled after a runtime failure. Never
// retried automatically.
func (e *Engine) cancelMatch(ctx context.Context, m domain.Match, cause error) {
	ctx = context.WithoutCancel(ctx)
	if err := e.matches.Cancel(ctx, m.ID, time.Now().UTC()); err != nil {
		e.logger.ErrorContext(ctx, "cancel write failed",
			slog.String("match_id", m.ID),
			slog.String("error", err.Error()),
		)
	}
	e.pub.Publish(m.ID, domain.EventStatus, map[string]any{
		"status": domain.MatchStatusCancelled,
		"reason": cause.Error(),
	})
	e.logger.ErrorContext(ctx, "match cancelled",
		slog.String("match_id", m.ID),
		slog.String("error", cause.Error()),
	)
	if e.alerter != nil {
		if err := e.alerter.Notify(ctx, "match_cancelled", "Match cancelled",
			fmt.Sprintf("match %s: %v", m.ID, cause)); err != nil {
			e.logger.WarnContext(ctx, "alert failed", slog.String("error", err.Error()))
		}
	}
}

// archive uploads the transcript to cold storage, best-effort.
func (e *Engine) archive(ctx context.Context, m domain.Match) {
	if e.archiver == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	rounds, err := e.rounds.ListByMatch(ctx, m.ID)
	if err != nil {
		e.logger.WarnContext(ctx, "transcript rounds load failed", slog.String("error", err.Error()))
		return
	}
	msgs, err := e.messages.ListByMatch(ctx, m.ID, domain.ListOpts{})
	if err != nil {
		e.logger.WarnContext(ctx, "transcript messages load failed", slog.String("error", err.Error()))
		return
	}
	key, err := e.archiver.Archive(ctx, m, rounds, msgs)
	if err != nil {
		e.logger.WarnContext(ctx, "transcript archive failed",
			slog.String("match_id", m.ID),
			slog.String("error", err.Error()),
		)
		return
	}
	if err := e.matches.SetTranscriptKey(ctx, m.ID, key); err != nil {
		e.logger.WarnContext(ctx, "transcript key write failed", slog.String("error", err.Error()))
	}
}

// sleep applies cosmetic pacing, clamped per arena and cancellable.
func (e *Engine) sleep(ctx context.Context, arena domain.Arena, d time.Duration) {
	if !e.pacing.Enabled || d <= 0 {
		return
	}
	max := e.pacing.MaxDelay
	if arena == domain.ArenaSpeedTrade {
		max = e.pacing.SpeedTradeMax
	}
	if d > max {
		d = max
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func (e *Engine) publishOdds(matchID string, markets []domain.Market) {
	e.pub.Publish(matchID, domain.EventOdds, map[string]any{"markets": markets})
}

func (e *Engine) systemMessage(ctx context.Context, matchID string, round int, body string) {
	e.appendMessage(ctx, matchID, nil, domain.MessageSystem, round, body)
}

func (e *Engine) appendMessage(ctx context.Context, matchID string, agentID *string, kind domain.MessageKind, round int, body string) {
	msg := domain.MatchMessage{
		ID:        newID(),
		MatchID:   matchID,
		AgentID:   agentID,
		Kind:      kind,
		Round:     round,
		Body:      body,
		CreatedAt: time.Now().UTC(),
	}
	if err := e.messages.Append(ctx, msg); err != nil {
		e.logger.WarnContext(ctx, "message append failed", slog.String("error", err.Error()))
		return
	}
	e.pub.Publish(matchID, domain.EventMessage, msg)
}
