// Package tournament runs single-elimination brackets: power-of-two fields,
// standard seeding, and sync-driven round advancement through the match
// engine.
package tournament

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/agentarena/internal/domain"
)

// MatchCreator creates one bracket match. Implemented by the engine.
type MatchCreator interface {
	CreateTournamentMatch(ctx context.Context, agent1ID, agent2ID string, arena domain.Arena, prizePool float64, tournamentID string, round int) (domain.Match, error)
}

// Launcher starts a created match asynchronously.
type Launcher interface {
	Launch(matchID string)
}

// Orchestrator seeds, pairs and advances brackets.
type Orchestrator struct {
	tournaments domain.TournamentStore
	matches     domain.MatchStore
	agents      domain.AgentStore
	creator     MatchCreator
	launch      Launcher
	locks       domain.LockManager // optional
	logger      *slog.Logger
}

// NewOrchestrator creates a bracket orchestrator. locks may be nil, in which
// case sync calls are unguarded (single-process deployments).
func NewOrchestrator(
	tournaments domain.TournamentStore,
	matches domain.MatchStore,
	agents domain.AgentStore,
	creator MatchCreator,
	launch Launcher,
	locks domain.LockManager,
	logger *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		tournaments: tournaments,
		matches:     matches,
		agents:      agents,
		creator:     creator,
		launch:      launch,
		locks:       locks,
		logger:      logger.With(slog.String("component", "tournament")),
	}
}

// Create opens a new bracket. Size must be a power of two in {4, 8, 16}.
func (o *Orchestrator) Create(ctx context.Context, name string, arena domain.Arena, size int, prizePool float64) (domain.Tournament, error) {
	if size != 4 && size != 8 && size != 16 {
		return domain.Tournament{}, domain.ErrInvalidBracketSize
	}
	if !domain.ValidArena(arena) {
		return domain.Tournament{}, fmt.Errorf("tournament: %q: %w", arena, domain.ErrUnknownArena)
	}

	t := domain.Tournament{
		ID:              uuid.New().String(),
		Name:            name,
		Arena:           arena,
		Status:          domain.TournamentOpen,
		MaxParticipants: size,
		PrizePool:       prizePool,
		CreatedAt:       time.Now().UTC(),
	}
	if err := o.tournaments.Create(ctx, t); err != nil {
		return domain.Tournament{}, fmt.Errorf("tournament: create: %w", err)
	}
	return t, nil
}

// Join registers an agent in an open bracket.
func (o *Orchestrator) Join(ctx context.Context, tournamentID, agentID string) error {
	t, err := o.tournaments.GetByID(ctx, tournamentID)
	if err != nil {
		return fmt.Errorf("tournament: load: %w", err)
	}
	if t.Status != domain.TournamentOpen {
		return domain.ErrTournamentNotOpen
	}

	entries, err := o.tournaments.ListEntries(ctx, tournamentID)
	if err != nil {
		return fmt.Errorf("tournament: list entries: %w", err)
	}
	if len(entries) >= t.MaxParticipants {
		return domain.ErrTournamentFull
	}
	for _, e := range entries {
		if e.AgentID == agentID {
			return domain.ErrAlreadyExists
		}
	}

	agent, err := o.agents.GetByID(ctx, agentID)
	if err != nil {
		return fmt.Errorf("tournament: load agent: %w", err)
	}
	if !agent.Active {
		return domain.FaultFor(agentID, domain.ErrAgentInactive)
	}

	return o.tournaments.Join(ctx, domain.TournamentEntry{
		TournamentID: tournamentID,
		AgentID:      agentID,
		JoinedAt:     time.Now().UTC(),
	})
}

// Start seeds round one and launches its matches. It requires the exact
// participant count: a half-full bracket cannot start.
func (o *Orchestrator) Start(ctx context.Context, tournamentID string) ([]domain.Match, error) {
	t, err := o.tournaments.GetByID(ctx, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("tournament: load: %w", err)
	}
	if t.Status != domain.TournamentOpen {
		return nil, domain.ErrTournamentNotOpen
	}

	entries, err := o.tournaments.ListEntries(ctx, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("tournament: list entries: %w", err)
	}
	if len(entries) != t.MaxParticipants {
		return nil, fmt.Errorf("tournament: %d of %d participants: %w",
			len(entries), t.MaxParticipants, domain.ErrTournamentNotOpen)
	}

	// Seed by current rating, strongest first.
	type seeded struct {
		entry  domain.TournamentEntry
		rating int
	}
	field := make([]seeded, 0, len(entries))
	for _, e := range entries {
		agent, err := o.agents.GetByID(ctx, e.AgentID)
		if err != nil {
			return nil, fmt.Errorf("tournament: load agent %s: %w", e.AgentID, err)
		}
		field = append(field, seeded{entry: e, rating: agent.Rating})
	}
	sort.SliceStable(field, func(i, j int) bool { return field[i].rating > field[j].rating })

	seeds := make(map[string]int, len(field))
	for i, f := range field {
		seeds[f.entry.AgentID] = i + 1
	}
	if err := o.tournaments.SetSeeds(ctx, tournamentID, seeds); err != nil {
		return nil, fmt.Errorf("tournament: set seeds: %w", err)
	}

	// Standard bracket pairing: 1 vs N, 2 vs N-1, and so on.
	n := len(field)
	matches := make([]domain.Match, 0, n/2)
	for i := 0; i < n/2; i++ {
		high := field[i].entry.AgentID
		low := field[n-1-i].entry.AgentID
		m, err := o.creator.CreateTournamentMatch(ctx, high, low, t.Arena, t.PrizePool, tournamentID, 1)
		if err != nil {
			return nil, fmt.Errorf("tournament: create round 1 match: %w", err)
		}
		matches = append(matches, m)
	}

	if err := o.tournaments.SetStatus(ctx, tournamentID, domain.TournamentLive, 1); err != nil {
		return nil, fmt.Errorf("tournament: go live: %w", err)
	}
	for _, m := range matches {
		o.launch.Launch(m.ID)
	}

	o.logger.InfoContext(ctx, "tournament started",
		slog.String("tournament_id", tournamentID),
		slog.Int("participants", n),
	)
	return matches, nil
}

// Sync advances the bracket when every current-round match is terminal.
// A round still in flight reports Advanced=false with a reason, never an
// error.
func (o *Orchestrator) Sync(ctx context.Context, tournamentID string) (domain.SyncResult, error) {
	if o.locks != nil {
		release, err := o.locks.Acquire(ctx, "tournament:sync:"+tournamentID, 30)
		if err != nil {
			if err == domain.ErrLockHeld {
				return domain.SyncResult{Advanced: false, Reason: "sync already in progress"}, nil
			}
			return domain.SyncResult{}, fmt.Errorf("tournament: sync lock: %w", err)
		}
		defer release()
	}

	t, err := o.tournaments.GetByID(ctx, tournamentID)
	if err != nil {
		return domain.SyncResult{}, fmt.Errorf("tournament: load: %w", err)
	}
	if t.Status != domain.TournamentLive {
		return domain.SyncResult{Advanced: false, Reason: fmt.Sprintf("tournament is %s", t.Status)}, nil
	}

	roundMatches, err := o.matches.ListByTournamentRound(ctx, tournamentID, t.CurrentRound)
	if err != nil {
		return domain.SyncResult{}, fmt.Errorf("tournament: list round matches: %w", err)
	}
	if len(roundMatches) == 0 {
		return domain.SyncResult{Advanced: false, Reason: "no matches in current round"}, nil
	}

	for _, m := range roundMatches {
		if !m.Status.Terminal() {
			return domain.SyncResult{
				Advanced: false,
				Reason:   fmt.Sprintf("match %s is still %s", m.ID, m.Status),
			}, nil
		}
	}

	// Resolve winners in bracket order; losers are eliminated at this round.
	winners := make([]string, 0, len(roundMatches))
	for _, m := range roundMatches {
		winner, loser, err := o.resolveMatch(ctx, m)
		if err != nil {
			return domain.SyncResult{}, err
		}
		winners = append(winners, winner)
		if err := o.tournaments.MarkEliminated(ctx, tournamentID, loser, t.CurrentRound); err != nil {
			return domain.SyncResult{}, fmt.Errorf("tournament: eliminate %s: %w", loser, err)
		}
	}

	if len(winners) == 1 {
		if err := o.tournaments.Complete(ctx, tournamentID, winners[0]); err != nil {
			return domain.SyncResult{}, fmt.Errorf("tournament: complete: %w", err)
		}
		o.logger.InfoContext(ctx, "tournament completed",
			slog.String("tournament_id", tournamentID),
			slog.String("winner_id", winners[0]),
		)
		return domain.SyncResult{
			Advanced:  true,
			Completed: true,
			WinnerID:  &winners[0],
		}, nil
	}

	// Pair remaining winners sequentially for the next round.
	next := t.CurrentRound + 1
	created := make([]domain.Match, 0, len(winners)/2)
	for i := 0; i+1 < len(winners); i += 2 {
		m, err := o.creator.CreateTournamentMatch(ctx, winners[i], winners[i+1], t.Arena, t.PrizePool, tournamentID, next)
		if err != nil {
			return domain.SyncResult{}, fmt.Errorf("tournament: create round %d match: %w", next, err)
		}
		created = append(created, m)
	}
	if err := o.tournaments.SetStatus(ctx, tournamentID, domain.TournamentLive, next); err != nil {
		return domain.SyncResult{}, fmt.Errorf("tournament: advance round: %w", err)
	}
	for _, m := range created {
		o.launch.Launch(m.ID)
	}

	o.logger.InfoContext(ctx, "tournament advanced",
		slog.String("tournament_id", tournamentID),
		slog.Int("round", next),
		slog.Int("matches", len(created)),
	)
	return domain.SyncResult{Advanced: true, NewRound: next, Matches: created}, nil
}

// resolveMatch returns the winner and loser of a terminal bracket match,
// falling back to the higher current rating when the match itself recorded
// no explicit winner (a draw or a cancellation).
func (o *Orchestrator) resolveMatch(ctx context.Context, m domain.Match) (winner, loser string, err error) {
	if m.Agent2ID == nil {
		return "", "", fmt.Errorf("tournament: match %s has no second agent", m.ID)
	}
	a1ID, a2ID := m.Agent1ID, *m.Agent2ID

	if m.WinnerID != nil {
		if *m.WinnerID == a1ID {
			return a1ID, a2ID, nil
		}
		return a2ID, a1ID, nil
	}

	a1, err := o.agents.GetByID(ctx, a1ID)
	if err != nil {
		return "", "", fmt.Errorf("tournament: load agent %s: %w", a1ID, err)
	}
	a2, err := o.agents.GetByID(ctx, a2ID)
	if err != nil {
		return "", "", fmt.Errorf("tournament: load agent %s: %w", a2ID, err)
	}
	if a1.Rating >= a2.Rating {
		return a1ID, a2ID, nil
	}
	return a2ID, a1ID, nil
}
