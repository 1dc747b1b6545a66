// Package settle converts a final match result into balance changes, Elo
// updates and per-arena statistics, committed as one financial transaction
// with a separately retryable notification write.
package settle

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/alanyoungcy/agentarena/internal/domain"
)

// Service applies match results to agents, owners and stats.
type Service struct {
	agents domain.AgentStore
	stats  domain.StatsStore
	notes  domain.NotificationStore
	logger *slog.Logger
}

// NewService creates a settlement Service.
func NewService(agents domain.AgentStore, stats domain.StatsStore, notes domain.NotificationStore, logger *slog.Logger) *Service {
	return &Service{
		agents: agents,
		stats:  stats,
		notes:  notes,
		logger: logger.With(slog.String("component", "settlement")),
	}
}

// Scores returns the game outcome per side. A match without agreement
// counts as a loss for both agents.
func Scores(res domain.MatchResult) (float64, float64) {
	if !res.Agreed {
		return 0, 0
	}
	if res.WinnerID == nil {
		return 0.5, 0.5
	}
	if *res.WinnerID == res.Agent1ID {
		return 1, 0
	}
	return 0, 1
}

// Apply settles a completed match: Elo updates against pre-match ratings,
// prize earnings net of the platform fee, win/loss/draw counters, balance
// credits and arena stats, all in one transaction. The per-owner result
// notification is written afterwards so a crash after the financial commit
// can safely retry the notification without re-applying money.
func (s *Service) Apply(ctx context.Context, m domain.Match, res domain.MatchResult) error {
	a1, err := s.agents.GetByID(ctx, res.Agent1ID)
	if err != nil {
		return fmt.Errorf("settle: load agent 1: %w", err)
	}
	a2, err := s.agents.GetByID(ctx, res.Agent2ID)
	if err != nil {
		return fmt.Errorf("settle: load agent 2: %w", err)
	}

	score1, score2 := Scores(res)
	distributable := m.PrizePool - m.PlatformFee
	if distributable < 0 {
		distributable = 0
	}

	var earn1, earn2 float64
	if res.Agreed {
		earn1 = distributable * res.Split1 / 100
		earn2 = distributable * res.Split2 / 100
	}

	p := domain.ApplyResultParams{
		MatchID: res.MatchID,
		Arena:   res.Arena,
		Rounds:  res.TotalRounds,
		Outcomes: [2]domain.AgentOutcome{
			{
				AgentID:   a1.ID,
				Score:     score1,
				NewRating: NewRating(a1.Rating, a2.Rating, score1),
				Earnings:  earn1,
			},
			{
				AgentID:   a2.ID,
				Score:     score2,
				NewRating: NewRating(a2.Rating, a1.Rating, score2),
				Earnings:  earn2,
			},
		},
	}

	if err := s.stats.ApplyResult(ctx, p); err != nil {
		return fmt.Errorf("settle: apply result %s: %w", res.MatchID, err)
	}

	s.logger.InfoContext(ctx, "match settled",
		slog.String("match_id", res.MatchID),
		slog.Float64("earnings_1", earn1),
		slog.Float64("earnings_2", earn2),
		slog.Int("rating_1", p.Outcomes[0].NewRating),
		slog.Int("rating_2", p.Outcomes[1].NewRating),
	)

	s.notifyOwner(ctx, a1, res, score1, earn1)
	s.notifyOwner(ctx, a2, res, score2, earn2)
	return nil
}

func (s *Service) notifyOwner(ctx context.Context, a domain.Agent, res domain.MatchResult, score, earnings float64) {
	var title string
	switch score {
	case 1:
		title = fmt.Sprintf("%s won its match", a.Name)
	case 0.5:
		title = fmt.Sprintf("%s drew its match", a.Name)
	default:
		title = fmt.Sprintf("%s lost its match", a.Name)
	}

	n := domain.Notification{
		ID:     uuid.New().String(),
		UserID: a.OwnerID,
		Kind:   domain.NotifyMatchResult,
		RefID:  res.MatchID + ":" + a.ID,
		Title:  title,
		Body:   fmt.Sprintf("Final after %d rounds; earnings %.2f.", res.TotalRounds, earnings),
	}
	if err := s.notes.Upsert(ctx, n); err != nil {
		s.logger.ErrorContext(ctx, "result notification upsert failed",
			slog.String("match_id", res.MatchID),
			slog.String("agent_id", a.ID),
			slog.String("error", err.Error()),
		)
	}
}
