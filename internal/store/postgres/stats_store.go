package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/agentarena/internal/domain"
)

// StatsStore implements domain.StatsStore using PostgreSQL. ApplyResult
// commits both agents' record, rating, earnings and per-arena rolling stats
// in a single transaction so a completed match is never half-applied.
type StatsStore struct {
	pool *pgxpool.Pool
}

// NewStatsStore creates a new StatsStore backed by the given connection pool.
func NewStatsStore(pool *pgxpool.Pool) *StatsStore {
	return &StatsStore{pool: pool}
}

// ApplyResult applies one match outcome for both agents.
func (s *StatsStore) ApplyResult(ctx context.Context, p domain.ApplyResultParams) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin apply result: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, o := range p.Outcomes {
		if err := applyOutcome(ctx, tx, p, o); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit apply result: %w", err)
	}
	return nil
}

func applyOutcome(ctx context.Context, tx pgx.Tx, p domain.ApplyResultParams, o domain.AgentOutcome) error {
	var winInc, lossInc, drawInc int
	switch o.Score {
	case 1:
		winInc = 1
	case 0:
		lossInc = 1
	default:
		drawInc = 1
	}

	// Agent record, rating and lifetime earnings.
	tag, err := tx.Exec(ctx, `
		UPDATE agents SET
			rating = $1,
			wins = wins + $2,
			losses = losses + $3,
			draws = draws + $4,
			total_earnings = total_earnings + $5,
			updated_at = NOW()
		WHERE id = $6`,
		o.NewRating, winInc, lossInc, drawInc, o.Earnings, o.AgentID,
	)
	if err != nil {
		return fmt.Errorf("postgres: update agent %s: %w", o.AgentID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}

	// Owner receives the earnings.
	if o.Earnings > 0 {
		_, err = tx.Exec(ctx, `
			UPDATE users SET balance = balance + $1, updated_at = NOW()
			WHERE id = (SELECT owner_id FROM agents WHERE id = $2)`,
			o.Earnings, o.AgentID,
		)
		if err != nil {
			return fmt.Errorf("postgres: credit owner of %s: %w", o.AgentID, err)
		}
	}

	// Per-arena rolling stats. Streak resets on a non-win; avg rounds is a
	// running mean over the match count.
	var cur domain.ArenaStats
	err = tx.QueryRow(ctx, `
		SELECT wins, losses, draws, earnings, current_streak, longest_streak, avg_rounds, matches
		FROM agent_arena_stats WHERE agent_id = $1 AND arena = $2 FOR UPDATE`,
		o.AgentID, string(p.Arena),
	).Scan(&cur.Wins, &cur.Losses, &cur.Draws, &cur.Earnings,
		&cur.CurrentStreak, &cur.LongestStreak, &cur.AvgRounds, &cur.Matches)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("postgres: load arena stats %s: %w", o.AgentID, err)
	}

	cur.Wins += winInc
	cur.Losses += lossInc
	cur.Draws += drawInc
	cur.Earnings += o.Earnings
	if winInc == 1 {
		cur.CurrentStreak++
		if cur.CurrentStreak > cur.LongestStreak {
			cur.LongestStreak = cur.CurrentStreak
		}
	} else {
		cur.CurrentStreak = 0
	}
	cur.AvgRounds = (cur.AvgRounds*float64(cur.Matches) + float64(p.Rounds)) / float64(cur.Matches+1)
	cur.Matches++

	_, err = tx.Exec(ctx, `
		INSERT INTO agent_arena_stats (
			agent_id, arena, wins, losses, draws, earnings,
			current_streak, longest_streak, avg_rounds, matches, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())
		ON CONFLICT (agent_id, arena) DO UPDATE SET
			wins = EXCLUDED.wins,
			losses = EXCLUDED.losses,
			draws = EXCLUDED.draws,
			earnings = EXCLUDED.earnings,
			current_streak = EXCLUDED.current_streak,
			longest_streak = EXCLUDED.longest_streak,
			avg_rounds = EXCLUDED.avg_rounds,
			matches = EXCLUDED.matches,
			updated_at = NOW()`,
		o.AgentID, string(p.Arena), cur.Wins, cur.Losses, cur.Draws, cur.Earnings,
		cur.CurrentStreak, cur.LongestStreak, cur.AvgRounds, cur.Matches,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert arena stats %s: %w", o.AgentID, err)
	}
	return nil
}

// GetArenaStats loads an agent's rolling stats for one arena.
func (s *StatsStore) GetArenaStats(ctx context.Context, agentID string, arena domain.Arena) (domain.ArenaStats, error) {
	st := domain.ArenaStats{AgentID: agentID, Arena: arena}
	err := s.pool.QueryRow(ctx, `
		SELECT wins, losses, draws, earnings, current_streak, longest_streak, avg_rounds, matches, updated_at
		FROM agent_arena_stats WHERE agent_id = $1 AND arena = $2`,
		agentID, string(arena),
	).Scan(&st.Wins, &st.Losses, &st.Draws, &st.Earnings,
		&st.CurrentStreak, &st.LongestStreak, &st.AvgRounds, &st.Matches, &st.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ArenaStats{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.ArenaStats{}, fmt.Errorf("postgres: get arena stats %s: %w", agentID, err)
	}
	return st, nil
}
