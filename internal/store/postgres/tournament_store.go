package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/agentarena/internal/domain"
)

// TournamentStore implements domain.TournamentStore using PostgreSQL.
type TournamentStore struct {
	pool *pgxpool.Pool
}

// NewTournamentStore creates a new TournamentStore backed by the given
// connection pool.
func NewTournamentStore(pool *pgxpool.Pool) *TournamentStore {
	return &TournamentStore{pool: pool}
}

// Create inserts a new tournament.
func (s *TournamentStore) Create(ctx context.Context, t domain.Tournament) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO tournaments (
			id, name, arena, status, max_participants, prize_pool,
			current_round, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, 0, $7, NOW())`,
		t.ID, t.Name, string(t.Arena), string(t.Status), t.MaxParticipants,
		t.PrizePool, t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create tournament %s: %w", t.ID, err)
	}
	return nil
}

// GetByID loads a tournament by ID.
func (s *TournamentStore) GetByID(ctx context.Context, id string) (domain.Tournament, error) {
	var t domain.Tournament
	var arena, status string
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, arena, status, max_participants, prize_pool,
		       current_round, winner_id, created_at, updated_at
		FROM tournaments WHERE id = $1`, id,
	).Scan(&t.ID, &t.Name, &arena, &status, &t.MaxParticipants, &t.PrizePool,
		&t.CurrentRound, &t.WinnerID, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Tournament{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Tournament{}, fmt.Errorf("postgres: get tournament %s: %w", id, err)
	}
	t.Arena = domain.Arena(arena)
	t.Status = domain.TournamentStatus(status)
	return t, nil
}

// Join inserts an entry, rejecting duplicates through the primary key.
func (s *TournamentStore) Join(ctx context.Context, e domain.TournamentEntry) error {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO tournament_entries (tournament_id, agent_id, joined_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (tournament_id, agent_id) DO NOTHING`,
		e.TournamentID, e.AgentID, e.JoinedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: join tournament %s: %w", e.TournamentID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAlreadyExists
	}
	return nil
}

// ListEntries returns a tournament's entries in seed order, unseeded entries
// in join order.
func (s *TournamentStore) ListEntries(ctx context.Context, tournamentID string) ([]domain.TournamentEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT tournament_id, agent_id, seed, eliminated_round, joined_at
		FROM tournament_entries WHERE tournament_id = $1
		ORDER BY seed, joined_at`, tournamentID,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list entries %s: %w", tournamentID, err)
	}
	defer rows.Close()

	var out []domain.TournamentEntry
	for rows.Next() {
		var e domain.TournamentEntry
		if err := rows.Scan(&e.TournamentID, &e.AgentID, &e.Seed, &e.EliminatedRound, &e.JoinedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan entry: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate entries: %w", err)
	}
	return out, nil
}

// SetSeeds writes bracket seeds for all entries in one transaction.
func (s *TournamentStore) SetSeeds(ctx context.Context, tournamentID string, seeds map[string]int) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin set seeds: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for agentID, seed := range seeds {
		_, err = tx.Exec(ctx, `
			UPDATE tournament_entries SET seed = $1
			WHERE tournament_id = $2 AND agent_id = $3`,
			seed, tournamentID, agentID,
		)
		if err != nil {
			return fmt.Errorf("postgres: seed %s: %w", agentID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit set seeds: %w", err)
	}
	return nil
}

// SetStatus moves a tournament to the given status and round.
func (s *TournamentStore) SetStatus(ctx context.Context, id string, status domain.TournamentStatus, round int) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE tournaments SET status = $1, current_round = $2, updated_at = NOW()
		WHERE id = $3`,
		string(status), round, id,
	)
	if err != nil {
		return fmt.Errorf("postgres: set tournament status %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// MarkEliminated records the round an agent went out in.
func (s *TournamentStore) MarkEliminated(ctx context.Context, tournamentID, agentID string, round int) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE tournament_entries SET eliminated_round = $1
		WHERE tournament_id = $2 AND agent_id = $3`,
		round, tournamentID, agentID,
	)
	if err != nil {
		return fmt.Errorf("postgres: eliminate %s: %w", agentID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Complete records the champion and closes the tournament.
func (s *TournamentStore) Complete(ctx context.Context, id string, winnerID string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE tournaments SET status = 'completed', winner_id = $1, updated_at = NOW()
		WHERE id = $2 AND status = 'live'`,
		winnerID, id,
	)
	if err != nil {
		return fmt.Errorf("postgres: complete tournament %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
