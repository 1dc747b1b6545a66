package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/agentarena/internal/domain"
)

// MatchStore implements domain.MatchStore using PostgreSQL.
type MatchStore struct {
	pool *pgxpool.Pool
}

// NewMatchStore creates a new MatchStore backed by the given connection pool.
func NewMatchStore(pool *pgxpool.Pool) *MatchStore {
	return &MatchStore{pool: pool}
}

// CreateFunded validates both agents and inserts the match in one
// transaction: each agent row is locked, checked for activity and an existing
// pending or live match, its owner's balance is debited by the entry fee, and
// the match row is written. Any check failure rolls the whole thing back and
// comes out as an AgentFault naming the offending agent.
func (s *MatchStore) CreateFunded(ctx context.Context, p domain.CreateMatchParams) (domain.Match, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return domain.Match{}, fmt.Errorf("postgres: begin create match: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Lock in deterministic order so two concurrent creations over the same
	// pair cannot deadlock.
	first, second := p.Agent1ID, p.Agent2ID
	if second < first {
		first, second = second, first
	}
	for _, agentID := range []string{first, second} {
		if err := s.fundAgent(ctx, tx, agentID, p.EntryFee); err != nil {
			return domain.Match{}, err
		}
	}

	m := domain.Match{
		ID:              newMatchID(),
		Arena:           p.Arena,
		Status:          domain.MatchStatusPending,
		MaxRounds:       p.MaxRounds,
		PrizePool:       p.PrizePool,
		PlatformFee:     p.PlatformFee,
		Agent1ID:        p.Agent1ID,
		Agent2ID:        &p.Agent2ID,
		TournamentID:    p.TournamentID,
		TournamentRound: p.TournamentRound,
		CreatedAt:       time.Now().UTC(),
		UpdatedAt:       time.Now().UTC(),
	}

	const query = `
		INSERT INTO matches (
			id, arena, status, max_rounds, prize_pool, platform_fee,
			agent1_id, agent2_id, tournament_id, tournament_round,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	_, err = tx.Exec(ctx, query,
		m.ID, string(m.Arena), string(m.Status), m.MaxRounds, m.PrizePool, m.PlatformFee,
		m.Agent1ID, m.Agent2ID, m.TournamentID, m.TournamentRound,
		m.CreatedAt, m.UpdatedAt,
	)
	if err != nil {
		return domain.Match{}, fmt.Errorf("postgres: insert match: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Match{}, fmt.Errorf("postgres: commit create match: %w", err)
	}
	return m, nil
}

// fundAgent locks one agent row, verifies it can enter a match, and debits
// its owner's entry fee.
func (s *MatchStore) fundAgent(ctx context.Context, tx pgx.Tx, agentID string, entryFee float64) error {
	var active bool
	var ownerID string
	err := tx.QueryRow(ctx,
		`SELECT owner_id, active FROM agents WHERE id = $1 FOR UPDATE`,
		agentID,
	).Scan(&ownerID, &active)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.FaultFor(agentID, domain.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("postgres: lock agent %s: %w", agentID, err)
	}
	if !active {
		return domain.FaultFor(agentID, domain.ErrAgentInactive)
	}

	var busy bool
	err = tx.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM matches
			WHERE (agent1_id = $1 OR agent2_id = $1)
			  AND status IN ('pending', 'live')
		)`, agentID,
	).Scan(&busy)
	if err != nil {
		return fmt.Errorf("postgres: busy check %s: %w", agentID, err)
	}
	if busy {
		return domain.FaultFor(agentID, domain.ErrAgentBusy)
	}

	tag, err := tx.Exec(ctx, `
		UPDATE users SET balance = balance - $1, updated_at = NOW()
		WHERE id = $2 AND balance >= $1`,
		entryFee, ownerID,
	)
	if err != nil {
		return fmt.Errorf("postgres: debit owner of %s: %w", agentID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.FaultFor(agentID, domain.ErrInsufficientBalance)
	}
	return nil
}

// GetByID loads a match by ID.
func (s *MatchStore) GetByID(ctx context.Context, id string) (domain.Match, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+matchSelectCols+` FROM matches WHERE id = $1`, id)
	m, err := scanMatch(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Match{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Match{}, fmt.Errorf("postgres: get match %s: %w", id, err)
	}
	return m, nil
}

// Start moves a pending match to live.
func (s *MatchStore) Start(ctx context.Context, id string, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE matches SET status = 'live', started_at = $1, updated_at = NOW()
		WHERE id = $2 AND status = 'pending'`,
		at, id,
	)
	if err != nil {
		return fmt.Errorf("postgres: start match %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Complete records the terminal result of a live match.
func (s *MatchStore) Complete(ctx context.Context, res domain.MatchResult, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE matches SET
			status = 'completed',
			round = $1,
			final_split1 = $2,
			final_split2 = $3,
			winner_id = $4,
			ended_at = $5,
			updated_at = NOW()
		WHERE id = $6 AND status = 'live'`,
		res.TotalRounds, res.Split1, res.Split2, res.WinnerID, at, res.MatchID,
	)
	if err != nil {
		return fmt.Errorf("postgres: complete match %s: %w", res.MatchID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Cancel moves a non-terminal match to cancelled.
func (s *MatchStore) Cancel(ctx context.Context, id string, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE matches SET status = 'cancelled', ended_at = $1, updated_at = NOW()
		WHERE id = $2 AND status IN ('pending', 'live')`,
		at, id,
	)
	if err != nil {
		return fmt.Errorf("postgres: cancel match %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// SetTranscriptKey records the blob key of the archived transcript.
func (s *MatchStore) SetTranscriptKey(ctx context.Context, id, key string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE matches SET transcript_key = $1, updated_at = NOW() WHERE id = $2`,
		key, id,
	)
	if err != nil {
		return fmt.Errorf("postgres: set transcript key %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// HasActive reports whether the agent has a pending or live match.
func (s *MatchStore) HasActive(ctx context.Context, agentID string) (bool, error) {
	var busy bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM matches
			WHERE (agent1_id = $1 OR agent2_id = $1)
			  AND status IN ('pending', 'live')
		)`, agentID,
	).Scan(&busy)
	if err != nil {
		return false, fmt.Errorf("postgres: has active %s: %w", agentID, err)
	}
	return busy, nil
}

// ListByTournamentRound returns a tournament round's matches in creation
// order, which is bracket order.
func (s *MatchStore) ListByTournamentRound(ctx context.Context, tournamentID string, round int) ([]domain.Match, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+matchSelectCols+` FROM matches
		 WHERE tournament_id = $1 AND tournament_round = $2
		 ORDER BY created_at`,
		tournamentID, round,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list tournament matches: %w", err)
	}
	defer rows.Close()
	return collectMatches(rows)
}

// ListRecent returns matches newest first.
func (s *MatchStore) ListRecent(ctx context.Context, opts domain.ListOpts) ([]domain.Match, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+matchSelectCols+` FROM matches
		 ORDER BY created_at DESC LIMIT $1 OFFSET $2`,
		limit, opts.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list recent matches: %w", err)
	}
	defer rows.Close()
	return collectMatches(rows)
}

const matchSelectCols = `id, arena, status, round, max_rounds, prize_pool, platform_fee,
	agent1_id, agent2_id, final_split1, final_split2, winner_id,
	tournament_id, tournament_round, transcript_key,
	started_at, ended_at, created_at, updated_at`

func scanMatch(scanner interface{ Scan(dest ...any) error }) (domain.Match, error) {
	var m domain.Match
	var arena, status string
	err := scanner.Scan(
		&m.ID, &arena, &status, &m.Round, &m.MaxRounds, &m.PrizePool, &m.PlatformFee,
		&m.Agent1ID, &m.Agent2ID, &m.FinalSplit1, &m.FinalSplit2, &m.WinnerID,
		&m.TournamentID, &m.TournamentRound, &m.TranscriptKey,
		&m.StartedAt, &m.EndedAt, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return domain.Match{}, err
	}
	m.Arena = domain.Arena(arena)
	m.Status = domain.MatchStatus(status)
	return m, nil
}

func collectMatches(rows pgx.Rows) ([]domain.Match, error) {
	var out []domain.Match
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan match: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate matches: %w", err)
	}
	return out, nil
}
