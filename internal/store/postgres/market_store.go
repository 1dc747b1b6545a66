package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/agentarena/internal/domain"
)

// MarketStore implements domain.MarketStore using PostgreSQL. Settle and
// CancelRefund carry the exactly-once contract: a market already in a
// terminal state is left untouched and the call reports success with no bets.
type MarketStore struct {
	pool *pgxpool.Pool
}

// NewMarketStore creates a new MarketStore backed by the given connection pool.
func NewMarketStore(pool *pgxpool.Pool) *MarketStore {
	return &MarketStore{pool: pool}
}

// CreateWithOptions inserts a market and its options in one transaction.
func (s *MarketStore) CreateWithOptions(ctx context.Context, m domain.Market) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin create market: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO markets (id, match_id, type, question, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		m.ID, m.MatchID, string(m.Type), m.Question, string(m.Status), m.CreatedAt, m.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert market %s: %w", m.ID, err)
	}

	for _, opt := range m.Options {
		_, err = tx.Exec(ctx, `
			INSERT INTO market_options (id, market_id, name, ref, probability, odds, pool, is_winner)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			opt.ID, m.ID, opt.Name, opt.Ref, opt.Probability, opt.Odds, opt.Pool, opt.IsWinner,
		)
		if err != nil {
			return fmt.Errorf("postgres: insert option %s: %w", opt.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit create market: %w", err)
	}
	return nil
}

// GetByID loads a market with its options.
func (s *MarketStore) GetByID(ctx context.Context, id string) (domain.Market, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, match_id, type, question, status, created_at, updated_at
		 FROM markets WHERE id = $1`, id)
	m, err := scanMarket(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Market{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Market{}, fmt.Errorf("postgres: get market %s: %w", id, err)
	}
	if m.Options, err = s.loadOptions(ctx, m.ID); err != nil {
		return domain.Market{}, err
	}
	return m, nil
}

// ListByMatch returns all markets of a match with their options.
func (s *MarketStore) ListByMatch(ctx context.Context, matchID string) ([]domain.Market, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, match_id, type, question, status, created_at, updated_at
		 FROM markets WHERE match_id = $1 ORDER BY created_at`, matchID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list markets %s: %w", matchID, err)
	}
	defer rows.Close()

	var out []domain.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan market: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate markets: %w", err)
	}
	for i := range out {
		var err error
		if out[i].Options, err = s.loadOptions(ctx, out[i].ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// UpdateOdds rewrites probability and odds for a market's options.
func (s *MarketStore) UpdateOdds(ctx context.Context, marketID string, options []domain.MarketOption) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin update odds: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, opt := range options {
		_, err = tx.Exec(ctx, `
			UPDATE market_options SET probability = $1, odds = $2
			WHERE id = $3 AND market_id = $4`,
			opt.Probability, opt.Odds, opt.ID, marketID,
		)
		if err != nil {
			return fmt.Errorf("postgres: update option %s: %w", opt.ID, err)
		}
	}
	_, err = tx.Exec(ctx, `UPDATE markets SET updated_at = NOW() WHERE id = $1`, marketID)
	if err != nil {
		return fmt.Errorf("postgres: touch market %s: %w", marketID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit update odds: %w", err)
	}
	return nil
}

// Lock closes a market to new bets.
func (s *MarketStore) Lock(ctx context.Context, marketID string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE markets SET status = 'locked', updated_at = NOW()
		WHERE id = $1 AND status = 'open'`, marketID)
	if err != nil {
		return fmt.Errorf("postgres: lock market %s: %w", marketID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Settle resolves a market in one transaction: the winning option is marked,
// winning bets are paid stake*odds into their users' balances, losing bets
// are zeroed, and the market moves to settled. Calling it again on a settled
// or cancelled market is a silent no-op.
func (s *MarketStore) Settle(ctx context.Context, marketID, winningOptionID string) ([]domain.Bet, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("postgres: begin settle: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	status, err := lockMarketRow(ctx, tx, marketID)
	if err != nil {
		return nil, err
	}
	if status == domain.MarketStatusSettled || status == domain.MarketStatusCancelled {
		return nil, nil
	}

	_, err = tx.Exec(ctx,
		`UPDATE market_options SET is_winner = (id = $1) WHERE market_id = $2`,
		winningOptionID, marketID,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: mark winner %s: %w", marketID, err)
	}

	bets, err := pendingBets(ctx, tx, marketID)
	if err != nil {
		return nil, err
	}

	now := nowUTC()
	for i := range bets {
		b := &bets[i]
		if b.OptionID == winningOptionID {
			b.Status = domain.BetStatusWon
			b.Payout = b.Stake * b.Odds
			_, err = tx.Exec(ctx,
				`UPDATE users SET balance = balance + $1, updated_at = NOW() WHERE id = $2`,
				b.Payout, b.UserID,
			)
			if err != nil {
				return nil, fmt.Errorf("postgres: pay bet %s: %w", b.ID, err)
			}
		} else {
			b.Status = domain.BetStatusLost
			b.Payout = 0
		}
		b.SettledAt = &now
		_, err = tx.Exec(ctx,
			`UPDATE bets SET status = $1, payout = $2, settled_at = $3 WHERE id = $4`,
			string(b.Status), b.Payout, now, b.ID,
		)
		if err != nil {
			return nil, fmt.Errorf("postgres: settle bet %s: %w", b.ID, err)
		}
	}

	_, err = tx.Exec(ctx,
		`UPDATE markets SET status = 'settled', updated_at = NOW() WHERE id = $1`, marketID)
	if err != nil {
		return nil, fmt.Errorf("postgres: close market %s: %w", marketID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("postgres: commit settle: %w", err)
	}
	return bets, nil
}

// CancelRefund refunds every pending bet and cancels the market, with the
// same idempotence contract as Settle.
func (s *MarketStore) CancelRefund(ctx context.Context, marketID string) ([]domain.Bet, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("postgres: begin refund: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	status, err := lockMarketRow(ctx, tx, marketID)
	if err != nil {
		return nil, err
	}
	if status == domain.MarketStatusSettled || status == domain.MarketStatusCancelled {
		return nil, nil
	}

	bets, err := pendingBets(ctx, tx, marketID)
	if err != nil {
		return nil, err
	}

	now := nowUTC()
	for i := range bets {
		b := &bets[i]
		b.Status = domain.BetStatusRefunded
		b.Payout = b.Stake
		b.SettledAt = &now
		_, err = tx.Exec(ctx,
			`UPDATE users SET balance = balance + $1, updated_at = NOW() WHERE id = $2`,
			b.Stake, b.UserID,
		)
		if err != nil {
			return nil, fmt.Errorf("postgres: refund bet %s: %w", b.ID, err)
		}
		_, err = tx.Exec(ctx,
			`UPDATE bets SET status = 'refunded', payout = $1, settled_at = $2 WHERE id = $3`,
			b.Stake, now, b.ID,
		)
		if err != nil {
			return nil, fmt.Errorf("postgres: mark refunded %s: %w", b.ID, err)
		}
	}

	_, err = tx.Exec(ctx,
		`UPDATE markets SET status = 'cancelled', updated_at = NOW() WHERE id = $1`, marketID)
	if err != nil {
		return nil, fmt.Errorf("postgres: cancel market %s: %w", marketID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("postgres: commit refund: %w", err)
	}
	return bets, nil
}

func lockMarketRow(ctx context.Context, tx pgx.Tx, marketID string) (domain.MarketStatus, error) {
	var status string
	err := tx.QueryRow(ctx,
		`SELECT status FROM markets WHERE id = $1 FOR UPDATE`, marketID).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", domain.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("postgres: lock market %s: %w", marketID, err)
	}
	return domain.MarketStatus(status), nil
}

func pendingBets(ctx context.Context, tx pgx.Tx, marketID string) ([]domain.Bet, error) {
	rows, err := tx.Query(ctx,
		`SELECT `+betSelectCols+` FROM bets
		 WHERE market_id = $1 AND status = 'pending' FOR UPDATE`, marketID)
	if err != nil {
		return nil, fmt.Errorf("postgres: load pending bets %s: %w", marketID, err)
	}
	defer rows.Close()
	return collectBets(rows)
}

func (s *MarketStore) loadOptions(ctx context.Context, marketID string) ([]domain.MarketOption, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, market_id, name, ref, probability, odds, pool, is_winner
		FROM market_options WHERE market_id = $1 ORDER BY id`, marketID)
	if err != nil {
		return nil, fmt.Errorf("postgres: load options %s: %w", marketID, err)
	}
	defer rows.Close()

	var out []domain.MarketOption
	for rows.Next() {
		var o domain.MarketOption
		if err := rows.Scan(&o.ID, &o.MarketID, &o.Name, &o.Ref, &o.Probability, &o.Odds, &o.Pool, &o.IsWinner); err != nil {
			return nil, fmt.Errorf("postgres: scan option: %w", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate options: %w", err)
	}
	return out, nil
}

func scanMarket(scanner interface{ Scan(dest ...any) error }) (domain.Market, error) {
	var m domain.Market
	var mtype, status string
	err := scanner.Scan(&m.ID, &m.MatchID, &mtype, &status, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return domain.Market{}, err
	}
	m.Type = domain.MarketType(mtype)
	m.Status = domain.MarketStatus(status)
	return m, nil
}
