package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/agentarena/internal/domain"
)

// BetStore implements domain.BetStore using PostgreSQL.
type BetStore struct {
	pool *pgxpool.Pool
}

// NewBetStore creates a new BetStore backed by the given connection pool.
func NewBetStore(pool *pgxpool.Pool) *BetStore {
	return &BetStore{pool: pool}
}

// Place debits the user's balance and inserts the bet in one transaction,
// freezing the option's current odds on the row. Bets on non-open markets
// are rejected with ErrMarketClosed.
func (s *BetStore) Place(ctx context.Context, bet domain.Bet) (domain.Bet, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return domain.Bet{}, fmt.Errorf("postgres: begin place bet: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var status string
	var odds float64
	err = tx.QueryRow(ctx, `
		SELECT m.status, o.odds
		FROM markets m JOIN market_options o ON o.market_id = m.id
		WHERE m.id = $1 AND o.id = $2 FOR UPDATE OF m`,
		bet.MarketID, bet.OptionID,
	).Scan(&status, &odds)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Bet{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Bet{}, fmt.Errorf("postgres: load market for bet: %w", err)
	}
	if domain.MarketStatus(status) != domain.MarketStatusOpen {
		return domain.Bet{}, domain.ErrMarketClosed
	}

	tag, err := tx.Exec(ctx, `
		UPDATE users SET balance = balance - $1, updated_at = NOW()
		WHERE id = $2 AND balance >= $1`,
		bet.Stake, bet.UserID,
	)
	if err != nil {
		return domain.Bet{}, fmt.Errorf("postgres: debit bettor %s: %w", bet.UserID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.Bet{}, domain.ErrInsufficientBalance
	}

	bet.Odds = odds
	bet.Status = domain.BetStatusPending
	bet.CreatedAt = nowUTC()

	_, err = tx.Exec(ctx, `
		INSERT INTO bets (id, user_id, market_id, option_id, stake, odds, payout, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, 0, $7, $8)`,
		bet.ID, bet.UserID, bet.MarketID, bet.OptionID, bet.Stake, bet.Odds,
		string(bet.Status), bet.CreatedAt,
	)
	if err != nil {
		return domain.Bet{}, fmt.Errorf("postgres: insert bet %s: %w", bet.ID, err)
	}

	_, err = tx.Exec(ctx,
		`UPDATE market_options SET pool = pool + $1 WHERE id = $2`,
		bet.Stake, bet.OptionID,
	)
	if err != nil {
		return domain.Bet{}, fmt.Errorf("postgres: grow option pool %s: %w", bet.OptionID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Bet{}, fmt.Errorf("postgres: commit place bet: %w", err)
	}
	return bet, nil
}

// ListByMarket returns all bets on a market.
func (s *BetStore) ListByMarket(ctx context.Context, marketID string) ([]domain.Bet, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+betSelectCols+` FROM bets WHERE market_id = $1 ORDER BY created_at`,
		marketID,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list bets %s: %w", marketID, err)
	}
	defer rows.Close()
	return collectBets(rows)
}

// ListByUser returns a user's bets newest first.
func (s *BetStore) ListByUser(ctx context.Context, userID string, opts domain.ListOpts) ([]domain.Bet, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+betSelectCols+` FROM bets WHERE user_id = $1
		 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		userID, limit, opts.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list user bets %s: %w", userID, err)
	}
	defer rows.Close()
	return collectBets(rows)
}

const betSelectCols = `id, user_id, market_id, option_id, stake, odds, payout, status, created_at, settled_at`

func collectBets(rows pgx.Rows) ([]domain.Bet, error) {
	var out []domain.Bet
	for rows.Next() {
		var b domain.Bet
		var status string
		if err := rows.Scan(&b.ID, &b.UserID, &b.MarketID, &b.OptionID,
			&b.Stake, &b.Odds, &b.Payout, &status, &b.CreatedAt, &b.SettledAt); err != nil {
			return nil, fmt.Errorf("postgres: scan bet: %w", err)
		}
		b.Status = domain.BetStatus(status)
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate bets: %w", err)
	}
	return out, nil
}
