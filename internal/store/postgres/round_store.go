package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/agentarena/internal/domain"
)

// RoundStore implements domain.RoundStore using PostgreSQL. The
// arena-specific payload is stored as JSONB and decoded back through the
// arena tag on the row.
type RoundStore struct {
	pool *pgxpool.Pool
}

// NewRoundStore creates a new RoundStore backed by the given connection pool.
func NewRoundStore(pool *pgxpool.Pool) *RoundStore {
	return &RoundStore{pool: pool}
}

// Upsert writes one round record keyed by (match, round). A retried write
// for the same round overwrites the previous payload.
func (s *RoundStore) Upsert(ctx context.Context, rec domain.RoundRecord) error {
	data, err := json.Marshal(rec.Data)
	if err != nil {
		return fmt.Errorf("postgres: encode round data: %w", err)
	}

	const query = `
		INSERT INTO match_rounds (match_id, round, arena, data, accepted, accepted_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (match_id, round) DO UPDATE SET
			data = EXCLUDED.data,
			accepted = EXCLUDED.accepted,
			accepted_by = EXCLUDED.accepted_by`
	_, err = s.pool.Exec(ctx, query,
		rec.MatchID, rec.Round, string(rec.Arena), data,
		rec.Accepted, rec.AcceptedBy, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert round %s/%d: %w", rec.MatchID, rec.Round, err)
	}
	return nil
}

// ListByMatch returns a match's round history in round order.
func (s *RoundStore) ListByMatch(ctx context.Context, matchID string) ([]domain.RoundRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT match_id, round, arena, data, accepted, accepted_by, created_at
		FROM match_rounds WHERE match_id = $1 ORDER BY round`,
		matchID,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list rounds %s: %w", matchID, err)
	}
	defer rows.Close()

	var out []domain.RoundRecord
	for rows.Next() {
		var rec domain.RoundRecord
		var arena string
		var raw []byte
		if err := rows.Scan(&rec.MatchID, &rec.Round, &arena, &raw, &rec.Accepted, &rec.AcceptedBy, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan round: %w", err)
		}
		rec.Arena = domain.Arena(arena)
		rec.Data, err = decodeRoundData(rec.Arena, raw)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate rounds: %w", err)
	}
	return out, nil
}

func decodeRoundData(arena domain.Arena, raw []byte) (domain.RoundData, error) {
	switch arena {
	case domain.ArenaAuction:
		var d domain.AuctionRound
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, fmt.Errorf("postgres: decode auction round: %w", err)
		}
		return d, nil
	case domain.ArenaBarter:
		var d domain.BarterRound
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, fmt.Errorf("postgres: decode barter round: %w", err)
		}
		return d, nil
	default:
		var d domain.NegotiationRound
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, fmt.Errorf("postgres: decode negotiation round: %w", err)
		}
		return d, nil
	}
}
