package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/agentarena/internal/domain"
)

// MessageStore implements domain.MessageStore using PostgreSQL.
type MessageStore struct {
	pool *pgxpool.Pool
}

// NewMessageStore creates a new MessageStore backed by the given connection pool.
func NewMessageStore(pool *pgxpool.Pool) *MessageStore {
	return &MessageStore{pool: pool}
}

// Append inserts one message into the match's narrative feed.
func (s *MessageStore) Append(ctx context.Context, msg domain.MatchMessage) error {
	const query = `
		INSERT INTO match_messages (id, match_id, agent_id, kind, round, body, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := s.pool.Exec(ctx, query,
		msg.ID, msg.MatchID, msg.AgentID, string(msg.Kind), msg.Round, msg.Body, msg.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: append message %s: %w", msg.MatchID, err)
	}
	return nil
}

// ListByMatch returns a match's messages oldest first.
func (s *MessageStore) ListByMatch(ctx context.Context, matchID string, opts domain.ListOpts) ([]domain.MatchMessage, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 200
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, match_id, agent_id, kind, round, body, created_at
		FROM match_messages WHERE match_id = $1
		ORDER BY created_at LIMIT $2 OFFSET $3`,
		matchID, limit, opts.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list messages %s: %w", matchID, err)
	}
	defer rows.Close()

	var out []domain.MatchMessage
	for rows.Next() {
		var m domain.MatchMessage
		var kind string
		if err := rows.Scan(&m.ID, &m.MatchID, &m.AgentID, &kind, &m.Round, &m.Body, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan message: %w", err)
		}
		m.Kind = domain.MessageKind(kind)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate messages: %w", err)
	}
	return out, nil
}
