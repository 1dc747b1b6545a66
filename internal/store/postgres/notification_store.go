package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/agentarena/internal/domain"
)

// NotificationStore implements domain.NotificationStore using PostgreSQL.
// The (user, kind, ref) unique key makes retried settlement writes overwrite
// instead of duplicate.
type NotificationStore struct {
	pool *pgxpool.Pool
}

// NewNotificationStore creates a new NotificationStore backed by the given
// connection pool.
func NewNotificationStore(pool *pgxpool.Pool) *NotificationStore {
	return &NotificationStore{pool: pool}
}

// Upsert writes a notification keyed by (user, kind, ref).
func (s *NotificationStore) Upsert(ctx context.Context, n domain.Notification) error {
	const query = `
		INSERT INTO notifications (id, user_id, kind, ref_id, title, body, read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, FALSE, $7)
		ON CONFLICT (user_id, kind, ref_id) DO UPDATE SET
			title = EXCLUDED.title,
			body = EXCLUDED.body`
	_, err := s.pool.Exec(ctx, query,
		n.ID, n.UserID, string(n.Kind), n.RefID, n.Title, n.Body, n.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert notification %s/%s: %w", n.UserID, n.RefID, err)
	}
	return nil
}

// ListByUser returns a user's notifications newest first.
func (s *NotificationStore) ListByUser(ctx context.Context, userID string, opts domain.ListOpts) ([]domain.Notification, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, kind, ref_id, title, body, read, created_at
		FROM notifications WHERE user_id = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		userID, limit, opts.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list notifications %s: %w", userID, err)
	}
	defer rows.Close()

	var out []domain.Notification
	for rows.Next() {
		var n domain.Notification
		var kind string
		if err := rows.Scan(&n.ID, &n.UserID, &kind, &n.RefID, &n.Title, &n.Body, &n.Read, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan notification: %w", err)
		}
		n.Kind = domain.NotificationKind(kind)
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate notifications: %w", err)
	}
	return out, nil
}
