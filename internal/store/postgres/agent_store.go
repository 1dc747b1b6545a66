package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/agentarena/internal/domain"
)

// AgentStore implements domain.AgentStore using PostgreSQL.
type AgentStore struct {
	pool *pgxpool.Pool
}

// NewAgentStore creates a new AgentStore backed by the given connection pool.
func NewAgentStore(pool *pgxpool.Pool) *AgentStore {
	return &AgentStore{pool: pool}
}

// Create inserts a new agent.
func (s *AgentStore) Create(ctx context.Context, a domain.Agent) error {
	var custom []byte
	if a.Custom != nil {
		var err error
		custom, err = json.Marshal(a.Custom)
		if err != nil {
			return fmt.Errorf("postgres: encode custom profile: %w", err)
		}
	}

	const query = `
		INSERT INTO agents (
			id, owner_id, name, strategy, custom_profile, rating,
			wins, losses, draws, total_earnings, active, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`
	_, err := s.pool.Exec(ctx, query,
		a.ID, a.OwnerID, a.Name, string(a.Strategy), custom, a.Rating,
		a.Wins, a.Losses, a.Draws, a.TotalEarnings, a.Active, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create agent %s: %w", a.ID, err)
	}
	return nil
}

// GetByID loads an agent by ID.
func (s *AgentStore) GetByID(ctx context.Context, id string) (domain.Agent, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+agentSelectCols+` FROM agents WHERE id = $1`, id)
	a, err := scanAgent(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Agent{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Agent{}, fmt.Errorf("postgres: get agent %s: %w", id, err)
	}
	return a, nil
}

// ListByOwner returns a user's agents in creation order.
func (s *AgentStore) ListByOwner(ctx context.Context, ownerID string) ([]domain.Agent, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+agentSelectCols+` FROM agents WHERE owner_id = $1 ORDER BY created_at`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list agents %s: %w", ownerID, err)
	}
	defer rows.Close()

	var out []domain.Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan agent: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate agents: %w", err)
	}
	return out, nil
}

// SetActive toggles an agent's availability.
func (s *AgentStore) SetActive(ctx context.Context, id string, active bool) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE agents SET active = $1, updated_at = NOW() WHERE id = $2`,
		active, id,
	)
	if err != nil {
		return fmt.Errorf("postgres: set agent active %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

const agentSelectCols = `id, owner_id, name, strategy, custom_profile, rating,
	wins, losses, draws, total_earnings, active, created_at, updated_at`

func scanAgent(scanner interface{ Scan(dest ...any) error }) (domain.Agent, error) {
	var a domain.Agent
	var strategy string
	var custom []byte
	err := scanner.Scan(
		&a.ID, &a.OwnerID, &a.Name, &strategy, &custom, &a.Rating,
		&a.Wins, &a.Losses, &a.Draws, &a.TotalEarnings, &a.Active, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return domain.Agent{}, err
	}
	a.Strategy = domain.StrategyType(strategy)
	if len(custom) > 0 {
		var p domain.CustomProfile
		if err := json.Unmarshal(custom, &p); err != nil {
			return domain.Agent{}, fmt.Errorf("postgres: decode custom profile: %w", err)
		}
		a.Custom = &p
	}
	return a, nil
}
