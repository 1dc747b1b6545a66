// Package queue implements matchmaking: one waiting pool per (arena, stake)
// bucket, pessimistic candidate reservation, and classified failure handling
// so a bad candidate never aborts a joiner's attempt.
package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/agentarena/internal/domain"
)

// waitPerPosition is the rough per-slot wait estimate reported to queued
// agents.
const waitPerPosition = 30 * time.Second

// MatchCreator creates a funded match between two agents. Implemented by the
// engine.
type MatchCreator interface {
	CreateMatch(ctx context.Context, agent1ID, agent2ID string, arena domain.Arena, prizePool float64, maxRounds int) (domain.Match, error)
}

// Launcher starts a created match asynchronously.
type Launcher interface {
	Launch(matchID string)
}

type poolKey struct {
	arena domain.Arena
	stake float64
}

// Service is the in-memory matchmaking queue.
type Service struct {
	matches domain.MatchStore
	agents  domain.AgentStore
	creator MatchCreator
	launch  Launcher
	logger  *slog.Logger

	mu      sync.Mutex
	pools   map[poolKey][]domain.QueueEntry
	byAgent map[string]poolKey
}

// NewService creates the queue service.
func NewService(matches domain.MatchStore, agents domain.AgentStore, creator MatchCreator, launch Launcher, logger *slog.Logger) *Service {
	return &Service{
		matches: matches,
		agents:  agents,
		creator: creator,
		launch:  launch,
		logger:  logger.With(slog.String("component", "queue")),
		pools:   make(map[poolKey][]domain.QueueEntry),
		byAgent: make(map[string]poolKey),
	}
}

// Join tries to pair the agent with a waiting candidate in the same
// (arena, stake) pool, falling back to enqueueing it. An agent may hold at
// most one queue entry across all arenas.
func (s *Service) Join(ctx context.Context, agentID string, arena domain.Arena, prizePool float64, maxRounds int) (domain.JoinResult, error) {
	if !domain.ValidArena(arena) {
		return domain.JoinResult{}, fmt.Errorf("queue: %q: %w", arena, domain.ErrUnknownArena)
	}

	agent, err := s.agents.GetByID(ctx, agentID)
	if err != nil {
		return domain.JoinResult{}, fmt.Errorf("queue: load agent: %w", err)
	}
	if !agent.Active {
		return domain.JoinResult{}, domain.FaultFor(agentID, domain.ErrAgentInactive)
	}

	key := poolKey{arena: arena, stake: prizePool}

	s.mu.Lock()
	if held, ok := s.byAgent[agentID]; ok {
		defer s.mu.Unlock()
		if held.arena != arena {
			return domain.JoinResult{}, domain.ErrAlreadyQueued
		}
		if held.stake != prizePool {
			return domain.JoinResult{}, domain.ErrStakeMismatch
		}
		return domain.JoinResult{
			Status:        domain.JoinQueued,
			Position:      s.positionLocked(held, agentID),
			EstimatedWait: time.Duration(s.positionLocked(held, agentID)) * waitPerPosition,
		}, nil
	}
	s.mu.Unlock()

	// An agent already in a match resolves immediately instead of queueing.
	busy, err := s.matches.HasActive(ctx, agentID)
	if err != nil {
		return domain.JoinResult{}, fmt.Errorf("queue: busy check: %w", err)
	}
	if busy {
		return domain.JoinResult{}, domain.FaultFor(agentID, domain.ErrAgentBusy)
	}

	// Reserve-then-attempt: each candidate is removed from the pool before
	// the creation attempt so two concurrent joins cannot book it twice.
	for {
		candidate, ok := s.reserve(key)
		if !ok {
			break
		}

		m, err := s.creator.CreateMatch(ctx, candidate.AgentID, agentID, arena, prizePool, maxRounds)
		if err == nil {
			s.launch.Launch(m.ID)
			s.logger.InfoContext(ctx, "agents paired",
				slog.String("match_id", m.ID),
				slog.String("agent1", candidate.AgentID),
				slog.String("agent2", agentID),
			)
			return domain.JoinResult{Status: domain.JoinMatched, Match: &m}, nil
		}

		switch fault := domain.FaultAgent(err); {
		case fault == candidate.AgentID:
			// The candidate went stale (spent its balance, went inactive,
			// got booked elsewhere). Drop it and try the next one.
			s.logger.WarnContext(ctx, "candidate skipped",
				slog.String("agent_id", candidate.AgentID),
				slog.String("error", err.Error()),
			)
			continue
		default:
			// Joiner-attributable or server-class: the reserved candidate
			// did nothing wrong, so it goes back to the head of the pool.
			s.restore(key, candidate)
			return domain.JoinResult{}, err
		}
	}

	entry := domain.QueueEntry{
		AgentID:   agentID,
		OwnerID:   agent.OwnerID,
		Arena:     arena,
		PrizePool: prizePool,
		MaxRounds: maxRounds,
		Rating:    agent.Rating,
		JoinedAt:  time.Now().UTC(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// Someone may have queued this agent while we were attempting matches.
	if _, ok := s.byAgent[agentID]; ok {
		return domain.JoinResult{}, domain.ErrAlreadyQueued
	}
	s.pools[key] = append(s.pools[key], entry)
	s.byAgent[agentID] = key
	pos := len(s.pools[key])

	s.logger.InfoContext(ctx, "agent queued",
		slog.String("agent_id", agentID),
		slog.String("arena", string(arena)),
		slog.Int("position", pos),
	)
	return domain.JoinResult{
		Status:        domain.JoinQueued,
		Position:      pos,
		EstimatedWait: time.Duration(pos) * waitPerPosition,
	}, nil
}

// Leave removes the agent's queue entry, if any.
func (s *Service) Leave(agentID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, ok := s.byAgent[agentID]
	if !ok {
		return false
	}
	delete(s.byAgent, agentID)

	pool := s.pools[key]
	for i, e := range pool {
		if e.AgentID == agentID {
			s.pools[key] = append(pool[:i], pool[i+1:]...)
			break
		}
	}
	return true
}

// Depth returns the number of agents waiting in a pool.
func (s *Service) Depth(arena domain.Arena, stake float64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pools[poolKey{arena: arena, stake: stake}])
}

// reserve removes and returns the longest-waiting entry of a pool.
func (s *Service) reserve(key poolKey) (domain.QueueEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pool := s.pools[key]
	if len(pool) == 0 {
		return domain.QueueEntry{}, false
	}
	candidate := pool[0]
	s.pools[key] = pool[1:]
	delete(s.byAgent, candidate.AgentID)
	return candidate, true
}

// restore puts a reserved candidate back at the head of its pool.
func (s *Service) restore(key poolKey, e domain.QueueEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pools[key] = append([]domain.QueueEntry{e}, s.pools[key]...)
	s.byAgent[e.AgentID] = key
}

func (s *Service) positionLocked(key poolKey, agentID string) int {
	for i, e := range s.pools[key] {
		if e.AgentID == agentID {
			return i + 1
		}
	}
	return 0
}
