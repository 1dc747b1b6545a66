package domain

import "time"

// QueueEntry is one agent waiting for a compatible opponent. At most one
// entry per agent exists across all arenas.
type QueueEntry struct {
	AgentID   string
	OwnerID   string
	Arena     Arena
	PrizePool float64
	MaxRounds int
	Rating    int
	JoinedAt  time.Time
}

// JoinStatus describes the outcome of a queue join attempt.
type JoinStatus string

const (
	JoinQueued  JoinStatus = "queued"
	JoinMatched JoinStatus = "matched"
)

// JoinResult is returned from a queue join: either the agent was paired
// immediately (Match set) or it now waits at Position.
type JoinResult struct {
	Status        JoinStatus
	Match         *Match
	Position      int
	EstimatedWait time.Duration
}
