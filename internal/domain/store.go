package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination for list queries.
type ListOpts struct {
	Limit  int
	Offset int
}

// CreateMatchParams are the inputs to funded match creation. EntryFee is
// debited from each agent owner's balance inside the same transaction that
// inserts the match row.
type CreateMatchParams struct {
	Agent1ID        string
	Agent2ID        string
	Arena           Arena
	PrizePool       float64
	PlatformFee     float64
	MaxRounds       int
	EntryFee        float64
	TournamentID    *string
	TournamentRound *int
}

// MatchStore persists matches.
type MatchStore interface {
	// CreateFunded atomically verifies both agents are active, have no
	// pending or live match, debits each owner's entry fee, and inserts the
	// match row. Validation failures are returned as AgentFault errors.
	CreateFunded(ctx context.Context, p CreateMatchParams) (Match, error)
	GetByID(ctx context.Context, id string) (Match, error)
	Start(ctx context.Context, id string, at time.Time) error
	Complete(ctx context.Context, res MatchResult, at time.Time) error
	Cancel(ctx context.Context, id string, at time.Time) error
	SetTranscriptKey(ctx context.Context, id, key string) error
	HasActive(ctx context.Context, agentID string) (bool, error)
	ListByTournamentRound(ctx context.Context, tournamentID string, round int) ([]Match, error)
	ListRecent(ctx context.Context, opts ListOpts) ([]Match, error)
}

// RoundStore persists per-round history, upserted by (match, round).
type RoundStore interface {
	Upsert(ctx context.Context, rec RoundRecord) error
	ListByMatch(ctx context.Context, matchID string) ([]RoundRecord, error)
}

// MessageStore persists the append-only narrative feed.
type MessageStore interface {
	Append(ctx context.Context, msg MatchMessage) error
	ListByMatch(ctx context.Context, matchID string, opts ListOpts) ([]MatchMessage, error)
}

// MarketStore persists prediction markets and their options, and performs
// the per-market settlement transaction.
type MarketStore interface {
	CreateWithOptions(ctx context.Context, m Market) error
	GetByID(ctx context.Context, id string) (Market, error)
	ListByMatch(ctx context.Context, matchID string) ([]Market, error)
	UpdateOdds(ctx context.Context, marketID string, options []MarketOption) error
	Lock(ctx context.Context, marketID string) error

	// Settle marks the winning option, pays stake*odds to winning bettors,
	// zeroes losers, and moves the market to settled, all in one
	// transaction. It is a no-op returning (nil, nil) when the market is
	// already settled or cancelled. The settled bets are returned so the
	// caller can write per-bet notifications afterwards.
	Settle(ctx context.Context, marketID, winningOptionID string) ([]Bet, error)

	// CancelRefund refunds every pending bet's stake and moves the market to
	// cancelled, with the same idempotence contract as Settle.
	CancelRefund(ctx context.Context, marketID string) ([]Bet, error)
}

// BetStore persists bets. Place debits the user's balance and inserts the
// bet in one transaction, rejecting bets on non-open markets.
type BetStore interface {
	Place(ctx context.Context, bet Bet) (Bet, error)
	ListByMarket(ctx context.Context, marketID string) ([]Bet, error)
	ListByUser(ctx context.Context, userID string, opts ListOpts) ([]Bet, error)
}

// AgentStore persists agents.
type AgentStore interface {
	Create(ctx context.Context, a Agent) error
	GetByID(ctx context.Context, id string) (Agent, error)
	ListByOwner(ctx context.Context, ownerID string) ([]Agent, error)
	SetActive(ctx context.Context, id string, active bool) error
}

// UserStore persists users and balances.
type UserStore interface {
	Create(ctx context.Context, u User) error
	GetByID(ctx context.Context, id string) (User, error)
	Credit(ctx context.Context, id string, amount float64) error
}

// AgentOutcome is one side's share of a settled match result.
type AgentOutcome struct {
	AgentID   string
	Score     float64 // 1 win, 0.5 draw, 0 loss
	NewRating int
	Earnings  float64
}

// ApplyResultParams bundles the financial transaction the rating service
// commits for a completed match.
type ApplyResultParams struct {
	MatchID  string
	Arena    Arena
	Rounds   int
	Outcomes [2]AgentOutcome
}

// StatsStore applies a match result to agent records, owner balances and
// per-arena rolling stats in a single transaction.
type StatsStore interface {
	ApplyResult(ctx context.Context, p ApplyResultParams) error
	GetArenaStats(ctx context.Context, agentID string, arena Arena) (ArenaStats, error)
}

// NotificationStore persists user notifications with an idempotent upsert
// keyed by (user, kind, ref).
type NotificationStore interface {
	Upsert(ctx context.Context, n Notification) error
	ListByUser(ctx context.Context, userID string, opts ListOpts) ([]Notification, error)
}

// TournamentStore persists tournaments and entries.
type TournamentStore interface {
	Create(ctx context.Context, t Tournament) error
	GetByID(ctx context.Context, id string) (Tournament, error)
	Join(ctx context.Context, e TournamentEntry) error
	ListEntries(ctx context.Context, tournamentID string) ([]TournamentEntry, error)
	SetSeeds(ctx context.Context, tournamentID string, seeds map[string]int) error
	SetStatus(ctx context.Context, id string, status TournamentStatus, round int) error
	MarkEliminated(ctx context.Context, tournamentID, agentID string, round int) error
	Complete(ctx context.Context, id string, winnerID string) error
}
