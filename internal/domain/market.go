package domain

import "time"

// MarketType identifies what a prediction market is about.
type MarketType string

const (
	MarketWinner    MarketType = "winner"
	MarketAgreement MarketType = "agreement"
	MarketRounds    MarketType = "rounds"
)

// MarketStatus represents the lifecycle state of a prediction market.
type MarketStatus string

const (
	MarketStatusOpen      MarketStatus = "open"
	MarketStatusLocked    MarketStatus = "locked"
	MarketStatusSettled   MarketStatus = "settled"
	MarketStatusCancelled MarketStatus = "cancelled"
)

// MarketOption is one possible outcome of a prediction market. Probabilities
// within a market always sum to 1; odds are derived as 1/probability and
// clamped to a sane range.
type MarketOption struct {
	ID          string
	MarketID    string
	Name        string
	Ref         string // stable settlement key: agent id, "deal"/"no_deal", or a rounds bucket
	Probability float64
	Odds        float64
	Pool        float64
	IsWinner    bool
}

// Market is a prediction market attached to a single match.
type Market struct {
	ID        string
	MatchID   string
	Type      MarketType
	Question  string
	Status    MarketStatus
	Options   []MarketOption
	CreatedAt time.Time
	UpdatedAt time.Time
}

// BetStatus represents the settlement state of a bet.
type BetStatus string

const (
	BetStatusPending  BetStatus = "pending"
	BetStatusWon      BetStatus = "won"
	BetStatusLost     BetStatus = "lost"
	BetStatusRefunded BetStatus = "refunded"
)

// Bet is a user's stake on one market option. Odds are frozen at placement
// time; the row is immutable once settled.
type Bet struct {
	ID        string
	UserID    string
	MarketID  string
	OptionID  string
	Stake     float64
	Odds      float64
	Payout    float64
	Status    BetStatus
	CreatedAt time.Time
	SettledAt *time.Time
}
