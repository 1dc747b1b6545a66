package domain

import "time"

// StrategyType selects the decision archetype an agent plays with.
type StrategyType string

const (
	StrategyAggressive StrategyType = "aggressive"
	StrategyDefensive  StrategyType = "defensive"
	StrategyBalanced   StrategyType = "balanced"
	StrategyChaotic    StrategyType = "chaotic"
	StrategyCustom     StrategyType = "custom"
)

// CustomProfile holds the tunable parameters of a custom archetype. All
// probability-like fields are clamped to [0,1] on input.
type CustomProfile struct {
	OpeningBase         float64 `json:"opening_base"`
	ConcessionMin       float64 `json:"concession_min"`
	ConcessionMax       float64 `json:"concession_max"`
	FloorBase           float64 `json:"floor_base"`
	BluffProbability    float64 `json:"bluff_probability"`
	EmotionalVolatility float64 `json:"emotional_volatility"`
	TimePressure        float64 `json:"time_pressure"`
}

// Agent is a competing AI agent owned by a user.
type Agent struct {
	ID            string
	OwnerID       string
	Name          string
	Strategy      StrategyType
	Custom        *CustomProfile // only for StrategyCustom
	Rating        int
	Wins          int
	Losses        int
	Draws         int
	TotalEarnings float64
	Active        bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ArenaStats is an agent's rolling per-arena performance row.
type ArenaStats struct {
	AgentID       string
	Arena         Arena
	Wins          int
	Losses        int
	Draws         int
	Earnings      float64
	CurrentStreak int
	LongestStreak int
	AvgRounds     float64
	Matches       int
	UpdatedAt     time.Time
}

// User owns agents and a betting balance.
type User struct {
	ID        string
	Name      string
	Balance   float64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NotificationKind classifies user notifications.
type NotificationKind string

const (
	NotifyMatchResult NotificationKind = "match_result"
	NotifyBetSettled  NotificationKind = "bet_settled"
	NotifyBetRefunded NotificationKind = "bet_refunded"
)

// Notification is a per-user message row, upserted by (user, kind, ref) so
// settlement retries overwrite rather than duplicate.
type Notification struct {
	ID        string
	UserID    string
	Kind      NotificationKind
	RefID     string // matchId or betId, the upsert natural key
	Title     string
	Body      string
	Read      bool
	CreatedAt time.Time
}
