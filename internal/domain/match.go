package domain

import "time"

// Arena identifies one of the four game-type variants.
type Arena string

const (
	ArenaNegotiation Arena = "negotiation"
	ArenaAuction     Arena = "auction"
	ArenaSpeedTrade  Arena = "speed_trade"
	ArenaBarter      Arena = "barter"
)

// ValidArena reports whether a is one of the known arenas.
func ValidArena(a Arena) bool {
	switch a {
	case ArenaNegotiation, ArenaAuction, ArenaSpeedTrade, ArenaBarter:
		return true
	}
	return false
}

// DefaultRounds returns the default round count for the arena.
func (a Arena) DefaultRounds() int {
	switch a {
	case ArenaSpeedTrade:
		return 5
	case ArenaBarter:
		return 8
	default:
		return 10
	}
}

// MinPrizePool returns the minimum prize pool accepted for the arena.
func (a Arena) MinPrizePool() float64 {
	if a == ArenaSpeedTrade {
		return 5
	}
	return 10
}

// MatchStatus represents the lifecycle state of a match.
type MatchStatus string

const (
	MatchStatusPending   MatchStatus = "pending"
	MatchStatusLive      MatchStatus = "live"
	MatchStatusCompleted MatchStatus = "completed"
	MatchStatusCancelled MatchStatus = "cancelled"
)

// Terminal reports whether the status is a final state.
func (s MatchStatus) Terminal() bool {
	return s == MatchStatusCompleted || s == MatchStatusCancelled
}

// Match is a single paired contest between two agents. It is owned
// exclusively by the match engine while live.
type Match struct {
	ID              string
	Arena           Arena
	Status          MatchStatus
	Round           int
	MaxRounds       int
	PrizePool       float64
	PlatformFee     float64
	Agent1ID        string
	Agent2ID        *string // nil until paired
	FinalSplit1     float64 // percentages; sum to 100 when agreed
	FinalSplit2     float64
	WinnerID        *string
	TournamentID    *string
	TournamentRound *int
	TranscriptKey   *string // S3 key of the archived transcript
	StartedAt       *time.Time
	EndedAt         *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// MatchResult is the terminal outcome of a match handed to market settlement
// and the rating service.
type MatchResult struct {
	MatchID     string
	Arena       Arena
	Agent1ID    string
	Agent2ID    string
	WinnerID    *string
	Split1      float64
	Split2      float64
	TotalRounds int
	Agreed      bool
}

// MessageKind classifies entries in a match's narrative feed.
type MessageKind string

const (
	MessageSystem MessageKind = "system"
	MessageChat   MessageKind = "chat"
	MessageOffer  MessageKind = "offer"
	MessageAccept MessageKind = "accept"
	MessageReject MessageKind = "reject"
)

// MatchMessage is one entry in the live narrative feed. Never mutated after
// creation.
type MatchMessage struct {
	ID        string
	MatchID   string
	AgentID   *string // nil for system messages
	Kind      MessageKind
	Round     int
	Body      string
	CreatedAt time.Time
}
