package domain

import "time"

// TournamentStatus represents the lifecycle state of a tournament.
type TournamentStatus string

const (
	TournamentOpen      TournamentStatus = "open"
	TournamentLive      TournamentStatus = "live"
	TournamentCompleted TournamentStatus = "completed"
	TournamentCancelled TournamentStatus = "cancelled"
)

// Tournament is a single-elimination bracket over one arena.
type Tournament struct {
	ID              string
	Name            string
	Arena           Arena
	Status          TournamentStatus
	MaxParticipants int // power of two: 4, 8 or 16
	PrizePool       float64
	CurrentRound    int
	WinnerID        *string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// TournamentEntry records one agent's participation and bracket seed.
type TournamentEntry struct {
	TournamentID    string
	AgentID         string
	Seed            int
	EliminatedRound *int // nil until eliminated
	JoinedAt        time.Time
}

// SyncResult reports whether a tournament advanced to the next round.
// A round that is not yet fully terminal is reported here, never as an error.
type SyncResult struct {
	Advanced  bool
	Reason    string
	Completed bool
	WinnerID  *string
	NewRound  int
	Matches   []Match
}
