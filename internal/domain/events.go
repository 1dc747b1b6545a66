package domain

import "time"

// EventType enumerates the typed events the core emits for live spectators.
type EventType string

const (
	EventMatchStart EventType = "match_start"
	EventRound      EventType = "round"
	EventMessage    EventType = "message"
	EventOdds       EventType = "odds"
	EventMatchEnd   EventType = "match_end"
	EventStatus     EventType = "status"
)

// Event is the envelope published on a match's live channel. Payload must be
// JSON-serializable.
type Event struct {
	MatchID   string    `json:"match_id"`
	Type      EventType `json:"type"`
	Payload   any       `json:"payload"`
	Timestamp time.Time `json:"ts"`
}

// MatchChannel returns the bus channel events for the given match are
// published on.
func MatchChannel(matchID string) string {
	return "ch:match:" + matchID
}
