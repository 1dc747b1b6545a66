package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrAlreadyExists       = errors.New("already exists")
	ErrSelfMatch           = errors.New("agent cannot play against itself")
	ErrAgentInactive       = errors.New("agent is inactive")
	ErrAgentBusy           = errors.New("agent already has an active match")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrUnknownArena        = errors.New("unknown arena")
	ErrPrizePoolTooSmall   = errors.New("prize pool below arena minimum")
	ErrAlreadyQueued       = errors.New("agent already holds a queue entry")
	ErrStakeMismatch       = errors.New("queue stake does not match existing entry")
	ErrMarketClosed        = errors.New("market is not open for betting")
	ErrMarketSettled       = errors.New("market already settled")
	ErrInvalidBracketSize  = errors.New("bracket size must be 4, 8 or 16")
	ErrTournamentFull      = errors.New("tournament is full")
	ErrTournamentNotOpen   = errors.New("tournament is not open")
	ErrLockHeld            = errors.New("lock already held")
)

// AgentFault attributes a validation failure to a specific agent so callers
// (notably the matchmaking queue) can decide whose attempt failed.
type AgentFault struct {
	AgentID string
	Err     error
}

func (f *AgentFault) Error() string {
	return fmt.Sprintf("agent %s: %v", f.AgentID, f.Err)
}

func (f *AgentFault) Unwrap() error {
	return f.Err
}

// FaultFor wraps err as an AgentFault for the given agent.
func FaultFor(agentID string, err error) error {
	return &AgentFault{AgentID: agentID, Err: err}
}

// FaultAgent returns the agent ID an error is attributed to, or "" when the
// error carries no attribution.
func FaultAgent(err error) string {
	var f *AgentFault
	if errors.As(err, &f) {
		return f.AgentID
	}
	return ""
}

// IsValidation reports whether err is one of the caller-attributable
// validation failures, as opposed to a server-class error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrSelfMatch) ||
		errors.Is(err, ErrAgentInactive) ||
		errors.Is(err, ErrAgentBusy) ||
		errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, ErrUnknownArena) ||
		errors.Is(err, ErrPrizePoolTooSmall)
}
