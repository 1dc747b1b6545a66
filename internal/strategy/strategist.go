package strategy

import (
	"time"
)

// Context is the information a strategist sees when asked for a decision.
// Offer percentages are always expressed from the owning side's perspective:
// MyOffers are past asks for myself, OppOffers are the opponent's past asks
// for itself, LastOffer is the share currently on the table for me.
type Context struct {
	Round     int
	MaxRounds int
	MyRating  int
	OppRating int
	MyOffers  []float64
	OppOffers []float64
	LastOffer *float64
	// MarketPrice is the synthetic drifting price, set only in speed-trade.
	MarketPrice *float64
}

// RoundsRemaining returns how many rounds are left including the current one.
func (c Context) RoundsRemaining() int {
	return c.MaxRounds - c.Round
}

func (c Context) ratingAdvantage() float64 {
	return float64(c.MyRating - c.OppRating)
}

// ActionKind enumerates the decisions a strategist can return.
type ActionKind string

const (
	ActionOffer  ActionKind = "offer"
	ActionAccept ActionKind = "accept"
	ActionReject ActionKind = "reject"
)

// Action is a single decision plus presentation extras. ThinkDelay is purely
// cosmetic pacing; callers may clamp it to zero.
type Action struct {
	Kind       ActionKind
	Offer      float64 // my ask, percent, when Kind == ActionOffer
	Bluff      bool    // the rejection is a lie meant to pressure the opponent
	Flavor     string
	ThinkDelay time.Duration
}

// Strategist binds a profile to a random source and produces decisions.
type Strategist struct {
	profile Profile
	rng     Rand
}

// New creates a Strategist for the given profile.
func New(p Profile, rng Rand) *Strategist {
	return &Strategist{profile: p, rng: rng}
}

// Profile returns the bound profile.
func (s *Strategist) Profile() Profile {
	return s.profile
}

// thinkDelay draws an artificial deliberation pause between 400ms and 2.4s,
// shorter for low-volatility profiles.
func (s *Strategist) thinkDelay() time.Duration {
	base := 400 + s.rng.Intn(1200)
	extra := int(s.profile.EmotionalVolatility * 800)
	if extra > 0 {
		extra = s.rng.Intn(extra + 1)
	}
	return time.Duration(base+extra) * time.Millisecond
}
