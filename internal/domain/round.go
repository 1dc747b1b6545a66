package domain

import "time"

// RoundData is the arena-specific payload of a round record. Exactly one
// concrete variant exists per arena; the Arena tag on RoundRecord selects it.
type RoundData interface {
	roundData()
}

// NegotiationRound captures one round of percentage-split bargaining. It is
// shared by the negotiation and speed-trade arenas; MarketPrice is only set
// for speed-trade.
type NegotiationRound struct {
	Offer1      *float64 // agent 1's ask for itself, percent
	Offer2      *float64
	MarketPrice *float64
}

func (NegotiationRound) roundData() {}

// AuctionRound captures one sealed-bid round. Bids stay hidden from the
// opposing agent until the reveal phase after the final round.
type AuctionRound struct {
	Bid1 *float64
	Bid2 *float64
}

func (AuctionRound) roundData() {}

// Allocation maps good name to the number of units assigned to the proposer.
// The opponent implicitly receives the remaining supply.
type Allocation map[string]int

// BarterRound captures one round of multi-good allocation bargaining.
type BarterRound struct {
	Proposal1 Allocation // agent 1's proposed take for itself
	Proposal2 Allocation
}

func (BarterRound) roundData() {}

// RoundRecord is the append-only per-round history row, upserted by
// (match, round) so retried writes are idempotent.
type RoundRecord struct {
	MatchID    string
	Round      int
	Arena      Arena
	Data       RoundData
	Accepted   bool
	AcceptedBy *string
	CreatedAt  time.Time
}
