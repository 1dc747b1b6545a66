package market

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/alanyoungcy/agentarena/internal/domain"
)

// Observation is the per-round view of a match the repricer works from. Ask
// histories carry each side's asks so far (bid totals for auctions).
type Observation struct {
	Round     int
	MaxRounds int
	Agent1ID  string
	Agent2ID  string
	Asks1     []float64
	Asks2     []float64
}

// Reprice updates every open market of a match after a round and returns the
// refreshed markets. All probabilities are renormalized to sum to 1.
func (m *Maker) Reprice(ctx context.Context, matchID string, obs Observation) ([]domain.Market, error) {
	markets, err := m.markets.ListByMatch(ctx, matchID)
	if err != nil {
		return nil, fmt.Errorf("market: list for reprice: %w", err)
	}

	for i := range markets {
		mk := &markets[i]
		if mk.Status != domain.MarketStatusOpen {
			continue
		}

		switch mk.Type {
		case domain.MarketWinner:
			m.repriceWinner(mk, obs)
		case domain.MarketAgreement:
			m.repriceAgreement(mk, obs)
		case domain.MarketRounds:
			m.repriceRounds(mk, obs)
		}

		renormalize(mk.Options)
		if err := m.markets.UpdateOdds(ctx, mk.ID, mk.Options); err != nil {
			return nil, fmt.Errorf("market: update odds %s: %w", mk.ID, err)
		}
	}

	m.logger.DebugContext(ctx, "markets repriced",
		slog.String("match_id", matchID),
		slog.Int("round", obs.Round),
	)
	return markets, nil
}

// recentAvg averages the last two entries (or fewer).
func recentAvg(vals []float64) float64 {
	n := len(vals)
	if n == 0 {
		return 0
	}
	if n == 1 {
		return vals[0]
	}
	return (vals[n-1] + vals[n-2]) / 2
}

// repriceWinner shifts probability toward whichever side's recent average
// ask is higher: the agent holding firm is winning the war of nerves.
func (m *Maker) repriceWinner(mk *domain.Market, obs Observation) {
	if len(obs.Asks1) == 0 || len(obs.Asks2) == 0 {
		return
	}
	delta := (recentAvg(obs.Asks1) - recentAvg(obs.Asks2)) / 100 * 0.15

	for i := range mk.Options {
		switch mk.Options[i].Ref {
		case obs.Agent1ID:
			mk.Options[i].Probability = clampProb(mk.Options[i].Probability + delta)
		case obs.Agent2ID:
			mk.Options[i].Probability = clampProb(mk.Options[i].Probability - delta)
		}
	}
}

// gap returns |ask1 - ask2| at index i from the end (0 = latest).
func gapAt(obs Observation, back int) (float64, bool) {
	i1 := len(obs.Asks1) - 1 - back
	i2 := len(obs.Asks2) - 1 - back
	if i1 < 0 || i2 < 0 {
		return 0, false
	}
	return math.Abs(obs.Asks1[i1] - obs.Asks2[i2]), true
}

// repriceAgreement raises deal odds when the offer gap is shrinking
// round-over-round and bleeds them as the deadline nears without
// convergence. For auction framing the cumulative bid margin drives the
// decisive/narrow split instead.
func (m *Maker) repriceAgreement(mk *domain.Market, obs Observation) {
	if isMarginFraming(mk) {
		m.repriceMargin(mk, obs)
		return
	}

	cur, okCur := gapAt(obs, 0)
	prev, okPrev := gapAt(obs, 1)
	if !okCur {
		return
	}

	var delta float64
	if okPrev && cur < prev {
		delta = 0.05
	} else {
		progress := float64(obs.Round) / float64(obs.MaxRounds)
		delta = -0.04 * progress
	}

	for i := range mk.Options {
		switch mk.Options[i].Ref {
		case refDeal:
			mk.Options[i].Probability = clampProb(mk.Options[i].Probability + delta)
		case refNoDeal:
			mk.Options[i].Probability = clampProb(mk.Options[i].Probability - delta)
		}
	}
}

func isMarginFraming(mk *domain.Market) bool {
	for _, o := range mk.Options {
		if o.Ref == refDecisive {
			return true
		}
	}
	return false
}

func sum(vals []float64) float64 {
	var t float64
	for _, v := range vals {
		t += v
	}
	return t
}

func (m *Maker) repriceMargin(mk *domain.Market, obs Observation) {
	if obs.Round == 0 {
		return
	}
	margin := math.Abs(sum(obs.Asks1) - sum(obs.Asks2))
	delta := -0.03
	if margin >= 20*float64(obs.Round) {
		delta = 0.05
	}
	for i := range mk.Options {
		switch mk.Options[i].Ref {
		case refDecisive:
			mk.Options[i].Probability = clampProb(mk.Options[i].Probability + delta)
		case refNarrow:
			mk.Options[i].Probability = clampProb(mk.Options[i].Probability - delta)
		}
	}
}

// repriceRounds collapses probability mass out of buckets the match has
// already outlived and redistributes it forward.
func (m *Maker) repriceRounds(mk *domain.Market, obs Observation) {
	var freed float64
	remaining := 0

	for i := range mk.Options {
		_, hi, ok := parseBucket(mk.Options[i].Ref)
		if !ok {
			continue
		}
		if hi < obs.Round {
			freed += mk.Options[i].Probability
			mk.Options[i].Probability = 0
		} else {
			remaining++
		}
	}
	if freed == 0 || remaining == 0 {
		return
	}

	// Redistribute proportionally over the live buckets.
	var liveMass float64
	for _, o := range mk.Options {
		liveMass += o.Probability
	}
	for i := range mk.Options {
		if mk.Options[i].Probability == 0 {
			continue
		}
		if liveMass > 0 {
			mk.Options[i].Probability += freed * mk.Options[i].Probability / liveMass
		} else {
			mk.Options[i].Probability = freed / float64(remaining)
		}
	}
}

func parseBucket(ref string) (lo, hi int, ok bool) {
	parts := strings.SplitN(ref, "-", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	lo, err1 := strconv.Atoi(parts[0])
	hi, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return lo, hi, true
}
