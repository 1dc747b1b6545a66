// Package market implements the prediction market maker: one set of markets
// per match, live repricing as rounds play out, and exactly-once settlement
// against the final result.
package market

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/agentarena/internal/domain"
	"github.com/alanyoungcy/agentarena/internal/strategy"
)

const (
	minProbability = 0.05
	maxProbability = 0.95
	minOdds        = 1.01
	maxOdds        = 20.0
)

// Maker creates, reprices and settles the three per-match markets.
type Maker struct {
	markets domain.MarketStore
	notes   domain.NotificationStore
	logger  *slog.Logger
}

// NewMaker creates a Maker.
func NewMaker(markets domain.MarketStore, notes domain.NotificationStore, logger *slog.Logger) *Maker {
	return &Maker{
		markets: markets,
		notes:   notes,
		logger:  logger.With(slog.String("component", "market_maker")),
	}
}

// eloExpectation is the probability that a beats b under Elo ratings.
func eloExpectation(ratingA, ratingB int) float64 {
	return 1 / (1 + math.Pow(10, float64(ratingB-ratingA)/400))
}

// oddsFor derives clamped decimal odds from a probability.
func oddsFor(p float64) float64 {
	if p <= 0 {
		return maxOdds
	}
	odds := 1 / p
	if odds < minOdds {
		return minOdds
	}
	if odds > maxOdds {
		return maxOdds
	}
	return odds
}

// renormalize scales option probabilities to sum to 1 and refreshes odds.
func renormalize(options []domain.MarketOption) {
	var sum float64
	for _, o := range options {
		sum += o.Probability
	}
	if sum <= 0 {
		even := 1 / float64(len(options))
		for i := range options {
			options[i].Probability = even
		}
		sum = 1
	}
	for i := range options {
		options[i].Probability /= sum
		options[i].Odds = oddsFor(options[i].Probability)
	}
}

// agreementBias returns the strategy-matchup adjustment to the baseline
// agreement probability. Aggressive and chaotic pairings push deals away;
// defensive pairings pull them closer.
func agreementBias(p strategy.Profile) float64 {
	switch p.Name {
	case domain.StrategyAggressive:
		return -0.10
	case domain.StrategyDefensive:
		return 0.08
	case domain.StrategyChaotic:
		return -0.12
	case domain.StrategyCustom:
		return 0.05*p.TimePressure - 0.10*p.BluffProbability
	default:
		return 0
	}
}

// pacingBias returns how much a profile stretches a match: slow conceders
// push the expected end later.
func pacingBias(p strategy.Profile) float64 {
	switch p.Name {
	case domain.StrategyAggressive:
		return 0.06
	case domain.StrategyDefensive:
		return -0.05
	case domain.StrategyChaotic:
		return 0.02
	case domain.StrategyCustom:
		return 0.04 - 0.01*(p.ConcessionMin+p.ConcessionMax)/2
	default:
		return 0
	}
}

// roundBuckets splits 1..maxRounds into three contiguous buckets.
func roundBuckets(maxRounds int) [3][2]int {
	a := maxRounds / 3
	b := 2 * maxRounds / 3
	if a < 1 {
		a = 1
	}
	if b <= a {
		b = a + 1
	}
	return [3][2]int{{1, a}, {a + 1, b}, {b + 1, maxRounds}}
}

func bucketRef(lo, hi int) string {
	return fmt.Sprintf("%d-%d", lo, hi)
}

// CreateForMatch creates the three prediction markets for a match: winner,
// agreement (framed as margin of victory for auctions), and rounds buckets.
func (m *Maker) CreateForMatch(ctx context.Context, match domain.Match, a1, a2 domain.Agent) ([]domain.Market, error) {
	p1 := strategy.ProfileFor(a1.Strategy, a1.Custom)
	p2 := strategy.ProfileFor(a2.Strategy, a2.Custom)
	now := time.Now().UTC()

	created := make([]domain.Market, 0, 3)

	// Winner market, seeded by the Elo win probability.
	winP := clampProb(eloExpectation(a1.Rating, a2.Rating))
	winner := domain.Market{
		ID:       uuid.New().String(),
		MatchID:  match.ID,
		Type:     domain.MarketWinner,
		Question: fmt.Sprintf("Who wins: %s or %s?", a1.Name, a2.Name),
		Status:   domain.MarketStatusOpen,
		Options: []domain.MarketOption{
			{ID: uuid.New().String(), Name: a1.Name, Ref: a1.ID, Probability: winP},
			{ID: uuid.New().String(), Name: a2.Name, Ref: a2.ID, Probability: 1 - winP},
		},
		CreatedAt: now,
	}

	// Agreement market. Auctions always produce a winner, so the question
	// becomes margin of victory instead.
	var agreement domain.Market
	if match.Arena == domain.ArenaAuction {
		decisive := clampProb(0.40 - agreementBias(p1) - agreementBias(p2))
		agreement = domain.Market{
			ID:       uuid.New().String(),
			MatchID:  match.ID,
			Type:     domain.MarketAgreement,
			Question: "Margin of victory?",
			Status:   domain.MarketStatusOpen,
			Options: []domain.MarketOption{
				{ID: uuid.New().String(), Name: "Decisive", Ref: refDecisive, Probability: decisive},
				{ID: uuid.New().String(), Name: "Narrow", Ref: refNarrow, Probability: 1 - decisive},
			},
			CreatedAt: now,
		}
	} else {
		deal := clampProb(0.65 + agreementBias(p1) + agreementBias(p2))
		agreement = domain.Market{
			ID:       uuid.New().String(),
			MatchID:  match.ID,
			Type:     domain.MarketAgreement,
			Question: "Will they reach a deal?",
			Status:   domain.MarketStatusOpen,
			Options: []domain.MarketOption{
				{ID: uuid.New().String(), Name: "Deal", Ref: refDeal, Probability: deal},
				{ID: uuid.New().String(), Name: "No deal", Ref: refNoDeal, Probability: 1 - deal},
			},
			CreatedAt: now,
		}
	}

	// Rounds market: three buckets, mass shifted by strategy-implied pacing.
	buckets := roundBuckets(match.MaxRounds)
	probs := [3]float64{0.25, 0.35, 0.40}
	shift := pacingBias(p1) + pacingBias(p2)
	probs[0] = clampProb(probs[0] - shift)
	probs[2] = clampProb(probs[2] + shift)

	rounds := domain.Market{
		ID:        uuid.New().String(),
		MatchID:   match.ID,
		Type:      domain.MarketRounds,
		Question:  "How many rounds will it take?",
		Status:    domain.MarketStatusOpen,
		CreatedAt: now,
	}
	for i, b := range buckets {
		rounds.Options = append(rounds.Options, domain.MarketOption{
			ID:          uuid.New().String(),
			Name:        fmt.Sprintf("Rounds %d-%d", b[0], b[1]),
			Ref:         bucketRef(b[0], b[1]),
			Probability: probs[i],
		})
	}

	for _, mk := range []domain.Market{winner, agreement, rounds} {
		for i := range mk.Options {
			mk.Options[i].MarketID = mk.ID
		}
		renormalize(mk.Options)
		if err := m.markets.CreateWithOptions(ctx, mk); err != nil {
			return nil, fmt.Errorf("market: create %s market: %w", mk.Type, err)
		}
		created = append(created, mk)
	}

	m.logger.InfoContext(ctx, "markets created",
		slog.String("match_id", match.ID),
		slog.Int("count", len(created)),
	)
	return created, nil
}

func clampProb(p float64) float64 {
	if p < minProbability {
		return minProbability
	}
	if p > maxProbability {
		return maxProbability
	}
	return p
}
