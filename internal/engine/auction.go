package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/alanyoungcy/agentarena/internal/domain"
	"github.com/alanyoungcy/agentarena/internal/market"
	"github.com/alanyoungcy/agentarena/internal/strategy"
)

// runAuction is the sealed-bid arena: each agent submits a hidden bid per
// round with no visibility into the opponent's bids; totals are revealed
// after the final round. The higher total wins and pays a Vickrey-style
// rate derived from the loser's total, so this arena always produces a
// winner.
func (e *Engine) runAuction(ctx context.Context, m domain.Match, a1, a2 domain.Agent) (domain.MatchResult, error) {
	st1 := strategy.New(strategy.ProfileFor(a1.Strategy, a1.Custom), e.rng)
	st2 := strategy.New(strategy.ProfileFor(a2.Strategy, a2.Custom), e.rng)

	bids1 := make([]float64, 0, m.MaxRounds)
	bids2 := make([]float64, 0, m.MaxRounds)

	for round := 1; round <= m.MaxRounds; round++ {
		if err := ctx.Err(); err != nil {
			return domain.MatchResult{}, fmt.Errorf("engine: auction round %d: %w", round, err)
		}

		ctx1 := strategy.Context{Round: round, MaxRounds: m.MaxRounds, MyRating: a1.Rating, OppRating: a2.Rating}
		ctx2 := strategy.Context{Round: round, MaxRounds: m.MaxRounds, MyRating: a2.Rating, OppRating: a1.Rating}

		b1 := st1.Bid(ctx1)
		b2 := st2.Bid(ctx2)
		bids1 = append(bids1, b1)
		bids2 = append(bids2, b2)

		e.sleep(ctx, m.Arena, time.Duration(300+e.rng.Intn(900))*time.Millisecond)
		e.systemMessage(ctx, m.ID, round, fmt.Sprintf("Round %d: both sealed bids are in.", round))

		rec := domain.RoundRecord{
			MatchID:   m.ID,
			Round:     round,
			Arena:     m.Arena,
			Data:      domain.AuctionRound{Bid1: &b1, Bid2: &b2},
			CreatedAt: time.Now().UTC(),
		}
		if err := e.rounds.Upsert(ctx, rec); err != nil {
			return domain.MatchResult{}, fmt.Errorf("engine: record auction round %d: %w", round, err)
		}
		// Bids stay sealed on the live feed until the reveal.
		e.pub.Publish(m.ID, domain.EventRound, map[string]any{
			"round":  round,
			"arena":  m.Arena,
			"sealed": true,
		})

		markets, err := e.maker.Reprice(ctx, m.ID, market.Observation{
			Round:     round,
			MaxRounds: m.MaxRounds,
			Agent1ID:  a1.ID,
			Agent2ID:  a2.ID,
			Asks1:     bids1,
			Asks2:     bids2,
		})
		if err != nil {
			return domain.MatchResult{}, fmt.Errorf("engine: reprice auction round %d: %w", round, err)
		}
		e.publishOdds(m.ID, markets)
	}

	total1, total2 := sumBids(bids1), sumBids(bids2)

	// Reveal phase.
	for i := range bids1 {
		e.systemMessage(ctx, m.ID, m.MaxRounds,
			fmt.Sprintf("Reveal round %d: %s bid %.1f, %s bid %.1f.", i+1, a1.Name, bids1[i], a2.Name, bids2[i]))
	}
	e.systemMessage(ctx, m.ID, m.MaxRounds,
		fmt.Sprintf("Totals: %s %.1f vs %s %.1f.", a1.Name, total1, a2.Name, total2))

	winnerIs1 := total1 > total2
	if total1 == total2 {
		winnerIs1 = auctionTieBreak(bids1, bids2, a1.Rating >= a2.Rating)
	}

	var winnerShare float64
	if winnerIs1 {
		winnerShare = auctionSplit(total2, m.MaxRounds)
	} else {
		winnerShare = auctionSplit(total1, m.MaxRounds)
	}

	res := domain.MatchResult{
		MatchID:     m.ID,
		Arena:       m.Arena,
		Agent1ID:    a1.ID,
		Agent2ID:    a2.ID,
		TotalRounds: m.MaxRounds,
		Agreed:      true, // an auction always produces a result
	}
	if winnerIs1 {
		res.WinnerID = &a1.ID
		res.Split1 = winnerShare
		res.Split2 = 100 - winnerShare
	} else {
		res.WinnerID = &a2.ID
		res.Split2 = winnerShare
		res.Split1 = 100 - winnerShare
	}
	return res, nil
}

// auctionTieBreak resolves an equal-total auction by the first round in
// which one bid strictly exceeded the other; a full tie falls back to the
// higher-rated agent.
func auctionTieBreak(bids1, bids2 []float64, agent1HigherRated bool) bool {
	for i := range bids1 {
		if bids1[i] != bids2[i] {
			return bids1[i] > bids2[i]
		}
	}
	return agent1HigherRated
}

// auctionSplit is the winner's prize share under Vickrey-style pricing:
// the payment rate comes from the loser's total, normalized against the
// maximum possible spend. An aggressive loser therefore shrinks the
// winner's share, and can even push it below 50.
func auctionSplit(loserTotal float64, maxRounds int) float64 {
	maxSpend := float64(maxRounds) * 100
	return (1 - loserTotal/maxSpend) * 100
}

func sumBids(bids []float64) float64 {
	var t float64
	for _, b := range bids {
		t += b
	}
	return t
}
