package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/alanyoungcy/agentarena/internal/domain"
	"github.com/alanyoungcy/agentarena/internal/market"
	"github.com/alanyoungcy/agentarena/internal/strategy"
)

// side bundles one agent's per-match bargaining state.
type side struct {
	agent domain.Agent
	strat *strategy.Strategist
	asks  []float64 // this side's asks for itself, in order
}

// outstanding is the offer currently on the table.
type outstanding struct {
	by  int     // 1 or 2
	ask float64 // proposer's ask for itself; the other side is offered 100-ask
}

// runBargaining is the shared percentage-split round loop behind the
// negotiation and speed-trade arenas. Each round the active agent moves
// first and the passive agent gets a symmetric turn in the same round; the
// match ends the moment either side accepts.
func (e *Engine) runBargaining(ctx context.Context, m domain.Match, a1, a2 domain.Agent, first int) (domain.MatchResult, error) {
	s1 := &side{agent: a1, strat: strategy.New(strategy.ProfileFor(a1.Strategy, a1.Custom), e.rng)}
	s2 := &side{agent: a2, strat: strategy.New(strategy.ProfileFor(a2.Strategy, a2.Custom), e.rng)}
	sides := map[int]*side{1: s1, 2: s2}

	var walk *priceWalk
	if m.Arena == domain.ArenaSpeedTrade {
		walk = newPriceWalk(e.rng)
	}

	var offer *outstanding

	for round := 1; round <= m.MaxRounds; round++ {
		if err := ctx.Err(); err != nil {
			return domain.MatchResult{}, fmt.Errorf("engine: round %d: %w", round, err)
		}

		var price *float64
		if walk != nil {
			p := walk.step()
			price = &p
		}

		active := first
		if round%2 == 0 {
			active = other(first)
		}

		for _, mover := range []int{active, other(active)} {
			accepted, err := e.bargainTurn(ctx, m, sides, mover, round, &offer, price)
			if err != nil {
				return domain.MatchResult{}, err
			}
			if accepted != nil {
				rec := bargainRecord(m, round, s1, s2, price)
				rec.Accepted = true
				rec.AcceptedBy = &sides[*accepted].agent.ID
				if err := e.rounds.Upsert(ctx, rec); err != nil {
					return domain.MatchResult{}, fmt.Errorf("engine: record round %d: %w", round, err)
				}
				res := e.splitResult(m, s1, s2, *offer, *accepted, round)
				e.pub.Publish(m.ID, domain.EventRound, roundPayload(rec))
				return res, nil
			}
		}

		rec := bargainRecord(m, round, s1, s2, price)
		if err := e.rounds.Upsert(ctx, rec); err != nil {
			return domain.MatchResult{}, fmt.Errorf("engine: record round %d: %w", round, err)
		}
		e.pub.Publish(m.ID, domain.EventRound, roundPayload(rec))

		if err := e.repriceAndPublish(ctx, m, s1, s2, round); err != nil {
			return domain.MatchResult{}, err
		}
	}

	// Deadline passed with no acceptance: no deal, no split.
	e.systemMessage(ctx, m.ID, m.MaxRounds, "Time expired with no agreement.")
	return domain.MatchResult{
		MatchID:     m.ID,
		Arena:       m.Arena,
		Agent1ID:    a1.ID,
		Agent2ID:    a2.ID,
		TotalRounds: m.MaxRounds,
		Agreed:      false,
	}, nil
}

// bargainTurn runs one agent's turn. It returns the mover's index when the
// mover accepted the outstanding offer.
func (e *Engine) bargainTurn(ctx context.Context, m domain.Match, sides map[int]*side, mover, round int, offer **outstanding, price *float64) (*int, error) {
	me := sides[mover]
	opp := sides[other(mover)]

	sctx := strategy.Context{
		Round:       round,
		MaxRounds:   m.MaxRounds,
		MyRating:    me.agent.Rating,
		OppRating:   opp.agent.Rating,
		MyOffers:    me.asks,
		OppOffers:   opp.asks,
		MarketPrice: price,
	}
	if *offer != nil && (*offer).by != mover {
		offered := 100 - (*offer).ask
		sctx.LastOffer = &offered
	}

	act := me.strat.Decide(sctx)
	e.sleep(ctx, m.Arena, act.ThinkDelay)

	switch act.Kind {
	case strategy.ActionAccept:
		e.appendMessage(ctx, m.ID, &me.agent.ID, domain.MessageAccept, round, act.Flavor)
		return &mover, nil

	case strategy.ActionReject:
		e.appendMessage(ctx, m.ID, &me.agent.ID, domain.MessageReject, round, act.Flavor)
		*offer = nil
		// An outright rejection re-asserts the mover's position with a
		// fresh ask rather than leaving the table empty.
		resctx := sctx
		resctx.LastOffer = nil
		act = me.strat.Decide(resctx)
		if act.Kind != strategy.ActionOffer {
			return nil, nil
		}
		fallthrough

	case strategy.ActionOffer:
		me.asks = append(me.asks, act.Offer)
		*offer = &outstanding{by: mover, ask: act.Offer}
		e.appendMessage(ctx, m.ID, &me.agent.ID, domain.MessageOffer, round, act.Flavor)
	}
	return nil, nil
}

// splitResult converts an accepted offer into the final split.
func (e *Engine) splitResult(m domain.Match, s1, s2 *side, offer outstanding, acceptor, round int) domain.MatchResult {
	var split1, split2 float64
	if offer.by == 1 {
		split1, split2 = offer.ask, 100-offer.ask
	} else {
		split2, split1 = offer.ask, 100-offer.ask
	}

	var winner *string
	switch {
	case split1 > split2:
		winner = &s1.agent.ID
	case split2 > split1:
		winner = &s2.agent.ID
	}

	return domain.MatchResult{
		MatchID:     m.ID,
		Arena:       m.Arena,
		Agent1ID:    s1.agent.ID,
		Agent2ID:    s2.agent.ID,
		WinnerID:    winner,
		Split1:      split1,
		Split2:      split2,
		TotalRounds: round,
		Agreed:      true,
	}
}

func (e *Engine) repriceAndPublish(ctx context.Context, m domain.Match, s1, s2 *side, round int) error {
	markets, err := e.maker.Reprice(ctx, m.ID, market.Observation{
		Round:     round,
		MaxRounds: m.MaxRounds,
		Agent1ID:  s1.agent.ID,
		Agent2ID:  s2.agent.ID,
		Asks1:     s1.asks,
		Asks2:     s2.asks,
	})
	if err != nil {
		return fmt.Errorf("engine: reprice round %d: %w", round, err)
	}
	e.publishOdds(m.ID, markets)
	return nil
}

func bargainRecord(m domain.Match, round int, s1, s2 *side, price *float64) domain.RoundRecord {
	data := domain.NegotiationRound{MarketPrice: price}
	if len(s1.asks) > 0 {
		v := s1.asks[len(s1.asks)-1]
		data.Offer1 = &v
	}
	if len(s2.asks) > 0 {
		v := s2.asks[len(s2.asks)-1]
		data.Offer2 = &v
	}
	return domain.RoundRecord{
		MatchID:   m.ID,
		Round:     round,
		Arena:     m.Arena,
		Data:      data,
		CreatedAt: time.Now().UTC(),
	}
}

func roundPayload(rec domain.RoundRecord) map[string]any {
	return map[string]any{
		"round":       rec.Round,
		"arena":       rec.Arena,
		"data":        rec.Data,
		"accepted":    rec.Accepted,
		"accepted_by": rec.AcceptedBy,
	}
}

func other(n int) int {
	if n == 1 {
		return 2
	}
	return 1
}
