package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/alanyoungcy/agentarena/internal/domain"
	"github.com/alanyoungcy/agentarena/internal/market"
	"github.com/alanyoungcy/agentarena/internal/strategy"
)

// barterSide bundles one agent's barter state: private valuations, the
// value-fraction asks it has made, and its latest proposal.
type barterSide struct {
	agent    domain.Agent
	strat    *strategy.Strategist
	values   strategy.Valuations
	asks     []float64
	proposal domain.Allocation // this side's latest claimed take
}

// barterOffer is the allocation currently on the table.
type barterOffer struct {
	by    int
	claim domain.Allocation // proposer's take; the other side gets the rest
}

// runBarter is the multi-good arena: agents propose full allocations of all
// goods, each valuing bundles against its own private per-unit valuations.
// On agreement both captured values are normalized against each agent's own
// maximum and re-normalized to a 100% split for prize purposes.
func (e *Engine) runBarter(ctx context.Context, m domain.Match, a1, a2 domain.Agent, first int) (domain.MatchResult, error) {
	goods := strategy.DefaultGoods

	s1 := &barterSide{
		agent:  a1,
		strat:  strategy.New(strategy.ProfileFor(a1.Strategy, a1.Custom), e.rng),
		values: strategy.DrawValuations(goods, e.rng),
	}
	s2 := &barterSide{
		agent:  a2,
		strat:  strategy.New(strategy.ProfileFor(a2.Strategy, a2.Custom), e.rng),
		values: strategy.DrawValuations(goods, e.rng),
	}
	sides := map[int]*barterSide{1: s1, 2: s2}

	var offer *barterOffer

	for round := 1; round <= m.MaxRounds; round++ {
		if err := ctx.Err(); err != nil {
			return domain.MatchResult{}, fmt.Errorf("engine: barter round %d: %w", round, err)
		}

		active := first
		if round%2 == 0 {
			active = other(first)
		}

		for _, mover := range []int{active, other(active)} {
			accepted, err := e.barterTurn(ctx, m, goods, sides, mover, round, &offer)
			if err != nil {
				return domain.MatchResult{}, err
			}
			if accepted != nil {
				rec := barterRecord(m, round, s1, s2)
				rec.Accepted = true
				rec.AcceptedBy = &sides[*accepted].agent.ID
				if err := e.rounds.Upsert(ctx, rec); err != nil {
					return domain.MatchResult{}, fmt.Errorf("engine: record barter round %d: %w", round, err)
				}
				e.pub.Publish(m.ID, domain.EventRound, roundPayload(rec))
				return e.barterResult(m, goods, s1, s2, *offer, round), nil
			}
		}

		rec := barterRecord(m, round, s1, s2)
		if err := e.rounds.Upsert(ctx, rec); err != nil {
			return domain.MatchResult{}, fmt.Errorf("engine: record barter round %d: %w", round, err)
		}
		e.pub.Publish(m.ID, domain.EventRound, roundPayload(rec))

		markets, err := e.maker.Reprice(ctx, m.ID, market.Observation{
			Round:     round,
			MaxRounds: m.MaxRounds,
			Agent1ID:  a1.ID,
			Agent2ID:  a2.ID,
			Asks1:     s1.asks,
			Asks2:     s2.asks,
		})
		if err != nil {
			return domain.MatchResult{}, fmt.Errorf("engine: reprice barter round %d: %w", round, err)
		}
		e.publishOdds(m.ID, markets)
	}

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

func (e *Engine) barterTurn(ctx context.Context, m domain.Match, goods []strategy.Good, sides map[int]*barterSide, mover, round int, offer **barterOffer) (*int, error) {
	me := sides[mover]
	opp := sides[other(mover)]

	bctx := strategy.BarterContext{
		Context: strategy.Context{
			Round:     round,
			MaxRounds: m.MaxRounds,
			MyRating:  me.agent.Rating,
			OppRating: opp.agent.Rating,
			MyOffers:  me.asks,
			OppOffers: opp.asks,
		},
		Goods:  goods,
		Values: me.values,
	}
	if *offer != nil && (*offer).by != mover {
		// What the proposer left on the table is what I am being offered.
		bctx.Incoming = complement(goods, (*offer).claim)
	}

	act := me.strat.DecideBarter(bctx)
	e.sleep(ctx, m.Arena, act.ThinkDelay)

	switch act.Kind {
	case strategy.ActionAccept:
		e.appendMessage(ctx, m.ID, &me.agent.ID, domain.MessageAccept, round, act.Flavor)
		return &mover, nil

	case strategy.ActionReject:
		e.appendMessage(ctx, m.ID, &me.agent.ID, domain.MessageReject, round, act.Flavor)
		*offer = nil
		return nil, nil

	case strategy.ActionOffer:
		me.asks = append(me.asks, act.Offer)
		me.proposal = act.Proposal
		*offer = &barterOffer{by: mover, claim: act.Proposal}
		e.appendMessage(ctx, m.ID, &me.agent.ID, domain.MessageOffer, round, act.Flavor)
	}
	return nil, nil
}

// barterResult computes the dual-normalized split from an accepted
// allocation: each side's captured value as a fraction of its own maximum,
// then re-normalized so the two percentages sum to 100.
func (e *Engine) barterResult(m domain.Match, goods []strategy.Good, s1, s2 *barterSide, offer barterOffer, round int) domain.MatchResult {
	var take1, take2 domain.Allocation
	if offer.by == 1 {
		take1 = offer.claim
		take2 = complement(goods, offer.claim)
	} else {
		take2 = offer.claim
		take1 = complement(goods, offer.claim)
	}

	cap1 := capturedPct(goods, s1.values, take1)
	cap2 := capturedPct(goods, s2.values, take2)

	split1, split2 := 50.0, 50.0
	if cap1+cap2 > 0 {
		split1 = cap1 / (cap1 + cap2) * 100
		split2 = 100 - split1
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

func capturedPct(goods []strategy.Good, v strategy.Valuations, alloc domain.Allocation) float64 {
	max := v.MaxValue(goods)
	if max <= 0 {
		return 0
	}
	return v.ValueOf(alloc) / max * 100
}

// complement returns the units of each good not claimed by alloc.
func complement(goods []strategy.Good, alloc domain.Allocation) domain.Allocation {
	rest := make(domain.Allocation, len(goods))
	for _, g := range goods {
		rest[g.Name] = g.Supply - alloc[g.Name]
	}
	return rest
}

func barterRecord(m domain.Match, round int, s1, s2 *barterSide) domain.RoundRecord {
	return domain.RoundRecord{
		MatchID:   m.ID,
		Round:     round,
		Arena:     m.Arena,
		Data:      domain.BarterRound{Proposal1: s1.proposal, Proposal2: s2.proposal},
		CreatedAt: time.Now().UTC(),
	}
}
