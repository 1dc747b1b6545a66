package strategy

import (
	"sort"

	"github.com/alanyoungcy/agentarena/internal/domain"
)

// Good is one tradable good with a fixed total supply.
type Good struct {
	Name   string
	Supply int
}

// DefaultGoods is the standard three-good barter table.
var DefaultGoods = []Good{
	{Name: "gold", Supply: 10},
	{Name: "grain", Supply: 10},
	{Name: "timber", Supply: 10},
}

// Valuations maps good name to this agent's private per-unit value.
type Valuations map[string]float64

// DrawValuations rolls a private per-unit valuation in [1,10] for each good.
func DrawValuations(goods []Good, rng Rand) Valuations {
	v := make(Valuations, len(goods))
	for _, g := range goods {
		v[g.Name] = 1 + rng.Float64()*9
	}
	return v
}

// MaxValue returns the value of holding the entire supply.
func (v Valuations) MaxValue(goods []Good) float64 {
	var total float64
	for _, g := range goods {
		total += float64(g.Supply) * v[g.Name]
	}
	return total
}

// ValueOf returns the value of an allocation under these valuations.
func (v Valuations) ValueOf(alloc domain.Allocation) float64 {
	var total float64
	for name, units := range alloc {
		total += float64(units) * v[name]
	}
	return total
}

// BarterContext extends Context with the barter-specific extras. Incoming is
// the allocation currently proposed for me, nil when none is outstanding.
type BarterContext struct {
	Context
	Goods    []Good
	Values   Valuations
	Incoming domain.Allocation
}

// BarterAction is a barter decision: accept/reject, or a counter-proposal
// allocation claiming Proposal for myself.
type BarterAction struct {
	Action
	Proposal domain.Allocation
}

// EvaluateAllocation scores an incoming allocation as the percentage of my
// maximum possible value it captures, making it comparable to a split offer.
func (s *Strategist) EvaluateAllocation(ctx BarterContext, alloc domain.Allocation) float64 {
	max := ctx.Values.MaxValue(ctx.Goods)
	if max <= 0 {
		return 0
	}
	return ctx.Values.ValueOf(alloc) / max * 100
}

// BuildProposal assembles an allocation worth roughly targetPct of my
// maximum value, grabbing the goods I value most first.
func (s *Strategist) BuildProposal(ctx BarterContext, targetPct float64) domain.Allocation {
	type unitValue struct {
		name  string
		value float64
	}
	goods := make([]unitValue, 0, len(ctx.Goods))
	for _, g := range ctx.Goods {
		goods = append(goods, unitValue{name: g.Name, value: ctx.Values[g.Name]})
	}
	sort.Slice(goods, func(i, j int) bool { return goods[i].value > goods[j].value })

	target := targetPct / 100 * ctx.Values.MaxValue(ctx.Goods)
	alloc := make(domain.Allocation, len(ctx.Goods))
	var captured float64

	for _, g := range goods {
		supply := supplyOf(ctx.Goods, g.name)
		for u := 0; u < supply && captured < target; u++ {
			alloc[g.name]++
			captured += g.value
		}
	}
	return alloc
}

func supplyOf(goods []Good, name string) int {
	for _, g := range goods {
		if g.Name == name {
			return g.Supply
		}
	}
	return 0
}

// DecideBarter mirrors Decide for multi-good allocations: the incoming
// allocation is scored as a percentage of my maximum value and run through
// the same floor-and-threshold rule, with counters built greedily from my
// private valuations.
func (s *Strategist) DecideBarter(ctx BarterContext) BarterAction {
	if ctx.Incoming != nil {
		offered := s.EvaluateAllocation(ctx, ctx.Incoming)
		inner := ctx.Context
		inner.LastOffer = &offered
		act := s.Decide(inner)
		if act.Kind != ActionOffer {
			return BarterAction{Action: act}
		}
		return BarterAction{Action: act, Proposal: s.BuildProposal(ctx, act.Offer)}
	}

	floor := s.Floor(ctx.Context)
	ask := s.nextAsk(ctx.Context, floor)
	return BarterAction{
		Action: Action{
			Kind:       ActionOffer,
			Offer:      ask,
			Flavor:     s.flavorOffer(ask, len(ctx.MyOffers) == 0),
			ThinkDelay: s.thinkDelay(),
		},
		Proposal: s.BuildProposal(ctx, ask),
	}
}
