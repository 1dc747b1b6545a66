package strategy

import "github.com/alanyoungcy/agentarena/internal/domain"

// Bid computes this round's sealed bid. Each archetype follows its own linear
// ramp over round progress and rating advantage; neither agent ever sees the
// opponent's bids before the reveal phase.
func (s *Strategist) Bid(ctx Context) float64 {
	progress := float64(ctx.Round) / float64(ctx.MaxRounds)
	adv := ctx.ratingAdvantage()

	var bid float64
	switch s.profile.Name {
	case domain.StrategyAggressive:
		bid = 55 + 30*progress + 0.05*adv + noise(s.rng, 10)
	case domain.StrategyDefensive:
		bid = 35 + 20*progress + 0.03*adv + noise(s.rng, 8)
	case domain.StrategyChaotic:
		bid = 20 + s.rng.Float64()*70
	case domain.StrategyCustom:
		ramp := 8 + 10*s.profile.EmotionalVolatility
		bid = s.profile.OpeningBase*0.6 + 25*progress + 0.04*adv + noise(s.rng, ramp)
	default: // balanced
		bid = 45 + 25*progress + 0.04*adv + noise(s.rng, 10)
	}

	return clamp(bid, 5, 100)
}
