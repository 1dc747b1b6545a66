package strategy

import "github.com/alanyoungcy/agentarena/internal/domain"

// counterBand is how far below the floor an incoming offer may sit and still
// draw a counter rather than an outright rejection.
const counterBand = 8

// speedTradePull is the fraction a speed-trade ask is pulled toward the
// drifting market price.
const speedTradePull = 0.15

// OpeningOffer computes the first ask: the archetype base, a rating-advantage
// term, and bounded random noise.
func (s *Strategist) OpeningOffer(ctx Context) float64 {
	adv := clamp(ctx.ratingAdvantage()/100, -5, 5)
	n := noise(s.rng, 2+3*s.profile.EmotionalVolatility)
	return clamp(s.profile.OpeningBase+adv+n, 45, 90)
}

// Floor computes the minimum acceptable share this round. End-of-match
// urgency lowers it in proportion to the profile's time preference.
func (s *Strategist) Floor(ctx Context) float64 {
	floor := s.profile.FloorBase
	switch rem := ctx.RoundsRemaining(); {
	case rem <= 1:
		floor -= 8 * s.profile.TimePressure
	case rem <= 3:
		floor -= 4 * s.profile.TimePressure
	}
	return clamp(floor, 20, 90)
}

// AcceptThreshold returns the probability of accepting an offer, a step
// function of the surplus above the floor.
func (s *Strategist) AcceptThreshold(ctx Context, offeredToMe float64) float64 {
	surplus := offeredToMe - s.Floor(ctx)
	switch {
	case surplus < 0:
		return 0
	case surplus >= 15:
		return 0.95
	case surplus >= 8:
		return 0.80
	case surplus >= 4:
		return 0.60
	default:
		return 0.35
	}
}

// timePressureBonus sweetens acceptance as the deadline nears.
func (s *Strategist) timePressureBonus(ctx Context) float64 {
	switch rem := ctx.RoundsRemaining(); {
	case rem <= 2:
		return 0.25 * s.profile.TimePressure
	case rem <= 4:
		return 0.10 * s.profile.TimePressure
	default:
		return 0
	}
}

// concession draws the per-round concession: a uniform draw from the
// profile's range, scaled under deadline pressure and modulated by the
// opponent's observed concession trend.
func (s *Strategist) concession(ctx Context) float64 {
	span := s.profile.ConcessionMax - s.profile.ConcessionMin
	rate := s.profile.ConcessionMin + s.rng.Float64()*span

	switch rem := ctx.RoundsRemaining(); {
	case rem <= 2:
		rate *= 1 + s.profile.TimePressure
	case rem <= 4:
		rate *= 1 + s.profile.TimePressure/2
	}

	// Opponent trend over their last two asks. A falling ask means they are
	// folding, so concede less; a holding or rising ask means they are
	// hardening.
	if n := len(ctx.OppOffers); n >= 2 {
		trend := ctx.OppOffers[n-1] - ctx.OppOffers[n-2]
		switch {
		case trend <= -3:
			rate *= 0.6
		case trend >= 0:
			if s.profile.Name == domain.StrategyAggressive {
				rate *= 0.3 // hold firm
			} else {
				rate *= 1.3
			}
		}
	}

	// Highly volatile profiles occasionally reverse direction entirely.
	if s.profile.EmotionalVolatility >= 0.9 && s.rng.Float64() < 0.2 {
		rate = -rate
	}

	return rate
}

// nextAsk computes this round's ask from the previous one.
func (s *Strategist) nextAsk(ctx Context, floor float64) float64 {
	if len(ctx.MyOffers) == 0 {
		return s.OpeningOffer(ctx)
	}
	last := ctx.MyOffers[len(ctx.MyOffers)-1]
	ask := last - s.concession(ctx) + noise(s.rng, s.profile.EmotionalVolatility*3)

	if ctx.MarketPrice != nil {
		ask += (*ctx.MarketPrice - ask) * speedTradePull
	}
	return clamp(ask, floor, 95)
}

// Decide produces the negotiation (or speed-trade) decision for one turn.
// With an offer on the table it accepts, rejects (possibly bluffing) or
// counters; otherwise it produces the next ask.
func (s *Strategist) Decide(ctx Context) Action {
	floor := s.Floor(ctx)

	if ctx.LastOffer != nil {
		offered := *ctx.LastOffer

		if offered >= floor {
			p := s.AcceptThreshold(ctx, offered) + s.timePressureBonus(ctx)
			if s.rng.Float64() < p {
				return Action{
					Kind:       ActionAccept,
					Flavor:     s.flavorAccept(offered),
					ThinkDelay: s.thinkDelay(),
				}
			}
			// Good enough to keep talking: counter below.
		} else if offered < floor-counterBand {
			// Insultingly low: never counter. Either an honest rejection or
			// a bluff claiming better options elsewhere.
			bluff := s.rng.Float64() < s.profile.BluffProbability
			return Action{
				Kind:       ActionReject,
				Bluff:      bluff,
				Flavor:     s.flavorReject(offered, bluff),
				ThinkDelay: s.thinkDelay(),
			}
		}
	}

	ask := s.nextAsk(ctx, floor)
	return Action{
		Kind:       ActionOffer,
		Offer:      ask,
		Flavor:     s.flavorOffer(ask, len(ctx.MyOffers) == 0),
		ThinkDelay: s.thinkDelay(),
	}
}
