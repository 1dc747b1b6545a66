package engine

import "github.com/alanyoungcy/agentarena/internal/strategy"

// Speed-trade price walk bounds.
const (
	priceFloor   = 25.0
	priceCeiling = 75.0
)

// priceWalk is the synthetic drifting market price speed-trade offers anchor
// to: a momentum-based random walk bounded to [25,75].
type priceWalk struct {
	rng      strategy.Rand
	price    float64
	momentum float64
}

func newPriceWalk(rng strategy.Rand) *priceWalk {
	return &priceWalk{rng: rng, price: 50}
}

// step advances the walk one round and returns the new price. Momentum
// decays toward zero while fresh shocks keep the price moving.
func (w *priceWalk) step() float64 {
	w.momentum = w.momentum*0.6 + (w.rng.Float64()*2-1)*4
	w.price += w.momentum

	if w.price < priceFloor {
		w.price = priceFloor
		w.momentum = 0
	}
	if w.price > priceCeiling {
		w.price = priceCeiling
		w.momentum = 0
	}
	return w.price
}
