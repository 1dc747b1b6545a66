// Package strategy implements the pure decision engine behind every agent:
// archetype profiles, bargaining decisions, sealed auction bids, and barter
// allocation evaluation. The package performs no I/O; all randomness flows
// through an injected Rand.
package strategy

import (
	"github.com/alanyoungcy/agentarena/internal/domain"
)

// Profile is the common parameter shape all archetypes share. Percentages
// are in [0,100]; probability-like knobs are in [0,1].
type Profile struct {
	Name                domain.StrategyType
	OpeningBase         float64 // first ask, percent of the pool
	ConcessionMin       float64 // per-round concession range
	ConcessionMax       float64
	FloorBase           float64 // minimum acceptable share before urgency
	BluffProbability    float64
	EmotionalVolatility float64
	TimePressure        float64 // how strongly deadlines bend behavior
}

// Built-in archetypes. Aggressive opens high, concedes slowly and bluffs
// often; defensive opens modestly and folds under deadline pressure; chaotic
// is deliberately erratic.
var archetypes = map[domain.StrategyType]Profile{
	domain.StrategyAggressive: {
		Name:                domain.StrategyAggressive,
		OpeningBase:         74,
		ConcessionMin:       1,
		ConcessionMax:       3,
		FloorBase:           52,
		BluffProbability:    0.45,
		EmotionalVolatility: 0.35,
		TimePressure:        0.35,
	},
	domain.StrategyDefensive: {
		Name:                domain.StrategyDefensive,
		OpeningBase:         60,
		ConcessionMin:       2,
		ConcessionMax:       5,
		FloorBase:           42,
		BluffProbability:    0.10,
		EmotionalVolatility: 0.15,
		TimePressure:        0.70,
	},
	domain.StrategyBalanced: {
		Name:                domain.StrategyBalanced,
		OpeningBase:         66,
		ConcessionMin:       2,
		ConcessionMax:       4,
		FloorBase:           46,
		BluffProbability:    0.20,
		EmotionalVolatility: 0.25,
		TimePressure:        0.50,
	},
	domain.StrategyChaotic: {
		Name:                domain.StrategyChaotic,
		OpeningBase:         68,
		ConcessionMin:       0,
		ConcessionMax:       7,
		FloorBase:           40,
		BluffProbability:    0.35,
		EmotionalVolatility: 0.95,
		TimePressure:        0.40,
	},
}

// ProfileFor resolves an agent's profile. Custom parameters are clamped into
// their valid ranges; unknown strategies fall back to balanced.
func ProfileFor(t domain.StrategyType, custom *domain.CustomProfile) Profile {
	if t == domain.StrategyCustom && custom != nil {
		p := Profile{
			Name:                domain.StrategyCustom,
			OpeningBase:         clamp(custom.OpeningBase, 50, 90),
			ConcessionMin:       clamp(custom.ConcessionMin, 0, 10),
			ConcessionMax:       clamp(custom.ConcessionMax, 0, 12),
			FloorBase:           clamp(custom.FloorBase, 25, 65),
			BluffProbability:    clamp(custom.BluffProbability, 0, 1),
			EmotionalVolatility: clamp(custom.EmotionalVolatility, 0, 1),
			TimePressure:        clamp(custom.TimePressure, 0, 1),
		}
		if p.ConcessionMax < p.ConcessionMin {
			p.ConcessionMax = p.ConcessionMin
		}
		return p
	}
	if p, ok := archetypes[t]; ok {
		return p
	}
	return archetypes[domain.StrategyBalanced]
}
