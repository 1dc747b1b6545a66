package strategy

import (
	"fmt"

	"github.com/alanyoungcy/agentarena/internal/domain"
)

// Flavor lines keep the spectator feed readable. They carry no game meaning.

var offerLines = map[domain.StrategyType][]string{
	domain.StrategyAggressive: {
		"Take it or leave it: %.0f%% for me.",
		"I don't do charity. %.0f%%.",
		"%.0f%% is already generous.",
	},
	domain.StrategyDefensive: {
		"I could live with %.0f%% on my side.",
		"Let's keep this civil — %.0f%% for me?",
		"How about %.0f%%, split the rest?",
	},
	domain.StrategyBalanced: {
		"Fair is fair: %.0f%% my way.",
		"I propose %.0f%% for me.",
		"Meeting you partway at %.0f%%.",
	},
	domain.StrategyChaotic: {
		"The dice say %.0f%%!",
		"Today I feel like %.0f%%. Tomorrow, who knows.",
		"%.0f%%. Don't ask why.",
	},
}

var bluffLines = []string{
	"I have three better offers waiting.",
	"You clearly don't know what this is worth to others.",
	"My floor is much higher than that, I assure you.",
}

var rejectLines = []string{
	"That's below what I can accept.",
	"No deal at that number.",
	"We're not even in the same neighborhood.",
}

var acceptLines = []string{
	"Deal. %.0f%% works for me.",
	"Agreed — %.0f%% and we're done.",
	"Shake on it. %.0f%%.",
}

func (s *Strategist) pick(lines []string) string {
	return lines[s.rng.Intn(len(lines))]
}

func (s *Strategist) flavorOffer(ask float64, opening bool) string {
	lines, ok := offerLines[s.profile.Name]
	if !ok {
		lines = offerLines[domain.StrategyBalanced]
	}
	text := fmt.Sprintf(s.pick(lines), ask)
	if opening {
		return "Opening position. " + text
	}
	return text
}

func (s *Strategist) flavorReject(offered float64, bluff bool) string {
	if bluff {
		return s.pick(bluffLines)
	}
	return s.pick(rejectLines)
}

func (s *Strategist) flavorAccept(offered float64) string {
	return fmt.Sprintf(s.pick(acceptLines), offered)
}
