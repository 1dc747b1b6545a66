package settle

import "math"

const (
	// kFactor is the Elo K applied to every rated match.
	kFactor = 32
	// ratingFloor is the minimum rating an agent can fall to.
	ratingFloor = 100
)

// Expectation returns the expected score of a rated player a against b.
func Expectation(ratingA, ratingB int) float64 {
	return 1 / (1 + math.Pow(10, float64(ratingB-ratingA)/400))
}

// NewRating applies one Elo update for an actual score in {0, 0.5, 1}.
func NewRating(rating, opponent int, score float64) int {
	updated := int(math.Round(float64(rating) + kFactor*(score-Expectation(rating, opponent))))
	if updated < ratingFloor {
		return ratingFloor
	}
	return updated
}
