package strategy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/agentarena/internal/domain"
)

// stubRand replays scripted draws. Exhausted queues fall back to 0.5 for
// Float64 (which makes noise() return exactly zero) and 0 for Intn.
type stubRand struct {
	floats []float64
	ints   []int
}

func (r *stubRand) Float64() float64 {
	if len(r.floats) == 0 {
		return 0.5
	}
	v := r.floats[0]
	r.floats = r.floats[1:]
	return v
}

func (r *stubRand) Intn(n int) int {
	if len(r.ints) == 0 {
		return 0
	}
	v := r.ints[0]
	r.ints = r.ints[1:]
	if v >= n {
		v = n - 1
	}
	return v
}

func midCtx() Context {
	return Context{Round: 1, MaxRounds: 10, MyRating: 1200, OppRating: 1200}
}

func TestProfileForArchetypes(t *testing.T) {
	agg := ProfileFor(domain.StrategyAggressive, nil)
	assert.Equal(t, 74.0, agg.OpeningBase)
	assert.Equal(t, 0.45, agg.BluffProbability)

	def := ProfileFor(domain.StrategyDefensive, nil)
	assert.Equal(t, 42.0, def.FloorBase)
	assert.Equal(t, 0.70, def.TimePressure)
}

func TestProfileForUnknownFallsBackToBalanced(t *testing.T) {
	p := ProfileFor(domain.StrategyType("galaxy-brain"), nil)
	assert.Equal(t, domain.StrategyBalanced, p.Name)
	assert.Equal(t, 66.0, p.OpeningBase)
}

func TestProfileForCustomClamps(t *testing.T) {
	p := ProfileFor(domain.StrategyCustom, &domain.CustomProfile{
		OpeningBase:         200,
		FloorBase:           -10,
		ConcessionMin:       9,
		ConcessionMax:       2,
		BluffProbability:    1.7,
		EmotionalVolatility: -0.5,
		TimePressure:        0.3,
	})
	assert.Equal(t, domain.StrategyCustom, p.Name)
	assert.Equal(t, 90.0, p.OpeningBase)
	assert.Equal(t, 25.0, p.FloorBase)
	assert.Equal(t, 1.0, p.BluffProbability)
	assert.Equal(t, 0.0, p.EmotionalVolatility)
	// A max below the min collapses onto the min.
	assert.Equal(t, 9.0, p.ConcessionMin)
	assert.Equal(t, 9.0, p.ConcessionMax)
}

func TestProfileForCustomWithoutParams(t *testing.T) {
	p := ProfileFor(domain.StrategyCustom, nil)
	assert.Equal(t, domain.StrategyBalanced, p.Name)
}

func TestOpeningOfferBounds(t *testing.T) {
	rng := NewRand(1)
	for _, st := range []domain.StrategyType{
		domain.StrategyAggressive, domain.StrategyDefensive,
		domain.StrategyBalanced, domain.StrategyChaotic,
	} {
		s := New(ProfileFor(st, nil), rng)
		for i := 0; i < 200; i++ {
			ctx := midCtx()
			ctx.MyRating = 800 + i*5
			offer := s.OpeningOffer(ctx)
			assert.GreaterOrEqual(t, offer, 45.0, "strategy %s", st)
			assert.LessOrEqual(t, offer, 90.0, "strategy %s", st)
		}
	}
}

func TestOpeningOfferRatingAdvantage(t *testing.T) {
	s := New(ProfileFor(domain.StrategyAggressive, nil), &stubRand{})
	ctx := midCtx()
	ctx.MyRating = 1400
	ctx.OppRating = 1200
	// Base 74 plus a 2-point advantage term; noise is zero with the stub.
	assert.InDelta(t, 76.0, s.OpeningOffer(ctx), 1e-9)

	// The advantage term saturates at 5 points.
	ctx.MyRating = 3000
	assert.InDelta(t, 79.0, s.OpeningOffer(ctx), 1e-9)
}

func TestFloorDropsUnderDeadlinePressure(t *testing.T) {
	s := New(ProfileFor(domain.StrategyDefensive, nil), &stubRand{})

	early := midCtx()
	assert.InDelta(t, 42.0, s.Floor(early), 1e-9)

	closing := early
	closing.Round = 7 // three rounds left
	assert.InDelta(t, 42.0-4*0.70, s.Floor(closing), 1e-9)

	last := early
	last.Round = 9 // final round
	assert.InDelta(t, 42.0-8*0.70, s.Floor(last), 1e-9)
}

func TestAcceptThresholdSteps(t *testing.T) {
	s := New(ProfileFor(domain.StrategyBalanced, nil), &stubRand{})
	ctx := midCtx() // floor is 46 with nine rounds left

	cases := []struct {
		offered float64
		want    float64
	}{
		{40, 0},
		{47, 0.35},
		{51, 0.60},
		{55, 0.80},
		{66, 0.95},
	}
	for _, tc := range cases {
		assert.InDelta(t, tc.want, s.AcceptThreshold(ctx, tc.offered), 1e-9,
			"offered %.0f", tc.offered)
	}
}

func TestDecideAcceptsGenerousOffer(t *testing.T) {
	s := New(ProfileFor(domain.StrategyBalanced, nil), &stubRand{floats: []float64{0.0}})
	ctx := midCtx()
	offered := 80.0
	ctx.LastOffer = &offered

	act := s.Decide(ctx)
	assert.Equal(t, ActionAccept, act.Kind)
	assert.NotEmpty(t, act.Flavor)
	assert.GreaterOrEqual(t, act.ThinkDelay, 400*time.Millisecond)
}

func TestDecideRejectsInsultingOffer(t *testing.T) {
	// First draw decides the bluff: 0.0 < BluffProbability 0.20.
	s := New(ProfileFor(domain.StrategyBalanced, nil), &stubRand{floats: []float64{0.0}})
	ctx := midCtx()
	offered := 26.0 // 20 below the floor, well outside the counter band
	ctx.LastOffer = &offered

	act := s.Decide(ctx)
	assert.Equal(t, ActionReject, act.Kind)
	assert.True(t, act.Bluff)
	assert.NotEmpty(t, act.Flavor)
}

func TestDecideRejectsHonestly(t *testing.T) {
	s := New(ProfileFor(domain.StrategyBalanced, nil), &stubRand{floats: []float64{0.99}})
	ctx := midCtx()
	offered := 26.0
	ctx.LastOffer = &offered

	act := s.Decide(ctx)
	assert.Equal(t, ActionReject, act.Kind)
	assert.False(t, act.Bluff)
}

func TestDecideCountersInsideBand(t *testing.T) {
	// An offer slightly below the floor draws a counter, not a rejection.
	s := New(ProfileFor(domain.StrategyBalanced, nil), &stubRand{floats: []float64{0.5, 0.5}})
	ctx := midCtx()
	ctx.MyOffers = []float64{70}
	offered := 44.0 // floor 46, within the 8-point counter band
	ctx.LastOffer = &offered

	act := s.Decide(ctx)
	require.Equal(t, ActionOffer, act.Kind)
	// Concession draw of 0.5 over the [2,4] range gives exactly 3; noise is 0.
	assert.InDelta(t, 67.0, act.Offer, 1e-9)
}

func TestNextAskNeverDropsBelowFloor(t *testing.T) {
	rng := NewRand(42)
	s := New(ProfileFor(domain.StrategyDefensive, nil), rng)
	ctx := midCtx()
	ctx.MyOffers = []float64{43}
	for i := 0; i < 100; i++ {
		ctx.Round = 1 + i%9
		act := s.Decide(ctx)
		require.Equal(t, ActionOffer, act.Kind)
		assert.GreaterOrEqual(t, act.Offer, s.Floor(ctx))
		assert.LessOrEqual(t, act.Offer, 95.0)
	}
}

func TestNextAskPullsTowardMarketPrice(t *testing.T) {
	p := Profile{
		Name:          domain.StrategyCustom,
		OpeningBase:   70,
		ConcessionMin: 2,
		ConcessionMax: 2,
		FloorBase:     40,
	}
	s := New(p, &stubRand{})
	ctx := midCtx()
	ctx.MyOffers = []float64{80}
	price := 30.0
	ctx.MarketPrice = &price

	act := s.Decide(ctx)
	require.Equal(t, ActionOffer, act.Kind)
	// Plain concession lands at 78; the price pull drags it 15% of the gap.
	assert.InDelta(t, 78.0+(30.0-78.0)*0.15, act.Offer, 1e-9)
}

func TestBidBounds(t *testing.T) {
	rng := NewRand(3)
	for _, st := range []domain.StrategyType{
		domain.StrategyAggressive, domain.StrategyDefensive,
		domain.StrategyBalanced, domain.StrategyChaotic,
	} {
		s := New(ProfileFor(st, nil), rng)
		for round := 1; round <= 10; round++ {
			ctx := Context{Round: round, MaxRounds: 10, MyRating: 1500, OppRating: 900}
			bid := s.Bid(ctx)
			assert.GreaterOrEqual(t, bid, 5.0, "strategy %s round %d", st, round)
			assert.LessOrEqual(t, bid, 100.0, "strategy %s round %d", st, round)
		}
	}
}

func TestBidRampsOverRounds(t *testing.T) {
	s := New(ProfileFor(domain.StrategyAggressive, nil), &stubRand{})
	early := s.Bid(Context{Round: 1, MaxRounds: 10, MyRating: 1200, OppRating: 1200})
	late := s.Bid(Context{Round: 9, MaxRounds: 10, MyRating: 1200, OppRating: 1200})
	assert.InDelta(t, 58.0, early, 1e-9)
	assert.InDelta(t, 82.0, late, 1e-9)
}
