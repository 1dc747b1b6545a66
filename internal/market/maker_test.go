package market

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/agentarena/internal/domain"
)

type fakeMarketStore struct {
	markets map[string]*domain.Market
	order   []string

	settleCalls map[string]string // market ID -> winning option ID
	cancelled   []string
	settleBets  []domain.Bet // returned from Settle and CancelRefund
}

func newFakeMarketStore() *fakeMarketStore {
	return &fakeMarketStore{
		markets:     map[string]*domain.Market{},
		settleCalls: map[string]string{},
	}
}

func (f *fakeMarketStore) CreateWithOptions(_ context.Context, m domain.Market) error {
	cp := m
	f.markets[m.ID] = &cp
	f.order = append(f.order, m.ID)
	return nil
}

func (f *fakeMarketStore) GetByID(_ context.Context, id string) (domain.Market, error) {
	m, ok := f.markets[id]
	if !ok {
		return domain.Market{}, domain.ErrNotFound
	}
	return *m, nil
}

func (f *fakeMarketStore) ListByMatch(_ context.Context, matchID string) ([]domain.Market, error) {
	var out []domain.Market
	for _, id := range f.order {
		if f.markets[id].MatchID == matchID {
			out = append(out, *f.markets[id])
		}
	}
	return out, nil
}

func (f *fakeMarketStore) UpdateOdds(_ context.Context, marketID string, options []domain.MarketOption) error {
	f.markets[marketID].Options = options
	return nil
}

func (f *fakeMarketStore) Lock(_ context.Context, marketID string) error {
	f.markets[marketID].Status = domain.MarketStatusLocked
	return nil
}

func marketClosed(s domain.MarketStatus) bool {
	return s == domain.MarketStatusSettled || s == domain.MarketStatusCancelled
}

func (f *fakeMarketStore) Settle(_ context.Context, marketID, winningOptionID string) ([]domain.Bet, error) {
	if marketClosed(f.markets[marketID].Status) {
		return nil, nil
	}
	f.markets[marketID].Status = domain.MarketStatusSettled
	f.settleCalls[marketID] = winningOptionID
	return f.settleBets, nil
}

func (f *fakeMarketStore) CancelRefund(_ context.Context, marketID string) ([]domain.Bet, error) {
	if marketClosed(f.markets[marketID].Status) {
		return nil, nil
	}
	f.markets[marketID].Status = domain.MarketStatusCancelled
	f.cancelled = append(f.cancelled, marketID)
	return f.settleBets, nil
}

type fakeNotes struct {
	upserted []domain.Notification
}

func (f *fakeNotes) Upsert(_ context.Context, n domain.Notification) error {
	f.upserted = append(f.upserted, n)
	return nil
}

func (f *fakeNotes) ListByUser(_ context.Context, _ string, _ domain.ListOpts) ([]domain.Notification, error) {
	return nil, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func probSum(options []domain.MarketOption) float64 {
	var s float64
	for _, o := range options {
		s += o.Probability
	}
	return s
}

func optionByRef(t *testing.T, m domain.Market, ref string) domain.MarketOption {
	t.Helper()
	for _, o := range m.Options {
		if o.Ref == ref {
			return o
		}
	}
	t.Fatalf("market %s has no option with ref %q", m.ID, ref)
	return domain.MarketOption{}
}

func testAgents() (domain.Agent, domain.Agent) {
	a1 := domain.Agent{ID: "a1", Name: "Hammer", Strategy: domain.StrategyBalanced, Rating: 1200}
	a2 := domain.Agent{ID: "a2", Name: "Anchor", Strategy: domain.StrategyBalanced, Rating: 1200}
	return a1, a2
}

func TestCreateForMatchNegotiation(t *testing.T) {
	store := newFakeMarketStore()
	mk := NewMaker(store, &fakeNotes{}, testLogger())
	a1, a2 := testAgents()
	match := domain.Match{ID: "m1", Arena: domain.ArenaNegotiation, MaxRounds: 10}

	created, err := mk.CreateForMatch(context.Background(), match, a1, a2)
	require.NoError(t, err)
	require.Len(t, created, 3)

	byType := map[domain.MarketType]domain.Market{}
	for _, m := range created {
		byType[m.Type] = m
		assert.InDelta(t, 1.0, probSum(m.Options), 1e-9, "type %s", m.Type)
		assert.Equal(t, domain.MarketStatusOpen, m.Status)
		for _, o := range m.Options {
			assert.Equal(t, m.ID, o.MarketID)
			assert.GreaterOrEqual(t, o.Odds, 1.01)
			assert.LessOrEqual(t, o.Odds, 20.0)
		}
	}

	// Evenly rated agents open at even winner odds.
	winner := byType[domain.MarketWinner]
	assert.InDelta(t, 0.5, optionByRef(t, winner, "a1").Probability, 1e-9)
	assert.InDelta(t, 0.5, optionByRef(t, winner, "a2").Probability, 1e-9)

	// Two balanced profiles leave the deal baseline untouched.
	agreement := byType[domain.MarketAgreement]
	assert.InDelta(t, 0.65, optionByRef(t, agreement, refDeal).Probability, 1e-9)
	assert.InDelta(t, 0.35, optionByRef(t, agreement, refNoDeal).Probability, 1e-9)

	rounds := byType[domain.MarketRounds]
	require.Len(t, rounds.Options, 3)
	assert.Equal(t, "1-3", rounds.Options[0].Ref)
	assert.Equal(t, "4-6", rounds.Options[1].Ref)
	assert.Equal(t, "7-10", rounds.Options[2].Ref)
}

func TestCreateForMatchAuctionUsesMarginFraming(t *testing.T) {
	store := newFakeMarketStore()
	mk := NewMaker(store, &fakeNotes{}, testLogger())
	a1, a2 := testAgents()
	a1.Strategy = domain.StrategyAggressive
	a2.Strategy = domain.StrategyChaotic
	match := domain.Match{ID: "m1", Arena: domain.ArenaAuction, MaxRounds: 10}

	created, err := mk.CreateForMatch(context.Background(), match, a1, a2)
	require.NoError(t, err)

	var agreement domain.Market
	for _, m := range created {
		if m.Type == domain.MarketAgreement {
			agreement = m
		}
	}
	require.NotEmpty(t, agreement.ID)

	// Two deal-averse profiles raise the decisive baseline: 0.40 + 0.10 + 0.12.
	assert.InDelta(t, 0.62, optionByRef(t, agreement, refDecisive).Probability, 1e-9)
	assert.InDelta(t, 0.38, optionByRef(t, agreement, refNarrow).Probability, 1e-9)
}

func createTestMarkets(t *testing.T, store *fakeMarketStore, arena domain.Arena) []domain.Market {
	t.Helper()
	mk := NewMaker(store, &fakeNotes{}, testLogger())
	a1, a2 := testAgents()
	match := domain.Match{ID: "m1", Arena: arena, MaxRounds: 10}
	created, err := mk.CreateForMatch(context.Background(), match, a1, a2)
	require.NoError(t, err)
	return created
}

func TestRepriceWinnerFollowsFirmerSide(t *testing.T) {
	store := newFakeMarketStore()
	createTestMarkets(t, store, domain.ArenaNegotiation)
	mk := NewMaker(store, &fakeNotes{}, testLogger())

	updated, err := mk.Reprice(context.Background(), "m1", Observation{
		Round: 1, MaxRounds: 10,
		Agent1ID: "a1", Agent2ID: "a2",
		Asks1: []float64{80},
		Asks2: []float64{60},
	})
	require.NoError(t, err)

	for _, m := range updated {
		assert.InDelta(t, 1.0, probSum(m.Options), 1e-9, "type %s", m.Type)
		if m.Type == domain.MarketWinner {
			// A 20-point ask gap shifts 3 points of win probability.
			assert.InDelta(t, 0.53, optionByRef(t, m, "a1").Probability, 1e-9)
			assert.InDelta(t, 0.47, optionByRef(t, m, "a2").Probability, 1e-9)
		}
	}
}

func TestRepriceRoundsCollapsesDeadBuckets(t *testing.T) {
	store := newFakeMarketStore()
	createTestMarkets(t, store, domain.ArenaNegotiation)
	mk := NewMaker(store, &fakeNotes{}, testLogger())

	updated, err := mk.Reprice(context.Background(), "m1", Observation{
		Round: 5, MaxRounds: 10,
		Agent1ID: "a1", Agent2ID: "a2",
		Asks1: []float64{70, 68, 66, 64, 62},
		Asks2: []float64{60, 61, 62, 63, 64},
	})
	require.NoError(t, err)

	for _, m := range updated {
		if m.Type != domain.MarketRounds {
			continue
		}
		// The 1-3 bucket is dead by round 5; its mass flows forward.
		assert.Equal(t, 0.0, optionByRef(t, m, "1-3").Probability)
		assert.InDelta(t, 1.0, probSum(m.Options), 1e-9)
		assert.Greater(t, optionByRef(t, m, "4-6").Probability, 0.35)
		assert.Greater(t, optionByRef(t, m, "7-10").Probability, 0.40)
	}
}

func TestRepriceSkipsClosedMarkets(t *testing.T) {
	store := newFakeMarketStore()
	created := createTestMarkets(t, store, domain.ArenaNegotiation)
	for _, m := range created {
		store.markets[m.ID].Status = domain.MarketStatusLocked
	}
	mk := NewMaker(store, &fakeNotes{}, testLogger())

	updated, err := mk.Reprice(context.Background(), "m1", Observation{
		Round: 2, MaxRounds: 10,
		Agent1ID: "a1", Agent2ID: "a2",
		Asks1: []float64{90, 90}, Asks2: []float64{10, 10},
	})
	require.NoError(t, err)

	for _, m := range updated {
		if m.Type == domain.MarketWinner {
			assert.InDelta(t, 0.5, optionByRef(t, m, "a1").Probability, 1e-9)
		}
	}
}

func TestSettleAllResolvesEveryMarket(t *testing.T) {
	store := newFakeMarketStore()
	created := createTestMarkets(t, store, domain.ArenaNegotiation)
	mk := NewMaker(store, &fakeNotes{}, testLogger())

	winner := "a1"
	err := mk.SettleAll(context.Background(), domain.MatchResult{
		MatchID:     "m1",
		Arena:       domain.ArenaNegotiation,
		Agent1ID:    "a1",
		Agent2ID:    "a2",
		WinnerID:    &winner,
		Split1:      58,
		Split2:      42,
		TotalRounds: 5,
		Agreed:      true,
	})
	require.NoError(t, err)
	require.Len(t, store.settleCalls, 3)
	assert.Empty(t, store.cancelled)

	for _, m := range created {
		optID, ok := store.settleCalls[m.ID]
		require.True(t, ok, "market %s not settled", m.Type)
		switch m.Type {
		case domain.MarketWinner:
			assert.Equal(t, optionByRef(t, m, "a1").ID, optID)
		case domain.MarketAgreement:
			assert.Equal(t, optionByRef(t, m, refDeal).ID, optID)
		case domain.MarketRounds:
			assert.Equal(t, optionByRef(t, m, "4-6").ID, optID)
		}
	}
}

func TestSettleAllIsIdempotent(t *testing.T) {
	store := newFakeMarketStore()
	createTestMarkets(t, store, domain.ArenaNegotiation)
	store.settleBets = []domain.Bet{
		{ID: "b1", UserID: "u1", Stake: 10, Payout: 18, Status: domain.BetStatusWon},
	}
	notes := &fakeNotes{}
	mk := NewMaker(store, notes, testLogger())

	winner := "a1"
	res := domain.MatchResult{
		MatchID:     "m1",
		Arena:       domain.ArenaNegotiation,
		Agent1ID:    "a1",
		Agent2ID:    "a2",
		WinnerID:    &winner,
		Split1:      58,
		Split2:      42,
		TotalRounds: 5,
		Agreed:      true,
	}
	require.NoError(t, mk.SettleAll(context.Background(), res))
	firstCalls := len(store.settleCalls)
	firstNotes := len(notes.upserted)

	// Replaying settlement moves no money and sends nothing new.
	require.NoError(t, mk.SettleAll(context.Background(), res))
	assert.Equal(t, firstCalls, len(store.settleCalls))
	assert.Equal(t, firstNotes, len(notes.upserted))
}

func TestSettleAllRefundsWinnerMarketOnDraw(t *testing.T) {
	store := newFakeMarketStore()
	created := createTestMarkets(t, store, domain.ArenaNegotiation)
	mk := NewMaker(store, &fakeNotes{}, testLogger())

	err := mk.SettleAll(context.Background(), domain.MatchResult{
		MatchID:     "m1",
		Arena:       domain.ArenaNegotiation,
		Agent1ID:    "a1",
		Agent2ID:    "a2",
		Split1:      50,
		Split2:      50,
		TotalRounds: 8,
		Agreed:      true,
	})
	require.NoError(t, err)

	var winnerID string
	for _, m := range created {
		if m.Type == domain.MarketWinner {
			winnerID = m.ID
		}
	}
	assert.Equal(t, []string{winnerID}, store.cancelled)
	assert.Len(t, store.settleCalls, 2)
}

func TestSettleAllMarginOutcome(t *testing.T) {
	cases := []struct {
		name   string
		split1 float64
		split2 float64
		want   string
	}{
		{"decisive", 70, 30, refDecisive},
		{"narrow", 52, 48, refNarrow},
		{"boundary", 55, 45, refDecisive},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := newFakeMarketStore()
			created := createTestMarkets(t, store, domain.ArenaAuction)
			mk := NewMaker(store, &fakeNotes{}, testLogger())

			winner := "a1"
			err := mk.SettleAll(context.Background(), domain.MatchResult{
				MatchID:     "m1",
				Arena:       domain.ArenaAuction,
				Agent1ID:    "a1",
				Agent2ID:    "a2",
				WinnerID:    &winner,
				Split1:      tc.split1,
				Split2:      tc.split2,
				TotalRounds: 10,
				Agreed:      true,
			})
			require.NoError(t, err)

			for _, m := range created {
				if m.Type != domain.MarketAgreement {
					continue
				}
				assert.Equal(t, optionByRef(t, m, tc.want).ID, store.settleCalls[m.ID])
			}
		})
	}
}

func TestSettleAllNotifiesBettors(t *testing.T) {
	store := newFakeMarketStore()
	createTestMarkets(t, store, domain.ArenaNegotiation)
	store.settleBets = []domain.Bet{
		{ID: "b1", UserID: "u1", Stake: 10, Payout: 18, Status: domain.BetStatusWon},
		{ID: "b2", UserID: "u2", Stake: 5, Status: domain.BetStatusLost},
	}
	notes := &fakeNotes{}
	mk := NewMaker(store, notes, testLogger())

	winner := "a1"
	err := mk.SettleAll(context.Background(), domain.MatchResult{
		MatchID:     "m1",
		Arena:       domain.ArenaNegotiation,
		Agent1ID:    "a1",
		Agent2ID:    "a2",
		WinnerID:    &winner,
		Split1:      60,
		Split2:      40,
		TotalRounds: 4,
		Agreed:      true,
	})
	require.NoError(t, err)

	// Two bets on each of the three settled markets.
	require.Len(t, notes.upserted, 6)
	assert.Equal(t, domain.NotifyBetSettled, notes.upserted[0].Kind)
	assert.Equal(t, "b1", notes.upserted[0].RefID)
	assert.Contains(t, notes.upserted[0].Body, "18.00")
	assert.Equal(t, "Bet lost", notes.upserted[1].Title)
}
