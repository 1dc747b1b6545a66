package settle

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/agentarena/internal/domain"
)

type fakeAgents struct {
	byID map[string]domain.Agent
}

func (f *fakeAgents) Create(_ context.Context, a domain.Agent) error {
	f.byID[a.ID] = a
	return nil
}

func (f *fakeAgents) GetByID(_ context.Context, id string) (domain.Agent, error) {
	a, ok := f.byID[id]
	if !ok {
		return domain.Agent{}, domain.ErrNotFound
	}
	return a, nil
}

func (f *fakeAgents) ListByOwner(_ context.Context, _ string) ([]domain.Agent, error) {
	return nil, nil
}

func (f *fakeAgents) SetActive(_ context.Context, _ string, _ bool) error { return nil }

type fakeStats struct {
	applied []domain.ApplyResultParams
}

func (f *fakeStats) ApplyResult(_ context.Context, p domain.ApplyResultParams) error {
	f.applied = append(f.applied, p)
	return nil
}

func (f *fakeStats) GetArenaStats(_ context.Context, _ string, _ domain.Arena) (domain.ArenaStats, error) {
	return domain.ArenaStats{}, nil
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

func settleFixture() (*Service, *fakeStats, *fakeNotes) {
	agents := &fakeAgents{byID: map[string]domain.Agent{
		"a1": {ID: "a1", OwnerID: "u1", Name: "Hammer", Rating: 1200},
		"a2": {ID: "a2", OwnerID: "u2", Name: "Anchor", Rating: 1200},
	}}
	stats := &fakeStats{}
	notes := &fakeNotes{}
	return NewService(agents, stats, notes, testLogger()), stats, notes
}

func testMatch() domain.Match {
	return domain.Match{
		ID:          "m1",
		Arena:       domain.ArenaNegotiation,
		PrizePool:   100,
		PlatformFee: 5,
	}
}

func TestApplyAgreedResult(t *testing.T) {
	svc, stats, notes := settleFixture()
	winner := "a1"
	res := domain.MatchResult{
		MatchID:     "m1",
		Arena:       domain.ArenaNegotiation,
		Agent1ID:    "a1",
		Agent2ID:    "a2",
		WinnerID:    &winner,
		Split1:      60,
		Split2:      40,
		TotalRounds: 7,
		Agreed:      true,
	}

	require.NoError(t, svc.Apply(context.Background(), testMatch(), res))
	require.Len(t, stats.applied, 1)

	p := stats.applied[0]
	assert.Equal(t, "m1", p.MatchID)
	assert.Equal(t, 7, p.Rounds)

	// Earnings come out of the pool net of the platform fee.
	assert.InDelta(t, 95*0.60, p.Outcomes[0].Earnings, 1e-9)
	assert.InDelta(t, 95*0.40, p.Outcomes[1].Earnings, 1e-9)
	assert.Equal(t, 1.0, p.Outcomes[0].Score)
	assert.Equal(t, 0.0, p.Outcomes[1].Score)
	assert.Equal(t, 1216, p.Outcomes[0].NewRating)
	assert.Equal(t, 1184, p.Outcomes[1].NewRating)

	require.Len(t, notes.upserted, 2)
	assert.Equal(t, "m1:a1", notes.upserted[0].RefID)
	assert.Equal(t, "m1:a2", notes.upserted[1].RefID)
	assert.Equal(t, "u1", notes.upserted[0].UserID)
	assert.Contains(t, notes.upserted[0].Title, "won")
	assert.Contains(t, notes.upserted[1].Title, "lost")
}

func TestApplyNoAgreementIsDoubleLoss(t *testing.T) {
	svc, stats, notes := settleFixture()
	res := domain.MatchResult{
		MatchID:     "m1",
		Arena:       domain.ArenaNegotiation,
		Agent1ID:    "a1",
		Agent2ID:    "a2",
		TotalRounds: 10,
		Agreed:      false,
	}

	require.NoError(t, svc.Apply(context.Background(), testMatch(), res))
	require.Len(t, stats.applied, 1)

	p := stats.applied[0]
	for i := 0; i < 2; i++ {
		assert.Equal(t, 0.0, p.Outcomes[i].Score)
		assert.Equal(t, 0.0, p.Outcomes[i].Earnings)
		assert.Equal(t, 1184, p.Outcomes[i].NewRating)
	}
	for _, n := range notes.upserted {
		assert.Contains(t, n.Title, "lost")
	}
}

func TestApplyDraw(t *testing.T) {
	svc, stats, notes := settleFixture()
	res := domain.MatchResult{
		MatchID:     "m1",
		Arena:       domain.ArenaAuction,
		Agent1ID:    "a1",
		Agent2ID:    "a2",
		Split1:      50,
		Split2:      50,
		TotalRounds: 10,
		Agreed:      true,
	}

	require.NoError(t, svc.Apply(context.Background(), testMatch(), res))
	require.Len(t, stats.applied, 1)

	p := stats.applied[0]
	for i := 0; i < 2; i++ {
		assert.Equal(t, 0.5, p.Outcomes[i].Score)
		assert.Equal(t, 1200, p.Outcomes[i].NewRating)
		assert.InDelta(t, 47.5, p.Outcomes[i].Earnings, 1e-9)
	}
	for _, n := range notes.upserted {
		assert.Contains(t, n.Title, "drew")
	}
}

func TestScores(t *testing.T) {
	w := "a2"
	s1, s2 := Scores(domain.MatchResult{Agent1ID: "a1", Agent2ID: "a2", WinnerID: &w, Agreed: true})
	assert.Equal(t, 0.0, s1)
	assert.Equal(t, 1.0, s2)

	s1, s2 = Scores(domain.MatchResult{Agreed: false})
	assert.Equal(t, 0.0, s1)
	assert.Equal(t, 0.0, s2)
}
