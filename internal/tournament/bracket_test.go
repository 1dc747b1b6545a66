package tournament

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/agentarena/internal/domain"
)

type memTournaments struct {
	byID    map[string]*domain.Tournament
	entries map[string][]domain.TournamentEntry
}

func newMemTournaments() *memTournaments {
	return &memTournaments{
		byID:    map[string]*domain.Tournament{},
		entries: map[string][]domain.TournamentEntry{},
	}
}

func (s *memTournaments) Create(_ context.Context, t domain.Tournament) error {
	cp := t
	s.byID[t.ID] = &cp
	return nil
}

func (s *memTournaments) GetByID(_ context.Context, id string) (domain.Tournament, error) {
	t, ok := s.byID[id]
	if !ok {
		return domain.Tournament{}, domain.ErrNotFound
	}
	return *t, nil
}

func (s *memTournaments) Join(_ context.Context, e domain.TournamentEntry) error {
	s.entries[e.TournamentID] = append(s.entries[e.TournamentID], e)
	return nil
}

func (s *memTournaments) ListEntries(_ context.Context, tournamentID string) ([]domain.TournamentEntry, error) {
	return s.entries[tournamentID], nil
}

func (s *memTournaments) SetSeeds(_ context.Context, tournamentID string, seeds map[string]int) error {
	es := s.entries[tournamentID]
	for i := range es {
		es[i].Seed = seeds[es[i].AgentID]
	}
	return nil
}

func (s *memTournaments) SetStatus(_ context.Context, id string, status domain.TournamentStatus, round int) error {
	s.byID[id].Status = status
	s.byID[id].CurrentRound = round
	return nil
}

func (s *memTournaments) MarkEliminated(_ context.Context, tournamentID, agentID string, round int) error {
	es := s.entries[tournamentID]
	for i := range es {
		if es[i].AgentID == agentID {
			r := round
			es[i].EliminatedRound = &r
		}
	}
	return nil
}

func (s *memTournaments) Complete(_ context.Context, id string, winnerID string) error {
	s.byID[id].Status = domain.TournamentCompleted
	s.byID[id].WinnerID = &winnerID
	return nil
}

// memMatches holds bracket matches created through the fake creator so they
// can be flipped to terminal states between sync calls.
type memMatches struct {
	byID map[string]*domain.Match
	seq  int
}

func newMemMatches() *memMatches {
	return &memMatches{byID: map[string]*domain.Match{}}
}

func (s *memMatches) CreateFunded(_ context.Context, _ domain.CreateMatchParams) (domain.Match, error) {
	return domain.Match{}, nil
}

func (s *memMatches) GetByID(_ context.Context, id string) (domain.Match, error) {
	m, ok := s.byID[id]
	if !ok {
		return domain.Match{}, domain.ErrNotFound
	}
	return *m, nil
}

func (s *memMatches) Start(_ context.Context, _ string, _ time.Time) error { return nil }
func (s *memMatches) Complete(_ context.Context, _ domain.MatchResult, _ time.Time) error {
	return nil
}
func (s *memMatches) Cancel(_ context.Context, _ string, _ time.Time) error { return nil }
func (s *memMatches) SetTranscriptKey(_ context.Context, _, _ string) error { return nil }
func (s *memMatches) HasActive(_ context.Context, _ string) (bool, error)   { return false, nil }
func (s *memMatches) ListRecent(_ context.Context, _ domain.ListOpts) ([]domain.Match, error) {
	return nil, nil
}

func (s *memMatches) ListByTournamentRound(_ context.Context, tournamentID string, round int) ([]domain.Match, error) {
	var out []domain.Match
	for i := 1; i <= s.seq; i++ {
		m := s.byID[fmt.Sprintf("tm-%d", i)]
		if m.TournamentID != nil && *m.TournamentID == tournamentID &&
			m.TournamentRound != nil && *m.TournamentRound == round {
			out = append(out, *m)
		}
	}
	return out, nil
}

// finish flips a match terminal with the given winner (nil for a draw).
func (s *memMatches) finish(id string, winnerID *string) {
	m := s.byID[id]
	m.Status = domain.MatchStatusCompleted
	m.WinnerID = winnerID
}

type fakeAgents struct {
	byID map[string]domain.Agent
}

func (f *fakeAgents) Create(_ context.Context, a domain.Agent) error { return nil }

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

type fakeCreator struct {
	matches *memMatches
}

func (f *fakeCreator) CreateTournamentMatch(_ context.Context, agent1ID, agent2ID string, arena domain.Arena, prizePool float64, tournamentID string, round int) (domain.Match, error) {
	f.matches.seq++
	a2 := agent2ID
	tid := tournamentID
	r := round
	m := domain.Match{
		ID:              fmt.Sprintf("tm-%d", f.matches.seq),
		Arena:           arena,
		Status:          domain.MatchStatusPending,
		PrizePool:       prizePool,
		Agent1ID:        agent1ID,
		Agent2ID:        &a2,
		TournamentID:    &tid,
		TournamentRound: &r,
	}
	f.matches.byID[m.ID] = &m
	return m, nil
}

type fakeLauncher struct {
	launched []string
}

func (f *fakeLauncher) Launch(matchID string) {
	f.launched = append(f.launched, matchID)
}

// heldLock always reports the lock as taken.
type heldLock struct{}

func (heldLock) Acquire(_ context.Context, _ string, _ int) (func(), error) {
	return nil, domain.ErrLockHeld
}

// openLock always grants the lock.
type openLock struct {
	acquired int
}

func (l *openLock) Acquire(_ context.Context, _ string, _ int) (func(), error) {
	l.acquired++
	return func() {}, nil
}

type bracketFixture struct {
	orch    *Orchestrator
	store   *memTournaments
	matches *memMatches
	launch  *fakeLauncher
}

func newBracketFixture(locks domain.LockManager) *bracketFixture {
	store := newMemTournaments()
	matches := newMemMatches()
	agents := &fakeAgents{byID: map[string]domain.Agent{
		"a1": {ID: "a1", Rating: 1400, Active: true},
		"a2": {ID: "a2", Rating: 1300, Active: true},
		"a3": {ID: "a3", Rating: 1200, Active: true},
		"a4": {ID: "a4", Rating: 1100, Active: true},
		"a5": {ID: "a5", Rating: 1050, Active: true},
		"a6": {ID: "a6", Rating: 1000, Active: true},
		"a7": {ID: "a7", Rating: 950, Active: true},
		"a8": {ID: "a8", Rating: 900, Active: true},
		"off": {ID: "off", Rating: 1000, Active: false},
	}}
	launch := &fakeLauncher{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	orch := NewOrchestrator(store, matches, agents, &fakeCreator{matches: matches}, launch, locks, logger)
	return &bracketFixture{orch: orch, store: store, matches: matches, launch: launch}
}

func (f *bracketFixture) openBracket(t *testing.T, size int, agents ...string) domain.Tournament {
	t.Helper()
	ctx := context.Background()
	tour, err := f.orch.Create(ctx, "Friday Cup", domain.ArenaNegotiation, size, 200)
	require.NoError(t, err)
	for _, id := range agents {
		require.NoError(t, f.orch.Join(ctx, tour.ID, id))
	}
	return tour
}

func TestCreateValidatesSize(t *testing.T) {
	f := newBracketFixture(nil)
	ctx := context.Background()

	for _, size := range []int{0, 2, 5, 32} {
		_, err := f.orch.Create(ctx, "bad", domain.ArenaNegotiation, size, 100)
		assert.ErrorIs(t, err, domain.ErrInvalidBracketSize, "size %d", size)
	}

	_, err := f.orch.Create(ctx, "bad", domain.Arena("checkers"), 4, 100)
	assert.ErrorIs(t, err, domain.ErrUnknownArena)

	tour, err := f.orch.Create(ctx, "ok", domain.ArenaBarter, 8, 100)
	require.NoError(t, err)
	assert.Equal(t, domain.TournamentOpen, tour.Status)
	assert.Equal(t, 8, tour.MaxParticipants)
}

func TestJoinRules(t *testing.T) {
	f := newBracketFixture(nil)
	ctx := context.Background()
	tour := f.openBracket(t, 4, "a1", "a2", "a3")

	assert.ErrorIs(t, f.orch.Join(ctx, tour.ID, "a1"), domain.ErrAlreadyExists)
	assert.ErrorIs(t, f.orch.Join(ctx, tour.ID, "off"), domain.ErrAgentInactive)

	require.NoError(t, f.orch.Join(ctx, tour.ID, "a4"))
	assert.ErrorIs(t, f.orch.Join(ctx, tour.ID, "off"), domain.ErrTournamentFull)
}

func TestStartRequiresFullBracket(t *testing.T) {
	f := newBracketFixture(nil)
	tour := f.openBracket(t, 4, "a1", "a2")

	_, err := f.orch.Start(context.Background(), tour.ID)
	assert.ErrorIs(t, err, domain.ErrTournamentNotOpen)
}

func TestStartSeedsAndPairs(t *testing.T) {
	f := newBracketFixture(nil)
	ctx := context.Background()
	tour := f.openBracket(t, 4, "a3", "a1", "a4", "a2")

	matches, err := f.orch.Start(ctx, tour.ID)
	require.NoError(t, err)
	require.Len(t, matches, 2)

	// Top seed meets bottom seed, second meets third.
	assert.Equal(t, "a1", matches[0].Agent1ID)
	assert.Equal(t, "a4", *matches[0].Agent2ID)
	assert.Equal(t, "a2", matches[1].Agent1ID)
	assert.Equal(t, "a3", *matches[1].Agent2ID)
	assert.Len(t, f.launch.launched, 2)

	stored, err := f.store.GetByID(ctx, tour.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TournamentLive, stored.Status)
	assert.Equal(t, 1, stored.CurrentRound)

	entries, err := f.store.ListEntries(ctx, tour.ID)
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotZero(t, e.Seed)
	}

	// Restarting a live bracket is refused.
	_, err = f.orch.Start(ctx, tour.ID)
	assert.ErrorIs(t, err, domain.ErrTournamentNotOpen)
}

func TestSyncWaitsForRunningRound(t *testing.T) {
	f := newBracketFixture(nil)
	ctx := context.Background()
	tour := f.openBracket(t, 4, "a1", "a2", "a3", "a4")

	matches, err := f.orch.Start(ctx, tour.ID)
	require.NoError(t, err)

	res, err := f.orch.Sync(ctx, tour.ID)
	require.NoError(t, err)
	assert.False(t, res.Advanced)
	assert.Contains(t, res.Reason, matches[0].ID)
}

func TestSyncAdvancesToChampion(t *testing.T) {
	f := newBracketFixture(nil)
	ctx := context.Background()
	tour := f.openBracket(t, 4, "a1", "a2", "a3", "a4")

	r1, err := f.orch.Start(ctx, tour.ID)
	require.NoError(t, err)

	// Round one: the favorite wins the first match outright; the second
	// ends in a draw and must fall back to ratings.
	w1 := "a1"
	f.matches.finish(r1[0].ID, &w1)
	f.matches.finish(r1[1].ID, nil)

	res, err := f.orch.Sync(ctx, tour.ID)
	require.NoError(t, err)
	require.True(t, res.Advanced)
	assert.False(t, res.Completed)
	assert.Equal(t, 2, res.NewRound)
	require.Len(t, res.Matches, 1)

	// The drawn match falls to the higher-rated a2.
	final := res.Matches[0]
	assert.Equal(t, "a1", final.Agent1ID)
	assert.Equal(t, "a2", *final.Agent2ID)

	// Final: the underdog takes it.
	w2 := "a2"
	f.matches.finish(final.ID, &w2)

	res, err = f.orch.Sync(ctx, tour.ID)
	require.NoError(t, err)
	require.True(t, res.Advanced)
	require.True(t, res.Completed)
	require.NotNil(t, res.WinnerID)
	assert.Equal(t, "a2", *res.WinnerID)

	stored, err := f.store.GetByID(ctx, tour.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TournamentCompleted, stored.Status)

	// Everyone but the champion carries an elimination round.
	entries, err := f.store.ListEntries(ctx, tour.ID)
	require.NoError(t, err)
	for _, e := range entries {
		if e.AgentID == "a2" {
			assert.Nil(t, e.EliminatedRound)
		} else {
			assert.NotNil(t, e.EliminatedRound, "agent %s", e.AgentID)
		}
	}

	// A completed bracket reports its state instead of advancing again.
	res, err = f.orch.Sync(ctx, tour.ID)
	require.NoError(t, err)
	assert.False(t, res.Advanced)
	assert.Contains(t, res.Reason, "completed")
}

func TestSyncHeldLock(t *testing.T) {
	f := newBracketFixture(heldLock{})
	res, err := f.orch.Sync(context.Background(), "whatever")
	require.NoError(t, err)
	assert.False(t, res.Advanced)
	assert.Equal(t, "sync already in progress", res.Reason)
}

func TestSyncAcquiresAndReleasesLock(t *testing.T) {
	locks := &openLock{}
	f := newBracketFixture(locks)
	ctx := context.Background()
	tour := f.openBracket(t, 4, "a1", "a2", "a3", "a4")
	_, err := f.orch.Start(ctx, tour.ID)
	require.NoError(t, err)

	_, err = f.orch.Sync(ctx, tour.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, locks.acquired)
}

func TestSyncEightEntrantBracket(t *testing.T) {
	f := newBracketFixture(nil)
	ctx := context.Background()
	tour := f.openBracket(t, 8, "a5", "a2", "a8", "a1", "a6", "a3", "a7", "a4")

	r1, err := f.orch.Start(ctx, tour.ID)
	require.NoError(t, err)
	require.Len(t, r1, 4)

	// Quarterfinals by seed: 1v8, 2v7, 3v6, 4v5. The bottom half throws
	// an upset.
	assert.Equal(t, "a1", r1[0].Agent1ID)
	assert.Equal(t, "a8", *r1[0].Agent2ID)
	assert.Equal(t, "a4", r1[3].Agent1ID)
	assert.Equal(t, "a5", *r1[3].Agent2ID)

	for i, winner := range []string{"a1", "a2", "a3", "a5"} {
		w := winner
		f.matches.finish(r1[i].ID, &w)
	}

	res, err := f.orch.Sync(ctx, tour.ID)
	require.NoError(t, err)
	require.True(t, res.Advanced)
	require.Len(t, res.Matches, 2)
	assert.Equal(t, 2, res.NewRound)

	// Semifinals pair the quarterfinal winners in bracket order.
	assert.Equal(t, "a1", res.Matches[0].Agent1ID)
	assert.Equal(t, "a2", *res.Matches[0].Agent2ID)
	assert.Equal(t, "a3", res.Matches[1].Agent1ID)
	assert.Equal(t, "a5", *res.Matches[1].Agent2ID)

	for i, winner := range []string{"a1", "a5"} {
		w := winner
		f.matches.finish(res.Matches[i].ID, &w)
	}

	res, err = f.orch.Sync(ctx, tour.ID)
	require.NoError(t, err)
	require.True(t, res.Advanced)
	require.Len(t, res.Matches, 1)

	w := "a1"
	f.matches.finish(res.Matches[0].ID, &w)

	res, err = f.orch.Sync(ctx, tour.ID)
	require.NoError(t, err)
	require.True(t, res.Completed)
	require.NotNil(t, res.WinnerID)
	assert.Equal(t, "a1", *res.WinnerID)

	// One champion, seven eliminations, each stamped with its round.
	wantRound := map[string]int{
		"a8": 1, "a7": 1, "a6": 1, "a4": 1,
		"a2": 2, "a3": 2,
		"a5": 3,
	}
	entries, err := f.store.ListEntries(ctx, tour.ID)
	require.NoError(t, err)
	require.Len(t, entries, 8)
	eliminated := 0
	for _, e := range entries {
		if e.AgentID == "a1" {
			assert.Nil(t, e.EliminatedRound)
			continue
		}
		eliminated++
		require.NotNil(t, e.EliminatedRound, "agent %s", e.AgentID)
		assert.Equal(t, wantRound[e.AgentID], *e.EliminatedRound, "agent %s", e.AgentID)
	}
	assert.Equal(t, 7, eliminated)
}
