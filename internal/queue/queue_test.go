package queue

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

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

// fakeMatches only serves the busy check; everything else is unused by the
// queue.
type fakeMatches struct {
	busy map[string]bool
}

func (f *fakeMatches) CreateFunded(_ context.Context, _ domain.CreateMatchParams) (domain.Match, error) {
	return domain.Match{}, nil
}
func (f *fakeMatches) GetByID(_ context.Context, _ string) (domain.Match, error) {
	return domain.Match{}, domain.ErrNotFound
}
func (f *fakeMatches) Start(_ context.Context, _ string, _ time.Time) error { return nil }
func (f *fakeMatches) Complete(_ context.Context, _ domain.MatchResult, _ time.Time) error {
	return nil
}
func (f *fakeMatches) Cancel(_ context.Context, _ string, _ time.Time) error { return nil }
func (f *fakeMatches) SetTranscriptKey(_ context.Context, _ string, _ string) error { return nil }
func (f *fakeMatches) HasActive(_ context.Context, agentID string) (bool, error) {
	return f.busy[agentID], nil
}
func (f *fakeMatches) ListByTournamentRound(_ context.Context, _ string, _ int) ([]domain.Match, error) {
	return nil, nil
}
func (f *fakeMatches) ListRecent(_ context.Context, _ domain.ListOpts) ([]domain.Match, error) {
	return nil, nil
}

// fakeCreator scripts per-agent creation failures so candidate and joiner
// faults can be told apart.
type fakeCreator struct {
	failFor map[string]error // keyed by the faulted agent ID
	created []domain.Match
	seq     int
}

func (f *fakeCreator) CreateMatch(_ context.Context, agent1ID, agent2ID string, arena domain.Arena, prizePool float64, maxRounds int) (domain.Match, error) {
	for agentID, err := range f.failFor {
		if agentID == agent1ID || agentID == agent2ID {
			return domain.Match{}, domain.FaultFor(agentID, err)
		}
	}
	f.seq++
	a2 := agent2ID
	m := domain.Match{
		ID:        "match-" + agent1ID + "-" + agent2ID,
		Arena:     arena,
		Status:    domain.MatchStatusPending,
		PrizePool: prizePool,
		MaxRounds: maxRounds,
		Agent1ID:  agent1ID,
		Agent2ID:  &a2,
	}
	f.created = append(f.created, m)
	return m, nil
}

type fakeLauncher struct {
	launched []string
}

func (f *fakeLauncher) Launch(matchID string) {
	f.launched = append(f.launched, matchID)
}

func newQueueFixture() (*Service, *fakeCreator, *fakeLauncher, *fakeMatches) {
	agents := &fakeAgents{byID: map[string]domain.Agent{
		"a1": {ID: "a1", OwnerID: "u1", Rating: 1200, Active: true},
		"a2": {ID: "a2", OwnerID: "u2", Rating: 1300, Active: true},
		"a3": {ID: "a3", OwnerID: "u1", Rating: 1100, Active: true},
		"off": {ID: "off", OwnerID: "u2", Active: false},
	}}
	matches := &fakeMatches{busy: map[string]bool{}}
	creator := &fakeCreator{failFor: map[string]error{}}
	launcher := &fakeLauncher{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(matches, agents, creator, launcher, logger), creator, launcher, matches
}

func TestJoinQueuesFirstAgent(t *testing.T) {
	svc, _, _, _ := newQueueFixture()

	res, err := svc.Join(context.Background(), "a1", domain.ArenaNegotiation, 100, 0)
	require.NoError(t, err)
	assert.Equal(t, domain.JoinQueued, res.Status)
	assert.Equal(t, 1, res.Position)
	assert.Equal(t, waitPerPosition, res.EstimatedWait)
	assert.Equal(t, 1, svc.Depth(domain.ArenaNegotiation, 100))
}

func TestJoinPairsCompatibleAgents(t *testing.T) {
	svc, creator, launcher, _ := newQueueFixture()
	ctx := context.Background()

	_, err := svc.Join(ctx, "a1", domain.ArenaNegotiation, 100, 0)
	require.NoError(t, err)

	res, err := svc.Join(ctx, "a2", domain.ArenaNegotiation, 100, 0)
	require.NoError(t, err)
	assert.Equal(t, domain.JoinMatched, res.Status)
	require.NotNil(t, res.Match)

	// The waiter becomes agent 1.
	require.Len(t, creator.created, 1)
	assert.Equal(t, "a1", creator.created[0].Agent1ID)
	assert.Equal(t, []string{res.Match.ID}, launcher.launched)
	assert.Equal(t, 0, svc.Depth(domain.ArenaNegotiation, 100))
}

func TestJoinPoolsAreIsolatedByStake(t *testing.T) {
	svc, _, _, _ := newQueueFixture()
	ctx := context.Background()

	_, err := svc.Join(ctx, "a1", domain.ArenaNegotiation, 100, 0)
	require.NoError(t, err)

	// A different stake never pairs with the waiting agent.
	res, err := svc.Join(ctx, "a2", domain.ArenaNegotiation, 50, 0)
	require.NoError(t, err)
	assert.Equal(t, domain.JoinQueued, res.Status)
	assert.Equal(t, 1, svc.Depth(domain.ArenaNegotiation, 100))
	assert.Equal(t, 1, svc.Depth(domain.ArenaNegotiation, 50))
}

func TestJoinSecondEntryRules(t *testing.T) {
	svc, _, _, _ := newQueueFixture()
	ctx := context.Background()

	_, err := svc.Join(ctx, "a1", domain.ArenaNegotiation, 100, 0)
	require.NoError(t, err)

	// Same pool again: idempotent, reports the current position.
	res, err := svc.Join(ctx, "a1", domain.ArenaNegotiation, 100, 0)
	require.NoError(t, err)
	assert.Equal(t, domain.JoinQueued, res.Status)
	assert.Equal(t, 1, res.Position)

	// Different arena while queued.
	_, err = svc.Join(ctx, "a1", domain.ArenaAuction, 100, 0)
	assert.ErrorIs(t, err, domain.ErrAlreadyQueued)

	// Same arena, different stake.
	_, err = svc.Join(ctx, "a1", domain.ArenaNegotiation, 200, 0)
	assert.ErrorIs(t, err, domain.ErrStakeMismatch)
}

func TestJoinRejectsInactiveAndBusy(t *testing.T) {
	svc, _, _, matches := newQueueFixture()
	ctx := context.Background()

	_, err := svc.Join(ctx, "off", domain.ArenaNegotiation, 100, 0)
	assert.ErrorIs(t, err, domain.ErrAgentInactive)

	matches.busy["a1"] = true
	_, err = svc.Join(ctx, "a1", domain.ArenaNegotiation, 100, 0)
	assert.ErrorIs(t, err, domain.ErrAgentBusy)
	assert.Equal(t, "a1", domain.FaultAgent(err))
}

func TestJoinSkipsStaleCandidate(t *testing.T) {
	svc, creator, _, _ := newQueueFixture()
	ctx := context.Background()

	_, err := svc.Join(ctx, "a1", domain.ArenaNegotiation, 100, 0)
	require.NoError(t, err)
	_, err = svc.Join(ctx, "a3", domain.ArenaNegotiation, 100, 0)
	require.NoError(t, err)

	// a1 went broke between queueing and pairing: it is dropped, and the
	// joiner pairs with the next waiter instead.
	creator.failFor["a1"] = domain.ErrInsufficientBalance

	res, err := svc.Join(ctx, "a2", domain.ArenaNegotiation, 100, 0)
	require.NoError(t, err)
	assert.Equal(t, domain.JoinMatched, res.Status)
	require.Len(t, creator.created, 1)
	assert.Equal(t, "a3", creator.created[0].Agent1ID)

	// The stale candidate is gone for good.
	assert.Equal(t, 0, svc.Depth(domain.ArenaNegotiation, 100))
	assert.False(t, svc.Leave("a1"))
}

func TestJoinRestoresCandidateOnJoinerFault(t *testing.T) {
	svc, creator, _, _ := newQueueFixture()
	ctx := context.Background()

	_, err := svc.Join(ctx, "a1", domain.ArenaNegotiation, 100, 0)
	require.NoError(t, err)

	// The joiner itself is at fault; the reserved candidate keeps its spot.
	creator.failFor["a2"] = domain.ErrInsufficientBalance

	_, err = svc.Join(ctx, "a2", domain.ArenaNegotiation, 100, 0)
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)
	assert.Equal(t, 1, svc.Depth(domain.ArenaNegotiation, 100))

	// The restored candidate still pairs normally afterwards.
	delete(creator.failFor, "a2")
	res, err := svc.Join(ctx, "a2", domain.ArenaNegotiation, 100, 0)
	require.NoError(t, err)
	assert.Equal(t, domain.JoinMatched, res.Status)
}

func TestJoinUnknownArena(t *testing.T) {
	svc, _, _, _ := newQueueFixture()
	_, err := svc.Join(context.Background(), "a1", domain.Arena("chess"), 100, 0)
	assert.ErrorIs(t, err, domain.ErrUnknownArena)
}

func TestLeave(t *testing.T) {
	svc, _, _, _ := newQueueFixture()
	ctx := context.Background()

	assert.False(t, svc.Leave("a1"))

	_, err := svc.Join(ctx, "a1", domain.ArenaBarter, 100, 0)
	require.NoError(t, err)
	assert.True(t, svc.Leave("a1"))
	assert.False(t, svc.Leave("a1"))
	assert.Equal(t, 0, svc.Depth(domain.ArenaBarter, 100))
}
