package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/agentarena/internal/domain"
)

type fakeAgentStore struct {
	byID    map[string]domain.Agent
	created []domain.Agent
}

func (f *fakeAgentStore) Create(_ context.Context, a domain.Agent) error {
	f.created = append(f.created, a)
	return nil
}

func (f *fakeAgentStore) GetByID(_ context.Context, id string) (domain.Agent, error) {
	a, ok := f.byID[id]
	if !ok {
		return domain.Agent{}, domain.ErrNotFound
	}
	return a, nil
}

func (f *fakeAgentStore) ListByOwner(_ context.Context, ownerID string) ([]domain.Agent, error) {
	var out []domain.Agent
	for _, a := range f.byID {
		if a.OwnerID == ownerID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeAgentStore) SetActive(_ context.Context, id string, _ bool) error {
	if _, ok := f.byID[id]; !ok {
		return domain.ErrNotFound
	}
	return nil
}

type fakeStatsStore struct {
	stats map[string]domain.ArenaStats // keyed by agentID
}

func (f *fakeStatsStore) ApplyResult(_ context.Context, _ domain.ApplyResultParams) error {
	return nil
}

func (f *fakeStatsStore) GetArenaStats(_ context.Context, agentID string, _ domain.Arena) (domain.ArenaStats, error) {
	s, ok := f.stats[agentID]
	if !ok {
		return domain.ArenaStats{}, domain.ErrNotFound
	}
	return s, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newAgentHandler() (*AgentHandler, *fakeAgentStore) {
	agents := &fakeAgentStore{byID: map[string]domain.Agent{
		"a1": {ID: "a1", OwnerID: "u1", Name: "Hammer", Rating: 1200, Active: true},
	}}
	stats := &fakeStatsStore{stats: map[string]domain.ArenaStats{}}
	return NewAgentHandler(agents, stats, testLogger()), agents
}

func TestCreateAgent(t *testing.T) {
	h, agents := newAgentHandler()

	body := `{"owner_id":"u1","name":"Anchor","strategy":"defensive"}`
	req := httptest.NewRequest(http.MethodPost, "/api/agents", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.CreateAgent(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, agents.created, 1)
	created := agents.created[0]
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, 1200, created.Rating)
	assert.True(t, created.Active)
	assert.Equal(t, domain.StrategyDefensive, created.Strategy)
}

func TestCreateAgentValidation(t *testing.T) {
	h, _ := newAgentHandler()

	cases := []struct {
		name string
		body string
	}{
		{"missing name", `{"owner_id":"u1","strategy":"balanced"}`},
		{"unknown strategy", `{"owner_id":"u1","name":"X","strategy":"psychic"}`},
		{"custom without profile", `{"owner_id":"u1","name":"X","strategy":"custom"}`},
		{"unknown field", `{"owner_id":"u1","name":"X","strategy":"balanced","elo":9000}`},
		{"malformed json", `{"owner_id":`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/agents", strings.NewReader(tc.body))
			rec := httptest.NewRecorder()
			h.CreateAgent(rec, req)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestCreateAgentDropsCustomForArchetypes(t *testing.T) {
	h, agents := newAgentHandler()

	body := `{"owner_id":"u1","name":"X","strategy":"aggressive","custom":{"opening_base":88}}`
	req := httptest.NewRequest(http.MethodPost, "/api/agents", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.CreateAgent(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, agents.created, 1)
	assert.Nil(t, agents.created[0].Custom)
}

func TestGetAgent(t *testing.T) {
	h, _ := newAgentHandler()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/agents/{id}", h.GetAgent)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/agents/a1", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var got domain.Agent
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "Hammer", got.Name)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/agents/ghost", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetArenaStatsZeroRow(t *testing.T) {
	h, _ := newAgentHandler()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/agents/{id}/stats/{arena}", h.GetArenaStats)

	// No stats row yet: the zero row comes back instead of a 404.
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/agents/a1/stats/negotiation", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var got domain.ArenaStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "a1", got.AgentID)
	assert.Zero(t, got.Matches)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/agents/a1/stats/bingo", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestParseListOpts(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/x?limit=20&offset=40", nil)
	opts := parseListOpts(r)
	assert.Equal(t, 20, opts.Limit)
	assert.Equal(t, 40, opts.Offset)

	r = httptest.NewRequest(http.MethodGet, "/x", nil)
	opts = parseListOpts(r)
	assert.Equal(t, 50, opts.Limit)
	assert.Equal(t, 0, opts.Offset)

	r = httptest.NewRequest(http.MethodGet, "/x?limit=9999&offset=-3", nil)
	opts = parseListOpts(r)
	assert.Equal(t, 500, opts.Limit)
	assert.Equal(t, 0, opts.Offset)
}
