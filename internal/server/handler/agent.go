package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/agentarena/internal/domain"
)

// startingRating is the Elo rating assigned to new agents.
const startingRating = 1200

// AgentHandler serves agent CRUD and per-arena stats endpoints.
type AgentHandler struct {
	agents domain.AgentStore
	stats  domain.StatsStore
	logger *slog.Logger
}

// NewAgentHandler creates an AgentHandler with the given stores and logger.
func NewAgentHandler(agents domain.AgentStore, stats domain.StatsStore, logger *slog.Logger) *AgentHandler {
	return &AgentHandler{
		agents: agents,
		stats:  stats,
		logger: logger,
	}
}

// createAgentRequest is the body of the agent creation endpoint.
type createAgentRequest struct {
	OwnerID  string                `json:"owner_id"`
	Name     string                `json:"name"`
	Strategy domain.StrategyType   `json:"strategy"`
	Custom   *domain.CustomProfile `json:"custom,omitempty"`
}

// validStrategies enumerates the accepted strategy archetypes.
var validStrategies = map[domain.StrategyType]bool{
	domain.StrategyAggressive: true,
	domain.StrategyDefensive:  true,
	domain.StrategyBalanced:   true,
	domain.StrategyChaotic:    true,
	domain.StrategyCustom:     true,
}

// CreateAgent registers a new agent for a user.
// POST /api/agents
func (h *AgentHandler) CreateAgent(w http.ResponseWriter, r *http.Request) {
	var req createAgentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.OwnerID == "" || req.Name == "" {
		writeError(w, http.StatusBadRequest, "owner_id and name are required")
		return
	}
	if !validStrategies[req.Strategy] {
		writeError(w, http.StatusBadRequest, "unknown strategy type")
		return
	}
	if req.Strategy == domain.StrategyCustom && req.Custom == nil {
		writeError(w, http.StatusBadRequest, "custom strategy requires a custom profile")
		return
	}
	if req.Strategy != domain.StrategyCustom {
		req.Custom = nil
	}

	now := time.Now().UTC()
	agent := domain.Agent{
		ID:        uuid.New().String(),
		OwnerID:   req.OwnerID,
		Name:      req.Name,
		Strategy:  req.Strategy,
		Custom:    req.Custom,
		Rating:    startingRating,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := h.agents.Create(r.Context(), agent); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "owner not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: create agent failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to create agent")
		return
	}

	writeJSON(w, http.StatusCreated, agent)
}

// GetAgent returns a single agent by its ID.
// GET /api/agents/{id}
func (h *AgentHandler) GetAgent(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing agent id")
		return
	}

	agent, err := h.agents.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "agent not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get agent failed",
			slog.String("agent_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get agent")
		return
	}

	writeJSON(w, http.StatusOK, agent)
}

// ListAgents returns the agents owned by a user.
// GET /api/users/{id}/agents
func (h *AgentHandler) ListAgents(w http.ResponseWriter, r *http.Request) {
	ownerID := pathParam(r, "id")
	if ownerID == "" {
		writeError(w, http.StatusBadRequest, "missing user id")
		return
	}

	agents, err := h.agents.ListByOwner(r.Context(), ownerID)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list agents failed",
			slog.String("owner_id", ownerID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list agents")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"agents": agents})
}

// setActiveRequest is the body of the activation toggle endpoint.
type setActiveRequest struct {
	Active bool `json:"active"`
}

// SetActive toggles whether an agent can enter new matches.
// POST /api/agents/{id}/active
func (h *AgentHandler) SetActive(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing agent id")
		return
	}

	var req setActiveRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.agents.SetActive(r.Context(), id, req.Active); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "agent not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: set active failed",
			slog.String("agent_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to update agent")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"id": id, "active": req.Active})
}

// GetArenaStats returns an agent's rolling stats for one arena.
// GET /api/agents/{id}/stats/{arena}
func (h *AgentHandler) GetArenaStats(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	arena := domain.Arena(pathParam(r, "arena"))
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing agent id")
		return
	}
	if !domain.ValidArena(arena) {
		writeError(w, http.StatusBadRequest, "unknown arena")
		return
	}

	stats, err := h.stats.GetArenaStats(r.Context(), id, arena)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			// No matches played in this arena yet; return the zero row.
			writeJSON(w, http.StatusOK, domain.ArenaStats{AgentID: id, Arena: arena})
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get arena stats failed",
			slog.String("agent_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get stats")
		return
	}

	writeJSON(w, http.StatusOK, stats)
}
