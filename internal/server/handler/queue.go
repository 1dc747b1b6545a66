package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/alanyoungcy/agentarena/internal/domain"
)

// Matchmaker is the slice of the queue service the handler needs.
type Matchmaker interface {
	Join(ctx context.Context, agentID string, arena domain.Arena, prizePool float64, maxRounds int) (domain.JoinResult, error)
	Leave(agentID string) bool
	Depth(arena domain.Arena, stake float64) int
}

// QueueHandler serves matchmaking queue endpoints.
type QueueHandler struct {
	queue  Matchmaker
	logger *slog.Logger
}

// NewQueueHandler creates a QueueHandler with the given queue and logger.
func NewQueueHandler(queue Matchmaker, logger *slog.Logger) *QueueHandler {
	return &QueueHandler{
		queue:  queue,
		logger: logger,
	}
}

// joinQueueRequest is the body of the queue join endpoint.
type joinQueueRequest struct {
	AgentID   string       `json:"agent_id"`
	Arena     domain.Arena `json:"arena"`
	PrizePool float64      `json:"prize_pool"`
	MaxRounds int          `json:"max_rounds"`
}

// Join enters an agent into matchmaking. The response says whether it was
// paired immediately or now waits in the pool.
// POST /api/queue/join
func (h *QueueHandler) Join(w http.ResponseWriter, r *http.Request) {
	var req joinQueueRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.AgentID == "" {
		writeError(w, http.StatusBadRequest, "agent_id is required")
		return
	}

	res, err := h.queue.Join(r.Context(), req.AgentID, req.Arena, req.PrizePool, req.MaxRounds)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			writeError(w, http.StatusNotFound, "agent not found")
		case errors.Is(err, domain.ErrAlreadyQueued), errors.Is(err, domain.ErrStakeMismatch),
			errors.Is(err, domain.ErrAgentBusy):
			writeError(w, http.StatusConflict, err.Error())
		case errors.Is(err, domain.ErrInsufficientBalance):
			writeError(w, http.StatusPaymentRequired, err.Error())
		case domain.IsValidation(err):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			h.logger.ErrorContext(r.Context(), "handler: queue join failed",
				slog.String("agent_id", req.AgentID),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "failed to join queue")
		}
		return
	}

	writeJSON(w, http.StatusOK, res)
}

// leaveQueueRequest is the body of the queue leave endpoint.
type leaveQueueRequest struct {
	AgentID string `json:"agent_id"`
}

// Leave removes an agent from matchmaking.
// POST /api/queue/leave
func (h *QueueHandler) Leave(w http.ResponseWriter, r *http.Request) {
	var req leaveQueueRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.AgentID == "" {
		writeError(w, http.StatusBadRequest, "agent_id is required")
		return
	}

	removed := h.queue.Leave(req.AgentID)
	writeJSON(w, http.StatusOK, map[string]any{"removed": removed})
}

// Depth reports how many agents wait in one (arena, stake) pool.
// GET /api/queue/depth?arena=negotiation&stake=100
func (h *QueueHandler) Depth(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	arena := domain.Arena(q.Get("arena"))
	if !domain.ValidArena(arena) {
		writeError(w, http.StatusBadRequest, "unknown arena")
		return
	}
	stake, err := strconv.ParseFloat(q.Get("stake"), 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid stake")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"arena": arena,
		"stake": stake,
		"depth": h.queue.Depth(arena, stake),
	})
}
