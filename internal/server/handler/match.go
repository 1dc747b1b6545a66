package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/agentarena/internal/domain"
)

// MatchCreator is the slice of the engine the match handler needs.
type MatchCreator interface {
	CreateMatch(ctx context.Context, agent1ID, agent2ID string, arena domain.Arena, prizePool float64, maxRounds int) (domain.Match, error)
}

// MatchLauncher starts a created match asynchronously.
type MatchLauncher interface {
	Launch(matchID string)
}

// TranscriptReader fetches archived transcripts from cold storage.
type TranscriptReader interface {
	Get(ctx context.Context, path string) (io.ReadCloser, error)
}

// MatchHandler serves match lifecycle and history endpoints.
type MatchHandler struct {
	creator     MatchCreator
	launcher    MatchLauncher
	matches     domain.MatchStore
	rounds      domain.RoundStore
	messages    domain.MessageStore
	transcripts TranscriptReader // nil when archival is disabled
	logger      *slog.Logger
}

// NewMatchHandler creates a MatchHandler. transcripts may be nil.
func NewMatchHandler(
	creator MatchCreator,
	launcher MatchLauncher,
	matches domain.MatchStore,
	rounds domain.RoundStore,
	messages domain.MessageStore,
	transcripts TranscriptReader,
	logger *slog.Logger,
) *MatchHandler {
	return &MatchHandler{
		creator:     creator,
		launcher:    launcher,
		matches:     matches,
		rounds:      rounds,
		messages:    messages,
		transcripts: transcripts,
		logger:      logger,
	}
}

// createMatchRequest is the body of the direct-challenge endpoint.
type createMatchRequest struct {
	Agent1ID  string       `json:"agent1_id"`
	Agent2ID  string       `json:"agent2_id"`
	Arena     domain.Arena `json:"arena"`
	PrizePool float64      `json:"prize_pool"`
	MaxRounds int          `json:"max_rounds"`
}

// CreateMatch creates a funded match between two named agents and launches it.
// POST /api/matches
func (h *MatchHandler) CreateMatch(w http.ResponseWriter, r *http.Request) {
	var req createMatchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Agent1ID == "" || req.Agent2ID == "" {
		writeError(w, http.StatusBadRequest, "agent1_id and agent2_id are required")
		return
	}

	m, err := h.creator.CreateMatch(r.Context(), req.Agent1ID, req.Agent2ID, req.Arena, req.PrizePool, req.MaxRounds)
	if err != nil {
		writeCreateError(w, r, h.logger, err)
		return
	}

	h.launcher.Launch(m.ID)
	writeJSON(w, http.StatusCreated, m)
}

// writeCreateError maps match creation failures to HTTP statuses. Validation
// failures are the caller's fault; everything else is a 500.
func writeCreateError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "agent not found")
	case errors.Is(err, domain.ErrInsufficientBalance):
		writeError(w, http.StatusPaymentRequired, err.Error())
	case errors.Is(err, domain.ErrAgentBusy):
		writeError(w, http.StatusConflict, err.Error())
	case domain.IsValidation(err):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		logger.ErrorContext(r.Context(), "handler: create match failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to create match")
	}
}

// GetMatch returns a single match by ID.
// GET /api/matches/{id}
func (h *MatchHandler) GetMatch(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing match id")
		return
	}

	m, err := h.matches.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "match not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get match failed",
			slog.String("match_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get match")
		return
	}

	writeJSON(w, http.StatusOK, m)
}

// ListMatches returns recent matches, newest first.
// GET /api/matches?limit=50&offset=0
func (h *MatchHandler) ListMatches(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	matches, err := h.matches.ListRecent(r.Context(), opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list matches failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list matches")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"matches": matches,
		"limit":   opts.Limit,
		"offset":  opts.Offset,
	})
}

// ListRounds returns the per-round history of a match.
// GET /api/matches/{id}/rounds
func (h *MatchHandler) ListRounds(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing match id")
		return
	}

	rounds, err := h.rounds.ListByMatch(r.Context(), id)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list rounds failed",
			slog.String("match_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list rounds")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"rounds": rounds})
}

// ListMessages returns the narrative feed of a match.
// GET /api/matches/{id}/messages
func (h *MatchHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing match id")
		return
	}

	msgs, err := h.messages.ListByMatch(r.Context(), id, parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list messages failed",
			slog.String("match_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list messages")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"messages": msgs})
}

// GetTranscript streams a completed match's archived transcript JSON.
// GET /api/matches/{id}/transcript
func (h *MatchHandler) GetTranscript(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing match id")
		return
	}
	if h.transcripts == nil {
		writeError(w, http.StatusNotFound, "transcript archival is disabled")
		return
	}

	m, err := h.matches.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "match not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to get match")
		return
	}
	if m.TranscriptKey == nil {
		writeError(w, http.StatusNotFound, "transcript not archived")
		return
	}

	body, err := h.transcripts.Get(r.Context(), *m.TranscriptKey)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "transcript not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get transcript failed",
			slog.String("match_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get transcript")
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if _, err := io.Copy(w, body); err != nil {
		h.logger.WarnContext(r.Context(), "handler: transcript stream interrupted",
			slog.String("match_id", id),
			slog.String("error", err.Error()),
		)
	}
}
