package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/agentarena/internal/domain"
)

// BracketService is the slice of the tournament orchestrator the handler
// needs.
type BracketService interface {
	Create(ctx context.Context, name string, arena domain.Arena, size int, prizePool float64) (domain.Tournament, error)
	Join(ctx context.Context, tournamentID, agentID string) error
	Start(ctx context.Context, tournamentID string) ([]domain.Match, error)
	Sync(ctx context.Context, tournamentID string) (domain.SyncResult, error)
}

// TournamentHandler serves bracket lifecycle endpoints.
type TournamentHandler struct {
	brackets    BracketService
	tournaments domain.TournamentStore
	logger      *slog.Logger
}

// NewTournamentHandler creates a TournamentHandler.
func NewTournamentHandler(brackets BracketService, tournaments domain.TournamentStore, logger *slog.Logger) *TournamentHandler {
	return &TournamentHandler{
		brackets:    brackets,
		tournaments: tournaments,
		logger:      logger,
	}
}

// createTournamentRequest is the body of the tournament creation endpoint.
type createTournamentRequest struct {
	Name      string       `json:"name"`
	Arena     domain.Arena `json:"arena"`
	Size      int          `json:"size"`
	PrizePool float64      `json:"prize_pool"`
}

// CreateTournament opens a new single-elimination bracket.
// POST /api/tournaments
func (h *TournamentHandler) CreateTournament(w http.ResponseWriter, r *http.Request) {
	var req createTournamentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	t, err := h.brackets.Create(r.Context(), req.Name, req.Arena, req.Size, req.PrizePool)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidBracketSize), errors.Is(err, domain.ErrUnknownArena):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			h.logger.ErrorContext(r.Context(), "handler: create tournament failed",
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "failed to create tournament")
		}
		return
	}

	writeJSON(w, http.StatusCreated, t)
}

// GetTournament returns a tournament with its entries and current-round
// matches.
// GET /api/tournaments/{id}
func (h *TournamentHandler) GetTournament(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing tournament id")
		return
	}

	t, err := h.tournaments.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "tournament not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get tournament failed",
			slog.String("tournament_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get tournament")
		return
	}

	entries, err := h.tournaments.ListEntries(r.Context(), id)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list entries failed",
			slog.String("tournament_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list entries")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"tournament": t,
		"entries":    entries,
	})
}

// joinTournamentRequest is the body of the tournament join endpoint.
type joinTournamentRequest struct {
	AgentID string `json:"agent_id"`
}

// JoinTournament registers an agent in an open bracket.
// POST /api/tournaments/{id}/join
func (h *TournamentHandler) JoinTournament(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing tournament id")
		return
	}

	var req joinTournamentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.AgentID == "" {
		writeError(w, http.StatusBadRequest, "agent_id is required")
		return
	}

	if err := h.brackets.Join(r.Context(), id, req.AgentID); err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			writeError(w, http.StatusNotFound, "tournament or agent not found")
		case errors.Is(err, domain.ErrTournamentNotOpen), errors.Is(err, domain.ErrTournamentFull),
			errors.Is(err, domain.ErrAlreadyExists):
			writeError(w, http.StatusConflict, err.Error())
		case errors.Is(err, domain.ErrAgentInactive):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			h.logger.ErrorContext(r.Context(), "handler: join tournament failed",
				slog.String("tournament_id", id),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "failed to join tournament")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"tournament_id": id, "agent_id": req.AgentID})
}

// StartTournament seeds a full bracket and launches the first round.
// POST /api/tournaments/{id}/start
func (h *TournamentHandler) StartTournament(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing tournament id")
		return
	}

	matches, err := h.brackets.Start(r.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			writeError(w, http.StatusNotFound, "tournament not found")
		case errors.Is(err, domain.ErrTournamentNotOpen):
			writeError(w, http.StatusConflict, err.Error())
		default:
			h.logger.ErrorContext(r.Context(), "handler: start tournament failed",
				slog.String("tournament_id", id),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"matches": matches})
}

// SyncTournament advances the bracket if the current round is fully decided.
// POST /api/tournaments/{id}/sync
func (h *TournamentHandler) SyncTournament(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing tournament id")
		return
	}

	res, err := h.brackets.Sync(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "tournament not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: sync tournament failed",
			slog.String("tournament_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to sync tournament")
		return
	}

	writeJSON(w, http.StatusOK, res)
}
