package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/agentarena/internal/domain"
)

// MarketHandler serves prediction market and bet endpoints.
type MarketHandler struct {
	markets domain.MarketStore
	bets    domain.BetStore
	logger  *slog.Logger
}

// NewMarketHandler creates a MarketHandler with the given stores and logger.
func NewMarketHandler(markets domain.MarketStore, bets domain.BetStore, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{
		markets: markets,
		bets:    bets,
		logger:  logger,
	}
}

// ListByMatch returns the prediction markets attached to a match.
// GET /api/matches/{id}/markets
func (h *MarketHandler) ListByMatch(w http.ResponseWriter, r *http.Request) {
	matchID := pathParam(r, "id")
	if matchID == "" {
		writeError(w, http.StatusBadRequest, "missing match id")
		return
	}

	markets, err := h.markets.ListByMatch(r.Context(), matchID)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list markets failed",
			slog.String("match_id", matchID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list markets")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"markets": markets})
}

// GetMarket returns a single market with its options and bets.
// GET /api/markets/{id}
func (h *MarketHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing market id")
		return
	}

	market, err := h.markets.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "market not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get market failed",
			slog.String("market_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get market")
		return
	}

	bets, err := h.bets.ListByMarket(r.Context(), id)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list market bets failed",
			slog.String("market_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list bets")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"market": market,
		"bets":   bets,
	})
}

// placeBetRequest is the body of the bet placement endpoint.
type placeBetRequest struct {
	UserID   string  `json:"user_id"`
	MarketID string  `json:"market_id"`
	OptionID string  `json:"option_id"`
	Stake    float64 `json:"stake"`
}

// PlaceBet stakes a user's balance on one market option. Odds are frozen at
// placement time.
// POST /api/bets
func (h *MarketHandler) PlaceBet(w http.ResponseWriter, r *http.Request) {
	var req placeBetRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID == "" || req.MarketID == "" || req.OptionID == "" {
		writeError(w, http.StatusBadRequest, "user_id, market_id and option_id are required")
		return
	}
	if req.Stake <= 0 {
		writeError(w, http.StatusBadRequest, "stake must be positive")
		return
	}

	bet, err := h.bets.Place(r.Context(), domain.Bet{
		ID:        uuid.New().String(),
		UserID:    req.UserID,
		MarketID:  req.MarketID,
		OptionID:  req.OptionID,
		Stake:     req.Stake,
		Status:    domain.BetStatusPending,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			writeError(w, http.StatusNotFound, "market or option not found")
		case errors.Is(err, domain.ErrMarketClosed):
			writeError(w, http.StatusConflict, err.Error())
		case errors.Is(err, domain.ErrInsufficientBalance):
			writeError(w, http.StatusPaymentRequired, err.Error())
		default:
			h.logger.ErrorContext(r.Context(), "handler: place bet failed",
				slog.String("market_id", req.MarketID),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "failed to place bet")
		}
		return
	}

	writeJSON(w, http.StatusCreated, bet)
}
