package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/agentarena/internal/domain"
)

// startingBalance is the betting balance credited to new users.
const startingBalance = 1000

// UserHandler serves user, balance and notification endpoints.
type UserHandler struct {
	users  domain.UserStore
	notes  domain.NotificationStore
	bets   domain.BetStore
	logger *slog.Logger
}

// NewUserHandler creates a UserHandler with the given stores and logger.
func NewUserHandler(users domain.UserStore, notes domain.NotificationStore, bets domain.BetStore, logger *slog.Logger) *UserHandler {
	return &UserHandler{
		users:  users,
		notes:  notes,
		bets:   bets,
		logger: logger,
	}
}

// createUserRequest is the body of the user creation endpoint.
type createUserRequest struct {
	Name string `json:"name"`
}

// CreateUser registers a new user with the starting balance.
// POST /api/users
func (h *UserHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	now := time.Now().UTC()
	user := domain.User{
		ID:        uuid.New().String(),
		Name:      req.Name,
		Balance:   startingBalance,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := h.users.Create(r.Context(), user); err != nil {
		h.logger.ErrorContext(r.Context(), "handler: create user failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to create user")
		return
	}

	writeJSON(w, http.StatusCreated, user)
}

// GetUser returns a single user by ID.
// GET /api/users/{id}
func (h *UserHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing user id")
		return
	}

	user, err := h.users.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get user failed",
			slog.String("user_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get user")
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// depositRequest is the body of the deposit endpoint.
type depositRequest struct {
	Amount float64 `json:"amount"`
}

// Deposit credits a user's balance.
// POST /api/users/{id}/deposit
func (h *UserHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing user id")
		return
	}

	var req depositRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Amount <= 0 {
		writeError(w, http.StatusBadRequest, "amount must be positive")
		return
	}

	if err := h.users.Credit(r.Context(), id, req.Amount); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: deposit failed",
			slog.String("user_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to deposit")
		return
	}

	user, err := h.users.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load user")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// ListNotifications returns a user's notifications, newest first.
// GET /api/users/{id}/notifications
func (h *UserHandler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing user id")
		return
	}

	notes, err := h.notes.ListByUser(r.Context(), id, parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list notifications failed",
			slog.String("user_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list notifications")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"notifications": notes})
}

// ListBets returns a user's bet history, newest first.
// GET /api/users/{id}/bets
func (h *UserHandler) ListBets(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing user id")
		return
	}

	bets, err := h.bets.ListByUser(r.Context(), id, parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list bets failed",
			slog.String("user_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list bets")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"bets": bets})
}
