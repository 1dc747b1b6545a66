// Package server exposes the arena's HTTP + WebSocket API.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/agentarena/internal/domain"
	"github.com/alanyoungcy/agentarena/internal/server/handler"
	"github.com/alanyoungcy/agentarena/internal/server/middleware"
	"github.com/alanyoungcy/agentarena/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	AdminToken  string // if empty, authentication is disabled
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health      *handler.HealthHandler
	Status      *handler.StatusHandler
	Users       *handler.UserHandler
	Agents      *handler.AgentHandler
	Matches     *handler.MatchHandler
	Queue       *handler.QueueHandler
	Markets     *handler.MarketHandler
	Tournaments *handler.TournamentHandler
}

// Server is the HTTP + WebSocket API server for the arena.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// It wires up middleware (logging, CORS, auth, optional rate limiting) and
// attaches the WebSocket hub. limiter may be nil.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// --- Register routes ---

	// Health check and status (no auth required).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	mux.HandleFunc("GET /api/status", handlers.Status.GetStatus)

	// User endpoints.
	mux.HandleFunc("POST /api/users", handlers.Users.CreateUser)
	mux.HandleFunc("GET /api/users/{id}", handlers.Users.GetUser)
	mux.HandleFunc("POST /api/users/{id}/deposit", handlers.Users.Deposit)
	mux.HandleFunc("GET /api/users/{id}/notifications", handlers.Users.ListNotifications)
	mux.HandleFunc("GET /api/users/{id}/bets", handlers.Users.ListBets)
	mux.HandleFunc("GET /api/users/{id}/agents", handlers.Agents.ListAgents)

	// Agent endpoints.
	mux.HandleFunc("POST /api/agents", handlers.Agents.CreateAgent)
	mux.HandleFunc("GET /api/agents/{id}", handlers.Agents.GetAgent)
	mux.HandleFunc("POST /api/agents/{id}/active", handlers.Agents.SetActive)
	mux.HandleFunc("GET /api/agents/{id}/stats/{arena}", handlers.Agents.GetArenaStats)

	// Match endpoints.
	mux.HandleFunc("POST /api/matches", handlers.Matches.CreateMatch)
	mux.HandleFunc("GET /api/matches", handlers.Matches.ListMatches)
	mux.HandleFunc("GET /api/matches/{id}", handlers.Matches.GetMatch)
	mux.HandleFunc("GET /api/matches/{id}/rounds", handlers.Matches.ListRounds)
	mux.HandleFunc("GET /api/matches/{id}/messages", handlers.Matches.ListMessages)
	mux.HandleFunc("GET /api/matches/{id}/transcript", handlers.Matches.GetTranscript)
	mux.HandleFunc("GET /api/matches/{id}/markets", handlers.Markets.ListByMatch)

	// Matchmaking queue endpoints (absent when the queue is disabled).
	if handlers.Queue != nil {
		mux.HandleFunc("POST /api/queue/join", handlers.Queue.Join)
		mux.HandleFunc("POST /api/queue/leave", handlers.Queue.Leave)
		mux.HandleFunc("GET /api/queue/depth", handlers.Queue.Depth)
	}

	// Market and bet endpoints.
	mux.HandleFunc("GET /api/markets/{id}", handlers.Markets.GetMarket)
	mux.HandleFunc("POST /api/bets", handlers.Markets.PlaceBet)

	// Tournament endpoints.
	mux.HandleFunc("POST /api/tournaments", handlers.Tournaments.CreateTournament)
	mux.HandleFunc("GET /api/tournaments/{id}", handlers.Tournaments.GetTournament)
	mux.HandleFunc("POST /api/tournaments/{id}/join", handlers.Tournaments.JoinTournament)
	mux.HandleFunc("POST /api/tournaments/{id}/start", handlers.Tournaments.StartTournament)
	mux.HandleFunc("POST /api/tournaments/{id}/sync", handlers.Tournaments.SyncTournament)

	// WebSocket endpoint.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain.
	var h http.Handler = mux

	// Apply auth middleware (skips if AdminToken is empty).
	h = middleware.Auth(cfg.AdminToken)(h)

	// Apply per-IP rate limiting when a limiter is wired.
	if limiter != nil {
		h = middleware.RateLimit(limiter, 120, time.Minute)(h)
	}

	// Apply request logging middleware.
	h = middleware.Logging(logger)(h)

	// Apply CORS middleware.
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		mux:        mux,
		logger:     logger,
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
