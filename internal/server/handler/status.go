package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/agentarena/internal/domain"
)

// StatusHandler serves the platform status line for the dashboard.
type StatusHandler struct {
	mode      string
	live      domain.LiveCounter // nil when no counter is wired
	startedAt time.Time
	logger    *slog.Logger
}

// NewStatusHandler creates a StatusHandler. live may be nil.
func NewStatusHandler(mode string, live domain.LiveCounter, logger *slog.Logger) *StatusHandler {
	return &StatusHandler{
		mode:      mode,
		live:      live,
		startedAt: time.Now().UTC(),
		logger:    logger,
	}
}

// GetStatus responds with the current mode, live match count and uptime.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	var liveMatches int64
	if h.live != nil {
		n, err := h.live.Get(r.Context())
		if err != nil {
			h.logger.WarnContext(r.Context(), "handler: live count failed",
				slog.String("error", err.Error()),
			)
		} else {
			liveMatches = n
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"mode":           h.mode,
		"live_matches":   liveMatches,
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
	})
}
