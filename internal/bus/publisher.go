// Package bus provides the live event surface between the match engine and
// spectators: a JSON-envelope publisher over a pluggable signal bus, and an
// in-memory bus for tests and single-process runs.
package bus

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/alanyoungcy/agentarena/internal/domain"
)

// publishTimeout bounds a single publish so a stalled bus can never hold up
// a round loop.
const publishTimeout = 2 * time.Second

// Publisher implements domain.EventPublisher over a SignalBus. Publish is
// best-effort: serialization or transport failures are logged and dropped.
type Publisher struct {
	bus    domain.SignalBus
	logger *slog.Logger
}

// NewPublisher creates a Publisher over the given bus.
func NewPublisher(bus domain.SignalBus, logger *slog.Logger) *Publisher {
	return &Publisher{
		bus:    bus,
		logger: logger.With(slog.String("component", "bus")),
	}
}

// Publish emits one typed event on the match's channel.
func (p *Publisher) Publish(matchID string, typ domain.EventType, payload any) {
	ev := domain.Event{
		MatchID:   matchID,
		Type:      typ,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}

	data, err := json.Marshal(ev)
	if err != nil {
		p.logger.Error("event encode failed",
			slog.String("match_id", matchID),
			slog.String("type", string(typ)),
			slog.String("error", err.Error()),
		)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := p.bus.Publish(ctx, domain.MatchChannel(matchID), data); err != nil {
		p.logger.Warn("event publish failed",
			slog.String("match_id", matchID),
			slog.String("type", string(typ)),
			slog.String("error", err.Error()),
		)
	}
}

// Compile-time interface check.
var _ domain.EventPublisher = (*Publisher)(nil)
