// Package ws bridges the signal bus to WebSocket spectators: one hub fans
// match event channels out to connected clients.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/agentarena/internal/domain"
)

const (
	// writeWait is the maximum time to wait for a write to complete.
	writeWait = 10 * time.Second

	// pongWait is the maximum time to wait for a pong from the client.
	pongWait = 60 * time.Second

	// pingPeriod sends pings at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize is the maximum size of an incoming message.
	maxMessageSize = 4096

	// sendBufferSize is the channel buffer for outgoing messages per client.
	sendBufferSize = 256
)

// matchPattern is the bus pattern covering every match's event channel.
const matchPattern = "ch:match:*"

// upgrader configures the WebSocket upgrade parameters.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// CORS enforcement happens at the HTTP layer; the ws handshake
		// accepts any origin.
		return true
	},
}

// client represents a single WebSocket connection. A client watches specific
// matches; events for unwatched matches are never sent to it.
type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	subs map[string]bool // watched match channels
	all  bool            // firehose: every match
	mu   sync.RWMutex
}

// watchMsg is the JSON frame a client sends to manage which matches it
// follows. {"watch": ["<matchID>"]} / {"unwatch": [...]} / {"watch_all": true}
type watchMsg struct {
	Watch    []string `json:"watch"`
	Unwatch  []string `json:"unwatch"`
	WatchAll *bool    `json:"watch_all"`
}

// Hub manages connected WebSocket clients and routes bus events to the
// clients watching each match.
type Hub struct {
	clients    map[*client]bool
	broadcast  chan broadcastMsg
	register   chan *client
	unregister chan *client
	bus        domain.SignalBus
	mu         sync.RWMutex
	logger     *slog.Logger
	startedAt  time.Time
}

// broadcastMsg carries an event along with its source channel so the hub can
// route it only to clients watching that match.
type broadcastMsg struct {
	channel string
	data    []byte
}

// NewHub creates a hub bridging the given SignalBus to WebSocket clients.
func NewHub(bus domain.SignalBus, logger *slog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan broadcastMsg, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		bus:        bus,
		logger:     logger.With(slog.String("component", "ws")),
		startedAt:  time.Now().UTC(),
	}
}

// Run starts the hub's main event loop. It should be called in a goroutine
// and exits when the provided context is cancelled.
func (h *Hub) Run(ctx context.Context) error {
	go h.subscribeMatches(ctx)

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return ctx.Err()

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()
			h.logger.Info("client connected", slog.Int("total_clients", h.clientCount()))

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
			h.logger.Info("client disconnected", slog.Int("total_clients", h.clientCount()))

		case msg := <-h.broadcast:
			h.mu.RLock()
			for c := range h.clients {
				if c.watches(msg.channel) {
					select {
					case c.send <- msg.data:
					default:
						// Client's send buffer is full; drop the event.
						h.logger.Warn("dropping event for slow client")
					}
				}
			}
			h.mu.RUnlock()
		}
	}
}

// subscribeMatches holds one pattern subscription covering every match
// channel and forwards received events to the broadcast loop.
func (h *Hub) subscribeMatches(ctx context.Context) {
	msgCh, err := h.bus.Subscribe(ctx, matchPattern)
	if err != nil {
		h.logger.Error("match channel subscribe failed", slog.String("error", err.Error()))
		return
	}
	h.logger.Info("subscribed to match events")

	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-msgCh:
			if !ok {
				h.logger.Warn("match event subscription closed")
				return
			}
			// The envelope carries its own match ID; recover the channel
			// from it so routing works on buses that do not report the
			// source channel.
			var env struct {
				MatchID string `json:"match_id"`
			}
			if err := json.Unmarshal(data, &env); err != nil || env.MatchID == "" {
				continue
			}
			h.broadcast <- broadcastMsg{
				channel: domain.MatchChannel(env.MatchID),
				data:    data,
			}
		}
	}
}

// HandleWS upgrades an HTTP request to a WebSocket connection and registers
// the client with the hub. A ?match=<id> query parameter pre-watches that
// match.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := &client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
		subs: make(map[string]bool),
	}
	if matchID := r.URL.Query().Get("match"); matchID != "" {
		c.subs[domain.MatchChannel(matchID)] = true
	} else {
		c.all = true
	}

	h.register <- c
	c.sendHello()

	go c.writePump()
	go c.readPump()
}

// clientCount returns the number of currently connected clients.
func (h *Hub) clientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// readPump reads watch-management frames from the WebSocket connection.
func (c *client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("unexpected close error", slog.String("error", err.Error()))
			}
			return
		}

		var msg watchMsg
		if jsonErr := json.Unmarshal(message, &msg); jsonErr == nil &&
			(len(msg.Watch) > 0 || len(msg.Unwatch) > 0 || msg.WatchAll != nil) {
			c.handleWatch(msg)
		}
	}
}

// handleWatch processes watch/unwatch requests from the client.
func (c *client) handleWatch(msg watchMsg) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, id := range msg.Watch {
		c.subs[domain.MatchChannel(id)] = true
	}
	for _, id := range msg.Unwatch {
		delete(c.subs, domain.MatchChannel(id))
	}
	if msg.WatchAll != nil {
		c.all = *msg.WatchAll
	}
}

// sendHello pushes a small JSON envelope so clients can immediately mark the
// connection as healthy even before any match events flow.
func (c *client) sendHello() {
	uptime := int64(time.Since(c.hub.startedAt).Seconds())
	if uptime < 0 {
		uptime = 0
	}

	msg, err := json.Marshal(map[string]any{
		"type": "hello",
		"payload": map[string]any{
			"connected":      true,
			"uptime_seconds": uptime,
		},
	})
	if err != nil {
		return
	}

	select {
	case c.send <- msg:
	default:
	}
}

// watches checks whether the client follows the given match channel.
func (c *client) watches(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.all || c.subs[channel]
}

// writePump pumps events from the hub to the WebSocket connection as JSON
// text frames, with periodic ping frames for keepalive.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
