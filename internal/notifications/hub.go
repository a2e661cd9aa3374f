// Package notifications delivers realtime events to connected clients
// over websockets, with a Redis pub/sub bridge so events published on
// one instance reach clients connected to another.
package notifications

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"inkwell/internal/observability"

	"github.com/gofiber/websocket/v2"
)

const (
	// Max connections per user
	maxConnsPerUser = 8
	// Max total connections
	maxTotalConns = 10000
)

// Registration failures surfaced to the upgrade handler.
var (
	ErrServerFull = errors.New("server connection limit reached")
	ErrUserLimit  = errors.New("user connection limit reached")
)

// Hub maps userID -> connected Clients and fans events out to them.
type Hub struct {
	mu         sync.RWMutex
	conns      map[uint]map[*Client]struct{}
	totalConns int
	monitor    *observability.Monitor
	wsLog      *observability.WSLogger
}

// NewHub creates the event hub. The monitor may be nil; connection
// gauges and drop counters are then not recorded.
func NewHub(monitor *observability.Monitor) *Hub {
	return &Hub{
		conns:   make(map[uint]map[*Client]struct{}),
		monitor: monitor,
		wsLog:   observability.NewWSLogger("events"),
	}
}

// Name returns a human-readable identifier for this hub.
func (h *Hub) Name() string { return "events" }

// Register adds a connection for userID, enforcing the per-user and
// total caps. Returns the Client, or an error when a cap is hit.
func (h *Hub) Register(userID uint, conn *websocket.Conn) (*Client, error) {
	h.mu.Lock()

	if h.totalConns >= maxTotalConns {
		h.mu.Unlock()
		return nil, ErrServerFull
	}

	m, ok := h.conns[userID]
	if !ok {
		m = make(map[*Client]struct{})
		h.conns[userID] = m
	}

	if len(m) >= maxConnsPerUser {
		h.mu.Unlock()
		return nil, ErrUserLimit
	}

	client := NewClient(h, conn, userID)
	client.monitor = h.monitor
	client.log = h.wsLog

	m[client] = struct{}{}
	h.totalConns++
	h.mu.Unlock()

	if h.monitor != nil {
		h.monitor.WebSocketOpened()
	}
	h.wsLog.LogConnect(client.Context(), userID)
	return client, nil
}

// UnregisterClient removes a connection. Safe to call more than once
// for the same client.
func (h *Hub) UnregisterClient(client *Client) {
	h.mu.Lock()
	removed := false
	if m, ok := h.conns[client.UserID]; ok {
		if _, exists := m[client]; exists {
			delete(m, client)
			h.totalConns--
			removed = true
		}
		if len(m) == 0 {
			delete(h.conns, client.UserID)
		}
	}
	h.mu.Unlock()

	if removed {
		if h.monitor != nil {
			h.monitor.WebSocketClosed()
		}
		h.wsLog.LogDisconnect(client.Context(), client.UserID, "unregistered")
	}
}

// Broadcast sends message to all connections for userID.
func (h *Hub) Broadcast(userID uint, message string) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if clients, ok := h.conns[userID]; ok {
		data := []byte(message)
		for c := range clients {
			c.TrySend(data)
		}
	}
}

// BroadcastAll sends message to every connected client.
func (h *Hub) BroadcastAll(message string) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	data := []byte(message)
	for _, clients := range h.conns {
		for c := range clients {
			c.TrySend(data)
		}
	}
}

// IsOnline reports whether a user has at least one active connection
// on this instance.
func (h *Hub) IsOnline(userID uint) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	clients, ok := h.conns[userID]
	return ok && len(clients) > 0
}

// ConnectionCount returns the number of active connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.totalConns
}

// StartWiring subscribes the hub to the notifier's Redis channels and
// forwards incoming messages to the matching connections.
func (h *Hub) StartWiring(ctx context.Context, n *Notifier) error {
	return n.StartPatternSubscriber(ctx, func(channel, payload string) {
		if channel == broadcastChannel {
			h.BroadcastAll(payload)
			return
		}
		if !strings.HasPrefix(channel, userChannelPrefix) {
			log.Printf("invalid notification channel: %s", channel)
			return
		}
		var userID uint
		if _, err := fmt.Sscanf(channel, userChannelPrefix+"%d", &userID); err != nil {
			log.Printf("invalid notification channel: %s", channel)
			return
		}
		h.Broadcast(userID, payload)
	})
}

// Shutdown closes every websocket connection gracefully.
func (h *Hub) Shutdown(_ context.Context) error {
	h.mu.Lock()
	for userID, userConns := range h.conns {
		for client := range userConns {
			if client.Conn == nil {
				continue
			}
			if err := client.Conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "Server shutting down")); err != nil {
				log.Printf("failed to write close message for user %d: %v", userID, err)
			}
			if err := client.Conn.Close(); err != nil {
				log.Printf("failed to close websocket for user %d: %v", userID, err)
			}
		}
	}
	h.conns = make(map[uint]map[*Client]struct{})
	h.totalConns = 0
	h.mu.Unlock()

	return nil
}
