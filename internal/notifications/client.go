package notifications

import (
	"context"
	"errors"
	"time"

	"inkwell/internal/observability"

	"github.com/gofiber/websocket/v2"
)

var errBufferFull = errors.New("send buffer full")

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. The event feed is
	// server-push; clients only ever send small control frames.
	maxMessageSize = 4096
)

// WSHub is the hub surface a client needs.
type WSHub interface {
	UnregisterClient(c *Client)
	Name() string
}

// Client is the middleman between one websocket connection and the hub.
type Client struct {
	Hub WSHub

	// The websocket connection.
	Conn *websocket.Conn

	// Buffered channel of outbound messages.
	Send chan []byte

	// UserID for this client
	UserID uint

	// ctx carries the correlation ID shared by every log line of this
	// connection's lifetime.
	ctx context.Context

	monitor *observability.Monitor
	log     *observability.WSLogger
}

// NewClient creates a new Client instance
func NewClient(hub WSHub, conn *websocket.Conn, userID uint) *Client {
	return &Client{
		Hub:    hub,
		Conn:   conn,
		UserID: userID,
		Send:   make(chan []byte, 256),
		ctx:    observability.WithCorrelationID(context.Background(), observability.GenerateCorrelationID()),
	}
}

// Context returns the connection-scoped context.
func (c *Client) Context() context.Context {
	return c.ctx
}

// ReadPump pumps messages from the websocket connection until the peer
// goes away, keeping the read deadline fresh via pongs. The event feed
// ignores client payloads.
func (c *Client) ReadPump() {
	defer func() {
		c.Hub.UnregisterClient(c)
		_ = c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error { _ = c.Conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })

	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) && c.log != nil {
				c.log.LogError(c.ctx, c.UserID, err, "read")
			}
			break
		}
	}
}

// WritePump drains the send channel onto the wire and keeps the
// connection alive with periodic pings. It exits when the hub closes
// the channel or any write fails.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			if !ok {
				// The hub closed the channel.
				_ = c.write(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.write(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) write(messageType int, payload []byte) error {
	_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.Conn.WriteMessage(messageType, payload)
}

// TrySend attempts to deliver a message without blocking. A slow
// consumer loses messages rather than stalling the hub; a one-off drop
// notice lets the client detect the gap and re-fetch.
func (c *Client) TrySend(message []byte) {
	defer func() {
		if r := recover(); r != nil && c.monitor != nil {
			c.monitor.BackpressureDrop(c.Hub.Name(), "closed")
		}
	}()

	select {
	case c.Send <- message:
	default:
		if c.monitor != nil {
			c.monitor.BackpressureDrop(c.Hub.Name(), "full")
		}
		if c.log != nil {
			c.log.LogError(c.ctx, c.UserID, errBufferFull, "send")
		}

		dropNotice := []byte(`{"type":"messages_dropped","payload":{"reason":"buffer_full"}}`)
		select {
		case c.Send <- dropNotice:
		default:
			// Can't even send the notification; client is truly overwhelmed.
		}
	}
}
