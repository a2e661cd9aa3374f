package server

import (
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// WebsocketHandler upgrades GET /api/ws and attaches the connection to
// the event hub. AuthRequired has already resolved the user; browsers
// cannot set headers on upgrade requests, which is why the gate accepts
// the token as a query parameter.
func (s *Server) WebsocketHandler() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		userID, ok := conn.Locals("userID").(uint)
		if !ok || userID == 0 {
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"unauthorized"}`))
			_ = conn.Close()
			return
		}

		if s.hub == nil {
			_ = conn.Close()
			return
		}

		client, err := s.hub.Register(userID, conn)
		if err != nil {
			log.Printf("websocket: failed to register user %d: %v", userID, err)
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"`+err.Error()+`"}`))
			_ = conn.Close()
			return
		}

		// Confirm the subscription before any events flow.
		if welcome, ok := encodeEvent("connected", map[string]interface{}{
			"user_id": userID,
		}); ok {
			client.TrySend([]byte(welcome))
		}

		// Write pump in its own goroutine; the read pump blocks here and
		// unregisters the client when the peer goes away.
		go client.WritePump()
		client.ReadPump()
	})
}
