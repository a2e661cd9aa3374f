package server

import (
	"context"
	"encoding/json"
	"log"
)

// Event type constants prevent typos in event names.
const (
	EventPostCreated         = "post_created"
	EventPostReactionUpdated = "post_reaction_updated"
	EventCommentCreated      = "comment_created"
)

// publishUserEvent delivers an event to one user's websocket clients.
// With Redis the event goes through pub/sub so every instance fans it
// out; the subscriber echoes it back to this instance's hub as well.
// Without Redis the local hub is the only audience.
func (s *Server) publishUserEvent(userID uint, eventType string, payload map[string]interface{}) {
	message, ok := encodeEvent(eventType, payload)
	if !ok {
		return
	}
	if s.notifier != nil {
		if err := s.notifier.PublishUser(context.Background(), userID, message); err != nil {
			log.Printf("failed to publish %s event to user %d: %v", eventType, userID, err)
		}
		return
	}
	if s.hub != nil {
		s.hub.Broadcast(userID, message)
	}
}

// publishBroadcastEvent delivers an event to every connected client.
func (s *Server) publishBroadcastEvent(eventType string, payload map[string]interface{}) {
	message, ok := encodeEvent(eventType, payload)
	if !ok {
		return
	}
	if s.notifier != nil {
		if err := s.notifier.PublishBroadcast(context.Background(), message); err != nil {
			log.Printf("failed to publish %s broadcast event: %v", eventType, err)
		}
		return
	}
	if s.hub != nil {
		s.hub.BroadcastAll(message)
	}
}

func encodeEvent(eventType string, payload map[string]interface{}) (string, bool) {
	event := map[string]interface{}{
		"type":    eventType,
		"payload": payload,
	}
	eventJSON, err := json.Marshal(event)
	if err != nil {
		log.Printf("failed to marshal %s event: %v", eventType, err)
		return "", false
	}
	return string(eventJSON), true
}
