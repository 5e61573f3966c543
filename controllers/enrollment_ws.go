package controller

import (
	"log"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"

	"followmail/automation"
)

// EnrollmentProgressWS streams enrollment transitions to a connected
// client. Each connection gets its own subscriber entry in the hub,
// removed when the socket closes.
func EnrollmentProgressWS(hub *automation.Hub) func(*websocket.Conn) {
	return func(c *websocket.Conn) {
		defer c.Close()

		connID := uuid.New().String()
		events := hub.Subscribe(connID)
		defer hub.Unsubscribe(connID)

		for event := range events {
			if err := c.WriteJSON(event); err != nil {
				log.Printf("Error writing enrollment event to %s: %v", connID, err)
				return
			}
		}
	}
}
