package server

import (
	"log"
	"time"

	"github.com/connect/chat-app/internal/metrics"
	"github.com/connect/chat-app/internal/protocol"
)

// EventHandler is the callback signature for handling a parsed client event.
// The payload parameter is the concrete struct returned by
// protocol.ParseClientEvent (e.g., protocol.RoomPayload,
// protocol.SendMessagePayload, etc.).
type EventHandler func(conn *Connection, payload interface{})

// EventDispatcher routes incoming WebSocket events to registered handlers
// based on the event name. It sends structured error responses for malformed
// or unsupported events and records per-event metrics.
type EventDispatcher struct {
	handlers map[string]EventHandler
}

// NewEventDispatcher creates an EventDispatcher with no handlers registered.
func NewEventDispatcher() *EventDispatcher {
	return &EventDispatcher{handlers: make(map[string]EventHandler)}
}

// Register associates an EventHandler with an event name. If a handler was
// already registered for the given event, it is silently replaced.
func (d *EventDispatcher) Register(event string, handler EventHandler) {
	d.handlers[event] = handler
}

// Dispatch is the onMessage callback implementation. It parses the raw bytes
// into a typed payload and routes to the registered handler. Parse errors and
// unregistered events result in an error event sent back to the client.
func (d *EventDispatcher) Dispatch(conn *Connection, data []byte) {
	start := time.Now()

	event, payload, err := protocol.ParseClientEvent(data)
	if err != nil {
		log.Printf("server: dispatch parse error conn=%s user=%s: %v", conn.ID, conn.UserID, err)
		metrics.EventErrors.WithLabelValues("parse_error").Inc()
		d.sendError(conn, "parse_error", "invalid event format")
		return
	}

	handler, ok := d.handlers[event]
	if !ok {
		log.Printf("server: unsupported event=%q conn=%s", event, conn.ID)
		metrics.EventErrors.WithLabelValues("unsupported_event").Inc()
		d.sendError(conn, "unsupported_event", "unsupported event")
		return
	}

	metrics.EventsTotal.WithLabelValues(event).Inc()
	handler(conn, payload)
	metrics.DispatchLatency.Observe(time.Since(start).Seconds())
}

// sendError sends a structured error event back to the client. Errors during
// event construction or transmission are logged but not propagated.
func (d *EventDispatcher) sendError(conn *Connection, code string, message string) {
	data, err := protocol.NewEvent(protocol.EventError, protocol.ErrorPayload{
		Code:    code,
		Message: message,
	})
	if err != nil {
		log.Printf("server: failed to build error event conn=%s: %v", conn.ID, err)
		return
	}

	if err := conn.WriteMessage(data); err != nil {
		log.Printf("server: failed to send error event conn=%s: %v", conn.ID, err)
	}
}
