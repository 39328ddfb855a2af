// Package messaging provides the NATS fan-out layer between chat relay
// instances. Each room's live events travel on a chat.room.<id> subject;
// presence transitions travel on a shared presence subject. A relay instance
// subscribes once with a wildcard and routes to its local connections.
package messaging

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// NATS subject patterns used by the chat relay.
const (
	SubjectRoomPrefix   = "chat.room." // + <room_id>
	SubjectRoomWildcard = "chat.room.>"
	SubjectPresence     = "presence.events"
)

// RoomEvent is the payload published on room subjects: a fully formed wire
// envelope plus routing hints. ExceptUserID suppresses local delivery to one
// user (typing indicators are not echoed to their sender; messages are).
type RoomEvent struct {
	RoomID       string          `json:"room_id"`
	ExceptUserID string          `json:"except_user_id,omitempty"`
	Payload      json.RawMessage `json:"payload"`
}

// PresenceEvent is the payload published on the presence subject.
type PresenceEvent struct {
	UserID string `json:"user_id"`
	Online bool   `json:"online"`
}

// Client wraps the NATS connection with helper methods for the chat subjects.
type Client struct {
	conn *nats.Conn
	mu   sync.Mutex
	subs map[string]*nats.Subscription
}

// Config holds NATS connection settings.
type Config struct {
	URL           string        // nats://localhost:4222
	Name          string        // client name for identification
	ReconnectWait time.Duration // time between reconnect attempts
	MaxReconnects int           // max reconnect attempts (-1 for infinite)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		URL:           "nats://localhost:4222",
		Name:          "connect-chat",
		ReconnectWait: 2 * time.Second,
		MaxReconnects: -1, // infinite reconnects
	}
}

// NewClient connects to NATS with the given config and returns a ready
// client. It returns an error if the initial connection fails.
func NewClient(config Config) (*Client, error) {
	opts := []nats.Option{
		nats.Name(config.Name),
		nats.ReconnectWait(config.ReconnectWait),
		nats.MaxReconnects(config.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Printf("[nats] disconnected: %v", err)
			} else {
				log.Printf("[nats] disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("[nats] reconnected to %s", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			log.Printf("[nats] connection closed")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	log.Printf("[nats] connected to %s", nc.ConnectedUrl())

	return &Client{
		conn: nc,
		subs: make(map[string]*nats.Subscription),
	}, nil
}

// PublishRoomEvent publishes a room event to its chat.room.<id> subject.
func (c *Client) PublishRoomEvent(event RoomEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("nats: marshal room event: %w", err)
	}
	return c.conn.Publish(SubjectRoomPrefix+event.RoomID, data)
}

// SubscribeRooms subscribes to all room subjects with one wildcard
// subscription and hands each decoded event to the handler.
func (c *Client) SubscribeRooms(handler func(event RoomEvent)) error {
	sub, err := c.conn.Subscribe(SubjectRoomWildcard, func(msg *nats.Msg) {
		var event RoomEvent
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			log.Printf("[nats] bad room event on %s: %v", msg.Subject, err)
			return
		}
		if event.RoomID == "" {
			event.RoomID = strings.TrimPrefix(msg.Subject, SubjectRoomPrefix)
		}
		handler(event)
	})
	if err != nil {
		return fmt.Errorf("nats subscribe %s: %w", SubjectRoomWildcard, err)
	}

	c.mu.Lock()
	c.subs["rooms"] = sub
	c.mu.Unlock()
	return nil
}

// PublishPresence publishes a presence transition.
func (c *Client) PublishPresence(event PresenceEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("nats: marshal presence event: %w", err)
	}
	return c.conn.Publish(SubjectPresence, data)
}

// SubscribePresence subscribes to presence transitions.
func (c *Client) SubscribePresence(handler func(event PresenceEvent)) error {
	sub, err := c.conn.Subscribe(SubjectPresence, func(msg *nats.Msg) {
		var event PresenceEvent
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			log.Printf("[nats] bad presence event: %v", err)
			return
		}
		handler(event)
	})
	if err != nil {
		return fmt.Errorf("nats subscribe %s: %w", SubjectPresence, err)
	}

	c.mu.Lock()
	c.subs["presence"] = sub
	c.mu.Unlock()
	return nil
}

// Close drains all active subscriptions and closes the NATS connection.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for name, sub := range c.subs {
		if err := sub.Drain(); err != nil {
			log.Printf("[nats] drain %s: %v", name, err)
		}
	}
	c.subs = make(map[string]*nats.Subscription)

	if err := c.conn.Drain(); err != nil {
		log.Printf("[nats] connection drain: %v", err)
	}

	log.Printf("[nats] client closed")
}
