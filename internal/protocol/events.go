// Package protocol defines the wire events exchanged over the persistent chat
// connection. Every event is a JSON envelope with an event-name discriminator
// and a typed payload; payloads are decoded and validated at the boundary
// before anything is dispatched into the state store.
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/connect/chat-app/internal/chat"
)

// ---------------------------------------------------------------------------
// Event name constants
// ---------------------------------------------------------------------------

// Client -> Server events.
const (
	EventChatJoin      = "chat:join"
	EventChatLeave     = "chat:leave"
	EventMessageSend   = "message:send"
	EventMessageDelete = "message:delete"
	EventMessageReact  = "message:react"
	EventMessageRead   = "message:read"
	EventTypingStart   = "typing:start"
	EventTypingStop    = "typing:stop"
)

// Server -> Client events. Typing and read events share names with their
// client-side counterparts but carry server payloads (with the acting user).
const (
	EventMessageNew      = "message:new"
	EventMessageDeleted  = "message:deleted"
	EventMessageReaction = "message:reaction"
	EventUserOnline      = "user:online"
	EventUserOffline     = "user:offline"
	EventError           = "error"
)

// ---------------------------------------------------------------------------
// Envelope
// ---------------------------------------------------------------------------

// Envelope is the outer frame of every wire event: the event name and the raw
// payload, decoded later into the event's concrete struct.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewEvent encodes an event envelope with the given name and payload.
func NewEvent(event string, payload interface{}) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal %q payload: %w", event, err)
	}
	out, err := json.Marshal(Envelope{Event: event, Data: data})
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal envelope: %w", err)
	}
	return out, nil
}

func parseEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return env, fmt.Errorf("protocol: failed to parse envelope: %w", err)
	}
	if env.Event == "" {
		return env, fmt.Errorf("protocol: missing or empty \"event\" field")
	}
	return env, nil
}

// ---------------------------------------------------------------------------
// Client -> Server payloads
// ---------------------------------------------------------------------------

// RoomPayload carries a bare room reference (chat:join, chat:leave,
// typing:start, typing:stop as sent by the client).
type RoomPayload struct {
	ChatRoomID string `json:"chatRoomId"`
}

// Validate checks required fields.
func (p RoomPayload) Validate() error {
	if p.ChatRoomID == "" {
		return fmt.Errorf("protocol: missing chatRoomId")
	}
	return nil
}

// SendMessagePayload is the message:send payload. Type selects which payload
// field must be populated; ReplyTo optionally references another message.
type SendMessagePayload struct {
	ChatRoomID string         `json:"chatRoomId"`
	Type       string         `json:"type"`
	Content    string         `json:"content,omitempty"`
	Image      *chat.ImageRef `json:"image,omitempty"`
	Audio      *chat.AudioRef `json:"audio,omitempty"`
	ReplyTo    string         `json:"replyTo,omitempty"`
}

// Validate checks the type discriminant and that the type-appropriate payload
// field is populated.
func (p SendMessagePayload) Validate() error {
	if p.ChatRoomID == "" {
		return fmt.Errorf("protocol: missing chatRoomId")
	}
	switch p.Type {
	case chat.MessageText:
		if p.Content == "" {
			return fmt.Errorf("protocol: text message without content")
		}
	case chat.MessageImage:
		if p.Image == nil || p.Image.URL == "" {
			return fmt.Errorf("protocol: image message without image url")
		}
	case chat.MessageAudio:
		if p.Audio == nil || p.Audio.URL == "" {
			return fmt.Errorf("protocol: audio message without audio url")
		}
	default:
		return fmt.Errorf("protocol: unknown message type %q", p.Type)
	}
	return nil
}

// MessagePayload references a message within a room (message:delete, and
// message:read as sent by the client).
type MessagePayload struct {
	ChatRoomID string `json:"chatRoomId"`
	MessageID  string `json:"messageId"`
}

// Validate checks required fields.
func (p MessagePayload) Validate() error {
	if p.ChatRoomID == "" {
		return fmt.Errorf("protocol: missing chatRoomId")
	}
	if p.MessageID == "" {
		return fmt.Errorf("protocol: missing messageId")
	}
	return nil
}

// ReactPayload is the message:react payload.
type ReactPayload struct {
	ChatRoomID string `json:"chatRoomId"`
	MessageID  string `json:"messageId"`
	Emoji      string `json:"emoji"`
}

// Validate checks required fields.
func (p ReactPayload) Validate() error {
	if p.ChatRoomID == "" {
		return fmt.Errorf("protocol: missing chatRoomId")
	}
	if p.MessageID == "" {
		return fmt.Errorf("protocol: missing messageId")
	}
	if p.Emoji == "" {
		return fmt.Errorf("protocol: missing emoji")
	}
	return nil
}

// ---------------------------------------------------------------------------
// Server -> Client payloads
// ---------------------------------------------------------------------------

// ValidateMessage checks the fields a message:new payload must carry.
func ValidateMessage(m chat.Message) error {
	if m.ID == "" {
		return fmt.Errorf("protocol: message without _id")
	}
	if m.ChatRoom == "" {
		return fmt.Errorf("protocol: message without chatRoom")
	}
	if m.Sender.ID == "" {
		return fmt.Errorf("protocol: message without sender")
	}
	return nil
}

// DeletedPayload is the message:deleted payload.
type DeletedPayload struct {
	MessageID string `json:"messageId"`
}

// Validate checks required fields.
func (p DeletedPayload) Validate() error {
	if p.MessageID == "" {
		return fmt.Errorf("protocol: missing messageId")
	}
	return nil
}

// ReactionPayload is the message:reaction payload: the full per-emoji user
// sets for one message. Each pair upserts into the message's reaction set by
// emoji key.
type ReactionPayload struct {
	MessageID string          `json:"messageId"`
	Reactions []chat.Reaction `json:"reactions"`
}

// Validate checks required fields.
func (p ReactionPayload) Validate() error {
	if p.MessageID == "" {
		return fmt.Errorf("protocol: missing messageId")
	}
	for _, r := range p.Reactions {
		if r.Emoji == "" {
			return fmt.Errorf("protocol: reaction bucket without emoji")
		}
	}
	return nil
}

// TypingPayload is the server-side typing:start / typing:stop payload.
type TypingPayload struct {
	ChatRoomID string `json:"chatRoomId"`
	UserID     string `json:"userId"`
}

// Validate checks required fields.
func (p TypingPayload) Validate() error {
	if p.ChatRoomID == "" {
		return fmt.Errorf("protocol: missing chatRoomId")
	}
	if p.UserID == "" {
		return fmt.Errorf("protocol: missing userId")
	}
	return nil
}

// ReadPayload is the server-side message:read payload: a user's read marker
// advanced to a message in a room.
type ReadPayload struct {
	ChatRoomID string `json:"chatRoomId"`
	UserID     string `json:"userId"`
	MessageID  string `json:"messageId"`
}

// Validate checks required fields.
func (p ReadPayload) Validate() error {
	if p.ChatRoomID == "" {
		return fmt.Errorf("protocol: missing chatRoomId")
	}
	if p.UserID == "" {
		return fmt.Errorf("protocol: missing userId")
	}
	if p.MessageID == "" {
		return fmt.Errorf("protocol: missing messageId")
	}
	return nil
}

// UserPayload is the user:online / user:offline payload.
type UserPayload struct {
	UserID string `json:"userId"`
}

// Validate checks required fields.
func (p UserPayload) Validate() error {
	if p.UserID == "" {
		return fmt.Errorf("protocol: missing userId")
	}
	return nil
}

// ErrorPayload is the server's structured error event.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ---------------------------------------------------------------------------
// Boundary parsing
// ---------------------------------------------------------------------------

// ParseClientEvent parses raw bytes from a client connection into a typed,
// validated payload. It returns the event name, the decoded struct, and any
// error for unknown events or malformed payloads.
func ParseClientEvent(data []byte) (string, interface{}, error) {
	env, err := parseEnvelope(data)
	if err != nil {
		return "", nil, err
	}

	var payload interface {
		Validate() error
	}

	switch env.Event {
	case EventChatJoin, EventChatLeave, EventTypingStart, EventTypingStop:
		var p RoomPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return env.Event, nil, decodeErr(env.Event, err)
		}
		payload = p
	case EventMessageSend:
		var p SendMessagePayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return env.Event, nil, decodeErr(env.Event, err)
		}
		payload = p
	case EventMessageDelete, EventMessageRead:
		var p MessagePayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return env.Event, nil, decodeErr(env.Event, err)
		}
		payload = p
	case EventMessageReact:
		var p ReactPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return env.Event, nil, decodeErr(env.Event, err)
		}
		payload = p
	default:
		return env.Event, nil, fmt.Errorf("protocol: unknown client event: %q", env.Event)
	}

	if err := payload.Validate(); err != nil {
		return env.Event, nil, err
	}
	return env.Event, payload, nil
}

// ParseServerEvent parses raw bytes from the server into a typed, validated
// payload. message:new decodes into chat.Message directly.
func ParseServerEvent(data []byte) (string, interface{}, error) {
	env, err := parseEnvelope(data)
	if err != nil {
		return "", nil, err
	}

	switch env.Event {
	case EventMessageNew:
		var m chat.Message
		if err := json.Unmarshal(env.Data, &m); err != nil {
			return env.Event, nil, decodeErr(env.Event, err)
		}
		if err := ValidateMessage(m); err != nil {
			return env.Event, nil, err
		}
		return env.Event, m, nil
	case EventMessageDeleted:
		var p DeletedPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return env.Event, nil, decodeErr(env.Event, err)
		}
		return env.Event, p, p.Validate()
	case EventMessageReaction:
		var p ReactionPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return env.Event, nil, decodeErr(env.Event, err)
		}
		return env.Event, p, p.Validate()
	case EventTypingStart, EventTypingStop:
		var p TypingPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return env.Event, nil, decodeErr(env.Event, err)
		}
		return env.Event, p, p.Validate()
	case EventMessageRead:
		var p ReadPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return env.Event, nil, decodeErr(env.Event, err)
		}
		return env.Event, p, p.Validate()
	case EventUserOnline, EventUserOffline:
		var p UserPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return env.Event, nil, decodeErr(env.Event, err)
		}
		return env.Event, p, p.Validate()
	case EventError:
		var p ErrorPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return env.Event, nil, decodeErr(env.Event, err)
		}
		return env.Event, p, nil
	default:
		return env.Event, nil, fmt.Errorf("protocol: unknown server event: %q", env.Event)
	}
}

func decodeErr(event string, err error) error {
	return fmt.Errorf("protocol: failed to decode %q payload: %w", event, err)
}
