package client

import "github.com/connect/chat-app/internal/protocol"

// Outbound emitters: each one is a pure translation from a local intent to a
// single named wire event. No emitter mutates the store — the only path by
// which the store changes in response to a chat action is the round trip
// through the server and back through the listener registry.

// JoinRoom subscribes the connection to a room's live events.
func (c *Client) JoinRoom(roomID string) error {
	return c.Emit(protocol.EventChatJoin, protocol.RoomPayload{ChatRoomID: roomID})
}

// LeaveRoom unsubscribes the connection from a room's live events.
func (c *Client) LeaveRoom(roomID string) error {
	return c.Emit(protocol.EventChatLeave, protocol.RoomPayload{ChatRoomID: roomID})
}

// SendMessage sends a message into a room. The payload's Type selects which
// content field is populated; ReplyTo optionally references another message.
func (c *Client) SendMessage(p protocol.SendMessagePayload) error {
	if err := p.Validate(); err != nil {
		return err
	}
	return c.Emit(protocol.EventMessageSend, p)
}

// DeleteMessage requests a soft delete of a message.
func (c *Client) DeleteMessage(roomID, messageID string) error {
	return c.Emit(protocol.EventMessageDelete, protocol.MessagePayload{
		ChatRoomID: roomID,
		MessageID:  messageID,
	})
}

// React applies (or moves) the user's emoji reaction on a message.
func (c *Client) React(roomID, messageID, emoji string) error {
	return c.Emit(protocol.EventMessageReact, protocol.ReactPayload{
		ChatRoomID: roomID,
		MessageID:  messageID,
		Emoji:      emoji,
	})
}

// MarkRead advances the user's read marker in a room to the given message.
func (c *Client) MarkRead(roomID, messageID string) error {
	return c.Emit(protocol.EventMessageRead, protocol.MessagePayload{
		ChatRoomID: roomID,
		MessageID:  messageID,
	})
}

// TypingStart announces that the user started typing in a room.
func (c *Client) TypingStart(roomID string) error {
	return c.Emit(protocol.EventTypingStart, protocol.RoomPayload{ChatRoomID: roomID})
}

// TypingStop announces that the user stopped typing in a room.
func (c *Client) TypingStop(roomID string) error {
	return c.Emit(protocol.EventTypingStop, protocol.RoomPayload{ChatRoomID: roomID})
}
