package client

import (
	"encoding/json"
	"log"

	"github.com/connect/chat-app/internal/chat"
	"github.com/connect/chat-app/internal/protocol"
)

// RegisterListeners wires the inbound server events to their store mutations.
// It runs exactly once per successful connection, against the store handle it
// is given — there is no ambient store. Payloads are decoded and validated
// here, at the boundary: a malformed payload is logged and dropped, never
// dispatched.
func RegisterListeners(c *Client, store *chat.State) {
	c.On(protocol.EventMessageNew, func(raw json.RawMessage) {
		var msg chat.Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			logDrop(protocol.EventMessageNew, err)
			return
		}
		if err := protocol.ValidateMessage(msg); err != nil {
			logDrop(protocol.EventMessageNew, err)
			return
		}
		store.AddMessage(msg)
	})

	c.On(protocol.EventMessageDeleted, func(raw json.RawMessage) {
		var p protocol.DeletedPayload
		if err := decode(protocol.EventMessageDeleted, raw, &p); err != nil {
			return
		}
		store.MarkDeleted(p.MessageID)
	})

	c.On(protocol.EventMessageReaction, func(raw json.RawMessage) {
		var p protocol.ReactionPayload
		if err := decode(protocol.EventMessageReaction, raw, &p); err != nil {
			return
		}
		for _, r := range p.Reactions {
			store.UpsertReaction(p.MessageID, r.Emoji, r.Users)
		}
	})

	c.On(protocol.EventTypingStart, func(raw json.RawMessage) {
		var p protocol.TypingPayload
		if err := decode(protocol.EventTypingStart, raw, &p); err != nil {
			return
		}
		store.TypingStarted(p.ChatRoomID, p.UserID)
	})

	c.On(protocol.EventTypingStop, func(raw json.RawMessage) {
		var p protocol.TypingPayload
		if err := decode(protocol.EventTypingStop, raw, &p); err != nil {
			return
		}
		store.TypingStopped(p.ChatRoomID, p.UserID)
	})

	c.On(protocol.EventMessageRead, func(raw json.RawMessage) {
		var p protocol.ReadPayload
		if err := decode(protocol.EventMessageRead, raw, &p); err != nil {
			return
		}
		store.MarkRead(p.ChatRoomID, p.UserID, p.MessageID)
	})

	c.On(protocol.EventUserOnline, func(raw json.RawMessage) {
		var p protocol.UserPayload
		if err := decode(protocol.EventUserOnline, raw, &p); err != nil {
			return
		}
		store.UserOnline(p.UserID)
	})

	c.On(protocol.EventUserOffline, func(raw json.RawMessage) {
		var p protocol.UserPayload
		if err := decode(protocol.EventUserOffline, raw, &p); err != nil {
			return
		}
		store.UserOffline(p.UserID)
	})
}

type validator interface {
	Validate() error
}

func decode(event string, raw json.RawMessage, dst validator) error {
	if err := json.Unmarshal(raw, dst); err != nil {
		logDrop(event, err)
		return err
	}
	if err := dst.Validate(); err != nil {
		logDrop(event, err)
		return err
	}
	return nil
}

func logDrop(event string, err error) {
	log.Printf("[client] dropping %s event: %v", event, err)
}
