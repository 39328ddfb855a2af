package client

import (
	"net"
	"testing"

	"github.com/gobwas/ws/wsutil"

	"github.com/connect/chat-app/internal/chat"
	"github.com/connect/chat-app/internal/protocol"
)

// readClientEvent reads one frame from the server end and parses it as a
// client event.
func readClientEvent(t *testing.T, serverEnd net.Conn) (string, interface{}) {
	t.Helper()
	data, err := wsutil.ReadClientText(serverEnd)
	if err != nil {
		t.Fatalf("read client frame: %v", err)
	}
	event, payload, err := protocol.ParseClientEvent(data)
	if err != nil {
		t.Fatalf("parse client event: %v", err)
	}
	return event, payload
}

func TestEmitters_WireFormat(t *testing.T) {
	serverEnd, clientEnd := net.Pipe()
	defer serverEnd.Close()
	c := newClient(clientEnd)
	defer c.Close()

	tests := []struct {
		name  string
		emit  func() error
		event string
		check func(t *testing.T, payload interface{})
	}{
		{
			name:  "join",
			emit:  func() error { return c.JoinRoom("r1") },
			event: protocol.EventChatJoin,
			check: func(t *testing.T, payload interface{}) {
				if p := payload.(protocol.RoomPayload); p.ChatRoomID != "r1" {
					t.Errorf("payload = %+v", p)
				}
			},
		},
		{
			name:  "leave",
			emit:  func() error { return c.LeaveRoom("r1") },
			event: protocol.EventChatLeave,
			check: func(t *testing.T, payload interface{}) {
				if p := payload.(protocol.RoomPayload); p.ChatRoomID != "r1" {
					t.Errorf("payload = %+v", p)
				}
			},
		},
		{
			name: "send text",
			emit: func() error {
				return c.SendMessage(protocol.SendMessagePayload{
					ChatRoomID: "r1", Type: chat.MessageText, Content: "hi", ReplyTo: "m0",
				})
			},
			event: protocol.EventMessageSend,
			check: func(t *testing.T, payload interface{}) {
				p := payload.(protocol.SendMessagePayload)
				if p.ChatRoomID != "r1" || p.Content != "hi" || p.ReplyTo != "m0" {
					t.Errorf("payload = %+v", p)
				}
			},
		},
		{
			name:  "react",
			emit:  func() error { return c.React("r1", "m1", "👍") },
			event: protocol.EventMessageReact,
			check: func(t *testing.T, payload interface{}) {
				p := payload.(protocol.ReactPayload)
				if p.MessageID != "m1" || p.Emoji != "👍" {
					t.Errorf("payload = %+v", p)
				}
			},
		},
		{
			name:  "delete",
			emit:  func() error { return c.DeleteMessage("r1", "m1") },
			event: protocol.EventMessageDelete,
			check: func(t *testing.T, payload interface{}) {
				p := payload.(protocol.MessagePayload)
				if p.ChatRoomID != "r1" || p.MessageID != "m1" {
					t.Errorf("payload = %+v", p)
				}
			},
		},
		{
			name:  "read",
			emit:  func() error { return c.MarkRead("r1", "m1") },
			event: protocol.EventMessageRead,
			check: func(t *testing.T, payload interface{}) {
				p := payload.(protocol.MessagePayload)
				if p.MessageID != "m1" {
					t.Errorf("payload = %+v", p)
				}
			},
		},
		{
			name:  "typing start",
			emit:  func() error { return c.TypingStart("r1") },
			event: protocol.EventTypingStart,
			check: func(t *testing.T, payload interface{}) {},
		},
		{
			name:  "typing stop",
			emit:  func() error { return c.TypingStop("r1") },
			event: protocol.EventTypingStop,
			check: func(t *testing.T, payload interface{}) {},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errCh := make(chan error, 1)
			go func() { errCh <- tt.emit() }()

			event, payload := readClientEvent(t, serverEnd)
			if err := <-errCh; err != nil {
				t.Fatalf("emit: %v", err)
			}
			if event != tt.event {
				t.Fatalf("event = %q, want %q", event, tt.event)
			}
			tt.check(t, payload)
		})
	}
}

func TestSendMessage_RejectsInvalidPayload(t *testing.T) {
	_, clientEnd := net.Pipe()
	c := newClient(clientEnd)
	defer c.Close()

	err := c.SendMessage(protocol.SendMessagePayload{ChatRoomID: "r1", Type: chat.MessageText})
	if err == nil {
		t.Fatal("SendMessage accepted a text message without content")
	}
}
