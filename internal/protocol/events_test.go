package protocol

import (
	"strings"
	"testing"

	"github.com/connect/chat-app/internal/chat"
)

func TestNewEvent_RoundTrip(t *testing.T) {
	data, err := NewEvent(EventChatJoin, RoomPayload{ChatRoomID: "r1"})
	if err != nil {
		t.Fatalf("NewEvent: %v", err)
	}

	event, payload, err := ParseClientEvent(data)
	if err != nil {
		t.Fatalf("ParseClientEvent: %v", err)
	}
	if event != EventChatJoin {
		t.Errorf("event = %q, want %q", event, EventChatJoin)
	}
	p, ok := payload.(RoomPayload)
	if !ok || p.ChatRoomID != "r1" {
		t.Errorf("payload = %#v, want RoomPayload{r1}", payload)
	}
}

func TestParseClientEvent_Errors(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr string
	}{
		{"not json", "nope", "envelope"},
		{"missing event", `{"data":{}}`, "event"},
		{"unknown event", `{"event":"chat:unknown","data":{}}`, "unknown client event"},
		{"join without room", `{"event":"chat:join","data":{}}`, "chatRoomId"},
		{"send without type", `{"event":"message:send","data":{"chatRoomId":"r1"}}`, "unknown message type"},
		{"text without content", `{"event":"message:send","data":{"chatRoomId":"r1","type":"text"}}`, "without content"},
		{"react without emoji", `{"event":"message:react","data":{"chatRoomId":"r1","messageId":"m1"}}`, "emoji"},
		{"delete without message", `{"event":"message:delete","data":{"chatRoomId":"r1"}}`, "messageId"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := ParseClientEvent([]byte(tt.data))
			if err == nil {
				t.Fatalf("ParseClientEvent(%q) succeeded, want error", tt.data)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want substring %q", err, tt.wantErr)
			}
		})
	}
}

func TestParseClientEvent_ValidPayloads(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string
	}{
		{"join", `{"event":"chat:join","data":{"chatRoomId":"r1"}}`, EventChatJoin},
		{"leave", `{"event":"chat:leave","data":{"chatRoomId":"r1"}}`, EventChatLeave},
		{"typing start", `{"event":"typing:start","data":{"chatRoomId":"r1"}}`, EventTypingStart},
		{"text send", `{"event":"message:send","data":{"chatRoomId":"r1","type":"text","content":"hi"}}`, EventMessageSend},
		{"image send", `{"event":"message:send","data":{"chatRoomId":"r1","type":"image","image":{"url":"http://x/y.png"}}}`, EventMessageSend},
		{"audio send", `{"event":"message:send","data":{"chatRoomId":"r1","type":"audio","audio":{"url":"http://x/y.ogg","duration":3.5}}}`, EventMessageSend},
		{"react", `{"event":"message:react","data":{"chatRoomId":"r1","messageId":"m1","emoji":"👍"}}`, EventMessageReact},
		{"read", `{"event":"message:read","data":{"chatRoomId":"r1","messageId":"m1"}}`, EventMessageRead},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event, payload, err := ParseClientEvent([]byte(tt.data))
			if err != nil {
				t.Fatalf("ParseClientEvent: %v", err)
			}
			if event != tt.want {
				t.Errorf("event = %q, want %q", event, tt.want)
			}
			if payload == nil {
				t.Error("payload is nil")
			}
		})
	}
}

func TestParseServerEvent_MessageNew(t *testing.T) {
	data := []byte(`{"event":"message:new","data":{
		"_id":"m1","chatRoom":"r1",
		"sender":{"_id":"u1","name":"Alice"},
		"type":"text","content":"hello",
		"createdAt":"2026-03-10T12:00:00Z"}}`)

	event, payload, err := ParseServerEvent(data)
	if err != nil {
		t.Fatalf("ParseServerEvent: %v", err)
	}
	if event != EventMessageNew {
		t.Errorf("event = %q, want %q", event, EventMessageNew)
	}
	msg, ok := payload.(chat.Message)
	if !ok {
		t.Fatalf("payload type = %T, want chat.Message", payload)
	}
	if msg.ID != "m1" || msg.ChatRoom != "r1" || msg.Sender.ID != "u1" || msg.Content != "hello" {
		t.Errorf("message = %+v", msg)
	}
}

func TestParseServerEvent_MessageNewMissingFields(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"no id", `{"event":"message:new","data":{"chatRoom":"r1","sender":{"_id":"u1"}}}`},
		{"no room", `{"event":"message:new","data":{"_id":"m1","sender":{"_id":"u1"}}}`},
		{"no sender", `{"event":"message:new","data":{"_id":"m1","chatRoom":"r1"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := ParseServerEvent([]byte(tt.data)); err == nil {
				t.Errorf("ParseServerEvent(%q) succeeded, want error", tt.data)
			}
		})
	}
}

func TestParseServerEvent_Reaction(t *testing.T) {
	data := []byte(`{"event":"message:reaction","data":{
		"messageId":"m1",
		"reactions":[{"emoji":"👍","users":["u1","u2"]}]}}`)

	event, payload, err := ParseServerEvent(data)
	if err != nil {
		t.Fatalf("ParseServerEvent: %v", err)
	}
	if event != EventMessageReaction {
		t.Errorf("event = %q", event)
	}
	p := payload.(ReactionPayload)
	if p.MessageID != "m1" || len(p.Reactions) != 1 || len(p.Reactions[0].Users) != 2 {
		t.Errorf("payload = %+v", p)
	}
}

func TestParseServerEvent_TypingAndPresence(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string
	}{
		{"typing start", `{"event":"typing:start","data":{"chatRoomId":"r1","userId":"u1"}}`, EventTypingStart},
		{"typing stop", `{"event":"typing:stop","data":{"chatRoomId":"r1","userId":"u1"}}`, EventTypingStop},
		{"online", `{"event":"user:online","data":{"userId":"u1"}}`, EventUserOnline},
		{"offline", `{"event":"user:offline","data":{"userId":"u1"}}`, EventUserOffline},
		{"read", `{"event":"message:read","data":{"chatRoomId":"r1","userId":"u1","messageId":"m1"}}`, EventMessageRead},
		{"deleted", `{"event":"message:deleted","data":{"messageId":"m1"}}`, EventMessageDeleted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event, payload, err := ParseServerEvent([]byte(tt.data))
			if err != nil {
				t.Fatalf("ParseServerEvent: %v", err)
			}
			if event != tt.want {
				t.Errorf("event = %q, want %q", event, tt.want)
			}
			if payload == nil {
				t.Error("payload is nil")
			}
		})
	}
}
