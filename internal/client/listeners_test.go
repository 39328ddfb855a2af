package client

import (
	"net"
	"testing"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/connect/chat-app/internal/chat"
	"github.com/connect/chat-app/internal/protocol"
)

// pipeClient returns a Client running its read loop over an in-memory pipe,
// plus the server end of the pipe for pushing frames at it.
func pipeClient(t *testing.T) (*Client, net.Conn) {
	t.Helper()
	serverEnd, clientEnd := net.Pipe()
	c := newClient(clientEnd)
	go c.readLoop()
	t.Cleanup(func() {
		c.Close()
		serverEnd.Close()
	})
	return c, serverEnd
}

// push writes one server event frame and waits for the store change it
// should trigger.
func push(t *testing.T, serverEnd net.Conn, changed <-chan struct{}, event string, payload interface{}) {
	t.Helper()
	data, err := protocol.NewEvent(event, payload)
	if err != nil {
		t.Fatalf("NewEvent(%s): %v", event, err)
	}
	if err := wsutil.WriteServerMessage(serverEnd, ws.OpText, data); err != nil {
		t.Fatalf("write %s: %v", event, err)
	}
	select {
	case <-changed:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s to reach the store", event)
	}
}

func watch(store *chat.State) <-chan struct{} {
	changed := make(chan struct{}, 32)
	store.SetOnChange(func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	return changed
}

func TestListeners_MessageNewAppendsAndReorders(t *testing.T) {
	store := chat.NewState()
	store.SetRooms([]chat.Room{
		{ID: "r1", Type: chat.RoomGroup, Name: "A"},
		{ID: "r2", Type: chat.RoomGroup, Name: "B"},
	})
	store.SelectRoom(chat.Room{ID: "r2", Type: chat.RoomGroup, Name: "B"})

	c, serverEnd := pipeClient(t)
	RegisterListeners(c, store)
	changed := watch(store)

	msg := chat.Message{
		ID:        "m1",
		ChatRoom:  "r2",
		Sender:    chat.User{ID: "u1", Name: "Alice"},
		Type:      chat.MessageText,
		Content:   "hello",
		CreatedAt: time.Now(),
	}
	push(t, serverEnd, changed, protocol.EventMessageNew, msg)

	if got := store.Messages(); len(got) != 1 || got[0].ID != "m1" {
		t.Fatalf("Messages() = %v, want [m1]", got)
	}
	rooms := store.Rooms()
	if rooms[0].ID != "r2" {
		t.Errorf("room not moved to front: %q", rooms[0].ID)
	}
	if rooms[0].LastMessage == nil || rooms[0].LastMessage.ID != "m1" {
		t.Errorf("preview not updated: %+v", rooms[0].LastMessage)
	}
}

func TestListeners_MessageNewOtherRoomNotAppended(t *testing.T) {
	store := chat.NewState()
	store.SetRooms([]chat.Room{
		{ID: "r1", Type: chat.RoomGroup},
		{ID: "r2", Type: chat.RoomGroup},
	})
	store.SelectRoom(chat.Room{ID: "r1", Type: chat.RoomGroup})

	c, serverEnd := pipeClient(t)
	RegisterListeners(c, store)
	changed := watch(store)

	push(t, serverEnd, changed, protocol.EventMessageNew, chat.Message{
		ID: "m1", ChatRoom: "r2",
		Sender: chat.User{ID: "u1"}, Type: chat.MessageText, Content: "x",
	})

	if got := store.Messages(); len(got) != 0 {
		t.Fatalf("other room's message appended to selected log: %v", got)
	}
	if rooms := store.Rooms(); rooms[0].ID != "r2" {
		t.Errorf("other room should still move to front, got %q", rooms[0].ID)
	}
}

func TestListeners_DeletedAndReaction(t *testing.T) {
	store := chat.NewState()
	store.SelectRoom(chat.Room{ID: "r1", Type: chat.RoomGroup})
	store.SetMessages([]chat.Message{
		{ID: "m1", ChatRoom: "r1", Sender: chat.User{ID: "u1"}, Type: chat.MessageText, Content: "hi"},
	})

	c, serverEnd := pipeClient(t)
	RegisterListeners(c, store)
	changed := watch(store)

	push(t, serverEnd, changed, protocol.EventMessageReaction, protocol.ReactionPayload{
		MessageID: "m1",
		Reactions: []chat.Reaction{{Emoji: "👍", Users: []string{"u2"}}},
	})
	push(t, serverEnd, changed, protocol.EventMessageDeleted, protocol.DeletedPayload{MessageID: "m1"})

	got := store.Messages()[0]
	if !got.IsDeleted || got.Content != chat.DeletedPlaceholder {
		t.Errorf("message not tombstoned: %+v", got)
	}
	if len(got.Reactions) != 1 || got.Reactions[0].Emoji != "👍" {
		t.Errorf("reaction not applied: %+v", got.Reactions)
	}
}

func TestListeners_TypingScopedToSelectedRoom(t *testing.T) {
	store := chat.NewState()
	store.SelectRoom(chat.Room{ID: "r1", Type: chat.RoomGroup})

	c, serverEnd := pipeClient(t)
	RegisterListeners(c, store)
	changed := watch(store)

	push(t, serverEnd, changed, protocol.EventTypingStart, protocol.TypingPayload{ChatRoomID: "r1", UserID: "u1"})
	push(t, serverEnd, changed, protocol.EventTypingStart, protocol.TypingPayload{ChatRoomID: "r2", UserID: "u2"})

	if got := store.TypingUsers(); len(got) != 1 || got[0] != "u1" {
		t.Fatalf("TypingUsers() = %v, want [u1]", got)
	}

	push(t, serverEnd, changed, protocol.EventTypingStop, protocol.TypingPayload{ChatRoomID: "r1", UserID: "u1"})
	if got := store.TypingUsers(); len(got) != 0 {
		t.Fatalf("TypingUsers() = %v, want empty", got)
	}
}

func TestListeners_PresenceAndRead(t *testing.T) {
	store := chat.NewState()
	store.SetRooms([]chat.Room{{ID: "r1", Type: chat.RoomGroup}})

	c, serverEnd := pipeClient(t)
	RegisterListeners(c, store)
	changed := watch(store)

	push(t, serverEnd, changed, protocol.EventUserOnline, protocol.UserPayload{UserID: "u1"})
	if !store.IsOnline("u1") {
		t.Error("u1 not marked online")
	}

	push(t, serverEnd, changed, protocol.EventUserOffline, protocol.UserPayload{UserID: "u1"})
	if store.IsOnline("u1") {
		t.Error("u1 still online")
	}

	push(t, serverEnd, changed, protocol.EventMessageRead, protocol.ReadPayload{
		ChatRoomID: "r1", UserID: "u1", MessageID: "m1",
	})
	room := store.Rooms()[0]
	if len(room.LastRead) != 1 || room.LastRead[0].Message != "m1" {
		t.Errorf("read marker not applied: %+v", room.LastRead)
	}
}

func TestListeners_MalformedPayloadDropped(t *testing.T) {
	store := chat.NewState()
	store.SelectRoom(chat.Room{ID: "r1", Type: chat.RoomGroup})

	c, serverEnd := pipeClient(t)
	RegisterListeners(c, store)
	changed := watch(store)

	// Message without an id fails validation and must not reach the store.
	data, _ := protocol.NewEvent(protocol.EventMessageNew, map[string]string{"chatRoom": "r1"})
	if err := wsutil.WriteServerMessage(serverEnd, ws.OpText, data); err != nil {
		t.Fatalf("write: %v", err)
	}

	// Follow with a valid typing event as a fence.
	push(t, serverEnd, changed, protocol.EventTypingStart, protocol.TypingPayload{ChatRoomID: "r1", UserID: "u1"})

	if got := store.Messages(); len(got) != 0 {
		t.Fatalf("invalid message reached the store: %v", got)
	}
}
