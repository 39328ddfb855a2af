package chat

import (
	"strings"
	"testing"
	"time"
)

func TestNormalizeReactions_LastBucketWins(t *testing.T) {
	in := []Reaction{
		{Emoji: "👍", Users: []string{"me", "u2"}},
		{Emoji: "❤️", Users: []string{"me"}},
	}

	out := NormalizeReactions(in, "me")

	if len(out) != 2 {
		t.Fatalf("len = %d, want 2", len(out))
	}
	// "me" stripped from the earlier bucket; the later bucket keeps them.
	if out[0].Emoji != "👍" || len(out[0].Users) != 1 || out[0].Users[0] != "u2" {
		t.Errorf("bucket 0 = %+v, want 👍:[u2]", out[0])
	}
	if out[1].Emoji != "❤️" || len(out[1].Users) != 1 || out[1].Users[0] != "me" {
		t.Errorf("bucket 1 = %+v, want ❤️:[me]", out[1])
	}
}

func TestNormalizeReactions_DropsEmptyBuckets(t *testing.T) {
	in := []Reaction{
		{Emoji: "👍", Users: []string{"me"}},
		{Emoji: "❤️", Users: []string{"me"}},
	}

	out := NormalizeReactions(in, "me")

	if len(out) != 1 || out[0].Emoji != "❤️" {
		t.Fatalf("out = %+v, want only the ❤️ bucket", out)
	}
}

func TestNormalizeReactions_DoesNotMutateInput(t *testing.T) {
	in := []Reaction{
		{Emoji: "👍", Users: []string{"me", "u2"}},
		{Emoji: "❤️", Users: []string{"me"}},
	}

	_ = NormalizeReactions(in, "me")

	if len(in[0].Users) != 2 || in[0].Users[0] != "me" {
		t.Fatalf("input mutated: %+v", in[0])
	}
}

func TestNormalizeReactions_NoSelf(t *testing.T) {
	in := []Reaction{
		{Emoji: "👍", Users: []string{"u1"}},
		{Emoji: "❤️", Users: []string{"u2", "u3"}},
	}

	out := NormalizeReactions(in, "me")

	if len(out) != 2 || len(out[0].Users) != 1 || len(out[1].Users) != 2 {
		t.Fatalf("buckets changed without self present: %+v", out)
	}
}

func TestPreview(t *testing.T) {
	long := strings.Repeat("a", 50)

	tests := []struct {
		name string
		room Room
		want string
	}{
		{"no messages", Room{}, "No messages yet"},
		{"short text", Room{LastMessage: &Message{Type: MessageText, Content: "hello"}}, "hello"},
		{"exactly 40 runes", Room{LastMessage: &Message{Type: MessageText, Content: strings.Repeat("a", 40)}}, strings.Repeat("a", 40)},
		{"long text cut at 45", Room{LastMessage: &Message{Type: MessageText, Content: long}}, long[:45] + "..."},
		{"between 40 and 45", Room{LastMessage: &Message{Type: MessageText, Content: strings.Repeat("a", 43)}}, strings.Repeat("a", 43) + "..."},
		{"image", Room{LastMessage: &Message{Type: MessageImage}}, "\U0001F4F7 Photo"},
		{"audio", Room{LastMessage: &Message{Type: MessageAudio}}, "\U0001F3A4 Voice message"},
		{"unknown type", Room{LastMessage: &Message{Type: "sticker"}}, "New message"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Preview(tt.room); got != tt.want {
				t.Errorf("Preview() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPreview_MultibyteRunes(t *testing.T) {
	// 50 multibyte runes must be cut by rune count, not byte count.
	content := strings.Repeat("日", 50)
	room := Room{LastMessage: &Message{Type: MessageText, Content: content}}

	want := strings.Repeat("日", 45) + "..."
	if got := Preview(room); got != want {
		t.Errorf("Preview() = %q, want %q", got, want)
	}
}

func TestDateAndTimeLabels(t *testing.T) {
	now := time.Date(2026, 3, 10, 18, 30, 0, 0, time.UTC)

	tests := []struct {
		name string
		t    time.Time
		want string
	}{
		{"today", time.Date(2026, 3, 10, 9, 5, 0, 0, time.UTC), "Today · 09:05"},
		{"yesterday", time.Date(2026, 3, 9, 23, 59, 0, 0, time.UTC), "Yesterday · 23:59"},
		{"older", time.Date(2026, 1, 2, 8, 0, 0, 0, time.UTC), "02 Jan 2026 · 08:00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TimeLabel(tt.t, now); got != tt.want {
				t.Errorf("TimeLabel() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRoomTitle(t *testing.T) {
	alice := User{ID: "u1", Name: "Alice"}
	bob := User{ID: "u2", Name: "Bob"}

	tests := []struct {
		name   string
		room   Room
		selfID string
		want   string
	}{
		{"group uses its name", Room{Type: RoomGroup, Name: "Math Help"}, "u1", "Math Help"},
		{"one-to-one uses other member", Room{Type: RoomOneToOne, Members: []User{alice, bob}}, "u1", "Bob"},
		{"one-to-one other side", Room{Type: RoomOneToOne, Members: []User{alice, bob}}, "u2", "Alice"},
		{"no other member", Room{Type: RoomOneToOne, Members: []User{alice}}, "u1", "Unknown user"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RoomTitle(tt.room, tt.selfID); got != tt.want {
				t.Errorf("RoomTitle() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCanDelete(t *testing.T) {
	admin := User{ID: "admin"}
	group := Room{Type: RoomGroup, Admins: []User{admin}}
	direct := Room{Type: RoomOneToOne}
	msg := Message{Sender: User{ID: "sender"}}

	tests := []struct {
		name   string
		room   Room
		selfID string
		want   bool
	}{
		{"own message", direct, "sender", true},
		{"other's message one-to-one", direct, "other", false},
		{"group admin", group, "admin", true},
		{"group non-admin", group, "other", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanDelete(msg, tt.room, tt.selfID); got != tt.want {
				t.Errorf("CanDelete() = %v, want %v", got, tt.want)
			}
		})
	}
}
