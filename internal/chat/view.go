package chat

import "time"

// Preview labels for the room list.
const (
	previewNoMessages = "No messages yet"
	previewPhoto      = "\U0001F4F7 Photo"
	previewVoice      = "\U0001F3A4 Voice message"
	previewFallback   = "New message"

	previewCheckLen = 40
	previewCutLen   = 45
)

// RoomTitle derives the display title for a room: group rooms use their own
// name, one-to-one rooms the other member's name.
func RoomTitle(room Room, selfID string) string {
	if room.IsGroup() {
		return room.Name
	}
	if other := room.OtherMember(selfID); other != nil {
		return other.Name
	}
	return "Unknown user"
}

// RoomAvatarURL derives the avatar URL for a room: the room image for groups,
// the other member's profile picture for one-to-one rooms.
func RoomAvatarURL(room Room, selfID string) string {
	if room.IsGroup() {
		if room.Image != nil {
			return room.Image.URL
		}
		return ""
	}
	other := room.OtherMember(selfID)
	if other != nil && other.ProfilePicture != nil {
		return other.ProfilePicture.URL
	}
	return ""
}

// Preview renders the room-list preview from the denormalized last-message
// pointer. Text messages past 40 runes are cut at 45 runes with an ellipsis;
// non-text messages get a fixed type label.
func Preview(room Room) string {
	last := room.LastMessage
	if last == nil {
		return previewNoMessages
	}
	switch last.Type {
	case MessageText:
		text := []rune(last.Content)
		if len(text) > previewCheckLen {
			if len(text) > previewCutLen {
				text = text[:previewCutLen]
			}
			return string(text) + "..."
		}
		return last.Content
	case MessageImage:
		return previewPhoto
	case MessageAudio:
		return previewVoice
	}
	return previewFallback
}

// DateLabel renders a calendar-day label relative to now: "Today",
// "Yesterday", or the date. Used for the message-log date dividers: a divider
// is shown before the first message whose label differs from the previous
// message's.
func DateLabel(t, now time.Time) string {
	if sameDay(t, now) {
		return "Today"
	}
	if sameDay(t, now.AddDate(0, 0, -1)) {
		return "Yesterday"
	}
	return t.Format("02 Jan 2006")
}

// TimeLabel renders the room-list timestamp: "Today · 15:04",
// "Yesterday · 15:04", or "02 Jan 2006 · 15:04".
func TimeLabel(t, now time.Time) string {
	return DateLabel(t, now) + " · " + t.Format("15:04")
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// NormalizeReactions resolves the one-user-one-emoji display rule: if selfID
// appears in more than one reaction bucket (stale or duplicate wire events),
// the last-processed bucket wins and the user is stripped from all others.
// Buckets left empty are dropped. The input is not modified; this is a
// render-time normalization, not a store mutation.
func NormalizeReactions(reactions []Reaction, selfID string) []Reaction {
	myEmoji := ""
	for _, r := range reactions {
		for _, u := range r.Users {
			if u == selfID {
				myEmoji = r.Emoji
			}
		}
	}

	out := make([]Reaction, 0, len(reactions))
	for _, r := range reactions {
		users := r.Users
		if myEmoji != "" && r.Emoji != myEmoji {
			filtered := make([]string, 0, len(users))
			for _, u := range users {
				if u != selfID {
					filtered = append(filtered, u)
				}
			}
			users = filtered
		}
		if len(users) == 0 {
			continue
		}
		out = append(out, Reaction{Emoji: r.Emoji, Users: users})
	}
	return out
}

// CanDelete reports whether the user may delete the message: senders may
// delete their own messages, and group admins may delete any message in
// their group.
func CanDelete(msg Message, room Room, selfID string) bool {
	if msg.Sender.ID == selfID {
		return true
	}
	return room.IsGroup() && room.IsAdmin(selfID)
}
