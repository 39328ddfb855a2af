// Package chat holds the Connect chat data model and the client-side state
// store. The store is the single source of truth for the room list, the
// selected conversation's message log, typing/online presence, and
// reaction/read-receipt aggregates; everything that renders chat reads from it.
package chat

import "time"

// Room type discriminants.
const (
	RoomOneToOne = "one_to_one"
	RoomGroup    = "group"
)

// Message content-type discriminants. Exactly one of the corresponding
// payload fields (Content, Image, Audio) is populated per message.
const (
	MessageText  = "text"
	MessageImage = "image"
	MessageAudio = "audio"
)

// DeletedPlaceholder replaces a message's content once it is soft-deleted.
const DeletedPlaceholder = "Message deleted"

// User is a chat participant reference as carried on rooms and messages.
type User struct {
	ID             string    `json:"_id"`
	Name           string    `json:"name"`
	Email          string    `json:"email,omitempty"`
	ProfilePicture *ImageRef `json:"profilePicture,omitempty"`
}

// ImageRef points at an uploaded image (room avatar, profile picture,
// image message payload).
type ImageRef struct {
	URL string `json:"url,omitempty"`
	Key string `json:"key,omitempty"`
}

// AudioRef is the payload of an audio message.
type AudioRef struct {
	URL      string  `json:"url"`
	Duration float64 `json:"duration,omitempty"`
}

// Reaction is one per-emoji bucket: the emoji label and the set of user IDs
// who applied it. A user may appear in several buckets on the wire; the
// display layer resolves that to one emoji per user (see NormalizeReactions).
type Reaction struct {
	Emoji string   `json:"emoji"`
	Users []string `json:"users"`
}

// ReadMarker records the last message a user is known to have read in a room.
// One marker per (room, user) pair.
type ReadMarker struct {
	User    string    `json:"user"`
	Message string    `json:"message"`
	ReadAt  time.Time `json:"readAt"`
}

// Message is a single chat message. Deleted messages stay in the log with
// IsDeleted set and their content replaced by DeletedPlaceholder.
type Message struct {
	ID        string     `json:"_id"`
	ChatRoom  string     `json:"chatRoom"`
	Sender    User       `json:"sender"`
	Type      string     `json:"type"`
	Content   string     `json:"content,omitempty"`
	Image     *ImageRef  `json:"image,omitempty"`
	Audio     *AudioRef  `json:"audio,omitempty"`
	ReplyTo   *Message   `json:"replyTo,omitempty"`
	Reactions []Reaction `json:"reactions,omitempty"`
	IsDeleted bool       `json:"isDeleted"`
	CreatedAt time.Time  `json:"createdAt"`
}

// Room is a conversation container, either one-to-one or group. Group rooms
// carry their own metadata; one-to-one rooms derive title and avatar from the
// other member at render time.
type Room struct {
	ID          string       `json:"_id"`
	Type        string       `json:"type"`
	Members     []User       `json:"members"`
	Owner       *User        `json:"owner,omitempty"`
	Admins      []User       `json:"admins,omitempty"`
	Name        string       `json:"name,omitempty"`
	Description string       `json:"description,omitempty"`
	Image       *ImageRef    `json:"image,omitempty"`
	IsPublic    bool         `json:"isPublic,omitempty"`
	LastMessage *Message     `json:"lastMessage,omitempty"`
	LastRead    []ReadMarker `json:"lastRead,omitempty"`
}

// IsGroup reports whether the room is a group conversation.
func (r *Room) IsGroup() bool {
	return r.Type == RoomGroup
}

// HasMember reports whether the given user is a member of the room.
func (r *Room) HasMember(userID string) bool {
	for _, m := range r.Members {
		if m.ID == userID {
			return true
		}
	}
	return false
}

// IsAdmin reports whether the given user is in the room's admin subset.
// The admin set is always a subset of the member set.
func (r *Room) IsAdmin(userID string) bool {
	for _, a := range r.Admins {
		if a.ID == userID {
			return true
		}
	}
	return false
}

// OtherMember returns the member that is not selfID. It is how one-to-one
// rooms derive their display identity. Returns nil for group rooms and for
// rooms where no other member exists.
func (r *Room) OtherMember(selfID string) *User {
	if r.IsGroup() {
		return nil
	}
	for i := range r.Members {
		if r.Members[i].ID != selfID {
			return &r.Members[i]
		}
	}
	return nil
}
