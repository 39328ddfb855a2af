package chat

import (
	"sort"
	"sync"
	"time"
)

// State is the client-side chat store. All mutations are synchronous and
// atomic under a single mutex, so every inbound wire event applies exactly
// one logical mutation with no interleaving. Accessors return copies, never
// interior pointers.
//
// One State is created per process at connection-setup time and handed to the
// listener registry; there is no ambient/global instance.
type State struct {
	mu       sync.RWMutex
	rooms    []Room
	selected *Room // copy of the selected room, nil if none
	messages []Message
	typing   map[string]struct{}
	online   map[string]struct{}
	replyTo  *Message
	onChange func()
}

// NewState returns an empty chat state store.
func NewState() *State {
	return &State{
		typing: make(map[string]struct{}),
		online: make(map[string]struct{}),
	}
}

// SetOnChange registers a callback invoked after every mutation, outside the
// store lock. The UI uses it to re-render; nil disables notification.
func (s *State) SetOnChange(fn func()) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

// ---------------------------------------------------------------------------
// Rooms
// ---------------------------------------------------------------------------

// SetRooms replaces the room list. The caller supplies rooms already ordered
// by recency (the REST room list endpoint returns them that way).
func (s *State) SetRooms(rooms []Room) {
	s.mu.Lock()
	s.rooms = append([]Room(nil), rooms...)
	fn := s.onChange
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// UpdateRoom replaces the stored room with the same ID, keeping its position
// in the list. Unknown rooms are ignored. If the updated room is currently
// selected, the selection is refreshed too.
func (s *State) UpdateRoom(room Room) {
	s.mu.Lock()
	for i := range s.rooms {
		if s.rooms[i].ID == room.ID {
			s.rooms[i] = room
			break
		}
	}
	if s.selected != nil && s.selected.ID == room.ID {
		r := room
		s.selected = &r
	}
	fn := s.onChange
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// RemoveRoom drops a room from the list. If it was selected, the selection,
// message log, and typing set are cleared as well.
func (s *State) RemoveRoom(roomID string) {
	s.mu.Lock()
	kept := s.rooms[:0]
	for _, r := range s.rooms {
		if r.ID != roomID {
			kept = append(kept, r)
		}
	}
	s.rooms = kept
	if s.selected != nil && s.selected.ID == roomID {
		s.selected = nil
		s.messages = nil
		s.typing = make(map[string]struct{})
	}
	fn := s.onChange
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// SelectRoom makes the given room the active conversation. Switching rooms
// unconditionally clears the message log and the typing set so no stale state
// leaks across rooms.
func (s *State) SelectRoom(room Room) {
	s.mu.Lock()
	r := room
	s.selected = &r
	s.messages = nil
	s.typing = make(map[string]struct{})
	fn := s.onChange
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// Deselect clears the active conversation along with its log and typing set.
func (s *State) Deselect() {
	s.mu.Lock()
	s.selected = nil
	s.messages = nil
	s.typing = make(map[string]struct{})
	fn := s.onChange
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// Selected returns a copy of the selected room and whether one is selected.
func (s *State) Selected() (Room, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.selected == nil {
		return Room{}, false
	}
	return *s.selected, true
}

// Rooms returns a copy of the room list in most-recently-active order.
func (s *State) Rooms() []Room {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Room(nil), s.rooms...)
}

// ---------------------------------------------------------------------------
// Messages
// ---------------------------------------------------------------------------

// SetMessages ingests a history fetch for the selected room. The history
// endpoint returns messages newest-first; the log is stored oldest-first for
// rendering, so the slice is reversed on ingestion.
func (s *State) SetMessages(newestFirst []Message) {
	s.mu.Lock()
	log := make([]Message, len(newestFirst))
	for i, m := range newestFirst {
		log[len(newestFirst)-1-i] = m
	}
	s.messages = log
	fn := s.onChange
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// AddMessage applies a message:new event. The message is appended to the log
// when it belongs to the selected room, and its owning room — if present in
// the list — gets its preview pointer updated and is moved to the front,
// atomically with the append. Message IDs are wire-unique, so the append
// needs no dedup.
func (s *State) AddMessage(msg Message) {
	s.mu.Lock()
	if s.selected != nil && s.selected.ID == msg.ChatRoom {
		s.messages = append(s.messages, msg)
	}

	for i := range s.rooms {
		if s.rooms[i].ID != msg.ChatRoom {
			continue
		}
		room := s.rooms[i]
		m := msg
		room.LastMessage = &m

		copy(s.rooms[1:i+1], s.rooms[:i])
		s.rooms[0] = room
		break
	}
	fn := s.onChange
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// MarkDeleted applies a message:deleted event: the message stays at its log
// position with IsDeleted set and its content replaced by the placeholder.
// Replaying the event is a no-op beyond re-writing the same values.
func (s *State) MarkDeleted(messageID string) {
	s.mu.Lock()
	for i := range s.messages {
		if s.messages[i].ID == messageID {
			s.messages[i].IsDeleted = true
			s.messages[i].Content = DeletedPlaceholder
			break
		}
	}
	fn := s.onChange
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// UpsertReaction applies one (emoji, users) pair from a message:reaction
// event: the user set for that emoji is replaced if the bucket exists and
// added otherwise. Events referencing unknown messages are ignored.
func (s *State) UpsertReaction(messageID, emoji string, users []string) {
	s.mu.Lock()
	for i := range s.messages {
		if s.messages[i].ID != messageID {
			continue
		}
		msg := &s.messages[i]
		found := false
		for j := range msg.Reactions {
			if msg.Reactions[j].Emoji == emoji {
				msg.Reactions[j].Users = append([]string(nil), users...)
				found = true
				break
			}
		}
		if !found {
			msg.Reactions = append(msg.Reactions, Reaction{
				Emoji: emoji,
				Users: append([]string(nil), users...),
			})
		}
		break
	}
	fn := s.onChange
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// Messages returns a copy of the selected room's log, oldest-first.
func (s *State) Messages() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Message(nil), s.messages...)
}

// ---------------------------------------------------------------------------
// Read receipts
// ---------------------------------------------------------------------------

// MarkRead upserts the reporting user's read marker on the named room: one
// marker per (room, user), inserted if absent, overwritten if present.
// Rooms not in the list are ignored.
func (s *State) MarkRead(roomID, userID, messageID string) {
	s.mu.Lock()
	for i := range s.rooms {
		if s.rooms[i].ID != roomID {
			continue
		}
		room := &s.rooms[i]
		updated := false
		for j := range room.LastRead {
			if room.LastRead[j].User == userID {
				room.LastRead[j].Message = messageID
				room.LastRead[j].ReadAt = time.Now()
				updated = true
				break
			}
		}
		if !updated {
			room.LastRead = append(room.LastRead, ReadMarker{
				User:    userID,
				Message: messageID,
				ReadAt:  time.Now(),
			})
		}
		break
	}
	fn := s.onChange
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// ---------------------------------------------------------------------------
// Typing and online presence
// ---------------------------------------------------------------------------

// TypingStarted adds a user to the selected room's typing set. Events for
// other rooms are dropped so the set never leaks across a room switch.
func (s *State) TypingStarted(roomID, userID string) {
	s.mu.Lock()
	if s.selected != nil && s.selected.ID == roomID {
		s.typing[userID] = struct{}{}
	}
	fn := s.onChange
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// TypingStopped removes a user from the typing set.
func (s *State) TypingStopped(roomID, userID string) {
	s.mu.Lock()
	if s.selected != nil && s.selected.ID == roomID {
		delete(s.typing, userID)
	}
	fn := s.onChange
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// TypingUsers returns the sorted set of users typing in the selected room.
func (s *State) TypingUsers() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedSet(s.typing)
}

// UserOnline adds a user to the global online set.
func (s *State) UserOnline(userID string) {
	s.mu.Lock()
	s.online[userID] = struct{}{}
	fn := s.onChange
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// UserOffline removes a user from the global online set.
func (s *State) UserOffline(userID string) {
	s.mu.Lock()
	delete(s.online, userID)
	fn := s.onChange
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// IsOnline reports whether the user is in the global online set.
func (s *State) IsOnline(userID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.online[userID]
	return ok
}

// OnlineUsers returns the sorted global online set.
func (s *State) OnlineUsers() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedSet(s.online)
}

// ---------------------------------------------------------------------------
// Reply composer
// ---------------------------------------------------------------------------

// SetReplyTo records the message the composer is replying to.
func (s *State) SetReplyTo(msg Message) {
	s.mu.Lock()
	m := msg
	s.replyTo = &m
	fn := s.onChange
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// ClearReplyTo clears the composer's reply reference.
func (s *State) ClearReplyTo() {
	s.mu.Lock()
	s.replyTo = nil
	fn := s.onChange
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// ReplyTo returns the message being replied to, if any.
func (s *State) ReplyTo() (Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.replyTo == nil {
		return Message{}, false
	}
	return *s.replyTo, true
}

func sortedSet(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
