package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/connect/chat-app/internal/chat"
)

// Messages returns up to limit messages for the room, newest first, skipping
// the first skip rows. The newest-first order matches what history consumers
// expect; the client reverses it for display.
func (s *Store) Messages(ctx context.Context, roomID string, limit, skip int) ([]chat.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	const query = `
		SELECT m.id, m.room_id, m.type, m.content, m.image_url, m.image_key,
		       m.audio_url, m.audio_duration, COALESCE(m.reply_to, ''), m.is_deleted, m.created_at,
		       u.id, u.name, u.email, u.profile_picture_url, u.profile_picture_key
		FROM messages m
		JOIN users u ON u.id = m.sender_id
		WHERE m.room_id = $1
		ORDER BY m.created_at DESC
		OFFSET $2 LIMIT $3`

	rows, err := s.db.QueryContext(ctx, query, roomID, skip, limit)
	if err != nil {
		return nil, fmt.Errorf("store: messages: %w", err)
	}
	defer rows.Close()

	var msgs []chat.Message
	for rows.Next() {
		msg, replyTo, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("store: messages: %w", err)
		}
		if replyTo != "" {
			parent, err := s.GetMessage(ctx, replyTo)
			if err == nil {
				msg.ReplyTo = &parent
			}
		}
		reactions, err := s.ReactionsFor(ctx, msg.ID)
		if err != nil {
			return nil, err
		}
		msg.Reactions = reactions
		msgs = append(msgs, msg)
	}
	return msgs, rows.Err()
}

// GetMessage returns a single message without its reply chain, or ErrNotFound.
func (s *Store) GetMessage(ctx context.Context, id string) (chat.Message, error) {
	const query = `
		SELECT m.id, m.room_id, m.type, m.content, m.image_url, m.image_key,
		       m.audio_url, m.audio_duration, COALESCE(m.reply_to, ''), m.is_deleted, m.created_at,
		       u.id, u.name, u.email, u.profile_picture_url, u.profile_picture_key
		FROM messages m
		JOIN users u ON u.id = m.sender_id
		WHERE m.id = $1`

	msg, _, err := scanMessage(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return chat.Message{}, ErrNotFound
	}
	if err != nil {
		return chat.Message{}, fmt.Errorf("store: get message: %w", err)
	}
	reactions, err := s.ReactionsFor(ctx, msg.ID)
	if err != nil {
		return chat.Message{}, err
	}
	msg.Reactions = reactions
	return msg, nil
}

// InsertMessage persists a new message from sender into the room and returns
// it fully populated. The sender must be a member of the room.
func (s *Store) InsertMessage(ctx context.Context, roomID string, sender chat.User, msgType, content string, image *chat.ImageRef, audio *chat.AudioRef, replyToID string) (chat.Message, error) {
	ok, err := s.IsMember(ctx, roomID, sender.ID)
	if err != nil {
		return chat.Message{}, err
	}
	if !ok {
		return chat.Message{}, ErrForbidden
	}

	var imageURL, imageKey, audioURL string
	var audioDuration float64
	if image != nil {
		imageURL, imageKey = image.URL, image.Key
	}
	if audio != nil {
		audioURL, audioDuration = audio.URL, audio.Duration
	}

	id := uuid.New().String()
	var replyTo interface{}
	if replyToID != "" {
		replyTo = replyToID
	}

	const query = `
		INSERT INTO messages (id, room_id, sender_id, type, content, image_url, image_key, audio_url, audio_duration, reply_to)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at`

	var createdAt time.Time
	err = s.db.QueryRowContext(ctx, query, id, roomID, sender.ID, msgType, content,
		imageURL, imageKey, audioURL, audioDuration, replyTo).Scan(&createdAt)
	if err != nil {
		return chat.Message{}, fmt.Errorf("store: insert message: %w", err)
	}

	msg := chat.Message{
		ID:        id,
		ChatRoom:  roomID,
		Sender:    sender,
		Type:      msgType,
		Content:   content,
		Image:     image,
		Audio:     audio,
		CreatedAt: createdAt,
	}
	if replyToID != "" {
		if parent, err := s.GetMessage(ctx, replyToID); err == nil {
			msg.ReplyTo = &parent
		}
	}
	return msg, nil
}

// SoftDeleteMessage marks a message as deleted and blanks its content. Only
// the sender, or an admin of a group room, may delete a message. The row
// stays in place so the log keeps its position.
func (s *Store) SoftDeleteMessage(ctx context.Context, messageID, actorID string) (string, error) {
	const lookup = `SELECT room_id, sender_id FROM messages WHERE id = $1`
	var roomID, senderID string
	err := s.db.QueryRowContext(ctx, lookup, messageID).Scan(&roomID, &senderID)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("store: delete message lookup: %w", err)
	}

	if actorID != senderID {
		room, err := s.loadRoom(ctx, roomID)
		if err != nil {
			return "", err
		}
		if !room.IsGroup() || !room.IsAdmin(actorID) {
			return "", ErrForbidden
		}
	}

	const query = `
		UPDATE messages
		SET is_deleted = TRUE, content = '', image_url = '', image_key = '', audio_url = '', audio_duration = 0
		WHERE id = $1`
	if _, err := s.db.ExecContext(ctx, query, messageID); err != nil {
		return "", fmt.Errorf("store: delete message: %w", err)
	}
	return roomID, nil
}

// SetReaction records the user's reaction to a message. A user holds at most
// one emoji per message: reacting again replaces the previous emoji, and
// reacting with the same emoji removes it (toggle). Returns the message's
// room and its updated reaction buckets.
func (s *Store) SetReaction(ctx context.Context, messageID, userID, emoji string) (string, []chat.Reaction, error) {
	const lookup = `SELECT room_id FROM messages WHERE id = $1`
	var roomID string
	err := s.db.QueryRowContext(ctx, lookup, messageID).Scan(&roomID)
	if err == sql.ErrNoRows {
		return "", nil, ErrNotFound
	}
	if err != nil {
		return "", nil, fmt.Errorf("store: reaction lookup: %w", err)
	}

	const current = `SELECT emoji FROM message_reactions WHERE message_id = $1 AND user_id = $2`
	var existing string
	err = s.db.QueryRowContext(ctx, current, messageID, userID).Scan(&existing)
	if err != nil && err != sql.ErrNoRows {
		return "", nil, fmt.Errorf("store: reaction current: %w", err)
	}

	if existing == emoji {
		_, err = s.db.ExecContext(ctx,
			`DELETE FROM message_reactions WHERE message_id = $1 AND user_id = $2`,
			messageID, userID)
	} else {
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO message_reactions (message_id, user_id, emoji) VALUES ($1, $2, $3)
			 ON CONFLICT (message_id, user_id) DO UPDATE SET emoji = EXCLUDED.emoji, created_at = NOW()`,
			messageID, userID, emoji)
	}
	if err != nil {
		return "", nil, fmt.Errorf("store: set reaction: %w", err)
	}

	reactions, err := s.ReactionsFor(ctx, messageID)
	if err != nil {
		return "", nil, err
	}
	return roomID, reactions, nil
}

// ReactionsFor returns the per-emoji reaction buckets for a message, ordered
// by when each emoji first appeared.
func (s *Store) ReactionsFor(ctx context.Context, messageID string) ([]chat.Reaction, error) {
	const query = `
		SELECT emoji, user_id
		FROM message_reactions
		WHERE message_id = $1
		ORDER BY created_at, user_id`

	rows, err := s.db.QueryContext(ctx, query, messageID)
	if err != nil {
		return nil, fmt.Errorf("store: reactions: %w", err)
	}
	defer rows.Close()

	var reactions []chat.Reaction
	index := make(map[string]int)
	for rows.Next() {
		var emoji, userID string
		if err := rows.Scan(&emoji, &userID); err != nil {
			return nil, fmt.Errorf("store: reactions: %w", err)
		}
		i, ok := index[emoji]
		if !ok {
			i = len(reactions)
			index[emoji] = i
			reactions = append(reactions, chat.Reaction{Emoji: emoji})
		}
		reactions[i].Users = append(reactions[i].Users, userID)
	}
	return reactions, rows.Err()
}

// UpsertReadMarker records that the user has read up to the given message in
// the room, replacing any earlier marker for the same (room, user) pair.
func (s *Store) UpsertReadMarker(ctx context.Context, roomID, userID, messageID string) error {
	const query = `
		INSERT INTO read_markers (room_id, user_id, message_id, read_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (room_id, user_id) DO UPDATE SET
			message_id = EXCLUDED.message_id, read_at = NOW()`

	if _, err := s.db.ExecContext(ctx, query, roomID, userID, messageID); err != nil {
		return fmt.Errorf("store: upsert read marker: %w", err)
	}
	return nil
}

// readMarkers returns all read markers for a room.
func (s *Store) readMarkers(ctx context.Context, roomID string) ([]chat.ReadMarker, error) {
	const query = `
		SELECT user_id, message_id, read_at
		FROM read_markers WHERE room_id = $1`

	rows, err := s.db.QueryContext(ctx, query, roomID)
	if err != nil {
		return nil, fmt.Errorf("store: read markers: %w", err)
	}
	defer rows.Close()

	var markers []chat.ReadMarker
	for rows.Next() {
		var m chat.ReadMarker
		if err := rows.Scan(&m.User, &m.Message, &m.ReadAt); err != nil {
			return nil, fmt.Errorf("store: read markers: %w", err)
		}
		markers = append(markers, m)
	}
	return markers, rows.Err()
}

// lastMessage returns the most recent message in the room, or nil when the
// room has no messages yet.
func (s *Store) lastMessage(ctx context.Context, roomID string) (*chat.Message, error) {
	const query = `
		SELECT m.id, m.room_id, m.type, m.content, m.image_url, m.image_key,
		       m.audio_url, m.audio_duration, COALESCE(m.reply_to, ''), m.is_deleted, m.created_at,
		       u.id, u.name, u.email, u.profile_picture_url, u.profile_picture_key
		FROM messages m
		JOIN users u ON u.id = m.sender_id
		WHERE m.room_id = $1
		ORDER BY m.created_at DESC
		LIMIT 1`

	msg, _, err := scanMessage(s.db.QueryRowContext(ctx, query, roomID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: last message: %w", err)
	}
	return &msg, nil
}

// scanMessage scans a message row with its joined sender columns. It returns
// the reply-to ID separately so callers decide whether to load the parent.
func scanMessage(row scanner) (chat.Message, string, error) {
	var msg chat.Message
	var imageURL, imageKey, audioURL string
	var audioDuration float64
	var replyTo string
	var picURL, picKey string

	err := row.Scan(
		&msg.ID, &msg.ChatRoom, &msg.Type, &msg.Content, &imageURL, &imageKey,
		&audioURL, &audioDuration, &replyTo, &msg.IsDeleted, &msg.CreatedAt,
		&msg.Sender.ID, &msg.Sender.Name, &msg.Sender.Email, &picURL, &picKey,
	)
	if err != nil {
		return chat.Message{}, "", err
	}
	if imageURL != "" || imageKey != "" {
		msg.Image = &chat.ImageRef{URL: imageURL, Key: imageKey}
	}
	if audioURL != "" {
		msg.Audio = &chat.AudioRef{URL: audioURL, Duration: audioDuration}
	}
	if picURL != "" || picKey != "" {
		msg.Sender.ProfilePicture = &chat.ImageRef{URL: picURL, Key: picKey}
	}
	if msg.IsDeleted {
		msg.Content = chat.DeletedPlaceholder
	}
	return msg, replyTo, nil
}
