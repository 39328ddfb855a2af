package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/connect/chat-app/internal/chat"
)

// GroupParams carries the caller-supplied fields for creating or updating a
// group room. Nil pointer fields on update mean "leave unchanged".
type GroupParams struct {
	Name        string
	Description string
	ImageURL    string
	IsPublic    bool
	MemberIDs   []string
}

// ListRooms returns every room the user is a member of, ordered most
// recently active first (by last message time, falling back to room
// creation time). Each room is fully populated: members, admins, last
// message, and read markers.
func (s *Store) ListRooms(ctx context.Context, userID string) ([]chat.Room, error) {
	const query = `
		SELECT r.id
		FROM chat_rooms r
		JOIN room_members m ON m.room_id = r.id
		LEFT JOIN LATERAL (
			SELECT created_at FROM messages
			WHERE room_id = r.id
			ORDER BY created_at DESC LIMIT 1
		) lm ON TRUE
		WHERE m.user_id = $1
		ORDER BY COALESCE(lm.created_at, r.created_at) DESC`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("store: list rooms: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("store: list rooms: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list rooms: %w", err)
	}

	rooms := make([]chat.Room, 0, len(ids))
	for _, id := range ids {
		room, err := s.loadRoom(ctx, id)
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, room)
	}
	return rooms, nil
}

// GetRoom returns the fully populated room, or ErrNotFound.
func (s *Store) GetRoom(ctx context.Context, roomID string) (chat.Room, error) {
	return s.loadRoom(ctx, roomID)
}

// IsMember reports whether the user belongs to the room.
func (s *Store) IsMember(ctx context.Context, roomID, userID string) (bool, error) {
	const query = `SELECT 1 FROM room_members WHERE room_id = $1 AND user_id = $2`
	var one int
	err := s.db.QueryRowContext(ctx, query, roomID, userID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("store: is member: %w", err)
	}
	return true, nil
}

// CreateOneToOne finds the existing one-to-one room between the two users or
// creates one. Both users must already exist.
func (s *Store) CreateOneToOne(ctx context.Context, selfID, otherID string) (chat.Room, error) {
	if selfID == otherID {
		return chat.Room{}, fmt.Errorf("store: cannot open a one-to-one room with yourself")
	}

	const find = `
		SELECT r.id
		FROM chat_rooms r
		JOIN room_members a ON a.room_id = r.id AND a.user_id = $1
		JOIN room_members b ON b.room_id = r.id AND b.user_id = $2
		WHERE r.type = 'one_to_one'
		LIMIT 1`

	var roomID string
	err := s.db.QueryRowContext(ctx, find, selfID, otherID).Scan(&roomID)
	if err == nil {
		return s.loadRoom(ctx, roomID)
	}
	if err != sql.ErrNoRows {
		return chat.Room{}, fmt.Errorf("store: find one-to-one: %w", err)
	}

	roomID = uuid.New().String()
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO chat_rooms (id, type) VALUES ($1, 'one_to_one')`, roomID); err != nil {
			return fmt.Errorf("store: create one-to-one: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO room_members (room_id, user_id) VALUES ($1, $2), ($1, $3)`,
			roomID, selfID, otherID); err != nil {
			return fmt.Errorf("store: create one-to-one members: %w", err)
		}
		return nil
	})
	if err != nil {
		return chat.Room{}, err
	}
	return s.loadRoom(ctx, roomID)
}

// CreateGroup creates a group room owned by ownerID. The owner is always a
// member and an admin, regardless of the supplied member list.
func (s *Store) CreateGroup(ctx context.Context, ownerID string, p GroupParams) (chat.Room, error) {
	if strings.TrimSpace(p.Name) == "" {
		return chat.Room{}, fmt.Errorf("store: group name is required")
	}

	roomID := uuid.New().String()
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO chat_rooms (id, type, name, description, image_url, is_public, owner_id)
			 VALUES ($1, 'group', $2, $3, $4, $5, $6)`,
			roomID, p.Name, p.Description, p.ImageURL, p.IsPublic, ownerID); err != nil {
			return fmt.Errorf("store: create group: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO room_members (room_id, user_id, is_admin) VALUES ($1, $2, TRUE)`,
			roomID, ownerID); err != nil {
			return fmt.Errorf("store: create group owner: %w", err)
		}
		for _, id := range p.MemberIDs {
			if id == ownerID {
				continue
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO room_members (room_id, user_id) VALUES ($1, $2)
				 ON CONFLICT DO NOTHING`, roomID, id); err != nil {
				return fmt.Errorf("store: create group members: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return chat.Room{}, err
	}
	return s.loadRoom(ctx, roomID)
}

// UpdateGroup updates the group's metadata. Only admins may update;
// returns ErrForbidden otherwise.
func (s *Store) UpdateGroup(ctx context.Context, roomID, actorID string, p GroupParams) (chat.Room, error) {
	if err := s.requireAdmin(ctx, roomID, actorID); err != nil {
		return chat.Room{}, err
	}
	if strings.TrimSpace(p.Name) == "" {
		return chat.Room{}, fmt.Errorf("store: group name is required")
	}

	const query = `
		UPDATE chat_rooms
		SET name = $2, description = $3, image_url = $4, is_public = $5, updated_at = NOW()
		WHERE id = $1 AND type = 'group'`

	res, err := s.db.ExecContext(ctx, query, roomID, p.Name, p.Description, p.ImageURL, p.IsPublic)
	if err != nil {
		return chat.Room{}, fmt.Errorf("store: update group: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return chat.Room{}, ErrNotFound
	}
	return s.loadRoom(ctx, roomID)
}

// AddMembers adds the given users to a group room. Adding members requires
// admin rights; as a special case, a nil or empty userIDs slice means the
// actor is joining a public group themselves, which needs no admin check.
func (s *Store) AddMembers(ctx context.Context, roomID, actorID string, userIDs []string) (chat.Room, error) {
	room, err := s.loadRoom(ctx, roomID)
	if err != nil {
		return chat.Room{}, err
	}
	if !room.IsGroup() {
		return chat.Room{}, fmt.Errorf("store: cannot add members to a one-to-one room")
	}

	if len(userIDs) == 0 {
		// Self-join: only public groups can be joined without an invite.
		if !room.IsPublic {
			return chat.Room{}, ErrForbidden
		}
		userIDs = []string{actorID}
	} else if !room.IsAdmin(actorID) {
		return chat.Room{}, ErrForbidden
	}

	for _, id := range userIDs {
		if _, err := s.db.ExecContext(ctx,
			`INSERT INTO room_members (room_id, user_id) VALUES ($1, $2)
			 ON CONFLICT DO NOTHING`, roomID, id); err != nil {
			return chat.Room{}, fmt.Errorf("store: add member: %w", err)
		}
	}
	return s.loadRoom(ctx, roomID)
}

// RemoveMember removes a user from a group room. Admins can remove anyone
// except the owner; a user can always remove themselves (LeaveGroup wraps
// that case).
func (s *Store) RemoveMember(ctx context.Context, roomID, actorID, userID string) (chat.Room, error) {
	room, err := s.loadRoom(ctx, roomID)
	if err != nil {
		return chat.Room{}, err
	}
	if !room.IsGroup() {
		return chat.Room{}, fmt.Errorf("store: cannot remove members from a one-to-one room")
	}
	if actorID != userID && !room.IsAdmin(actorID) {
		return chat.Room{}, ErrForbidden
	}
	if room.Owner != nil && userID == room.Owner.ID && actorID != userID {
		return chat.Room{}, ErrForbidden
	}

	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM room_members WHERE room_id = $1 AND user_id = $2`, roomID, userID); err != nil {
		return chat.Room{}, fmt.Errorf("store: remove member: %w", err)
	}
	return s.loadRoom(ctx, roomID)
}

// LeaveGroup removes the acting user from the group.
func (s *Store) LeaveGroup(ctx context.Context, roomID, userID string) error {
	_, err := s.RemoveMember(ctx, roomID, userID, userID)
	return err
}

// DeleteGroup removes a group room and all its messages. Only admins may
// delete a group.
func (s *Store) DeleteGroup(ctx context.Context, roomID, actorID string) error {
	if err := s.requireAdmin(ctx, roomID, actorID); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM chat_rooms WHERE id = $1 AND type = 'group'`, roomID); err != nil {
		return fmt.Errorf("store: delete group: %w", err)
	}
	return nil
}

// DiscoverGroups returns public group rooms the user is not yet a member of,
// optionally filtered by a name search term.
func (s *Store) DiscoverGroups(ctx context.Context, userID, term string, limit int) ([]chat.Room, error) {
	if limit <= 0 {
		limit = 50
	}
	const query = `
		SELECT r.id
		FROM chat_rooms r
		WHERE r.type = 'group' AND r.is_public
		  AND ($2 = '' OR r.name ILIKE '%' || $2 || '%')
		  AND NOT EXISTS (
			SELECT 1 FROM room_members m WHERE m.room_id = r.id AND m.user_id = $1
		  )
		ORDER BY r.created_at DESC
		LIMIT $3`

	rows, err := s.db.QueryContext(ctx, query, userID, term, limit)
	if err != nil {
		return nil, fmt.Errorf("store: discover groups: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("store: discover groups: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: discover groups: %w", err)
	}

	rooms := make([]chat.Room, 0, len(ids))
	for _, id := range ids {
		room, err := s.loadRoom(ctx, id)
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, room)
	}
	return rooms, nil
}

// requireAdmin returns ErrForbidden unless the user is an admin of the room.
func (s *Store) requireAdmin(ctx context.Context, roomID, userID string) error {
	const query = `SELECT is_admin FROM room_members WHERE room_id = $1 AND user_id = $2`
	var isAdmin bool
	err := s.db.QueryRowContext(ctx, query, roomID, userID).Scan(&isAdmin)
	if err == sql.ErrNoRows {
		return ErrForbidden
	}
	if err != nil {
		return fmt.Errorf("store: require admin: %w", err)
	}
	if !isAdmin {
		return ErrForbidden
	}
	return nil
}

// loadRoom assembles a fully populated chat.Room: metadata, members, admin
// flags, owner, last message, and read markers.
func (s *Store) loadRoom(ctx context.Context, roomID string) (chat.Room, error) {
	const roomQuery = `
		SELECT id, type, name, description, image_url, is_public, COALESCE(owner_id, '')
		FROM chat_rooms WHERE id = $1`

	var room chat.Room
	var imageURL, ownerID string
	err := s.db.QueryRowContext(ctx, roomQuery, roomID).Scan(
		&room.ID, &room.Type, &room.Name, &room.Description, &imageURL, &room.IsPublic, &ownerID)
	if err == sql.ErrNoRows {
		return chat.Room{}, ErrNotFound
	}
	if err != nil {
		return chat.Room{}, fmt.Errorf("store: load room: %w", err)
	}
	if imageURL != "" {
		room.Image = &chat.ImageRef{URL: imageURL}
	}

	const membersQuery = `
		SELECT u.id, u.name, u.email, u.profile_picture_url, u.profile_picture_key, m.is_admin
		FROM room_members m
		JOIN users u ON u.id = m.user_id
		WHERE m.room_id = $1
		ORDER BY u.name`

	rows, err := s.db.QueryContext(ctx, membersQuery, roomID)
	if err != nil {
		return chat.Room{}, fmt.Errorf("store: load members: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var u chat.User
		var picURL, picKey string
		var isAdmin bool
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &picURL, &picKey, &isAdmin); err != nil {
			return chat.Room{}, fmt.Errorf("store: load members: %w", err)
		}
		if picURL != "" || picKey != "" {
			u.ProfilePicture = &chat.ImageRef{URL: picURL, Key: picKey}
		}
		room.Members = append(room.Members, u)
		if isAdmin {
			room.Admins = append(room.Admins, u)
		}
		if ownerID != "" && u.ID == ownerID {
			owner := u
			room.Owner = &owner
		}
	}
	if err := rows.Err(); err != nil {
		return chat.Room{}, fmt.Errorf("store: load members: %w", err)
	}

	last, err := s.lastMessage(ctx, roomID)
	if err != nil {
		return chat.Room{}, err
	}
	room.LastMessage = last

	markers, err := s.readMarkers(ctx, roomID)
	if err != nil {
		return chat.Room{}, err
	}
	room.LastRead = markers

	return room, nil
}

// withTx runs fn inside a transaction, committing on success and rolling
// back on error.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}
	return nil
}
