package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/connect/chat-app/internal/chat"
)

// UpsertUser inserts the user or refreshes its profile fields if it already
// exists. Called on every authenticated connection so the relay can serve
// member lists without a separate signup flow.
func (s *Store) UpsertUser(ctx context.Context, u chat.User) error {
	var picURL, picKey string
	if u.ProfilePicture != nil {
		picURL, picKey = u.ProfilePicture.URL, u.ProfilePicture.Key
	}

	const query = `
		INSERT INTO users (id, name, email, profile_picture_url, profile_picture_key)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			email = EXCLUDED.email,
			profile_picture_url = EXCLUDED.profile_picture_url,
			profile_picture_key = EXCLUDED.profile_picture_key`

	_, err := s.db.ExecContext(ctx, query, u.ID, u.Name, u.Email, picURL, picKey)
	if err != nil {
		return fmt.Errorf("store: upsert user: %w", err)
	}
	return nil
}

// GetUser returns the user with the given ID, or ErrNotFound.
func (s *Store) GetUser(ctx context.Context, id string) (chat.User, error) {
	const query = `
		SELECT id, name, email, profile_picture_url, profile_picture_key
		FROM users WHERE id = $1`

	u, err := scanUser(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return chat.User{}, ErrNotFound
	}
	if err != nil {
		return chat.User{}, fmt.Errorf("store: get user: %w", err)
	}
	return u, nil
}

// DiscoverUsers returns users other than selfID whose name matches the
// search term (case-insensitive substring). An empty term returns all other
// users, capped at limit.
func (s *Store) DiscoverUsers(ctx context.Context, selfID, term string, limit int) ([]chat.User, error) {
	if limit <= 0 {
		limit = 50
	}
	const query = `
		SELECT id, name, email, profile_picture_url, profile_picture_key
		FROM users
		WHERE id <> $1 AND ($2 = '' OR name ILIKE '%' || $2 || '%')
		ORDER BY name
		LIMIT $3`

	rows, err := s.db.QueryContext(ctx, query, selfID, term, limit)
	if err != nil {
		return nil, fmt.Errorf("store: discover users: %w", err)
	}
	defer rows.Close()

	var users []chat.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("store: discover users: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanUser(row scanner) (chat.User, error) {
	var u chat.User
	var picURL, picKey string
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &picURL, &picKey); err != nil {
		return chat.User{}, err
	}
	if picURL != "" || picKey != "" {
		u.ProfilePicture = &chat.ImageRef{URL: picURL, Key: picKey}
	}
	return u, nil
}
