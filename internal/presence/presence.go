// Package presence tracks which users are online, backed by Redis so every
// relay instance sees the same set. A user is online while any of their
// connections is; a per-user TTL key guards against instances that die
// without cleaning up.
package presence

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// OnlineSetKey is the Redis set of online user IDs.
	OnlineSetKey = "online_users"

	// UserPrefix is the per-user liveness key prefix.
	UserPrefix = "presence:"

	// ConnsPrefix is the per-user connection counter prefix, so a user with
	// two devices stays online until the last one disconnects.
	ConnsPrefix = "presence_conns:"

	// TTL is how long a user stays online without a refresh.
	TTL = 120 * time.Second
)

// Store manages online presence in Redis.
type Store struct {
	client *redis.Client
}

// NewStore creates a presence store connected to Redis, verifying the
// connection up front.
func NewStore(redisAddr string) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr: redisAddr,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("presence: redis connection failed: %w", err)
	}

	return &Store{client: client}, nil
}

// Connected records one new connection for the user. It returns true when
// this was the user's first live connection, i.e. the user just came online.
func (s *Store) Connected(ctx context.Context, userID string) (bool, error) {
	count, err := s.client.Incr(ctx, ConnsPrefix+userID).Result()
	if err != nil {
		return false, fmt.Errorf("presence: incr conns: %w", err)
	}

	pipe := s.client.Pipeline()
	pipe.SAdd(ctx, OnlineSetKey, userID)
	pipe.Set(ctx, UserPrefix+userID, "online", TTL)
	pipe.Expire(ctx, ConnsPrefix+userID, TTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("presence: mark online: %w", err)
	}
	return count == 1, nil
}

// Disconnected records one closed connection for the user. It returns true
// when that was the user's last live connection, i.e. the user went offline.
func (s *Store) Disconnected(ctx context.Context, userID string) (bool, error) {
	count, err := s.client.Decr(ctx, ConnsPrefix+userID).Result()
	if err != nil {
		return false, fmt.Errorf("presence: decr conns: %w", err)
	}
	if count > 0 {
		return false, nil
	}

	pipe := s.client.Pipeline()
	pipe.SRem(ctx, OnlineSetKey, userID)
	pipe.Del(ctx, UserPrefix+userID)
	pipe.Del(ctx, ConnsPrefix+userID)
	if _, err := pipe.Exec(ctx); err != nil {
		return true, fmt.Errorf("presence: mark offline: %w", err)
	}
	return true, nil
}

// Refresh extends the user's presence TTL. Called from the heartbeat path.
func (s *Store) Refresh(ctx context.Context, userID string) error {
	pipe := s.client.Pipeline()
	pipe.Expire(ctx, UserPrefix+userID, TTL)
	pipe.Expire(ctx, ConnsPrefix+userID, TTL)
	_, err := pipe.Exec(ctx)
	return err
}

// Online returns the IDs of all currently online users.
func (s *Store) Online(ctx context.Context) ([]string, error) {
	return s.client.SMembers(ctx, OnlineSetKey).Result()
}

// Close closes the Redis connection.
func (s *Store) Close() error {
	return s.client.Close()
}

// Client returns the underlying Redis client for use by other packages.
func (s *Store) Client() *redis.Client {
	return s.client
}
