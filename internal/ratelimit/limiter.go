// Package ratelimit implements per-user rate limiting backed by Redis.
// Each check increments a windowed counter; limits fail open when Redis
// is unreachable so a cache outage never takes chat down with it.
package ratelimit

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// Rule defines a rate limit: at most Limit events per Window.
type Rule struct {
	Name   string
	Limit  int64
	Window time.Duration
}

// Default rules for chat traffic.
var (
	// RuleMessages bounds message sends per user.
	RuleMessages = Rule{Name: "messages", Limit: 30, Window: time.Minute}

	// RuleReactions bounds reaction toggles per user.
	RuleReactions = Rule{Name: "reactions", Limit: 60, Window: time.Minute}

	// RuleConnects bounds websocket handshakes per user, which also caps
	// reconnect storms from a misbehaving client.
	RuleConnects = Rule{Name: "connects", Limit: 10, Window: time.Minute}
)

const keyPrefix = "ratelimit:"

// Limiter enforces rate limit rules against Redis counters.
type Limiter struct {
	client *redis.Client
}

// NewLimiter creates a limiter using the given Redis client.
func NewLimiter(client *redis.Client) *Limiter {
	return &Limiter{client: client}
}

// Allow reports whether the user is within the rule's limit and records
// the event. Errors talking to Redis are logged and treated as allowed.
func (l *Limiter) Allow(ctx context.Context, rule Rule, userID string) bool {
	key := fmt.Sprintf("%s%s:%s", keyPrefix, rule.Name, userID)

	pipe := l.client.Pipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, rule.Window)
	if _, err := pipe.Exec(ctx); err != nil {
		log.Printf("ratelimit: redis error for %s: %v", key, err)
		return true
	}
	return incr.Val() <= rule.Limit
}

// Remaining returns how many events the user has left in the current
// window. Errors are treated as the full limit remaining.
func (l *Limiter) Remaining(ctx context.Context, rule Rule, userID string) int64 {
	key := fmt.Sprintf("%s%s:%s", keyPrefix, rule.Name, userID)

	used, err := l.client.Get(ctx, key).Int64()
	if err != nil {
		if err != redis.Nil {
			log.Printf("ratelimit: redis error for %s: %v", key, err)
		}
		return rule.Limit
	}
	if used >= rule.Limit {
		return 0
	}
	return rule.Limit - used
}
