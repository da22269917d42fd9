// Package ratelimit provides Redis-backed fixed-window rate limiting. Each
// action the gateway throttles (sends, conversation switches, new connections)
// has a Rule, and a counter per identifier lives in Redis for one window.
package ratelimit

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// Rule defines a rate limiting policy: the Redis key prefix, maximum number of
// requests allowed in the window, and the window duration.
type Rule struct {
	Key    string        // Redis key prefix (e.g., "rl:send:")
	Limit  int           // max count in the window
	Window time.Duration // time window
}

var (
	// RuleSend allows 5 sends per 10 seconds per user.
	RuleSend = Rule{Key: "rl:send:", Limit: 5, Window: 10 * time.Second}

	// RuleOpen allows 20 conversation opens per minute per user.
	RuleOpen = Rule{Key: "rl:open:", Limit: 20, Window: 1 * time.Minute}

	// RuleConnect allows 10 WebSocket connections per minute per IP.
	RuleConnect = Rule{Key: "rl:conn:", Limit: 10, Window: 1 * time.Minute}
)

// incrScript increments the counter and starts the window on first use. A key
// that lost its expiry is re-armed so it cannot block an identifier forever.
// Returns {count, remaining window in ms}.
var incrScript = redis.NewScript(`
local count = redis.call('INCR', KEYS[1])
local ttl = redis.call('PTTL', KEYS[1])
if count == 1 or ttl < 0 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
	ttl = tonumber(ARGV[1])
end
return {count, ttl}
`)

// Limiter performs rate limiting checks against Redis.
type Limiter struct {
	client *redis.Client
}

// NewLimiter creates a Limiter backed by the given Redis client.
func NewLimiter(client *redis.Client) *Limiter {
	return &Limiter{client: client}
}

// Allow counts one request for identifier under rule.
//
// Returns true if the request is allowed, false if rate limited. On Redis
// errors the method fails open (returns true) so that a Redis outage does not
// block legitimate traffic.
func (l *Limiter) Allow(ctx context.Context, identifier string, rule Rule) (bool, error) {
	key := rule.Key + identifier

	res, err := incrScript.Run(ctx, l.client, []string{key}, rule.Window.Milliseconds()).Int64Slice()
	if err != nil {
		log.Printf("[ratelimit] redis error key=%s: %v (failing open)", key, err)
		return true, err
	}
	if len(res) != 2 {
		return true, errors.New("ratelimit: unexpected script reply")
	}

	return res[0] <= int64(rule.Limit), nil
}

// Remaining returns the number of requests the identifier has left in the
// current window for the given rule. Returns the full limit if the key does not
// exist yet. On Redis errors it returns the full limit (fail open).
func (l *Limiter) Remaining(ctx context.Context, identifier string, rule Rule) (int, error) {
	key := rule.Key + identifier

	count, err := l.client.Get(ctx, key).Int()
	if errors.Is(err, redis.Nil) {
		return rule.Limit, nil
	}
	if err != nil {
		log.Printf("[ratelimit] redis GET error key=%s: %v (failing open)", key, err)
		return rule.Limit, err
	}

	remaining := rule.Limit - count
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

// RetryAfter returns how long the identifier must wait before the rule admits
// another request. Zero means it may proceed now.
func (l *Limiter) RetryAfter(ctx context.Context, identifier string, rule Rule) (time.Duration, error) {
	remaining, err := l.Remaining(ctx, identifier, rule)
	if err != nil || remaining > 0 {
		return 0, err
	}

	ttl, err := l.client.PTTL(ctx, rule.Key+identifier).Result()
	if err != nil {
		return 0, err
	}
	if ttl < 0 {
		return 0, nil
	}
	return ttl, nil
}
