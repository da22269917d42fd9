package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// HistoryPrefix is the Redis key prefix for archived conversations.
const HistoryPrefix = "history:"

// RedisArchive keeps each conversation in a capped Redis list.
type RedisArchive struct {
	rdb        *redis.Client
	maxEntries int
	ttl        time.Duration
}

// NewRedisArchive creates an archive retaining maxEntries per conversation
// for ttl after the last append.
func NewRedisArchive(rdb *redis.Client, maxEntries int, ttl time.Duration) *RedisArchive {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisArchive{rdb: rdb, maxEntries: maxEntries, ttl: ttl}
}

// Append pushes an entry and trims the list to the newest maxEntries.
func (a *RedisArchive) Append(ctx context.Context, key ConversationKey, e Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("history: marshal entry: %w", err)
	}

	redisKey := HistoryPrefix + key.String()
	pipe := a.rdb.Pipeline()
	pipe.RPush(ctx, redisKey, data)
	pipe.LTrim(ctx, redisKey, int64(-a.maxEntries), -1)
	pipe.Expire(ctx, redisKey, a.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("history: append %s: %w", key, err)
	}
	return nil
}

// Recent returns up to n of the newest entries, oldest first. n <= 0 returns
// everything retained.
func (a *RedisArchive) Recent(ctx context.Context, key ConversationKey, n int) ([]Entry, error) {
	start := int64(0)
	if n > 0 {
		start = int64(-n)
	}

	raw, err := a.rdb.LRange(ctx, HistoryPrefix+key.String(), start, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("history: read %s: %w", key, err)
	}

	entries := make([]Entry, 0, len(raw))
	for _, item := range raw {
		var e Entry
		if err := json.Unmarshal([]byte(item), &e); err != nil {
			return nil, fmt.Errorf("history: decode %s: %w", key, err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Clear deletes a conversation's archive.
func (a *RedisArchive) Clear(ctx context.Context, key ConversationKey) error {
	return a.rdb.Del(ctx, HistoryPrefix+key.String()).Err()
}
