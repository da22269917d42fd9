package session

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// SessionPrefix is the Redis key prefix for all session hashes.
	SessionPrefix = "dm:session:"

	// SessionTTL is the time-to-live for session keys in Redis.
	SessionTTL = 1 * time.Hour

	// Conversation state values mirrored from the transport session.
	StateIdle         = "idle"
	StateConnecting   = "connecting"
	StateConnected    = "connected"
	StateDisconnected = "disconnected"
)

// Session is a gateway client's record stored in Redis.
type Session struct {
	ID         string `redis:"id"`
	User       string `redis:"user"`
	ContactID  int64  `redis:"contact_id"` // 0 when no conversation is open
	State      string `redis:"state"`
	Server     string `redis:"server"`      // which gateway instance
	CreatedAt  int64  `redis:"created_at"`  // unix timestamp
	LastActive int64  `redis:"last_active"` // unix timestamp
}

// Store manages gateway session records in Redis.
type Store struct {
	client     *redis.Client
	serverName string
}

// NewStore creates a store on an existing Redis client.
func NewStore(client *redis.Client, serverName string) *Store {
	return &Store{client: client, serverName: serverName}
}

// Dial connects to Redis, verifies the connection and returns a store.
func Dial(redisAddr, serverName string) (*Store, error) {
	client := redis.NewClient(&redis.Options{Addr: redisAddr})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("session: redis connection failed: %w", err)
	}
	return NewStore(client, serverName), nil
}

// Create stores a new idle session for user.
func (s *Store) Create(ctx context.Context, sessionID, user string) error {
	key := SessionPrefix + sessionID
	now := time.Now().Unix()

	fields := map[string]interface{}{
		"id":          sessionID,
		"user":        user,
		"contact_id":  0,
		"state":       StateIdle,
		"server":      s.serverName,
		"created_at":  now,
		"last_active": now,
	}

	pipe := s.client.Pipeline()
	pipe.HSet(ctx, key, fields)
	pipe.Expire(ctx, key, SessionTTL)
	_, err := pipe.Exec(ctx)
	return err
}

// Get retrieves a session. Returns nil if not found.
func (s *Store) Get(ctx context.Context, sessionID string) (*Session, error) {
	var sess Session
	if err := s.client.HGetAll(ctx, SessionPrefix+sessionID).Scan(&sess); err != nil {
		return nil, err
	}
	if sess.ID == "" {
		return nil, nil
	}
	return &sess, nil
}

// SetConversation records the contact the client is now talking to.
func (s *Store) SetConversation(ctx context.Context, sessionID string, contactID int64) error {
	return s.touch(ctx, sessionID, "contact_id", contactID, "state", StateConnecting)
}

// SetState records the conversation's connection state.
func (s *Store) SetState(ctx context.Context, sessionID, state string) error {
	return s.touch(ctx, sessionID, "state", state)
}

// ClearConversation resets the record to idle with no contact.
func (s *Store) ClearConversation(ctx context.Context, sessionID string) error {
	return s.touch(ctx, sessionID, "contact_id", 0, "state", StateIdle)
}

// Delete removes a session from Redis.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	return s.client.Del(ctx, SessionPrefix+sessionID).Err()
}

// Close closes the Redis connection.
func (s *Store) Close() error {
	return s.client.Close()
}

// Client returns the underlying Redis client for use by other packages.
func (s *Store) Client() *redis.Client {
	return s.client
}

// touch updates fields, bumps last_active and refreshes the TTL.
func (s *Store) touch(ctx context.Context, sessionID string, fields ...interface{}) error {
	key := SessionPrefix + sessionID
	fields = append(fields, "last_active", time.Now().Unix())

	pipe := s.client.Pipeline()
	pipe.HSet(ctx, key, fields...)
	pipe.Expire(ctx, key, SessionTTL)
	_, err := pipe.Exec(ctx)
	return err
}
