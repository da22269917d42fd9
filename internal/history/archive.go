// Package history archives the messages exchanged in gateway conversations so
// they can be listed after a session ends. The simulator never reads from it:
// every new session still starts from its own seed history.
package history

import (
	"context"
	"strconv"
	"time"

	"github.com/reelshare/dm-gateway/internal/transport"
)

const (
	// DefaultMaxEntries is the number of entries retained per conversation.
	DefaultMaxEntries = 200

	// DefaultTTL is how long an idle conversation's archive survives.
	DefaultTTL = 7 * 24 * time.Hour
)

// ConversationKey identifies one user's conversation with one contact.
type ConversationKey struct {
	UserID    string
	ContactID int64
}

func (k ConversationKey) String() string {
	return k.UserID + ":" + strconv.FormatInt(k.ContactID, 10)
}

// Entry is one archived message.
type Entry struct {
	ID     int64  `json:"id"`
	Sender string `json:"sender"`
	Text   string `json:"text"`
	Ts     int64  `json:"ts"` // unix milliseconds
}

// FromMessage converts a transport message into an archive entry.
func FromMessage(m transport.Message) Entry {
	return Entry{
		ID:     m.ID,
		Sender: m.Sender.String(),
		Text:   m.Text,
		Ts:     m.Timestamp.UnixMilli(),
	}
}

// Archive stores recent messages per conversation.
type Archive interface {
	Append(ctx context.Context, key ConversationKey, e Entry) error
	Recent(ctx context.Context, key ConversationKey, n int) ([]Entry, error)
	Clear(ctx context.Context, key ConversationKey) error
}
