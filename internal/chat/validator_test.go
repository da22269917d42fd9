package chat

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/reelshare/dm-gateway/internal/transport"
)

func TestValidateMessage(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		wantErr bool
	}{
		{"plain", "hello", false},
		{"padded", "  hello  ", false},
		{"emoji", "great video 🎬", false},
		{"empty", "", true},
		{"spaces", "   ", true},
		{"tabs and newlines", "\t\n \r\n", true},
		{"too many bytes", strings.Repeat("a", MaxMessageBytes+1), true},
		{"too many chars", strings.Repeat("é", MaxTextChars+1), true},
		{"at char limit", strings.Repeat("x", MaxTextChars), false},
		{"invalid utf8", "bad \xff byte", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateMessage(tt.text)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateMessage() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateMessage_EmptySentinel(t *testing.T) {
	if err := ValidateMessage("    "); !errors.Is(err, ErrEmptyMessage) {
		t.Errorf("expected ErrEmptyMessage, got %v", err)
	}
}

func TestNewMessageEvent(t *testing.T) {
	ts := time.Unix(1700000000, 0)
	ev := NewMessageEvent("sess-1", "user_1", 3, transport.Message{
		ID:        5,
		Sender:    transport.SenderCounterparty,
		Text:      "Yes, absolutely!",
		Timestamp: ts,
	})

	if ev.Type != EventMessage || ev.MessageID != 5 || ev.Sender != "counterparty" {
		t.Errorf("unexpected event %+v", ev)
	}
	if ev.Ts != ts.Unix() || ev.ContactID != 3 || ev.UserID != "user_1" || ev.SessionID != "sess-1" {
		t.Errorf("unexpected routing fields %+v", ev)
	}
}
