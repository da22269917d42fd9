package messaging

import (
	"testing"
	"time"

	"github.com/reelshare/dm-gateway/internal/chat"
)

func TestEventSubject(t *testing.T) {
	tests := []struct {
		user    string
		contact int64
		want    string
	}{
		{"alexsmith", 1, "dm.events.alexsmith.1"},
		{"jane.doe", 42, "dm.events.jane_doe.42"},
		{"a b*>", 3, "dm.events.a_b__.3"},
		{"", 5, "dm.events._.5"},
	}
	for _, tt := range tests {
		if got := EventSubject(tt.user, tt.contact); got != tt.want {
			t.Errorf("EventSubject(%q, %d) = %q, want %q", tt.user, tt.contact, got, tt.want)
		}
	}
}

func TestPublishAndSubscribe(t *testing.T) {
	cfg := DefaultNATSConfig()
	cfg.MaxReconnects = 0
	client, err := NewNATSClient(cfg)
	if err != nil {
		t.Skipf("nats not available: %v", err)
	}
	defer client.Close()

	got := make(chan chat.ConversationEvent, 1)
	subject := EventSubject("test_user", 7)
	if err := client.SubscribeConversations(subject, func(_ string, ev chat.ConversationEvent) {
		got <- ev
	}); err != nil {
		t.Fatalf("SubscribeConversations() error: %v", err)
	}

	sent := chat.NewTypingEvent("c1", "test_user", 7, true, time.Now())
	if err := client.PublishConversationEvent(sent); err != nil {
		t.Fatalf("PublishConversationEvent() error: %v", err)
	}

	select {
	case ev := <-got:
		if ev.Type != chat.EventTyping || !ev.IsTyping || ev.ContactID != 7 {
			t.Errorf("unexpected event: %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}

	if err := client.Unsubscribe(subject); err != nil {
		t.Errorf("Unsubscribe() error: %v", err)
	}
	if err := client.Unsubscribe(subject); err == nil {
		t.Error("expected error unsubscribing twice")
	}
}
