package loadgen

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/reelshare/dm-gateway/internal/protocol"
	wsserver "github.com/reelshare/dm-gateway/internal/ws"
)

// startEchoGateway greets each client with session_created and answers every
// send with a counterparty message frame carrying the same text.
func startEchoGateway(t *testing.T) string {
	t.Helper()
	var srv *wsserver.Server
	srv = wsserver.NewServer(wsserver.DefaultServerConfig(),
		func(r *http.Request) (string, error) { return r.URL.Query().Get("user"), nil },
		func(c *wsserver.Connection, data []byte) {
			var msg protocol.SendMsg
			if err := json.Unmarshal(data, &msg); err != nil || msg.Text == "" {
				return
			}
			frame, _ := protocol.NewServerMessage(protocol.TypeMessage, protocol.ServerChatMsg{
				ID: 1, Sender: "counterparty", Text: msg.Text,
			})
			srv.SendMessage(c.ID, frame)
		})
	srv.SetOnConnect(func(c *wsserver.Connection) {
		frame, _ := protocol.NewServerMessage(protocol.TypeSessionCreated, protocol.SessionCreatedMsg{
			SessionID: c.ID, User: c.User,
		})
		c.WriteMessage(frame)
	})

	hs := httptest.NewServer(srv)
	t.Cleanup(func() {
		srv.Shutdown()
		hs.Close()
	})
	return "ws" + strings.TrimPrefix(hs.URL, "http")
}

func TestClientSessionAndHandlers(t *testing.T) {
	url := startEchoGateway(t)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	c, err := Dial(ctx, url+"/?user=alexsmith")
	if err != nil {
		t.Fatalf("Dial() error: %v", err)
	}
	defer c.Close()

	if err := c.WaitForSession(ctx); err != nil {
		t.Fatalf("WaitForSession() error: %v", err)
	}
	if c.SessionID() == "" {
		t.Fatal("expected a session id")
	}

	got := make(chan protocol.ServerChatMsg, 1)
	c.On(protocol.TypeMessage, func(raw json.RawMessage) {
		var m protocol.ServerChatMsg
		json.Unmarshal(raw, &m)
		got <- m
	})

	if err := c.SendText("hello"); err != nil {
		t.Fatalf("SendText() error: %v", err)
	}

	select {
	case m := <-got:
		if m.Text != "hello" || m.Sender != "counterparty" {
			t.Errorf("unexpected frame: %+v", m)
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for message frame")
	}

	sent, received := c.Counts()
	if sent != 1 || received != 2 {
		t.Errorf("expected 1 sent / 2 received, got %d / %d", sent, received)
	}
}

func TestClientCloseEndsWaits(t *testing.T) {
	url := startEchoGateway(t)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	c, err := Dial(ctx, url+"/?user=janedoe")
	if err != nil {
		t.Fatalf("Dial() error: %v", err)
	}
	c.Close()
	c.Close()

	select {
	case <-c.Done():
	case <-ctx.Done():
		t.Fatal("Done not closed after Close")
	}
}

func TestDialFailure(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := Dial(ctx, "ws://127.0.0.1:1/ws"); err == nil {
		t.Fatal("expected dial error")
	}
}
