package ws

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

func startTestServer(t *testing.T, cfg ServerConfig, admit AdmitFunc, onMessage func(c *Connection, data []byte)) (*Server, *httptest.Server) {
	t.Helper()
	srv := NewServer(cfg, admit, onMessage)
	hs := httptest.NewServer(srv)
	t.Cleanup(func() {
		srv.Shutdown()
		hs.Close()
	})
	return srv, hs
}

func wsURL(hs *httptest.Server) string {
	return "ws" + strings.TrimPrefix(hs.URL, "http")
}

func TestServerLifecycle(t *testing.T) {
	echo := func(c *Connection, data []byte) {
		c.WriteMessage(append([]byte("echo:"), data...))
	}
	srv, hs := startTestServer(t, DefaultServerConfig(), func(r *http.Request) (string, error) {
		return r.URL.Query().Get("user"), nil
	}, echo)

	connected := make(chan *Connection, 1)
	disconnected := make(chan *Connection, 1)
	srv.SetOnConnect(func(c *Connection) {
		connected <- c
		c.WriteMessage([]byte(`{"type":"hello"}`))
	})
	srv.SetOnDisconnect(func(c *Connection) { disconnected <- c })

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	conn, br, _, err := ws.Dial(ctx, wsURL(hs)+"/?user=alexsmith")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	// Frames that arrived with the handshake response sit in br.
	var rw io.ReadWriter = conn
	if br != nil {
		rw = struct {
			io.Reader
			io.Writer
		}{io.MultiReader(br, conn), conn}
	}

	c := <-connected
	if c.User != "alexsmith" {
		t.Errorf("expected user alexsmith, got %q", c.User)
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	hello, err := wsutil.ReadServerText(rw)
	if err != nil || string(hello) != `{"type":"hello"}` {
		t.Fatalf("expected hello, got %q (err=%v)", hello, err)
	}

	if err := wsutil.WriteClientText(conn, []byte("hi")); err != nil {
		t.Fatalf("write: %v", err)
	}
	reply, err := wsutil.ReadServerText(rw)
	if err != nil || string(reply) != "echo:hi" {
		t.Fatalf("expected echo, got %q (err=%v)", reply, err)
	}

	if n := srv.Connections().Count(); n != 1 {
		t.Errorf("expected 1 connection, got %d", n)
	}

	conn.Close()
	select {
	case gone := <-disconnected:
		if gone.ID != c.ID {
			t.Errorf("disconnect for wrong connection %s", gone.ID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("disconnect hook not called")
	}
	if n := srv.Connections().Count(); n != 0 {
		t.Errorf("expected 0 connections, got %d", n)
	}
}

func TestServerRejectsAdmission(t *testing.T) {
	_, hs := startTestServer(t, DefaultServerConfig(), func(r *http.Request) (string, error) {
		return "", &Rejection{Status: http.StatusForbidden, Reason: "unknown user"}
	}, nil)

	resp, err := http.Get(hs.URL)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("expected 403, got %d", resp.StatusCode)
	}
}

func TestServerConnectionCap(t *testing.T) {
	cfg := DefaultServerConfig()
	cfg.MaxConnections = 1
	srv, hs := startTestServer(t, cfg, nil, nil)

	connected := make(chan struct{}, 1)
	srv.SetOnConnect(func(*Connection) { connected <- struct{}{} })

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	conn, _, _, err := ws.Dial(ctx, wsURL(hs))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	<-connected

	resp, err := http.Get(hs.URL)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", resp.StatusCode)
	}
}

func TestHeartbeatEvictsStaleConnections(t *testing.T) {
	srv := NewServer(DefaultServerConfig(), nil, nil)
	c, _ := pipeConn(t)
	srv.Connections().Add(c)

	evicted := make(chan string, 1)
	srv.SetOnDisconnect(func(c *Connection) { evicted <- c.ID })

	cfg := HeartbeatConfig{Interval: time.Second, Timeout: time.Second}
	checkConnections(srv, cfg, time.Now().Add(5*time.Second))

	select {
	case id := <-evicted:
		if id != c.ID {
			t.Errorf("evicted %s, want %s", id, c.ID)
		}
	default:
		t.Fatal("stale connection was not evicted")
	}
}

func TestRejectionError(t *testing.T) {
	err := &Rejection{Status: http.StatusTooManyRequests, Reason: "slow down"}
	if !strings.Contains(err.Error(), "429") {
		t.Errorf("unexpected message %q", err.Error())
	}
}
