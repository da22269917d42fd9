// Package loadgen drives a DM gateway over real WebSocket connections. A
// Client speaks the gateway protocol with gobwas/ws; a Collector aggregates
// latencies across many clients and prints percentile summaries.
package loadgen

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/reelshare/dm-gateway/internal/protocol"
)

// ErrClosed is returned by waits that outlive the connection.
var ErrClosed = errors.New("loadgen: connection closed")

// Client is one simulated user connected to the gateway.
type Client struct {
	conn net.Conn

	writeMu sync.Mutex

	mu        sync.Mutex
	handlers  map[string]func(json.RawMessage)
	sessionID string
	received  int
	sent      int

	sessionReady chan struct{}
	done         chan struct{}
	closeOnce    sync.Once

	// ConnectLatency is the time ws.Dial took.
	ConnectLatency time.Duration
}

// Dial connects to url (which carries the ?user= query) and starts reading.
func Dial(ctx context.Context, url string) (*Client, error) {
	start := time.Now()
	conn, br, _, err := ws.Dial(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("loadgen: dial: %w", err)
	}
	if br != nil {
		// Frames that arrived with the handshake response are still buffered.
		conn = &bufferedConn{Conn: conn, r: io.MultiReader(br, conn)}
	}

	c := &Client{
		conn:           conn,
		handlers:       make(map[string]func(json.RawMessage)),
		sessionReady:   make(chan struct{}),
		done:           make(chan struct{}),
		ConnectLatency: time.Since(start),
	}
	go c.readLoop()
	return c, nil
}

// On registers the handler for a server frame type, replacing any previous
// one. Handlers run on the read goroutine.
func (c *Client) On(msgType string, handler func(json.RawMessage)) {
	c.mu.Lock()
	c.handlers[msgType] = handler
	c.mu.Unlock()
}

// Send writes v as a JSON text frame.
func (c *Client) Send(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("loadgen: marshal: %w", err)
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := wsutil.WriteClientMessage(c.conn, ws.OpText, data); err != nil {
		return err
	}
	c.mu.Lock()
	c.sent++
	c.mu.Unlock()
	return nil
}

// OpenConversation asks the gateway to switch to contactID.
func (c *Client) OpenConversation(contactID int64) error {
	return c.Send(map[string]interface{}{
		"type":       protocol.TypeOpenConversation,
		"contact_id": contactID,
	})
}

// SendText sends a message in the open conversation.
func (c *Client) SendText(text string) error {
	return c.Send(map[string]string{"type": protocol.TypeSend, "text": text})
}

// WaitForSession blocks until session_created arrives.
func (c *Client) WaitForSession(ctx context.Context) error {
	select {
	case <-c.sessionReady:
		return nil
	case <-c.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SessionID is empty until session_created has been read.
func (c *Client) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// Counts returns the number of frames sent and received.
func (c *Client) Counts() (sent, received int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sent, c.received
}

// Done is closed when the connection ends.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close ends the connection. Safe to call more than once.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.conn.Close()
	})
	return err
}

func (c *Client) readLoop() {
	defer c.Close()

	for {
		data, err := wsutil.ReadServerText(c.conn)
		if err != nil {
			return
		}

		var env struct {
			Type      string `json:"type"`
			SessionID string `json:"session_id"`
		}
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}

		c.mu.Lock()
		c.received++
		if env.Type == protocol.TypeSessionCreated && c.sessionID == "" {
			c.sessionID = env.SessionID
			close(c.sessionReady)
		}
		handler := c.handlers[env.Type]
		c.mu.Unlock()

		if handler != nil {
			handler(json.RawMessage(data))
		}
	}
}

// bufferedConn reads through the handshake's leftover buffer first.
type bufferedConn struct {
	net.Conn
	r io.Reader
}

func (b *bufferedConn) Read(p []byte) (int, error) {
	return b.r.Read(p)
}
