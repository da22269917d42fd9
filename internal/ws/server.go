// Package ws upgrades HTTP requests to WebSocket connections, runs one reader
// goroutine per connection and hands complete text frames to a callback.
package ws

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/google/uuid"
)

// MaxMessageSize caps a client text message; larger messages close the
// connection.
const MaxMessageSize = 64 << 10

// ServerConfig holds tunable parameters for the WebSocket server.
type ServerConfig struct {
	MaxConnections int           // hard cap on total connections
	ReadTimeout    time.Duration // max silence before a connection is dropped
	WriteTimeout   time.Duration // timeout for WebSocket write operations
	Heartbeat      HeartbeatConfig
}

// DefaultServerConfig returns a ServerConfig with sensible production defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		MaxConnections: 10000,
		ReadTimeout:    60 * time.Second,
		WriteTimeout:   10 * time.Second,
		Heartbeat:      DefaultHeartbeatConfig(),
	}
}

// Rejection refuses an upgrade with an HTTP status.
type Rejection struct {
	Status int
	Reason string
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("ws: rejected (%d): %s", r.Status, r.Reason)
}

// AdmitFunc inspects an upgrade request before the handshake and returns the
// user the connection belongs to. A *Rejection error sets the HTTP status;
// any other error yields 500.
type AdmitFunc func(r *http.Request) (user string, err error)

// Server accepts WebSocket clients and tracks them until they go away.
type Server struct {
	config       ServerConfig
	conns        *ConnectionManager
	admit        AdmitFunc
	onConnect    func(c *Connection)
	onMessage    func(c *Connection, data []byte)
	onDisconnect func(c *Connection)

	wg       sync.WaitGroup
	done     chan struct{}
	stopOnce sync.Once
}

// NewServer creates a Server. onMessage is called from the connection's
// reader goroutine for every complete text message.
func NewServer(config ServerConfig, admit AdmitFunc, onMessage func(c *Connection, data []byte)) *Server {
	if config.MaxConnections <= 0 {
		config.MaxConnections = DefaultServerConfig().MaxConnections
	}
	if config.Heartbeat.Interval <= 0 {
		config.Heartbeat = DefaultHeartbeatConfig()
	}
	return &Server{
		config:    config,
		conns:     NewConnectionManager(),
		admit:     admit,
		onMessage: onMessage,
		done:      make(chan struct{}),
	}
}

// SetOnConnect registers a callback run after a connection is registered and
// before its first message is read.
func (s *Server) SetOnConnect(fn func(c *Connection)) {
	s.onConnect = fn
}

// SetOnDisconnect registers a callback invoked exactly once when a connection
// is removed (read error, heartbeat timeout, close frame or shutdown).
func (s *Server) SetOnDisconnect(fn func(c *Connection)) {
	s.onDisconnect = fn
}

// Start launches the heartbeat monitor. The server itself is mounted as an
// http.Handler by the caller.
func (s *Server) Start() {
	StartHeartbeat(s, s.config.Heartbeat)
	log.Printf("ws: accepting connections (max_conns=%d, read_timeout=%s)",
		s.config.MaxConnections, s.config.ReadTimeout)
}

// ServeHTTP upgrades the request and starts the connection's reader.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	select {
	case <-s.done:
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	default:
	}

	if s.conns.Count() >= s.config.MaxConnections {
		http.Error(w, "too many connections", http.StatusServiceUnavailable)
		return
	}

	user := ""
	if s.admit != nil {
		var err error
		user, err = s.admit(r)
		if err != nil {
			var rej *Rejection
			if errors.As(err, &rej) {
				http.Error(w, rej.Reason, rej.Status)
				return
			}
			log.Printf("ws: admit error: %v", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
	}

	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		log.Printf("ws: upgrade failed: %v", err)
		return
	}

	c := &Connection{
		ID:         uuid.New().String(),
		User:       user,
		RemoteAddr: r.RemoteAddr,
		Conn:       conn,
		CreatedAt:  time.Now(),
	}
	c.Touch()
	s.conns.Add(c)

	if s.onConnect != nil {
		s.onConnect(c)
	}

	log.Printf("ws: new connection session=%s user=%s (total=%d)", c.ID, user, s.conns.Count())

	s.wg.Add(1)
	go s.readLoop(c)
}

// readLoop reads frames until the connection fails or closes.
func (s *Server) readLoop(c *Connection) {
	defer s.wg.Done()
	defer s.RemoveConnection(c)

	for {
		if s.config.ReadTimeout > 0 {
			_ = c.Conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
		}

		header, reader, err := wsutil.NextReader(c.Conn, ws.StateServerSide)
		if err != nil {
			return
		}
		c.Touch()

		if header.OpCode.IsControl() {
			switch header.OpCode {
			case ws.OpClose:
				return
			case ws.OpPing:
				payload, _ := io.ReadAll(reader)
				if err := c.writePong(payload); err != nil {
					return
				}
			}
			continue
		}

		data, err := io.ReadAll(io.LimitReader(reader, MaxMessageSize+1))
		if err != nil {
			return
		}
		if len(data) > MaxMessageSize {
			log.Printf("ws: message too large session=%s", c.ID)
			return
		}
		if header.OpCode != ws.OpText || len(data) == 0 {
			continue
		}

		if s.onMessage != nil {
			s.onMessage(c, data)
		}
	}
}

// RemoveConnection unregisters and closes a connection. Concurrent callers
// (reader and heartbeat) are safe: only the first runs the disconnect hook.
func (s *Server) RemoveConnection(c *Connection) {
	if !s.conns.Remove(c.ID) {
		return
	}

	if s.onDisconnect != nil {
		s.onDisconnect(c)
	}

	log.Printf("ws: connection closed session=%s (total=%d)", c.ID, s.conns.Count())
}

// SendMessage writes a text frame to the connection identified by connID.
func (s *Server) SendMessage(connID string, data []byte) error {
	c := s.conns.Get(connID)
	if c == nil {
		return fmt.Errorf("ws: connection %s not found", connID)
	}

	if s.config.WriteTimeout > 0 {
		_ = c.Conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
	}

	err := c.WriteMessage(data)

	// Clear write deadline so it doesn't affect future writes (e.g., heartbeat pings).
	_ = c.Conn.SetWriteDeadline(time.Time{})

	return err
}

// Connections returns the ConnectionManager.
func (s *Server) Connections() *ConnectionManager {
	return s.conns
}

// Shutdown stops the heartbeat, closes every connection and waits for their
// readers to finish.
func (s *Server) Shutdown() error {
	log.Println("ws: shutting down server...")

	s.stopOnce.Do(func() { close(s.done) })

	for _, c := range s.conns.All() {
		s.RemoveConnection(c)
	}
	s.wg.Wait()

	log.Printf("ws: server stopped, all connections closed")
	return nil
}

// isTimeout reports whether err is a network timeout.
func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
