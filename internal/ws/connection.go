package ws

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// Connection is one attached WebSocket client.
type Connection struct {
	ID         string    // gateway session ID (UUID)
	User       string    // username admitted at upgrade
	RemoteAddr string    // client IP as seen by the HTTP layer
	Conn       net.Conn  // underlying TCP connection
	CreatedAt  time.Time // when the connection was established

	lastActive atomic.Int64 // unix nanos of the last frame read
	writeMu    sync.Mutex   // serializes writes to this connection
}

// WriteMessage sends a WebSocket text frame. The write mutex keeps concurrent
// writers from interleaving frame bytes.
func (c *Connection) WriteMessage(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return wsutil.WriteServerMessage(c.Conn, ws.OpText, data)
}

// WritePing sends a protocol-level ping frame.
func (c *Connection) WritePing() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return ws.WriteFrame(c.Conn, ws.NewPingFrame(nil))
}

func (c *Connection) writePong(payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return ws.WriteFrame(c.Conn, ws.NewPongFrame(payload))
}

// Touch records activity on the connection.
func (c *Connection) Touch() {
	c.lastActive.Store(time.Now().UnixNano())
}

// LastActive returns when the connection last showed activity.
func (c *Connection) LastActive() time.Time {
	return time.Unix(0, c.lastActive.Load())
}

// Close closes the underlying network connection.
func (c *Connection) Close() error {
	return c.Conn.Close()
}

// ConnectionManager is a thread-safe registry of connections by session ID.
type ConnectionManager struct {
	mu   sync.RWMutex
	byID map[string]*Connection
}

// NewConnectionManager creates an empty ConnectionManager ready for use.
func NewConnectionManager() *ConnectionManager {
	return &ConnectionManager{byID: make(map[string]*Connection)}
}

// Add registers a connection.
func (cm *ConnectionManager) Add(conn *Connection) {
	cm.mu.Lock()
	cm.byID[conn.ID] = conn
	cm.mu.Unlock()
}

// Remove unregisters a connection and closes it. Returns true if the
// connection was found and removed, false if it was already gone.
func (cm *ConnectionManager) Remove(id string) bool {
	cm.mu.Lock()
	conn, ok := cm.byID[id]
	if ok {
		delete(cm.byID, id)
	}
	cm.mu.Unlock()

	if ok {
		conn.Close()
	}
	return ok
}

// Get returns the connection for the given session ID, or nil if not found.
func (cm *ConnectionManager) Get(id string) *Connection {
	cm.mu.RLock()
	conn := cm.byID[id]
	cm.mu.RUnlock()
	return conn
}

// Count returns the current number of active connections.
func (cm *ConnectionManager) Count() int {
	cm.mu.RLock()
	n := len(cm.byID)
	cm.mu.RUnlock()
	return n
}

// All returns a snapshot of all current connections.
func (cm *ConnectionManager) All() []*Connection {
	cm.mu.RLock()
	conns := make([]*Connection, 0, len(cm.byID))
	for _, conn := range cm.byID {
		conns = append(conns, conn)
	}
	cm.mu.RUnlock()
	return conns
}
