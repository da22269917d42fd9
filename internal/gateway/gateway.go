// Package gateway connects WebSocket clients to simulated conversations. Each
// attached client gets its own event loop and at most one open
// transport.Session; session events are written back to the client as
// protocol frames and mirrored to the archive, NATS and the session registry.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/reelshare/dm-gateway/internal/chat"
	"github.com/reelshare/dm-gateway/internal/eventloop"
	"github.com/reelshare/dm-gateway/internal/history"
	"github.com/reelshare/dm-gateway/internal/metrics"
	"github.com/reelshare/dm-gateway/internal/profile"
	"github.com/reelshare/dm-gateway/internal/protocol"
	"github.com/reelshare/dm-gateway/internal/ratelimit"
	"github.com/reelshare/dm-gateway/internal/transport"
)

// Errors returned to the connection handlers.
var (
	ErrUnknownClient  = errors.New("gateway: unknown client")
	ErrClientExists   = errors.New("gateway: client already attached")
	ErrNoConversation = errors.New("gateway: no open conversation")
	ErrRateLimited    = errors.New("gateway: rate limited")
)

// backendTimeout bounds each Redis or directory call made for a client.
const backendTimeout = 2 * time.Second

// FrameWriter delivers encoded frames to a client connection.
type FrameWriter interface {
	SendMessage(connID string, data []byte) error
}

// EventPublisher mirrors conversation events to observers.
type EventPublisher interface {
	PublishConversationEvent(ev chat.ConversationEvent) error
}

// SessionRecorder keeps the shared record of attached clients.
type SessionRecorder interface {
	Create(ctx context.Context, sessionID, user string) error
	SetConversation(ctx context.Context, sessionID string, contactID int64) error
	SetState(ctx context.Context, sessionID, state string) error
	ClearConversation(ctx context.Context, sessionID string) error
	Delete(ctx context.Context, sessionID string) error
}

// RateLimiter throttles client actions.
type RateLimiter interface {
	Allow(ctx context.Context, identifier string, rule ratelimit.Rule) (bool, error)
	RetryAfter(ctx context.Context, identifier string, rule ratelimit.Rule) (time.Duration, error)
}

// Config wires a Gateway. Writer and Directory are required; the other
// collaborators are skipped when nil.
type Config struct {
	Writer    FrameWriter
	Directory profile.Directory
	Archive   history.Archive
	Publisher EventPublisher
	Sessions  SessionRecorder
	Limiter   RateLimiter

	Transport transport.Config
	// SessionOptions are applied to every transport session.
	SessionOptions []transport.Option
	// NewLoop creates a client's event loop. Defaults to eventloop.NewReal.
	NewLoop func() eventloop.Runner
}

// Gateway tracks attached clients.
type Gateway struct {
	cfg     Config
	backend *backendWriter
	// observeReply receives each reply's latency.
	observeReply func(time.Duration)

	mu      sync.RWMutex
	clients map[string]*client
}

// New validates cfg and returns a Gateway.
func New(cfg Config) (*Gateway, error) {
	if cfg.Writer == nil {
		return nil, errors.New("gateway: frame writer is required")
	}
	if cfg.Directory == nil {
		return nil, errors.New("gateway: directory is required")
	}
	if err := cfg.Transport.Validate(); err != nil {
		return nil, fmt.Errorf("gateway: %w", err)
	}
	if cfg.NewLoop == nil {
		cfg.NewLoop = func() eventloop.Runner { return eventloop.NewReal(64) }
	}
	return &Gateway{
		cfg:     cfg,
		backend: newBackendWriter(backendQueueSize),
		observeReply: func(d time.Duration) {
			metrics.ReplyLatency.Observe(d.Seconds())
		},
		clients: make(map[string]*client),
	}, nil
}

// Attach registers a connected client and greets it with session_created.
func (g *Gateway) Attach(connID, user string) error {
	g.mu.Lock()
	if _, ok := g.clients[connID]; ok {
		g.mu.Unlock()
		return ErrClientExists
	}
	c := &client{gw: g, id: connID, user: user, loop: g.cfg.NewLoop()}
	g.clients[connID] = c
	n := len(g.clients)
	g.mu.Unlock()

	metrics.Connections.Inc()

	g.recordSession("create", connID, func(ctx context.Context, s SessionRecorder) error {
		return s.Create(ctx, connID, user)
	})

	c.write(protocol.TypeSessionCreated, protocol.SessionCreatedMsg{SessionID: connID, User: user})
	log.Printf("[gateway] attached conn=%s user=%s (clients=%d)", connID, user, n)
	return nil
}

// Detach closes the client's conversation and loop. Unknown clients are
// ignored.
func (g *Gateway) Detach(connID string) {
	g.mu.Lock()
	c, ok := g.clients[connID]
	delete(g.clients, connID)
	g.mu.Unlock()
	if !ok {
		return
	}

	c.loop.Do(c.closeConversation)
	c.loop.Close()
	metrics.Connections.Dec()

	g.recordSession("delete", connID, func(ctx context.Context, s SessionRecorder) error {
		return s.Delete(ctx, connID)
	})
	log.Printf("[gateway] detached conn=%s user=%s", connID, c.user)
}

// OpenConversation switches the client to contactID. A conversation already
// open is closed first without emitting a disconnected frame.
func (g *Gateway) OpenConversation(ctx context.Context, connID string, contactID int64) error {
	c := g.client(connID)
	if c == nil {
		return ErrUnknownClient
	}

	if !g.allow(ctx, c, c.user, ratelimit.RuleOpen) {
		return ErrRateLimited
	}

	lookupCtx, cancel := context.WithTimeout(ctx, backendTimeout)
	contact, err := g.cfg.Directory.Contact(lookupCtx, contactID)
	cancel()
	if err != nil {
		if errors.Is(err, profile.ErrNotFound) {
			c.writeError(protocol.ErrCodeUnknownContact, "unknown contact")
		} else {
			c.writeError(protocol.ErrCodeInternal, "directory unavailable")
		}
		return err
	}

	var openErr error
	ran := c.loop.Do(func() {
		openErr = c.openConversation(contact)
	})
	if !ran {
		return ErrUnknownClient
	}
	if openErr != nil {
		c.writeError(protocol.ErrCodeInternal, "could not open conversation")
		return openErr
	}

	g.recordSession("set conversation", connID, func(ctx context.Context, s SessionRecorder) error {
		return s.SetConversation(ctx, connID, contactID)
	})
	return nil
}

// CloseConversation ends the client's open conversation, if any.
func (g *Gateway) CloseConversation(ctx context.Context, connID string) error {
	c := g.client(connID)
	if c == nil {
		return ErrUnknownClient
	}
	if !c.loop.Do(c.closeConversation) {
		return ErrUnknownClient
	}

	g.recordSession("clear conversation", connID, func(ctx context.Context, s SessionRecorder) error {
		return s.ClearConversation(ctx, connID)
	})
	return nil
}

// Send validates text and hands it to the open conversation. The text is
// forwarded untrimmed; the self message frame is written before Send
// returns.
func (g *Gateway) Send(ctx context.Context, connID, text string) error {
	c := g.client(connID)
	if c == nil {
		return ErrUnknownClient
	}

	if err := chat.ValidateMessage(text); err != nil {
		metrics.SendRejected.WithLabelValues("invalid").Inc()
		c.writeError(protocol.ErrCodeInvalidMessage, err.Error())
		return err
	}

	if !g.allow(ctx, c, c.user, ratelimit.RuleSend) {
		metrics.SendRejected.WithLabelValues("rate_limited").Inc()
		return ErrRateLimited
	}

	var sendErr error
	ran := c.loop.Do(func() {
		sendErr = c.send(text)
	})
	if !ran {
		return ErrUnknownClient
	}

	switch {
	case errors.Is(sendErr, ErrNoConversation):
		metrics.SendRejected.WithLabelValues("no_conversation").Inc()
		c.writeError(protocol.ErrCodeNoConversation, "no conversation is open")
	case errors.Is(sendErr, transport.ErrNotConnected):
		metrics.SendRejected.WithLabelValues("not_connected").Inc()
		c.writeError(protocol.ErrCodeNotConnected, "conversation is not connected")
	}
	return sendErr
}

// Clients returns the number of attached clients.
func (g *Gateway) Clients() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.clients)
}

// Shutdown detaches every client and waits for pending backend writes.
func (g *Gateway) Shutdown() {
	g.mu.RLock()
	ids := make([]string, 0, len(g.clients))
	for id := range g.clients {
		ids = append(ids, id)
	}
	g.mu.RUnlock()

	for _, id := range ids {
		g.Detach(id)
	}
	g.backend.close()
}

// recordSession queues a session record write behind earlier ones.
func (g *Gateway) recordSession(op, connID string, write func(ctx context.Context, s SessionRecorder) error) {
	if g.cfg.Sessions == nil {
		return
	}
	g.backend.enqueue("session "+op, func(ctx context.Context) {
		if err := write(ctx, g.cfg.Sessions); err != nil {
			log.Printf("[gateway] session record %s failed conn=%s: %v", op, connID, err)
		}
	})
}

func (g *Gateway) client(connID string) *client {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.clients[connID]
}

// allow applies rule to identifier and tells the client when it is throttled.
// Limiter errors fail open.
func (g *Gateway) allow(ctx context.Context, c *client, identifier string, rule ratelimit.Rule) bool {
	if g.cfg.Limiter == nil {
		return true
	}
	rctx, cancel := context.WithTimeout(ctx, backendTimeout)
	defer cancel()

	ok, _ := g.cfg.Limiter.Allow(rctx, identifier, rule)
	if ok {
		return true
	}

	wait, _ := g.cfg.Limiter.RetryAfter(rctx, identifier, rule)
	secs := int((wait + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	c.write(protocol.TypeRateLimited, protocol.RateLimitedMsg{RetryAfter: secs})
	log.Printf("[gateway] rate limited conn=%s rule=%s retry_after=%ds", c.id, rule.Key, secs)
	return false
}
