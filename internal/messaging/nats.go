// Package messaging provides a NATS client wrapper that mirrors gateway
// conversation events onto dm.events.<user>.<contact> so other services can
// observe direct-message traffic without talking to the gateway.
package messaging

import (
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/reelshare/dm-gateway/internal/chat"
)

// NATS subject patterns.
const (
	SubjectEvents    = "dm.events" // + .<user>.<contact>
	SubjectAllEvents = SubjectEvents + ".>"
)

// NATSClient wraps the NATS connection with helper methods for pub/sub.
type NATSClient struct {
	conn *nats.Conn
	mu   sync.Mutex
	subs map[string]*nats.Subscription
}

// NATSConfig holds NATS connection settings.
type NATSConfig struct {
	URL           string        // nats://localhost:4222
	Name          string        // client name for identification
	ReconnectWait time.Duration // time between reconnect attempts
	MaxReconnects int           // max reconnect attempts (-1 for infinite)
}

// DefaultNATSConfig returns sensible defaults.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           "nats://localhost:4222",
		Name:          "dm-gateway",
		ReconnectWait: 2 * time.Second,
		MaxReconnects: -1, // infinite reconnects
	}
}

// NewNATSClient connects to NATS with the given config and returns a ready client.
// It returns an error if the initial connection fails.
func NewNATSClient(config NATSConfig) (*NATSClient, error) {
	opts := []nats.Option{
		nats.Name(config.Name),
		nats.ReconnectWait(config.ReconnectWait),
		nats.MaxReconnects(config.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Printf("[nats] disconnected: %v", err)
			} else {
				log.Printf("[nats] disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("[nats] reconnected to %s", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			log.Printf("[nats] connection closed")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	log.Printf("[nats] connected to %s", nc.ConnectedUrl())

	return &NATSClient{
		conn: nc,
		subs: make(map[string]*nats.Subscription),
	}, nil
}

// EventSubject returns the subject a conversation's events are published on.
// Characters that NATS treats as separators or wildcards are replaced in the
// user token.
func EventSubject(userID string, contactID int64) string {
	return SubjectEvents + "." + subjectToken(userID) + "." + strconv.FormatInt(contactID, 10)
}

var tokenReplacer = strings.NewReplacer(".", "_", "*", "_", ">", "_", " ", "_")

func subjectToken(s string) string {
	if s == "" {
		return "_"
	}
	return tokenReplacer.Replace(s)
}

// Publish sends data to the given NATS subject.
func (c *NATSClient) Publish(subject string, data []byte) error {
	return c.conn.Publish(subject, data)
}

// PublishConversationEvent mirrors one conversation event.
func (c *NATSClient) PublishConversationEvent(ev chat.ConversationEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("nats marshal event: %w", err)
	}
	return c.Publish(EventSubject(ev.UserID, ev.ContactID), data)
}

// Subscribe registers a handler for the given subject and stores the
// subscription internally for later cleanup.
func (c *NATSClient) Subscribe(subject string, handler func(msg *nats.Msg)) error {
	sub, err := c.conn.Subscribe(subject, handler)
	if err != nil {
		return fmt.Errorf("nats subscribe %s: %w", subject, err)
	}

	c.mu.Lock()
	if old, ok := c.subs[subject]; ok {
		old.Unsubscribe()
	}
	c.subs[subject] = sub
	c.mu.Unlock()

	return nil
}

// SubscribeConversations decodes every event matching pattern (for example
// SubjectAllEvents or EventSubject(user, contact)) and hands it to handler.
// Undecodable payloads are logged and skipped.
func (c *NATSClient) SubscribeConversations(pattern string, handler func(subject string, ev chat.ConversationEvent)) error {
	return c.Subscribe(pattern, func(msg *nats.Msg) {
		var ev chat.ConversationEvent
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			log.Printf("[nats] bad event on %s: %v", msg.Subject, err)
			return
		}
		handler(msg.Subject, ev)
	})
}

// Unsubscribe removes the subscription registered for subject.
func (c *NATSClient) Unsubscribe(subject string) error {
	c.mu.Lock()
	sub, ok := c.subs[subject]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("nats: no subscription for subject %s", subject)
	}
	delete(c.subs, subject)
	c.mu.Unlock()

	if err := sub.Unsubscribe(); err != nil {
		return fmt.Errorf("nats unsubscribe %s: %w", subject, err)
	}
	return nil
}

// Close drains all active subscriptions and closes the NATS connection.
func (c *NATSClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for subject, sub := range c.subs {
		if err := sub.Drain(); err != nil {
			log.Printf("[nats] drain %s: %v", subject, err)
		}
	}
	c.subs = make(map[string]*nats.Subscription)

	if err := c.conn.Drain(); err != nil {
		log.Printf("[nats] connection drain: %v", err)
	}

	log.Printf("[nats] client closed")
}
