package gateway

import (
	"context"
	"log"
	"strconv"
	"time"

	"github.com/reelshare/dm-gateway/internal/chat"
	"github.com/reelshare/dm-gateway/internal/eventloop"
	"github.com/reelshare/dm-gateway/internal/history"
	"github.com/reelshare/dm-gateway/internal/metrics"
	"github.com/reelshare/dm-gateway/internal/profile"
	"github.com/reelshare/dm-gateway/internal/protocol"
	"github.com/reelshare/dm-gateway/internal/session"
	"github.com/reelshare/dm-gateway/internal/transport"
)

// client is one attached connection. conv and everything under it is only
// touched on loop.
type client struct {
	gw   *Gateway
	id   string
	user string
	loop eventloop.Runner

	conv *conversation
}

type conversation struct {
	contact profile.Contact
	sess    *transport.Session
	subs    []transport.Subscription

	dropped bool
	// Send times of self messages still awaiting a reply, by message ID.
	sentAt map[int64]time.Time
}

func (c *client) openConversation(contact profile.Contact) error {
	c.closeConversation()

	opts := append([]transport.Option{
		transport.WithName(c.id[:min(8, len(c.id))] + "/" + strconv.FormatInt(contact.ID, 10)),
	}, c.gw.cfg.SessionOptions...)
	sess, err := transport.New(c.loop, c.gw.cfg.Transport, opts...)
	if err != nil {
		return err
	}

	conv := &conversation{contact: contact, sess: sess, sentAt: make(map[int64]time.Time)}
	conv.subs = []transport.Subscription{
		sess.OnConnected(func() { c.onConnected(conv) }),
		sess.OnDisconnected(func() { c.onDisconnected(conv) }),
		sess.OnMessage(func(m transport.Message) { c.onMessage(conv, m) }),
		sess.OnTyping(func(v bool) { c.onTyping(conv, v) }),
	}
	c.conv = conv
	metrics.ActiveConversations.Inc()

	c.write(protocol.TypeConversationOpened, protocol.ConversationOpenedMsg{
		Contact: protocol.ContactInfo{
			ID:       contact.ID,
			Name:     contact.Name,
			Status:   contact.Status,
			LastSeen: contact.LastSeen,
		},
	})
	log.Printf("[gateway] conn=%s opened conversation with contact=%d", c.id, contact.ID)

	sess.Open()
	return nil
}

// closeConversation unsubscribes before closing so the client sees no
// disconnected frame for a conversation it left.
func (c *client) closeConversation() {
	conv := c.conv
	if conv == nil {
		return
	}
	c.conv = nil

	for _, sub := range conv.subs {
		conv.sess.Unsubscribe(sub)
	}
	conv.sess.Close()
	metrics.ActiveConversations.Dec()

	c.publish(chat.NewStateEvent(chat.EventClosed, c.id, c.user, conv.contact.ID, c.loop.Now()))
	log.Printf("[gateway] conn=%s closed conversation with contact=%d", c.id, conv.contact.ID)
}

func (c *client) send(text string) error {
	conv := c.conv
	if conv == nil {
		return ErrNoConversation
	}
	msg, err := conv.sess.Send(text)
	if err != nil {
		return err
	}
	conv.sentAt[msg.ID] = msg.Timestamp
	return nil
}

func (c *client) onConnected(conv *conversation) {
	if conv.dropped {
		metrics.Reconnects.Inc()
	}
	c.write(protocol.TypeConnected, protocol.ConnectedMsg{ContactID: conv.contact.ID})
	c.publish(chat.NewStateEvent(chat.EventConnected, c.id, c.user, conv.contact.ID, c.loop.Now()))
	c.recordState(session.StateConnected)
}

func (c *client) onDisconnected(conv *conversation) {
	conv.dropped = true
	metrics.ConnectionDrops.Inc()
	c.write(protocol.TypeDisconnected, protocol.DisconnectedMsg{ContactID: conv.contact.ID})
	c.publish(chat.NewStateEvent(chat.EventDisconnected, c.id, c.user, conv.contact.ID, c.loop.Now()))
	c.recordState(session.StateDisconnected)
}

func (c *client) onMessage(conv *conversation, m transport.Message) {
	metrics.MessagesTotal.WithLabelValues(m.Sender.String()).Inc()
	c.write(protocol.TypeMessage, protocol.ServerChatMsg{
		ContactID: conv.contact.ID,
		ID:        m.ID,
		Sender:    m.Sender.String(),
		Text:      m.Text,
		Ts:        m.Timestamp.UnixMilli(),
		ReplyTo:   m.ReplyTo,
	})
	c.publish(chat.NewMessageEvent(c.id, c.user, conv.contact.ID, m))

	// Seed history is synthetic per session and is not archived.
	if m.Sender == transport.SenderCounterparty && m.ReplyTo == 0 {
		return
	}
	if sent, ok := conv.sentAt[m.ReplyTo]; ok {
		delete(conv.sentAt, m.ReplyTo)
		c.gw.observeReply(m.Timestamp.Sub(sent))
	}

	archive := c.gw.cfg.Archive
	if archive == nil {
		return
	}
	key := history.ConversationKey{UserID: c.user, ContactID: conv.contact.ID}
	entry := history.FromMessage(m)
	c.gw.backend.enqueue("archive append", func(ctx context.Context) {
		if err := archive.Append(ctx, key, entry); err != nil {
			log.Printf("[gateway] archive append failed conn=%s: %v", c.id, err)
		}
	})
}

func (c *client) onTyping(conv *conversation, typing bool) {
	c.write(protocol.TypeTyping, protocol.ServerTypingMsg{ContactID: conv.contact.ID, IsTyping: typing})
	c.publish(chat.NewTypingEvent(c.id, c.user, conv.contact.ID, typing, c.loop.Now()))
}

func (c *client) write(msgType string, payload interface{}) {
	data, err := protocol.NewServerMessage(msgType, payload)
	if err != nil {
		log.Printf("[gateway] failed to build %s frame conn=%s: %v", msgType, c.id, err)
		return
	}
	if err := c.gw.cfg.Writer.SendMessage(c.id, data); err != nil {
		log.Printf("[gateway] write %s failed conn=%s: %v", msgType, c.id, err)
	}
}

func (c *client) writeError(code, message string) {
	c.write(protocol.TypeError, protocol.ErrorMsg{Code: code, Message: message})
}

func (c *client) publish(ev chat.ConversationEvent) {
	if c.gw.cfg.Publisher == nil {
		return
	}
	if err := c.gw.cfg.Publisher.PublishConversationEvent(ev); err != nil {
		log.Printf("[gateway] publish %s failed conn=%s: %v", ev.Type, c.id, err)
	}
}

func (c *client) recordState(state string) {
	c.gw.recordSession("set state", c.id, func(ctx context.Context, s SessionRecorder) error {
		return s.SetState(ctx, c.id, state)
	})
}
