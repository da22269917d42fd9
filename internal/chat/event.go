// Package chat holds the pieces of direct messaging shared by the gateway
// and its observers: input validation and the event payload mirrored to
// NATS.
package chat

import (
	"time"

	"github.com/reelshare/dm-gateway/internal/transport"
)

// Conversation event types.
const (
	EventConnected    = "connected"
	EventDisconnected = "disconnected"
	EventMessage      = "message"
	EventTyping       = "typing"
	EventClosed       = "closed"
)

// ConversationEvent is the payload published to dm.events.<user>.<contact>
// for every event a gateway session emits.
type ConversationEvent struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"` // gateway client ID
	UserID    string `json:"user_id"`
	ContactID int64  `json:"contact_id"`
	MessageID int64  `json:"message_id,omitempty"` // for message events
	Sender    string `json:"sender,omitempty"`
	Text      string `json:"text,omitempty"`
	IsTyping  bool   `json:"is_typing,omitempty"`
	Ts        int64  `json:"ts"`
}

// NewMessageEvent builds the event for a transport message.
func NewMessageEvent(sessionID, userID string, contactID int64, m transport.Message) ConversationEvent {
	return ConversationEvent{
		Type:      EventMessage,
		SessionID: sessionID,
		UserID:    userID,
		ContactID: contactID,
		MessageID: m.ID,
		Sender:    m.Sender.String(),
		Text:      m.Text,
		Ts:        m.Timestamp.Unix(),
	}
}

// NewStateEvent builds a connected, disconnected, or closed event.
func NewStateEvent(eventType, sessionID, userID string, contactID int64, at time.Time) ConversationEvent {
	return ConversationEvent{
		Type:      eventType,
		SessionID: sessionID,
		UserID:    userID,
		ContactID: contactID,
		Ts:        at.Unix(),
	}
}

// NewTypingEvent builds a typing event.
func NewTypingEvent(sessionID, userID string, contactID int64, typing bool, at time.Time) ConversationEvent {
	return ConversationEvent{
		Type:      EventTyping,
		SessionID: sessionID,
		UserID:    userID,
		ContactID: contactID,
		IsTyping:  typing,
		Ts:        at.Unix(),
	}
}
