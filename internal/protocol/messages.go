// Package protocol defines the JSON frames exchanged between a direct-message
// client and the gateway over WebSocket. Every frame is an object carrying a
// "type" discriminator.
package protocol

import (
	"encoding/json"
	"fmt"
)

// Client -> Server message types.
const (
	TypeOpenConversation  = "open_conversation"
	TypeCloseConversation = "close_conversation"
	TypeSend              = "send"
	TypePing              = "ping"
)

// Server -> Client message types.
const (
	TypeSessionCreated     = "session_created"
	TypeConversationOpened = "conversation_opened"
	TypeConnected          = "connected"
	TypeDisconnected       = "disconnected"
	TypeMessage            = "message"
	TypeTyping             = "typing"
	TypeRateLimited        = "rate_limited"
	TypeError              = "error"
	TypePong               = "pong"
)

// Error codes carried by ErrorMsg.
const (
	ErrCodeParse          = "parse_error"
	ErrCodeUnsupported    = "unsupported_type"
	ErrCodeUnknownContact = "unknown_contact"
	ErrCodeNoConversation = "no_conversation"
	ErrCodeNotConnected   = "not_connected"
	ErrCodeInvalidMessage = "invalid_message"
	ErrCodeInternal       = "internal_error"
)

// Envelope holds the message type and the raw JSON payload for deferred
// parsing into a concrete struct.
type Envelope struct {
	Type string          `json:"type"`
	Raw  json.RawMessage `json:"-"`
}

// UnmarshalJSON keeps the whole frame in Raw and extracts only "type".
func (e *Envelope) UnmarshalJSON(data []byte) error {
	e.Raw = make(json.RawMessage, len(data))
	copy(e.Raw, data)

	var partial struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &partial); err != nil {
		return fmt.Errorf("protocol: failed to unmarshal envelope: %w", err)
	}
	if partial.Type == "" {
		return fmt.Errorf("protocol: missing or empty \"type\" field")
	}
	e.Type = partial.Type
	return nil
}

// OpenConversationMsg selects the contact to talk to, replacing any
// conversation already open on the connection.
type OpenConversationMsg struct {
	Type      string `json:"type"`
	ContactID int64  `json:"contact_id"`
}

// CloseConversationMsg ends the open conversation.
type CloseConversationMsg struct {
	Type string `json:"type"`
}

// SendMsg is a text message for the open conversation.
type SendMsg struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// PingMsg is a client-initiated keepalive ping.
type PingMsg struct {
	Type string `json:"type"`
}

// SessionCreatedMsg is sent once the connection is attached.
type SessionCreatedMsg struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	User      string `json:"user"`
}

// ContactInfo describes the counterparty of a conversation.
type ContactInfo struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Status   string `json:"status"`
	LastSeen string `json:"last_seen"`
}

// ConversationOpenedMsg confirms an open_conversation. Connection state
// frames follow.
type ConversationOpenedMsg struct {
	Type    string      `json:"type"`
	Contact ContactInfo `json:"contact"`
}

// ConnectedMsg reports that the conversation's connection is up.
type ConnectedMsg struct {
	Type      string `json:"type"`
	ContactID int64  `json:"contact_id"`
}

// DisconnectedMsg reports that the conversation's connection went down.
type DisconnectedMsg struct {
	Type      string `json:"type"`
	ContactID int64  `json:"contact_id"`
}

// ServerChatMsg is one message in the conversation log, from either side.
type ServerChatMsg struct {
	Type      string `json:"type"`
	ContactID int64  `json:"contact_id"`
	ID        int64  `json:"id"`
	Sender    string `json:"sender"` // "self" | "counterparty"
	Text      string `json:"text"`
	Ts        int64  `json:"ts"` // unix milliseconds
	ReplyTo   int64  `json:"reply_to,omitempty"`
}

// ServerTypingMsg relays the counterparty's typing indicator.
type ServerTypingMsg struct {
	Type      string `json:"type"`
	ContactID int64  `json:"contact_id"`
	IsTyping  bool   `json:"is_typing"`
}

// RateLimitedMsg is sent when a request was throttled. RetryAfter is in
// seconds.
type RateLimitedMsg struct {
	Type       string `json:"type"`
	RetryAfter int    `json:"retry_after"`
}

// ErrorMsg is sent by the server to communicate an error condition.
type ErrorMsg struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// PongMsg is the server's response to a client ping.
type PongMsg struct {
	Type string `json:"type"`
}

// IsClientType reports whether t is a message type clients may send.
func IsClientType(t string) bool {
	switch t {
	case TypeOpenConversation, TypeCloseConversation, TypeSend, TypePing:
		return true
	}
	return false
}

// ParseClientMessage parses raw WebSocket bytes into a typed client message.
// Unknown and server-only types are errors.
func ParseClientMessage(data []byte) (string, interface{}, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, fmt.Errorf("protocol: failed to parse message: %w", err)
	}

	var (
		msg interface{}
		err error
	)

	switch env.Type {
	case TypeOpenConversation:
		var m OpenConversationMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeCloseConversation:
		var m CloseConversationMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeSend:
		var m SendMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypePing:
		var m PingMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	default:
		return env.Type, nil, fmt.Errorf("protocol: unknown client message type: %q", env.Type)
	}

	if err != nil {
		return env.Type, nil, fmt.Errorf("protocol: failed to decode %q payload: %w", env.Type, err)
	}
	return env.Type, msg, nil
}

// NewServerMessage encodes payload with its "type" field forced to msgType,
// so callers may leave Type unset on the struct.
func NewServerMessage(msgType string, payload interface{}) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal payload: %w", err)
	}

	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("protocol: payload is not an object: %w", err)
	}

	typ, _ := json.Marshal(msgType)
	m["type"] = typ

	out, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal server message: %w", err)
	}
	return out, nil
}
