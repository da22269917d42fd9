package transport

import (
	"fmt"
	"time"
)

// Sender identifies which side of a conversation produced a message.
type Sender int

const (
	SenderSelf Sender = iota
	SenderCounterparty
)

func (s Sender) String() string {
	switch s {
	case SenderSelf:
		return "self"
	case SenderCounterparty:
		return "counterparty"
	default:
		return fmt.Sprintf("Sender(%d)", int(s))
	}
}

// MarshalText encodes the sender as "self" or "counterparty".
func (s Sender) MarshalText() ([]byte, error) {
	switch s {
	case SenderSelf, SenderCounterparty:
		return []byte(s.String()), nil
	}
	return nil, fmt.Errorf("transport: invalid sender %d", int(s))
}

// UnmarshalText is the inverse of MarshalText.
func (s *Sender) UnmarshalText(b []byte) error {
	switch string(b) {
	case "self":
		*s = SenderSelf
	case "counterparty":
		*s = SenderCounterparty
	default:
		return fmt.Errorf("transport: invalid sender %q", b)
	}
	return nil
}

// Message is one entry in a session's message log.
type Message struct {
	ID        int64     `json:"id"`
	Sender    Sender    `json:"sender"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
	// ReplyTo is the ID of the outbound message a counterparty reply
	// answers; zero otherwise.
	ReplyTo int64 `json:"reply_to,omitempty"`
}

// State is the connection lifecycle phase of a session.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}
