package transport

import "time"

// SeedMessage is a canned history entry replayed right after a session first
// connects. Age is how long before the replay the message was "sent".
type SeedMessage struct {
	Sender Sender
	Text   string
	Age    time.Duration
}

// DefaultSeed returns the three-message history every new conversation
// starts with.
func DefaultSeed() []SeedMessage {
	return []SeedMessage{
		{Sender: SenderCounterparty, Text: "Hey there! How are you doing?", Age: 25 * time.Minute},
		{Sender: SenderSelf, Text: "I'm doing great! Just finished that project we talked about.", Age: 24 * time.Minute},
		{Sender: SenderCounterparty, Text: "That's awesome! Can you show me a preview?", Age: 20 * time.Minute},
	}
}
