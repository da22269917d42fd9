package transport

import "fmt"

// EventKind is the closed set of events a session emits.
type EventKind int

const (
	EventConnected EventKind = iota
	EventDisconnected
	EventMessage
	EventTyping
)

func (k EventKind) String() string {
	switch k {
	case EventConnected:
		return "connected"
	case EventDisconnected:
		return "disconnected"
	case EventMessage:
		return "message"
	case EventTyping:
		return "typing"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Subscription identifies one registered handler. The zero value matches
// nothing.
type Subscription struct {
	Kind EventKind
	id   uint64
}

type handler[T any] struct {
	id uint64
	fn func(T)
}

// topic is an ordered handler list for one event kind.
type topic[T any] struct {
	handlers []handler[T]
}

func (t *topic[T]) add(id uint64, fn func(T)) {
	t.handlers = append(t.handlers, handler[T]{id: id, fn: fn})
}

func (t *topic[T]) remove(id uint64) bool {
	for i, h := range t.handlers {
		if h.id == id {
			t.handlers = append(t.handlers[:i:i], t.handlers[i+1:]...)
			return true
		}
	}
	return false
}

// publish calls every handler registered when publish started, in
// registration order, and stops early once halted reports true.
func (t *topic[T]) publish(v T, halted func() bool) {
	snapshot := t.handlers
	for _, h := range snapshot {
		if halted() {
			return
		}
		h.fn(v)
	}
}
