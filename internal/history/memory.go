package history

import (
	"context"
	"sync"
)

// MemoryArchive keeps the last N entries per conversation in process memory.
// It is goroutine-safe and uses a ring buffer per conversation.
type MemoryArchive struct {
	mu       sync.RWMutex
	capacity int
	buffers  map[ConversationKey]*ringBuffer
}

// ringBuffer is a fixed-size circular buffer of Entry.
type ringBuffer struct {
	items []Entry
	pos   int
	count int
}

// NewMemoryArchive creates an empty archive retaining capacity entries per
// conversation.
func NewMemoryArchive(capacity int) *MemoryArchive {
	if capacity <= 0 {
		capacity = DefaultMaxEntries
	}
	return &MemoryArchive{
		capacity: capacity,
		buffers:  make(map[ConversationKey]*ringBuffer),
	}
}

// Append adds an entry, overwriting the oldest one when the buffer is full.
func (a *MemoryArchive) Append(_ context.Context, key ConversationKey, e Entry) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	rb, ok := a.buffers[key]
	if !ok {
		rb = &ringBuffer{items: make([]Entry, a.capacity)}
		a.buffers[key] = rb
	}

	rb.items[rb.pos] = e
	rb.pos = (rb.pos + 1) % a.capacity
	if rb.count < a.capacity {
		rb.count++
	}
	return nil
}

// Recent returns up to n of the newest entries, oldest first. n <= 0 returns
// everything retained. An unknown conversation yields an empty slice.
func (a *MemoryArchive) Recent(_ context.Context, key ConversationKey, n int) ([]Entry, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	rb, ok := a.buffers[key]
	if !ok {
		return []Entry{}, nil
	}

	if n <= 0 || n > rb.count {
		n = rb.count
	}
	result := make([]Entry, n)
	// The oldest wanted entry sits n slots behind the write position.
	start := (rb.pos - n + a.capacity) % a.capacity
	for i := 0; i < n; i++ {
		result[i] = rb.items[(start+i)%a.capacity]
	}
	return result, nil
}

// Clear drops a conversation's buffer.
func (a *MemoryArchive) Clear(_ context.Context, key ConversationKey) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	delete(a.buffers, key)
	return nil
}
