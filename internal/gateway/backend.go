package gateway

import (
	"context"
	"log"
	"sync"
)

// backendQueueSize bounds the writes waiting for Redis.
const backendQueueSize = 1024

// backendWriter applies session record and archive writes in order on one
// goroutine, so client loops never wait on the network. Writes are
// fire-and-forget: failures are logged and a full queue drops the write.
type backendWriter struct {
	mu     sync.RWMutex
	closed bool
	jobs   chan func(ctx context.Context)
	done   chan struct{}
}

func newBackendWriter(size int) *backendWriter {
	w := &backendWriter{
		jobs: make(chan func(ctx context.Context), size),
		done: make(chan struct{}),
	}
	go w.run()
	return w
}

func (w *backendWriter) run() {
	defer close(w.done)
	for job := range w.jobs {
		ctx, cancel := context.WithTimeout(context.Background(), backendTimeout)
		job(ctx)
		cancel()
	}
}

// enqueue reports whether the job was accepted.
func (w *backendWriter) enqueue(name string, job func(ctx context.Context)) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return false
	}
	select {
	case w.jobs <- job:
		return true
	default:
		log.Printf("[gateway] backend queue full, dropping %s", name)
		return false
	}
}

// flush waits until every job queued before it has run.
func (w *backendWriter) flush() {
	ran := make(chan struct{})
	if w.enqueue("flush", func(context.Context) { close(ran) }) {
		<-ran
	}
}

// close stops accepting jobs and waits for the queue to drain.
func (w *backendWriter) close() {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.jobs)
	}
	w.mu.Unlock()
	<-w.done
}
