package loadgen

import (
	"fmt"
	"io"
	"math"
	"sort"
	"sync"
	"time"
)

// Summary is a percentile digest of a latency sample.
type Summary struct {
	Count              int
	Avg, P50, P95, P99 time.Duration
	Max                time.Duration
}

// Summarize sorts durations in place and digests them. An empty sample
// yields a zero Summary.
func Summarize(durations []time.Duration) Summary {
	n := len(durations)
	if n == 0 {
		return Summary{}
	}
	sort.Slice(durations, func(i, j int) bool { return durations[i] < durations[j] })

	var sum time.Duration
	for _, d := range durations {
		sum += d
	}
	return Summary{
		Count: n,
		Avg:   sum / time.Duration(n),
		P50:   durations[n/2],
		P95:   durations[int(math.Ceil(float64(n)*0.95))-1],
		P99:   durations[int(math.Ceil(float64(n)*0.99))-1],
		Max:   durations[n-1],
	}
}

func (s Summary) String() string {
	return fmt.Sprintf("avg: %v  p50: %v  p95: %v  p99: %v  max: %v  (n=%d)",
		s.Avg.Round(time.Microsecond),
		s.P50.Round(time.Microsecond),
		s.P95.Round(time.Microsecond),
		s.P99.Round(time.Microsecond),
		s.Max.Round(time.Microsecond),
		s.Count,
	)
}

// Collector aggregates results from many clients. All methods are
// goroutine-safe.
type Collector struct {
	mu               sync.Mutex
	connectLatencies []time.Duration
	openLatencies    []time.Duration
	replyLatencies   []time.Duration
	connections      int
	sent             int
	rateLimited      int
	errors           int
	startTime        time.Time
}

// NewCollector starts the clock now.
func NewCollector() *Collector {
	return &Collector{startTime: time.Now()}
}

// AddConnect records a WebSocket handshake.
func (c *Collector) AddConnect(d time.Duration) {
	c.mu.Lock()
	c.connectLatencies = append(c.connectLatencies, d)
	c.connections++
	c.mu.Unlock()
}

// AddOpen records the time from open_conversation to connected.
func (c *Collector) AddOpen(d time.Duration) {
	c.mu.Lock()
	c.openLatencies = append(c.openLatencies, d)
	c.mu.Unlock()
}

// AddSend counts an accepted send.
func (c *Collector) AddSend() {
	c.mu.Lock()
	c.sent++
	c.mu.Unlock()
}

// AddReply records the time from send to the counterparty reply.
func (c *Collector) AddReply(d time.Duration) {
	c.mu.Lock()
	c.replyLatencies = append(c.replyLatencies, d)
	c.mu.Unlock()
}

// AddRateLimited counts a rate_limited frame.
func (c *Collector) AddRateLimited() {
	c.mu.Lock()
	c.rateLimited++
	c.mu.Unlock()
}

// AddError counts a failed client.
func (c *Collector) AddError() {
	c.mu.Lock()
	c.errors++
	c.mu.Unlock()
}

// Replies returns the number of replies recorded so far.
func (c *Collector) Replies() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.replyLatencies)
}

// Report writes the results to w.
func (c *Collector) Report(w io.Writer) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fmt.Fprintln(w, "\n=== DM Load Results ===")
	fmt.Fprintf(w, "Duration:      %s\n", time.Since(c.startTime).Round(time.Second))
	fmt.Fprintf(w, "Connections:   %d\n", c.connections)
	fmt.Fprintf(w, "Sends:         %d\n", c.sent)
	fmt.Fprintf(w, "Replies:       %d\n", len(c.replyLatencies))
	fmt.Fprintf(w, "Rate limited:  %d\n", c.rateLimited)
	fmt.Fprintf(w, "Errors:        %d\n", c.errors)

	sections := []struct {
		title   string
		samples []time.Duration
	}{
		{"Connect Latency", c.connectLatencies},
		{"Open -> Connected", c.openLatencies},
		{"Reply Latency", c.replyLatencies},
	}
	for _, s := range sections {
		if len(s.samples) == 0 {
			continue
		}
		fmt.Fprintf(w, "\n--- %s ---\n  %s\n", s.title, Summarize(s.samples))
	}
	fmt.Fprintln(w)
}
