// Command dmload opens many gateway clients, has each one open a
// conversation and exchange messages, and reports connect, open and reply
// latencies.
//
// Usage:
//
//	dmload -url ws://localhost:8080/ws -clients 50 -messages 3
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/reelshare/dm-gateway/internal/loadgen"
	"github.com/reelshare/dm-gateway/internal/protocol"
)

func main() {
	url := flag.String("url", "ws://localhost:8080/ws", "gateway WebSocket URL")
	users := flag.String("users", "alexsmith,janedoe", "comma-separated usernames to cycle through")
	clients := flag.Int("clients", 50, "number of concurrent clients")
	contacts := flag.Int("contacts", 5, "contact ids 1..N are spread across clients")
	messages := flag.Int("messages", 3, "messages each client sends")
	interval := flag.Duration("interval", 3*time.Second, "pause between sends per client")
	rampUp := flag.Duration("ramp", 5*time.Second, "ramp-up duration for connection creation")
	concurrency := flag.Int("concurrency", 50, "maximum simultaneous connection attempts")
	replyTimeout := flag.Duration("reply-timeout", 15*time.Second, "how long to wait for outstanding replies")
	flag.Parse()

	names := strings.Split(*users, ",")
	if *clients <= 0 || *contacts <= 0 || len(names) == 0 || names[0] == "" {
		fmt.Fprintln(os.Stderr, "clients, contacts and users must be non-empty")
		os.Exit(2)
	}

	fmt.Printf("DM load: %d clients to %s (messages=%d, interval=%s, ramp=%s)\n",
		*clients, *url, *messages, *interval, *rampUp)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	collector := loadgen.NewCollector()

	step := *rampUp / time.Duration(*clients)
	if step <= 0 {
		step = time.Millisecond
	}
	sem := make(chan struct{}, *concurrency)

	var wg sync.WaitGroup
	for i := 0; i < *clients; i++ {
		select {
		case <-ctx.Done():
		case sem <- struct{}{}:
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				r := runner{
					url:          fmt.Sprintf("%s?user=%s", *url, names[i%len(names)]),
					contactID:    int64(i%*contacts) + 1,
					messages:     *messages,
					interval:     *interval,
					replyTimeout: *replyTimeout,
					stats:        collector,
				}
				if err := r.run(ctx, sem); err != nil {
					log.Printf("[dmload] client %d: %v", i, err)
					collector.AddError()
				}
			}(i)
			time.Sleep(step)
		}
	}
	wg.Wait()

	collector.Report(os.Stdout)
}

// runner is one client's scripted conversation.
type runner struct {
	url          string
	contactID    int64
	messages     int
	interval     time.Duration
	replyTimeout time.Duration
	stats        *loadgen.Collector
}

func (r *runner) run(ctx context.Context, sem chan struct{}) error {
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	c, err := loadgen.Dial(dialCtx, r.url)
	if err == nil {
		err = c.WaitForSession(dialCtx)
	}
	cancel()
	<-sem
	if err != nil {
		if c != nil {
			c.Close()
		}
		return err
	}
	defer c.Close()
	r.stats.AddConnect(c.ConnectLatency)

	var (
		mu          sync.Mutex
		sentAt      []time.Time
		replyNext   bool
		outstanding int
	)
	connected := make(chan struct{}, 1)
	repliesDone := make(chan struct{}, 1)

	c.On(protocol.TypeConnected, func(json.RawMessage) {
		select {
		case connected <- struct{}{}:
		default:
		}
	})
	c.On(protocol.TypeRateLimited, func(json.RawMessage) {
		r.stats.AddRateLimited()
	})
	// typing=false announces the reply that follows it.
	c.On(protocol.TypeTyping, func(raw json.RawMessage) {
		var m protocol.ServerTypingMsg
		if json.Unmarshal(raw, &m) == nil && !m.IsTyping {
			mu.Lock()
			replyNext = true
			mu.Unlock()
		}
	})
	c.On(protocol.TypeMessage, func(raw json.RawMessage) {
		var m protocol.ServerChatMsg
		if err := json.Unmarshal(raw, &m); err != nil {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		switch {
		case m.Sender == "self":
			sentAt = append(sentAt, time.Now())
			outstanding++
			r.stats.AddSend()
		case replyNext && len(sentAt) > 0:
			r.stats.AddReply(time.Since(sentAt[0]))
			sentAt = sentAt[1:]
			replyNext = false
			outstanding--
			if outstanding == 0 {
				select {
				case repliesDone <- struct{}{}:
				default:
				}
			}
		}
	})

	openedAt := time.Now()
	if err := c.OpenConversation(r.contactID); err != nil {
		return err
	}
	select {
	case <-connected:
		r.stats.AddOpen(time.Since(openedAt))
	case <-c.Done():
		return loadgen.ErrClosed
	case <-ctx.Done():
		return nil
	case <-time.After(10 * time.Second):
		return fmt.Errorf("contact %d never connected", r.contactID)
	}

	for n := 0; n < r.messages; n++ {
		if err := c.SendText(fmt.Sprintf("load message %d", n+1)); err != nil {
			return err
		}
		select {
		case <-time.After(r.interval):
		case <-c.Done():
			return loadgen.ErrClosed
		case <-ctx.Done():
			return nil
		}
	}

	deadline := time.After(r.replyTimeout)
	for {
		mu.Lock()
		waiting := outstanding > 0
		mu.Unlock()
		if !waiting {
			return nil
		}
		select {
		case <-repliesDone:
		case <-c.Done():
			return loadgen.ErrClosed
		case <-ctx.Done():
			return nil
		case <-deadline:
			return fmt.Errorf("timed out waiting for replies")
		}
	}
}
