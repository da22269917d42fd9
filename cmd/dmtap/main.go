// Command dmtap follows the conversation events gateways mirror to NATS and
// logs them, one line per event.
package main

import (
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/reelshare/dm-gateway/internal/chat"
	"github.com/reelshare/dm-gateway/internal/messaging"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}
	log.Println("Starting DM event tap...")

	natsConfig := messaging.DefaultNATSConfig()
	if v := os.Getenv("NATS_URL"); v != "" {
		natsConfig.URL = v
	}
	natsConfig.Name = "dm-tap"

	// DMTAP_SUBJECT narrows the stream, e.g. dm.events.alexsmith.>
	subject := messaging.SubjectAllEvents
	if v := os.Getenv("DMTAP_SUBJECT"); v != "" {
		subject = v
	}

	natsClient, err := messaging.NewNATSClient(natsConfig)
	if err != nil {
		log.Fatalf("failed to connect to NATS: %v", err)
	}

	var (
		mu     sync.Mutex
		counts = make(map[string]int)
	)
	err = natsClient.SubscribeConversations(subject, func(subj string, ev chat.ConversationEvent) {
		mu.Lock()
		counts[ev.Type]++
		mu.Unlock()

		switch ev.Type {
		case chat.EventMessage:
			log.Printf("[tap] %s user=%s contact=%d #%d %s: %q",
				subj, ev.UserID, ev.ContactID, ev.MessageID, ev.Sender, ev.Text)
		case chat.EventTyping:
			log.Printf("[tap] %s user=%s contact=%d typing=%v", subj, ev.UserID, ev.ContactID, ev.IsTyping)
		default:
			log.Printf("[tap] %s user=%s contact=%d %s (session=%s)",
				subj, ev.UserID, ev.ContactID, ev.Type, ev.SessionID)
		}
	})
	if err != nil {
		log.Fatalf("failed to subscribe to %s: %v", subject, err)
	}

	log.Printf("DM event tap running")
	log.Printf("  nats_url: %s", natsConfig.URL)
	log.Printf("  subject:  %s", subject)

	// Graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Printf("received signal %v, shutting down...", sig)

	natsClient.Close()

	mu.Lock()
	defer mu.Unlock()
	for typ, n := range counts {
		log.Printf("  %-12s %d", typ, n)
	}
}
