package ws

import (
	"log"
	"time"
)

// HeartbeatConfig holds heartbeat tuning parameters.
type HeartbeatConfig struct {
	Interval time.Duration // how often to ping (default: 30s)
	Timeout  time.Duration // max time to wait for activity after ping (default: 10s)
}

// DefaultHeartbeatConfig returns sensible defaults for heartbeat monitoring.
func DefaultHeartbeatConfig() HeartbeatConfig {
	return HeartbeatConfig{
		Interval: 30 * time.Second,
		Timeout:  10 * time.Second,
	}
}

// StartHeartbeat begins a background goroutine that pings every connection
// each Interval and evicts those silent for longer than Interval + Timeout.
// The goroutine exits on Shutdown.
func StartHeartbeat(server *Server, config HeartbeatConfig) {
	go func() {
		ticker := time.NewTicker(config.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-server.done:
				return
			case <-ticker.C:
				checkConnections(server, config, time.Now())
			}
		}
	}()
}

// checkConnections evicts stale connections and pings the rest. Browsers
// answer the ping with a pong, which the reader counts as activity.
func checkConnections(server *Server, config HeartbeatConfig, now time.Time) {
	deadline := config.Interval + config.Timeout

	for _, c := range server.Connections().All() {
		idle := now.Sub(c.LastActive())
		if idle > deadline {
			log.Printf("ws: heartbeat timeout session=%s last_activity=%s ago",
				c.ID, idle.Round(time.Second))
			server.RemoveConnection(c)
			continue
		}

		if err := c.WritePing(); err != nil {
			if !isTimeout(err) {
				log.Printf("ws: heartbeat ping failed session=%s: %v", c.ID, err)
			}
			server.RemoveConnection(c)
		}
	}
}
