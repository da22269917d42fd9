package transport

import (
	"fmt"
	"time"
)

// Config holds the simulated network conditions of a session.
type Config struct {
	ConnectLatency    time.Duration // open() until connected
	SyncDelay         time.Duration // connected until seed replay
	TypingDelay       time.Duration // send until counterparty starts typing
	ResponseLatency   time.Duration // typing start until reply, before jitter
	ResponseJitter    time.Duration // upper bound of random extra reply delay
	DropCheckInterval time.Duration // period of the spontaneous drop check
	DropProbability   float64       // chance of a drop per check, 0..1
	ReconnectDelay    time.Duration // drop until automatic reconnect
}

// DefaultConfig returns the conditions of a healthy but imperfect link.
func DefaultConfig() Config {
	return Config{
		ConnectLatency:    500 * time.Millisecond,
		SyncDelay:         300 * time.Millisecond,
		TypingDelay:       500 * time.Millisecond,
		ResponseLatency:   1500 * time.Millisecond,
		ResponseJitter:    2000 * time.Millisecond,
		DropCheckInterval: 30 * time.Second,
		DropProbability:   0.05,
		ReconnectDelay:    3 * time.Second,
	}
}

// Validate reports the first out-of-range field.
func (c Config) Validate() error {
	durations := []struct {
		name string
		d    time.Duration
	}{
		{"connect latency", c.ConnectLatency},
		{"sync delay", c.SyncDelay},
		{"typing delay", c.TypingDelay},
		{"response latency", c.ResponseLatency},
		{"response jitter", c.ResponseJitter},
		{"reconnect delay", c.ReconnectDelay},
	}
	for _, f := range durations {
		if f.d < 0 {
			return fmt.Errorf("transport: %s must not be negative, got %s", f.name, f.d)
		}
	}
	if c.DropCheckInterval <= 0 {
		return fmt.Errorf("transport: drop check interval must be positive, got %s", c.DropCheckInterval)
	}
	// Written so NaN fails too.
	if !(c.DropProbability >= 0 && c.DropProbability <= 1) {
		return fmt.Errorf("transport: drop probability must be within [0,1], got %v", c.DropProbability)
	}
	return nil
}
