// Package config loads the gateway's configuration from environment
// variables. Unset variables keep their defaults; malformed ones are errors.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/reelshare/dm-gateway/internal/history"
	"github.com/reelshare/dm-gateway/internal/transport"
)

// Config aggregates every setting the gateway needs.
type Config struct {
	Server    ServerConfig
	Redis     RedisConfig
	NATS      NATSConfig
	Postgres  PostgresConfig
	Transport transport.Config
	History   HistoryConfig
}

// ServerConfig describes the HTTP/WebSocket listener.
type ServerConfig struct {
	ListenAddr     string
	ServerName     string // identifies this instance in session records
	MaxConnections int
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
}

// RedisConfig locates Redis. An empty Addr runs without Redis.
type RedisConfig struct {
	Addr string
}

// NATSConfig locates NATS. An empty URL disables event mirroring.
type NATSConfig struct {
	URL string
}

// PostgresConfig locates the directory database. An empty DSN selects the
// in-memory directory.
type PostgresConfig struct {
	DSN string
}

// HistoryConfig bounds the per-conversation archive.
type HistoryConfig struct {
	MaxMessages int
	TTL         time.Duration
}

// Default returns the configuration used when no variables are set.
func Default() Config {
	return Config{
		Server: ServerConfig{
			ListenAddr:     ":8080",
			ServerName:     "gw-1",
			MaxConnections: 10000,
			ReadTimeout:    60 * time.Second,
			WriteTimeout:   10 * time.Second,
		},
		Redis:     RedisConfig{Addr: "localhost:6379"},
		NATS:      NATSConfig{URL: "nats://localhost:4222"},
		Transport: transport.DefaultConfig(),
		History: HistoryConfig{
			MaxMessages: history.DefaultMaxEntries,
			TTL:         history.DefaultTTL,
		},
	}
}

// Load reads the environment on top of Default.
func Load() (*Config, error) {
	cfg := Default()
	var err error

	if v := env("LISTEN_ADDR"); v != "" {
		cfg.Server.ListenAddr = v
	}
	if v := env("SERVER_NAME"); v != "" {
		cfg.Server.ServerName = v
	}
	if cfg.Server.MaxConnections, err = envInt("MAX_CONNECTIONS", cfg.Server.MaxConnections); err != nil {
		return nil, err
	}
	if cfg.Server.ReadTimeout, err = envDuration("READ_TIMEOUT", cfg.Server.ReadTimeout); err != nil {
		return nil, err
	}
	if cfg.Server.WriteTimeout, err = envDuration("WRITE_TIMEOUT", cfg.Server.WriteTimeout); err != nil {
		return nil, err
	}

	// "-" explicitly disables an optional backend.
	cfg.Redis.Addr = envOptional("REDIS_ADDR", cfg.Redis.Addr)
	cfg.NATS.URL = envOptional("NATS_URL", cfg.NATS.URL)
	cfg.Postgres.DSN = env("DATABASE_URL")

	t := &cfg.Transport
	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"DM_CONNECT_LATENCY", &t.ConnectLatency},
		{"DM_SYNC_DELAY", &t.SyncDelay},
		{"DM_TYPING_DELAY", &t.TypingDelay},
		{"DM_RESPONSE_LATENCY", &t.ResponseLatency},
		{"DM_RESPONSE_JITTER", &t.ResponseJitter},
		{"DM_DROP_CHECK_INTERVAL", &t.DropCheckInterval},
		{"DM_RECONNECT_DELAY", &t.ReconnectDelay},
		{"HISTORY_TTL", &cfg.History.TTL},
	}
	for _, d := range durations {
		if *d.dst, err = envDuration(d.key, *d.dst); err != nil {
			return nil, err
		}
	}
	if t.DropProbability, err = envFloat("DM_DROP_PROBABILITY", t.DropProbability); err != nil {
		return nil, err
	}
	if cfg.History.MaxMessages, err = envInt("HISTORY_MAX_MESSAGES", cfg.History.MaxMessages); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	if c.Server.MaxConnections <= 0 {
		return fmt.Errorf("config: MAX_CONNECTIONS must be positive, got %d", c.Server.MaxConnections)
	}
	if c.History.MaxMessages <= 0 {
		return fmt.Errorf("config: HISTORY_MAX_MESSAGES must be positive, got %d", c.History.MaxMessages)
	}
	if err := c.Transport.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

func env(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func envOptional(key, def string) string {
	v := env(key)
	switch v {
	case "":
		return def
	case "-":
		return ""
	}
	return v
}

func envInt(key string, def int) (int, error) {
	v := env(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: invalid %s %q: %w", key, v, err)
	}
	return n, nil
}

func envFloat(key string, def float64) (float64, error) {
	v := env(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("config: invalid %s %q: %w", key, v, err)
	}
	return f, nil
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	v := env(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("config: invalid %s %q: %w", key, v, err)
	}
	return d, nil
}
