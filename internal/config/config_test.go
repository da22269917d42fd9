package config

import (
	"testing"
	"time"

	"github.com/reelshare/dm-gateway/internal/transport"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Server.ListenAddr != ":8080" {
		t.Errorf("expected :8080, got %q", cfg.Server.ListenAddr)
	}
	if cfg.Transport != transport.DefaultConfig() {
		t.Errorf("expected default transport config, got %+v", cfg.Transport)
	}
	if cfg.Postgres.DSN != "" {
		t.Errorf("expected empty DSN, got %q", cfg.Postgres.DSN)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("LISTEN_ADDR", ":9090")
	t.Setenv("MAX_CONNECTIONS", "42")
	t.Setenv("READ_TIMEOUT", "5s")
	t.Setenv("DATABASE_URL", "postgres://localhost/dm?sslmode=disable")
	t.Setenv("DM_CONNECT_LATENCY", "50ms")
	t.Setenv("DM_RESPONSE_JITTER", "0s")
	t.Setenv("DM_DROP_PROBABILITY", "0")
	t.Setenv("HISTORY_MAX_MESSAGES", "20")
	t.Setenv("HISTORY_TTL", "1h")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Server.ListenAddr != ":9090" || cfg.Server.MaxConnections != 42 {
		t.Errorf("server overrides not applied: %+v", cfg.Server)
	}
	if cfg.Server.ReadTimeout != 5*time.Second {
		t.Errorf("expected 5s read timeout, got %v", cfg.Server.ReadTimeout)
	}
	if cfg.Postgres.DSN == "" {
		t.Error("expected DSN to be set")
	}
	if cfg.Transport.ConnectLatency != 50*time.Millisecond {
		t.Errorf("expected 50ms connect latency, got %v", cfg.Transport.ConnectLatency)
	}
	if cfg.Transport.ResponseJitter != 0 || cfg.Transport.DropProbability != 0 {
		t.Errorf("expected zero jitter and drop probability, got %+v", cfg.Transport)
	}
	if cfg.History.MaxMessages != 20 || cfg.History.TTL != time.Hour {
		t.Errorf("history overrides not applied: %+v", cfg.History)
	}
}

func TestLoadDisablesOptionalBackends(t *testing.T) {
	t.Setenv("REDIS_ADDR", "-")
	t.Setenv("NATS_URL", "-")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Redis.Addr != "" || cfg.NATS.URL != "" {
		t.Errorf("expected disabled backends, got redis=%q nats=%q", cfg.Redis.Addr, cfg.NATS.URL)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"MAX_CONNECTIONS", "many"},
		{"MAX_CONNECTIONS", "0"},
		{"WRITE_TIMEOUT", "10"},
		{"DM_SYNC_DELAY", "soon"},
		{"DM_DROP_PROBABILITY", "1.5"},
		{"DM_DROP_PROBABILITY", "NaN"},
		{"DM_DROP_CHECK_INTERVAL", "0s"},
		{"HISTORY_MAX_MESSAGES", "-1"},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			if _, err := Load(); err == nil {
				t.Errorf("expected error for %s=%q", tt.key, tt.value)
			}
		})
	}
}
