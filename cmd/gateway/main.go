package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/reelshare/dm-gateway/internal/config"
	"github.com/reelshare/dm-gateway/internal/gateway"
	"github.com/reelshare/dm-gateway/internal/history"
	"github.com/reelshare/dm-gateway/internal/httpapi"
	"github.com/reelshare/dm-gateway/internal/messaging"
	"github.com/reelshare/dm-gateway/internal/profile"
	"github.com/reelshare/dm-gateway/internal/protocol"
	"github.com/reelshare/dm-gateway/internal/ratelimit"
	"github.com/reelshare/dm-gateway/internal/session"
	"github.com/reelshare/dm-gateway/internal/ws"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if limit, err := ws.RaiseFileLimit(); err != nil {
		log.Printf("could not raise file limit: %v", err)
	} else if limit > 0 {
		log.Printf("file descriptor limit: %d", limit)
	}

	startCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// --- Directory (Postgres or seeded memory) ---
	var (
		directory profile.Directory = profile.NewSeededDirectory()
		db        *sql.DB
	)
	if cfg.Postgres.DSN != "" {
		if err := profile.Migrate(cfg.Postgres.DSN); err != nil {
			log.Fatalf("failed to migrate database: %v", err)
		}
		db, err = profile.OpenDB(startCtx, cfg.Postgres.DSN)
		if err != nil {
			log.Fatalf("failed to connect to Postgres: %v", err)
		}
		directory = profile.NewPostgresDirectory(db)
	}

	gwCfg := gateway.Config{
		Directory: directory,
		Transport: cfg.Transport,
		Archive:   history.NewMemoryArchive(cfg.History.MaxMessages),
	}

	// --- Redis ---
	var (
		sessionStore *session.Store
		limiter      *ratelimit.Limiter
		archive      history.Archive = gwCfg.Archive
	)
	if cfg.Redis.Addr != "" {
		sessionStore, err = session.Dial(cfg.Redis.Addr, cfg.Server.ServerName)
		if err != nil {
			log.Fatalf("failed to connect to Redis: %v", err)
		}
		rdb := sessionStore.Client()
		limiter = ratelimit.NewLimiter(rdb)
		archive = history.NewRedisArchive(rdb, cfg.History.MaxMessages, cfg.History.TTL)

		gwCfg.Sessions = sessionStore
		gwCfg.Limiter = limiter
		gwCfg.Archive = archive
	}

	// --- NATS ---
	var natsClient *messaging.NATSClient
	if cfg.NATS.URL != "" {
		natsConfig := messaging.DefaultNATSConfig()
		natsConfig.URL = cfg.NATS.URL
		natsClient, err = messaging.NewNATSClient(natsConfig)
		if err != nil {
			log.Fatalf("failed to connect to NATS: %v", err)
		}
		gwCfg.Publisher = natsClient
	}

	log.Printf("DM gateway starting")
	log.Printf("  listen_addr:      %s", cfg.Server.ListenAddr)
	log.Printf("  server_name:      %s", cfg.Server.ServerName)
	log.Printf("  max_connections:  %d", cfg.Server.MaxConnections)
	log.Printf("  read_timeout:     %s", cfg.Server.ReadTimeout)
	log.Printf("  write_timeout:    %s", cfg.Server.WriteTimeout)
	log.Printf("  redis_addr:       %s", orDisabled(cfg.Redis.Addr))
	log.Printf("  nats_url:         %s", orDisabled(cfg.NATS.URL))
	log.Printf("  directory:        %s", directoryKind(cfg.Postgres.DSN))
	log.Printf("  connect_latency:  %s", cfg.Transport.ConnectLatency)
	log.Printf("  response_latency: %s (+%s jitter)", cfg.Transport.ResponseLatency, cfg.Transport.ResponseJitter)
	log.Printf("  drop:             p=%.2f every %s, reconnect after %s",
		cfg.Transport.DropProbability, cfg.Transport.DropCheckInterval, cfg.Transport.ReconnectDelay)
	log.Printf("  history:          %d messages, ttl %s", cfg.History.MaxMessages, cfg.History.TTL)

	// Declared early so the gateway's writer and the hooks can share it.
	var server *ws.Server

	admit := func(r *http.Request) (string, error) {
		ctx := r.Context()

		if limiter != nil {
			ip := clientIP(r)
			if allowed, _ := limiter.Allow(ctx, ip, ratelimit.RuleConnect); !allowed {
				return "", &ws.Rejection{Status: http.StatusTooManyRequests, Reason: "too many connections"}
			}
		}

		username := r.URL.Query().Get("user")
		if username == "" {
			return "", &ws.Rejection{Status: http.StatusBadRequest, Reason: "user query parameter is required"}
		}
		user, err := directory.UserByUsername(ctx, username)
		if errors.Is(err, profile.ErrNotFound) {
			return "", &ws.Rejection{Status: http.StatusForbidden, Reason: "unknown user"}
		}
		if err != nil {
			return "", err
		}
		return user.Username, nil
	}

	dispatcher := ws.NewMessageDispatcher()
	server = ws.NewServer(ws.ServerConfig{
		MaxConnections: cfg.Server.MaxConnections,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		Heartbeat:      ws.DefaultHeartbeatConfig(),
	}, admit, dispatcher.Dispatch)

	gwCfg.Writer = server
	gw, err := gateway.New(gwCfg)
	if err != nil {
		log.Fatalf("failed to create gateway: %v", err)
	}

	// -----------------------------------------------------------------------
	// open_conversation: switch to a contact
	// -----------------------------------------------------------------------
	dispatcher.Register(protocol.TypeOpenConversation, func(conn *ws.Connection, msg interface{}) {
		openMsg, ok := msg.(protocol.OpenConversationMsg)
		if !ok {
			return
		}
		if err := gw.OpenConversation(context.Background(), conn.ID, openMsg.ContactID); err != nil {
			log.Printf("[open_conversation] session=%s contact=%d: %v", conn.ID, openMsg.ContactID, err)
		}
	})

	// -----------------------------------------------------------------------
	// close_conversation
	// -----------------------------------------------------------------------
	dispatcher.Register(protocol.TypeCloseConversation, func(conn *ws.Connection, msg interface{}) {
		if err := gw.CloseConversation(context.Background(), conn.ID); err != nil {
			log.Printf("[close_conversation] session=%s: %v", conn.ID, err)
		}
	})

	// -----------------------------------------------------------------------
	// send: outbound message in the open conversation
	// -----------------------------------------------------------------------
	dispatcher.Register(protocol.TypeSend, func(conn *ws.Connection, msg interface{}) {
		sendMsg, ok := msg.(protocol.SendMsg)
		if !ok {
			return
		}
		if err := gw.Send(context.Background(), conn.ID, sendMsg.Text); err != nil {
			log.Printf("[send] session=%s rejected: %v", conn.ID, err)
		}
	})

	server.SetOnConnect(func(c *ws.Connection) {
		if err := gw.Attach(c.ID, c.User); err != nil {
			log.Printf("[connect] session=%s attach failed: %v", c.ID, err)
		}
	})
	server.SetOnDisconnect(func(c *ws.Connection) {
		gw.Detach(c.ID)
	})
	server.Start()

	router := httpapi.NewRouter(httpapi.Deps{
		Directory:   directory,
		Archive:     archive,
		WebSocket:   server,
		Connections: func() int { return server.Connections().Count() },
		StartedAt:   time.Now(),
	})
	httpServer := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("listening on %s", cfg.Server.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	// Graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Printf("received signal %v, initiating graceful shutdown...", sig)

	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown error: %v", err)
	}
	// Hijacked WebSocket connections are not covered by http.Server.Shutdown.
	if err := server.Shutdown(); err != nil {
		log.Printf("ws shutdown error: %v", err)
	}
	gw.Shutdown()

	if natsClient != nil {
		natsClient.Close()
	}
	if sessionStore != nil {
		if err := sessionStore.Close(); err != nil {
			log.Printf("session store close error: %v", err)
		}
	}
	if db != nil {
		db.Close()
	}
	log.Printf("shutdown complete")
}

// clientIP strips the port from RemoteAddr. chi's RealIP middleware may
// already have replaced it with a bare address.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func orDisabled(v string) string {
	if v == "" {
		return "disabled"
	}
	return v
}

func directoryKind(dsn string) string {
	if dsn == "" {
		return "memory (seeded)"
	}
	return "postgres"
}
