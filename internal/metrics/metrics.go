// Package metrics provides Prometheus instrumentation for the direct-message
// gateway: connection and conversation gauges, message and rejection
// counters, and the observed counterparty reply latency.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Connections tracks the current number of attached WebSocket clients.
	Connections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "dm_connections",
		Help: "Current number of attached WebSocket clients",
	})

	// ActiveConversations tracks the number of open transport sessions.
	ActiveConversations = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "dm_active_conversations",
		Help: "Current number of open conversation sessions",
	})

	// MessagesTotal counts delivered messages, labeled by sender:
	// "self" or "counterparty".
	MessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dm_messages_total",
		Help: "Total number of messages delivered to clients",
	}, []string{"sender"})

	// SendRejected counts sends refused before reaching a session, labeled
	// by reason: "invalid", "rate_limited", "not_connected", "no_conversation".
	SendRejected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dm_send_rejected_total",
		Help: "Total number of rejected sends",
	}, []string{"reason"})

	// ConnectionDrops counts simulated connection drops.
	ConnectionDrops = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dm_connection_drops_total",
		Help: "Total number of simulated connection drops",
	})

	// Reconnects counts reconnections after a drop.
	Reconnects = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dm_reconnects_total",
		Help: "Total number of reconnections after a drop",
	})

	// ReplyLatency records the time from a self send to the counterparty reply.
	ReplyLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "dm_reply_latency_seconds",
		Help:    "Time from a sent message to the counterparty reply",
		Buckets: []float64{.5, 1, 1.5, 2, 2.5, 3, 4, 5, 10},
	})
)

func init() {
	prometheus.MustRegister(
		Connections,
		ActiveConversations,
		MessagesTotal,
		SendRejected,
		ConnectionDrops,
		Reconnects,
		ReplyLatency,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
