// Package metrics exposes Prometheus instruments for the realtime core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	Connections = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "chat_connections",
		Help: "Open websocket connections per hub.",
	}, []string{"hub"})

	OnlineUsers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chat_online_users",
		Help: "Users with at least one live registration.",
	})

	MessagesDelivered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_messages_fanned_out_total",
		Help: "Persisted messages fanned out, per scope.",
	}, []string{"scope"})

	PersistFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_persist_failures_total",
		Help: "Messages rejected because the store failed or returned an invalid id.",
	}, []string{"scope"})

	DroppedConnections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chat_slow_consumers_dropped_total",
		Help: "Connections closed because their send buffer was full.",
	})

	SummaryRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_summary_requests_total",
		Help: "AI summary requests by result.",
	}, []string{"result"})
)

// PresenceGauge keeps OnlineUsers in step with a presence registry.
type PresenceGauge struct {
	count func() int
}

func NewPresenceGauge(count func() int) *PresenceGauge {
	return &PresenceGauge{count: count}
}

func (g *PresenceGauge) PresenceChanged(int64, bool) {
	OnlineUsers.Set(float64(g.count()))
}
