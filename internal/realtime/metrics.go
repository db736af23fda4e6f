package realtime

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	liveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "realtime_authenticated_connections",
		Help: "Authenticated websocket connections on this instance.",
	})

	deliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "realtime_deliveries_total",
		Help: "Real-time deliveries by path and result.",
	}, []string{"path", "result"})

	droppedMessages = promauto.NewCounter(prometheus.CounterOpts{
		Name: "realtime_send_buffer_drops_total",
		Help: "Messages dropped because a connection send buffer was full.",
	})

	handshakeFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "realtime_handshake_failures_total",
		Help: "Connections closed before authenticating.",
	})
)
