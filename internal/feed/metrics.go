package feed

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	readDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "feed_read_duration_seconds",
		Help:    "GetFeed latency by strategy.",
		Buckets: prometheus.DefBuckets,
	}, []string{"strategy"})

	readErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feed_read_errors_total",
		Help: "GetFeed calls that returned an error.",
	}, []string{"strategy"})

	readFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feed_read_fallbacks_total",
		Help: "Cache reads that degraded to the pull engine.",
	})

	fanoutEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feed_fanout_events_total",
		Help: "Post-created events handled by the fan-out worker.",
	}, []string{"result"})

	fanoutAppends = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feed_fanout_appends_total",
		Help: "Feed list appends performed by fan-out.",
	})

	fanoutLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "feed_fanout_latency_seconds",
		Help:    "Time from publish to fan-out completion.",
		Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
	})
)
