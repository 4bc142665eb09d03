// Package telemetry holds the Prometheus collectors shared by the services
// and the HTTP layer.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ProbeDuration tracks how long each cache refresh took, by cache name and outcome.
	ProbeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "watchpost_probe_duration_seconds",
			Help:    "Duration of background probe invocations",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15, 30},
		},
		[]string{"cache", "result"},
	)

	// ProbeFailures counts failed or timed-out probes.
	ProbeFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "watchpost_probe_failures_total",
			Help: "Total number of probe invocations that failed or timed out",
		},
		[]string{"cache"},
	)

	// CacheReads counts reads by freshness: fresh, stale or placeholder.
	CacheReads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "watchpost_cache_reads_total",
			Help: "Total number of cache reads by freshness",
		},
		[]string{"cache", "freshness"},
	)

	// AlertTransitions counts state machine transitions per rule kind.
	AlertTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "watchpost_alert_transitions_total",
			Help: "Total number of alert state transitions",
		},
		[]string{"kind", "transition"},
	)

	// Notifications counts delivery attempts by result.
	Notifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "watchpost_notifications_total",
			Help: "Total number of notification deliveries by result",
		},
		[]string{"result"},
	)

	// HistoryWrites counts sample appends by result.
	HistoryWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "watchpost_history_writes_total",
			Help: "Total number of history sample appends by result",
		},
		[]string{"result"},
	)

	// HistoryPruned counts samples removed by retention.
	HistoryPruned = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "watchpost_history_pruned_total",
			Help: "Total number of history samples removed by retention",
		},
	)

	// HTTPRequests counts HTTP requests.
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "watchpost_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPDuration tracks HTTP request latency.
	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "watchpost_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// WebSocketClients is the number of connected push clients.
	WebSocketClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "watchpost_websocket_clients",
			Help: "Current number of connected WebSocket clients",
		},
	)
)
