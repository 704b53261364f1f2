package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wall_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "wall_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	}, []string{"method", "path"})

	RateLimitedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wall_rate_limited_total",
		Help: "Total number of requests rejected by the rate limiter",
	}, []string{"backend"})
)

// Moderation metrics
var (
	SubmissionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wall_submissions_total",
		Help: "Total number of message submissions by outcome",
	}, []string{"outcome"})

	ReviewDecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wall_review_decisions_total",
		Help: "Total number of review decisions",
	}, []string{"decision"})

	BanActionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wall_ban_actions_total",
		Help: "Total number of ban registry mutations",
	}, []string{"action", "outcome"})

	NotificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wall_notifications_total",
		Help: "Total number of author notifications by status",
	}, []string{"status"})
)

// Audit metrics
var (
	AuditWritesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wall_audit_writes_total",
		Help: "Total number of audit write attempts by result",
	}, []string{"result"})

	AuditRetryQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "wall_audit_retry_queue_depth",
		Help: "Number of audit records waiting to be retried",
	})

	AuditDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wall_audit_dropped_total",
		Help: "Total number of audit records dropped after the retry queue filled",
	})
)

// Live wall metrics
var (
	WebSocketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "wall_websocket_connections",
		Help: "Number of connected live wall clients",
	})
)
