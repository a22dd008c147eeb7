package monitoring

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	ledgerCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_calls_total",
			Help: "Total number of ledger bridge calls",
		},
		[]string{"operation", "status"},
	)

	ledgerCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ledger_call_duration_seconds",
			Help:    "Duration of ledger bridge calls in seconds",
			Buckets: []float64{0.1, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0},
		},
		[]string{"operation"},
	)

	accessDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "access_decisions_total",
			Help: "Total number of access decisions",
		},
		[]string{"outcome"},
	)

	mirrorEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mirror_events_total",
			Help: "Total number of ledger events processed by the audit mirror",
		},
		[]string{"kind", "status"},
	)

	auditWritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audit_writes_total",
			Help: "Total number of audit trail writes",
		},
		[]string{"type", "status"},
	)
)

// MetricsCollector handles Prometheus metrics collection
type MetricsCollector struct{}

// NewMetricsCollector registers and returns the metrics collector.
func NewMetricsCollector() *MetricsCollector {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		ledgerCallsTotal,
		ledgerCallDuration,
		accessDecisionsTotal,
		mirrorEventsTotal,
		auditWritesTotal,
	)

	return &MetricsCollector{}
}

// RecordHTTPRequest records HTTP request metrics
func (m *MetricsCollector) RecordHTTPRequest(method, endpoint, statusCode string, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	httpRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordLedgerCall records ledger bridge call metrics
func (m *MetricsCollector) RecordLedgerCall(operation, status string, duration time.Duration) {
	ledgerCallsTotal.WithLabelValues(operation, status).Inc()
	ledgerCallDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordAccessDecision records an allow or deny outcome
func (m *MetricsCollector) RecordAccessDecision(allowed bool) {
	outcome := "deny"
	if allowed {
		outcome = "allow"
	}
	accessDecisionsTotal.WithLabelValues(outcome).Inc()
}

// RecordMirrorEvent records a mirror ingestion outcome for one ledger event
func (m *MetricsCollector) RecordMirrorEvent(kind, status string) {
	mirrorEventsTotal.WithLabelValues(kind, status).Inc()
}

// RecordAuditWrite records an audit trail write attempt
func (m *MetricsCollector) RecordAuditWrite(entryType string, success bool) {
	auditWritesTotal.WithLabelValues(entryType, strconv.FormatBool(success)).Inc()
}

// Handler returns the Prometheus metrics HTTP handler
func (m *MetricsCollector) Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware records request metrics for every route.
func (m *MetricsCollector) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		m.RecordHTTPRequest(c.Request.Method, endpoint, strconv.Itoa(c.Writer.Status()), time.Since(start))
	}
}
