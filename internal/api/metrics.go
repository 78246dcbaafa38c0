package api

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	escrowRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "escrow_requests_total",
		Help: "Total HTTP requests by method, path, and response status.",
	}, []string{"method", "path", "status"})

	escrowRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "escrow_request_duration_seconds",
		Help:    "Request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	escrowEntriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "escrow_ledger_entries_total",
		Help: "Total escrow ledger entries appended.",
	})

	escrowReleasesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "escrow_ledger_releases_total",
		Help: "Total escrow entries released.",
	})

	escrowVerificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "escrow_chain_verifications_total",
		Help: "Total chain verification runs by outcome.",
	}, []string{"result"})
)

// PrometheusMiddleware returns a Gin middleware that records per-request metrics.
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		method := c.Request.Method
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		escrowRequestsTotal.WithLabelValues(method, path, status).Inc()
		escrowRequestDuration.WithLabelValues(method, path).Observe(duration)
	}
}

// MetricsHandler returns a Gin handler that serves Prometheus metrics.
func MetricsHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// RecordLedgerAppend records a successful ledger append.
func RecordLedgerAppend() {
	escrowEntriesTotal.Inc()
}

// RecordLedgerRelease records a successful escrow release.
func RecordLedgerRelease() {
	escrowReleasesTotal.Inc()
}

// RecordChainVerification records a verification run and its outcome.
func RecordChainVerification(valid bool) {
	if valid {
		escrowVerificationsTotal.WithLabelValues("valid").Inc()
	} else {
		escrowVerificationsTotal.WithLabelValues("invalid").Inc()
	}
}
