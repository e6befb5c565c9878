package handler

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	aegisMitigationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aegis_mitigations_total",
		Help: "Total mitigation runs by severity tier.",
	}, []string{"severity"})

	aegisActionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aegis_actions_total",
		Help: "Total executed mitigation actions by kind and outcome status.",
	}, []string{"kind", "status"})

	aegisRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aegis_requests_total",
		Help: "Total HTTP requests by method, path, and response status.",
	}, []string{"method", "path", "status"})

	aegisRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "aegis_request_duration_seconds",
		Help:    "Request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	aegisLedgerPersistTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aegis_ledger_persist_total",
		Help: "Total mitigation record persistence attempts by outcome.",
	}, []string{"status"})

	aegisAlertsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aegis_alerts_total",
		Help: "Total alert deliveries by channel and outcome.",
	}, []string{"channel", "status"})
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

		aegisRequestsTotal.WithLabelValues(method, path, status).Inc()
		aegisRequestDuration.WithLabelValues(method, path).Observe(duration)
	}
}

// MetricsHandler returns a Gin handler that serves Prometheus metrics.
func MetricsHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// RecordMitigationRun records a completed mitigation run.
func RecordMitigationRun(severity string) {
	aegisMitigationsTotal.WithLabelValues(severity).Inc()
}

// RecordAction records one executed action outcome.
func RecordAction(kind, status string) {
	aegisActionsTotal.WithLabelValues(kind, status).Inc()
}

// RecordLedgerPersist records a mitigation record persistence attempt.
func RecordLedgerPersist(success bool) {
	if success {
		aegisLedgerPersistTotal.WithLabelValues("success").Inc()
	} else {
		aegisLedgerPersistTotal.WithLabelValues("failure").Inc()
	}
}

// RecordAlert records an alert delivery attempt.
func RecordAlert(channel string, success bool) {
	status := "failure"
	if success {
		status = "success"
	}
	aegisAlertsTotal.WithLabelValues(channel, status).Inc()
}
