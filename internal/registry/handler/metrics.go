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
	ledgerCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "forkledger_ledgers",
		Help: "Number of ledgers, clones included.",
	})

	ledgerBlock = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "forkledger_block",
		Help: "Current block of the shared clock.",
	})

	ledgerRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "forkledger_requests_total",
		Help: "Total HTTP requests by method, path, and response status.",
	}, []string{"method", "path", "status"})

	ledgerRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "forkledger_request_duration_seconds",
		Help:    "Request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	ledgerOperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "forkledger_operations_total",
		Help: "Ledger operations by name and outcome code.",
	}, []string{"op", "outcome"})

	ledgerJournalEntriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "forkledger_journal_entries_total",
		Help: "Total journal entries appended.",
	})

	ledgerHealthChecksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "forkledger_health_checks_total",
		Help: "Total readiness probes by result.",
	}, []string{"result"})

	ledgerWebhookDeliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "forkledger_webhook_deliveries_total",
		Help: "Total webhook deliveries by success status.",
	}, []string{"status"})
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
			path = "unmatched"
		}

		ledgerRequestsTotal.WithLabelValues(method, path, status).Inc()
		ledgerRequestDuration.WithLabelValues(method, path).Observe(duration)
	}
}

// MetricsHandler returns a Gin handler that serves Prometheus metrics.
func MetricsHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// RecordOperation records the outcome of a ledger operation.
func RecordOperation(op, outcome string) {
	ledgerOperationsTotal.WithLabelValues(op, outcome).Inc()
}

// RecordJournalAppend records a journal entry append.
func RecordJournalAppend() {
	ledgerJournalEntriesTotal.Inc()
}

// RecordHealthCheck records a readiness probe result.
func RecordHealthCheck(success bool) {
	if success {
		ledgerHealthChecksTotal.WithLabelValues("success").Inc()
	} else {
		ledgerHealthChecksTotal.WithLabelValues("failure").Inc()
	}
}

// RecordWebhookDelivery records a webhook delivery attempt.
func RecordWebhookDelivery(success bool) {
	if success {
		ledgerWebhookDeliveriesTotal.WithLabelValues("success").Inc()
	} else {
		ledgerWebhookDeliveriesTotal.WithLabelValues("failure").Inc()
	}
}

// RecordBlock sets the current block gauge.
func RecordBlock(block uint64) {
	ledgerBlock.Set(float64(block))
}

// SetLedgerGauge sets the ledger count gauge.
func SetLedgerGauge(count int) {
	ledgerCount.Set(float64(count))
}
