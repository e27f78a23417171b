// Package metrics exposes Prometheus collectors for the ledger, alerts,
// scheduler, outbox and HTTP layer.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"stockledger/internal/domain/alerts"
	"stockledger/internal/domain/ledger"
	"stockledger/internal/infrastructure/storage/postgres"
)

const namespace = "stockledger"

var (
	_ ledger.Metrics = (*Metrics)(nil)
	_ alerts.Metrics = (*Metrics)(nil)
)

// Metrics owns a private registry so tests can build as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	movementsApplied  *prometheus.CounterVec
	movementsRejected *prometheus.CounterVec
	alertTransitions  *prometheus.CounterVec
	sweepDuration     *prometheus.HistogramVec
	sweepFailures     *prometheus.CounterVec
	outboxDelivered   prometheus.Counter
	httpRequests      *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
}

// New creates and registers all collectors, including Go runtime and
// process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		movementsApplied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "movements_applied_total",
			Help:      "Stock movements committed, by movement type.",
		}, []string{"type"}),
		movementsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "movements_rejected_total",
			Help:      "Stock movements refused, by movement type and error code.",
		}, []string{"type", "code"}),
		alertTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alert_transitions_total",
			Help:      "Alert lifecycle transitions, by alert type and transition.",
		}, []string{"type", "transition"}),
		sweepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sweep_duration_seconds",
			Help:      "Duration of scheduler passes.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900, 3600},
		}, []string{"kind"}),
		sweepFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_product_failures_total",
			Help:      "Products that failed during a scheduler pass.",
		}, []string{"kind"}),
		outboxDelivered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_delivered_total",
			Help:      "Outbox messages delivered to external channels.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests, by method, route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency, by method and route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.movementsApplied,
		m.movementsRejected,
		m.alertTransitions,
		m.sweepDuration,
		m.sweepFailures,
		m.outboxDelivered,
		m.httpRequests,
		m.httpDuration,
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// MovementApplied implements ledger.Metrics.
func (m *Metrics) MovementApplied(movementType string) {
	m.movementsApplied.WithLabelValues(movementType).Inc()
}

// MovementRejected implements ledger.Metrics.
func (m *Metrics) MovementRejected(movementType, code string) {
	m.movementsRejected.WithLabelValues(movementType, code).Inc()
}

// AlertTransition implements alerts.Metrics.
func (m *Metrics) AlertTransition(alertType, transition string) {
	m.alertTransitions.WithLabelValues(alertType, transition).Inc()
}

// ObserveSweep records one scheduler pass.
func (m *Metrics) ObserveSweep(kind string, d time.Duration, failed int) {
	m.sweepDuration.WithLabelValues(kind).Observe(d.Seconds())
	if failed > 0 {
		m.sweepFailures.WithLabelValues(kind).Add(float64(failed))
	}
}

// OutboxDelivered counts relayed outbox messages.
func (m *Metrics) OutboxDelivered(n int) {
	if n > 0 {
		m.outboxDelivered.Add(float64(n))
	}
}

// PoolStatser is implemented by *postgres.Pool.
type PoolStatser interface {
	Stats() postgres.PoolStats
}

// RegisterPool exports connection pool gauges, read at scrape time.
func (m *Metrics) RegisterPool(pool PoolStatser) {
	gauge := func(name, help string, read func(postgres.PoolStats) float64) prometheus.Collector {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "db_pool",
			Name:      name,
			Help:      help,
		}, func() float64 { return read(pool.Stats()) })
	}
	m.registry.MustRegister(
		gauge("total_conns", "Open connections.", func(s postgres.PoolStats) float64 { return float64(s.TotalConns) }),
		gauge("acquired_conns", "Connections in use.", func(s postgres.PoolStats) float64 { return float64(s.AcquiredConns) }),
		gauge("idle_conns", "Idle connections.", func(s postgres.PoolStats) float64 { return float64(s.IdleConns) }),
		gauge("max_conns", "Pool size limit.", func(s postgres.PoolStats) float64 { return float64(s.MaxConns) }),
	)
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Middleware records request count and latency per route template.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.httpRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.httpDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}
