// Package metrics exposes Prometheus metrics for the web host
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-while/checkweb/internal/cache"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "checkweb"

// Metrics owns a registry and the collectors of one server
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal     *prometheus.CounterVec
	httpRequestDuration   *prometheus.HistogramVec
	httpActiveConnections prometheus.Gauge
	validationErrors      *prometheus.CounterVec
	panicRecoveries       *prometheus.CounterVec
	templateReloads       prometheus.Counter
}

// New creates the metrics. client may be nil.
func New(client cache.Client) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if client != nil {
		reg.MustRegister(newCacheCollector(client))
	}

	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total HTTP requests processed",
			},
			[]string{"method", "route", "status"},
		),
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "Duration of HTTP requests",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		httpActiveConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_in_flight",
				Help:      "Current number of requests being served",
			},
		),
		validationErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "validation_errors_total",
				Help:      "Total request DTOs rejected by validation",
			},
			[]string{"operation"},
		),
		panicRecoveries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "panic_recoveries_total",
				Help:      "Total panics recovered while serving requests",
			},
			[]string{"route"},
		),
		templateReloads: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "template_reloads_total",
				Help:      "Total successful template reloads",
			},
		),
	}
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// route returns the matched route pattern, unmatched paths share one label
func route(c *gin.Context) string {
	if r := c.FullPath(); r != "" {
		return r
	}
	return "unmatched"
}

// Middleware records request counts and latencies
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		m.httpActiveConnections.Inc()
		defer m.httpActiveConnections.Dec()

		c.Next()

		r := route(c)
		m.httpRequestsTotal.WithLabelValues(c.Request.Method, r, strconv.Itoa(c.Writer.Status())).Inc()
		m.httpRequestDuration.WithLabelValues(c.Request.Method, r).Observe(time.Since(start).Seconds())
	}
}

func (m *Metrics) ValidationError(operation string) {
	m.validationErrors.WithLabelValues(operation).Inc()
}

func (m *Metrics) PanicRecovered(c *gin.Context) {
	m.panicRecoveries.WithLabelValues(route(c)).Inc()
}

func (m *Metrics) TemplatesReloaded() {
	m.templateReloads.Inc()
}
