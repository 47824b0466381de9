package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector owns the proxy's Prometheus metrics on a private registry, so
// tests and restarted server instances never fight over global state.
type Collector struct {
	registry *prometheus.Registry
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	streams  prometheus.Gauge
}

// NewCollector creates and registers the proxy metrics.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ollamabridge_requests_total",
				Help: "HTTP requests handled, by path and status code.",
			},
			[]string{"path", "status"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ollamabridge_request_duration_seconds",
				Help:    "HTTP request latency, by path.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"path"},
		),
		streams: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "ollamabridge_active_streams",
				Help: "Streaming responses currently open.",
			},
		),
	}
	c.registry.MustRegister(c.requests, c.duration, c.streams)
	return c
}

// Middleware records a counter and latency sample for every request.
func (c *Collector) Middleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		start := time.Now()
		ctx.Next()

		path := ctx.FullPath()
		if path == "" {
			path = "unmatched"
		}
		c.requests.WithLabelValues(path, strconv.Itoa(ctx.Writer.Status())).Inc()
		c.duration.WithLabelValues(path).Observe(time.Since(start).Seconds())
	}
}

// StreamOpened marks a streaming response as started.
func (c *Collector) StreamOpened() {
	c.streams.Inc()
}

// StreamClosed marks a streaming response as finished.
func (c *Collector) StreamClosed() {
	c.streams.Dec()
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
