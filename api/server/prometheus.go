package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type echoMetrics struct {
	requests  *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	bodyBytes prometheus.Histogram
	handler   http.Handler
}

func newEchoMetrics(reg *prometheus.Registry) *echoMetrics {
	m := &echoMetrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "httpecho_requests_total",
			Help: "Echoed requests by method and negotiated content type.",
		}, []string{"method", "content_type"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "httpecho_request_duration_seconds",
			Help:    "Time spent reading, rendering and writing an echo.",
			Buckets: prometheus.DefBuckets,
		}, []string{"content_type"}),
		bodyBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "httpecho_request_body_bytes",
			Help:    "Size of echoed request bodies after decoding.",
			Buckets: prometheus.ExponentialBuckets(64, 4, 8),
		}),
	}
	reg.MustRegister(
		m.requests, m.latency, m.bodyBytes,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m.handler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	return m
}

var knownMethods = map[string]bool{
	http.MethodGet: true, http.MethodHead: true, http.MethodPost: true, http.MethodPut: true,
	http.MethodPatch: true, http.MethodDelete: true, http.MethodConnect: true,
	http.MethodOptions: true, http.MethodTrace: true,
}

// observe records one finished request. Unknown methods share one label
// value so clients cannot grow the series without bound.
func (m *echoMetrics) observe(c *gin.Context, start time.Time) {
	method := c.Request.Method
	if !knownMethods[method] {
		method = "OTHER"
	}
	contentType := c.Writer.Header().Get("Content-Type")
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = contentType[:i]
	}

	m.requests.WithLabelValues(method, contentType).Inc()
	m.latency.WithLabelValues(contentType).Observe(time.Since(start).Seconds())
	if n, ok := c.Get(bodyBytesKey); ok {
		m.bodyBytes.Observe(float64(n.(int)))
	}
}

func (s *Server) handlePrometheus(c *gin.Context) {
	s.metrics.handler.ServeHTTP(c.Writer, c.Request)
}
