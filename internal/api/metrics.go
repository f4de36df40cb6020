package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	outcomeOK          = "ok"
	outcomeTimeout     = "timeout"
	outcomeUnavailable = "unavailable"
	outcomeInvalid     = "invalid"
	outcomeError       = "error"
)

type metrics struct {
	registry        *prometheus.Registry
	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	chatTotal       *prometheus.CounterVec
	chatDuration    *prometheus.HistogramVec
	activeChats     prometheus.Gauge
}

func newMetrics() *metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &metrics{
		registry: registry,
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "earthworm_api_requests_total",
			Help: "Total HTTP requests handled by the API.",
		}, []string{"method", "route", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "earthworm_api_request_duration_seconds",
			Help:    "API request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		chatTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "earthworm_chat_requests_total",
			Help: "Chat requests forwarded to a provider, by outcome.",
		}, []string{"provider", "outcome"}),
		chatDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "earthworm_chat_duration_seconds",
			Help:    "Time spent waiting on the provider for a chat reply.",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 20, 30, 60, 90},
		}, []string{"provider"}),
		activeChats: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "earthworm_chat_in_flight",
			Help: "Chat requests currently waiting on a provider.",
		}),
	}
	registry.MustRegister(
		m.requestTotal,
		m.requestDuration,
		m.chatTotal,
		m.chatDuration,
		m.activeChats,
	)
	return m
}

func (m *metrics) metricsHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *metrics) withHTTPMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		route := routeLabel(r)
		status := statusLabel(recorder.status)

		m.requestTotal.WithLabelValues(r.Method, route, status).Inc()
		m.requestDuration.WithLabelValues(r.Method, route, status).Observe(time.Since(start).Seconds())
	})
}

func (m *metrics) observeChat(provider, outcome string, elapsed time.Duration) {
	m.chatTotal.WithLabelValues(provider, outcome).Inc()
	m.chatDuration.WithLabelValues(provider).Observe(elapsed.Seconds())
}

func statusLabel(status int) string {
	return strconv.Itoa(status)
}

// routeLabel is only complete once chi has routed the request, so middleware
// must call it after next.ServeHTTP returns.
func routeLabel(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return "unmatched"
	}
	if pattern := rctx.RoutePattern(); pattern != "" {
		return pattern
	}
	return "unmatched"
}

type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (r *statusRecorder) WriteHeader(statusCode int) {
	if !r.wroteHeader {
		r.status = statusCode
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(statusCode)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	r.wroteHeader = true
	return r.ResponseWriter.Write(b)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}
