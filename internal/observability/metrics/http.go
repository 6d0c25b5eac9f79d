package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "catalog"

// HTTPServerMetrics owns the registry of a chat-serving process: HTTP traffic,
// answer streams, outbound retries and, through Pipeline, the chat pipeline.
// Every series carries a constant service label.
type HTTPServerMetrics struct {
	registry *prometheus.Registry

	requests   *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	inFlight   prometheus.Gauge
	rejected   *prometheus.CounterVec
	streams    prometheus.Gauge
	firstToken prometheus.Histogram
	retries    *prometheus.CounterVec

	pipeline *pipelineCollectors
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	labels := prometheus.Labels{"service": service}
	m := &HTTPServerMetrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "http",
			Name:        "requests_total",
			Help:        "HTTP requests by method, route and status.",
			ConstLabels: labels,
		}, []string{"method", "path", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   "http",
			Name:        "request_duration_seconds",
			Help:        "HTTP request duration. Streamed answers include the whole stream.",
			Buckets:     []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 40, 80},
			ConstLabels: labels,
		}, []string{"method", "path"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "http",
			Name:        "in_flight_requests",
			Help:        "HTTP requests being served.",
			ConstLabels: labels,
		}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "http",
			Name:        "rejected_total",
			Help:        "Requests turned away by traffic control, by reason.",
			ConstLabels: labels,
		}, []string{"reason"}),
		streams: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "http",
			Name:        "active_streams",
			Help:        "Answer streams currently open.",
			ConstLabels: labels,
		}),
		firstToken: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   "http",
			Name:        "stream_first_token_seconds",
			Help:        "Time from receiving a message to sending its first answer token.",
			Buckets:     []float64{0.25, 0.5, 1, 2, 3, 5, 8, 13, 20, 30},
			ConstLabels: labels,
		}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "dependency",
			Name:        "retries_total",
			Help:        "Retries of outbound calls by operation.",
			ConstLabels: labels,
		}, []string{"operation"}),
		pipeline: newPipelineCollectors(labels),
	}

	m.registry.MustRegister(m.requests, m.latency, m.inFlight, m.rejected, m.streams, m.firstToken, m.retries)
	m.pipeline.register(m.registry)
	return m
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

		m.inFlight.Inc()
		defer m.inFlight.Dec()
		next.ServeHTTP(recorder, r)

		path := normalizePath(r.URL.Path)
		m.requests.WithLabelValues(r.Method, path, strconv.Itoa(recorder.statusCode)).Inc()
		m.latency.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// normalizePath folds session ids so label cardinality stays bounded.
func normalizePath(path string) string {
	rest, ok := strings.CutPrefix(path, "/v1/sessions/")
	if !ok || rest == "" {
		return path
	}
	_, tail, found := strings.Cut(rest, "/")
	if !found {
		return "/v1/sessions/{session_id}"
	}
	return "/v1/sessions/{session_id}/" + tail
}

func (m *HTTPServerMetrics) RecordRejected(reason string) {
	m.rejected.WithLabelValues(reason).Inc()
}

func (m *HTTPServerMetrics) StreamOpened() { m.streams.Inc() }
func (m *HTTPServerMetrics) StreamClosed() { m.streams.Dec() }

func (m *HTTPServerMetrics) ObserveFirstToken(d time.Duration) {
	m.firstToken.Observe(d.Seconds())
}

// RecordDependencyRetry has the shape of resilience.RetryObserver.
func (m *HTTPServerMetrics) RecordDependencyRetry(operation string, _ int) {
	m.retries.WithLabelValues(operation).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func (w *statusRecorder) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
