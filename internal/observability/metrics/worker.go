package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kirillkom/catalog-assistant/internal/core/domain"
)

// WorkerMetrics covers the issue-report consumer. Every series carries a
// constant service label.
type WorkerMetrics struct {
	registry *prometheus.Registry

	handled  *prometheus.CounterVec
	duration prometheus.Histogram
	inFlight prometheus.Gauge
	lag      prometheus.Histogram
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	labels := prometheus.Labels{"service": service}
	m := &WorkerMetrics{
		registry: prometheus.NewRegistry(),
		handled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "worker",
			Name:        "issue_reports_total",
			Help:        "Issue reports taken from the queue, by outcome.",
			ConstLabels: labels,
		}, []string{"outcome"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   "worker",
			Name:        "issue_report_duration_seconds",
			Help:        "Time spent storing one issue report.",
			Buckets:     prometheus.DefBuckets,
			ConstLabels: labels,
		}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "worker",
			Name:        "issue_reports_in_flight",
			Help:        "Issue reports currently being stored.",
			ConstLabels: labels,
		}),
		lag: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   "worker",
			Name:        "issue_report_lag_seconds",
			Help:        "Delay between the report in chat and its pickup by the worker.",
			Buckets:     []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
			ConstLabels: labels,
		}),
	}
	m.registry.MustRegister(m.handled, m.duration, m.inFlight, m.lag)
	return m
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Instrument wraps next so that each report is measured from pickup to store.
func (m *WorkerMetrics) Instrument(next func(context.Context, domain.IssueReport) error) func(context.Context, domain.IssueReport) error {
	return func(ctx context.Context, report domain.IssueReport) error {
		start := time.Now()
		if !report.CreatedAt.IsZero() {
			if lag := start.Sub(report.CreatedAt); lag >= 0 {
				m.lag.Observe(lag.Seconds())
			}
		}

		m.inFlight.Inc()
		err := next(ctx, report)
		m.inFlight.Dec()

		outcome := "stored"
		if err != nil {
			outcome = "failed"
		}
		m.handled.WithLabelValues(outcome).Inc()
		m.duration.Observe(time.Since(start).Seconds())
		return err
	}
}
