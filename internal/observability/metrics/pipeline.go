package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kirillkom/catalog-assistant/internal/core/domain"
)

type pipelineCollectors struct {
	turnsTotal         *prometheus.CounterVec
	turnDuration       *prometheus.HistogramVec
	noEvidenceTotal    *prometheus.CounterVec
	stageDuration      *prometheus.HistogramVec
	condenseFallbacks  prometheus.Counter
	routingErrors      *prometheus.CounterVec
	retrievedChunks    *prometheus.HistogramVec
	rerankBatchesTotal *prometheus.CounterVec
}

func newPipelineCollectors(labels prometheus.Labels) *pipelineCollectors {
	return &pipelineCollectors{
		turnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "chat",
			Name:        "turns_total",
			Help:        "Finished chat turns by strategy and status.",
			ConstLabels: labels,
		}, []string{"strategy", "status"}),
		turnDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   "chat",
			Name:        "turn_duration_seconds",
			Help:        "End-to-end chat turn duration by strategy.",
			Buckets:     []float64{0.25, 0.5, 1, 2, 4, 8, 15, 30, 60, 120},
			ConstLabels: labels,
		}, []string{"strategy"}),
		noEvidenceTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "rag",
			Name:        "no_evidence_total",
			Help:        "Retrieval turns answered with the no-evidence message.",
			ConstLabels: labels,
		}, []string{"strategy"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   "chat",
			Name:        "stage_duration_seconds",
			Help:        "Duration of each pipeline stage.",
			Buckets:     prometheus.DefBuckets,
			ConstLabels: labels,
		}, []string{"stage"}),
		condenseFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "chat",
			Name:        "condense_fallback_total",
			Help:        "Turns that used the raw message because condensation failed.",
			ConstLabels: labels,
		}),
		routingErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "chat",
			Name:        "routing_errors_total",
			Help:        "Routing failures by kind.",
			ConstLabels: labels,
		}, []string{"kind"}),
		retrievedChunks: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   "rag",
			Name:        "retrieved_chunks",
			Help:        "Candidates per retrieval by source.",
			Buckets:     []float64{0, 1, 2, 3, 5, 8, 10, 13, 20},
			ConstLabels: labels,
		}, []string{"collection", "source"}),
		rerankBatchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "rag",
			Name:        "rerank_batches_total",
			Help:        "Rerank batches by outcome.",
			ConstLabels: labels,
		}, []string{"status"}),
	}
}

func (p *pipelineCollectors) register(registry *prometheus.Registry) {
	registry.MustRegister(
		p.turnsTotal,
		p.turnDuration,
		p.noEvidenceTotal,
		p.stageDuration,
		p.condenseFallbacks,
		p.routingErrors,
		p.retrievedChunks,
		p.rerankBatchesTotal,
	)
}

// PipelineObserver records chat pipeline signals.
type PipelineObserver struct {
	c *pipelineCollectors
}

func (m *HTTPServerMetrics) Pipeline() *PipelineObserver {
	return &PipelineObserver{c: m.pipeline}
}

func (o *PipelineObserver) ObserveStage(stage domain.TurnStage, duration time.Duration) {
	o.c.stageDuration.WithLabelValues(string(stage)).Observe(duration.Seconds())
}

func (o *PipelineObserver) RecordCondenseFallback() {
	o.c.condenseFallbacks.Inc()
}

func (o *PipelineObserver) RecordRoutingError(kind string) {
	if kind == "" {
		kind = "unknown"
	}
	o.c.routingErrors.WithLabelValues(kind).Inc()
}

func (o *PipelineObserver) RecordRetrieval(collection string, lexical, vector, merged int) {
	o.c.retrievedChunks.WithLabelValues(collection, "lexical").Observe(float64(lexical))
	o.c.retrievedChunks.WithLabelValues(collection, "vector").Observe(float64(vector))
	o.c.retrievedChunks.WithLabelValues(collection, "merged").Observe(float64(merged))
}

func (o *PipelineObserver) RecordRerankBatch(status string) {
	o.c.rerankBatchesTotal.WithLabelValues(status).Inc()
}

func (o *PipelineObserver) RecordTurn(strategy string, status domain.TurnStatus, noEvidence bool, duration time.Duration) {
	if strategy == "" {
		strategy = "none"
	}
	o.c.turnsTotal.WithLabelValues(strategy, string(status)).Inc()
	o.c.turnDuration.WithLabelValues(strategy).Observe(duration.Seconds())
	if noEvidence {
		o.c.noEvidenceTotal.WithLabelValues(strategy).Inc()
	}
}
