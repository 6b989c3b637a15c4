package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service's Prometheus collectors. One instance is
// created at startup and injected into the components that record into it.
type Metrics struct {
	registry *prometheus.Registry

	JobsQueueDepth prometheus.Gauge
	JobsInflight   prometheus.Gauge
	JobsCompleted  prometheus.Counter
	JobsFailed     prometheus.Counter
	IngestDuration prometheus.Histogram
	QueryDuration  prometheus.Histogram
	SSEEvents      *prometheus.CounterVec
	ChunksUpserted prometheus.Counter
}

// NewMetrics creates and registers all collectors on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		registry: reg,
		JobsQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rag_jobs_queue_depth",
			Help: "Number of ingestion jobs waiting in the queue.",
		}),
		JobsInflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rag_jobs_inflight",
			Help: "Number of ingestion jobs currently executing.",
		}),
		JobsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rag_jobs_completed_total",
			Help: "Total ingestion jobs completed successfully.",
		}),
		JobsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rag_jobs_failed_total",
			Help: "Total ingestion jobs that ended in error.",
		}),
		IngestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "rag_ingest_duration_seconds",
			Help:    "Wall time of ingestion jobs.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 14),
		}),
		QueryDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "rag_query_duration_seconds",
			Help:    "Wall time of query pipelines.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		SSEEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rag_sse_events_total",
			Help: "SSE events written, by event type.",
		}, []string{"type"}),
		ChunksUpserted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rag_chunks_upserted_total",
			Help: "Total chunk rows upserted.",
		}),
	}

	reg.MustRegister(
		m.JobsQueueDepth, m.JobsInflight, m.JobsCompleted, m.JobsFailed,
		m.IngestDuration, m.QueryDuration, m.SSEEvents, m.ChunksUpserted,
	)
	return m
}

// Handler serves the registry in Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
