package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type moduleMetrics struct {
	searchDuration prometheus.Histogram
	syncDuration   prometheus.Histogram
	chunksIndexed  prometheus.Gauge

	embeddingCalls    *prometheus.CounterVec
	embeddingDuration *prometheus.HistogramVec

	ingestQueueDepth prometheus.Gauge
	ingestDropsTotal prometheus.Counter
	ingestErrsTotal  prometheus.Counter

	sessionAppendsTotal prometheus.Counter
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
	registry    *prometheus.Registry
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			searchDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "memory_search_duration_seconds",
					Help:    "Memory search duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			syncDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "memory_sync_duration_seconds",
					Help:    "Note corpus sync duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			chunksIndexed: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "memory_chunks_indexed",
					Help: "Total chunks currently indexed.",
				},
			),
			embeddingCalls: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "embedding_calls_total",
					Help: "Total embedding provider calls by provider and status.",
				},
				[]string{"provider", "status"},
			),
			embeddingDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "embedding_call_duration_seconds",
					Help:    "Embedding provider call duration in seconds by provider.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"provider"},
			),
			ingestQueueDepth: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "transcript_ingest_queue_depth",
					Help: "Current transcript ingest queue depth.",
				},
			),
			ingestDropsTotal: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "transcript_ingest_drops_total",
					Help: "Transcript messages dropped by the ingest queue.",
				},
			),
			ingestErrsTotal: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "transcript_ingest_errors_total",
					Help: "Transcript ingestion failures.",
				},
			),
			sessionAppendsTotal: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "session_appends_total",
					Help: "Messages appended to session transcripts.",
				},
			),
		}

		registry = prometheus.NewRegistry()
		registry.MustRegister(
			m.searchDuration,
			m.syncDuration,
			m.chunksIndexed,
			m.embeddingCalls,
			m.embeddingDuration,
			m.ingestQueueDepth,
			m.ingestDropsTotal,
			m.ingestErrsTotal,
			m.sessionAppendsTotal,
		)

		metricsInst = m
	})
	return metricsInst
}

// EnsureRegistered forces metric registration. Safe to call repeatedly.
func EnsureRegistered() {
	getMetrics()
}

// Handler serves the metrics registry over HTTP.
func Handler() http.Handler {
	getMetrics()
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// RecordMemorySearch records one search pass duration.
func RecordMemorySearch(d time.Duration) {
	getMetrics().searchDuration.Observe(d.Seconds())
}

// RecordMemorySync records one note sync pass duration.
func RecordMemorySync(d time.Duration) {
	getMetrics().syncDuration.Observe(d.Seconds())
}

// SetMemoryChunks updates the indexed chunk gauge.
func SetMemoryChunks(n int) {
	getMetrics().chunksIndexed.Set(float64(n))
}

// RecordEmbeddingCall records one provider call with its outcome.
func RecordEmbeddingCall(provider string, d time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m := getMetrics()
	m.embeddingCalls.WithLabelValues(provider, status).Inc()
	m.embeddingDuration.WithLabelValues(provider).Observe(d.Seconds())
}

// SetIngestQueueDepth updates the ingest queue gauge.
func SetIngestQueueDepth(n int) {
	getMetrics().ingestQueueDepth.Set(float64(n))
}

// RecordIngestDrop counts a transcript message dropped before ingestion.
func RecordIngestDrop() {
	getMetrics().ingestDropsTotal.Inc()
}

// RecordIngestFailure counts a failed transcript ingestion.
func RecordIngestFailure() {
	getMetrics().ingestErrsTotal.Inc()
}

// RecordSessionAppend counts a message appended to a session transcript.
func RecordSessionAppend() {
	getMetrics().sessionAppendsTotal.Inc()
}
