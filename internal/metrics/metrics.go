package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tubepilot",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "tubepilot",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 5, 15, 60, 300},
		},
		[]string{"method", "path"},
	)

	// PipelineRuns counts publish runs by terminal state.
	PipelineRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tubepilot",
			Subsystem: "pipeline",
			Name:      "runs_total",
			Help:      "Publish pipeline runs by terminal state",
		},
		[]string{"state"},
	)

	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "tubepilot",
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Publish pipeline stage duration in seconds",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 2, 5, 10, 30, 120},
		},
		[]string{"stage", "status"},
	)

	LLMAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tubepilot",
			Subsystem: "metadata",
			Name:      "llm_attempts_total",
			Help:      "Metadata generation attempts by result",
		},
		[]string{"result"},
	)

	TokenRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tubepilot",
			Subsystem: "credentials",
			Name:      "token_refreshes_total",
			Help:      "Google token refreshes by result",
		},
		[]string{"result"},
	)

	EmbeddingCache = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tubepilot",
			Subsystem: "grounding",
			Name:      "embedding_cache_total",
			Help:      "Embedding cache lookups by result",
		},
		[]string{"result"},
	)

	ThumbnailUploads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tubepilot",
			Subsystem: "thumbnail",
			Name:      "publishes_total",
			Help:      "Thumbnail publishes by backend and status",
		},
		[]string{"backend", "status"},
	)
)

// RecordRequest records an HTTP request.
func RecordRequest(method, path, status string, durationSec float64) {
	RequestsTotal.WithLabelValues(method, path, status).Inc()
	RequestDuration.WithLabelValues(method, path).Observe(durationSec)
}

// RecordStage records the duration of one pipeline stage.
func RecordStage(stage, status string, durationSec float64) {
	StageDuration.WithLabelValues(stage, status).Observe(durationSec)
}

// RecordRun records the terminal state of a publish run.
func RecordRun(state string) {
	PipelineRuns.WithLabelValues(state).Inc()
}

// RecordLLMAttempt records the outcome of a single completion attempt.
func RecordLLMAttempt(result string) {
	LLMAttempts.WithLabelValues(result).Inc()
}

// RecordTokenRefresh records a Google token refresh.
func RecordTokenRefresh(result string) {
	TokenRefreshes.WithLabelValues(result).Inc()
}

// RecordEmbeddingCache records an embedding cache hit or miss.
func RecordEmbeddingCache(result string) {
	EmbeddingCache.WithLabelValues(result).Inc()
}

// RecordThumbnailPublish records a thumbnail persisted to public storage.
func RecordThumbnailPublish(backend, status string) {
	ThumbnailUploads.WithLabelValues(backend, status).Inc()
}

// Handler exposes the default registry for scraping.
func Handler() http.Handler {
	return promhttp.Handler()
}
