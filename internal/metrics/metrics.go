package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mailpilot_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"method", "path", "status"},
	)

	EmailsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailpilot_emails_ingested_total",
			Help: "Messages handled by the ingestion workflow",
		},
		[]string{"status"}, // stored, duplicate, failed
	)

	EmbeddingsGenerated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailpilot_embeddings_generated_total",
			Help: "Embeddings generated per message field",
		},
		[]string{"field", "status"},
	)

	SearchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mailpilot_search_duration_seconds",
			Help:    "Search workflow duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 10),
		},
		[]string{"search_type"},
	)

	ExternalCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailpilot_external_calls_total",
			Help: "Calls to external APIs by outcome",
		},
		[]string{"service", "status"}, // status: ok, error, rejected
	)
)

func RecordHTTPRequest(method, path, status string, d time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(d.Seconds())
}

func RecordIngested(status string, n int) {
	EmailsIngested.WithLabelValues(status).Add(float64(n))
}

func RecordEmbedding(field string, err error) {
	EmbeddingsGenerated.WithLabelValues(field, outcome(err)).Inc()
}

func RecordSearch(searchType string, d time.Duration) {
	SearchDuration.WithLabelValues(searchType).Observe(d.Seconds())
}

func RecordExternalCall(service string, err error) {
	ExternalCalls.WithLabelValues(service, outcome(err)).Inc()
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
