package store

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics exposed by the store service on /metrics.
var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voxrelay_store_http_requests_total",
			Help: "Total HTTP requests handled by the store service",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "voxrelay_store_http_request_duration_seconds",
			Help:    "Store service HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"method", "path"},
	)

	messagesRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voxrelay_store_messages_recorded_total",
			Help: "Messages appended to the store",
		},
		[]string{"role"},
	)

	embeddingsMissing = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "voxrelay_store_embeddings_missing_total",
			Help: "Messages stored without an embedding",
		},
	)

	historyQueries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "voxrelay_store_history_queries_total",
			Help: "Chronological history queries served",
		},
	)

	similarityQueries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "voxrelay_store_similarity_queries_total",
			Help: "Similarity queries served",
		},
	)
)
