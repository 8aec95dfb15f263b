// Package metrics exposes Prometheus instrumentation for the retrieval
// pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SearchTotal counts search calls by mode (hybrid, semantic, keyword).
	SearchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "recall_search_total",
		Help: "Total number of search calls by retrieval mode.",
	}, []string{"mode"})

	// SearchDuration observes end-to-end search latency.
	SearchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "recall_search_duration_seconds",
		Help:    "Search latency in seconds.",
		Buckets: prometheus.DefBuckets,
	})

	// IndexTotal counts background indexing outcomes.
	IndexTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "recall_index_total",
		Help: "Total number of indexed items by status (ok, error).",
	}, []string{"status"})

	// EmbeddingRequests counts provider calls.
	EmbeddingRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "recall_embedding_requests_total",
		Help: "Total number of embedding provider calls by status (ok, error).",
	}, []string{"status"})
)
