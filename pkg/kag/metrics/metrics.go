package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Ingestion metrics
	DocumentsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kag_documents_ingested_total",
			Help: "Total number of documents ingested",
		},
		[]string{"status"},
	)

	IngestionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name: "kag_ingestion_duration_seconds",
			Help: "Time spent running the full ingestion pipeline",
		},
	)

	// Graph metrics
	GraphNodesCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kag_graph_nodes_created_total",
			Help: "Total number of graph nodes created",
		},
		[]string{"label"},
	)

	GraphEdgesCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kag_graph_edges_created_total",
			Help: "Total number of graph edges created",
		},
		[]string{"type"},
	)

	// Query metrics
	QueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kag_queries_total",
			Help: "Total number of knowledge-graph queries",
		},
		[]string{"kind"},
	)

	IntentClassifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kag_intent_classifications_total",
			Help: "Query intent classifications by category and method",
		},
		[]string{"category", "method"},
	)

	// Vector store metrics
	VectorWriteRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "kag_vector_write_retries_total",
			Help: "Number of retried vector store writes",
		},
	)

	VectorStoreDegraded = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "kag_vector_store_degraded",
			Help: "1 when the vector store has fallen back to in-memory search",
		},
	)
)
