package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	GraphRefreshTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ados_graph_refresh_total",
			Help: "Total number of knowledge graph refreshes",
		},
		[]string{"status"},
	)

	GraphRefreshDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ados_graph_refresh_duration_seconds",
			Help:    "Duration of catalog rescans plus knowledge graph rebuilds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14), // 10ms to ~82s
		},
	)

	GraphDatasets = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ados_graph_datasets",
			Help: "Number of datasets in the current knowledge graph",
		},
	)

	GraphEdges = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ados_graph_edges",
			Help: "Number of relationship edges in the current knowledge graph by kind",
		},
		[]string{"kind"},
	)

	MirrorSyncTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ados_graph_mirror_sync_total",
			Help: "Total number of knowledge graph mirror syncs",
		},
		[]string{"status"},
	)

	MirrorSyncDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ados_graph_mirror_sync_duration_seconds",
			Help:    "Duration of knowledge graph mirror syncs",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		},
	)
)
