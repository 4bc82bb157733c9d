package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BackendCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hazardmap_backend_calls_total",
			Help: "Total LHASA backend API calls",
		},
		[]string{"endpoint", "status"},
	)

	BackendLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hazardmap_backend_latency_seconds",
			Help:    "Backend API call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	BackendUp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hazardmap_backend_up",
			Help: "1 when the last backend health check succeeded",
		},
	)

	StaleResultsDiscarded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hazardmap_stale_results_discarded_total",
			Help: "Fetch results dropped because a newer selection superseded them",
		},
		[]string{"kind"},
	)

	TileCacheTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hazardmap_tile_cache_total",
			Help: "Tile cache lookups by layer and result",
		},
		[]string{"layer", "result"},
	)

	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hazardmap_active_sessions",
			Help: "Number of live viewer sessions",
		},
	)
)
