package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Global metric handles. 'promauto' registers them on the default registry
// at init time, so packages just touch the vars.

var (
	// Vector Count (Gauge)
	// Tracks the number of live vectors per collection.
	TotalVectors = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "solaris_vectors_total",
			Help: "Number of live vectors per collection",
		},
		[]string{"collection"},
	)

	// Insert Operations (Counter)
	InsertsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "solaris_inserts_total",
			Help: "Total number of vector insert operations",
		},
		[]string{"collection", "status"},
	)

	// Search Operations (Counter)
	SearchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "solaris_searches_total",
			Help: "Total number of search operations",
		},
		[]string{"collection", "status"},
	)

	// Search Duration (Histogram)
	// Buckets cover sub-millisecond in-memory hits up to multi-second
	// filtered scans on large collections.
	SearchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "solaris_search_duration_seconds",
			Help:    "Duration of search operations in seconds",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5},
		},
		[]string{"collection"},
	)

	// Search Timeouts (Counter)
	// Deadline-bounded searches that returned partial results.
	SearchTimeoutsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "solaris_search_timeouts_total",
			Help: "Searches cut short by their deadline",
		},
		[]string{"collection"},
	)

	// Compactions (Counter)
	CompactionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "solaris_compactions_total",
			Help: "Index compactions performed",
		},
		[]string{"collection"},
	)
)
