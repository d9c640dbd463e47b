package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Search pipeline and permission cache Prometheus metrics.
var (
	SearchRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_requests_total",
			Help:      "Search pipeline executions by view and outcome",
		},
		[]string{"view", "outcome"}, // "ok" / "error" / "denied"
	)

	SearchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_duration_seconds",
			Help:      "Search pipeline duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"view"},
	)

	SearchResultsReturned = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_results_returned",
			Help:      "Number of records on a returned page",
			Buckets:   prometheus.LinearBuckets(0, 10, 11),
		},
		[]string{"view"},
	)

	PermissionCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "permission_cache_total",
			Help:      "Permission cache lookups",
		},
		[]string{"result"}, // "hit" / "miss" / "bypass" / "error"
	)

	PermissionInvalidationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "permission_invalidations_total",
			Help:      "Permission cache invalidations by scope and strategy",
		},
		[]string{"scope", "mode"}, // scope: "user" / "all"
	)
)

var searchMetricsOnce sync.Once

// RegisterSearchMetrics registers the search and permission metrics with the
// default registry. Safe to call more than once.
func RegisterSearchMetrics() {
	searchMetricsOnce.Do(func() {
		prometheus.MustRegister(
			SearchRequestsTotal,
			SearchDuration,
			SearchResultsReturned,
			PermissionCacheTotal,
			PermissionInvalidationsTotal,
		)
	})
}
