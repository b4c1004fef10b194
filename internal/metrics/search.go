package metrics

import "github.com/prometheus/client_golang/prometheus"

// Search Prometheus metrics.
var (
	TierRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "shopfinder",
			Name:      "tier_requests_total",
			Help:      "Total number of search tier attempts",
		},
		[]string{"tier", "status"}, // "success" / "failure"
	)

	TierRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "shopfinder",
			Name:      "tier_request_duration_seconds",
			Help:      "Search tier attempt duration in seconds",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"tier"},
	)

	TierFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "shopfinder",
			Name:      "tier_failures_total",
			Help:      "Search tier failures by kind",
		},
		[]string{"tier", "kind"},
	)

	SearchCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "shopfinder",
			Name:      "search_cache_total",
			Help:      "Response cache lookups",
		},
		[]string{"result"}, // "hit" / "miss" / "shared"
	)

	SearchEmptyResultsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "shopfinder",
			Name:      "search_empty_results_total",
			Help:      "Queries answered with no products",
		},
	)

	SemanticTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "shopfinder",
			Name:      "semantic_tokens_total",
			Help:      "Total tokens consumed by the semantic ranker",
		},
		[]string{"model", "type"},
	)

	CatalogProducts = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "shopfinder",
			Name:      "catalog_products",
			Help:      "Products in the loaded catalog snapshot",
		},
	)
)

var searchMetricsRegistered bool

// RegisterSearchMetrics registers Prometheus search metrics. Must be called once from main.
func RegisterSearchMetrics() {
	if searchMetricsRegistered {
		return
	}
	prometheus.MustRegister(TierRequestsTotal)
	prometheus.MustRegister(TierRequestDuration)
	prometheus.MustRegister(TierFailuresTotal)
	prometheus.MustRegister(SearchCacheTotal)
	prometheus.MustRegister(SearchEmptyResultsTotal)
	prometheus.MustRegister(SemanticTokensTotal)
	prometheus.MustRegister(CatalogProducts)
	searchMetricsRegistered = true
}
