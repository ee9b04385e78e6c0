// Package observability provides metrics and logging construction for the
// graph core. The collector is an explicit service object created once at
// session start and passed by reference, not a package-level singleton.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus instruments for the engine.
type Metrics struct {
	registry *prometheus.Registry

	// Store metrics
	StoreMutations *prometheus.CounterVec
	StoreNodes     prometheus.Gauge
	StoreEdges     prometheus.Gauge

	// Response cache metrics
	CacheHits      prometheus.Counter
	CacheMisses    prometheus.Counter
	CacheEvictions prometheus.Counter

	// Validation metrics
	ValidationRuns     prometheus.Counter
	ValidationDuration prometheus.Histogram
	RewardScore        prometheus.Gauge

	// Similarity metrics
	EmbeddingRequests *prometheus.CounterVec

	// Variant pool metrics
	VariantsActive prometheus.Gauge
}

// NewMetrics creates a collector with its own registry under the given
// namespace.
func NewMetrics(namespace string) *Metrics {
	registry := prometheus.NewRegistry()

	storeMutations := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_mutations_total",
			Help:      "Total number of committed store mutations by change type",
		},
		[]string{"type"},
	)

	storeNodes := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "store_nodes",
		Help:      "Current number of nodes in the store",
	})

	storeEdges := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "store_edges",
		Help:      "Current number of edges in the store",
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "response_cache_hits_total",
		Help:      "Total number of response cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "response_cache_misses_total",
		Help:      "Total number of response cache misses",
	})

	cacheEvictions := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "response_cache_evictions_total",
		Help:      "Total number of response cache evictions",
	})

	validationRuns := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "validation_runs_total",
		Help:      "Total number of rule evaluation runs",
	})

	validationDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "validation_duration_seconds",
		Help:      "Rule evaluation duration in seconds",
		Buckets:   prometheus.DefBuckets,
	})

	rewardScore := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "reward_score",
		Help:      "Reward score of the most recent validation run",
	})

	embeddingRequests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embedding_requests_total",
			Help:      "Total number of embedding provider requests by status",
		},
		[]string{"status"},
	)

	variantsActive := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "variants_active",
		Help:      "Current number of variants held in the pool",
	})

	registry.MustRegister(
		storeMutations,
		storeNodes,
		storeEdges,
		cacheHits,
		cacheMisses,
		cacheEvictions,
		validationRuns,
		validationDuration,
		rewardScore,
		embeddingRequests,
		variantsActive,
	)

	return &Metrics{
		registry:           registry,
		StoreMutations:     storeMutations,
		StoreNodes:         storeNodes,
		StoreEdges:         storeEdges,
		CacheHits:          cacheHits,
		CacheMisses:        cacheMisses,
		CacheEvictions:     cacheEvictions,
		ValidationRuns:     validationRuns,
		ValidationDuration: validationDuration,
		RewardScore:        rewardScore,
		EmbeddingRequests:  embeddingRequests,
		VariantsActive:     variantsActive,
	}
}

// Registry exposes the underlying registry for the metrics endpoint.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
