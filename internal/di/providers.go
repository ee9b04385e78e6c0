// Package di assembles the graph core with google/wire. The container is
// built once at session start; every component is an explicit service object
// passed by reference, never a package-level singleton.
package di

import (
	"go.uber.org/zap"

	"agentdb-backend/internal/cache"
	"agentdb-backend/internal/config"
	"agentdb-backend/internal/events"
	"agentdb-backend/internal/observability"
	"agentdb-backend/internal/rules"
	"agentdb-backend/internal/service/agentdb"
	"agentdb-backend/internal/similarity"
	"agentdb-backend/internal/store"
	"agentdb-backend/internal/tracker"
	"agentdb-backend/internal/variant"
)

// Container holds the assembled engine and the handles the host process
// needs for its own wiring (metrics endpoint, rule hot reload).
type Container struct {
	Service    *agentdb.Service
	Store      *store.GraphStore
	Bus        *events.Bus
	RuleLoader *rules.Loader
	Metrics    *observability.Metrics
	Logger     *zap.Logger
}

// Shutdown tears the engine down: background validation stops and buffered
// log output is flushed.
func (c *Container) Shutdown() {
	c.Service.Shutdown()
	_ = c.Logger.Sync()
}

// ProvideLogger builds the session logger from the environment setting.
func ProvideLogger(cfg *config.Config) (*zap.Logger, error) {
	return observability.NewLogger(cfg.Environment)
}

// ProvideMetrics builds the metrics collector.
func ProvideMetrics(cfg *config.Config) *observability.Metrics {
	return observability.NewMetrics(cfg.Namespace)
}

// ProvideBus builds the change-event bus.
func ProvideBus(logger *zap.Logger) *events.Bus {
	return events.NewBus(logger)
}

// ProvideStore builds the graph store publishing onto the bus.
func ProvideStore(bus *events.Bus, metrics *observability.Metrics, logger *zap.Logger) *store.GraphStore {
	return store.New(bus, metrics, logger)
}

// ProvideRuleLoader loads the rule document named by the configuration.
func ProvideRuleLoader(cfg *config.Config, logger *zap.Logger) (*rules.Loader, error) {
	return rules.NewLoader(cfg.RulesPath, logger)
}

// ProvideTracker builds the change tracker.
func ProvideTracker() *tracker.ChangeTracker {
	return tracker.New()
}

// ProvideVariantPool builds the variant pool from the retention settings.
func ProvideVariantPool(cfg *config.Config, metrics *observability.Metrics, logger *zap.Logger) *variant.Pool {
	return variant.NewPool(variant.Retention{
		WarmAfter:   cfg.Variants.WarmAfter.Std(),
		ColdAfter:   cfg.Variants.ColdAfter.Std(),
		EvictAfter:  cfg.Variants.EvictAfter.Std(),
		MaxVariants: cfg.Variants.MaxVariants,
	}, metrics, logger)
}

// ProvideEmbeddingStore wraps the injected provider in a circuit breaker and
// builds the embedding cache over it.
func ProvideEmbeddingStore(provider similarity.EmbeddingProvider, metrics *observability.Metrics, logger *zap.Logger) *similarity.EmbeddingStore {
	return similarity.NewEmbeddingStore(similarity.NewBreakerProvider(provider, metrics, logger))
}

// ProvideScorer builds the tiered scorer. Thresholds are read through the
// loader so a hot-reloaded rule document reaches classification immediately.
func ProvideScorer(embeddings *similarity.EmbeddingStore, loader *rules.Loader, logger *zap.Logger) *similarity.Scorer {
	return similarity.NewScorer(embeddings, func() similarity.Config {
		return loader.Config().Similarity
	}, logger)
}

// ProvideResponseCache builds the version-keyed response cache.
func ProvideResponseCache(cfg *config.Config, metrics *observability.Metrics, logger *zap.Logger) *cache.ResponseCache {
	return cache.New(cfg.Cache.MaxItems, metrics, logger)
}

// ProvideEvaluator builds the rule evaluator.
func ProvideEvaluator(loader *rules.Loader, metrics *observability.Metrics, logger *zap.Logger) *rules.Evaluator {
	return rules.NewEvaluator(loader, metrics, logger)
}

// ProvideService assembles the facade.
func ProvideService(
	cfg *config.Config,
	graphStore *store.GraphStore,
	bus *events.Bus,
	changeTracker *tracker.ChangeTracker,
	pool *variant.Pool,
	embeddings *similarity.EmbeddingStore,
	scorer *similarity.Scorer,
	responseCache *cache.ResponseCache,
	evaluator *rules.Evaluator,
	loader *rules.Loader,
	logger *zap.Logger,
) *agentdb.Service {
	return agentdb.New(agentdb.Params{
		Store:              graphStore,
		Bus:                bus,
		Tracker:            changeTracker,
		Variants:           pool,
		Embeddings:         embeddings,
		Scorer:             scorer,
		Cache:              responseCache,
		Evaluator:          evaluator,
		RuleLoader:         loader,
		ValidationDebounce: cfg.ValidationDebounce.Std(),
		Logger:             logger,
	})
}
