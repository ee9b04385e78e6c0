//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	"agentdb-backend/internal/config"
	"agentdb-backend/internal/similarity"
)

// InitializeContainer assembles the full engine. The embedding provider is
// injected by the host: the core never talks to a language-model API
// directly.
func InitializeContainer(cfg *config.Config, provider similarity.EmbeddingProvider) (*Container, error) {
	wire.Build(
		ProvideLogger,
		ProvideMetrics,
		ProvideBus,
		ProvideStore,
		ProvideRuleLoader,
		ProvideTracker,
		ProvideVariantPool,
		ProvideEmbeddingStore,
		ProvideScorer,
		ProvideResponseCache,
		ProvideEvaluator,
		ProvideService,
		wire.Struct(new(Container), "*"),
	)
	return nil, nil
}
