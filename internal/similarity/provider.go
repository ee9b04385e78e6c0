// Package similarity implements duplicate and merge-candidate detection over
// node embeddings. Scoring is tiered: the cheapest strategy that yields a
// confident answer short-circuits the cascade (type gate, exact name match,
// shared prefix, embedding cosine similarity).
package similarity

import (
	"context"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"agentdb-backend/internal/errors"
	"agentdb-backend/internal/observability"
)

// EmbeddingProvider computes vectors for descriptive texts. The core never
// calls a language-model API directly; the host injects a concrete provider.
// Embed returns one vector per input text, in input order.
type EmbeddingProvider interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Model() string
}

// BreakerProvider wraps an EmbeddingProvider in a circuit breaker so a
// failing provider degrades similarity scoring instead of hanging every
// validation pass behind repeated timeouts.
type BreakerProvider struct {
	inner   EmbeddingProvider
	breaker *gobreaker.CircuitBreaker
	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewBreakerProvider wraps the provider with default breaker settings: the
// circuit opens after five consecutive failures.
func NewBreakerProvider(inner EmbeddingProvider, metrics *observability.Metrics, logger *zap.Logger) *BreakerProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	settings := gobreaker.Settings{
		Name: "embedding-provider",
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("embedding provider breaker state changed",
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	}
	return &BreakerProvider{
		inner:   inner,
		breaker: gobreaker.NewCircuitBreaker(settings),
		metrics: metrics,
		logger:  logger,
	}
}

// Embed delegates to the wrapped provider through the breaker and enforces
// the one-vector-per-text contract on the result.
func (p *BreakerProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	result, err := p.breaker.Execute(func() (interface{}, error) {
		return p.inner.Embed(ctx, texts)
	})
	if err != nil {
		if p.metrics != nil {
			p.metrics.EmbeddingRequests.WithLabelValues("error").Inc()
		}
		return nil, errors.Wrap(errors.TypeExternal, "embedding_failed",
			"embedding provider call failed", err)
	}
	vectors := result.([][]float32)
	if len(vectors) != len(texts) {
		if p.metrics != nil {
			p.metrics.EmbeddingRequests.WithLabelValues("error").Inc()
		}
		return nil, errors.Newf(errors.TypeExternal, "embedding_result_mismatch",
			"embedding provider returned %d vectors for %d texts", len(vectors), len(texts))
	}
	if p.metrics != nil {
		p.metrics.EmbeddingRequests.WithLabelValues("ok").Inc()
	}
	return vectors, nil
}

// Model returns the wrapped provider's model identifier.
func (p *BreakerProvider) Model() string {
	return p.inner.Model()
}
