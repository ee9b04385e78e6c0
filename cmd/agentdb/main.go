// Command agentdb runs the graph engine as a standalone process: it loads
// the configuration and rule document, assembles the engine, exposes the
// Prometheus metrics endpoint, and keeps the rule document hot-reloadable
// until interrupted.
//
// The embedding provider wired here is a deterministic local fallback so the
// engine runs without a model backend; hosts embed the engine and inject a
// real provider instead.
package main

import (
	"context"
	"flag"
	"hash/fnv"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"agentdb-backend/internal/config"
	"agentdb-backend/internal/di"
	"agentdb-backend/internal/rules"
)

func main() {
	configPath := flag.String("config", "", "path to the engine configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(err)
	}

	container, err := di.InitializeContainer(cfg, &localEmbeddingProvider{dimensions: 64})
	if err != nil {
		panic(err)
	}
	defer container.Shutdown()
	logger := container.Logger

	var watcher *rules.Watcher
	if cfg.RulesPath != "" {
		watcher, err = rules.NewWatcher(container.RuleLoader, nil, logger)
		if err != nil {
			logger.Warn("rule hot reload unavailable", zap.Error(err))
		} else {
			defer watcher.Stop()
		}
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(container.Metrics.Registry(), promhttp.HandlerOpts{}))
	server := &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
	go func() {
		logger.Info("metrics endpoint listening", zap.String("addr", cfg.MetricsAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics endpoint failed", zap.Error(err))
		}
	}()

	// Periodic variant tier sweep.
	sweepTicker := time.NewTicker(time.Minute)
	defer sweepTicker.Stop()
	go func() {
		for range sweepTicker.C {
			if evicted := container.Service.SweepVariantTiers(); evicted > 0 {
				logger.Info("variant sweep evicted variants", zap.Int("count", evicted))
			}
		}
	}()

	logger.Info("agentdb engine ready",
		zap.String("environment", cfg.Environment),
		zap.String("rules_path", cfg.RulesPath),
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
	logger.Info("agentdb engine stopped")
}

// localEmbeddingProvider derives stable pseudo-embeddings from text hashes.
// Identical texts map to identical vectors, so duplicate detection still
// exercises the full cascade offline; semantic quality obviously does not
// compare to a real model.
type localEmbeddingProvider struct {
	dimensions int
}

func (p *localEmbeddingProvider) Embed(_ context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vec := make([]float32, p.dimensions)
		h := fnv.New64a()
		h.Write([]byte(text))
		seed := h.Sum64()
		for d := range vec {
			seed = seed*6364136223846793005 + 1442695040888963407
			vec[d] = float32(int64(seed>>33))/float32(1<<31) - 0.5
		}
		vectors[i] = vec
	}
	return vectors, nil
}

func (p *localEmbeddingProvider) Model() string {
	return "local-fnv-64"
}
