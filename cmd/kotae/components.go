package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/extract"
	"github.com/hyperjump/kotae/internal/indexer"
	"github.com/hyperjump/kotae/internal/llm"
	"github.com/hyperjump/kotae/internal/metrics"
	"github.com/hyperjump/kotae/internal/provider"
	"github.com/hyperjump/kotae/internal/search"
	"github.com/hyperjump/kotae/internal/storage"
	"github.com/hyperjump/kotae/internal/vector"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

// Components holds the long-lived pipeline objects shared by the subcommands.
type Components struct {
	Registry    *prometheus.Registry
	Metrics     *metrics.Metrics
	Ledger      storage.Ledger
	Embedder    embedding.Embedder
	VectorIndex vector.Index
	Engine      *search.Engine
	Indexer     *indexer.Indexer
}

// Close releases everything the components hold. The memory index writes its
// snapshot here when a path is configured.
func (c *Components) Close() error {
	var errs []error
	if c.VectorIndex != nil {
		errs = append(errs, c.VectorIndex.Close())
	}
	if c.Embedder != nil {
		errs = append(errs, c.Embedder.Close())
	}
	if c.Ledger != nil {
		errs = append(errs, c.Ledger.Close())
	}
	return errors.Join(errs...)
}

func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Components, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	if cfg.Embedding.Provider == "gemini" && cfg.Gemini.APIKey == "" {
		return nil, fmt.Errorf("gemini.api_key is required (or GEMINI_API_KEY) when embedding.provider is gemini")
	}
	if cfg.Gemini.APIKey == "" {
		logger.Warn("no Gemini API key configured; answers fall back to the top retrieved context")
	}

	gemini := provider.NewClient(provider.Options{
		Timeout:    cfg.Gemini.Timeout,
		RateLimit:  cfg.Gemini.RateLimit,
		Burst:      cfg.Gemini.Burst,
		MaxRetries: cfg.Gemini.MaxRetries,
	})

	var embedder embedding.Embedder
	switch cfg.Embedding.Provider {
	case "mock":
		embedder = embedding.NewMockEmbedder(cfg.Vector.Dimension)
	default:
		embedder = embedding.NewGeminiEmbedder(gemini, cfg.Gemini.BaseURL, cfg.Gemini.EmbeddingModel, cfg.Gemini.APIKey,
			cfg.Vector.Dimension, embedding.WithLogger(logger), embedding.WithMetrics(m))
	}
	if cfg.Embedding.CacheSize > 0 {
		embedder = embedding.NewCachedEmbedder(embedder, cfg.Embedding.CacheSize)
	}

	vectorIndex, err := vector.NewIndex(ctx, &cfg.Vector, logger)
	if err != nil {
		_ = embedder.Close()
		return nil, fmt.Errorf("failed to initialize vector index: %w", err)
	}
	logger.Info("vector index initialized",
		zap.String("type", vectorIndex.Type()),
		zap.Int("dimension", cfg.Vector.Dimension))

	c := &Components{
		Registry:    reg,
		Metrics:     m,
		Embedder:    embedder,
		VectorIndex: vectorIndex,
	}

	idxOpts := []indexer.IndexerOption{indexer.WithLogger(logger), indexer.WithMetrics(m)}
	if cfg.Storage.LedgerPath != "" {
		ledger, err := storage.NewSQLiteLedger(cfg.Storage.LedgerPath)
		if err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("failed to initialize ledger: %w", err)
		}
		c.Ledger = ledger
		idxOpts = append(idxOpts, indexer.WithLedger(ledger))
	}

	idx, err := indexer.NewIndexer(extract.NewExtractor(), embedder, vectorIndex, &cfg.Ingest, cfg.Vector.Dimension, idxOpts...)
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("failed to initialize indexer: %w", err)
	}
	c.Indexer = idx

	synth := llm.NewGeminiSynthesizer(gemini, cfg.Gemini.BaseURL, cfg.Gemini.ChatModel, cfg.Gemini.APIKey,
		llm.WithLogger(logger), llm.WithMetrics(m))
	c.Engine = search.NewEngine(embedder, vectorIndex, synth, &cfg.Search,
		search.WithLogger(logger), search.WithMetrics(m))
	return c, nil
}
