package vector

import (
	"context"
	"fmt"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/provider"
	"go.uber.org/zap"
)

// NewIndex creates the backend selected by cfg.Type. An empty type selects Pinecone.
func NewIndex(ctx context.Context, cfg *config.VectorConfig, logger *zap.Logger) (Index, error) {
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	switch IndexType(cfg.Type) {
	case "", IndexTypePinecone:
		if cfg.Pinecone.Host == "" {
			return nil, fmt.Errorf("pinecone host is required")
		}
		client := provider.NewClient(provider.Options{
			Timeout:    cfg.Timeout,
			MaxRetries: cfg.Pinecone.MaxRetries,
		})
		return NewPineconeIndex(client, cfg.Pinecone.Host, cfg.Pinecone.APIKey, cfg.Pinecone.Namespace, cfg.BatchSize, logger), nil
	case IndexTypeQdrant:
		if cfg.Timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
			defer cancel()
		}
		idx, err := NewQdrantIndex(ctx, QdrantOptions{
			Host:       cfg.Qdrant.Host,
			Port:       cfg.Qdrant.Port,
			APIKey:     cfg.Qdrant.APIKey,
			UseTLS:     cfg.Qdrant.UseTLS,
			Collection: cfg.Qdrant.Collection,
			Dimension:  cfg.Dimension,
			BatchSize:  cfg.BatchSize,
			Timeout:    cfg.Timeout,
		}, logger)
		if err != nil {
			return nil, err
		}
		return idx, nil
	case IndexTypeMemory:
		idx, err := OpenMemoryIndex(cfg.Dimension, cfg.MemoryPath)
		if err != nil {
			return nil, err
		}
		return idx, nil
	default:
		return nil, fmt.Errorf("unknown vector index type: %q (supported: pinecone, qdrant, memory)", cfg.Type)
	}
}
