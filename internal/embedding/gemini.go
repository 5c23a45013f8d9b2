package embedding

import (
	"context"
	"time"

	"github.com/hyperjump/kotae/internal/metrics"
	"github.com/hyperjump/kotae/internal/provider"
	"go.uber.org/zap"
)

type embedRequest struct {
	Content provider.GeminiContent `json:"content"`
}

type embedResponse struct {
	Embedding struct {
		Values []float32 `json:"values"`
	} `json:"embedding"`
}

// GeminiEmbedder calls the Gemini embedContent endpoint.
type GeminiEmbedder struct {
	client     *provider.Client
	url        string
	dimensions int
	logger     *zap.Logger
	metrics    *metrics.Metrics
}

// GeminiOption configures a GeminiEmbedder.
type GeminiOption func(*GeminiEmbedder)

// WithLogger sets the logger used to report degraded calls.
func WithLogger(l *zap.Logger) GeminiOption {
	return func(e *GeminiEmbedder) { e.logger = l }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) GeminiOption {
	return func(e *GeminiEmbedder) { e.metrics = m }
}

// NewGeminiEmbedder creates an embedder for model at baseURL.
// dimensions is the vector length the index expects.
func NewGeminiEmbedder(client *provider.Client, baseURL, model, apiKey string, dimensions int, opts ...GeminiOption) *GeminiEmbedder {
	e := &GeminiEmbedder{
		client:     client,
		url:        provider.GeminiURL(baseURL, model, "embedContent", apiKey),
		dimensions: dimensions,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Embed returns the embedding for text, or an empty vector if the call fails.
func (e *GeminiEmbedder) Embed(ctx context.Context, text string) []float32 {
	start := time.Now()
	defer e.metrics.ObserveProvider("gemini", "embed", start)

	var resp embedResponse
	req := embedRequest{Content: provider.GeminiText("", text)}
	if err := e.client.PostJSON(ctx, e.url, nil, req, &resp); err != nil {
		e.degrade("embedding request failed", zap.Error(err))
		return []float32{}
	}
	if len(resp.Embedding.Values) == 0 {
		e.degrade("embedding response had no values")
		return []float32{}
	}
	return resp.Embedding.Values
}

func (e *GeminiEmbedder) degrade(msg string, fields ...zap.Field) {
	e.metrics.EmbeddingFailed()
	e.logger.Warn(msg, fields...)
}

// Dimensions returns the configured embedding dimension.
func (e *GeminiEmbedder) Dimensions() int {
	return e.dimensions
}

// Close is a no-op; the HTTP client is shared.
func (e *GeminiEmbedder) Close() error {
	return nil
}
