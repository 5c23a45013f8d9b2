package vector

import (
	"context"
	"errors"
	"strings"

	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/provider"
	"go.uber.org/zap"
)

type pineconeVector struct {
	ID       string           `json:"id"`
	Values   []float32        `json:"values"`
	Metadata pineconeMetadata `json:"metadata"`
}

type pineconeMetadata struct {
	Source string   `json:"source"`
	Index  *float64 `json:"index"`
	Text   string   `json:"text"`
}

type pineconeUpsertRequest struct {
	Vectors   []pineconeVector `json:"vectors"`
	Namespace string           `json:"namespace"`
}

type pineconeQueryRequest struct {
	Vector          []float32 `json:"vector"`
	TopK            int       `json:"topK"`
	IncludeMetadata bool      `json:"includeMetadata"`
	Namespace       string    `json:"namespace"`
}

type pineconeQueryResponse struct {
	Matches []struct {
		ID       string            `json:"id"`
		Score    float64           `json:"score"`
		Metadata *pineconeMetadata `json:"metadata"`
	} `json:"matches"`
}

// PineconeIndex talks to a Pinecone index over its REST data plane.
type PineconeIndex struct {
	client    *provider.Client
	host      string
	headers   map[string]string
	namespace string
	batchSize int
	logger    *zap.Logger
}

// NewPineconeIndex creates a client for the index at host. Hosts without a
// scheme are reached over https.
func NewPineconeIndex(client *provider.Client, host, apiKey, namespace string, batchSize int, logger *zap.Logger) *PineconeIndex {
	host = strings.TrimRight(host, "/")
	if !strings.Contains(host, "://") {
		host = "https://" + host
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PineconeIndex{
		client:    client,
		host:      host,
		headers:   map[string]string{"Api-Key": apiKey},
		namespace: namespace,
		batchSize: batchSize,
		logger:    logger,
	}
}

// Type returns the index type identifier.
func (p *PineconeIndex) Type() string {
	return string(IndexTypePinecone)
}

// Upsert posts records in batches of batchSize.
func (p *PineconeIndex) Upsert(ctx context.Context, records []models.IndexedRecord) error {
	for i, r := range batchRanges(len(records), p.batchSize) {
		batch := records[r[0]:r[1]]
		req := pineconeUpsertRequest{
			Vectors:   make([]pineconeVector, len(batch)),
			Namespace: p.namespace,
		}
		for j, rec := range batch {
			index := float64(rec.Metadata.Index)
			req.Vectors[j] = pineconeVector{
				ID:     rec.ID,
				Values: rec.Values,
				Metadata: pineconeMetadata{
					Source: rec.Metadata.Source,
					Index:  &index,
					Text:   rec.Metadata.Text,
				},
			}
		}
		if err := p.client.PostJSON(ctx, p.host+"/vectors/upsert", p.headers, req, nil); err != nil {
			return newStoreError("upsert", i, err)
		}
		p.logger.Debug("pinecone batch upserted", zap.Int("batch", i), zap.Int("vectors", len(batch)))
	}
	return nil
}

// Query returns the topK nearest records in the namespace.
func (p *PineconeIndex) Query(ctx context.Context, vector []float32, topK int, includeMetadata bool) ([]models.RetrievedMatch, error) {
	if vector == nil {
		vector = []float32{}
	}
	req := pineconeQueryRequest{
		Vector:          vector,
		TopK:            topK,
		IncludeMetadata: includeMetadata,
		Namespace:       p.namespace,
	}
	var resp pineconeQueryResponse
	if err := p.client.PostJSON(ctx, p.host+"/query", p.headers, req, &resp); err != nil {
		return nil, newStoreError("query", 0, err)
	}
	matches := make([]models.RetrievedMatch, 0, len(resp.Matches))
	for _, m := range resp.Matches {
		match := models.RetrievedMatch{ID: m.ID, Score: m.Score}
		if includeMetadata && m.Metadata != nil {
			match.Metadata = &models.MatchMetadata{
				Source: m.Metadata.Source,
				Text:   m.Metadata.Text,
			}
			if m.Metadata.Index != nil {
				index := int(*m.Metadata.Index)
				match.Metadata.Index = &index
			}
		}
		matches = append(matches, match)
	}
	return matches, nil
}

// Close is a no-op; the HTTP client is shared.
func (p *PineconeIndex) Close() error {
	return nil
}

func newStoreError(op string, batch int, err error) *VectorStoreError {
	storeErr := &VectorStoreError{Op: op, Batch: batch, Err: err, Message: err.Error()}
	var statusErr *provider.StatusError
	if errors.As(err, &statusErr) {
		storeErr.Status = statusErr.Status
		if statusErr.Body != "" {
			storeErr.Message = statusErr.Body
		}
	}
	return storeErr
}
