// Package vector stores chunk embeddings and answers top-k similarity queries.
package vector

import (
	"context"
	"fmt"

	"github.com/hyperjump/kotae/internal/models"
)

// IndexType identifies a vector index backend.
type IndexType string

const (
	IndexTypePinecone IndexType = "pinecone"
	IndexTypeQdrant   IndexType = "qdrant"
	IndexTypeMemory   IndexType = "memory"
)

// Index is a vector store holding IndexedRecords.
//
// Upsert writes records in fixed-size batches; a failing batch aborts the call
// with a *VectorStoreError and earlier batches stay committed. Query returns
// matches in descending score order.
type Index interface {
	Upsert(ctx context.Context, records []models.IndexedRecord) error
	Query(ctx context.Context, vector []float32, topK int, includeMetadata bool) ([]models.RetrievedMatch, error)
	Type() string
	Close() error
}

// VectorStoreError reports a failed upsert batch or query.
// Status is the HTTP status for REST backends and the gRPC code for Qdrant;
// zero means the call never got a response.
type VectorStoreError struct {
	Op      string
	Batch   int
	Status  int
	Message string
	Err     error
}

func (e *VectorStoreError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Op == "upsert" {
		return fmt.Sprintf("vector store upsert batch %d failed (status %d): %s", e.Batch, e.Status, msg)
	}
	return fmt.Sprintf("vector store %s failed (status %d): %s", e.Op, e.Status, msg)
}

func (e *VectorStoreError) Unwrap() error {
	return e.Err
}

// batchRanges splits n items into [start, end) ranges of at most size items.
func batchRanges(n, size int) [][2]int {
	if size <= 0 {
		size = n
	}
	var out [][2]int
	for start := 0; start < n; start += size {
		end := start + size
		if end > n {
			end = n
		}
		out = append(out, [2]int{start, end})
	}
	return out
}
