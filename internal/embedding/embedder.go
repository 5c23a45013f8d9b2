// Package embedding turns text into fixed-dimension vectors.
package embedding

import "context"

// Embedder produces vector embeddings for text.
//
// Embed never fails outright: when the provider cannot produce a vector it
// returns a zero-length slice, and callers must skip that unit of text.
type Embedder interface {
	Embed(ctx context.Context, text string) []float32
	Dimensions() int
	Close() error
}
