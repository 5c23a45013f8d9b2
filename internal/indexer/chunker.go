// Package indexer splits report text into chunks and drives the ingest path.
package indexer

import (
	"fmt"

	"github.com/hyperjump/kotae/internal/models"
)

// Chunker splits text into fixed-size overlapping character windows.
// Sizes count Unicode code points, not bytes.
type Chunker struct {
	chunkSize    int
	chunkOverlap int
}

// NewChunker creates a chunker with the given window size and overlap.
func NewChunker(chunkSize, chunkOverlap int) (*Chunker, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", chunkSize)
	}
	if chunkOverlap < 0 {
		return nil, fmt.Errorf("chunk overlap must not be negative, got %d", chunkOverlap)
	}
	return &Chunker{
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
	}, nil
}

// Chunk splits text into windows of chunkSize runes, each starting
// max(chunkSize-chunkOverlap, 1) runes after the previous one. The last
// window is the first one that reaches the end of text.
func (c *Chunker) Chunk(text string) []models.Chunk {
	runes := []rune(text)
	if len(runes) == 0 {
		return []models.Chunk{}
	}
	step := c.chunkSize - c.chunkOverlap
	if step < 1 {
		step = 1
	}
	chunks := make([]models.Chunk, 0, len(runes)/step+1)
	for start := 0; ; start += step {
		end := start + c.chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, models.Chunk{
			Index: len(chunks),
			Text:  string(runes[start:end]),
		})
		if end >= len(runes) {
			break
		}
	}
	return chunks
}
