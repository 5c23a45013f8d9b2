// Package models defines core data structures for chunks, index records, and answers.
package models

// Chunk is one window of a document's text. Index is the 0-based position in the
// chunk sequence and is part of the chunk's stable identity.
type Chunk struct {
	Index int    `json:"index"`
	Text  string `json:"text"`
}

// RecordMetadata is stored alongside each vector in the index.
type RecordMetadata struct {
	Source string `json:"source"`
	Index  int    `json:"index"`
	Text   string `json:"text"`
}

// Match returns md as a query returns it.
func (md RecordMetadata) Match() *MatchMetadata {
	index := md.Index
	return &MatchMetadata{Source: md.Source, Index: &index, Text: md.Text}
}

// MatchMetadata is the metadata returned with a query hit. Index is nil when
// the stored metadata has no chunk index.
type MatchMetadata struct {
	Source string `json:"source"`
	Index  *int   `json:"index"`
	Text   string `json:"text"`
}

// IndexedRecord is a chunk embedding ready to be upserted.
type IndexedRecord struct {
	ID       string         `json:"id"`
	Values   []float32      `json:"values"`
	Metadata RecordMetadata `json:"metadata"`
}

// RetrievedMatch is a single query hit. Metadata is nil when it was not requested
// or the index returned none.
type RetrievedMatch struct {
	ID       string          `json:"id"`
	Score    float64         `json:"score"`
	Metadata *MatchMetadata `json:"metadata,omitempty"`
}

// IndexResult reports what an ingest actually indexed.
type IndexResult struct {
	Source   string `json:"source"`
	Chunks   int    `json:"chunks"`
	Upserted int    `json:"upserted"`
	Skipped  int    `json:"skipped"`
}
