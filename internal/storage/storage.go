// Package storage keeps a ledger of ingested reports so unchanged files are not re-embedded.
package storage

import (
	"context"
	"errors"

	"github.com/hyperjump/kotae/internal/models"
)

// ErrNotFound is returned when the ledger holds no entry for a source.
var ErrNotFound = errors.New("not found")

// Ledger records one entry per ingested source.
type Ledger interface {
	RecordIngest(ctx context.Context, rec *models.IngestRecord) error
	GetIngest(ctx context.Context, source string) (*models.IngestRecord, error)
	ListIngests(ctx context.Context, offset, limit int) ([]*models.IngestRecord, error)
	Stats(ctx context.Context) (*Stats, error)
	Close() error
}

// Stats summarises the ledger.
type Stats struct {
	Sources   int64 `json:"sources"`
	Chunks    int64 `json:"chunks"`
	Upserted  int64 `json:"upserted"`
	DiskBytes int64 `json:"disk_bytes"`
}
