package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/kotae/internal/models"
)

// SQLiteLedger implements Ledger using SQLite.
type SQLiteLedger struct {
	db   *sql.DB
	path string
}

// NewSQLiteLedger opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteLedger(dbPath string) (*SQLiteLedger, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteLedger{db: db, path: dbPath}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS ingests (
		source TEXT PRIMARY KEY,
		fingerprint TEXT NOT NULL,
		chunks INTEGER NOT NULL,
		upserted INTEGER NOT NULL,
		skipped INTEGER NOT NULL,
		ingested_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_ingests_ingested_at ON ingests(ingested_at);
	`
	_, err := db.Exec(schema)
	return err
}

// RecordIngest inserts or replaces the entry for rec.Source. A zero IngestedAt is set to now.
func (s *SQLiteLedger) RecordIngest(ctx context.Context, rec *models.IngestRecord) error {
	if rec.IngestedAt.IsZero() {
		rec.IngestedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO ingests (source, fingerprint, chunks, upserted, skipped, ingested_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(source) DO UPDATE SET
		   fingerprint = excluded.fingerprint,
		   chunks = excluded.chunks,
		   upserted = excluded.upserted,
		   skipped = excluded.skipped,
		   ingested_at = excluded.ingested_at`,
		rec.Source, rec.Fingerprint, rec.Chunks, rec.Upserted, rec.Skipped, rec.IngestedAt,
	)
	if err != nil {
		return fmt.Errorf("record ingest %s: %w", rec.Source, err)
	}
	return nil
}

// GetIngest returns the entry for source, or ErrNotFound.
func (s *SQLiteLedger) GetIngest(ctx context.Context, source string) (*models.IngestRecord, error) {
	var rec models.IngestRecord
	err := s.db.QueryRowContext(ctx,
		`SELECT source, fingerprint, chunks, upserted, skipped, ingested_at
		 FROM ingests WHERE source = ?`, source,
	).Scan(&rec.Source, &rec.Fingerprint, &rec.Chunks, &rec.Upserted, &rec.Skipped, &rec.IngestedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("ingest %s: %w", source, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListIngests returns entries, most recent first.
func (s *SQLiteLedger) ListIngests(ctx context.Context, offset, limit int) ([]*models.IngestRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT source, fingerprint, chunks, upserted, skipped, ingested_at
		 FROM ingests ORDER BY ingested_at DESC, source ASC LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	recs := make([]*models.IngestRecord, 0)
	for rows.Next() {
		var rec models.IngestRecord
		if err := rows.Scan(&rec.Source, &rec.Fingerprint, &rec.Chunks, &rec.Upserted, &rec.Skipped, &rec.IngestedAt); err != nil {
			return nil, err
		}
		recs = append(recs, &rec)
	}
	return recs, rows.Err()
}

// Stats returns source and chunk totals plus the on-disk size of the ledger.
func (s *SQLiteLedger) Stats(ctx context.Context) (*Stats, error) {
	var st Stats
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(chunks), 0), COALESCE(SUM(upserted), 0) FROM ingests`,
	).Scan(&st.Sources, &st.Chunks, &st.Upserted)
	if err != nil {
		return nil, err
	}
	if st.DiskBytes, err = footprintBytes(s.path); err != nil {
		return nil, fmt.Errorf("ledger size: %w", err)
	}
	return &st, nil
}

// Close closes the database.
func (s *SQLiteLedger) Close() error {
	return s.db.Close()
}
