package models

import "time"

// IngestRecord is the ledger entry for the most recent ingest of a source.
type IngestRecord struct {
	Source      string    `json:"source"`
	Fingerprint string    `json:"fingerprint"`
	Chunks      int       `json:"chunks"`
	Upserted    int       `json:"upserted"`
	Skipped     int       `json:"skipped"`
	IngestedAt  time.Time `json:"ingested_at"`
}
