package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/hyperjump/kotae/internal/models"
)

func newTestLedger(t *testing.T) *SQLiteLedger {
	t.Helper()
	ledger, err := NewSQLiteLedger(filepath.Join(t.TempDir(), "data", "ledger.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = ledger.Close() })
	return ledger
}

func TestSQLiteLedger_RecordAndGet(t *testing.T) {
	ledger := newTestLedger(t)
	ctx := context.Background()

	rec := &models.IngestRecord{Source: "q3.pdf", Fingerprint: "abc", Chunks: 4, Upserted: 3, Skipped: 1}
	if err := ledger.RecordIngest(ctx, rec); err != nil {
		t.Fatal(err)
	}
	if rec.IngestedAt.IsZero() {
		t.Error("IngestedAt should be set")
	}

	got, err := ledger.GetIngest(ctx, "q3.pdf")
	if err != nil {
		t.Fatal(err)
	}
	if got.Fingerprint != "abc" || got.Chunks != 4 || got.Upserted != 3 || got.Skipped != 1 {
		t.Errorf("got %+v", got)
	}

	rec2 := &models.IngestRecord{Source: "q3.pdf", Fingerprint: "def", Chunks: 2, Upserted: 2}
	if err := ledger.RecordIngest(ctx, rec2); err != nil {
		t.Fatal(err)
	}
	got, _ = ledger.GetIngest(ctx, "q3.pdf")
	if got.Fingerprint != "def" || got.Chunks != 2 {
		t.Errorf("re-ingest should replace the entry, got %+v", got)
	}
}

func TestSQLiteLedger_NotFound(t *testing.T) {
	ledger := newTestLedger(t)
	_, err := ledger.GetIngest(context.Background(), "missing.pdf")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("want ErrNotFound, got %v", err)
	}
}

func TestSQLiteLedger_ListAndStats(t *testing.T) {
	ledger := newTestLedger(t)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, src := range []string{"a.pdf", "b.pdf", "c.pdf"} {
		rec := &models.IngestRecord{
			Source: src, Fingerprint: src, Chunks: i + 1, Upserted: i + 1,
			IngestedAt: base.Add(time.Duration(i) * time.Hour),
		}
		if err := ledger.RecordIngest(ctx, rec); err != nil {
			t.Fatal(err)
		}
	}

	recs, err := ledger.ListIngests(ctx, 0, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 2 || recs[0].Source != "c.pdf" || recs[1].Source != "b.pdf" {
		t.Errorf("list order: %+v", recs)
	}

	st, err := ledger.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.Sources != 3 || st.Chunks != 6 || st.Upserted != 6 {
		t.Errorf("stats: %+v", st)
	}
	if st.DiskBytes <= 0 {
		t.Errorf("disk bytes should be positive, got %d", st.DiskBytes)
	}
}

func TestFootprintBytes_missing(t *testing.T) {
	n, err := footprintBytes(filepath.Join(t.TempDir(), "nope.db"))
	if err != nil || n != 0 {
		t.Errorf("got %d, %v", n, err)
	}
}
