package recordid

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"
)

func TestChunkID_deterministic(t *testing.T) {
	a := ChunkID("q1-report.pdf", 3)
	b := ChunkID("q1-report.pdf", 3)
	if a != b {
		t.Errorf("same input gave different ids: %s vs %s", a, b)
	}
	if len(a) != 32 {
		t.Errorf("expected 32 hex chars, got %d (%s)", len(a), a)
	}
}

func TestChunkID_matchesDigestPrefix(t *testing.T) {
	sum := sha256.Sum256([]byte("report.pdf:0"))
	want := hex.EncodeToString(sum[:16])
	if got := ChunkID("report.pdf", 0); got != want {
		t.Errorf("ChunkID = %s, want %s", got, want)
	}
}

func TestChunkID_distinct(t *testing.T) {
	seen := map[string]bool{}
	for _, src := range []string{"a.pdf", "b.pdf"} {
		for i := 0; i < 50; i++ {
			id := ChunkID(src, i)
			if seen[id] {
				t.Fatalf("duplicate id for %s:%d", src, i)
			}
			seen[id] = true
		}
	}
}

func TestFingerprint(t *testing.T) {
	if Fingerprint([]byte("x")) == Fingerprint([]byte("y")) {
		t.Error("different content should have different fingerprints")
	}
	if len(Fingerprint(nil)) != 64 {
		t.Error("expected 64 hex chars")
	}
}
