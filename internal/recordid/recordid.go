// Package recordid derives deterministic identifiers for indexed chunks and ingested payloads.
package recordid

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
)

// idBytes is how much of the digest is kept for a chunk id.
const idBytes = 16

// ChunkID returns the stable id of chunk index of source: the first 16 bytes of
// SHA-256(source + ":" + index), hex-encoded. Re-ingesting the same source with the
// same chunking yields the same ids.
func ChunkID(source string, index int) string {
	sum := sha256.Sum256([]byte(source + ":" + strconv.Itoa(index)))
	return hex.EncodeToString(sum[:idBytes])
}

// Fingerprint returns the full hex SHA-256 of content.
func Fingerprint(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}
