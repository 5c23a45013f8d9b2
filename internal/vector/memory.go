package vector

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/pkg/utils"
)

// MemoryIndex is an in-process vector index using brute-force inner product search.
// Records are keyed by id, so upserting an existing id overwrites it.
type MemoryIndex struct {
	dimensions int
	records    []models.IndexedRecord
	positions  map[string]int
	path       string
	mu         sync.RWMutex
}

// NewMemoryIndex creates an in-memory vector index with the given dimension.
func NewMemoryIndex(dimensions int) (*MemoryIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	return &MemoryIndex{
		dimensions: dimensions,
		positions:  make(map[string]int),
	}, nil
}

// OpenMemoryIndex creates a memory index backed by the snapshot at path. The
// snapshot is loaded now, if present, and rewritten on Close.
func OpenMemoryIndex(dimensions int, path string) (*MemoryIndex, error) {
	m, err := NewMemoryIndex(dimensions)
	if err != nil {
		return nil, err
	}
	if err := m.Load(path); err != nil {
		return nil, fmt.Errorf("load memory index: %w", err)
	}
	m.path = path
	return m, nil
}

// Type returns the index type identifier.
func (m *MemoryIndex) Type() string {
	return string(IndexTypeMemory)
}

// Upsert inserts or overwrites records by id. All vectors are checked before any is written.
func (m *MemoryIndex) Upsert(ctx context.Context, records []models.IndexedRecord) error {
	for _, r := range records {
		if len(r.Values) != m.dimensions {
			return &VectorStoreError{
				Op:      "upsert",
				Message: fmt.Sprintf("record %s: vector dimension %d, expected %d", r.ID, len(r.Values), m.dimensions),
			}
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range records {
		rec := models.IndexedRecord{
			ID:       r.ID,
			Values:   append([]float32(nil), r.Values...),
			Metadata: r.Metadata,
		}
		if pos, ok := m.positions[r.ID]; ok {
			m.records[pos] = rec
			continue
		}
		m.positions[r.ID] = len(m.records)
		m.records = append(m.records, rec)
	}
	return nil
}

// Query returns the topK records by inner product; equal scores are ordered by id.
func (m *MemoryIndex) Query(ctx context.Context, vector []float32, topK int, includeMetadata bool) ([]models.RetrievedMatch, error) {
	if len(vector) != m.dimensions {
		return nil, &VectorStoreError{
			Op:      "query",
			Message: fmt.Sprintf("query dimension %d, expected %d", len(vector), m.dimensions),
		}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if topK <= 0 || len(m.records) == 0 {
		return []models.RetrievedMatch{}, nil
	}
	matches := make([]models.RetrievedMatch, len(m.records))
	for i, r := range m.records {
		matches[i] = models.RetrievedMatch{ID: r.ID, Score: utils.Dot(vector, r.Values)}
		if includeMetadata {
			matches[i].Metadata = r.Metadata.Match()
		}
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].ID < matches[j].ID
	})
	if topK < len(matches) {
		matches = matches[:topK]
	}
	return matches, nil
}

// Size returns the number of records in the index.
func (m *MemoryIndex) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

// Close writes the snapshot when the index was opened with a path.
func (m *MemoryIndex) Close() error {
	return m.Save(m.path)
}

// Save persists the index to path. Directory is created if needed. Format: dimension (4), n (4),
// then per record: id, source, text as length-prefixed strings, chunk index (4), vector (dimension*4 bytes).
func (m *MemoryIndex) Save(path string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create index file: %w", err)
	}
	defer f.Close()
	if err := binary.Write(f, binary.LittleEndian, uint32(m.dimensions)); err != nil {
		return fmt.Errorf("write dimensions: %w", err)
	}
	if err := binary.Write(f, binary.LittleEndian, uint32(len(m.records))); err != nil {
		return fmt.Errorf("write count: %w", err)
	}
	for _, r := range m.records {
		for _, s := range []string{r.ID, r.Metadata.Source, r.Metadata.Text} {
			if err := writeString(f, s); err != nil {
				return fmt.Errorf("write record %s: %w", r.ID, err)
			}
		}
		if err := binary.Write(f, binary.LittleEndian, uint32(r.Metadata.Index)); err != nil {
			return fmt.Errorf("write chunk index: %w", err)
		}
		if _, err := f.Write(float32SliceToBytes(r.Values)); err != nil {
			return fmt.Errorf("write vector: %w", err)
		}
	}
	return nil
}

// Load reads the index from path and replaces the in-memory contents. Dimensions must match.
// If the file does not exist, no error is returned and the index is unchanged.
func (m *MemoryIndex) Load(path string) error {
	if path == "" {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open index file: %w", err)
	}
	defer f.Close()
	var dim, n uint32
	if err := binary.Read(f, binary.LittleEndian, &dim); err != nil {
		return fmt.Errorf("read dimensions: %w", err)
	}
	if int(dim) != m.dimensions {
		return fmt.Errorf("dimension mismatch: file has %d, index expects %d", dim, m.dimensions)
	}
	if err := binary.Read(f, binary.LittleEndian, &n); err != nil {
		return fmt.Errorf("read count: %w", err)
	}
	records := make([]models.IndexedRecord, 0, n)
	positions := make(map[string]int, n)
	buf := make([]byte, m.dimensions*4)
	for i := uint32(0); i < n; i++ {
		var fields [3]string
		for j := range fields {
			if fields[j], err = readString(f); err != nil {
				return fmt.Errorf("read record %d: %w", i, err)
			}
		}
		var chunkIndex uint32
		if err := binary.Read(f, binary.LittleEndian, &chunkIndex); err != nil {
			return fmt.Errorf("read chunk index: %w", err)
		}
		if _, err := io.ReadFull(f, buf); err != nil {
			return fmt.Errorf("read vector: %w", err)
		}
		positions[fields[0]] = len(records)
		records = append(records, models.IndexedRecord{
			ID:       fields[0],
			Values:   bytesToFloat32Slice(buf),
			Metadata: models.RecordMetadata{Source: fields[1], Index: int(chunkIndex), Text: fields[2]},
		})
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = records
	m.positions = positions
	return nil
}

func writeString(w io.Writer, s string) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func readString(r io.Reader) (string, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return "", err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}

func float32SliceToBytes(s []float32) []byte {
	const size = 4
	out := make([]byte, len(s)*size)
	for i, v := range s {
		binary.LittleEndian.PutUint32(out[i*size:(i+1)*size], math.Float32bits(v))
	}
	return out
}

func bytesToFloat32Slice(b []byte) []float32 {
	const size = 4
	out := make([]float32, len(b)/size)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*size : (i+1)*size]))
	}
	return out
}
