package indexer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/extract"
	"github.com/hyperjump/kotae/internal/metrics"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/recordid"
	"github.com/hyperjump/kotae/internal/storage"
	"github.com/hyperjump/kotae/internal/vector"
	"github.com/hyperjump/kotae/pkg/utils"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultSourceName is used when an upload carries no file name.
const DefaultSourceName = "report.pdf"

// ErrUnchanged is returned by IndexFile when the ledger already holds the
// same content for the file.
var ErrUnchanged = errors.New("source unchanged since last ingest")

// Indexer runs the ingest path: extract, chunk, embed, upsert.
type Indexer struct {
	extractor       *extract.Extractor
	chunker         *Chunker
	embedder        embedding.Embedder
	index           vector.Index
	ledger          storage.Ledger
	dimension       int
	metadataTextCap int
	concurrency     int
	logger          *zap.Logger
	metrics         *metrics.Metrics
}

// IndexerOption configures an Indexer.
type IndexerOption func(*Indexer)

// WithLogger sets a logger for ingest events.
func WithLogger(l *zap.Logger) IndexerOption {
	return func(idx *Indexer) { idx.logger = l }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) IndexerOption {
	return func(idx *Indexer) { idx.metrics = m }
}

// WithLedger records every successful ingest and lets IndexFile skip unchanged files.
func WithLedger(l storage.Ledger) IndexerOption {
	return func(idx *Indexer) { idx.ledger = l }
}

// NewIndexer creates an indexer. dimension is the vector length the index
// accepts; embeddings of any other length are skipped.
func NewIndexer(
	extractor *extract.Extractor,
	embedder embedding.Embedder,
	index vector.Index,
	cfg *config.IngestConfig,
	dimension int,
	opts ...IndexerOption,
) (*Indexer, error) {
	chunker, err := NewChunker(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		return nil, err
	}
	if dimension <= 0 {
		return nil, fmt.Errorf("dimension must be positive, got %d", dimension)
	}
	concurrency := cfg.EmbedConcurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	idx := &Indexer{
		extractor:       extractor,
		chunker:         chunker,
		embedder:        embedder,
		index:           index,
		dimension:       dimension,
		metadataTextCap: cfg.MetadataTextCap,
		concurrency:     concurrency,
		logger:          zap.NewNop(),
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx, nil
}

// IndexDocument ingests one uploaded document. Extraction errors are returned
// unchanged (*extract.ExtractionError); a failed upsert returns a
// *vector.VectorStoreError and batches already written stay in the index.
func (idx *Indexer) IndexDocument(ctx context.Context, r io.Reader, sourceName string) (*models.IndexResult, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}
	return idx.indexContent(ctx, content, sourceName)
}

func (idx *Indexer) indexContent(ctx context.Context, content []byte, sourceName string) (*models.IndexResult, error) {
	source := strings.TrimSpace(sourceName)
	if source == "" {
		source = DefaultSourceName
	}

	text, err := idx.extractor.Extract(bytes.NewReader(content), source)
	if err != nil {
		idx.metrics.Ingest("error")
		return nil, err
	}

	var chunks []models.Chunk
	if strings.TrimSpace(text) != "" {
		chunks = idx.chunker.Chunk(text)
	}

	vectors, err := idx.embedChunks(ctx, chunks)
	if err != nil {
		idx.metrics.Ingest("error")
		return nil, err
	}

	records := make([]models.IndexedRecord, 0, len(chunks))
	skipped := 0
	for i, ch := range chunks {
		vec := vectors[i]
		if len(vec) == 0 || len(vec) != idx.dimension {
			skipped++
			if len(vec) != 0 {
				idx.logger.Warn("embedding dimension mismatch, skipping chunk",
					zap.String("source", source), zap.Int("chunk", ch.Index),
					zap.Int("got", len(vec)), zap.Int("want", idx.dimension))
			}
			continue
		}
		text := ch.Text
		if idx.metadataTextCap > 0 {
			text = utils.TruncateRunes(text, idx.metadataTextCap)
		}
		records = append(records, models.IndexedRecord{
			ID:     recordid.ChunkID(source, ch.Index),
			Values: vec,
			Metadata: models.RecordMetadata{
				Source: source,
				Index:  ch.Index,
				Text:   text,
			},
		})
	}

	if len(records) > 0 {
		if err := idx.index.Upsert(ctx, records); err != nil {
			idx.metrics.VectorStoreFailed("upsert")
			idx.metrics.Ingest("error")
			return nil, fmt.Errorf("index %s: %w", source, err)
		}
	}

	result := &models.IndexResult{
		Source:   source,
		Chunks:   len(chunks),
		Upserted: len(records),
		Skipped:  skipped,
	}
	idx.metrics.IndexedChunks(result.Upserted, result.Skipped)
	idx.metrics.Ingest("ok")
	idx.recordIngest(ctx, content, result)
	idx.logger.Info("report indexed",
		zap.String("source", source),
		zap.Int("chunks", result.Chunks),
		zap.Int("upserted", result.Upserted),
		zap.Int("skipped", result.Skipped))
	return result, nil
}

// embedChunks embeds every chunk with at most idx.concurrency calls in
// flight. vectors[i] always belongs to chunks[i].
func (idx *Indexer) embedChunks(ctx context.Context, chunks []models.Chunk) ([][]float32, error) {
	vectors := make([][]float32, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(idx.concurrency)
	for i, ch := range chunks {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			vectors[i] = idx.embedder.Embed(gctx, ch.Text)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("embed chunks: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("embed chunks: %w", err)
	}
	return vectors, nil
}

func (idx *Indexer) recordIngest(ctx context.Context, content []byte, result *models.IndexResult) {
	if idx.ledger == nil {
		return
	}
	rec := &models.IngestRecord{
		Source:      result.Source,
		Fingerprint: recordid.Fingerprint(content),
		Chunks:      result.Chunks,
		Upserted:    result.Upserted,
		Skipped:     result.Skipped,
	}
	if err := idx.ledger.RecordIngest(ctx, rec); err != nil {
		idx.logger.Warn("failed to record ingest", zap.String("source", result.Source), zap.Error(err))
	}
}

// IndexFile ingests the file at path under its base name. If allowedExts is
// non-empty, the extension must be in the list (case-insensitive). Returns
// ErrUnchanged when the ledger already holds identical content for the name.
func (idx *Indexer) IndexFile(ctx context.Context, path string, allowedExts []string) (*models.IndexResult, error) {
	idx.logger.Debug("indexer indexing file", zap.String("path", path))
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("absolute path: %w", err)
	}
	ext := strings.ToLower(filepath.Ext(absPath))
	if len(allowedExts) > 0 && !extensionAllowed(ext, allowedExts) {
		return nil, fmt.Errorf("extension %q not in allowed list", ext)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("stat file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("not a regular file: %s", absPath)
	}
	content, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	source := filepath.Base(absPath)
	if idx.unchanged(ctx, source, content) {
		idx.logger.Debug("indexer skipping unchanged file", zap.String("path", absPath))
		return nil, ErrUnchanged
	}
	return idx.indexContent(ctx, content, source)
}

func (idx *Indexer) unchanged(ctx context.Context, source string, content []byte) bool {
	if idx.ledger == nil {
		return false
	}
	rec, err := idx.ledger.GetIngest(ctx, source)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			idx.logger.Warn("ledger lookup failed", zap.String("source", source), zap.Error(err))
		}
		return false
	}
	return rec.Fingerprint == recordid.Fingerprint(content)
}

// IndexDirectory walks dir recursively and indexes each regular file whose extension
// is in allowedExts (if non-nil and non-empty; otherwise every supported format).
// Unchanged files are skipped. Returns the number of files indexed and the first error.
func (idx *Indexer) IndexDirectory(ctx context.Context, dir string, allowedExts []string) (n int, err error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return 0, fmt.Errorf("absolute path: %w", err)
	}
	info, err := os.Stat(absDir)
	if err != nil {
		return 0, fmt.Errorf("stat directory: %w", err)
	}
	if !info.IsDir() {
		return 0, fmt.Errorf("not a directory: %s", absDir)
	}
	err = filepath.WalkDir(absDir, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if len(allowedExts) > 0 && !extensionAllowed(ext, allowedExts) {
			return nil
		}
		if !extract.Supported(path) {
			return nil
		}
		// Resolve symlinks so we only index regular files
		finfo, statErr := os.Stat(path)
		if statErr != nil || !finfo.Mode().IsRegular() {
			return nil
		}
		if _, indexErr := idx.IndexFile(ctx, path, allowedExts); indexErr != nil {
			if errors.Is(indexErr, ErrUnchanged) {
				return nil
			}
			return indexErr
		}
		n++
		return nil
	})
	return n, err
}

func extensionAllowed(ext string, allowed []string) bool {
	extNorm := strings.ToLower(strings.TrimPrefix(ext, "."))
	for _, a := range allowed {
		if strings.ToLower(strings.TrimPrefix(a, ".")) == extNorm {
			return true
		}
	}
	return false
}
