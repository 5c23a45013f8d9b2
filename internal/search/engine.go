// Package search answers questions from the indexed reports.
package search

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/llm"
	"github.com/hyperjump/kotae/internal/metrics"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/vector"
	"github.com/hyperjump/kotae/pkg/utils"
	"go.uber.org/zap"
)

const (
	// ContextDelimiter separates snippets in the assembled context.
	ContextDelimiter = "\n---\n"
	// DefaultTitle is the source title used when a match carries no source name.
	DefaultTitle = "PDF"

	noContextAnswer = "No relevant context found in index for your question."
	fallbackPrefix  = "Answer based on top context:\n"
)

// Engine runs the ask path: embed, retrieve, assemble context, synthesize.
type Engine struct {
	embedder    embedding.Embedder
	index       vector.Index
	synthesizer llm.Synthesizer
	config      *config.SearchConfig
	logger      *zap.Logger
	metrics     *metrics.Metrics
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets a logger for retrieval events.
func WithLogger(l *zap.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) EngineOption {
	return func(e *Engine) { e.metrics = m }
}

// NewEngine creates an engine with the given dependencies.
func NewEngine(
	embedder embedding.Embedder,
	index vector.Index,
	synthesizer llm.Synthesizer,
	cfg *config.SearchConfig,
	opts ...EngineOption,
) *Engine {
	e := &Engine{
		embedder:    embedder,
		index:       index,
		synthesizer: synthesizer,
		config:      cfg,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Ask answers question from the index. It never fails: provider and index
// failures degrade to the no-context or fallback answers.
func (e *Engine) Ask(ctx context.Context, question string) *models.ChatAnswer {
	start := time.Now()
	queryVec := e.embedder.Embed(ctx, question)

	matches, err := e.index.Query(ctx, queryVec, e.config.TopK, true)
	if err != nil {
		var storeErr *vector.VectorStoreError
		if errors.As(err, &storeErr) {
			e.metrics.VectorStoreFailed("query")
		}
		e.logger.Warn("vector query failed, answering without context", zap.Error(err))
		matches = nil
	}
	matches = e.rank(matches)

	if len(matches) == 0 {
		e.metrics.Answer(metrics.OutcomeNoContext)
		e.logger.Debug("no context for question", zap.Duration("took", time.Since(start)))
		return models.NewChatAnswer(noContextAnswer)
	}

	answer := models.NewChatAnswer("")
	snippets := make([]string, 0, len(matches))
	for _, m := range matches {
		src := sourceFor(m)
		answer.Sources = append(answer.Sources, src)
		snippets = append(snippets, src.Snippet)
	}

	reportContext := AssembleContext(snippets, e.config.ContextBudget)
	text := e.synthesizer.Answer(ctx, question, reportContext)
	if strings.TrimSpace(text) == "" {
		answer.Answer = fallbackPrefix + answer.Sources[0].Snippet
		e.metrics.Answer(metrics.OutcomeFallback)
	} else {
		answer.Answer = text
		e.metrics.Answer(metrics.OutcomeAnswered)
	}
	e.logger.Debug("question answered",
		zap.Int("sources", len(answer.Sources)),
		zap.Int("context_runes", utils.RuneLen(reportContext)),
		zap.Duration("took", time.Since(start)))
	return answer
}

// rank drops matches under the configured minimum score and orders the rest
// by descending score, keeping index order among equal scores.
func (e *Engine) rank(matches []models.RetrievedMatch) []models.RetrievedMatch {
	kept := make([]models.RetrievedMatch, 0, len(matches))
	for _, m := range matches {
		if m.Score < e.config.MinScore {
			continue
		}
		kept = append(kept, m)
	}
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Score > kept[j].Score })
	return kept
}

func sourceFor(m models.RetrievedMatch) models.Source {
	src := models.Source{ID: m.ID, Title: DefaultTitle}
	if m.Metadata == nil {
		return src
	}
	if m.Metadata.Source != "" {
		src.Title = m.Metadata.Source
	}
	if m.Metadata.Index != nil {
		page := *m.Metadata.Index
		src.Page = &page
	}
	src.Snippet = m.Metadata.Text
	return src
}

// AssembleContext joins snippets with ContextDelimiter without exceeding
// budget runes. Delimiters count against the budget and the snippet that
// would overflow is cut to the remaining space.
func AssembleContext(snippets []string, budget int) string {
	var b strings.Builder
	used := 0
	delimLen := utils.RuneLen(ContextDelimiter)
	for i, s := range snippets {
		if i > 0 {
			if budget-used <= delimLen {
				break
			}
			b.WriteString(ContextDelimiter)
			used += delimLen
		}
		remaining := budget - used
		if remaining <= 0 {
			break
		}
		n := utils.RuneLen(s)
		if n > remaining {
			b.WriteString(utils.TruncateRunes(s, remaining))
			break
		}
		b.WriteString(s)
		used += n
	}
	return b.String()
}
