// Package llm produces grounded answers from retrieved report context.
package llm

import (
	"context"
	"strings"
	"time"

	"github.com/hyperjump/kotae/internal/metrics"
	"github.com/hyperjump/kotae/internal/provider"
	"go.uber.org/zap"
)

// Synthesizer answers a question using only the supplied context.
// An empty string means no answer could be produced.
type Synthesizer interface {
	Answer(ctx context.Context, question, reportContext string) string
}

const systemInstruction = "Answer only using the provided context. If insufficient, reply: 'I'm not sure based on the available context.'"

// BuildPrompt renders the user turn sent alongside the system instruction.
func BuildPrompt(question, reportContext string) string {
	var b strings.Builder
	b.WriteString("You are a helpful analyst. Answer strictly based on the provided context from business PDF reports. ")
	b.WriteString("If the answer isn't in context, say you are not sure.\n\n")
	b.WriteString("Context:\n")
	b.WriteString(reportContext)
	b.WriteString("\n\nQuestion: ")
	b.WriteString(question)
	b.WriteString("\nAnswer:")
	return b.String()
}

type generateRequest struct {
	SystemInstruction provider.GeminiContent   `json:"system_instruction"`
	Contents          []provider.GeminiContent `json:"contents"`
}

type generateResponse struct {
	Candidates []struct {
		Content provider.GeminiContent `json:"content"`
	} `json:"candidates"`
}

// GeminiSynthesizer calls the Gemini generateContent endpoint.
type GeminiSynthesizer struct {
	client  *provider.Client
	url     string
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// Option configures a GeminiSynthesizer.
type Option func(*GeminiSynthesizer)

// WithLogger sets the logger used to report degraded calls.
func WithLogger(l *zap.Logger) Option {
	return func(s *GeminiSynthesizer) { s.logger = l }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *GeminiSynthesizer) { s.metrics = m }
}

// NewGeminiSynthesizer creates a synthesizer for model at baseURL.
func NewGeminiSynthesizer(client *provider.Client, baseURL, model, apiKey string, opts ...Option) *GeminiSynthesizer {
	s := &GeminiSynthesizer{
		client: client,
		url:    provider.GeminiURL(baseURL, model, "generateContent", apiKey),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Answer returns the first candidate's text, or "" when the call fails or
// the response carries no text.
func (s *GeminiSynthesizer) Answer(ctx context.Context, question, reportContext string) string {
	start := time.Now()
	defer s.metrics.ObserveProvider("gemini", "generate", start)

	req := generateRequest{
		SystemInstruction: provider.GeminiText("system", systemInstruction),
		Contents:          []provider.GeminiContent{provider.GeminiText("user", BuildPrompt(question, reportContext))},
	}
	var resp generateResponse
	if err := s.client.PostJSON(ctx, s.url, nil, req, &resp); err != nil {
		s.degrade("generation request failed", zap.Error(err))
		return ""
	}
	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		s.degrade("generation response had no candidates")
		return ""
	}
	return resp.Candidates[0].Content.Parts[0].Text
}

func (s *GeminiSynthesizer) degrade(msg string, fields ...zap.Field) {
	s.metrics.SynthesisFailed()
	s.logger.Warn(msg, fields...)
}
