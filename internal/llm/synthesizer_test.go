package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hyperjump/kotae/internal/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newTestSynthesizer(t *testing.T, handler http.HandlerFunc) (*GeminiSynthesizer, *observer.ObservedLogs) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	core, logs := observer.New(zapcore.WarnLevel)
	client := provider.NewClient(provider.Options{BaseBackoff: time.Millisecond})
	return NewGeminiSynthesizer(client, srv.URL, "gemini-1.5-flash", "k", WithLogger(zap.New(core))), logs
}

func TestBuildPrompt(t *testing.T) {
	p := BuildPrompt("What was Q3 revenue?", "Revenue was $4M")
	assert.True(t, strings.HasPrefix(p, "You are a helpful analyst."))
	assert.Contains(t, p, "Context:\nRevenue was $4M\n\nQuestion: What was Q3 revenue?\nAnswer:")
}

func TestGeminiSynthesizer_Answer(t *testing.T) {
	s, logs := newTestSynthesizer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1beta/models/gemini-1.5-flash:generateContent", r.URL.Path)
		var req generateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "system", req.SystemInstruction.Role)
		assert.Equal(t, systemInstruction, req.SystemInstruction.Parts[0].Text)
		require.Len(t, req.Contents, 1)
		assert.Equal(t, "user", req.Contents[0].Role)
		assert.Contains(t, req.Contents[0].Parts[0].Text, "Question: q?")
		w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"Revenue was $4M."}]}}]}`))
	})

	assert.Equal(t, "Revenue was $4M.", s.Answer(context.Background(), "q?", "ctx"))
	assert.Equal(t, 0, logs.Len())
}

func TestGeminiSynthesizer_degrades(t *testing.T) {
	cases := map[string]http.HandlerFunc{
		"status": func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusForbidden) },
		"empty":  func(w http.ResponseWriter, r *http.Request) { w.Write([]byte(`{"candidates":[]}`)) },
		"parts":  func(w http.ResponseWriter, r *http.Request) { w.Write([]byte(`{"candidates":[{"content":{"parts":[]}}]}`)) },
		"json":   func(w http.ResponseWriter, r *http.Request) { w.Write([]byte(`<html>`)) },
	}
	for name, handler := range cases {
		t.Run(name, func(t *testing.T) {
			s, logs := newTestSynthesizer(t, handler)
			assert.Equal(t, "", s.Answer(context.Background(), "q", "c"))
			assert.Equal(t, 1, logs.Len())
		})
	}
}
