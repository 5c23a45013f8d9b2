package embedding

import (
	"context"
	"encoding/json"
	"math"
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

func TestMockEmbedder(t *testing.T) {
	e := NewMockEmbedder(16)
	ctx := context.Background()
	a := e.Embed(ctx, "revenue")
	b := e.Embed(ctx, "revenue")
	c := e.Embed(ctx, "headcount")
	require.Len(t, a, 16)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)

	var sum float64
	for _, v := range a {
		sum += float64(v * v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(sum), 1e-5)
	assert.Equal(t, 768, NewMockEmbedder(0).Dimensions())
}

func newTestEmbedder(t *testing.T, handler http.HandlerFunc) (*GeminiEmbedder, *observer.ObservedLogs) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	core, logs := observer.New(zapcore.WarnLevel)
	client := provider.NewClient(provider.Options{MaxRetries: 1, BaseBackoff: time.Millisecond})
	e := NewGeminiEmbedder(client, srv.URL, "text-embedding-004", "test-key", 3, WithLogger(zap.New(core)))
	return e, logs
}

func TestGeminiEmbedder_Embed(t *testing.T) {
	e, logs := newTestEmbedder(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1beta/models/text-embedding-004:embedContent", r.URL.Path)
		assert.Equal(t, "test-key", r.URL.Query().Get("key"))
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		content := body["content"].(map[string]any)
		parts := content["parts"].([]any)
		assert.Equal(t, "total revenue", parts[0].(map[string]any)["text"])
		w.Write([]byte(`{"embedding":{"values":[0.1,0.2,0.3]}}`))
	})

	got := e.Embed(context.Background(), "total revenue")
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, got)
	assert.Equal(t, 0, logs.Len())
	assert.Equal(t, 3, e.Dimensions())
}

func TestGeminiEmbedder_degradesToEmptyVector(t *testing.T) {
	cases := map[string]http.HandlerFunc{
		"server error": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		},
		"bad request": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
		},
		"malformed json": func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"embedding":`))
		},
		"no values": func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"embedding":{}}`))
		},
	}
	for name, handler := range cases {
		t.Run(name, func(t *testing.T) {
			e, logs := newTestEmbedder(t, handler)
			got := e.Embed(context.Background(), "q")
			assert.NotNil(t, got)
			assert.Len(t, got, 0)
			require.Equal(t, 1, logs.Len())
			assert.True(t, strings.HasPrefix(logs.All()[0].Message, "embedding"))
		})
	}
}

func TestGeminiEmbedder_cancelled(t *testing.T) {
	e, _ := newTestEmbedder(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Len(t, e.Embed(ctx, "q"), 0)
}

func BenchmarkMockEmbedder_Embed(b *testing.B) {
	e := NewMockEmbedder(768)
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = e.Embed(ctx, "benchmark question about quarterly revenue")
	}
}
