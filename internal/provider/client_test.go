package provider

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoBody struct {
	Text string `json:"text"`
}

func fastClient(retries int) *Client {
	return NewClient(Options{MaxRetries: retries, BaseBackoff: time.Millisecond})
}

func TestPostJSON_success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "secret", r.Header.Get("Api-Key"))
		w.Write([]byte(`{"text":"pong"}`))
	}))
	defer srv.Close()

	var out echoBody
	err := fastClient(0).PostJSON(context.Background(), srv.URL, map[string]string{"Api-Key": "secret"}, echoBody{Text: "ping"}, &out)
	require.NoError(t, err)
	assert.Equal(t, "pong", out.Text)
}

func TestPostJSON_retriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"text":"ok"}`))
	}))
	defer srv.Close()

	var out echoBody
	require.NoError(t, fastClient(2).PostJSON(context.Background(), srv.URL, nil, echoBody{}, &out))
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, "ok", out.Text)
}

func TestPostJSON_givesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	err := fastClient(1).PostJSON(context.Background(), srv.URL, nil, echoBody{}, nil)
	require.Error(t, err)
	assert.Equal(t, int32(2), calls.Load())
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusTooManyRequests, statusErr.Status)
}

func TestPostJSON_clientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"bad vector"}`))
	}))
	defer srv.Close()

	err := fastClient(3).PostJSON(context.Background(), srv.URL, nil, echoBody{}, nil)
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusBadRequest, statusErr.Status)
	assert.Contains(t, statusErr.Body, "bad vector")
	assert.False(t, IsRetryable(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestPostJSON_malformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{not json`))
	}))
	defer srv.Close()

	var out echoBody
	err := fastClient(0).PostJSON(context.Background(), srv.URL, nil, echoBody{}, &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse response")
}

func TestPostJSON_cancelledContext(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	err := fastClient(3).PostJSON(ctx, srv.URL, nil, echoBody{}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestGeminiURL(t *testing.T) {
	got := GeminiURL("https://generativelanguage.googleapis.com/", "models/text-embedding-004", "embedContent", "k e y")
	assert.Equal(t, "https://generativelanguage.googleapis.com/v1beta/models/text-embedding-004:embedContent?key=k+e+y", got)
}
