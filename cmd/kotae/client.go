package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/hyperjump/kotae/internal/cli"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/storage"
)

// apiClient talks to a running kotae server.
type apiClient struct {
	baseURL string
	token   string
	http    *http.Client
}

func newAPIClient(baseURL, token string) *apiClient {
	return &apiClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{},
	}
}

// statusResponse is the shape of GET /status.
type statusResponse struct {
	ActiveSessions int                    `json:"active_sessions"`
	Config         map[string]interface{} `json:"config"`
	Ledger         *storage.Stats         `json:"ledger,omitempty"`
}

// Chat posts question to /chat.
func (c *apiClient) Chat(ctx context.Context, question string) (*models.ChatAnswer, error) {
	var answer models.ChatAnswer
	if err := c.do(ctx, http.MethodPost, "/chat", models.ChatRequest{Question: question}, &answer); err != nil {
		return nil, err
	}
	return &answer, nil
}

// Status fetches /status.
func (c *apiClient) Status(ctx context.Context) (*statusResponse, error) {
	var status statusResponse
	if err := c.do(ctx, http.MethodGet, "/status", nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

func (c *apiClient) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		var e struct {
			Error string `json:"error"`
		}
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if json.Unmarshal(b, &e) == nil && e.Error != "" {
			return fmt.Errorf("server returned %d: %s", resp.StatusCode, e.Error)
		}
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func writeStatus(w io.Writer, status *statusResponse, format cli.OutputFormat) error {
	if format == cli.OutputJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(status)
	}
	fmt.Fprintf(w, "Active sessions: %d\n", status.ActiveSessions)
	if status.Ledger != nil {
		fmt.Fprintf(w, "Reports:         %d\n", status.Ledger.Sources)
		fmt.Fprintf(w, "Chunks:          %d (%d upserted)\n", status.Ledger.Chunks, status.Ledger.Upserted)
	}
	if len(status.Config) > 0 {
		keys := make([]string, 0, len(status.Config))
		for k := range status.Config {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fmt.Fprintln(w, "Config:")
		for _, k := range keys {
			fmt.Fprintf(w, "  %s: %v\n", k, status.Config[k])
		}
	}
	return nil
}
