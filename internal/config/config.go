// Package config provides configuration loading and structs for the kotae server.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Auth      AuthConfig      `yaml:"auth"`
	Gemini    GeminiConfig    `yaml:"gemini"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Vector    VectorConfig    `yaml:"vector"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Search    SearchConfig    `yaml:"search"`
	Session   SessionConfig   `yaml:"session"`
	Storage   StorageConfig   `yaml:"storage"`
	Watch     WatchConfig     `yaml:"watch"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	BasePath       string        `yaml:"base_path"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// AuthConfig configures the static-token authenticator that stands in for the
// external identity provider.
type AuthConfig struct {
	Enabled      bool          `yaml:"enabled"`
	ElevatedRole string        `yaml:"elevated_role"`
	Tokens       []TokenConfig `yaml:"tokens"`
}

// TokenConfig maps a bearer token to a principal.
type TokenConfig struct {
	Token   string `yaml:"token"`
	Subject string `yaml:"subject"`
	Role    string `yaml:"role"`
}

// GeminiConfig holds the embedding/generation provider settings.
type GeminiConfig struct {
	APIKey         string        `yaml:"api_key"`
	BaseURL        string        `yaml:"base_url"`
	EmbeddingModel string        `yaml:"embedding_model"`
	ChatModel      string        `yaml:"chat_model"`
	Timeout        time.Duration `yaml:"timeout"`
	RateLimit      float64       `yaml:"rate_limit"`
	Burst          int           `yaml:"burst"`
	MaxRetries     int           `yaml:"max_retries"`
}

// EmbeddingConfig holds embedder settings.
type EmbeddingConfig struct {
	// Provider is "gemini" (default) or "mock" for offline development.
	Provider  string `yaml:"provider"`
	CacheSize int    `yaml:"cache_size"`
}

// VectorConfig selects and configures the vector index backend.
// MemoryPath, when set, persists the memory index across restarts.
type VectorConfig struct {
	Type       string         `yaml:"type"`
	Dimension  int            `yaml:"dimension"`
	BatchSize  int            `yaml:"batch_size"`
	Timeout    time.Duration  `yaml:"timeout"`
	MemoryPath string         `yaml:"memory_path"`
	Pinecone   PineconeConfig `yaml:"pinecone"`
	Qdrant     QdrantConfig   `yaml:"qdrant"`
}

// PineconeConfig holds Pinecone REST settings.
type PineconeConfig struct {
	Host       string `yaml:"host"`
	APIKey     string `yaml:"api_key"`
	Namespace  string `yaml:"namespace"`
	MaxRetries int    `yaml:"max_retries"`
}

// QdrantConfig holds Qdrant gRPC settings.
type QdrantConfig struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	APIKey     string `yaml:"api_key"`
	UseTLS     bool   `yaml:"use_tls"`
	Collection string `yaml:"collection"`
}

// IngestConfig holds chunking and ingest settings.
type IngestConfig struct {
	ChunkSize        int   `yaml:"chunk_size"`
	ChunkOverlap     int   `yaml:"chunk_overlap"`
	MetadataTextCap  int   `yaml:"metadata_text_cap"`
	EmbedConcurrency int   `yaml:"embed_concurrency"`
	MaxUploadBytes   int64 `yaml:"max_upload_bytes"`
}

// SearchConfig holds retrieval and context assembly settings.
type SearchConfig struct {
	TopK          int     `yaml:"top_k"`
	ContextBudget int     `yaml:"context_budget"`
	MinScore      float64 `yaml:"min_score"`
}

// SessionConfig holds conversation session settings.
type SessionConfig struct {
	HistorySize   int           `yaml:"history_size"`
	QueueSize     int           `yaml:"queue_size"`
	IdleTTL       time.Duration `yaml:"idle_ttl"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// StorageConfig holds the ingest ledger location. An empty path disables the ledger.
type StorageConfig struct {
	LedgerPath string `yaml:"ledger_path"`
}

// WatchConfig holds inbox directories whose reports are ingested automatically.
type WatchConfig struct {
	Directories []string `yaml:"directories"`
	Extensions  []string `yaml:"extensions"`
	Recursive   *bool    `yaml:"recursive"`
}

// RecursiveOrDefault returns whether to watch recursively; defaults to true when unset.
func (w *WatchConfig) RecursiveOrDefault() bool {
	if w.Recursive != nil {
		return *w.Recursive
	}
	return true
}

// Load reads and parses the config file at path, applies defaults and environment
// overrides, expands paths, and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)
	ApplyEnv(&cfg, os.LookupEnv)

	configDir := filepath.Dir(path)
	if cfg.Storage.LedgerPath != "" {
		cfg.Storage.LedgerPath = expandPath(cfg.Storage.LedgerPath, configDir)
	}
	if cfg.Vector.MemoryPath != "" {
		cfg.Vector.MemoryPath = expandPath(cfg.Vector.MemoryPath, configDir)
	}
	for i := range cfg.Watch.Directories {
		cfg.Watch.Directories[i] = expandPath(cfg.Watch.Directories[i], configDir)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// ApplyEnv overrides secrets and endpoints from the environment so they need not
// live in the config file.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) {
	if v, ok := lookup("GEMINI_API_KEY"); ok && v != "" {
		cfg.Gemini.APIKey = v
	}
	if v, ok := lookup("PINECONE_API_KEY"); ok && v != "" {
		cfg.Vector.Pinecone.APIKey = v
	}
	if v, ok := lookup("PINECONE_HOST"); ok && v != "" {
		cfg.Vector.Pinecone.Host = v
	}
	if v, ok := lookup("QDRANT_API_KEY"); ok && v != "" {
		cfg.Vector.Qdrant.APIKey = v
	}
}

// Validate reports every configuration problem at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Ingest.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("ingest.chunk_size must be positive, got %d", c.Ingest.ChunkSize))
	}
	if c.Ingest.ChunkOverlap < 0 {
		errs = append(errs, fmt.Errorf("ingest.chunk_overlap must not be negative, got %d", c.Ingest.ChunkOverlap))
	}
	if c.Vector.Dimension <= 0 {
		errs = append(errs, fmt.Errorf("vector.dimension must be positive, got %d", c.Vector.Dimension))
	}
	if c.Search.TopK <= 0 {
		errs = append(errs, fmt.Errorf("search.top_k must be positive, got %d", c.Search.TopK))
	}
	if c.Search.ContextBudget <= 0 {
		errs = append(errs, fmt.Errorf("search.context_budget must be positive, got %d", c.Search.ContextBudget))
	}
	if c.Session.HistorySize <= 0 {
		errs = append(errs, fmt.Errorf("session.history_size must be positive, got %d", c.Session.HistorySize))
	}
	switch c.Vector.Type {
	case "pinecone":
		if c.Vector.Pinecone.Host == "" {
			errs = append(errs, errors.New("vector.pinecone.host is required (or PINECONE_HOST)"))
		}
	case "qdrant":
		if c.Vector.Qdrant.Host == "" {
			errs = append(errs, errors.New("vector.qdrant.host is required"))
		}
	case "memory":
	default:
		errs = append(errs, fmt.Errorf("unknown vector.type %q (supported: pinecone, qdrant, memory)", c.Vector.Type))
	}
	switch c.Embedding.Provider {
	case "gemini", "mock":
	default:
		errs = append(errs, fmt.Errorf("unknown embedding.provider %q (supported: gemini, mock)", c.Embedding.Provider))
	}
	if c.Auth.Enabled && len(c.Auth.Tokens) == 0 {
		errs = append(errs, errors.New("auth.enabled requires at least one auth.tokens entry"))
	}
	return errors.Join(errs...)
}

// Save writes cfg as YAML to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
