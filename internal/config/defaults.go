package config

import "time"

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.AllowedOrigins == nil {
		cfg.Server.AllowedOrigins = []string{"http://localhost:5173", "http://localhost:5174", "http://localhost:5175"}
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = 120 * time.Second
	}
	if cfg.Auth.ElevatedRole == "" {
		cfg.Auth.ElevatedRole = "SUPER_ADMIN"
	}
	if cfg.Gemini.BaseURL == "" {
		cfg.Gemini.BaseURL = "https://generativelanguage.googleapis.com"
	}
	if cfg.Gemini.EmbeddingModel == "" {
		cfg.Gemini.EmbeddingModel = "text-embedding-004"
	}
	if cfg.Gemini.ChatModel == "" {
		cfg.Gemini.ChatModel = "gemini-1.5-flash"
	}
	if cfg.Gemini.Timeout == 0 {
		cfg.Gemini.Timeout = 30 * time.Second
	}
	if cfg.Gemini.RateLimit == 0 {
		cfg.Gemini.RateLimit = 10
	}
	if cfg.Gemini.Burst == 0 {
		cfg.Gemini.Burst = 5
	}
	if cfg.Gemini.MaxRetries == 0 {
		cfg.Gemini.MaxRetries = 2
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "gemini"
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 1000
	}
	if cfg.Vector.Type == "" {
		cfg.Vector.Type = "pinecone"
	}
	if cfg.Vector.Dimension == 0 {
		cfg.Vector.Dimension = 768
	}
	if cfg.Vector.BatchSize == 0 {
		cfg.Vector.BatchSize = 50
	}
	if cfg.Vector.Timeout == 0 {
		cfg.Vector.Timeout = 15 * time.Second
	}
	if cfg.Vector.Pinecone.Namespace == "" {
		cfg.Vector.Pinecone.Namespace = "reports"
	}
	if cfg.Vector.Pinecone.MaxRetries == 0 {
		cfg.Vector.Pinecone.MaxRetries = 2
	}
	if cfg.Vector.Qdrant.Port == 0 {
		cfg.Vector.Qdrant.Port = 6334
	}
	if cfg.Vector.Qdrant.Collection == "" {
		cfg.Vector.Qdrant.Collection = "reports"
	}
	if cfg.Ingest.ChunkSize == 0 {
		cfg.Ingest.ChunkSize = 800
	}
	if cfg.Ingest.ChunkOverlap == 0 {
		cfg.Ingest.ChunkOverlap = 200
	}
	if cfg.Ingest.MetadataTextCap == 0 {
		cfg.Ingest.MetadataTextCap = 1200
	}
	if cfg.Ingest.EmbedConcurrency == 0 {
		cfg.Ingest.EmbedConcurrency = 4
	}
	if cfg.Ingest.MaxUploadBytes == 0 {
		cfg.Ingest.MaxUploadBytes = 32 << 20
	}
	if cfg.Search.TopK == 0 {
		cfg.Search.TopK = 8
	}
	if cfg.Search.ContextBudget == 0 {
		cfg.Search.ContextBudget = 3000
	}
	if cfg.Session.HistorySize == 0 {
		cfg.Session.HistorySize = 10
	}
	if cfg.Session.QueueSize == 0 {
		cfg.Session.QueueSize = 8
	}
	if cfg.Session.IdleTTL == 0 {
		cfg.Session.IdleTTL = 30 * time.Minute
	}
	if cfg.Session.SweepInterval == 0 {
		cfg.Session.SweepInterval = time.Minute
	}
	if cfg.Watch.Extensions == nil {
		cfg.Watch.Extensions = []string{".pdf", ".xlsx"}
	}
	// Recursive defaults to true when unset (nil).
	if len(cfg.Watch.Directories) > 0 && cfg.Watch.Recursive == nil {
		t := true
		cfg.Watch.Recursive = &t
	}
}
