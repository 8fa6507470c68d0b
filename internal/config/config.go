package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every tunable for the service. It is loaded once at startup
// and passed by value to component constructors.
type Config struct {
	Port string

	// LLM service (OpenAI-compatible chat completions)
	LLMModel   string
	LLMBaseURL string
	LLMAPIKey  string
	LLMRetries int
	LLMTimeout time.Duration

	// Embedding service (Ollama)
	EmbeddingModel   string
	EmbeddingDim     int
	EmbeddingURL     string
	EmbedBatchSize   int
	EmbeddingTimeout time.Duration

	// Storage
	DatabasePath string
	UploadDir    string

	// Tree generation
	TocCheckPages     int
	TocMatchWindow    int
	MaxPagesPerNode   int
	MaxTokensPerNode  int
	AccuracyThreshold float64

	// Chunking
	ChunkMaxTokens     int
	ChunkOverlapTokens int
	ChunkMinTokens     int

	// Retrieval
	ContextBudgetTokens  int
	ValueSearchTopK      int
	RetrievalConcurrency int

	// Upload limits
	MaxUploadBytes int64

	// PDF
	PDFFallbackPdftotext bool
}

// Load reads configuration from the environment. A .env file in the working
// directory is honoured when present.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		Port: envOr("PORT", "8000"),

		LLMModel:   envOr("LLM_MODEL", "openai/gpt-4o-2024-11-20"),
		LLMBaseURL: envOr("LLM_BASE_URL", "https://openrouter.ai/api/v1"),
		LLMAPIKey:  os.Getenv("LLM_API_KEY"),
		LLMRetries: envInt("LLM_RETRIES", 10),
		LLMTimeout: envDuration("LLM_TIMEOUT", 120*time.Second),

		EmbeddingModel:   envOr("EMBEDDING_MODEL", "nomic-embed-text"),
		EmbeddingDim:     envInt("EMBEDDING_DIM", 768),
		EmbeddingURL:     envOr("EMBEDDING_URL", "http://localhost:11434"),
		EmbedBatchSize:   envInt("EMBED_BATCH_SIZE", 32),
		EmbeddingTimeout: envDuration("EMBEDDING_TIMEOUT", 120*time.Second),

		DatabasePath: envOr("DATABASE_PATH", "data/pagedex.db"),
		UploadDir:    envOr("UPLOAD_DIR", "data/uploads"),

		TocCheckPages:     envInt("TOC_CHECK_PAGES", 20),
		TocMatchWindow:    envInt("TOC_MATCH_WINDOW", 2),
		MaxPagesPerNode:   envInt("MAX_PAGES_PER_NODE", 10),
		MaxTokensPerNode:  envInt("MAX_TOKENS_PER_NODE", 20000),
		AccuracyThreshold: envFloat("ACCURACY_THRESHOLD", 0.6),

		ChunkMaxTokens:     envInt("CHUNK_MAX_TOKENS", 512),
		ChunkOverlapTokens: envInt("CHUNK_OVERLAP_TOKENS", 64),
		ChunkMinTokens:     envInt("CHUNK_MIN_TOKENS", 32),

		ContextBudgetTokens:  envInt("CONTEXT_BUDGET_TOKENS", 50000),
		ValueSearchTopK:      envInt("VALUE_SEARCH_TOP_K", 20),
		RetrievalConcurrency: envInt("RETRIEVAL_CONCURRENCY", 8),

		MaxUploadBytes: envInt64("MAX_UPLOAD_BYTES", 104857600), // 100MB

		PDFFallbackPdftotext: envBool("PDF_FALLBACK_PDFTOTEXT", true),
	}

	if cfg.LLMRetries <= 0 {
		cfg.LLMRetries = 10
	}
	if cfg.EmbedBatchSize <= 0 {
		cfg.EmbedBatchSize = 32
	}
	if cfg.TocCheckPages <= 0 {
		cfg.TocCheckPages = 20
	}
	if cfg.TocMatchWindow < 0 {
		cfg.TocMatchWindow = 2
	}
	if cfg.MaxPagesPerNode <= 0 {
		cfg.MaxPagesPerNode = 10
	}
	if cfg.MaxTokensPerNode <= 0 {
		cfg.MaxTokensPerNode = 20000
	}
	if cfg.AccuracyThreshold <= 0 || cfg.AccuracyThreshold > 1 {
		cfg.AccuracyThreshold = 0.6
	}
	if cfg.ChunkMaxTokens <= 0 {
		cfg.ChunkMaxTokens = 512
	}
	if cfg.ChunkOverlapTokens < 0 {
		cfg.ChunkOverlapTokens = 64
	}
	if cfg.ChunkMinTokens <= 0 {
		cfg.ChunkMinTokens = 32
	}
	if cfg.ContextBudgetTokens <= 0 {
		cfg.ContextBudgetTokens = 50000
	}
	if cfg.ValueSearchTopK <= 0 {
		cfg.ValueSearchTopK = 20
	}
	if cfg.RetrievalConcurrency <= 0 {
		cfg.RetrievalConcurrency = 8
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 104857600
	}

	return cfg
}

// Validate checks required settings before the server starts.
func (c Config) Validate() error {
	if c.LLMAPIKey == "" {
		return fmt.Errorf("LLM_API_KEY is required")
	}
	if c.LLMBaseURL == "" {
		return fmt.Errorf("LLM_BASE_URL is required")
	}
	if c.EmbeddingURL == "" {
		return fmt.Errorf("EMBEDDING_URL is required")
	}
	if c.EmbeddingDim <= 0 {
		return fmt.Errorf("EMBEDDING_DIM must be positive")
	}
	if c.DatabasePath == "" {
		return fmt.Errorf("DATABASE_PATH is required")
	}
	if c.ChunkOverlapTokens >= c.ChunkMaxTokens {
		return fmt.Errorf("CHUNK_OVERLAP_TOKENS (%d) must be smaller than CHUNK_MAX_TOKENS (%d)",
			c.ChunkOverlapTokens, c.ChunkMaxTokens)
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
