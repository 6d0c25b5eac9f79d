package config

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	APIPort  string
	LogLevel string

	CatalogPath string

	PostgresDSN string

	NATSURL          string
	NATSIssueSubject string

	OllamaURL          string
	OllamaGenModel     string
	OllamaEmbedModel   string
	OllamaSystemPrompt string
	OllamaTimeout      time.Duration

	QdrantURL          string
	QdrantDenseVector  string
	QdrantSparseVector string
	QdrantTimeout      time.Duration

	RAGLexicalTopK       int
	RAGVectorTopK        int
	RAGRerankBatchSize   int
	RAGRerankTopN        int
	RAGRerankConcurrency int
	RAGMaxContextTokens  int

	MemoryTokenLimit  int
	MaxSessions       int
	TokenizerEncoding string
	EmbedCacheSize    int

	APIRateLimitRPS     float64
	APIRateLimitBurst   int
	APIMaxInFlight      int
	APIBackpressureWait time.Duration

	ResilienceRetryMaxAttempts    int
	ResilienceRetryInitialBackoff time.Duration
	ResilienceRetryMaxBackoff     time.Duration
	ResilienceBreakerEnabled      bool
	ResilienceBreakerFailureRatio float64
	ResilienceBreakerOpenTimeout  time.Duration

	WorkerMetricsPort string
}

// Load reads the process environment, after merging an optional .env file.
// Variables already set in the environment win over the file.
func Load() Config {
	loadDotEnv(mustEnv("ENV_FILE", ".env"))

	return Config{
		APIPort:  mustEnv("API_PORT", "8080"),
		LogLevel: mustEnv("LOG_LEVEL", "info"),

		CatalogPath: mustEnv("CATALOG_PATH", "./config/catalog.yaml"),

		PostgresDSN: os.Getenv("POSTGRES_DSN"),

		NATSURL:          os.Getenv("NATS_URL"),
		NATSIssueSubject: mustEnv("NATS_ISSUE_SUBJECT", "catalog.issues.reported"),

		OllamaURL:          mustEnv("OLLAMA_URL", "http://localhost:11434"),
		OllamaGenModel:     mustEnv("OLLAMA_GEN_MODEL", "llama3.1:8b"),
		OllamaEmbedModel:   mustEnv("OLLAMA_EMBED_MODEL", "nomic-embed-text"),
		OllamaSystemPrompt: os.Getenv("OLLAMA_SYSTEM_PROMPT"),
		OllamaTimeout:      mustEnvDuration("OLLAMA_TIMEOUT", 120*time.Second),

		QdrantURL:          mustEnv("QDRANT_URL", "http://localhost:6333"),
		QdrantDenseVector:  os.Getenv("QDRANT_DENSE_VECTOR"),
		QdrantSparseVector: mustEnv("QDRANT_SPARSE_VECTOR", "text-sparse"),
		QdrantTimeout:      mustEnvDuration("QDRANT_TIMEOUT", 30*time.Second),

		RAGLexicalTopK:       mustEnvInt("RAG_LEXICAL_TOP_K", 10),
		RAGVectorTopK:        mustEnvInt("RAG_VECTOR_TOP_K", 10),
		RAGRerankBatchSize:   mustEnvInt("RAG_RERANK_BATCH_SIZE", 20),
		RAGRerankTopN:        mustEnvInt("RAG_RERANK_TOP_N", 10),
		RAGRerankConcurrency: mustEnvInt("RAG_RERANK_CONCURRENCY", 4),
		RAGMaxContextTokens:  mustEnvInt("RAG_MAX_CONTEXT_TOKENS", 3000),

		MemoryTokenLimit:  mustEnvInt("MEMORY_TOKEN_LIMIT", 1024),
		MaxSessions:       mustEnvInt("MAX_SESSIONS", 1000),
		TokenizerEncoding: mustEnv("TOKENIZER_ENCODING", "cl100k_base"),
		EmbedCacheSize:    mustEnvInt("EMBED_CACHE_SIZE", 512),

		APIRateLimitRPS:     mustEnvFloat("API_RATE_LIMIT_RPS", 20),
		APIRateLimitBurst:   mustEnvInt("API_RATE_LIMIT_BURST", 40),
		APIMaxInFlight:      mustEnvInt("API_MAX_IN_FLIGHT", 64),
		APIBackpressureWait: mustEnvDuration("API_BACKPRESSURE_WAIT", 250*time.Millisecond),

		ResilienceRetryMaxAttempts:    mustEnvInt("RESILIENCE_RETRY_MAX_ATTEMPTS", 3),
		ResilienceRetryInitialBackoff: mustEnvDuration("RESILIENCE_RETRY_INITIAL_BACKOFF", 200*time.Millisecond),
		ResilienceRetryMaxBackoff:     mustEnvDuration("RESILIENCE_RETRY_MAX_BACKOFF", time.Second),
		ResilienceBreakerEnabled:      mustEnvBool("RESILIENCE_BREAKER_ENABLED", true),
		ResilienceBreakerFailureRatio: mustEnvFloat("RESILIENCE_BREAKER_FAILURE_RATIO", 0.5),
		ResilienceBreakerOpenTimeout:  mustEnvDuration("RESILIENCE_BREAKER_OPEN_TIMEOUT", 30*time.Second),

		WorkerMetricsPort: mustEnv("WORKER_METRICS_PORT", "9090"),
	}
}

func loadDotEnv(path string) {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("dotenv_load_failed", "path", path, "error", err)
	}
}

func mustEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func mustEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func mustEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func mustEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return parsed
}

func mustEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
