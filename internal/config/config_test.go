package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadIncludesRetrievalDefaults(t *testing.T) {
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
	for _, key := range []string{"RAG_LEXICAL_TOP_K", "RAG_VECTOR_TOP_K", "RAG_RERANK_BATCH_SIZE", "RAG_RERANK_TOP_N", "MEMORY_TOKEN_LIMIT", "QDRANT_DENSE_VECTOR"} {
		t.Setenv(key, "")
	}

	cfg := Load()
	if cfg.RAGLexicalTopK != 10 || cfg.RAGVectorTopK != 10 {
		t.Fatalf("expected top k 10/10, got %d/%d", cfg.RAGLexicalTopK, cfg.RAGVectorTopK)
	}
	if cfg.RAGRerankBatchSize != 20 || cfg.RAGRerankTopN != 10 {
		t.Fatalf("expected rerank 20/10, got %d/%d", cfg.RAGRerankBatchSize, cfg.RAGRerankTopN)
	}
	if cfg.MemoryTokenLimit != 1024 {
		t.Fatalf("expected memory token limit 1024, got %d", cfg.MemoryTokenLimit)
	}
	if cfg.QdrantDenseVector != "" || cfg.QdrantSparseVector != "text-sparse" {
		t.Fatalf("unexpected vector names %q/%q", cfg.QdrantDenseVector, cfg.QdrantSparseVector)
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
	t.Setenv("RAG_RERANK_TOP_N", "5")
	t.Setenv("RAG_LEXICAL_TOP_K", "not-a-number")
	t.Setenv("API_RATE_LIMIT_RPS", "2.5")
	t.Setenv("RESILIENCE_RETRY_MAX_BACKOFF", "3s")
	t.Setenv("RESILIENCE_BREAKER_ENABLED", "false")

	cfg := Load()
	if cfg.RAGRerankTopN != 5 {
		t.Fatalf("expected rerank top n 5, got %d", cfg.RAGRerankTopN)
	}
	if cfg.RAGLexicalTopK != 10 {
		t.Fatalf("expected invalid int to fall back, got %d", cfg.RAGLexicalTopK)
	}
	if cfg.APIRateLimitRPS != 2.5 {
		t.Fatalf("expected rps 2.5, got %v", cfg.APIRateLimitRPS)
	}
	if cfg.ResilienceRetryMaxBackoff != 3*time.Second || cfg.ResilienceBreakerEnabled {
		t.Fatalf("unexpected resilience config: %+v", cfg)
	}
}

func TestLoadReadsDotEnvWithoutOverridingEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	if err := os.WriteFile(path, []byte("MAX_SESSIONS=7\nOLLAMA_GEN_MODEL=from-file\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv("ENV_FILE", path)
	t.Setenv("OLLAMA_GEN_MODEL", "from-env")
	t.Setenv("MAX_SESSIONS", "")
	os.Unsetenv("MAX_SESSIONS")

	cfg := Load()
	if cfg.MaxSessions != 7 {
		t.Fatalf("expected MAX_SESSIONS from file, got %d", cfg.MaxSessions)
	}
	if cfg.OllamaGenModel != "from-env" {
		t.Fatalf("expected environment to win, got %q", cfg.OllamaGenModel)
	}
}

func TestParseCatalog(t *testing.T) {
	raw := []byte(`
collections:
  - name: nuovo_dwh
    title: nuovo DWH
    description: Asset del nuovo data warehouse.
  - name: vecchio_dwh
`)
	catalog, err := ParseCatalog(raw)
	if err != nil {
		t.Fatalf("ParseCatalog() error = %v", err)
	}
	if len(catalog.Collections) != 2 {
		t.Fatalf("expected 2 collections, got %d", len(catalog.Collections))
	}
	if catalog.Collections[1].Title != "vecchio_dwh" {
		t.Fatalf("expected title to default to name, got %q", catalog.Collections[1].Title)
	}
}

func TestParseCatalogRejectsInvalid(t *testing.T) {
	for _, raw := range []string{
		"collections:\n  - title: senza nome\n",
		"collections:\n  - name: a\n  - name: a\n",
		"collections: [",
	} {
		if _, err := ParseCatalog([]byte(raw)); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
}

func TestLoadCatalogFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	if err := os.WriteFile(path, []byte("collections:\n  - name: nuovo_dwh\n"), 0o600); err != nil {
		t.Fatalf("write catalog: %v", err)
	}
	catalog, err := LoadCatalog(path)
	if err != nil || len(catalog.Collections) != 1 {
		t.Fatalf("LoadCatalog() = %+v, %v", catalog, err)
	}
	if _, err := LoadCatalog(filepath.Join(t.TempDir(), "none.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
