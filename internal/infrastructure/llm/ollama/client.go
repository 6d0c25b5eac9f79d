package ollama

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/kirillkom/catalog-assistant/internal/core/domain"
	"github.com/kirillkom/catalog-assistant/internal/core/ports"
	"github.com/kirillkom/catalog-assistant/internal/infrastructure/resilience"
)

const defaultEmbedCacheSize = 512

type Options struct {
	Executor       *resilience.Executor
	Timeout        time.Duration
	EmbedCacheSize int
}

type Client struct {
	baseURL    string
	genModel   string
	embedModel string
	httpClient *http.Client
	executor   *resilience.Executor
}

func New(baseURL, genModel, embedModel string, opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		genModel:   genModel,
		embedModel: embedModel,
		httpClient: &http.Client{Timeout: timeout},
		executor:   opts.Executor,
	}
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	System string `json:"system,omitempty"`
	Stream bool   `json:"stream"`
	Format string `json:"format,omitempty"`
}

type generateChunk struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error"`
}

func (c *Client) generateBody(req domain.GenerationRequest, stream bool) generateRequest {
	body := generateRequest{
		Model:  c.genModel,
		Prompt: req.Prompt,
		System: req.System,
		Stream: stream,
	}
	if req.JSON {
		body.Format = "json"
	}
	return body
}

// Generator serves every prompt of the chat pipeline through /api/generate.
type Generator struct {
	client *Client
}

func NewGenerator(client *Client) *Generator {
	return &Generator{client: client}
}

func (g *Generator) Generate(ctx context.Context, req domain.GenerationRequest) (string, error) {
	text, err := resilience.Do(ctx, g.client.executor, "ollama.generate", func(ctx context.Context) (string, error) {
		var response generateChunk
		if err := g.client.postJSON(ctx, "/api/generate", g.client.generateBody(req, false), &response, "generate"); err != nil {
			return "", err
		}
		if response.Error != "" {
			return "", fmt.Errorf("ollama generate: %s", response.Error)
		}
		return response.Response, nil
	}, classifyOllamaError)
	if err != nil {
		return "", wrapTemporaryIfNeeded("ollama.generate", err)
	}
	return strings.TrimSpace(text), nil
}

// GenerateStream delivers response fragments to sink as they are decoded.
// Retries stop once the first fragment has been delivered.
func (g *Generator) GenerateStream(ctx context.Context, req domain.GenerationRequest, sink ports.TokenSink) (string, error) {
	text, err := resilience.Do(ctx, g.client.executor, "ollama.generate_stream", func(ctx context.Context) (string, error) {
		return g.client.stream(ctx, g.client.generateBody(req, true), sink)
	}, classifyOllamaError)
	if err != nil {
		return text, wrapTemporaryIfNeeded("ollama.generate_stream", err)
	}
	return text, nil
}

// Embedder produces query embeddings and caches them per model and text.
type Embedder struct {
	client *Client
	cache  *lru.Cache[string, []float32]
}

func NewEmbedder(client *Client, cacheSize int) (*Embedder, error) {
	if cacheSize <= 0 {
		cacheSize = defaultEmbedCacheSize
	}
	cache, err := lru.New[string, []float32](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create embed cache: %w", err)
	}
	return &Embedder{client: client, cache: cache}, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	key := e.client.embedModel + "\x00" + text
	if v, ok := e.cache.Get(key); ok {
		return v, nil
	}

	request := map[string]any{
		"model": e.client.embedModel,
		"input": []string{text},
	}
	vectors, err := resilience.Do(ctx, e.client.executor, "ollama.embed", func(ctx context.Context) ([][]float32, error) {
		var response struct {
			Embeddings [][]float32 `json:"embeddings"`
		}
		if err := e.client.postJSON(ctx, "/api/embed", request, &response, "embed"); err != nil {
			return nil, err
		}
		return response.Embeddings, nil
	}, classifyOllamaError)
	if err != nil {
		return nil, wrapTemporaryIfNeeded("ollama.embed", err)
	}
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return nil, fmt.Errorf("empty embedding result")
	}
	e.cache.Add(key, vectors[0])
	return vectors[0], nil
}
