package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/kirillkom/catalog-assistant/internal/core/domain"
	"github.com/kirillkom/catalog-assistant/internal/core/ports"
	"github.com/kirillkom/catalog-assistant/internal/infrastructure/resilience"
)

const (
	DefaultSparseVectorName = "text-sparse"

	payloadTextKey     = "text"
	payloadDocumentKey = "document"
	payloadNodeIDKey   = "node_id"
)

type Options struct {
	Executor *resilience.Executor
	Timeout  time.Duration
	// DenseVector names the dense vector; empty means the collection's unnamed vector.
	DenseVector  string
	SparseVector string
}

// Client queries catalog collections through the Qdrant points/query API.
type Client struct {
	baseURL      string
	httpClient   *http.Client
	executor     *resilience.Executor
	denseVector  string
	sparseVector string

	ensureMu sync.Mutex
	checked  map[string]bool
}

func New(baseURL string, opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	sparse := strings.TrimSpace(opts.SparseVector)
	if sparse == "" {
		sparse = DefaultSparseVectorName
	}
	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		httpClient:   &http.Client{Timeout: timeout},
		executor:     opts.Executor,
		denseVector:  strings.TrimSpace(opts.DenseVector),
		sparseVector: sparse,
		checked:      make(map[string]bool),
	}
}

// LexicalIndex serves term-based search from the collection's sparse vector.
type LexicalIndex struct {
	client *Client
}

func NewLexicalIndex(client *Client) *LexicalIndex {
	return &LexicalIndex{client: client}
}

func (l *LexicalIndex) SearchLexical(ctx context.Context, collection, query string, topK int) ([]domain.Chunk, error) {
	sparse := encodeSparseQuery(query)
	if len(sparse.Indices) == 0 {
		return []domain.Chunk{}, nil
	}
	return l.client.query(ctx, collection, queryRequest{
		Query:       sparse,
		Using:       l.client.sparseVector,
		Limit:       topK,
		WithPayload: true,
	}, "qdrant.query_sparse")
}

// VectorIndex embeds the query and runs a dense similarity search.
type VectorIndex struct {
	client   *Client
	embedder ports.Embedder
}

func NewVectorIndex(client *Client, embedder ports.Embedder) *VectorIndex {
	return &VectorIndex{client: client, embedder: embedder}
}

func (v *VectorIndex) SearchVector(ctx context.Context, collection, query string, topK int) ([]domain.Chunk, error) {
	vector, err := v.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	return v.client.query(ctx, collection, queryRequest{
		Query:       vector,
		Using:       v.client.denseVector,
		Limit:       topK,
		WithPayload: true,
	}, "qdrant.query_dense")
}

type queryRequest struct {
	Query       any    `json:"query"`
	Using       string `json:"using,omitempty"`
	Limit       int    `json:"limit"`
	WithPayload bool   `json:"with_payload"`
}

type scoredPoint struct {
	ID      json.RawMessage `json:"id"`
	Score   float64         `json:"score"`
	Payload map[string]any  `json:"payload"`
}

func (c *Client) query(ctx context.Context, collection string, reqBody queryRequest, operation string) ([]domain.Chunk, error) {
	if strings.TrimSpace(collection) == "" {
		return nil, fmt.Errorf("qdrant query: collection is required")
	}
	if reqBody.Limit <= 0 {
		return []domain.Chunk{}, nil
	}

	points, err := resilience.Do(ctx, c.executor, operation, func(ctx context.Context) ([]scoredPoint, error) {
		var resp struct {
			Result struct {
				Points []scoredPoint `json:"points"`
			} `json:"result"`
		}
		path := fmt.Sprintf("/collections/%s/points/query", url.PathEscape(collection))
		if err := c.doJSON(ctx, http.MethodPost, path, reqBody, &resp, "query"); err != nil {
			return nil, err
		}
		return resp.Result.Points, nil
	}, resilience.ClassifyHTTP)
	if err != nil {
		return nil, wrapTemporaryIfNeeded(operation, err)
	}

	out := make([]domain.Chunk, 0, len(points))
	for _, p := range points {
		out = append(out, chunkFromPoint(collection, p))
	}
	return out, nil
}

// CheckCollection reports whether the collection exists. Positive answers are cached.
func (c *Client) CheckCollection(ctx context.Context, collection string) error {
	c.ensureMu.Lock()
	if c.checked[collection] {
		c.ensureMu.Unlock()
		return nil
	}
	c.ensureMu.Unlock()

	_, err := resilience.Do(ctx, c.executor, "qdrant.collection_info", func(ctx context.Context) (string, error) {
		var resp struct {
			Status string `json:"status"`
		}
		err := c.doJSON(ctx, http.MethodGet, "/collections/"+url.PathEscape(collection), nil, &resp, "collection info")
		return resp.Status, err
	}, resilience.ClassifyHTTP)
	if err != nil {
		return wrapTemporaryIfNeeded("qdrant.collection_info", err)
	}

	c.ensureMu.Lock()
	defer c.ensureMu.Unlock()
	c.checked[collection] = true
	return nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, payload any, out any, operation string) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal %s body: %w", operation, err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create %s request: %w", operation, err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant %s request: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return resilience.ReadStatusError("qdrant", operation, resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", operation, err)
	}
	return nil
}

func chunkFromPoint(collection string, p scoredPoint) domain.Chunk {
	chunk := domain.Chunk{
		ID:         pointID(p),
		Score:      p.Score,
		Collection: collection,
		Metadata:   make(map[string]string, len(p.Payload)),
	}

	chunk.Text = getStringPayload(p.Payload, payloadTextKey)
	if chunk.Text == "" {
		chunk.Text = getStringPayload(p.Payload, payloadDocumentKey)
	}
	for k, v := range p.Payload {
		switch k {
		case payloadTextKey, payloadDocumentKey:
		case payloadNodeIDKey, "_node_content", "_node_type", "doc_id", "document_id", "ref_doc_id":
		default:
			if s, ok := scalarPayload(v); ok {
				chunk.Metadata[k] = s
			}
		}
	}
	return chunk
}

// pointID prefers the ingestion node id so both indexes agree on identity.
func pointID(p scoredPoint) string {
	if id := getStringPayload(p.Payload, payloadNodeIDKey); id != "" {
		return id
	}
	var s string
	if err := json.Unmarshal(p.ID, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(p.ID))
}

func scalarPayload(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case float64, bool, json.Number:
		return fmt.Sprintf("%v", t), true
	default:
		return "", false
	}
}

func getStringPayload(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok || v == nil {
		return ""
	}
	s, ok := v.(string)
	if ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
