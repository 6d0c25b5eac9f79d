package ports

import (
	"context"

	"github.com/kirillkom/catalog-assistant/internal/core/domain"
)

// TokenSink receives generated text fragments in production order. A non-nil
// error stops the producer.
type TokenSink func(token string) error

// TextGenerator is the shared text-generation service.
type TextGenerator interface {
	Generate(ctx context.Context, req domain.GenerationRequest) (string, error)
	// GenerateStream returns the full text after every fragment was delivered to sink.
	GenerateStream(ctx context.Context, req domain.GenerationRequest, sink TokenSink) (string, error)
}

type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// LexicalIndex answers term-based top-k searches over one collection.
type LexicalIndex interface {
	SearchLexical(ctx context.Context, collection, query string, topK int) ([]domain.Chunk, error)
}

// VectorIndex answers embedding-similarity top-k searches over one collection.
type VectorIndex interface {
	SearchVector(ctx context.Context, collection, query string, topK int) ([]domain.Chunk, error)
}

type TokenCounter interface {
	Count(text string) int
	Truncate(text string, maxTokens int) string
}

type IssueReporter interface {
	PublishIssueReport(ctx context.Context, report domain.IssueReport) error
}

type IssueStore interface {
	SaveIssueReport(ctx context.Context, report domain.IssueReport) error
}

type TurnLog interface {
	RecordTurn(ctx context.Context, turn domain.Turn) error
}
