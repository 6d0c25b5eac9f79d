package usecase

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/catalog-assistant/internal/core/domain"
	"github.com/kirillkom/catalog-assistant/internal/core/ports"
)

type HybridRetriever struct {
	lexical  ports.LexicalIndex
	vector   ports.VectorIndex
	lexicalK int
	vectorK  int
	observer PipelineObserver
}

func NewHybridRetriever(lexical ports.LexicalIndex, vector ports.VectorIndex, lexicalK, vectorK int, observer PipelineObserver) *HybridRetriever {
	if lexicalK <= 0 {
		lexicalK = 10
	}
	if vectorK <= 0 {
		vectorK = 10
	}
	return &HybridRetriever{
		lexical:  lexical,
		vector:   vector,
		lexicalK: lexicalK,
		vectorK:  vectorK,
		observer: observerOrNoop(observer),
	}
}

// Retrieve queries both indexes concurrently. A failing side contributes no
// candidates; only cancellation of ctx is returned as an error.
func (h *HybridRetriever) Retrieve(ctx context.Context, query, collection string) (domain.CandidateSet, error) {
	var (
		g             errgroup.Group
		lexicalChunks []domain.Chunk
		vectorChunks  []domain.Chunk
	)

	g.Go(func() error {
		chunks, err := h.lexical.SearchLexical(ctx, collection, query, h.lexicalK)
		if err != nil {
			logAdapterFailure(ctx, domain.OriginLexical, collection, err)
			return nil
		}
		lexicalChunks = tagOrigin(chunks, domain.OriginLexical, collection)
		return nil
	})
	g.Go(func() error {
		chunks, err := h.vector.SearchVector(ctx, collection, query, h.vectorK)
		if err != nil {
			logAdapterFailure(ctx, domain.OriginVector, collection, err)
			return nil
		}
		vectorChunks = tagOrigin(chunks, domain.OriginVector, collection)
		return nil
	})
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	merged := mergeCandidates(lexicalChunks, vectorChunks)
	h.observer.RecordRetrieval(collection, len(lexicalChunks), len(vectorChunks), len(merged))
	return merged, nil
}

// mergeCandidates keeps lexical results first and appends unseen vector
// results. A shared ID keeps its lexical entry and score.
func mergeCandidates(lexical, vector []domain.Chunk) domain.CandidateSet {
	seen := make(map[string]struct{}, len(lexical)+len(vector))
	out := make(domain.CandidateSet, 0, len(lexical)+len(vector))
	for _, side := range [][]domain.Chunk{lexical, vector} {
		for _, c := range side {
			if _, ok := seen[c.ID]; ok {
				continue
			}
			seen[c.ID] = struct{}{}
			out = append(out, c)
		}
	}
	return out
}

func tagOrigin(chunks []domain.Chunk, origin domain.RetrievalOrigin, collection string) []domain.Chunk {
	out := make([]domain.Chunk, 0, len(chunks))
	for _, c := range chunks {
		c.Origin = origin
		if c.Collection == "" {
			c.Collection = collection
		}
		out = append(out, c)
	}
	return out
}

func logAdapterFailure(ctx context.Context, origin domain.RetrievalOrigin, collection string, err error) {
	if ctx.Err() != nil {
		return
	}
	slog.Warn("retrieval_adapter_failed",
		"origin", string(origin),
		"collection", collection,
		"error", domain.WrapError(domain.ErrRetrievalAdapter, "retrieve", err),
	)
}
