package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/catalog-assistant/internal/core/domain"
	"github.com/kirillkom/catalog-assistant/internal/core/ports"
)

const (
	DefaultRerankBatchSize = 20
	DefaultRerankTopN      = 10
)

// LLMReranker orders candidates with listwise choice-select calls, one per batch.
type LLMReranker struct {
	generator   ports.TextGenerator
	system      string
	batchSize   int
	topN        int
	concurrency int
	observer    PipelineObserver
}

type RerankOptions struct {
	BatchSize   int
	TopN        int
	Concurrency int
}

func NewLLMReranker(generator ports.TextGenerator, system string, opts RerankOptions, observer PipelineObserver) *LLMReranker {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultRerankBatchSize
	}
	if opts.TopN <= 0 {
		opts.TopN = DefaultRerankTopN
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	return &LLMReranker{
		generator:   generator,
		system:      system,
		batchSize:   opts.BatchSize,
		topN:        opts.TopN,
		concurrency: opts.Concurrency,
		observer:    observerOrNoop(observer),
	}
}

type choiceSelection struct {
	index     int
	relevance float64
}

// Rerank returns at most topN chunks. Batches whose output cannot be parsed
// contribute nothing. Only cancellation of ctx is returned as an error.
func (r *LLMReranker) Rerank(ctx context.Context, query string, candidates domain.CandidateSet) (domain.RerankResult, error) {
	if len(candidates) == 0 {
		return domain.RerankResult{}, nil
	}

	batches := splitBatches(candidates, r.batchSize)
	selected := make([][]domain.RankedChunk, len(batches))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, batch := range batches {
		g.Go(func() error {
			ranked, err := r.rankBatch(gctx, query, batch)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				slog.Warn("rerank_batch_dropped", "batch", i, "size", len(batch), "error", err)
				r.observer.RecordRerankBatch("dropped")
				return nil
			}
			r.observer.RecordRerankBatch("ok")
			selected[i] = ranked
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return domain.RerankResult{}, err
	}

	var all []domain.RankedChunk
	for _, batch := range selected {
		all = append(all, batch...)
	}
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].Relevance > all[j].Relevance
	})
	if len(all) > r.topN {
		all = all[:r.topN]
	}
	for i := range all {
		all[i].Confidence = float64(len(all)-i) / float64(len(all))
	}
	return domain.RerankResult{Chunks: all}, nil
}

func (r *LLMReranker) rankBatch(ctx context.Context, query string, batch []domain.Chunk) ([]domain.RankedChunk, error) {
	out, err := r.generator.Generate(ctx, domain.GenerationRequest{
		Prompt: buildChoiceSelectPrompt(query, batch),
		System: r.system,
	})
	if err != nil {
		return nil, fmt.Errorf("rerank generate: %w", err)
	}

	selections, err := parseChoiceSelect(out, len(batch))
	if err != nil {
		return nil, err
	}
	ranked := make([]domain.RankedChunk, 0, len(selections))
	for _, s := range selections {
		ranked = append(ranked, domain.RankedChunk{
			Chunk:     batch[s.index-1],
			Relevance: s.relevance,
		})
	}
	return ranked, nil
}

var (
	integerPattern = regexp.MustCompile(`\d+`)
	numberPattern  = regexp.MustCompile(`\d+(?:[.,]\d+)?`)
)

// parseChoiceSelect reads "Doc: n, Relevance: s" lines without looking at the
// labels, so "Documento: n, Rilevanza: s" parses the same way. The document
// number is the first integer after the first colon; the relevance is the
// first number in the next comma-separated field, and a missing one counts as
// zero. Lines without a colon, numbers out of range and repeated numbers are
// skipped. Output with no usable line at all is a parse failure, unless the
// model explicitly returned nothing.
func parseChoiceSelect(raw string, numChoices int) ([]choiceSelection, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return nil, nil
	}

	seen := make(map[int]struct{}, numChoices)
	var out []choiceSelection
	for _, line := range strings.Split(text, "\n") {
		docField, relevanceField, _ := strings.Cut(strings.TrimSpace(line), ",")
		_, docValue, ok := strings.Cut(docField, ":")
		if !ok {
			continue
		}
		digits := integerPattern.FindString(docValue)
		if digits == "" {
			continue
		}
		n, err := strconv.Atoi(digits)
		if err != nil || n < 1 || n > numChoices {
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}

		out = append(out, choiceSelection{index: n, relevance: parseRelevance(relevanceField)})
	}

	if len(out) == 0 {
		return nil, domain.WrapError(domain.ErrRerankParse, "rerank",
			fmt.Errorf("no document choice in %q", truncateForLog(text, 200)))
	}
	return out, nil
}

// parseRelevance accepts both "8.5" and "8,5".
func parseRelevance(field string) float64 {
	if _, value, ok := strings.Cut(field, ":"); ok {
		field = value
	}
	number := numberPattern.FindString(field)
	if number == "" {
		return 0
	}
	relevance, _ := strconv.ParseFloat(strings.Replace(number, ",", ".", 1), 64)
	return relevance
}

func splitBatches(candidates domain.CandidateSet, size int) [][]domain.Chunk {
	out := make([][]domain.Chunk, 0, (len(candidates)+size-1)/size)
	for start := 0; start < len(candidates); start += size {
		end := min(start+size, len(candidates))
		out = append(out, candidates[start:end])
	}
	return out
}
