package usecase

import (
	"context"
	"strings"

	"github.com/kirillkom/catalog-assistant/internal/core/domain"
	"github.com/kirillkom/catalog-assistant/internal/core/ports"
)

const evidenceSeparator = "\n\n"

// Synthesis is the outcome of answering from evidence.
type Synthesis struct {
	Text       string
	Evidence   []domain.RankedChunk
	Citations  []domain.Citation
	NoEvidence bool
}

// Synthesizer answers in compact mode: all retained evidence goes into a
// single prompt bounded by maxContextTokens.
type Synthesizer struct {
	generator        ports.TextGenerator
	counter          ports.TokenCounter
	system           string
	maxContextTokens int
}

func NewSynthesizer(generator ports.TextGenerator, counter ports.TokenCounter, system string, maxContextTokens int) *Synthesizer {
	if maxContextTokens <= 0 {
		maxContextTokens = 3000
	}
	return &Synthesizer{
		generator:        generator,
		counter:          counter,
		system:           system,
		maxContextTokens: maxContextTokens,
	}
}

func (s *Synthesizer) Synthesize(ctx context.Context, query string, evidence domain.RerankResult, sink ports.TokenSink) (Synthesis, error) {
	if evidence.Empty() {
		if err := EmitText(NoEvidenceMessage, sink); err != nil {
			return Synthesis{}, err
		}
		return Synthesis{Text: NoEvidenceMessage, NoEvidence: true}, nil
	}

	retained, contextText := s.packContext(evidence.Chunks)
	text, err := s.generator.GenerateStream(ctx, domain.GenerationRequest{
		Prompt: buildTextQAPrompt(query, contextText),
		System: s.system,
	}, sink)
	if err != nil {
		if ctx.Err() != nil {
			return Synthesis{}, ctx.Err()
		}
		return Synthesis{}, domain.WrapError(domain.ErrSynthesisFailed, "synthesize", err)
	}

	// Chunks the judge picked without a relevance score still inform the
	// answer but are not shown as sources.
	citations := make([]domain.Citation, 0, len(retained))
	for _, c := range retained {
		if c.Relevance <= 0 {
			continue
		}
		citations = append(citations, domain.CitationFromChunk(c.Chunk))
	}
	return Synthesis{Text: text, Evidence: retained, Citations: citations}, nil
}

// packContext keeps the longest rank-ordered prefix of evidence that fits the
// token budget. The top chunk is always kept, truncated when it alone is over.
func (s *Synthesizer) packContext(chunks []domain.RankedChunk) ([]domain.RankedChunk, string) {
	sepTokens := s.counter.Count(evidenceSeparator)
	used := 0
	parts := make([]string, 0, len(chunks))
	retained := make([]domain.RankedChunk, 0, len(chunks))

	for i, c := range chunks {
		rendered := renderEvidence(c)
		cost := s.counter.Count(rendered)
		if i > 0 {
			cost += sepTokens
		}
		if used+cost > s.maxContextTokens {
			if i == 0 {
				parts = append(parts, s.counter.Truncate(rendered, s.maxContextTokens))
				retained = append(retained, c)
			}
			break
		}
		used += cost
		parts = append(parts, rendered)
		retained = append(retained, c)
	}
	return retained, strings.Join(parts, evidenceSeparator)
}

// EmitText streams a fixed text word by word. The concatenation of emitted
// fragments equals text.
func EmitText(text string, sink ports.TokenSink) error {
	if sink == nil {
		return nil
	}
	for _, part := range strings.SplitAfter(text, " ") {
		if part == "" {
			continue
		}
		if err := sink(part); err != nil {
			return err
		}
	}
	return nil
}
