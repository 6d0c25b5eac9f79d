package usecase

import (
	"context"
	"strings"
	"sync"

	"github.com/kirillkom/catalog-assistant/internal/core/domain"
	"github.com/kirillkom/catalog-assistant/internal/core/ports"
)

// scriptedGenerator answers by prompt kind so a whole turn can run against it.
type scriptedGenerator struct {
	mu       sync.Mutex
	condense func(prompt string) (string, error)
	route    func(prompt string) (string, error)
	rerank   func(prompt string) (string, error)
	answer   func(prompt string) (string, error)
	other    func(req domain.GenerationRequest) (string, error)
	requests []domain.GenerationRequest
}

func (g *scriptedGenerator) respond(req domain.GenerationRequest) (string, error) {
	g.mu.Lock()
	g.requests = append(g.requests, req)
	g.mu.Unlock()

	var fn func(string) (string, error)
	switch {
	case strings.Contains(req.Prompt, "<Standalone question>"):
		fn = g.condense
	case strings.Contains(req.Prompt, "Select only one choice"):
		fn = g.route
	case strings.Contains(req.Prompt, "Let's try this now"):
		fn = g.rerank
	case strings.Contains(req.Prompt, "Context information is below"):
		fn = g.answer
	default:
		if g.other != nil {
			return g.other(req)
		}
	}
	if fn == nil {
		return "", nil
	}
	return fn(req.Prompt)
}

func (g *scriptedGenerator) Generate(_ context.Context, req domain.GenerationRequest) (string, error) {
	return g.respond(req)
}

func (g *scriptedGenerator) GenerateStream(_ context.Context, req domain.GenerationRequest, sink ports.TokenSink) (string, error) {
	text, err := g.respond(req)
	if err != nil {
		return "", err
	}
	if err := EmitText(text, sink); err != nil {
		return "", err
	}
	return text, nil
}

func (g *scriptedGenerator) count(marker string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, r := range g.requests {
		if strings.Contains(r.Prompt, marker) {
			n++
		}
	}
	return n
}

// wordCounter counts whitespace-separated words.
type wordCounter struct{}

func (wordCounter) Count(text string) int { return len(strings.Fields(text)) }

func (wordCounter) Truncate(text string, maxTokens int) string {
	words := strings.Fields(text)
	if len(words) <= maxTokens {
		return text
	}
	return strings.Join(words[:maxTokens], " ")
}

type indexFake struct {
	mu      sync.Mutex
	results map[string][]domain.Chunk
	err     error
	calls   []string
	block   chan struct{}
}

func (f *indexFake) search(ctx context.Context, collection, query string, topK int) ([]domain.Chunk, error) {
	f.mu.Lock()
	f.calls = append(f.calls, collection+"|"+query)
	f.mu.Unlock()
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	out := f.results[collection]
	if len(out) > topK {
		out = out[:topK]
	}
	return append([]domain.Chunk(nil), out...), nil
}

type lexicalFake struct{ indexFake }

func (f *lexicalFake) SearchLexical(ctx context.Context, collection, query string, topK int) ([]domain.Chunk, error) {
	return f.search(ctx, collection, query, topK)
}

type vectorFake struct{ indexFake }

func (f *vectorFake) SearchVector(ctx context.Context, collection, query string, topK int) ([]domain.Chunk, error) {
	return f.search(ctx, collection, query, topK)
}

type issueReporterFake struct {
	mu      sync.Mutex
	reports []domain.IssueReport
	err     error
}

func (f *issueReporterFake) PublishIssueReport(_ context.Context, report domain.IssueReport) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reports = append(f.reports, report)
	return f.err
}

type turnLogFake struct {
	mu    sync.Mutex
	turns []domain.Turn
}

func (f *turnLogFake) RecordTurn(_ context.Context, turn domain.Turn) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.turns = append(f.turns, turn)
	return nil
}

func (f *turnLogFake) last() domain.Turn {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.turns[len(f.turns)-1]
}

func drain(stream ports.TurnStream) (string, error) {
	var b strings.Builder
	for tok := range stream.Tokens() {
		b.WriteString(tok)
	}
	return b.String(), stream.Wait()
}
