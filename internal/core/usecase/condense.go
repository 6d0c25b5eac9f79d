package usecase

import (
	"context"
	"log/slog"
	"strings"

	"github.com/kirillkom/catalog-assistant/internal/core/domain"
	"github.com/kirillkom/catalog-assistant/internal/core/ports"
)

// QueryCondenser rewrites a follow-up message into a standalone query.
type QueryCondenser struct {
	generator ports.TextGenerator
	system    string
}

func NewQueryCondenser(generator ports.TextGenerator, system string) *QueryCondenser {
	return &QueryCondenser{generator: generator, system: system}
}

// Condense never fails: an empty history returns the message as is, and a
// generation error or blank output falls back to the raw message.
func (c *QueryCondenser) Condense(ctx context.Context, message string, history []domain.ChatMessage) (string, bool) {
	if len(history) == 0 {
		return message, false
	}

	out, err := c.generator.Generate(ctx, domain.GenerationRequest{
		Prompt: buildCondensePrompt(history, message),
		System: c.system,
	})
	if err != nil {
		slog.Warn("condense_fallback",
			"reason", "generation_error",
			"error", domain.WrapError(domain.ErrCondensationFailed, "condense", err),
		)
		return message, true
	}

	query := cleanCondensedQuery(out)
	if query == "" {
		slog.Warn("condense_fallback", "reason", "empty_output")
		return message, true
	}
	return query, false
}

func cleanCondensedQuery(raw string) string {
	q := strings.TrimSpace(raw)
	for _, prefix := range []string{"Standalone question:", "<Standalone question>"} {
		q = strings.TrimSpace(strings.TrimPrefix(q, prefix))
	}
	return strings.Trim(q, "\"")
}
