package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/kirillkom/catalog-assistant/internal/core/domain"
	"github.com/kirillkom/catalog-assistant/internal/core/ports"
)

// StrategyRouter asks the generator to pick exactly one strategy.
type StrategyRouter struct {
	generator ports.TextGenerator
	system    string
}

func NewStrategyRouter(generator ports.TextGenerator, system string) *StrategyRouter {
	return &StrategyRouter{generator: generator, system: system}
}

type routerSelection struct {
	Choice json.Number `json:"choice"`
	Reason string      `json:"reason"`
}

type routerOutput struct {
	Selections []routerSelection `json:"selections"`
}

// Select never falls back to a default strategy.
func (r *StrategyRouter) Select(ctx context.Context, query string, choices []domain.StrategyDescriptor) (domain.RouterDecision, error) {
	if len(choices) == 0 {
		return domain.RouterDecision{}, domain.WrapError(domain.ErrRoutingEmpty, "route", errors.New("no strategies registered"))
	}

	out, err := r.generator.Generate(ctx, domain.GenerationRequest{
		Prompt: buildSingleSelectPrompt(query, choices),
		System: r.system,
		JSON:   true,
	})
	if err != nil {
		return domain.RouterDecision{}, fmt.Errorf("route: generate: %w", err)
	}
	return parseRouterDecision(out, choices)
}

func parseRouterDecision(raw string, choices []domain.StrategyDescriptor) (domain.RouterDecision, error) {
	selections, err := decodeSelections(raw)
	if err != nil {
		return domain.RouterDecision{}, domain.WrapError(domain.ErrRoutingEmpty, "route", err)
	}

	valid := make([]domain.RouterDecision, 0, len(selections))
	for _, s := range selections {
		n, err := s.Choice.Int64()
		if err != nil || n < 1 || int(n) > len(choices) {
			continue
		}
		valid = append(valid, domain.RouterDecision{
			Index:    int(n),
			Strategy: choices[n-1].Name,
			Reason:   strings.TrimSpace(s.Reason),
		})
	}

	switch {
	case len(selections) > 1:
		return domain.RouterDecision{}, domain.WrapError(domain.ErrRoutingAmbiguous, "route",
			fmt.Errorf("%d selections returned", len(selections)))
	case len(valid) == 0:
		return domain.RouterDecision{}, domain.WrapError(domain.ErrRoutingEmpty, "route",
			fmt.Errorf("no valid selection in %q", truncateForLog(raw, 200)))
	default:
		return valid[0], nil
	}
}

// decodeSelections accepts the object form, a bare list, or a single
// selection. Every JSON value in the output counts, so a model that writes two
// objects in a row yields two selections.
func decodeSelections(raw string) ([]routerSelection, error) {
	text := strings.TrimSpace(raw)
	text = strings.TrimPrefix(text, "```json")
	text = strings.Trim(strings.TrimSpace(text), "`")

	var out []routerSelection
	for _, value := range splitJSONValues(text) {
		out = append(out, selectionsFrom(value)...)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("unparseable selection output %q", truncateForLog(raw, 200))
	}
	return out, nil
}

func selectionsFrom(value json.RawMessage) []routerSelection {
	if value[0] == '[' {
		var list []routerSelection
		if err := decodeJSON(value, &list); err == nil {
			return list
		}
		return nil
	}
	var wrapped routerOutput
	if err := decodeJSON(value, &wrapped); err == nil && wrapped.Selections != nil {
		return wrapped.Selections
	}
	var single routerSelection
	if err := decodeJSON(value, &single); err == nil && single.Choice != "" {
		return []routerSelection{single}
	}
	return nil
}

// splitJSONValues returns the top-level objects and arrays embedded in raw,
// skipping prose between them.
func splitJSONValues(raw string) []json.RawMessage {
	var out []json.RawMessage
	rest := raw
	for {
		start := strings.IndexAny(rest, "{[")
		if start < 0 {
			return out
		}
		dec := json.NewDecoder(strings.NewReader(rest[start:]))
		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			rest = rest[start+1:]
			continue
		}
		out = append(out, value)
		rest = rest[start+int(dec.InputOffset()):]
	}
}

func decodeJSON(raw []byte, out any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	return dec.Decode(out)
}

func truncateForLog(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "..."
}
