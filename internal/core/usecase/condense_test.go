package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/kirillkom/catalog-assistant/internal/core/domain"
)

func TestCondenseEmptyHistoryReturnsMessageWithoutGeneration(t *testing.T) {
	gen := &scriptedGenerator{condense: func(string) (string, error) {
		t.Fatalf("condense must not call the generator without history")
		return "", nil
	}}
	c := NewQueryCondenser(gen, AnswerLanguageInstruction)

	msg := "Qual è la colonna che identifica univocamente un cliente?"
	got, fellBack := c.Condense(context.Background(), msg, nil)
	if got != msg || fellBack {
		t.Fatalf("expected unchanged message, got %q fallback=%v", got, fellBack)
	}
}

func TestCondenseRewritesFollowUpWithHistory(t *testing.T) {
	var prompt string
	gen := &scriptedGenerator{condense: func(p string) (string, error) {
		prompt = p
		return "  Standalone question: In quale schema si trova la tabella clienti?  ", nil
	}}
	c := NewQueryCondenser(gen, AnswerLanguageInstruction)

	history := []domain.ChatMessage{
		{Role: domain.RoleUser, Content: "Cosa contiene la tabella clienti?"},
		{Role: domain.RoleAssistant, Content: "Contiene l'anagrafica dei clienti."},
	}
	got, fellBack := c.Condense(context.Background(), "E in quale schema si trova?", history)
	if fellBack {
		t.Fatalf("unexpected fallback")
	}
	if got != "In quale schema si trova la tabella clienti?" {
		t.Fatalf("unexpected condensed query: %q", got)
	}
	if !strings.Contains(prompt, "user: Cosa contiene la tabella clienti?\nassistant: Contiene") {
		t.Fatalf("history not rendered chronologically: %s", prompt)
	}
	if !strings.Contains(prompt, "E in quale schema si trova?") {
		t.Fatalf("follow-up missing from prompt: %s", prompt)
	}
}

func TestCondenseFallsBackToRawMessage(t *testing.T) {
	history := []domain.ChatMessage{{Role: domain.RoleUser, Content: "ciao"}}
	cases := map[string]*scriptedGenerator{
		"error": {condense: func(string) (string, error) { return "", errors.New("boom") }},
		"blank": {condense: func(string) (string, error) { return "   ", nil }},
	}
	for name, gen := range cases {
		t.Run(name, func(t *testing.T) {
			c := NewQueryCondenser(gen, "")
			got, fellBack := c.Condense(context.Background(), "e la tabella ordini?", history)
			if got != "e la tabella ordini?" || !fellBack {
				t.Fatalf("expected raw message fallback, got %q fallback=%v", got, fellBack)
			}
		})
	}
}
