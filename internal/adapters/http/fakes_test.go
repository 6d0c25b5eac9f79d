package httpadapter

import (
	"context"
	"net/http"

	"github.com/kirillkom/catalog-assistant/internal/config"
	"github.com/kirillkom/catalog-assistant/internal/core/domain"
	"github.com/kirillkom/catalog-assistant/internal/core/ports"
)

type chatFake struct {
	beginErr   error
	tokens     []string
	streamErr  error
	turn       domain.Turn
	history    []domain.ChatMessage
	historyErr error
	endErr     error

	lastMessage string
}

func (f *chatFake) CreateSession(context.Context) (string, error) { return "sess-1", nil }

func (f *chatFake) BeginTurn(_ context.Context, _ string, message string) (ports.TurnStream, error) {
	f.lastMessage = message
	if f.beginErr != nil {
		return nil, f.beginErr
	}
	s := &streamFake{tokens: make(chan string), err: f.streamErr, turn: f.turn}
	go func() {
		for _, tok := range f.tokens {
			s.tokens <- tok
		}
		close(s.tokens)
	}()
	return s, nil
}

func (f *chatFake) History(context.Context, string) ([]domain.ChatMessage, error) {
	return f.history, f.historyErr
}

func (f *chatFake) EndSession(context.Context, string) error { return f.endErr }

type streamFake struct {
	tokens chan string
	err    error
	turn   domain.Turn
}

func (s *streamFake) Tokens() <-chan string { return s.tokens }
func (s *streamFake) Wait() error           { return s.err }
func (s *streamFake) Turn() domain.Turn     { return s.turn }

func newTestHandler(cfg config.Config, chat ports.ChatService) http.Handler {
	return NewRouter(cfg, chat, nil).Handler()
}
