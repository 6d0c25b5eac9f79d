package usecase

import (
	"github.com/kirillkom/catalog-assistant/internal/core/domain"
)

// turnStream is the single-producer token sequence of one turn. Tokens is
// unbuffered, so a token is handed over only when the consumer takes it.
// Callers drain Tokens (or cancel the turn context) before calling Wait.
type turnStream struct {
	tokens chan string
	done   chan struct{}

	turn domain.Turn
	err  error
}

func newTurnStream() *turnStream {
	return &turnStream{
		tokens: make(chan string),
		done:   make(chan struct{}),
	}
}

func (s *turnStream) Tokens() <-chan string { return s.tokens }

func (s *turnStream) Wait() error {
	<-s.done
	return s.err
}

// Turn blocks until the turn has ended. Citations are final at that point.
func (s *turnStream) Turn() domain.Turn {
	<-s.done
	turn := s.turn
	turn.Citations = append([]domain.Citation(nil), s.turn.Citations...)
	return turn
}

func (s *turnStream) finish(turn domain.Turn, err error) {
	s.turn = turn
	s.err = err
	close(s.done)
}
