package ports

import (
	"context"

	"github.com/kirillkom/catalog-assistant/internal/core/domain"
)

// ChatService is the inbound contract for conversational turns.
type ChatService interface {
	CreateSession(ctx context.Context) (string, error)
	BeginTurn(ctx context.Context, sessionID, message string) (TurnStream, error)
	History(ctx context.Context, sessionID string) ([]domain.ChatMessage, error)
	EndSession(ctx context.Context, sessionID string) error
}

// TurnStream is the lazy, ordered answer of a single turn. Tokens is closed
// when the turn ends; Wait then reports the terminal error, if any, and Turn
// carries the citations side channel.
type TurnStream interface {
	Tokens() <-chan string
	Wait() error
	Turn() domain.Turn
}

// IssueReportConsumer handles reports delivered by the queue.
type IssueReportConsumer interface {
	HandleIssueReport(ctx context.Context, report domain.IssueReport) error
}
