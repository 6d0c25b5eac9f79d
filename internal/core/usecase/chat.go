package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/catalog-assistant/internal/core/domain"
	"github.com/kirillkom/catalog-assistant/internal/core/ports"
)

const turnLogTimeout = 5 * time.Second

// ChatUseCase runs conversational turns: condense, route, answer, remember.
type ChatUseCase struct {
	sessions  *SessionStore
	condenser *QueryCondenser
	router    *StrategyRouter
	registry  *StrategyRegistry
	turnLog   ports.TurnLog
	observer  PipelineObserver
	now       func() time.Time
}

func NewChatUseCase(
	sessions *SessionStore,
	condenser *QueryCondenser,
	router *StrategyRouter,
	registry *StrategyRegistry,
	turnLog ports.TurnLog,
	observer PipelineObserver,
) *ChatUseCase {
	return &ChatUseCase{
		sessions:  sessions,
		condenser: condenser,
		router:    router,
		registry:  registry,
		turnLog:   turnLog,
		observer:  observerOrNoop(observer),
		now:       time.Now,
	}
}

func (uc *ChatUseCase) CreateSession(_ context.Context) (string, error) {
	session := uc.sessions.Create()
	slog.Info("session_created", "session_id", session.ID)
	return session.ID, nil
}

func (uc *ChatUseCase) EndSession(_ context.Context, sessionID string) error {
	if err := uc.sessions.Remove(sessionID); err != nil {
		return err
	}
	slog.Info("session_ended", "session_id", sessionID)
	return nil
}

func (uc *ChatUseCase) History(_ context.Context, sessionID string) ([]domain.ChatMessage, error) {
	session, err := uc.sessions.Get(sessionID)
	if err != nil {
		return nil, err
	}
	return session.History(), nil
}

// BeginTurn condenses and routes synchronously; a routing failure aborts the
// turn here. The answer is then produced in the background and delivered
// through the returned stream. Session memory changes only when the stream
// completes without error.
func (uc *ChatUseCase) BeginTurn(ctx context.Context, sessionID, message string) (ports.TurnStream, error) {
	if strings.TrimSpace(message) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "begin turn", errors.New("message is empty"))
	}
	session, err := uc.sessions.Get(sessionID)
	if err != nil {
		return nil, err
	}
	if !session.acquire() {
		return nil, domain.WrapError(domain.ErrSessionBusy, "begin turn", fmt.Errorf("session=%s", sessionID))
	}

	turn := domain.Turn{
		ID:         uuid.NewString(),
		SessionID:  sessionID,
		RawMessage: message,
		StartedAt:  uc.now().UTC(),
	}

	start := time.Now()
	turn.StandaloneQuery, turn.CondenseFallback = uc.condenser.Condense(ctx, message, session.History())
	uc.observer.ObserveStage(domain.StageCondensing, time.Since(start))
	if turn.CondenseFallback {
		uc.observer.RecordCondenseFallback()
	}

	start = time.Now()
	decision, err := uc.router.Select(ctx, turn.StandaloneQuery, uc.registry.Descriptors())
	uc.observer.ObserveStage(domain.StageRouting, time.Since(start))
	if err != nil {
		session.release()
		uc.observer.RecordRoutingError(routingErrorKind(err))
		turn.Status = domain.TurnFailed
		turn.Error = err.Error()
		turn.FinishedAt = uc.now().UTC()
		uc.recordTurn(ctx, turn)
		slog.Warn("turn_routing_failed", "session_id", sessionID, "turn_id", turn.ID, "query", turn.StandaloneQuery, "error", err)
		return nil, err
	}
	turn.Decision = decision

	strategy, ok := uc.registry.Lookup(decision.Strategy)
	if !ok {
		session.release()
		return nil, domain.WrapError(domain.ErrRoutingEmpty, "begin turn", fmt.Errorf("unknown strategy %q", decision.Strategy))
	}
	slog.Info("turn_routed",
		"session_id", sessionID,
		"turn_id", turn.ID,
		"strategy", decision.Strategy,
		"reason", decision.Reason,
		"condense_fallback", turn.CondenseFallback,
	)

	stream := newTurnStream()
	go uc.run(ctx, session, strategy, turn, stream)
	return stream, nil
}

func (uc *ChatUseCase) run(ctx context.Context, session *Session, strategy Strategy, turn domain.Turn, stream *turnStream) {
	sink := func(token string) error {
		select {
		case stream.tokens <- token:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	start := time.Now()
	result, err := strategy.Answer(ctx, StrategyRequest{
		Query:      turn.StandaloneQuery,
		RawMessage: turn.RawMessage,
		SessionID:  turn.SessionID,
		TurnID:     turn.ID,
	}, sink)
	close(stream.tokens)
	uc.observer.ObserveStage(domain.StageStreaming, time.Since(start))

	turn.FinishedAt = uc.now().UTC()
	switch {
	case err == nil && ctx.Err() == nil:
		turn.Status = domain.TurnCompleted
		turn.Answer = result.Text
		turn.Evidence = result.Evidence
		turn.Citations = result.Citations
		turn.NoEvidence = result.NoEvidence
		session.remember(turnMemory(turn)...)
	case ctx.Err() != nil:
		turn.Status = domain.TurnCancelled
		err = ctx.Err()
		turn.Error = err.Error()
	default:
		turn.Status = domain.TurnFailed
		turn.Error = err.Error()
	}
	session.release()

	uc.recordTurn(ctx, turn)
	uc.observer.RecordTurn(turn.Decision.Strategy, turn.Status, turn.NoEvidence, turn.Duration())

	attrs := []any{
		"session_id", turn.SessionID,
		"turn_id", turn.ID,
		"strategy", turn.Decision.Strategy,
		"status", string(turn.Status),
		"no_evidence", turn.NoEvidence,
		"citations", len(turn.Citations),
		"duration_ms", float64(turn.Duration().Microseconds()) / 1000.0,
	}
	if err != nil {
		slog.Warn("turn_finished", append(attrs, "error", err)...)
	} else {
		slog.Info("turn_finished", attrs...)
	}

	stream.finish(turn, err)
}

// turnMemory always keeps the user message; the fixed no-evidence reply is
// not worth remembering.
func turnMemory(turn domain.Turn) []domain.ChatMessage {
	out := []domain.ChatMessage{{Role: domain.RoleUser, Content: turn.RawMessage}}
	if !turn.NoEvidence && strings.TrimSpace(turn.Answer) != "" {
		out = append(out, domain.ChatMessage{Role: domain.RoleAssistant, Content: turn.Answer})
	}
	return out
}

func (uc *ChatUseCase) recordTurn(ctx context.Context, turn domain.Turn) {
	if uc.turnLog == nil {
		return
	}
	logCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), turnLogTimeout)
	defer cancel()
	if err := uc.turnLog.RecordTurn(logCtx, turn); err != nil {
		slog.Error("turn_log_failed", "turn_id", turn.ID, "error", err)
	}
}

func routingErrorKind(err error) string {
	switch {
	case domain.IsKind(err, domain.ErrRoutingAmbiguous):
		return "ambiguous"
	case domain.IsKind(err, domain.ErrRoutingEmpty):
		return "empty"
	default:
		return "generation"
	}
}
