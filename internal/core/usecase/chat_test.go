package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/kirillkom/catalog-assistant/internal/core/domain"
)

type chatFixture struct {
	uc       *ChatUseCase
	gen      *scriptedGenerator
	lexical  *lexicalFake
	vector   *vectorFake
	reporter *issueReporterFake
	turnLog  *turnLogFake
}

func codiceClienteChunk() domain.Chunk {
	return domain.Chunk{
		ID:   "col-codice_cliente",
		Text: "Codice che identifica univocamente il cliente.",
		Metadata: map[string]string{
			"nome asset":              "codice_cliente",
			"tipo asset":              "colonna",
			"tabella di appartenenza": "clienti",
			"schema di appartenenza":  "anagrafica clienti",
		},
	}
}

func routeByKeyword(prompt string) (string, error) {
	question := prompt[strings.LastIndex(prompt, "question: '"):]
	switch {
	case strings.Contains(question, "tempo"):
		return `{"selections":[{"choice":3,"reason":"fuori ambito"}]}`, nil
	case strings.Contains(question, "sbagliat"):
		return `{"selections":[{"choice":2,"reason":"segnalazione"}]}`, nil
	default:
		return `{"selections":[{"choice":1,"reason":"asset del DWH"}]}`, nil
	}
}

func newChatFixture(t *testing.T) *chatFixture {
	t.Helper()
	f := &chatFixture{
		gen: &scriptedGenerator{
			condense: func(string) (string, error) { return "In quale tabella si trova la colonna codice_cliente?", nil },
			route:    routeByKeyword,
			rerank:   func(string) (string, error) { return "Doc: 1, Relevance: 9", nil },
			answer: func(string) (string, error) {
				return "La colonna che identifica univocamente un cliente è codice_cliente.", nil
			},
		},
		lexical:  &lexicalFake{indexFake{results: map[string][]domain.Chunk{"nuovo_dwh": {codiceClienteChunk()}}}},
		vector:   &vectorFake{indexFake{results: map[string][]domain.Chunk{"nuovo_dwh": {codiceClienteChunk()}}}},
		reporter: &issueReporterFake{},
		turnLog:  &turnLogFake{},
	}

	retrieval := NewRetrievalStrategy(
		CatalogCollection{Name: "nuovo_dwh", Title: "nuovo DWH"},
		NewHybridRetriever(f.lexical, f.vector, 10, 10, nil),
		NewLLMReranker(f.gen, AnswerLanguageInstruction, RerankOptions{}, nil),
		NewSynthesizer(f.gen, wordCounter{}, AnswerLanguageInstruction, 500),
		nil,
	)
	registry, err := NewStrategyRegistry(retrieval, NewIssueReportStrategy(f.reporter), NewOutOfScopeStrategy(), NewCapabilityStrategy(f.gen))
	if err != nil {
		t.Fatalf("NewStrategyRegistry() error = %v", err)
	}
	sessions, err := NewSessionStore(wordCounter{}, 10, 1024)
	if err != nil {
		t.Fatalf("NewSessionStore() error = %v", err)
	}
	f.uc = NewChatUseCase(
		sessions,
		NewQueryCondenser(f.gen, AnswerLanguageInstruction),
		NewStrategyRouter(f.gen, AnswerLanguageInstruction),
		registry,
		f.turnLog,
		nil,
	)
	return f
}

func (f *chatFixture) session(t *testing.T) string {
	t.Helper()
	id, err := f.uc.CreateSession(context.Background())
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	return id
}

func TestChatAnswersCatalogQuestionWithCitations(t *testing.T) {
	f := newChatFixture(t)
	sid := f.session(t)

	stream, err := f.uc.BeginTurn(context.Background(), sid, "Qual è la colonna che identifica univocamente un cliente?")
	if err != nil {
		t.Fatalf("BeginTurn() error = %v", err)
	}
	text, err := drain(stream)
	if err != nil {
		t.Fatalf("stream error = %v", err)
	}
	if !strings.Contains(text, "codice_cliente") {
		t.Fatalf("unexpected answer: %q", text)
	}

	turn := stream.Turn()
	if turn.Decision.Strategy != "semantic_search_nuovo_dwh" || turn.Status != domain.TurnCompleted {
		t.Fatalf("unexpected turn: %+v", turn)
	}
	if len(turn.Citations) != 1 {
		t.Fatalf("expected one citation, got %+v", turn.Citations)
	}
	c := turn.Citations[0]
	if c.AssetName != "codice_cliente" || c.AssetType != "colonna" || c.Table != "clienti" || c.Schema != "anagrafica clienti" {
		t.Fatalf("unexpected citation: %+v", c)
	}
	if f.gen.count("<Standalone question>") != 0 {
		t.Fatalf("first turn must not be condensed")
	}

	history, err := f.uc.History(context.Background(), sid)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 2 || history[0].Role != domain.RoleUser || history[1].Content != text {
		t.Fatalf("unexpected history: %+v", history)
	}
	if got := f.turnLog.last(); got.ID != turn.ID || got.Status != domain.TurnCompleted {
		t.Fatalf("turn not logged: %+v", got)
	}
}

func TestChatOutOfScopeQuestionGetsCannedAnswer(t *testing.T) {
	f := newChatFixture(t)
	sid := f.session(t)

	stream, err := f.uc.BeginTurn(context.Background(), sid, "Che tempo fa oggi?")
	if err != nil {
		t.Fatalf("BeginTurn() error = %v", err)
	}
	text, err := drain(stream)
	if err != nil {
		t.Fatalf("stream error = %v", err)
	}
	if text != OutOfScopeMessage {
		t.Fatalf("expected out-of-scope message, got %q", text)
	}
	if len(stream.Turn().Citations) != 0 {
		t.Fatalf("canned answers carry no citations")
	}
	if len(f.lexical.calls) != 0 || len(f.vector.calls) != 0 {
		t.Fatalf("no retrieval expected for canned strategy")
	}
}

func TestChatFollowUpIsCondensedBeforeRetrieval(t *testing.T) {
	f := newChatFixture(t)
	sid := f.session(t)

	first, err := f.uc.BeginTurn(context.Background(), sid, "Qual è la colonna che identifica univocamente un cliente?")
	if err != nil {
		t.Fatalf("BeginTurn() error = %v", err)
	}
	if _, err := drain(first); err != nil {
		t.Fatalf("first turn error = %v", err)
	}

	second, err := f.uc.BeginTurn(context.Background(), sid, "E in quale tabella si trova?")
	if err != nil {
		t.Fatalf("BeginTurn() error = %v", err)
	}
	if _, err := drain(second); err != nil {
		t.Fatalf("second turn error = %v", err)
	}

	turn := second.Turn()
	if turn.StandaloneQuery != "In quale tabella si trova la colonna codice_cliente?" || turn.CondenseFallback {
		t.Fatalf("unexpected standalone query: %+v", turn)
	}
	last := f.lexical.calls[len(f.lexical.calls)-1]
	if last != "nuovo_dwh|In quale tabella si trova la colonna codice_cliente?" {
		t.Fatalf("retrieval must use the condensed query, got %q", last)
	}
}

func TestChatRoutingFailureAbortsTurnWithoutMemoryChange(t *testing.T) {
	f := newChatFixture(t)
	f.gen.route = func(string) (string, error) {
		return `{"selections":[{"choice":1},{"choice":2}]}`, nil
	}
	sid := f.session(t)

	_, err := f.uc.BeginTurn(context.Background(), sid, "colonna cliente")
	if !domain.IsKind(err, domain.ErrRoutingAmbiguous) {
		t.Fatalf("expected ErrRoutingAmbiguous, got %v", err)
	}
	history, _ := f.uc.History(context.Background(), sid)
	if len(history) != 0 {
		t.Fatalf("memory must not change on routing failure: %+v", history)
	}
	if got := f.turnLog.last(); got.Status != domain.TurnFailed {
		t.Fatalf("expected failed turn logged, got %+v", got)
	}

	f.gen.route = func(string) (string, error) { return `{"selections":[]}`, nil }
	if _, err := f.uc.BeginTurn(context.Background(), sid, "colonna cliente"); !domain.IsKind(err, domain.ErrRoutingEmpty) {
		t.Fatalf("expected ErrRoutingEmpty after release, got %v", err)
	}
}

func TestChatSynthesisFailureLeavesMemoryUntouched(t *testing.T) {
	f := newChatFixture(t)
	f.gen.answer = func(string) (string, error) { return "", errors.New("stream reset") }
	sid := f.session(t)

	stream, err := f.uc.BeginTurn(context.Background(), sid, "colonna cliente")
	if err != nil {
		t.Fatalf("BeginTurn() error = %v", err)
	}
	if _, err := drain(stream); !domain.IsKind(err, domain.ErrSynthesisFailed) {
		t.Fatalf("expected ErrSynthesisFailed, got %v", err)
	}
	history, _ := f.uc.History(context.Background(), sid)
	if len(history) != 0 {
		t.Fatalf("memory must not change on synthesis failure: %+v", history)
	}
}

func TestChatNoEvidenceRemembersOnlyUserMessage(t *testing.T) {
	f := newChatFixture(t)
	f.lexical.results = nil
	f.vector.results = nil
	sid := f.session(t)

	stream, err := f.uc.BeginTurn(context.Background(), sid, "colonna inesistente")
	if err != nil {
		t.Fatalf("BeginTurn() error = %v", err)
	}
	text, err := drain(stream)
	if err != nil {
		t.Fatalf("stream error = %v", err)
	}
	turn := stream.Turn()
	if text != NoEvidenceMessage || !turn.NoEvidence || len(turn.Citations) != 0 {
		t.Fatalf("expected no-evidence answer, got %q %+v", text, turn)
	}
	if f.gen.count("Let's try this now") != 0 {
		t.Fatalf("reranker must not be called without candidates")
	}
	history, _ := f.uc.History(context.Background(), sid)
	if len(history) != 1 || history[0].Role != domain.RoleUser {
		t.Fatalf("expected only the user message remembered, got %+v", history)
	}
}

func TestChatCancelledTurnLeavesMemoryUntouched(t *testing.T) {
	f := newChatFixture(t)
	f.gen.answer = func(string) (string, error) {
		return strings.Repeat("parola ", 50), nil
	}
	sid := f.session(t)

	ctx, cancel := context.WithCancel(context.Background())
	stream, err := f.uc.BeginTurn(ctx, sid, "colonna cliente")
	if err != nil {
		t.Fatalf("BeginTurn() error = %v", err)
	}
	<-stream.Tokens()
	cancel()
	if _, err := drain(stream); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if stream.Turn().Status != domain.TurnCancelled {
		t.Fatalf("expected cancelled status, got %s", stream.Turn().Status)
	}
	history, _ := f.uc.History(context.Background(), sid)
	if len(history) != 0 {
		t.Fatalf("memory must not change on cancellation: %+v", history)
	}
}

func TestChatRejectsConcurrentTurnOnSameSession(t *testing.T) {
	f := newChatFixture(t)
	sid := f.session(t)

	first, err := f.uc.BeginTurn(context.Background(), sid, "colonna cliente")
	if err != nil {
		t.Fatalf("BeginTurn() error = %v", err)
	}
	if _, err := f.uc.BeginTurn(context.Background(), sid, "altra domanda"); !domain.IsKind(err, domain.ErrSessionBusy) {
		t.Fatalf("expected ErrSessionBusy, got %v", err)
	}
	if _, err := drain(first); err != nil {
		t.Fatalf("first turn error = %v", err)
	}
}

func TestChatSessionsAreIsolated(t *testing.T) {
	f := newChatFixture(t)
	f.gen.answer = func(prompt string) (string, error) {
		if strings.Contains(prompt, "ordini") {
			return "risposta sugli ordini", nil
		}
		return "risposta sui clienti", nil
	}
	a, b := f.session(t), f.session(t)

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for sid, msg := range map[string]string{a: "tabella clienti", b: "tabella ordini"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			stream, err := f.uc.BeginTurn(context.Background(), sid, msg)
			if err != nil {
				errs <- err
				return
			}
			if _, err := drain(stream); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("turn error = %v", err)
	}

	histA, _ := f.uc.History(context.Background(), a)
	histB, _ := f.uc.History(context.Background(), b)
	if len(histA) != 2 || histA[0].Content != "tabella clienti" || histA[1].Content != "risposta sui clienti" {
		t.Fatalf("unexpected history for session a: %+v", histA)
	}
	if len(histB) != 2 || histB[0].Content != "tabella ordini" || histB[1].Content != "risposta sugli ordini" {
		t.Fatalf("unexpected history for session b: %+v", histB)
	}
}

func TestChatIssueReportIsPublished(t *testing.T) {
	f := newChatFixture(t)
	sid := f.session(t)

	stream, err := f.uc.BeginTurn(context.Background(), sid, "La descrizione di codice_cliente è sbagliata")
	if err != nil {
		t.Fatalf("BeginTurn() error = %v", err)
	}
	text, err := drain(stream)
	if err != nil || text != IssueReportedMessage {
		t.Fatalf("unexpected answer %q err=%v", text, err)
	}
	if len(f.reporter.reports) != 1 || f.reporter.reports[0].SessionID != sid {
		t.Fatalf("expected report for session, got %+v", f.reporter.reports)
	}
}

func TestChatValidatesInput(t *testing.T) {
	f := newChatFixture(t)
	if _, err := f.uc.BeginTurn(context.Background(), "missing", "ciao"); !domain.IsKind(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	sid := f.session(t)
	if _, err := f.uc.BeginTurn(context.Background(), sid, "   "); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if err := f.uc.EndSession(context.Background(), sid); err != nil {
		t.Fatalf("EndSession() error = %v", err)
	}
	if _, err := f.uc.History(context.Background(), sid); !domain.IsKind(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound after end, got %v", err)
	}
}
