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

const (
	RetrievalStrategyPrefix = "semantic_search_"
	IssueReportStrategyName = "problems_reporting"
	OutOfScopeStrategyName  = "general_interaction"
	CapabilityStrategyName  = "chatbot_info"
)

// StrategyRequest carries the condensed query plus the turn identity a
// strategy may need for side effects.
type StrategyRequest struct {
	Query      string
	RawMessage string
	SessionID  string
	TurnID     string
}

// Strategy answers a routed query. Only its descriptor is visible to the router.
type Strategy interface {
	Descriptor() domain.StrategyDescriptor
	Answer(ctx context.Context, req StrategyRequest, sink ports.TokenSink) (Synthesis, error)
}

// StrategyRegistry is the fixed, ordered set of strategies offered to the router.
type StrategyRegistry struct {
	strategies []Strategy
	byName     map[string]Strategy
}

func NewStrategyRegistry(strategies ...Strategy) (*StrategyRegistry, error) {
	if len(strategies) == 0 {
		return nil, errors.New("strategy registry: no strategies")
	}
	byName := make(map[string]Strategy, len(strategies))
	for _, s := range strategies {
		name := s.Descriptor().Name
		if strings.TrimSpace(name) == "" {
			return nil, errors.New("strategy registry: empty strategy name")
		}
		if _, dup := byName[name]; dup {
			return nil, fmt.Errorf("strategy registry: duplicate strategy %q", name)
		}
		byName[name] = s
	}
	return &StrategyRegistry{strategies: strategies, byName: byName}, nil
}

func (r *StrategyRegistry) Descriptors() []domain.StrategyDescriptor {
	out := make([]domain.StrategyDescriptor, 0, len(r.strategies))
	for _, s := range r.strategies {
		out = append(out, s.Descriptor())
	}
	return out
}

func (r *StrategyRegistry) Lookup(name string) (Strategy, bool) {
	s, ok := r.byName[name]
	return s, ok
}

// CatalogCollection is one searchable collection of the catalog.
type CatalogCollection struct {
	Name        string
	Title       string
	Description string
}

// RetrievalDescriptor builds the router-facing descriptor of a collection.
func RetrievalDescriptor(c CatalogCollection) domain.StrategyDescriptor {
	description := strings.TrimSpace(c.Description)
	if description == "" {
		title := strings.TrimSpace(c.Title)
		if title == "" {
			title = c.Name
		}
		description = fmt.Sprintf(retrievalToolDescriptionTemplate, title)
	}
	return domain.StrategyDescriptor{
		Name:        RetrievalStrategyPrefix + c.Name,
		Description: description,
		Kind:        domain.StrategyRetrieval,
		Collection:  c.Name,
	}
}

type RetrievalStrategy struct {
	descriptor  domain.StrategyDescriptor
	retriever   *HybridRetriever
	reranker    *LLMReranker
	synthesizer *Synthesizer
	observer    PipelineObserver
}

func NewRetrievalStrategy(
	collection CatalogCollection,
	retriever *HybridRetriever,
	reranker *LLMReranker,
	synthesizer *Synthesizer,
	observer PipelineObserver,
) *RetrievalStrategy {
	return &RetrievalStrategy{
		descriptor:  RetrievalDescriptor(collection),
		retriever:   retriever,
		reranker:    reranker,
		synthesizer: synthesizer,
		observer:    observerOrNoop(observer),
	}
}

func (s *RetrievalStrategy) Descriptor() domain.StrategyDescriptor { return s.descriptor }

func (s *RetrievalStrategy) Answer(ctx context.Context, req StrategyRequest, sink ports.TokenSink) (Synthesis, error) {
	start := time.Now()
	candidates, err := s.retriever.Retrieve(ctx, req.Query, s.descriptor.Collection)
	s.observer.ObserveStage(domain.StageRetrieving, time.Since(start))
	if err != nil {
		return Synthesis{}, err
	}
	slog.Debug("turn_stage", "turn_id", req.TurnID, "stage", domain.StageRetrieving, "candidates", len(candidates))

	start = time.Now()
	ranked, err := s.reranker.Rerank(ctx, req.Query, candidates)
	s.observer.ObserveStage(domain.StageReranking, time.Since(start))
	if err != nil {
		return Synthesis{}, err
	}
	slog.Debug("turn_stage", "turn_id", req.TurnID, "stage", domain.StageReranking, "ranked", len(ranked.Chunks))

	start = time.Now()
	out, err := s.synthesizer.Synthesize(ctx, req.Query, ranked, sink)
	s.observer.ObserveStage(domain.StageSynthesizing, time.Since(start))
	return out, err
}

// CannedStrategy emits a fixed message without retrieval or citations.
type CannedStrategy struct {
	descriptor domain.StrategyDescriptor
	message    string
}

func NewCannedStrategy(name, description, message string) *CannedStrategy {
	return &CannedStrategy{
		descriptor: domain.StrategyDescriptor{Name: name, Description: description, Kind: domain.StrategyCanned},
		message:    message,
	}
}

func NewOutOfScopeStrategy() *CannedStrategy {
	return NewCannedStrategy(
		OutOfScopeStrategyName,
		"Utile per rispondere a domande che non riguardano nessun asset del vecchio o del nuovo DWH, "+
			"come saluti, chiacchiere o argomenti generici.",
		OutOfScopeMessage,
	)
}

func (s *CannedStrategy) Descriptor() domain.StrategyDescriptor { return s.descriptor }

func (s *CannedStrategy) Answer(_ context.Context, _ StrategyRequest, sink ports.TokenSink) (Synthesis, error) {
	if err := EmitText(s.message, sink); err != nil {
		return Synthesis{}, err
	}
	return Synthesis{Text: s.message}, nil
}

// IssueReportStrategy acknowledges a reported problem and forwards it.
// Forwarding failures never block the acknowledgement.
type IssueReportStrategy struct {
	reporter ports.IssueReporter
	now      func() time.Time
}

func NewIssueReportStrategy(reporter ports.IssueReporter) *IssueReportStrategy {
	return &IssueReportStrategy{reporter: reporter, now: time.Now}
}

func (s *IssueReportStrategy) Descriptor() domain.StrategyDescriptor {
	return domain.StrategyDescriptor{
		Name: IssueReportStrategyName,
		Description: "Utile quando l'utente segnala un problema, un errore o un'informazione mancante o sbagliata " +
			"su un asset del catalogo, oppure chiede di aprire una richiesta di supporto.",
		Kind: domain.StrategyCanned,
	}
}

func (s *IssueReportStrategy) Answer(ctx context.Context, req StrategyRequest, sink ports.TokenSink) (Synthesis, error) {
	if s.reporter != nil {
		report := domain.IssueReport{
			ID:              uuid.NewString(),
			SessionID:       req.SessionID,
			TurnID:          req.TurnID,
			Message:         req.RawMessage,
			StandaloneQuery: req.Query,
			CreatedAt:       s.now().UTC(),
		}
		if err := s.reporter.PublishIssueReport(ctx, report); err != nil {
			slog.Error("issue_report_publish_failed", "session_id", req.SessionID, "turn_id", req.TurnID, "error", err)
		} else {
			slog.Info("issue_report_published", "report_id", report.ID, "session_id", req.SessionID)
		}
	}
	if err := EmitText(IssueReportedMessage, sink); err != nil {
		return Synthesis{}, err
	}
	return Synthesis{Text: IssueReportedMessage}, nil
}

// CapabilityStrategy describes what the assistant can do. When generation
// fails before producing any text the static description is used.
type CapabilityStrategy struct {
	generator ports.TextGenerator
}

func NewCapabilityStrategy(generator ports.TextGenerator) *CapabilityStrategy {
	return &CapabilityStrategy{generator: generator}
}

func (s *CapabilityStrategy) Descriptor() domain.StrategyDescriptor {
	return domain.StrategyDescriptor{
		Name:        CapabilityStrategyName,
		Description: "Utile quando l'utente chiede chi sei, cosa sai fare o come puoi aiutarlo.",
		Kind:        domain.StrategyCanned,
	}
}

func (s *CapabilityStrategy) Answer(ctx context.Context, req StrategyRequest, sink ports.TokenSink) (Synthesis, error) {
	emitted := 0
	counting := func(token string) error {
		emitted++
		return sink(token)
	}

	text, err := s.generator.GenerateStream(ctx, domain.GenerationRequest{
		Prompt: req.Query,
		System: capabilitiesSystemPrompt,
	}, counting)
	if err == nil && (emitted > 0 || strings.TrimSpace(text) != "") {
		return Synthesis{Text: text}, nil
	}
	if ctx.Err() != nil {
		return Synthesis{}, ctx.Err()
	}
	if emitted > 0 {
		return Synthesis{}, domain.WrapError(domain.ErrSynthesisFailed, "capabilities", err)
	}

	slog.Warn("capabilities_fallback", "turn_id", req.TurnID, "error", err)
	if err := EmitText(CapabilitiesMessage, sink); err != nil {
		return Synthesis{}, err
	}
	return Synthesis{Text: CapabilitiesMessage}, nil
}
