package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/catalog-assistant/internal/config"
	"github.com/kirillkom/catalog-assistant/internal/core/ports"
	"github.com/kirillkom/catalog-assistant/internal/core/usecase"
	"github.com/kirillkom/catalog-assistant/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/catalog-assistant/internal/infrastructure/queue/nats"
	"github.com/kirillkom/catalog-assistant/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/catalog-assistant/internal/infrastructure/resilience"
	"github.com/kirillkom/catalog-assistant/internal/infrastructure/tokenizer"
	"github.com/kirillkom/catalog-assistant/internal/infrastructure/vector/qdrant"
	"github.com/kirillkom/catalog-assistant/internal/observability/metrics"
)

const startupCheckTimeout = 5 * time.Second

// App is the wired chat service used by cmd/api and cmd/chat.
type App struct {
	Config  config.Config
	Catalog config.Catalog
	Metrics *metrics.HTTPServerMetrics

	Chat       *usecase.ChatUseCase
	Strategies *usecase.StrategyRegistry

	closeFns []func()
}

func New(ctx context.Context, cfg config.Config, service string) (*App, error) {
	catalog, err := config.LoadCatalog(cfg.CatalogPath)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}

	app := &App{
		Config:  cfg,
		Catalog: catalog,
		Metrics: metrics.NewHTTPServerMetrics(service),
	}
	observer := app.Metrics.Pipeline()

	executor := resilience.NewExecutor(resilienceConfig(cfg), resilience.WithRetryObserver(app.Metrics.RecordDependencyRetry))
	slog.Info("resilience_policy", resilienceConfig(cfg).LogAttrs()...)

	ollamaClient := ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel, ollama.Options{
		Executor: executor,
		Timeout:  cfg.OllamaTimeout,
	})
	generator := ollama.NewGenerator(ollamaClient)
	embedder, err := ollama.NewEmbedder(ollamaClient, cfg.EmbedCacheSize)
	if err != nil {
		return nil, fmt.Errorf("init embedder: %w", err)
	}

	qdrantClient := qdrant.New(cfg.QdrantURL, qdrant.Options{
		Executor:     executor,
		Timeout:      cfg.QdrantTimeout,
		DenseVector:  cfg.QdrantDenseVector,
		SparseVector: cfg.QdrantSparseVector,
	})
	checkCollections(ctx, qdrantClient, catalog)

	system := cfg.OllamaSystemPrompt
	if system == "" {
		system = usecase.AnswerLanguageInstruction
	}

	counter := newTokenCounter(cfg.TokenizerEncoding)
	sessions, err := usecase.NewSessionStore(counter, cfg.MaxSessions, cfg.MemoryTokenLimit)
	if err != nil {
		return nil, fmt.Errorf("init session store: %w", err)
	}

	retriever := usecase.NewHybridRetriever(
		qdrant.NewLexicalIndex(qdrantClient),
		qdrant.NewVectorIndex(qdrantClient, embedder),
		cfg.RAGLexicalTopK,
		cfg.RAGVectorTopK,
		observer,
	)
	reranker := usecase.NewLLMReranker(generator, system, usecase.RerankOptions{
		BatchSize:   cfg.RAGRerankBatchSize,
		TopN:        cfg.RAGRerankTopN,
		Concurrency: cfg.RAGRerankConcurrency,
	}, observer)
	synthesizer := usecase.NewSynthesizer(generator, counter, system, cfg.RAGMaxContextTokens)

	strategies := make([]usecase.Strategy, 0, len(catalog.Collections)+3)
	for _, c := range catalog.Collections {
		strategies = append(strategies, usecase.NewRetrievalStrategy(
			usecase.CatalogCollection{Name: c.Name, Title: c.Title, Description: c.Description},
			retriever, reranker, synthesizer, observer,
		))
	}

	var reporter ports.IssueReporter
	if cfg.NATSURL != "" {
		queue, err := nats.New(cfg.NATSURL, cfg.NATSIssueSubject, nats.Options{
			Executor:   executor,
			ClientName: "catalog-assistant-" + service,
		})
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("init issue queue: %w", err)
		}
		app.closeFns = append(app.closeFns, queue.Close)
		reporter = queue
	} else {
		slog.Warn("issue_reporting_disabled", "reason", "NATS_URL is empty")
	}
	strategies = append(strategies,
		usecase.NewIssueReportStrategy(reporter),
		usecase.NewOutOfScopeStrategy(),
		usecase.NewCapabilityStrategy(generator),
	)

	registry, err := usecase.NewStrategyRegistry(strategies...)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("build strategy registry: %w", err)
	}
	for i, d := range registry.Descriptors() {
		slog.Info("strategy_registered", "index", i+1, "name", d.Name, "kind", string(d.Kind), "collection", d.Collection)
	}

	var turnLog ports.TurnLog
	if cfg.PostgresDSN != "" {
		db, err := openSchema(ctx, cfg.PostgresDSN)
		if err != nil {
			app.Close()
			return nil, err
		}
		app.closeFns = append(app.closeFns, func() { _ = db.Close() })
		turnLog = postgres.NewTurnRepository(db)
	} else {
		slog.Warn("turn_log_disabled", "reason", "POSTGRES_DSN is empty")
	}

	app.Strategies = registry
	app.Chat = usecase.NewChatUseCase(
		sessions,
		usecase.NewQueryCondenser(generator, system),
		usecase.NewStrategyRouter(generator, system),
		registry,
		turnLog,
		observer,
	)
	return app, nil
}

func (a *App) Close() {
	for i := len(a.closeFns) - 1; i >= 0; i-- {
		a.closeFns[i]()
	}
	a.closeFns = nil
}

// Worker is the wired issue-report consumer used by cmd/worker.
type Worker struct {
	Config  config.Config
	Queue   *nats.Queue
	Issues  *usecase.IssueReportUseCase
	Metrics *metrics.WorkerMetrics

	closeFn func()
}

func NewWorker(ctx context.Context, cfg config.Config, service string) (*Worker, error) {
	if cfg.NATSURL == "" || cfg.PostgresDSN == "" {
		return nil, fmt.Errorf("worker requires NATS_URL and POSTGRES_DSN")
	}

	db, err := openSchema(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, err
	}

	workerMetrics := metrics.NewWorkerMetrics(service)
	executor := resilience.NewExecutor(resilienceConfig(cfg))
	queue, err := nats.New(cfg.NATSURL, cfg.NATSIssueSubject, nats.Options{
		Executor:   executor,
		ClientName: "catalog-assistant-" + service,
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init issue queue: %w", err)
	}

	return &Worker{
		Config:  cfg,
		Queue:   queue,
		Issues:  usecase.NewIssueReportUseCase(postgres.NewIssueRepository(db)),
		Metrics: workerMetrics,
		closeFn: func() {
			queue.Close()
			_ = db.Close()
		},
	}, nil
}

func (w *Worker) Close() {
	if w.closeFn != nil {
		w.closeFn()
	}
}

func openSchema(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := postgres.OpenDB(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := postgres.EnsureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return db, nil
}

func newTokenCounter(encoding string) ports.TokenCounter {
	counter, err := tokenizer.New(encoding)
	if err != nil {
		slog.Warn("tokenizer_fallback", "encoding", encoding, "error", err)
		return tokenizer.Estimator{}
	}
	return counter
}

// checkCollections only warns: a missing collection degrades one strategy,
// and the index may come up after the api.
func checkCollections(ctx context.Context, client *qdrant.Client, catalog config.Catalog) {
	checkCtx, cancel := context.WithTimeout(ctx, startupCheckTimeout)
	defer cancel()
	for _, c := range catalog.Collections {
		if err := client.CheckCollection(checkCtx, c.Name); err != nil {
			slog.Warn("collection_unavailable", "collection", c.Name, "not_found", qdrant.IsNotFound(err), "error", err)
		}
	}
}

func resilienceConfig(cfg config.Config) resilience.Config {
	return resilience.Config{
		Retry: resilience.RetryPolicy{
			MaxAttempts:    cfg.ResilienceRetryMaxAttempts,
			InitialBackoff: cfg.ResilienceRetryInitialBackoff,
			MaxBackoff:     cfg.ResilienceRetryMaxBackoff,
		},
		Breaker: resilience.BreakerPolicy{
			Enabled:      cfg.ResilienceBreakerEnabled,
			FailureRatio: cfg.ResilienceBreakerFailureRatio,
			OpenTimeout:  cfg.ResilienceBreakerOpenTimeout,
		},
	}
}
