package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/legal-code-search/internal/config"
	"github.com/kirillkom/legal-code-search/internal/core/domain"
	"github.com/kirillkom/legal-code-search/internal/core/ports"
	"github.com/kirillkom/legal-code-search/internal/core/usecase"
	"github.com/kirillkom/legal-code-search/internal/infrastructure/chunking"
	"github.com/kirillkom/legal-code-search/internal/infrastructure/corpus"
	"github.com/kirillkom/legal-code-search/internal/infrastructure/embedcache"
	natsevents "github.com/kirillkom/legal-code-search/internal/infrastructure/events/nats"
	"github.com/kirillkom/legal-code-search/internal/infrastructure/keyword/bleveidx"
	"github.com/kirillkom/legal-code-search/internal/infrastructure/keyword/elasticsearch"
	"github.com/kirillkom/legal-code-search/internal/infrastructure/keyword/meili"
	"github.com/kirillkom/legal-code-search/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/legal-code-search/internal/infrastructure/llm/openaicompat"
	"github.com/kirillkom/legal-code-search/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/legal-code-search/internal/infrastructure/resilience"
	"github.com/kirillkom/legal-code-search/internal/infrastructure/vector/qdrant"
	"github.com/kirillkom/legal-code-search/internal/observability/metrics"
)

type App struct {
	Config config.Config
	Logger *slog.Logger

	Service     *usecase.SearchService
	Loader      *corpus.Loader
	Events      *natsevents.Publisher
	HTTPMetrics *metrics.HTTPServerMetrics
	Embeddings  *embedcache.Embedder

	closers []func()
}

// New wires the configured backends. Backends are contacted lazily, except
// pgvector whose schema is ensured here and NATS which connects eagerly.
func New(ctx context.Context, cfg config.Config, service string, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	app := &App{Config: cfg, Logger: logger}

	app.HTTPMetrics = metrics.NewHTTPServerMetrics(service)
	searchMetrics := metrics.NewSearchMetrics(service, app.HTTPMetrics.Registry())
	resilienceMetrics := metrics.NewResilienceMetrics(service, app.HTTPMetrics.Registry())

	policy := resilience.DefaultConfig()
	policy.RetryMaxAttempts = cfg.RetryMaxAttempts
	policy.BreakerEnabled = cfg.BreakerEnabled
	policy.BreakerOpenTimeout = cfg.BreakerOpenTimeout
	policy.OnBreakerStateChange = func(operation string, state resilience.BreakerState) {
		resilienceMetrics.SetBreakerState(operation, int(state))
	}
	executor := resilience.NewExecutorWithLogger(policy, logger)

	keyword, keywordIndexer, err := app.newKeywordBackend(cfg, executor)
	if err != nil {
		app.Close()
		return nil, err
	}
	vector, vectorIndexer, err := app.newVectorBackend(ctx, cfg, executor)
	if err != nil {
		app.Close()
		return nil, err
	}
	embedder, err := newEmbedder(cfg, executor)
	if err != nil {
		app.Close()
		return nil, err
	}
	// Each attempt has its own HTTP timeout; the shared call covers every retry.
	embedBudget := cfg.EmbeddingTimeout * time.Duration(max(cfg.RetryMaxAttempts, 1))
	app.Embeddings, err = embedcache.New(embedder, cfg.EmbeddingCacheSize, embedcache.WithCallTimeout(embedBudget))
	if err != nil {
		app.Close()
		return nil, err
	}
	metrics.RegisterEmbeddingCache(service, app.HTTPMetrics.Registry(), app.Embeddings.Stats, app.Embeddings.Len)

	var publisher ports.QueryEventPublisher
	if cfg.NATSURL != "" {
		events, err := natsevents.New(cfg.NATSURL, cfg.NATSSubject, natsevents.Options{
			ResilienceExecutor: executor,
			Logger:             logger,
		})
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("init query events: %w", err)
		}
		app.Events = events
		app.closers = append(app.closers, events.Close)
		publisher = events
	}

	threshold := cfg.SemanticScoreThreshold
	orchestrator := usecase.NewRetrievalOrchestrator(
		keyword,
		vector,
		app.Embeddings,
		usecase.OrchestratorConfig{
			KeywordTimeout: cfg.KeywordTimeout,
			VectorTimeout:  cfg.VectorTimeout,
			RetrieveTopN:   cfg.HybridRetrieveTopN,
			ScoreThreshold: &threshold,
		},
		searchMetrics,
		logger,
	)

	assemblerOpts := []usecase.AssemblerOption{
		usecase.WithAssemblerLogger(logger),
		usecase.WithAssemblerObserver(searchMetrics),
	}
	generator, generationModel := newGenerator(cfg, executor)
	if generator != nil {
		assemblerOpts = append(assemblerOpts, usecase.WithGenerator(generator))
	}
	assembler := usecase.NewAnswerAssembler(usecase.AssemblerConfig{
		ContextLimit: cfg.RAGContextLimit,
		MaxTokens:    cfg.RAGMaxTokens,
		Temperature:  cfg.RAGTemperature,
	}, assemblerOpts...)

	var lookup usecase.LookupChain
	for _, backend := range []any{vector, keyword} {
		if l, ok := backend.(ports.DocumentLookup); ok {
			lookup = append(lookup, l)
		}
	}

	app.Service = usecase.NewSearchService(usecase.SearchDependencies{
		Keyword:      keyword,
		Vector:       vector,
		Lookup:       lookup,
		Publisher:    publisher,
		Observer:     searchMetrics,
		Orchestrator: orchestrator,
		Fuser:        usecase.NewRankFuser(cfg.HybridRRFK),
		Assembler:    assembler,
		Logger:       logger,
	}, usecase.SearchConfig{
		DefaultLimit:       cfg.DefaultLimit,
		MaxLimit:           cfg.MaxLimit,
		FusionMethod:       domain.FusionMethod(cfg.HybridFusionMethod),
		KeywordWeight:      cfg.HybridKeywordWeight,
		SemanticWeight:     cfg.HybridSemanticWeight,
		ContextLimit:       cfg.RAGContextLimit,
		KeywordBackend:     cfg.KeywordBackend,
		VectorBackend:      cfg.VectorBackend,
		EmbeddingModel:     embeddingModel(cfg),
		EmbeddingDimension: cfg.EmbeddingDimension,
		GenerationModel:    generationModel,
	})

	app.Loader = corpus.NewLoader(
		keywordIndexer,
		vectorIndexer,
		embedder,
		chunking.NewSplitter(chunking.DefaultChunkSize, 0),
		corpus.DefaultBatchSize,
		logger,
	)
	return app, nil
}

// newKeywordBackend returns the searcher and, for the embedded bleve index,
// the indexer the loader writes to.
func (a *App) newKeywordBackend(cfg config.Config, executor *resilience.Executor) (ports.KeywordSearcher, ports.KeywordIndexer, error) {
	switch cfg.KeywordBackend {
	case "elasticsearch":
		return elasticsearch.New(cfg.ElasticsearchURL, cfg.ElasticsearchIndex, elasticsearch.WithExecutor(executor)), nil, nil
	case "meilisearch":
		return meili.New(cfg.MeilisearchURL, cfg.MeilisearchAPIKey, cfg.MeilisearchIndex, executor), nil, nil
	case "bleve":
		var (
			idx *bleveidx.Index
			err error
		)
		if cfg.BlevePath == "" {
			idx, err = bleveidx.NewMemOnly()
		} else {
			idx, err = bleveidx.Open(cfg.BlevePath)
		}
		if err != nil {
			return nil, nil, fmt.Errorf("init bleve index: %w", err)
		}
		a.closers = append(a.closers, func() { _ = idx.Close() })
		return idx, idx, nil
	default:
		return nil, nil, fmt.Errorf("unknown keyword backend %q", cfg.KeywordBackend)
	}
}

func (a *App) newVectorBackend(ctx context.Context, cfg config.Config, executor *resilience.Executor) (ports.VectorSearcher, ports.VectorIndexer, error) {
	switch cfg.VectorBackend {
	case "qdrant":
		return qdrant.New(cfg.QdrantURL, cfg.QdrantCollection, qdrant.WithExecutor(executor)), nil, nil
	case "pgvector":
		db, err := postgres.OpenDB(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres: %w", err)
		}
		a.closers = append(a.closers, func() { _ = db.Close() })
		repo := postgres.NewVectorRepository(db, cfg.PgvectorTable, cfg.EmbeddingDimension)
		if err := repo.EnsureSchema(ctx); err != nil {
			return nil, nil, fmt.Errorf("ensure pgvector schema: %w", err)
		}
		return repo, repo, nil
	default:
		return nil, nil, fmt.Errorf("unknown vector backend %q", cfg.VectorBackend)
	}
}

func newEmbedder(cfg config.Config, executor *resilience.Executor) (ports.Embedder, error) {
	switch cfg.EmbeddingProvider {
	case "ollama":
		client := ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel,
			ollama.WithTimeout(cfg.EmbeddingTimeout),
			ollama.WithExecutor(executor),
		)
		return ollama.NewEmbedder(client, cfg.EmbeddingDimension), nil
	case "openai":
		client := openaicompat.New(openaicompat.Config{
			BaseURL:    cfg.OpenAIBaseURL,
			APIKey:     cfg.OpenAIAPIKey,
			ChatModel:  cfg.OpenAIChatModel,
			EmbedModel: cfg.OpenAIEmbedModel,
			Timeout:    cfg.EmbeddingTimeout,
		}, executor)
		return openaicompat.NewEmbedder(client, cfg.EmbeddingDimension), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.EmbeddingProvider)
	}
}

// newGenerator returns nil when generation is disabled, which makes the
// assembler answer with the template summary.
func newGenerator(cfg config.Config, executor *resilience.Executor) (ports.AnswerGenerator, string) {
	switch cfg.GenerationProvider {
	case "ollama":
		client := ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel,
			ollama.WithTimeout(cfg.GenerationTimeout),
			ollama.WithExecutor(executor),
		)
		return ollama.NewGenerator(client), cfg.OllamaGenModel
	case "openai":
		client := openaicompat.New(openaicompat.Config{
			BaseURL:    cfg.OpenAIBaseURL,
			APIKey:     cfg.OpenAIAPIKey,
			ChatModel:  cfg.OpenAIChatModel,
			EmbedModel: cfg.OpenAIEmbedModel,
			Timeout:    cfg.GenerationTimeout,
		}, executor)
		return openaicompat.NewGenerator(client), cfg.OpenAIChatModel
	default:
		return nil, ""
	}
}

func embeddingModel(cfg config.Config) string {
	if cfg.EmbeddingProvider == "openai" {
		return cfg.OpenAIEmbedModel
	}
	return cfg.OllamaEmbedModel
}

// Close releases backends in reverse order of creation.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
