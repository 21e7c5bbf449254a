package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/legal-code-search/internal/core/domain"
	"github.com/kirillkom/legal-code-search/internal/core/ports"
)

const (
	DefaultSearchLimit = 10
	MaxSearchLimit     = 100

	SearchModeKeyword = "keyword"
	SearchModeRAG     = "rag"

	eventPublishTimeout = 2 * time.Second
	healthProbeTimeout  = 3 * time.Second
)

type SearchConfig struct {
	DefaultLimit   int
	MaxLimit       int
	FusionMethod   domain.FusionMethod
	KeywordWeight  float64
	SemanticWeight float64
	ContextLimit   int

	KeywordBackend     string
	VectorBackend      string
	EmbeddingModel     string
	EmbeddingDimension int
	GenerationModel    string
}

func (c SearchConfig) normalize() SearchConfig {
	out := c
	if out.DefaultLimit <= 0 {
		out.DefaultLimit = DefaultSearchLimit
	}
	if out.MaxLimit <= 0 {
		out.MaxLimit = MaxSearchLimit
	}
	if out.FusionMethod == "" {
		out.FusionMethod = domain.FusionRRF
	}
	if out.ContextLimit <= 0 {
		out.ContextLimit = DefaultContextLimit
	}
	return out
}

type SearchDependencies struct {
	Keyword      ports.KeywordSearcher
	Vector       ports.VectorSearcher
	Lookup       ports.DocumentLookup
	Publisher    ports.QueryEventPublisher
	Observer     ports.SearchObserver
	Classifier   *QueryClassifier
	Orchestrator *RetrievalOrchestrator
	Fuser        RankFuser
	Assembler    *AnswerAssembler
	Logger       *slog.Logger
}

// SearchService exposes classification, search and answering over the
// configured backends. It keeps no per-query state between calls.
type SearchService struct {
	deps SearchDependencies
	cfg  SearchConfig
	now  func() time.Time
}

func NewSearchService(deps SearchDependencies, cfg SearchConfig) *SearchService {
	if deps.Classifier == nil {
		deps.Classifier = NewQueryClassifier()
	}
	if deps.Observer == nil {
		deps.Observer = ports.NoopSearchObserver{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Fuser.rrfK == 0 {
		deps.Fuser = NewRankFuser(DefaultRRFK)
	}
	if deps.Orchestrator == nil {
		deps.Orchestrator = NewRetrievalOrchestrator(
			deps.Keyword, deps.Vector, nil, OrchestratorConfig{}, deps.Observer, deps.Logger,
		)
	}
	if deps.Assembler == nil {
		deps.Assembler = NewAnswerAssembler(AssemblerConfig{}, WithAssemblerLogger(deps.Logger))
	}
	return &SearchService{deps: deps, cfg: cfg.normalize(), now: time.Now}
}

var _ ports.SearchService = (*SearchService)(nil)

func (s *SearchService) Classify(query string, forceMode domain.QueryLabel) (domain.ClassificationDecision, error) {
	decision, err := s.deps.Classifier.ClassifyWithOverride(query, forceMode)
	if err != nil {
		return domain.ClassificationDecision{}, err
	}
	s.deps.Observer.ObserveClassification(decision)
	return decision, nil
}

func (s *SearchService) Search(ctx context.Context, req ports.SearchRequest) (*ports.SearchResponse, error) {
	start := s.now()

	query, err := s.deps.Classifier.ValidateQuery(req.Query)
	if err != nil {
		return nil, err
	}
	limit, err := s.resolveLimit(req.Limit)
	if err != nil {
		return nil, err
	}
	if req.Offset < 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "search", fmt.Errorf("offset must be >= 0"))
	}
	mode := req.Mode
	if mode == "" {
		mode = domain.ModeAuto
	}
	method := req.FusionMethod
	if method == "" {
		method = s.cfg.FusionMethod
	}
	keywordWeight, semanticWeight, err := domain.ResolveFusionWeights(
		method, req.KeywordWeight, req.SemanticWeight, s.cfg.KeywordWeight, s.cfg.SemanticWeight,
	)
	if err != nil {
		return nil, err
	}
	if err := domain.ValidateScoreThreshold(req.ScoreThreshold); err != nil {
		return nil, err
	}

	var decision domain.ClassificationDecision
	if mode == domain.ModeAuto {
		decision, err = s.Classify(query, "")
		if err != nil {
			return nil, err
		}
	}

	retrieval, err := s.deps.Orchestrator.Retrieve(ctx, RetrievalRequest{
		Query:          query,
		Decision:       decision,
		Mode:           mode,
		Limit:          limit,
		Offset:         req.Offset,
		Filters:        req.Filters,
		ScoreThreshold: req.ScoreThreshold,
	})
	if err != nil {
		return nil, err
	}

	weights := fusionWeights{keyword: keywordWeight, semantic: semanticWeight}
	results, total, err := s.combine(retrieval, method, weights, req.Offset, limit)
	if err != nil {
		return nil, err
	}

	degraded := retrieval.DegradedSources()
	s.deps.Observer.ObserveSearch(mode, len(results), degraded)

	resp := &ports.SearchResponse{
		Query:               query,
		Mode:                mode,
		Results:             results,
		Total:               total,
		Returned:            len(results),
		Offset:              req.Offset,
		Limit:               limit,
		QueryTimeMs:         elapsedMs(start, s.now()),
		ContributingSources: contributingSources(results),
		DegradedSources:     degraded,
	}
	if len(retrieval.Called) > 1 {
		resp.FusionMethod = method
	}
	s.publish(ctx, domain.QueryEvent{
		Query:           query,
		Label:           decision.Label,
		Mode:            mode,
		ResultCount:     len(results),
		DegradedSources: degraded,
		DurationMs:      resp.QueryTimeMs,
	})
	return resp, nil
}

func (s *SearchService) Answer(ctx context.Context, req ports.AnswerRequest) (*ports.AnswerResponse, error) {
	start := s.now()

	limit, err := s.resolveLimit(req.Limit)
	if err != nil {
		return nil, err
	}
	decision, err := s.Classify(req.Query, req.ForceMode)
	if err != nil {
		return nil, err
	}
	query, _ := s.deps.Classifier.ValidateQuery(req.Query)

	retrieval, err := s.deps.Orchestrator.Retrieve(ctx, RetrievalRequest{
		Query:    query,
		Decision: decision,
		Mode:     domain.ModeAuto,
		Limit:    limit,
		Filters:  req.Filters,
	})
	if err != nil {
		return nil, err
	}

	weights := fusionWeights{keyword: s.cfg.KeywordWeight, semantic: s.cfg.SemanticWeight}
	results, total, err := s.combine(retrieval, s.cfg.FusionMethod, weights, 0, limit)
	if err != nil {
		return nil, err
	}

	resp := &ports.AnswerResponse{
		Query:           query,
		Classification:  decision,
		SearchMode:      SearchModeKeyword,
		Results:         results,
		Total:           total,
		DegradedSources: retrieval.DegradedSources(),
	}
	event := domain.QueryEvent{
		Query:           query,
		Label:           decision.Label,
		Mode:            domain.ModeAuto,
		ResultCount:     len(results),
		DegradedSources: resp.DegradedSources,
	}
	if !decision.IsSimple() {
		rag := s.deps.Assembler.Assemble(ctx, query, results, s.cfg.ContextLimit)
		resp.SearchMode = SearchModeRAG
		resp.RAGContext = &rag
		event.GenerationUsed = string(rag.GenerationMethod)
	}
	resp.QueryTimeMs = elapsedMs(start, s.now())
	event.DurationMs = resp.QueryTimeMs

	s.deps.Observer.ObserveSearch(domain.ModeAuto, len(results), resp.DegradedSources)
	s.publish(ctx, event)
	return resp, nil
}

func (s *SearchService) GetDocument(ctx context.Context, documentID string) (*domain.RetrievedDocument, error) {
	if documentID == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "get document", fmt.Errorf("document id is empty"))
	}
	if s.deps.Lookup == nil {
		return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document", fmt.Errorf("no document lookup configured"))
	}
	doc, err := s.deps.Lookup.Lookup(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("lookup document: %w", err)
	}
	if doc == nil {
		return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document", fmt.Errorf("id %s", documentID))
	}
	return doc, nil
}

func (s *SearchService) Health(ctx context.Context) domain.HealthReport {
	ctx, cancel := context.WithTimeout(ctx, healthProbeTimeout)
	defer cancel()

	report := domain.HealthReport{
		Embedding: domain.EmbeddingHealth{
			Loaded:    s.cfg.EmbeddingModel != "",
			Model:     s.cfg.EmbeddingModel,
			Dimension: s.cfg.EmbeddingDimension,
		},
		Generation: domain.GenerationHealth{
			Configured: s.deps.Assembler.GenerationEnabled(),
			Model:      s.cfg.GenerationModel,
		},
		CheckedAt: s.now().UTC(),
	}

	if kw := s.deps.Keyword; kw != nil {
		report.Keyword.Backend = s.cfg.KeywordBackend
		report.Keyword.Index = kw.IndexName()
		report.Keyword.Connected = kw.Health(ctx)
		if report.Keyword.Connected {
			count, err := kw.DocumentCount(ctx)
			if err != nil {
				report.Keyword.Error = err.Error()
			}
			report.Keyword.DocumentCount = count
		}
	}
	if vec := s.deps.Vector; vec != nil {
		report.Vector.Backend = s.cfg.VectorBackend
		report.Vector.Collection = vec.CollectionName()
		report.Vector.Connected = vec.Health(ctx)
		if report.Vector.Connected {
			count, err := vec.PointCount(ctx)
			if err != nil {
				report.Vector.Error = err.Error()
			}
			report.Vector.PointCount = count
		}
	}

	report.Status = domain.HealthHealthy
	if !report.Keyword.Connected || !report.Vector.Connected {
		report.Status = domain.HealthDegraded
	}
	return report
}

// combine turns a retrieval into the visible page. A single called backend is
// passed through with its own scores and total; several are fused.
func (s *SearchService) combine(
	retrieval *Retrieval,
	method domain.FusionMethod,
	weights fusionWeights,
	offset int,
	limit int,
) ([]domain.FusedResult, int, error) {
	lists := retrieval.SucceededLists()
	if len(retrieval.Called) == 1 {
		if len(lists) == 0 {
			return []domain.FusedResult{}, 0, nil
		}
		results := singleSource(lists[0])
		return Paginate(results, 0, limit), lists[0].Total, nil
	}

	fused, err := s.deps.Fuser.Fuse(lists, method, weights.forLists(lists))
	if err != nil {
		return nil, 0, err
	}
	return Paginate(fused, offset, limit), len(fused), nil
}

type fusionWeights struct {
	keyword  float64
	semantic float64
}

// forLists aligns the weights with the order of the fused lists.
func (w fusionWeights) forLists(lists []domain.RankedList) []float64 {
	out := make([]float64, len(lists))
	for i, list := range lists {
		switch list.Source {
		case domain.SourceKeyword:
			out[i] = w.keyword
		case domain.SourceVector:
			out[i] = w.semantic
		}
	}
	return out
}

func (s *SearchService) resolveLimit(limit int) (int, error) {
	if limit == 0 {
		return s.cfg.DefaultLimit, nil
	}
	if limit < 0 || limit > s.cfg.MaxLimit {
		return 0, domain.WrapError(
			domain.ErrInvalidInput,
			"search",
			fmt.Errorf("limit must be between 1 and %d", s.cfg.MaxLimit),
		)
	}
	return limit, nil
}

func (s *SearchService) publish(ctx context.Context, event domain.QueryEvent) {
	if s.deps.Publisher == nil {
		return
	}
	event.OccurredAt = s.now().UTC()
	event.RequestID = ports.RequestIDFromContext(ctx)
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), eventPublishTimeout)
	defer cancel()
	if err := s.deps.Publisher.PublishQueryEvent(pubCtx, event); err != nil {
		s.deps.Logger.Warn("query_event_publish_failed", "query", event.Query, "error", err)
	}
}

func contributingSources(results []domain.FusedResult) []domain.Source {
	out := make([]domain.Source, 0, 2)
	for _, r := range results {
		for _, src := range r.ContributingSources {
			out = appendSource(out, src)
		}
	}
	return out
}

func elapsedMs(start, end time.Time) float64 {
	return float64(end.Sub(start).Microseconds()) / 1000.0
}
