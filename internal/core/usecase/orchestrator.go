package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/legal-code-search/internal/core/domain"
	"github.com/kirillkom/legal-code-search/internal/core/ports"
)

const (
	DefaultRetrieveTopN   = 50
	DefaultBackendTimeout = 10 * time.Second
)

var DefaultKeywordFields = []string{"title^3", "section^2", "content"}

type OrchestratorConfig struct {
	KeywordTimeout time.Duration
	VectorTimeout  time.Duration
	RetrieveTopN   int
	ScoreThreshold *float64
	KeywordFields  []string
	Fuzziness      string
}

func (c OrchestratorConfig) normalize() OrchestratorConfig {
	out := c
	if out.KeywordTimeout <= 0 {
		out.KeywordTimeout = DefaultBackendTimeout
	}
	if out.VectorTimeout <= 0 {
		out.VectorTimeout = DefaultBackendTimeout
	}
	if out.RetrieveTopN <= 0 {
		out.RetrieveTopN = DefaultRetrieveTopN
	}
	if len(out.KeywordFields) == 0 {
		out.KeywordFields = DefaultKeywordFields
	}
	if out.Fuzziness == "" {
		out.Fuzziness = "AUTO"
	}
	return out
}

// RetrievalRequest describes one query's fan-out. Limit and Offset are
// forwarded to backends as-is for single-backend plans; multi-backend plans
// fetch the wider retrieve-top-N window from offset zero.
type RetrievalRequest struct {
	Query    string
	Decision domain.ClassificationDecision
	Mode     domain.SearchMode
	Limit    int
	Offset   int
	Filters  domain.SearchFilters
	// ScoreThreshold overrides the configured vector threshold when set.
	ScoreThreshold *float64
}

// Retrieval holds the lists that came back, primary backend first, plus the
// backends that failed.
type Retrieval struct {
	Lists  []domain.RankedList
	Failed map[domain.Source]error
	Called []domain.Source
}

func (r *Retrieval) DegradedSources() []domain.Source {
	out := make([]domain.Source, 0, len(r.Failed))
	for _, src := range r.Called {
		if _, failed := r.Failed[src]; failed {
			out = append(out, src)
		}
	}
	return out
}

// SucceededLists returns the lists of the backends that answered.
func (r *Retrieval) SucceededLists() []domain.RankedList {
	out := make([]domain.RankedList, 0, len(r.Lists))
	for _, list := range r.Lists {
		if _, failed := r.Failed[list.Source]; !failed {
			out = append(out, list)
		}
	}
	return out
}

type RetrievalOrchestrator struct {
	keyword  ports.KeywordSearcher
	vector   ports.VectorSearcher
	embedder ports.Embedder
	observer ports.SearchObserver
	logger   *slog.Logger
	cfg      OrchestratorConfig
}

func NewRetrievalOrchestrator(
	keyword ports.KeywordSearcher,
	vector ports.VectorSearcher,
	embedder ports.Embedder,
	cfg OrchestratorConfig,
	observer ports.SearchObserver,
	logger *slog.Logger,
) *RetrievalOrchestrator {
	if observer == nil {
		observer = ports.NoopSearchObserver{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RetrievalOrchestrator{
		keyword:  keyword,
		vector:   vector,
		embedder: embedder,
		observer: observer,
		logger:   logger,
		cfg:      cfg.normalize(),
	}
}

type backendCall struct {
	source    domain.Source
	limit     int
	offset    int
	filters   domain.SearchFilters
	exact     bool
	threshold *float64
}

func (o *RetrievalOrchestrator) threshold(req RetrievalRequest) *float64 {
	if req.ScoreThreshold != nil {
		return req.ScoreThreshold
	}
	return o.cfg.ScoreThreshold
}

// plan returns the backends a request will call, primary first.
func (o *RetrievalOrchestrator) plan(req RetrievalRequest) []backendCall {
	wide := o.cfg.RetrieveTopN
	if need := req.Limit + req.Offset; need > wide {
		wide = need
	}

	switch req.Mode {
	case domain.ModeKeyword:
		return []backendCall{{source: domain.SourceKeyword, limit: req.Limit, offset: req.Offset, filters: req.Filters}}
	case domain.ModeVector:
		return []backendCall{{source: domain.SourceVector, limit: req.Limit, offset: req.Offset, filters: req.Filters}}
	case domain.ModeHybrid:
		return []backendCall{
			{source: domain.SourceKeyword, limit: wide, filters: req.Filters},
			{source: domain.SourceVector, limit: wide, filters: req.Filters},
		}
	}

	if req.Decision.IsSimple() {
		filters := req.Filters
		if filters.Code == "" {
			filters.Code = req.Decision.ExtractedCodeFilter
		}
		return []backendCall{{
			source:  domain.SourceKeyword,
			limit:   req.Limit,
			offset:  req.Offset,
			filters: filters,
			exact:   true,
		}}
	}
	return []backendCall{
		{source: domain.SourceVector, limit: wide, filters: req.Filters},
		{source: domain.SourceKeyword, limit: wide, filters: req.Filters},
	}
}

// Retrieve calls the planned backends concurrently. Each call gets its own
// deadline derived from ctx, so one backend timing out never cancels the
// other. Failures are absorbed unless every called backend failed.
func (o *RetrievalOrchestrator) Retrieve(ctx context.Context, req RetrievalRequest) (*Retrieval, error) {
	calls := o.plan(req)
	for i := range calls {
		calls[i].threshold = o.threshold(req)
	}
	lists := make([]domain.RankedList, len(calls))
	errs := make([]error, len(calls))

	var g errgroup.Group
	for i, call := range calls {
		g.Go(func() error {
			start := time.Now()
			list, err := o.call(ctx, req.Query, call)
			o.observer.ObserveBackendCall(call.source, time.Since(start), err)
			if err != nil {
				o.logger.Warn("retrieval_backend_failed",
					"backend", string(call.source),
					"query", req.Query,
					"duration_ms", float64(time.Since(start).Microseconds())/1000.0,
					"error", err,
				)
				list = domain.RankedList{Source: call.source, Query: req.Query}
			}
			lists[i] = list
			errs[i] = err
			return nil
		})
	}
	_ = g.Wait()

	out := &Retrieval{
		Lists:  lists,
		Failed: make(map[domain.Source]error),
		Called: make([]domain.Source, 0, len(calls)),
	}
	var failures []error
	for i, call := range calls {
		out.Called = append(out.Called, call.source)
		if errs[i] != nil {
			out.Failed[call.source] = domain.WrapError(domain.ErrBackendUnavailable, string(call.source), errs[i])
			failures = append(failures, out.Failed[call.source])
		}
	}

	if len(failures) == len(calls) {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("retrieve: %w", err)
		}
		return nil, domain.WrapError(domain.ErrAllBackendsUnavailable, "retrieve", errors.Join(failures...))
	}
	return out, nil
}

func (o *RetrievalOrchestrator) call(ctx context.Context, query string, call backendCall) (domain.RankedList, error) {
	switch call.source {
	case domain.SourceKeyword:
		return o.searchKeyword(ctx, query, call)
	case domain.SourceVector:
		return o.searchVector(ctx, query, call)
	default:
		return domain.RankedList{}, fmt.Errorf("unknown backend %q", call.source)
	}
}

func (o *RetrievalOrchestrator) searchKeyword(ctx context.Context, query string, call backendCall) (domain.RankedList, error) {
	if o.keyword == nil {
		return domain.RankedList{}, fmt.Errorf("keyword backend is not configured")
	}
	callCtx, cancel := context.WithTimeout(ctx, o.cfg.KeywordTimeout)
	defer cancel()

	docs, total, err := o.keyword.Search(callCtx, ports.KeywordQuery{
		Text:       query,
		Limit:      call.limit,
		Offset:     call.offset,
		Fields:     o.cfg.KeywordFields,
		Filters:    call.filters,
		Fuzziness:  o.cfg.Fuzziness,
		BoostExact: call.exact,
	})
	if err != nil {
		return domain.RankedList{}, fmt.Errorf("keyword search: %w", err)
	}
	return domain.RankedList{
		Source:    domain.SourceKeyword,
		Query:     query,
		Documents: tagSource(docs, domain.SourceKeyword),
		Total:     total,
	}, nil
}

func (o *RetrievalOrchestrator) searchVector(ctx context.Context, query string, call backendCall) (domain.RankedList, error) {
	if o.vector == nil || o.embedder == nil {
		return domain.RankedList{}, fmt.Errorf("vector backend is not configured")
	}
	callCtx, cancel := context.WithTimeout(ctx, o.cfg.VectorTimeout)
	defer cancel()

	vector, err := o.embedder.EmbedQuery(callCtx, query)
	if err != nil {
		return domain.RankedList{}, fmt.Errorf("embed query: %w", err)
	}
	docs, err := o.vector.Search(callCtx, ports.VectorQuery{
		Vector:         vector,
		Limit:          call.limit,
		Offset:         call.offset,
		Filters:        call.filters,
		ScoreThreshold: call.threshold,
	})
	if err != nil {
		return domain.RankedList{}, fmt.Errorf("vector search: %w", err)
	}
	return domain.RankedList{
		Source:    domain.SourceVector,
		Query:     query,
		Documents: tagSource(docs, domain.SourceVector),
		Total:     len(docs),
	}, nil
}

func tagSource(docs []domain.RetrievedDocument, src domain.Source) []domain.RetrievedDocument {
	for i := range docs {
		docs[i].Source = src
	}
	return docs
}
