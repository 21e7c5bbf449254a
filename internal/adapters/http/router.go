package httpadapter

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/legal-code-search/internal/core/domain"
	"github.com/kirillkom/legal-code-search/internal/core/ports"
	"github.com/kirillkom/legal-code-search/internal/observability/metrics"
)

const maxRequestBodyBytes = 64 << 10

type RouterConfig struct {
	Service          string
	RateLimitRPS     float64
	RateLimitBurst   int
	MaxInFlight      int
	BackpressureWait time.Duration
}

type Router struct {
	svc     ports.SearchService
	cfg     RouterConfig
	metrics *metrics.HTTPServerMetrics
	logger  *slog.Logger
}

// NewRouter serves the search API. httpMetrics may be nil, in which case
// /metrics is not mounted.
func NewRouter(
	svc ports.SearchService,
	cfg RouterConfig,
	httpMetrics *metrics.HTTPServerMetrics,
	logger *slog.Logger,
) *Router {
	if cfg.Service == "" {
		cfg.Service = "api"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{svc: svc, cfg: cfg, metrics: httpMetrics, logger: logger}
}

func (rt *Router) Handler() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("POST /v1/search", rt.search)
	api.HandleFunc("POST /v1/search/keyword", rt.searchWithMode(domain.ModeKeyword))
	api.HandleFunc("POST /v1/search/semantic", rt.searchWithMode(domain.ModeVector))
	api.HandleFunc("POST /v1/search/hybrid", rt.searchWithMode(domain.ModeHybrid))
	api.HandleFunc("POST /v1/intelligent/search", rt.intelligentSearch)
	api.HandleFunc("GET /v1/intelligent/classify", rt.classify)
	api.HandleFunc("GET /v1/documents/{id}", rt.getDocument)

	var limited http.Handler = api
	if rt.cfg.MaxInFlight > 0 {
		limited = newBackpressureGate(rt.cfg.MaxInFlight, rt.cfg.BackpressureWait, rt.recordRejected).wrap(limited)
	}
	if rt.cfg.RateLimitRPS > 0 {
		limited = newRateLimiter(rt.cfg.RateLimitRPS, rt.cfg.RateLimitBurst, rt.recordRejected).wrap(limited)
	}

	root := http.NewServeMux()
	root.HandleFunc("GET /healthz", rt.healthz)
	root.HandleFunc("GET /health", rt.health)
	root.Handle("/v1/", limited)

	var handler http.Handler = root
	if rt.metrics != nil {
		root.Handle("GET /metrics", rt.metrics.Handler())
		handler = rt.metrics.Middleware(rt.cfg.Service, handler)
	}
	return requestIDMiddleware(accessLogMiddleware(rt.logger, handler))
}

func (rt *Router) recordRejected(reason string) {
	if rt.metrics != nil {
		rt.metrics.RecordRejected(rt.cfg.Service, reason)
	}
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, rt.svc.Health(r.Context()))
}

type filtersPayload struct {
	Code              string `json:"code"`
	StatuteCode       string `json:"statute_code"`
	Title             string `json:"title"`
	EffectiveDateFrom string `json:"effective_date_from"`
	EffectiveDateTo   string `json:"effective_date_to"`
}

func (p *filtersPayload) toDomain() (domain.SearchFilters, error) {
	if p == nil {
		return domain.SearchFilters{}, nil
	}
	from, err := parseDate(p.EffectiveDateFrom)
	if err != nil {
		return domain.SearchFilters{}, err
	}
	to, err := parseDate(p.EffectiveDateTo)
	if err != nil {
		return domain.SearchFilters{}, err
	}
	if from != nil && to != nil && to.Before(*from) {
		return domain.SearchFilters{}, domain.WrapError(
			domain.ErrInvalidInput, "parse filters", fmt.Errorf("effective_date_to is before effective_date_from"),
		)
	}
	return domain.SearchFilters{
		Code:          strings.ToUpper(strings.TrimSpace(p.Code)),
		StatuteCode:   strings.TrimSpace(p.StatuteCode),
		TitleContains: strings.TrimSpace(p.Title),
		DateFrom:      from,
		DateTo:        to,
	}, nil
}

// parseDate accepts a calendar date or an RFC 3339 timestamp.
func parseDate(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	for _, layout := range []string{time.DateOnly, time.RFC3339} {
		if t, err := time.Parse(layout, raw); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, domain.WrapError(domain.ErrInvalidInput, "parse date", fmt.Errorf("invalid date %q", raw))
}

type searchPayload struct {
	Query          string          `json:"query"`
	Mode           string          `json:"mode"`
	Limit          int             `json:"limit"`
	Offset         int             `json:"offset"`
	FusionMethod   string          `json:"fusion_method"`
	KeywordWeight  *float64        `json:"keyword_weight"`
	SemanticWeight *float64        `json:"semantic_weight"`
	ScoreThreshold *float64        `json:"score_threshold"`
	Filters        *filtersPayload `json:"filters"`
}

func (p searchPayload) toRequest(mode domain.SearchMode) (ports.SearchRequest, error) {
	filters, err := p.Filters.toDomain()
	if err != nil {
		return ports.SearchRequest{}, err
	}
	req := ports.SearchRequest{
		Query:          p.Query,
		Limit:          p.Limit,
		Offset:         p.Offset,
		Filters:        filters,
		Mode:           mode,
		KeywordWeight:  p.KeywordWeight,
		SemanticWeight: p.SemanticWeight,
		ScoreThreshold: p.ScoreThreshold,
	}
	if req.Mode == "" {
		req.Mode, err = domain.ParseSearchMode(p.Mode)
		if err != nil {
			return ports.SearchRequest{}, err
		}
	}
	if strings.TrimSpace(p.FusionMethod) != "" {
		req.FusionMethod, err = domain.ParseFusionMethod(p.FusionMethod)
		if err != nil {
			return ports.SearchRequest{}, err
		}
	}
	// Without an explicit method only the ranges are checked here; the
	// service checks the sum against the configured method.
	if p.KeywordWeight != nil || p.SemanticWeight != nil {
		if _, _, err := domain.ResolveFusionWeights(req.FusionMethod, p.KeywordWeight, p.SemanticWeight, 0, 0); err != nil {
			return ports.SearchRequest{}, err
		}
	}
	if err := domain.ValidateScoreThreshold(p.ScoreThreshold); err != nil {
		return ports.SearchRequest{}, err
	}
	return req, nil
}

func (rt *Router) search(w http.ResponseWriter, r *http.Request) {
	rt.runSearch(w, r, "")
}

func (rt *Router) searchWithMode(mode domain.SearchMode) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rt.runSearch(w, r, mode)
	}
}

func (rt *Router) runSearch(w http.ResponseWriter, r *http.Request, mode domain.SearchMode) {
	var payload searchPayload
	if err := decodeJSONBody(w, r, &payload); err != nil {
		writeError(w, r, err)
		return
	}
	req, err := payload.toRequest(mode)
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp, err := rt.svc.Search(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type intelligentSearchPayload struct {
	Query     string          `json:"query"`
	Limit     int             `json:"limit"`
	ForceMode string          `json:"force_mode"`
	Filters   *filtersPayload `json:"filters"`
}

func (rt *Router) intelligentSearch(w http.ResponseWriter, r *http.Request) {
	var payload intelligentSearchPayload
	if err := decodeJSONBody(w, r, &payload); err != nil {
		writeError(w, r, err)
		return
	}
	filters, err := payload.Filters.toDomain()
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp, err := rt.svc.Answer(r.Context(), ports.AnswerRequest{
		Query:     payload.Query,
		Limit:     payload.Limit,
		ForceMode: parseForceMode(payload.ForceMode),
		Filters:   filters,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (rt *Router) classify(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("query")
	decision, err := rt.svc.Classify(query, parseForceMode(r.URL.Query().Get("force_mode")))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"query":          strings.TrimSpace(query),
		"classification": decision,
	})
}

func (rt *Router) getDocument(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "document id is required"})
		return
	}

	doc, err := rt.svc.GetDocument(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func parseForceMode(raw string) domain.QueryLabel {
	return domain.QueryLabel(strings.ToUpper(strings.TrimSpace(raw)))
}

func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any) error {
	body := http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return domain.WrapError(domain.ErrInvalidInput, "decode request", fmt.Errorf("request body is empty"))
		}
		return domain.WrapError(domain.ErrInvalidInput, "decode request", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
