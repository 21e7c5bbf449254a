package httpadapter

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/legal-code-search/internal/core/domain"
	"github.com/kirillkom/legal-code-search/internal/core/ports"
	"github.com/kirillkom/legal-code-search/internal/observability/metrics"
)

func postJSON(t *testing.T, handler http.Handler, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	return res
}

func TestSearchEndpointsPinMode(t *testing.T) {
	cases := map[string]domain.SearchMode{
		"/v1/search/keyword":  domain.ModeKeyword,
		"/v1/search/semantic": domain.ModeVector,
		"/v1/search/hybrid":   domain.ModeHybrid,
	}
	for path, want := range cases {
		svc := &searchServiceFake{}
		handler := NewRouter(svc, RouterConfig{}, nil, nil).Handler()

		res := postJSON(t, handler, path, map[string]any{"query": "custody", "mode": "keyword"})
		if res.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d: %s", path, res.Code, res.Body.String())
		}
		if len(svc.searchReqs) != 1 || svc.searchReqs[0].Mode != want {
			t.Fatalf("%s: expected mode %s, got %+v", path, want, svc.searchReqs)
		}
	}
}

func TestSearchParsesModeFiltersAndFusion(t *testing.T) {
	svc := &searchServiceFake{}
	handler := NewRouter(svc, RouterConfig{}, nil, nil).Handler()

	res := postJSON(t, handler, "/v1/search", map[string]any{
		"query":         "child custody",
		"mode":          "semantic",
		"limit":         5,
		"offset":        10,
		"fusion_method": "Weighted",
		"filters": map[string]any{
			"code":                "fam",
			"effective_date_from": "2020-01-01",
			"effective_date_to":   "2024-06-30T00:00:00Z",
		},
	})
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}

	got := svc.searchReqs[0]
	if got.Mode != domain.ModeVector || got.FusionMethod != domain.FusionWeighted {
		t.Fatalf("unexpected mode/method: %+v", got)
	}
	if got.Limit != 5 || got.Offset != 10 {
		t.Fatalf("unexpected paging: %+v", got)
	}
	if got.Filters.Code != "FAM" {
		t.Fatalf("expected upper-cased code filter, got %q", got.Filters.Code)
	}
	if got.Filters.DateFrom == nil || !got.Filters.DateFrom.Equal(time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected date from: %v", got.Filters.DateFrom)
	}
	if got.Filters.DateTo == nil || got.Filters.DateTo.Month() != time.June {
		t.Fatalf("unexpected date to: %v", got.Filters.DateTo)
	}
}

func TestSearchRejectsBadModeAndDates(t *testing.T) {
	handler := NewRouter(&searchServiceFake{}, RouterConfig{}, nil, nil).Handler()

	cases := []map[string]any{
		{"query": "theft", "mode": "fulltext"},
		{"query": "theft", "fusion_method": "borda"},
		{"query": "theft", "filters": map[string]any{"effective_date_from": "01/02/2020"}},
		{"query": "theft", "filters": map[string]any{"effective_date_from": "2024-01-01", "effective_date_to": "2020-01-01"}},
	}
	for _, payload := range cases {
		res := postJSON(t, handler, "/v1/search", payload)
		if res.Code != http.StatusBadRequest {
			t.Fatalf("payload %v: expected 400, got %d", payload, res.Code)
		}
	}
}

func TestHybridSearchForwardsFusionWeights(t *testing.T) {
	svc := &searchServiceFake{}
	handler := NewRouter(svc, RouterConfig{}, nil, nil).Handler()

	res := postJSON(t, handler, "/v1/search/hybrid", map[string]any{
		"query":           "penalties for theft",
		"fusion_method":   "weighted",
		"keyword_weight":  0.8,
		"semantic_weight": 0.2,
	})
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	got := svc.searchReqs[0]
	if got.KeywordWeight == nil || *got.KeywordWeight != 0.8 || got.SemanticWeight == nil || *got.SemanticWeight != 0.2 {
		t.Fatalf("weights not forwarded: %+v", got)
	}
}

func TestHybridSearchRejectsInvalidWeights(t *testing.T) {
	cases := map[string]map[string]any{
		"weighted sum":   {"fusion_method": "weighted", "keyword_weight": 0.8, "semantic_weight": 0.8},
		"out of range":   {"keyword_weight": 1.2},
		"negative":       {"fusion_method": "rrf", "semantic_weight": -0.5, "keyword_weight": 0.5},
		"low threshold":  {"score_threshold": -0.1},
		"high threshold": {"score_threshold": 1.1},
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			svc := &searchServiceFake{}
			handler := NewRouter(svc, RouterConfig{}, nil, nil).Handler()
			payload["query"] = "penalties for theft"

			res := postJSON(t, handler, "/v1/search/hybrid", payload)
			if res.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", res.Code, res.Body.String())
			}
			if len(svc.searchReqs) != 0 {
				t.Fatalf("service should not be called, got %+v", svc.searchReqs)
			}
		})
	}
}

func TestSemanticSearchForwardsScoreThreshold(t *testing.T) {
	svc := &searchServiceFake{}
	handler := NewRouter(svc, RouterConfig{}, nil, nil).Handler()

	res := postJSON(t, handler, "/v1/search/semantic", map[string]any{
		"query":           "penalties for theft",
		"score_threshold": 0.65,
	})
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	got := svc.searchReqs[0]
	if got.Mode != domain.ModeVector || got.ScoreThreshold == nil || *got.ScoreThreshold != 0.65 {
		t.Fatalf("threshold not forwarded: %+v", got)
	}
}

func TestIntelligentSearchForwardsForceMode(t *testing.T) {
	svc := &searchServiceFake{answer: &ports.AnswerResponse{
		Query:      "grounds for divorce",
		SearchMode: "rag",
		RAGContext: &domain.RAGContext{Summary: "FAM §2310", GenerationMethod: domain.GenerationTemplate},
	}}
	handler := NewRouter(svc, RouterConfig{}, nil, nil).Handler()

	res := postJSON(t, handler, "/v1/intelligent/search", map[string]any{
		"query":      "grounds for divorce",
		"limit":      3,
		"force_mode": "complex",
	})
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	if got := svc.answerReqs[0]; got.ForceMode != domain.LabelComplex || got.Limit != 3 {
		t.Fatalf("unexpected answer request: %+v", got)
	}

	var body map[string]any
	if err := json.Unmarshal(res.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	rag, ok := body["rag_context"].(map[string]any)
	if !ok || rag["generation_method"] != string(domain.GenerationTemplate) {
		t.Fatalf("expected rag context in response, got %v", body)
	}
}

func TestClassifyEndpoint(t *testing.T) {
	svc := &searchServiceFake{decision: domain.ClassificationDecision{
		Label:               domain.LabelSimple,
		ExtractedCodeFilter: "PEN",
		Rule:                "code_reference",
	}}
	handler := NewRouter(svc, RouterConfig{}, nil, nil).Handler()

	req := httptest.NewRequest(http.MethodGet, "/v1/intelligent/classify?query=PEN+187&force_mode=simple", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if svc.forced[0] != domain.LabelSimple {
		t.Fatalf("expected forced SIMPLE, got %q", svc.forced[0])
	}
	var body struct {
		Query          string                        `json:"query"`
		Classification domain.ClassificationDecision `json:"classification"`
	}
	if err := json.Unmarshal(res.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Query != "PEN 187" || body.Classification.ExtractedCodeFilter != "PEN" {
		t.Fatalf("unexpected classify response: %+v", body)
	}
}

func TestGetDocumentReturnsDocument(t *testing.T) {
	svc := &searchServiceFake{doc: &domain.RetrievedDocument{DocumentID: "PEN-187", CategoryCode: "PEN", Section: "187"}}
	handler := NewRouter(svc, RouterConfig{}, nil, nil).Handler()

	req := httptest.NewRequest(http.MethodGet, "/v1/documents/PEN-187", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if !strings.Contains(res.Body.String(), `"document_id":"PEN-187"`) {
		t.Fatalf("unexpected body: %s", res.Body.String())
	}
}

func TestHealthReportsDegradedStatus(t *testing.T) {
	svc := &searchServiceFake{report: domain.HealthReport{
		Status:  domain.HealthDegraded,
		Keyword: domain.KeywordHealth{Connected: true, Index: "california_codes", DocumentCount: 42},
	}}
	handler := NewRouter(svc, RouterConfig{}, nil, nil).Handler()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	var report domain.HealthReport
	if err := json.Unmarshal(res.Body.Bytes(), &report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if report.Status != domain.HealthDegraded || report.Keyword.DocumentCount != 42 {
		t.Fatalf("unexpected report: %+v", report)
	}
}

func TestRequestIDPropagatesToService(t *testing.T) {
	svc := &searchServiceFake{}
	handler := NewRouter(svc, RouterConfig{}, nil, nil).Handler()

	req := httptest.NewRequest(http.MethodPost, "/v1/search", strings.NewReader(`{"query":"PEN 187"}`))
	req.Header.Set(requestIDHeader, "req-123")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Header().Get(requestIDHeader) != "req-123" {
		t.Fatalf("expected request id echoed, got %q", res.Header().Get(requestIDHeader))
	}
	if svc.requestIDs[0] != "req-123" {
		t.Fatalf("expected request id in service context, got %q", svc.requestIDs[0])
	}
}

func TestMetricsEndpointExposesHTTPCounters(t *testing.T) {
	httpMetrics := metrics.NewHTTPServerMetrics("api")
	handler := NewRouter(&searchServiceFake{}, RouterConfig{Service: "api"}, httpMetrics, nil).Handler()

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200 from /metrics, got %d", res.Code)
	}
	if !strings.Contains(res.Body.String(), `lcs_http_requests_total{method="GET",path="/healthz",service="api",status="200"} 1`) {
		t.Fatalf("expected healthz counter in metrics output:\n%s", res.Body.String())
	}
}
