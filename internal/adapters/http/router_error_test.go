package httpadapter

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kirillkom/legal-code-search/internal/core/domain"
)

func TestSearchMapsInvalidQueryTo400(t *testing.T) {
	svc := &searchServiceFake{err: domain.WrapError(domain.ErrInvalidQuery, "validate query", errors.New("query is empty"))}
	handler := NewRouter(svc, RouterConfig{}, nil, nil).Handler()

	payload, _ := json.Marshal(map[string]any{"query": ""})
	req := httptest.NewRequest(http.MethodPost, "/v1/search", bytes.NewReader(payload))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
	var body errorResponse
	if err := json.Unmarshal(res.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if body.Error == "" || body.RequestID == "" {
		t.Fatalf("expected error message and request id, got %+v", body)
	}
}

func TestGetDocumentReturns404ForNotFound(t *testing.T) {
	svc := &searchServiceFake{err: domain.WrapError(domain.ErrDocumentNotFound, "get document", errors.New("id missing"))}
	handler := NewRouter(svc, RouterConfig{}, nil, nil).Handler()

	req := httptest.NewRequest(http.MethodGet, "/v1/documents/missing", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", res.Code)
	}
}

func TestAllBackendsUnavailableMapsTo503(t *testing.T) {
	svc := &searchServiceFake{err: domain.WrapError(domain.ErrAllBackendsUnavailable, "retrieve", errors.New("keyword down"))}
	handler := NewRouter(svc, RouterConfig{}, nil, nil).Handler()

	req := httptest.NewRequest(http.MethodPost, "/v1/intelligent/search", bytes.NewReader([]byte(`{"query":"what is the penalty for theft"}`)))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", res.Code)
	}
	if !strings.Contains(res.Body.String(), `"error":"search unavailable"`) {
		t.Fatalf("expected generic unavailable message, got %s", res.Body.String())
	}
	if strings.Contains(res.Body.String(), "keyword down") || strings.Contains(res.Body.String(), "results") {
		t.Fatalf("unavailable response must not leak details or partial results: %s", res.Body.String())
	}
}

func TestUnexpectedErrorHidesDetails(t *testing.T) {
	svc := &searchServiceFake{err: errors.New("dial tcp 10.0.0.5:9200: connection refused")}
	handler := NewRouter(svc, RouterConfig{}, nil, nil).Handler()

	req := httptest.NewRequest(http.MethodPost, "/v1/search/keyword", bytes.NewReader([]byte(`{"query":"PEN 187"}`)))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", res.Code)
	}
	if bytes.Contains(res.Body.Bytes(), []byte("10.0.0.5")) {
		t.Fatalf("internal error details leaked: %s", res.Body.String())
	}
}

func TestMalformedBodyReturns400(t *testing.T) {
	handler := NewRouter(&searchServiceFake{}, RouterConfig{}, nil, nil).Handler()

	cases := []string{``, `{"query":`, `{"query":"x","unknown":1}`}
	for _, body := range cases {
		req := httptest.NewRequest(http.MethodPost, "/v1/search", bytes.NewReader([]byte(body)))
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, req)
		if res.Code != http.StatusBadRequest {
			t.Fatalf("body %q: expected 400, got %d", body, res.Code)
		}
	}
}
