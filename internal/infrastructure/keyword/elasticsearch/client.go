package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kirillkom/legal-code-search/internal/core/domain"
	"github.com/kirillkom/legal-code-search/internal/core/ports"
	"github.com/kirillkom/legal-code-search/internal/infrastructure/resilience"
)

const (
	serviceName = "elasticsearch"

	minimumShouldMatch = "75%"
	exactPhraseBoost   = 2.0
)

var defaultFields = []string{"title^3", "section^2", "content"}

type Client struct {
	baseURL    string
	index      string
	httpClient *http.Client
	executor   *resilience.Executor
}

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

func WithExecutor(executor *resilience.Executor) Option {
	return func(c *Client) {
		c.executor = executor
	}
}

func New(baseURL, index string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		index:      index,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var (
	_ ports.KeywordSearcher = (*Client)(nil)
	_ ports.DocumentLookup  = (*Client)(nil)
)

func (c *Client) IndexName() string {
	return c.index
}

type sourceDoc struct {
	DocumentID    string `json:"document_id"`
	Title         string `json:"title"`
	Section       string `json:"section"`
	Content       string `json:"content"`
	Code          string `json:"code"`
	StatuteCode   string `json:"statute_code"`
	EffectiveDate string `json:"effective_date"`
}

type hit struct {
	ID     string    `json:"_id"`
	Score  float64   `json:"_score"`
	Source sourceDoc `json:"_source"`
}

type searchResponse struct {
	Hits struct {
		Total struct {
			Value int `json:"value"`
		} `json:"total"`
		Hits []hit `json:"hits"`
	} `json:"hits"`
}

func (c *Client) Search(ctx context.Context, query ports.KeywordQuery) ([]domain.RetrievedDocument, int, error) {
	body := BuildQuery(query)
	path := "/" + url.PathEscape(c.index) + "/_search"

	resp, err := resilience.Call(ctx, c.executor, "elasticsearch.search", func(ctx context.Context) (searchResponse, error) {
		var out searchResponse
		err := c.doJSON(ctx, http.MethodPost, path, body, &out, "search")
		return out, err
	}, resilience.ClassifyHTTPError)
	if err != nil {
		return nil, 0, resilience.WrapTemporaryIfNeeded("elasticsearch search", err, resilience.ClassifyHTTPError)
	}

	docs := make([]domain.RetrievedDocument, 0, len(resp.Hits.Hits))
	for _, h := range resp.Hits.Hits {
		doc := toDocument(h.ID, h.Source)
		doc.RawScore = h.Score
		docs = append(docs, doc)
	}
	return docs, resp.Hits.Total.Value, nil
}

// BuildQuery renders the bool query: a fuzzy best_fields multi_match as the
// required clause, an optional exact-phrase boost and the filter clauses.
func BuildQuery(query ports.KeywordQuery) map[string]any {
	fields := query.Fields
	if len(fields) == 0 {
		fields = defaultFields
	}
	fuzziness := query.Fuzziness
	if fuzziness == "" {
		fuzziness = "AUTO"
	}

	boolQuery := map[string]any{
		"must": []any{
			map[string]any{
				"multi_match": map[string]any{
					"query":                query.Text,
					"fields":               fields,
					"type":                 "best_fields",
					"fuzziness":            fuzziness,
					"operator":             "or",
					"minimum_should_match": minimumShouldMatch,
				},
			},
		},
	}
	if query.BoostExact {
		boolQuery["should"] = []any{
			map[string]any{
				"match_phrase": map[string]any{
					"content": map[string]any{
						"query": query.Text,
						"boost": exactPhraseBoost,
					},
				},
			},
		}
	}
	if filters := buildFilters(query.Filters); len(filters) > 0 {
		boolQuery["filter"] = filters
	}

	out := map[string]any{
		"query": map[string]any{"bool": boolQuery},
		"from":  max(query.Offset, 0),
		"size":  query.Limit,
		"_source": []string{
			"document_id", "title", "section", "content", "code", "statute_code", "effective_date",
		},
	}
	return out
}

func buildFilters(f domain.SearchFilters) []any {
	var out []any
	if f.Code != "" {
		out = append(out, map[string]any{"term": map[string]any{"code.keyword": f.Code}})
	}
	if f.StatuteCode != "" {
		out = append(out, map[string]any{"term": map[string]any{"statute_code": f.StatuteCode}})
	}
	if f.TitleContains != "" {
		out = append(out, map[string]any{"match": map[string]any{"title": f.TitleContains}})
	}
	if f.DateFrom != nil || f.DateTo != nil {
		rng := map[string]any{}
		if f.DateFrom != nil {
			rng["gte"] = f.DateFrom.UTC().Format(time.RFC3339)
		}
		if f.DateTo != nil {
			rng["lte"] = f.DateTo.UTC().Format(time.RFC3339)
		}
		out = append(out, map[string]any{"range": map[string]any{"effective_date": rng}})
	}
	return out
}

// Lookup fetches one document by its canonical ID. A missing document yields
// (nil, nil).
func (c *Client) Lookup(ctx context.Context, documentID string) (*domain.RetrievedDocument, error) {
	var resp struct {
		ID     string    `json:"_id"`
		Found  bool      `json:"found"`
		Source sourceDoc `json:"_source"`
	}
	path := "/" + url.PathEscape(c.index) + "/_doc/" + url.PathEscape(documentID)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp, "get document"); err != nil {
		var statusErr *resilience.HTTPStatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
			return nil, nil
		}
		return nil, resilience.WrapTemporaryIfNeeded("elasticsearch get document", err, resilience.ClassifyHTTPError)
	}
	if !resp.Found {
		return nil, nil
	}
	doc := toDocument(resp.ID, resp.Source)
	return &doc, nil
}

// Health reports whether the index answers.
func (c *Client) Health(ctx context.Context) bool {
	path := "/" + url.PathEscape(c.index)
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.baseURL+path, nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func (c *Client) DocumentCount(ctx context.Context) (int64, error) {
	var resp struct {
		Count int64 `json:"count"`
	}
	path := "/" + url.PathEscape(c.index) + "/_count"
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp, "count"); err != nil {
		return 0, err
	}
	return resp.Count, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, payload any, out any, operation string) error {
	var raw []byte
	if payload != nil {
		var err error
		raw, err = json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal %s body: %w", operation, err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("create %s request: %w", operation, err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("elasticsearch %s request: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return resilience.NewHTTPStatusError(serviceName, operation, resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", operation, err)
	}
	return nil
}

func toDocument(id string, src sourceDoc) domain.RetrievedDocument {
	docID := src.DocumentID
	if docID == "" {
		docID = id
	}
	doc := domain.RetrievedDocument{
		DocumentID:   docID,
		Title:        src.Title,
		Section:      src.Section,
		Content:      src.Content,
		CategoryCode: src.Code,
		StatuteCode:  src.StatuteCode,
		Source:       domain.SourceKeyword,
	}
	if src.EffectiveDate != "" {
		for _, layout := range []string{time.RFC3339, "2006-01-02"} {
			if t, err := time.Parse(layout, src.EffectiveDate); err == nil {
				doc.EffectiveDate = &t
				break
			}
		}
	}
	return doc
}
