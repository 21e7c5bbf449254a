package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/legal-code-search/internal/core/domain"
	"github.com/kirillkom/legal-code-search/internal/core/ports"
	"github.com/kirillkom/legal-code-search/internal/infrastructure/resilience"
)

const serviceName = "qdrant"

type Client struct {
	baseURL    string
	collection string
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

func New(baseURL, collection string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: collection,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var (
	_ ports.VectorSearcher = (*Client)(nil)
	_ ports.DocumentLookup = (*Client)(nil)
)

func (c *Client) CollectionName() string {
	return c.collection
}

type scoredPoint struct {
	ID      json.RawMessage `json:"id"`
	Score   float64         `json:"score"`
	Payload map[string]any  `json:"payload"`
}

// Search fetches limit+offset points and drops the first offset, matching
// how the collection pages results.
func (c *Client) Search(ctx context.Context, query ports.VectorQuery) ([]domain.RetrievedDocument, error) {
	if len(query.Vector) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "qdrant search", fmt.Errorf("query vector is empty"))
	}
	offset := max(query.Offset, 0)

	reqBody := map[string]any{
		"vector":       query.Vector,
		"limit":        query.Limit + offset,
		"with_payload": true,
	}
	if query.ScoreThreshold != nil {
		reqBody["score_threshold"] = *query.ScoreThreshold
	}
	if filter := buildFilter(query.Filters); filter != nil {
		reqBody["filter"] = filter
	}

	var searchResp struct {
		Result []scoredPoint `json:"result"`
	}
	path := fmt.Sprintf("/collections/%s/points/search", c.collection)
	err := c.executor.Execute(ctx, "qdrant.search", func(ctx context.Context) error {
		return c.doJSON(ctx, http.MethodPost, path, reqBody, &searchResp, "search")
	}, resilience.ClassifyHTTPError)
	if err != nil {
		return nil, resilience.WrapTemporaryIfNeeded("qdrant search", err, resilience.ClassifyHTTPError)
	}

	if offset >= len(searchResp.Result) {
		return []domain.RetrievedDocument{}, nil
	}
	points := searchResp.Result[offset:]
	out := make([]domain.RetrievedDocument, 0, len(points))
	for _, p := range points {
		doc := documentFromPayload(p.Payload)
		if doc.DocumentID == "" {
			doc.DocumentID = p.pointID()
		}
		doc.RawScore = p.Score
		doc.Source = domain.SourceVector
		out = append(out, doc)
	}
	return out, nil
}

// Lookup resolves a canonical document ID through its derived point ID.
// A missing point yields (nil, nil).
func (c *Client) Lookup(ctx context.Context, documentID string) (*domain.RetrievedDocument, error) {
	var resp struct {
		Result *scoredPoint `json:"result"`
	}
	path := fmt.Sprintf("/collections/%s/points/%s", c.collection, PointID(documentID))
	err := c.doJSON(ctx, http.MethodGet, path, nil, &resp, "get point")
	if err != nil {
		if statusErr, ok := asStatusError(err); ok && statusErr.StatusCode == http.StatusNotFound {
			return nil, nil
		}
		return nil, resilience.WrapTemporaryIfNeeded("qdrant get point", err, resilience.ClassifyHTTPError)
	}
	if resp.Result == nil {
		return nil, nil
	}
	doc := documentFromPayload(resp.Result.Payload)
	if doc.DocumentID == "" {
		doc.DocumentID = documentID
	}
	doc.Source = domain.SourceVector
	return &doc, nil
}

// Health reports whether the collection exists.
func (c *Client) Health(ctx context.Context) bool {
	_, err := c.collectionInfo(ctx)
	return err == nil
}

func (c *Client) PointCount(ctx context.Context) (int64, error) {
	info, err := c.collectionInfo(ctx)
	if err != nil {
		return 0, err
	}
	return info.PointsCount, nil
}

type collectionInfo struct {
	Status      string `json:"status"`
	PointsCount int64  `json:"points_count"`
}

func (c *Client) collectionInfo(ctx context.Context) (collectionInfo, error) {
	var resp struct {
		Result collectionInfo `json:"result"`
	}
	path := fmt.Sprintf("/collections/%s", c.collection)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp, "collection info"); err != nil {
		return collectionInfo{}, err
	}
	return resp.Result, nil
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
	body := bytes.NewReader(raw)

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create %s request: %w", operation, err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant %s request: %w", operation, err)
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

func buildFilter(f domain.SearchFilters) map[string]any {
	var must []map[string]any
	if f.StatuteCode != "" {
		must = append(must, matchValue("statute_code", f.StatuteCode))
	}
	if f.Code != "" {
		must = append(must, matchValue("code", f.Code))
	}
	if f.TitleContains != "" {
		must = append(must, map[string]any{
			"key":   "title",
			"match": map[string]any{"text": f.TitleContains},
		})
	}
	if f.DateFrom != nil || f.DateTo != nil {
		rng := map[string]any{}
		if f.DateFrom != nil {
			rng["gte"] = f.DateFrom.UTC().Format(time.RFC3339)
		}
		if f.DateTo != nil {
			rng["lte"] = f.DateTo.UTC().Format(time.RFC3339)
		}
		must = append(must, map[string]any{"key": "effective_date", "range": rng})
	}
	if len(must) == 0 {
		return nil
	}
	return map[string]any{"must": must}
}

func matchValue(key, value string) map[string]any {
	return map[string]any{
		"key":   key,
		"match": map[string]any{"value": value},
	}
}

// pointID renders a UUID or integer point ID as a string.
func (p scoredPoint) pointID() string {
	var s string
	if err := json.Unmarshal(p.ID, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(p.ID))
}

func documentFromPayload(payload map[string]any) domain.RetrievedDocument {
	doc := domain.RetrievedDocument{
		DocumentID:   getStringPayload(payload, "document_id"),
		Title:        getStringPayload(payload, "title"),
		Section:      getStringPayload(payload, "section"),
		Content:      getStringPayload(payload, "content"),
		CategoryCode: getStringPayload(payload, "code"),
		StatuteCode:  getStringPayload(payload, "statute_code"),
	}
	if raw := getStringPayload(payload, "effective_date"); raw != "" {
		if t, ok := parseDate(raw); ok {
			doc.EffectiveDate = &t
		}
	}
	return doc
}

func parseDate(raw string) (time.Time, bool) {
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func getStringPayload(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok || v == nil {
		return ""
	}
	s, ok := v.(string)
	if ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func asStatusError(err error) (*resilience.HTTPStatusError, bool) {
	var statusErr *resilience.HTTPStatusError
	if errors.As(err, &statusErr) {
		return statusErr, true
	}
	return nil, false
}
