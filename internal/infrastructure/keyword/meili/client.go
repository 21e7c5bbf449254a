package meili

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/meilisearch/meilisearch-go"

	"github.com/kirillkom/legal-code-search/internal/core/domain"
	"github.com/kirillkom/legal-code-search/internal/core/ports"
	"github.com/kirillkom/legal-code-search/internal/infrastructure/resilience"
)

// Client searches a Meilisearch index whose documents carry document_id,
// title, section, content, code, statute_code, effective_date and a numeric
// effective_date_ts used for range filters.
type Client struct {
	client   meilisearch.ServiceManager
	index    meilisearch.IndexManager
	name     string
	executor *resilience.Executor
}

func New(host, apiKey, index string, executor *resilience.Executor) *Client {
	client := meilisearch.New(host, meilisearch.WithAPIKey(apiKey))
	return &Client{
		client:   client,
		index:    client.Index(index),
		name:     index,
		executor: executor,
	}
}

var (
	_ ports.KeywordSearcher = (*Client)(nil)
	_ ports.DocumentLookup  = (*Client)(nil)
)

func (c *Client) IndexName() string {
	return c.name
}

type hit struct {
	DocumentID    string  `json:"document_id"`
	Title         string  `json:"title"`
	Section       string  `json:"section"`
	Content       string  `json:"content"`
	Code          string  `json:"code"`
	StatuteCode   string  `json:"statute_code"`
	EffectiveDate string  `json:"effective_date"`
	RankingScore  float64 `json:"_rankingScore"`
}

func (c *Client) Search(ctx context.Context, query ports.KeywordQuery) ([]domain.RetrievedDocument, int, error) {
	req := &meilisearch.SearchRequest{
		Query:                query.Text,
		Limit:                int64(query.Limit),
		Offset:               int64(max(query.Offset, 0)),
		ShowRankingScore:     true,
		AttributesToSearchOn: searchableAttributes(query.Fields),
	}
	if filter := BuildFilter(query.Filters); filter != "" {
		req.Filter = filter
	}

	result, err := resilience.Call(ctx, c.executor, "meilisearch.search", func(ctx context.Context) (*meilisearch.SearchResponse, error) {
		return c.index.SearchWithContext(ctx, query.Text, req)
	}, classifyError)
	if err != nil {
		return nil, 0, resilience.WrapTemporaryIfNeeded("meilisearch search", err, classifyError)
	}

	hits, err := decodeHits(result.Hits)
	if err != nil {
		return nil, 0, fmt.Errorf("decode meilisearch hits: %w", err)
	}

	title := strings.ToLower(strings.TrimSpace(query.Filters.TitleContains))
	docs := make([]domain.RetrievedDocument, 0, len(hits))
	for _, h := range hits {
		if title != "" && !strings.Contains(strings.ToLower(h.Title), title) {
			continue
		}
		docs = append(docs, h.toDocument())
	}
	total := int(result.EstimatedTotalHits)
	if title != "" {
		total = len(docs)
	}
	return docs, total, nil
}

// decodeHits round-trips the hits through JSON so the typed view does not
// depend on how the client library represents a raw hit.
func decodeHits(raw any) ([]hit, error) {
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	var hits []hit
	if err := json.Unmarshal(data, &hits); err != nil {
		return nil, err
	}
	return hits, nil
}

func (h hit) toDocument() domain.RetrievedDocument {
	doc := domain.RetrievedDocument{
		DocumentID:   h.DocumentID,
		Title:        h.Title,
		Section:      h.Section,
		Content:      h.Content,
		CategoryCode: h.Code,
		StatuteCode:  h.StatuteCode,
		RawScore:     h.RankingScore,
		Source:       domain.SourceKeyword,
	}
	if h.EffectiveDate != "" {
		for _, layout := range []string{time.RFC3339, "2006-01-02"} {
			if t, err := time.Parse(layout, h.EffectiveDate); err == nil {
				doc.EffectiveDate = &t
				break
			}
		}
	}
	return doc
}

// BuildFilter renders the filter expression for code, statute and date
// bounds. Title containment is applied to the returned hits instead.
func BuildFilter(f domain.SearchFilters) string {
	var parts []string
	if f.Code != "" {
		parts = append(parts, "code = "+quote(f.Code))
	}
	if f.StatuteCode != "" {
		parts = append(parts, "statute_code = "+quote(f.StatuteCode))
	}
	if f.DateFrom != nil {
		parts = append(parts, fmt.Sprintf("effective_date_ts >= %d", f.DateFrom.Unix()))
	}
	if f.DateTo != nil {
		parts = append(parts, fmt.Sprintf("effective_date_ts <= %d", f.DateTo.Unix()))
	}
	return strings.Join(parts, " AND ")
}

func quote(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `"`, `\"`)
	return `"` + v + `"`
}

// searchableAttributes strips "^boost" suffixes; attribute ranking is an
// index setting in Meilisearch.
func searchableAttributes(fields []string) []string {
	if len(fields) == 0 {
		return nil
	}
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		name, _, _ := strings.Cut(f, "^")
		if name = strings.TrimSpace(name); name != "" {
			out = append(out, name)
		}
	}
	return out
}

// Lookup fetches one document by primary key. A missing document yields
// (nil, nil).
func (c *Client) Lookup(ctx context.Context, documentID string) (*domain.RetrievedDocument, error) {
	var h hit
	if err := c.index.GetDocumentWithContext(ctx, documentID, nil, &h); err != nil {
		if statusCode(err) == http.StatusNotFound {
			return nil, nil
		}
		return nil, resilience.WrapTemporaryIfNeeded("meilisearch get document", err, classifyError)
	}
	doc := h.toDocument()
	if doc.DocumentID == "" {
		doc.DocumentID = documentID
	}
	return &doc, nil
}

func (c *Client) Health(ctx context.Context) bool {
	if _, err := c.client.HealthWithContext(ctx); err != nil {
		return false
	}
	_, err := c.index.GetStatsWithContext(ctx)
	return err == nil
}

func (c *Client) DocumentCount(ctx context.Context) (int64, error) {
	stats, err := c.index.GetStatsWithContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("meilisearch stats: %w", err)
	}
	return stats.NumberOfDocuments, nil
}

func statusCode(err error) int {
	var apiErr *meilisearch.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

func classifyError(err error) resilience.ErrorClassification {
	if code := statusCode(err); code != 0 {
		retryable := resilience.IsRetryableHTTPStatus(code)
		return resilience.ErrorClassification{Retryable: retryable, RecordFailure: retryable}
	}
	return resilience.ClassifyHTTPError(err)
}
