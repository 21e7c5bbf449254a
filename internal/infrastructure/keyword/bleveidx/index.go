package bleveidx

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/kirillkom/legal-code-search/internal/core/domain"
	"github.com/kirillkom/legal-code-search/internal/core/ports"
)

const (
	indexName        = "legal_codes"
	exactPhraseBoost = 2.0
	batchSize        = 500
)

var defaultFields = []string{"title^3", "section^2", "content"}

// Index is an embedded full-text index over code sections. It serves as the
// keyword backend for single-node deployments and tests.
type Index struct {
	index bleve.Index
	name  string
}

// NewMemOnly builds an empty in-memory index.
func NewMemOnly() (*Index, error) {
	idx, err := bleve.NewMemOnly(buildMapping())
	if err != nil {
		return nil, fmt.Errorf("create in-memory index: %w", err)
	}
	return &Index{index: idx, name: indexName}, nil
}

// Open opens the index at path, creating it when missing.
func Open(path string) (*Index, error) {
	if _, err := os.Stat(path); err == nil {
		idx, err := bleve.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open index %s: %w", path, err)
		}
		return &Index{index: idx, name: path}, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("stat index %s: %w", path, err)
	}
	idx, err := bleve.New(path, buildMapping())
	if err != nil {
		return nil, fmt.Errorf("create index %s: %w", path, err)
	}
	return &Index{index: idx, name: path}, nil
}

func (i *Index) Close() error {
	return i.index.Close()
}

var (
	_ ports.KeywordSearcher = (*Index)(nil)
	_ ports.KeywordIndexer  = (*Index)(nil)
	_ ports.DocumentLookup  = (*Index)(nil)
)

func buildMapping() mapping.IndexMapping {
	text := bleve.NewTextFieldMapping()
	text.Store = true

	keyword := bleve.NewKeywordFieldMapping()
	keyword.Store = true

	date := bleve.NewDateTimeFieldMapping()
	date.Store = true

	doc := bleve.NewDocumentMapping()
	doc.AddFieldMappingsAt("document_id", keyword)
	doc.AddFieldMappingsAt("title", text)
	doc.AddFieldMappingsAt("section", text)
	doc.AddFieldMappingsAt("content", text)
	doc.AddFieldMappingsAt("code", keyword)
	doc.AddFieldMappingsAt("statute_code", keyword)
	doc.AddFieldMappingsAt("effective_date", date)

	m := bleve.NewIndexMapping()
	m.DefaultMapping = doc
	return m
}

// Add indexes documents in batches keyed by DocumentID.
func (i *Index) Add(ctx context.Context, docs []domain.RetrievedDocument) error {
	batch := i.index.NewBatch()
	for n, doc := range docs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if strings.TrimSpace(doc.DocumentID) == "" {
			return domain.WrapError(domain.ErrInvalidInput, "bleve add", fmt.Errorf("document %d has no id", n))
		}
		if err := batch.Index(doc.DocumentID, toFields(doc)); err != nil {
			return fmt.Errorf("batch document %s: %w", doc.DocumentID, err)
		}
		if batch.Size() >= batchSize {
			if err := i.index.Batch(batch); err != nil {
				return fmt.Errorf("write batch: %w", err)
			}
			batch.Reset()
		}
	}
	if batch.Size() > 0 {
		if err := i.index.Batch(batch); err != nil {
			return fmt.Errorf("write batch: %w", err)
		}
	}
	return nil
}

func toFields(doc domain.RetrievedDocument) map[string]interface{} {
	out := map[string]interface{}{
		"document_id":  doc.DocumentID,
		"title":        doc.Title,
		"section":      doc.Section,
		"content":      doc.Content,
		"code":         doc.CategoryCode,
		"statute_code": doc.StatuteCode,
	}
	if doc.EffectiveDate != nil {
		out["effective_date"] = doc.EffectiveDate.UTC().Format(time.RFC3339)
	}
	return out
}

func (i *Index) IndexName() string {
	return i.name
}

func (i *Index) Search(ctx context.Context, q ports.KeywordQuery) ([]domain.RetrievedDocument, int, error) {
	req := bleve.NewSearchRequestOptions(BuildQuery(q), q.Limit, max(q.Offset, 0), false)
	req.Fields = []string{"*"}

	result, err := i.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, 0, fmt.Errorf("bleve search: %w", err)
	}
	docs := make([]domain.RetrievedDocument, 0, len(result.Hits))
	for _, hit := range result.Hits {
		doc := fromFields(hit.ID, hit.Fields)
		doc.RawScore = hit.Score
		docs = append(docs, doc)
	}
	return docs, int(result.Total), nil
}

// BuildQuery mirrors the keyword contract: a fuzzy disjunction across boosted
// fields, an optional exact-phrase boost and required filter clauses.
func BuildQuery(q ports.KeywordQuery) query.Query {
	fields := q.Fields
	if len(fields) == 0 {
		fields = defaultFields
	}
	fuzziness := parseFuzziness(q.Fuzziness)

	perField := make([]query.Query, 0, len(fields))
	for _, f := range fields {
		name, boost := splitBoost(f)
		match := bleve.NewMatchQuery(q.Text)
		match.SetField(name)
		match.SetFuzziness(fuzziness)
		match.SetBoost(boost)
		perField = append(perField, match)
	}

	root := bleve.NewBooleanQuery()
	root.AddMust(bleve.NewDisjunctionQuery(perField...))
	if q.BoostExact {
		phrase := bleve.NewMatchPhraseQuery(q.Text)
		phrase.SetField("content")
		phrase.SetBoost(exactPhraseBoost)
		root.AddShould(phrase)
	}

	f := q.Filters
	if f.Code != "" {
		term := bleve.NewTermQuery(f.Code)
		term.SetField("code")
		root.AddMust(term)
	}
	if f.StatuteCode != "" {
		term := bleve.NewTermQuery(f.StatuteCode)
		term.SetField("statute_code")
		root.AddMust(term)
	}
	if f.TitleContains != "" {
		title := bleve.NewMatchQuery(f.TitleContains)
		title.SetField("title")
		title.SetOperator(query.MatchQueryOperatorAnd)
		root.AddMust(title)
	}
	if f.DateFrom != nil || f.DateTo != nil {
		var start, end time.Time
		if f.DateFrom != nil {
			start = *f.DateFrom
		}
		if f.DateTo != nil {
			end = *f.DateTo
		}
		inclusive := true
		rng := bleve.NewDateRangeInclusiveQuery(start, end, &inclusive, &inclusive)
		rng.SetField("effective_date")
		root.AddMust(rng)
	}
	return root
}

// parseFuzziness maps "AUTO" to one edit; bleve caps fuzziness at two.
func parseFuzziness(raw string) int {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.EqualFold(raw, "AUTO") {
		return 1
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 1
	}
	return min(n, 2)
}

func splitBoost(field string) (string, float64) {
	name, raw, ok := strings.Cut(field, "^")
	if !ok {
		return name, 1.0
	}
	boost, err := strconv.ParseFloat(raw, 64)
	if err != nil || boost <= 0 {
		return name, 1.0
	}
	return name, boost
}

// Lookup returns the stored document or (nil, nil) when it is not indexed.
func (i *Index) Lookup(ctx context.Context, documentID string) (*domain.RetrievedDocument, error) {
	req := bleve.NewSearchRequestOptions(bleve.NewDocIDQuery([]string{documentID}), 1, 0, false)
	req.Fields = []string{"*"}
	result, err := i.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("bleve lookup: %w", err)
	}
	if len(result.Hits) == 0 {
		return nil, nil
	}
	doc := fromFields(result.Hits[0].ID, result.Hits[0].Fields)
	return &doc, nil
}

func (i *Index) Health(context.Context) bool {
	_, err := i.index.DocCount()
	return err == nil
}

func (i *Index) DocumentCount(context.Context) (int64, error) {
	n, err := i.index.DocCount()
	if err != nil {
		return 0, fmt.Errorf("bleve doc count: %w", err)
	}
	return int64(n), nil
}

func fromFields(id string, fields map[string]interface{}) domain.RetrievedDocument {
	doc := domain.RetrievedDocument{
		DocumentID:   stringField(fields, "document_id"),
		Title:        stringField(fields, "title"),
		Section:      stringField(fields, "section"),
		Content:      stringField(fields, "content"),
		CategoryCode: stringField(fields, "code"),
		StatuteCode:  stringField(fields, "statute_code"),
		Source:       domain.SourceKeyword,
	}
	if doc.DocumentID == "" {
		doc.DocumentID = id
	}
	if raw := stringField(fields, "effective_date"); raw != "" {
		if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			doc.EffectiveDate = &t
		}
	}
	return doc
}

func stringField(fields map[string]interface{}, key string) string {
	if v, ok := fields[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
