package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/kirillkom/legal-code-search/internal/core/domain"
	"github.com/kirillkom/legal-code-search/internal/core/ports"
)

type keywordFake struct {
	mu      sync.Mutex
	docs    []domain.RetrievedDocument
	total   int
	err     error
	delay   time.Duration
	queries []ports.KeywordQuery
	healthy bool
	count   int64
}

func (f *keywordFake) Search(ctx context.Context, q ports.KeywordQuery) ([]domain.RetrievedDocument, int, error) {
	f.mu.Lock()
	f.queries = append(f.queries, q)
	f.mu.Unlock()
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, 0, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, 0, f.err
	}
	out := make([]domain.RetrievedDocument, len(f.docs))
	copy(out, f.docs)
	total := f.total
	if total == 0 {
		total = len(out)
	}
	return out, total, nil
}

func (f *keywordFake) Health(context.Context) bool { return f.healthy }
func (f *keywordFake) DocumentCount(context.Context) (int64, error) {
	return f.count, nil
}
func (f *keywordFake) IndexName() string { return "legal_codes" }

func (f *keywordFake) calls() []ports.KeywordQuery {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ports.KeywordQuery(nil), f.queries...)
}

type vectorFake struct {
	mu      sync.Mutex
	docs    []domain.RetrievedDocument
	err     error
	delay   time.Duration
	queries []ports.VectorQuery
	healthy bool
	count   int64
}

func (f *vectorFake) Search(ctx context.Context, q ports.VectorQuery) ([]domain.RetrievedDocument, error) {
	f.mu.Lock()
	f.queries = append(f.queries, q)
	f.mu.Unlock()
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	out := make([]domain.RetrievedDocument, len(f.docs))
	copy(out, f.docs)
	return out, nil
}

func (f *vectorFake) Health(context.Context) bool { return f.healthy }
func (f *vectorFake) PointCount(context.Context) (int64, error) {
	return f.count, nil
}
func (f *vectorFake) CollectionName() string { return "legal_codes_vectors" }

func (f *vectorFake) calls() []ports.VectorQuery {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ports.VectorQuery(nil), f.queries...)
}

type embedderFake struct {
	err error
}

func (f *embedderFake) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{0.1, 0.2, 0.3}
	}
	return out, f.err
}

func (f *embedderFake) EmbedQuery(context.Context, string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

type generatorFake struct {
	text string
	err  error
	req  ports.GenerationRequest
}

func (f *generatorFake) GenerateAnswer(_ context.Context, req ports.GenerationRequest) (string, error) {
	f.req = req
	if f.err != nil {
		return "", f.err
	}
	return f.text, nil
}

type publisherFake struct {
	mu     sync.Mutex
	events []domain.QueryEvent
	err    error
}

func (f *publisherFake) PublishQueryEvent(_ context.Context, event domain.QueryEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return f.err
}

func doc(id, code, section string, score float64) domain.RetrievedDocument {
	return domain.RetrievedDocument{
		DocumentID:   id,
		Title:        code + " " + section,
		Section:      section,
		Content:      "content of " + id,
		CategoryCode: code,
		RawScore:     score,
	}
}

func rankedList(src domain.Source, docs ...domain.RetrievedDocument) domain.RankedList {
	for i := range docs {
		docs[i].Source = src
	}
	return domain.RankedList{Source: src, Query: "q", Documents: docs, Total: len(docs)}
}
