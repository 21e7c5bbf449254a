package ports

import (
	"context"
	"time"

	"github.com/kirillkom/legal-code-search/internal/core/domain"
)

// KeywordQuery is the request sent to the inverted-index backend.
type KeywordQuery struct {
	Text       string
	Limit      int
	Offset     int
	Fields     []string
	Filters    domain.SearchFilters
	Fuzziness  string
	BoostExact bool
}

// VectorQuery is the request sent to the similarity backend.
// A nil ScoreThreshold disables score filtering.
type VectorQuery struct {
	Vector         []float32
	Limit          int
	Offset         int
	Filters        domain.SearchFilters
	ScoreThreshold *float64
}

// KeywordSearcher runs fuzzy, boosted, multi-field full-text queries.
type KeywordSearcher interface {
	Search(ctx context.Context, query KeywordQuery) ([]domain.RetrievedDocument, int, error)
	Health(ctx context.Context) bool
	DocumentCount(ctx context.Context) (int64, error)
	IndexName() string
}

// VectorSearcher runs similarity search over embedded code sections.
type VectorSearcher interface {
	Search(ctx context.Context, query VectorQuery) ([]domain.RetrievedDocument, error)
	Health(ctx context.Context) bool
	PointCount(ctx context.Context) (int64, error)
	CollectionName() string
}

// DocumentLookup resolves a canonical document ID to its stored record.
type DocumentLookup interface {
	Lookup(ctx context.Context, documentID string) (*domain.RetrievedDocument, error)
}

// Embedder builds vectors for query text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// GenerationRequest carries everything a text-generation backend needs to answer.
type GenerationRequest struct {
	Query        string
	Context      string
	MaxTokens    int
	Temperature  float64
	SystemPrompt string
}

// AnswerGenerator creates the final user-facing answer from retrieved context.
type AnswerGenerator interface {
	GenerateAnswer(ctx context.Context, req GenerationRequest) (string, error)
}

// QueryEventPublisher emits query audit events.
type QueryEventPublisher interface {
	PublishQueryEvent(ctx context.Context, event domain.QueryEvent) error
}

// SearchObserver receives routing and backend outcomes for metrics.
type SearchObserver interface {
	ObserveClassification(decision domain.ClassificationDecision)
	ObserveBackendCall(source domain.Source, duration time.Duration, err error)
	ObserveSearch(mode domain.SearchMode, resultCount int, degraded []domain.Source)
	ObserveGeneration(method domain.GenerationMethod)
}

type NoopSearchObserver struct{}

func (NoopSearchObserver) ObserveClassification(domain.ClassificationDecision) {}
func (NoopSearchObserver) ObserveBackendCall(domain.Source, time.Duration, error) {}
func (NoopSearchObserver) ObserveSearch(domain.SearchMode, int, []domain.Source) {}
func (NoopSearchObserver) ObserveGeneration(domain.GenerationMethod) {}

// KeywordIndexer writes documents into the inverted index.
type KeywordIndexer interface {
	Add(ctx context.Context, docs []domain.RetrievedDocument) error
}

// VectorIndexer stores one embedding per document.
type VectorIndexer interface {
	Upsert(ctx context.Context, doc domain.RetrievedDocument, embedding []float32) error
}

// Chunker splits long section text into embedding-sized pieces.
type Chunker interface {
	Split(text string) []string
}
