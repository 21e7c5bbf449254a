package ports

import (
	"context"

	"github.com/kirillkom/legal-code-search/internal/core/domain"
)

// SearchRequest is the inbound search contract.
type SearchRequest struct {
	Query        string
	Limit        int
	Offset       int
	Filters      domain.SearchFilters
	Mode         domain.SearchMode
	FusionMethod domain.FusionMethod
	// Optional overrides of the configured fusion weights and vector score threshold.
	KeywordWeight  *float64
	SemanticWeight *float64
	ScoreThreshold *float64
}

type SearchResponse struct {
	Query               string               `json:"query"`
	Mode                domain.SearchMode    `json:"search_type"`
	Results             []domain.FusedResult `json:"results"`
	Total               int                  `json:"total"`
	Returned            int                  `json:"returned"`
	Offset              int                  `json:"offset"`
	Limit               int                  `json:"limit"`
	QueryTimeMs         float64              `json:"query_time_ms"`
	FusionMethod        domain.FusionMethod  `json:"fusion_method,omitempty"`
	ContributingSources []domain.Source      `json:"contributing_sources"`
	DegradedSources     []domain.Source      `json:"degraded_sources,omitempty"`
}

// AnswerRequest is the inbound contract for intelligent search.
// An empty ForceMode lets the classifier decide.
type AnswerRequest struct {
	Query     string
	Limit     int
	ForceMode domain.QueryLabel
	Filters   domain.SearchFilters
}

type AnswerResponse struct {
	Query           string                        `json:"query"`
	Classification  domain.ClassificationDecision `json:"classification"`
	SearchMode      string                        `json:"search_mode"`
	Results         []domain.FusedResult          `json:"results"`
	Total           int                           `json:"total"`
	RAGContext      *domain.RAGContext            `json:"rag_context,omitempty"`
	DegradedSources []domain.Source               `json:"degraded_sources,omitempty"`
	QueryTimeMs     float64                       `json:"query_time_ms"`
}

// SearchService is the inbound contract used by the HTTP layer and the CLI.
type SearchService interface {
	Classify(query string, forceMode domain.QueryLabel) (domain.ClassificationDecision, error)
	Search(ctx context.Context, req SearchRequest) (*SearchResponse, error)
	Answer(ctx context.Context, req AnswerRequest) (*AnswerResponse, error)
	GetDocument(ctx context.Context, documentID string) (*domain.RetrievedDocument, error)
	Health(ctx context.Context) domain.HealthReport
}

// LoadReport summarizes one corpus load.
type LoadReport struct {
	Read     int `json:"read"`
	Indexed  int `json:"indexed"`
	Embedded int `json:"embedded"`
	Skipped  int `json:"skipped"`
}

// CorpusLoader seeds the keyword and vector backends outside the query path.
type CorpusLoader interface {
	Load(ctx context.Context, docs []domain.RetrievedDocument) (LoadReport, error)
}
