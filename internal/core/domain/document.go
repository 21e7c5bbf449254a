package domain

import "time"

// Source identifies the retrieval backend a record came from.
type Source string

const (
	SourceKeyword Source = "KEYWORD"
	SourceVector  Source = "VECTOR"
)

// RetrievedDocument is a single legal code section as returned by one backend.
// DocumentID is the only identity used to merge records across backends.
type RetrievedDocument struct {
	DocumentID    string     `json:"document_id"`
	Title         string     `json:"title"`
	Section       string     `json:"section"`
	Content       string     `json:"content"`
	CategoryCode  string     `json:"code"`
	StatuteCode   string     `json:"statute_code,omitempty"`
	EffectiveDate *time.Time `json:"effective_date,omitempty"`
	RawScore      float64    `json:"score"`
	Source        Source     `json:"source"`
}

// Reference renders the "CODE §section" citation of the document.
func (d RetrievedDocument) Reference() string {
	switch {
	case d.CategoryCode != "" && d.Section != "":
		return d.CategoryCode + " §" + d.Section
	case d.Section != "":
		return "§" + d.Section
	case d.CategoryCode != "":
		return d.CategoryCode
	default:
		return d.DocumentID
	}
}

// RankedList is one backend's answer to one query. Position 0 is rank 1.
type RankedList struct {
	Source    Source              `json:"source"`
	Query     string              `json:"query"`
	Documents []RetrievedDocument `json:"documents"`
	Total     int                 `json:"total"`
}

// FusedResult is a deduplicated document with its merged score.
// FusedScore is only comparable within the fusion call that produced it.
type FusedResult struct {
	Document            RetrievedDocument `json:"document"`
	FusedScore          float64           `json:"fused_score"`
	ContributingSources []Source          `json:"contributing_sources"`
}

// HasSource reports whether src contributed to the result.
func (r FusedResult) HasSource(src Source) bool {
	for _, s := range r.ContributingSources {
		if s == src {
			return true
		}
	}
	return false
}

type SearchFilters struct {
	Code          string     `json:"code,omitempty"`
	StatuteCode   string     `json:"statute_code,omitempty"`
	TitleContains string     `json:"title,omitempty"`
	DateFrom      *time.Time `json:"effective_date_from,omitempty"`
	DateTo        *time.Time `json:"effective_date_to,omitempty"`
}

func (f SearchFilters) IsZero() bool {
	return f.Code == "" && f.StatuteCode == "" && f.TitleContains == "" && f.DateFrom == nil && f.DateTo == nil
}
