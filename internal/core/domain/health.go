package domain

import "time"

type HealthStatus string

const (
	HealthHealthy  HealthStatus = "healthy"
	HealthDegraded HealthStatus = "degraded"
)

type KeywordHealth struct {
	Backend       string `json:"backend"`
	Connected     bool   `json:"connected"`
	Index         string `json:"index"`
	DocumentCount int64  `json:"document_count"`
	Error         string `json:"error,omitempty"`
}

type VectorHealth struct {
	Backend    string `json:"backend"`
	Connected  bool   `json:"connected"`
	Collection string `json:"collection"`
	PointCount int64  `json:"point_count"`
	Error      string `json:"error,omitempty"`
}

type EmbeddingHealth struct {
	Loaded    bool   `json:"loaded"`
	Model     string `json:"model"`
	Dimension int    `json:"dimension"`
}

type GenerationHealth struct {
	Configured bool   `json:"configured"`
	Model      string `json:"model,omitempty"`
}

type HealthReport struct {
	Status     HealthStatus     `json:"status"`
	Keyword    KeywordHealth    `json:"keyword"`
	Vector     VectorHealth     `json:"vector"`
	Embedding  EmbeddingHealth  `json:"embedding_model"`
	Generation GenerationHealth `json:"generation"`
	CheckedAt  time.Time        `json:"checked_at"`
}

// QueryEvent is published after every answered query.
type QueryEvent struct {
	RequestID       string     `json:"request_id,omitempty"`
	Query           string     `json:"query"`
	Label           QueryLabel `json:"label,omitempty"`
	Mode            SearchMode `json:"mode"`
	ResultCount     int        `json:"result_count"`
	DegradedSources []Source   `json:"degraded_sources,omitempty"`
	GenerationUsed  string     `json:"generation_method,omitempty"`
	DurationMs      float64    `json:"duration_ms"`
	OccurredAt      time.Time  `json:"occurred_at"`
}
