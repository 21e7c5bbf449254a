package domain

type QueryLabel string

const (
	LabelSimple  QueryLabel = "SIMPLE"
	LabelComplex QueryLabel = "COMPLEX"
)

// ClassificationDecision explains how a query was routed. It is built once per
// query and never modified afterwards.
type ClassificationDecision struct {
	Label               QueryLabel `json:"label"`
	SimpleScore         int        `json:"simple_score"`
	ComplexScore        int        `json:"complex_score"`
	HasCodeReference    bool       `json:"has_code_reference"`
	ExtractedCodeFilter string     `json:"extracted_code_filter,omitempty"`
	ExtractedCodes      []string   `json:"extracted_codes,omitempty"`
	ExtractedSections   []string   `json:"extracted_sections,omitempty"`
	Rule                string     `json:"rule"`
	Reason              string     `json:"reason"`
	Forced              bool       `json:"forced"`
}

func (d ClassificationDecision) IsSimple() bool {
	return d.Label == LabelSimple
}
