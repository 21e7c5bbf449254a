package domain

import (
	"fmt"
	"math"
	"strings"
)

type SearchMode string

const (
	ModeKeyword SearchMode = "KEYWORD"
	ModeVector  SearchMode = "VECTOR"
	ModeHybrid  SearchMode = "HYBRID"
	ModeAuto    SearchMode = "AUTO"
)

// ParseSearchMode accepts the mode names used on the wire, case-insensitively.
// An empty value means AUTO.
func ParseSearchMode(raw string) (SearchMode, error) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "", "AUTO", "INTELLIGENT":
		return ModeAuto, nil
	case "KEYWORD":
		return ModeKeyword, nil
	case "VECTOR", "SEMANTIC":
		return ModeVector, nil
	case "HYBRID":
		return ModeHybrid, nil
	default:
		return "", WrapError(ErrInvalidInput, "parse search mode", fmt.Errorf("unknown mode %q", raw))
	}
}

type FusionMethod string

const (
	FusionRRF      FusionMethod = "rrf"
	FusionWeighted FusionMethod = "weighted"
)

func ParseFusionMethod(raw string) (FusionMethod, error) {
	switch FusionMethod(strings.ToLower(strings.TrimSpace(raw))) {
	case FusionRRF:
		return FusionRRF, nil
	case FusionWeighted:
		return FusionWeighted, nil
	default:
		return "", WrapError(ErrInvalidInput, "parse fusion method", fmt.Errorf("unknown method %q", raw))
	}
}

// weightSumTolerance is how far weighted-fusion weights may drift from 1.0.
const weightSumTolerance = 0.01

// ResolveFusionWeights merges caller weights over the defaults. A single
// given weight implies its complement. Each weight must lie in [0,1], and
// weighted fusion needs them to sum to 1.
func ResolveFusionWeights(method FusionMethod, keyword, semantic *float64, defKeyword, defSemantic float64) (float64, float64, error) {
	kw, sem := defKeyword, defSemantic
	switch {
	case keyword != nil && semantic != nil:
		kw, sem = *keyword, *semantic
	case keyword != nil:
		kw, sem = *keyword, 1-*keyword
	case semantic != nil:
		kw, sem = 1-*semantic, *semantic
	}
	if kw < 0 || kw > 1 || sem < 0 || sem > 1 {
		return 0, 0, WrapError(ErrInvalidInput, "fusion weights",
			fmt.Errorf("weights must be within 0..1, got keyword=%v semantic=%v", kw, sem))
	}
	if method == FusionWeighted && math.Abs(kw+sem-1) > weightSumTolerance {
		return 0, 0, WrapError(ErrInvalidInput, "fusion weights",
			fmt.Errorf("weighted fusion needs weights summing to 1.0, got %v", kw+sem))
	}
	return kw, sem, nil
}

// ValidateScoreThreshold accepts nil or a cosine score in [0,1].
func ValidateScoreThreshold(threshold *float64) error {
	if threshold != nil && (*threshold < 0 || *threshold > 1) {
		return WrapError(ErrInvalidInput, "score threshold", fmt.Errorf("must be within 0..1, got %v", *threshold))
	}
	return nil
}

type GenerationMethod string

const (
	GenerationModel    GenerationMethod = "MODEL_GENERATED"
	GenerationTemplate GenerationMethod = "TEMPLATE_FALLBACK"
)

// RAGContext is the answer assembled over the top fused documents of one query.
type RAGContext struct {
	DocumentsUsed    []FusedResult    `json:"documents_used"`
	RelevantSections []string         `json:"relevant_sections"`
	Summary          string           `json:"summary"`
	GenerationMethod GenerationMethod `json:"generation_method"`
	FallbackReason   string           `json:"fallback_reason,omitempty"`
}
