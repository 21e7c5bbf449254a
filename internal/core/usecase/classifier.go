package usecase

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/kirillkom/legal-code-search/internal/core/domain"
)

const MaxQueryLength = 500

const (
	RuleCodeReference = "code_reference"
	RuleSimpleScore   = "simple_score"
	RuleComplexScore  = "complex_score"
	RuleForced        = "forced"
)

const (
	codeReferenceWeight  = 3
	sectionNumberWeight  = 2
	simpleKeywordWeight  = 1
	complexKeywordWeight = 2
	longQueryWeight      = 2
	shortQueryWeight     = 1
	questionMarkWeight   = 2

	longQueryWords  = 10
	shortQueryWords = 4

	// An explicit code reference routes to keyword search unless the
	// complex signal reaches this score.
	codeReferenceComplexCeiling = 3
)

var codeReferencePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(FAM|PEN|CIV|BPC|LAB|VEH|CCP|FC|PC|CC|BP|LC|VC)\s*(\d+(?:\.\d+)?)`),
	regexp.MustCompile(`(?i)(?:\b(?:section|sec)|§)\s*(\d+(?:\.\d+)?)`),
	regexp.MustCompile(`\b(\d{3,5})\b`),
	regexp.MustCompile(`(?i)\b(?:(?:california|ca)\s*)?(?:family|penal|civil|business|labor|vehicle|code)\s*(?:code)?\s*(\d+(?:\.\d+)?)`),
}

var sectionNumberPattern = regexp.MustCompile(`\b\d{3,5}\b`)

// Uppercase abbreviations are recognised on their own; any casing is accepted
// when a section number follows.
var codeAbbreviationPattern = regexp.MustCompile(
	`\b(?:(?i:(FAM|PEN|CIV|BPC|LAB|VEH|CCP|FC|PC|CC|BP|LC|VC))\s*\d|(FAM|PEN|CIV|BPC|LAB|VEH|CCP|FC|PC|CC|BP|LC|VC)\b)`,
)

var codeNamePattern = regexp.MustCompile(
	`(?i)\b(code of civil procedure|civil procedure|business and professions|family|penal|civil|business|labor|vehicle)\b`,
)

var codeAliases = map[string]string{
	"FAM": "FAM",
	"PEN": "PEN",
	"CIV": "CIV",
	"BPC": "BPC",
	"LAB": "LAB",
	"VEH": "VEH",
	"CCP": "CCP",
	"FC":  "FAM",
	"PC":  "PEN",
	"CC":  "CIV",
	"BP":  "BPC",
	"LC":  "LAB",
	"VC":  "VEH",
}

var codeNames = map[string]string{
	"code of civil procedure":  "CCP",
	"civil procedure":          "CCP",
	"business and professions": "BPC",
	"family":                   "FAM",
	"penal":                    "PEN",
	"civil":                    "CIV",
	"business":                 "BPC",
	"labor":                    "LAB",
	"vehicle":                  "VEH",
}

var simpleKeywords = compileKeywords(
	"section", "code", "statute", "law", "what is", "define", "definition",
	"text of", "show me", "find", "lookup", "cite", "citation",
)

var complexKeywords = compileKeywords(
	"how", "why", "when", "explain", "describe", "compare", "difference",
	"what are", "tell me about", "help me understand", "can i", "should i",
	"example", "requirements", "process", "procedure", "steps", "rights",
	"obligations", "penalties", "consequences", "applies to", "does this mean",
)

type keywordMatcher struct {
	term    string
	pattern *regexp.Regexp
}

func compileKeywords(terms ...string) []keywordMatcher {
	out := make([]keywordMatcher, 0, len(terms))
	for _, term := range terms {
		out = append(out, keywordMatcher{
			term:    term,
			pattern: regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(term) + `\b`),
		})
	}
	return out
}

// QueryClassifier decides whether a query is an exact lookup (SIMPLE) or needs
// semantic retrieval and answer synthesis (COMPLEX). It holds no mutable state.
type QueryClassifier struct {
	maxQueryLength int
}

func NewQueryClassifier() *QueryClassifier {
	return &QueryClassifier{maxQueryLength: MaxQueryLength}
}

// ValidateQuery rejects empty and oversized queries.
func (c *QueryClassifier) ValidateQuery(query string) (string, error) {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return "", domain.WrapError(domain.ErrInvalidQuery, "validate query", fmt.Errorf("query is empty"))
	}
	if n := utf8.RuneCountInString(trimmed); n > c.maxQueryLength {
		return "", domain.WrapError(
			domain.ErrInvalidQuery,
			"validate query",
			fmt.Errorf("query has %d characters, limit is %d", n, c.maxQueryLength),
		)
	}
	return trimmed, nil
}

func (c *QueryClassifier) Classify(query string) (domain.ClassificationDecision, error) {
	trimmed, err := c.ValidateQuery(query)
	if err != nil {
		return domain.ClassificationDecision{}, err
	}

	var simpleScore, complexScore int
	hasCodeReference := false

	for _, pattern := range codeReferencePatterns {
		if pattern.MatchString(trimmed) {
			simpleScore += codeReferenceWeight
			hasCodeReference = true
		}
	}
	if sectionNumberPattern.MatchString(trimmed) {
		simpleScore += sectionNumberWeight
	}

	for _, kw := range simpleKeywords {
		if kw.pattern.MatchString(trimmed) {
			simpleScore += simpleKeywordWeight
		}
	}
	for _, kw := range complexKeywords {
		if kw.pattern.MatchString(trimmed) {
			complexScore += complexKeywordWeight
		}
	}

	words := len(strings.Fields(trimmed))
	if words > longQueryWords {
		complexScore += longQueryWeight
	} else if words <= shortQueryWords {
		simpleScore += shortQueryWeight
	}
	if strings.Contains(trimmed, "?") {
		complexScore += questionMarkWeight
	}

	decision := domain.ClassificationDecision{
		SimpleScore:         simpleScore,
		ComplexScore:        complexScore,
		HasCodeReference:    hasCodeReference,
		ExtractedCodeFilter: ExtractCodeFilter(trimmed),
		ExtractedCodes:      extractCodes(trimmed),
		ExtractedSections:   extractSections(trimmed),
	}

	switch {
	case hasCodeReference && complexScore < codeReferenceComplexCeiling:
		decision.Label = domain.LabelSimple
		decision.Rule = RuleCodeReference
		decision.Reason = fmt.Sprintf(
			"Contains specific code/section reference (simple %d vs complex %d)", simpleScore, complexScore,
		)
	case simpleScore > complexScore:
		decision.Label = domain.LabelSimple
		decision.Rule = RuleSimpleScore
		decision.Reason = fmt.Sprintf("Simple query (score: %d vs %d)", simpleScore, complexScore)
	default:
		decision.Label = domain.LabelComplex
		decision.Rule = RuleComplexScore
		decision.Reason = fmt.Sprintf(
			"Complex query requiring semantic understanding (score: %d vs %d)", complexScore, simpleScore,
		)
	}
	return decision, nil
}

// ClassifyWithOverride returns a forced decision when force is set and
// falls back to Classify otherwise. Forced decisions carry no scores.
func (c *QueryClassifier) ClassifyWithOverride(query string, force domain.QueryLabel) (domain.ClassificationDecision, error) {
	if force == "" {
		return c.Classify(query)
	}
	if force != domain.LabelSimple && force != domain.LabelComplex {
		return domain.ClassificationDecision{}, domain.WrapError(
			domain.ErrInvalidInput, "classify", fmt.Errorf("unknown force mode %q", force),
		)
	}
	trimmed, err := c.ValidateQuery(query)
	if err != nil {
		return domain.ClassificationDecision{}, err
	}
	return domain.ClassificationDecision{
		Label:               force,
		ExtractedCodeFilter: ExtractCodeFilter(trimmed),
		ExtractedCodes:      extractCodes(trimmed),
		ExtractedSections:   extractSections(trimmed),
		Rule:                RuleForced,
		Reason:              fmt.Sprintf("Forced %s mode by caller", force),
		Forced:              true,
	}, nil
}

// ExtractCodeFilter returns the first code abbreviation in the query, or the
// first spelled-out code name when no abbreviation is present.
func ExtractCodeFilter(query string) string {
	if m := codeAbbreviationPattern.FindStringSubmatch(query); m != nil {
		return canonicalAbbreviation(m)
	}
	if m := codeNamePattern.FindStringSubmatch(query); m != nil {
		return codeNames[strings.ToLower(m[1])]
	}
	return ""
}

func canonicalAbbreviation(match []string) string {
	token := match[1]
	if token == "" {
		token = match[2]
	}
	return codeAliases[strings.ToUpper(token)]
}

func extractCodes(query string) []string {
	var out []string
	seen := make(map[string]struct{})
	add := func(code string) {
		if code == "" {
			return
		}
		if _, ok := seen[code]; ok {
			return
		}
		seen[code] = struct{}{}
		out = append(out, code)
	}
	for _, m := range codeAbbreviationPattern.FindAllStringSubmatch(query, -1) {
		add(canonicalAbbreviation(m))
	}
	for _, m := range codeNamePattern.FindAllStringSubmatch(query, -1) {
		add(codeNames[strings.ToLower(m[1])])
	}
	return out
}

func extractSections(query string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, pattern := range codeReferencePatterns {
		for _, m := range pattern.FindAllStringSubmatch(query, -1) {
			section := m[len(m)-1]
			if _, ok := seen[section]; ok {
				continue
			}
			seen[section] = struct{}{}
			out = append(out, section)
		}
	}
	return out
}
