package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kirillkom/legal-code-search/internal/core/domain"
	"github.com/kirillkom/legal-code-search/internal/core/ports"
)

const (
	DefaultContextLimit      = 5
	DefaultContextExcerpt    = 500
	DefaultGenerationTokens  = 300
	DefaultGenerationTemp    = 0.3
	templateMaxReferences    = 3
	NoRelevantSectionsAnswer = "No relevant sections found for your query."
)

const LegalSystemPrompt = `You are an expert legal assistant specializing in California law.
Answer the user's question using ONLY the code sections provided in the context.
Cite the code and section number for every statement you make.
If the provided sections do not answer the question, say so plainly and do not speculate.
Keep the answer concise and in plain language.`

var codeDisplayNames = map[string]string{
	"FAM": "Family Code",
	"PEN": "Penal Code",
	"CIV": "Civil Code",
	"BPC": "Business and Professions Code",
	"LAB": "Labor Code",
	"VEH": "Vehicle Code",
	"CCP": "Code of Civil Procedure",
}

type AssemblerConfig struct {
	ContextLimit int
	ExcerptChars int
	MaxTokens    int
	Temperature  float64
	SystemPrompt string
}

func (c AssemblerConfig) normalize() AssemblerConfig {
	out := c
	if out.ContextLimit <= 0 {
		out.ContextLimit = DefaultContextLimit
	}
	if out.ExcerptChars <= 0 {
		out.ExcerptChars = DefaultContextExcerpt
	}
	if out.MaxTokens <= 0 {
		out.MaxTokens = DefaultGenerationTokens
	}
	if out.Temperature < 0 {
		out.Temperature = DefaultGenerationTemp
	}
	if strings.TrimSpace(out.SystemPrompt) == "" {
		out.SystemPrompt = LegalSystemPrompt
	}
	return out
}

// summarizer turns a context window into answer text.
type summarizer interface {
	summarize(ctx context.Context, query, contextBlock string, docs []domain.FusedResult) (string, domain.GenerationMethod, string)
}

// templateSummarizer is used when no generation backend is configured. It
// never fails.
type templateSummarizer struct{}

func (templateSummarizer) summarize(
	_ context.Context,
	_ string,
	_ string,
	docs []domain.FusedResult,
) (string, domain.GenerationMethod, string) {
	return TemplateSummary(docs), domain.GenerationTemplate, "generation backend not configured"
}

// modelSummarizer calls the generation backend and degrades to the template on
// any failure.
type modelSummarizer struct {
	generator ports.AnswerGenerator
	cfg       AssemblerConfig
	logger    *slog.Logger
}

func (m modelSummarizer) summarize(
	ctx context.Context,
	query string,
	contextBlock string,
	docs []domain.FusedResult,
) (string, domain.GenerationMethod, string) {
	text, err := m.generator.GenerateAnswer(ctx, ports.GenerationRequest{
		Query:        query,
		Context:      contextBlock,
		MaxTokens:    m.cfg.MaxTokens,
		Temperature:  m.cfg.Temperature,
		SystemPrompt: m.cfg.SystemPrompt,
	})
	if err == nil && strings.TrimSpace(text) == "" {
		err = fmt.Errorf("empty completion")
	}
	if err != nil {
		err = domain.WrapError(domain.ErrGenerationFailure, "generate answer", err)
		m.logger.Warn("answer_generation_fallback", "query", query, "error", err)
		return TemplateSummary(docs), domain.GenerationTemplate, err.Error()
	}
	return strings.TrimSpace(text), domain.GenerationModel, ""
}

type AssemblerOption func(*AnswerAssembler)

// WithGenerator enables model-generated answers.
func WithGenerator(generator ports.AnswerGenerator) AssemblerOption {
	return func(a *AnswerAssembler) {
		a.generator = generator
	}
}

func WithAssemblerLogger(logger *slog.Logger) AssemblerOption {
	return func(a *AnswerAssembler) {
		if logger != nil {
			a.logger = logger
		}
	}
}

func WithAssemblerObserver(observer ports.SearchObserver) AssemblerOption {
	return func(a *AnswerAssembler) {
		if observer != nil {
			a.observer = observer
		}
	}
}

// AnswerAssembler builds the RAG context for complex queries.
type AnswerAssembler struct {
	cfg        AssemblerConfig
	generator  ports.AnswerGenerator
	summarizer summarizer
	logger     *slog.Logger
	observer   ports.SearchObserver
}

// NewAnswerAssembler uses the template summarizer unless a generator is
// supplied with WithGenerator.
func NewAnswerAssembler(cfg AssemblerConfig, opts ...AssemblerOption) *AnswerAssembler {
	a := &AnswerAssembler{
		cfg:      cfg.normalize(),
		logger:   slog.Default(),
		observer: ports.NoopSearchObserver{},
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.generator != nil {
		a.summarizer = modelSummarizer{generator: a.generator, cfg: a.cfg, logger: a.logger}
	} else {
		a.summarizer = templateSummarizer{}
	}
	return a
}

func (a *AnswerAssembler) ContextLimit() int {
	return a.cfg.ContextLimit
}

// GenerationEnabled reports whether a generation backend is wired.
func (a *AnswerAssembler) GenerationEnabled() bool {
	_, ok := a.summarizer.(modelSummarizer)
	return ok
}

// Assemble takes the first contextLimit fused results as the context window.
// A non-positive contextLimit uses the configured default.
func (a *AnswerAssembler) Assemble(
	ctx context.Context,
	query string,
	fused []domain.FusedResult,
	contextLimit int,
) domain.RAGContext {
	if contextLimit <= 0 {
		contextLimit = a.cfg.ContextLimit
	}
	window := fused
	if len(window) > contextLimit {
		window = window[:contextLimit]
	}

	out := domain.RAGContext{
		DocumentsUsed:    window,
		RelevantSections: relevantSections(window),
	}
	if len(window) == 0 {
		out.Summary = NoRelevantSectionsAnswer
		out.GenerationMethod = domain.GenerationTemplate
		out.FallbackReason = "no context documents"
		a.observer.ObserveGeneration(out.GenerationMethod)
		return out
	}

	block := BuildContextBlock(window, a.cfg.ExcerptChars)
	out.Summary, out.GenerationMethod, out.FallbackReason = a.summarizer.summarize(ctx, query, block, window)
	a.observer.ObserveGeneration(out.GenerationMethod)
	return out
}

// BuildContextBlock renders "[i] CODE Section S:" headers followed by a
// content excerpt capped at maxChars runes.
func BuildContextBlock(docs []domain.FusedResult, maxChars int) string {
	var b strings.Builder
	for i, r := range docs {
		doc := r.Document
		fmt.Fprintf(&b, "[%d] %s Section %s:\n%s\n\n", i+1, doc.CategoryCode, doc.Section, truncateRunes(doc.Content, maxChars))
	}
	return b.String()
}

// TemplateSummary is the deterministic answer used without a model.
func TemplateSummary(docs []domain.FusedResult) string {
	if len(docs) == 0 {
		return NoRelevantSectionsAnswer
	}

	var codes []string
	seen := make(map[string]struct{})
	for _, r := range docs {
		code := strings.TrimSpace(r.Document.CategoryCode)
		if code == "" {
			continue
		}
		if _, ok := seen[code]; ok {
			continue
		}
		seen[code] = struct{}{}
		codes = append(codes, code)
	}

	parts := make([]string, 0, templateMaxReferences+4)
	switch len(codes) {
	case 0:
		parts = append(parts, "Your query matched the following sections.")
	case 1:
		name := codeDisplayNames[codes[0]]
		if name == "" {
			name = codes[0]
		}
		parts = append(parts, fmt.Sprintf("Your query relates to the %s (California %s).", codes[0], name))
	default:
		parts = append(parts, fmt.Sprintf("Your query involves multiple codes: %s.", strings.Join(codes, ", ")))
	}

	parts = append(parts, "\nThe most relevant sections are:")
	for i, r := range docs {
		if i == templateMaxReferences {
			break
		}
		parts = append(parts, fmt.Sprintf("%d. %s Section %s", i+1, r.Document.CategoryCode, r.Document.Section))
	}
	parts = append(parts, "\nReview the detailed content below for complete information.")
	return strings.Join(parts, " ")
}

func relevantSections(docs []domain.FusedResult) []string {
	out := make([]string, 0, len(docs))
	for _, r := range docs {
		out = append(out, r.Document.Reference())
	}
	return out
}

func truncateRunes(s string, limit int) string {
	if limit <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
