package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/kirillkom/legal-code-search/internal/core/domain"
)

func fusedOf(docs ...domain.RetrievedDocument) []domain.FusedResult {
	return singleSource(rankedList(domain.SourceVector, docs...))
}

func TestAssembleEmptyContextReturnsFixedMessage(t *testing.T) {
	for _, a := range []*AnswerAssembler{
		NewAnswerAssembler(AssemblerConfig{}),
		NewAnswerAssembler(AssemblerConfig{}, WithGenerator(&generatorFake{text: "unused"})),
	} {
		got := a.Assemble(context.Background(), "anything", nil, 5)
		if got.Summary != NoRelevantSectionsAnswer {
			t.Fatalf("unexpected summary %q", got.Summary)
		}
		if got.GenerationMethod != domain.GenerationTemplate {
			t.Fatalf("expected template fallback, got %s", got.GenerationMethod)
		}
		if len(got.DocumentsUsed) != 0 {
			t.Fatalf("expected no documents used")
		}
	}
}

func TestAssembleWithoutGeneratorUsesTemplate(t *testing.T) {
	a := NewAnswerAssembler(AssemblerConfig{})
	fused := fusedOf(
		doc("fam-3011", "FAM", "3011", 0.9),
		doc("fam-3020", "FAM", "3020", 0.8),
		doc("fam-3040", "FAM", "3040", 0.7),
		doc("fam-3044", "FAM", "3044", 0.6),
	)

	got := a.Assemble(context.Background(), "custody factors", fused, 5)
	if got.GenerationMethod != domain.GenerationTemplate {
		t.Fatalf("expected template, got %s", got.GenerationMethod)
	}
	want := "Your query relates to the FAM (California Family Code). " +
		"\nThe most relevant sections are: 1. FAM Section 3011 2. FAM Section 3020 3. FAM Section 3040 " +
		"\nReview the detailed content below for complete information."
	if got.Summary != want {
		t.Fatalf("unexpected summary:\n%q\nwant:\n%q", got.Summary, want)
	}
	if len(got.RelevantSections) != 4 || got.RelevantSections[0] != "FAM §3011" {
		t.Fatalf("unexpected relevant sections %v", got.RelevantSections)
	}
	if a.GenerationEnabled() {
		t.Fatalf("generation must be reported as disabled")
	}
}

func TestTemplateSummaryMultipleCodes(t *testing.T) {
	summary := TemplateSummary(fusedOf(doc("a", "PEN", "187", 1), doc("b", "CIV", "1714", 1), doc("c", "PEN", "188", 1)))
	if !strings.HasPrefix(summary, "Your query involves multiple codes: PEN, CIV.") {
		t.Fatalf("unexpected summary %q", summary)
	}
}

func TestAssembleRespectsContextLimit(t *testing.T) {
	a := NewAnswerAssembler(AssemblerConfig{})
	fused := fusedOf(doc("a", "FAM", "1", 1), doc("b", "FAM", "2", 1), doc("c", "FAM", "3", 1))

	got := a.Assemble(context.Background(), "q", fused, 2)
	if len(got.DocumentsUsed) != 2 || got.DocumentsUsed[1].Document.DocumentID != "b" {
		t.Fatalf("expected the first two fused documents, got %+v", got.DocumentsUsed)
	}
}

func TestAssembleWithGeneratorUsesModel(t *testing.T) {
	gen := &generatorFake{text: "  Under FAM §3044 there is a rebuttable presumption.  "}
	a := NewAnswerAssembler(AssemblerConfig{}, WithGenerator(gen))
	long := doc("fam-3044", "FAM", "3044", 0.9)
	long.Content = strings.Repeat("x", 800)

	got := a.Assemble(context.Background(), "domestic violence custody", fusedOf(long), 5)
	if got.GenerationMethod != domain.GenerationModel {
		t.Fatalf("expected model generation, got %s (%s)", got.GenerationMethod, got.FallbackReason)
	}
	if got.Summary != "Under FAM §3044 there is a rebuttable presumption." {
		t.Fatalf("unexpected summary %q", got.Summary)
	}
	if gen.req.SystemPrompt != LegalSystemPrompt {
		t.Fatalf("expected fixed system prompt")
	}
	if gen.req.MaxTokens != 300 || gen.req.Temperature != 0 {
		t.Fatalf("unexpected generation params %+v", gen.req)
	}
	if !strings.HasPrefix(gen.req.Context, "[1] FAM Section 3044:\n") {
		t.Fatalf("unexpected context block %q", gen.req.Context[:40])
	}
	if strings.Count(gen.req.Context, "x") != DefaultContextExcerpt {
		t.Fatalf("excerpt must be capped at %d characters", DefaultContextExcerpt)
	}
	if !a.GenerationEnabled() {
		t.Fatalf("generation must be reported as enabled")
	}
}

func TestAssembleGenerationFailureFallsBackToTemplate(t *testing.T) {
	for name, gen := range map[string]*generatorFake{
		"error": {err: errors.New("model timeout")},
		"empty": {text: "   "},
	} {
		a := NewAnswerAssembler(AssemblerConfig{Temperature: 0.3}, WithGenerator(gen), WithAssemblerLogger(quietLogger()))
		fused := fusedOf(doc("pen-187", "PEN", "187", 0.9))

		got := a.Assemble(context.Background(), "murder definition", fused, 5)
		if got.GenerationMethod != domain.GenerationTemplate {
			t.Fatalf("%s: expected template fallback, got %s", name, got.GenerationMethod)
		}
		if got.FallbackReason == "" {
			t.Fatalf("%s: fallback reason must be recorded", name)
		}
		if !strings.HasPrefix(got.Summary, "Your query relates to the PEN (California Penal Code).") {
			t.Fatalf("%s: unexpected summary %q", name, got.Summary)
		}
		if gen.req.Temperature != 0.3 {
			t.Fatalf("%s: expected configured temperature, got %f", name, gen.req.Temperature)
		}
	}
}
