package corpus

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/kirillkom/legal-code-search/internal/core/domain"
)

type keywordIndexerFake struct {
	batches [][]domain.RetrievedDocument
	err     error
}

func (f *keywordIndexerFake) Add(_ context.Context, docs []domain.RetrievedDocument) error {
	if f.err != nil {
		return f.err
	}
	f.batches = append(f.batches, append([]domain.RetrievedDocument(nil), docs...))
	return nil
}

type vectorIndexerFake struct {
	ids  []string
	dims []int
}

func (f *vectorIndexerFake) Upsert(_ context.Context, doc domain.RetrievedDocument, embedding []float32) error {
	f.ids = append(f.ids, doc.DocumentID)
	f.dims = append(f.dims, len(embedding))
	return nil
}

type recordingEmbedder struct {
	texts []string
}

func (f *recordingEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.texts = append(f.texts, texts...)
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{0.1, 0.2, 0.3}
	}
	return out, nil
}

func (f *recordingEmbedder) EmbedQuery(context.Context, string) ([]float32, error) {
	return []float32{0.1, 0.2, 0.3}, nil
}

type firstWordsChunker struct{}

func (firstWordsChunker) Split(text string) []string {
	return strings.Fields(text)
}

func TestLoaderBatchesAndSkipsInvalid(t *testing.T) {
	kw := &keywordIndexerFake{}
	vec := &vectorIndexerFake{}
	emb := &recordingEmbedder{}
	loader := NewLoader(kw, vec, emb, firstWordsChunker{}, 2, nil)

	docs := []domain.RetrievedDocument{
		{DocumentID: "PEN-187", Title: "Murder", Content: "Murder is the unlawful killing", CategoryCode: "pen"},
		{DocumentID: "", Content: "orphan"},
		{DocumentID: "PEN-188", Content: "Malice may be express"},
		{DocumentID: "FAM-2310", Content: "   "},
		{DocumentID: "FAM-3011", Title: "Best interest", Content: "In making a determination", RawScore: 9},
	}
	report, err := loader.Load(context.Background(), docs)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if report.Read != 5 || report.Indexed != 3 || report.Embedded != 3 || report.Skipped != 2 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if len(kw.batches) != 2 || len(kw.batches[0]) != 2 || len(kw.batches[1]) != 1 {
		t.Fatalf("unexpected batches: %+v", kw.batches)
	}
	if kw.batches[0][0].CategoryCode != "PEN" {
		t.Fatalf("expected normalized code, got %q", kw.batches[0][0].CategoryCode)
	}
	if kw.batches[1][0].RawScore != 0 {
		t.Fatalf("expected score reset, got %v", kw.batches[1][0].RawScore)
	}
	if strings.Join(vec.ids, ",") != "PEN-187,PEN-188,FAM-3011" {
		t.Fatalf("unexpected upserts: %v", vec.ids)
	}
	if emb.texts[0] != "Murder\nMurder" || emb.texts[1] != "Malice" {
		t.Fatalf("unexpected embedding texts: %q", emb.texts)
	}
}

func TestLoaderKeywordOnly(t *testing.T) {
	kw := &keywordIndexerFake{}
	loader := NewLoader(kw, nil, nil, nil, 0, nil)

	report, err := loader.Load(context.Background(), []domain.RetrievedDocument{{DocumentID: "CIV-1714", Content: "text"}})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if report.Indexed != 1 || report.Embedded != 0 {
		t.Fatalf("unexpected report: %+v", report)
	}
}

func TestLoaderRequiresEmbedderForVectors(t *testing.T) {
	loader := NewLoader(nil, &vectorIndexerFake{}, nil, nil, 0, nil)
	_, err := loader.Load(context.Background(), nil)
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestLoaderStopsOnIndexError(t *testing.T) {
	kw := &keywordIndexerFake{err: errors.New("index closed")}
	loader := NewLoader(kw, nil, nil, nil, 0, nil)

	_, err := loader.Load(context.Background(), []domain.RetrievedDocument{{DocumentID: "a", Content: "b"}})
	if err == nil || !strings.Contains(err.Error(), "index closed") {
		t.Fatalf("expected index error, got %v", err)
	}
}
