package corpus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kirillkom/legal-code-search/internal/core/domain"
	"github.com/kirillkom/legal-code-search/internal/core/ports"
)

const DefaultBatchSize = 64

var _ ports.CorpusLoader = (*Loader)(nil)

// Loader seeds the embedded backends from a corpus export. It writes code
// sections into the keyword index and, when a vector store is configured,
// embeds and stores them as well. Either indexer may be nil.
type Loader struct {
	keyword   ports.KeywordIndexer
	vector    ports.VectorIndexer
	embedder  ports.Embedder
	chunker   ports.Chunker
	batchSize int
	logger    *slog.Logger
}

func NewLoader(
	keyword ports.KeywordIndexer,
	vector ports.VectorIndexer,
	embedder ports.Embedder,
	chunker ports.Chunker,
	batchSize int,
	logger *slog.Logger,
) *Loader {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{
		keyword:   keyword,
		vector:    vector,
		embedder:  embedder,
		chunker:   chunker,
		batchSize: batchSize,
		logger:    logger,
	}
}

// Load indexes docs batch by batch. Records without an ID or content are
// skipped and counted; backend errors abort the load.
func (l *Loader) Load(ctx context.Context, docs []domain.RetrievedDocument) (ports.LoadReport, error) {
	report := ports.LoadReport{Read: len(docs)}
	if l.keyword == nil && l.vector == nil {
		return report, domain.WrapError(domain.ErrInvalidInput, "load corpus", errors.New("no indexer configured"))
	}
	if l.vector != nil && l.embedder == nil {
		return report, domain.WrapError(domain.ErrInvalidInput, "load corpus", errors.New("vector indexer requires an embedder"))
	}

	valid := make([]domain.RetrievedDocument, 0, len(docs))
	for _, doc := range docs {
		if err := validateSection(doc); err != nil {
			l.logger.Warn("corpus_record_skipped", "document_id", doc.DocumentID, "error", err)
			report.Skipped++
			continue
		}
		valid = append(valid, normalizeSection(doc))
	}

	for start := 0; start < len(valid); start += l.batchSize {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		end := min(start+l.batchSize, len(valid))
		batch := valid[start:end]

		if l.keyword != nil {
			if err := l.keyword.Add(ctx, batch); err != nil {
				return report, fmt.Errorf("index keyword batch at %d: %w", start, err)
			}
		}
		report.Indexed += len(batch)

		if l.vector != nil {
			if err := l.embedBatch(ctx, batch); err != nil {
				return report, fmt.Errorf("embed batch at %d: %w", start, err)
			}
			report.Embedded += len(batch)
		}
		l.logger.Info("corpus_batch_loaded", "from", start, "to", end, "total", len(valid))
	}
	return report, nil
}

func (l *Loader) embedBatch(ctx context.Context, batch []domain.RetrievedDocument) error {
	texts := make([]string, len(batch))
	for i, doc := range batch {
		texts[i] = l.embeddingText(doc)
	}
	vectors, err := l.embedder.Embed(ctx, texts)
	if err != nil {
		return err
	}
	if len(vectors) != len(batch) {
		return domain.WrapError(
			domain.ErrInvalidInput,
			"embed sections",
			fmt.Errorf("vectors/sections mismatch: %d/%d", len(vectors), len(batch)),
		)
	}
	for i, doc := range batch {
		if err := l.vector.Upsert(ctx, doc, vectors[i]); err != nil {
			return fmt.Errorf("upsert %s: %w", doc.DocumentID, err)
		}
	}
	return nil
}

// embeddingText is the title followed by the first content chunk, so long
// sections fit the embedding model's input window.
func (l *Loader) embeddingText(doc domain.RetrievedDocument) string {
	content := doc.Content
	if l.chunker != nil {
		if chunks := l.chunker.Split(content); len(chunks) > 0 {
			content = chunks[0]
		}
	}
	if doc.Title == "" {
		return content
	}
	return doc.Title + "\n" + content
}

func validateSection(doc domain.RetrievedDocument) error {
	if strings.TrimSpace(doc.DocumentID) == "" {
		return errors.New("document_id is empty")
	}
	if strings.TrimSpace(doc.Content) == "" {
		return errors.New("content is empty")
	}
	return nil
}

func normalizeSection(doc domain.RetrievedDocument) domain.RetrievedDocument {
	doc.DocumentID = strings.TrimSpace(doc.DocumentID)
	doc.CategoryCode = strings.ToUpper(strings.TrimSpace(doc.CategoryCode))
	doc.Section = strings.TrimSpace(doc.Section)
	doc.RawScore = 0
	doc.Source = ""
	return doc
}
