package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pgvector/pgvector-go"

	"github.com/kirillkom/legal-code-search/internal/core/domain"
	"github.com/kirillkom/legal-code-search/internal/core/ports"
)

// VectorRepository serves similarity search from a pgvector table keyed by
// document_id. Scores are cosine similarity (1 - cosine distance).
type VectorRepository struct {
	db        *sql.DB
	table     string
	quoted    string
	dimension int
}

func NewVectorRepository(db *sql.DB, table string, dimension int) *VectorRepository {
	return &VectorRepository{
		db:        db,
		table:     table,
		quoted:    pgx.Identifier{table}.Sanitize(),
		dimension: dimension,
	}
}

var (
	_ ports.VectorSearcher = (*VectorRepository)(nil)
	_ ports.VectorIndexer  = (*VectorRepository)(nil)
	_ ports.DocumentLookup = (*VectorRepository)(nil)
)

func OpenDB(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *VectorRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api and loader startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026101801)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	indexName := pgx.Identifier{"idx_" + r.table + "_embedding"}.Sanitize()
	query := fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS %[1]s (
	document_id TEXT PRIMARY KEY,
	title TEXT NOT NULL DEFAULT '',
	section TEXT NOT NULL DEFAULT '',
	content TEXT NOT NULL DEFAULT '',
	code TEXT NOT NULL DEFAULT '',
	statute_code TEXT NOT NULL DEFAULT '',
	effective_date DATE,
	embedding vector(%[2]d) NOT NULL
);

CREATE INDEX IF NOT EXISTS %[3]s ON %[1]s USING hnsw (embedding vector_cosine_ops);
`, r.quoted, r.dimension, indexName)
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

// Upsert stores one section with its embedding.
func (r *VectorRepository) Upsert(ctx context.Context, doc domain.RetrievedDocument, embedding []float32) error {
	if len(embedding) != r.dimension {
		return domain.WrapError(
			domain.ErrInvalidInput,
			"upsert embedding",
			fmt.Errorf("embedding has %d dimensions, table expects %d", len(embedding), r.dimension),
		)
	}
	var effective any
	if doc.EffectiveDate != nil {
		effective = doc.EffectiveDate.UTC()
	}
	_, err := r.db.ExecContext(ctx, fmt.Sprintf(`
INSERT INTO %s (document_id, title, section, content, code, statute_code, effective_date, embedding)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (document_id) DO UPDATE SET
	title = EXCLUDED.title,
	section = EXCLUDED.section,
	content = EXCLUDED.content,
	code = EXCLUDED.code,
	statute_code = EXCLUDED.statute_code,
	effective_date = EXCLUDED.effective_date,
	embedding = EXCLUDED.embedding
`, r.quoted),
		doc.DocumentID, doc.Title, doc.Section, doc.Content, doc.CategoryCode, doc.StatuteCode,
		effective, pgvector.NewVector(embedding),
	)
	if err != nil {
		return fmt.Errorf("upsert embedding %s: %w", doc.DocumentID, err)
	}
	return nil
}

func (r *VectorRepository) CollectionName() string {
	return r.table
}

func (r *VectorRepository) Search(ctx context.Context, query ports.VectorQuery) ([]domain.RetrievedDocument, error) {
	if len(query.Vector) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "pgvector search", fmt.Errorf("query vector is empty"))
	}

	args := []any{pgvector.NewVector(query.Vector)}
	where := buildWhere(query.Filters, &args)
	if query.ScoreThreshold != nil {
		args = append(args, *query.ScoreThreshold)
		where = append(where, fmt.Sprintf("1 - (embedding <=> $1) >= $%d", len(args)))
	}

	var b strings.Builder
	fmt.Fprintf(&b, `
SELECT document_id, title, section, content, code, statute_code, effective_date, 1 - (embedding <=> $1) AS score
FROM %s`, r.quoted)
	if len(where) > 0 {
		b.WriteString("\nWHERE " + strings.Join(where, " AND "))
	}
	args = append(args, query.Limit, max(query.Offset, 0))
	fmt.Fprintf(&b, "\nORDER BY embedding <=> $1\nLIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := r.db.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("query similar sections: %w", err)
	}
	defer rows.Close()

	out := make([]domain.RetrievedDocument, 0, query.Limit)
	for rows.Next() {
		doc, err := scanDocument(rows, true)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate similar sections: %w", err)
	}
	return out, nil
}

func buildWhere(f domain.SearchFilters, args *[]any) []string {
	var where []string
	add := func(clause string, value any) {
		*args = append(*args, value)
		where = append(where, fmt.Sprintf(clause, len(*args)))
	}
	if f.Code != "" {
		add("code = $%d", f.Code)
	}
	if f.StatuteCode != "" {
		add("statute_code = $%d", f.StatuteCode)
	}
	if f.TitleContains != "" {
		add("title ILIKE '%%' || $%d || '%%'", f.TitleContains)
	}
	if f.DateFrom != nil {
		add("effective_date >= $%d", f.DateFrom.UTC())
	}
	if f.DateTo != nil {
		add("effective_date <= $%d", f.DateTo.UTC())
	}
	return where
}

// Lookup returns (nil, nil) when the document has no embedding row.
func (r *VectorRepository) Lookup(ctx context.Context, documentID string) (*domain.RetrievedDocument, error) {
	row := r.db.QueryRowContext(ctx, fmt.Sprintf(`
SELECT document_id, title, section, content, code, statute_code, effective_date
FROM %s
WHERE document_id = $1
`, r.quoted), documentID)

	doc, err := scanDocument(row, false)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &doc, nil
}

func (r *VectorRepository) Health(ctx context.Context) bool {
	return r.db.PingContext(ctx) == nil
}

func (r *VectorRepository) PointCount(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT count(*) FROM %s`, r.quoted)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count embeddings: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner, withScore bool) (domain.RetrievedDocument, error) {
	var doc domain.RetrievedDocument
	var effective sql.NullTime
	dest := []any{
		&doc.DocumentID, &doc.Title, &doc.Section, &doc.Content, &doc.CategoryCode, &doc.StatuteCode, &effective,
	}
	if withScore {
		dest = append(dest, &doc.RawScore)
	}
	if err := row.Scan(dest...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return doc, err
		}
		return doc, fmt.Errorf("scan section: %w", err)
	}
	if effective.Valid {
		t := effective.Time
		doc.EffectiveDate = &t
	}
	doc.Source = domain.SourceVector
	return doc, nil
}
