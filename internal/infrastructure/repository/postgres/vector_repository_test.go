package postgres

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/kirillkom/legal-code-search/internal/core/domain"
	"github.com/kirillkom/legal-code-search/internal/core/ports"
)

func newRepoWithMock(t *testing.T) (*VectorRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	return NewVectorRepository(db, "legal_code_embeddings", 3), mock, func() { _ = db.Close() }
}

var sectionColumns = []string{"document_id", "title", "section", "content", "code", "statute_code", "effective_date", "score"}

func TestSearchBuildsFilteredSimilarityQuery(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	effective := time.Date(2019, 1, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta(`FROM "legal_code_embeddings"`) + `\s+WHERE code = \$2 AND 1 - \(embedding <=> \$1\) >= \$3\s+ORDER BY embedding <=> \$1\s+LIMIT \$4 OFFSET \$5`).
		WithArgs(sqlmock.AnyArg(), "FAM", 0.7, 10, 0).
		WillReturnRows(sqlmock.NewRows(sectionColumns).
			AddRow("FAM-3044", "Presumption", "3044", "text", "FAM", "", effective, 0.91).
			AddRow("FAM-3011", "Best interest", "3011", "text", "FAM", "", nil, 0.83))

	threshold := 0.7
	docs, err := repo.Search(context.Background(), ports.VectorQuery{
		Vector:         []float32{0.1, 0.2, 0.3},
		Limit:          10,
		Filters:        domain.SearchFilters{Code: "FAM"},
		ScoreThreshold: &threshold,
	})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("expected 2 docs, got %d", len(docs))
	}
	if docs[0].RawScore != 0.91 || docs[0].Source != domain.SourceVector || docs[0].EffectiveDate == nil {
		t.Fatalf("unexpected first doc %+v", docs[0])
	}
	if docs[1].EffectiveDate != nil {
		t.Fatalf("expected NULL effective date to stay nil")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSearchRejectsEmptyVector(t *testing.T) {
	repo, _, done := newRepoWithMock(t)
	defer done()

	_, err := repo.Search(context.Background(), ports.VectorQuery{Limit: 5})
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestLookupReturnsNilWhenMissing(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectQuery("SELECT document_id, title, section").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	doc, err := repo.Lookup(context.Background(), "missing")
	if err != nil || doc != nil {
		t.Fatalf("expected (nil, nil), got %+v, %v", doc, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestUpsertValidatesDimension(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	err := repo.Upsert(context.Background(), domain.RetrievedDocument{DocumentID: "PEN-187"}, []float32{0.1})
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}

	mock.ExpectExec(`INSERT INTO "legal_code_embeddings"`).
		WithArgs("PEN-187", "Murder", "187", "", "PEN", "", nil, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	err = repo.Upsert(context.Background(), domain.RetrievedDocument{
		DocumentID:   "PEN-187",
		Title:        "Murder",
		Section:      "187",
		CategoryCode: "PEN",
	}, []float32{0.1, 0.2, 0.3})
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPointCount(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT count(*) FROM "legal_code_embeddings"`)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(77)))

	n, err := repo.PointCount(context.Background())
	if err != nil || n != 77 {
		t.Fatalf("PointCount() = %d, %v", n, err)
	}
}
