package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/kirillkom/legal-code-search/internal/core/domain"
)

type failingLookup struct{ err error }

func (f failingLookup) Lookup(context.Context, string) (*domain.RetrievedDocument, error) {
	return nil, f.err
}

func TestLookupChainFallsThroughMissesAndErrors(t *testing.T) {
	chain := LookupChain{
		failingLookup{err: errors.New("qdrant down")},
		&lookupFake{docs: map[string]domain.RetrievedDocument{}},
		&lookupFake{docs: map[string]domain.RetrievedDocument{"pen-187": doc("pen-187", "PEN", "187", 0)}},
	}
	got, err := chain.Lookup(context.Background(), "pen-187")
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if got == nil || got.DocumentID != "pen-187" {
		t.Fatalf("expected pen-187, got %+v", got)
	}
}

func TestLookupChainReportsErrorWhenNothingFound(t *testing.T) {
	chain := LookupChain{failingLookup{err: errors.New("qdrant down")}, nil, &lookupFake{}}
	got, err := chain.Lookup(context.Background(), "pen-187")
	if got != nil || err == nil || err.Error() != "qdrant down" {
		t.Fatalf("expected qdrant error and no document, got %+v / %v", got, err)
	}

	got, err = LookupChain{&lookupFake{}}.Lookup(context.Background(), "pen-187")
	if got != nil || err != nil {
		t.Fatalf("expected clean miss, got %+v / %v", got, err)
	}
}
