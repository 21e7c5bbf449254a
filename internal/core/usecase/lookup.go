package usecase

import (
	"context"

	"github.com/kirillkom/legal-code-search/internal/core/domain"
	"github.com/kirillkom/legal-code-search/internal/core/ports"
)

// LookupChain asks each store in order and returns the first hit. An error
// from one store is returned only when no later store has the document.
type LookupChain []ports.DocumentLookup

var _ ports.DocumentLookup = LookupChain(nil)

func (c LookupChain) Lookup(ctx context.Context, documentID string) (*domain.RetrievedDocument, error) {
	var lastErr error
	for _, store := range c {
		if store == nil {
			continue
		}
		doc, err := store.Lookup(ctx, documentID)
		if err != nil {
			lastErr = err
			continue
		}
		if doc != nil {
			return doc, nil
		}
	}
	return nil, lastErr
}
