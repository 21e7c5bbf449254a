package httpadapter

import (
	"context"
	"sync"

	"github.com/kirillkom/legal-code-search/internal/core/domain"
	"github.com/kirillkom/legal-code-search/internal/core/ports"
)

type searchServiceFake struct {
	mu sync.Mutex

	decision domain.ClassificationDecision
	search   *ports.SearchResponse
	answer   *ports.AnswerResponse
	doc      *domain.RetrievedDocument
	report   domain.HealthReport
	err      error

	searchReqs []ports.SearchRequest
	answerReqs []ports.AnswerRequest
	forced     []domain.QueryLabel
	requestIDs []string
}

func (f *searchServiceFake) Classify(_ string, forceMode domain.QueryLabel) (domain.ClassificationDecision, error) {
	f.mu.Lock()
	f.forced = append(f.forced, forceMode)
	f.mu.Unlock()
	if f.err != nil {
		return domain.ClassificationDecision{}, f.err
	}
	return f.decision, nil
}

func (f *searchServiceFake) Search(ctx context.Context, req ports.SearchRequest) (*ports.SearchResponse, error) {
	f.mu.Lock()
	f.searchReqs = append(f.searchReqs, req)
	f.requestIDs = append(f.requestIDs, ports.RequestIDFromContext(ctx))
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if f.search != nil {
		return f.search, nil
	}
	return &ports.SearchResponse{Query: req.Query, Mode: req.Mode, Results: []domain.FusedResult{}}, nil
}

func (f *searchServiceFake) Answer(_ context.Context, req ports.AnswerRequest) (*ports.AnswerResponse, error) {
	f.mu.Lock()
	f.answerReqs = append(f.answerReqs, req)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if f.answer != nil {
		return f.answer, nil
	}
	return &ports.AnswerResponse{Query: req.Query, Results: []domain.FusedResult{}}, nil
}

func (f *searchServiceFake) GetDocument(_ context.Context, documentID string) (*domain.RetrievedDocument, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.doc != nil {
		return f.doc, nil
	}
	return &domain.RetrievedDocument{DocumentID: documentID}, nil
}

func (f *searchServiceFake) Health(context.Context) domain.HealthReport {
	return f.report
}
