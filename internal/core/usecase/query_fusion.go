package usecase

import (
	"fmt"
	"sort"

	"github.com/kirillkom/legal-code-search/internal/core/domain"
)

const DefaultRRFK = 60

// RankFuser merges ranked lists from several backends into one ordering.
//
// Lists are processed in the order given: the first list to mention a document
// supplies its attributes, later lists only add score and sources. Results are
// ordered by fused score, then by the number of lists that contained the
// document, then by first appearance (list order, then rank). A document that
// appears more than once in the same list counts only at its best rank.
type RankFuser struct {
	rrfK int
}

func NewRankFuser(rrfK int) RankFuser {
	if rrfK <= 0 {
		rrfK = DefaultRRFK
	}
	return RankFuser{rrfK: rrfK}
}

func (f RankFuser) RRFK() int {
	return f.rrfK
}

type fusedCandidate struct {
	doc       domain.RetrievedDocument
	score     float64
	sources   []domain.Source
	listCount int
}

// Fuse combines lists with the given method. Weights are only read for the
// weighted method and must line up one-to-one with lists. They are not
// required to sum to 1.0; when they don't, fused scores drift out of [0,1]
// and the heavier source dominates proportionally.
func (f RankFuser) Fuse(
	lists []domain.RankedList,
	method domain.FusionMethod,
	weights []float64,
) ([]domain.FusedResult, error) {
	var contribution func(listIdx int, list domain.RankedList) []float64

	switch method {
	case domain.FusionRRF, "":
		contribution = func(_ int, list domain.RankedList) []float64 {
			out := make([]float64, len(list.Documents))
			for rank := range list.Documents {
				out[rank] = 1.0 / float64(f.rrfK+rank+1)
			}
			return out
		}
	case domain.FusionWeighted:
		if len(weights) != len(lists) {
			return nil, domain.WrapError(
				domain.ErrFusionInputMismatch,
				"fuse weighted",
				fmt.Errorf("got %d weights for %d lists", len(weights), len(lists)),
			)
		}
		contribution = func(listIdx int, list domain.RankedList) []float64 {
			normalized := minMaxNormalize(list.Documents)
			for i := range normalized {
				normalized[i] *= weights[listIdx]
			}
			return normalized
		}
	default:
		return nil, domain.WrapError(domain.ErrInvalidInput, "fuse", fmt.Errorf("unknown fusion method %q", method))
	}

	total := 0
	for _, list := range lists {
		total += len(list.Documents)
	}

	order := make([]string, 0, total)
	acc := make(map[string]*fusedCandidate, total)

	for listIdx, list := range lists {
		scores := contribution(listIdx, list)
		seenInList := make(map[string]struct{}, len(list.Documents))
		for rank, doc := range list.Documents {
			key := doc.DocumentID
			if _, dup := seenInList[key]; dup {
				continue
			}
			seenInList[key] = struct{}{}

			candidate, ok := acc[key]
			if !ok {
				candidate = &fusedCandidate{doc: doc}
				acc[key] = candidate
				order = append(order, key)
			}
			candidate.score += scores[rank]
			candidate.listCount++
			candidate.sources = appendSource(candidate.sources, list.Source)
		}
	}

	entries := make([]*fusedCandidate, 0, len(order))
	for _, key := range order {
		entries = append(entries, acc[key])
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].score != entries[j].score {
			return entries[i].score > entries[j].score
		}
		return entries[i].listCount > entries[j].listCount
	})

	out := make([]domain.FusedResult, 0, len(entries))
	for _, c := range entries {
		out = append(out, domain.FusedResult{
			Document:            c.doc,
			FusedScore:          c.score,
			ContributingSources: c.sources,
		})
	}
	return out, nil
}

// minMaxNormalize maps raw scores into [0,1]. Lists where every score is
// equal normalize to 1.0.
func minMaxNormalize(docs []domain.RetrievedDocument) []float64 {
	out := make([]float64, len(docs))
	if len(docs) == 0 {
		return out
	}
	lo, hi := docs[0].RawScore, docs[0].RawScore
	for _, d := range docs[1:] {
		if d.RawScore < lo {
			lo = d.RawScore
		}
		if d.RawScore > hi {
			hi = d.RawScore
		}
	}
	span := hi - lo
	for i, d := range docs {
		if span == 0 {
			out[i] = 1.0
			continue
		}
		out[i] = (d.RawScore - lo) / span
	}
	return out
}

func appendSource(sources []domain.Source, src domain.Source) []domain.Source {
	for _, s := range sources {
		if s == src {
			return sources
		}
	}
	return append(sources, src)
}

// Paginate applies offset then limit to an already fused sequence.
// A non-positive limit returns everything after offset.
func Paginate(results []domain.FusedResult, offset, limit int) []domain.FusedResult {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(results) {
		return []domain.FusedResult{}
	}
	results = results[offset:]
	if limit <= 0 || len(results) <= limit {
		return results
	}
	return results[:limit]
}

// singleSource wraps one backend list without re-scoring, keeping the backend's
// own relevance scores.
func singleSource(list domain.RankedList) []domain.FusedResult {
	out := make([]domain.FusedResult, 0, len(list.Documents))
	seen := make(map[string]struct{}, len(list.Documents))
	for _, doc := range list.Documents {
		if _, dup := seen[doc.DocumentID]; dup {
			continue
		}
		seen[doc.DocumentID] = struct{}{}
		out = append(out, domain.FusedResult{
			Document:            doc,
			FusedScore:          doc.RawScore,
			ContributingSources: []domain.Source{list.Source},
		})
	}
	return out
}
