package reranking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/kalambet/candsearch/internal/record"
)

// ErrRerank is returned when the relevance model fails to score the pairs.
var ErrRerank = errors.New("rerank failed")

// DefaultTopN is the result size used when none is given.
const DefaultTopN = 10

// Pair is one (query, document) input to a relevance model.
type Pair struct {
	Query    string
	Document string
}

// Scorer is a pairwise relevance model. Predict returns one score per pair,
// in input order.
type Scorer interface {
	Predict(ctx context.Context, pairs []Pair) ([]float64, error)
}

// Scored is a candidate with the relevance score it was ranked by. Scored is
// false when the candidate was passed through without being scored.
type Scored struct {
	Candidate record.Candidate
	Score     float64
	Scored    bool
}

// Reranker re-scores retrieved candidates against the raw query text.
type Reranker struct {
	scorer Scorer
}

// NewReranker returns a Reranker backed by scorer.
func NewReranker(scorer Scorer) *Reranker {
	return &Reranker{scorer: scorer}
}

// Rerank returns at most topN candidates ordered by descending relevance.
// See RerankScored.
func (r *Reranker) Rerank(ctx context.Context, query string, cands []record.Candidate, topN int) ([]record.Candidate, error) {
	scored, err := r.RerankScored(ctx, query, cands, topN)
	if err != nil {
		return nil, err
	}
	out := make([]record.Candidate, len(scored))
	for i, s := range scored {
		out[i] = s.Candidate
	}
	return out, nil
}

// RerankScored scores every candidate that has a summary in one batched
// call and returns the topN best, ties kept in retrieval order. Candidates
// without a summary are left out. When no candidate has a summary the first
// topN candidates are returned unscored in retrieval order. topN <= 0
// selects DefaultTopN.
func (r *Reranker) RerankScored(ctx context.Context, query string, cands []record.Candidate, topN int) ([]Scored, error) {
	if topN <= 0 {
		topN = DefaultTopN
	}

	var (
		eligible []record.Candidate
		pairs    []Pair
	)
	for _, c := range cands {
		if s := c.Summary(); s != "" {
			eligible = append(eligible, c)
			pairs = append(pairs, Pair{Query: query, Document: s})
		}
	}

	if len(pairs) == 0 {
		if len(cands) > 0 {
			slog.Warn("no candidates have summaries, keeping retrieval order", "candidates", len(cands))
		}
		n := min(topN, len(cands))
		out := make([]Scored, n)
		for i := range n {
			out[i] = Scored{Candidate: cands[i]}
		}
		return out, nil
	}

	scores, err := r.scorer.Predict(ctx, pairs)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRerank, err)
	}
	if len(scores) != len(pairs) {
		return nil, fmt.Errorf("%w: got %d scores for %d pairs", ErrRerank, len(scores), len(pairs))
	}

	ranked := make([]Scored, len(eligible))
	for i, c := range eligible {
		ranked[i] = Scored{Candidate: c, Score: scores[i], Scored: true}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return sortKey(ranked[i].Score) > sortKey(ranked[j].Score)
	})

	slog.Debug("reranked candidates", "candidates", len(cands), "scored", len(eligible), "top_n", topN)

	if len(ranked) > topN {
		ranked = ranked[:topN]
	}
	return ranked, nil
}

// sortKey orders NaN scores last.
func sortKey(s float64) float64 {
	if math.IsNaN(s) {
		return math.Inf(-1)
	}
	return s
}
