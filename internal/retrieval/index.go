package retrieval

import (
	"context"

	"github.com/kalambet/candsearch/internal/record"
)

// VectorIndex is an approximate-nearest-neighbour search provider. Query
// returns at most topK records with their attribute payloads, in the
// provider's order (descending similarity).
type VectorIndex interface {
	Query(ctx context.Context, namespace string, vector []float32, topK int) ([]record.Candidate, error)
}
