package retrieval

import (
	"context"
	"errors"
	"fmt"

	"github.com/kalambet/candsearch/internal/record"
)

// ErrRetrieval is returned when the vector index fails to answer a query.
var ErrRetrieval = errors.New("retrieval failed")

// DefaultTopK is the number of neighbours requested when none is given.
const DefaultTopK = 50

// Retriever combines embedding and ANN search over a fixed collection.
type Retriever struct {
	embedder  *Embedder
	index     VectorIndex
	namespace string
}

// NewRetriever creates a Retriever that queries namespace on index.
func NewRetriever(embedder *Embedder, index VectorIndex, namespace string) *Retriever {
	return &Retriever{embedder: embedder, index: index, namespace: namespace}
}

// Search embeds query and returns up to topK candidates in index order. An
// empty result means no matches and is not an error. topK <= 0 selects
// DefaultTopK.
func (r *Retriever) Search(ctx context.Context, query string, topK int) ([]record.Candidate, error) {
	if topK <= 0 {
		topK = DefaultTopK
	}

	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	cands, err := r.index.Query(ctx, r.namespace, vec, topK)
	if err != nil {
		return nil, fmt.Errorf("%w: querying %s: %w", ErrRetrieval, r.namespace, err)
	}
	if len(cands) > topK {
		cands = cands[:topK]
	}
	return cands, nil
}
