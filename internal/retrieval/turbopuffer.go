package retrieval

import (
	"context"

	"github.com/kalambet/candsearch/internal/record"
	"github.com/kalambet/candsearch/internal/turbopuffer"
)

// Compile-time check that TurbopufferIndex implements VectorIndex.
var _ VectorIndex = (*TurbopufferIndex)(nil)

// TurbopufferIndex serves ANN queries from a turbopuffer namespace. v2 rows
// become flat Mapping records, v1 rows become Row records with nested
// attributes.
type TurbopufferIndex struct {
	client *turbopuffer.Client
}

// NewTurbopufferIndex wraps an existing turbopuffer client.
func NewTurbopufferIndex(client *turbopuffer.Client) *TurbopufferIndex {
	return &TurbopufferIndex{client: client}
}

func (t *TurbopufferIndex) Query(ctx context.Context, namespace string, vector []float32, topK int) ([]record.Candidate, error) {
	if t.client.Version() == turbopuffer.V1 {
		rows, err := t.client.QueryV1(ctx, namespace, vector, topK)
		if err != nil {
			return nil, err
		}
		cands := make([]record.Candidate, len(rows))
		for i, r := range rows {
			cands[i] = record.Row{ID: r.ID, Dist: r.Dist, Attrs: r.Attributes}
		}
		return cands, nil
	}

	rows, err := t.client.QueryV2(ctx, namespace, vector, topK)
	if err != nil {
		return nil, err
	}
	cands := make([]record.Candidate, len(rows))
	for i, r := range rows {
		cands[i] = record.Mapping(r)
	}
	return cands, nil
}
