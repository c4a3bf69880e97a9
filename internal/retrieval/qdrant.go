package retrieval

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/kalambet/candsearch/internal/record"
	"github.com/qdrant/go-client/qdrant"
)

// Compile-time check that QdrantIndex implements VectorIndex.
var _ VectorIndex = (*QdrantIndex)(nil)

// pointQuerier is the subset of *qdrant.Client used by QdrantIndex.
type pointQuerier interface {
	Query(ctx context.Context, request *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error)
}

// QdrantConfig holds connection parameters for a Qdrant gRPC endpoint.
type QdrantConfig struct {
	// Addr is host:port of the gRPC API. The port defaults to 6334.
	Addr   string
	APIKey string
	UseTLS bool
}

// QdrantIndex serves ANN queries from a Qdrant collection. Points become
// Point records whose payload plays the role of the attributes mapping.
type QdrantIndex struct {
	client pointQuerier
	closer func() error
}

// NewQdrantIndex connects to Qdrant.
func NewQdrantIndex(cfg QdrantConfig) (*QdrantIndex, error) {
	host, portStr, err := net.SplitHostPort(cfg.Addr)
	if err != nil {
		host = cfg.Addr
		portStr = "6334"
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("invalid port in qdrant addr: %w", err)
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("creating qdrant client: %w", err)
	}
	return &QdrantIndex{client: client, closer: client.Close}, nil
}

// Close closes the underlying gRPC connection.
func (q *QdrantIndex) Close() error {
	if q.closer == nil {
		return nil
	}
	return q.closer()
}

func (q *QdrantIndex) Query(ctx context.Context, namespace string, vector []float32, topK int) ([]record.Candidate, error) {
	points, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: namespace,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(topK)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, err
	}

	cands := make([]record.Candidate, 0, len(points))
	for _, p := range points {
		cands = append(cands, record.Point{
			ID:      pointID(p.GetId()),
			Score:   p.GetScore(),
			Payload: payloadMap(p.GetPayload()),
		})
	}
	return cands, nil
}

func pointID(id *qdrant.PointId) string {
	if id == nil {
		return ""
	}
	if u := id.GetUuid(); u != "" {
		return u
	}
	if _, ok := id.GetPointIdOptions().(*qdrant.PointId_Num); ok {
		return strconv.FormatUint(id.GetNum(), 10)
	}
	return ""
}

func payloadMap(payload map[string]*qdrant.Value) map[string]any {
	if payload == nil {
		return nil
	}
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		out[k] = plainValue(v)
	}
	return out
}

// plainValue converts a payload value to the Go types the extractor
// understands.
func plainValue(v *qdrant.Value) any {
	switch kind := v.GetKind().(type) {
	case *qdrant.Value_StringValue:
		return kind.StringValue
	case *qdrant.Value_IntegerValue:
		return kind.IntegerValue
	case *qdrant.Value_DoubleValue:
		return kind.DoubleValue
	case *qdrant.Value_BoolValue:
		return kind.BoolValue
	case *qdrant.Value_StructValue:
		return payloadMap(kind.StructValue.GetFields())
	case *qdrant.Value_ListValue:
		vals := kind.ListValue.GetValues()
		list := make([]any, len(vals))
		for i, item := range vals {
			list[i] = plainValue(item)
		}
		return list
	}
	return nil
}
