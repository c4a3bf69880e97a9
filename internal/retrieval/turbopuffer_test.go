package retrieval

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kalambet/candsearch/internal/record"
	"github.com/kalambet/candsearch/internal/turbopuffer"
)

func TestTurbopufferIndex_V2Mappings(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"rows":[{"id":"p1","$dist":0.1,"rerankSummary":"tax lawyer"},{"id":"p2","$dist":0.2}]}`))
	}))
	defer srv.Close()

	idx := NewTurbopufferIndex(turbopuffer.New(turbopuffer.Options{BaseURL: srv.URL}))
	cands, err := idx.Query(context.Background(), "ns", []float32{1}, 2)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(cands) != 2 {
		t.Fatalf("got %d candidates, want 2", len(cands))
	}
	if _, ok := cands[0].(record.Mapping); !ok {
		t.Errorf("cands[0] is %T, want record.Mapping", cands[0])
	}
	if got := cands[0].Summary(); got != "tax lawyer" {
		t.Errorf("summary = %q", got)
	}
	if id, _ := cands[1].Identifier(); id != "p2" {
		t.Errorf("id = %q, want p2", id)
	}
}

func TestTurbopufferIndex_V1Rows(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"id":12345678901234567,"dist":0.1,"attributes":{"rerankSummary":"doctor"}}]`))
	}))
	defer srv.Close()

	idx := NewTurbopufferIndex(turbopuffer.New(turbopuffer.Options{BaseURL: srv.URL, APIVersion: turbopuffer.V1}))
	cands, err := idx.Query(context.Background(), "ns", []float32{1}, 1)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(cands) != 1 {
		t.Fatalf("got %d candidates, want 1", len(cands))
	}
	if _, ok := cands[0].(record.Row); !ok {
		t.Errorf("cands[0] is %T, want record.Row", cands[0])
	}
	if id, _ := cands[0].Identifier(); id != "12345678901234567" {
		t.Errorf("id = %q, want full precision", id)
	}
	if got := cands[0].Summary(); got != "doctor" {
		t.Errorf("summary = %q", got)
	}
}
