package crossencoder

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/kalambet/candsearch/internal/reranking"
)

// scoreServer scores each text by the integer after "doc-" and returns the
// results sorted by descending score, like a real rerank server.
func scoreServer(t *testing.T, requests *atomic.Int32, queries *sync.Map) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rerank" {
			http.NotFound(w, r)
			return
		}
		requests.Add(1)
		var req rerankRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if !req.RawScores {
			t.Errorf("raw_scores = false, want true")
		}
		if queries != nil {
			queries.Store(req.Query, true)
		}
		results := make([]rerankResult, len(req.Texts))
		for i, text := range req.Texts {
			n, _ := strconv.Atoi(strings.TrimPrefix(text, "doc-"))
			results[i] = rerankResult{Index: i, Score: float64(n)}
		}
		sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
		json.NewEncoder(w).Encode(results)
	}))
}

func pairs(query string, n int) []reranking.Pair {
	out := make([]reranking.Pair, n)
	for i := range out {
		out[i] = reranking.Pair{Query: query, Document: fmt.Sprintf("doc-%d", i)}
	}
	return out
}

func TestPredict_ScoresInInputOrder(t *testing.T) {
	var requests atomic.Int32
	srv := scoreServer(t, &requests, nil)
	defer srv.Close()

	c := New(srv.URL, "ms-marco", 32, 0)
	scores, err := c.Predict(context.Background(), pairs("tax", 5))
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	for i, s := range scores {
		if s != float64(i) {
			t.Errorf("scores[%d] = %v, want %d", i, s, i)
		}
	}
	if requests.Load() != 1 {
		t.Errorf("requests = %d, want 1", requests.Load())
	}
}

func TestPredict_SplitsIntoBatches(t *testing.T) {
	var requests atomic.Int32
	srv := scoreServer(t, &requests, nil)
	defer srv.Close()

	c := New(srv.URL, "ms-marco", 8, 0)
	scores, err := c.Predict(context.Background(), pairs("tax", 50))
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if len(scores) != 50 {
		t.Fatalf("got %d scores, want 50", len(scores))
	}
	for i, s := range scores {
		if s != float64(i) {
			t.Fatalf("scores[%d] = %v, want %d", i, s, i)
		}
	}
	if requests.Load() != 7 {
		t.Errorf("requests = %d, want 7", requests.Load())
	}
}

func TestPredict_GroupsByQuery(t *testing.T) {
	var requests atomic.Int32
	var queries sync.Map
	srv := scoreServer(t, &requests, &queries)
	defer srv.Close()

	in := append(pairs("first", 2), pairs("second", 2)...)
	scores, err := New(srv.URL, "m", 32, 0).Predict(context.Background(), in)
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if want := []float64{0, 1, 0, 1}; fmt.Sprint(scores) != fmt.Sprint(want) {
		t.Errorf("scores = %v, want %v", scores, want)
	}
	if requests.Load() != 2 {
		t.Errorf("requests = %d, want 2", requests.Load())
	}
	for _, q := range []string{"first", "second"} {
		if _, ok := queries.Load(q); !ok {
			t.Errorf("query %q never sent", q)
		}
	}
}

func TestPredict_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model loading", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	if _, err := New(srv.URL, "m", 0, 0).Predict(context.Background(), pairs("q", 3)); err == nil {
		t.Fatal("expected error for 503, got nil")
	}
}

func TestPredict_ShortResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"index":0,"score":1.5}]`))
	}))
	defer srv.Close()

	if _, err := New(srv.URL, "m", 0, 0).Predict(context.Background(), pairs("q", 2)); err == nil {
		t.Fatal("expected error for short response, got nil")
	}
}

func TestPredict_Empty(t *testing.T) {
	scores, err := New("http://unused.invalid", "m", 0, 0).Predict(context.Background(), nil)
	if err != nil || scores != nil {
		t.Errorf("Predict(nil) = %v, %v; want nil, nil", scores, err)
	}
}
