// Package crossencoder scores (query, document) pairs with a cross-encoder
// served behind a text-embeddings-inference compatible /rerank endpoint.
package crossencoder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kalambet/candsearch/internal/reranking"
	"golang.org/x/sync/errgroup"
)

// Compile-time check that Client implements reranking.Scorer.
var _ reranking.Scorer = (*Client)(nil)

const (
	// DefaultBatchSize is the number of texts sent per request.
	DefaultBatchSize = 32

	maxInFlight = 4
)

// Client talks to a cross-encoder rerank service.
type Client struct {
	baseURL    string
	model      string
	batchSize  int
	httpClient *http.Client
}

// New creates a Client. model is sent for logging purposes only, since a
// rerank server hosts a single model. batchSize <= 0 selects
// DefaultBatchSize. A zero timeout means requests never time out.
func New(baseURL, model string, batchSize int, timeout time.Duration) *Client {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		model:     model,
		batchSize: batchSize,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type rerankRequest struct {
	Query     string   `json:"query"`
	Texts     []string `json:"texts"`
	RawScores bool     `json:"raw_scores"`
	Truncate  bool     `json:"truncate"`
}

type rerankResult struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

// chunk is a contiguous run of pairs sharing one query.
type chunk struct {
	start int
	query string
	texts []string
}

// Predict returns one raw relevance score per pair, in input order. Pairs
// are grouped by query and split into sub-batches that are scored
// concurrently.
func (c *Client) Predict(ctx context.Context, pairs []reranking.Pair) ([]float64, error) {
	if len(pairs) == 0 {
		return nil, nil
	}

	chunks := c.split(pairs)
	scores := make([]float64, len(pairs))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(maxInFlight)
	for _, ch := range chunks {
		g.Go(func() error {
			got, err := c.rerank(gCtx, ch.query, ch.texts)
			if err != nil {
				return fmt.Errorf("scoring pairs %d-%d: %w", ch.start, ch.start+len(ch.texts)-1, err)
			}
			copy(scores[ch.start:], got)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return scores, nil
}

func (c *Client) split(pairs []reranking.Pair) []chunk {
	var out []chunk
	for i, p := range pairs {
		last := len(out) - 1
		if last < 0 || out[last].query != p.Query || len(out[last].texts) >= c.batchSize {
			out = append(out, chunk{start: i, query: p.Query})
			last++
		}
		out[last].texts = append(out[last].texts, p.Document)
	}
	return out
}

// rerank scores texts against query and returns the scores in text order.
func (c *Client) rerank(ctx context.Context, query string, texts []string) ([]float64, error) {
	body, err := json.Marshal(rerankRequest{Query: query, Texts: texts, RawScores: true, Truncate: true})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/rerank", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating rerank request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rerank request to %s: %w", c.model, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("rerank: unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var results []rerankResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, fmt.Errorf("decoding rerank response: %w", err)
	}
	if len(results) != len(texts) {
		return nil, fmt.Errorf("rerank: got %d scores for %d texts", len(results), len(texts))
	}

	scores := make([]float64, len(texts))
	seen := make([]bool, len(texts))
	for _, r := range results {
		if r.Index < 0 || r.Index >= len(texts) || seen[r.Index] {
			return nil, fmt.Errorf("rerank: invalid result index %d", r.Index)
		}
		seen[r.Index] = true
		scores[r.Index] = r.Score
	}
	return scores, nil
}
