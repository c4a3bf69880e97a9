// Package evaluation submits ranked candidate ids to the remote scoring
// endpoint.
package evaluation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// ErrSubmission is returned when a ranking cannot be submitted or the
// endpoint does not answer with a JSON object.
var ErrSubmission = errors.New("submission failed")

// DefaultURL is the hosted evaluation endpoint.
const DefaultURL = "https://mercor-dev--search-eng-interview.modal.run/evaluate"

// Response is the evaluator's reply, passed through verbatim.
type Response map[string]any

// AverageFinalScore returns the average_final_score field when present and
// numeric.
func (r Response) AverageFinalScore() (float64, bool) {
	switch v := r["average_final_score"].(type) {
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case float64:
		return v, true
	}
	return 0, false
}

// Client posts rankings to the evaluation endpoint.
type Client struct {
	url        string
	identity   string
	httpClient *http.Client
}

// New creates a Client. identity is sent verbatim as the Authorization
// header. A zero timeout means requests never time out.
func New(url, identity string, timeout time.Duration) *Client {
	if url == "" {
		url = DefaultURL
	}
	return &Client{
		url:      url,
		identity: identity,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type submitRequest struct {
	ConfigPath string   `json:"config_path"`
	ObjectIDs  []string `json:"object_ids"`
}

// Submit sends one ranking. The HTTP status is not checked: any JSON object
// body is returned as the response.
func (c *Client) Submit(ctx context.Context, configPath string, objectIDs []string) (Response, error) {
	if objectIDs == nil {
		objectIDs = []string{}
	}
	body, err := json.Marshal(submitRequest{ConfigPath: configPath, ObjectIDs: objectIDs})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSubmission, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: creating request: %w", ErrSubmission, err)
	}
	req.Header.Set("Authorization", c.identity)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSubmission, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %w", ErrSubmission, err)
	}
	if resp.StatusCode >= 300 {
		slog.Warn("evaluation endpoint returned non-success status", "status", resp.StatusCode, "config", configPath)
	}

	var out Response
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&out); err != nil || out == nil {
		return nil, fmt.Errorf("%w: status %d: response is not a JSON object: %.200s", ErrSubmission, resp.StatusCode, raw)
	}
	return out, nil
}
