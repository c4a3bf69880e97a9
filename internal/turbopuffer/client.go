// Package turbopuffer is a minimal query client for the turbopuffer vector
// database HTTP API. Only namespace queries are supported.
package turbopuffer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// API versions understood by Client.
const (
	V1 = "v1"
	V2 = "v2"
)

// DefaultRegion is used when neither a base URL nor a region is configured.
const DefaultRegion = "aws-us-west-2"

// BaseURLForRegion returns the API root for a turbopuffer region.
func BaseURLForRegion(region string) string {
	if region == "" {
		region = DefaultRegion
	}
	return "https://" + region + ".turbopuffer.com"
}

// Options configures a Client.
type Options struct {
	// BaseURL overrides the region-derived API root.
	BaseURL    string
	Region     string
	APIKey     string
	APIVersion string
	// Timeout bounds each request. Zero means no timeout.
	Timeout time.Duration
}

// Client talks to the turbopuffer REST API.
type Client struct {
	baseURL    string
	apiKey     string
	version    string
	httpClient *http.Client
}

// New creates a Client. An empty APIVersion selects V2.
func New(opts Options) *Client {
	base := opts.BaseURL
	if base == "" {
		base = BaseURLForRegion(opts.Region)
	}
	version := opts.APIVersion
	if version == "" {
		version = V2
	}
	return &Client{
		baseURL: strings.TrimRight(base, "/"),
		apiKey:  opts.APIKey,
		version: version,
		httpClient: &http.Client{
			Timeout: opts.Timeout,
		},
	}
}

// Version returns the API version the client queries.
func (c *Client) Version() string { return c.version }

// Row is one v1 query result: direct id and distance with the attributes
// nested under their own key.
type Row struct {
	ID         any            `json:"id"`
	Dist       float64        `json:"dist"`
	Attributes map[string]any `json:"attributes"`
}

type queryV1Request struct {
	Vector            []float32 `json:"vector"`
	TopK              int       `json:"top_k"`
	DistanceMetric    string    `json:"distance_metric"`
	IncludeAttributes bool      `json:"include_attributes"`
}

type queryV2Request struct {
	RankBy            []any `json:"rank_by"`
	TopK              int   `json:"top_k"`
	IncludeAttributes bool  `json:"include_attributes"`
}

type queryV2Response struct {
	Rows []map[string]any `json:"rows"`
}

// QueryV1 runs an ANN query against the v1 endpoint. Row order is the
// server's order.
func (c *Client) QueryV1(ctx context.Context, namespace string, vector []float32, topK int) ([]Row, error) {
	var rows []Row
	body := queryV1Request{
		Vector:            vector,
		TopK:              topK,
		DistanceMetric:    "cosine_distance",
		IncludeAttributes: true,
	}
	if err := c.post(ctx, "/v1/namespaces/"+url.PathEscape(namespace)+"/query", body, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// QueryV2 runs an ANN query against the v2 endpoint. Each row is a flat
// mapping holding id, $dist and the attributes side by side.
func (c *Client) QueryV2(ctx context.Context, namespace string, vector []float32, topK int) ([]map[string]any, error) {
	var resp queryV2Response
	body := queryV2Request{
		RankBy:            []any{"vector", "ANN", vector},
		TopK:              topK,
		IncludeAttributes: true,
	}
	if err := c.post(ctx, "/v2/namespaces/"+url.PathEscape(namespace)+"/query", body, &resp); err != nil {
		return nil, err
	}
	return resp.Rows, nil
}

// post sends a JSON request and decodes the response into out. Numbers in
// untyped fields decode as json.Number so large ids keep their digits.
func (c *Client) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating query request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("query request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("query: unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("decoding query response: %w", err)
	}
	return nil
}
