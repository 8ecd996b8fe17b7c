package osv

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultBaseURL is the public OSV.dev API.
const DefaultBaseURL = "https://api.osv.dev/v1"

// maxBatch is the querybatch entry limit.
const maxBatch = 1000

// Client is an HTTP client for the OSV.dev API.
// OSV is unauthenticated and allows ~100 req/s.
type Client struct {
	http    *http.Client
	baseURL string
}

// New returns a Client for baseURL, or DefaultBaseURL when empty.
func New(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		http:    &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// BatchQuery queries OSV for multiple packages (POST /querybatch), chunking
// at the API limit. Results are returned in the same order as queries.
func (c *Client) BatchQuery(ctx context.Context, queries []PackageQuery) ([]QueryResult, error) {
	results := make([]QueryResult, 0, len(queries))
	for start := 0; start < len(queries); start += maxBatch {
		end := min(start+maxBatch, len(queries))
		chunk, err := c.batch(ctx, queries[start:end])
		if err != nil {
			return nil, err
		}
		if len(chunk) != end-start {
			return nil, fmt.Errorf("osv: batch query returned %d results for %d queries", len(chunk), end-start)
		}
		results = append(results, chunk...)
	}
	return results, nil
}

func (c *Client) batch(ctx context.Context, queries []PackageQuery) ([]QueryResult, error) {
	body, err := json.Marshal(batchQueryRequest{Queries: queries})
	if err != nil {
		return nil, fmt.Errorf("osv: marshal batch request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/querybatch", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("osv: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("osv: batch query: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("osv: batch query HTTP %d: %s", resp.StatusCode, string(b))
	}

	var result batchQueryResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("osv: decode batch response: %w", err)
	}
	return result.Results, nil
}
