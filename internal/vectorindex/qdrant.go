package vectorindex

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/CosmoTheDev/repomaint-agent/internal/config"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Qdrant talks to the Qdrant REST API.
type Qdrant struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewQdrant returns a Qdrant client with a 15-second timeout.
func NewQdrant(cfg config.VectorConfig) *Qdrant {
	base := cfg.URL
	if base == "" {
		base = "http://localhost:6333"
	}
	return &Qdrant{
		baseURL: strings.TrimSuffix(base, "/"),
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

func (q *Qdrant) Name() string { return "qdrant" }

// CreateCollection checks for the collection first so reindexing reuses it.
func (q *Qdrant) CreateCollection(ctx context.Context, repositoryID string, dimension int, distance string) (bool, error) {
	name := CollectionName(repositoryID)
	path := "/collections/" + url.PathEscape(name)

	status, _, err := q.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return false, fmt.Errorf("qdrant: get collection %s: %w", name, err)
	}
	if status == http.StatusOK {
		return false, nil
	}
	if status != http.StatusNotFound {
		return false, fmt.Errorf("qdrant: get collection %s: HTTP %d", name, status)
	}

	if distance == "" {
		distance = "Cosine"
	}
	body, _ := sjson.SetBytes(nil, "vectors.size", dimension)
	body, _ = sjson.SetBytes(body, "vectors.distance", distance)

	status, resp, err := q.do(ctx, http.MethodPut, path, body)
	if err != nil {
		return false, fmt.Errorf("qdrant: create collection %s: %w", name, err)
	}
	if status != http.StatusOK {
		msg := gjson.GetBytes(resp, "status.error").String()
		if msg == "" {
			msg = string(resp)
		}
		return false, fmt.Errorf("qdrant: create collection %s HTTP %d: %s", name, status, msg)
	}
	if !gjson.GetBytes(resp, "result").Bool() {
		return false, fmt.Errorf("qdrant: create collection %s was not acknowledged", name)
	}
	return true, nil
}

// Ping lists collections.
func (q *Qdrant) Ping(ctx context.Context) error {
	status, _, err := q.do(ctx, http.MethodGet, "/collections", nil)
	if err != nil {
		return fmt.Errorf("qdrant: ping: %w", err)
	}
	if status != http.StatusOK {
		return fmt.Errorf("qdrant: ping HTTP %d", status)
	}
	return nil
}

func (q *Qdrant) do(ctx context.Context, method, path string, body []byte) (int, []byte, error) {
	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, q.baseURL+path, rdr)
	if err != nil {
		return 0, nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if q.apiKey != "" {
		req.Header.Set("api-key", q.apiKey)
	}

	resp, err := q.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, data, nil
}
