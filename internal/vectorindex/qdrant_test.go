package vectorindex

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/CosmoTheDev/repomaint-agent/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeQdrant keeps collections in memory.
type fakeQdrant struct {
	mu          sync.Mutex
	collections map[string]map[string]any
	apiKeys     []string
}

func (f *fakeQdrant) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.apiKeys = append(f.apiKeys, r.Header.Get("api-key"))
	w.Header().Set("Content-Type", "application/json")

	name := r.PathValue("name")
	switch {
	case r.Method == http.MethodGet && name == "":
		_ = json.NewEncoder(w).Encode(map[string]any{"result": map[string]any{"collections": []any{}}})
	case r.Method == http.MethodGet:
		if _, ok := f.collections[name]; !ok {
			w.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(w).Encode(map[string]any{"status": map[string]any{"error": "Not found"}})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"result": map[string]any{"status": "green"}})
	case r.Method == http.MethodPut:
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.collections[name] = body
		_ = json.NewEncoder(w).Encode(map[string]any{"result": true, "status": "ok"})
	}
}

func newFakeQdrant(t *testing.T) (*fakeQdrant, *Qdrant) {
	t.Helper()
	fake := &fakeQdrant{collections: map[string]map[string]any{}}
	mux := http.NewServeMux()
	mux.Handle("/collections", fake)
	mux.Handle("/collections/{name}", fake)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return fake, NewQdrant(config.VectorConfig{URL: srv.URL, APIKey: "k"})
}

func TestQdrantCreateCollection(t *testing.T) {
	t.Parallel()

	t.Run("should create then reuse the repository collection", func(t *testing.T) {
		t.Parallel()

		// given
		fake, q := newFakeQdrant(t)

		// when
		first, err1 := q.CreateCollection(context.Background(), "abc", 384, "Cosine")
		second, err2 := q.CreateCollection(context.Background(), "abc", 384, "Cosine")

		// then
		require.NoError(t, err1)
		require.NoError(t, err2)
		assert.True(t, first)
		assert.False(t, second)
		vectors, ok := fake.collections["repo_abc"]["vectors"].(map[string]any)
		require.True(t, ok)
		assert.EqualValues(t, 384, vectors["size"])
		assert.Equal(t, "Cosine", vectors["distance"])
		assert.Contains(t, fake.apiKeys, "k")
	})

	t.Run("should ping the collections endpoint", func(t *testing.T) {
		t.Parallel()

		_, q := newFakeQdrant(t)
		assert.NoError(t, q.Ping(context.Background()))
	})

	t.Run("should fail when the server is unreachable", func(t *testing.T) {
		t.Parallel()

		q := NewQdrant(config.VectorConfig{URL: "http://127.0.0.1:1"})
		_, err := q.CreateCollection(context.Background(), "abc", 384, "Cosine")
		assert.Error(t, err)
	})
}

func TestNew(t *testing.T) {
	t.Parallel()

	idx, err := New(config.VectorConfig{Backend: "none"})
	require.NoError(t, err)
	assert.Equal(t, "none", idx.Name())

	idx, err = New(config.VectorConfig{Backend: "qdrant"})
	require.NoError(t, err)
	assert.Equal(t, "qdrant", idx.Name())

	_, err = New(config.VectorConfig{Backend: "pinecone"})
	assert.Error(t, err)
}
