package repository

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/CosmoTheDev/repomaint-agent/internal/config"
	"github.com/CosmoTheDev/repomaint-agent/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type gitlabCall struct {
	Method string
	Path   string
	Body   map[string]any
}

// fakeGitLab routes on method and escaped path and records every call.
type fakeGitLab struct {
	mu     sync.Mutex
	calls  []gitlabCall
	routes map[string]func(w http.ResponseWriter, body map[string]any)
}

func (f *fakeGitLab) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	_ = json.NewDecoder(r.Body).Decode(&body)
	key := r.Method + " " + r.URL.EscapedPath()
	f.mu.Lock()
	f.calls = append(f.calls, gitlabCall{Method: r.Method, Path: r.URL.EscapedPath(), Body: body})
	f.mu.Unlock()
	if h, ok := f.routes[key]; ok {
		h(w, body)
		return
	}
	writeJSONBody(w, http.StatusNotFound, map[string]any{"message": "404 Not Found"})
}

func (f *fakeGitLab) called(method, path string) *gitlabCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.calls {
		if f.calls[i].Method == method && f.calls[i].Path == path {
			return &f.calls[i]
		}
	}
	return nil
}

func newTestGitLab(t *testing.T, fake *fakeGitLab) *GitLabProvider {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	g, err := NewGitLab(config.GitLabConfig{Token: "t", Host: srv.URL}, AdapterOptions{RetryAttempts: 1})
	require.NoError(t, err)
	return g
}

func openMR(title string) map[string]any {
	return map[string]any{
		"id": 900, "iid": 3, "title": title, "state": "opened",
		"detailed_merge_status": "mergeable",
		"diff_refs":             map[string]any{"base_sha": "b1", "head_sha": "h1", "start_sha": "s1"},
	}
}

var testMR = models.PullRequestReference{
	ProviderType: models.ProviderGitLab,
	RepositoryID: "42",
	FullName:     "acme/platform/demo",
	Number:       3,
}

func TestGitLabGetRepository(t *testing.T) {
	t.Parallel()

	// given a project under a nested group
	fake := &fakeGitLab{routes: map[string]func(http.ResponseWriter, map[string]any){
		"GET /api/v4/projects/acme%2Fplatform%2Fdemo": func(w http.ResponseWriter, _ map[string]any) {
			writeJSONBody(w, http.StatusOK, map[string]any{
				"id": 42, "path_with_namespace": "acme/platform/demo",
				"namespace":        map[string]any{"full_path": "acme/platform"},
				"web_url":          "https://gitlab.example.com/acme/platform/demo",
				"http_url_to_repo": "https://gitlab.example.com/acme/platform/demo.git",
				"default_branch":   "develop",
				"last_activity_at": "2026-03-01T10:00:00Z",
			})
		},
	}}
	g := newTestGitLab(t, fake)

	// when
	ref, err := g.GetRepository(context.Background(), "acme/platform", "demo")

	// then
	require.NoError(t, err)
	assert.Equal(t, "42", ref.RepositoryID)
	assert.Equal(t, "acme/platform", ref.Owner)
	assert.Equal(t, "demo", ref.Name)
	assert.Equal(t, "develop", ref.DefaultBranch)
	assert.Equal(t, 3, int(ref.LastPushedAt.Month()))
}

func TestGitLabGetRepositoryNotFound(t *testing.T) {
	t.Parallel()

	g := newTestGitLab(t, &fakeGitLab{})
	_, err := g.GetRepository(context.Background(), "acme", "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGitLabCreatePullRequest(t *testing.T) {
	t.Parallel()

	// given
	fake := &fakeGitLab{routes: map[string]func(http.ResponseWriter, map[string]any){
		"POST /api/v4/projects/42/merge_requests": func(w http.ResponseWriter, body map[string]any) {
			writeJSONBody(w, http.StatusCreated, map[string]any{
				"id": 900, "iid": 3, "title": body["title"],
				"source_branch": body["source_branch"], "target_branch": body["target_branch"],
				"web_url": "https://gitlab.example.com/acme/demo/-/merge_requests/3",
			})
		},
	}}
	g := newTestGitLab(t, fake)
	ref := models.RepositoryReference{RepositoryID: "42", FullName: "acme/demo"}

	// when
	pr, err := g.CreatePullRequest(context.Background(), ref, CreatePROptions{
		Title: "Add tests", SourceBranch: "repomaint/impl-1", TargetBranch: "main", Draft: true,
	})

	// then
	require.NoError(t, err)
	assert.Equal(t, "Draft: Add tests", pr.Title)
	assert.Equal(t, models.PRDraft, pr.Status)
	assert.Equal(t, 3, pr.Number)
	assert.Equal(t, "900", pr.PRID)
	call := fake.called(http.MethodPost, "/api/v4/projects/42/merge_requests")
	require.NotNil(t, call)
	assert.Equal(t, true, call.Body["remove_source_branch"])
}

func TestGitLabAddReviewComment(t *testing.T) {
	t.Parallel()

	t.Run("should anchor the comment with the diff refs", func(t *testing.T) {
		t.Parallel()

		// given
		fake := &fakeGitLab{routes: map[string]func(http.ResponseWriter, map[string]any){
			"GET /api/v4/projects/42/merge_requests/3": func(w http.ResponseWriter, _ map[string]any) {
				writeJSONBody(w, http.StatusOK, openMR("Add tests"))
			},
			"POST /api/v4/projects/42/merge_requests/3/discussions": func(w http.ResponseWriter, _ map[string]any) {
				writeJSONBody(w, http.StatusCreated, map[string]any{"id": "d1"})
			},
		}}
		g := newTestGitLab(t, fake)

		// when
		err := g.AddReviewComment(context.Background(), testMR, ReviewComment{Body: "nit", Path: "main.go", Line: 10})

		// then
		require.NoError(t, err)
		call := fake.called(http.MethodPost, "/api/v4/projects/42/merge_requests/3/discussions")
		require.NotNil(t, call)
		position, ok := call.Body["position"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "h1", position["head_sha"])
		assert.Equal(t, "main.go", position["new_path"])
		assert.EqualValues(t, 10, position["new_line"])
	})

	t.Run("should fall back to a note when the discussion is rejected", func(t *testing.T) {
		t.Parallel()

		// given
		fake := &fakeGitLab{routes: map[string]func(http.ResponseWriter, map[string]any){
			"GET /api/v4/projects/42/merge_requests/3": func(w http.ResponseWriter, _ map[string]any) {
				writeJSONBody(w, http.StatusOK, openMR("Add tests"))
			},
			"POST /api/v4/projects/42/merge_requests/3/discussions": func(w http.ResponseWriter, _ map[string]any) {
				writeJSONBody(w, http.StatusBadRequest, map[string]any{"message": "line_code is invalid"})
			},
			"POST /api/v4/projects/42/merge_requests/3/notes": func(w http.ResponseWriter, _ map[string]any) {
				writeJSONBody(w, http.StatusCreated, map[string]any{"id": 1})
			},
		}}
		g := newTestGitLab(t, fake)

		// when
		err := g.AddReviewComment(context.Background(), testMR, ReviewComment{Body: "nit", Path: "main.go", Line: 10})

		// then
		require.NoError(t, err)
		note := fake.called(http.MethodPost, "/api/v4/projects/42/merge_requests/3/notes")
		require.NotNil(t, note)
		assert.Equal(t, "nit", note.Body["body"])
	})
}

func TestGitLabUpdatePullRequestStatus(t *testing.T) {
	t.Parallel()

	t.Run("should close with a state event", func(t *testing.T) {
		t.Parallel()

		// given
		fake := &fakeGitLab{routes: map[string]func(http.ResponseWriter, map[string]any){
			"GET /api/v4/projects/42/merge_requests/3": func(w http.ResponseWriter, _ map[string]any) {
				writeJSONBody(w, http.StatusOK, openMR("Add tests"))
			},
			"PUT /api/v4/projects/42/merge_requests/3": func(w http.ResponseWriter, _ map[string]any) {
				writeJSONBody(w, http.StatusOK, openMR("Add tests"))
			},
		}}
		g := newTestGitLab(t, fake)

		// when
		err := g.UpdatePullRequestStatus(context.Background(), testMR, models.PRClosed)

		// then
		require.NoError(t, err)
		call := fake.called(http.MethodPut, "/api/v4/projects/42/merge_requests/3")
		require.NotNil(t, call)
		assert.Equal(t, "close", call.Body["state_event"])
	})

	t.Run("should mark a draft through the title prefix", func(t *testing.T) {
		t.Parallel()

		// given
		fake := &fakeGitLab{routes: map[string]func(http.ResponseWriter, map[string]any){
			"GET /api/v4/projects/42/merge_requests/3": func(w http.ResponseWriter, _ map[string]any) {
				writeJSONBody(w, http.StatusOK, openMR("Add tests"))
			},
			"PUT /api/v4/projects/42/merge_requests/3": func(w http.ResponseWriter, _ map[string]any) {
				writeJSONBody(w, http.StatusOK, openMR("Draft: Add tests"))
			},
		}}
		g := newTestGitLab(t, fake)

		// when
		err := g.UpdatePullRequestStatus(context.Background(), testMR, models.PRDraft)

		// then
		require.NoError(t, err)
		call := fake.called(http.MethodPut, "/api/v4/projects/42/merge_requests/3")
		require.NotNil(t, call)
		assert.Equal(t, "Draft: Add tests", call.Body["title"])
	})

	t.Run("should refuse to merge when GitLab reports a blocker", func(t *testing.T) {
		t.Parallel()

		// given
		mr := openMR("Add tests")
		mr["detailed_merge_status"] = "ci_still_running"
		fake := &fakeGitLab{routes: map[string]func(http.ResponseWriter, map[string]any){
			"GET /api/v4/projects/42/merge_requests/3": func(w http.ResponseWriter, _ map[string]any) {
				writeJSONBody(w, http.StatusOK, mr)
			},
		}}
		g := newTestGitLab(t, fake)

		// when
		err := g.UpdatePullRequestStatus(context.Background(), testMR, models.PRMerged)

		// then
		assert.ErrorIs(t, err, ErrUnsupported)
		assert.Nil(t, fake.called(http.MethodPut, "/api/v4/projects/42/merge_requests/3/merge"))
	})
}

func TestGitLabPostReview(t *testing.T) {
	t.Parallel()

	// given
	fake := &fakeGitLab{routes: map[string]func(http.ResponseWriter, map[string]any){
		"POST /api/v4/projects/42/merge_requests/3/notes": func(w http.ResponseWriter, _ map[string]any) {
			writeJSONBody(w, http.StatusCreated, map[string]any{"id": 1})
		},
	}}
	g := newTestGitLab(t, fake)
	review := models.Review{Status: models.ReviewApproved, Score: 9.5}

	// when
	err := g.PostReview(context.Background(), testMR, review)

	// then
	require.NoError(t, err)
	note := fake.called(http.MethodPost, "/api/v4/projects/42/merge_requests/3/notes")
	require.NotNil(t, note)
	assert.Contains(t, note.Body["body"], "AI Review - Score: 9.5/10")
	assert.Contains(t, note.Body["body"], "APPROVED")
}
