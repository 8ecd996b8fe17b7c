package repository

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"

	"github.com/CosmoTheDev/repomaint-agent/internal/config"
	"github.com/CosmoTheDev/repomaint-agent/models"
	gogithub "github.com/google/go-github/v68/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGitHub(t *testing.T, mux *http.ServeMux, attempts uint) *GitHubProvider {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	client := gogithub.NewClient(nil)
	base, err := url.Parse(srv.URL + "/")
	require.NoError(t, err)
	client.BaseURL = base
	return newGitHubWithClient(client, config.GitHubConfig{Token: "t"}, AdapterOptions{RetryAttempts: attempts})
}

func writeJSONBody(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

var testPR = models.PullRequestReference{
	ProviderType: models.ProviderGitHub,
	FullName:     "acme/demo",
	Number:       7,
}

func TestGitHubGetRepository(t *testing.T) {
	t.Parallel()

	t.Run("should normalise the repository into a reference", func(t *testing.T) {
		t.Parallel()

		// given
		mux := http.NewServeMux()
		mux.HandleFunc("GET /repos/acme/demo", func(w http.ResponseWriter, _ *http.Request) {
			writeJSONBody(w, http.StatusOK, map[string]any{
				"id": 1296269, "name": "demo", "full_name": "acme/demo",
				"owner":          map[string]any{"login": "acme"},
				"html_url":       "https://github.com/acme/demo",
				"clone_url":      "https://github.com/acme/demo.git",
				"default_branch": "main",
				"pushed_at":      "2026-01-02T03:04:05Z",
			})
		})
		g := newTestGitHub(t, mux, 1)

		// when
		ref, err := g.GetRepository(context.Background(), "acme", "demo")

		// then
		require.NoError(t, err)
		assert.Equal(t, models.ProviderGitHub, ref.ProviderType)
		assert.Equal(t, "github.com", ref.ProviderID)
		assert.Equal(t, "1296269", ref.RepositoryID)
		assert.Equal(t, "acme/demo", ref.FullName)
		assert.Equal(t, "main", ref.DefaultBranch)
		assert.Equal(t, 2026, ref.LastPushedAt.Year())
	})

	t.Run("should wrap ErrNotFound on 404 without retrying", func(t *testing.T) {
		t.Parallel()

		// given
		var calls atomic.Int32
		mux := http.NewServeMux()
		mux.HandleFunc("GET /repos/acme/missing", func(w http.ResponseWriter, _ *http.Request) {
			calls.Add(1)
			writeJSONBody(w, http.StatusNotFound, map[string]any{"message": "Not Found"})
		})
		g := newTestGitHub(t, mux, 3)

		// when
		_, err := g.GetRepository(context.Background(), "acme", "missing")

		// then
		assert.ErrorIs(t, err, ErrNotFound)
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("should retry server errors", func(t *testing.T) {
		t.Parallel()

		// given
		var calls atomic.Int32
		mux := http.NewServeMux()
		mux.HandleFunc("GET /repos/acme/flaky", func(w http.ResponseWriter, _ *http.Request) {
			if calls.Add(1) == 1 {
				writeJSONBody(w, http.StatusBadGateway, map[string]any{"message": "bad gateway"})
				return
			}
			writeJSONBody(w, http.StatusOK, map[string]any{"id": 1, "full_name": "acme/flaky"})
		})
		g := newTestGitHub(t, mux, 3)

		// when
		ref, err := g.GetRepository(context.Background(), "acme", "flaky")

		// then
		require.NoError(t, err)
		assert.Equal(t, "acme/flaky", ref.FullName)
		assert.Equal(t, int32(2), calls.Load())
	})
}

func TestGitHubCreatePullRequest(t *testing.T) {
	t.Parallel()

	t.Run("should open a native draft", func(t *testing.T) {
		t.Parallel()

		// given
		var got map[string]any
		mux := http.NewServeMux()
		mux.HandleFunc("POST /repos/acme/demo/pulls", func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewDecoder(r.Body).Decode(&got)
			writeJSONBody(w, http.StatusCreated, map[string]any{
				"id": 99, "number": 12, "title": "Bump deps", "draft": true,
				"html_url": "https://github.com/acme/demo/pull/12",
				"head":     map[string]any{"ref": "repomaint/impl-1"},
				"base":     map[string]any{"ref": "main"},
			})
		})
		g := newTestGitHub(t, mux, 3)
		ref := models.RepositoryReference{Owner: "acme", Name: "demo", FullName: "acme/demo", RepositoryID: "1"}

		// when
		pr, err := g.CreatePullRequest(context.Background(), ref, CreatePROptions{
			Title: "Bump deps", SourceBranch: "repomaint/impl-1", TargetBranch: "main", Draft: true,
		})

		// then
		require.NoError(t, err)
		assert.Equal(t, true, got["draft"])
		assert.Equal(t, "repomaint/impl-1", got["head"])
		assert.Equal(t, 12, pr.Number)
		assert.Equal(t, "99", pr.PRID)
		assert.Equal(t, models.PRDraft, pr.Status)
		assert.Equal(t, "acme/demo", pr.FullName)
	})

	t.Run("should never retry creation", func(t *testing.T) {
		t.Parallel()

		// given
		var calls atomic.Int32
		mux := http.NewServeMux()
		mux.HandleFunc("POST /repos/acme/demo/pulls", func(w http.ResponseWriter, _ *http.Request) {
			calls.Add(1)
			writeJSONBody(w, http.StatusBadGateway, map[string]any{"message": "upstream"})
		})
		g := newTestGitHub(t, mux, 5)

		// when
		_, err := g.CreatePullRequest(context.Background(), models.RepositoryReference{FullName: "acme/demo"}, CreatePROptions{Title: "x"})

		// then
		require.Error(t, err)
		assert.Equal(t, int32(1), calls.Load())
	})
}

func TestGitHubAddReviewComment(t *testing.T) {
	t.Parallel()

	// given a line outside the diff
	var issueBody map[string]any
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/acme/demo/pulls/7", func(w http.ResponseWriter, _ *http.Request) {
		writeJSONBody(w, http.StatusOK, map[string]any{"number": 7, "head": map[string]any{"sha": "abc123"}})
	})
	mux.HandleFunc("POST /repos/acme/demo/pulls/7/comments", func(w http.ResponseWriter, _ *http.Request) {
		writeJSONBody(w, http.StatusUnprocessableEntity, map[string]any{"message": "line must be part of the diff"})
	})
	mux.HandleFunc("POST /repos/acme/demo/issues/7/comments", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&issueBody)
		writeJSONBody(w, http.StatusCreated, map[string]any{"id": 1})
	})
	g := newTestGitHub(t, mux, 1)

	// when
	err := g.AddReviewComment(context.Background(), testPR, ReviewComment{Body: "check this", Path: "src/auth.py", Line: 42})

	// then
	require.NoError(t, err)
	assert.Equal(t, "check this", issueBody["body"])
}

func TestGitHubPostReview(t *testing.T) {
	t.Parallel()

	// given inline comments that GitHub rejects on the first submission
	var bodies []map[string]any
	mux := http.NewServeMux()
	mux.HandleFunc("POST /repos/acme/demo/pulls/7/reviews", func(w http.ResponseWriter, r *http.Request) {
		var b map[string]any
		_ = json.NewDecoder(r.Body).Decode(&b)
		bodies = append(bodies, b)
		if _, inline := b["comments"]; inline {
			writeJSONBody(w, http.StatusUnprocessableEntity, map[string]any{"message": "Unprocessable"})
			return
		}
		writeJSONBody(w, http.StatusOK, map[string]any{"id": 5})
	})
	g := newTestGitHub(t, mux, 1)
	review := models.Review{
		Status: models.ReviewChangesRequested,
		Score:  7.75,
		Comments: []models.ReviewComment{
			{Agent: "security-agent", File: "src/auth.py", Line: 42, Comment: "Possible SQL injection", Severity: models.SeverityHigh},
		},
	}

	// when
	err := g.PostReview(context.Background(), testPR, review)

	// then
	require.NoError(t, err)
	require.Len(t, bodies, 2)
	assert.Equal(t, "REQUEST_CHANGES", bodies[0]["event"])
	assert.Contains(t, bodies[1]["body"], "AI Review - Score: 7.8/10")
	assert.Contains(t, bodies[1]["body"], "[security-agent] Possible SQL injection (Severity: high)")
}

func TestGitHubUpdatePullRequestStatus(t *testing.T) {
	t.Parallel()

	t.Run("should reject draft without calling the API", func(t *testing.T) {
		t.Parallel()

		g := newTestGitHub(t, http.NewServeMux(), 1)
		err := g.UpdatePullRequestStatus(context.Background(), testPR, models.PRDraft)
		assert.ErrorIs(t, err, ErrUnsupported)
	})

	t.Run("should close through an edit", func(t *testing.T) {
		t.Parallel()

		// given
		var got map[string]any
		mux := http.NewServeMux()
		mux.HandleFunc("PATCH /repos/acme/demo/pulls/7", func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewDecoder(r.Body).Decode(&got)
			writeJSONBody(w, http.StatusOK, map[string]any{"number": 7, "state": "closed"})
		})
		g := newTestGitHub(t, mux, 1)

		// when
		err := g.UpdatePullRequestStatus(context.Background(), testPR, models.PRClosed)

		// then
		require.NoError(t, err)
		assert.Equal(t, "closed", got["state"])
	})

	t.Run("should refuse to merge an unmergeable pull request", func(t *testing.T) {
		t.Parallel()

		// given
		mux := http.NewServeMux()
		mux.HandleFunc("GET /repos/acme/demo/pulls/7", func(w http.ResponseWriter, _ *http.Request) {
			writeJSONBody(w, http.StatusOK, map[string]any{"number": 7, "mergeable": false})
		})
		g := newTestGitHub(t, mux, 1)

		// when
		err := g.UpdatePullRequestStatus(context.Background(), testPR, models.PRMerged)

		// then
		assert.ErrorIs(t, err, ErrUnsupported)
	})
}
