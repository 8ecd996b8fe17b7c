package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/CosmoTheDev/repomaint-agent/internal/apperr"
	"github.com/CosmoTheDev/repomaint-agent/internal/config"
	"github.com/CosmoTheDev/repomaint-agent/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// backends runs fn against the memory and SQLite backends.
func backends(t *testing.T, fn func(t *testing.T, s *Store)) {
	t.Helper()
	t.Run("memory", func(t *testing.T) {
		t.Parallel()
		s, err := Open(context.Background(), config.DatabaseConfig{Driver: "memory"})
		require.NoError(t, err)
		fn(t, s)
	})
	t.Run("sqlite", func(t *testing.T) {
		t.Parallel()
		s, err := Open(context.Background(), config.DatabaseConfig{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "store.db")})
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		fn(t, s)
	})
}

func TestStoreRepositories(t *testing.T) {
	t.Parallel()

	backends(t, func(t *testing.T, s *Store) {
		// given
		ctx := context.Background()
		now := time.Now().UTC().Truncate(time.Second)
		repo := &models.Repository{
			ID: "r1", Owner: "acme", Name: "demo", FullName: "acme/demo",
			ProviderType: models.ProviderGitHub, Languages: []models.Language{models.LanguageGo},
			ProviderSpecificData: map[string]any{"repository_id": "42"},
			CreatedAt:            now, UpdatedAt: now,
		}

		// when
		require.NoError(t, s.PutRepository(ctx, repo))
		byID, err := s.GetRepository(ctx, "r1")
		require.NoError(t, err)
		byKey, err := s.FindRepository(ctx, models.ProviderGitHub, "acme/demo")
		require.NoError(t, err)
		_, missing := s.FindRepository(ctx, models.ProviderGitLab, "acme/demo")

		// then
		assert.Equal(t, "acme/demo", byID.FullName)
		assert.Equal(t, "42", byID.ProviderSpecificData["repository_id"])
		assert.Equal(t, "r1", byKey.ID)
		assert.True(t, apperr.Is(missing, apperr.KindNotFound))
	})
}

func TestStoreOpportunitiesByRepository(t *testing.T) {
	t.Parallel()

	backends(t, func(t *testing.T, s *Store) {
		// given
		ctx := context.Background()
		base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
		for i, id := range []string{"o2", "o1", "o3"} {
			o := &models.Opportunity{
				ID: id, RepositoryID: "r1", Type: models.OpportunityDocumentation,
				Priority: 5, Confidence: 0.5, FilesAffected: []string{},
				CreatedAt: base.Add(time.Duration(i) * time.Minute),
			}
			require.NoError(t, s.PutOpportunity(ctx, o))
		}
		other := &models.Opportunity{ID: "x", RepositoryID: "r2", Type: models.OpportunityDocumentation, Priority: 1, CreatedAt: base}
		require.NoError(t, s.PutOpportunity(ctx, other))

		// when
		got, err := s.Opportunities(ctx, "r1")

		// then
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, []string{"o2", "o1", "o3"}, []string{got[0].ID, got[1].ID, got[2].ID})
	})
}

func TestStorePullRequestForImplementation(t *testing.T) {
	t.Parallel()

	backends(t, func(t *testing.T, s *Store) {
		// given
		ctx := context.Background()
		_, err := s.PullRequestForImplementation(ctx, "impl-1")
		require.True(t, apperr.Is(err, apperr.KindNotFound))

		now := time.Now().UTC()
		pr := &models.PullRequest{ID: "pr1", ImplementationID: "impl-1", RepositoryID: "r1", Status: models.PRDraft, CreatedAt: now, UpdatedAt: now}

		// when
		require.NoError(t, s.PutPullRequest(ctx, pr))
		pr.Status = models.PROpen
		require.NoError(t, s.PutPullRequest(ctx, pr))
		got, err := s.PullRequestForImplementation(ctx, "impl-1")

		// then
		require.NoError(t, err)
		assert.Equal(t, "pr1", got.ID)
		assert.Equal(t, models.PROpen, got.Status)
	})
}

func TestStoreGetMissing(t *testing.T) {
	t.Parallel()

	backends(t, func(t *testing.T, s *Store) {
		ctx := context.Background()
		for _, get := range []func() error{
			func() error { _, err := s.GetPlan(ctx, "p"); return err },
			func() error { _, err := s.GetImplementation(ctx, "i"); return err },
			func() error { _, err := s.GetReview(ctx, "r"); return err },
			func() error { _, err := s.GetOpportunity(ctx, "o"); return err },
		} {
			assert.True(t, apperr.Is(get(), apperr.KindNotFound))
		}
	})
}
