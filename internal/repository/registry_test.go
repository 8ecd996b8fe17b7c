package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/CosmoTheDev/repomaint-agent/internal/config"
	"github.com/CosmoTheDev/repomaint-agent/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProvider struct {
	GenericGitProvider
	kind models.ProviderType
}

func (s *stubProvider) Type() models.ProviderType { return s.kind }

func TestRegistryGet(t *testing.T) {
	t.Parallel()

	t.Run("should report unavailable for unconfigured and unknown types", func(t *testing.T) {
		t.Parallel()

		// given
		r := NewRegistry(&config.Config{})

		// when
		_, errGitHub := r.Get(models.ProviderGitHub)
		_, errBitbucket := r.Get(models.ProviderBitbucket)

		// then
		assert.ErrorIs(t, errGitHub, ErrProviderUnavailable)
		assert.ErrorIs(t, errBitbucket, ErrProviderUnavailable)
	})

	t.Run("should construct lazily once and cache the instance", func(t *testing.T) {
		t.Parallel()

		// given
		r := NewRegistry(&config.Config{})
		calls := 0
		r.Register(models.ProviderBitbucket, func(*config.Config, AdapterOptions) (RepoProvider, error) {
			calls++
			return &stubProvider{kind: models.ProviderBitbucket}, nil
		})

		// when
		first, err1 := r.Get(models.ProviderBitbucket)
		second, err2 := r.Get(models.ProviderBitbucket)

		// then
		require.NoError(t, err1)
		require.NoError(t, err2)
		assert.Same(t, first, second)
		assert.Equal(t, 1, calls)
	})

	t.Run("should not cache failed constructions", func(t *testing.T) {
		t.Parallel()

		// given
		r := NewRegistry(&config.Config{})
		fail := true
		r.Register(models.ProviderCodeCommit, func(*config.Config, AdapterOptions) (RepoProvider, error) {
			if fail {
				return nil, errors.New("no credentials")
			}
			return &stubProvider{kind: models.ProviderCodeCommit}, nil
		})

		// when
		_, err := r.Get(models.ProviderCodeCommit)
		fail = false
		p, err2 := r.Get(models.ProviderCodeCommit)

		// then
		assert.ErrorIs(t, err, ErrProviderUnavailable)
		require.NoError(t, err2)
		assert.Equal(t, models.ProviderCodeCommit, p.Type())
	})

	t.Run("should build configured adapters", func(t *testing.T) {
		t.Parallel()

		// given
		r := NewRegistry(&config.Config{Git: config.GitConfig{
			GitHub:          []config.GitHubConfig{{Token: "gh"}},
			GitLab:          []config.GitLabConfig{{Token: "gl"}},
			Azure:           []config.AzureConfig{{Token: "az", Org: "contoso"}},
			DefaultProvider: "gitlab",
		}})

		// when
		def, err := r.Default()
		gh, errGH := r.Get(models.ProviderGitHub)
		az, errAz := r.Get(models.ProviderAzureDevOps)
		gen, errGen := r.Get(models.ProviderGenericGit)

		// then
		require.NoError(t, err)
		require.NoError(t, errGH)
		require.NoError(t, errAz)
		require.NoError(t, errGen)
		assert.Equal(t, models.ProviderGitLab, def.Type())
		assert.Equal(t, models.ProviderGitHub, gh.Type())
		assert.True(t, gh.Capabilities().NativeReviews)
		assert.Equal(t, models.ProviderAzureDevOps, az.Type())
		assert.Equal(t, models.ProviderGenericGit, gen.Type())
		assert.Equal(t, []models.ProviderType{
			models.ProviderGitHub, models.ProviderGitLab, models.ProviderAzureDevOps, models.ProviderGenericGit,
		}, r.Types())
	})
}

func TestGenericGitUnsupported(t *testing.T) {
	t.Parallel()

	g := NewGenericGit(AdapterOptions{})
	ctx := context.Background()

	_, err := g.GetRepository(ctx, "a", "b")
	assert.ErrorIs(t, err, ErrUnsupported)
	_, err = g.CreatePullRequest(ctx, models.RepositoryReference{}, CreatePROptions{})
	assert.ErrorIs(t, err, ErrUnsupported)
	assert.ErrorIs(t, g.UpdatePullRequestStatus(ctx, models.PullRequestReference{}, models.PRClosed), ErrUnsupported)
}
