package prmanager

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/CosmoTheDev/repomaint-agent/internal/apperr"
	"github.com/CosmoTheDev/repomaint-agent/internal/config"
	"github.com/CosmoTheDev/repomaint-agent/internal/repository"
	"github.com/CosmoTheDev/repomaint-agent/internal/store"
	"github.com/CosmoTheDev/repomaint-agent/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	repository.RepoProvider

	creates   atomic.Int32
	lastOpts  repository.CreatePROptions
	lastRef   models.RepositoryReference
	createErr error
	statusErr error
	mu        sync.Mutex
}

func (f *fakeProvider) CreatePullRequest(_ context.Context, ref models.RepositoryReference, opts repository.CreatePROptions) (*models.PullRequestReference, error) {
	n := f.creates.Add(1)
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.mu.Lock()
	f.lastOpts, f.lastRef = opts, ref
	f.mu.Unlock()
	status := models.PROpen
	if opts.Draft {
		status = models.PRDraft
	}
	return &models.PullRequestReference{
		ProviderType: models.ProviderGitHub,
		ProviderID:   "github.com",
		RepositoryID: ref.RepositoryID,
		FullName:     ref.FullName,
		PRID:         fmt.Sprintf("90%d", n),
		Number:       int(n),
		Title:        opts.Title,
		Description:  opts.Description,
		BranchName:   opts.SourceBranch,
		TargetBranch: opts.TargetBranch,
		Status:       status,
		URL:          fmt.Sprintf("https://github.com/%s/pull/%d", ref.FullName, n),
	}, nil
}

func (f *fakeProvider) UpdatePullRequestStatus(_ context.Context, _ models.PullRequestReference, status models.PRStatus) error {
	if f.statusErr != nil {
		return f.statusErr
	}
	if status == models.PRDraft {
		return fmt.Errorf("%w: draft", repository.ErrUnsupported)
	}
	return nil
}

func seed(t *testing.T, st *store.Store, status models.TaskStatus) *models.Implementation {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()
	require.NoError(t, st.PutRepository(ctx, &models.Repository{
		ID: "repo-1", Owner: "acme", Name: "demo", FullName: "acme/demo", DefaultBranch: "develop",
		ProviderType: models.ProviderGitHub, ProviderID: "github.com", CreatedAt: now, UpdatedAt: now,
	}))
	require.NoError(t, st.PutOpportunity(ctx, &models.Opportunity{
		ID: "opp-1", RepositoryID: "repo-1", Type: models.OpportunityDocumentation, Title: "Docs",
		Priority: 7, Confidence: 0.85, CreatedAt: now,
	}))
	require.NoError(t, st.PutPlan(ctx, &models.Plan{
		ID: "plan-1", OpportunityID: "opp-1", Title: "Improve documentation", Description: "Add docs",
		Steps: []models.PlanStep{{Step: 1, Description: "Audit existing documentation"}}, EstimatedEffort: models.EffortLow,
		Risks: []string{"Documentation becoming outdated"}, CreatedAt: now,
	}))
	passed := true
	impl := &models.Implementation{
		ID: "impl-1", PlanID: "plan-1", Status: status, TestsPassed: &passed,
		Changes:   []models.ChangeRecord{{Step: 1, Description: "Audit existing documentation", Status: models.ChangeCompleted}},
		CreatedAt: now,
	}
	require.NoError(t, st.PutImplementation(ctx, impl))
	return impl
}

func newManager(t *testing.T, provider *fakeProvider) (*Manager, *store.Store) {
	t.Helper()
	reg := repository.NewRegistry(&config.Config{})
	reg.Register(models.ProviderGitHub, func(*config.Config, repository.AdapterOptions) (repository.RepoProvider, error) {
		return provider, nil
	})
	st := store.New(store.NewMemoryBackend())
	return New(st, reg), st
}

func TestCreatePullRequest(t *testing.T) {
	t.Parallel()

	t.Run("should open and record a pull request on a deterministic branch", func(t *testing.T) {
		t.Parallel()

		// given
		provider := &fakeProvider{}
		m, st := newManager(t, provider)
		seed(t, st, models.StatusCompleted)

		// when
		pr, err := m.CreatePullRequest(context.Background(), Request{ImplementationID: "impl-1", Draft: true})

		// then
		require.NoError(t, err)
		assert.Equal(t, "repomaint/impl-impl-1", pr.BranchName)
		assert.Equal(t, "develop", pr.TargetBranch)
		assert.Equal(t, models.PRDraft, pr.Status)
		assert.Equal(t, "Improve documentation", pr.Title)
		assert.Contains(t, provider.lastOpts.Description, "Step 1: Audit existing documentation")
		assert.Equal(t, "acme/demo", provider.lastRef.FullName)

		stored, err := st.PullRequestForImplementation(context.Background(), "impl-1")
		require.NoError(t, err)
		assert.Equal(t, pr.ID, stored.ID)
		assert.Equal(t, "repo-1", stored.RepositoryID)
	})

	t.Run("should refuse a second pull request for the same implementation", func(t *testing.T) {
		t.Parallel()

		// given
		provider := &fakeProvider{}
		m, st := newManager(t, provider)
		seed(t, st, models.StatusCompleted)

		// when
		var wg sync.WaitGroup
		errs := make([]error, 4)
		for i := range errs {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, errs[i] = m.CreatePullRequest(context.Background(), Request{ImplementationID: "impl-1", Title: "Docs"})
			}()
		}
		wg.Wait()

		// then
		var ok, conflicts int
		for _, err := range errs {
			switch {
			case err == nil:
				ok++
			case apperr.Is(err, apperr.KindConflict):
				conflicts++
			}
		}
		assert.Equal(t, 1, ok)
		assert.Equal(t, 3, conflicts)
		assert.Equal(t, int32(1), provider.creates.Load())
	})

	t.Run("should separate bad requests from provider failures", func(t *testing.T) {
		t.Parallel()

		cases := []struct {
			name   string
			status models.TaskStatus
			req    Request
			err    error
			want   apperr.Kind
		}{
			{"unknown implementation", models.StatusCompleted, Request{ImplementationID: "missing"}, nil, apperr.KindNotFound},
			{"unfinished implementation", models.StatusInProgress, Request{ImplementationID: "impl-1"}, nil, apperr.KindInvalid},
			{"unconfigured provider", models.StatusCompleted, Request{ImplementationID: "impl-1", Provider: models.ProviderBitbucket}, nil, apperr.KindInvalid},
			{"remote repository missing", models.StatusCompleted, Request{ImplementationID: "impl-1"}, fmt.Errorf("create: %w", repository.ErrNotFound), apperr.KindInvalid},
			{"remote failure", models.StatusCompleted, Request{ImplementationID: "impl-1"}, &repository.StatusError{Provider: models.ProviderGitHub, Code: 502, Message: "bad gateway"}, apperr.KindProvider},
		}
		for _, tc := range cases {
			provider := &fakeProvider{createErr: tc.err}
			m, st := newManager(t, provider)
			seed(t, st, tc.status)

			_, err := m.CreatePullRequest(context.Background(), tc.req)

			assert.Equal(t, tc.want, apperr.KindOf(err), tc.name)
		}
	})
}

func TestUpdatePullRequestStatus(t *testing.T) {
	t.Parallel()

	t.Run("should transition and bump updated_at", func(t *testing.T) {
		t.Parallel()

		// given
		m, st := newManager(t, &fakeProvider{})
		seed(t, st, models.StatusCompleted)
		pr, err := m.CreatePullRequest(context.Background(), Request{ImplementationID: "impl-1"})
		require.NoError(t, err)

		// when
		time.Sleep(2 * time.Millisecond)
		updated, err := m.UpdatePullRequestStatus(context.Background(), pr.ID, models.PRClosed)

		// then
		require.NoError(t, err)
		assert.Equal(t, models.PRClosed, updated.Status)
		assert.True(t, updated.UpdatedAt.After(pr.UpdatedAt))
		stored, err := st.GetPullRequest(context.Background(), pr.ID)
		require.NoError(t, err)
		assert.Equal(t, models.PRClosed, stored.Status)
	})

	t.Run("should reject unsupported transitions without recording them", func(t *testing.T) {
		t.Parallel()

		m, st := newManager(t, &fakeProvider{})
		seed(t, st, models.StatusCompleted)
		pr, err := m.CreatePullRequest(context.Background(), Request{ImplementationID: "impl-1"})
		require.NoError(t, err)

		_, err = m.UpdatePullRequestStatus(context.Background(), pr.ID, models.PRDraft)

		assert.True(t, apperr.Is(err, apperr.KindInvalid))
		stored, err := st.GetPullRequest(context.Background(), pr.ID)
		require.NoError(t, err)
		assert.Equal(t, models.PROpen, stored.Status)
	})

	t.Run("should report an unknown pull request", func(t *testing.T) {
		t.Parallel()

		m, _ := newManager(t, &fakeProvider{})
		_, err := m.UpdatePullRequestStatus(context.Background(), "missing", models.PRClosed)
		assert.True(t, apperr.Is(err, apperr.KindNotFound))
	})
}
