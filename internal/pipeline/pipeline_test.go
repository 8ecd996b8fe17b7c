package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/CosmoTheDev/repomaint-agent/internal/agents"
	"github.com/CosmoTheDev/repomaint-agent/internal/apperr"
	"github.com/CosmoTheDev/repomaint-agent/internal/config"
	"github.com/CosmoTheDev/repomaint-agent/internal/implementer"
	"github.com/CosmoTheDev/repomaint-agent/internal/indexer"
	"github.com/CosmoTheDev/repomaint-agent/internal/miner"
	"github.com/CosmoTheDev/repomaint-agent/internal/notify"
	"github.com/CosmoTheDev/repomaint-agent/internal/planner"
	"github.com/CosmoTheDev/repomaint-agent/internal/prmanager"
	"github.com/CosmoTheDev/repomaint-agent/internal/repository"
	"github.com/CosmoTheDev/repomaint-agent/internal/reviewer"
	"github.com/CosmoTheDev/repomaint-agent/internal/store"
	"github.com/CosmoTheDev/repomaint-agent/internal/tasks"
	"github.com/CosmoTheDev/repomaint-agent/internal/vectorindex"
	"github.com/CosmoTheDev/repomaint-agent/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeGitHub is a single-repository provider with in-memory pull requests.
type fakeGitHub struct {
	repository.RepoProvider

	mu      sync.Mutex
	prs     int
	reviews []models.Review
	gate    chan struct{}
}

func (f *fakeGitHub) Type() models.ProviderType { return models.ProviderGitHub }

func (f *fakeGitHub) GetRepository(_ context.Context, owner, name string) (*models.RepositoryReference, error) {
	if f.gate != nil {
		<-f.gate
	}
	if name == "gone" {
		return nil, fmt.Errorf("get %s/%s: %w", owner, name, repository.ErrNotFound)
	}
	return &models.RepositoryReference{
		ProviderType: models.ProviderGitHub, ProviderID: "github.com", RepositoryID: "1001",
		Owner: owner, Name: name, FullName: owner + "/" + name, DefaultBranch: "main",
		URL: "https://github.com/" + owner + "/" + name,
	}, nil
}

func (f *fakeGitHub) CloneRepository(_ context.Context, _ models.RepositoryReference, dir, _ string) (string, error) {
	if err := os.MkdirAll(filepath.Join(dir, "app"), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(filepath.Join(dir, "app", "main.py"), []byte("print('hi')\n"), 0o644); err != nil {
		return "", err
	}
	return dir, os.WriteFile(filepath.Join(dir, "requirements.txt"), []byte("fastapi==0.103.0\n"), 0o644)
}

func (f *fakeGitHub) CreatePullRequest(_ context.Context, ref models.RepositoryReference, opts repository.CreatePROptions) (*models.PullRequestReference, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prs++
	return &models.PullRequestReference{
		ProviderType: models.ProviderGitHub, ProviderID: "github.com", FullName: ref.FullName,
		PRID: fmt.Sprint(5000 + f.prs), Number: f.prs, Title: opts.Title, BranchName: opts.SourceBranch,
		TargetBranch: opts.TargetBranch, Status: models.PRDraft,
		URL: fmt.Sprintf("https://github.com/%s/pull/%d", ref.FullName, f.prs),
	}, nil
}

func (f *fakeGitHub) PostReview(_ context.Context, _ models.PullRequestReference, review models.Review) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reviews = append(f.reviews, review)
	return nil
}

type recorder struct {
	mu     sync.Mutex
	events []notify.Event
}

func (r *recorder) Notify(_ context.Context, evt notify.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *recorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

func newPipeline(t *testing.T, gh *fakeGitHub) (*Pipeline, *recorder) {
	t.Helper()
	rec := &recorder{}
	reg := repository.NewRegistry(&config.Config{})
	reg.Register(models.ProviderGitHub, func(*config.Config, repository.AdapterOptions) (repository.RepoProvider, error) {
		return gh, nil
	})
	st := store.New(store.NewMemoryBackend())
	pool := tasks.NewPool(tasks.NewTracker(), tasks.Options{Workers: 2, QueueSize: 8, OnFinish: TaskNotifier(rec)})
	t.Cleanup(func() { _ = pool.Shutdown(context.Background()) })

	return &Pipeline{
		Store:       st,
		Pool:        pool,
		Indexer:     indexer.New(st, reg, vectorindex.Noop{}, pool, config.IndexerConfig{WorkDir: t.TempDir()}, config.VectorConfig{}),
		Miner:       miner.New(st, nil),
		Planner:     planner.New(st, nil),
		Implementer: implementer.New(st, pool, config.ImplementerConfig{}),
		PRs:         prmanager.New(st, reg),
		Reviewer:    reviewer.New(st, reg, agents.NewCatalog(), nil),
		Notifier:    rec,
	}, rec
}

func waitTerminal(t *testing.T, p *Pipeline, id string) models.Task {
	t.Helper()
	var task models.Task
	require.Eventually(t, func() bool {
		var err error
		task, err = p.GetTaskStatus(id)
		return err == nil && task.Status.Terminal()
	}, 5*time.Second, 5*time.Millisecond)
	return task
}

func TestStartIndexing(t *testing.T) {
	t.Parallel()

	t.Run("should return before the provider answers and complete later", func(t *testing.T) {
		t.Parallel()

		// given a provider that blocks until released
		gh := &fakeGitHub{gate: make(chan struct{})}
		p, _ := newPipeline(t, gh)

		// when
		start := time.Now()
		id, err := p.StartIndexing(context.Background(), indexer.Request{URL: "https://github.com/acme/demo", Branch: "main"})
		elapsed := time.Since(start)
		close(gh.gate)

		// then
		require.NoError(t, err)
		assert.Less(t, elapsed, 50*time.Millisecond)
		task := waitTerminal(t, p, id)
		assert.Equal(t, models.StatusCompleted, task.Status)

		again, err := p.GetTaskStatus(id)
		require.NoError(t, err)
		assert.Equal(t, task.Status, again.Status)
		assert.Equal(t, task.Message, again.Message)
	})

	t.Run("should notify when a task fails", func(t *testing.T) {
		t.Parallel()

		p, rec := newPipeline(t, &fakeGitHub{})
		id, err := p.StartIndexing(context.Background(), indexer.Request{URL: "https://github.com/acme/gone"})
		require.NoError(t, err)

		task := waitTerminal(t, p, id)
		assert.Equal(t, models.StatusFailed, task.Status)
		require.Eventually(t, func() bool {
			for _, typ := range rec.types() {
				if typ == notify.EventTaskFailed {
					return true
				}
			}
			return false
		}, time.Second, 5*time.Millisecond)
	})

	t.Run("should surface unknown tasks", func(t *testing.T) {
		t.Parallel()

		p, _ := newPipeline(t, &fakeGitHub{})
		_, err := p.GetTaskStatus("01HZZZZZZZZZZZZZZZZZZZZZZZ")
		assert.True(t, apperr.Is(err, apperr.KindNotFound))
	})
}

func TestStagesOneByOne(t *testing.T) {
	t.Parallel()

	t.Run("should carry an opportunity through to a reviewed pull request", func(t *testing.T) {
		t.Parallel()

		// given an indexed repository
		gh := &fakeGitHub{}
		p, rec := newPipeline(t, gh)
		ctx := context.Background()
		id, err := p.StartIndexing(ctx, indexer.Request{URL: "https://github.com/acme/demo"})
		require.NoError(t, err)
		repoID := waitTerminal(t, p, id).ResultID

		// when
		opps, err := p.MineOpportunities(ctx, miner.Request{RepositoryID: repoID, Types: []models.OpportunityType{models.OpportunityDependencyUpdate}, Max: 10})
		require.NoError(t, err)
		require.NotEmpty(t, opps)
		plan, err := p.GeneratePlan(ctx, opps[0].ID, nil)
		require.NoError(t, err)
		implTask, err := p.StartImplementation(ctx, plan.ID, true)
		require.NoError(t, err)
		implID := waitTerminal(t, p, implTask).ResultID
		pr, err := p.CreatePullRequest(ctx, prmanager.Request{ImplementationID: implID, Draft: true})
		require.NoError(t, err)
		_, dupErr := p.CreatePullRequest(ctx, prmanager.Request{ImplementationID: implID})
		out, err := p.ReviewPullRequest(ctx, pr.ID, []string{agents.SecurityAgent, agents.PerformanceAgent})
		require.NoError(t, err)

		// then
		assert.Equal(t, "Update FastAPI to latest version", opps[0].Title)
		assert.True(t, apperr.Is(dupErr, apperr.KindConflict))
		assert.InDelta(t, 7.75, out.Review.Score, 1e-9)
		assert.Equal(t, models.ReviewChangesRequested, out.Review.Status)
		assert.Len(t, gh.reviews, 1)
		assert.Subset(t, rec.types(), []string{notify.EventPROpened, notify.EventReviewPosted})

		listed, err := p.GetOpportunities(ctx, repoID)
		require.NoError(t, err)
		assert.Len(t, listed, len(opps))
	})
}

func TestMaintainRepository(t *testing.T) {
	t.Parallel()

	t.Run("should run every stage for the top opportunities", func(t *testing.T) {
		t.Parallel()

		// given
		gh := &fakeGitHub{}
		p, rec := newPipeline(t, gh)

		// when
		report, err := p.MaintainRepository(context.Background(), "https://github.com/acme/demo", MaintainOptions{
			Max: 2, DryRun: true, CreatePRs: true, Review: true,
		})

		// then
		require.NoError(t, err)
		assert.Equal(t, "acme/demo", report.Repository.FullName)
		require.Len(t, report.Opportunities, 2)
		assert.Equal(t, models.OpportunitySecurityVulnerability, report.Opportunities[0].Opportunity.Type)
		for _, r := range report.Opportunities {
			assert.Empty(t, r.Error)
			require.NotNil(t, r.Implementation)
			assert.Equal(t, models.StatusCompleted, r.Implementation.Status)
			require.NotNil(t, r.PullRequest)
			assert.Equal(t, prmanager.BranchName(r.Implementation.ID), r.PullRequest.BranchName)
			assert.NotNil(t, r.Review)
		}
		assert.Equal(t, 2, gh.prs)
		assert.Contains(t, rec.types(), notify.EventMaintainCompleted)
	})

	t.Run("should fail fast on an unresolvable repository", func(t *testing.T) {
		t.Parallel()

		p, _ := newPipeline(t, &fakeGitHub{})
		_, err := p.MaintainRepository(context.Background(), "https://github.com/acme/gone", MaintainOptions{})
		assert.True(t, apperr.Is(err, apperr.KindNotFound))
	})

	t.Run("should run in the background", func(t *testing.T) {
		t.Parallel()

		p, _ := newPipeline(t, &fakeGitHub{})
		id, err := p.StartMaintenance(context.Background(), "https://github.com/acme/demo", MaintainOptions{Max: 1, DryRun: true})
		require.NoError(t, err)

		task := waitTerminal(t, p, id)
		assert.Equal(t, models.StatusCompleted, task.Status)
		assert.Equal(t, "processed 1 opportunities", task.Message)

		_, err = p.StartMaintenance(context.Background(), "not a url", MaintainOptions{})
		assert.True(t, apperr.Is(err, apperr.KindInvalid))
	})
}
