package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/CosmoTheDev/repomaint-agent/internal/apperr"
	"github.com/CosmoTheDev/repomaint-agent/internal/config"
	"github.com/CosmoTheDev/repomaint-agent/internal/repository"
	"github.com/CosmoTheDev/repomaint-agent/internal/store"
	"github.com/CosmoTheDev/repomaint-agent/internal/tasks"
	"github.com/CosmoTheDev/repomaint-agent/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProvider serves one repository whose clone is a copy of files.
type fakeProvider struct {
	repository.RepoProvider

	mu       sync.Mutex
	files    map[string]string
	pushedAt time.Time
	getErr   error
	cloneErr error
	clonedTo []string
}

func (f *fakeProvider) Type() models.ProviderType { return models.ProviderGitHub }

func (f *fakeProvider) GetRepository(_ context.Context, owner, name string) (*models.RepositoryReference, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return &models.RepositoryReference{
		ProviderType:  models.ProviderGitHub,
		ProviderID:    "github.com",
		RepositoryID:  "1001",
		Owner:         owner,
		Name:          name,
		FullName:      owner + "/" + name,
		URL:           "https://github.com/" + owner + "/" + name,
		DefaultBranch: "main",
		LastPushedAt:  f.pushedAt,
	}, nil
}

func (f *fakeProvider) CloneRepository(_ context.Context, _ models.RepositoryReference, targetDir, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clonedTo = append(f.clonedTo, targetDir)
	if err := os.MkdirAll(targetDir, 0o755); err != nil {
		return "", err
	}
	if f.cloneErr != nil {
		return "", &repository.CloneError{URL: "https://github.com/acme/demo", Err: f.cloneErr}
	}
	for path, body := range f.files {
		full := filepath.Join(targetDir, path)
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			return "", err
		}
		if err := os.WriteFile(full, []byte(body), 0o644); err != nil {
			return "", err
		}
	}
	return targetDir, nil
}

type fakeVectors struct {
	mu          sync.Mutex
	collections []string
}

func (v *fakeVectors) CreateCollection(_ context.Context, repoID string, dim int, distance string) (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.collections = append(v.collections, fmt.Sprintf("%s:%d:%s", repoID, dim, distance))
	return true, nil
}
func (v *fakeVectors) Ping(context.Context) error { return nil }
func (v *fakeVectors) Name() string               { return "fake" }

type fixture struct {
	ix       *Indexer
	store    *store.Store
	provider *fakeProvider
	vectors  *fakeVectors
	tracker  *tasks.Tracker
	workDir  string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	provider := &fakeProvider{
		files: map[string]string{
			"main.go":               "package main\n",
			"tools/gen.py":          "print('hi')\n",
			"README.md":             "# demo\n",
			"go.mod":                "module example.com/demo\n\ngo 1.21\n",
			"node_modules/dep/x.js": "module.exports = 1\n",
			"web/src/app.ts":        "export const a = 1\n",
			"web/src/app.generated": "ignored",
		},
		pushedAt: time.Now().Add(-time.Hour).UTC(),
	}
	reg := repository.NewRegistry(&config.Config{})
	reg.Register(models.ProviderGitHub, func(*config.Config, repository.AdapterOptions) (repository.RepoProvider, error) {
		return provider, nil
	})
	st := store.New(store.NewMemoryBackend())
	tr := tasks.NewTracker()
	pool := tasks.NewPool(tr, tasks.Options{Workers: 2, QueueSize: 8})
	t.Cleanup(func() { _ = pool.Shutdown(context.Background()) })
	vectors := &fakeVectors{}
	workDir := t.TempDir()
	ix := New(st, reg, vectors, pool, config.IndexerConfig{WorkDir: workDir}, config.VectorConfig{Dimension: 384, Distance: "Cosine"})
	return &fixture{ix: ix, store: st, provider: provider, vectors: vectors, tracker: tr, workDir: workDir}
}

func waitTask(t *testing.T, tr *tasks.Tracker, id string) models.Task {
	t.Helper()
	var task models.Task
	require.Eventually(t, func() bool {
		var err error
		task, err = tr.Get(id)
		return err == nil && task.Status.Terminal()
	}, 5*time.Second, 5*time.Millisecond)
	return task
}

func TestIndex(t *testing.T) {
	t.Parallel()

	t.Run("should record languages files and manifests and remove the clone", func(t *testing.T) {
		t.Parallel()

		// given
		f := newFixture(t)

		// when
		res, err := f.ix.Index(context.Background(), Request{URL: "https://github.com/acme/demo"})

		// then
		require.NoError(t, err)
		repo := res.Repository
		assert.Equal(t, "acme/demo", repo.FullName)
		assert.Equal(t, []models.Language{models.LanguageGo, models.LanguagePython, models.LanguageTypeScript}, repo.Languages)
		assert.Equal(t, 3, res.Stored)
		require.NotNil(t, repo.IndexedAt)
		manifest, ok := repo.Manifest("go.mod")
		assert.True(t, ok)
		assert.Contains(t, manifest, "go 1.21")

		files, err := f.store.CodeFiles(context.Background(), repo.ID)
		require.NoError(t, err)
		paths := make([]string, 0, len(files))
		for _, cf := range files {
			paths = append(paths, cf.Path)
			assert.Len(t, cf.ContentHash, 64)
		}
		assert.ElementsMatch(t, []string{"main.go", "tools/gen.py", "web/src/app.ts"}, paths)

		require.Len(t, f.provider.clonedTo, 1)
		assert.Equal(t, f.workDir, filepath.Dir(f.provider.clonedTo[0]))
		assert.True(t, strings.HasPrefix(filepath.Base(f.provider.clonedTo[0]), repo.ID+"-"))
		assert.NoDirExists(t, f.provider.clonedTo[0])
		assert.Equal(t, []string{repo.ID + ":384:Cosine"}, f.vectors.collections)
	})

	t.Run("should skip an up to date repository unless forced", func(t *testing.T) {
		t.Parallel()

		// given an indexed repository with no newer push
		f := newFixture(t)
		first, err := f.ix.Index(context.Background(), Request{URL: "https://github.com/acme/demo"})
		require.NoError(t, err)

		// when
		again, err := f.ix.Index(context.Background(), Request{URL: "https://github.com/acme/demo"})
		require.NoError(t, err)
		forced, err := f.ix.Index(context.Background(), Request{URL: "https://github.com/acme/demo", ForceReindex: true})
		require.NoError(t, err)

		// then
		assert.True(t, again.Skipped)
		assert.Equal(t, first.Repository.ID, again.Repository.ID)
		assert.False(t, forced.Skipped)
		assert.Equal(t, first.Repository.ID, forced.Repository.ID)
		assert.Equal(t, 0, forced.Stored)
		assert.Equal(t, 3, forced.Unchanged)
	})

	t.Run("should reindex changed files after a newer push", func(t *testing.T) {
		t.Parallel()

		// given
		f := newFixture(t)
		_, err := f.ix.Index(context.Background(), Request{URL: "https://github.com/acme/demo"})
		require.NoError(t, err)
		f.provider.files["main.go"] = "package main\n\nfunc main() {}\n"
		f.provider.pushedAt = time.Now().Add(time.Minute).UTC()

		// when
		res, err := f.ix.Index(context.Background(), Request{URL: "https://github.com/acme/demo"})

		// then
		require.NoError(t, err)
		assert.False(t, res.Skipped)
		assert.Equal(t, 1, res.Stored)
		assert.Equal(t, 2, res.Unchanged)
		files, err := f.store.CodeFiles(context.Background(), res.Repository.ID)
		require.NoError(t, err)
		assert.Len(t, files, 3)
	})

	t.Run("should remove the clone when cloning fails", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		f.provider.cloneErr = errors.New("authentication required")

		_, err := f.ix.Index(context.Background(), Request{URL: "https://github.com/acme/demo"})

		assert.True(t, apperr.Is(err, apperr.KindProvider))
		require.Len(t, f.provider.clonedTo, 1)
		assert.NoDirExists(t, f.provider.clonedTo[0])
	})
}

func TestIndexConcurrent(t *testing.T) {
	t.Parallel()

	t.Run("should give concurrent reindexes of one repository their own clone", func(t *testing.T) {
		t.Parallel()

		// given an indexed repository
		f := newFixture(t)
		first, err := f.ix.Index(context.Background(), Request{URL: "https://github.com/acme/demo"})
		require.NoError(t, err)

		// when two forced reindexes race
		var wg sync.WaitGroup
		results := make([]*Result, 2)
		errs := make([]error, 2)
		for i := range results {
			wg.Add(1)
			go func() {
				defer wg.Done()
				results[i], errs[i] = f.ix.Index(context.Background(), Request{URL: "https://github.com/acme/demo", ForceReindex: true})
			}()
		}
		wg.Wait()

		// then
		want := []models.Language{models.LanguageGo, models.LanguagePython, models.LanguageTypeScript}
		for i := range results {
			require.NoError(t, errs[i])
			assert.Equal(t, want, results[i].Repository.Languages)
			assert.Equal(t, 3, results[i].Unchanged)
		}
		require.Len(t, f.provider.clonedTo, 3)
		assert.NotEqual(t, f.provider.clonedTo[1], f.provider.clonedTo[2])
		for _, dir := range f.provider.clonedTo {
			assert.NoDirExists(t, dir)
		}
		stored, err := f.store.GetRepository(context.Background(), first.Repository.ID)
		require.NoError(t, err)
		assert.Equal(t, want, stored.Languages)
	})

	t.Run("should fail analysis when the clone root is gone", func(t *testing.T) {
		t.Parallel()

		// when
		_, err := analyze(context.Background(), filepath.Join(t.TempDir(), "missing"), 0)

		// then
		require.Error(t, err)
		assert.Contains(t, err.Error(), "reading clone root")
	})
}

func TestResolve(t *testing.T) {
	t.Parallel()

	t.Run("should route a local directory to the generic git provider", func(t *testing.T) {
		t.Parallel()

		// given
		f := newFixture(t)

		// when
		p, err := f.ix.Resolve(Request{URL: t.TempDir()})

		// then
		require.NoError(t, err)
		assert.Equal(t, models.ProviderGenericGit, p.Type())
	})
}

func TestStartIndexing(t *testing.T) {
	t.Parallel()

	t.Run("should fail fast on bad input", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		for _, req := range []Request{
			{},
			{URL: "https://bitbucket.org/acme/demo"},
			{URL: "https://github.com/acme"},
		} {
			_, err := f.ix.StartIndexing(context.Background(), req)
			assert.True(t, apperr.Is(err, apperr.KindInvalid), req.URL)
		}
		assert.Empty(t, f.tracker.List())
	})

	t.Run("should complete the task with the repository id", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		id, err := f.ix.StartIndexing(context.Background(), Request{URL: "git@github.com:acme/demo.git"})
		require.NoError(t, err)

		task := waitTask(t, f.tracker, id)
		assert.Equal(t, models.StatusCompleted, task.Status)
		repo, err := f.store.GetRepository(context.Background(), task.ResultID)
		require.NoError(t, err)
		assert.Equal(t, "acme/demo", repo.FullName)
	})

	t.Run("should report up to date reindexes", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		_, err := f.ix.Index(context.Background(), Request{URL: "https://github.com/acme/demo"})
		require.NoError(t, err)

		id, err := f.ix.StartIndexing(context.Background(), Request{URL: "https://github.com/acme/demo"})
		require.NoError(t, err)

		task := waitTask(t, f.tracker, id)
		assert.True(t, IsUpToDate(task))
	})

	t.Run("should fail the task when the repository is missing", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		f.provider.getErr = fmt.Errorf("get acme/gone: %w", repository.ErrNotFound)

		id, err := f.ix.StartIndexing(context.Background(), Request{URL: "https://github.com/acme/gone"})
		require.NoError(t, err)

		task := waitTask(t, f.tracker, id)
		assert.Equal(t, models.StatusFailed, task.Status)
		assert.Contains(t, task.Error, "not found")
	})
}
