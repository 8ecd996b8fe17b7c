// Package indexer clones repositories, records their source files and
// prepares a vector collection for them.
package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/CosmoTheDev/repomaint-agent/internal/apperr"
	"github.com/CosmoTheDev/repomaint-agent/internal/config"
	"github.com/CosmoTheDev/repomaint-agent/internal/repository"
	"github.com/CosmoTheDev/repomaint-agent/internal/store"
	"github.com/CosmoTheDev/repomaint-agent/internal/tasks"
	"github.com/CosmoTheDev/repomaint-agent/internal/vectorindex"
	"github.com/CosmoTheDev/repomaint-agent/models"
	"github.com/google/uuid"
)

// TaskKind is the tracker kind for indexing tasks.
const TaskKind = "index"

// UpToDateMessage is the task message when a reindex was skipped.
const UpToDateMessage = "repository up to date"

// Request describes one indexing run.
type Request struct {
	URL          string
	Provider     models.ProviderType // detected from the URL when empty
	Branch       string              // the remote default branch when empty
	ForceReindex bool
}

// Result summarises a finished run.
type Result struct {
	Repository *models.Repository
	Skipped    bool // force_reindex was false and nothing changed remotely
	Stored     int
	Unchanged  int
}

// Indexer runs the requested → cloned → analyzed → vector_ready pipeline.
type Indexer struct {
	store    *store.Store
	registry *repository.Registry
	vectors  vectorindex.Index
	pool     *tasks.Pool
	cfg      config.IndexerConfig
	vector   config.VectorConfig

	// locks serialises runs per repository so two indexings never merge
	// into the same record concurrently.
	locks sync.Map
}

// New creates an Indexer.
func New(st *store.Store, reg *repository.Registry, vectors vectorindex.Index, pool *tasks.Pool, cfg config.IndexerConfig, vector config.VectorConfig) *Indexer {
	if vectors == nil {
		vectors = vectorindex.Noop{}
	}
	return &Indexer{store: st, registry: reg, vectors: vectors, pool: pool, cfg: cfg, vector: vector}
}

// target is a resolved provider plus the location inside it.
type target struct {
	provider repository.RepoProvider
	url      repository.RepoURL
}

// Resolve detects the provider and checks it is configured. It never talks
// to the network.
func (ix *Indexer) Resolve(req Request) (repository.RepoProvider, error) {
	t, err := ix.resolve(req)
	if err != nil {
		return nil, err
	}
	return t.provider, nil
}

func (ix *Indexer) resolve(req Request) (*target, error) {
	if req.URL == "" {
		return nil, apperr.Invalid("repository URL is required")
	}
	t := &target{}
	if info, err := os.Stat(req.URL); err == nil && info.IsDir() && (req.Provider == "" || req.Provider == models.ProviderGenericGit) {
		t.url = repository.RepoURL{Provider: models.ProviderGenericGit, Owner: "unknown", Name: filepath.Base(req.URL)}
	} else {
		u, err := ix.registry.ParseURL(req.URL, req.Provider)
		if err != nil {
			return nil, apperr.Invalid("invalid repository URL: %v", err)
		}
		t.url = u
	}
	p, err := ix.registry.Get(t.url.Provider)
	if err != nil {
		return nil, repository.Classify(err, "resolving provider %s", t.url.Provider)
	}
	t.provider = p
	return t, nil
}

// StartIndexing validates the request, schedules the work and returns the
// task id. The task result is the repository id.
func (ix *Indexer) StartIndexing(_ context.Context, req Request) (string, error) {
	t, err := ix.resolve(req)
	if err != nil {
		return "", err
	}
	return ix.pool.Submit(TaskKind, "indexing queued", func(ctx context.Context, h *tasks.Handle) error {
		res, err := ix.run(ctx, t, req, h.Progress)
		if err != nil {
			return err
		}
		h.SetResult(res.Repository.ID)
		if res.Skipped {
			h.Finish(UpToDateMessage)
		} else {
			h.Finish(fmt.Sprintf("indexed %s: %d files stored, %d unchanged", res.Repository.FullName, res.Stored, res.Unchanged))
		}
		return nil
	})
}

// Index runs the whole pipeline in the caller's goroutine.
func (ix *Indexer) Index(ctx context.Context, req Request) (*Result, error) {
	t, err := ix.resolve(req)
	if err != nil {
		return nil, err
	}
	return ix.run(ctx, t, req, func(string) {})
}

func (ix *Indexer) run(ctx context.Context, t *target, req Request, progress func(string)) (*Result, error) {
	ref, err := ix.lookup(ctx, t, req.URL)
	if err != nil {
		return nil, err
	}
	progress("provider resolved")

	mu, _ := ix.locks.LoadOrStore(string(ref.ProviderType)+":"+ref.FullName, &sync.Mutex{})
	mu.(*sync.Mutex).Lock()
	defer mu.(*sync.Mutex).Unlock()

	existing, err := ix.store.FindRepository(ctx, ref.ProviderType, ref.FullName)
	if err != nil && !apperr.Is(err, apperr.KindNotFound) {
		return nil, fmt.Errorf("looking up repository: %w", err)
	}
	if !req.ForceReindex && upToDate(existing, ref) {
		slog.Info("Repository up to date, skipping reindex", "repository_id", existing.ID, "full_name", ref.FullName)
		return &Result{Repository: existing, Skipped: true}, nil
	}

	repo := mergeRepository(existing, ref, req.Branch)
	workDir := ix.cfg.WorkDir
	if workDir == "" {
		workDir = filepath.Join(os.TempDir(), "repomaint")
	}
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating work dir: %w", err)
	}
	// Each run owns its clone directory.
	dir, err := os.MkdirTemp(workDir, repo.ID+"-*")
	if err != nil {
		return nil, fmt.Errorf("creating clone dir: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			slog.Warn("Failed to remove clone", "path", dir, "error", err)
		}
	}()

	path, err := t.provider.CloneRepository(ctx, *ref, dir, repo.DefaultBranch)
	if err != nil {
		return nil, repository.Classify(err, "cloning %s", ref.FullName)
	}
	progress("cloned")

	snap, err := analyze(ctx, path, ix.cfg.MaxFileBytes)
	if err != nil {
		return nil, fmt.Errorf("analyzing %s: %w", ref.FullName, err)
	}
	repo.SetLanguages(snap.languages)
	if repo.ProviderSpecificData == nil {
		repo.ProviderSpecificData = map[string]any{}
	}
	repo.ProviderSpecificData[models.ManifestsKey] = snap.manifests
	if ref.RepositoryID != "" {
		repo.ProviderSpecificData["repository_id"] = ref.RepositoryID
	}

	stored, unchanged, err := ix.storeFiles(ctx, repo.ID, snap.files)
	if err != nil {
		return nil, err
	}
	progress(fmt.Sprintf("analyzed %d files", len(snap.files)))

	created, err := ix.vectors.CreateCollection(ctx, repo.ID, ix.dimension(), ix.distance())
	if err != nil {
		slog.Warn("Failed to create vector collection", "repository_id", repo.ID, "backend", ix.vectors.Name(), "error", err)
	} else {
		slog.Debug("Vector collection ready", "collection", vectorindex.CollectionName(repo.ID), "created", created)
	}
	progress("vector ready")

	now := time.Now().UTC()
	repo.IndexedAt = &now
	repo.UpdatedAt = now
	if err := ix.store.PutRepository(ctx, repo); err != nil {
		return nil, apperr.Internal(err, "storing repository")
	}
	slog.Info("Repository indexed",
		"repository_id", repo.ID,
		"full_name", repo.FullName,
		"languages", repo.Languages,
		"stored", stored,
		"unchanged", unchanged,
	)
	return &Result{Repository: repo, Stored: stored, Unchanged: unchanged}, nil
}

func (ix *Indexer) lookup(ctx context.Context, t *target, rawURL string) (*models.RepositoryReference, error) {
	if resolver, ok := t.provider.(repository.URLResolver); ok {
		ref, err := resolver.ResolveURL(ctx, rawURL)
		return ref, repository.Classify(err, "resolving %s", t.url.FullName())
	}
	ref, err := t.provider.GetRepository(ctx, t.url.Owner, t.url.Name)
	if err != nil {
		return nil, repository.Classify(err, "resolving %s", t.url.FullName())
	}
	return ref, nil
}

func (ix *Indexer) storeFiles(ctx context.Context, repoID string, files []models.CodeFile) (stored, unchanged int, err error) {
	known, err := ix.store.CodeFiles(ctx, repoID)
	if err != nil {
		return 0, 0, fmt.Errorf("loading code files: %w", err)
	}
	byPath := make(map[string]models.CodeFile, len(known))
	for _, f := range known {
		byPath[f.Path] = f
	}
	for i := range files {
		f := &files[i]
		f.RepositoryID = repoID
		if prev, ok := byPath[f.Path]; ok {
			if prev.ContentHash == f.ContentHash {
				unchanged++
				recordFile("unchanged")
				continue
			}
			f.ID = prev.ID
		} else {
			f.ID = uuid.NewString()
		}
		if err := ix.store.PutCodeFile(ctx, f); err != nil {
			return stored, unchanged, fmt.Errorf("storing %s: %w", f.Path, err)
		}
		stored++
		recordFile("stored")
	}
	return stored, unchanged, nil
}

func (ix *Indexer) dimension() int {
	if ix.vector.Dimension > 0 {
		return ix.vector.Dimension
	}
	return 384
}

func (ix *Indexer) distance() string {
	if ix.vector.Distance != "" {
		return ix.vector.Distance
	}
	return "Cosine"
}

// upToDate implements the force_reindex=false policy: skip when the stored
// index is at least as new as the remote's last push.
func upToDate(existing *models.Repository, ref *models.RepositoryReference) bool {
	if existing == nil || existing.IndexedAt == nil || ref.LastPushedAt.IsZero() {
		return false
	}
	return !existing.IndexedAt.Before(ref.LastPushedAt)
}

func mergeRepository(existing *models.Repository, ref *models.RepositoryReference, branch string) *models.Repository {
	now := time.Now().UTC()
	repo := existing
	if repo == nil {
		repo = &models.Repository{ID: uuid.NewString(), CreatedAt: now}
	}
	repo.Owner = ref.Owner
	repo.Name = ref.Name
	repo.FullName = ref.FullName
	repo.URL = ref.URL
	repo.ProviderType = ref.ProviderType
	repo.ProviderID = ref.ProviderID
	repo.DefaultBranch = ref.DefaultBranch
	if branch != "" {
		repo.DefaultBranch = branch
	}
	repo.UpdatedAt = now
	return repo
}

// IsUpToDate reports whether a finished index task skipped the reindex.
func IsUpToDate(task models.Task) bool {
	return task.Status == models.StatusCompleted && task.Message == UpToDateMessage
}
