package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/CosmoTheDev/repomaint-agent/internal/apperr"
	"github.com/CosmoTheDev/repomaint-agent/internal/config"
	"github.com/CosmoTheDev/repomaint-agent/internal/database"
	"github.com/CosmoTheDev/repomaint-agent/models"
)

// timeLayout sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Store is the typed persistence layer used by the stage services.
// Writes replace the whole document for an id.
type Store struct {
	b Backend
}

// New wraps a Backend.
func New(b Backend) *Store {
	return &Store{b: b}
}

// Open builds a Store from the database config. The "memory" driver keeps
// everything in process; other drivers open and migrate a SQL database.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*Store, error) {
	if cfg.Driver == "memory" {
		return New(NewMemoryBackend()), nil
	}
	db, err := database.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrating database: %w", err)
	}
	return New(NewSQLBackend(db)), nil
}

// Close releases the backend.
func (s *Store) Close() error { return s.b.Close() }

// --- repositories ---

// RepositoryKey is the natural key of a repository: provider and full name.
func RepositoryKey(provider models.ProviderType, fullName string) string {
	return string(provider) + ":" + fullName
}

func (s *Store) PutRepository(ctx context.Context, r *models.Repository) error {
	return s.put(ctx, TableRepositories, r.ID, "", RepositoryKey(r.ProviderType, r.FullName), r.CreatedAt, r.UpdatedAt, r)
}

func (s *Store) GetRepository(ctx context.Context, id string) (*models.Repository, error) {
	return get[models.Repository](ctx, s.b, TableRepositories, "repository", id)
}

// FindRepository returns the repository recorded for provider and full name.
func (s *Store) FindRepository(ctx context.Context, provider models.ProviderType, fullName string) (*models.Repository, error) {
	key := RepositoryKey(provider, fullName)
	rec, err := s.b.ByKey(ctx, TableRepositories, key)
	if err != nil {
		return nil, notFound(err, "repository", key)
	}
	return decode[models.Repository](rec)
}

// --- code files ---

func (s *Store) PutCodeFile(ctx context.Context, f *models.CodeFile) error {
	return s.put(ctx, TableCodeFiles, f.ID, f.RepositoryID, f.Path, f.LastModified, f.LastModified, f)
}

// CodeFiles returns the files indexed for a repository.
func (s *Store) CodeFiles(ctx context.Context, repositoryID string) ([]models.CodeFile, error) {
	return list[models.CodeFile](ctx, s.b, TableCodeFiles, repositoryID)
}

// --- opportunities ---

func (s *Store) PutOpportunity(ctx context.Context, o *models.Opportunity) error {
	return s.put(ctx, TableOpportunities, o.ID, o.RepositoryID, string(o.Type), o.CreatedAt, o.CreatedAt, o)
}

func (s *Store) GetOpportunity(ctx context.Context, id string) (*models.Opportunity, error) {
	return get[models.Opportunity](ctx, s.b, TableOpportunities, "opportunity", id)
}

// Opportunities lists every opportunity mined for a repository.
func (s *Store) Opportunities(ctx context.Context, repositoryID string) ([]models.Opportunity, error) {
	return list[models.Opportunity](ctx, s.b, TableOpportunities, repositoryID)
}

// --- plans ---

func (s *Store) PutPlan(ctx context.Context, p *models.Plan) error {
	return s.put(ctx, TablePlans, p.ID, p.OpportunityID, "", p.CreatedAt, p.CreatedAt, p)
}

func (s *Store) GetPlan(ctx context.Context, id string) (*models.Plan, error) {
	return get[models.Plan](ctx, s.b, TablePlans, "plan", id)
}

// --- implementations ---

func (s *Store) PutImplementation(ctx context.Context, impl *models.Implementation) error {
	updated := impl.CreatedAt
	if impl.CompletedAt != nil {
		updated = *impl.CompletedAt
	}
	return s.put(ctx, TableImplementations, impl.ID, impl.PlanID, string(impl.Status), impl.CreatedAt, updated, impl)
}

func (s *Store) GetImplementation(ctx context.Context, id string) (*models.Implementation, error) {
	return get[models.Implementation](ctx, s.b, TableImplementations, "implementation", id)
}

// --- pull requests ---

func (s *Store) PutPullRequest(ctx context.Context, pr *models.PullRequest) error {
	return s.put(ctx, TablePullRequests, pr.ID, pr.ImplementationID, pr.RepositoryID, pr.CreatedAt, pr.UpdatedAt, pr)
}

func (s *Store) GetPullRequest(ctx context.Context, id string) (*models.PullRequest, error) {
	return get[models.PullRequest](ctx, s.b, TablePullRequests, "pull request", id)
}

// PullRequestForImplementation returns the pull request opened for an
// implementation, or a not_found error.
func (s *Store) PullRequestForImplementation(ctx context.Context, implementationID string) (*models.PullRequest, error) {
	prs, err := list[models.PullRequest](ctx, s.b, TablePullRequests, implementationID)
	if err != nil {
		return nil, err
	}
	if len(prs) == 0 {
		return nil, apperr.NotFound("pull request for implementation", implementationID)
	}
	return &prs[0], nil
}

// --- reviews ---

func (s *Store) PutReview(ctx context.Context, r *models.Review) error {
	return s.put(ctx, TableReviews, r.ID, r.PullRequestID, string(r.Status), r.CreatedAt, r.CreatedAt, r)
}

func (s *Store) GetReview(ctx context.Context, id string) (*models.Review, error) {
	return get[models.Review](ctx, s.b, TableReviews, "review", id)
}

// Reviews lists every review of a pull request, oldest first.
func (s *Store) Reviews(ctx context.Context, pullRequestID string) ([]models.Review, error) {
	return list[models.Review](ctx, s.b, TableReviews, pullRequestID)
}

// --- helpers ---

func (s *Store) put(ctx context.Context, table, id, parent, key string, created, updated time.Time, v any) error {
	if id == "" {
		return apperr.Internal(errors.New("empty id"), "storing %s", table)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s %s: %w", table, id, err)
	}
	rec := Record{
		ID:        id,
		ParentID:  parent,
		LookupKey: key,
		Data:      string(data),
		CreatedAt: created.UTC().Format(timeLayout),
		UpdatedAt: updated.UTC().Format(timeLayout),
	}
	if err := s.b.Put(ctx, table, rec); err != nil {
		return fmt.Errorf("storing %s %s: %w", table, id, err)
	}
	return nil
}

func get[T any](ctx context.Context, b Backend, table, resource, id string) (*T, error) {
	rec, err := b.Get(ctx, table, id)
	if err != nil {
		return nil, notFound(err, resource, id)
	}
	return decode[T](rec)
}

func list[T any](ctx context.Context, b Backend, table, parentID string) ([]T, error) {
	recs, err := b.ByParent(ctx, table, parentID)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(recs))
	for _, rec := range recs {
		v, err := decode[T](rec)
		if err != nil {
			return nil, err
		}
		out = append(out, *v)
	}
	return out, nil
}

func decode[T any](rec Record) (*T, error) {
	var v T
	if err := json.Unmarshal([]byte(rec.Data), &v); err != nil {
		return nil, fmt.Errorf("decoding record %s: %w", rec.ID, err)
	}
	return &v, nil
}

func notFound(err error, resource, id string) error {
	if errors.Is(err, errNoRecord) {
		return apperr.NotFound(resource, id)
	}
	return err
}
