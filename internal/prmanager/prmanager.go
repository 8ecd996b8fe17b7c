// Package prmanager opens and tracks pull requests for implementations.
package prmanager

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/CosmoTheDev/repomaint-agent/internal/apperr"
	"github.com/CosmoTheDev/repomaint-agent/internal/metrics"
	"github.com/CosmoTheDev/repomaint-agent/internal/repository"
	"github.com/CosmoTheDev/repomaint-agent/internal/store"
	"github.com/CosmoTheDev/repomaint-agent/models"
	"github.com/google/uuid"
)

// BranchPrefix namespaces every branch the agent creates.
const BranchPrefix = "repomaint/impl-"

// BranchName returns the source branch for an implementation.
func BranchName(implementationID string) string {
	return BranchPrefix + implementationID
}

// Request describes a pull request to open.
type Request struct {
	ImplementationID string
	Title            string // the plan title when empty
	Description      string // generated from the plan when empty
	Draft            bool
	Provider         models.ProviderType // the repository's provider when empty
}

// Manager creates pull requests through the provider registry.
type Manager struct {
	store    *store.Store
	registry *repository.Registry

	// locks serialises creation per implementation so the dedupe check and
	// the provider call cannot interleave.
	locks sync.Map
}

// New creates a Manager.
func New(st *store.Store, reg *repository.Registry) *Manager {
	return &Manager{store: st, registry: reg}
}

// CreatePullRequest opens a pull request for a completed implementation.
// A second call for the same implementation returns a conflict.
func (m *Manager) CreatePullRequest(ctx context.Context, req Request) (*models.PullRequest, error) {
	mu, _ := m.locks.LoadOrStore(req.ImplementationID, &sync.Mutex{})
	mu.(*sync.Mutex).Lock()
	defer mu.(*sync.Mutex).Unlock()

	impl, err := m.store.GetImplementation(ctx, req.ImplementationID)
	if err != nil {
		return nil, err
	}
	if impl.Status != models.StatusCompleted {
		return nil, apperr.Invalid("implementation %s is %s, not completed", impl.ID, impl.Status)
	}
	if prev, err := m.store.PullRequestForImplementation(ctx, impl.ID); err == nil {
		return nil, apperr.Conflict("pull request %s already exists for implementation %s", prev.ID, impl.ID)
	} else if !apperr.Is(err, apperr.KindNotFound) {
		return nil, err
	}

	plan, repo, err := m.lineage(ctx, impl)
	if err != nil {
		return nil, err
	}
	providerType := req.Provider
	if providerType == "" {
		providerType = repo.ProviderType
	}
	provider, err := m.registry.Get(providerType)
	if err != nil {
		return nil, apperr.Invalid("cannot resolve provider %q for repository %s: %v", providerType, repo.FullName, err)
	}

	title := req.Title
	if title == "" {
		title = plan.Title
	}
	description := req.Description
	if description == "" {
		description = describe(plan, impl)
	}
	target := repo.DefaultBranch
	if target == "" {
		target = "main"
	}
	opts := repository.CreatePROptions{
		Title:        title,
		Description:  description,
		SourceBranch: BranchName(impl.ID),
		TargetBranch: target,
		Draft:        req.Draft,
	}

	ref, err := provider.CreatePullRequest(ctx, repo.Reference(), opts)
	if err != nil {
		metrics.PullRequestsTotal.WithLabelValues(string(providerType), "failed").Inc()
		slog.Error("Failed to create pull request", "implementation_id", impl.ID, "provider", providerType, "error", err)
		switch apperr.KindOf(repository.Classify(err, "creating pull request")) {
		case apperr.KindInvalid, apperr.KindNotFound:
			return nil, apperr.Invalid("cannot open pull request on %s: %v", repo.FullName, err)
		}
		return nil, apperr.Provider(err, "creating pull request on %s", repo.FullName)
	}
	metrics.PullRequestsTotal.WithLabelValues(string(providerType), "success").Inc()

	now := time.Now().UTC()
	pr := &models.PullRequest{
		ID:               uuid.NewString(),
		ImplementationID: impl.ID,
		RepositoryID:     repo.ID,
		ProviderType:     ref.ProviderType,
		ProviderID:       ref.ProviderID,
		ProviderPRID:     ref.PRID,
		Number:           ref.Number,
		Title:            ref.Title,
		Description:      ref.Description,
		BranchName:       ref.BranchName,
		TargetBranch:     ref.TargetBranch,
		Status:           ref.Status,
		URL:              ref.URL,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := m.store.PutPullRequest(ctx, pr); err != nil {
		// The remote PR exists; surface it so the caller does not retry blindly.
		slog.Error("Pull request opened but not recorded", "url", pr.URL, "implementation_id", impl.ID, "error", err)
		return nil, apperr.Internal(err, "recording pull request %s", pr.URL)
	}
	slog.Info("Pull request opened", "pull_request_id", pr.ID, "url", pr.URL, "status", pr.Status, "provider", pr.ProviderType)
	return pr, nil
}

// UpdatePullRequestStatus transitions the pull request on its provider and
// records the new status.
func (m *Manager) UpdatePullRequestStatus(ctx context.Context, pullRequestID string, status models.PRStatus) (*models.PullRequest, error) {
	pr, err := m.store.GetPullRequest(ctx, pullRequestID)
	if err != nil {
		return nil, err
	}
	repo, err := m.store.GetRepository(ctx, pr.RepositoryID)
	if err != nil {
		return nil, err
	}
	provider, err := m.registry.Get(pr.ProviderType)
	if err != nil {
		return nil, apperr.Invalid("cannot resolve provider %q: %v", pr.ProviderType, err)
	}
	if err := provider.UpdatePullRequestStatus(ctx, pr.Reference(repo), status); err != nil {
		slog.Warn("Pull request status update rejected", "pull_request_id", pr.ID, "status", status, "error", err)
		return nil, repository.Classify(err, "setting pull request %s to %s", pr.ID, status)
	}
	pr.Status = status
	pr.UpdatedAt = time.Now().UTC()
	if err := m.store.PutPullRequest(ctx, pr); err != nil {
		return nil, apperr.Internal(err, "storing pull request")
	}
	slog.Info("Pull request status updated", "pull_request_id", pr.ID, "status", status)
	return pr, nil
}

// lineage walks Implementation → Plan → Opportunity → Repository.
func (m *Manager) lineage(ctx context.Context, impl *models.Implementation) (*models.Plan, *models.Repository, error) {
	plan, err := m.store.GetPlan(ctx, impl.PlanID)
	if err != nil {
		return nil, nil, invalidLineage(err, "plan", impl.PlanID)
	}
	opp, err := m.store.GetOpportunity(ctx, plan.OpportunityID)
	if err != nil {
		return nil, nil, invalidLineage(err, "opportunity", plan.OpportunityID)
	}
	repo, err := m.store.GetRepository(ctx, opp.RepositoryID)
	if err != nil {
		return nil, nil, invalidLineage(err, "repository", opp.RepositoryID)
	}
	return plan, repo, nil
}

func invalidLineage(err error, resource, id string) error {
	if apperr.Is(err, apperr.KindNotFound) {
		return apperr.Invalid("cannot resolve %s %s for pull request", resource, id)
	}
	return err
}

func describe(plan *models.Plan, impl *models.Implementation) string {
	var b strings.Builder
	b.WriteString(plan.Description)
	b.WriteString("\n\n## Changes\n")
	for _, c := range impl.Changes {
		fmt.Fprintf(&b, "- Step %d: %s (%s)\n", c.Step, c.Description, c.Status)
	}
	if impl.TestsPassed != nil {
		fmt.Fprintf(&b, "\nTests passed: %t\n", *impl.TestsPassed)
	}
	if len(plan.Risks) > 0 {
		b.WriteString("\n## Risks\n")
		for _, r := range plan.Risks {
			fmt.Fprintf(&b, "- %s\n", r)
		}
	}
	b.WriteString("\n_Opened by repomaint._\n")
	return b.String()
}
