// Package reviewer runs a panel of review agents against a pull request and
// publishes the aggregated verdict.
package reviewer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/CosmoTheDev/repomaint-agent/internal/agents"
	"github.com/CosmoTheDev/repomaint-agent/internal/apperr"
	"github.com/CosmoTheDev/repomaint-agent/internal/metrics"
	"github.com/CosmoTheDev/repomaint-agent/internal/repository"
	"github.com/CosmoTheDev/repomaint-agent/internal/store"
	"github.com/CosmoTheDev/repomaint-agent/models"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// ReviewerName is recorded on every aggregated review.
const ReviewerName = "multi-agent"

const maxParallel = 4

// Outcome is a stored review plus whether it reached the provider.
type Outcome struct {
	Review    *models.Review
	Posted    bool
	PostError string
}

// Reviewer aggregates agent verdicts.
type Reviewer struct {
	store    *store.Store
	registry *repository.Registry
	catalog  *agents.Catalog
	defaults []string
}

// New creates a Reviewer. Empty defaults use the first three built-ins.
func New(st *store.Store, reg *repository.Registry, catalog *agents.Catalog, defaults []string) *Reviewer {
	if catalog == nil {
		catalog = agents.NewCatalog()
	}
	if len(defaults) == 0 {
		defaults = agents.BuiltinNames[:3]
	}
	return &Reviewer{store: st, registry: reg, catalog: catalog, defaults: defaults}
}

// ReviewPullRequest runs the requested agents, stores the review and posts
// it. Posting failures are logged and reported on the Outcome only.
func (r *Reviewer) ReviewPullRequest(ctx context.Context, pullRequestID string, reviewers []string) (*Outcome, error) {
	pr, err := r.store.GetPullRequest(ctx, pullRequestID)
	if err != nil {
		return nil, err
	}
	if len(reviewers) == 0 {
		reviewers = r.defaults
	}
	repo, repoErr := r.store.GetRepository(ctx, pr.RepositoryID)
	if repoErr != nil {
		repo = nil
	}

	results := r.runAgents(ctx, reviewers, agents.Input{PullRequest: pr, Repository: repo})

	var comments []models.ReviewComment
	var total float64
	for _, res := range results {
		if res == nil {
			continue
		}
		comments = append(comments, res.Comments...)
		total += res.Score
	}
	if comments == nil {
		comments = []models.ReviewComment{}
	}
	score := total / float64(len(reviewers))

	review := &models.Review{
		ID:            uuid.NewString(),
		PullRequestID: pr.ID,
		Reviewer:      ReviewerName,
		Status:        Verdict(score, comments),
		Comments:      comments,
		Score:         score,
		CreatedAt:     time.Now().UTC(),
	}
	if err := review.Validate(); err != nil {
		return nil, apperr.Internal(err, "aggregating review")
	}
	if err := r.store.PutReview(ctx, review); err != nil {
		return nil, apperr.Internal(err, "storing review")
	}
	slog.Info("Review completed",
		"review_id", review.ID,
		"pull_request_id", pr.ID,
		"status", review.Status,
		"score", fmt.Sprintf("%.1f", review.Score),
		"comments", len(review.Comments),
	)

	out := &Outcome{Review: review}
	if err := r.post(ctx, pr, repo, repoErr, review); err != nil {
		slog.Warn("Failed to post review", "review_id", review.ID, "pull_request_id", pr.ID, "error", err)
		out.PostError = err.Error()
	} else {
		out.Posted = true
	}
	metrics.ReviewsTotal.WithLabelValues(string(review.Status), strconv.FormatBool(out.Posted)).Inc()
	return out, nil
}

// Reviews lists stored reviews for a pull request.
func (r *Reviewer) Reviews(ctx context.Context, pullRequestID string) ([]models.Review, error) {
	if _, err := r.store.GetPullRequest(ctx, pullRequestID); err != nil {
		return nil, err
	}
	return r.store.Reviews(ctx, pullRequestID)
}

// runAgents fans out with isolated failures. A failed agent leaves a nil
// slot and so contributes a zero score.
func (r *Reviewer) runAgents(ctx context.Context, names []string, in agents.Input) []*agents.Result {
	results := make([]*agents.Result, len(names))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallel)
	for i, name := range names {
		agent := r.catalog.Get(name)
		g.Go(func() (err error) {
			defer func() {
				if rec := recover(); rec != nil {
					slog.Error("Review agent panicked", "agent", name, "panic", rec, "stack", string(debug.Stack()))
					metrics.StrategyFailures.WithLabelValues("reviewer", name).Inc()
				}
			}()
			res, err := agent.Review(gctx, in)
			if err == nil && math.IsNaN(res.Score) {
				err = errors.New("score is not a number")
			}
			if err != nil {
				slog.Warn("Review agent failed", "agent", name, "error", err)
				metrics.StrategyFailures.WithLabelValues("reviewer", name).Inc()
				return nil
			}
			res.Score = min(max(res.Score, 0), 10)
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (r *Reviewer) post(ctx context.Context, pr *models.PullRequest, repo *models.Repository, repoErr error, review *models.Review) error {
	if repoErr != nil {
		return fmt.Errorf("resolving repository: %w", repoErr)
	}
	provider, err := r.registry.Get(pr.ProviderType)
	if err != nil {
		return fmt.Errorf("resolving provider: %w", err)
	}
	return provider.PostReview(ctx, pr.Reference(repo), *review)
}

// Verdict maps an average score and comments onto a review status. Any high
// severity comment requests changes.
func Verdict(score float64, comments []models.ReviewComment) models.ReviewStatus {
	for _, c := range comments {
		if c.Severity == models.SeverityHigh {
			return models.ReviewChangesRequested
		}
	}
	switch {
	case score >= 8.0:
		return models.ReviewApproved
	case score >= 6.0:
		return models.ReviewCommented
	default:
		return models.ReviewChangesRequested
	}
}
