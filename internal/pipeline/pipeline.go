// Package pipeline exposes the stage entry points over one set of wired
// services: index, mine, plan, implement, pull request and review.
package pipeline

import (
	"context"
	"fmt"

	"github.com/CosmoTheDev/repomaint-agent/internal/implementer"
	"github.com/CosmoTheDev/repomaint-agent/internal/indexer"
	"github.com/CosmoTheDev/repomaint-agent/internal/miner"
	"github.com/CosmoTheDev/repomaint-agent/internal/notify"
	"github.com/CosmoTheDev/repomaint-agent/internal/planner"
	"github.com/CosmoTheDev/repomaint-agent/internal/prmanager"
	"github.com/CosmoTheDev/repomaint-agent/internal/reviewer"
	"github.com/CosmoTheDev/repomaint-agent/internal/store"
	"github.com/CosmoTheDev/repomaint-agent/internal/tasks"
	"github.com/CosmoTheDev/repomaint-agent/models"
)

// TaskKindMaintain is the tracker kind for full maintenance runs.
const TaskKindMaintain = "maintain"

// Pipeline is the orchestrator. Every stage is independently callable and
// retryable; MaintainRepository chains them.
type Pipeline struct {
	Store       *store.Store
	Pool        *tasks.Pool
	Indexer     *indexer.Indexer
	Miner       *miner.Miner
	Planner     *planner.Planner
	Implementer *implementer.Implementer
	PRs         *prmanager.Manager
	Reviewer    *reviewer.Reviewer
	Notifier    notify.Notifier
}

func (p *Pipeline) notifier() notify.Notifier {
	if p.Notifier == nil {
		return notify.Discard{}
	}
	return p.Notifier
}

// StartIndexing schedules an indexing run and returns its task id.
func (p *Pipeline) StartIndexing(ctx context.Context, req indexer.Request) (string, error) {
	return p.Indexer.StartIndexing(ctx, req)
}

// MineOpportunities mines, ranks and stores opportunities.
func (p *Pipeline) MineOpportunities(ctx context.Context, req miner.Request) ([]models.Opportunity, error) {
	return p.Miner.Mine(ctx, req)
}

// GetOpportunities lists every stored opportunity of a repository.
func (p *Pipeline) GetOpportunities(ctx context.Context, repositoryID string) ([]models.Opportunity, error) {
	if _, err := p.Store.GetRepository(ctx, repositoryID); err != nil {
		return nil, err
	}
	return p.Miner.Opportunities(ctx, repositoryID)
}

// GeneratePlan builds and stores a plan for an opportunity.
func (p *Pipeline) GeneratePlan(ctx context.Context, opportunityID string, prefs planner.Preferences) (*models.Plan, error) {
	return p.Planner.GeneratePlan(ctx, opportunityID, prefs)
}

// StartImplementation schedules a plan and returns the task id.
func (p *Pipeline) StartImplementation(ctx context.Context, planID string, dryRun bool) (string, error) {
	return p.Implementer.StartImplementation(ctx, planID, dryRun)
}

// CreatePullRequest opens a pull request and announces it.
func (p *Pipeline) CreatePullRequest(ctx context.Context, req prmanager.Request) (*models.PullRequest, error) {
	pr, err := p.PRs.CreatePullRequest(ctx, req)
	if err != nil {
		return nil, err
	}
	p.notifier().Notify(ctx, notify.Event{
		Type:       notify.EventPROpened,
		Title:      "Pull request opened: " + pr.Title,
		Body:       fmt.Sprintf("Branch %s -> %s (%s)", pr.BranchName, pr.TargetBranch, pr.Status),
		URL:        pr.URL,
		Repository: p.repositoryName(ctx, pr.RepositoryID),
		Metadata:   map[string]any{"pull_request_id": pr.ID, "implementation_id": pr.ImplementationID},
	})
	return pr, nil
}

// UpdatePullRequestStatus transitions a stored pull request.
func (p *Pipeline) UpdatePullRequestStatus(ctx context.Context, pullRequestID string, status models.PRStatus) (*models.PullRequest, error) {
	return p.PRs.UpdatePullRequestStatus(ctx, pullRequestID, status)
}

// ReviewPullRequest runs the agent panel and announces a posted review.
func (p *Pipeline) ReviewPullRequest(ctx context.Context, pullRequestID string, reviewers []string) (*reviewer.Outcome, error) {
	out, err := p.Reviewer.ReviewPullRequest(ctx, pullRequestID, reviewers)
	if err != nil {
		return nil, err
	}
	if out.Posted {
		pr, _ := p.Store.GetPullRequest(ctx, pullRequestID)
		evt := notify.Event{
			Type:     notify.EventReviewPosted,
			Title:    fmt.Sprintf("Review %s (%.1f/10)", out.Review.Status, out.Review.Score),
			Body:     fmt.Sprintf("%d comments from %s", len(out.Review.Comments), out.Review.Reviewer),
			Severity: reviewSeverity(out.Review.Status),
			Metadata: map[string]any{"review_id": out.Review.ID, "pull_request_id": pullRequestID},
		}
		if pr != nil {
			evt.URL = pr.URL
			evt.Repository = p.repositoryName(ctx, pr.RepositoryID)
		}
		p.notifier().Notify(ctx, evt)
	}
	return out, nil
}

// GetTaskStatus returns the tracked state of a background task.
func (p *Pipeline) GetTaskStatus(taskID string) (models.Task, error) {
	return p.Pool.Tracker().Get(taskID)
}

// ListTasks returns every tracked task, oldest first.
func (p *Pipeline) ListTasks() []models.Task {
	return p.Pool.Tracker().List()
}

func (p *Pipeline) repositoryName(ctx context.Context, id string) string {
	repo, err := p.Store.GetRepository(ctx, id)
	if err != nil {
		return ""
	}
	return repo.FullName
}

// TaskNotifier returns a pool OnFinish hook that reports failed tasks and
// finished indexing runs.
func TaskNotifier(n notify.Notifier) func(models.Task) {
	return func(task models.Task) {
		switch {
		case task.Status == models.StatusFailed:
			n.Notify(context.Background(), notify.Event{
				Type:     notify.EventTaskFailed,
				Title:    fmt.Sprintf("%s task %s failed", task.Kind, task.ID),
				Body:     task.Error,
				Severity: "high",
				Metadata: map[string]any{"task_id": task.ID, "kind": task.Kind},
			})
		case task.Status == models.StatusCompleted && task.Kind == indexer.TaskKind:
			n.Notify(context.Background(), notify.Event{
				Type:     notify.EventRepositoryIndexed,
				Title:    "Repository indexed",
				Body:     task.Message,
				Metadata: map[string]any{"task_id": task.ID, "repository_id": task.ResultID},
			})
		}
	}
}

func reviewSeverity(status models.ReviewStatus) string {
	switch status {
	case models.ReviewChangesRequested:
		return "high"
	case models.ReviewCommented:
		return "medium"
	default:
		return "low"
	}
}
