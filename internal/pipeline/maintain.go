package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/CosmoTheDev/repomaint-agent/internal/apperr"
	"github.com/CosmoTheDev/repomaint-agent/internal/indexer"
	"github.com/CosmoTheDev/repomaint-agent/internal/miner"
	"github.com/CosmoTheDev/repomaint-agent/internal/notify"
	"github.com/CosmoTheDev/repomaint-agent/internal/planner"
	"github.com/CosmoTheDev/repomaint-agent/internal/prmanager"
	"github.com/CosmoTheDev/repomaint-agent/internal/tasks"
	"github.com/CosmoTheDev/repomaint-agent/models"
)

// MaintainOptions drives a full maintenance run.
type MaintainOptions struct {
	Provider     models.ProviderType
	Branch       string
	ForceReindex bool
	Types        []models.OpportunityType
	Max          int
	Preferences  planner.Preferences
	DryRun       bool
	CreatePRs    bool
	Draft        bool
	Review       bool
	Reviewers    []string
}

// OpportunityReport is what happened to one opportunity.
type OpportunityReport struct {
	Opportunity    models.Opportunity     `json:"opportunity"`
	Plan           *models.Plan           `json:"plan,omitempty"`
	Implementation *models.Implementation `json:"implementation,omitempty"`
	PullRequest    *models.PullRequest    `json:"pull_request,omitempty"`
	Review         *models.Review         `json:"review,omitempty"`
	Error          string                 `json:"error,omitempty"`
}

// MaintainReport summarises a maintenance run.
type MaintainReport struct {
	Repository    *models.Repository  `json:"repository"`
	SkippedIndex  bool                `json:"skipped_index"`
	Opportunities []OpportunityReport `json:"opportunities"`
}

// MaintainRepository indexes url, mines it, then plans and implements each
// opportunity, optionally opening and reviewing pull requests. Failures of
// one opportunity are recorded and do not stop the others.
func (p *Pipeline) MaintainRepository(ctx context.Context, url string, opts MaintainOptions) (*MaintainReport, error) {
	res, err := p.Indexer.Index(ctx, indexer.Request{
		URL:          url,
		Provider:     opts.Provider,
		Branch:       opts.Branch,
		ForceReindex: opts.ForceReindex,
	})
	if err != nil {
		return nil, err
	}
	report := &MaintainReport{Repository: res.Repository, SkippedIndex: res.Skipped}

	limit := opts.Max
	if limit == 0 {
		limit = 5
	}
	opps, err := p.Miner.Mine(ctx, miner.Request{RepositoryID: res.Repository.ID, Types: opts.Types, Max: limit})
	if err != nil {
		return report, err
	}

	for _, opp := range opps {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Opportunities = append(report.Opportunities, p.maintainOne(ctx, opp, opts))
	}
	slog.Info("Maintenance run finished", "repository_id", res.Repository.ID, "opportunities", len(report.Opportunities))
	p.notifier().Notify(ctx, notify.Event{
		Type:       notify.EventMaintainCompleted,
		Title:      "Maintenance run finished for " + res.Repository.FullName,
		Body:       fmt.Sprintf("%d opportunities processed", len(report.Opportunities)),
		Repository: res.Repository.FullName,
	})
	return report, nil
}

func (p *Pipeline) maintainOne(ctx context.Context, opp models.Opportunity, opts MaintainOptions) OpportunityReport {
	rep := OpportunityReport{Opportunity: opp}
	fail := func(stage string, err error) OpportunityReport {
		_, msg := apperr.Public(err)
		rep.Error = stage + ": " + msg
		slog.Warn("Maintenance stage failed", "opportunity_id", opp.ID, "stage", stage, "error", err)
		return rep
	}

	plan, err := p.Planner.GeneratePlan(ctx, opp.ID, opts.Preferences)
	if err != nil {
		return fail("plan", err)
	}
	rep.Plan = plan

	impl, err := p.Implementer.Implement(ctx, plan, opts.DryRun, nil)
	rep.Implementation = impl
	if err != nil {
		return fail("implement", err)
	}
	if !opts.CreatePRs {
		return rep
	}

	pr, err := p.CreatePullRequest(ctx, prmanager.Request{ImplementationID: impl.ID, Draft: opts.Draft || opts.DryRun})
	if err != nil {
		return fail("pull request", err)
	}
	rep.PullRequest = pr
	if !opts.Review {
		return rep
	}

	out, err := p.ReviewPullRequest(ctx, pr.ID, opts.Reviewers)
	if err != nil {
		return fail("review", err)
	}
	rep.Review = out.Review
	return rep
}

// StartMaintenance runs MaintainRepository as a background task. The task
// result is the repository id.
func (p *Pipeline) StartMaintenance(ctx context.Context, url string, opts MaintainOptions) (string, error) {
	if _, err := p.Indexer.Resolve(indexer.Request{URL: url, Provider: opts.Provider}); err != nil {
		return "", err
	}
	return p.Pool.Submit(TaskKindMaintain, "maintenance queued", func(ctx context.Context, h *tasks.Handle) error {
		report, err := p.MaintainRepository(ctx, url, opts)
		if report != nil && report.Repository != nil {
			h.SetResult(report.Repository.ID)
		}
		if err != nil {
			return err
		}
		h.Finish(fmt.Sprintf("processed %d opportunities", len(report.Opportunities)))
		return nil
	})
}
