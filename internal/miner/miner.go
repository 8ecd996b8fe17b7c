// Package miner runs opportunity detection strategies over an indexed
// repository and ranks the results.
package miner

import (
	"context"
	"log/slog"
	"sort"

	"github.com/CosmoTheDev/repomaint-agent/internal/apperr"
	"github.com/CosmoTheDev/repomaint-agent/internal/metrics"
	"github.com/CosmoTheDev/repomaint-agent/internal/store"
	"github.com/CosmoTheDev/repomaint-agent/models"
	"golang.org/x/sync/errgroup"
)

const (
	MinResults = 1
	MaxResults = 100
	// listLimit is the effective max of Opportunities.
	listLimit = 1000
	// maxParallel bounds concurrently running strategies.
	maxParallel = 4
)

// Request selects what to mine. Empty Types runs every strategy; empty
// Languages uses the repository's detected languages.
type Request struct {
	RepositoryID string
	Types        []models.OpportunityType
	Languages    []models.Language
	Max          int
}

// Miner dispatches to one strategy per opportunity type.
type Miner struct {
	store      *store.Store
	strategies map[models.OpportunityType]Strategy
}

// New creates a Miner. A nil table uses DefaultStrategies.
func New(st *store.Store, strategies map[models.OpportunityType]Strategy) *Miner {
	if strategies == nil {
		strategies = DefaultStrategies()
	}
	return &Miner{store: st, strategies: strategies}
}

// Mine runs the requested strategies, isolates their failures, ranks the
// candidates by (priority asc, confidence desc), truncates to Max and
// persists what it returns.
func (m *Miner) Mine(ctx context.Context, req Request) ([]models.Opportunity, error) {
	if req.Max < MinResults || req.Max > MaxResults {
		return nil, apperr.Invalid("max must be between %d and %d, got %d", MinResults, MaxResults, req.Max)
	}
	repo, err := m.store.GetRepository(ctx, req.RepositoryID)
	if err != nil {
		return nil, err
	}
	files, err := m.store.CodeFiles(ctx, repo.ID)
	if err != nil {
		return nil, apperr.Internal(err, "loading indexed files")
	}

	types := req.Types
	if len(types) == 0 {
		types = models.AllOpportunityTypes
	}
	langs := req.Languages
	if len(langs) == 0 {
		langs = repo.Languages
	}
	target := Target{Repository: repo, Languages: langs, Files: files}

	found := m.run(ctx, types, target)
	opps := rank(repo.ID, types, found, req.Max)

	for i := range opps {
		if err := m.store.PutOpportunity(ctx, &opps[i]); err != nil {
			return nil, apperr.Internal(err, "storing opportunity")
		}
		metrics.OpportunitiesMined.WithLabelValues(string(opps[i].Type)).Inc()
	}
	slog.Info("Mined opportunities", "repository_id", repo.ID, "types", len(types), "found", len(found), "returned", len(opps))
	return opps, nil
}

// Opportunities lists every stored opportunity for a repository in rank order.
func (m *Miner) Opportunities(ctx context.Context, repositoryID string) ([]models.Opportunity, error) {
	if _, err := m.store.GetRepository(ctx, repositoryID); err != nil {
		return nil, err
	}
	stored, err := m.store.Opportunities(ctx, repositoryID)
	if err != nil {
		return nil, apperr.Internal(err, "listing opportunities")
	}
	sortOpportunities(stored)
	if len(stored) > listLimit {
		stored = stored[:listLimit]
	}
	return stored, nil
}

// run executes each strategy once. A failing strategy is logged and
// skipped; the group itself never fails. Results keep the order of types.
func (m *Miner) run(ctx context.Context, types []models.OpportunityType, target Target) []models.OpportunityInput {
	results := make([][]models.OpportunityInput, len(types))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallel)
	for i, typ := range types {
		strategy, ok := m.strategies[typ]
		if !ok {
			slog.Warn("No mining strategy registered", "type", typ)
			continue
		}
		g.Go(func() error {
			res, err := mine(gctx, strategy, target)
			if err != nil {
				metrics.StrategyFailures.WithLabelValues("miner", string(typ)).Inc()
				slog.Warn("Mining strategy failed", "type", typ, "repository_id", target.Repository.ID, "error", err)
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()

	var out []models.OpportunityInput
	for _, res := range results {
		out = append(out, res...)
	}
	return out
}

// mine converts a strategy panic into an error.
func mine(ctx context.Context, s Strategy, target Target) (res []models.OpportunityInput, err error) {
	defer func() {
		if r := recover(); r != nil {
			res, err = nil, apperr.Internal(nil, "strategy panicked: %v", r)
		}
	}()
	return s.Mine(ctx, target)
}

// rank validates candidates, drops types that were not requested, sorts and
// truncates.
func rank(repositoryID string, types []models.OpportunityType, found []models.OpportunityInput, limit int) []models.Opportunity {
	wanted := make(map[models.OpportunityType]bool, len(types))
	for _, t := range types {
		wanted[t] = true
	}
	out := make([]models.Opportunity, 0, len(found))
	for _, in := range found {
		if !wanted[in.Type] {
			continue
		}
		in.RepositoryID = repositoryID
		o, err := models.NewOpportunity(in)
		if err != nil {
			slog.Warn("Dropping invalid opportunity", "title", in.Title, "error", err)
			continue
		}
		out = append(out, *o)
	}
	sortOpportunities(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func sortOpportunities(opps []models.Opportunity) {
	sort.SliceStable(opps, func(i, j int) bool {
		if opps[i].Priority != opps[j].Priority {
			return opps[i].Priority < opps[j].Priority
		}
		return opps[i].Confidence > opps[j].Confidence
	})
}
