// Package planner turns opportunities into ordered implementation plans.
package planner

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/CosmoTheDev/repomaint-agent/internal/apperr"
	"github.com/CosmoTheDev/repomaint-agent/internal/store"
	"github.com/CosmoTheDev/repomaint-agent/models"
	"github.com/google/uuid"
)

// Preferences is an open key-value bag. Recognised keys:
//
//	require_tests  bool    append a test step when the plan has none
//	risk_tolerance string  "low" raises the effort estimate one level
type Preferences map[string]any

func (p Preferences) bool(key string) bool {
	v, _ := p[key].(bool)
	return v
}

func (p Preferences) string(key string) string {
	v, _ := p[key].(string)
	return strings.ToLower(v)
}

// Planner dispatches on Opportunity.Type through a strategy table.
type Planner struct {
	store      *store.Store
	strategies map[models.OpportunityType]Strategy
}

// New creates a Planner. A nil table uses DefaultStrategies.
func New(st *store.Store, strategies map[models.OpportunityType]Strategy) *Planner {
	if strategies == nil {
		strategies = DefaultStrategies()
	}
	return &Planner{store: st, strategies: strategies}
}

// GeneratePlan loads the opportunity, builds and stores its plan.
func (p *Planner) GeneratePlan(ctx context.Context, opportunityID string, prefs Preferences) (*models.Plan, error) {
	opp, err := p.store.GetOpportunity(ctx, opportunityID)
	if err != nil {
		return nil, err
	}
	plan := p.Build(opp, prefs)
	if err := p.store.PutPlan(ctx, plan); err != nil {
		return nil, apperr.Internal(err, "storing plan")
	}
	slog.Info("Generated plan", "plan_id", plan.ID, "opportunity_id", opp.ID, "type", opp.Type, "steps", len(plan.Steps), "effort", plan.EstimatedEffort)
	return plan, nil
}

// Build produces a plan without touching storage.
func (p *Planner) Build(opp *models.Opportunity, prefs Preferences) *models.Plan {
	strategy, ok := p.strategies[opp.Type]
	if !ok {
		strategy = planGeneric
	}
	d := applyPreferences(strategy(opp, prefs), prefs)
	return &models.Plan{
		ID:              uuid.NewString(),
		OpportunityID:   opp.ID,
		Title:           d.Title,
		Description:     d.Description,
		Steps:           d.Steps,
		EstimatedEffort: d.Effort,
		Risks:           d.Risks,
		CreatedAt:       time.Now().UTC(),
	}
}

func applyPreferences(d draft, prefs Preferences) draft {
	if prefs.bool("require_tests") && !hasTestStep(d.Steps) {
		d.Steps = append(d.Steps, models.PlanStep{
			Step:        len(d.Steps) + 1,
			Description: "Add tests covering the change",
		})
	}
	if prefs.string("risk_tolerance") == "low" {
		switch d.Effort {
		case models.EffortLow:
			d.Effort = models.EffortMedium
		case models.EffortMedium:
			d.Effort = models.EffortHigh
		}
		d.Risks = append(d.Risks, fmt.Sprintf("Low risk tolerance requested; expect extra review for %d steps", len(d.Steps)))
	}
	return d
}

func hasTestStep(steps []models.PlanStep) bool {
	for _, s := range steps {
		if strings.Contains(strings.ToLower(s.Description), "test") {
			return true
		}
	}
	return false
}
