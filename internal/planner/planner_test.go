package planner

import (
	"context"
	"testing"
	"time"

	"github.com/CosmoTheDev/repomaint-agent/internal/apperr"
	"github.com/CosmoTheDev/repomaint-agent/internal/store"
	"github.com/CosmoTheDev/repomaint-agent/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func opportunity(typ models.OpportunityType) *models.Opportunity {
	return &models.Opportunity{
		ID: "opp-1", RepositoryID: "repo-1", Type: typ, Title: "Update FastAPI", Description: "bump",
		Priority: 3, Confidence: 0.9, FilesAffected: []string{"requirements.txt"},
		Metadata:  map[string]any{"package": "fastapi", "current_version": "0.103.0", "latest_version": "0.104.1"},
		CreatedAt: time.Now().UTC(),
	}
}

func TestBuild(t *testing.T) {
	t.Parallel()

	t.Run("should produce steps and a valid effort for every type", func(t *testing.T) {
		t.Parallel()

		p := New(nil, nil)
		for _, typ := range models.AllOpportunityTypes {
			// when
			plan := p.Build(opportunity(typ), nil)

			// then
			assert.NotEmpty(t, plan.Steps, typ)
			assert.True(t, plan.EstimatedEffort.Valid(), typ)
			assert.Equal(t, "opp-1", plan.OpportunityID)
			for i, s := range plan.Steps {
				assert.Equal(t, i+1, s.Step, typ)
			}
		}
	})

	t.Run("should be stable for the same type and preferences", func(t *testing.T) {
		t.Parallel()

		p := New(nil, nil)
		a := p.Build(opportunity(models.OpportunitySecurityVulnerability), Preferences{"risk_tolerance": "low"})
		b := p.Build(opportunity(models.OpportunitySecurityVulnerability), Preferences{"risk_tolerance": "low"})
		assert.Equal(t, a.Steps, b.Steps)
		assert.Equal(t, a.EstimatedEffort, b.EstimatedEffort)
		assert.Equal(t, a.Risks, b.Risks)
	})

	t.Run("should fill the dependency plan from metadata", func(t *testing.T) {
		t.Parallel()

		plan := New(nil, nil).Build(opportunity(models.OpportunityDependencyUpdate), nil)
		assert.Equal(t, "Update fastapi to 0.104.1", plan.Title)
		assert.Equal(t, models.EffortLow, plan.EstimatedEffort)
		assert.Equal(t, []string{"requirements.txt"}, plan.Steps[1].Files)
	})

	t.Run("should fall back to the generic plan", func(t *testing.T) {
		t.Parallel()

		// given a table without documentation
		strategies := DefaultStrategies()
		delete(strategies, models.OpportunityDocumentation)

		// when
		plan := New(nil, strategies).Build(opportunity(models.OpportunityDocumentation), nil)

		// then
		require.Len(t, plan.Steps, 1)
		assert.Equal(t, "Analyze current implementation", plan.Steps[0].Description)
		assert.Equal(t, models.EffortMedium, plan.EstimatedEffort)
	})

	t.Run("should honour preferences and ignore unknown keys", func(t *testing.T) {
		t.Parallel()

		p := New(nil, nil)
		plan := p.Build(opportunity(models.OpportunityDocumentation), Preferences{
			"require_tests": true, "risk_tolerance": "LOW", "colour": "blue",
		})
		assert.Len(t, plan.Steps, 4)
		assert.Equal(t, "Add tests covering the change", plan.Steps[3].Description)
		assert.Equal(t, models.EffortMedium, plan.EstimatedEffort)
	})
}

func TestGeneratePlan(t *testing.T) {
	t.Parallel()

	t.Run("should store the plan", func(t *testing.T) {
		t.Parallel()

		// given
		st := store.New(store.NewMemoryBackend())
		require.NoError(t, st.PutOpportunity(context.Background(), opportunity(models.OpportunityAPIMigration)))
		p := New(st, nil)

		// when
		plan, err := p.GeneratePlan(context.Background(), "opp-1", nil)

		// then
		require.NoError(t, err)
		stored, err := st.GetPlan(context.Background(), plan.ID)
		require.NoError(t, err)
		assert.Equal(t, plan.Title, stored.Title)
		assert.Len(t, stored.Steps, 5)
	})

	t.Run("should report an unknown opportunity", func(t *testing.T) {
		t.Parallel()

		p := New(store.New(store.NewMemoryBackend()), nil)
		_, err := p.GeneratePlan(context.Background(), "missing", nil)
		assert.True(t, apperr.Is(err, apperr.KindNotFound))
	})
}
