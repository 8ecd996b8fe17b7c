package miner

import (
	"context"

	"github.com/CosmoTheDev/repomaint-agent/models"
)

// Target is what a strategy inspects.
type Target struct {
	Repository *models.Repository
	// Languages is the requested language filter, or the repository's
	// detected languages when the caller gave none.
	Languages []models.Language
	Files     []models.CodeFile
}

func (t Target) has(lang models.Language) bool {
	for _, l := range t.Languages {
		if l == lang {
			return true
		}
	}
	return false
}

// Strategy detects opportunities of one type.
type Strategy interface {
	Mine(ctx context.Context, target Target) ([]models.OpportunityInput, error)
}

// StrategyFunc adapts a function to Strategy.
type StrategyFunc func(ctx context.Context, target Target) ([]models.OpportunityInput, error)

func (f StrategyFunc) Mine(ctx context.Context, target Target) ([]models.OpportunityInput, error) {
	return f(ctx, target)
}

// DefaultStrategies returns the built-in strategy table, one entry per
// opportunity type.
func DefaultStrategies() map[models.OpportunityType]Strategy {
	return map[models.OpportunityType]Strategy{
		models.OpportunityDependencyUpdate:      StrategyFunc(mineDependencyUpdates),
		models.OpportunitySecurityVulnerability: StrategyFunc(mineSecurityVulnerabilities),
		models.OpportunityAPIMigration:          StrategyFunc(mineAPIMigrations),
		models.OpportunityCodeOptimization:      StrategyFunc(mineCodeOptimizations),
		models.OpportunityTestCoverage:          StrategyFunc(mineTestCoverage),
		models.OpportunityDocumentation:         StrategyFunc(mineDocumentation),
	}
}
