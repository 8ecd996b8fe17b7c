package miner

import (
	"context"

	"github.com/CosmoTheDev/repomaint-agent/models"
)

// The scripted catalog stands in for real analyzers. Each function returns
// fixed candidates so the pipeline downstream has stable input.

func mineDependencyUpdates(ctx context.Context, t Target) ([]models.OpportunityInput, error) {
	var out []models.OpportunityInput
	if t.has(models.LanguagePython) {
		out = append(out, models.OpportunityInput{
			Type:          models.OpportunityDependencyUpdate,
			Title:         "Update FastAPI to latest version",
			Description:   "FastAPI 0.104.1 is available with bug fixes and performance improvements",
			Priority:      3,
			Confidence:    0.9,
			FilesAffected: []string{"requirements.txt", "pyproject.toml"},
			Metadata: map[string]any{
				"current_version": "0.103.0",
				"latest_version":  "0.104.1",
				"package":         "fastapi",
			},
		})
	}
	if t.has(models.LanguageJavaScript) {
		out = append(out, models.OpportunityInput{
			Type:          models.OpportunityDependencyUpdate,
			Title:         "Update React to v18.2.0",
			Description:   "React 18.2.0 includes important bug fixes and performance improvements",
			Priority:      2,
			Confidence:    0.85,
			FilesAffected: []string{"package.json", "package-lock.json"},
			Metadata: map[string]any{
				"current_version": "18.1.0",
				"latest_version":  "18.2.0",
				"package":         "react",
			},
		})
	}
	if t.has(models.LanguageGo) && t.Repository != nil {
		if content, ok := t.Repository.Manifest("go.mod"); ok {
			found, err := analyzeGoMod("go.mod", []byte(content))
			if err != nil {
				return out, err
			}
			out = append(out, found...)
		}
	}
	return out, nil
}

func mineSecurityVulnerabilities(context.Context, Target) ([]models.OpportunityInput, error) {
	return []models.OpportunityInput{{
		Type:          models.OpportunitySecurityVulnerability,
		Title:         "Fix potential SQL injection vulnerability",
		Description:   "Raw SQL query construction detected in user input handling",
		Priority:      1,
		Confidence:    0.7,
		FilesAffected: []string{"src/database/queries.py"},
		Metadata: map[string]any{
			"vulnerability_type": "sql_injection",
			"cwe_id":             "CWE-89",
			"severity":           "high",
		},
	}}, nil
}

func mineAPIMigrations(context.Context, Target) ([]models.OpportunityInput, error) {
	return []models.OpportunityInput{{
		Type:          models.OpportunityAPIMigration,
		Title:         "Migrate deprecated GitHub API endpoints",
		Description:   "Several GitHub API v3 endpoints are deprecated, migrate to v4 GraphQL API",
		Priority:      4,
		Confidence:    0.8,
		FilesAffected: []string{"src/integrations/github.py"},
		Metadata: map[string]any{
			"api_provider":         "github",
			"deprecated_endpoints": []string{"/repos/:owner/:repo/issues"},
			"replacement":          "GraphQL API",
		},
	}}, nil
}

func mineCodeOptimizations(context.Context, Target) ([]models.OpportunityInput, error) {
	return []models.OpportunityInput{{
		Type:          models.OpportunityCodeOptimization,
		Title:         "Optimize database query performance",
		Description:   "Multiple N+1 queries detected, can be optimized with eager loading",
		Priority:      5,
		Confidence:    0.75,
		FilesAffected: []string{"src/services/user.py", "src/services/project.py"},
		Metadata: map[string]any{
			"optimization_type":     "n_plus_1_queries",
			"estimated_improvement": "50% query time reduction",
		},
	}}, nil
}

// mineTestCoverage uses the indexed file list when there is one and falls
// back to the scripted candidate otherwise.
func mineTestCoverage(_ context.Context, t Target) ([]models.OpportunityInput, error) {
	if len(t.Files) > 0 {
		return testRatioOpportunities(t), nil
	}
	return []models.OpportunityInput{{
		Type:          models.OpportunityTestCoverage,
		Title:         "Increase test coverage for authentication module",
		Description:   "Authentication module has only 45% test coverage, critical paths untested",
		Priority:      6,
		Confidence:    0.9,
		FilesAffected: []string{"src/auth/", "tests/test_auth.py"},
		Metadata: map[string]any{
			"current_coverage":   0.45,
			"target_coverage":    0.80,
			"untested_functions": []string{"validate_token", "refresh_token"},
		},
	}}, nil
}

func mineDocumentation(context.Context, Target) ([]models.OpportunityInput, error) {
	return []models.OpportunityInput{{
		Type:          models.OpportunityDocumentation,
		Title:         "Add API documentation for new endpoints",
		Description:   "5 new API endpoints lack proper documentation and examples",
		Priority:      7,
		Confidence:    0.85,
		FilesAffected: []string{"docs/api.md", "src/api/routes.py"},
		Metadata: map[string]any{
			"missing_docs": []string{"/api/v1/users", "/api/v1/projects"},
			"doc_type":     "api_reference",
		},
	}}, nil
}
