package planner

import (
	"fmt"

	"github.com/CosmoTheDev/repomaint-agent/models"
)

// draft is what a strategy produces; the Planner adds ids and timestamps.
type draft struct {
	Title       string
	Description string
	Steps       []models.PlanStep
	Effort      models.Effort
	Risks       []string
}

// Strategy turns one opportunity into a plan draft. Preferences it does
// not understand are ignored.
type Strategy func(o *models.Opportunity, prefs Preferences) draft

// DefaultStrategies returns the built-in table, one entry per type.
func DefaultStrategies() map[models.OpportunityType]Strategy {
	return map[models.OpportunityType]Strategy{
		models.OpportunityDependencyUpdate:      planDependencyUpdate,
		models.OpportunitySecurityVulnerability: planSecurityFix,
		models.OpportunityAPIMigration:          planAPIMigration,
		models.OpportunityCodeOptimization:      planCodeOptimization,
		models.OpportunityTestCoverage:          planTestImprovement,
		models.OpportunityDocumentation:         planDocumentation,
	}
}

func meta(o *models.Opportunity, key string) string {
	if v, ok := o.Metadata[key]; ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return "unknown"
}

func planDependencyUpdate(o *models.Opportunity, _ Preferences) draft {
	pkg, current, latest := meta(o, "package"), meta(o, "current_version"), meta(o, "latest_version")
	return draft{
		Title:       fmt.Sprintf("Update %s to %s", pkg, latest),
		Description: fmt.Sprintf("Safely update %s from %s to %s", pkg, current, latest),
		Steps: []models.PlanStep{
			{Step: 1, Description: fmt.Sprintf("Review changelog for %s %s -> %s", pkg, current, latest), EstimatedTime: "5 minutes"},
			{Step: 2, Description: fmt.Sprintf("Update %s version in dependency files", pkg), EstimatedTime: "2 minutes", Files: o.FilesAffected},
			{Step: 3, Description: "Run tests to ensure compatibility", EstimatedTime: "10 minutes"},
			{Step: 4, Description: "Update lock files if necessary", EstimatedTime: "3 minutes"},
		},
		Effort: models.EffortLow,
		Risks: []string{
			"Breaking changes in new version",
			"Dependency conflicts with other packages",
			"Test failures due to API changes",
		},
	}
}

func planSecurityFix(o *models.Opportunity, _ Preferences) draft {
	vuln, severity := meta(o, "vulnerability_type"), meta(o, "severity")
	return draft{
		Title:       fmt.Sprintf("Fix %s severity %s vulnerability", severity, vuln),
		Description: fmt.Sprintf("Secure implementation to prevent %s attacks", vuln),
		Steps: []models.PlanStep{
			{Step: 1, Description: fmt.Sprintf("Analyze %s vulnerability in affected files", vuln), EstimatedTime: "15 minutes"},
			{Step: 2, Description: "Implement secure coding practices", EstimatedTime: "30 minutes", Files: o.FilesAffected},
			{Step: 3, Description: "Add input validation and sanitization", EstimatedTime: "20 minutes"},
			{Step: 4, Description: "Write security tests", EstimatedTime: "25 minutes"},
			{Step: 5, Description: "Run security scanning tools", EstimatedTime: "10 minutes"},
		},
		Effort: models.EffortHigh,
		Risks: []string{
			"Breaking existing functionality",
			"Performance impact from additional validation",
			"Incomplete fix leaving edge cases vulnerable",
		},
	}
}

func planAPIMigration(o *models.Opportunity, _ Preferences) draft {
	api := meta(o, "api_provider")
	return draft{
		Title:       fmt.Sprintf("Migrate %s API integration", api),
		Description: "Update from deprecated endpoints to new API version",
		Steps: []models.PlanStep{
			{Step: 1, Description: fmt.Sprintf("Review %s migration documentation", api), EstimatedTime: "20 minutes"},
			{Step: 2, Description: "Map deprecated endpoints to new API", EstimatedTime: "30 minutes"},
			{Step: 3, Description: "Update API client implementation", EstimatedTime: "45 minutes", Files: o.FilesAffected},
			{Step: 4, Description: "Update error handling for new API responses", EstimatedTime: "20 minutes"},
			{Step: 5, Description: "Test API integration thoroughly", EstimatedTime: "30 minutes"},
		},
		Effort: models.EffortMedium,
		Risks:  []string{"API rate limiting", "Response format changes", "Authentication changes"},
	}
}

func planCodeOptimization(*models.Opportunity, Preferences) draft {
	return draft{
		Title:       "Optimize code performance",
		Description: "Implement performance improvements",
		Steps: []models.PlanStep{
			{Step: 1, Description: "Profile current performance"},
			{Step: 2, Description: "Implement optimizations"},
			{Step: 3, Description: "Benchmark improvements"},
		},
		Effort: models.EffortMedium,
		Risks:  []string{"Code complexity increase"},
	}
}

func planTestImprovement(o *models.Opportunity, _ Preferences) draft {
	return draft{
		Title:       "Improve test coverage",
		Description: "Add comprehensive tests for untested code",
		Steps: []models.PlanStep{
			{Step: 1, Description: "Identify untested code paths", Files: o.FilesAffected},
			{Step: 2, Description: "Write unit tests"},
			{Step: 3, Description: "Add integration tests"},
		},
		Effort: models.EffortMedium,
		Risks:  []string{"Time-consuming test writing"},
	}
}

func planDocumentation(*models.Opportunity, Preferences) draft {
	return draft{
		Title:       "Improve documentation",
		Description: "Add comprehensive documentation",
		Steps: []models.PlanStep{
			{Step: 1, Description: "Audit existing documentation"},
			{Step: 2, Description: "Write missing documentation"},
			{Step: 3, Description: "Review and validate docs"},
		},
		Effort: models.EffortLow,
		Risks:  []string{"Documentation becoming outdated"},
	}
}

// planGeneric covers types without a table entry.
func planGeneric(o *models.Opportunity, _ Preferences) draft {
	return draft{
		Title:       "Implementation plan for " + o.Title,
		Description: "Generated plan to address: " + o.Description,
		Steps:       []models.PlanStep{{Step: 1, Description: "Analyze current implementation"}},
		Effort:      models.EffortMedium,
		Risks:       []string{"Unknown complexity"},
	}
}
