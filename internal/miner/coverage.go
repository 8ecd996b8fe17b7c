package miner

import (
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/CosmoTheDev/repomaint-agent/models"
)

const (
	minSourcesForCoverage = 3
	minTestRatio          = 0.25
	maxCoverageFiles      = 10
)

// isTestFile recognises the test naming conventions of the tracked languages.
func isTestFile(p string) bool {
	base := path.Base(p)
	lower := strings.ToLower(base)
	switch {
	case strings.HasSuffix(lower, "_test.go"),
		strings.HasPrefix(lower, "test_") && strings.HasSuffix(lower, ".py"),
		strings.HasSuffix(lower, "_test.py"),
		strings.Contains(lower, ".test."), strings.Contains(lower, ".spec."),
		strings.HasSuffix(base, "Test.java"), strings.HasSuffix(base, "Tests.java"):
		return true
	}
	for _, seg := range strings.Split(path.Dir(p), "/") {
		if seg == "tests" || seg == "__tests__" || seg == "test" {
			return true
		}
	}
	return false
}

// testRatioOpportunities reports languages whose test-to-source file ratio
// falls below minTestRatio.
func testRatioOpportunities(t Target) []models.OpportunityInput {
	type census struct {
		sources []string
		tests   int
	}
	byLang := map[models.Language]*census{}
	for _, f := range t.Files {
		if len(t.Languages) > 0 && !t.has(f.Language) {
			continue
		}
		c, ok := byLang[f.Language]
		if !ok {
			c = &census{}
			byLang[f.Language] = c
		}
		if isTestFile(f.Path) {
			c.tests++
		} else {
			c.sources = append(c.sources, f.Path)
		}
	}

	langs := make([]models.Language, 0, len(byLang))
	for l := range byLang {
		langs = append(langs, l)
	}
	sort.Slice(langs, func(i, j int) bool { return langs[i] < langs[j] })

	var out []models.OpportunityInput
	for _, lang := range langs {
		c := byLang[lang]
		if len(c.sources) < minSourcesForCoverage {
			continue
		}
		ratio := float64(c.tests) / float64(len(c.sources))
		if ratio >= minTestRatio {
			continue
		}
		sort.Strings(c.sources)
		files := c.sources
		if len(files) > maxCoverageFiles {
			files = files[:maxCoverageFiles]
		}
		out = append(out, models.OpportunityInput{
			Type:          models.OpportunityTestCoverage,
			Title:         fmt.Sprintf("Increase test coverage for %s code", lang),
			Description:   fmt.Sprintf("%d test files for %d %s source files", c.tests, len(c.sources), lang),
			Priority:      6,
			Confidence:    0.6 + 0.3*(1-ratio/minTestRatio),
			FilesAffected: files,
			Metadata: map[string]any{
				"language":     string(lang),
				"source_files": len(c.sources),
				"test_files":   c.tests,
				"test_ratio":   ratio,
			},
		})
	}
	return out
}
