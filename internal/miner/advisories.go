package miner

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/CosmoTheDev/repomaint-agent/internal/osv"
	"github.com/CosmoTheDev/repomaint-agent/models"
)

// AdvisorySource answers OSV batch queries.
type AdvisorySource interface {
	BatchQuery(ctx context.Context, queries []osv.PackageQuery) ([]osv.QueryResult, error)
}

// AdvisoryStrategy reports pinned dependencies with known advisories, on
// top of whatever Fallback finds. An unreachable advisory source degrades
// to the Fallback results.
type AdvisoryStrategy struct {
	Source   AdvisorySource
	Fallback Strategy
}

// WithAdvisories returns strategies with the security entry wrapped by an
// AdvisoryStrategy backed by src.
func WithAdvisories(strategies map[models.OpportunityType]Strategy, src AdvisorySource) map[models.OpportunityType]Strategy {
	out := make(map[models.OpportunityType]Strategy, len(strategies))
	for typ, s := range strategies {
		out[typ] = s
	}
	out[models.OpportunitySecurityVulnerability] = AdvisoryStrategy{
		Source:   src,
		Fallback: strategies[models.OpportunitySecurityVulnerability],
	}
	return out
}

func (s AdvisoryStrategy) Mine(ctx context.Context, target Target) ([]models.OpportunityInput, error) {
	var out []models.OpportunityInput
	if s.Fallback != nil {
		res, err := s.Fallback.Mine(ctx, target)
		if err != nil {
			return nil, err
		}
		out = res
	}

	deps := manifestDependencies(target.Repository)
	if len(deps) == 0 {
		return out, nil
	}
	queries := make([]osv.PackageQuery, len(deps))
	for i, d := range deps {
		queries[i] = d.PackageQuery
	}
	results, err := s.Source.BatchQuery(ctx, queries)
	if err != nil {
		slog.Warn("Advisory lookup failed", "repository_id", target.Repository.ID, "packages", len(queries), "error", err)
		return out, nil
	}

	for i, res := range results {
		if i >= len(deps) || len(res.Vulns) == 0 {
			continue
		}
		out = append(out, advisoryOpportunity(deps[i], res.Vulns))
	}
	return out, nil
}

func manifestDependencies(repo *models.Repository) []osv.Dependency {
	var deps []osv.Dependency
	for _, name := range osv.ManifestNames {
		content, ok := repo.Manifest(name)
		if !ok {
			continue
		}
		found, err := osv.Dependencies(name, []byte(content))
		if err != nil {
			slog.Debug("Skipping unreadable manifest", "repository_id", repo.ID, "manifest", name, "error", err)
			continue
		}
		deps = append(deps, found...)
	}
	return deps
}

func advisoryOpportunity(d osv.Dependency, vulns []osv.Vuln) models.OpportunityInput {
	ids := make([]string, 0, len(vulns))
	var cves []string
	fixed := ""
	for _, v := range vulns {
		ids = append(ids, v.ID)
		if cve := v.CVE(); cve != "" {
			cves = append(cves, cve)
		}
		if fixed == "" {
			fixed = v.FixedIn(d.Package)
		}
	}

	meta := map[string]any{
		"vulnerability_type": "vulnerable_dependency",
		"package":            d.Package.Name,
		"ecosystem":          d.Package.Ecosystem,
		"current_version":    d.Version,
		"advisories":         ids,
		"severity":           "high",
	}
	if len(cves) > 0 {
		meta["cve_id"] = cves[0]
	}
	if fixed != "" {
		meta["fixed_version"] = fixed
	}

	return models.OpportunityInput{
		Type:          models.OpportunitySecurityVulnerability,
		Title:         fmt.Sprintf("Upgrade vulnerable dependency %s %s", d.Package.Name, d.Version),
		Description:   fmt.Sprintf("%s@%s is affected by %s", d.Package.Name, d.Version, strings.Join(ids, ", ")),
		Priority:      1,
		Confidence:    0.95,
		FilesAffected: []string{d.Manifest},
		Metadata:      meta,
	}
}
