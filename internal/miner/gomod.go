package miner

import (
	"fmt"
	"sort"
	"strings"

	"github.com/CosmoTheDev/repomaint-agent/models"
	"golang.org/x/mod/modfile"
	"golang.org/x/mod/module"
	"golang.org/x/mod/semver"
)

// minGoVersion is the oldest go directive not flagged for an upgrade.
const minGoVersion = "1.22"

// analyzeGoMod flags an outdated go directive, pseudo-version and
// +incompatible requirements, and local replace directives.
func analyzeGoMod(path string, data []byte) ([]models.OpportunityInput, error) {
	f, err := modfile.Parse(path, data, nil)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	var out []models.OpportunityInput
	if f.Go != nil && semver.Compare("v"+f.Go.Version, "v"+minGoVersion) < 0 {
		out = append(out, models.OpportunityInput{
			Type:          models.OpportunityDependencyUpdate,
			Title:         fmt.Sprintf("Raise go directive from %s to %s", f.Go.Version, minGoVersion),
			Description:   "The module targets a Go release that no longer receives security fixes",
			Priority:      4,
			Confidence:    0.8,
			FilesAffected: []string{path},
			Metadata: map[string]any{
				"current_version": f.Go.Version,
				"latest_version":  minGoVersion,
				"package":         "go",
			},
		})
	}

	var pseudo, incompatible []string
	for _, r := range f.Require {
		switch {
		case module.IsPseudoVersion(r.Mod.Version):
			pseudo = append(pseudo, r.Mod.Path+"@"+r.Mod.Version)
		case strings.HasSuffix(r.Mod.Version, "+incompatible"):
			incompatible = append(incompatible, r.Mod.Path+"@"+r.Mod.Version)
		}
	}
	if len(pseudo) > 0 {
		sort.Strings(pseudo)
		out = append(out, models.OpportunityInput{
			Type:          models.OpportunityDependencyUpdate,
			Title:         fmt.Sprintf("Pin %d pseudo-version dependencies to tagged releases", len(pseudo)),
			Description:   "Requirements on untagged commits are hard to audit and upgrade",
			Priority:      5,
			Confidence:    0.6,
			FilesAffected: []string{path, "go.sum"},
			Metadata:      map[string]any{"modules": pseudo},
		})
	}
	if len(incompatible) > 0 {
		sort.Strings(incompatible)
		out = append(out, models.OpportunityInput{
			Type:          models.OpportunityDependencyUpdate,
			Title:         fmt.Sprintf("Migrate %d +incompatible dependencies to module-aware releases", len(incompatible)),
			Description:   "These dependencies predate Go modules and may have a /vN successor",
			Priority:      5,
			Confidence:    0.65,
			FilesAffected: []string{path, "go.sum"},
			Metadata:      map[string]any{"modules": incompatible},
		})
	}

	var local []string
	for _, r := range f.Replace {
		if modfile.IsDirectoryPath(r.New.Path) {
			local = append(local, r.Old.Path+" => "+r.New.Path)
		}
	}
	if len(local) > 0 {
		out = append(out, models.OpportunityInput{
			Type:          models.OpportunityDependencyUpdate,
			Title:         "Remove local replace directives",
			Description:   "Replace directives pointing at local directories break builds outside this checkout",
			Priority:      6,
			Confidence:    0.7,
			FilesAffected: []string{path},
			Metadata:      map[string]any{"replacements": local},
		})
	}
	return out, nil
}
