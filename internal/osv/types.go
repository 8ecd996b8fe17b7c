package osv

import "strings"

// PackageQuery is a single entry in a batch query request.
type PackageQuery struct {
	Package PackageID `json:"package"`
	Version string    `json:"version,omitempty"`
}

// PackageID identifies a package in an OSV ecosystem.
type PackageID struct {
	Name      string `json:"name"`
	Ecosystem string `json:"ecosystem"`
}

type batchQueryRequest struct {
	Queries []PackageQuery `json:"queries"`
}

type batchQueryResponse struct {
	Results []QueryResult `json:"results"`
}

// QueryResult is the result for a single package query.
type QueryResult struct {
	Vulns []Vuln `json:"vulns"`
}

// Vuln is an OSV vulnerability record. querybatch only fills ID and
// Modified; the remaining fields are present when the server returns
// full records.
type Vuln struct {
	ID       string     `json:"id"`      // e.g. "GHSA-xxxx-yyyy-zzzz" or "GO-2023-1234"
	Aliases  []string   `json:"aliases"` // e.g. ["CVE-2021-23337"]
	Summary  string     `json:"summary"`
	Affected []Affected `json:"affected"`
	Modified string     `json:"modified"`
}

// Affected describes which package versions are affected.
type Affected struct {
	Package PackageID       `json:"package"`
	Ranges  []AffectedRange `json:"ranges"`
}

// AffectedRange is a version range that is affected.
type AffectedRange struct {
	Type   string       `json:"type"` // "SEMVER", "ECOSYSTEM", "GIT"
	Events []RangeEvent `json:"events"`
}

// RangeEvent marks the start or end of an affected range.
type RangeEvent struct {
	Introduced string `json:"introduced,omitempty"`
	Fixed      string `json:"fixed,omitempty"`
}

// CVE returns the first CVE alias of v, or "" if there is none.
func (v Vuln) CVE() string {
	if strings.HasPrefix(v.ID, "CVE-") {
		return v.ID
	}
	for _, alias := range v.Aliases {
		if strings.HasPrefix(alias, "CVE-") {
			return alias
		}
	}
	return ""
}

// FixedIn returns the first fixed version recorded for pkg, or "".
func (v Vuln) FixedIn(pkg PackageID) string {
	for _, a := range v.Affected {
		if a.Package.Name != pkg.Name || !strings.EqualFold(a.Package.Ecosystem, pkg.Ecosystem) {
			continue
		}
		for _, r := range a.Ranges {
			for _, e := range r.Events {
				if e.Fixed != "" {
					return e.Fixed
				}
			}
		}
	}
	return ""
}
