package osv

import (
	"bufio"
	"fmt"
	"path"
	"strings"

	"github.com/tidwall/gjson"
	"golang.org/x/mod/modfile"
)

// Ecosystems understood by Dependencies.
const (
	EcosystemGo   = "Go"
	EcosystemNPM  = "npm"
	EcosystemPyPI = "PyPI"
)

// Dependency is a pinned package declared in a manifest.
type Dependency struct {
	Manifest string
	PackageQuery
}

// ManifestNames are the files Dependencies can read.
var ManifestNames = []string{"go.mod", "requirements.txt", "package.json"}

// Dependencies extracts exactly pinned dependencies from a manifest. Ranges
// and unpinned entries are skipped since OSV needs a concrete version.
func Dependencies(manifest string, content []byte) ([]Dependency, error) {
	switch path.Base(manifest) {
	case "go.mod":
		return goModDeps(manifest, content)
	case "requirements.txt":
		return requirementsDeps(manifest, content), nil
	case "package.json":
		return packageJSONDeps(manifest, content)
	}
	return nil, fmt.Errorf("osv: unsupported manifest %q", manifest)
}

func goModDeps(manifest string, content []byte) ([]Dependency, error) {
	f, err := modfile.Parse(manifest, content, nil)
	if err != nil {
		return nil, fmt.Errorf("osv: parsing %s: %w", manifest, err)
	}
	deps := make([]Dependency, 0, len(f.Require))
	for _, r := range f.Require {
		// OSV records Go versions without the leading "v".
		deps = append(deps, dep(manifest, EcosystemGo, r.Mod.Path, strings.TrimPrefix(r.Mod.Version, "v")))
	}
	return deps, nil
}

func requirementsDeps(manifest string, content []byte) []Dependency {
	var deps []Dependency
	sc := bufio.NewScanner(strings.NewReader(string(content)))
	for sc.Scan() {
		line := sc.Text()
		if i := strings.Index(line, "#"); i >= 0 {
			line = line[:i]
		}
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "-") {
			continue
		}
		if i := strings.Index(line, ";"); i >= 0 {
			line = strings.TrimSpace(line[:i])
		}
		name, version, ok := strings.Cut(line, "==")
		if !ok {
			continue
		}
		name = strings.TrimSpace(name)
		if i := strings.Index(name, "["); i >= 0 {
			name = name[:i]
		}
		version = strings.TrimSpace(version)
		if name == "" || version == "" {
			continue
		}
		deps = append(deps, dep(manifest, EcosystemPyPI, strings.ToLower(name), version))
	}
	return deps
}

func packageJSONDeps(manifest string, content []byte) ([]Dependency, error) {
	if !gjson.ValidBytes(content) {
		return nil, fmt.Errorf("osv: %s is not valid JSON", manifest)
	}
	var deps []Dependency
	doc := gjson.ParseBytes(content)
	for _, section := range []string{"dependencies", "devDependencies"} {
		doc.Get(section).ForEach(func(name, version gjson.Result) bool {
			if v, ok := npmPinned(version.String()); ok {
				deps = append(deps, dep(manifest, EcosystemNPM, name.String(), v))
			}
			return true
		})
	}
	return deps, nil
}

// npmPinned accepts exact, caret and tilde versions and reports the base
// version they name.
func npmPinned(spec string) (string, bool) {
	v := strings.TrimLeft(strings.TrimSpace(spec), "^~=v")
	if v == "" || strings.ContainsAny(v, " <>|*xX:/") {
		return "", false
	}
	return v, true
}

func dep(manifest, ecosystem, name, version string) Dependency {
	return Dependency{
		Manifest: manifest,
		PackageQuery: PackageQuery{
			Package: PackageID{Name: name, Ecosystem: ecosystem},
			Version: version,
		},
	}
}
