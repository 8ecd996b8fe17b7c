package models

import (
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Language is a programming language detected by extension census.
type Language string

const (
	LanguagePython     Language = "python"
	LanguageJavaScript Language = "javascript"
	LanguageTypeScript Language = "typescript"
	LanguageRust       Language = "rust"
	LanguageGo         Language = "go"
	LanguageJava       Language = "java"
)

var languageExtensions = map[string]Language{
	".py":   LanguagePython,
	".pyw":  LanguagePython,
	".js":   LanguageJavaScript,
	".mjs":  LanguageJavaScript,
	".ts":   LanguageTypeScript,
	".tsx":  LanguageTypeScript,
	".rs":   LanguageRust,
	".go":   LanguageGo,
	".java": LanguageJava,
}

// LanguageForPath returns the language of a file path, or "" when the
// extension is not tracked.
func LanguageForPath(path string) Language {
	return languageExtensions[strings.ToLower(filepath.Ext(path))]
}

// Repository is the system's own persisted view of an indexed repository.
type Repository struct {
	ID                   string         `json:"id"`
	Owner                string         `json:"owner"`
	Name                 string         `json:"name"`
	FullName             string         `json:"full_name"`
	URL                  string         `json:"url"`
	DefaultBranch        string         `json:"default_branch"`
	Languages            []Language     `json:"languages"`
	ProviderType         ProviderType   `json:"provider_type"`
	ProviderID           string         `json:"provider_id"`
	ProviderSpecificData map[string]any `json:"provider_specific_data,omitempty"`
	IndexedAt            *time.Time     `json:"indexed_at,omitempty"`
	CreatedAt            time.Time      `json:"created_at"`
	UpdatedAt            time.Time      `json:"updated_at"`
}

// HasLanguage reports whether lang was detected in the repository.
func (r *Repository) HasLanguage(lang Language) bool {
	for _, l := range r.Languages {
		if l == lang {
			return true
		}
	}
	return false
}

// SetLanguages stores a de-duplicated, sorted language set.
func (r *Repository) SetLanguages(langs map[Language]struct{}) {
	out := make([]Language, 0, len(langs))
	for l := range langs {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	r.Languages = out
}

// ManifestsKey is the ProviderSpecificData entry holding dependency
// manifests (go.mod, package.json, ...) captured at index time.
const ManifestsKey = "manifests"

// Manifest returns the captured content of a manifest by path.
func (r *Repository) Manifest(path string) (string, bool) {
	switch m := r.ProviderSpecificData[ManifestsKey].(type) {
	case map[string]string:
		v, ok := m[path]
		return v, ok
	case map[string]any:
		v, ok := m[path].(string)
		return v, ok
	}
	return "", false
}

// CodeFile is an indexed source file.
type CodeFile struct {
	ID           string    `json:"id"`
	RepositoryID string    `json:"repository_id"`
	Path         string    `json:"path"`
	Language     Language  `json:"language"`
	ContentHash  string    `json:"content_hash"` // sha256 hex
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
}

// Reference rebuilds the provider-side handle for the repository.
func (r *Repository) Reference() RepositoryReference {
	ref := RepositoryReference{
		ProviderType:  r.ProviderType,
		ProviderID:    r.ProviderID,
		RepositoryID:  r.FullName,
		Owner:         r.Owner,
		Name:          r.Name,
		FullName:      r.FullName,
		URL:           r.URL,
		DefaultBranch: r.DefaultBranch,
	}
	if id, ok := r.ProviderSpecificData["repository_id"].(string); ok && id != "" {
		ref.RepositoryID = id
	}
	return ref
}
