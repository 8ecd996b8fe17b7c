package repository

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/CosmoTheDev/repomaint-agent/internal/config"
	"github.com/CosmoTheDev/repomaint-agent/models"
)

// RepoURL is the platform-relevant part of a repository URL.
type RepoURL struct {
	Provider models.ProviderType
	Host     string
	Owner    string // may contain slashes: GitLab groups, Azure org/project
	Name     string
}

// FullName returns owner/name.
func (r RepoURL) FullName() string {
	if r.Owner == "" {
		return r.Name
	}
	return r.Owner + "/" + r.Name
}

// HostMap maps self-hosted hostnames onto their platform.
type HostMap map[string]models.ProviderType

// HostsFromConfig collects the hosts of every configured credential entry.
func HostsFromConfig(cfg *config.Config) HostMap {
	hosts := HostMap{}
	if cfg == nil {
		return hosts
	}
	for _, g := range cfg.Git.GitHub {
		if g.Host != "" {
			hosts[strings.ToLower(g.Host)] = models.ProviderGitHub
		}
	}
	for _, g := range cfg.Git.GitLab {
		if g.Host != "" {
			hosts[strings.ToLower(g.Host)] = models.ProviderGitLab
		}
	}
	for _, a := range cfg.Git.Azure {
		if a.Host != "" {
			hosts[strings.ToLower(a.Host)] = models.ProviderAzureDevOps
		}
	}
	return hosts
}

// DetectProvider infers the hosting platform from a repository URL.
// Unrecognised hosts resolve to generic git.
func DetectProvider(rawURL string, hosts HostMap) models.ProviderType {
	host, _, err := splitURL(rawURL)
	if err != nil {
		return models.ProviderGenericGit
	}
	return detectHost(host, hosts)
}

func detectHost(host string, hosts HostMap) models.ProviderType {
	if p, ok := hosts[host]; ok {
		return p
	}
	switch {
	case host == "github.com" || strings.HasSuffix(host, ".github.com"):
		return models.ProviderGitHub
	case host == "gitlab.com":
		return models.ProviderGitLab
	case host == "dev.azure.com" || host == "ssh.dev.azure.com" || strings.HasSuffix(host, ".visualstudio.com"):
		return models.ProviderAzureDevOps
	case host == "bitbucket.org":
		return models.ProviderBitbucket
	case strings.HasPrefix(host, "git-codecommit.") || strings.Contains(host, "codecommit"):
		return models.ProviderCodeCommit
	default:
		return models.ProviderGenericGit
	}
}

// ParseRepoURL detects the platform and splits the path into owner and name
// following that platform's layout. When provider is empty it is detected.
// Generic URLs resolve best-effort; owner falls back to "unknown".
func ParseRepoURL(rawURL string, provider models.ProviderType, hosts HostMap) (RepoURL, error) {
	host, path, err := splitURL(rawURL)
	if err != nil {
		return RepoURL{}, err
	}
	if provider == "" {
		provider = detectHost(host, hosts)
	}
	out := RepoURL{Provider: provider, Host: host}
	segs := strings.Split(path, "/")

	switch provider {
	case models.ProviderGitHub, models.ProviderBitbucket:
		if len(segs) < 2 {
			return RepoURL{}, fmt.Errorf("URL %q has no owner/repo path", rawURL)
		}
		out.Owner, out.Name = segs[0], segs[1]
	case models.ProviderGitLab:
		if i := indexOf(segs, "-"); i >= 0 {
			segs = segs[:i]
		}
		if len(segs) < 2 {
			return RepoURL{}, fmt.Errorf("URL %q has no group/project path", rawURL)
		}
		out.Owner = strings.Join(segs[:len(segs)-1], "/")
		out.Name = segs[len(segs)-1]
	case models.ProviderAzureDevOps:
		return parseAzurePath(rawURL, host, segs)
	default:
		out.Name = segs[len(segs)-1]
		out.Owner = "unknown"
		if len(segs) >= 2 {
			out.Owner = segs[len(segs)-2]
		}
	}
	return out, nil
}

// parseAzurePath handles dev.azure.com/{org}/{project}/_git/{repo},
// {org}.visualstudio.com/{project}/_git/{repo} and
// ssh.dev.azure.com:v3/{org}/{project}/{repo}.
func parseAzurePath(rawURL, host string, segs []string) (RepoURL, error) {
	out := RepoURL{Provider: models.ProviderAzureDevOps, Host: host}
	if len(segs) > 0 && segs[0] == "v3" {
		segs = segs[1:]
		if len(segs) != 3 {
			return RepoURL{}, fmt.Errorf("URL %q is not an Azure DevOps SSH path", rawURL)
		}
		out.Owner = segs[0] + "/" + segs[1]
		out.Name = segs[2]
		return out, nil
	}
	if strings.HasSuffix(host, ".visualstudio.com") {
		segs = append([]string{strings.TrimSuffix(host, ".visualstudio.com")}, segs...)
	}
	i := indexOf(segs, "_git")
	if i != 2 || len(segs) < 4 {
		return RepoURL{}, fmt.Errorf("URL %q is not an Azure DevOps repository URL", rawURL)
	}
	out.Owner = segs[0] + "/" + segs[1]
	out.Name = segs[3]
	return out, nil
}

// splitURL returns the lower-cased host and the slash-trimmed path of an
// HTTPS, ssh:// or scp-style (git@host:path) URL, without a .git suffix.
func splitURL(rawURL string) (host, path string, err error) {
	raw := strings.TrimSpace(rawURL)
	if raw == "" {
		return "", "", fmt.Errorf("empty repository URL")
	}
	if !strings.Contains(raw, "://") {
		at := strings.Index(raw, "@")
		colon := strings.Index(raw, ":")
		if colon > at && colon > 0 {
			host = raw[at+1 : colon]
			path = raw[colon+1:]
		} else {
			// Bare host/path without scheme.
			raw = "https://" + raw
		}
	}
	if host == "" {
		u, perr := url.Parse(raw)
		if perr != nil {
			return "", "", fmt.Errorf("parsing repository URL: %w", perr)
		}
		host, path = u.Hostname(), u.Path
	}
	path = strings.TrimSuffix(strings.Trim(path, "/"), ".git")
	if host == "" || path == "" {
		return "", "", fmt.Errorf("URL %q has no host or path", rawURL)
	}
	return strings.ToLower(host), path, nil
}

// redactURL removes userinfo so URLs are safe to log.
func redactURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.User == nil {
		return rawURL
	}
	u.User = nil
	return u.String()
}

func indexOf(segs []string, v string) int {
	for i, s := range segs {
		if s == v {
			return i
		}
	}
	return -1
}
