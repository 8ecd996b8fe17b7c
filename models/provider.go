package models

import (
	"fmt"
	"strings"
	"time"
)

// ProviderType identifies a version-control hosting platform.
type ProviderType string

const (
	ProviderGitHub      ProviderType = "github"
	ProviderGitLab      ProviderType = "gitlab"
	ProviderBitbucket   ProviderType = "bitbucket"
	ProviderAzureDevOps ProviderType = "azure_devops"
	ProviderCodeCommit  ProviderType = "aws_codecommit"
	ProviderGenericGit  ProviderType = "generic_git"
)

// AllProviderTypes lists every known platform in a stable order.
var AllProviderTypes = []ProviderType{
	ProviderGitHub,
	ProviderGitLab,
	ProviderBitbucket,
	ProviderAzureDevOps,
	ProviderCodeCommit,
	ProviderGenericGit,
}

func (p ProviderType) String() string { return string(p) }

// ParseProviderType normalises a user supplied provider name.
// "azure" and "azuredevops" are accepted as aliases for azure_devops.
func ParseProviderType(raw string) (ProviderType, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	switch s {
	case "azure", "azuredevops", "azure-devops":
		return ProviderAzureDevOps, nil
	case "codecommit":
		return ProviderCodeCommit, nil
	case "git", "generic":
		return ProviderGenericGit, nil
	}
	for _, p := range AllProviderTypes {
		if string(p) == s {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown provider type %q", raw)
}

// RepositoryReference is the provider-agnostic handle returned by adapters.
// It is computed on demand and never persisted as the record of truth.
type RepositoryReference struct {
	ProviderType  ProviderType `json:"provider_type"`
	ProviderID    string       `json:"provider_id"`   // host the adapter talks to
	RepositoryID  string       `json:"repository_id"` // platform native id (numeric id, path, guid)
	Owner         string       `json:"owner"`
	Name          string       `json:"name"`
	FullName      string       `json:"full_name"`
	URL           string       `json:"url"`
	CloneURL      string       `json:"clone_url"`
	DefaultBranch string       `json:"default_branch"`
	LastPushedAt  time.Time    `json:"last_pushed_at,omitempty"`
}

// PullRequestReference identifies a pull/merge request on its platform.
type PullRequestReference struct {
	ProviderType ProviderType `json:"provider_type"`
	ProviderID   string       `json:"provider_id"`
	RepositoryID string       `json:"repository_id"`
	FullName     string       `json:"full_name"`
	PRID         string       `json:"provider_pr_id"`
	Number       int          `json:"number"`
	Title        string       `json:"title"`
	Description  string       `json:"description"`
	BranchName   string       `json:"branch_name"`
	TargetBranch string       `json:"target_branch"`
	Status       PRStatus     `json:"status"`
	URL          string       `json:"url"`
}
