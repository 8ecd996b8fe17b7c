package models

import (
	"fmt"
	"time"
)

// PRStatus is the lifecycle state of a pull request.
type PRStatus string

const (
	PRDraft  PRStatus = "draft"
	PROpen   PRStatus = "open"
	PRClosed PRStatus = "closed"
	PRMerged PRStatus = "merged"
)

// ParsePRStatus validates a raw status value.
func ParsePRStatus(raw string) (PRStatus, error) {
	switch s := PRStatus(raw); s {
	case PRDraft, PROpen, PRClosed, PRMerged:
		return s, nil
	}
	return "", fmt.Errorf("unknown pull request status %q", raw)
}

// PullRequest is the persisted record of a pull request opened for an Implementation.
type PullRequest struct {
	ID               string       `json:"id"`
	ImplementationID string       `json:"implementation_id"`
	RepositoryID     string       `json:"repository_id"`
	ProviderType     ProviderType `json:"provider_type"`
	ProviderID       string       `json:"provider_id"`
	ProviderPRID     string       `json:"provider_pr_id"`
	Number           int          `json:"number"`
	Title            string       `json:"title"`
	Description      string       `json:"description"`
	BranchName       string       `json:"branch_name"`
	TargetBranch     string       `json:"target_branch"`
	Status           PRStatus     `json:"status"`
	URL              string       `json:"url"`
	CreatedAt        time.Time    `json:"created_at"`
	UpdatedAt        time.Time    `json:"updated_at"`
}

// Reference rebuilds the provider-side handle for pr within repo.
func (pr *PullRequest) Reference(repo *Repository) PullRequestReference {
	ref := PullRequestReference{
		ProviderType: pr.ProviderType,
		ProviderID:   pr.ProviderID,
		PRID:         pr.ProviderPRID,
		Number:       pr.Number,
		Title:        pr.Title,
		Description:  pr.Description,
		BranchName:   pr.BranchName,
		TargetBranch: pr.TargetBranch,
		Status:       pr.Status,
		URL:          pr.URL,
	}
	if repo != nil {
		ref.FullName = repo.FullName
		ref.RepositoryID = repo.FullName
		if id, ok := repo.ProviderSpecificData["repository_id"].(string); ok && id != "" {
			ref.RepositoryID = id
		}
	}
	return ref
}
