package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/CosmoTheDev/repomaint-agent/models"
)

var (
	// ErrNotFound is returned when the platform has no such repository or
	// pull request.
	ErrNotFound = errors.New("not found on provider")
	// ErrUnsupported is returned for operations or status values a platform
	// cannot perform. It is never retried.
	ErrUnsupported = errors.New("operation not supported by provider")
	// ErrProviderUnavailable is the registry sentinel for unknown or
	// unconfigured provider types.
	ErrProviderUnavailable = errors.New("provider not configured")
)

// RepoProvider abstracts operations against a Git hosting platform.
// Implementations: GitHub, GitLab, Azure DevOps and a clone-only generic git
// adapter. Instances are safe for concurrent use once constructed.
//
// Every method except CreatePullRequest may be retried; creating a pull
// request twice would open a duplicate.
type RepoProvider interface {
	// Type identifies the platform.
	Type() models.ProviderType

	// Capabilities describes which optional platform features are native.
	Capabilities() Capabilities

	// GetRepository resolves owner/name into a normalised reference.
	// Returns an error wrapping ErrNotFound when the repository is missing.
	GetRepository(ctx context.Context, owner, name string) (*models.RepositoryReference, error)

	// CloneRepository clones ref into targetDir and returns the local path.
	// Failures are reported as *CloneError.
	CloneRepository(ctx context.Context, ref models.RepositoryReference, targetDir, branch string) (string, error)

	// CreatePullRequest opens a pull/merge request. Draft maps to the
	// platform's native draft concept where one exists.
	CreatePullRequest(ctx context.Context, ref models.RepositoryReference, opts CreatePROptions) (*models.PullRequestReference, error)

	// AddReviewComment posts a comment, anchored to Path/Line when both are
	// set and the platform can resolve the diff position. Anchoring failures
	// fall back to a plain comment.
	AddReviewComment(ctx context.Context, pr models.PullRequestReference, comment ReviewComment) error

	// UpdatePullRequestStatus transitions a pull request. Unsupported
	// transitions return an error wrapping ErrUnsupported without any remote call.
	UpdatePullRequestStatus(ctx context.Context, pr models.PullRequestReference, status models.PRStatus) error

	// PostReview publishes an aggregated review using the platform's review
	// vocabulary, or synthesised comments where there is none.
	PostReview(ctx context.Context, pr models.PullRequestReference, review models.Review) error
}

// Capabilities lists optional platform features.
type Capabilities struct {
	DraftPullRequests bool // native draft flag (otherwise a title prefix or nothing)
	LineComments      bool
	NativeReviews     bool // approve / request-changes verdicts
	Merge             bool
}

// CreatePROptions contains all fields needed to open a pull request.
type CreatePROptions struct {
	Title        string
	Description  string
	SourceBranch string // branch containing the change
	TargetBranch string // usually the repository default branch
	Draft        bool
}

// ReviewComment is a single comment to publish on a pull request.
type ReviewComment struct {
	Body string
	Path string
	Line int
}

// Anchored reports whether the comment targets a specific line.
func (c ReviewComment) Anchored() bool {
	return c.Path != "" && c.Line > 0
}

// CloneError reports a failed clone. URL never carries credentials.
type CloneError struct {
	URL string
	Err error
}

func (e *CloneError) Error() string {
	return fmt.Sprintf("cloning %s: %v", e.URL, e.Err)
}

func (e *CloneError) Unwrap() error { return e.Err }

// StatusError is a non-success HTTP response from a platform API.
type StatusError struct {
	Provider models.ProviderType
	Code     int
	Message  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s API error %d: %s", e.Provider, e.Code, e.Message)
}

// reviewSummary renders the body used by every adapter for an aggregated review.
func reviewSummary(review models.Review) string {
	return fmt.Sprintf("AI Review - Score: %.1f/10", review.Score)
}

// formatComment renders one agent comment for platforms without review threads.
func formatComment(c models.ReviewComment) string {
	return fmt.Sprintf("[%s] %s (Severity: %s)", c.Agent, c.Comment, c.Severity)
}

// verdictNote is the synthesised text for platforms without native verdicts.
func verdictNote(status models.ReviewStatus) string {
	switch status {
	case models.ReviewApproved:
		return "This merge request has been APPROVED by the AI review."
	case models.ReviewChangesRequested:
		return "Changes have been REQUESTED by the AI review."
	default:
		return ""
	}
}

// draftTitle applies the conventional draft prefix used where no draft flag exists.
func draftTitle(title string, draft bool) string {
	if draft {
		return "Draft: " + title
	}
	return title
}

// URLResolver is implemented by adapters that resolve a repository straight
// from its URL instead of owner/name.
type URLResolver interface {
	ResolveURL(ctx context.Context, rawURL string) (*models.RepositoryReference, error)
}
