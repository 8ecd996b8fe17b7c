package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/CosmoTheDev/repomaint-agent/internal/config"
	"github.com/CosmoTheDev/repomaint-agent/models"
	gitlab "gitlab.com/gitlab-org/api/client-go"
)

const gitlabDraftPrefix = "Draft: "

// GitLabProvider implements RepoProvider for GitLab (cloud and self-hosted).
// GitLab has no draft flag on create, so drafts use the "Draft: " title
// prefix. Verdicts are synthesised as notes.
type GitLabProvider struct {
	client   *gitlab.Client
	token    string
	host     string
	clones   *CloneManager
	attempts uint
}

// NewGitLab creates a GitLabProvider from the given configuration. Host may
// be a bare hostname or a full base URL.
func NewGitLab(cfg config.GitLabConfig, opts AdapterOptions) (*GitLabProvider, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("no GitLab token configured; run 'repomaint onboard'")
	}
	clientOpts := []gitlab.ClientOptionFunc{
		gitlab.WithHTTPClient(&http.Client{Timeout: opts.Timeout}),
	}
	host := "gitlab.com"
	if cfg.Host != "" && cfg.Host != "gitlab.com" {
		base := cfg.Host
		if !strings.Contains(base, "://") {
			base = "https://" + base
		}
		if u, err := url.Parse(base); err == nil && u.Host != "" {
			host = u.Host
		}
		clientOpts = append(clientOpts, gitlab.WithBaseURL(strings.TrimSuffix(base, "/")+"/api/v4/"))
	}

	client, err := gitlab.NewClient(cfg.Token, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("creating GitLab client: %w", err)
	}

	return &GitLabProvider{client: client, token: cfg.Token, host: host, clones: opts.clones(), attempts: opts.RetryAttempts}, nil
}

func (g *GitLabProvider) Type() models.ProviderType { return models.ProviderGitLab }

func (g *GitLabProvider) Capabilities() Capabilities {
	return Capabilities{DraftPullRequests: false, LineComments: true, NativeReviews: false, Merge: true}
}

// GetRepository looks the project up by path with namespace; owner may be a
// nested group path.
func (g *GitLabProvider) GetRepository(ctx context.Context, owner, name string) (*models.RepositoryReference, error) {
	nameWithNS := owner + "/" + name
	var proj *gitlab.Project
	err := withRetry(ctx, g.attempts, "gitlab.get_repository", func() error {
		var err error
		proj, _, err = g.client.Projects.GetProject(nameWithNS, nil, gitlab.WithContext(ctx))
		return classifyGitLab(err)
	})
	if err != nil {
		return nil, fmt.Errorf("getting GitLab project %s: %w", nameWithNS, err)
	}

	projOwner, projName := splitFullName(proj.PathWithNamespace)
	if proj.Namespace != nil && proj.Namespace.FullPath != "" {
		projOwner = proj.Namespace.FullPath
	}
	ref := &models.RepositoryReference{
		ProviderType:  models.ProviderGitLab,
		ProviderID:    g.host,
		RepositoryID:  fmt.Sprintf("%d", proj.ID),
		Owner:         projOwner,
		Name:          projName,
		FullName:      proj.PathWithNamespace,
		URL:           proj.WebURL,
		CloneURL:      proj.HTTPURLToRepo,
		DefaultBranch: proj.DefaultBranch,
	}
	if proj.LastActivityAt != nil {
		ref.LastPushedAt = *proj.LastActivityAt
	}
	return ref, nil
}

func (g *GitLabProvider) CloneRepository(ctx context.Context, ref models.RepositoryReference, targetDir, branch string) (string, error) {
	return cloneRef(ctx, g.clones, ref, targetDir, branch, "oauth2", g.token)
}

// CreatePullRequest is not retried.
func (g *GitLabProvider) CreatePullRequest(ctx context.Context, ref models.RepositoryReference, opts CreatePROptions) (*models.PullRequestReference, error) {
	pid := projectID(ref.RepositoryID, ref.FullName)
	mr, _, err := g.client.MergeRequests.CreateMergeRequest(pid, &gitlab.CreateMergeRequestOptions{
		Title:              gitlab.Ptr(draftTitle(opts.Title, opts.Draft)),
		Description:        gitlab.Ptr(opts.Description),
		SourceBranch:       gitlab.Ptr(opts.SourceBranch),
		TargetBranch:       gitlab.Ptr(opts.TargetBranch),
		RemoveSourceBranch: gitlab.Ptr(true),
	}, gitlab.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("creating MR on %s: %w", ref.FullName, classifyGitLab(err))
	}

	status := models.PROpen
	if opts.Draft || mr.Draft {
		status = models.PRDraft
	}
	return &models.PullRequestReference{
		ProviderType: models.ProviderGitLab,
		ProviderID:   g.host,
		RepositoryID: pid,
		FullName:     ref.FullName,
		PRID:         fmt.Sprintf("%d", mr.ID),
		Number:       int(mr.IID),
		Title:        mr.Title,
		Description:  mr.Description,
		BranchName:   mr.SourceBranch,
		TargetBranch: mr.TargetBranch,
		Status:       status,
		URL:          mr.WebURL,
	}, nil
}

// AddReviewComment anchors through a diff discussion using the merge
// request's diff_refs, falling back to a plain note.
func (g *GitLabProvider) AddReviewComment(ctx context.Context, pr models.PullRequestReference, comment ReviewComment) error {
	pid := projectID(pr.RepositoryID, pr.FullName)
	iid := int64(pr.Number)
	if comment.Anchored() {
		err := g.discussion(ctx, pid, iid, comment)
		if err == nil {
			return nil
		}
		slog.Warn("Diff discussion failed, posting plain note", "mr", pr.Number, "path", comment.Path, "line", comment.Line, "error", err)
	}
	return g.note(ctx, pid, iid, comment.Body)
}

func (g *GitLabProvider) discussion(ctx context.Context, pid string, iid int64, c ReviewComment) error {
	mr, err := g.mergeRequest(ctx, pid, iid)
	if err != nil {
		return err
	}
	if mr.DiffRefs.HeadSha == "" {
		return fmt.Errorf("merge request !%d has no diff refs", iid)
	}
	return withRetry(ctx, g.attempts, "gitlab.discussion", func() error {
		_, _, err := g.client.Discussions.CreateMergeRequestDiscussion(pid, iid, &gitlab.CreateMergeRequestDiscussionOptions{
			Body: gitlab.Ptr(c.Body),
			Position: &gitlab.PositionOptions{
				BaseSHA:      gitlab.Ptr(mr.DiffRefs.BaseSha),
				StartSHA:     gitlab.Ptr(mr.DiffRefs.StartSha),
				HeadSHA:      gitlab.Ptr(mr.DiffRefs.HeadSha),
				PositionType: gitlab.Ptr("text"),
				NewPath:      gitlab.Ptr(c.Path),
				NewLine:      gitlab.Ptr(int64(c.Line)),
			},
		}, gitlab.WithContext(ctx))
		return classifyGitLab(err)
	})
}

func (g *GitLabProvider) note(ctx context.Context, pid string, iid int64, body string) error {
	err := withRetry(ctx, g.attempts, "gitlab.note", func() error {
		_, _, err := g.client.Notes.CreateMergeRequestNote(pid, iid, &gitlab.CreateMergeRequestNoteOptions{
			Body: gitlab.Ptr(body),
		}, gitlab.WithContext(ctx))
		return classifyGitLab(err)
	})
	if err != nil {
		return fmt.Errorf("adding note to !%d: %w", iid, err)
	}
	return nil
}

func (g *GitLabProvider) mergeRequest(ctx context.Context, pid string, iid int64) (*gitlab.MergeRequest, error) {
	var mr *gitlab.MergeRequest
	err := withRetry(ctx, g.attempts, "gitlab.get_merge_request", func() error {
		var err error
		mr, _, err = g.client.MergeRequests.GetMergeRequest(pid, iid, nil, gitlab.WithContext(ctx))
		return classifyGitLab(err)
	})
	if err != nil {
		return nil, fmt.Errorf("loading merge request !%d: %w", iid, err)
	}
	return mr, nil
}

// UpdatePullRequestStatus maps open/closed onto state events, draft onto the
// title prefix, and merged onto accept (only when GitLab reports mergeable).
func (g *GitLabProvider) UpdatePullRequestStatus(ctx context.Context, pr models.PullRequestReference, status models.PRStatus) error {
	switch status {
	case models.PROpen, models.PRClosed, models.PRDraft, models.PRMerged:
	default:
		slog.Warn("Unsupported merge request status for GitLab", "status", status, "mr", pr.Number)
		return fmt.Errorf("%w: GitLab cannot set status %q", ErrUnsupported, status)
	}

	pid := projectID(pr.RepositoryID, pr.FullName)
	iid := int64(pr.Number)
	mr, err := g.mergeRequest(ctx, pid, iid)
	if err != nil {
		return err
	}

	if status == models.PRMerged {
		if mr.DetailedMergeStatus != "" && mr.DetailedMergeStatus != "mergeable" {
			return fmt.Errorf("%w: merge request !%d is %s", ErrUnsupported, iid, mr.DetailedMergeStatus)
		}
		if _, _, err := g.client.MergeRequests.AcceptMergeRequest(pid, iid, nil, gitlab.WithContext(ctx)); err != nil {
			return fmt.Errorf("merging !%d: %w", iid, classifyGitLab(err))
		}
		return nil
	}

	opt := &gitlab.UpdateMergeRequestOptions{}
	title := strings.TrimPrefix(mr.Title, gitlabDraftPrefix)
	switch status {
	case models.PRClosed:
		opt.StateEvent = gitlab.Ptr("close")
	case models.PROpen:
		if mr.State == "closed" {
			opt.StateEvent = gitlab.Ptr("reopen")
		}
		if title != mr.Title {
			opt.Title = gitlab.Ptr(title)
		}
	case models.PRDraft:
		if !strings.HasPrefix(mr.Title, gitlabDraftPrefix) {
			opt.Title = gitlab.Ptr(gitlabDraftPrefix + title)
		}
	}
	if opt.StateEvent == nil && opt.Title == nil {
		return nil
	}

	err = withRetry(ctx, g.attempts, "gitlab.update_status", func() error {
		_, _, err := g.client.MergeRequests.UpdateMergeRequest(pid, iid, opt, gitlab.WithContext(ctx))
		return classifyGitLab(err)
	})
	if err != nil {
		return fmt.Errorf("setting !%d to %s: %w", iid, status, err)
	}
	return nil
}

// PostReview writes a summary note carrying the synthesised verdict, then
// one comment per agent finding.
func (g *GitLabProvider) PostReview(ctx context.Context, pr models.PullRequestReference, review models.Review) error {
	pid := projectID(pr.RepositoryID, pr.FullName)
	iid := int64(pr.Number)

	summary := reviewSummary(review)
	if v := verdictNote(review.Status); v != "" {
		summary += "\n\n" + v
	}
	if err := g.note(ctx, pid, iid, summary); err != nil {
		return err
	}

	var errs []error
	for _, c := range review.Comments {
		err := g.AddReviewComment(ctx, pr, ReviewComment{Body: formatComment(c), Path: c.File, Line: c.Line})
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// projectID prefers the numeric project id and falls back to the path.
func projectID(repositoryID, fullName string) string {
	if _, err := strconv.ParseInt(repositoryID, 10, 64); err == nil {
		return repositoryID
	}
	if fullName != "" {
		return fullName
	}
	return repositoryID
}

// classifyGitLab maps client-go errors onto ErrNotFound and StatusError.
func classifyGitLab(err error) error {
	if err == nil {
		return nil
	}
	var ger *gitlab.ErrorResponse
	if errors.As(err, &ger) && ger.Response != nil {
		if ger.Response.StatusCode == http.StatusNotFound {
			return fmt.Errorf("%w: %s", ErrNotFound, ger.Message)
		}
		return &StatusError{Provider: models.ProviderGitLab, Code: ger.Response.StatusCode, Message: ger.Message}
	}
	if strings.Contains(err.Error(), "404 Not Found") {
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	return err
}
