package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/CosmoTheDev/repomaint-agent/internal/config"
	"github.com/CosmoTheDev/repomaint-agent/models"
	gogithub "github.com/google/go-github/v68/github"
	"golang.org/x/oauth2"
)

// GitHubProvider implements RepoProvider for GitHub and GitHub Enterprise.
type GitHubProvider struct {
	client   *gogithub.Client
	token    string
	host     string
	clones   *CloneManager
	attempts uint
}

// NewGitHub creates a GitHubProvider from the given configuration.
func NewGitHub(cfg config.GitHubConfig, opts AdapterOptions) (*GitHubProvider, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("no GitHub token configured; run 'repomaint onboard'")
	}
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token})
	tc := oauth2.NewClient(context.Background(), ts)
	tc.Timeout = opts.Timeout
	client := gogithub.NewClient(tc)

	// Support GitHub Enterprise by overriding the base URL.
	if cfg.Host != "" && cfg.Host != "github.com" {
		base := fmt.Sprintf("https://%s/api/v3/", cfg.Host)
		upload := fmt.Sprintf("https://%s/api/uploads/", cfg.Host)
		var err error
		client, err = client.WithEnterpriseURLs(base, upload)
		if err != nil {
			return nil, fmt.Errorf("configuring GitHub enterprise URLs: %w", err)
		}
	}
	return newGitHubWithClient(client, cfg, opts), nil
}

func newGitHubWithClient(client *gogithub.Client, cfg config.GitHubConfig, opts AdapterOptions) *GitHubProvider {
	host := cfg.Host
	if host == "" {
		host = "github.com"
	}
	return &GitHubProvider{client: client, token: cfg.Token, host: host, clones: opts.clones(), attempts: opts.RetryAttempts}
}

func (g *GitHubProvider) Type() models.ProviderType { return models.ProviderGitHub }

func (g *GitHubProvider) Capabilities() Capabilities {
	return Capabilities{DraftPullRequests: true, LineComments: true, NativeReviews: true, Merge: true}
}

func (g *GitHubProvider) GetRepository(ctx context.Context, owner, name string) (*models.RepositoryReference, error) {
	var r *gogithub.Repository
	err := withRetry(ctx, g.attempts, "github.get_repository", func() error {
		var err error
		r, _, err = g.client.Repositories.Get(ctx, owner, name)
		return classifyGitHub(err)
	})
	if err != nil {
		return nil, fmt.Errorf("getting GitHub repo %s/%s: %w", owner, name, err)
	}
	return &models.RepositoryReference{
		ProviderType:  models.ProviderGitHub,
		ProviderID:    g.host,
		RepositoryID:  strconv.FormatInt(r.GetID(), 10),
		Owner:         r.GetOwner().GetLogin(),
		Name:          r.GetName(),
		FullName:      r.GetFullName(),
		URL:           r.GetHTMLURL(),
		CloneURL:      r.GetCloneURL(),
		DefaultBranch: r.GetDefaultBranch(),
		LastPushedAt:  r.GetPushedAt().Time,
	}, nil
}

func (g *GitHubProvider) CloneRepository(ctx context.Context, ref models.RepositoryReference, targetDir, branch string) (string, error) {
	return cloneRef(ctx, g.clones, ref, targetDir, branch, "x-access-token", g.token)
}

// CreatePullRequest is not retried.
func (g *GitHubProvider) CreatePullRequest(ctx context.Context, ref models.RepositoryReference, opts CreatePROptions) (*models.PullRequestReference, error) {
	owner, repo := ownerRepo(ref)
	pr, _, err := g.client.PullRequests.Create(ctx, owner, repo, &gogithub.NewPullRequest{
		Title: gogithub.Ptr(opts.Title),
		Body:  gogithub.Ptr(opts.Description),
		Head:  gogithub.Ptr(opts.SourceBranch),
		Base:  gogithub.Ptr(opts.TargetBranch),
		Draft: gogithub.Ptr(opts.Draft),
	})
	if err != nil {
		return nil, fmt.Errorf("creating PR on %s/%s: %w", owner, repo, classifyGitHub(err))
	}
	status := models.PROpen
	if pr.GetDraft() {
		status = models.PRDraft
	}
	return &models.PullRequestReference{
		ProviderType: models.ProviderGitHub,
		ProviderID:   g.host,
		RepositoryID: ref.RepositoryID,
		FullName:     owner + "/" + repo,
		PRID:         strconv.FormatInt(pr.GetID(), 10),
		Number:       pr.GetNumber(),
		Title:        pr.GetTitle(),
		Description:  pr.GetBody(),
		BranchName:   pr.GetHead().GetRef(),
		TargetBranch: pr.GetBase().GetRef(),
		Status:       status,
		URL:          pr.GetHTMLURL(),
	}, nil
}

func (g *GitHubProvider) AddReviewComment(ctx context.Context, pr models.PullRequestReference, comment ReviewComment) error {
	owner, repo := splitFullName(pr.FullName)
	if comment.Anchored() {
		err := g.lineComment(ctx, owner, repo, pr.Number, comment)
		if err == nil {
			return nil
		}
		slog.Warn("Line comment rejected, posting plain comment", "pr", pr.Number, "path", comment.Path, "line", comment.Line, "error", err)
	}
	err := withRetry(ctx, g.attempts, "github.add_comment", func() error {
		_, _, err := g.client.Issues.CreateComment(ctx, owner, repo, pr.Number, &gogithub.IssueComment{
			Body: gogithub.Ptr(comment.Body),
		})
		return classifyGitHub(err)
	})
	if err != nil {
		return fmt.Errorf("commenting on %s#%d: %w", pr.FullName, pr.Number, err)
	}
	return nil
}

func (g *GitHubProvider) lineComment(ctx context.Context, owner, repo string, number int, c ReviewComment) error {
	headSHA, err := g.headSHA(ctx, owner, repo, number)
	if err != nil {
		return err
	}
	return withRetry(ctx, g.attempts, "github.line_comment", func() error {
		_, _, err := g.client.PullRequests.CreateComment(ctx, owner, repo, number, &gogithub.PullRequestComment{
			Body:     gogithub.Ptr(c.Body),
			Path:     gogithub.Ptr(c.Path),
			Line:     gogithub.Ptr(c.Line),
			Side:     gogithub.Ptr("RIGHT"),
			CommitID: gogithub.Ptr(headSHA),
		})
		return classifyGitHub(err)
	})
}

func (g *GitHubProvider) headSHA(ctx context.Context, owner, repo string, number int) (string, error) {
	var pr *gogithub.PullRequest
	err := withRetry(ctx, g.attempts, "github.get_pull_request", func() error {
		var err error
		pr, _, err = g.client.PullRequests.Get(ctx, owner, repo, number)
		return classifyGitHub(err)
	})
	if err != nil {
		return "", err
	}
	return pr.GetHead().GetSHA(), nil
}

// UpdatePullRequestStatus supports open (reopen), closed and merged. The
// REST API cannot toggle draft state, so draft is rejected.
func (g *GitHubProvider) UpdatePullRequestStatus(ctx context.Context, pr models.PullRequestReference, status models.PRStatus) error {
	owner, repo := splitFullName(pr.FullName)
	switch status {
	case models.PROpen, models.PRClosed:
		err := withRetry(ctx, g.attempts, "github.update_status", func() error {
			_, _, err := g.client.PullRequests.Edit(ctx, owner, repo, pr.Number, &gogithub.PullRequest{
				State: gogithub.Ptr(string(status)),
			})
			return classifyGitHub(err)
		})
		if err != nil {
			return fmt.Errorf("setting %s#%d to %s: %w", pr.FullName, pr.Number, status, err)
		}
		return nil
	case models.PRMerged:
		var current *gogithub.PullRequest
		err := withRetry(ctx, g.attempts, "github.get_pull_request", func() error {
			var err error
			current, _, err = g.client.PullRequests.Get(ctx, owner, repo, pr.Number)
			return classifyGitHub(err)
		})
		if err != nil {
			return fmt.Errorf("loading %s#%d: %w", pr.FullName, pr.Number, err)
		}
		if current.Mergeable != nil && !current.GetMergeable() {
			return fmt.Errorf("%w: %s#%d is not mergeable", ErrUnsupported, pr.FullName, pr.Number)
		}
		_, _, err = g.client.PullRequests.Merge(ctx, owner, repo, pr.Number, "", &gogithub.PullRequestOptions{MergeMethod: "merge"})
		if err != nil {
			return fmt.Errorf("merging %s#%d: %w", pr.FullName, pr.Number, classifyGitHub(err))
		}
		return nil
	default:
		slog.Warn("Unsupported pull request status for GitHub", "status", status, "pr", pr.Number)
		return fmt.Errorf("%w: GitHub cannot set status %q", ErrUnsupported, status)
	}
}

// PostReview submits one native review. Line comments that GitHub rejects
// (lines outside the diff) are folded into the review body.
func (g *GitHubProvider) PostReview(ctx context.Context, pr models.PullRequestReference, review models.Review) error {
	owner, repo := splitFullName(pr.FullName)
	event := githubReviewEvent(review.Status)

	var inline []*gogithub.DraftReviewComment
	var general []string
	for _, c := range review.Comments {
		if c.File != "" && c.Line > 0 {
			inline = append(inline, &gogithub.DraftReviewComment{
				Path: gogithub.Ptr(c.File),
				Line: gogithub.Ptr(c.Line),
				Side: gogithub.Ptr("RIGHT"),
				Body: gogithub.Ptr(formatComment(c)),
			})
			continue
		}
		general = append(general, formatComment(c))
	}

	submit := func(body string, comments []*gogithub.DraftReviewComment) error {
		return withRetry(ctx, g.attempts, "github.post_review", func() error {
			_, _, err := g.client.PullRequests.CreateReview(ctx, owner, repo, pr.Number, &gogithub.PullRequestReviewRequest{
				Body:     gogithub.Ptr(body),
				Event:    gogithub.Ptr(event),
				Comments: comments,
			})
			return classifyGitHub(err)
		})
	}

	body := joinLines(reviewSummary(review), general)
	err := submit(body, inline)
	if err != nil && len(inline) > 0 {
		slog.Warn("Inline review comments rejected, folding into body", "pr", pr.Number, "error", err)
		all := make([]string, 0, len(review.Comments))
		for _, c := range review.Comments {
			all = append(all, fmt.Sprintf("%s:%d %s", c.File, c.Line, formatComment(c)))
		}
		err = submit(joinLines(reviewSummary(review), all), nil)
	}
	if err != nil {
		return fmt.Errorf("posting review on %s#%d: %w", pr.FullName, pr.Number, err)
	}
	return nil
}

func githubReviewEvent(status models.ReviewStatus) string {
	switch status {
	case models.ReviewApproved:
		return "APPROVE"
	case models.ReviewChangesRequested:
		return "REQUEST_CHANGES"
	default:
		return "COMMENT"
	}
}

// classifyGitHub maps go-github errors onto ErrNotFound and StatusError.
func classifyGitHub(err error) error {
	if err == nil {
		return nil
	}
	var rle *gogithub.RateLimitError
	if errors.As(err, &rle) {
		return &StatusError{Provider: models.ProviderGitHub, Code: http.StatusTooManyRequests, Message: rle.Message}
	}
	var are *gogithub.AbuseRateLimitError
	if errors.As(err, &are) {
		return &StatusError{Provider: models.ProviderGitHub, Code: http.StatusTooManyRequests, Message: are.Message}
	}
	var ger *gogithub.ErrorResponse
	if errors.As(err, &ger) && ger.Response != nil {
		if ger.Response.StatusCode == http.StatusNotFound {
			return fmt.Errorf("%w: %s", ErrNotFound, ger.Message)
		}
		return &StatusError{Provider: models.ProviderGitHub, Code: ger.Response.StatusCode, Message: ger.Message}
	}
	return err
}

func ownerRepo(ref models.RepositoryReference) (string, string) {
	if ref.Owner != "" && ref.Name != "" {
		return ref.Owner, ref.Name
	}
	return splitFullName(ref.FullName)
}

// splitFullName splits at the last slash so nested owners survive.
func splitFullName(fullName string) (string, string) {
	i := strings.LastIndex(fullName, "/")
	if i < 0 {
		return "", fullName
	}
	return fullName[:i], fullName[i+1:]
}

func joinLines(head string, lines []string) string {
	if len(lines) == 0 {
		return head
	}
	return head + "\n\n" + strings.Join(lines, "\n")
}
