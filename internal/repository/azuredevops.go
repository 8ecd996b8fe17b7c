package repository

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/CosmoTheDev/repomaint-agent/internal/config"
	"github.com/CosmoTheDev/repomaint-agent/models"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

const azureAPIVersion = "7.1"

// AzureDevOpsProvider implements RepoProvider for Azure DevOps using the
// REST API v7.1. Review verdicts are synthesised as comment threads.
type AzureDevOpsProvider struct {
	token    string
	org      string
	host     string
	scheme   string
	client   *http.Client
	clones   *CloneManager
	attempts uint
}

// NewAzureDevOps creates an AzureDevOpsProvider.
func NewAzureDevOps(cfg config.AzureConfig, opts AdapterOptions) (*AzureDevOpsProvider, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("no Azure DevOps token configured; run 'repomaint onboard'")
	}
	if cfg.Org == "" {
		return nil, fmt.Errorf("azure DevOps organisation name is required")
	}
	host, scheme := cfg.Host, "https"
	if host == "" {
		host = "dev.azure.com"
	}
	if u, err := url.Parse(host); err == nil && u.Scheme != "" && u.Host != "" {
		host, scheme = u.Host, u.Scheme
	}
	return &AzureDevOpsProvider{
		token:    cfg.Token,
		org:      cfg.Org,
		host:     host,
		scheme:   scheme,
		client:   &http.Client{Timeout: opts.Timeout},
		clones:   opts.clones(),
		attempts: opts.RetryAttempts,
	}, nil
}

func (a *AzureDevOpsProvider) Type() models.ProviderType { return models.ProviderAzureDevOps }

func (a *AzureDevOpsProvider) Capabilities() Capabilities {
	return Capabilities{DraftPullRequests: true, LineComments: true, NativeReviews: false, Merge: true}
}

func (a *AzureDevOpsProvider) baseURL() string {
	return fmt.Sprintf("%s://%s/%s", a.scheme, a.host, a.org)
}

func (a *AzureDevOpsProvider) apiURL(project, format string, args ...any) string {
	path := fmt.Sprintf(format, args...)
	return fmt.Sprintf("%s/%s/_apis/git/repositories/%s?api-version=%s",
		a.baseURL(), url.PathEscape(project), path, azureAPIVersion)
}

func (a *AzureDevOpsProvider) do(ctx context.Context, method, urlStr string, body []byte) ([]byte, error) {
	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, urlStr, rdr)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth("", a.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req) // #nosec G704 -- URL is built from admin-supplied config, not user input
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, gjson.GetBytes(data, "message").String())
	}
	if resp.StatusCode >= 400 {
		msg := gjson.GetBytes(data, "message").String()
		if msg == "" {
			msg = string(data)
		}
		return nil, &StatusError{Provider: models.ProviderAzureDevOps, Code: resp.StatusCode, Message: msg}
	}
	return data, nil
}

// doRetry wraps do for idempotent calls.
func (a *AzureDevOpsProvider) doRetry(ctx context.Context, op, method, urlStr string, body []byte) ([]byte, error) {
	var data []byte
	err := withRetry(ctx, a.attempts, op, func() error {
		var err error
		data, err = a.do(ctx, method, urlStr, body)
		return err
	})
	return data, err
}

// GetRepository expects owner as "org/project" (or just "project").
func (a *AzureDevOpsProvider) GetRepository(ctx context.Context, owner, name string) (*models.RepositoryReference, error) {
	project := azureProject(owner)
	data, err := a.doRetry(ctx, "azure.get_repository", http.MethodGet, a.apiURL(project, "%s", url.PathEscape(name)), nil)
	if err != nil {
		return nil, fmt.Errorf("getting Azure DevOps repo %s/%s: %w", owner, name, err)
	}
	r := gjson.ParseBytes(data)
	fullOwner := a.org + "/" + project
	return &models.RepositoryReference{
		ProviderType:  models.ProviderAzureDevOps,
		ProviderID:    a.host,
		RepositoryID:  r.Get("id").String(),
		Owner:         fullOwner,
		Name:          r.Get("name").String(),
		FullName:      fullOwner + "/" + r.Get("name").String(),
		URL:           r.Get("webUrl").String(),
		CloneURL:      r.Get("remoteUrl").String(),
		DefaultBranch: strings.TrimPrefix(r.Get("defaultBranch").String(), "refs/heads/"),
	}, nil
}

func (a *AzureDevOpsProvider) CloneRepository(ctx context.Context, ref models.RepositoryReference, targetDir, branch string) (string, error) {
	return cloneRef(ctx, a.clones, ref, targetDir, branch, "pat", a.token)
}

// CreatePullRequest is not retried. Draft maps to isDraft.
func (a *AzureDevOpsProvider) CreatePullRequest(ctx context.Context, ref models.RepositoryReference, opts CreatePROptions) (*models.PullRequestReference, error) {
	project := azureProject(ref.Owner)
	body, _ := sjson.SetBytes(nil, "title", opts.Title)
	body, _ = sjson.SetBytes(body, "description", opts.Description)
	body, _ = sjson.SetBytes(body, "sourceRefName", "refs/heads/"+opts.SourceBranch)
	body, _ = sjson.SetBytes(body, "targetRefName", "refs/heads/"+opts.TargetBranch)
	body, _ = sjson.SetBytes(body, "isDraft", opts.Draft)

	data, err := a.do(ctx, http.MethodPost, a.apiURL(project, "%s/pullrequests", ref.RepositoryID), body)
	if err != nil {
		return nil, fmt.Errorf("creating Azure DevOps PR on %s: %w", ref.FullName, err)
	}
	pr := gjson.ParseBytes(data)
	id := int(pr.Get("pullRequestId").Int())
	status := models.PROpen
	if pr.Get("isDraft").Bool() {
		status = models.PRDraft
	}
	return &models.PullRequestReference{
		ProviderType: models.ProviderAzureDevOps,
		ProviderID:   a.host,
		RepositoryID: ref.RepositoryID,
		FullName:     ref.FullName,
		PRID:         fmt.Sprintf("%d", id),
		Number:       id,
		Title:        pr.Get("title").String(),
		Description:  pr.Get("description").String(),
		BranchName:   opts.SourceBranch,
		TargetBranch: opts.TargetBranch,
		Status:       status,
		URL: fmt.Sprintf("%s/%s/_git/%s/pullrequest/%d",
			a.baseURL(), project, url.PathEscape(ref.Name), id),
	}, nil
}

// AddReviewComment opens a thread, anchored through threadContext when a
// path and line are given.
func (a *AzureDevOpsProvider) AddReviewComment(ctx context.Context, pr models.PullRequestReference, comment ReviewComment) error {
	if comment.Anchored() {
		err := a.thread(ctx, pr, comment.Body, comment.Path, comment.Line)
		if err == nil {
			return nil
		}
		slog.Warn("Anchored thread failed, posting plain thread", "pr", pr.Number, "path", comment.Path, "error", err)
	}
	return a.thread(ctx, pr, comment.Body, "", 0)
}

func (a *AzureDevOpsProvider) thread(ctx context.Context, pr models.PullRequestReference, text, path string, line int) error {
	body, _ := sjson.SetBytes(nil, "comments", []map[string]any{
		{"parentCommentId": 0, "content": text, "commentType": 1},
	})
	body, _ = sjson.SetBytes(body, "status", 1)
	if path != "" && line > 0 {
		body, _ = sjson.SetBytes(body, "threadContext.filePath", "/"+strings.TrimPrefix(path, "/"))
		body, _ = sjson.SetBytes(body, "threadContext.rightFileStart.line", line)
		body, _ = sjson.SetBytes(body, "threadContext.rightFileStart.offset", 1)
		body, _ = sjson.SetBytes(body, "threadContext.rightFileEnd.line", line)
		body, _ = sjson.SetBytes(body, "threadContext.rightFileEnd.offset", 1)
	}
	project := azureProject(ownerOf(pr.FullName))
	_, err := a.doRetry(ctx, "azure.thread", http.MethodPost,
		a.apiURL(project, "%s/pullRequests/%d/threads", pr.RepositoryID, pr.Number), body)
	if err != nil {
		return fmt.Errorf("adding thread to PR %d: %w", pr.Number, err)
	}
	return nil
}

// UpdatePullRequestStatus maps open→active, closed→abandoned,
// merged→completed and draft→isDraft.
func (a *AzureDevOpsProvider) UpdatePullRequestStatus(ctx context.Context, pr models.PullRequestReference, status models.PRStatus) error {
	project := azureProject(ownerOf(pr.FullName))
	prURL := a.apiURL(project, "%s/pullrequests/%d", pr.RepositoryID, pr.Number)

	var body []byte
	switch status {
	case models.PROpen:
		body, _ = sjson.SetBytes(nil, "status", "active")
		body, _ = sjson.SetBytes(body, "isDraft", false)
	case models.PRClosed:
		body, _ = sjson.SetBytes(nil, "status", "abandoned")
	case models.PRDraft:
		body, _ = sjson.SetBytes(nil, "isDraft", true)
	case models.PRMerged:
		data, err := a.doRetry(ctx, "azure.get_pull_request", http.MethodGet, prURL, nil)
		if err != nil {
			return fmt.Errorf("loading PR %d: %w", pr.Number, err)
		}
		current := gjson.ParseBytes(data)
		if ms := current.Get("mergeStatus").String(); ms != "" && ms != "succeeded" {
			return fmt.Errorf("%w: PR %d merge status is %s", ErrUnsupported, pr.Number, ms)
		}
		body, _ = sjson.SetBytes(nil, "status", "completed")
		body, _ = sjson.SetBytes(body, "lastMergeSourceCommit.commitId", current.Get("lastMergeSourceCommit.commitId").String())
	default:
		slog.Warn("Unsupported pull request status for Azure DevOps", "status", status, "pr", pr.Number)
		return fmt.Errorf("%w: Azure DevOps cannot set status %q", ErrUnsupported, status)
	}

	if _, err := a.doRetry(ctx, "azure.update_status", http.MethodPatch, prURL, body); err != nil {
		return fmt.Errorf("setting PR %d to %s: %w", pr.Number, status, err)
	}
	return nil
}

// PostReview opens a summary thread with the synthesised verdict and one
// thread per comment.
func (a *AzureDevOpsProvider) PostReview(ctx context.Context, pr models.PullRequestReference, review models.Review) error {
	summary := reviewSummary(review)
	if v := verdictNote(review.Status); v != "" {
		summary += "\n\n" + v
	}
	if err := a.thread(ctx, pr, summary, "", 0); err != nil {
		return err
	}
	var errs []error
	for _, c := range review.Comments {
		if err := a.AddReviewComment(ctx, pr, ReviewComment{Body: formatComment(c), Path: c.File, Line: c.Line}); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// azureProject returns the project segment of "org/project" or "project".
func azureProject(owner string) string {
	parts := strings.Split(owner, "/")
	return parts[len(parts)-1]
}

func ownerOf(fullName string) string {
	owner, _ := splitFullName(fullName)
	return owner
}
