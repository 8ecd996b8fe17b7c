package repository

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/CosmoTheDev/repomaint-agent/models"
	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
)

// CloneResult holds information about a completed clone operation.
type CloneResult struct {
	LocalPath string
	Branch    string
	Commit    string
}

// CloneOptions describes one clone. Username/Token become HTTP basic auth on
// the transport and are never written into the remote URL or .git/config.
type CloneOptions struct {
	URL      string
	Dest     string
	Branch   string
	Username string
	Token    string
}

// CloneManager clones repositories with go-git.
type CloneManager struct {
	timeout  time.Duration
	attempts uint
}

// NewCloneManager creates a CloneManager. A zero timeout disables the bound.
func NewCloneManager(timeout time.Duration, attempts uint) *CloneManager {
	return &CloneManager{timeout: timeout, attempts: attempts}
}

// Clone clones opts.URL into opts.Dest. Dest is emptied before every attempt
// so retries never see a half-written tree.
func (cm *CloneManager) Clone(ctx context.Context, opts CloneOptions) (*CloneResult, error) {
	safeURL := redactURL(opts.URL)
	if cm.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cm.timeout)
		defer cancel()
	}

	cloneOpts := &gogit.CloneOptions{URL: opts.URL}
	if isNetworkURL(opts.URL) {
		cloneOpts.Depth = 1 // shallow clone for speed
	}
	if opts.Token != "" {
		user := opts.Username
		if user == "" {
			user = "repomaint"
		}
		cloneOpts.Auth = &githttp.BasicAuth{Username: user, Password: opts.Token}
	}
	if opts.Branch != "" {
		cloneOpts.ReferenceName = plumbing.NewBranchReferenceName(opts.Branch)
		cloneOpts.SingleBranch = true
	}

	slog.Debug("Cloning repository", "url", safeURL, "branch", opts.Branch, "dest", opts.Dest)

	var repo *gogit.Repository
	err := withRetry(ctx, cm.attempts, "clone", func() error {
		if err := resetDir(opts.Dest); err != nil {
			return err
		}
		var cerr error
		repo, cerr = gogit.PlainCloneContext(ctx, opts.Dest, false, cloneOpts)
		return cerr
	})
	if err != nil {
		return nil, &CloneError{URL: safeURL, Err: err}
	}

	head, err := repo.Head()
	if err != nil {
		return nil, &CloneError{URL: safeURL, Err: fmt.Errorf("resolving HEAD: %w", err)}
	}

	branch := head.Name().Short()
	if branch == "" {
		branch = opts.Branch
	}
	return &CloneResult{LocalPath: opts.Dest, Branch: branch, Commit: head.Hash().String()}, nil
}

// Cleanup removes a clone directory. Errors are logged only.
func (cm *CloneManager) Cleanup(path string) {
	if path == "" {
		return
	}
	if err := os.RemoveAll(path); err != nil {
		slog.Warn("Failed to clean up clone directory", "path", path, "error", err)
	}
}

func resetDir(dir string) error {
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("clearing %s: %w", dir, err)
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	return nil
}

func isNetworkURL(u string) bool {
	return strings.HasPrefix(u, "https://") || strings.HasPrefix(u, "http://") ||
		strings.HasPrefix(u, "ssh://") || strings.Contains(u, "@")
}

// cloneRef is shared by the platform adapters.
func cloneRef(ctx context.Context, cm *CloneManager, ref models.RepositoryReference, targetDir, branch, user, token string) (string, error) {
	cloneURL := ref.CloneURL
	if cloneURL == "" {
		cloneURL = ref.URL
	}
	if branch == "" {
		branch = ref.DefaultBranch
	}
	res, err := cm.Clone(ctx, CloneOptions{URL: cloneURL, Dest: targetDir, Branch: branch, Username: user, Token: token})
	if err != nil {
		return "", err
	}
	return res.LocalPath, nil
}
