package repository

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/CosmoTheDev/repomaint-agent/models"
	gogit "github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/storage/memory"
)

// GenericGitProvider clones any git remote. It has no hosting API, so only
// ResolveURL and CloneRepository are supported; owner/repo are best-effort.
type GenericGitProvider struct {
	clones *CloneManager
}

// NewGenericGit creates a clone-only provider.
func NewGenericGit(opts AdapterOptions) *GenericGitProvider {
	return &GenericGitProvider{clones: opts.clones()}
}

func (g *GenericGitProvider) Type() models.ProviderType { return models.ProviderGenericGit }

func (g *GenericGitProvider) Capabilities() Capabilities { return Capabilities{} }

func (g *GenericGitProvider) GetRepository(_ context.Context, owner, name string) (*models.RepositoryReference, error) {
	return nil, fmt.Errorf("%w: generic git cannot look up %s/%s without a URL", ErrUnsupported, owner, name)
}

// ResolveURL builds a reference from the URL and asks the remote for its
// HEAD branch. An unreachable remote leaves DefaultBranch empty.
func (g *GenericGitProvider) ResolveURL(ctx context.Context, rawURL string) (*models.RepositoryReference, error) {
	ref := &models.RepositoryReference{
		ProviderType: models.ProviderGenericGit,
		RepositoryID: redactURL(rawURL),
		URL:          redactURL(rawURL),
		CloneURL:     rawURL,
	}
	if info, err := os.Stat(rawURL); err == nil && info.IsDir() {
		ref.ProviderID = "local"
		ref.Owner = "unknown"
		ref.Name = filepath.Base(rawURL)
	} else {
		parsed, err := ParseRepoURL(rawURL, models.ProviderGenericGit, nil)
		if err != nil {
			return nil, err
		}
		ref.ProviderID = parsed.Host
		ref.Owner, ref.Name = parsed.Owner, parsed.Name
	}
	ref.FullName = ref.Owner + "/" + ref.Name

	remote := gogit.NewRemote(memory.NewStorage(), &gitconfig.RemoteConfig{Name: "origin", URLs: []string{rawURL}})
	refs, err := remote.ListContext(ctx, &gogit.ListOptions{})
	if err != nil {
		slog.Debug("Could not list remote refs", "url", ref.URL, "error", err)
		return ref, nil
	}
	for _, r := range refs {
		if r.Name() == plumbing.HEAD && r.Type() == plumbing.SymbolicReference {
			ref.DefaultBranch = r.Target().Short()
		}
	}
	return ref, nil
}

func (g *GenericGitProvider) CloneRepository(ctx context.Context, ref models.RepositoryReference, targetDir, branch string) (string, error) {
	return cloneRef(ctx, g.clones, ref, targetDir, branch, "", "")
}

func (g *GenericGitProvider) CreatePullRequest(context.Context, models.RepositoryReference, CreatePROptions) (*models.PullRequestReference, error) {
	return nil, fmt.Errorf("%w: generic git has no pull requests", ErrUnsupported)
}

func (g *GenericGitProvider) AddReviewComment(context.Context, models.PullRequestReference, ReviewComment) error {
	return fmt.Errorf("%w: generic git has no pull requests", ErrUnsupported)
}

func (g *GenericGitProvider) UpdatePullRequestStatus(_ context.Context, _ models.PullRequestReference, status models.PRStatus) error {
	return fmt.Errorf("%w: generic git cannot set status %q", ErrUnsupported, status)
}

func (g *GenericGitProvider) PostReview(context.Context, models.PullRequestReference, models.Review) error {
	return fmt.Errorf("%w: generic git has no pull requests", ErrUnsupported)
}
