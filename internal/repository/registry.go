package repository

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/CosmoTheDev/repomaint-agent/internal/config"
	"github.com/CosmoTheDev/repomaint-agent/models"
)

// AdapterOptions are shared by every adapter constructed by a Registry.
type AdapterOptions struct {
	Timeout       time.Duration // per API call
	RetryAttempts uint          // idempotent calls only
	Clones        *CloneManager
}

func (o AdapterOptions) clones() *CloneManager {
	if o.Clones != nil {
		return o.Clones
	}
	return NewCloneManager(0, o.RetryAttempts)
}

// OptionsFromConfig derives AdapterOptions from the git section.
func OptionsFromConfig(cfg *config.Config) AdapterOptions {
	return AdapterOptions{
		Timeout:       cfg.Git.Timeout,
		RetryAttempts: cfg.Git.RetryAttempts,
		Clones:        NewCloneManager(cfg.Git.CloneTimeout, cfg.Git.RetryAttempts),
	}
}

// Constructor builds an adapter from configuration. Returning an error (for
// example missing credentials) makes the type unavailable.
type Constructor func(cfg *config.Config, opts AdapterOptions) (RepoProvider, error)

// Registry resolves provider types to lazily constructed, cached adapters.
// Failed constructions are not cached so fixing credentials takes effect.
type Registry struct {
	cfg   *config.Config
	opts  AdapterOptions
	hosts HostMap

	mu           sync.Mutex
	constructors map[models.ProviderType]Constructor
	instances    map[models.ProviderType]RepoProvider
}

// NewRegistry returns a Registry with the built-in adapters registered.
func NewRegistry(cfg *config.Config) *Registry {
	if cfg == nil {
		cfg = &config.Config{}
	}
	r := &Registry{
		cfg:          cfg,
		opts:         OptionsFromConfig(cfg),
		hosts:        HostsFromConfig(cfg),
		constructors: map[models.ProviderType]Constructor{},
		instances:    map[models.ProviderType]RepoProvider{},
	}
	r.Register(models.ProviderGitHub, newGitHubFromConfig)
	r.Register(models.ProviderGitLab, newGitLabFromConfig)
	r.Register(models.ProviderAzureDevOps, newAzureFromConfig)
	r.Register(models.ProviderGenericGit, func(_ *config.Config, opts AdapterOptions) (RepoProvider, error) {
		return NewGenericGit(opts), nil
	})
	return r
}

// Register adds or replaces the constructor for t and drops any cached instance.
func (r *Registry) Register(t models.ProviderType, c Constructor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.constructors[t] = c
	delete(r.instances, t)
}

// Get returns the adapter for t. The error wraps ErrProviderUnavailable when
// the type is unknown or cannot be configured.
func (r *Registry) Get(t models.ProviderType) (RepoProvider, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.instances[t]; ok {
		return p, nil
	}
	ctor, ok := r.constructors[t]
	if !ok {
		return nil, fmt.Errorf("%w: no adapter for %q", ErrProviderUnavailable, t)
	}
	p, err := ctor(r.cfg, r.opts)
	if err != nil {
		slog.Debug("Provider unavailable", "provider", t, "error", err)
		return nil, fmt.Errorf("%w: %s: %v", ErrProviderUnavailable, t, err)
	}
	r.instances[t] = p
	return p, nil
}

// Default returns the adapter for git.default_provider (GitHub when unset).
func (r *Registry) Default() (RepoProvider, error) {
	t := models.ProviderGitHub
	if r.cfg.Git.DefaultProvider != "" {
		parsed, err := models.ParseProviderType(r.cfg.Git.DefaultProvider)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
		}
		t = parsed
	}
	return r.Get(t)
}

// Types lists every registered type in AllProviderTypes order, followed by
// any custom types.
func (r *Registry) Types() []models.ProviderType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.ProviderType, 0, len(r.constructors))
	seen := map[models.ProviderType]bool{}
	for _, t := range models.AllProviderTypes {
		if _, ok := r.constructors[t]; ok {
			out = append(out, t)
			seen[t] = true
		}
	}
	for t := range r.constructors {
		if !seen[t] {
			out = append(out, t)
		}
	}
	return out
}

// Hosts returns the configured self-hosted host map used for URL detection.
func (r *Registry) Hosts() HostMap { return r.hosts }

// ParseURL detects the provider (unless given) and splits the URL.
func (r *Registry) ParseURL(rawURL string, provider models.ProviderType) (RepoURL, error) {
	return ParseRepoURL(rawURL, provider, r.hosts)
}

func newGitHubFromConfig(cfg *config.Config, opts AdapterOptions) (RepoProvider, error) {
	for _, g := range cfg.Git.GitHub {
		if g.Token != "" {
			p, err := NewGitHub(g, opts)
			if err != nil {
				return nil, err
			}
			return p, nil
		}
	}
	return nil, fmt.Errorf("no GitHub token configured")
}

func newGitLabFromConfig(cfg *config.Config, opts AdapterOptions) (RepoProvider, error) {
	for _, g := range cfg.Git.GitLab {
		if g.Token != "" {
			p, err := NewGitLab(g, opts)
			if err != nil {
				return nil, err
			}
			return p, nil
		}
	}
	return nil, fmt.Errorf("no GitLab token configured")
}

func newAzureFromConfig(cfg *config.Config, opts AdapterOptions) (RepoProvider, error) {
	for _, a := range cfg.Git.Azure {
		if a.Token != "" {
			p, err := NewAzureDevOps(a, opts)
			if err != nil {
				return nil, err
			}
			return p, nil
		}
	}
	return nil, fmt.Errorf("no Azure DevOps token configured")
}
