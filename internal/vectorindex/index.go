// Package vectorindex creates the per-repository collections used for
// semantic search over indexed code.
package vectorindex

import (
	"context"
	"fmt"

	"github.com/CosmoTheDev/repomaint-agent/internal/config"
)

// Index is the blob/vector index collaborator.
type Index interface {
	// CreateCollection creates the collection for a repository. An existing
	// collection is reused and reported with created == false.
	CreateCollection(ctx context.Context, repositoryID string, dimension int, distance string) (created bool, err error)
	// Ping checks that the backend is reachable.
	Ping(ctx context.Context) error
	Name() string
}

// CollectionName returns the collection used for a repository.
func CollectionName(repositoryID string) string {
	return "repo_" + repositoryID
}

// New returns the backend selected by cfg.Backend.
func New(cfg config.VectorConfig) (Index, error) {
	switch cfg.Backend {
	case "qdrant":
		return NewQdrant(cfg), nil
	case "none", "":
		return Noop{}, nil
	default:
		return nil, fmt.Errorf("unsupported vector backend %q (supported: qdrant, none)", cfg.Backend)
	}
}

// Noop accepts every collection without storing anything.
type Noop struct{}

func (Noop) CreateCollection(context.Context, string, int, string) (bool, error) { return true, nil }
func (Noop) Ping(context.Context) error                                          { return nil }
func (Noop) Name() string                                                        { return "none" }
