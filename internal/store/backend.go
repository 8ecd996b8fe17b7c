// Package store persists pipeline entities as JSON documents keyed by id.
package store

import (
	"context"
	"errors"
)

// Table names shared by every backend.
const (
	TableRepositories    = "repositories"
	TableCodeFiles       = "code_files"
	TableOpportunities   = "opportunities"
	TablePlans           = "plans"
	TableImplementations = "implementations"
	TablePullRequests    = "pull_requests"
	TableReviews         = "reviews"
)

// errNoRecord is returned by backends when an id or key is unknown.
var errNoRecord = errors.New("record not found")

// Record is one stored document. ParentID is the owning foreign key and
// LookupKey an optional natural key.
type Record struct {
	ID        string `db:"id"`
	ParentID  string `db:"parent_id"`
	LookupKey string `db:"lookup_key"`
	Data      string `db:"data"`
	CreatedAt string `db:"created_at"`
	UpdatedAt string `db:"updated_at"`
}

// Backend is the key-value contract the Store is built on.
type Backend interface {
	Put(ctx context.Context, table string, rec Record) error
	Get(ctx context.Context, table, id string) (Record, error)
	// ByParent returns the records owned by parentID in creation order.
	ByParent(ctx context.Context, table, parentID string) ([]Record, error)
	// ByKey returns the newest record with the given lookup key.
	ByKey(ctx context.Context, table, key string) (Record, error)
	Close() error
}
