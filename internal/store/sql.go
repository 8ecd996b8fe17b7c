package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/CosmoTheDev/repomaint-agent/internal/database"
)

const recordColumns = "id, parent_id, lookup_key, data, created_at, updated_at"

// SQLBackend stores records in a database.DB.
type SQLBackend struct {
	db database.DB
}

// NewSQLBackend wraps an already migrated database.
func NewSQLBackend(db database.DB) *SQLBackend {
	return &SQLBackend{db: db}
}

func (b *SQLBackend) Put(ctx context.Context, table string, rec Record) error {
	return b.db.Upsert(ctx, table, rec, []string{"id"})
}

func (b *SQLBackend) Get(ctx context.Context, table, id string) (Record, error) {
	var rec Record
	// nosemgrep: go.lang.security.audit.database.string-formatted-query.string-formatted-query
	err := b.db.Get(ctx, &rec, fmt.Sprintf("SELECT %s FROM %s WHERE id = ?", recordColumns, table), id)
	if errors.Is(err, database.ErrNoRows) {
		return Record{}, errNoRecord
	}
	if err != nil {
		return Record{}, fmt.Errorf("loading %s %s: %w", table, id, err)
	}
	return rec, nil
}

func (b *SQLBackend) ByParent(ctx context.Context, table, parentID string) ([]Record, error) {
	var recs []Record
	// nosemgrep: go.lang.security.audit.database.string-formatted-query.string-formatted-query
	query := fmt.Sprintf("SELECT %s FROM %s WHERE parent_id = ? ORDER BY created_at, id", recordColumns, table)
	if err := b.db.Select(ctx, &recs, query, parentID); err != nil {
		return nil, fmt.Errorf("listing %s for %s: %w", table, parentID, err)
	}
	return recs, nil
}

func (b *SQLBackend) ByKey(ctx context.Context, table, key string) (Record, error) {
	var rec Record
	// nosemgrep: go.lang.security.audit.database.string-formatted-query.string-formatted-query
	query := fmt.Sprintf("SELECT %s FROM %s WHERE lookup_key = ? ORDER BY updated_at DESC LIMIT 1", recordColumns, table)
	err := b.db.Get(ctx, &rec, query, key)
	if errors.Is(err, database.ErrNoRows) {
		return Record{}, errNoRecord
	}
	if err != nil {
		return Record{}, fmt.Errorf("looking up %s by %q: %w", table, key, err)
	}
	return rec, nil
}

func (b *SQLBackend) Close() error {
	return b.db.Close()
}
