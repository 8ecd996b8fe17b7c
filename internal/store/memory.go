package store

import (
	"context"
	"sort"
	"sync"
)

// MemoryBackend keeps records in process memory. Used by tests and the
// "memory" database driver.
type MemoryBackend struct {
	mu     sync.RWMutex
	tables map[string]map[string]Record
}

// NewMemoryBackend creates an empty MemoryBackend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{tables: map[string]map[string]Record{}}
}

func (m *MemoryBackend) Put(_ context.Context, table string, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tables[table]
	if !ok {
		t = map[string]Record{}
		m.tables[table] = t
	}
	t[rec.ID] = rec
	return nil
}

func (m *MemoryBackend) Get(_ context.Context, table, id string) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.tables[table][id]
	if !ok {
		return Record{}, errNoRecord
	}
	return rec, nil
}

func (m *MemoryBackend) ByParent(_ context.Context, table, parentID string) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Record
	for _, rec := range m.tables[table] {
		if rec.ParentID == parentID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt < out[j].CreatedAt
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *MemoryBackend) ByKey(_ context.Context, table, key string) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var best Record
	found := false
	for _, rec := range m.tables[table] {
		if rec.LookupKey == key && (!found || rec.UpdatedAt > best.UpdatedAt) {
			best, found = rec, true
		}
	}
	if !found {
		return Record{}, errNoRecord
	}
	return best, nil
}

func (m *MemoryBackend) Close() error { return nil }
