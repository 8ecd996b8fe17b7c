package tasks

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/CosmoTheDev/repomaint-agent/internal/apperr"
	"github.com/CosmoTheDev/repomaint-agent/models"
	"github.com/oklog/ulid/v2"
)

// Tracker maps task ids to status records. Every record has its own lock so
// workers updating different tasks never contend. Terminal records are
// frozen: later transitions are ignored.
type Tracker struct {
	entries sync.Map // id -> *entry
	now     func() time.Time
}

type entry struct {
	mu   sync.Mutex
	task models.Task
}

// NewTracker creates an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{now: time.Now}
}

// Create registers a pending task and returns a copy of it. IDs are ULIDs,
// so lexical order matches creation order.
func (t *Tracker) Create(kind, message string) models.Task {
	now := t.now().UTC()
	e := &entry{task: models.Task{
		ID:        ulid.Make().String(),
		Kind:      kind,
		Status:    models.StatusPending,
		Message:   message,
		CreatedAt: now,
		UpdatedAt: now,
	}}
	t.entries.Store(e.task.ID, e)
	return e.task
}

// Get returns a snapshot of the task.
func (t *Tracker) Get(id string) (models.Task, error) {
	e, ok := t.load(id)
	if !ok {
		return models.Task{}, apperr.NotFound("task", id)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.task, nil
}

// Start moves a pending task to in_progress.
func (t *Tracker) Start(id, message string) bool {
	return t.update(id, func(task *models.Task) {
		task.Status = models.StatusInProgress
		task.Message = message
	})
}

// Progress replaces the message of a running task.
func (t *Tracker) Progress(id, message string) bool {
	return t.update(id, func(task *models.Task) {
		task.Message = message
	})
}

// Complete marks the task completed. resultID names the entity produced.
func (t *Tracker) Complete(id, resultID, message string) bool {
	return t.update(id, func(task *models.Task) {
		task.Status = models.StatusCompleted
		task.Message = message
		task.ResultID = resultID
		t.stamp(task)
	})
}

// Fail marks the task failed with the captured error message.
func (t *Tracker) Fail(id string, err error) bool {
	return t.FailWithResult(id, "", err)
}

// FailWithResult is Fail for jobs that produced a failed entity worth
// pointing at, such as an Implementation stopped midway.
func (t *Tracker) FailWithResult(id, resultID string, err error) bool {
	return t.update(id, func(task *models.Task) {
		task.Status = models.StatusFailed
		task.ResultID = resultID
		task.Message = "failed"
		if err != nil {
			task.Error = err.Error()
		}
		t.stamp(task)
	})
}

// Remove deletes the record. Used when a task could not be scheduled.
func (t *Tracker) Remove(id string) {
	t.entries.Delete(id)
}

// List returns snapshots of every task in creation order.
func (t *Tracker) List() []models.Task {
	var out []models.Task
	t.entries.Range(func(_, v any) bool {
		e := v.(*entry)
		e.mu.Lock()
		out = append(out, e.task)
		e.mu.Unlock()
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Prune evicts terminal tasks that completed more than retention ago and
// reports how many were removed.
func (t *Tracker) Prune(retention time.Duration) int {
	cutoff := t.now().UTC().Add(-retention)
	removed := 0
	t.entries.Range(func(k, v any) bool {
		e := v.(*entry)
		e.mu.Lock()
		stale := e.task.Status.Terminal() && e.task.CompletedAt != nil && e.task.CompletedAt.Before(cutoff)
		e.mu.Unlock()
		if stale {
			t.entries.Delete(k)
			removed++
		}
		return true
	})
	return removed
}

// RunPruner calls Prune every interval until ctx is done.
func (t *Tracker) RunPruner(ctx context.Context, interval, retention time.Duration) {
	if retention <= 0 {
		return
	}
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := t.Prune(retention); n > 0 {
				slog.Debug("Pruned finished tasks", "count", n)
			}
		}
	}
}

func (t *Tracker) load(id string) (*entry, bool) {
	v, ok := t.entries.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*entry), true
}

// update applies fn under the entry lock unless the task is already terminal.
func (t *Tracker) update(id string, fn func(*models.Task)) bool {
	e, ok := t.load(id)
	if !ok {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.task.Status.Terminal() {
		return false
	}
	fn(&e.task)
	e.task.UpdatedAt = t.now().UTC()
	return true
}

func (t *Tracker) stamp(task *models.Task) {
	now := t.now().UTC()
	task.CompletedAt = &now
}
