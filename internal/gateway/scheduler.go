package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/CosmoTheDev/repomaint-agent/internal/apperr"
	"github.com/CosmoTheDev/repomaint-agent/internal/config"
	"github.com/CosmoTheDev/repomaint-agent/internal/indexer"
	"github.com/robfig/cron/v3"
)

// Schedule is a registered cron-driven reindex.
type Schedule struct {
	config.ScheduleConfig
	LastRunAt  *time.Time `json:"last_run_at,omitempty"`
	LastTaskID string     `json:"last_task_id,omitempty"`
	NextRunAt  *time.Time `json:"next_run_at,omitempty"`
}

// Indexing is the part of the pipeline the scheduler drives.
type Indexing interface {
	StartIndexing(ctx context.Context, req indexer.Request) (string, error)
}

// Scheduler registers the configured reindex schedules with robfig/cron.
// When a schedule fires it starts an indexing task and records the run.
type Scheduler struct {
	cron      *cron.Cron
	indexing  Indexing
	broadcast func(EventType, any)

	mu        sync.Mutex
	schedules map[string]*Schedule
	entries   map[string]cron.EntryID
	order     []string
}

func newScheduler(indexing Indexing, broadcast func(EventType, any)) *Scheduler {
	return &Scheduler{
		cron:      cron.New(),
		indexing:  indexing,
		broadcast: broadcast,
		schedules: make(map[string]*Schedule),
		entries:   make(map[string]cron.EntryID),
	}
}

// Load registers every schedule. Invalid ones are skipped with a warning and
// counted in the returned error.
func (s *Scheduler) Load(schedules []config.ScheduleConfig) error {
	var bad int
	for _, sc := range schedules {
		if err := s.Add(sc); err != nil {
			bad++
			slog.Warn("Skipping invalid schedule", "name", sc.Name, "expr", sc.Expr, "error", err)
		}
	}
	if bad > 0 {
		return fmt.Errorf("%d of %d schedules are invalid", bad, len(schedules))
	}
	return nil
}

// Add validates and registers one schedule.
func (s *Scheduler) Add(sc config.ScheduleConfig) error {
	if sc.Name == "" {
		return apperr.Invalid("schedule name is required")
	}
	if sc.URL == "" {
		return apperr.Invalid("schedule %q has no url", sc.Name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.schedules[sc.Name]; ok {
		return apperr.Conflict("schedule %q already exists", sc.Name)
	}
	name := sc.Name
	entryID, err := s.cron.AddFunc(sc.Expr, func() {
		if _, err := s.Run(context.Background(), name); err != nil {
			slog.Warn("Scheduled reindex failed", "name", name, "error", err)
		}
	})
	if err != nil {
		return apperr.Invalid("invalid cron expression %q: %v", sc.Expr, err)
	}
	s.schedules[name] = &Schedule{ScheduleConfig: sc}
	s.entries[name] = entryID
	s.order = append(s.order, name)
	return nil
}

// Start starts the cron runner.
func (s *Scheduler) Start() {
	s.cron.Start()
	slog.Info("Gateway scheduler started", "schedules_loaded", len(s.List()))
}

// Stop halts the cron runner and waits for running jobs.
func (s *Scheduler) Stop() { <-s.cron.Stop().Done() }

// List returns the registered schedules in insertion order.
func (s *Scheduler) List() []Schedule {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Schedule, 0, len(s.order))
	for _, name := range s.order {
		sched := *s.schedules[name]
		if next := s.cron.Entry(s.entries[name]).Next; !next.IsZero() {
			sched.NextRunAt = &next
		}
		out = append(out, sched)
	}
	return out
}

// Run fires a schedule now and returns the indexing task id.
func (s *Scheduler) Run(ctx context.Context, name string) (string, error) {
	s.mu.Lock()
	sched, ok := s.schedules[name]
	var sc config.ScheduleConfig
	if ok {
		sc = sched.ScheduleConfig
	}
	s.mu.Unlock()
	if !ok {
		return "", apperr.NotFound("schedule", name)
	}

	provider, err := parseProvider(sc.Provider)
	if err != nil {
		return "", err
	}
	taskID, err := s.indexing.StartIndexing(ctx, indexer.Request{URL: sc.URL, Provider: provider, Branch: sc.Branch})
	if err != nil {
		return "", err
	}

	now := time.Now().UTC()
	s.mu.Lock()
	sched.LastRunAt = &now
	sched.LastTaskID = taskID
	s.mu.Unlock()
	slog.Info("Schedule fired", "name", name, "task_id", taskID)
	if s.broadcast != nil {
		s.broadcast(EventScheduleFired, ScheduleFiredEvent{Name: name, URL: sc.URL, TaskID: taskID})
	}
	return taskID, nil
}
