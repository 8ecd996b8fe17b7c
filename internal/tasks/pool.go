package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/CosmoTheDev/repomaint-agent/internal/apperr"
	"github.com/CosmoTheDev/repomaint-agent/internal/config"
	"github.com/CosmoTheDev/repomaint-agent/internal/metrics"
	"github.com/CosmoTheDev/repomaint-agent/models"
)

// ErrHardTimeout is recorded when a task outlives its hard limit.
var ErrHardTimeout = errors.New("task exceeded hard time limit")

// Job is one unit of background work. It should honour ctx; the pool gives
// up on it at the hard limit either way.
type Job func(ctx context.Context, h *Handle) error

// Handle lets a running job report progress and name its result.
type Handle struct {
	id      string
	tracker *Tracker

	mu       sync.Mutex
	resultID string
	message  string
}

// ID returns the task id.
func (h *Handle) ID() string { return h.id }

// Progress updates the task message.
func (h *Handle) Progress(message string) {
	h.tracker.Progress(h.id, message)
}

// SetResult records the entity id produced by the task.
func (h *Handle) SetResult(id string) {
	h.mu.Lock()
	h.resultID = id
	h.mu.Unlock()
}

// Finish sets the message used when the job returns nil.
func (h *Handle) Finish(message string) {
	h.mu.Lock()
	h.message = message
	h.mu.Unlock()
}

// Options bounds the pool.
type Options struct {
	Workers     int
	QueueSize   int
	SoftTimeout time.Duration
	HardTimeout time.Duration
	// OnFinish is called with the terminal record of every task.
	OnFinish func(models.Task)
}

// OptionsFromConfig maps the tasks config section onto Options.
func OptionsFromConfig(cfg config.TasksConfig) Options {
	return Options{
		Workers:     cfg.Workers,
		QueueSize:   cfg.QueueSize,
		SoftTimeout: cfg.SoftTimeout,
		HardTimeout: cfg.HardTimeout,
	}
}

type work struct {
	id   string
	kind string
	job  Job
}

// Pool runs jobs on a fixed number of workers fed by a bounded queue.
// Submit never blocks: when the queue is full the task is rejected.
type Pool struct {
	tracker *Tracker
	opts    Options
	queue   chan work
	wg      sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewPool starts opts.Workers workers.
func NewPool(tracker *Tracker, opts Options) *Pool {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 64
	}
	p := &Pool{
		tracker: tracker,
		opts:    opts,
		queue:   make(chan work, opts.QueueSize),
	}
	for i := 0; i < opts.Workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	return p
}

// Tracker returns the tracker the pool reports into.
func (p *Pool) Tracker() *Tracker { return p.tracker }

// Submit registers a task and enqueues job. It returns the task id without
// waiting for the job to start.
func (p *Pool) Submit(kind, message string, job Job) (string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return "", apperr.Unavailable("task pool is shutting down")
	}

	task := p.tracker.Create(kind, message)
	select {
	case p.queue <- work{id: task.ID, kind: kind, job: job}:
		metrics.TasksQueued.Inc()
		slog.Debug("Task queued", "task_id", task.ID, "kind", kind)
		return task.ID, nil
	default:
		p.tracker.Remove(task.ID)
		metrics.TaskQueueRejections.WithLabelValues(kind).Inc()
		slog.Warn("Task queue full, rejecting task", "kind", kind, "queue_size", p.opts.QueueSize)
		return "", apperr.Unavailable("task queue is full")
	}
}

// Shutdown stops accepting work and waits for queued tasks to finish or ctx
// to expire.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for workers: %w", ctx.Err())
	}
}

func (p *Pool) worker(n int) {
	defer p.wg.Done()
	for w := range p.queue {
		metrics.TasksQueued.Dec()
		p.run(n, w)
	}
}

func (p *Pool) run(worker int, w work) {
	start := time.Now()
	p.tracker.Start(w.id, "running")
	slog.Info("Task started", "task_id", w.id, "kind", w.kind, "worker", worker)

	ctx := context.Background()
	var cancel context.CancelFunc
	if p.opts.HardTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, p.opts.HardTimeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	if p.opts.SoftTimeout > 0 {
		soft := time.AfterFunc(p.opts.SoftTimeout, func() {
			slog.Warn("Task passed soft time limit", "task_id", w.id, "kind", w.kind, "limit", p.opts.SoftTimeout)
			p.tracker.Progress(w.id, "running past soft time limit")
		})
		defer soft.Stop()
	}

	h := &Handle{id: w.id, tracker: p.tracker}
	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("Task panicked", "task_id", w.id, "panic", r, "stack", string(debug.Stack()))
				done <- fmt.Errorf("task panicked: %v", r)
			}
		}()
		done <- w.job(ctx, h)
	}()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		err = ErrHardTimeout
		if !errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = ctx.Err()
		}
	}

	h.mu.Lock()
	msg, result := h.message, h.resultID
	h.mu.Unlock()

	status := string(models.StatusCompleted)
	if err != nil {
		status = string(models.StatusFailed)
		p.tracker.FailWithResult(w.id, result, err)
		slog.Error("Task failed", "task_id", w.id, "kind", w.kind, "duration", time.Since(start), "error", err)
	} else {
		if msg == "" {
			msg = "completed"
		}
		p.tracker.Complete(w.id, result, msg)
		slog.Info("Task completed", "task_id", w.id, "kind", w.kind, "duration", time.Since(start))
	}
	metrics.TasksTotal.WithLabelValues(w.kind, status).Inc()
	metrics.TaskDuration.WithLabelValues(w.kind).Observe(time.Since(start).Seconds())

	if p.opts.OnFinish != nil {
		if task, gerr := p.tracker.Get(w.id); gerr == nil {
			p.opts.OnFinish(task)
		}
	}
}
