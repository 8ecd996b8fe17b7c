// Package implementer executes plans step by step and records the outcome.
package implementer

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/CosmoTheDev/repomaint-agent/internal/apperr"
	"github.com/CosmoTheDev/repomaint-agent/internal/config"
	"github.com/CosmoTheDev/repomaint-agent/internal/metrics"
	"github.com/CosmoTheDev/repomaint-agent/internal/store"
	"github.com/CosmoTheDev/repomaint-agent/internal/tasks"
	"github.com/CosmoTheDev/repomaint-agent/models"
	"github.com/google/uuid"
)

// TaskKind is the tracker kind for implementation tasks.
const TaskKind = "implement"

// StepExecutor applies one plan step.
type StepExecutor interface {
	Execute(ctx context.Context, plan *models.Plan, step models.PlanStep, dryRun bool) (models.ChangeRecord, error)
}

// TestRunner runs the verification suite once all steps are applied.
type TestRunner interface {
	RunTests(ctx context.Context, plan *models.Plan) (bool, error)
}

// Implementer turns plans into Implementation records.
type Implementer struct {
	store    *store.Store
	pool     *tasks.Pool
	executor StepExecutor
	tests    TestRunner
}

// Option customises an Implementer.
type Option func(*Implementer)

// WithExecutor replaces the step executor.
func WithExecutor(e StepExecutor) Option { return func(i *Implementer) { i.executor = e } }

// WithTestRunner replaces the test runner.
func WithTestRunner(r TestRunner) Option { return func(i *Implementer) { i.tests = r } }

// New creates an Implementer. Without options it uses the simulated
// executor and runner timed by cfg.
func New(st *store.Store, pool *tasks.Pool, cfg config.ImplementerConfig, opts ...Option) *Implementer {
	sim := &Simulator{StepDelay: cfg.StepDelay, TestDelay: cfg.TestDelay}
	i := &Implementer{store: st, pool: pool, executor: sim, tests: sim}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// StartImplementation checks the plan exists and schedules its execution.
// The returned task id resolves to the implementation id on completion.
func (i *Implementer) StartImplementation(ctx context.Context, planID string, dryRun bool) (string, error) {
	plan, err := i.store.GetPlan(ctx, planID)
	if err != nil {
		return "", err
	}
	return i.pool.Submit(TaskKind, "implementation queued", func(ctx context.Context, h *tasks.Handle) error {
		impl, err := i.Implement(ctx, plan, dryRun, h.Progress)
		if impl != nil {
			h.SetResult(impl.ID)
		}
		if err != nil {
			return err
		}
		h.Finish(fmt.Sprintf("implemented %d steps", len(impl.Changes)))
		return nil
	})
}

// Implement runs every step of plan in order and stops at the first failure.
// The returned Implementation is terminal and already stored; err is set
// when it failed.
func (i *Implementer) Implement(ctx context.Context, plan *models.Plan, dryRun bool, progress func(string)) (*models.Implementation, error) {
	if progress == nil {
		progress = func(string) {}
	}
	impl := &models.Implementation{
		ID:        uuid.NewString(),
		PlanID:    plan.ID,
		Status:    models.StatusInProgress,
		DryRun:    dryRun,
		Changes:   []models.ChangeRecord{},
		CreatedAt: time.Now().UTC(),
	}
	if err := i.store.PutImplementation(ctx, impl); err != nil {
		return nil, apperr.Internal(err, "storing implementation")
	}
	slog.Info("Implementation started", "implementation_id", impl.ID, "plan_id", plan.ID, "steps", len(plan.Steps), "dry_run", dryRun)

	runErr := i.run(ctx, plan, impl, progress)

	now := time.Now().UTC()
	impl.CompletedAt = &now
	if runErr != nil {
		impl.Status = models.StatusFailed
		impl.Error = runErr.Error()
		slog.Error("Implementation failed", "implementation_id", impl.ID, "completed_steps", len(impl.Changes), "error", runErr)
	} else {
		impl.Status = models.StatusCompleted
		slog.Info("Implementation completed", "implementation_id", impl.ID, "tests_passed", impl.TestsPassed)
	}
	metrics.ImplementationsTotal.WithLabelValues(string(impl.Status), strconv.FormatBool(dryRun)).Inc()

	// The task context may already be cancelled; the final state must still land.
	if err := i.store.PutImplementation(context.WithoutCancel(ctx), impl); err != nil {
		return impl, apperr.Internal(err, "storing implementation")
	}
	return impl, runErr
}

func (i *Implementer) run(ctx context.Context, plan *models.Plan, impl *models.Implementation, progress func(string)) error {
	for _, step := range plan.Steps {
		progress(fmt.Sprintf("step %d/%d: %s", step.Step, len(plan.Steps), step.Description))
		change, err := i.executor.Execute(ctx, plan, step, impl.DryRun)
		if err != nil {
			return fmt.Errorf("executing step %d: %w", step.Step, err)
		}
		impl.Changes = append(impl.Changes, change)
		if err := i.store.PutImplementation(ctx, impl); err != nil {
			return fmt.Errorf("recording step %d: %w", step.Step, err)
		}
	}
	if impl.DryRun {
		return nil
	}

	progress("running tests")
	passed, err := i.tests.RunTests(ctx, plan)
	if err != nil {
		return fmt.Errorf("running tests: %w", err)
	}
	impl.TestsPassed = &passed
	if !passed {
		slog.Warn("Verification failed", "implementation_id", impl.ID, "plan_id", plan.ID)
	}
	return nil
}

// Simulator stands in for real code edits and test runs.
type Simulator struct {
	StepDelay time.Duration
	TestDelay time.Duration
}

// Execute waits StepDelay and reports the step as simulated or completed.
func (s *Simulator) Execute(ctx context.Context, _ *models.Plan, step models.PlanStep, dryRun bool) (models.ChangeRecord, error) {
	rec := models.ChangeRecord{
		Step:          step.Step,
		Description:   step.Description,
		Status:        models.ChangeSimulated,
		FilesModified: step.Files,
		Changes:       "Dry run - no actual changes made",
	}
	if rec.FilesModified == nil {
		rec.FilesModified = []string{}
	}
	if !dryRun {
		rec.Status = models.ChangeCompleted
		rec.Changes = "Implemented: " + step.Description
	}
	return rec, sleep(ctx, s.StepDelay)
}

// RunTests waits TestDelay and passes.
func (s *Simulator) RunTests(ctx context.Context, _ *models.Plan) (bool, error) {
	if err := sleep(ctx, s.TestDelay); err != nil {
		return false, err
	}
	return true, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
