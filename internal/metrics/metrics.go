package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TasksTotal counts finished background tasks, labeled by kind and outcome.
	TasksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "repomaint_tasks_total",
		Help: "The total number of finished background tasks",
	}, []string{"kind", "status"}) // status: completed, failed

	// TaskQueueRejections counts submissions refused because the queue was full.
	TaskQueueRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "repomaint_task_queue_rejections_total",
		Help: "The total number of tasks rejected by a full queue",
	}, []string{"kind"})

	// TaskDuration measures wall time spent running a task.
	TaskDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "repomaint_task_duration_seconds",
		Help:    "Time taken to run a background task",
		Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 300, 900, 1800},
	}, []string{"kind"})

	// TasksQueued reports tasks waiting for a worker.
	TasksQueued = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "repomaint_tasks_queued",
		Help: "Tasks waiting for a free worker",
	})

	// FilesIndexed counts files hashed by the indexer, labeled by outcome.
	FilesIndexed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "repomaint_indexed_files_total",
		Help: "The total number of files walked by the indexer",
	}, []string{"result"}) // result: stored, unchanged

	// OpportunitiesMined counts opportunities returned by the miner.
	OpportunitiesMined = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "repomaint_opportunities_mined_total",
		Help: "The total number of opportunities produced by mining strategies",
	}, []string{"type"})

	// StrategyFailures counts isolated miner strategy and review agent failures.
	StrategyFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "repomaint_strategy_failures_total",
		Help: "Isolated failures of mining strategies and review agents",
	}, []string{"component", "name"})

	// ImplementationsTotal counts finished implementations.
	ImplementationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "repomaint_implementations_total",
		Help: "The total number of finished implementations",
	}, []string{"status", "dry_run"})

	// PullRequestsTotal counts pull requests opened through a provider.
	PullRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "repomaint_pull_requests_total",
		Help: "The total number of pull requests opened",
	}, []string{"provider", "status"}) // status: success, failed

	// ReviewsTotal counts reviews by verdict and whether they reached the provider.
	ReviewsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "repomaint_reviews_total",
		Help: "The total number of aggregated reviews",
	}, []string{"status", "posted"})
)
