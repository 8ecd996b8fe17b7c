package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/CosmoTheDev/repomaint-agent/internal/agents"
	"github.com/CosmoTheDev/repomaint-agent/internal/config"
	"github.com/CosmoTheDev/repomaint-agent/internal/gateway"
	"github.com/CosmoTheDev/repomaint-agent/internal/implementer"
	"github.com/CosmoTheDev/repomaint-agent/internal/indexer"
	"github.com/CosmoTheDev/repomaint-agent/internal/miner"
	"github.com/CosmoTheDev/repomaint-agent/internal/notify"
	"github.com/CosmoTheDev/repomaint-agent/internal/osv"
	"github.com/CosmoTheDev/repomaint-agent/internal/pipeline"
	"github.com/CosmoTheDev/repomaint-agent/internal/planner"
	"github.com/CosmoTheDev/repomaint-agent/internal/prmanager"
	"github.com/CosmoTheDev/repomaint-agent/internal/repository"
	"github.com/CosmoTheDev/repomaint-agent/internal/reviewer"
	"github.com/CosmoTheDev/repomaint-agent/internal/store"
	"github.com/CosmoTheDev/repomaint-agent/internal/tasks"
	"github.com/CosmoTheDev/repomaint-agent/internal/vectorindex"
	"github.com/CosmoTheDev/repomaint-agent/models"
	"go.uber.org/dig"
)

// app is everything a command needs once the container is resolved.
type app struct {
	cfg         *config.Config
	store       *store.Store
	pool        *tasks.Pool
	registry    *repository.Registry
	vectors     vectorindex.Index
	notifier    *notify.Dispatcher
	broadcaster *gateway.Broadcaster
	pipeline    *pipeline.Pipeline
}

type appParams struct {
	dig.In

	Config      *config.Config
	Store       *store.Store
	Pool        *tasks.Pool
	Registry    *repository.Registry
	Vectors     vectorindex.Index
	Notifier    *notify.Dispatcher
	Broadcaster *gateway.Broadcaster
	Pipeline    *pipeline.Pipeline
}

type pipelineParams struct {
	dig.In

	Store       *store.Store
	Pool        *tasks.Pool
	Indexer     *indexer.Indexer
	Miner       *miner.Miner
	Planner     *planner.Planner
	Implementer *implementer.Implementer
	PRs         *prmanager.Manager
	Reviewer    *reviewer.Reviewer
	Notifier    *notify.Dispatcher
}

// registerProviders registers every service constructor with the container,
// bottom-up: config, storage and transport, task pool, stages, pipeline.
func registerProviders(container *dig.Container, cfg *config.Config) error {
	providers := []any{
		func() *config.Config { return cfg },
		func(c *config.Config) (*store.Store, error) {
			return store.Open(context.Background(), c.Database)
		},
		repository.NewRegistry,
		func(c *config.Config) (vectorindex.Index, error) { return vectorindex.New(c.Vector) },
		func(c *config.Config) *notify.Dispatcher { return notify.NewDispatcher(c.Notify) },
		gateway.NewBroadcaster,
		newPool,
		func(c *config.Config, st *store.Store, reg *repository.Registry, v vectorindex.Index, pool *tasks.Pool) *indexer.Indexer {
			return indexer.New(st, reg, v, pool, c.Indexer, c.Vector)
		},
		newMiner,
		func(st *store.Store) *planner.Planner { return planner.New(st, nil) },
		func(c *config.Config, st *store.Store, pool *tasks.Pool) *implementer.Implementer {
			return implementer.New(st, pool, c.Implementer)
		},
		prmanager.New,
		func(c *config.Config) (*agents.Catalog, error) { return agents.FromConfig(c.Reviewer) },
		func(c *config.Config, st *store.Store, reg *repository.Registry, cat *agents.Catalog) *reviewer.Reviewer {
			return reviewer.New(st, reg, cat, c.Reviewer.DefaultAgents)
		},
		func(p pipelineParams) *pipeline.Pipeline {
			return &pipeline.Pipeline{
				Store:       p.Store,
				Pool:        p.Pool,
				Indexer:     p.Indexer,
				Miner:       p.Miner,
				Planner:     p.Planner,
				Implementer: p.Implementer,
				PRs:         p.PRs,
				Reviewer:    p.Reviewer,
				Notifier:    p.Notifier,
			}
		},
	}
	for _, p := range providers {
		if err := container.Provide(p); err != nil {
			return err
		}
	}
	return nil
}

// newPool reports every finished task to the notifier and the SSE stream.
func newPool(c *config.Config, n *notify.Dispatcher, b *gateway.Broadcaster) *tasks.Pool {
	opts := tasks.OptionsFromConfig(c.Tasks)
	notifyTask := pipeline.TaskNotifier(n)
	opts.OnFinish = func(task models.Task) {
		notifyTask(task)
		b.TaskFinished(task)
	}
	return tasks.NewPool(tasks.NewTracker(), opts)
}

func newMiner(c *config.Config, st *store.Store) *miner.Miner {
	strategies := miner.DefaultStrategies()
	if c.Miner.Advisories {
		strategies = miner.WithAdvisories(strategies, osv.New(c.Miner.OSVURL, c.Miner.OSVTimeout))
	}
	return miner.New(st, strategies)
}

// loadApp reads the config and resolves the service graph.
func loadApp() (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	container := dig.New()
	if err := registerProviders(container, cfg); err != nil {
		return nil, fmt.Errorf("registering services: %w", err)
	}
	var a *app
	err = container.Invoke(func(p appParams) {
		a = &app{
			cfg:         p.Config,
			store:       p.Store,
			pool:        p.Pool,
			registry:    p.Registry,
			vectors:     p.Vectors,
			notifier:    p.Notifier,
			broadcaster: p.Broadcaster,
			pipeline:    p.Pipeline,
		}
	})
	if err != nil {
		return nil, fmt.Errorf("building services: %w", dig.RootCause(err))
	}
	return a, nil
}

// Close drains the task pool and closes the store.
func (a *app) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.pool.Shutdown(ctx); err != nil {
		slog.Warn("Task pool did not drain", "error", err)
	}
	if err := a.store.Close(); err != nil {
		slog.Warn("Closing store failed", "error", err)
	}
}
