package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/CosmoTheDev/repomaint-agent/internal/config"
	"github.com/CosmoTheDev/repomaint-agent/internal/pipeline"
	"github.com/CosmoTheDev/repomaint-agent/models"
)

// DefaultPort is used when gateway.port is unset.
const DefaultPort = 6090

// Gateway is the long-running daemon that combines:
//   - the pipeline stage entry points over REST
//   - a cron Scheduler (reindexing repositories on schedule)
//   - an SSE stream of task and schedule events
type Gateway struct {
	cfg         *config.Config
	pipeline    *pipeline.Pipeline
	scheduler   *Scheduler
	broadcaster *Broadcaster
	startedAt   time.Time
}

// New creates a Gateway. Pass the broadcaster whose TaskFinished hook the
// task pool reports to, or nil for a private one. Call Start to serve.
func New(cfg *config.Config, p *pipeline.Pipeline, b *Broadcaster) *Gateway {
	if b == nil {
		b = NewBroadcaster()
	}
	gw := &Gateway{
		cfg:         cfg,
		pipeline:    p,
		broadcaster: b,
		startedAt:   time.Now(),
	}
	gw.scheduler = newScheduler(p, b.send)
	return gw
}

// Handler returns the HTTP routes.
func (gw *Gateway) Handler() http.Handler { return buildHandler(gw) }

// Scheduler exposes the schedule registry.
func (gw *Gateway) Scheduler() *Scheduler { return gw.scheduler }

// Start runs the gateway until ctx is cancelled. It:
//  1. Loads and starts the cron scheduler
//  2. Starts a stats ticker that broadcasts Status every 5s via SSE
//  3. Binds the HTTP server (blocks until shutdown)
func (gw *Gateway) Start(ctx context.Context) error {
	port := gw.cfg.Gateway.Port
	if port == 0 {
		port = DefaultPort
	}
	addr := fmt.Sprintf("127.0.0.1:%d", port)

	if err := gw.scheduler.Load(gw.cfg.Gateway.Schedules); err != nil {
		slog.Warn("Some schedules were not registered", "error", err)
	}
	gw.scheduler.Start()

	go gw.runStatsTicker(ctx)

	srv := &http.Server{
		Addr:              addr,
		Handler:           gw.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		gw.scheduler.Stop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("Gateway listening", "addr", "http://"+addr)
	gw.broadcaster.send(EventGatewayStarted, GatewayStartedEvent{Addr: "http://" + addr})

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

func (gw *Gateway) runStatsTicker(ctx context.Context) {
	t := time.NewTicker(5 * time.Second)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			gw.broadcaster.send(EventStatusUpdate, gw.currentStatus())
		}
	}
}

func (gw *Gateway) currentStatus() Status {
	counts := make(map[models.TaskStatus]int)
	for _, task := range gw.pipeline.ListTasks() {
		counts[task.Status]++
	}
	return Status{
		Tasks:         counts,
		Schedules:     len(gw.scheduler.List()),
		UptimeSeconds: int64(time.Since(gw.startedAt).Seconds()),
	}
}
