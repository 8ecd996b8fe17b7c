package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/CosmoTheDev/repomaint-agent/internal/config"
	"github.com/CosmoTheDev/repomaint-agent/internal/gateway"
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	gatewayPort    int
	gatewayLogFile string
)

var gatewayCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Start the repomaint gateway daemon",
	Long: `Starts the repomaint gateway: a long-running daemon exposing every
pipeline stage over a local REST API (default: http://127.0.0.1:6090),
Prometheus metrics, cron-driven reindex schedules and a Server-Sent Events
stream of task results.

Example schedules (gateway.schedules in the config file):
  "0 2 * * *"   every night at 02:00
  "@every 6h"   every 6 hours
  "@daily"      once per day at midnight

Quick API reference:
  GET   /health                               liveness check
  GET   /metrics                              Prometheus metrics
  POST  /api/index                            start indexing {"url": "..."}
  POST  /api/mine                             mine {"repository_id": "..."}
  GET   /api/repositories/{id}/opportunities  stored opportunities
  POST  /api/plan                             plan {"opportunity_id": "..."}
  POST  /api/implement                        implement {"plan_id": "...", "dry_run": true}
  POST  /api/pr                               open a PR {"implementation_id": "..."}
  PATCH /api/pr/{id}/status                   {"status": "merged"}
  POST  /api/review                           {"pull_request_id": "...", "reviewers": [...]}
  POST  /api/maintain                         full pipeline {"url": "..."}
  GET   /api/tasks/{id}                       task status
  GET   /api/schedules                        configured schedules
  POST  /api/schedules/{name}/trigger         run a schedule now
  GET   /events                               SSE stream of live events`,
	RunE: runGateway,
}

func init() {
	gatewayCmd.Flags().IntVar(&gatewayPort, "port", 0,
		"HTTP port to listen on (default 6090, overrides config)")
	gatewayCmd.Flags().StringVar(&gatewayLogFile, "log-file", "",
		"rotating log file (default: log.file from config)")
}

func runGateway(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.Close()

	logPath, closeLog, err := setupGatewayFileLogger(a.cfg.Log)
	if err != nil {
		return fmt.Errorf("initialising gateway logger: %w", err)
	}
	defer closeLog()

	if gatewayPort > 0 {
		a.cfg.Gateway.Port = gatewayPort
	}
	if a.cfg.Gateway.Port == 0 {
		a.cfg.Gateway.Port = gateway.DefaultPort
	}

	if a.cfg.Tasks.Retention > 0 {
		go a.pool.Tracker().RunPruner(ctx, time.Minute, a.cfg.Tasks.Retention)
	}

	fmt.Printf("repomaint gateway starting\n")
	fmt.Printf("  Workers    : %d\n", a.cfg.Tasks.Workers)
	fmt.Printf("  API        : http://127.0.0.1:%d\n", a.cfg.Gateway.Port)
	fmt.Printf("  Events     : http://127.0.0.1:%d/events\n", a.cfg.Gateway.Port)
	fmt.Printf("  Schedules  : %d\n", len(a.cfg.Gateway.Schedules))
	fmt.Printf("  Notify     : %v\n", a.notifier.Channels())
	fmt.Printf("  Logs       : %s\n\n", logPath)
	fmt.Println("Press Ctrl+C to stop gracefully.")

	slog.Info("Gateway logger initialised", "file", logPath)
	gw := gateway.New(a.cfg, a.pipeline, a.broadcaster)
	return gw.Start(ctx)
}

// setupGatewayFileLogger tees slog output to stdout and a lumberjack-rotated file.
func setupGatewayFileLogger(cfg config.LogConfig) (string, func(), error) {
	path := cfg.File
	if gatewayLogFile != "" {
		path = gatewayLogFile
	}
	if path == "" {
		path = filepath.Join("logs", "gateway.log")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", nil, fmt.Errorf("creating log dir for %s: %w", path, err)
	}

	rotating := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(io.MultiWriter(os.Stdout, rotating), &slog.HandlerOptions{
		Level:     level,
		AddSource: verbose,
	})
	slog.SetDefault(slog.New(handler))
	slog.SetLogLoggerLevel(level)

	return path, func() { _ = rotating.Close() }, nil
}
