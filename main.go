package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/urfave/cli/v2"

	"task-api/config"
	"task-api/metrics"
	"task-api/store"
	"task-api/store/snapshot"
)

// Set via ldflags.
var version = "dev"

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "task-api",
		Usage:   "task list and user registry over HTTP, snapshotted after every change",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to a YAML configuration file",
				EnvVars: []string{"TASKAPI_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "addr",
				Usage: "listen address (default 127.0.0.1:8080)",
			},
			&cli.StringFlag{
				Name:  "backend",
				Usage: "snapshot backend: file, sqlite, postgres, redis, badger",
			},
			&cli.StringFlag{
				Name:  "path",
				Usage: "snapshot file, SQLite database or Badger directory",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "trace, debug, info, warn or error",
			},
		},
		Action: run,
	}
}

// flagOverrides maps the flags given on the command line to config keys.
func flagOverrides(c *cli.Context) map[string]any {
	keys := map[string]string{
		"addr":      "server.address",
		"backend":   "snapshot.backend",
		"path":      "snapshot.path",
		"log-level": "log.level",
	}
	overrides := make(map[string]any)
	for flag, key := range keys {
		if c.IsSet(flag) {
			overrides[key] = c.String(flag)
		}
	}
	return overrides
}

func newLogger(cfg config.Log) hclog.Logger {
	return hclog.New(&hclog.LoggerOptions{
		Name:       "task-api",
		Level:      hclog.LevelFromString(cfg.Level),
		JSONFormat: cfg.JSON,
		Output:     os.Stderr,
	})
}

func run(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"), flagOverrides(c))
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Log)

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backend, err := snapshot.Open(ctx, cfg.Snapshot, logger.Named("snapshot"))
	if err != nil {
		return fmt.Errorf("could not open %s snapshot backend: %w", cfg.Snapshot.Backend, err)
	}
	defer backend.Close()
	logger.Info("snapshot backend ready", "backend", cfg.Snapshot.Backend)

	m := metrics.New()
	db := store.Open(ctx, backend, logger.Named("store"), store.WithRecorder(m))

	srv := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           newRouter(&server{db: db, log: logger.Named("http")}, m),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Server listening", "addr", cfg.Server.Address)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", "error", err)
	}
	if err := db.Flush(shutdownCtx); err != nil {
		logger.Error("final snapshot failed", "error", err)
	}
	return nil
}
