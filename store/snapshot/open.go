// Package snapshot holds the store.Gateway implementations. Each one writes
// the whole store on every Save and replaces whatever was saved before.
package snapshot

import (
	"context"
	"fmt"
	"io"

	"github.com/hashicorp/go-hclog"

	"task-api/config"
	"task-api/store"
)

type Backend interface {
	store.Gateway
	io.Closer
}

// Open connects the backend selected by cfg.Backend.
func Open(ctx context.Context, cfg config.Snapshot, logger hclog.Logger) (Backend, error) {
	switch cfg.Backend {
	case config.BackendFile:
		return NewFile(cfg.Path), nil
	case config.BackendSQLite:
		return NewSQLite(ctx, cfg.Path)
	case config.BackendPostgres:
		return NewPostgres(ctx, cfg.DSN)
	case config.BackendRedis:
		return NewRedis(ctx, cfg.Redis, cfg.Key)
	case config.BackendBadger:
		return NewBadger(cfg.Path, logger)
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrUnknownBackend, cfg.Backend)
	}
}
