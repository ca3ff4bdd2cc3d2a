package store

import (
	"context"
	"errors"
	"time"
)

// ErrNoSnapshot is returned by Gateway.Load when nothing has been saved yet.
var ErrNoSnapshot = errors.New("no snapshot")

// Gateway persists the whole Store. Save replaces the previous snapshot.
type Gateway interface {
	Save(ctx context.Context, s *Store) error
	Load(ctx context.Context) (*Store, error)
}

// Recorder receives store activity for metrics.
type Recorder interface {
	StoreOp(op string)
	SnapshotSaved(elapsed time.Duration, err error)
	StoreSize(tasks, users int)
}

type nopRecorder struct{}

func (nopRecorder) StoreOp(string)                     {}
func (nopRecorder) SnapshotSaved(time.Duration, error) {}
func (nopRecorder) StoreSize(int, int)                 {}
