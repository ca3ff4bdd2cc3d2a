package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"

	"task-api/api"
)

const defaultSaveTimeout = 3 * time.Second

// Guarded serializes every access to a Store behind one mutex and writes a
// snapshot through its Gateway after each mutation.
//
// Save failures are logged and counted but never returned: the in-memory
// change has already happened and stays. A panic inside a critical section
// releases the lock on unwind, so the Store stays usable afterwards.
type Guarded struct {
	mu  sync.Mutex
	s   *Store
	gw  Gateway
	log hclog.Logger
	rec Recorder

	saveTimeout time.Duration
}

type Option func(*Guarded)

func WithRecorder(r Recorder) Option {
	return func(g *Guarded) {
		if r != nil {
			g.rec = r
		}
	}
}

func WithSaveTimeout(d time.Duration) Option {
	return func(g *Guarded) {
		if d > 0 {
			g.saveTimeout = d
		}
	}
}

// Open restores the last snapshot from gw. Any load failure, including a
// missing snapshot, yields an empty Store instead of an error.
func Open(ctx context.Context, gw Gateway, logger hclog.Logger, opts ...Option) *Guarded {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	g := &Guarded{
		gw:          gw,
		log:         logger,
		rec:         nopRecorder{},
		saveTimeout: defaultSaveTimeout,
	}
	for _, opt := range opts {
		opt(g)
	}

	s, err := gw.Load(ctx)
	switch {
	case errors.Is(err, ErrNoSnapshot):
		g.log.Info("no snapshot found, starting with an empty store")
		s = New()
	case err != nil:
		g.log.Warn("could not load snapshot, starting with an empty store", "error", err)
		s = New()
	default:
		g.log.Info("snapshot loaded", "tasks", s.TaskCount(), "users", s.UserCount())
	}
	g.s = s
	g.rec.StoreSize(s.TaskCount(), s.UserCount())
	return g
}

// save must be called with g.mu held.
func (g *Guarded) save(ctx context.Context) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.saveTimeout)
	defer cancel()

	if err := g.write(ctx); err != nil {
		g.log.Error("failed to save snapshot, memory and disk are out of sync", "error", err)
	}
}

// write saves the current state and records the outcome. g.mu must be held.
func (g *Guarded) write(ctx context.Context) error {
	start := time.Now()
	err := g.gw.Save(ctx, g.s)
	g.rec.SnapshotSaved(time.Since(start), err)
	g.rec.StoreSize(g.s.TaskCount(), g.s.UserCount())
	return err
}

func (g *Guarded) InsertTask(ctx context.Context, t api.Task) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rec.StoreOp("insert_task")
	g.s.InsertTask(t)
	g.save(ctx)
}

func (g *Guarded) UpdateTask(ctx context.Context, t api.Task) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rec.StoreOp("update_task")
	g.s.UpdateTask(t)
	g.save(ctx)
}

func (g *Guarded) DeleteTask(ctx context.Context, id uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rec.StoreOp("delete_task")
	g.s.DeleteTask(id)
	g.save(ctx)
}

func (g *Guarded) InsertUser(ctx context.Context, u api.User) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rec.StoreOp("insert_user")
	g.s.InsertUser(u)
	g.save(ctx)
}

func (g *Guarded) GetTask(id uint64) (api.Task, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rec.StoreOp("get_task")
	return g.s.GetTask(id)
}

func (g *Guarded) GetAllTasks() []api.Task {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rec.StoreOp("get_all_tasks")
	return g.s.GetAllTasks()
}

func (g *Guarded) FindUserByUsername(name string) (api.User, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rec.StoreOp("find_user")
	return g.s.FindUserByUsername(name)
}

// Flush writes a snapshot of the current state and returns the result,
// unlike the saves that follow mutations.
func (g *Guarded) Flush(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.write(ctx)
}
