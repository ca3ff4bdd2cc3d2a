package snapshot

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"task-api/api"
	"task-api/config"
	"task-api/store"
)

func sampleStore() *store.Store {
	s := store.New()
	s.InsertTask(api.Task{ID: 1, Name: "buy milk"})
	s.InsertTask(api.Task{ID: 2, Name: "walk dog", Completed: true})
	s.InsertTask(api.Task{ID: ^uint64(0), Name: "largest id"})
	s.InsertUser(api.User{ID: 1, Username: "alice", Password: "p1"})
	s.InsertUser(api.User{ID: 2, Username: "alice", Password: "p2"})
	return s
}

func assertSameStore(t *testing.T, want, got *store.Store) {
	t.Helper()
	if want.TaskCount() != got.TaskCount() || want.UserCount() != got.UserCount() {
		t.Fatalf("expected %d tasks / %d users, got %d / %d",
			want.TaskCount(), want.UserCount(), got.TaskCount(), got.UserCount())
	}
	for _, task := range want.GetAllTasks() {
		g, ok := got.GetTask(task.ID)
		if !ok || g != task {
			t.Errorf("task %d: expected %+v, got %+v (found=%v)", task.ID, task, g, ok)
		}
	}
	users := make(map[uint64]api.User)
	for _, u := range got.GetAllUsers() {
		users[u.ID] = u
	}
	for _, u := range want.GetAllUsers() {
		if users[u.ID] != u {
			t.Errorf("user %d: expected %+v, got %+v", u.ID, u, users[u.ID])
		}
	}
}

// exerciseBackend runs the shared contract every backend must meet.
func exerciseBackend(t *testing.T, b Backend) {
	t.Helper()
	ctx := context.Background()

	t.Run("load before save", func(t *testing.T) {
		_, err := b.Load(ctx)
		if !errors.Is(err, store.ErrNoSnapshot) {
			t.Fatalf("expected ErrNoSnapshot, got %v", err)
		}
	})

	t.Run("round trip", func(t *testing.T) {
		want := sampleStore()
		if err := b.Save(ctx, want); err != nil {
			t.Fatalf("save: %v", err)
		}
		got, err := b.Load(ctx)
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		assertSameStore(t, want, got)
	})

	t.Run("save replaces previous snapshot", func(t *testing.T) {
		smaller := store.New()
		smaller.InsertTask(api.Task{ID: 9, Name: "only one"})
		if err := b.Save(ctx, smaller); err != nil {
			t.Fatalf("save: %v", err)
		}
		got, err := b.Load(ctx)
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		assertSameStore(t, smaller, got)
	})

	t.Run("empty store is a snapshot", func(t *testing.T) {
		if err := b.Save(ctx, store.New()); err != nil {
			t.Fatalf("save: %v", err)
		}
		got, err := b.Load(ctx)
		if err != nil {
			t.Fatalf("expected an empty snapshot, got error %v", err)
		}
		if got.TaskCount() != 0 || got.UserCount() != 0 {
			t.Errorf("expected empty store, got %d tasks / %d users", got.TaskCount(), got.UserCount())
		}
	})
}

func TestFileBackend(t *testing.T) {
	b := NewFile(filepath.Join(t.TempDir(), "database.json"))
	defer b.Close()
	exerciseBackend(t, b)
}

func TestFileBackendCorruptSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "database.json")
	if err := os.WriteFile(path, []byte(`{"tasks": [`), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := NewFile(path).Load(context.Background())
	if err == nil || errors.Is(err, store.ErrNoSnapshot) {
		t.Fatalf("expected a decode error distinct from ErrNoSnapshot, got %v", err)
	}
}

func TestFileBackendReadsStringKeyedLayout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "database.json")
	doc := `{"tasks":{"1":{"id":1,"name":"buy milk","completed":false}},"users":{"4":{"id":4,"username":"alice","password":"p1"}}}`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	s, err := NewFile(path).Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got, _ := s.GetTask(1); got.Name != "buy milk" {
		t.Errorf("unexpected task %+v", got)
	}
	if got, _ := s.FindUserByUsername("alice"); got.ID != 4 {
		t.Errorf("unexpected user %+v", got)
	}
}

func TestFileBackendLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	b := NewFile(filepath.Join(dir, "database.json"))
	for i := 0; i < 3; i++ {
		if err := b.Save(context.Background(), sampleStore()); err != nil {
			t.Fatalf("save: %v", err)
		}
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "database.json" {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("expected only database.json, found %v", names)
	}
}

func TestFileBackendOverwritesInPlace(t *testing.T) {
	path := filepath.Join(t.TempDir(), "database.json")
	b := NewFile(path)
	if err := b.Save(context.Background(), sampleStore()); err != nil {
		t.Fatalf("save: %v", err)
	}
	smaller := store.New()
	smaller.InsertTask(api.Task{ID: 9, Name: "only one"})
	if err := b.Save(context.Background(), smaller); err != nil {
		t.Fatalf("save: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o644 {
		t.Errorf("expected mode 0644, got %v", info.Mode().Perm())
	}
	got, err := b.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	assertSameStore(t, smaller, got)
}

func TestFileBackendUnwritableDir(t *testing.T) {
	b := NewFile(filepath.Join(t.TempDir(), "missing", "database.json"))
	if err := b.Save(context.Background(), sampleStore()); err == nil {
		t.Error("expected save into a missing directory to fail")
	}
}

func TestSQLiteBackend(t *testing.T) {
	b, err := NewSQLite(context.Background(), filepath.Join(t.TempDir(), "database.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer b.Close()
	exerciseBackend(t, b)
}

func TestPostgresBackend(t *testing.T) {
	dsn := os.Getenv("TEST_DB_SOURCE")
	if dsn == "" {
		t.Skip("TEST_DB_SOURCE is not set")
	}
	ctx := context.Background()
	b, err := NewPostgres(ctx, dsn)
	if err != nil {
		t.Fatalf("open postgres: %v", err)
	}
	defer b.Close()
	for _, table := range []string{"snapshot_tasks", "snapshot_users", "snapshot_meta"} {
		if _, err := b.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			t.Fatalf("clear %s: %v", table, err)
		}
	}
	exerciseBackend(t, b)
}

func TestRedisBackend(t *testing.T) {
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR is not set")
	}
	ctx := context.Background()
	b, err := NewRedis(ctx, addr, "task-api:test-snapshot")
	if err != nil {
		t.Fatalf("open redis: %v", err)
	}
	defer b.Close()
	if err := b.rdb.Del(ctx, b.key).Err(); err != nil {
		t.Fatalf("clear key: %v", err)
	}
	exerciseBackend(t, b)
}

func TestBadgerBackend(t *testing.T) {
	b, err := NewBadger(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("open badger: %v", err)
	}
	defer b.Close()
	exerciseBackend(t, b)
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()
	testCases := []struct {
		name    string
		cfg     config.Snapshot
		wantErr bool
	}{
		{name: "file", cfg: config.Snapshot{Backend: config.BackendFile, Path: filepath.Join(dir, "a.json")}},
		{name: "sqlite", cfg: config.Snapshot{Backend: config.BackendSQLite, Path: filepath.Join(dir, "a.db")}},
		{name: "badger", cfg: config.Snapshot{Backend: config.BackendBadger, Path: filepath.Join(dir, "badger")}},
		{name: "unknown", cfg: config.Snapshot{Backend: "tape"}, wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			b, err := Open(context.Background(), tc.cfg, nil)
			if tc.wantErr {
				if !errors.Is(err, config.ErrUnknownBackend) {
					t.Fatalf("expected ErrUnknownBackend, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("open: %v", err)
			}
			defer b.Close()
			if err := b.Save(context.Background(), sampleStore()); err != nil {
				t.Errorf("save: %v", err)
			}
		})
	}
}
