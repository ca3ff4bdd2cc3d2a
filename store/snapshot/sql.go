package snapshot

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"task-api/api"
	"task-api/store"
)

// Both drivers reject uint64 values above MaxInt64, so ids are stored
// bit-cast to int64 and cast back on load.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS snapshot_meta (
    id INTEGER PRIMARY KEY,
    saved_at BIGINT NOT NULL
);`,
	`CREATE TABLE IF NOT EXISTS snapshot_tasks (
    id BIGINT PRIMARY KEY,
    name TEXT NOT NULL,
    completed BOOLEAN NOT NULL
);`,
	`CREATE TABLE IF NOT EXISTS snapshot_users (
    id BIGINT PRIMARY KEY,
    username TEXT NOT NULL,
    password TEXT NOT NULL
);`,
}

type dialect struct {
	driver string
	// bindvars returns the placeholder list for n arguments.
	bindvars func(n int) string
}

var (
	sqliteDialect = dialect{
		driver: "sqlite3",
		bindvars: func(n int) string {
			return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
		},
	}
	postgresDialect = dialect{
		driver: "postgres",
		bindvars: func(n int) string {
			vars := make([]string, n)
			for i := range vars {
				vars[i] = fmt.Sprintf("$%d", i+1)
			}
			return strings.Join(vars, ", ")
		},
	}
)

// SQL keeps the snapshot in three tables of a relational database. Every
// Save replaces their whole content inside one transaction.
type SQL struct {
	db      *sql.DB
	dialect dialect
}

// NewSQLite opens (or creates) the SQLite database at path.
func NewSQLite(ctx context.Context, path string) (*SQL, error) {
	return openSQL(ctx, sqliteDialect, path)
}

// NewPostgres connects to the PostgreSQL database described by dsn.
func NewPostgres(ctx context.Context, dsn string) (*SQL, error) {
	return openSQL(ctx, postgresDialect, dsn)
}

func openSQL(ctx context.Context, d dialect, source string) (*SQL, error) {
	db, err := sql.Open(d.driver, source)
	if err != nil {
		return nil, fmt.Errorf("could not open %s database: %w", d.driver, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("could not ping %s database: %w", d.driver, err)
	}
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("could not create snapshot tables: %w", err)
		}
	}
	return &SQL{db: db, dialect: d}, nil
}

func (b *SQL) Save(ctx context.Context, s *store.Store) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin snapshot tx: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"snapshot_tasks", "snapshot_users", "snapshot_meta"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	insertTask, err := tx.PrepareContext(ctx,
		"INSERT INTO snapshot_tasks (id, name, completed) VALUES ("+b.dialect.bindvars(3)+")")
	if err != nil {
		return fmt.Errorf("prepare task insert: %w", err)
	}
	defer insertTask.Close()
	for _, t := range s.GetAllTasks() {
		if _, err := insertTask.ExecContext(ctx, int64(t.ID), t.Name, t.Completed); err != nil {
			return fmt.Errorf("insert task %d: %w", t.ID, err)
		}
	}

	insertUser, err := tx.PrepareContext(ctx,
		"INSERT INTO snapshot_users (id, username, password) VALUES ("+b.dialect.bindvars(3)+")")
	if err != nil {
		return fmt.Errorf("prepare user insert: %w", err)
	}
	defer insertUser.Close()
	for _, u := range s.GetAllUsers() {
		if _, err := insertUser.ExecContext(ctx, int64(u.ID), u.Username, u.Password); err != nil {
			return fmt.Errorf("insert user %d: %w", u.ID, err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO snapshot_meta (id, saved_at) VALUES ("+b.dialect.bindvars(2)+")",
		1, time.Now().Unix()); err != nil {
		return fmt.Errorf("write snapshot marker: %w", err)
	}

	return tx.Commit()
}

func (b *SQL) Load(ctx context.Context) (*store.Store, error) {
	var saved int
	if err := b.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM snapshot_meta").Scan(&saved); err != nil {
		return nil, fmt.Errorf("read snapshot marker: %w", err)
	}
	if saved == 0 {
		return nil, fmt.Errorf("%s: %w", b.dialect.driver, store.ErrNoSnapshot)
	}

	s := store.New()

	rows, err := b.db.QueryContext(ctx, "SELECT id, name, completed FROM snapshot_tasks")
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			id int64
			t  api.Task
		)
		if err := rows.Scan(&id, &t.Name, &t.Completed); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		t.ID = uint64(id)
		s.InsertTask(t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	userRows, err := b.db.QueryContext(ctx, "SELECT id, username, password FROM snapshot_users")
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer userRows.Close()
	for userRows.Next() {
		var (
			id int64
			u  api.User
		)
		if err := userRows.Scan(&id, &u.Username, &u.Password); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		u.ID = uint64(id)
		s.InsertUser(u)
	}
	if err := userRows.Err(); err != nil {
		return nil, err
	}

	return s, nil
}

func (b *SQL) Close() error {
	return b.db.Close()
}
