package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// SQLiteStore is a SQLite-backed Store.
//
// It keeps the whole graph in a single-file database. Designed for:
//   - Development and testing with zero setup
//   - Single-process deployments needing durability
//   - Prototyping before migrating to MySQL or Postgres
//
// WAL mode is enabled so readers do not block behind the single writer.
type SQLiteStore struct {
	*sqlStore
	path string
}

// NewSQLiteStore opens (creating if necessary) a SQLite database at path
// and prepares the schema. Use ":memory:" for an in-memory database.
//
// Example:
//
//	st, err := store.NewSQLiteStore("./tasks.db", store.Options{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer st.Close()
func NewSQLiteStore(path string, opts Options) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite connection: %w", err)
	}

	// SQLite supports one writer at a time; a single pooled connection
	// also keeps in-memory databases coherent.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx := context.Background()
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply %s: %w", pragma, err)
		}
	}

	st := &SQLiteStore{
		sqlStore: &sqlStore{db: db, opts: opts},
		path:     path,
	}
	if err := st.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return st, nil
}

func (s *SQLiteStore) createTables(ctx context.Context) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS tasks (
			id TEXT PRIMARY KEY,
			status TEXT NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS task_deps (
			task_id TEXT NOT NULL,
			depends_on TEXT NOT NULL,
			PRIMARY KEY (task_id, depends_on)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_task_deps_depends_on ON task_deps(depends_on)`,
		`CREATE TABLE IF NOT EXISTS definitions (
			id TEXT PRIMARY KEY,
			definition TEXT NOT NULL,
			active INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			definition_id TEXT NOT NULL,
			status TEXT NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS run_steps (
			run_id TEXT NOT NULL,
			node_id TEXT NOT NULL,
			status TEXT NOT NULL,
			PRIMARY KEY (run_id, node_id)
		)`,
	}
	for _, stmt := range ddl {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
