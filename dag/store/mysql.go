package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// MySQLStore is a MySQL/MariaDB-backed Store.
//
// Designed for production deployments requiring persistence, with
// connection pooling configured for a modest writer load.
//
// Note that the store's consistency boundary is a per-process mutex; a
// deployment with multiple writer processes must serialize dependency
// writes per graph itself (e.g. GET_LOCK or an application-level lease).
type MySQLStore struct {
	*sqlStore
}

// NewMySQLStore opens a MySQL-backed store using the given DSN
// (user:pass@tcp(host:3306)/dbname) and prepares the schema.
//
// Never hardcode credentials; read the DSN from the environment:
//
//	dsn := os.Getenv("MYSQL_DSN")
//	st, err := store.NewMySQLStore(dsn, store.Options{})
func NewMySQLStore(dsn string, opts Options) (*MySQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL connection: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping MySQL: %w", err)
	}

	st := &MySQLStore{sqlStore: &sqlStore{db: db, opts: opts}}
	if err := st.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return st, nil
}

func (s *MySQLStore) createTables(ctx context.Context) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS tasks (
			id VARCHAR(191) PRIMARY KEY,
			status VARCHAR(32) NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		) ENGINE=InnoDB`,
		`CREATE TABLE IF NOT EXISTS task_deps (
			task_id VARCHAR(191) NOT NULL,
			depends_on VARCHAR(191) NOT NULL,
			PRIMARY KEY (task_id, depends_on),
			INDEX idx_task_deps_depends_on (depends_on)
		) ENGINE=InnoDB`,
		`CREATE TABLE IF NOT EXISTS definitions (
			id VARCHAR(191) PRIMARY KEY,
			definition TEXT NOT NULL,
			active TINYINT NOT NULL DEFAULT 0
		) ENGINE=InnoDB`,
		`CREATE TABLE IF NOT EXISTS runs (
			id VARCHAR(191) PRIMARY KEY,
			definition_id VARCHAR(191) NOT NULL,
			status VARCHAR(32) NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		) ENGINE=InnoDB`,
		`CREATE TABLE IF NOT EXISTS run_steps (
			run_id VARCHAR(191) NOT NULL,
			node_id VARCHAR(191) NOT NULL,
			status VARCHAR(32) NOT NULL,
			PRIMARY KEY (run_id, node_id)
		) ENGINE=InnoDB`,
	}
	for _, stmt := range ddl {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
