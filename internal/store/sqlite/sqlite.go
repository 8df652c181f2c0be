// Package sqlite is Chorus's concrete Store implementation, backed by the
// pure-Go SQLite driver github.com/ncruces/go-sqlite3.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/chorusdev/chorus/internal/store"
)

// DB is the sqlite-backed Store.
type DB struct {
	db   *sql.DB
	path string
}

// Open resolves dsn (a bare path or a "file:" DSN), opens the database,
// applies pragmas for a single-writer-many-reader workload, and ensures
// the schema exists.
func Open(ctx context.Context, dsn string) (*DB, error) {
	path := dsn
	if !strings.HasPrefix(dsn, "file:") {
		path = "file:" + dsn
	}

	sqlDB, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", dsn, err)
	}

	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("sqlite: ping %s: %w", dsn, err)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := sqlDB.ExecContext(ctx, pragma); err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("sqlite: %s: %w", pragma, err)
		}
	}

	if _, err := sqlDB.ExecContext(ctx, schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("sqlite: apply schema: %w", err)
	}

	return &DB{db: sqlDB, path: dsn}, nil
}

// Close releases the underlying connection pool, checkpointing WAL first.
func (d *DB) Close() error {
	_, _ = d.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return d.db.Close()
}

// Path returns the DSN this store was opened with.
func (d *DB) Path() string {
	return d.path
}

// UnderlyingDB exposes the raw *sql.DB for callers (CLI diagnostics,
// health checks) that need it.
func (d *DB) UnderlyingDB() *sql.DB {
	return d.db
}

// RunInTransaction executes fn inside a BEGIN IMMEDIATE transaction,
// committing on a nil return and rolling back otherwise. BEGIN IMMEDIATE
// takes the write lock up front rather than on first write, which avoids
// the classic SQLite "deferred transaction upgraded mid-flight" deadlock
// under concurrent writers.
func (d *DB) RunInTransaction(ctx context.Context, fn func(tx store.Transaction) error) error {
	conn, err := d.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("sqlite: acquire connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
		return fmt.Errorf("sqlite: begin immediate: %w", err)
	}

	tx := &txImpl{conn: conn}
	if err := fn(tx); err != nil {
		if _, rbErr := conn.ExecContext(ctx, "ROLLBACK"); rbErr != nil {
			return fmt.Errorf("%w (rollback also failed: %v)", err, rbErr)
		}
		return err
	}

	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		return fmt.Errorf("sqlite: commit: %w", err)
	}
	return nil
}

// txImpl implements store.Transaction over a single *sql.Conn already
// inside BEGIN IMMEDIATE/COMMIT bounds.
type txImpl struct {
	conn *sql.Conn
}

func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "constraint failed: UNIQUE")
}
