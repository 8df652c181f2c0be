package sqlite

import (
	"context"
	"database/sql"
)

// execer is satisfied by both *sql.DB and *sql.Conn, letting the CRUD
// helpers below run identically whether called outside a transaction
// (from *DB, auto-committing per statement) or inside one (from the
// per-transaction *sql.Conn held by txImpl).
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const sqliteTimeLayout = "2006-01-02T15:04:05.999999999Z07:00"
