package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/chorusdev/chorus/internal/chorus/types"
)

func getLock(ctx context.Context, x execer, taskID string) (*types.TaskLock, error) {
	row := x.QueryRowContext(ctx, `
		SELECT id, task_id, caller_label, lock_purpose, acquired_at, last_heartbeat_at, expires_at
		FROM task_locks WHERE task_id = ?`, taskID)

	var l types.TaskLock
	var heartbeat sql.NullString
	var acquired, expires string
	err := row.Scan(&l.ID, &l.TaskID, &l.CallerLabel, &l.Purpose, &acquired, &heartbeat, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: get lock: %w", err)
	}
	l.AcquiredAt, _ = time.Parse(sqliteTimeLayout, acquired)
	l.ExpiresAt, _ = time.Parse(sqliteTimeLayout, expires)
	if heartbeat.Valid {
		ts, err := time.Parse(sqliteTimeLayout, heartbeat.String)
		if err == nil {
			l.LastHeartbeatAt = &ts
		}
	}
	return &l, nil
}

// createLock inserts a new lock row. The unique index on task_id is the
// true arbiter of "at most one lock per task": a concurrent acquire that
// slips past the caller's own existence check still fails here with a
// unique constraint violation, which callers translate to LOCK_CONFLICT.
func createLock(ctx context.Context, x execer, l *types.TaskLock) error {
	_, err := x.ExecContext(ctx, `
		INSERT INTO task_locks (id, task_id, caller_label, lock_purpose, acquired_at, last_heartbeat_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		l.ID, l.TaskID, l.CallerLabel, string(l.Purpose),
		l.AcquiredAt.UTC().Format(sqliteTimeLayout), nullableTime(l.LastHeartbeatAt), l.ExpiresAt.UTC().Format(sqliteTimeLayout),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("lock already held for task %s: %w", l.TaskID, errLockExists)
		}
		return fmt.Errorf("sqlite: create lock: %w", err)
	}
	return nil
}

var errLockExists = errors.New("sqlite: lock exists")

// ErrLockExists classifies a create-lock unique-constraint collision so
// callers above this package can match it without depending on sqlite
// error string formats.
func ErrLockExists() error { return errLockExists }

func updateLock(ctx context.Context, x execer, l *types.TaskLock) error {
	res, err := x.ExecContext(ctx, `
		UPDATE task_locks SET caller_label = ?, lock_purpose = ?, last_heartbeat_at = ?, expires_at = ?
		WHERE task_id = ?`,
		l.CallerLabel, string(l.Purpose), nullableTime(l.LastHeartbeatAt), l.ExpiresAt.UTC().Format(sqliteTimeLayout),
		l.TaskID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: update lock: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("lock for task %s: %w", l.TaskID, sql.ErrNoRows)
	}
	return nil
}

func deleteLock(ctx context.Context, x execer, taskID string) error {
	_, err := x.ExecContext(ctx, `DELETE FROM task_locks WHERE task_id = ?`, taskID)
	if err != nil {
		return fmt.Errorf("sqlite: delete lock: %w", err)
	}
	return nil
}

func reapExpiredLocks(ctx context.Context, x execer, now time.Time) (int, error) {
	res, err := x.ExecContext(ctx, `DELETE FROM task_locks WHERE expires_at < ?`, now.UTC().Format(sqliteTimeLayout))
	if err != nil {
		return 0, fmt.Errorf("sqlite: reap expired locks: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func reapExpiredIdempotencyRecords(ctx context.Context, x execer, now time.Time) (int, error) {
	res, err := x.ExecContext(ctx, `DELETE FROM idempotency_records WHERE expires_at < ?`, now.UTC().Format(sqliteTimeLayout))
	if err != nil {
		return 0, fmt.Errorf("sqlite: reap expired idempotency records: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (d *DB) GetLock(ctx context.Context, taskID string) (*types.TaskLock, error) {
	return getLock(ctx, d.db, taskID)
}
func (d *DB) CreateLock(ctx context.Context, l *types.TaskLock) error { return createLock(ctx, d.db, l) }
func (d *DB) UpdateLock(ctx context.Context, l *types.TaskLock) error { return updateLock(ctx, d.db, l) }
func (d *DB) DeleteLock(ctx context.Context, taskID string) error    { return deleteLock(ctx, d.db, taskID) }
func (d *DB) ReapExpiredLocks(ctx context.Context, now time.Time) (int, error) {
	return reapExpiredLocks(ctx, d.db, now)
}
func (d *DB) ReapExpiredIdempotencyRecords(ctx context.Context, now time.Time) (int, error) {
	return reapExpiredIdempotencyRecords(ctx, d.db, now)
}

func (t *txImpl) GetLock(ctx context.Context, taskID string) (*types.TaskLock, error) {
	return getLock(ctx, t.conn, taskID)
}
func (t *txImpl) CreateLock(ctx context.Context, l *types.TaskLock) error { return createLock(ctx, t.conn, l) }
func (t *txImpl) UpdateLock(ctx context.Context, l *types.TaskLock) error { return updateLock(ctx, t.conn, l) }
func (t *txImpl) DeleteLock(ctx context.Context, taskID string) error    { return deleteLock(ctx, t.conn, taskID) }
