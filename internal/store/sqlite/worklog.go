package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/chorusdev/chorus/internal/chorus/types"
)

func appendWorkLog(ctx context.Context, x execer, e *types.WorkLogEntry) error {
	_, err := x.ExecContext(ctx, `
		INSERT INTO work_log_entries (id, task_id, author, operation, content, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, e.TaskID, e.Author, string(e.Operation), e.Content, e.CreatedAt.UTC().Format(sqliteTimeLayout),
	)
	if err != nil {
		return fmt.Errorf("sqlite: append work log entry: %w", err)
	}
	return nil
}

func listWorkLog(ctx context.Context, x execer, taskID string) ([]*types.WorkLogEntry, error) {
	rows, err := x.QueryContext(ctx, `
		SELECT id, task_id, author, operation, content, created_at
		FROM work_log_entries WHERE task_id = ? ORDER BY created_at, id`, taskID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list work log: %w", err)
	}
	defer rows.Close()

	var out []*types.WorkLogEntry
	for rows.Next() {
		var e types.WorkLogEntry
		var created string
		if err := rows.Scan(&e.ID, &e.TaskID, &e.Author, &e.Operation, &e.Content, &created); err != nil {
			return nil, fmt.Errorf("sqlite: scan work log entry: %w", err)
		}
		e.CreatedAt, _ = time.Parse(sqliteTimeLayout, created)
		out = append(out, &e)
	}
	return out, rows.Err()
}

func (d *DB) AppendWorkLog(ctx context.Context, e *types.WorkLogEntry) error { return appendWorkLog(ctx, d.db, e) }
func (d *DB) ListWorkLog(ctx context.Context, taskID string) ([]*types.WorkLogEntry, error) {
	return listWorkLog(ctx, d.db, taskID)
}

func (t *txImpl) AppendWorkLog(ctx context.Context, e *types.WorkLogEntry) error {
	return appendWorkLog(ctx, t.conn, e)
}
