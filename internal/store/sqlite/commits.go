package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/chorusdev/chorus/internal/chorus/types"
)

func createCommit(ctx context.Context, x execer, c *types.TaskCommit) error {
	_, err := x.ExecContext(ctx, `
		INSERT INTO task_commits (id, task_id, author, commit_hash, message, committed_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID, c.TaskID, c.Author, c.CommitHash, c.Message, c.CommittedAt.UTC().Format(sqliteTimeLayout),
	)
	if err != nil {
		return fmt.Errorf("sqlite: create commit: %w", err)
	}
	return nil
}

func listCommits(ctx context.Context, x execer, taskID string) ([]*types.TaskCommit, error) {
	rows, err := x.QueryContext(ctx, `
		SELECT id, task_id, author, commit_hash, message, committed_at
		FROM task_commits WHERE task_id = ? ORDER BY committed_at, id`, taskID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list commits: %w", err)
	}
	defer rows.Close()

	var out []*types.TaskCommit
	for rows.Next() {
		var c types.TaskCommit
		var committed string
		if err := rows.Scan(&c.ID, &c.TaskID, &c.Author, &c.CommitHash, &c.Message, &committed); err != nil {
			return nil, fmt.Errorf("sqlite: scan commit: %w", err)
		}
		c.CommittedAt, _ = time.Parse(sqliteTimeLayout, committed)
		out = append(out, &c)
	}
	return out, rows.Err()
}

func (d *DB) CreateCommit(ctx context.Context, c *types.TaskCommit) error { return createCommit(ctx, d.db, c) }
func (d *DB) ListCommits(ctx context.Context, taskID string) ([]*types.TaskCommit, error) {
	return listCommits(ctx, d.db, taskID)
}

func (t *txImpl) CreateCommit(ctx context.Context, c *types.TaskCommit) error {
	return createCommit(ctx, t.conn, c)
}
