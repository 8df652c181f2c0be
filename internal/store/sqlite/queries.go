package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/chorusdev/chorus/internal/chorus/types"
	"github.com/chorusdev/chorus/internal/store"
)

// descendantIDs returns rootID and every descendant's id via a recursive
// CTE, mirroring the teacher's WITH RECURSIVE graph traversal
// (internal/queries/graph.go) adapted from a named-entity dependency graph
// to the task parent/child hierarchy. maxDepth < 0 means unbounded.
func descendantIDs(ctx context.Context, x execer, rootID string, maxDepth int) ([]string, error) {
	query := `
	WITH RECURSIVE subtree(id, depth) AS (
		SELECT id, 0 FROM tasks WHERE id = ?
		UNION ALL
		SELECT t.id, s.depth + 1
		FROM tasks t
		JOIN subtree s ON t.parent_task_id = s.id
		WHERE (? < 0 OR s.depth + 1 <= ?)
	)
	SELECT id FROM subtree`

	rows, err := x.QueryContext(ctx, query, rootID, maxDepth, maxDepth)
	if err != nil {
		return nil, fmt.Errorf("sqlite: descendant ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("sqlite: scan descendant id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func loadTasksByID(ctx context.Context, x execer, ids []string) (map[string]*types.Task, error) {
	out := make(map[string]*types.Task, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	placeholders := make([]byte, 0, len(ids)*2)
	args := make([]any, 0, len(ids))
	for i, id := range ids {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
		args = append(args, id)
	}

	rows, err := x.QueryContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id IN (`+string(placeholders)+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: load tasks by id: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		t, err := scanTask(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scan task: %w", err)
		}
		out[t.ID] = t
	}
	return out, rows.Err()
}

func loadLocksByTaskID(ctx context.Context, x execer, ids []string) (map[string]*types.TaskLock, error) {
	out := make(map[string]*types.TaskLock, len(ids))
	for _, id := range ids {
		l, err := getLock(ctx, x, id)
		if err != nil {
			return nil, err
		}
		if l != nil {
			out[id] = l
		}
	}
	return out, nil
}

func buildTree(rootID string, tasksByID map[string]*types.Task, childrenOf map[string][]string, locksByTask map[string]*types.TaskLock) *types.TaskNode {
	task, ok := tasksByID[rootID]
	if !ok {
		return nil
	}
	node := &types.TaskNode{Task: *task, Lock: locksByTask[rootID]}
	for _, childID := range childrenOf[rootID] {
		if child := buildTree(childID, tasksByID, childrenOf, locksByTask); child != nil {
			node.Children = append(node.Children, child)
		}
	}
	return node
}

func loadSubtree(ctx context.Context, x execer, rootID string, maxDepth int) (*types.TaskNode, error) {
	ids, err := descendantIDs(ctx, x, rootID, maxDepth)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("task %s: %w", rootID, sql.ErrNoRows)
	}

	tasksByID, err := loadTasksByID(ctx, x, ids)
	if err != nil {
		return nil, err
	}
	if _, ok := tasksByID[rootID]; !ok {
		return nil, fmt.Errorf("task %s: %w", rootID, sql.ErrNoRows)
	}

	childrenOf := make(map[string][]string)
	for _, id := range ids {
		t := tasksByID[id]
		if t.ParentTaskID != nil {
			childrenOf[*t.ParentTaskID] = append(childrenOf[*t.ParentTaskID], id)
		}
	}

	locksByTask, err := loadLocksByTaskID(ctx, x, ids)
	if err != nil {
		return nil, err
	}

	return buildTree(rootID, tasksByID, childrenOf, locksByTask), nil
}

func loadAncestry(ctx context.Context, x execer, taskID string) ([]*types.Task, error) {
	var chain []*types.Task
	currentID := &taskID
	for currentID != nil {
		t, err := getTask(ctx, x, *currentID)
		if err != nil {
			if len(chain) == 0 {
				return nil, err
			}
			break
		}
		chain = append(chain, t)
		currentID = t.ParentTaskID
	}
	// reverse: root first, target last
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, nil
}

// listProjectTasks loads every task in projectID matching the filter's
// top-level SQL-expressible conditions (status, task type), then, for
// each match, eagerly loads a two-level-deep child subtree plus locks -
// the same bounded eager load the discovery queries and task reads use
// everywhere else, so callers can compute readiness/effective points
// without a second round trip. The filter's ExcludeLocked, OnlyLeaves and
// point-bound fields are not applied here; discovery applies its own
// lock, leaf and readiness conditions from its AvailableFilter once nodes
// are built.
func listProjectTasks(ctx context.Context, x execer, filter store.TaskFilter) ([]*types.TaskNode, error) {
	query := `SELECT id FROM tasks WHERE 1=1`
	var args []any
	if filter.ProjectID != "" {
		query += ` AND project_id = ?`
		args = append(args, filter.ProjectID)
	}
	if filter.Status != nil {
		query += ` AND status = ?`
		args = append(args, string(*filter.Status))
	}
	if filter.TaskType != nil {
		query += ` AND task_type = ?`
		args = append(args, string(*filter.TaskType))
	}
	if filter.NeedsRefinement != nil {
		query += ` AND needs_refinement = ?`
		args = append(args, boolToInt(*filter.NeedsRefinement))
	}

	rows, err := x.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list project tasks: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("sqlite: scan project task id: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	nodes := make([]*types.TaskNode, 0, len(ids))
	for _, id := range ids {
		n, err := loadSubtree(ctx, x, id, 2)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	return nodes, nil
}

func (d *DB) LoadSubtree(ctx context.Context, taskID string, maxDepth int) (*types.TaskNode, error) {
	return loadSubtree(ctx, d.db, taskID, maxDepth)
}
func (d *DB) LoadAncestry(ctx context.Context, taskID string) ([]*types.Task, error) {
	return loadAncestry(ctx, d.db, taskID)
}
func (d *DB) ListProjectTasks(ctx context.Context, projectID string, filter store.TaskFilter) ([]*types.TaskNode, error) {
	filter.ProjectID = projectID
	return listProjectTasks(ctx, d.db, filter)
}

// ListTasks runs the same query as ListProjectTasks without forcing a
// project scope, used by the available-for-pickup discovery view, which
// spans every project when filter.ProjectID is left empty.
func (d *DB) ListTasks(ctx context.Context, filter store.TaskFilter) ([]*types.TaskNode, error) {
	return listProjectTasks(ctx, d.db, filter)
}

func (t *txImpl) LoadSubtree(ctx context.Context, taskID string, maxDepth int) (*types.TaskNode, error) {
	return loadSubtree(ctx, t.conn, taskID, maxDepth)
}
func (t *txImpl) LoadAncestry(ctx context.Context, taskID string) ([]*types.Task, error) {
	return loadAncestry(ctx, t.conn, taskID)
}
