package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/chorusdev/chorus/internal/chorus/types"
)

func nullableString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func nullableInt(i *int) any {
	if i == nil {
		return nil
	}
	return *i
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(sqliteTimeLayout)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func insertTask(ctx context.Context, x execer, t *types.Task) error {
	var breakdown any
	if t.PointsBreakdown != nil {
		b, err := json.Marshal(t.PointsBreakdown)
		if err != nil {
			return fmt.Errorf("sqlite: marshal points_breakdown: %w", err)
		}
		breakdown = string(b)
	}

	_, err := x.ExecContext(ctx, `
		INSERT INTO tasks (
			id, project_id, parent_task_id, name, description, context, task_type, status,
			points, points_breakdown, sizing_confidence, needs_refinement, refinement_notes,
			context_captured_at, position, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.ProjectID, nullableString(t.ParentTaskID), t.Name, t.Description, t.Context,
		string(t.TaskType), string(t.Status), nullableInt(t.Points), breakdown,
		nullableInt(t.SizingConfidence), boolToInt(t.NeedsRefinement), t.RefinementNotes,
		nullableTime(t.ContextCapturedAt), t.Position,
		t.CreatedAt.UTC().Format(sqliteTimeLayout), t.UpdatedAt.UTC().Format(sqliteTimeLayout),
	)
	if err != nil {
		return fmt.Errorf("sqlite: insert task: %w", err)
	}
	return nil
}

func updateTask(ctx context.Context, x execer, t *types.Task) error {
	var breakdown any
	if t.PointsBreakdown != nil {
		b, err := json.Marshal(t.PointsBreakdown)
		if err != nil {
			return fmt.Errorf("sqlite: marshal points_breakdown: %w", err)
		}
		breakdown = string(b)
	}
	t.UpdatedAt = time.Now().UTC()

	res, err := x.ExecContext(ctx, `
		UPDATE tasks SET
			name = ?, description = ?, context = ?, task_type = ?, status = ?,
			points = ?, points_breakdown = ?, sizing_confidence = ?, needs_refinement = ?,
			refinement_notes = ?, context_captured_at = ?, position = ?, updated_at = ?
		WHERE id = ?`,
		t.Name, t.Description, t.Context, string(t.TaskType), string(t.Status),
		nullableInt(t.Points), breakdown, nullableInt(t.SizingConfidence), boolToInt(t.NeedsRefinement),
		t.RefinementNotes, nullableTime(t.ContextCapturedAt), t.Position, t.UpdatedAt.Format(sqliteTimeLayout),
		t.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: update task: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("task %s: %w", t.ID, sql.ErrNoRows)
	}
	return nil
}

func deleteTask(ctx context.Context, x execer, id string) error {
	_, err := x.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: delete task: %w", err)
	}
	return nil
}

const taskColumns = `id, project_id, parent_task_id, name, description, context, task_type, status,
	points, points_breakdown, sizing_confidence, needs_refinement, refinement_notes,
	context_captured_at, position, created_at, updated_at`

func scanTask(scan func(dest ...any) error) (*types.Task, error) {
	var t types.Task
	var parentID, breakdown, refinementNotes, capturedAt sql.NullString
	var points, sizingConfidence sql.NullInt64
	var needsRefinement int
	var created, updated string

	if err := scan(
		&t.ID, &t.ProjectID, &parentID, &t.Name, &t.Description, &t.Context,
		&t.TaskType, &t.Status, &points, &breakdown, &sizingConfidence, &needsRefinement,
		&refinementNotes, &capturedAt, &t.Position, &created, &updated,
	); err != nil {
		return nil, err
	}

	if parentID.Valid {
		v := parentID.String
		t.ParentTaskID = &v
	}
	if points.Valid {
		v := int(points.Int64)
		t.Points = &v
	}
	if sizingConfidence.Valid {
		v := int(sizingConfidence.Int64)
		t.SizingConfidence = &v
	}
	if breakdown.Valid && breakdown.String != "" {
		var m map[string]any
		if err := json.Unmarshal([]byte(breakdown.String), &m); err == nil {
			t.PointsBreakdown = m
		}
	}
	t.RefinementNotes = refinementNotes.String
	t.NeedsRefinement = needsRefinement != 0
	if capturedAt.Valid {
		ts, err := time.Parse(sqliteTimeLayout, capturedAt.String)
		if err == nil {
			t.ContextCapturedAt = &ts
		}
	}
	t.CreatedAt, _ = time.Parse(sqliteTimeLayout, created)
	t.UpdatedAt, _ = time.Parse(sqliteTimeLayout, updated)
	return &t, nil
}

func getTask(ctx context.Context, x execer, id string) (*types.Task, error) {
	row := x.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	task, err := scanTask(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("task %s: %w", id, sql.ErrNoRows)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: get task: %w", err)
	}
	return task, nil
}

// maxChildPosition returns the current maximum position among direct
// children of parentTaskID (or top-level tasks, if nil) within projectID,
// or -1 if there are none. Callers add 1 for "next free position."
func maxChildPosition(ctx context.Context, x execer, projectID string, parentTaskID *string) (int, error) {
	var row *sql.Row
	if parentTaskID == nil {
		row = x.QueryRowContext(ctx, `
			SELECT COALESCE(MAX(position), -1) FROM tasks
			WHERE project_id = ? AND parent_task_id IS NULL`, projectID)
	} else {
		row = x.QueryRowContext(ctx, `
			SELECT COALESCE(MAX(position), -1) FROM tasks
			WHERE project_id = ? AND parent_task_id = ?`, projectID, *parentTaskID)
	}
	var max int
	if err := row.Scan(&max); err != nil {
		return 0, fmt.Errorf("sqlite: max child position: %w", err)
	}
	return max, nil
}

func shiftSiblingPositions(ctx context.Context, x execer, projectID string, parentTaskID *string, fromPosition int, excludeTaskID string) error {
	var err error
	if parentTaskID == nil {
		_, err = x.ExecContext(ctx, `
			UPDATE tasks SET position = position + 1
			WHERE project_id = ? AND parent_task_id IS NULL AND position >= ? AND id != ?`,
			projectID, fromPosition, excludeTaskID)
	} else {
		_, err = x.ExecContext(ctx, `
			UPDATE tasks SET position = position + 1
			WHERE project_id = ? AND parent_task_id = ? AND position >= ? AND id != ?`,
			projectID, *parentTaskID, fromPosition, excludeTaskID)
	}
	if err != nil {
		return fmt.Errorf("sqlite: shift sibling positions: %w", err)
	}
	return nil
}

// nextChildPosition atomically allocates the next free sibling position
// for scopeKey (breakdown passes "<project_id>:<parent_task_id>"), the
// same INSERT ... ON CONFLICT DO UPDATE ... RETURNING idiom the teacher
// uses to hand out the next hierarchical child number
// (internal/storage/sqlite/hash_ids.go's getNextChildNumber), adapted here
// from child IDs to sibling positions. Unlike maxChildPosition, this never
// returns the same value twice for the same scope even if called
// repeatedly within one transaction.
func nextChildPosition(ctx context.Context, x execer, scopeKey string, seed int) (int, error) {
	row := x.QueryRowContext(ctx, `
		INSERT INTO child_position_counters (scope_key, next_position) VALUES (?, ?)
		ON CONFLICT(scope_key) DO UPDATE SET next_position = MAX(next_position + 1, ?)
		RETURNING next_position`, scopeKey, seed, seed)
	var pos int
	if err := row.Scan(&pos); err != nil {
		return 0, fmt.Errorf("sqlite: next child position: %w", err)
	}
	return pos, nil
}

func (d *DB) CreateTask(ctx context.Context, t *types.Task) error { return insertTask(ctx, d.db, t) }
func (d *DB) UpdateTask(ctx context.Context, t *types.Task) error { return updateTask(ctx, d.db, t) }
func (d *DB) DeleteTask(ctx context.Context, id string) error     { return deleteTask(ctx, d.db, id) }
func (d *DB) GetTask(ctx context.Context, id string) (*types.Task, error) {
	return getTask(ctx, d.db, id)
}
func (d *DB) MaxChildPosition(ctx context.Context, projectID string, parentTaskID *string) (int, error) {
	return maxChildPosition(ctx, d.db, projectID, parentTaskID)
}
func (d *DB) NextChildPosition(ctx context.Context, scopeKey string, seed int) (int, error) {
	return nextChildPosition(ctx, d.db, scopeKey, seed)
}
func (d *DB) ShiftSiblingPositions(ctx context.Context, projectID string, parentTaskID *string, fromPosition int, excludeTaskID string) error {
	return shiftSiblingPositions(ctx, d.db, projectID, parentTaskID, fromPosition, excludeTaskID)
}

func (t *txImpl) CreateTask(ctx context.Context, task *types.Task) error { return insertTask(ctx, t.conn, task) }
func (t *txImpl) UpdateTask(ctx context.Context, task *types.Task) error { return updateTask(ctx, t.conn, task) }
func (t *txImpl) DeleteTask(ctx context.Context, id string) error        { return deleteTask(ctx, t.conn, id) }
func (t *txImpl) GetTask(ctx context.Context, id string) (*types.Task, error) {
	return getTask(ctx, t.conn, id)
}
func (t *txImpl) MaxChildPosition(ctx context.Context, projectID string, parentTaskID *string) (int, error) {
	return maxChildPosition(ctx, t.conn, projectID, parentTaskID)
}
func (t *txImpl) NextChildPosition(ctx context.Context, scopeKey string, seed int) (int, error) {
	return nextChildPosition(ctx, t.conn, scopeKey, seed)
}
func (t *txImpl) ShiftSiblingPositions(ctx context.Context, projectID string, parentTaskID *string, fromPosition int, excludeTaskID string) error {
	return shiftSiblingPositions(ctx, t.conn, projectID, parentTaskID, fromPosition, excludeTaskID)
}
