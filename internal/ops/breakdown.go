package ops

import (
	"context"
	"fmt"

	"github.com/chorusdev/chorus/internal/chorus/errs"
	"github.com/chorusdev/chorus/internal/chorus/idgen"
	"github.com/chorusdev/chorus/internal/chorus/types"
	"github.com/chorusdev/chorus/internal/store"
)

func (p BreakdownPayload) validate() error {
	if p.WorkLogContent == "" {
		return errs.Validation("work_log_content is required")
	}
	if len(p.Subtasks) < 1 {
		return errs.Validation("at least one subtask is required")
	}
	for i, s := range p.Subtasks {
		if s.Name == "" {
			return errs.Validation("subtask %d: name is required", i)
		}
		if !types.TaskType(s.TaskType).IsValid() {
			return errs.Validation("subtask %d: invalid task_type %q", i, s.TaskType)
		}
	}
	return nil
}

func childScopeKey(projectID, parentTaskID string) string {
	return projectID + ":" + parentTaskID
}

// Breakdown runs the breakdown atomic operation: optionally overwrites the
// parent's description, then inserts each subtask either at its explicit
// position or at the next free sibling slot, and appends a breakdown work
// log entry. The parent's own points are left untouched.
func (m *Manager) Breakdown(ctx context.Context, taskID string, payload BreakdownPayload, idempotencyKey *string) (*Result, error) {
	if err := payload.validate(); err != nil {
		return nil, err
	}

	return m.withIdempotency(ctx, "breakdown", idempotencyKey, func() (*types.EnrichedTask, error) {
		var enriched *types.EnrichedTask
		err := m.store.RunInTransaction(ctx, func(tx store.Transaction) error {
			parent, err := tx.GetTask(ctx, taskID)
			if err != nil {
				return errs.NotFound("task %s not found", taskID)
			}

			if payload.ParentDescriptionUpdate != "" {
				parent.Description = payload.ParentDescriptionUpdate
				if err := tx.UpdateTask(ctx, parent); err != nil {
					return err
				}
			}

			base, err := tx.MaxChildPosition(ctx, parent.ProjectID, &parent.ID)
			if err != nil {
				return err
			}
			nextFree := base + 1
			scopeKey := childScopeKey(parent.ProjectID, parent.ID)

			for i, sub := range payload.Subtasks {
				var position int
				if sub.Position != nil {
					position = *sub.Position
				} else {
					position, err = tx.NextChildPosition(ctx, scopeKey, nextFree+i)
					if err != nil {
						return fmt.Errorf("allocate position for subtask %q: %w", sub.Name, err)
					}
				}

				childID, err := idgen.New("tsk")
				if err != nil {
					return err
				}
				child := &types.Task{
					ID:           childID,
					ProjectID:    parent.ProjectID,
					ParentTaskID: &parent.ID,
					Name:         sub.Name,
					Description:  sub.Description,
					Context:      sub.Context,
					TaskType:     types.TaskType(sub.TaskType),
					Status:       types.StatusTodo,
					Position:     position,
					CreatedAt:    m.clock(),
					UpdatedAt:    m.clock(),
				}
				if err := tx.CreateTask(ctx, child); err != nil {
					return err
				}
			}

			entryID, err := idgen.New("wle")
			if err != nil {
				return err
			}
			if err := tx.AppendWorkLog(ctx, &types.WorkLogEntry{
				ID: entryID, TaskID: taskID, Author: payload.Author,
				Operation: types.OpBreakdown, Content: payload.WorkLogContent, CreatedAt: m.clock(),
			}); err != nil {
				return err
			}

			enriched, err = m.enrichedTask(ctx, tx, taskID)
			return err
		})
		if err != nil {
			return nil, err
		}
		return enriched, nil
	})
}
