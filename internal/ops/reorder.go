package ops

import (
	"context"

	"github.com/chorusdev/chorus/internal/chorus/errs"
	"github.com/chorusdev/chorus/internal/chorus/types"
	"github.com/chorusdev/chorus/internal/store"
)

// Reorder moves a task to newPosition among its siblings: every sibling at
// or past newPosition shifts up by one, then the target is set to
// newPosition. It carries no idempotency scope, matching PATCH
// /tasks/{id}/reorder's lack of an Idempotency-Key header.
func (m *Manager) Reorder(ctx context.Context, taskID string, newPosition int) (*types.EnrichedTask, error) {
	if newPosition < 0 {
		return nil, errs.Validation("position must be >= 0, got %d", newPosition)
	}
	var enriched *types.EnrichedTask
	err := m.store.RunInTransaction(ctx, func(tx store.Transaction) error {
		task, err := tx.GetTask(ctx, taskID)
		if err != nil {
			return errs.NotFound("task %s not found", taskID)
		}
		if err := tx.ShiftSiblingPositions(ctx, task.ProjectID, task.ParentTaskID, newPosition, taskID); err != nil {
			return err
		}
		task.Position = newPosition
		if err := tx.UpdateTask(ctx, task); err != nil {
			return err
		}
		enriched, err = m.enrichedTask(ctx, tx, taskID)
		return err
	})
	if err != nil {
		return nil, err
	}
	m.observeOp("reorder")
	return enriched, nil
}
