package ops

import (
	"context"

	"github.com/chorusdev/chorus/internal/chorus/errs"
	"github.com/chorusdev/chorus/internal/chorus/idgen"
	"github.com/chorusdev/chorus/internal/chorus/types"
	"github.com/chorusdev/chorus/internal/store"
)

func (p RefinePayload) validate() error {
	if p.WorkLogContent == "" {
		return errs.Validation("work_log_content is required")
	}
	return nil
}

// Refine runs the refine atomic operation: optionally overwrites
// description/context/context_captured_at, clears needs_refinement, and
// appends a refinement work log entry.
func (m *Manager) Refine(ctx context.Context, taskID string, payload RefinePayload, idempotencyKey *string) (*Result, error) {
	if err := payload.validate(); err != nil {
		return nil, err
	}

	return m.withIdempotency(ctx, "refine", idempotencyKey, func() (*types.EnrichedTask, error) {
		var enriched *types.EnrichedTask
		err := m.store.RunInTransaction(ctx, func(tx store.Transaction) error {
			task, err := tx.GetTask(ctx, taskID)
			if err != nil {
				return errs.NotFound("task %s not found", taskID)
			}

			if payload.Description != nil {
				task.Description = *payload.Description
			}
			if payload.Context != nil {
				task.Context = *payload.Context
			}
			if payload.ContextCapturedAt != nil {
				task.ContextCapturedAt = payload.ContextCapturedAt
			}
			task.NeedsRefinement = false
			if err := tx.UpdateTask(ctx, task); err != nil {
				return err
			}

			entryID, err := idgen.New("wle")
			if err != nil {
				return err
			}
			if err := tx.AppendWorkLog(ctx, &types.WorkLogEntry{
				ID: entryID, TaskID: taskID, Author: payload.Author,
				Operation: types.OpRefinement, Content: payload.WorkLogContent, CreatedAt: m.clock(),
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

// FlagRefinement sets needs_refinement and refinement_notes. Unlike the
// other atomic operations this carries no work log entry and no
// idempotency scope: it is a cheap, externally-triggered flag flip, not a
// client-retried write.
func (m *Manager) FlagRefinement(ctx context.Context, taskID string, payload FlagRefinementPayload) (*types.EnrichedTask, error) {
	if payload.RefinementNotes == "" {
		return nil, errs.Validation("refinement_notes is required")
	}
	var enriched *types.EnrichedTask
	err := m.store.RunInTransaction(ctx, func(tx store.Transaction) error {
		task, err := tx.GetTask(ctx, taskID)
		if err != nil {
			return errs.NotFound("task %s not found", taskID)
		}
		task.NeedsRefinement = true
		task.RefinementNotes = payload.RefinementNotes
		if err := tx.UpdateTask(ctx, task); err != nil {
			return err
		}
		enriched, err = m.enrichedTask(ctx, tx, taskID)
		return err
	})
	if err != nil {
		return nil, err
	}
	m.observeOp("flag_refinement")
	return enriched, nil
}
