package ops

import (
	"context"

	"github.com/chorusdev/chorus/internal/chorus/derived"
	"github.com/chorusdev/chorus/internal/chorus/errs"
	"github.com/chorusdev/chorus/internal/chorus/idgen"
	"github.com/chorusdev/chorus/internal/chorus/types"
	"github.com/chorusdev/chorus/internal/store"
)

// updateStatusTx applies the task status state machine inside an
// already-open transaction: no-op on a same-status transition, rejects any
// transition not in the allowed table, gates a transition to done on the
// full descendant subtree being terminal with at least one descendant
// done, and reopens a done parent (single level) when a done task is moved
// back to todo or doing.
func updateStatusTx(ctx context.Context, tx store.Transaction, taskID string, newStatus types.Status) (*types.Task, error) {
	task, err := tx.GetTask(ctx, taskID)
	if err != nil {
		return nil, errs.NotFound("task %s not found", taskID)
	}

	oldStatus := task.Status
	if oldStatus == newStatus {
		return task, nil
	}
	if !types.CanTransition(oldStatus, newStatus) {
		return nil, &errs.Err{
			Sentinel: errs.ErrInvalidStatusTransition,
			Code:     errs.CodeInvalidStatusTransition,
			Message:  "invalid transition from " + string(oldStatus) + " to " + string(newStatus),
			Details:  map[string]any{"from": oldStatus, "to": newStatus},
		}
	}

	if newStatus == types.StatusDone {
		node, err := tx.LoadSubtree(ctx, taskID, -1)
		if err != nil {
			return nil, err
		}
		if len(node.Children) > 0 {
			allTerminal, anyDone := derived.DescendantsTerminal(node)
			if !allTerminal {
				return nil, errs.InvalidStatusTransition("cannot complete: not all descendants are terminal (done/wont_do)")
			}
			if !anyDone {
				return nil, errs.InvalidStatusTransition("cannot complete: at least one descendant must be done")
			}
		}
	}

	task.Status = newStatus
	if err := tx.UpdateTask(ctx, task); err != nil {
		return nil, err
	}

	if oldStatus == types.StatusDone && (newStatus == types.StatusTodo || newStatus == types.StatusDoing) && task.ParentTaskID != nil {
		parent, err := tx.GetTask(ctx, *task.ParentTaskID)
		if err == nil && parent.Status == types.StatusDone {
			parent.Status = types.StatusTodo
			if err := tx.UpdateTask(ctx, parent); err != nil {
				return nil, err
			}
		}
	}

	return task, nil
}

// UpdateStatus applies a direct status change. It carries no idempotency
// scope: the transport route (PATCH /tasks/{id}/status) never takes an
// Idempotency-Key header.
func (m *Manager) UpdateStatus(ctx context.Context, taskID string, newStatus types.Status) (*types.EnrichedTask, error) {
	if !newStatus.IsValid() {
		return nil, errs.Validation("invalid status %q", newStatus)
	}
	var enriched *types.EnrichedTask
	err := m.store.RunInTransaction(ctx, func(tx store.Transaction) error {
		if _, err := updateStatusTx(ctx, tx, taskID, newStatus); err != nil {
			return err
		}
		var err error
		enriched, err = m.enrichedTask(ctx, tx, taskID)
		return err
	})
	if err != nil {
		return nil, err
	}
	m.observeOp("update_status")
	return enriched, nil
}

func (p CompletePayload) validate() error {
	if p.WorkLogContent == "" {
		return errs.Validation("work_log_content is required")
	}
	for i, c := range p.Commits {
		if len(c.CommitHash) != 40 {
			return errs.Validation("commit %d: commit_hash must be 40 hex characters", i)
		}
	}
	return nil
}

// Complete runs the complete atomic operation: appends an implementation
// work log entry, inserts any supplied commits, then transitions the task
// to done through the same status state machine UpdateStatus uses. Any
// failure (including the completion gate) rolls back the whole
// transaction, including the work log entry and commits just inserted.
func (m *Manager) Complete(ctx context.Context, taskID string, payload CompletePayload, idempotencyKey *string) (*Result, error) {
	if err := payload.validate(); err != nil {
		return nil, err
	}

	return m.withIdempotency(ctx, "complete", idempotencyKey, func() (*types.EnrichedTask, error) {
		var enriched *types.EnrichedTask
		err := m.store.RunInTransaction(ctx, func(tx store.Transaction) error {
			if _, err := tx.GetTask(ctx, taskID); err != nil {
				return errs.NotFound("task %s not found", taskID)
			}

			entryID, err := idgen.New("wle")
			if err != nil {
				return err
			}
			if err := tx.AppendWorkLog(ctx, &types.WorkLogEntry{
				ID: entryID, TaskID: taskID, Author: payload.Author,
				Operation: types.OpImplementation, Content: payload.WorkLogContent, CreatedAt: m.clock(),
			}); err != nil {
				return err
			}

			for _, c := range payload.Commits {
				commitID, err := idgen.New("cmt")
				if err != nil {
					return err
				}
				if err := tx.CreateCommit(ctx, &types.TaskCommit{
					ID: commitID, TaskID: taskID, Author: c.Author,
					CommitHash: c.CommitHash, Message: c.Message, CommittedAt: c.CommittedAt,
				}); err != nil {
					return err
				}
			}

			if _, err := updateStatusTx(ctx, tx, taskID, types.StatusDone); err != nil {
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
