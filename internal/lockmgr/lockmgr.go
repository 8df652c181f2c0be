// Package lockmgr implements Chorus's typed, time-bounded task lock
// manager: acquire, heartbeat, release, and a background reaper for
// expired leases.
package lockmgr

import (
	"context"
	"errors"
	"time"

	"github.com/chorusdev/chorus/internal/chorus/derived"
	"github.com/chorusdev/chorus/internal/chorus/errs"
	"github.com/chorusdev/chorus/internal/chorus/idgen"
	"github.com/chorusdev/chorus/internal/chorus/types"
	"github.com/chorusdev/chorus/internal/store"
	"github.com/chorusdev/chorus/internal/store/sqlite"
)

// Clock is injected so tests can control "now" without sleeping.
type Clock func() time.Time

// Manager acquires, heartbeats, releases, and reaps task locks.
type Manager struct {
	store store.Store
	clock Clock
}

// New builds a Manager over st. If clock is nil, time.Now is used.
func New(st store.Store, clock Clock) *Manager {
	if clock == nil {
		clock = time.Now
	}
	return &Manager{store: st, clock: clock}
}

// validatePrecondition enforces the purpose-specific readiness precondition
// a task must satisfy before a lock of that purpose may be acquired.
// Refinement carries no precondition.
func validatePrecondition(node *types.TaskNode, purpose types.LockPurpose) error {
	switch purpose {
	case types.PurposeSizing:
		if node.Task.Points != nil {
			return errs.InvalidReadinessState("", "task is already sized")
		}
	case types.PurposeBreakdown:
		if node.Task.Points == nil && len(node.Children) == 0 {
			return errs.InvalidReadinessState("", "task must be sized before breakdown")
		}
		ep := derived.EffectivePoints(node)
		unsized := derived.UnsizedChildren(node)
		if (ep == nil || *ep <= 6) && unsized == 0 {
			return errs.InvalidReadinessState("", "task does not need breakdown (effective_points <= 6 and no unsized children)")
		}
	case types.PurposeImplementation:
		readiness := derived.Readiness(node)
		if readiness != types.ReadinessReady {
			return errs.InvalidReadinessState(string(readiness), "task is not ready for implementation (readiness=%s)", readiness)
		}
	case types.PurposeRefinement:
		// no precondition
	}
	return nil
}

// Acquire takes out a lock of the given purpose on taskID for callerLabel.
// It lazily reaps an existing-but-expired lock before checking the
// precondition, and relies on the store's unique index on task_id as the
// final arbiter under concurrent acquire attempts.
func (m *Manager) Acquire(ctx context.Context, taskID string, purpose types.LockPurpose, callerLabel string) (*types.TaskLock, error) {
	if !purpose.IsValid() {
		return nil, errs.Validation("invalid lock purpose %q", purpose)
	}
	if callerLabel == "" {
		return nil, errs.Validation("caller_label is required")
	}

	var lock *types.TaskLock
	err := m.store.RunInTransaction(ctx, func(tx store.Transaction) error {
		task, err := tx.GetTask(ctx, taskID)
		if err != nil {
			return errs.NotFound("task %s not found", taskID)
		}

		now := m.clock()
		existing, err := tx.GetLock(ctx, taskID)
		if err != nil {
			return err
		}
		if existing != nil {
			if existing.Expired(now) {
				if err := tx.DeleteLock(ctx, taskID); err != nil {
					return err
				}
			} else {
				return errs.LockConflict("task %s is already locked", taskID)
			}
		}

		node, err := tx.LoadSubtree(ctx, task.ID, 2)
		if err != nil {
			return err
		}
		if err := validatePrecondition(node, purpose); err != nil {
			return err
		}

		id, err := idgen.New("lck")
		if err != nil {
			return errs.InvalidReadinessState("", "%s", err.Error())
		}
		lock = &types.TaskLock{
			ID:          id,
			TaskID:      taskID,
			CallerLabel: callerLabel,
			Purpose:     purpose,
			AcquiredAt:  now,
			ExpiresAt:   now.Add(purpose.TTL()),
		}
		if err := tx.CreateLock(ctx, lock); err != nil {
			if errors.Is(err, sqlite.ErrLockExists()) {
				return errs.LockConflict("task %s is already locked", taskID)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return lock, nil
}

// Heartbeat extends an active lock's expiry by its purpose's TTL,
// measured from now. Only the current holder (matching caller_label) may
// heartbeat.
func (m *Manager) Heartbeat(ctx context.Context, taskID, callerLabel string) (*types.TaskLock, error) {
	var lock *types.TaskLock
	err := m.store.RunInTransaction(ctx, func(tx store.Transaction) error {
		existing, err := tx.GetLock(ctx, taskID)
		if err != nil {
			return err
		}
		if existing == nil {
			return errs.NotFound("no lock found for task %s", taskID)
		}
		now := m.clock()
		if existing.Expired(now) {
			return errs.LockConflict("lock for task %s has expired", taskID)
		}
		if existing.CallerLabel != callerLabel {
			return errs.CallerMismatch("caller_label does not match lock holder")
		}
		existing.LastHeartbeatAt = &now
		existing.ExpiresAt = now.Add(existing.Purpose.TTL())
		if err := tx.UpdateLock(ctx, existing); err != nil {
			return err
		}
		lock = existing
		return nil
	})
	if err != nil {
		return nil, err
	}
	return lock, nil
}

// Release drops the lock on taskID. force releases regardless of caller
// label match, for operator/admin use; otherwise callerLabel must match
// the current holder.
func (m *Manager) Release(ctx context.Context, taskID, callerLabel string, force bool) error {
	return m.store.RunInTransaction(ctx, func(tx store.Transaction) error {
		existing, err := tx.GetLock(ctx, taskID)
		if err != nil {
			return err
		}
		if existing == nil {
			return errs.NotFound("no lock found for task %s", taskID)
		}
		if !force && existing.CallerLabel != callerLabel {
			return errs.CallerMismatch("caller_label does not match lock holder")
		}
		return tx.DeleteLock(ctx, taskID)
	})
}

// ReapExpired deletes every lock and idempotency record whose expiry has
// already elapsed, returning the counts removed. It is safe to call
// concurrently from multiple processes: each DELETE is a single
// self-contained statement, so overlapping reapers simply race to delete
// the same already-vanishing rows rather than corrupt state.
func (m *Manager) ReapExpired(ctx context.Context) (locks int, idempotencyRecords int, err error) {
	now := m.clock()
	locks, err = m.store.ReapExpiredLocks(ctx, now)
	if err != nil {
		return 0, 0, err
	}
	idempotencyRecords, err = m.store.ReapExpiredIdempotencyRecords(ctx, now)
	if err != nil {
		return locks, 0, err
	}
	return locks, idempotencyRecords, nil
}
