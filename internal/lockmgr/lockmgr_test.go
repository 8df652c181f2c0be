package lockmgr

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/chorusdev/chorus/internal/chorus/errs"
	"github.com/chorusdev/chorus/internal/chorus/idgen"
	"github.com/chorusdev/chorus/internal/chorus/types"
	"github.com/chorusdev/chorus/internal/store/sqlite"
)

func newTestManager(t *testing.T) (*Manager, *sqlite.DB) {
	t.Helper()
	db, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "chorus.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return New(db, nil), db
}

func seedTask(t *testing.T, db *sqlite.DB, points *int) string {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()
	proj := &types.Project{ID: idgen.MustNew("prj"), Name: "p", CreatedAt: now, UpdatedAt: now}
	require.NoError(t, db.CreateProject(ctx, proj))
	task := &types.Task{
		ID: idgen.MustNew("tsk"), ProjectID: proj.ID, Name: "t",
		TaskType: types.TaskFeature, Status: types.StatusTodo, Points: points,
		CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, db.CreateTask(ctx, task))
	return task.ID
}

func TestAcquireRejectsSizingWhenAlreadySized(t *testing.T) {
	mgr, db := newTestManager(t)
	p := 3
	taskID := seedTask(t, db, &p)

	_, err := mgr.Acquire(context.Background(), taskID, types.PurposeSizing, "agent-1")
	require.Error(t, err)
	e, ok := errs.As(err)
	require.True(t, ok)
	require.Equal(t, errs.CodeInvalidReadinessState, e.Code)
}

func TestAcquireThenConflict(t *testing.T) {
	mgr, db := newTestManager(t)
	taskID := seedTask(t, db, nil)

	lock, err := mgr.Acquire(context.Background(), taskID, types.PurposeSizing, "agent-1")
	require.NoError(t, err)
	require.Equal(t, types.PurposeSizing, lock.Purpose)

	_, err = mgr.Acquire(context.Background(), taskID, types.PurposeSizing, "agent-2")
	require.Error(t, err)
	e, ok := errs.As(err)
	require.True(t, ok)
	require.Equal(t, errs.CodeLockConflict, e.Code)
}

func TestHeartbeatExtendsExpiry(t *testing.T) {
	mgr, db := newTestManager(t)
	taskID := seedTask(t, db, nil)

	lock, err := mgr.Acquire(context.Background(), taskID, types.PurposeSizing, "agent-1")
	require.NoError(t, err)
	firstExpiry := lock.ExpiresAt

	updated, err := mgr.Heartbeat(context.Background(), taskID, "agent-1")
	require.NoError(t, err)
	require.True(t, !updated.ExpiresAt.Before(firstExpiry))
}

func TestHeartbeatRejectsWrongCaller(t *testing.T) {
	mgr, db := newTestManager(t)
	taskID := seedTask(t, db, nil)

	_, err := mgr.Acquire(context.Background(), taskID, types.PurposeSizing, "agent-1")
	require.NoError(t, err)

	_, err = mgr.Heartbeat(context.Background(), taskID, "agent-2")
	require.Error(t, err)
}

func TestReleaseRejectsWrongCaller(t *testing.T) {
	mgr, db := newTestManager(t)
	taskID := seedTask(t, db, nil)

	_, err := mgr.Acquire(context.Background(), taskID, types.PurposeSizing, "agent-1")
	require.NoError(t, err)

	err = mgr.Release(context.Background(), taskID, "agent-2", false)
	require.ErrorIs(t, err, errs.ErrCallerMismatch)
}

func TestReleaseThenReacquire(t *testing.T) {
	mgr, db := newTestManager(t)
	taskID := seedTask(t, db, nil)

	_, err := mgr.Acquire(context.Background(), taskID, types.PurposeSizing, "agent-1")
	require.NoError(t, err)
	require.NoError(t, mgr.Release(context.Background(), taskID, "agent-1", false))

	_, err = mgr.Acquire(context.Background(), taskID, types.PurposeSizing, "agent-2")
	require.NoError(t, err)
}

func TestReapExpiredRemovesStaleLock(t *testing.T) {
	past := time.Now().Add(-time.Hour)
	db, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "chorus.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	taskID := seedTask(t, db, nil)
	mgr := New(db, func() time.Time { return past })
	_, err = mgr.Acquire(context.Background(), taskID, types.PurposeSizing, "agent-1")
	require.NoError(t, err)

	mgrNow := New(db, time.Now)
	locksReaped, _, err := mgrNow.ReapExpired(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, locksReaped)

	_, err = mgrNow.Acquire(context.Background(), taskID, types.PurposeSizing, "agent-2")
	require.NoError(t, err)
}
