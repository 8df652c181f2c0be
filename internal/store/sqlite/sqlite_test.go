package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/chorusdev/chorus/internal/chorus/idgen"
	"github.com/chorusdev/chorus/internal/chorus/types"
	"github.com/chorusdev/chorus/internal/store"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	dir := t.TempDir()
	db, err := Open(context.Background(), filepath.Join(dir, "chorus.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestCreateAndGetProject(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	p := &types.Project{ID: idgen.MustNew("prj"), Name: "chorus", CreatedAt: now, UpdatedAt: now}
	require.NoError(t, db.CreateProject(ctx, p))

	got, err := db.GetProject(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, p.Name, got.Name)
}

func TestTaskCreateAndLoadSubtree(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	proj := &types.Project{ID: idgen.MustNew("prj"), Name: "p", CreatedAt: now, UpdatedAt: now}
	require.NoError(t, db.CreateProject(ctx, proj))

	root := &types.Task{
		ID: idgen.MustNew("tsk"), ProjectID: proj.ID, Name: "root",
		TaskType: types.TaskFeature, Status: types.StatusTodo,
		CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, db.CreateTask(ctx, root))

	childPoints := 3
	child := &types.Task{
		ID: idgen.MustNew("tsk"), ProjectID: proj.ID, ParentTaskID: &root.ID, Name: "child",
		TaskType: types.TaskFeature, Status: types.StatusTodo, Points: &childPoints,
		CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, db.CreateTask(ctx, child))

	node, err := db.LoadSubtree(ctx, root.ID, 2)
	require.NoError(t, err)
	require.Len(t, node.Children, 1)
	require.Equal(t, "child", node.Children[0].Task.Name)
}

func TestRunInTransactionRollsBackOnError(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	projID := idgen.MustNew("prj")
	err := db.RunInTransaction(ctx, func(tx store.Transaction) error {
		if err := tx.CreateProject(ctx, &types.Project{ID: projID, Name: "x", CreatedAt: now, UpdatedAt: now}); err != nil {
			return err
		}
		return context.DeadlineExceeded
	})
	require.Error(t, err)

	_, err = db.GetProject(ctx, projID)
	require.Error(t, err, "project must not exist after rollback")
}

func TestLockUniqueIndexRejectsDoubleAcquire(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	proj := &types.Project{ID: idgen.MustNew("prj"), Name: "p", CreatedAt: now, UpdatedAt: now}
	require.NoError(t, db.CreateProject(ctx, proj))
	task := &types.Task{ID: idgen.MustNew("tsk"), ProjectID: proj.ID, Name: "t", TaskType: types.TaskFeature, Status: types.StatusTodo, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, db.CreateTask(ctx, task))

	l1 := &types.TaskLock{ID: idgen.MustNew("lck"), TaskID: task.ID, CallerLabel: "a", Purpose: types.PurposeSizing, AcquiredAt: now, ExpiresAt: now.Add(time.Minute)}
	require.NoError(t, db.CreateLock(ctx, l1))

	l2 := &types.TaskLock{ID: idgen.MustNew("lck"), TaskID: task.ID, CallerLabel: "b", Purpose: types.PurposeSizing, AcquiredAt: now, ExpiresAt: now.Add(time.Minute)}
	err := db.CreateLock(ctx, l2)
	require.ErrorIs(t, err, ErrLockExists())
}
