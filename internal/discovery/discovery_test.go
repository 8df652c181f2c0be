package discovery

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/chorusdev/chorus/internal/chorus/idgen"
	"github.com/chorusdev/chorus/internal/chorus/types"
	"github.com/chorusdev/chorus/internal/store"
	"github.com/chorusdev/chorus/internal/store/sqlite"
)

func newTestProject(t *testing.T, db *sqlite.DB) string {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()
	proj := &types.Project{ID: idgen.MustNew("prj"), Name: "p", CreatedAt: now, UpdatedAt: now}
	require.NoError(t, db.CreateProject(ctx, proj))
	return proj.ID
}

func makeTask(t *testing.T, db *sqlite.DB, projectID string, mutate func(*types.Task)) *types.Task {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()
	task := &types.Task{
		ID: idgen.MustNew("tsk"), ProjectID: projectID, Name: "t",
		TaskType: types.TaskFeature, Status: types.StatusTodo,
		CreatedAt: now, UpdatedAt: now,
	}
	if mutate != nil {
		mutate(task)
	}
	require.NoError(t, db.CreateTask(ctx, task))
	return task
}

func TestBacklogOnlyReturnsReadyTasks(t *testing.T) {
	ctx := context.Background()
	db, err := sqlite.Open(ctx, filepath.Join(t.TempDir(), "chorus.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	projectID := newTestProject(t, db)

	ready := 3
	makeTask(t, db, projectID, func(tk *types.Task) { tk.Points = &ready })
	makeTask(t, db, projectID, func(tk *types.Task) {}) // unsized -> needs_sizing, excluded
	makeTask(t, db, projectID, func(tk *types.Task) { tk.Status = types.StatusDoing })

	f := New(db)
	tasks, err := f.Backlog(ctx, projectID, store.DefaultPage)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	require.Equal(t, types.ReadinessReady, tasks[0].Readiness)
}

func TestBacklogSortsByEffectivePointsThenCreatedAt(t *testing.T) {
	ctx := context.Background()
	db, err := sqlite.Open(ctx, filepath.Join(t.TempDir(), "chorus.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	projectID := newTestProject(t, db)

	hi, lo := 5, 2
	makeTask(t, db, projectID, func(tk *types.Task) { tk.Points = &hi })
	makeTask(t, db, projectID, func(tk *types.Task) { tk.Points = &lo })

	f := New(db)
	tasks, err := f.Backlog(ctx, projectID, store.DefaultPage)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	require.Equal(t, lo, *tasks[0].EffectivePoints)
	require.Equal(t, hi, *tasks[1].EffectivePoints)
}

func TestInProgressAnnotatesActiveLock(t *testing.T) {
	ctx := context.Background()
	db, err := sqlite.Open(ctx, filepath.Join(t.TempDir(), "chorus.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	projectID := newTestProject(t, db)

	task := makeTask(t, db, projectID, func(tk *types.Task) { tk.Status = types.StatusDoing })
	now := time.Now().UTC()
	require.NoError(t, db.CreateLock(ctx, &types.TaskLock{
		ID: idgen.MustNew("lck"), TaskID: task.ID, CallerLabel: "agent-1",
		Purpose: types.PurposeImplementation, AcquiredAt: now, ExpiresAt: now.Add(time.Hour),
	}))

	f := New(db)
	tasks, err := f.InProgress(ctx, projectID, store.DefaultPage)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	require.NotNil(t, tasks[0].LockCallerLabel)
	require.Equal(t, "agent-1", *tasks[0].LockCallerLabel)
}

func TestNeedsRefinementMatchesFlagOrLowConfidence(t *testing.T) {
	ctx := context.Background()
	db, err := sqlite.Open(ctx, filepath.Join(t.TempDir(), "chorus.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	projectID := newTestProject(t, db)

	lowConf := 1
	highConf := 5
	makeTask(t, db, projectID, func(tk *types.Task) { tk.NeedsRefinement = true })
	makeTask(t, db, projectID, func(tk *types.Task) { tk.SizingConfidence = &lowConf })
	makeTask(t, db, projectID, func(tk *types.Task) { tk.SizingConfidence = &highConf })

	f := New(db)
	tasks, err := f.NeedsRefinement(ctx, projectID, store.DefaultPage)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
}

func TestAvailableExcludesLockedAndNotReadyTasks(t *testing.T) {
	ctx := context.Background()
	db, err := sqlite.Open(ctx, filepath.Join(t.TempDir(), "chorus.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	projectID := newTestProject(t, db)

	p3, p8 := 3, 8
	ready1 := makeTask(t, db, projectID, func(tk *types.Task) { tk.Points = &p3 })
	makeTask(t, db, projectID, func(tk *types.Task) { tk.Points = &p8 }) // needs_breakdown, excluded from implementation

	now := time.Now().UTC()
	locked := makeTask(t, db, projectID, func(tk *types.Task) { tk.Points = &p3 })
	require.NoError(t, db.CreateLock(ctx, &types.TaskLock{
		ID: idgen.MustNew("lck"), TaskID: locked.ID, CallerLabel: "agent-1",
		Purpose: types.PurposeImplementation, AcquiredAt: now, ExpiresAt: now.Add(time.Hour),
	}))

	f := New(db)
	tasks, err := f.Available(ctx, OperationImplementation, AvailableFilter{ProjectID: projectID}, store.DefaultPage)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	require.Equal(t, ready1.ID, tasks[0].ID)
}

func TestAvailableSizingOnlyReturnsUnsizedLeaves(t *testing.T) {
	ctx := context.Background()
	db, err := sqlite.Open(ctx, filepath.Join(t.TempDir(), "chorus.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	projectID := newTestProject(t, db)

	parent := makeTask(t, db, projectID, nil)
	makeTask(t, db, projectID, func(tk *types.Task) { tk.ParentTaskID = &parent.ID })
	makeTask(t, db, projectID, nil)

	f := New(db)
	tasks, err := f.Available(ctx, OperationSizing, AvailableFilter{ProjectID: projectID}, store.DefaultPage)
	require.NoError(t, err)
	for _, tk := range tasks {
		require.NotEqual(t, parent.ID, tk.ID, "a task with children is not a sizing candidate")
	}
}

func TestAvailableUnknownOperationReturnsEmpty(t *testing.T) {
	ctx := context.Background()
	db, err := sqlite.Open(ctx, filepath.Join(t.TempDir(), "chorus.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	projectID := newTestProject(t, db)
	makeTask(t, db, projectID, nil)

	f := New(db)
	tasks, err := f.Available(ctx, Operation("bogus"), AvailableFilter{ProjectID: projectID}, store.DefaultPage)
	require.NoError(t, err)
	require.Empty(t, tasks)
}
