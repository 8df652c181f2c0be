package ops

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

func newTestSetup(t *testing.T) (*Manager, *sqlite.DB, string) {
	t.Helper()
	ctx := context.Background()
	db, err := sqlite.Open(ctx, filepath.Join(t.TempDir(), "chorus.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	now := time.Now().UTC()
	proj := &types.Project{ID: idgen.MustNew("prj"), Name: "p", CreatedAt: now, UpdatedAt: now}
	require.NoError(t, db.CreateProject(ctx, proj))

	task := &types.Task{
		ID: idgen.MustNew("tsk"), ProjectID: proj.ID, Name: "root",
		TaskType: types.TaskFeature, Status: types.StatusTodo,
		CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, db.CreateTask(ctx, task))

	mgr, err := New(db, 0, nil)
	require.NoError(t, err)
	return mgr, db, task.ID
}

func sizingPayload() SizingPayload {
	return SizingPayload{
		ScopeClarity:           DimensionScore{Score: 2, Reasoning: "clear"},
		DecisionPoints:         DimensionScore{Score: 1, Reasoning: "few"},
		ContextWindowDemand:    DimensionScore{Score: 1, Reasoning: "small"},
		VerificationComplexity: DimensionScore{Score: 1, Reasoning: "simple"},
		DomainSpecificity:      DimensionScore{Score: 1, Reasoning: "common"},
		Confidence:             4,
		WorkLogContent:         "sized it",
	}
}

func TestSizeSumsPointsAndRecordsBreakdown(t *testing.T) {
	mgr, db, taskID := newTestSetup(t)
	ctx := context.Background()

	_, err := mgr.Size(ctx, taskID, sizingPayload(), nil)
	require.NoError(t, err)

	task, err := db.GetTask(ctx, taskID)
	require.NoError(t, err)
	require.NotNil(t, task.Points)
	require.Equal(t, 6, *task.Points)
	require.NotNil(t, task.SizingConfidence)
	require.Equal(t, 4, *task.SizingConfidence)

	log, err := db.ListWorkLog(ctx, taskID)
	require.NoError(t, err)
	require.Len(t, log, 1)
	require.Equal(t, types.OpSizing, log[0].Operation)
}

func TestSizeIdempotencyReplaysResponse(t *testing.T) {
	mgr, db, taskID := newTestSetup(t)
	ctx := context.Background()
	key := "client-key-1"

	first, err := mgr.Size(ctx, taskID, sizingPayload(), &key)
	require.NoError(t, err)

	second, err := mgr.Size(ctx, taskID, sizingPayload(), &key)
	require.NoError(t, err)
	require.JSONEq(t, string(first.Body), string(second.Body))

	log, err := db.ListWorkLog(ctx, taskID)
	require.NoError(t, err)
	require.Len(t, log, 1, "replayed call must not re-execute the operation")
}

func TestSizeRejectsOutOfRangeScore(t *testing.T) {
	mgr, _, taskID := newTestSetup(t)
	payload := sizingPayload()
	payload.ScopeClarity.Score = 5

	_, err := mgr.Size(context.Background(), taskID, payload, nil)
	require.Error(t, err)
	e, ok := errs.As(err)
	require.True(t, ok)
	require.Equal(t, errs.CodeValidationError, e.Code)
}

func TestBreakdownAllocatesSequentialPositions(t *testing.T) {
	mgr, db, taskID := newTestSetup(t)
	ctx := context.Background()

	explicit := 10
	_, err := mgr.Breakdown(ctx, taskID, BreakdownPayload{
		Subtasks: []BreakdownSubtask{
			{Name: "child-a", TaskType: "feature"},
			{Name: "child-b", TaskType: "feature"},
			{Name: "child-c", TaskType: "feature", Position: &explicit},
		},
		WorkLogContent: "broke it down",
	}, nil)
	require.NoError(t, err)

	node, err := db.LoadSubtree(ctx, taskID, 1)
	require.NoError(t, err)
	require.Len(t, node.Children, 3)

	positions := map[string]int{}
	for _, c := range node.Children {
		positions[c.Task.Name] = c.Task.Position
	}
	require.Equal(t, 0, positions["child-a"])
	require.Equal(t, 1, positions["child-b"])
	require.Equal(t, 10, positions["child-c"])
}

func TestCompleteRejectsWhenChildrenNotTerminal(t *testing.T) {
	mgr, db, taskID := newTestSetup(t)
	ctx := context.Background()

	_, err := mgr.Breakdown(ctx, taskID, BreakdownPayload{
		Subtasks:       []BreakdownSubtask{{Name: "child", TaskType: "feature"}},
		WorkLogContent: "split",
	}, nil)
	require.NoError(t, err)
	_, err = mgr.UpdateStatus(ctx, taskID, types.StatusDoing)
	require.NoError(t, err)

	_, err = mgr.Complete(ctx, taskID, CompletePayload{WorkLogContent: "done"}, nil)
	require.Error(t, err)
	e, ok := errs.As(err)
	require.True(t, ok)
	require.Equal(t, errs.CodeInvalidStatusTransition, e.Code)

	log, err := db.ListWorkLog(ctx, taskID)
	require.NoError(t, err)
	require.Len(t, log, 1, "failed completion gate must roll back the appended implementation entry; only the breakdown entry remains")
	require.Equal(t, types.OpBreakdown, log[0].Operation)
}

func TestCompleteReopensParentOnRegression(t *testing.T) {
	mgr, db, taskID := newTestSetup(t)
	ctx := context.Background()

	_, err := mgr.Breakdown(ctx, taskID, BreakdownPayload{
		Subtasks:       []BreakdownSubtask{{Name: "child", TaskType: "feature"}},
		WorkLogContent: "split",
	}, nil)
	require.NoError(t, err)

	node, err := db.LoadSubtree(ctx, taskID, 1)
	require.NoError(t, err)
	childID := node.Children[0].Task.ID

	_, err = mgr.UpdateStatus(ctx, childID, types.StatusDoing)
	require.NoError(t, err)
	_, err = mgr.UpdateStatus(ctx, taskID, types.StatusDoing)
	require.NoError(t, err)
	_, err = mgr.Complete(ctx, childID, CompletePayload{WorkLogContent: "done"}, nil)
	require.NoError(t, err)
	_, err = mgr.Complete(ctx, taskID, CompletePayload{WorkLogContent: "done"}, nil)
	require.NoError(t, err)

	parent, err := db.GetTask(ctx, taskID)
	require.NoError(t, err)
	require.Equal(t, types.StatusDone, parent.Status)

	_, err = mgr.UpdateStatus(ctx, childID, types.StatusTodo)
	require.NoError(t, err)

	parent, err = db.GetTask(ctx, taskID)
	require.NoError(t, err)
	require.Equal(t, types.StatusTodo, parent.Status, "reopening a done child must reopen a done parent")
}

func TestReorderShiftsSiblings(t *testing.T) {
	mgr, db, taskID := newTestSetup(t)
	ctx := context.Background()

	_, err := mgr.Breakdown(ctx, taskID, BreakdownPayload{
		Subtasks: []BreakdownSubtask{
			{Name: "a", TaskType: "feature"},
			{Name: "b", TaskType: "feature"},
		},
		WorkLogContent: "split",
	}, nil)
	require.NoError(t, err)

	node, err := db.LoadSubtree(ctx, taskID, 1)
	require.NoError(t, err)
	var aID, bID string
	for _, c := range node.Children {
		if c.Task.Name == "a" {
			aID = c.Task.ID
		} else {
			bID = c.Task.ID
		}
	}

	_, err = mgr.Reorder(ctx, bID, 0)
	require.NoError(t, err)

	a, err := db.GetTask(ctx, aID)
	require.NoError(t, err)
	b, err := db.GetTask(ctx, bID)
	require.NoError(t, err)
	require.Equal(t, 1, a.Position)
	require.Equal(t, 0, b.Position)
}

func TestFlagRefinementHasNoIdempotencyScope(t *testing.T) {
	mgr, _, taskID := newTestSetup(t)
	ctx := context.Background()

	task, err := mgr.FlagRefinement(ctx, taskID, FlagRefinementPayload{RefinementNotes: "needs more detail"})
	require.NoError(t, err)
	require.True(t, task.NeedsRefinement)
	require.Equal(t, types.ReadinessNeedsRefinement, task.Readiness)
}
