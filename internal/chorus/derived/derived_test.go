package derived

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chorusdev/chorus/internal/chorus/types"
)

func pts(v int) *int { return &v }

func leaf(points *int) *types.TaskNode {
	return &types.TaskNode{Task: types.Task{Points: points, TaskType: types.TaskFeature}}
}

func TestReadinessNeedsSizing(t *testing.T) {
	n := leaf(nil)
	assert.Equal(t, types.ReadinessNeedsSizing, Readiness(n))
}

func TestReadinessReadyWhenSizedSmall(t *testing.T) {
	n := leaf(pts(3))
	assert.Equal(t, types.ReadinessReady, Readiness(n))
}

func TestReadinessNeedsBreakdownWhenOverBudget(t *testing.T) {
	n := leaf(pts(7))
	assert.Equal(t, types.ReadinessNeedsBreakdown, Readiness(n))
}

func TestReadinessNeedsRefinementDominates(t *testing.T) {
	n := leaf(pts(2))
	n.Task.NeedsRefinement = true
	assert.Equal(t, types.ReadinessNeedsRefinement, Readiness(n))
}

func TestReadinessBlockedByChildrenWhenAllSizedAndSmall(t *testing.T) {
	parent := &types.TaskNode{
		Task:     types.Task{Points: pts(5)},
		Children: []*types.TaskNode{leaf(pts(2)), leaf(pts(3))},
	}
	require.Equal(t, types.ReadinessBlockedByChildren, Readiness(parent))
}

func TestReadinessNeedsBreakdownWhenChildUnsized(t *testing.T) {
	parent := &types.TaskNode{
		Task:     types.Task{Points: pts(5)},
		Children: []*types.TaskNode{leaf(pts(2)), leaf(nil)},
	}
	assert.Equal(t, types.ReadinessNeedsBreakdown, Readiness(parent))
}

func TestEffectivePointsRollsUpFromSizedChildren(t *testing.T) {
	parent := &types.TaskNode{
		Task:     types.Task{Points: pts(99)},
		Children: []*types.TaskNode{leaf(pts(2)), leaf(pts(3))},
	}
	ep := EffectivePoints(parent)
	require.NotNil(t, ep)
	assert.Equal(t, 5, *ep)
}

func TestEffectivePointsFallsBackToOwnPointsWhenNoChildSized(t *testing.T) {
	parent := &types.TaskNode{
		Task:     types.Task{Points: pts(8)},
		Children: []*types.TaskNode{leaf(nil)},
	}
	ep := EffectivePoints(parent)
	require.NotNil(t, ep)
	assert.Equal(t, 8, *ep)
}

func TestUnsizedChildrenCountsOwnPointsOnly(t *testing.T) {
	parent := &types.TaskNode{
		Children: []*types.TaskNode{leaf(pts(1)), leaf(nil), leaf(nil)},
	}
	assert.Equal(t, 2, UnsizedChildren(parent))
}

func TestIsLockedExpiresOverTime(t *testing.T) {
	now := time.Now()
	n := leaf(pts(1))
	n.Lock = &types.TaskLock{ExpiresAt: now.Add(-time.Minute)}
	assert.False(t, IsLocked(n, now))

	n.Lock.ExpiresAt = now.Add(time.Minute)
	assert.True(t, IsLocked(n, now))
}

func TestDescendantsTerminalWalksFullSubtree(t *testing.T) {
	grandchild := &types.TaskNode{Task: types.Task{Status: types.StatusDoing}}
	child := &types.TaskNode{Task: types.Task{Status: types.StatusDone}, Children: []*types.TaskNode{grandchild}}
	root := &types.TaskNode{Task: types.Task{Status: types.StatusTodo}, Children: []*types.TaskNode{child}}

	allTerminal, anyDone := DescendantsTerminal(root)
	assert.False(t, allTerminal, "grandchild is still doing")
	assert.True(t, anyDone, "child is done")
}

func TestDescendantsTerminalAllDone(t *testing.T) {
	child := &types.TaskNode{Task: types.Task{Status: types.StatusWontDo}}
	root := &types.TaskNode{Task: types.Task{Status: types.StatusTodo}, Children: []*types.TaskNode{child}}

	allTerminal, anyDone := DescendantsTerminal(root)
	assert.True(t, allTerminal)
	assert.False(t, anyDone, "wont_do is terminal but not done")
}
