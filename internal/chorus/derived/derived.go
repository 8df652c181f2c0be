// Package derived computes a task's read-only state from an already
// loaded subtree: effective and rolled-up points, unsized-children count,
// readiness, and lock status. Every function here is pure: it never
// touches the store, and the same TaskNode always yields the same result.
package derived

import (
	"time"

	"github.com/chorusdev/chorus/internal/chorus/types"
)

// RolledUpPoints is the sum of EffectivePoints across direct children,
// or nil if the task has no children or none of them are sized.
func RolledUpPoints(n *types.TaskNode) *int {
	if len(n.Children) == 0 {
		return nil
	}
	total := 0
	anySized := false
	for _, c := range n.Children {
		if ep := EffectivePoints(c); ep != nil {
			total += *ep
			anySized = true
		}
	}
	if !anySized {
		return nil
	}
	return &total
}

// EffectivePoints is the task's rolled-up points if any children are
// sized, otherwise its own stored points.
func EffectivePoints(n *types.TaskNode) *int {
	if rup := RolledUpPoints(n); rup != nil {
		return rup
	}
	return n.Task.Points
}

// UnsizedChildren counts direct children whose own points are unset.
// Note this inspects each child's *own* Points, not its effective points:
// a child with sized grandchildren still counts as "unsized" here until
// it is sized itself.
func UnsizedChildren(n *types.TaskNode) int {
	count := 0
	for _, c := range n.Children {
		if c.Task.Points == nil {
			count++
		}
	}
	return count
}

// Readiness computes the pickup-eligibility state of a task, applying the
// rules in order: needs_refinement dominates; then an unsized leaf needs
// sizing; then an unsized child or > 6 effective points needs breakdown;
// then any children at all blocks on them; otherwise the task is ready.
func Readiness(n *types.TaskNode) types.Readiness {
	if n.Task.NeedsRefinement {
		return types.ReadinessNeedsRefinement
	}
	if n.Task.Points == nil && len(n.Children) == 0 {
		return types.ReadinessNeedsSizing
	}
	if len(n.Children) > 0 && UnsizedChildren(n) > 0 {
		return types.ReadinessNeedsBreakdown
	}
	if ep := EffectivePoints(n); ep != nil && *ep > 6 {
		return types.ReadinessNeedsBreakdown
	}
	if len(n.Children) > 0 {
		return types.ReadinessBlockedByChildren
	}
	return types.ReadinessReady
}

// IsLocked reports whether the task currently has an active, unexpired
// lock.
func IsLocked(n *types.TaskNode, now time.Time) bool {
	return n.Lock != nil && !n.Lock.Expired(now)
}

// Enrich builds the full EnrichedTask view of a loaded node.
func Enrich(n *types.TaskNode, now time.Time) types.EnrichedTask {
	return types.EnrichedTask{
		Task:            n.Task,
		EffectivePoints: EffectivePoints(n),
		RolledUpPoints:  RolledUpPoints(n),
		UnsizedChildren: UnsizedChildren(n),
		Readiness:       Readiness(n),
		ChildrenCount:   len(n.Children),
		IsLocked:        IsLocked(n, now),
	}
}

// DescendantsTerminal walks every descendant (not just direct children) of
// n and reports whether all of them are in a terminal status, and whether
// at least one of them is done. Used by the completion gate, which must
// look at the whole subtree, not just direct children.
func DescendantsTerminal(n *types.TaskNode) (allTerminal bool, anyDone bool) {
	allTerminal = true
	var walk func(*types.TaskNode)
	walk = func(t *types.TaskNode) {
		for _, c := range t.Children {
			if !c.Task.Status.IsTerminal() {
				allTerminal = false
			}
			if c.Task.Status == types.StatusDone {
				anyDone = true
			}
			walk(c)
		}
	}
	walk(n)
	return allTerminal, anyDone
}
