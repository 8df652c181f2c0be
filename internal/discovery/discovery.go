// Package discovery answers the read-only "what should I work on" queries:
// backlog, in-progress, needs-refinement, and cross-project available-for-
// pickup, each returning enriched tasks in the deterministic sort order
// (effective_points ascending with nulls last, then created_at, then id)
// and paginated.
package discovery

import (
	"context"
	"sort"
	"time"

	"github.com/chorusdev/chorus/internal/chorus/derived"
	"github.com/chorusdev/chorus/internal/chorus/types"
	"github.com/chorusdev/chorus/internal/store"
)

// Operation names the kind of work a caller wants to discover available
// tasks for.
type Operation string

const (
	OperationSizing         Operation = "sizing"
	OperationBreakdown      Operation = "breakdown"
	OperationImplementation Operation = "implementation"
)

// IsValid reports whether o is a known discovery operation.
func (o Operation) IsValid() bool {
	switch o {
	case OperationSizing, OperationBreakdown, OperationImplementation:
		return true
	}
	return false
}

// InProgressTask is an enriched task annotated with the lock holding it in
// progress, if any is active.
type InProgressTask struct {
	types.EnrichedTask
	LockCallerLabel *string            `json:"lock_caller_label"`
	LockPurpose     *types.LockPurpose `json:"lock_purpose"`
	LockExpiresAt   *time.Time         `json:"lock_expires_at"`
}

// AvailableFilter narrows the available-for-pickup query beyond operation
// and project.
type AvailableFilter struct {
	ProjectID string
	TaskType  *types.TaskType
	MinPoints *int
	MaxPoints *int
}

// Finder runs discovery queries against a store.
type Finder struct {
	store store.Store
	clock func() time.Time
}

// New builds a Finder over st.
func New(st store.Store) *Finder {
	return &Finder{store: st, clock: time.Now}
}

func sortKey(e types.EnrichedTask) (int, time.Time, string) {
	if e.EffectivePoints == nil {
		return int(^uint(0) >> 1), e.CreatedAt, e.ID // math.MaxInt, nulls sort last
	}
	return *e.EffectivePoints, e.CreatedAt, e.ID
}

func sortEnriched(tasks []types.EnrichedTask) {
	sort.Slice(tasks, func(i, j int) bool {
		epI, createdI, idI := sortKey(tasks[i])
		epJ, createdJ, idJ := sortKey(tasks[j])
		if epI != epJ {
			return epI < epJ
		}
		if !createdI.Equal(createdJ) {
			return createdI.Before(createdJ)
		}
		return idI < idJ
	})
}

func paginate(tasks []types.EnrichedTask, page store.Page) []types.EnrichedTask {
	if page.Limit <= 0 {
		page = store.DefaultPage
	}
	if page.Offset >= len(tasks) {
		return []types.EnrichedTask{}
	}
	end := page.Offset + page.Limit
	if end > len(tasks) {
		end = len(tasks)
	}
	return tasks[page.Offset:end]
}

func (f *Finder) enrichNodes(nodes []*types.TaskNode) []types.EnrichedTask {
	now := f.clock()
	out := make([]types.EnrichedTask, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, derived.Enrich(n, now))
	}
	return out
}

// Backlog returns todo tasks that are ready for pickup, sorted and paged.
func (f *Finder) Backlog(ctx context.Context, projectID string, page store.Page) ([]types.EnrichedTask, error) {
	status := types.StatusTodo
	nodes, err := f.store.ListProjectTasks(ctx, projectID, store.TaskFilter{Status: &status})
	if err != nil {
		return nil, err
	}
	enriched := f.enrichNodes(nodes)
	ready := enriched[:0]
	for _, e := range enriched {
		if e.Readiness == types.ReadinessReady {
			ready = append(ready, e)
		}
	}
	sortEnriched(ready)
	return paginate(ready, page), nil
}

// InProgress returns doing tasks, each annotated with its active lock (if
// any), sorted and paged.
func (f *Finder) InProgress(ctx context.Context, projectID string, page store.Page) ([]InProgressTask, error) {
	status := types.StatusDoing
	nodes, err := f.store.ListProjectTasks(ctx, projectID, store.TaskFilter{Status: &status})
	if err != nil {
		return nil, err
	}

	now := f.clock()
	withLock := make([]InProgressTask, 0, len(nodes))
	for _, n := range nodes {
		e := derived.Enrich(n, now)
		item := InProgressTask{EnrichedTask: e}
		if n.Lock != nil && derived.IsLocked(n, now) {
			label, purpose, expires := n.Lock.CallerLabel, n.Lock.Purpose, n.Lock.ExpiresAt
			item.LockCallerLabel, item.LockPurpose, item.LockExpiresAt = &label, &purpose, &expires
		}
		withLock = append(withLock, item)
	}

	sort.Slice(withLock, func(i, j int) bool {
		epI, createdI, idI := sortKey(withLock[i].EnrichedTask)
		epJ, createdJ, idJ := sortKey(withLock[j].EnrichedTask)
		if epI != epJ {
			return epI < epJ
		}
		if !createdI.Equal(createdJ) {
			return createdI.Before(createdJ)
		}
		return idI < idJ
	})

	if page.Limit <= 0 {
		page = store.DefaultPage
	}
	if page.Offset >= len(withLock) {
		return []InProgressTask{}, nil
	}
	end := page.Offset + page.Limit
	if end > len(withLock) {
		end = len(withLock)
	}
	return withLock[page.Offset:end], nil
}

// NeedsRefinement returns tasks either explicitly flagged for refinement or
// sized with low confidence (<= 2), sorted and paged.
func (f *Finder) NeedsRefinement(ctx context.Context, projectID string, page store.Page) ([]types.EnrichedTask, error) {
	nodes, err := f.store.ListProjectTasks(ctx, projectID, store.TaskFilter{})
	if err != nil {
		return nil, err
	}

	enriched := f.enrichNodes(nodes)
	matching := enriched[:0]
	for _, e := range enriched {
		if e.NeedsRefinement || (e.SizingConfidence != nil && *e.SizingConfidence <= 2) {
			matching = append(matching, e)
		}
	}
	sortEnriched(matching)
	return paginate(matching, page), nil
}

// Available returns tasks ready for the given operation across projects
// (or scoped to one, if filter.ProjectID is set), excluding anything
// currently locked, sorted and paged.
func (f *Finder) Available(ctx context.Context, op Operation, filter AvailableFilter, page store.Page) ([]types.EnrichedTask, error) {
	if !op.IsValid() {
		return []types.EnrichedTask{}, nil
	}

	taskFilter := store.TaskFilter{ProjectID: filter.ProjectID}
	switch op {
	case OperationBreakdown, OperationImplementation:
		status := types.StatusTodo
		taskFilter.Status = &status
	}

	var nodes []*types.TaskNode
	var err error
	if filter.ProjectID != "" {
		nodes, err = f.store.ListProjectTasks(ctx, filter.ProjectID, taskFilter)
	} else {
		nodes, err = f.store.ListTasks(ctx, taskFilter)
	}
	if err != nil {
		return nil, err
	}

	now := f.clock()
	matching := make([]types.EnrichedTask, 0, len(nodes))
	for _, n := range nodes {
		switch op {
		case OperationSizing:
			if n.Task.Points != nil || len(n.Children) > 0 {
				continue
			}
		case OperationBreakdown:
			if derived.Readiness(n) != types.ReadinessNeedsBreakdown {
				continue
			}
		case OperationImplementation:
			if derived.Readiness(n) != types.ReadinessReady {
				continue
			}
		}
		if derived.IsLocked(n, now) {
			continue
		}
		matching = append(matching, derived.Enrich(n, now))
	}

	filtered := matching[:0]
	for _, e := range matching {
		if filter.TaskType != nil && e.TaskType != *filter.TaskType {
			continue
		}
		if filter.MinPoints != nil && (e.EffectivePoints == nil || *e.EffectivePoints < *filter.MinPoints) {
			continue
		}
		if filter.MaxPoints != nil && (e.EffectivePoints == nil || *e.EffectivePoints > *filter.MaxPoints) {
			continue
		}
		filtered = append(filtered, e)
	}

	sortEnriched(filtered)
	return paginate(filtered, page), nil
}
