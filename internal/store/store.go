// Package store defines Chorus's abstract, transactional persistence
// boundary. The domain packages (lockmgr, ops, discovery) work through
// these interfaces; internal/store/sqlite is the one concrete backend
// shipped today, and lockmgr also imports it to recognise its
// ErrLockExists sentinel.
package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/chorusdev/chorus/internal/chorus/types"
)

// ErrNotInitialized names the use of a store before Open. The sqlite
// backend never returns it.
var ErrNotInitialized = errors.New("store: not initialized")

// TaskFilter narrows a task range query. Zero-valued fields are
// unconstrained.
type TaskFilter struct {
	ProjectID      string
	Status         *types.Status
	TaskType       *types.TaskType
	ExcludeLocked  bool
	MinPoints      *int
	MaxPoints      *int
	OnlyLeaves     bool
	NeedsRefinement *bool
}

// Page bounds a range query's result window.
type Page struct {
	Limit  int
	Offset int
}

// DefaultPage mirrors the default window used across discovery queries
// when a caller supplies no explicit paging.
var DefaultPage = Page{Limit: 50, Offset: 0}

// Transaction is the narrow set of mutating operations available inside
// RunInTransaction. It is deliberately smaller than Store: transactions
// are short-lived units of work, not a place to run arbitrary discovery
// queries.
type Transaction interface {
	CreateProject(ctx context.Context, p *types.Project) error
	UpdateProject(ctx context.Context, p *types.Project) error
	DeleteProject(ctx context.Context, id string) error

	CreateTask(ctx context.Context, t *types.Task) error
	UpdateTask(ctx context.Context, t *types.Task) error
	DeleteTask(ctx context.Context, id string) error
	GetTask(ctx context.Context, id string) (*types.Task, error)
	MaxChildPosition(ctx context.Context, projectID string, parentTaskID *string) (int, error)
	ShiftSiblingPositions(ctx context.Context, projectID string, parentTaskID *string, fromPosition int, excludeTaskID string) error
	NextChildPosition(ctx context.Context, scopeKey string, seed int) (int, error)

	GetLock(ctx context.Context, taskID string) (*types.TaskLock, error)
	CreateLock(ctx context.Context, l *types.TaskLock) error
	UpdateLock(ctx context.Context, l *types.TaskLock) error
	DeleteLock(ctx context.Context, taskID string) error

	AppendWorkLog(ctx context.Context, e *types.WorkLogEntry) error
	CreateCommit(ctx context.Context, c *types.TaskCommit) error

	GetIdempotencyRecord(ctx context.Context, key string) (*types.IdempotencyRecord, error)
	PutIdempotencyRecord(ctx context.Context, r *types.IdempotencyRecord) error

	// LoadSubtree loads taskID and its descendants up to maxDepth levels
	// (maxDepth < 0 means unbounded), along with each node's lock. See
	// DESIGN.md for the bounded-eager-load-vs-recursive-query tradeoff
	// this embodies. Available inside a transaction so that lock
	// preconditions and atomic operations can evaluate derived state
	// against the same snapshot they are about to mutate.
	LoadSubtree(ctx context.Context, taskID string, maxDepth int) (*types.TaskNode, error)
	LoadAncestry(ctx context.Context, taskID string) ([]*types.Task, error)
}

// Store is the full persistence surface: everything a Transaction offers,
// plus read-only range/traversal queries and lifecycle management.
type Store interface {
	Transaction

	RunInTransaction(ctx context.Context, fn func(tx Transaction) error) error

	GetProject(ctx context.Context, id string) (*types.Project, error)
	ListProjects(ctx context.Context) ([]*types.Project, error)

	ListProjectTasks(ctx context.Context, projectID string, filter TaskFilter) ([]*types.TaskNode, error)
	ListTasks(ctx context.Context, filter TaskFilter) ([]*types.TaskNode, error)
	ListWorkLog(ctx context.Context, taskID string) ([]*types.WorkLogEntry, error)
	ListCommits(ctx context.Context, taskID string) ([]*types.TaskCommit, error)

	ReapExpiredLocks(ctx context.Context, now time.Time) (int, error)
	ReapExpiredIdempotencyRecords(ctx context.Context, now time.Time) (int, error)

	Close() error
	Path() string
	UnderlyingDB() *sql.DB
}
