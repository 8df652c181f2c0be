// Package ops implements Chorus's atomic task operations: size, breakdown,
// refine, flag_refinement, complete, reorder, and the underlying status
// state machine, each running as a single store transaction. size,
// breakdown, refine and complete are replayable by an idempotency key;
// flag_refinement, reorder and status updates take no key.
package ops

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/chorusdev/chorus/internal/chorus/derived"
	"github.com/chorusdev/chorus/internal/chorus/idgen"
	"github.com/chorusdev/chorus/internal/chorus/types"
	"github.com/chorusdev/chorus/internal/store"
)

// Metrics receives operation/replay counts. Nil-safe: every call site goes
// through a helper that no-ops on a nil Metrics.
type Metrics interface {
	ObserveOperation(operation string)
	ObserveIdempotencyReplay(operation string)
}

// Manager runs atomic operations against a store, fronting idempotency
// replay with an in-process LRU.
type Manager struct {
	store   store.Store
	cache   *lru.Cache[string, *types.IdempotencyRecord]
	clock   func() time.Time
	metrics Metrics
}

// New builds a Manager. cacheSize <= 0 falls back to the default capacity
// named in SPEC_FULL.md §4.4 (4096 entries).
func New(st store.Store, cacheSize int, metrics Metrics) (*Manager, error) {
	if cacheSize <= 0 {
		cacheSize = 4096
	}
	cache, err := lru.New[string, *types.IdempotencyRecord](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("ops: build idempotency cache: %w", err)
	}
	return &Manager{store: st, cache: cache, clock: time.Now, metrics: metrics}, nil
}

func (m *Manager) observeOp(op string) {
	if m.metrics != nil {
		m.metrics.ObserveOperation(op)
	}
}

func (m *Manager) observeReplay(op string) {
	if m.metrics != nil {
		m.metrics.ObserveIdempotencyReplay(op)
	}
}

// Result is what an idempotency-scoped operation returns on a fresh
// execution or a replay: a status code and a JSON body, mirroring the HTTP
// response the original request produced.
type Result struct {
	StatusCode int
	Body       json.RawMessage
}

// withIdempotency scopes clientKey to operation, replays a cached response
// if one exists and is unexpired, and otherwise runs fn, persists its
// result, and returns it. fn must itself run inside a store transaction;
// each operation passes a closure that opens its own RunInTransaction.
func (m *Manager) withIdempotency(ctx context.Context, operation string, clientKey *string, fn func() (*types.EnrichedTask, error)) (*Result, error) {
	m.observeOp(operation)

	if clientKey == nil || *clientKey == "" {
		task, err := fn()
		if err != nil {
			return nil, err
		}
		return encodeResult(task)
	}

	scopedKey := operation + ":" + *clientKey
	now := m.clock()

	if rec, ok := m.cache.Get(scopedKey); ok && rec.ExpiresAt.After(now) {
		m.observeReplay(operation)
		return &Result{StatusCode: rec.StatusCode, Body: rec.Body}, nil
	}

	if rec, err := m.store.GetIdempotencyRecord(ctx, scopedKey); err == nil && rec != nil && rec.ExpiresAt.After(now) {
		m.cache.Add(scopedKey, rec)
		m.observeReplay(operation)
		return &Result{StatusCode: rec.StatusCode, Body: rec.Body}, nil
	}

	task, err := fn()
	if err != nil {
		return nil, err
	}
	result, err := encodeResult(task)
	if err != nil {
		return nil, err
	}

	id, err := idgen.New("idm")
	if err != nil {
		return nil, fmt.Errorf("ops: generate idempotency record id: %w", err)
	}
	record := &types.IdempotencyRecord{
		ID:         id,
		Key:        scopedKey,
		StatusCode: result.StatusCode,
		Body:       result.Body,
		CreatedAt:  now,
		ExpiresAt:  now.Add(types.DefaultIdempotencyTTL),
	}
	if err := m.store.PutIdempotencyRecord(ctx, record); err != nil {
		return nil, err
	}
	// A concurrent writer may have won the unique-index race; re-read so the
	// cached and returned response always matches what is actually stored.
	if stored, err := m.store.GetIdempotencyRecord(ctx, scopedKey); err == nil && stored != nil {
		m.cache.Add(scopedKey, stored)
		return &Result{StatusCode: stored.StatusCode, Body: stored.Body}, nil
	}
	m.cache.Add(scopedKey, record)
	return result, nil
}

func encodeResult(task *types.EnrichedTask) (*Result, error) {
	body, err := json.Marshal(task)
	if err != nil {
		return nil, fmt.Errorf("ops: marshal enriched task: %w", err)
	}
	return &Result{StatusCode: 200, Body: body}, nil
}

func (m *Manager) enrichedTask(ctx context.Context, tx store.Transaction, taskID string) (*types.EnrichedTask, error) {
	node, err := tx.LoadSubtree(ctx, taskID, 2)
	if err != nil {
		return nil, err
	}
	enriched := derived.Enrich(node, m.clock())
	return &enriched, nil
}
