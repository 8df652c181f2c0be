package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/chorusdev/chorus/internal/chorus/types"
)

func getIdempotencyRecord(ctx context.Context, x execer, key string) (*types.IdempotencyRecord, error) {
	row := x.QueryRowContext(ctx, `
		SELECT id, key, status_code, response_body, created_at, expires_at
		FROM idempotency_records WHERE key = ?`, key)

	var r types.IdempotencyRecord
	var body, created, expires string
	err := row.Scan(&r.ID, &r.Key, &r.StatusCode, &body, &created, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: get idempotency record: %w", err)
	}
	r.Body = []byte(body)
	r.CreatedAt, _ = time.Parse(sqliteTimeLayout, created)
	r.ExpiresAt, _ = time.Parse(sqliteTimeLayout, expires)
	return &r, nil
}

// putIdempotencyRecord inserts a new record, tolerating a concurrent
// insert of the same key: the unique index on key is the actual
// correctness boundary (see SPEC_FULL.md §4.4), so a collision here
// simply means another request already won the race and this caller
// should go read the existing record rather than treat it as an error.
func putIdempotencyRecord(ctx context.Context, x execer, r *types.IdempotencyRecord) error {
	_, err := x.ExecContext(ctx, `
		INSERT INTO idempotency_records (id, key, status_code, response_body, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID, r.Key, r.StatusCode, string(r.Body),
		r.CreatedAt.UTC().Format(sqliteTimeLayout), r.ExpiresAt.UTC().Format(sqliteTimeLayout),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return nil
		}
		return fmt.Errorf("sqlite: put idempotency record: %w", err)
	}
	return nil
}

func (d *DB) GetIdempotencyRecord(ctx context.Context, key string) (*types.IdempotencyRecord, error) {
	return getIdempotencyRecord(ctx, d.db, key)
}
func (d *DB) PutIdempotencyRecord(ctx context.Context, r *types.IdempotencyRecord) error {
	return putIdempotencyRecord(ctx, d.db, r)
}

func (t *txImpl) GetIdempotencyRecord(ctx context.Context, key string) (*types.IdempotencyRecord, error) {
	return getIdempotencyRecord(ctx, t.conn, key)
}
func (t *txImpl) PutIdempotencyRecord(ctx context.Context, r *types.IdempotencyRecord) error {
	return putIdempotencyRecord(ctx, t.conn, r)
}
