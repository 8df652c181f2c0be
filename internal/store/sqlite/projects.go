package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/chorusdev/chorus/internal/chorus/types"
)

func insertProject(ctx context.Context, x execer, p *types.Project) error {
	_, err := x.ExecContext(ctx, `
		INSERT INTO projects (id, name, description, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.Description,
		p.CreatedAt.UTC().Format(sqliteTimeLayout), p.UpdatedAt.UTC().Format(sqliteTimeLayout),
	)
	if err != nil {
		return fmt.Errorf("sqlite: insert project: %w", err)
	}
	return nil
}

func updateProject(ctx context.Context, x execer, p *types.Project) error {
	p.UpdatedAt = time.Now().UTC()
	res, err := x.ExecContext(ctx, `
		UPDATE projects SET name = ?, description = ?, updated_at = ? WHERE id = ?`,
		p.Name, p.Description, p.UpdatedAt.Format(sqliteTimeLayout), p.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: update project: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("sqlite: update project %s: %w", p.ID, sql.ErrNoRows)
	}
	return nil
}

func deleteProject(ctx context.Context, x execer, id string) error {
	_, err := x.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: delete project: %w", err)
	}
	return nil
}

func scanProject(row *sql.Row) (*types.Project, error) {
	var p types.Project
	var created, updated string
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &created, &updated); err != nil {
		return nil, err
	}
	p.CreatedAt, _ = time.Parse(sqliteTimeLayout, created)
	p.UpdatedAt, _ = time.Parse(sqliteTimeLayout, updated)
	return &p, nil
}

func getProject(ctx context.Context, x execer, id string) (*types.Project, error) {
	row := x.QueryRowContext(ctx, `
		SELECT id, name, description, created_at, updated_at FROM projects WHERE id = ?`, id)
	p, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("project %s: %w", id, sql.ErrNoRows)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: get project: %w", err)
	}
	return p, nil
}

func listProjects(ctx context.Context, x execer) ([]*types.Project, error) {
	rows, err := x.QueryContext(ctx, `
		SELECT id, name, description, created_at, updated_at FROM projects ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list projects: %w", err)
	}
	defer rows.Close()

	var out []*types.Project
	for rows.Next() {
		var p types.Project
		var created, updated string
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &created, &updated); err != nil {
			return nil, fmt.Errorf("sqlite: scan project: %w", err)
		}
		p.CreatedAt, _ = time.Parse(sqliteTimeLayout, created)
		p.UpdatedAt, _ = time.Parse(sqliteTimeLayout, updated)
		out = append(out, &p)
	}
	return out, rows.Err()
}

func (d *DB) CreateProject(ctx context.Context, p *types.Project) error { return insertProject(ctx, d.db, p) }
func (d *DB) UpdateProject(ctx context.Context, p *types.Project) error { return updateProject(ctx, d.db, p) }
func (d *DB) DeleteProject(ctx context.Context, id string) error        { return deleteProject(ctx, d.db, id) }
func (d *DB) GetProject(ctx context.Context, id string) (*types.Project, error) {
	return getProject(ctx, d.db, id)
}
func (d *DB) ListProjects(ctx context.Context) ([]*types.Project, error) { return listProjects(ctx, d.db) }

func (t *txImpl) CreateProject(ctx context.Context, p *types.Project) error { return insertProject(ctx, t.conn, p) }
func (t *txImpl) UpdateProject(ctx context.Context, p *types.Project) error { return updateProject(ctx, t.conn, p) }
func (t *txImpl) DeleteProject(ctx context.Context, id string) error        { return deleteProject(ctx, t.conn, id) }
