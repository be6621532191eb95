package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/vietddude/webtape/internal/core/domain"
	"github.com/vietddude/webtape/internal/infra/storage"
)

// ProjectRepo implements storage.ProjectRepository on PostgreSQL.
type ProjectRepo struct {
	db *DB
}

func NewProjectRepo(db *DB) *ProjectRepo {
	return &ProjectRepo{db: db}
}

type projectRow struct {
	ID        string    `db:"id"`
	Name      string    `db:"name"`
	StartURL  string    `db:"start_url"`
	Steps     []byte    `db:"steps"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (r *ProjectRepo) GetProject(ctx context.Context, id string) (*domain.Project, error) {
	var row projectRow
	err := r.db.GetContext(ctx, &row,
		`SELECT id, name, start_url, steps, created_at, updated_at FROM projects WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get project: %w", err)
	}
	return row.toDomain()
}

func (r *ProjectRepo) SaveProject(ctx context.Context, p *domain.Project) error {
	steps, err := json.Marshal(p.Steps)
	if err != nil {
		return fmt.Errorf("marshal steps: %w", err)
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO projects (id, name, start_url, steps, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		p.ID, p.Name, p.StartURL, steps, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save project: %w", err)
	}
	return nil
}

func (r *ProjectRepo) UpdateProject(ctx context.Context, p *domain.Project) error {
	steps, err := json.Marshal(p.Steps)
	if err != nil {
		return fmt.Errorf("marshal steps: %w", err)
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE projects SET name = $1, start_url = $2, steps = $3, updated_at = now() WHERE id = $4`,
		p.Name, p.StartURL, steps, p.ID)
	if err != nil {
		return fmt.Errorf("update project: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update project: %w", err)
	}
	if n == 0 {
		return storage.ErrProjectNotFound
	}
	return nil
}

func (r *ProjectRepo) ListProjects(ctx context.Context) ([]*domain.Project, error) {
	var rows []projectRow
	err := r.db.SelectContext(ctx, &rows,
		`SELECT id, name, start_url, steps, created_at, updated_at FROM projects ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	out := make([]*domain.Project, 0, len(rows))
	for _, row := range rows {
		p, err := row.toDomain()
		if err != nil {
			return nil, fmt.Errorf("list projects: %w", err)
		}
		out = append(out, p)
	}
	return out, nil
}

func (r *ProjectRepo) DeleteProject(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM projects WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	if n == 0 {
		return storage.ErrProjectNotFound
	}
	return nil
}

func (row projectRow) toDomain() (*domain.Project, error) {
	p := &domain.Project{
		ID:        row.ID,
		Name:      row.Name,
		StartURL:  row.StartURL,
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}
	if err := json.Unmarshal(row.Steps, &p.Steps); err != nil {
		return nil, fmt.Errorf("unmarshal steps: %w", err)
	}
	return p, nil
}
