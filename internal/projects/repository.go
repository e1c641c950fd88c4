package projects

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/obra-ledger/obra-ledger/internal/shared"
)

// ErrProjectNotFound indicates the project id is unknown.
var ErrProjectNotFound = shared.NotFound("project_not_found", "project not found")

// Repository reads projects from PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Get loads a project by id.
func (r *Repository) Get(ctx context.Context, id int64) (Project, error) {
	var p Project
	err := r.pool.QueryRow(ctx, `SELECT id, name, client_name, status, active FROM projects WHERE id=$1`, id).
		Scan(&p.ID, &p.Name, &p.ClientName, &p.Status, &p.Active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Project{}, ErrProjectNotFound
		}
		return Project{}, shared.Storage("projects: get", err)
	}
	return p, nil
}

// ListActive returns active projects ordered by name.
func (r *Repository) ListActive(ctx context.Context) ([]Project, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, client_name, status, active FROM projects WHERE active ORDER BY name, id`)
	if err != nil {
		return nil, shared.Storage("projects: list", err)
	}
	defer rows.Close()
	var out []Project
	for rows.Next() {
		var p Project
		if err := rows.Scan(&p.ID, &p.Name, &p.ClientName, &p.Status, &p.Active); err != nil {
			return nil, shared.Storage("projects: scan", err)
		}
		out = append(out, p)
	}
	return out, shared.Storage("projects: list", rows.Err())
}
