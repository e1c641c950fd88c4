package users

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/obra-ledger/obra-ledger/internal/shared"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const userColumns = `id, username, full_name, email, role_level, active, created_at`

func scanUser(row pgx.Row) (User, error) {
	var u User
	var role int16
	if err := row.Scan(&u.ID, &u.Username, &u.FullName, &u.Email, &role, &u.Active, &u.CreatedAt); err != nil {
		return User{}, err
	}
	u.Role = rbacRole(role)
	return u, nil
}

// Get loads a user regardless of active state.
func (r *Repository) Get(ctx context.Context, id int64) (User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, shared.ErrUserNotFound
		}
		return User{}, shared.Storage("users: get", err)
	}
	return u, nil
}

// ListActive returns active users ordered by full name.
func (r *Repository) ListActive(ctx context.Context) ([]User, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+userColumns+` FROM users WHERE active ORDER BY full_name, id`)
	if err != nil {
		return nil, shared.Storage("users: list active", err)
	}
	defer rows.Close()
	var out []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, shared.Storage("users: scan", err)
		}
		out = append(out, u)
	}
	return out, shared.Storage("users: list active", rows.Err())
}

// CountActive returns the number of active users.
func (r *Repository) CountActive(ctx context.Context) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users WHERE active`).Scan(&n); err != nil {
		return 0, shared.Storage("users: count active", err)
	}
	return n, nil
}
