package closures

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/obra-ledger/obra-ledger/internal/shared"
)

const lockDetailSelect = `SELECT l.id, l.period_id, l.user_id, l.closed_by, l.closed_at, l.notes,
       u.username, u.full_name, c.full_name
FROM period_locks l
JOIN users u ON u.id = l.user_id
JOIN users c ON c.id = l.closed_by`

// Repository persists period locks in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanDetail(row pgx.Row) (LockDetail, error) {
	var d LockDetail
	err := row.Scan(&d.ID, &d.PeriodID, &d.UserID, &d.ClosedBy, &d.ClosedAt, &d.Notes,
		&d.Username, &d.UserFullName, &d.ClosedByName)
	return d, err
}

func (r *Repository) listDetails(ctx context.Context, op, sql string, args ...any) ([]LockDetail, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, shared.Storage(op, err)
	}
	defer rows.Close()
	var out []LockDetail
	for rows.Next() {
		d, err := scanDetail(rows)
		if err != nil {
			return nil, shared.Storage(op, err)
		}
		out = append(out, d)
	}
	return out, shared.Storage(op, rows.Err())
}

// IsClosedForUser reports whether a lock row exists for the pair.
func (r *Repository) IsClosedForUser(ctx context.Context, periodID, userID int64) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM period_locks WHERE period_id=$1 AND user_id=$2)`, periodID, userID).Scan(&exists)
	if err != nil {
		return false, shared.Storage("closures: is closed", err)
	}
	return exists, nil
}

// Insert creates the lock row; the unique index turns a duplicate into ErrAlreadyClosed.
func (r *Repository) Insert(ctx context.Context, in Lock) (Lock, error) {
	out := in
	err := r.pool.QueryRow(ctx, `INSERT INTO period_locks (period_id, user_id, closed_by, closed_at, notes)
VALUES ($1, $2, $3, $4, $5) RETURNING id, closed_at`, in.PeriodID, in.UserID, in.ClosedBy, in.ClosedAt, in.Notes).
		Scan(&out.ID, &out.ClosedAt)
	if err != nil {
		if shared.IsUniqueViolation(err, "period_locks_period_user_key") {
			return Lock{}, ErrAlreadyClosed
		}
		return Lock{}, shared.Storage("closures: insert", err)
	}
	return out, nil
}

// Delete removes a lock row and returns it.
func (r *Repository) Delete(ctx context.Context, lockID int64) (Lock, error) {
	var l Lock
	err := r.pool.QueryRow(ctx, `DELETE FROM period_locks WHERE id=$1
RETURNING id, period_id, user_id, closed_by, closed_at, notes`, lockID).
		Scan(&l.ID, &l.PeriodID, &l.UserID, &l.ClosedBy, &l.ClosedAt, &l.Notes)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Lock{}, ErrLockNotFound
		}
		return Lock{}, shared.Storage("closures: delete", err)
	}
	return l, nil
}

// Find loads the lock for a pair, if any.
func (r *Repository) Find(ctx context.Context, periodID, userID int64) (LockDetail, bool, error) {
	d, err := scanDetail(r.pool.QueryRow(ctx, lockDetailSelect+` WHERE l.period_id=$1 AND l.user_id=$2`, periodID, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return LockDetail{}, false, nil
		}
		return LockDetail{}, false, shared.Storage("closures: find", err)
	}
	return d, true, nil
}

// ListByPeriod lists the locks of a period, newest first.
func (r *Repository) ListByPeriod(ctx context.Context, periodID int64) ([]LockDetail, error) {
	return r.listDetails(ctx, "closures: list by period", lockDetailSelect+` WHERE l.period_id=$1 ORDER BY l.closed_at DESC, l.id DESC`, periodID)
}

// ListByUser lists a user's locks, newest period first.
func (r *Repository) ListByUser(ctx context.Context, userID int64) ([]LockDetail, error) {
	return r.listDetails(ctx, "closures: list by user", lockDetailSelect+`
JOIN periods p ON p.id = l.period_id
WHERE l.user_id=$1 ORDER BY p.start_date DESC`, userID)
}

// Latest lists the most recent locks across all periods.
func (r *Repository) Latest(ctx context.Context, limit int) ([]LockDetail, error) {
	return r.listDetails(ctx, "closures: latest", lockDetailSelect+` ORDER BY l.closed_at DESC, l.id DESC LIMIT $1`, limit)
}

// UsersWithout lists active users with no lock in the period.
func (r *Repository) UsersWithout(ctx context.Context, periodID int64) ([]UserRef, error) {
	rows, err := r.pool.Query(ctx, `SELECT u.id, u.username, u.full_name, u.email
FROM users u
WHERE u.active
  AND NOT EXISTS (SELECT 1 FROM period_locks l WHERE l.period_id=$1 AND l.user_id=u.id)
ORDER BY u.full_name, u.id`, periodID)
	if err != nil {
		return nil, shared.Storage("closures: users without", err)
	}
	defer rows.Close()
	var out []UserRef
	for rows.Next() {
		var u UserRef
		if err := rows.Scan(&u.ID, &u.Username, &u.FullName, &u.Email); err != nil {
			return nil, shared.Storage("closures: users without", err)
		}
		out = append(out, u)
	}
	return out, shared.Storage("closures: users without", rows.Err())
}

// CountActiveUsers returns the number of active users.
func (r *Repository) CountActiveUsers(ctx context.Context) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users WHERE active`).Scan(&n); err != nil {
		return 0, shared.Storage("closures: count users", err)
	}
	return n, nil
}
