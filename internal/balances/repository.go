package balances

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/obra-ledger/obra-ledger/internal/shared"
)

// Repository persists cached balances in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Upsert writes the totals for the (user, period) pair.
func (r *Repository) Upsert(ctx context.Context, b Balance) (Balance, error) {
	out := b
	err := r.pool.QueryRow(ctx, `INSERT INTO user_balances (user_id, period_id, total_income, total_outflow, total_expense, last_computed_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT ON CONSTRAINT user_balances_user_period_key DO UPDATE
SET total_income = EXCLUDED.total_income,
    total_outflow = EXCLUDED.total_outflow,
    total_expense = EXCLUDED.total_expense,
    last_computed_at = EXCLUDED.last_computed_at
RETURNING last_computed_at`,
		b.UserID, b.PeriodID, b.TotalIncome, b.TotalOutflow, b.TotalExpense, b.LastComputedAt).Scan(&out.LastComputedAt)
	if err != nil {
		return Balance{}, shared.Storage("balances: upsert", err)
	}
	return out, nil
}

// ListByPeriod returns the period's balances, highest income first.
func (r *Repository) ListByPeriod(ctx context.Context, periodID int64) ([]Standing, error) {
	rows, err := r.pool.Query(ctx, `SELECT b.user_id, b.period_id, b.total_income, b.total_outflow, b.total_expense, b.last_computed_at,
       u.username, u.full_name
FROM user_balances b
JOIN users u ON u.id = b.user_id
WHERE b.period_id = $1
ORDER BY b.total_income DESC, b.user_id`, periodID)
	if err != nil {
		return nil, shared.Storage("balances: list by period", err)
	}
	defer rows.Close()
	out := []Standing{}
	for rows.Next() {
		var s Standing
		if err := rows.Scan(&s.UserID, &s.PeriodID, &s.TotalIncome, &s.TotalOutflow, &s.TotalExpense, &s.LastComputedAt,
			&s.Username, &s.FullName); err != nil {
			return nil, shared.Storage("balances: list by period", err)
		}
		out = append(out, s)
	}
	return out, shared.Storage("balances: list by period", rows.Err())
}

// ListByUser returns a user's balances, most recent period first.
func (r *Repository) ListByUser(ctx context.Context, userID int64) ([]PeriodBalance, error) {
	rows, err := r.pool.Query(ctx, `SELECT b.user_id, b.period_id, b.total_income, b.total_outflow, b.total_expense, b.last_computed_at,
       p.number, p.year, p.start_date, p.end_date
FROM user_balances b
JOIN periods p ON p.id = b.period_id
WHERE b.user_id = $1
ORDER BY p.start_date DESC`, userID)
	if err != nil {
		return nil, shared.Storage("balances: list by user", err)
	}
	defer rows.Close()
	out := []PeriodBalance{}
	for rows.Next() {
		var p PeriodBalance
		if err := rows.Scan(&p.UserID, &p.PeriodID, &p.TotalIncome, &p.TotalOutflow, &p.TotalExpense, &p.LastComputedAt,
			&p.PeriodNumber, &p.PeriodYear, &p.StartDate, &p.EndDate); err != nil {
			return nil, shared.Storage("balances: list by user", err)
		}
		out = append(out, p)
	}
	return out, shared.Storage("balances: list by user", rows.Err())
}
