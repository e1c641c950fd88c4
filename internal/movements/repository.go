package movements

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/obra-ledger/obra-ledger/internal/shared"
)

const movementColumns = `id, movement_date, project_id, kind, payment_method, amount, memo, attachments,
	owner_id, period_id, active, created_at, updated_at`

// Repository persists movements in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanMovement(row pgx.Row) (Movement, error) {
	var m Movement
	var kind, method string
	err := row.Scan(&m.ID, &m.Date, &m.ProjectID, &kind, &method, &m.Amount, &m.Memo, &m.Attachments,
		&m.OwnerID, &m.PeriodID, &m.Active, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return Movement{}, err
	}
	m.Kind = Kind(kind)
	m.PaymentMethod = shared.PaymentMethod(method)
	if m.Attachments == nil {
		m.Attachments = []string{}
	}
	return m, nil
}

// Get loads a movement by id regardless of its active flag.
func (r *Repository) Get(ctx context.Context, id int64) (Movement, error) {
	m, err := scanMovement(r.pool.QueryRow(ctx, `SELECT `+movementColumns+` FROM movements WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Movement{}, ErrMovementNotFound
		}
		return Movement{}, shared.Storage("movements: get", err)
	}
	return m, nil
}

// Insert stores a new movement.
func (r *Repository) Insert(ctx context.Context, m Movement) (Movement, error) {
	out, err := scanMovement(r.pool.QueryRow(ctx, `
		INSERT INTO movements (movement_date, project_id, kind, payment_method, amount, memo, attachments,
			owner_id, period_id, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, TRUE, $10, $10)
		RETURNING `+movementColumns,
		m.Date, m.ProjectID, string(m.Kind), string(m.PaymentMethod), m.Amount, m.Memo, attachments(m.Attachments),
		m.OwnerID, m.PeriodID, m.CreatedAt))
	if err != nil {
		return Movement{}, shared.Storage("movements: insert", err)
	}
	return out, nil
}

// Update rewrites the mutable fields of an active movement.
func (r *Repository) Update(ctx context.Context, m Movement) (Movement, error) {
	out, err := scanMovement(r.pool.QueryRow(ctx, `
		UPDATE movements
		SET movement_date=$2, project_id=$3, kind=$4, payment_method=$5, amount=$6, memo=$7,
			attachments=$8, updated_at=$9
		WHERE id=$1 AND active
		RETURNING `+movementColumns,
		m.ID, m.Date, m.ProjectID, string(m.Kind), string(m.PaymentMethod), m.Amount, m.Memo,
		attachments(m.Attachments), m.UpdatedAt))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Movement{}, ErrMovementNotFound
		}
		return Movement{}, shared.Storage("movements: update", err)
	}
	return out, nil
}

// Deactivate soft-deletes an active movement.
func (r *Repository) Deactivate(ctx context.Context, id int64, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `UPDATE movements SET active=FALSE, updated_at=$2 WHERE id=$1 AND active`, id, at)
	if err != nil {
		return shared.Storage("movements: deactivate", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrMovementNotFound
	}
	return nil
}

// SumByPeriod sums active income and outflow of a period.
func (r *Repository) SumByPeriod(ctx context.Context, periodID int64) (Summary, error) {
	return r.sum(ctx, "movements: sum by period", `period_id=$1`, periodID)
}

// SumByProject sums active income and outflow of a project, optionally within one period.
func (r *Repository) SumByProject(ctx context.Context, projectID int64, periodID *int64) (Summary, error) {
	if periodID == nil {
		return r.sum(ctx, "movements: sum by project", `project_id=$1`, projectID)
	}
	return r.sum(ctx, "movements: sum by project", `project_id=$1 AND period_id=$2`, projectID, *periodID)
}

func (r *Repository) sum(ctx context.Context, op, where string, args ...any) (Summary, error) {
	var income, outflow decimal.Decimal
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount) FILTER (WHERE kind='INCOME'), 0),
		       COALESCE(SUM(amount) FILTER (WHERE kind='OUTFLOW'), 0)
		FROM movements
		WHERE active AND `+where, args...).Scan(&income, &outflow)
	if err != nil {
		return Summary{}, shared.Storage(op, err)
	}
	return NewSummary(income, outflow), nil
}

// List returns one page of active movements matching f, the total count and the filter totals.
func (r *Repository) List(ctx context.Context, f Filter) ([]Movement, int, Summary, error) {
	var conditions []string
	var args []any
	argPos := 1

	conditions = append(conditions, "active")
	add := func(expr string, v any) {
		conditions = append(conditions, fmt.Sprintf(expr, argPos))
		args = append(args, v)
		argPos++
	}
	if f.From != nil {
		add("movement_date >= $%d", *f.From)
	}
	if f.To != nil {
		add("movement_date <= $%d", *f.To)
	}
	if f.ProjectID != nil {
		add("project_id = $%d", *f.ProjectID)
	}
	if f.Kind != "" {
		add("kind = $%d", string(f.Kind))
	}
	if f.PaymentMethod != "" {
		add("payment_method = $%d", string(f.PaymentMethod))
	}
	if f.OwnerID != nil {
		add("owner_id = $%d", *f.OwnerID)
	}
	if f.PeriodID != nil {
		add("period_id = $%d", *f.PeriodID)
	}
	whereClause := "WHERE " + strings.Join(conditions, " AND ")

	var total int
	var income, outflow decimal.Decimal
	err := r.pool.QueryRow(ctx, fmt.Sprintf(`
		SELECT COUNT(*),
		       COALESCE(SUM(amount) FILTER (WHERE kind='INCOME'), 0),
		       COALESCE(SUM(amount) FILTER (WHERE kind='OUTFLOW'), 0)
		FROM movements %s`, whereClause), args...).Scan(&total, &income, &outflow)
	if err != nil {
		return nil, 0, Summary{}, shared.Storage("movements: count", err)
	}

	page, perPage := shared.NormalizePage(f.Page, f.PerPage)
	query := fmt.Sprintf(`SELECT `+movementColumns+` FROM movements %s
		ORDER BY movement_date DESC, created_at DESC, id DESC
		LIMIT $%d OFFSET $%d`, whereClause, argPos, argPos+1)
	args = append(args, perPage, shared.Offset(page, perPage))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, Summary{}, shared.Storage("movements: list", err)
	}
	defer rows.Close()
	items := []Movement{}
	for rows.Next() {
		m, err := scanMovement(rows)
		if err != nil {
			return nil, 0, Summary{}, shared.Storage("movements: list", err)
		}
		items = append(items, m)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, Summary{}, shared.Storage("movements: list", err)
	}
	return items, total, NewSummary(income, outflow), nil
}

func attachments(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
