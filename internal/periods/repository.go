package periods

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/obra-ledger/obra-ledger/internal/platform/db"
	"github.com/obra-ledger/obra-ledger/internal/shared"
)

// currentFlagLockKey serialises writers of periods.is_current.
const currentFlagLockKey int64 = 0x6c65646765720001

const periodColumns = `id, start_date, end_date, number, year, description, is_current`

// Repository persists periods in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func scanPeriod(row pgx.Row) (Period, error) {
	var p Period
	var number, year int16
	if err := row.Scan(&p.ID, &p.StartDate, &p.EndDate, &number, &year, &p.Description, &p.IsCurrent); err != nil {
		return Period{}, err
	}
	p.Number = int(number)
	p.Year = int(year)
	return p, nil
}

func getOne(ctx context.Context, q querier, op, sql string, args ...any) (Period, bool, error) {
	p, err := scanPeriod(q.QueryRow(ctx, sql, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Period{}, false, nil
		}
		return Period{}, false, shared.Storage(op, err)
	}
	return p, true, nil
}

func list(ctx context.Context, q querier, op, sql string, args ...any) ([]Period, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, shared.Storage(op, err)
	}
	defer rows.Close()
	var out []Period
	for rows.Next() {
		p, err := scanPeriod(rows)
		if err != nil {
			return nil, shared.Storage(op, err)
		}
		out = append(out, p)
	}
	return out, shared.Storage(op, rows.Err())
}

// Get loads a period by id.
func (r *Repository) Get(ctx context.Context, id int64) (Period, error) {
	p, ok, err := getOne(ctx, r.pool, "periods: get", `SELECT `+periodColumns+` FROM periods WHERE id=$1`, id)
	if err != nil {
		return Period{}, err
	}
	if !ok {
		return Period{}, ErrPeriodNotFound
	}
	return p, nil
}

// FindByDate returns the period whose inclusive bounds cover day.
func (r *Repository) FindByDate(ctx context.Context, day time.Time) (Period, bool, error) {
	return getOne(ctx, r.pool, "periods: find by date",
		`SELECT `+periodColumns+` FROM periods WHERE start_date <= $1 AND end_date >= $1 ORDER BY start_date LIMIT 1`, day)
}

// Flagged returns the period carrying the is_current flag.
func (r *Repository) Flagged(ctx context.Context) (Period, bool, error) {
	return getOne(ctx, r.pool, "periods: flagged", `SELECT `+periodColumns+` FROM periods WHERE is_current LIMIT 1`)
}

// EndingBetween lists periods whose end date falls in [from, to], by end date.
func (r *Repository) EndingBetween(ctx context.Context, from, to time.Time) ([]Period, error) {
	return list(ctx, r.pool, "periods: ending between",
		`SELECT `+periodColumns+` FROM periods WHERE end_date BETWEEN $1 AND $2 ORDER BY end_date, id`, from, to)
}

// ListByYear lists periods newest first; year 0 lists every year.
func (r *Repository) ListByYear(ctx context.Context, year int) ([]Period, error) {
	return list(ctx, r.pool, "periods: list",
		`SELECT `+periodColumns+` FROM periods WHERE ($1 = 0 OR year = $1) ORDER BY year DESC, number DESC`, year)
}

// WithTx executes fn within a read-committed transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil || r.pool == nil {
		return errors.New("periods: repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) CountByYear(ctx context.Context, year int) (int, error) {
	var n int
	if err := r.tx.QueryRow(ctx, `SELECT COUNT(*) FROM periods WHERE year=$1`, year).Scan(&n); err != nil {
		return 0, shared.Storage("periods: count year", err)
	}
	return n, nil
}

func (r *txRepository) InsertPeriods(ctx context.Context, periods []Period) ([]Period, error) {
	batch := &pgx.Batch{}
	for _, p := range periods {
		batch.Queue(`INSERT INTO periods (start_date, end_date, number, year, description, is_current)
VALUES ($1, $2, $3, $4, $5, $6) RETURNING `+periodColumns,
			p.StartDate, p.EndDate, p.Number, p.Year, p.Description, p.IsCurrent)
	}
	results := r.tx.SendBatch(ctx, batch)
	out := make([]Period, 0, len(periods))
	for range periods {
		p, err := scanPeriod(results.QueryRow())
		if err != nil {
			_ = results.Close()
			if shared.IsUniqueViolation(err, "periods_year_number_key") {
				return nil, ErrDuplicateYear
			}
			return nil, shared.Storage("periods: insert", err)
		}
		out = append(out, p)
	}
	if err := results.Close(); err != nil {
		return nil, shared.Storage("periods: insert", err)
	}
	return out, nil
}

func (r *txRepository) LockCurrentFlag(ctx context.Context) error {
	_, err := r.tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, currentFlagLockKey)
	return shared.Storage("periods: lock current flag", err)
}

func (r *txRepository) GetForUpdate(ctx context.Context, id int64) (Period, error) {
	p, ok, err := getOne(ctx, r.tx, "periods: get for update", `SELECT `+periodColumns+` FROM periods WHERE id=$1 FOR UPDATE`, id)
	if err != nil {
		return Period{}, err
	}
	if !ok {
		return Period{}, ErrPeriodNotFound
	}
	return p, nil
}

func (r *txRepository) ClearCurrent(ctx context.Context, exceptID int64) error {
	_, err := r.tx.Exec(ctx, `UPDATE periods SET is_current = FALSE WHERE is_current AND id <> $1`, exceptID)
	return shared.Storage("periods: clear current", err)
}

func (r *txRepository) SetCurrent(ctx context.Context, id int64, current bool) error {
	tag, err := r.tx.Exec(ctx, `UPDATE periods SET is_current = $2 WHERE id = $1`, id, current)
	if err != nil {
		return shared.Storage("periods: set current", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPeriodNotFound
	}
	return nil
}

func (r *txRepository) CountLocks(ctx context.Context, id int64) (int, error) {
	var n int
	if err := r.tx.QueryRow(ctx, `SELECT COUNT(*) FROM period_locks WHERE period_id=$1`, id).Scan(&n); err != nil {
		return 0, shared.Storage("periods: count locks", err)
	}
	return n, nil
}

func (r *txRepository) CountReferences(ctx context.Context, id int64) (int, error) {
	var n int
	err := r.tx.QueryRow(ctx, `SELECT
    (SELECT COUNT(*) FROM movements WHERE period_id=$1) +
    (SELECT COUNT(*) FROM user_transactions WHERE period_id=$1) +
    (SELECT COUNT(*) FROM user_balances WHERE period_id=$1)`, id).Scan(&n)
	if err != nil {
		return 0, shared.Storage("periods: count references", err)
	}
	return n, nil
}

func (r *txRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.tx.Exec(ctx, `DELETE FROM periods WHERE id=$1`, id)
	if err != nil {
		if shared.IsForeignKeyViolation(err) {
			return ErrPeriodInUse
		}
		return shared.Storage(fmt.Sprintf("periods: delete %d", id), err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPeriodNotFound
	}
	return nil
}
