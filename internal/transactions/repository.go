package transactions

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/obra-ledger/obra-ledger/internal/shared"
)

const txnColumns = `id, txn_date, origin_id, destination_id, kind, expense_type, project_id, supplier_name,
	memo, payment_method, amount, origin_status, destination_status, origin_confirmed_at,
	destination_confirmed_at, created_by, period_id, attachments, notes, active, created_at, updated_at`

// Repository persists transactions in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanTransaction(row pgx.Row) (Transaction, error) {
	var t Transaction
	var kind, method, originStatus, destStatus string
	var expenseType, supplier *string
	err := row.Scan(&t.ID, &t.Date, &t.OriginID, &t.DestinationID, &kind, &expenseType, &t.ProjectID, &supplier,
		&t.Memo, &method, &t.Amount, &originStatus, &destStatus, &t.OriginConfirmedAt,
		&t.DestinationConfirmedAt, &t.CreatedBy, &t.PeriodID, &t.Attachments, &t.Notes, &t.Active, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return Transaction{}, err
	}
	t.Kind = Kind(kind)
	t.PaymentMethod = shared.PaymentMethod(method)
	t.OriginStatus = SideStatus(originStatus)
	t.DestinationStatus = SideStatus(destStatus)
	if expenseType != nil {
		t.ExpenseType = ExpenseType(*expenseType)
	}
	if supplier != nil {
		t.SupplierName = *supplier
	}
	if t.Attachments == nil {
		t.Attachments = []string{}
	}
	return t, nil
}

func collect(rows pgx.Rows, op string) ([]Transaction, error) {
	defer rows.Close()
	out := []Transaction{}
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, shared.Storage(op, err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, shared.Storage(op, err)
	}
	return out, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Get loads a transaction by id regardless of its active flag.
func (r *Repository) Get(ctx context.Context, id int64) (Transaction, error) {
	t, err := scanTransaction(r.pool.QueryRow(ctx, `SELECT `+txnColumns+` FROM user_transactions WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transaction{}, ErrTransactionNotFound
		}
		return Transaction{}, shared.Storage("transactions: get", err)
	}
	return t, nil
}

// Insert stores a new transaction.
func (r *Repository) Insert(ctx context.Context, t Transaction) (Transaction, error) {
	attachments := t.Attachments
	if attachments == nil {
		attachments = []string{}
	}
	out, err := scanTransaction(r.pool.QueryRow(ctx, `
		INSERT INTO user_transactions (txn_date, origin_id, destination_id, kind, expense_type, project_id,
			supplier_name, memo, payment_method, amount, origin_status, destination_status,
			origin_confirmed_at, destination_confirmed_at, created_by, period_id, attachments, notes,
			active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, TRUE, $19, $19)
		RETURNING `+txnColumns,
		t.Date, t.OriginID, t.DestinationID, string(t.Kind), nullable(string(t.ExpenseType)), t.ProjectID,
		nullable(t.SupplierName), t.Memo, string(t.PaymentMethod), t.Amount, string(t.OriginStatus),
		string(t.DestinationStatus), t.OriginConfirmedAt, t.DestinationConfirmedAt, t.CreatedBy, t.PeriodID,
		attachments, t.Notes, t.CreatedAt))
	if err != nil {
		return Transaction{}, shared.Storage("transactions: insert", err)
	}
	return out, nil
}

// Transition moves side from PENDING to status. The write only applies while that side is
// still pending and the other side has not rejected; applied reports whether it did.
func (r *Repository) Transition(ctx context.Context, id int64, side Side, status SideStatus, at time.Time) (Transaction, bool, error) {
	own, other := "origin", "destination"
	if side == SideDestination {
		own, other = "destination", "origin"
	}
	sql := fmt.Sprintf(`
		UPDATE user_transactions
		SET %[1]s_status=$2, %[1]s_confirmed_at=$3, updated_at=$3
		WHERE id=$1 AND active AND %[1]s_status='PENDING' AND %[2]s_status<>'REJECTED'
		RETURNING `+txnColumns, own, other)
	t, err := scanTransaction(r.pool.QueryRow(ctx, sql, id, string(status), at))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transaction{}, false, nil
		}
		return Transaction{}, false, shared.Storage("transactions: transition", err)
	}
	return t, true, nil
}

// Deactivate soft-deletes an active transaction that is not settled; applied reports whether it did.
func (r *Repository) Deactivate(ctx context.Context, id int64, at time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE user_transactions SET active=FALSE, updated_at=$2
		WHERE id=$1 AND active AND NOT (origin_status='CONFIRMED' AND destination_status='CONFIRMED')`, id, at)
	if err != nil {
		return false, shared.Storage("transactions: deactivate", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Settled lists active settled transactions involving userID, optionally within one period.
func (r *Repository) Settled(ctx context.Context, userID int64, periodID *int64) ([]Transaction, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+txnColumns+` FROM user_transactions
		WHERE active AND origin_status='CONFIRMED' AND destination_status='CONFIRMED'
		  AND (origin_id=$1 OR destination_id=$1)
		  AND ($2::BIGINT IS NULL OR period_id=$2)
		ORDER BY txn_date, id`, userID, periodID)
	if err != nil {
		return nil, shared.Storage("transactions: settled", err)
	}
	return collect(rows, "transactions: settled")
}

// PendingFor lists active transactions waiting on userID's own side, newest first.
func (r *Repository) PendingFor(ctx context.Context, userID int64) ([]Transaction, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+txnColumns+` FROM user_transactions
		WHERE active AND ((origin_id=$1 AND origin_status='PENDING') OR (destination_id=$1 AND destination_status='PENDING'))
		ORDER BY created_at DESC, id DESC`, userID)
	if err != nil {
		return nil, shared.Storage("transactions: pending", err)
	}
	return collect(rows, "transactions: pending")
}

// SettledParticipants lists the users holding a side of a settled transaction in periodID.
func (r *Repository) SettledParticipants(ctx context.Context, periodID int64) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT origin_id FROM user_transactions
		WHERE active AND period_id=$1 AND origin_status='CONFIRMED' AND destination_status='CONFIRMED'
		UNION
		SELECT destination_id FROM user_transactions
		WHERE active AND period_id=$1 AND origin_status='CONFIRMED' AND destination_status='CONFIRMED'
		ORDER BY 1`, periodID)
	if err != nil {
		return nil, shared.Storage("transactions: participants", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, shared.Storage("transactions: participants", err)
	}
	return ids, nil
}

// List returns one page of active transactions involving userID that match f, with the total count.
func (r *Repository) List(ctx context.Context, userID int64, f Filter) ([]Transaction, int, error) {
	var conditions []string
	var args []any
	argPos := 1

	add := func(expr string, v any) {
		conditions = append(conditions, fmt.Sprintf(expr, argPos))
		args = append(args, v)
		argPos++
	}
	conditions = append(conditions, "active")
	add("(origin_id = $%[1]d OR destination_id = $%[1]d OR created_by = $%[1]d)", userID)
	if f.From != nil {
		add("txn_date >= $%d", *f.From)
	}
	if f.To != nil {
		add("txn_date <= $%d", *f.To)
	}
	if f.OriginID != nil {
		add("origin_id = $%d", *f.OriginID)
	}
	if f.DestinationID != nil {
		add("destination_id = $%d", *f.DestinationID)
	}
	if f.Kind != "" {
		add("kind = $%d", string(f.Kind))
	}
	if f.PeriodID != nil {
		add("period_id = $%d", *f.PeriodID)
	}
	switch f.State {
	case StateSettled:
		conditions = append(conditions, "origin_status='CONFIRMED' AND destination_status='CONFIRMED'")
	case StateRejected:
		conditions = append(conditions, "(origin_status='REJECTED' OR destination_status='REJECTED')")
	case StateAwaiting:
		conditions = append(conditions, "(origin_status='PENDING' OR destination_status='PENDING')",
			"origin_status<>'REJECTED' AND destination_status<>'REJECTED'")
	}
	whereClause := "WHERE " + strings.Join(conditions, " AND ")

	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM user_transactions "+whereClause, args...).Scan(&total); err != nil {
		return nil, 0, shared.Storage("transactions: count", err)
	}

	page, perPage := shared.NormalizePage(f.Page, f.PerPage)
	query := fmt.Sprintf(`SELECT `+txnColumns+` FROM user_transactions %s
		ORDER BY txn_date DESC, created_at DESC, id DESC
		LIMIT $%d OFFSET $%d`, whereClause, argPos, argPos+1)
	args = append(args, perPage, shared.Offset(page, perPage))
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, shared.Storage("transactions: list", err)
	}
	items, err := collect(rows, "transactions: list")
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}
