package transactions

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/obra-ledger/obra-ledger/internal/notify"
	"github.com/obra-ledger/obra-ledger/internal/observability"
	"github.com/obra-ledger/obra-ledger/internal/periods"
	"github.com/obra-ledger/obra-ledger/internal/projects"
	"github.com/obra-ledger/obra-ledger/internal/rbac"
	"github.com/obra-ledger/obra-ledger/internal/shared"
	"github.com/obra-ledger/obra-ledger/internal/users"
)

// RepositoryPort describes transaction persistence.
type RepositoryPort interface {
	Get(ctx context.Context, id int64) (Transaction, error)
	Insert(ctx context.Context, t Transaction) (Transaction, error)
	Transition(ctx context.Context, id int64, side Side, status SideStatus, at time.Time) (Transaction, bool, error)
	Deactivate(ctx context.Context, id int64, at time.Time) (bool, error)
	Settled(ctx context.Context, userID int64, periodID *int64) ([]Transaction, error)
	PendingFor(ctx context.Context, userID int64) ([]Transaction, error)
	SettledParticipants(ctx context.Context, periodID int64) ([]int64, error)
	List(ctx context.Context, userID int64, f Filter) ([]Transaction, int, error)
}

// PeriodGate checks the lock state before a mutation.
type PeriodGate interface {
	EnsureOpen(ctx context.Context, userID int64) (periods.Period, error)
	EnsureUnlocked(ctx context.Context, periodID int64, userIDs ...int64) error
}

// UserSource resolves active users.
type UserSource interface {
	Active(ctx context.Context, id int64) (users.User, error)
}

// BalanceRecomputer rebuilds the cached balance of a user in a period.
type BalanceRecomputer interface {
	Recompute(ctx context.Context, userID, periodID int64) error
}

// IdempotencyClaimer claims request keys so retried creates are rejected.
type IdempotencyClaimer interface {
	CheckAndInsert(ctx context.Context, key, scope string) error
	Release(ctx context.Context, key, scope string) error
}

// Service is the transaction ledger.
type Service struct {
	repo        RepositoryPort
	gate        PeriodGate
	users       UserSource
	projects    projects.Directory
	notifier    notify.Notifier
	balances    BalanceRecomputer
	idempotency IdempotencyClaimer
	logger      *slog.Logger
	policy      rbac.Policy
	metrics     *observability.Metrics
	now         func() time.Time
}

// NewService constructs the transaction ledger.
func NewService(repo RepositoryPort, gate PeriodGate, users UserSource, directory projects.Directory, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:     repo,
		gate:     gate,
		users:    users,
		projects: directory,
		notifier: notify.Nop{},
		logger:   logger,
		policy:   rbac.RolePolicy{},
		now:      time.Now,
	}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// WithPolicy replaces the capability policy.
func (s *Service) WithPolicy(p rbac.Policy) {
	if p != nil {
		s.policy = p
	}
}

// WithNotifier sets the event dispatcher.
func (s *Service) WithNotifier(n notify.Notifier) {
	if n != nil {
		s.notifier = n
	}
}

// WithRecomputer wires the balance aggregator, which itself reads from this service.
func (s *Service) WithRecomputer(b BalanceRecomputer) {
	s.balances = b
}

// WithIdempotency enables Idempotency-Key handling on Create.
func (s *Service) WithIdempotency(store IdempotencyClaimer) {
	s.idempotency = store
}

// WithMetrics attaches ledger counters.
func (s *Service) WithMetrics(m *observability.Metrics) {
	s.metrics = m
}

// Create records a transaction in the current period. The creator's side is confirmed
// immediately and the counterpart is notified.
func (s *Service) Create(ctx context.Context, actor rbac.Actor, in CreateInput) (created Transaction, err error) {
	if key := strings.TrimSpace(in.IdempotencyKey); key != "" && s.idempotency != nil {
		scope := "transactions.create:" + strconv.FormatInt(actor.ID, 10)
		if err := s.idempotency.CheckAndInsert(ctx, key, scope); err != nil {
			return Transaction{}, err
		}
		defer func() {
			if err == nil {
				return
			}
			if relErr := s.idempotency.Release(context.WithoutCancel(ctx), key, scope); relErr != nil {
				s.logger.Warn("release idempotency key", slog.String("scope", scope), slog.Any("error", relErr))
			}
		}()
	}

	period, err := s.gate.EnsureOpen(ctx, actor.ID)
	if err != nil {
		return Transaction{}, err
	}
	t := Transaction{
		Date:          in.Date,
		OriginID:      in.OriginID,
		DestinationID: in.DestinationID,
		Kind:          in.Kind,
		ExpenseType:   in.ExpenseType,
		ProjectID:     in.ProjectID,
		SupplierName:  in.SupplierName,
		Memo:          in.Memo,
		PaymentMethod: in.PaymentMethod,
		Amount:        in.Amount,
		Attachments:   in.Attachments,
		Notes:         in.Notes,
	}
	if err := normalize(&t); err != nil {
		return Transaction{}, err
	}
	if !period.Contains(t.Date) {
		return Transaction{}, ErrInvalidDate
	}
	side, ok := t.SideOf(actor.ID)
	if !ok {
		return Transaction{}, ErrNotParticipant
	}
	counterpart := t.Counterpart(actor.ID)
	if _, err := s.users.Active(ctx, counterpart); err != nil {
		return Transaction{}, err
	}
	if t.ExpenseType == ExpenseProject {
		active, err := s.projects.IsProjectActive(ctx, *t.ProjectID)
		if err != nil {
			return Transaction{}, err
		}
		if !active {
			return Transaction{}, ErrInvalidProject
		}
	}

	now := s.now()
	t.OriginStatus, t.DestinationStatus = StatusPending, StatusPending
	if side == SideOrigin {
		t.OriginStatus, t.OriginConfirmedAt = StatusConfirmed, &now
	} else {
		t.DestinationStatus, t.DestinationConfirmedAt = StatusConfirmed, &now
	}
	t.CreatedBy = actor.ID
	t.PeriodID = period.ID
	t.Active = true
	t.CreatedAt = now
	t.UpdatedAt = now

	created, err = s.repo.Insert(ctx, t)
	if err != nil {
		return Transaction{}, err
	}
	s.logger.Info("transaction created",
		slog.Int64("transaction_id", created.ID),
		slog.Int64("period_id", created.PeriodID),
		slog.String("kind", string(created.Kind)),
		slog.String("amount", created.Amount.StringFixed(2)),
		slog.Int64("actor_id", actor.ID))
	s.notify(ctx, counterpart, notify.KindTransactionCreated, map[string]any{
		"transaction_id": created.ID,
		"from_user_id":   actor.ID,
		"amount":         created.Amount.StringFixed(2),
		"kind":           string(created.Kind),
	})
	return created, nil
}

// ConfirmOrReject records the acting participant's answer. A settling confirmation
// recomputes both participants' balances before returning; if that fails the committed
// transaction is returned with a storage error.
func (s *Service) ConfirmOrReject(ctx context.Context, actor rbac.Actor, id int64, action Action) (Transaction, error) {
	if !action.Valid() {
		return Transaction{}, shared.FieldError("action", "must be one of confirm reject")
	}
	t, err := s.active(ctx, id)
	if err != nil {
		return Transaction{}, err
	}
	side, ok := t.SideOf(actor.ID)
	if !ok {
		return Transaction{}, ErrNotParticipant
	}
	if t.StatusOf(side) != StatusPending || t.State() == StateRejected {
		return Transaction{}, ErrAlreadyProcessed
	}
	if err := s.gate.EnsureUnlocked(ctx, t.PeriodID, actor.ID); err != nil {
		return Transaction{}, err
	}

	updated, applied, err := s.repo.Transition(ctx, id, side, action.Status(), s.now())
	if err != nil {
		return Transaction{}, err
	}
	if !applied {
		return Transaction{}, ErrAlreadyProcessed
	}
	state := updated.State()
	s.metrics.ObserveTransition(string(action), string(state))
	s.logger.Info("transaction "+string(action),
		slog.Int64("transaction_id", id),
		slog.String("side", string(side)),
		slog.String("state", string(state)),
		slog.Int64("actor_id", actor.ID))

	var recomputeErr error
	if state == StateSettled {
		recomputeErr = s.recompute(ctx, updated)
	}

	payload := map[string]any{
		"transaction_id": id,
		"action":         string(action),
		"updated_by":     actor.ID,
		"status":         string(action.Status()),
		"state":          string(state),
	}
	s.notify(ctx, updated.Counterpart(actor.ID), notify.KindTransactionUpdated, payload)
	s.notify(ctx, actor.ID, notify.KindTransactionUpdated, payload)
	if recomputeErr != nil {
		return updated, shared.Storage("transactions: recompute", recomputeErr)
	}
	return updated, nil
}

// BalanceFor sums the settled transactions of userID, optionally within one period.
func (s *Service) BalanceFor(ctx context.Context, userID int64, periodID *int64) (Totals, error) {
	txns, err := s.repo.Settled(ctx, userID, periodID)
	if err != nil {
		return Totals{}, err
	}
	return Sum(txns, userID), nil
}

// PendingFor lists active transactions waiting on userID's own side.
func (s *Service) PendingFor(ctx context.Context, userID int64) ([]Transaction, error) {
	return s.repo.PendingFor(ctx, userID)
}

// SettledParticipants lists users holding a side of a settled transaction in periodID.
func (s *Service) SettledParticipants(ctx context.Context, periodID int64) ([]int64, error) {
	return s.repo.SettledParticipants(ctx, periodID)
}

// SoftDelete deactivates a transaction that has not settled.
func (s *Service) SoftDelete(ctx context.Context, actor rbac.Actor, id int64) error {
	t, err := s.active(ctx, id)
	if err != nil {
		return err
	}
	if !s.policy.CanDeleteTransaction(actor, t.CreatedBy) {
		return shared.ErrForbidden
	}
	if t.State() == StateSettled {
		return ErrCannotDeleteSettled
	}
	if err := s.gate.EnsureUnlocked(ctx, t.PeriodID, actor.ID); err != nil {
		return err
	}
	applied, err := s.repo.Deactivate(ctx, id, s.now())
	if err != nil {
		return err
	}
	if !applied {
		// Settled or deleted concurrently.
		latest, err := s.active(ctx, id)
		if err != nil {
			return err
		}
		if latest.State() == StateSettled {
			return ErrCannotDeleteSettled
		}
		return ErrTransactionNotFound
	}
	s.logger.Info("transaction deleted",
		slog.Int64("transaction_id", id),
		slog.String("state", string(t.State())),
		slog.Int64("actor_id", actor.ID))
	return nil
}

// Get loads a transaction visible to actor.
func (s *Service) Get(ctx context.Context, actor rbac.Actor, id int64) (Transaction, error) {
	t, err := s.active(ctx, id)
	if err != nil {
		return Transaction{}, err
	}
	if !t.Involves(actor.ID) && !actor.Role.IsAdmin() {
		return Transaction{}, shared.ErrForbidden
	}
	return t, nil
}

// List returns a page of the transactions actor participates in or created.
func (s *Service) List(ctx context.Context, actor rbac.Actor, f Filter) (Page, error) {
	if f.Kind != "" && !f.Kind.Valid() {
		return Page{}, shared.FieldError("kind", "must be one of INCOME OUTFLOW EXPENSE")
	}
	if f.State != "" && !f.State.Valid() {
		return Page{}, shared.FieldError("state", "must be one of awaiting settled rejected")
	}
	if f.From != nil && f.To != nil && f.To.Before(*f.From) {
		return Page{}, shared.FieldError("to", "must not be before from")
	}
	f.Page, f.PerPage = shared.NormalizePage(f.Page, f.PerPage)
	items, total, err := s.repo.List(ctx, actor.ID, f)
	if err != nil {
		return Page{}, err
	}
	return Page{Items: items, Pagination: shared.NewPagination(f.Page, f.PerPage, total)}, nil
}

func (s *Service) active(ctx context.Context, id int64) (Transaction, error) {
	t, err := s.repo.Get(ctx, id)
	if err != nil {
		return Transaction{}, err
	}
	if !t.Active {
		return Transaction{}, ErrTransactionNotFound
	}
	return t, nil
}

// recompute refreshes both participants, stopping at the first failure.
func (s *Service) recompute(ctx context.Context, t Transaction) error {
	if s.balances == nil {
		return nil
	}
	for _, userID := range []int64{t.OriginID, t.DestinationID} {
		if err := s.balances.Recompute(ctx, userID, t.PeriodID); err != nil {
			s.logger.Error("balance recompute after settlement",
				slog.Int64("transaction_id", t.ID),
				slog.Int64("user_id", userID),
				slog.Int64("period_id", t.PeriodID),
				slog.Any("error", err))
			return err
		}
	}
	return nil
}

func (s *Service) notify(ctx context.Context, userID int64, kind notify.Kind, payload map[string]any) {
	if err := s.notifier.Notify(ctx, userID, kind, payload); err != nil {
		s.logger.Warn("notify", slog.String("kind", string(kind)), slog.Int64("user_id", userID), slog.Any("error", err))
	}
}

// normalize validates t in place, collecting every field failure.
func normalize(t *Transaction) error {
	fields := map[string]string{}
	if t.Date.IsZero() {
		fields["date"] = "is required"
	} else {
		t.Date = shared.Day(t.Date)
	}
	if t.OriginID <= 0 {
		fields["origin_id"] = "is required"
	}
	if t.DestinationID <= 0 {
		fields["destination_id"] = "is required"
	}
	if t.OriginID > 0 && t.OriginID == t.DestinationID {
		fields["destination_id"] = "must differ from origin_id"
	}
	if !t.Kind.Valid() {
		fields["kind"] = "must be one of INCOME OUTFLOW EXPENSE"
	}
	if !t.PaymentMethod.Valid() {
		fields["payment_method"] = "is not a known payment method"
	}
	amount, err := shared.NormalizeAmount("amount", t.Amount)
	if err != nil {
		fields["amount"] = "must be greater than 0"
	}
	t.Amount = amount
	t.Memo = strings.TrimSpace(t.Memo)
	if utf8.RuneCountInString(t.Memo) > MaxTextLength {
		fields["memo"] = "must have at most 1000 characters"
	}
	t.Notes = strings.TrimSpace(t.Notes)
	if utf8.RuneCountInString(t.Notes) > MaxTextLength {
		fields["notes"] = "must have at most 1000 characters"
	}
	t.SupplierName = strings.TrimSpace(t.SupplierName)
	expenseFields(t, fields)
	if t.Attachments == nil {
		t.Attachments = []string{}
	}
	if len(fields) > 0 {
		return shared.ValidationError(fields)
	}
	return nil
}

// expenseFields enforces that expense detail is present exactly when the kind and type call for it.
func expenseFields(t *Transaction, fields map[string]string) {
	if t.Kind != KindExpense {
		if t.ExpenseType != "" {
			fields["expense_type"] = "is only allowed for EXPENSE"
		}
		if t.ProjectID != nil {
			fields["project_id"] = "is only allowed for PROJECT expenses"
		}
		if t.SupplierName != "" {
			fields["supplier_name"] = "is only allowed for SUPPLIER expenses"
		}
		return
	}
	if !t.ExpenseType.Valid() {
		fields["expense_type"] = "is required for EXPENSE and must be one of PROJECT SUPPLIER OTHER"
		return
	}
	switch t.ExpenseType {
	case ExpenseProject:
		if t.ProjectID == nil || *t.ProjectID <= 0 {
			fields["project_id"] = "is required for PROJECT expenses"
		}
	default:
		if t.ProjectID != nil {
			fields["project_id"] = "is only allowed for PROJECT expenses"
		}
	}
	switch t.ExpenseType {
	case ExpenseSupplier:
		if t.SupplierName == "" {
			fields["supplier_name"] = "is required for SUPPLIER expenses"
		}
	default:
		if t.SupplierName != "" {
			fields["supplier_name"] = "is only allowed for SUPPLIER expenses"
		}
	}
}
