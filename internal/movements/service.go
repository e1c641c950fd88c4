package movements

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/obra-ledger/obra-ledger/internal/periods"
	"github.com/obra-ledger/obra-ledger/internal/projects"
	"github.com/obra-ledger/obra-ledger/internal/rbac"
	"github.com/obra-ledger/obra-ledger/internal/shared"
)

// RepositoryPort describes movement persistence.
type RepositoryPort interface {
	Get(ctx context.Context, id int64) (Movement, error)
	Insert(ctx context.Context, m Movement) (Movement, error)
	Update(ctx context.Context, m Movement) (Movement, error)
	Deactivate(ctx context.Context, id int64, at time.Time) error
	SumByPeriod(ctx context.Context, periodID int64) (Summary, error)
	SumByProject(ctx context.Context, projectID int64, periodID *int64) (Summary, error)
	List(ctx context.Context, f Filter) ([]Movement, int, Summary, error)
}

// PeriodGate checks the lock state before a mutation.
type PeriodGate interface {
	EnsureOpen(ctx context.Context, userID int64) (periods.Period, error)
	EnsureUnlocked(ctx context.Context, periodID int64, userIDs ...int64) error
}

// PeriodLookup loads a period by id.
type PeriodLookup interface {
	Get(ctx context.Context, id int64) (periods.Period, error)
}

// Auditor records administrative actions.
type Auditor interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service is the movement ledger.
type Service struct {
	repo     RepositoryPort
	gate     PeriodGate
	periods  PeriodLookup
	projects projects.Directory
	logger   *slog.Logger
	policy   rbac.Policy
	audit    Auditor
	now      func() time.Time
}

// NewService constructs the movement ledger.
func NewService(repo RepositoryPort, gate PeriodGate, lookup PeriodLookup, directory projects.Directory, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:     repo,
		gate:     gate,
		periods:  lookup,
		projects: directory,
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

// WithAuditor attaches the audit trail.
func (s *Service) WithAuditor(a Auditor) {
	s.audit = a
}

// Create records a movement in the current period for the acting user.
func (s *Service) Create(ctx context.Context, actor rbac.Actor, in CreateInput) (Movement, error) {
	period, err := s.gate.EnsureOpen(ctx, actor.ID)
	if err != nil {
		return Movement{}, err
	}
	m := Movement{
		Date:          in.Date,
		ProjectID:     in.ProjectID,
		Kind:          in.Kind,
		PaymentMethod: in.PaymentMethod,
		Amount:        in.Amount,
		Memo:          in.Memo,
		Attachments:   in.Attachments,
	}
	if err := normalize(&m); err != nil {
		return Movement{}, err
	}
	if !period.Contains(m.Date) {
		return Movement{}, ErrInvalidDate
	}
	if err := s.ensureProject(ctx, m.ProjectID); err != nil {
		return Movement{}, err
	}
	now := s.now()
	m.OwnerID = actor.ID
	m.PeriodID = period.ID
	m.Active = true
	m.CreatedAt = now
	m.UpdatedAt = now
	created, err := s.repo.Insert(ctx, m)
	if err != nil {
		return Movement{}, err
	}
	s.logger.Info("movement created",
		slog.Int64("movement_id", created.ID),
		slog.Int64("period_id", created.PeriodID),
		slog.String("kind", string(created.Kind)),
		slog.String("amount", created.Amount.StringFixed(2)))
	return created, nil
}

// Update applies patch to an active movement.
func (s *Service) Update(ctx context.Context, actor rbac.Actor, id int64, patch Patch) (Movement, error) {
	m, err := s.mutable(ctx, actor, id)
	if err != nil {
		return Movement{}, err
	}
	projectChanged := patch.ProjectID != nil && *patch.ProjectID != m.ProjectID
	previousDate := m.Date
	apply(&m, patch)
	if err := normalize(&m); err != nil {
		return Movement{}, err
	}
	if !m.Date.Equal(previousDate) {
		period, err := s.periods.Get(ctx, m.PeriodID)
		if err != nil {
			return Movement{}, err
		}
		if !period.Contains(m.Date) {
			return Movement{}, ErrInvalidDate
		}
	}
	if projectChanged {
		if err := s.ensureProject(ctx, m.ProjectID); err != nil {
			return Movement{}, err
		}
	}
	m.UpdatedAt = s.now()
	updated, err := s.repo.Update(ctx, m)
	if err != nil {
		return Movement{}, err
	}
	s.logger.Info("movement updated", slog.Int64("movement_id", id), slog.Int64("actor_id", actor.ID))
	return updated, nil
}

// SoftDelete deactivates a movement.
func (s *Service) SoftDelete(ctx context.Context, actor rbac.Actor, id int64) error {
	m, err := s.mutable(ctx, actor, id)
	if err != nil {
		return err
	}
	if err := s.repo.Deactivate(ctx, id, s.now()); err != nil {
		return err
	}
	if s.audit != nil {
		err := s.audit.Record(ctx, shared.AuditLog{
			ActorID:  actor.ID,
			Action:   "movement.delete",
			Entity:   "movement",
			EntityID: strconv.FormatInt(id, 10),
			Meta:     map[string]any{"owner_id": m.OwnerID, "period_id": m.PeriodID, "amount": m.Amount.StringFixed(2)},
		})
		if err != nil {
			s.logger.Warn("audit record failed", slog.String("action", "movement.delete"), slog.Any("error", err))
		}
	}
	s.logger.Info("movement deleted", slog.Int64("movement_id", id), slog.Int64("actor_id", actor.ID))
	return nil
}

// Get loads an active movement.
func (s *Service) Get(ctx context.Context, id int64) (Movement, error) {
	m, err := s.repo.Get(ctx, id)
	if err != nil {
		return Movement{}, err
	}
	if !m.Active {
		return Movement{}, ErrMovementNotFound
	}
	return m, nil
}

// List returns a page of active movements with the totals of the whole filter.
func (s *Service) List(ctx context.Context, f Filter) (Page, error) {
	if f.Kind != "" && !f.Kind.Valid() {
		return Page{}, shared.FieldError("kind", "must be one of INCOME OUTFLOW")
	}
	if f.PaymentMethod != "" && !f.PaymentMethod.Valid() {
		return Page{}, shared.FieldError("payment_method", "is not a known payment method")
	}
	if f.From != nil && f.To != nil && f.To.Before(*f.From) {
		return Page{}, shared.FieldError("to", "must not be before from")
	}
	f.Page, f.PerPage = shared.NormalizePage(f.Page, f.PerPage)
	items, total, summary, err := s.repo.List(ctx, f)
	if err != nil {
		return Page{}, err
	}
	return Page{Items: items, Pagination: shared.NewPagination(f.Page, f.PerPage, total), Summary: summary}, nil
}

// SummaryByPeriod sums active income and outflow of periodID.
func (s *Service) SummaryByPeriod(ctx context.Context, periodID int64) (Summary, error) {
	return s.repo.SumByPeriod(ctx, periodID)
}

// SummaryByProject sums active income and outflow of projectID, optionally within one period.
func (s *Service) SummaryByProject(ctx context.Context, projectID int64, periodID *int64) (Summary, error) {
	return s.repo.SumByProject(ctx, projectID, periodID)
}

// mutable loads a movement the actor may change in an open period.
func (s *Service) mutable(ctx context.Context, actor rbac.Actor, id int64) (Movement, error) {
	m, err := s.Get(ctx, id)
	if err != nil {
		return Movement{}, err
	}
	if !s.policy.CanModifyMovement(actor, m.OwnerID) {
		return Movement{}, shared.ErrForbidden
	}
	if err := s.gate.EnsureUnlocked(ctx, m.PeriodID, actor.ID, m.OwnerID); err != nil {
		return Movement{}, err
	}
	return m, nil
}

func (s *Service) ensureProject(ctx context.Context, projectID int64) error {
	ok, err := s.projects.IsProjectActive(ctx, projectID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidProject
	}
	return nil
}

func apply(m *Movement, p Patch) {
	if p.Date != nil {
		m.Date = *p.Date
	}
	if p.ProjectID != nil {
		m.ProjectID = *p.ProjectID
	}
	if p.Kind != nil {
		m.Kind = *p.Kind
	}
	if p.PaymentMethod != nil {
		m.PaymentMethod = *p.PaymentMethod
	}
	if p.Amount != nil {
		m.Amount = *p.Amount
	}
	if p.Memo != nil {
		m.Memo = *p.Memo
	}
	if p.Attachments != nil {
		m.Attachments = p.Attachments
	}
}

// normalize validates m in place, collecting every field failure.
func normalize(m *Movement) error {
	fields := map[string]string{}
	if m.Date.IsZero() {
		fields["date"] = "is required"
	} else {
		m.Date = shared.Day(m.Date)
	}
	if m.ProjectID <= 0 {
		fields["project_id"] = "is required"
	}
	if !m.Kind.Valid() {
		fields["kind"] = "must be one of INCOME OUTFLOW"
	}
	if !m.PaymentMethod.Valid() {
		fields["payment_method"] = "is not a known payment method"
	}
	amount, err := shared.NormalizeAmount("amount", m.Amount)
	if err != nil {
		fields["amount"] = "must be greater than 0"
	}
	m.Amount = amount
	m.Memo = strings.TrimSpace(m.Memo)
	if n := utf8.RuneCountInString(m.Memo); n == 0 || n > MaxMemoLength {
		fields["memo"] = "must have between 1 and 1000 characters"
	}
	if m.Attachments == nil {
		m.Attachments = []string{}
	}
	if len(fields) > 0 {
		return shared.ValidationError(fields)
	}
	return nil
}
