package closures

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/obra-ledger/obra-ledger/internal/observability"
	"github.com/obra-ledger/obra-ledger/internal/periods"
	"github.com/obra-ledger/obra-ledger/internal/rbac"
	"github.com/obra-ledger/obra-ledger/internal/shared"
	"github.com/obra-ledger/obra-ledger/internal/users"
)

// RepositoryPort describes lock persistence.
type RepositoryPort interface {
	IsClosedForUser(ctx context.Context, periodID, userID int64) (bool, error)
	Insert(ctx context.Context, in Lock) (Lock, error)
	Delete(ctx context.Context, lockID int64) (Lock, error)
	Find(ctx context.Context, periodID, userID int64) (LockDetail, bool, error)
	ListByPeriod(ctx context.Context, periodID int64) ([]LockDetail, error)
	ListByUser(ctx context.Context, userID int64) ([]LockDetail, error)
	Latest(ctx context.Context, limit int) ([]LockDetail, error)
	UsersWithout(ctx context.Context, periodID int64) ([]UserRef, error)
	CountActiveUsers(ctx context.Context) (int, error)
}

// PeriodSource is the slice of the period registry used here.
type PeriodSource interface {
	Get(ctx context.Context, id int64) (periods.Period, error)
	Current(ctx context.Context) (periods.Period, bool, error)
	Upcoming(ctx context.Context, daysAhead int) ([]periods.Period, error)
}

// UserSource resolves active users.
type UserSource interface {
	Active(ctx context.Context, id int64) (users.User, error)
}

// Auditor records administrative actions.
type Auditor interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service is the period lock ledger.
type Service struct {
	repo    RepositoryPort
	periods PeriodSource
	users   UserSource
	logger  *slog.Logger
	policy  rbac.Policy
	metrics *observability.Metrics
	audit   Auditor
	now     func() time.Time
}

// NewService constructs the lock ledger.
func NewService(repo RepositoryPort, periods PeriodSource, users UserSource, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:    repo,
		periods: periods,
		users:   users,
		logger:  logger,
		policy:  rbac.RolePolicy{},
		now:     time.Now,
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

// WithObservers attaches metrics and the audit trail.
func (s *Service) WithObservers(metrics *observability.Metrics, audit Auditor) {
	s.metrics = metrics
	s.audit = audit
}

// IsClosedForUser reports whether periodID is closed for userID.
func (s *Service) IsClosedForUser(ctx context.Context, periodID, userID int64) (bool, error) {
	return s.repo.IsClosedForUser(ctx, periodID, userID)
}

// Close locks periodID for userID.
func (s *Service) Close(ctx context.Context, actor rbac.Actor, periodID, userID int64, notes string) (Lock, error) {
	period, err := s.openPeriodForClose(ctx, actor, periodID)
	if err != nil {
		return Lock{}, err
	}
	return s.closeOne(ctx, actor, period, userID, notes)
}

// CloseMany closes periodID for each user independently and reports per-user outcomes.
func (s *Service) CloseMany(ctx context.Context, actor rbac.Actor, periodID int64, userIDs []int64, notes string) (BatchResult, error) {
	if len(userIDs) == 0 {
		return BatchResult{}, ErrNoUsers
	}
	period, err := s.openPeriodForClose(ctx, actor, periodID)
	if err != nil {
		return BatchResult{}, err
	}
	result := BatchResult{Succeeded: []Lock{}, Failed: []BatchFailure{}}
	seen := make(map[int64]struct{}, len(userIDs))
	for _, userID := range userIDs {
		if _, dup := seen[userID]; dup {
			continue
		}
		seen[userID] = struct{}{}
		lock, err := s.closeOne(ctx, actor, period, userID, notes)
		if err != nil {
			result.Failed = append(result.Failed, failureFor(userID, err))
			continue
		}
		result.Succeeded = append(result.Succeeded, lock)
	}
	s.logger.Info("period batch close",
		slog.Int64("period_id", periodID),
		slog.Int("succeeded", len(result.Succeeded)),
		slog.Int("failed", len(result.Failed)))
	return result, nil
}

// Reopen deletes a lock.
func (s *Service) Reopen(ctx context.Context, actor rbac.Actor, lockID int64) (Lock, error) {
	if !s.policy.CanClosePeriod(actor) {
		return Lock{}, shared.ErrForbidden
	}
	lock, err := s.repo.Delete(ctx, lockID)
	s.metrics.ObserveClosure("reopen", err)
	if err != nil {
		return Lock{}, err
	}
	s.record(ctx, actor, "period.reopen", lock)
	s.logger.Info("period reopened",
		slog.Int64("period_id", lock.PeriodID),
		slog.Int64("user_id", lock.UserID),
		slog.Int64("actor_id", actor.ID))
	return lock, nil
}

// UsersWithoutClosure lists active users with no lock in periodID.
func (s *Service) UsersWithoutClosure(ctx context.Context, periodID int64) ([]UserRef, error) {
	if _, err := s.periods.Get(ctx, periodID); err != nil {
		return nil, err
	}
	return s.repo.UsersWithout(ctx, periodID)
}

// Summary reports closure progress for periodID.
func (s *Service) Summary(ctx context.Context, periodID int64) (Summary, error) {
	if _, err := s.periods.Get(ctx, periodID); err != nil {
		return Summary{}, err
	}
	total, err := s.repo.CountActiveUsers(ctx)
	if err != nil {
		return Summary{}, err
	}
	without, err := s.repo.UsersWithout(ctx, periodID)
	if err != nil {
		return Summary{}, err
	}
	detail, err := s.repo.ListByPeriod(ctx, periodID)
	if err != nil {
		return Summary{}, err
	}
	if detail == nil {
		detail = []LockDetail{}
	}
	// Locks held by deactivated users stay in Detail but not in the counts.
	pending := len(without)
	closed := total - pending
	return Summary{
		PeriodID:     periodID,
		TotalUsers:   total,
		ClosedCount:  closed,
		PendingCount: pending,
		Percentage:   Percentage(closed, total),
		Detail:       detail,
	}, nil
}

// ListForUser lists the locks of userID; only the user or an administrator may ask.
func (s *Service) ListForUser(ctx context.Context, actor rbac.Actor, userID int64) ([]LockDetail, error) {
	if !s.policy.CanViewUser(actor, userID) {
		return nil, shared.ErrForbidden
	}
	return s.repo.ListByUser(ctx, userID)
}

// Status reports whether periodID is closed for userID, with the lock when it is.
func (s *Service) Status(ctx context.Context, periodID, userID int64) (Status, error) {
	if _, err := s.periods.Get(ctx, periodID); err != nil {
		return Status{}, err
	}
	d, ok, err := s.repo.Find(ctx, periodID, userID)
	if err != nil {
		return Status{}, err
	}
	st := Status{PeriodID: periodID, UserID: userID, Closed: ok}
	if ok {
		st.Lock = &d
	}
	return st, nil
}

// Dashboard builds the administrative overview.
func (s *Service) Dashboard(ctx context.Context) (Dashboard, error) {
	var (
		out Dashboard
		mu  sync.Mutex
	)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		current, ok, err := s.periods.Current(gctx)
		if err != nil || !ok {
			return err
		}
		summary, err := s.Summary(gctx, current.ID)
		if err != nil {
			return err
		}
		mu.Lock()
		out.Current = &current
		out.CurrentSummary = &summary
		mu.Unlock()
		return nil
	})

	g.Go(func() error {
		upcoming, err := s.periods.Upcoming(gctx, periods.DefaultDaysAhead)
		if err != nil {
			return err
		}
		ending := make([]EndingPeriod, len(upcoming))
		eg, ectx := errgroup.WithContext(gctx)
		for i, p := range upcoming {
			eg.Go(func() error {
				pending, err := s.repo.UsersWithout(ectx, p.ID)
				if err != nil {
					return err
				}
				preview := pending
				if len(preview) > DashboardPendingPreview {
					preview = preview[:DashboardPendingPreview]
				}
				if preview == nil {
					preview = []UserRef{}
				}
				ending[i] = EndingPeriod{Period: p, PendingCount: len(pending), PendingUsers: preview}
				return nil
			})
		}
		if err := eg.Wait(); err != nil {
			return err
		}
		mu.Lock()
		out.EndingSoon = ending
		mu.Unlock()
		return nil
	})

	g.Go(func() error {
		latest, err := s.repo.Latest(gctx, DashboardLatestClosures)
		if err != nil {
			return err
		}
		if latest == nil {
			latest = []LockDetail{}
		}
		mu.Lock()
		out.Latest = latest
		mu.Unlock()
		return nil
	})

	if err := g.Wait(); err != nil {
		return Dashboard{}, err
	}
	return out, nil
}

func (s *Service) openPeriodForClose(ctx context.Context, actor rbac.Actor, periodID int64) (periods.Period, error) {
	if !s.policy.CanClosePeriod(actor) {
		return periods.Period{}, shared.ErrForbidden
	}
	period, err := s.periods.Get(ctx, periodID)
	if err != nil {
		return periods.Period{}, err
	}
	if period.Ended(s.now()) {
		return periods.Period{}, ErrPeriodInPast
	}
	return period, nil
}

func (s *Service) closeOne(ctx context.Context, actor rbac.Actor, period periods.Period, userID int64, notes string) (Lock, error) {
	if _, err := s.users.Active(ctx, userID); err != nil {
		s.metrics.ObserveClosure("close", err)
		return Lock{}, err
	}
	lock, err := s.repo.Insert(ctx, Lock{
		PeriodID: period.ID,
		UserID:   userID,
		ClosedBy: actor.ID,
		ClosedAt: s.now(),
		Notes:    strings.TrimSpace(notes),
	})
	s.metrics.ObserveClosure("close", err)
	if err != nil {
		return Lock{}, err
	}
	s.record(ctx, actor, "period.close", lock)
	s.logger.Info("period closed",
		slog.Int64("period_id", period.ID),
		slog.Int64("user_id", userID),
		slog.Int64("actor_id", actor.ID))
	return lock, nil
}

func (s *Service) record(ctx context.Context, actor rbac.Actor, action string, lock Lock) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actor.ID,
		Action:   action,
		Entity:   "period_lock",
		EntityID: strconv.FormatInt(lock.ID, 10),
		Meta:     map[string]any{"period_id": lock.PeriodID, "user_id": lock.UserID, "notes": lock.Notes},
	})
	if err != nil {
		s.logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}

func failureFor(userID int64, err error) BatchFailure {
	f := BatchFailure{UserID: userID, Code: shared.CodeStorage, Reason: err.Error()}
	var domain *shared.Error
	if errors.As(err, &domain) {
		f.Code = domain.Code
		f.Reason = domain.Message
	}
	return f
}
