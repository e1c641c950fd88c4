package periods

import (
	"context"
	"log/slog"
	"time"

	"github.com/obra-ledger/obra-ledger/internal/shared"
)

// RepositoryPort describes persistence used by the registry.
type RepositoryPort interface {
	Get(ctx context.Context, id int64) (Period, error)
	FindByDate(ctx context.Context, day time.Time) (Period, bool, error)
	Flagged(ctx context.Context) (Period, bool, error)
	EndingBetween(ctx context.Context, from, to time.Time) ([]Period, error)
	ListByYear(ctx context.Context, year int) ([]Period, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes transactional operations.
type TxRepository interface {
	CountByYear(ctx context.Context, year int) (int, error)
	InsertPeriods(ctx context.Context, periods []Period) ([]Period, error)
	LockCurrentFlag(ctx context.Context) error
	GetForUpdate(ctx context.Context, id int64) (Period, error)
	ClearCurrent(ctx context.Context, exceptID int64) error
	SetCurrent(ctx context.Context, id int64, current bool) error
	CountLocks(ctx context.Context, id int64) (int, error)
	CountReferences(ctx context.Context, id int64) (int, error)
	Delete(ctx context.Context, id int64) error
}

// LockChecker reports whether a period is closed for a user.
type LockChecker interface {
	IsClosedForUser(ctx context.Context, periodID, userID int64) (bool, error)
}

// Service is the period registry.
type Service struct {
	repo   RepositoryPort
	locks  LockChecker
	logger *slog.Logger
	now    func() time.Time
}

// NewService constructs the registry. locks may be nil when Info is not used.
func NewService(repo RepositoryPort, locks LockChecker, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, locks: locks, logger: logger, now: time.Now}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Today returns the current business date.
func (s *Service) Today() time.Time {
	return shared.Day(s.now())
}

// GenerateYear creates the 24 fortnights of year in one transaction.
func (s *Service) GenerateYear(ctx context.Context, year int) ([]Period, error) {
	layout, err := BuildYear(year)
	if err != nil {
		return nil, err
	}
	var created []Period
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		existing, err := tx.CountByYear(ctx, year)
		if err != nil {
			return err
		}
		if existing > 0 {
			return ErrDuplicateYear
		}
		created, err = tx.InsertPeriods(ctx, layout)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("periods generated", slog.Int("year", year), slog.Int("count", len(created)))
	return created, nil
}

// Current returns the period whose bounds cover today. Absence is not an error.
func (s *Service) Current(ctx context.Context) (Period, bool, error) {
	return s.repo.FindByDate(ctx, s.Today())
}

// Upcoming lists periods ending within daysAhead days of today, soonest first.
func (s *Service) Upcoming(ctx context.Context, daysAhead int) ([]Period, error) {
	if daysAhead <= 0 {
		daysAhead = DefaultDaysAhead
	}
	today := s.Today()
	return s.repo.EndingBetween(ctx, today, today.AddDate(0, 0, daysAhead))
}

// SetActive sets or clears the administrative current flag. Activating clears every other flag.
func (s *Service) SetActive(ctx context.Context, id int64, active bool) (Period, error) {
	var out Period
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.LockCurrentFlag(ctx); err != nil {
			return err
		}
		p, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if active {
			if err := tx.ClearCurrent(ctx, id); err != nil {
				return err
			}
		}
		if err := tx.SetCurrent(ctx, id, active); err != nil {
			return err
		}
		p.IsCurrent = active
		out = p
		return nil
	})
	if err != nil {
		return Period{}, err
	}
	s.logger.Info("period flag updated", slog.Int64("period_id", id), slog.Bool("active", active))
	return out, nil
}

// Delete removes a period that has no closures and no ledger entries.
func (s *Service) Delete(ctx context.Context, id int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.GetForUpdate(ctx, id); err != nil {
			return err
		}
		locks, err := tx.CountLocks(ctx, id)
		if err != nil {
			return err
		}
		if locks > 0 {
			return ErrPeriodHasClosures
		}
		refs, err := tx.CountReferences(ctx, id)
		if err != nil {
			return err
		}
		if refs > 0 {
			return ErrPeriodInUse
		}
		return tx.Delete(ctx, id)
	})
	if err != nil {
		return err
	}
	s.logger.Info("period deleted", slog.Int64("period_id", id))
	return nil
}

// Get returns a period by id.
func (s *Service) Get(ctx context.Context, id int64) (Period, error) {
	return s.repo.Get(ctx, id)
}

// ListByYear lists the periods of year, or every period when year is 0.
func (s *Service) ListByYear(ctx context.Context, year int) ([]Period, error) {
	if year != 0 && (year < MinYear || year > MaxYear) {
		return nil, shared.FieldError("year", "must be between %d and %d", MinYear, MaxYear)
	}
	return s.repo.ListByYear(ctx, year)
}

// Flagged returns the period an administrator marked as current.
func (s *Service) Flagged(ctx context.Context) (Period, bool, error) {
	return s.repo.Flagged(ctx)
}

// Info describes the current period for userID, or ErrNoActivePeriod when none covers today.
func (s *Service) Info(ctx context.Context, userID int64) (Info, error) {
	p, ok, err := s.Current(ctx)
	if err != nil {
		return Info{}, err
	}
	if !ok {
		return Info{}, shared.ErrNoActivePeriod
	}
	closed := false
	if s.locks != nil {
		if closed, err = s.locks.IsClosedForUser(ctx, p.ID, userID); err != nil {
			return Info{}, err
		}
	}
	remaining := DaysBetween(s.Today(), p.EndDate)
	return Info{
		Period:        p,
		Closed:        closed,
		DaysRemaining: remaining,
		EndingSoon:    remaining <= DefaultDaysAhead,
	}, nil
}

// DaysBetween counts whole calendar days from a to b.
func DaysBetween(a, b time.Time) int {
	return int(shared.Day(b).Sub(shared.Day(a)).Hours() / 24)
}
