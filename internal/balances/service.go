package balances

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/obra-ledger/obra-ledger/internal/observability"
	"github.com/obra-ledger/obra-ledger/internal/periods"
	"github.com/obra-ledger/obra-ledger/internal/platform/cache"
	"github.com/obra-ledger/obra-ledger/internal/rbac"
	"github.com/obra-ledger/obra-ledger/internal/shared"
	"github.com/obra-ledger/obra-ledger/internal/transactions"
)

const reconcileConcurrency = 4

// RepositoryPort describes cached balance persistence.
type RepositoryPort interface {
	Upsert(ctx context.Context, b Balance) (Balance, error)
	ListByPeriod(ctx context.Context, periodID int64) ([]Standing, error)
	ListByUser(ctx context.Context, userID int64) ([]PeriodBalance, error)
}

// Ledger is the slice of the transaction ledger balances derive from.
type Ledger interface {
	BalanceFor(ctx context.Context, userID int64, periodID *int64) (transactions.Totals, error)
	SettledParticipants(ctx context.Context, periodID int64) ([]int64, error)
}

// PeriodSource is the slice of the period registry used here.
type PeriodSource interface {
	Get(ctx context.Context, id int64) (periods.Period, error)
	Current(ctx context.Context) (periods.Period, bool, error)
}

// Service is the balance aggregator.
type Service struct {
	repo    RepositoryPort
	ledger  Ledger
	periods PeriodSource
	locker  shared.Locker
	cache   *cache.JSONCache
	logger  *slog.Logger
	policy  rbac.Policy
	metrics *observability.Metrics
	now     func() time.Time
}

// NewService constructs the aggregator. A nil locker runs recomputes unguarded and a nil
// cache serves the leaderboard straight from the repository.
func NewService(repo RepositoryPort, ledger Ledger, periods PeriodSource, locker shared.Locker, leaderboard *cache.JSONCache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:    repo,
		ledger:  ledger,
		periods: periods,
		locker:  locker,
		cache:   leaderboard,
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

// WithMetrics attaches recompute counters.
func (s *Service) WithMetrics(m *observability.Metrics) {
	s.metrics = m
}

// Recompute rebuilds the cached totals of userID in periodID from settled transactions.
func (s *Service) Recompute(ctx context.Context, userID, periodID int64) error {
	err := s.withLock(ctx, shared.BalanceLockKey(userID, periodID), func(ctx context.Context) error {
		totals, err := s.ledger.BalanceFor(ctx, userID, &periodID)
		if err != nil {
			return err
		}
		_, err = s.repo.Upsert(ctx, FromTotals(userID, periodID, totals, s.now()))
		return err
	})
	s.metrics.ObserveRecompute(err)
	if err != nil {
		return err
	}
	if err := s.cache.Bump(ctx); err != nil {
		s.logger.Warn("bump leaderboard cache", slog.Any("error", err))
	}
	s.logger.Debug("balance recomputed", slog.Int64("user_id", userID), slog.Int64("period_id", periodID))
	return nil
}

func (s *Service) withLock(ctx context.Context, key string, fn func(context.Context) error) error {
	if s.locker == nil {
		return fn(ctx)
	}
	return s.locker.WithLock(ctx, key, fn)
}

// PeriodLeaderboard lists the period's balances, highest income first.
func (s *Service) PeriodLeaderboard(ctx context.Context, periodID int64) ([]Standing, error) {
	if _, err := s.periods.Get(ctx, periodID); err != nil {
		return nil, err
	}
	key, err := s.cache.BuildKey(ctx, "period", strconv.FormatInt(periodID, 10))
	if err != nil {
		s.logger.Warn("leaderboard cache key", slog.Any("error", err))
		return s.repo.ListByPeriod(ctx, periodID)
	}
	var out []Standing
	err = s.cache.FetchJSON(ctx, key, &out, func(ctx context.Context) (any, error) {
		return s.repo.ListByPeriod(ctx, periodID)
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []Standing{}
	}
	return out, nil
}

// HistoryFor lists a user's cached balances, most recent period first.
func (s *Service) HistoryFor(ctx context.Context, userID int64) ([]PeriodBalance, error) {
	return s.repo.ListByUser(ctx, userID)
}

// History is HistoryFor restricted to users the actor may view.
func (s *Service) History(ctx context.Context, actor rbac.Actor, userID int64) ([]PeriodBalance, error) {
	if !s.policy.CanViewUser(actor, userID) {
		return nil, shared.ErrForbidden
	}
	return s.HistoryFor(ctx, userID)
}

// Current returns the live totals of userID in the date-derived current period.
// With no current period the totals are zero and PeriodID is 0.
func (s *Service) Current(ctx context.Context, actor rbac.Actor, userID int64) (Balance, error) {
	if !s.policy.CanViewUser(actor, userID) {
		return Balance{}, shared.ErrForbidden
	}
	now := s.now()
	p, ok, err := s.periods.Current(ctx)
	if err != nil {
		return Balance{}, err
	}
	if !ok {
		return FromTotals(userID, 0, transactions.ZeroTotals(), now), nil
	}
	totals, err := s.ledger.BalanceFor(ctx, userID, &p.ID)
	if err != nil {
		return Balance{}, err
	}
	return FromTotals(userID, p.ID, totals, now), nil
}

// ReconcilePeriod recomputes every participant of a settled transaction in periodID.
// Individual failures are collected; the call only fails when participants cannot be listed.
func (s *Service) ReconcilePeriod(ctx context.Context, periodID int64) (ReconcileResult, error) {
	if _, err := s.periods.Get(ctx, periodID); err != nil {
		return ReconcileResult{}, err
	}
	userIDs, err := s.ledger.SettledParticipants(ctx, periodID)
	if err != nil {
		return ReconcileResult{}, err
	}
	result := ReconcileResult{PeriodID: periodID, Failed: []int64{}}
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(reconcileConcurrency)
	for _, userID := range userIDs {
		g.Go(func() error {
			err := s.Recompute(gctx, userID, periodID)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				s.logger.Error("reconcile balance",
					slog.Int64("user_id", userID), slog.Int64("period_id", periodID), slog.Any("error", err))
				result.Failed = append(result.Failed, userID)
				return nil
			}
			result.Recomputed++
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return ReconcileResult{}, err
	}
	s.logger.Info("period reconciled",
		slog.Int64("period_id", periodID),
		slog.Int("recomputed", result.Recomputed),
		slog.Int("failed", len(result.Failed)))
	return result, nil
}
