package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/obra-ledger/obra-ledger/internal/balances"
	jobmetrics "github.com/obra-ledger/obra-ledger/internal/jobs"
	"github.com/obra-ledger/obra-ledger/internal/periods"
)

// Reconciler rebuilds the cached balances of a period.
type Reconciler interface {
	ReconcilePeriod(ctx context.Context, periodID int64) (balances.ReconcileResult, error)
}

// CurrentPeriods resolves the date-derived current period.
type CurrentPeriods interface {
	Current(ctx context.Context) (periods.Period, bool, error)
}

// BalanceReconcileJob repairs balances whose recompute failed after a settlement.
type BalanceReconcileJob struct {
	Service Reconciler
	Periods CurrentPeriods
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewBalanceReconcileJob constructs the job handler.
func NewBalanceReconcileJob(service Reconciler, ps CurrentPeriods, logger *slog.Logger, metrics *jobmetrics.Metrics) *BalanceReconcileJob {
	return &BalanceReconcileJob{
		Service: service,
		Periods: ps,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes the reconcile job.
func (j *BalanceReconcileJob) Handle(ctx context.Context, task *asynq.Task) error {
	if j == nil || j.Service == nil || j.Periods == nil {
		return errors.New("balance reconcile: dependencies not configured")
	}
	var payload BalanceReconcilePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskBalanceReconcile)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	periodID := payload.PeriodID
	if periodID <= 0 {
		p, ok, err := j.Periods.Current(ctx)
		if err != nil {
			resultErr = err
			j.log().Error("resolve current period", slog.Any("error", err))
			return resultErr
		}
		if !ok {
			j.log().Info("no current period, nothing to reconcile")
			return resultErr
		}
		periodID = p.ID
	}

	start := j.now()
	res, err := j.Service.ReconcilePeriod(ctx, periodID)
	if err != nil {
		resultErr = err
		j.log().Error("reconcile period", slog.Int64("period_id", periodID), slog.Any("error", err))
		return resultErr
	}
	j.metrics().AddReconciled(res.Recomputed)
	if len(res.Failed) > 0 {
		// Retried by asynq; recomputing is idempotent.
		resultErr = errors.New("balance reconcile: some balances failed to recompute")
		j.log().Warn("reconcile incomplete", slog.Int64("period_id", periodID), slog.Any("failed_users", res.Failed))
		return resultErr
	}

	j.log().Info("reconciled balances",
		slog.Int64("period_id", periodID),
		slog.Int("users", res.Recomputed),
		slog.Duration("duration", j.now().Sub(start)))
	return resultErr
}

func (j *BalanceReconcileJob) metrics() *jobmetrics.Metrics {
	if j != nil && j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *BalanceReconcileJob) log() *slog.Logger {
	if j != nil && j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskBalanceReconcile))
	}
	return slog.Default().With(slog.String("job", TaskBalanceReconcile))
}

func (j *BalanceReconcileJob) now() time.Time {
	if j != nil && j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}

// WithClock overrides the internal clock for deterministic tests.
func (j *BalanceReconcileJob) WithClock(clock func() time.Time) {
	if j != nil && clock != nil {
		j.clock = clock
	}
}
