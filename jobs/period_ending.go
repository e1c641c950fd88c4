package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/obra-ledger/obra-ledger/internal/closures"
	jobmetrics "github.com/obra-ledger/obra-ledger/internal/jobs"
	"github.com/obra-ledger/obra-ledger/internal/notify"
	"github.com/obra-ledger/obra-ledger/internal/periods"
)

// UpcomingPeriods lists periods about to end.
type UpcomingPeriods interface {
	Upcoming(ctx context.Context, daysAhead int) ([]periods.Period, error)
}

// OpenUsers lists active users that have not closed a period.
type OpenUsers interface {
	UsersWithoutClosure(ctx context.Context, periodID int64) ([]closures.UserRef, error)
}

// PeriodEndingJob reminds users who still have an open period close to its end.
type PeriodEndingJob struct {
	Periods  UpcomingPeriods
	Users    OpenUsers
	Notifier notify.Notifier
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
	clock    func() time.Time
}

// NewPeriodEndingJob initialises the reminder handler.
func NewPeriodEndingJob(ps UpcomingPeriods, users OpenUsers, notifier notify.Notifier, logger *slog.Logger, metrics *jobmetrics.Metrics) *PeriodEndingJob {
	return &PeriodEndingJob{
		Periods:  ps,
		Users:    users,
		Notifier: notifier,
		Logger:   logger,
		Metrics:  metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle sends one reminder per open user and ending period.
func (j *PeriodEndingJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Periods == nil || j.Users == nil || j.Notifier == nil {
		return errors.New("period ending: handler not configured")
	}
	var payload PeriodEndingPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.DaysAhead <= 0 {
		payload.DaysAhead = periods.DefaultDaysAhead
	}

	start := j.now()
	tracker := j.metrics().Track(TaskPeriodEnding)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.Int("days_ahead", payload.DaysAhead))
	ending, err := j.Periods.Upcoming(ctx, payload.DaysAhead)
	if err != nil {
		resultErr = err
		logger.Error("list upcoming periods", slog.Any("error", err))
		return resultErr
	}

	sent, failed := 0, 0
	for _, p := range ending {
		open, err := j.Users.UsersWithoutClosure(ctx, p.ID)
		if err != nil {
			resultErr = err
			logger.Error("list open users", slog.Int64("period_id", p.ID), slog.Any("error", err))
			return resultErr
		}
		for _, u := range open {
			err := j.Notifier.Notify(ctx, u.ID, notify.KindPeriodEnding, map[string]any{
				"period_id":   p.ID,
				"description": p.Description,
				"end_date":    p.EndDate.Format(time.DateOnly),
			})
			if err != nil {
				failed++
				logger.Warn("period ending reminder", slog.Int64("user_id", u.ID), slog.Any("error", err))
				continue
			}
			sent++
		}
	}

	logger.Info("completed period ending reminders",
		slog.Int("periods", len(ending)),
		slog.Int("sent", sent),
		slog.Int("failed", failed),
		slog.Duration("duration", j.now().Sub(start)),
	)
	return resultErr
}

func (j *PeriodEndingJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskPeriodEnding))
	}
	return slog.Default().With(slog.String("job", TaskPeriodEnding))
}

func (j *PeriodEndingJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *PeriodEndingJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
