package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/obra-ledger/obra-ledger/internal/jobs"
	"github.com/obra-ledger/obra-ledger/internal/periods"
	"github.com/obra-ledger/obra-ledger/internal/shared"
)

// YearGenerator creates the fortnights of a year.
type YearGenerator interface {
	GenerateYear(ctx context.Context, year int) ([]periods.Period, error)
}

// PeriodGenerateJob prepares next year's periods ahead of January.
type PeriodGenerateJob struct {
	Periods YearGenerator
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewPeriodGenerateJob constructs the job handler.
func NewPeriodGenerateJob(ps YearGenerator, logger *slog.Logger, metrics *jobmetrics.Metrics) *PeriodGenerateJob {
	return &PeriodGenerateJob{Periods: ps, Logger: logger, Metrics: metrics, clock: time.Now}
}

// Handle generates the requested year. An already generated year is not a failure.
func (j *PeriodGenerateJob) Handle(ctx context.Context, task *asynq.Task) error {
	if j == nil || j.Periods == nil {
		return errors.New("period generate: dependencies not configured")
	}
	var payload PeriodGeneratePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	year := payload.Year
	if year == 0 {
		year = j.clock().Year() + 1
	}

	tracker := j.metrics().Track(TaskPeriodGenerate)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.log().With(slog.Int("year", year))
	created, err := j.Periods.GenerateYear(ctx, year)
	switch {
	case errors.Is(err, periods.ErrDuplicateYear):
		logger.Info("periods already generated")
		return resultErr
	case shared.KindOf(err) == shared.KindValidation:
		resultErr = err
		logger.Error("year out of range", slog.Any("error", err))
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	case err != nil:
		resultErr = err
		logger.Error("generate periods", slog.Any("error", err))
		return resultErr
	}
	logger.Info("generated periods", slog.Int("count", len(created)))
	return resultErr
}

func (j *PeriodGenerateJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *PeriodGenerateJob) log() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskPeriodGenerate))
	}
	return slog.Default().With(slog.String("job", TaskPeriodGenerate))
}
