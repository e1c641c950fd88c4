package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/obra-ledger/obra-ledger/internal/app"
	"github.com/obra-ledger/obra-ledger/internal/notify"
	"github.com/obra-ledger/obra-ledger/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	container, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Error("build services", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := container.Close(); err != nil {
			logger.Warn("close services", slog.Any("error", err))
		}
	}()

	location, err := cfg.Location()
	if err != nil {
		logger.Error("resolve timezone", slog.Any("error", err))
		os.Exit(1)
	}
	jobMetrics := container.Metrics.Jobs()
	clock := cfg.Clock()

	reconcileJob := jobs.NewBalanceReconcileJob(container.Balances, container.Periods, logger, jobMetrics)
	reconcileJob.WithClock(clock)
	generateJob := jobs.NewPeriodGenerateJob(container.Periods, logger, jobMetrics)
	endingJob := jobs.NewPeriodEndingJob(
		container.Periods,
		container.Closures,
		notify.NewAsynqNotifier(container.Jobs.Enqueuer(), logger),
		logger,
		jobMetrics,
	)

	reconcileTask, err := jobs.NewBalanceReconcileTask(0)
	if err != nil {
		logger.Error("build reconcile task", slog.Any("error", err))
		os.Exit(1)
	}
	generateTask, err := jobs.NewPeriodGenerateTask(0)
	if err != nil {
		logger.Error("build generate task", slog.Any("error", err))
		os.Exit(1)
	}
	endingTask, err := jobs.NewPeriodEndingTask(0)
	if err != nil {
		logger.Error("build ending task", slog.Any("error", err))
		os.Exit(1)
	}
	cleanupTask, err := jobs.NewIdempotencyCleanupTask(jobs.DefaultIdempotencyRetention)
	if err != nil {
		logger.Error("build cleanup task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   cfg.RedisOpt(),
		Logger:      logger,
		Location:    location,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskBalanceReconcile, Handler: reconcileJob.Handle},
			{Type: jobs.TaskPeriodGenerate, Handler: generateJob.Handle},
			{Type: jobs.TaskPeriodEnding, Handler: endingJob.Handle},
			{Type: jobs.TaskNotifyDeliver, Handler: jobs.NotifyDeliverHandler(container.Publisher, logger)},
			{Type: jobs.TaskIdempotencyCleanup, Handler: jobs.IdempotencyCleanupHandler(container.Idempotency, logger)},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "0 2 * * *", Task: reconcileTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "0 3 1 12 *", Task: generateTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "0 9 * * *", Task: endingTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "30 3 * * *", Task: cleanupTask, Options: []asynq.Option{asynq.MaxRetry(1)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
