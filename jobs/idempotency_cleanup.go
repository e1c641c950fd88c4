package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

// DefaultIdempotencyRetention is how long create keys are remembered.
const DefaultIdempotencyRetention = 72 * time.Hour

// KeyCleaner prunes stored idempotency keys.
type KeyCleaner interface {
	Cleanup(ctx context.Context, olderThan time.Duration) error
}

// IdempotencyCleanupHandler returns the handler pruning expired keys.
func IdempotencyCleanupHandler(store KeyCleaner, logger *slog.Logger) asynq.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, t *asynq.Task) error {
		var payload IdempotencyCleanupPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		if payload.Retention <= 0 {
			payload.Retention = DefaultIdempotencyRetention
		}
		tracker := defaultJobMetrics.Track(TaskIdempotencyCleanup)
		err := tracker.End(store.Cleanup(ctx, payload.Retention))
		if err != nil {
			logger.Error("idempotency cleanup", slog.String("job", TaskIdempotencyCleanup), slog.Any("error", err))
			return err
		}
		logger.Info("idempotency keys pruned", slog.String("job", TaskIdempotencyCleanup), slog.Duration("retention", payload.Retention))
		return nil
	}
}
