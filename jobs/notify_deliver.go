package jobs

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/obra-ledger/obra-ledger/internal/notify"
)

// EventPublisher pushes a notification to its realtime channel.
type EventPublisher interface {
	Publish(ctx context.Context, ev notify.Event) (int64, error)
}

// NotifyDeliverHandler returns the handler publishing queued notifications.
func NotifyDeliverHandler(publisher EventPublisher, logger *slog.Logger) asynq.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, t *asynq.Task) error {
		ev, err := notify.DecodeEvent(t)
		if err != nil {
			return asynq.SkipRetry
		}
		receivers, err := publisher.Publish(ctx, ev)
		if err != nil {
			logger.Warn("publish notification", slog.String("event_id", ev.ID), slog.Any("error", err))
			return err
		}
		logger.Debug("notification delivered",
			slog.String("event_id", ev.ID),
			slog.String("kind", string(ev.Kind)),
			slog.Int64("user_id", ev.UserID),
			slog.Int64("receivers", receivers))
		return nil
	}
}
