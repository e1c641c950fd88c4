package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const (
	// TaskDeliver carries one Event to the worker.
	TaskDeliver = "notify:deliver"
	// Queue is the asynq queue notification tasks run on.
	Queue = "notifications"
)

// Enqueuer is satisfied by *asynq.Client.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// AsynqNotifier enqueues events for asynchronous delivery.
type AsynqNotifier struct {
	client Enqueuer
	logger *slog.Logger
	now    func() time.Time
}

var _ Notifier = (*AsynqNotifier)(nil)

// NewAsynqNotifier constructs the notifier.
func NewAsynqNotifier(client Enqueuer, logger *slog.Logger) *AsynqNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &AsynqNotifier{client: client, logger: logger, now: time.Now}
}

// Notify enqueues a delivery task for userID.
func (n *AsynqNotifier) Notify(ctx context.Context, userID int64, kind Kind, payload map[string]any) error {
	ev := Event{
		ID:      uuid.NewString(),
		Kind:    kind,
		UserID:  userID,
		Payload: payload,
		Message: Describe(kind, payload),
		At:      n.now().UTC(),
	}
	task, err := NewDeliverTask(ev)
	if err != nil {
		return err
	}
	if _, err := n.client.EnqueueContext(ctx, task); err != nil {
		n.logger.Warn("enqueue notification",
			slog.String("event_id", ev.ID),
			slog.String("kind", string(kind)),
			slog.Int64("user_id", userID),
			slog.Any("error", err))
		return err
	}
	return nil
}

// NewDeliverTask wraps ev into an asynq task keyed by the event id.
func NewDeliverTask(ev Event) (*asynq.Task, error) {
	body, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskDeliver, body,
		asynq.TaskID(ev.ID),
		asynq.Queue(Queue),
		asynq.MaxRetry(3),
		asynq.Retention(time.Hour)), nil
}

// DecodeEvent extracts the Event carried by a delivery task.
func DecodeEvent(task *asynq.Task) (Event, error) {
	var ev Event
	err := json.Unmarshal(task.Payload(), &ev)
	return ev, err
}
