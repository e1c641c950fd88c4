package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/obra-ledger/obra-ledger/internal/jobs"
	"github.com/obra-ledger/obra-ledger/internal/notify"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// QueueNotifications carries notification deliveries.
	QueueNotifications = notify.Queue

	// TaskBalanceReconcile rebuilds cached balances of a period.
	TaskBalanceReconcile = "balances:reconcile"
	// TaskPeriodGenerate creates the fortnights of a year.
	TaskPeriodGenerate = "periods:generate"
	// TaskPeriodEnding reminds users whose period is about to end.
	TaskPeriodEnding = "periods:ending"
	// TaskIdempotencyCleanup prunes expired idempotency keys.
	TaskIdempotencyCleanup = "idempotency:cleanup"
	// TaskNotifyDeliver publishes a queued notification.
	TaskNotifyDeliver = notify.TaskDeliver
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// BalanceReconcilePayload selects the period to rebuild; zero means the current one.
type BalanceReconcilePayload struct {
	PeriodID int64 `json:"period_id"`
}

// NewBalanceReconcileTask builds a reconcile task.
func NewBalanceReconcileTask(periodID int64) (*asynq.Task, error) {
	return newTask(TaskBalanceReconcile, BalanceReconcilePayload{PeriodID: periodID})
}

// PeriodGeneratePayload selects the year to generate; zero means next year.
type PeriodGeneratePayload struct {
	Year int `json:"year"`
}

// NewPeriodGenerateTask builds a generation task.
func NewPeriodGenerateTask(year int) (*asynq.Task, error) {
	return newTask(TaskPeriodGenerate, PeriodGeneratePayload{Year: year})
}

// PeriodEndingPayload configures the reminder horizon.
type PeriodEndingPayload struct {
	DaysAhead int `json:"days_ahead"`
}

// NewPeriodEndingTask builds a reminder task.
func NewPeriodEndingTask(daysAhead int) (*asynq.Task, error) {
	return newTask(TaskPeriodEnding, PeriodEndingPayload{DaysAhead: daysAhead})
}

// IdempotencyCleanupPayload sets how long keys are retained.
type IdempotencyCleanupPayload struct {
	Retention time.Duration `json:"retention"`
}

// NewIdempotencyCleanupTask builds a cleanup task.
func NewIdempotencyCleanupTask(retention time.Duration) (*asynq.Task, error) {
	return newTask(TaskIdempotencyCleanup, IdempotencyCleanupPayload{Retention: retention})
}

func newTask(typ string, payload any) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(typ, body, asynq.Queue(QueueDefault)), nil
}
