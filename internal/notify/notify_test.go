package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/obra-ledger/obra-ledger/internal/shared"
)

type captureEnqueuer struct {
	tasks []*asynq.Task
	err   error
}

func (c *captureEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	if c.err != nil {
		return nil, c.err
	}
	c.tasks = append(c.tasks, task)
	return &asynq.TaskInfo{Type: task.Type()}, nil
}

func TestAsynqNotifierEnqueuesDeliverTask(t *testing.T) {
	enq := &captureEnqueuer{}
	n := NewAsynqNotifier(enq, nil)
	n.now = func() time.Time { return time.Date(2025, time.March, 3, 10, 0, 0, 0, time.UTC) }

	err := n.Notify(context.Background(), 42, KindTransactionCreated, map[string]any{"transaction_id": int64(7), "amount": "1500.00"})
	require.NoError(t, err)
	require.Len(t, enq.tasks, 1)
	require.Equal(t, TaskDeliver, enq.tasks[0].Type())

	ev, err := DecodeEvent(enq.tasks[0])
	require.NoError(t, err)
	require.NotEmpty(t, ev.ID)
	require.Equal(t, int64(42), ev.UserID)
	require.Equal(t, KindTransactionCreated, ev.Kind)
	require.Contains(t, ev.Message, "$1,500.00")
}

func TestAsynqNotifierReportsEnqueueFailure(t *testing.T) {
	boom := errors.New("redis down")
	n := NewAsynqNotifier(&captureEnqueuer{err: boom}, nil)
	err := n.Notify(context.Background(), 1, KindTransactionUpdated, map[string]any{"action": "confirm"})
	require.ErrorIs(t, err, boom)
}

func TestDescribe(t *testing.T) {
	require.Equal(t, "Una transacción fue rechazada", Describe(KindTransactionUpdated, map[string]any{"action": "reject"}))
	require.Equal(t, "Una transacción fue confirmada", Describe(KindTransactionUpdated, map[string]any{"action": "confirm"}))
	require.Contains(t, Describe(KindTransactionCreated, map[string]any{}), "monto desconocido")
	require.Equal(t, "$12.30", FormatAmount(decimal.RequireFromString("12.3")))
}

func TestPublisherSendsToUserChannel(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	ctx := context.Background()

	sub := client.Subscribe(ctx, shared.UserChannel(5))
	t.Cleanup(func() { _ = sub.Close() })
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	receivers, err := NewPublisher(client).Publish(ctx, Event{ID: "e1", Kind: KindPeriodEnding, UserID: 5})
	require.NoError(t, err)
	require.Equal(t, int64(1), receivers)

	select {
	case msg := <-sub.Channel():
		var ev Event
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &ev))
		require.Equal(t, "e1", ev.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
	}
}
