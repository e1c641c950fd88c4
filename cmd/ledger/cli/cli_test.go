package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/obra-ledger/obra-ledger/internal/balances"
	"github.com/obra-ledger/obra-ledger/internal/periods"
	"github.com/obra-ledger/obra-ledger/jobs"
)

type stubGenerator struct {
	existing map[int]bool
	err      error
}

func (s stubGenerator) GenerateYear(ctx context.Context, year int) ([]periods.Period, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.existing[year] {
		return nil, periods.ErrDuplicateYear
	}
	return []periods.Period{
		{ID: 1, Number: 1, Year: year, StartDate: time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC), EndDate: time.Date(year, 1, 15, 0, 0, 0, 0, time.UTC)},
		{ID: 2, Number: 2, Year: year, StartDate: time.Date(year, 1, 16, 0, 0, 0, 0, time.UTC), EndDate: time.Date(year, 1, 31, 0, 0, 0, 0, time.UTC)},
	}, nil
}

func TestGenerateCommandJSON(t *testing.T) {
	cli, err := NewPeriodsCLI(stubGenerator{})
	require.NoError(t, err)

	stdout := new(bytes.Buffer)
	stderr := new(bytes.Buffer)
	exitCode := cli.GenerateCommand(context.Background(), GenerateOptions{Year: 2026, JSONOutput: true, Stdout: stdout, Stderr: stderr})
	require.Zero(t, exitCode)
	require.Empty(t, stderr.String())

	var summary GenerateSummary
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &summary))
	require.Equal(t, 2026, summary.Year)
	require.Equal(t, 2, summary.Created)
	require.Equal(t, "2026-01-16", summary.Periods[1].StartDate)
}

func TestGenerateCommandHumanOutput(t *testing.T) {
	cli, err := NewPeriodsCLI(stubGenerator{})
	require.NoError(t, err)

	stdout := new(bytes.Buffer)
	exitCode := cli.GenerateCommand(context.Background(), GenerateOptions{Year: 2026, Stdout: stdout, Stderr: new(bytes.Buffer)})
	require.Zero(t, exitCode)
	require.Contains(t, stdout.String(), "Generated 2 periods for 2026")
	require.Contains(t, stdout.String(), "#01 2026-01-01 .. 2026-01-15")
}

func TestGenerateCommandFailures(t *testing.T) {
	cli, err := NewPeriodsCLI(stubGenerator{existing: map[int]bool{2025: true}})
	require.NoError(t, err)

	stderr := new(bytes.Buffer)
	require.Equal(t, 2, cli.GenerateCommand(context.Background(), GenerateOptions{Year: 2025, Stdout: new(bytes.Buffer), Stderr: stderr}))
	require.Contains(t, stderr.String(), "already exist")

	stderr.Reset()
	require.Equal(t, 1, cli.GenerateCommand(context.Background(), GenerateOptions{Stdout: new(bytes.Buffer), Stderr: stderr}))
	require.Contains(t, stderr.String(), "year is required")

	broken, err := NewPeriodsCLI(stubGenerator{err: errors.New("db down")})
	require.NoError(t, err)
	stderr.Reset()
	require.Equal(t, 1, broken.GenerateCommand(context.Background(), GenerateOptions{Year: 2026, Stdout: new(bytes.Buffer), Stderr: stderr}))
	require.Contains(t, stderr.String(), "db down")

	_, err = NewPeriodsCLI(nil)
	require.Error(t, err)
}

type stubReconciler struct {
	result balances.ReconcileResult
	err    error
}

func (s stubReconciler) ReconcilePeriod(ctx context.Context, periodID int64) (balances.ReconcileResult, error) {
	if s.err != nil {
		return balances.ReconcileResult{}, s.err
	}
	res := s.result
	res.PeriodID = periodID
	return res, nil
}

func TestReconcileCommand(t *testing.T) {
	cli, err := NewBalancesCLI(stubReconciler{result: balances.ReconcileResult{Recomputed: 4}})
	require.NoError(t, err)

	stdout := new(bytes.Buffer)
	stderr := new(bytes.Buffer)
	exitCode := cli.ReconcileCommand(context.Background(), ReconcileOptions{PeriodID: 30, JSONOutput: true, Stdout: stdout, Stderr: stderr})
	require.Zero(t, exitCode)
	require.JSONEq(t, `{"period_id":30,"recomputed":4,"failed":[]}`, stdout.String())
}

func TestReconcileCommandPartialFailure(t *testing.T) {
	cli, err := NewBalancesCLI(stubReconciler{result: balances.ReconcileResult{Recomputed: 2, Failed: []int64{11, 12}}})
	require.NoError(t, err)

	stdout := new(bytes.Buffer)
	exitCode := cli.ReconcileCommand(context.Background(), ReconcileOptions{PeriodID: 30, Stdout: stdout, Stderr: new(bytes.Buffer)})
	require.Equal(t, 10, exitCode)
	require.Contains(t, stdout.String(), "Period 30: 2 balance(s) recomputed")
	require.Contains(t, stdout.String(), "2 user(s) failed: 11, 12")
}

func TestReconcileCommandErrors(t *testing.T) {
	cli, err := NewBalancesCLI(stubReconciler{err: periods.ErrPeriodNotFound})
	require.NoError(t, err)

	stderr := new(bytes.Buffer)
	require.Equal(t, 1, cli.ReconcileCommand(context.Background(), ReconcileOptions{Stdout: new(bytes.Buffer), Stderr: stderr}))
	require.Contains(t, stderr.String(), "period id is required")

	stderr.Reset()
	require.Equal(t, 1, cli.ReconcileCommand(context.Background(), ReconcileOptions{PeriodID: 99, Stdout: new(bytes.Buffer), Stderr: stderr}))
	require.Contains(t, stderr.String(), "period not found")
}

type recordingEnqueuer struct {
	tasks []*asynq.Task
}

func (r *recordingEnqueuer) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	r.tasks = append(r.tasks, task)
	return &asynq.TaskInfo{Type: task.Type(), Queue: jobs.QueueDefault}, nil
}

type stubInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (s stubInspector) GetQueueInfo(queue string) (*asynq.QueueInfo, error) {
	return s.info, s.err
}

func TestJobsTrigger(t *testing.T) {
	enqueuer := &recordingEnqueuer{}
	cli := &JobsCLI{client: enqueuer}

	for _, name := range []string{jobs.TaskBalanceReconcile, jobs.TaskPeriodGenerate, jobs.TaskPeriodEnding, jobs.TaskIdempotencyCleanup} {
		info, err := cli.Trigger(context.Background(), name)
		require.NoError(t, err)
		require.Equal(t, name, info.Type)
	}
	require.Len(t, enqueuer.tasks, 4)

	var payload jobs.IdempotencyCleanupPayload
	require.NoError(t, json.Unmarshal(enqueuer.tasks[3].Payload(), &payload))
	require.Equal(t, jobs.DefaultIdempotencyRetention, payload.Retention)

	_, err := cli.Trigger(context.Background(), "inventory:revalue")
	require.ErrorContains(t, err, "unsupported job")
}

func TestJobsInspectQueue(t *testing.T) {
	cli := &JobsCLI{inspector: stubInspector{info: &asynq.QueueInfo{Queue: jobs.QueueNotifications, Pending: 3, Retry: 1}}}
	stats, err := cli.InspectQueue(context.Background(), jobs.QueueNotifications)
	require.NoError(t, err)
	require.Equal(t, QueueStats{Queue: jobs.QueueNotifications, Pending: 3, Retry: 1}, stats)

	empty := &JobsCLI{inspector: stubInspector{err: asynq.ErrQueueNotFound}}
	stats, err = empty.InspectQueue(context.Background(), "")
	require.NoError(t, err)
	require.Equal(t, QueueStats{Queue: jobs.QueueDefault}, stats)

	var missing *JobsCLI
	_, err = missing.InspectQueue(context.Background(), "")
	require.Error(t, err)
}
