package closures

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/obra-ledger/obra-ledger/internal/shared"
)

func TestGuardEnsureOpen(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	ps := svc.periods.(stubPeriods)
	guard := NewGuard(ps, repo)

	p, err := guard.EnsureOpen(ctx, 2)
	require.NoError(t, err)
	require.Equal(t, int64(10), p.ID)

	_, err = svc.Close(ctx, admin, 10, 2, "")
	require.NoError(t, err)
	_, err = guard.EnsureOpen(ctx, 2)
	require.ErrorIs(t, err, shared.ErrPeriodClosed)

	_, err = guard.EnsureOpen(ctx, 3)
	require.NoError(t, err)

	ps.today = day(time.March, 1)
	_, err = NewGuard(ps, repo).EnsureOpen(ctx, 3)
	require.ErrorIs(t, err, shared.ErrNoActivePeriod)
}

func TestGuardEnsureUnlockedChecksEveryUser(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	guard := NewGuard(svc.periods.(stubPeriods), repo)

	_, err := svc.Close(ctx, admin, 10, 3, "")
	require.NoError(t, err)

	require.NoError(t, guard.EnsureUnlocked(ctx, 10, 2))
	require.ErrorIs(t, guard.EnsureUnlocked(ctx, 10, 2, 3), shared.ErrPeriodClosed)
	require.NoError(t, guard.EnsureUnlocked(ctx, 11, 2, 3))
}
