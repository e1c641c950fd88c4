package closures

import (
	"context"

	"github.com/obra-ledger/obra-ledger/internal/periods"
	"github.com/obra-ledger/obra-ledger/internal/shared"
)

// CurrentPeriodSource yields the date-derived current period.
type CurrentPeriodSource interface {
	Current(ctx context.Context) (periods.Period, bool, error)
}

// LockReader answers lock existence queries.
type LockReader interface {
	IsClosedForUser(ctx context.Context, periodID, userID int64) (bool, error)
}

// Guard gates ledger mutations on the period lock state.
type Guard struct {
	periods CurrentPeriodSource
	locks   LockReader
}

// NewGuard constructs a Guard.
func NewGuard(periods CurrentPeriodSource, locks LockReader) *Guard {
	return &Guard{periods: periods, locks: locks}
}

// EnsureOpen returns the current period when it exists and is not closed for userID.
func (g *Guard) EnsureOpen(ctx context.Context, userID int64) (periods.Period, error) {
	p, ok, err := g.periods.Current(ctx)
	if err != nil {
		return periods.Period{}, err
	}
	if !ok {
		return periods.Period{}, shared.ErrNoActivePeriod
	}
	if err := g.EnsureUnlocked(ctx, p.ID, userID); err != nil {
		return periods.Period{}, err
	}
	return p, nil
}

// EnsureUnlocked fails with ErrPeriodClosed when periodID is closed for any of userIDs.
func (g *Guard) EnsureUnlocked(ctx context.Context, periodID int64, userIDs ...int64) error {
	seen := make(map[int64]struct{}, len(userIDs))
	for _, id := range userIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		closed, err := g.locks.IsClosedForUser(ctx, periodID, id)
		if err != nil {
			return err
		}
		if closed {
			return shared.ErrPeriodClosed
		}
	}
	return nil
}
