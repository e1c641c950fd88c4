package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/obra-ledger/obra-ledger/internal/balances"
)

// Reconciler recomputes every stored balance of one period.
type Reconciler interface {
	ReconcilePeriod(ctx context.Context, periodID int64) (balances.ReconcileResult, error)
}

// BalancesCLI offers maintenance helpers for stored balances.
type BalancesCLI struct {
	reconciler Reconciler
}

// NewBalancesCLI constructs the helper over the balance service.
func NewBalancesCLI(reconciler Reconciler) (*BalancesCLI, error) {
	if reconciler == nil {
		return nil, errors.New("balances cli: reconciler is required")
	}
	return &BalancesCLI{reconciler: reconciler}, nil
}

// ReconcileOptions defines the flags of the balances reconcile command.
type ReconcileOptions struct {
	PeriodID   int64
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// ReconcileCommand recomputes a period's balances. It exits 10 when some users failed.
func (c *BalancesCLI) ReconcileCommand(ctx context.Context, opts ReconcileOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.PeriodID <= 0 {
		_, _ = fmt.Fprintln(opts.Stderr, "balances reconcile: period id is required and must be positive")
		return 1
	}
	result, err := c.reconciler.ReconcilePeriod(ctx, opts.PeriodID)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "balances reconcile: %v\n", err)
		return 1
	}
	if result.Failed == nil {
		result.Failed = []int64{}
	}
	if opts.JSONOutput {
		if err := json.NewEncoder(opts.Stdout).Encode(result); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "balances reconcile: encode json: %v\n", err)
			return 1
		}
	} else {
		_, _ = fmt.Fprintf(opts.Stdout, "Period %d: %d balance(s) recomputed\n", result.PeriodID, result.Recomputed)
		if len(result.Failed) > 0 {
			ids := make([]string, len(result.Failed))
			for i, id := range result.Failed {
				ids[i] = strconv.FormatInt(id, 10)
			}
			_, _ = fmt.Fprintf(opts.Stdout, "%d user(s) failed: %s\n", len(result.Failed), strings.Join(ids, ", "))
		}
	}
	if len(result.Failed) > 0 {
		return 10
	}
	return 0
}
