package closures

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/obra-ledger/obra-ledger/internal/periods"
	"github.com/obra-ledger/obra-ledger/internal/shared"
)

const (
	// DashboardPendingPreview caps the pending users listed per ending period.
	DashboardPendingPreview = 5
	// DashboardLatestClosures caps the recent closures shown on the dashboard.
	DashboardLatestClosures = 10
)

// Lock marks a period as closed for one user.
type Lock struct {
	ID       int64     `json:"id"`
	PeriodID int64     `json:"period_id"`
	UserID   int64     `json:"user_id"`
	ClosedBy int64     `json:"closed_by"`
	ClosedAt time.Time `json:"closed_at"`
	Notes    string    `json:"notes,omitempty"`
}

// LockDetail is a lock joined with the names of the users involved.
type LockDetail struct {
	Lock
	Username     string `json:"username"`
	UserFullName string `json:"user_full_name"`
	ClosedByName string `json:"closed_by_name"`
}

// UserRef identifies a user in closure listings.
type UserRef struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	FullName string `json:"full_name"`
	Email    string `json:"email"`
}

// Summary reports closure progress for one period.
type Summary struct {
	PeriodID     int64           `json:"period_id"`
	TotalUsers   int             `json:"total_users"`
	ClosedCount  int             `json:"closed_count"`
	PendingCount int             `json:"pending_count"`
	Percentage   decimal.Decimal `json:"percentage"`
	Detail       []LockDetail    `json:"detail"`
}

// BatchFailure records why one user in a batch could not be closed.
type BatchFailure struct {
	UserID int64  `json:"user_id"`
	Code   string `json:"code"`
	Reason string `json:"reason"`
}

// BatchResult collects the outcome of CloseMany.
type BatchResult struct {
	Succeeded []Lock         `json:"succeeded"`
	Failed    []BatchFailure `json:"failed"`
}

// Status reports whether a period is closed for a user.
type Status struct {
	PeriodID int64       `json:"period_id"`
	UserID   int64       `json:"user_id"`
	Closed   bool        `json:"closed"`
	Lock     *LockDetail `json:"lock,omitempty"`
}

// EndingPeriod is a period about to end with the users still open in it.
type EndingPeriod struct {
	Period       periods.Period `json:"period"`
	PendingCount int            `json:"pending_count"`
	PendingUsers []UserRef      `json:"pending_users"`
}

// Dashboard is the administrative overview of closures.
type Dashboard struct {
	Current        *periods.Period `json:"current,omitempty"`
	CurrentSummary *Summary        `json:"current_summary,omitempty"`
	EndingSoon     []EndingPeriod  `json:"ending_soon"`
	Latest         []LockDetail    `json:"latest"`
}

// Sentinel errors.
var (
	ErrAlreadyClosed = shared.Conflict("already_closed", "period is already closed for this user")
	ErrLockNotFound  = shared.NotFound("lock_not_found", "closure not found")
	ErrPeriodInPast  = shared.State("period_in_past", "period has already ended")
	ErrNoUsers       = shared.FieldError("user_ids", "at least one user is required")
)

// Percentage returns closed/total as a percentage rounded to two decimals.
func Percentage(closed, total int) decimal.Decimal {
	if total <= 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(closed)).
		Mul(decimal.NewFromInt(100)).
		DivRound(decimal.NewFromInt(int64(total)), 2)
}
