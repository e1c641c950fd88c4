package movements

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/obra-ledger/obra-ledger/internal/shared"
)

// MaxMemoLength bounds the movement memo.
const MaxMemoLength = 1000

// Kind is the direction of a project cash movement.
type Kind string

const (
	KindIncome  Kind = "INCOME"
	KindOutflow Kind = "OUTFLOW"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k == KindIncome || k == KindOutflow
}

// Movement is a single project cash entry recorded by a user.
type Movement struct {
	ID            int64                `json:"id"`
	Date          time.Time            `json:"date"`
	ProjectID     int64                `json:"project_id"`
	Kind          Kind                 `json:"kind"`
	PaymentMethod shared.PaymentMethod `json:"payment_method"`
	Amount        decimal.Decimal      `json:"amount"`
	Memo          string               `json:"memo"`
	Attachments   []string             `json:"attachments"`
	OwnerID       int64                `json:"owner_id"`
	PeriodID      int64                `json:"period_id"`
	Active        bool                 `json:"active"`
	CreatedAt     time.Time            `json:"created_at"`
	UpdatedAt     time.Time            `json:"updated_at"`
}

// CreateInput carries the fields of a new movement.
type CreateInput struct {
	Date          time.Time
	ProjectID     int64
	Kind          Kind
	PaymentMethod shared.PaymentMethod
	Amount        decimal.Decimal
	Memo          string
	Attachments   []string
}

// Patch carries optional movement changes; nil fields are left untouched.
type Patch struct {
	Date          *time.Time
	ProjectID     *int64
	Kind          *Kind
	PaymentMethod *shared.PaymentMethod
	Amount        *decimal.Decimal
	Memo          *string
	Attachments   []string
}

// Summary holds independent income and outflow sums.
type Summary struct {
	Income  decimal.Decimal `json:"income"`
	Outflow decimal.Decimal `json:"outflow"`
	Balance decimal.Decimal `json:"balance"`
}

// NewSummary derives the balance from the two sums.
func NewSummary(income, outflow decimal.Decimal) Summary {
	return Summary{Income: income, Outflow: outflow, Balance: income.Sub(outflow)}
}

// Filter narrows movement listings.
type Filter struct {
	From          *time.Time
	To            *time.Time
	ProjectID     *int64
	Kind          Kind
	PaymentMethod shared.PaymentMethod
	OwnerID       *int64
	PeriodID      *int64
	Page          int
	PerPage       int
}

// Page is one page of movements together with the totals of the whole filter.
type Page struct {
	Items      []Movement        `json:"items"`
	Pagination shared.Pagination `json:"pagination"`
	Summary    Summary           `json:"summary"`
}

// Sentinel errors.
var (
	ErrMovementNotFound = shared.NotFound("movement_not_found", "movement not found")
	ErrInvalidProject   = shared.InvalidField("invalid_project", "project_id", "project does not exist or is not active")
	ErrInvalidDate      = shared.State("invalid_date", "date is outside the movement's period")
)
