package transactions

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/obra-ledger/obra-ledger/internal/shared"
)

// MaxTextLength bounds memo and notes.
const MaxTextLength = 1000

// Kind classifies a two-party transfer.
type Kind string

const (
	KindIncome  Kind = "INCOME"
	KindOutflow Kind = "OUTFLOW"
	KindExpense Kind = "EXPENSE"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindIncome, KindOutflow, KindExpense:
		return true
	}
	return false
}

// ExpenseType refines an EXPENSE transaction.
type ExpenseType string

const (
	ExpenseProject  ExpenseType = "PROJECT"
	ExpenseSupplier ExpenseType = "SUPPLIER"
	ExpenseOther    ExpenseType = "OTHER"
)

// Valid reports whether e is a known expense type.
func (e ExpenseType) Valid() bool {
	switch e {
	case ExpenseProject, ExpenseSupplier, ExpenseOther:
		return true
	}
	return false
}

// SideStatus is the confirmation state of one participant.
type SideStatus string

const (
	StatusPending   SideStatus = "PENDING"
	StatusConfirmed SideStatus = "CONFIRMED"
	StatusRejected  SideStatus = "REJECTED"
)

// State is the effective state derived from both sides.
type State string

const (
	StateAwaiting State = "awaiting"
	StateSettled  State = "settled"
	StateRejected State = "rejected"
)

// Valid reports whether s is a known state.
func (s State) Valid() bool {
	switch s {
	case StateAwaiting, StateSettled, StateRejected:
		return true
	}
	return false
}

// EffectiveState derives the transaction state: any rejection is terminal, two confirmations settle it.
func EffectiveState(origin, destination SideStatus) State {
	switch {
	case origin == StatusRejected || destination == StatusRejected:
		return StateRejected
	case origin == StatusConfirmed && destination == StatusConfirmed:
		return StateSettled
	default:
		return StateAwaiting
	}
}

// Side identifies a participant position.
type Side string

const (
	SideOrigin      Side = "origin"
	SideDestination Side = "destination"
)

// Action is a participant's answer to a pending transaction.
type Action string

const (
	ActionConfirm Action = "confirm"
	ActionReject  Action = "reject"
)

// Valid reports whether a is a known action.
func (a Action) Valid() bool {
	return a == ActionConfirm || a == ActionReject
}

// Status returns the side status the action produces.
func (a Action) Status() SideStatus {
	if a == ActionConfirm {
		return StatusConfirmed
	}
	return StatusRejected
}

// Transaction is a transfer between an origin and a destination user.
type Transaction struct {
	ID                     int64                `json:"id"`
	Date                   time.Time            `json:"date"`
	OriginID               int64                `json:"origin_id"`
	DestinationID          int64                `json:"destination_id"`
	Kind                   Kind                 `json:"kind"`
	ExpenseType            ExpenseType          `json:"expense_type,omitempty"`
	ProjectID              *int64               `json:"project_id,omitempty"`
	SupplierName           string               `json:"supplier_name,omitempty"`
	Memo                   string               `json:"memo"`
	PaymentMethod          shared.PaymentMethod `json:"payment_method"`
	Amount                 decimal.Decimal      `json:"amount"`
	OriginStatus           SideStatus           `json:"origin_status"`
	DestinationStatus      SideStatus           `json:"destination_status"`
	OriginConfirmedAt      *time.Time           `json:"origin_confirmed_at,omitempty"`
	DestinationConfirmedAt *time.Time           `json:"destination_confirmed_at,omitempty"`
	CreatedBy              int64                `json:"created_by"`
	PeriodID               int64                `json:"period_id"`
	Attachments            []string             `json:"attachments"`
	Notes                  string               `json:"notes,omitempty"`
	Active                 bool                 `json:"active"`
	CreatedAt              time.Time            `json:"created_at"`
	UpdatedAt              time.Time            `json:"updated_at"`
}

// State derives the effective state.
func (t Transaction) State() State {
	return EffectiveState(t.OriginStatus, t.DestinationStatus)
}

// SideOf returns the position userID holds in t.
func (t Transaction) SideOf(userID int64) (Side, bool) {
	switch userID {
	case t.OriginID:
		return SideOrigin, true
	case t.DestinationID:
		return SideDestination, true
	}
	return "", false
}

// StatusOf returns the status of side.
func (t Transaction) StatusOf(side Side) SideStatus {
	if side == SideOrigin {
		return t.OriginStatus
	}
	return t.DestinationStatus
}

// Counterpart returns the other participant of userID.
func (t Transaction) Counterpart(userID int64) int64 {
	if userID == t.OriginID {
		return t.DestinationID
	}
	return t.OriginID
}

// Involves reports whether userID participates in or created t.
func (t Transaction) Involves(userID int64) bool {
	return t.OriginID == userID || t.DestinationID == userID || t.CreatedBy == userID
}

// MarshalJSON adds the derived state to the encoded transaction.
func (t Transaction) MarshalJSON() ([]byte, error) {
	type plain Transaction
	return json.Marshal(struct {
		plain
		State State `json:"state"`
	}{plain(t), t.State()})
}

// CreateInput carries the fields of a new transaction.
type CreateInput struct {
	Date           time.Time
	OriginID       int64
	DestinationID  int64
	Kind           Kind
	ExpenseType    ExpenseType
	ProjectID      *int64
	SupplierName   string
	Memo           string
	PaymentMethod  shared.PaymentMethod
	Amount         decimal.Decimal
	Attachments    []string
	Notes          string
	IdempotencyKey string
}

// Totals are a user's settled amounts by bucket.
type Totals struct {
	Income  decimal.Decimal `json:"total_income"`
	Outflow decimal.Decimal `json:"total_outflow"`
	Expense decimal.Decimal `json:"total_expense"`
}

// ZeroTotals returns empty buckets.
func ZeroTotals() Totals {
	return Totals{Income: decimal.Zero, Outflow: decimal.Zero, Expense: decimal.Zero}
}

// Net is income minus outflow minus expense.
func (t Totals) Net() decimal.Decimal {
	return t.Income.Sub(t.Outflow).Sub(t.Expense)
}

// Filter narrows transaction listings.
type Filter struct {
	From          *time.Time
	To            *time.Time
	OriginID      *int64
	DestinationID *int64
	Kind          Kind
	State         State
	PeriodID      *int64
	Page          int
	PerPage       int
}

// Page is one page of transactions.
type Page struct {
	Items      []Transaction     `json:"items"`
	Pagination shared.Pagination `json:"pagination"`
}

// Sentinel errors.
var (
	ErrTransactionNotFound = shared.NotFound("transaction_not_found", "transaction not found")
	ErrNotParticipant      = shared.Forbidden("not_participant", "user is neither origin nor destination of the transaction")
	ErrAlreadyProcessed    = shared.State("already_processed", "transaction side was already processed")
	ErrCannotDeleteSettled = shared.State("cannot_delete_settled", "a settled transaction cannot be deleted")
	ErrInvalidDate         = shared.State("invalid_date", "date is outside the current period")
	ErrInvalidProject      = shared.InvalidField("invalid_project", "project_id", "project does not exist or is not active")
)
