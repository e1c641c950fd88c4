package balances

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/obra-ledger/obra-ledger/internal/transactions"
)

// Balance caches a user's settled totals for one period. Net is derived on read.
type Balance struct {
	UserID         int64           `json:"user_id"`
	PeriodID       int64           `json:"period_id"`
	TotalIncome    decimal.Decimal `json:"total_income"`
	TotalOutflow   decimal.Decimal `json:"total_outflow"`
	TotalExpense   decimal.Decimal `json:"total_expense"`
	LastComputedAt time.Time       `json:"last_computed_at"`
}

// FromTotals builds the cached row for a computation taken at.
func FromTotals(userID, periodID int64, t transactions.Totals, at time.Time) Balance {
	return Balance{
		UserID:         userID,
		PeriodID:       periodID,
		TotalIncome:    t.Income,
		TotalOutflow:   t.Outflow,
		TotalExpense:   t.Expense,
		LastComputedAt: at,
	}
}

// Net is income minus outflow minus expense.
func (b Balance) Net() decimal.Decimal {
	return b.TotalIncome.Sub(b.TotalOutflow).Sub(b.TotalExpense)
}

// MarshalJSON adds the derived net balance.
func (b Balance) MarshalJSON() ([]byte, error) {
	type plain Balance
	return json.Marshal(struct {
		plain
		NetBalance decimal.Decimal `json:"net_balance"`
	}{plain(b), b.Net()})
}

// Standing is a leaderboard row.
type Standing struct {
	Balance
	Username string `json:"username"`
	FullName string `json:"full_name"`
}

// MarshalJSON keeps the user fields alongside the embedded balance encoding.
func (s Standing) MarshalJSON() ([]byte, error) {
	type plain Balance
	return json.Marshal(struct {
		plain
		NetBalance decimal.Decimal `json:"net_balance"`
		Username   string          `json:"username"`
		FullName   string          `json:"full_name"`
	}{plain(s.Balance), s.Net(), s.Username, s.FullName})
}

// PeriodBalance is a history row.
type PeriodBalance struct {
	Balance
	PeriodNumber int       `json:"period_number"`
	PeriodYear   int       `json:"period_year"`
	StartDate    time.Time `json:"start_date"`
	EndDate      time.Time `json:"end_date"`
}

// MarshalJSON keeps the period fields alongside the embedded balance encoding.
func (p PeriodBalance) MarshalJSON() ([]byte, error) {
	type plain Balance
	return json.Marshal(struct {
		plain
		NetBalance   decimal.Decimal `json:"net_balance"`
		PeriodNumber int             `json:"period_number"`
		PeriodYear   int             `json:"period_year"`
		StartDate    string          `json:"start_date"`
		EndDate      string          `json:"end_date"`
	}{plain(p.Balance), p.Net(), p.PeriodNumber, p.PeriodYear,
		p.StartDate.Format(time.DateOnly), p.EndDate.Format(time.DateOnly)})
}

// ReconcileResult reports a period-wide rebuild.
type ReconcileResult struct {
	PeriodID   int64   `json:"period_id"`
	Recomputed int     `json:"recomputed"`
	Failed     []int64 `json:"failed"`
}
