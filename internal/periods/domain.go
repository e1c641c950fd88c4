package periods

import (
	"fmt"
	"time"

	"github.com/obra-ledger/obra-ledger/internal/shared"
)

const (
	// MinYear and MaxYear bound the four-digit years a DATE column round-trips.
	MinYear = 1
	MaxYear = 9999
	// PeriodsPerYear is the number of fortnights in a year.
	PeriodsPerYear = 24
	// DefaultDaysAhead is the window used by Upcoming and the ending-soon flag.
	DefaultDaysAhead = 3
)

// Period is a fortnightly accounting window. Both bounds are inclusive.
type Period struct {
	ID          int64     `json:"id"`
	StartDate   time.Time `json:"start_date"`
	EndDate     time.Time `json:"end_date"`
	Number      int       `json:"number"`
	Year        int       `json:"year"`
	Description string    `json:"description"`
	IsCurrent   bool      `json:"is_current"`
}

// Contains reports whether day falls within the period.
func (p Period) Contains(day time.Time) bool {
	d := shared.Day(day)
	return !d.Before(p.StartDate) && !d.After(p.EndDate)
}

// Ended reports whether the period finished before today.
func (p Period) Ended(today time.Time) bool {
	return p.EndDate.Before(shared.Day(today))
}

// Info describes the date-derived current period from a user's point of view.
type Info struct {
	Period        Period `json:"period"`
	Closed        bool   `json:"closed"`
	DaysRemaining int    `json:"days_remaining"`
	EndingSoon    bool   `json:"ending_soon"`
}

// Sentinel errors.
var (
	ErrPeriodNotFound    = shared.NotFound("period_not_found", "period not found")
	ErrDuplicateYear     = shared.Conflict("duplicate_year", "periods already exist for this year")
	ErrPeriodHasClosures = shared.Conflict("period_has_closures", "period has recorded closures")
	ErrPeriodInUse       = shared.Conflict("period_in_use", "period is referenced by movements or transactions")
)

var monthNames = [...]string{
	"Enero", "Febrero", "Marzo", "Abril", "Mayo", "Junio",
	"Julio", "Agosto", "Septiembre", "Octubre", "Noviembre", "Diciembre",
}

// BuildYear lays out the 24 fortnights of year: days 1-15 and 16-last of each month.
func BuildYear(year int) ([]Period, error) {
	if year < MinYear || year > MaxYear {
		return nil, shared.FieldError("year", "must be between %d and %d", MinYear, MaxYear)
	}
	out := make([]Period, 0, PeriodsPerYear)
	for m := time.January; m <= time.December; m++ {
		name := monthNames[m-1]
		lastDay := time.Date(year, m+1, 0, 0, 0, 0, 0, time.UTC).Day()
		out = append(out,
			Period{
				StartDate:   time.Date(year, m, 1, 0, 0, 0, 0, time.UTC),
				EndDate:     time.Date(year, m, 15, 0, 0, 0, 0, time.UTC),
				Number:      len(out) + 1,
				Year:        year,
				Description: fmt.Sprintf("Primera quincena de %s %d", name, year),
			},
			Period{
				StartDate:   time.Date(year, m, 16, 0, 0, 0, 0, time.UTC),
				EndDate:     time.Date(year, m, lastDay, 0, 0, 0, 0, time.UTC),
				Number:      len(out) + 2,
				Year:        year,
				Description: fmt.Sprintf("Segunda quincena de %s %d", name, year),
			},
		)
	}
	return out, nil
}
