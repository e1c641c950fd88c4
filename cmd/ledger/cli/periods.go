package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/obra-ledger/obra-ledger/internal/periods"
)

// YearGenerator creates the fortnightly periods of one year.
type YearGenerator interface {
	GenerateYear(ctx context.Context, year int) ([]periods.Period, error)
}

// PeriodsCLI offers operational helpers for the period calendar.
type PeriodsCLI struct {
	generator YearGenerator
}

// NewPeriodsCLI constructs the helper over the period service.
func NewPeriodsCLI(generator YearGenerator) (*PeriodsCLI, error) {
	if generator == nil {
		return nil, errors.New("periods cli: generator is required")
	}
	return &PeriodsCLI{generator: generator}, nil
}

// GenerateOptions defines the flags of the periods generate command.
type GenerateOptions struct {
	Year       int
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// GenerateSummary is the JSON output of periods generate.
type GenerateSummary struct {
	Year    int             `json:"year"`
	Created int             `json:"created"`
	Periods []GeneratedItem `json:"periods"`
}

// GeneratedItem describes one created period.
type GeneratedItem struct {
	ID        int64  `json:"id"`
	Number    int    `json:"number"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

// GenerateCommand creates the periods of opts.Year. It exits 2 when the year already exists.
func (c *PeriodsCLI) GenerateCommand(ctx context.Context, opts GenerateOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.Year <= 0 {
		_, _ = fmt.Fprintln(opts.Stderr, "periods generate: year is required and must be positive")
		return 1
	}
	created, err := c.generator.GenerateYear(ctx, opts.Year)
	if errors.Is(err, periods.ErrDuplicateYear) {
		_, _ = fmt.Fprintf(opts.Stderr, "periods generate: periods for %d already exist\n", opts.Year)
		return 2
	}
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "periods generate: %v\n", err)
		return 1
	}

	summary := GenerateSummary{Year: opts.Year, Created: len(created), Periods: make([]GeneratedItem, 0, len(created))}
	for _, p := range created {
		summary.Periods = append(summary.Periods, GeneratedItem{
			ID:        p.ID,
			Number:    p.Number,
			StartDate: p.StartDate.Format(time.DateOnly),
			EndDate:   p.EndDate.Format(time.DateOnly),
		})
	}
	if opts.JSONOutput {
		if err := json.NewEncoder(opts.Stdout).Encode(summary); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "periods generate: encode json: %v\n", err)
			return 1
		}
		return 0
	}
	_, _ = fmt.Fprintf(opts.Stdout, "Generated %d periods for %d\n", summary.Created, summary.Year)
	for _, item := range summary.Periods {
		_, _ = fmt.Fprintf(opts.Stdout, " - #%02d %s .. %s\n", item.Number, item.StartDate, item.EndDate)
	}
	return 0
}
