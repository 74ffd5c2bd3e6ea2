// Package period computes budget accounting windows.
//
// Every cycle is handled by a Calculator. Weekly and monthly cycles follow
// the calendar; biweekly and six-month cycles are contiguous fixed-length
// windows anchored at the budget start date. All arithmetic is done on
// calendar dates, so a window always begins at local midnight.
package period

import (
	"fmt"
	"sync"

	"budget-tracker-bot/internal/models"
)

// Calculator encapsulates the window arithmetic of one cycle type.
type Calculator interface {
	// Start returns the first day of the window containing day.
	Start(day, anchor models.Date) models.Date

	// Next returns the first day of the window after the one beginning at start.
	Next(start models.Date) models.Date

	// Index returns the year and 1-based ordinal of the window beginning at start.
	Index(start models.Date) (year, index int)
}

// WeeklyCalculator implements ISO weeks starting on Monday.
type WeeklyCalculator struct{}

func (WeeklyCalculator) Start(day, _ models.Date) models.Date {
	daysFromMonday := (int(day.Weekday()) + 6) % 7
	return day.AddDays(-daysFromMonday)
}

func (WeeklyCalculator) Next(start models.Date) models.Date {
	return start.AddDays(7)
}

// Index uses the ISO week number, so the year is the ISO year.
func (WeeklyCalculator) Index(start models.Date) (int, int) {
	return start.ISOWeek()
}

// MonthlyCalculator implements calendar months.
type MonthlyCalculator struct{}

func (MonthlyCalculator) Start(day, _ models.Date) models.Date {
	return day.FirstOfMonth()
}

func (MonthlyCalculator) Next(start models.Date) models.Date {
	return models.NewDate(start.Year(), start.Month()+1, 1)
}

func (MonthlyCalculator) Index(start models.Date) (int, int) {
	return start.Year(), int(start.Month())
}

// AnchoredCalculator implements fixed-length windows anchored at the budget
// start date. Days before the anchor fall into earlier windows of the same
// grid.
type AnchoredCalculator struct {
	Days int
}

func (c AnchoredCalculator) Start(day, anchor models.Date) models.Date {
	elapsed := floorDiv(day.DaysSince(anchor), c.Days)
	return anchor.AddDays(elapsed * c.Days)
}

func (c AnchoredCalculator) Next(start models.Date) models.Date {
	return start.AddDays(c.Days)
}

// Index numbers windows by where they start within the calendar year. Two
// windows of the same grid start at least Days apart, so the ordinal is
// unique per year.
func (c AnchoredCalculator) Index(start models.Date) (int, int) {
	return start.Year(), (start.YearDay()-1)/c.Days + 1
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

const (
	BiweeklyDays  = 14
	SixMonthsDays = 182
)

var (
	calculatorsMu sync.RWMutex
	calculators   = map[models.CyclePeriod]Calculator{
		models.Weekly:    WeeklyCalculator{},
		models.Biweekly:  AnchoredCalculator{Days: BiweeklyDays},
		models.Monthly:   MonthlyCalculator{},
		models.SixMonths: AnchoredCalculator{Days: SixMonthsDays},
	}
)

// For returns the calculator registered for a cycle.
func For(cycle models.CyclePeriod) (Calculator, error) {
	calculatorsMu.RLock()
	calc, ok := calculators[cycle]
	calculatorsMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", models.ErrInvalidCycle, cycle)
	}
	return calc, nil
}

// Register installs or replaces the calculator used for a cycle. It is safe
// to call while windows are being computed; callers already holding the old
// calculator keep using it.
func Register(cycle models.CyclePeriod, calc Calculator) {
	calculatorsMu.Lock()
	defer calculatorsMu.Unlock()
	calculators[cycle] = calc
}
