package period

import (
	"fmt"
	"time"

	"budget-tracker-bot/internal/models"
)

// Window is one accounting period: [Start, End).
type Window struct {
	Cycle models.CyclePeriod
	Start models.Date
	End   models.Date
	Year  int
	Index int
}

// WindowAt returns the window of settings' cycle that contains day.
func WindowAt(settings models.BudgetSettings, day models.Date) (Window, error) {
	calc, err := For(settings.CyclePeriod)
	if err != nil {
		return Window{}, err
	}
	anchor := settings.StartDate
	if anchor.IsZero() {
		anchor = day
	}
	start := calc.Start(day, anchor)
	year, index := calc.Index(start)
	return Window{
		Cycle: settings.CyclePeriod,
		Start: start,
		End:   calc.Next(start),
		Year:  year,
		Index: index,
	}, nil
}

// Current returns the window containing now. now should already be in the
// user's location; its calendar date is what counts.
func Current(settings models.BudgetSettings, now time.Time) (Window, error) {
	return WindowAt(settings, models.DateOf(now))
}

// Start returns the first day of the period containing now.
func Start(settings models.BudgetSettings, now time.Time) (models.Date, error) {
	w, err := Current(settings, now)
	if err != nil {
		return models.Date{}, err
	}
	return w.Start, nil
}

// Key identifies the window in archive storage. Year and index are zero
// padded so keys of one cycle sort chronologically.
func (w Window) Key() string {
	return fmt.Sprintf("%s-%04d-%02d", w.Cycle, w.Year, w.Index)
}

// LastDay returns the final calendar day inside the window.
func (w Window) LastDay() models.Date {
	return w.End.AddDays(-1)
}

// Contains reports whether day falls inside the window.
func (w Window) Contains(day models.Date) bool {
	return day.OnOrAfter(w.Start) && day.Before(w.End.Time)
}

// Label is a human readable name for the window.
func (w Window) Label() string {
	switch w.Cycle {
	case models.Monthly:
		return w.Start.Format("January 2006")
	case models.Weekly:
		return fmt.Sprintf("Week %d, %d", w.Index, w.Year)
	default:
		return fmt.Sprintf("%s to %s", w.Start, w.LastDay())
	}
}

// Previous returns the window immediately before w.
func (w Window) Previous(settings models.BudgetSettings) (Window, error) {
	return WindowAt(settings, w.Start.AddDays(-1))
}
