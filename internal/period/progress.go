package period

import (
	"time"

	"budget-tracker-bot/internal/models"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Progress is spending measured against the budget of the current window.
type Progress struct {
	Window     Window
	Budget     decimal.Decimal
	Spent      decimal.Decimal
	Remaining  decimal.Decimal
	Percentage int
}

// ComputeProgress sums every expense dated on or after the start of the
// current window and compares it with the budget amount.
func ComputeProgress(expenses []models.Expense, settings models.BudgetSettings, now time.Time) (Progress, error) {
	w, err := Current(settings, now)
	if err != nil {
		return Progress{}, err
	}

	spent := decimal.Zero
	for _, e := range expenses {
		if e.Date.OnOrAfter(w.Start) {
			spent = spent.Add(e.Amount)
		}
	}

	remaining := settings.Amount.Sub(spent)
	if remaining.IsNegative() {
		remaining = decimal.Zero
	}

	return Progress{
		Window:     w,
		Budget:     settings.Amount,
		Spent:      spent,
		Remaining:  remaining,
		Percentage: Percentage(spent, settings.Amount),
	}, nil
}

// Percentage returns round(100*spent/budget) clamped to [0, 100]. A zero
// budget is defined as 0%.
func Percentage(spent, budget decimal.Decimal) int {
	if !budget.IsPositive() {
		return 0
	}
	pct := spent.Mul(hundred).Div(budget).Round(0).IntPart()
	switch {
	case pct < 0:
		return 0
	case pct > 100:
		return 100
	}
	return int(pct)
}

// Ratio returns spent/budget, or zero when there is no budget.
func Ratio(spent, budget decimal.Decimal) decimal.Decimal {
	if !budget.IsPositive() {
		return decimal.Zero
	}
	return spent.Div(budget)
}
