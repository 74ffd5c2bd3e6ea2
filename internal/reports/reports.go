// Package reports compares archived periods and summarizes spending trends.
package reports

import (
	"errors"
	"math"
	"sort"

	"budget-tracker-bot/internal/models"

	"github.com/shopspring/decimal"
)

var (
	ErrNoArchives        = errors.New("no archived periods")
	ErrNotEnoughArchives = errors.New("need at least two archived periods")
)

var hundred = decimal.NewFromInt(100)

// CategoryAmount is one category with its amount.
type CategoryAmount struct {
	Name   string          `json:"name"`
	Amount decimal.Decimal `json:"amount"`
}

// CategoryChange compares a category of the newer period with the older.
type CategoryChange struct {
	Name     string          `json:"name"`
	Current  decimal.Decimal `json:"current"`
	Previous decimal.Decimal `json:"previous"`
	// ChangePercent is nil when the category did not exist before.
	ChangePercent *decimal.Decimal `json:"changePercent"`
}

// Comparison is the difference between the two most recent archives.
type Comparison struct {
	Current          models.ArchivedPeriod `json:"current"`
	Previous         models.ArchivedPeriod `json:"previous"`
	SpendingChange   decimal.Decimal       `json:"spendingChange"`
	SpendingPercent  decimal.Decimal       `json:"spendingPercent"`
	ExpenseCountDiff int                   `json:"expenseCountDiff"`
	TopCategories    []CategoryChange      `json:"topCategories"`
	AvgExpenseDiff   decimal.Decimal       `json:"avgExpenseDiff"`
	SpendingDaysDiff int                   `json:"spendingDaysDiff"`
}

// Compare compares archives[0] with archives[1]. Archives must be sorted
// newest first.
func Compare(archives []models.ArchivedPeriod, top int) (Comparison, error) {
	if len(archives) == 0 {
		return Comparison{}, ErrNoArchives
	}
	if len(archives) < 2 {
		return Comparison{}, ErrNotEnoughArchives
	}
	current, previous := archives[0], archives[1]

	c := Comparison{
		Current:          current,
		Previous:         previous,
		SpendingChange:   current.TotalExpenses.Sub(previous.TotalExpenses),
		ExpenseCountDiff: current.ExpenseCount - previous.ExpenseCount,
		AvgExpenseDiff:   current.AvgExpense.Sub(previous.AvgExpense),
		SpendingDaysDiff: current.DaysWithSpending - previous.DaysWithSpending,
	}
	if previous.TotalExpenses.IsPositive() {
		c.SpendingPercent = c.SpendingChange.Div(previous.TotalExpenses).Mul(hundred).Round(1)
	}

	for _, cat := range TopCategories(current.CategoryBreakdown, top) {
		change := CategoryChange{
			Name:     cat.Name,
			Current:  cat.Amount,
			Previous: previous.CategoryBreakdown[cat.Name],
		}
		if change.Previous.IsPositive() {
			pct := change.Current.Sub(change.Previous).Div(change.Previous).Mul(hundred).Round(1)
			change.ChangePercent = &pct
		}
		c.TopCategories = append(c.TopCategories, change)
	}
	return c, nil
}

// TopCategories returns up to n categories by amount, largest first. n <= 0
// returns all of them.
func TopCategories(breakdown map[string]decimal.Decimal, n int) []CategoryAmount {
	out := make([]CategoryAmount, 0, len(breakdown))
	for name, amount := range breakdown {
		out = append(out, CategoryAmount{Name: name, Amount: amount})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Amount.Equal(out[j].Amount) {
			return out[i].Amount.GreaterThan(out[j].Amount)
		}
		return out[i].Name < out[j].Name
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// Volatility classifies the spread of period totals.
type Volatility string

const (
	Consistent Volatility = "consistent"
	Moderate   Volatility = "moderate"
	High       Volatility = "high"
)

// PeriodTotal is one point of the spending series.
type PeriodTotal struct {
	Key   string          `json:"key"`
	Label string          `json:"label"`
	Total decimal.Decimal `json:"total"`
	// Direction is -1, 0 or 1 compared with the period before it.
	Direction int `json:"direction"`
}

// TrendReport summarizes a run of archives.
type TrendReport struct {
	// Series is in chronological order.
	Series            []PeriodTotal          `json:"series"`
	AveragePerPeriod  decimal.Decimal        `json:"averagePerPeriod"`
	CategoryAverages  []CategoryAmount       `json:"categoryAverages"`
	AvgExpenseCount   decimal.Decimal        `json:"avgExpenseCount"`
	TotalExpenseCount int                    `json:"totalExpenseCount"`
	Highest           *models.ArchivedPeriod `json:"highest"`
	Lowest            *models.ArchivedPeriod `json:"lowest"`
	// VolatilityPercent is the coefficient of variation; only set with at
	// least three periods.
	VolatilityPercent decimal.Decimal `json:"volatilityPercent"`
	Volatility        Volatility      `json:"volatility"`
}

// Trends analyses archives sorted newest first.
func Trends(archives []models.ArchivedPeriod) (TrendReport, error) {
	if len(archives) == 0 {
		return TrendReport{}, ErrNoArchives
	}
	n := decimal.NewFromInt(int64(len(archives)))

	var r TrendReport
	total := decimal.Zero
	for i := len(archives) - 1; i >= 0; i-- {
		a := archives[i]
		point := PeriodTotal{Key: a.Key, Label: a.Label, Total: a.TotalExpenses}
		if i < len(archives)-1 {
			point.Direction = a.TotalExpenses.Cmp(archives[i+1].TotalExpenses)
		}
		r.Series = append(r.Series, point)
		total = total.Add(a.TotalExpenses)
		r.TotalExpenseCount += a.ExpenseCount
	}
	r.AveragePerPeriod = total.Div(n).Round(2)
	r.AvgExpenseCount = decimal.NewFromInt(int64(r.TotalExpenseCount)).Div(n).Round(1)

	categoryTotals := make(map[string]decimal.Decimal)
	categoryPeriods := make(map[string]int64)
	for _, a := range archives {
		for cat, amount := range a.CategoryBreakdown {
			categoryTotals[cat] = categoryTotals[cat].Add(amount)
			categoryPeriods[cat]++
		}
	}
	averages := make(map[string]decimal.Decimal, len(categoryTotals))
	for cat, sum := range categoryTotals {
		averages[cat] = sum.Div(decimal.NewFromInt(categoryPeriods[cat])).Round(2)
	}
	r.CategoryAverages = TopCategories(averages, 0)

	if len(archives) >= 3 {
		highest, lowest := 0, 0
		for i, a := range archives {
			if a.TotalExpenses.GreaterThan(archives[highest].TotalExpenses) {
				highest = i
			}
			if a.TotalExpenses.LessThan(archives[lowest].TotalExpenses) {
				lowest = i
			}
		}
		r.Highest = &archives[highest]
		r.Lowest = &archives[lowest]

		if r.AveragePerPeriod.IsPositive() {
			mean := total.Div(n).InexactFloat64()
			variance := 0.0
			for _, a := range archives {
				diff := a.TotalExpenses.InexactFloat64() - mean
				variance += diff * diff
			}
			stdDev := math.Sqrt(variance / float64(len(archives)))
			r.VolatilityPercent = decimal.NewFromFloat(stdDev / mean * 100).Round(1)
			r.Volatility = classify(r.VolatilityPercent)
		}
	}
	return r, nil
}

func classify(pct decimal.Decimal) Volatility {
	switch {
	case pct.LessThan(decimal.NewFromInt(20)):
		return Consistent
	case pct.LessThan(decimal.NewFromInt(40)):
		return Moderate
	default:
		return High
	}
}
