package utils

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"budget-tracker-bot/internal/models"

	"github.com/shopspring/decimal"
)

const timestampLayout = "2006-01-02 15:04:05"

// GenerateArchiveCSV writes the report of one archived period.
func GenerateArchiveCSV(archive *models.ArchivedPeriod, generated time.Time, writer io.Writer) error {
	csvWriter := csv.NewWriter(writer)

	header := [][]string{
		{"Budget Period Report"},
		{"Period", archive.Label},
		{"Key", archive.Key},
		{"From", archive.PeriodStart.String(), "To", archive.PeriodEnd.String()},
		{"Generated", generated.Format(timestampLayout)},
		{},
		{"SUMMARY"},
		{"Total Spent", archive.TotalExpenses.StringFixed(2)},
		{"Total Expenses", strconv.Itoa(archive.ExpenseCount)},
		{"Average Expense", archive.AvgExpense.StringFixed(2)},
		{"Highest Expense", archive.HighestExpense.StringFixed(2)},
		{"Lowest Expense", archive.LowestExpense.StringFixed(2)},
		{"Days with Spending", strconv.Itoa(archive.DaysWithSpending)},
		{"Total Income", archive.TotalIncome.StringFixed(2)},
		{},
	}
	if err := csvWriter.WriteAll(header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	if len(archive.CategoryBreakdown) > 0 {
		rows := [][]string{{"CATEGORY BREAKDOWN"}, {"Category", "Amount", "Percentage"}}
		for _, cat := range sortedCategories(archive.CategoryBreakdown) {
			rows = append(rows, []string{
				cat,
				archive.CategoryBreakdown[cat].StringFixed(2),
				percentOf(archive.CategoryBreakdown[cat], archive.TotalExpenses),
			})
		}
		rows = append(rows, []string{})
		if err := csvWriter.WriteAll(rows); err != nil {
			return fmt.Errorf("failed to write categories: %w", err)
		}
	}

	if len(archive.Expenses) > 0 {
		rows := [][]string{{"DETAILED EXPENSES"}, {"Date", "Name", "Amount", "Category"}}
		for _, e := range archive.Expenses {
			rows = append(rows, []string{e.Date.String(), e.Name, e.Amount.StringFixed(2), e.Category})
		}
		if len(archive.Incomes) > 0 {
			rows = append(rows, []string{})
		}
		if err := csvWriter.WriteAll(rows); err != nil {
			return fmt.Errorf("failed to write expenses: %w", err)
		}
	}

	if len(archive.Incomes) > 0 {
		rows := [][]string{{"INCOME"}, {"Date", "Source", "Amount"}}
		for _, in := range archive.Incomes {
			rows = append(rows, []string{in.Date.String(), in.Source, in.Amount.StringFixed(2)})
		}
		if err := csvWriter.WriteAll(rows); err != nil {
			return fmt.Errorf("failed to write incomes: %w", err)
		}
	}

	return nil
}

// GenerateComparisonCSV writes a side by side report of several archives,
// given newest first.
func GenerateComparisonCSV(archives []models.ArchivedPeriod, generated time.Time, writer io.Writer) error {
	if len(archives) == 0 {
		return errors.New("no archives provided for comparison")
	}

	csvWriter := csv.NewWriter(writer)

	rows := [][]string{
		{"Period Comparison Report"},
		{"Generated", generated.Format(timestampLayout)},
		{},
	}

	summaryHeader := []string{"Metric"}
	for _, a := range archives {
		summaryHeader = append(summaryHeader, a.Label)
	}
	rows = append(rows, summaryHeader)

	metrics := []struct {
		name  string
		value func(models.ArchivedPeriod) string
	}{
		{"Total Spent", func(a models.ArchivedPeriod) string { return a.TotalExpenses.StringFixed(2) }},
		{"Total Expenses", func(a models.ArchivedPeriod) string { return strconv.Itoa(a.ExpenseCount) }},
		{"Average Expense", func(a models.ArchivedPeriod) string { return a.AvgExpense.StringFixed(2) }},
		{"Highest Expense", func(a models.ArchivedPeriod) string { return a.HighestExpense.StringFixed(2) }},
		{"Lowest Expense", func(a models.ArchivedPeriod) string { return a.LowestExpense.StringFixed(2) }},
		{"Days with Spending", func(a models.ArchivedPeriod) string { return strconv.Itoa(a.DaysWithSpending) }},
		{"Total Income", func(a models.ArchivedPeriod) string { return a.TotalIncome.StringFixed(2) }},
	}
	for _, m := range metrics {
		row := []string{m.name}
		for _, a := range archives {
			row = append(row, m.value(a))
		}
		rows = append(rows, row)
	}

	if len(archives) > 1 {
		rows = append(rows, []string{}, []string{"GROWTH RATES (Period-over-Period)"})
		growthHeader := []string{"Metric"}
		for i := 1; i < len(archives); i++ {
			growthHeader = append(growthHeader, fmt.Sprintf("%s vs %s", archives[i-1].Label, archives[i].Label))
		}
		rows = append(rows, growthHeader)

		growth := []struct {
			name  string
			value func(models.ArchivedPeriod) decimal.Decimal
		}{
			{"Total Spent", func(a models.ArchivedPeriod) decimal.Decimal { return a.TotalExpenses }},
			{"Total Expenses", func(a models.ArchivedPeriod) decimal.Decimal { return decimal.NewFromInt(int64(a.ExpenseCount)) }},
			{"Average Expense", func(a models.ArchivedPeriod) decimal.Decimal { return a.AvgExpense }},
		}
		for _, g := range growth {
			row := []string{g.name}
			for i := 1; i < len(archives); i++ {
				current, previous := g.value(archives[i-1]), g.value(archives[i])
				if previous.IsZero() {
					row = append(row, "N/A")
					continue
				}
				rate := current.Sub(previous).Div(previous).Mul(decimal.NewFromInt(100))
				row = append(row, rate.StringFixed(1)+"%")
			}
			rows = append(rows, row)
		}
	}

	if err := csvWriter.WriteAll(rows); err != nil {
		return fmt.Errorf("failed to write comparison: %w", err)
	}
	return nil
}

func sortedCategories(breakdown map[string]decimal.Decimal) []string {
	names := make([]string, 0, len(breakdown))
	for name := range breakdown {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		a, b := breakdown[names[i]], breakdown[names[j]]
		if !a.Equal(b) {
			return a.GreaterThan(b)
		}
		return names[i] < names[j]
	})
	return names
}

func percentOf(part, total decimal.Decimal) string {
	if !total.IsPositive() {
		return "0.0%"
	}
	return part.Div(total).Mul(decimal.NewFromInt(100)).StringFixed(1) + "%"
}
