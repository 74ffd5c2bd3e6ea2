package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ArchivedPeriod is the immutable snapshot of a closed budget period.
type ArchivedPeriod struct {
	Key               string                     `json:"key"` // e.g. "monthly-2025-01"
	Cycle             CyclePeriod                `json:"cycle"`
	Year              int                        `json:"year"`
	PeriodIndex       int                        `json:"periodIndex"`
	Label             string                     `json:"label"`
	PeriodStart       Date                       `json:"periodStart"`
	PeriodEnd         Date                       `json:"periodEnd"`
	TotalExpenses     decimal.Decimal            `json:"totalExpenses"`
	ExpenseCount      int                        `json:"expenseCount"`
	CategoryBreakdown map[string]decimal.Decimal `json:"categoryBreakdown"`
	Expenses          []Expense                  `json:"expenses"`
	TotalIncome       decimal.Decimal            `json:"totalIncome"`
	Incomes           []Income                   `json:"incomes,omitempty"`
	AvgExpense        decimal.Decimal            `json:"avgExpense"`
	HighestExpense    decimal.Decimal            `json:"highestExpense"`
	LowestExpense     decimal.Decimal            `json:"lowestExpense"`
	DaysWithSpending  int                        `json:"daysWithSpending"`
	SavedAt           time.Time                  `json:"savedAt"`
}
