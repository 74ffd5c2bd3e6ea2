package models

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidAmount  = errors.New("amount must be positive")
	ErrEmptyName      = errors.New("name is required")
	ErrEmptyCategory  = errors.New("category is required")
	ErrEmptySource    = errors.New("source is required")
	ErrInvalidDate    = errors.New("invalid date")
	ErrInvalidCycle   = errors.New("invalid cycle period")
	ErrNegativeBudget = errors.New("budget amount cannot be negative")
	ErrTextTooLong    = errors.New("text too long (max 200 characters)")
)

const maxTextLength = 200

// Expense is a single spending record.
type Expense struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Amount    decimal.Decimal `json:"amount"`
	Category  string          `json:"category"`
	Date      Date            `json:"date"`
	CreatedAt time.Time       `json:"createdAt"`
}

// Income is a single earning record.
type Income struct {
	ID        string          `json:"id"`
	Amount    decimal.Decimal `json:"amount"`
	Source    string          `json:"source"`
	Date      Date            `json:"date"`
	CreatedAt time.Time       `json:"createdAt"`
}

// Validate checks the user-supplied fields of an expense.
func (e Expense) Validate() error {
	if err := validateText(e.Name, ErrEmptyName); err != nil {
		return err
	}
	if !e.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	if err := validateText(e.Category, ErrEmptyCategory); err != nil {
		return err
	}
	if e.Date.IsZero() {
		return ErrInvalidDate
	}
	return nil
}

// Validate checks the user-supplied fields of an income.
func (i Income) Validate() error {
	if !i.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	if err := validateText(i.Source, ErrEmptySource); err != nil {
		return err
	}
	if i.Date.IsZero() {
		return ErrInvalidDate
	}
	return nil
}

func validateText(s string, emptyErr error) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return emptyErr
	}
	if len(s) > maxTextLength {
		return ErrTextTooLong
	}
	return nil
}

// SumExpenses returns the total amount of the given expenses.
func SumExpenses(expenses []Expense) decimal.Decimal {
	total := decimal.Zero
	for _, e := range expenses {
		total = total.Add(e.Amount)
	}
	return total
}

// SumIncomes returns the total amount of the given incomes.
func SumIncomes(incomes []Income) decimal.Decimal {
	total := decimal.Zero
	for _, i := range incomes {
		total = total.Add(i.Amount)
	}
	return total
}

// CategoryBreakdown sums expense amounts per category.
func CategoryBreakdown(expenses []Expense) map[string]decimal.Decimal {
	breakdown := make(map[string]decimal.Decimal)
	for _, e := range expenses {
		breakdown[e.Category] = breakdown[e.Category].Add(e.Amount)
	}
	return breakdown
}
