package models

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// CyclePeriod is the length of a budget accounting period.
type CyclePeriod string

const (
	Weekly    CyclePeriod = "weekly"
	Biweekly  CyclePeriod = "biweekly"
	Monthly   CyclePeriod = "monthly"
	SixMonths CyclePeriod = "six_months"
)

// CyclePeriods lists the supported cycles in display order.
var CyclePeriods = []CyclePeriod{Weekly, Biweekly, Monthly, SixMonths}

// IsValid returns true if the cycle is one of the supported values.
func (c CyclePeriod) IsValid() bool {
	switch c {
	case Weekly, Biweekly, Monthly, SixMonths:
		return true
	default:
		return false
	}
}

func (c CyclePeriod) String() string {
	return string(c)
}

// ParseCyclePeriod accepts the canonical names plus a few spellings users
// tend to type ("bi-weekly", "six-months", "6m").
func ParseCyclePeriod(s string) (CyclePeriod, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.ReplaceAll(norm, "-", "_")
	switch norm {
	case "week", "weekly":
		return Weekly, nil
	case "biweekly", "bi_weekly", "fortnight", "fortnightly":
		return Biweekly, nil
	case "month", "monthly":
		return Monthly, nil
	case "six_months", "sixmonths", "6m", "6_months", "half_year":
		return SixMonths, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidCycle, s)
}

// BudgetSettings is the single active budget configuration of a user.
type BudgetSettings struct {
	CyclePeriod      CyclePeriod     `json:"cyclePeriod"`
	Amount           decimal.Decimal `json:"amount"`
	StartDate        Date            `json:"startDate"`
	AutoResetEnabled bool            `json:"autoResetEnabled"`
}

// DefaultBudgetSettings is used when no settings were ever saved: a monthly
// cycle with no budget, anchored at the first day of today's month.
func DefaultBudgetSettings(today Date) BudgetSettings {
	return BudgetSettings{
		CyclePeriod: Monthly,
		Amount:      decimal.Zero,
		StartDate:   today.FirstOfMonth(),
	}
}

func (b BudgetSettings) Validate() error {
	if !b.CyclePeriod.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidCycle, b.CyclePeriod)
	}
	if b.Amount.IsNegative() {
		return ErrNegativeBudget
	}
	if b.StartDate.IsZero() {
		return ErrInvalidDate
	}
	return nil
}
