package models

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2025-01-10")
	if err != nil {
		t.Fatalf("ParseDate: %v", err)
	}
	if d != NewDate(2025, 1, 10) {
		t.Fatalf("got %s", d)
	}

	if _, err := ParseDate("10/01/2025"); !errors.Is(err, ErrInvalidDate) {
		t.Fatalf("expected ErrInvalidDate, got %v", err)
	}
}

func TestDateArithmetic(t *testing.T) {
	d := NewDate(2024, 2, 28)
	if got := d.AddDays(1); got.String() != "2024-02-29" {
		t.Errorf("AddDays(1) = %s", got)
	}
	if got := d.DaysInMonth(); got != 29 {
		t.Errorf("DaysInMonth = %d, want 29", got)
	}
	if got := NewDate(2025, 3, 1).DaysSince(d); got != 367 {
		t.Errorf("DaysSince = %d, want 367", got)
	}
	if got := NewDate(2025, 3, 30).DaysSince(NewDate(2025, 3, 29)); got != 1 {
		t.Errorf("DaysSince across DST = %d, want 1", got)
	}
	if !d.OnOrAfter(d) || d.OnOrAfter(d.AddDays(1)) {
		t.Error("OnOrAfter mismatch")
	}
}

func TestDateJSON(t *testing.T) {
	type wrapper struct {
		Date Date `json:"date"`
	}

	raw, err := json.Marshal(wrapper{Date: NewDate(2025, 1, 1)})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(raw) != `{"date":"2025-01-01"}` {
		t.Fatalf("unexpected JSON %s", raw)
	}

	var w wrapper
	if err := json.Unmarshal([]byte(`{"date":"garbage"}`), &w); err == nil {
		t.Fatal("expected error for malformed date")
	}
	if err := json.Unmarshal([]byte(`{"date":""}`), &w); err != nil || !w.Date.IsZero() {
		t.Fatalf("empty date should decode to zero, got %v %v", w.Date, err)
	}
}

func TestExpenseValidate(t *testing.T) {
	valid := Expense{
		Name:     "Coffee",
		Amount:   decimal.RequireFromString("4.50"),
		Category: "Food",
		Date:     NewDate(2025, 1, 10),
	}

	tests := []struct {
		name    string
		mutate  func(*Expense)
		wantErr error
	}{
		{"valid", func(*Expense) {}, nil},
		{"empty name", func(e *Expense) { e.Name = "  " }, ErrEmptyName},
		{"zero amount", func(e *Expense) { e.Amount = decimal.Zero }, ErrInvalidAmount},
		{"negative amount", func(e *Expense) { e.Amount = decimal.NewFromInt(-3) }, ErrInvalidAmount},
		{"no category", func(e *Expense) { e.Category = "" }, ErrEmptyCategory},
		{"no date", func(e *Expense) { e.Date = Date{} }, ErrInvalidDate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := valid
			tt.mutate(&e)
			err := e.Validate()
			if tt.wantErr == nil && err != nil {
				t.Fatalf("unexpected error %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("got %v, want %v", err, tt.wantErr)
			}
		})
	}

	long := valid
	long.Name = strings.Repeat("x", 201)
	if err := long.Validate(); err == nil {
		t.Fatal("expected error for long name")
	}
}

func TestIncomeValidate(t *testing.T) {
	in := Income{Amount: decimal.NewFromInt(1000), Source: "Salary", Date: NewDate(2025, 1, 1)}
	if err := in.Validate(); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	in.Source = ""
	if err := in.Validate(); !errors.Is(err, ErrEmptySource) {
		t.Fatalf("got %v, want ErrEmptySource", err)
	}
}

func TestCategoryBreakdownSumsToTotal(t *testing.T) {
	expenses := []Expense{
		{Amount: decimal.RequireFromString("4.50"), Category: "Food"},
		{Amount: decimal.RequireFromString("2.00"), Category: "Transport"},
		{Amount: decimal.RequireFromString("10.25"), Category: "Food"},
	}
	breakdown := CategoryBreakdown(expenses)
	if !breakdown["Food"].Equal(decimal.RequireFromString("14.75")) {
		t.Errorf("Food = %s", breakdown["Food"])
	}
	sum := decimal.Zero
	for _, v := range breakdown {
		sum = sum.Add(v)
	}
	if !sum.Equal(SumExpenses(expenses)) {
		t.Errorf("breakdown sum %s != total %s", sum, SumExpenses(expenses))
	}
}

func TestParseCyclePeriod(t *testing.T) {
	tests := map[string]CyclePeriod{
		"weekly":     Weekly,
		"Bi-Weekly":  Biweekly,
		"month":      Monthly,
		"six-months": SixMonths,
		"6m":         SixMonths,
	}
	for in, want := range tests {
		got, err := ParseCyclePeriod(in)
		if err != nil || got != want {
			t.Errorf("ParseCyclePeriod(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseCyclePeriod("daily"); !errors.Is(err, ErrInvalidCycle) {
		t.Errorf("expected ErrInvalidCycle, got %v", err)
	}
}

func TestBudgetSettingsValidate(t *testing.T) {
	b := DefaultBudgetSettings(NewDate(2025, 1, 17))
	if b.StartDate != NewDate(2025, 1, 1) || b.CyclePeriod != Monthly {
		t.Fatalf("unexpected defaults %+v", b)
	}
	if err := b.Validate(); err != nil {
		t.Fatalf("defaults should be valid: %v", err)
	}
	b.Amount = decimal.NewFromInt(-1)
	if err := b.Validate(); !errors.Is(err, ErrNegativeBudget) {
		t.Fatalf("got %v, want ErrNegativeBudget", err)
	}
}
