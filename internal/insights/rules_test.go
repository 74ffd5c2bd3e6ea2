package insights

import (
	"strings"
	"testing"
	"time"

	"budget-tracker-bot/internal/models"

	"github.com/shopspring/decimal"
)

type fixedRand int

func (r fixedRand) Intn(n int) int { return int(r) % n }

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// mid-month Wednesday, far from month end
var wednesday = time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)

func byTitle(res Result, title string) (models.Notification, bool) {
	for _, n := range res.Notifications {
		if n.Title == title {
			return n, true
		}
	}
	return models.Notification{}, false
}

func TestBudgetRules(t *testing.T) {
	tests := []struct {
		name         string
		spent        string
		budget       string
		wantTitle    string
		wantPriority models.Priority
	}{
		{"alert at 90%", "450", "500", "Budget alert", models.PriorityHigh},
		{"alert at exactly 85%", "425", "500", "Budget alert", models.PriorityHigh},
		{"warning at 75%", "375", "500", "Budget warning", models.PriorityMedium},
		{"on track at 40%", "200", "500", "Great budgeting", models.PriorityMedium},
		{"nothing at 65%", "325", "500", "", ""},
		{"nothing without budget", "325", "0", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Evaluate(Input{Now: wednesday, Spent: dec(tt.spent), Budget: dec(tt.budget)}, fixedRand(0))

			var budget []models.Notification
			for _, n := range res.Notifications {
				if n.Type == models.BudgetAlert || n.Title == "Great budgeting" {
					budget = append(budget, n)
				}
			}
			if tt.wantTitle == "" {
				if len(budget) != 0 {
					t.Fatalf("expected no budget notification, got %+v", budget)
				}
				return
			}
			if len(budget) != 1 {
				t.Fatalf("expected one budget notification, got %+v", budget)
			}
			if budget[0].Title != tt.wantTitle || budget[0].Priority != tt.wantPriority {
				t.Fatalf("got %q/%s, want %q/%s", budget[0].Title, budget[0].Priority, tt.wantTitle, tt.wantPriority)
			}
		})
	}
}

func TestPositiveReinforcementFiresNoAlert(t *testing.T) {
	res := Evaluate(Input{Now: wednesday, Spent: dec("200"), Budget: dec("500")}, fixedRand(0))
	for _, n := range res.Notifications {
		if n.Type == models.BudgetAlert {
			t.Fatalf("unexpected alert %+v", n)
		}
	}
	n, ok := byTitle(res, "Great budgeting")
	if !ok || n.Priority != models.PriorityMedium {
		t.Fatalf("expected medium positive reinforcement, got %+v", res.Notifications)
	}
}

func TestCategoryRulePicksTipWithRand(t *testing.T) {
	in := Input{
		Now: wednesday,
		CategoryTotals: map[string]decimal.Decimal{
			"Dining Out 🍽️": dec("60"),
			"Transport":     dec("40"),
		},
	}
	tips := TipsFor("Dining Out 🍽️")

	for i := range tips {
		res := Evaluate(in, fixedRand(i))
		n, ok := byTitle(res, "Dining Out 🍽️ is 60% of your spending")
		if !ok {
			t.Fatalf("category rule did not fire: %+v", res.Notifications)
		}
		if n.Message != tips[i] || n.Priority != models.PriorityMedium {
			t.Fatalf("got %q, want %q", n.Message, tips[i])
		}
	}
}

func TestCategoryRuleNeedsMoreThanFortyPercent(t *testing.T) {
	in := Input{
		Now: wednesday,
		CategoryTotals: map[string]decimal.Decimal{
			"Food":      dec("40"),
			"Transport": dec("30"),
			"Other":     dec("30"),
		},
	}
	for _, n := range Evaluate(in, fixedRand(0)).Notifications {
		if strings.Contains(n.Title, "of your spending") {
			t.Fatalf("unexpected category tip %+v", n)
		}
	}
}

func TestTipsForFallsBack(t *testing.T) {
	if got := TipsFor("Groceries 🛒"); got[0] != categoryTips[0].tips[0] {
		t.Errorf("groceries matched %q", got[0])
	}
	if got := TipsFor("Pets"); len(got) != len(genericTips) {
		t.Errorf("expected generic tips for unknown category")
	}
}

func TestFrequencyRule(t *testing.T) {
	today := models.DateOf(wednesday)
	var expenses []models.Expense
	for i := 0; i < 6; i++ {
		expenses = append(expenses, models.Expense{Amount: dec("1"), Date: today.AddDays(-(i % 3))})
	}

	n, ok := byTitle(Evaluate(Input{Now: wednesday, Expenses: expenses}, nil), "Lots of small purchases")
	if !ok || n.Priority != models.PriorityLow {
		t.Fatalf("expected low priority nudge, got %+v %v", n, ok)
	}

	// the same six spread over a wider range do not fire
	expenses[5].Date = today.AddDays(-3)
	if _, ok := byTitle(Evaluate(Input{Now: wednesday, Expenses: expenses}, nil), "Lots of small purchases"); ok {
		t.Fatal("nudge should need more than five in three days")
	}
}

func TestWeeklySavingsAchievement(t *testing.T) {
	expenses := []models.Expense{
		{Amount: dec("30"), Date: models.NewDate(2025, 1, 14)}, // this week
		{Amount: dec("50"), Date: models.NewDate(2025, 1, 8)},  // last week
		{Amount: dec("20"), Date: models.NewDate(2025, 1, 6)},  // last week
		{Amount: dec("99"), Date: models.NewDate(2025, 1, 5)},  // two weeks ago
	}
	this, last := WeekTotals(expenses, models.DateOf(wednesday))
	if !this.Equal(dec("30")) || !last.Equal(dec("70")) {
		t.Fatalf("week totals %s / %s", this, last)
	}

	n, ok := byTitle(Evaluate(Input{Now: wednesday, Expenses: expenses}, nil), "Spending less than last week")
	if !ok || n.Type != models.Achievement || !strings.Contains(n.Message, "40.00") {
		t.Fatalf("unexpected achievement %+v %v", n, ok)
	}
}

func TestBalanceReminder(t *testing.T) {
	tests := []struct {
		name         string
		updated      time.Time
		lastReminder time.Time
		want         bool
	}{
		{"never updated", time.Time{}, time.Time{}, false},
		{"updated yesterday", wednesday.Add(-24 * time.Hour), time.Time{}, false},
		{"updated four days ago", wednesday.Add(-96 * time.Hour), time.Time{}, true},
		{"reminded yesterday", wednesday.Add(-96 * time.Hour), wednesday.Add(-24 * time.Hour), false},
		{"reminded long ago", wednesday.Add(-240 * time.Hour), wednesday.Add(-96 * time.Hour), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Evaluate(Input{Now: wednesday, BalanceUpdatedAt: tt.updated, LastBalanceReminder: tt.lastReminder}, nil)
			_, fired := byTitle(res, "Update your balance")
			if fired != tt.want || res.BalanceReminderFired != tt.want {
				t.Fatalf("fired = %v, want %v", fired, tt.want)
			}
		})
	}
}

func TestMonthEndReviewOncePerMonth(t *testing.T) {
	tests := []struct {
		name   string
		now    time.Time
		marker string
		want   bool
	}{
		{"mid month", wednesday, "", false},
		{"three days before end", time.Date(2025, 1, 28, 9, 0, 0, 0, time.UTC), "", false},
		{"third last day", time.Date(2025, 1, 29, 9, 0, 0, 0, time.UTC), "", true},
		{"last day", time.Date(2025, 1, 31, 9, 0, 0, 0, time.UTC), "", true},
		{"already fired this month", time.Date(2025, 1, 31, 9, 0, 0, 0, time.UTC), "2025-01", false},
		{"fired last month", time.Date(2025, 2, 27, 9, 0, 0, 0, time.UTC), "2025-01", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Evaluate(Input{Now: tt.now, LastMonthEndReview: tt.marker}, nil)
			_, fired := byTitle(res, "Month-end review")
			if fired != tt.want {
				t.Fatalf("fired = %v, want %v", fired, tt.want)
			}
			if tt.want && res.MonthEndReviewFired != tt.now.Format(MonthMarkerLayout) {
				t.Fatalf("marker = %q", res.MonthEndReviewFired)
			}
		})
	}
}

func TestPreviousPeriodRule(t *testing.T) {
	in := Input{Now: wednesday, Spent: dec("120"), PreviousPeriodTotal: dec("100")}
	if _, ok := byTitle(Evaluate(in, nil), "Ahead of last period"); !ok {
		t.Fatal("expected previous period rule to fire")
	}
	in.Spent = dec("80")
	if _, ok := byTitle(Evaluate(in, nil), "Ahead of last period"); ok {
		t.Fatal("rule fired below previous total")
	}
}

func TestEvaluateIsDeterministic(t *testing.T) {
	in := Input{
		Now:            time.Date(2025, 1, 30, 9, 0, 0, 0, time.UTC),
		Spent:          dec("450"),
		Budget:         dec("500"),
		CategoryTotals: map[string]decimal.Decimal{"Food": dec("450")},
	}
	a := Evaluate(in, fixedRand(2))
	b := Evaluate(in, fixedRand(2))
	if len(a.Notifications) != len(b.Notifications) {
		t.Fatal("different number of notifications")
	}
	for i := range a.Notifications {
		if a.Notifications[i] != b.Notifications[i] {
			t.Fatalf("notification %d differs", i)
		}
	}
}
