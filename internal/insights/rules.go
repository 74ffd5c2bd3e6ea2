// Package insights turns spending aggregates into advisory notifications.
//
// Evaluate is a pure function: the clock, the randomness used to pick tips
// and the dedupe markers all come in through Input, so a call can be
// replayed exactly in tests.
package insights

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"budget-tracker-bot/internal/models"

	"github.com/shopspring/decimal"
)

// Rule thresholds.
var (
	AlertRatio       = decimal.RequireFromString("0.85")
	WarningRatio     = decimal.RequireFromString("0.70")
	OnTrackRatio     = decimal.RequireFromString("0.60")
	CategoryShare    = decimal.RequireFromString("0.40")
	FrequentCount    = 5
	FrequentWindow   = 3 // days, today included
	BalanceStaleDays = 3
	MonthEndDays     = 3
)

// MonthMarkerLayout formats the month-end dedupe marker.
const MonthMarkerLayout = "2006-01"

// Rand picks tips. *math/rand.Rand satisfies it.
type Rand interface {
	Intn(n int) int
}

// Input is everything the rules look at.
type Input struct {
	Now      time.Time
	Expenses []models.Expense
	// CategoryTotals covers the current period only.
	CategoryTotals      map[string]decimal.Decimal
	Spent               decimal.Decimal
	Budget              decimal.Decimal
	PreviousPeriodTotal decimal.Decimal

	// BalanceUpdatedAt is zero when the balance was never set.
	BalanceUpdatedAt    time.Time
	LastBalanceReminder time.Time
	// LastMonthEndReview is the month (MonthMarkerLayout) the review last fired.
	LastMonthEndReview string
}

// Result holds the fired notifications plus the marker updates the caller
// must persist.
type Result struct {
	Notifications []models.Notification

	BalanceReminderFired bool
	MonthEndReviewFired  string
}

// Evaluate runs every rule independently.
func Evaluate(in Input, rnd Rand) Result {
	var res Result
	add := func(n models.Notification) {
		n.Timestamp = in.Now
		res.Notifications = append(res.Notifications, n)
	}

	if n, ok := budgetRule(in); ok {
		add(n)
	}
	if n, ok := categoryRule(in, rnd); ok {
		add(n)
	}
	if n, ok := frequencyRule(in); ok {
		add(n)
	}
	if n, ok := weeklySavingsRule(in); ok {
		add(n)
	}
	if n, ok := previousPeriodRule(in); ok {
		add(n)
	}
	if n, ok := balanceReminderRule(in); ok {
		add(n)
		res.BalanceReminderFired = true
	}
	if n, ok := monthEndRule(in); ok {
		add(n)
		res.MonthEndReviewFired = in.Now.Format(MonthMarkerLayout)
	}
	return res
}

func budgetRule(in Input) (models.Notification, bool) {
	if !in.Budget.IsPositive() {
		return models.Notification{}, false
	}
	ratio := in.Spent.Div(in.Budget)
	pct := ratio.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
	remaining := in.Budget.Sub(in.Spent)

	switch {
	case ratio.GreaterThanOrEqual(AlertRatio):
		msg := fmt.Sprintf("You've used %d%% of your budget.", pct)
		if remaining.IsPositive() {
			msg += fmt.Sprintf(" Only %s left for this period.", remaining.StringFixed(2))
		} else {
			msg += fmt.Sprintf(" You are %s over.", remaining.Neg().StringFixed(2))
		}
		return models.Notification{
			Type:     models.BudgetAlert,
			Title:    "Budget alert",
			Message:  msg,
			Icon:     "🚨",
			Priority: models.PriorityHigh,
		}, true
	case ratio.GreaterThanOrEqual(WarningRatio):
		return models.Notification{
			Type:     models.BudgetAlert,
			Title:    "Budget warning",
			Message:  fmt.Sprintf("You've used %d%% of your budget. %s left, slow down a little.", pct, remaining.StringFixed(2)),
			Icon:     "⚠️",
			Priority: models.PriorityMedium,
		}, true
	case ratio.LessThan(OnTrackRatio):
		return models.Notification{
			Type:     models.SavingsTip,
			Title:    "Great budgeting",
			Message:  fmt.Sprintf("Only %d%% of your budget used so far. Keep it up!", pct),
			Icon:     "🌟",
			Priority: models.PriorityMedium,
		}, true
	}
	return models.Notification{}, false
}

func categoryRule(in Input, rnd Rand) (models.Notification, bool) {
	total := decimal.Zero
	for _, v := range in.CategoryTotals {
		total = total.Add(v)
	}
	if !total.IsPositive() {
		return models.Notification{}, false
	}

	// deterministic iteration so ties pick the same category every run
	names := make([]string, 0, len(in.CategoryTotals))
	for name := range in.CategoryTotals {
		names = append(names, name)
	}
	sort.Strings(names)

	top, topAmount := "", decimal.Zero
	for _, name := range names {
		if in.CategoryTotals[name].GreaterThan(topAmount) {
			top, topAmount = name, in.CategoryTotals[name]
		}
	}
	share := topAmount.Div(total)
	if !share.GreaterThan(CategoryShare) {
		return models.Notification{}, false
	}

	tips := TipsFor(top)
	tip := tips[0]
	if rnd != nil {
		tip = tips[rnd.Intn(len(tips))]
	}
	return models.Notification{
		Type:     models.SpendingTrend,
		Title:    fmt.Sprintf("%s is %d%% of your spending", top, share.Mul(decimal.NewFromInt(100)).Round(0).IntPart()),
		Message:  tip,
		Icon:     "💡",
		Priority: models.PriorityMedium,
	}, true
}

func frequencyRule(in Input) (models.Notification, bool) {
	since := models.DateOf(in.Now).AddDays(-(FrequentWindow - 1))
	count := 0
	for _, e := range in.Expenses {
		if e.Date.OnOrAfter(since) {
			count++
		}
	}
	if count <= FrequentCount {
		return models.Notification{}, false
	}
	return models.Notification{
		Type:     models.SpendingTrend,
		Title:    "Lots of small purchases",
		Message:  fmt.Sprintf("%d transactions in the last %d days. Small purchases add up quickly.", count, FrequentWindow),
		Icon:     "🔄",
		Priority: models.PriorityLow,
	}, true
}

func weeklySavingsRule(in Input) (models.Notification, bool) {
	thisWeek, lastWeek := WeekTotals(in.Expenses, models.DateOf(in.Now))
	if !lastWeek.IsPositive() || !thisWeek.LessThan(lastWeek) {
		return models.Notification{}, false
	}
	saved := lastWeek.Sub(thisWeek)
	return models.Notification{
		Type:     models.Achievement,
		Title:    "Spending less than last week",
		Message:  fmt.Sprintf("You've spent %s less than last week so far. Nice work!", saved.StringFixed(2)),
		Icon:     "🏆",
		Priority: models.PriorityMedium,
	}, true
}

func previousPeriodRule(in Input) (models.Notification, bool) {
	if !in.PreviousPeriodTotal.IsPositive() || !in.Spent.GreaterThan(in.PreviousPeriodTotal) {
		return models.Notification{}, false
	}
	return models.Notification{
		Type:     models.SpendingTrend,
		Title:    "Ahead of last period",
		Message:  fmt.Sprintf("You've already spent %s, more than the %s of the whole previous period.", in.Spent.StringFixed(2), in.PreviousPeriodTotal.StringFixed(2)),
		Icon:     "📈",
		Priority: models.PriorityMedium,
	}, true
}

func balanceReminderRule(in Input) (models.Notification, bool) {
	if in.BalanceUpdatedAt.IsZero() {
		return models.Notification{}, false
	}
	last := in.BalanceUpdatedAt
	if in.LastBalanceReminder.After(last) {
		last = in.LastBalanceReminder
	}
	if in.Now.Sub(last) < time.Duration(BalanceStaleDays)*24*time.Hour {
		return models.Notification{}, false
	}
	days := int(in.Now.Sub(in.BalanceUpdatedAt).Hours() / 24)
	return models.Notification{
		Type:     models.SavingsTip,
		Title:    "Update your balance",
		Message:  fmt.Sprintf("Your balance was last updated %d days ago. Check it against your bank to stay accurate.", days),
		Icon:     "💰",
		Priority: models.PriorityMedium,
	}, true
}

func monthEndRule(in Input) (models.Notification, bool) {
	today := models.DateOf(in.Now)
	if today.DaysInMonth()-today.Day() >= MonthEndDays {
		return models.Notification{}, false
	}
	month := in.Now.Format(MonthMarkerLayout)
	if in.LastMonthEndReview == month {
		return models.Notification{}, false
	}
	return models.Notification{
		Type:     models.SavingsTip,
		Title:    "Month-end review",
		Message:  fmt.Sprintf("%s is almost over. Review your spending and plan next month's budget.", in.Now.Format("January")),
		Icon:     "📅",
		Priority: models.PriorityMedium,
	}, true
}

// WeekTotals sums expenses of the Monday-based week containing today (up to
// today) and of the full week before it.
func WeekTotals(expenses []models.Expense, today models.Date) (thisWeek, lastWeek decimal.Decimal) {
	monday := today.AddDays(-((int(today.Weekday()) + 6) % 7))
	prevMonday := monday.AddDays(-7)
	thisWeek, lastWeek = decimal.Zero, decimal.Zero
	for _, e := range expenses {
		switch {
		case e.Date.OnOrAfter(monday) && !e.Date.After(today.Time):
			thisWeek = thisWeek.Add(e.Amount)
		case e.Date.OnOrAfter(prevMonday) && e.Date.Before(monday.Time):
			lastWeek = lastWeek.Add(e.Amount)
		}
	}
	return thisWeek, lastWeek
}

var categoryTips = []struct {
	keywords []string
	tips     []string
}{
	{[]string{"grocer", "food"}, []string{
		"Plan meals for the week and shop with a list.",
		"Store brands are often as good as name brands for half the price.",
		"Buy staples in bulk and cook in batches.",
	}},
	{[]string{"dining", "restaurant", "takeout"}, []string{
		"Try cooking at home two more nights a week.",
		"Pack lunch for work a few days a week.",
		"Save eating out for special occasions this period.",
	}},
	{[]string{"transport", "fuel", "gas", "taxi"}, []string{
		"Combine errands into one trip.",
		"Check whether a monthly transit pass beats paying per ride.",
		"Walk or cycle for short trips.",
	}},
	{[]string{"entertain", "fun", "hobby"}, []string{
		"Look for free events in your city.",
		"Review your streaming subscriptions and cancel the ones you don't use.",
		"Set a fixed entertainment allowance for the period.",
	}},
	{[]string{"shop", "cloth"}, []string{
		"Wait 48 hours before buying anything non-essential.",
		"Unsubscribe from store newsletters to avoid impulse buys.",
		"Make a wishlist and buy only from it.",
	}},
	{[]string{"household", "home", "bill", "utilit"}, []string{
		"Compare providers for your utilities and insurance.",
		"Turn off standby devices to cut the electricity bill.",
		"Buy household supplies in bulk when they are on sale.",
	}},
	{[]string{"lcbo", "alcohol", "bar", "drink"}, []string{
		"Try a few alcohol-free evenings each week.",
		"Host at home instead of going out for drinks.",
	}},
}

var genericTips = []string{
	"Set a spending limit for this category and track it weekly.",
	"Review the last few purchases in this category and look for ones you could skip.",
}

// TipsFor returns the tip list matching a category name, falling back to
// generic advice.
func TipsFor(category string) []string {
	name := strings.ToLower(category)
	for _, entry := range categoryTips {
		for _, kw := range entry.keywords {
			if strings.Contains(name, kw) {
				return entry.tips
			}
		}
	}
	return genericTips
}
