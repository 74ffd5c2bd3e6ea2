package handlers

import (
	"fmt"
	"strings"

	"budget-tracker-bot/internal/ledger"
	"budget-tracker-bot/internal/models"
	"budget-tracker-bot/internal/period"
	"budget-tracker-bot/internal/reports"
	"budget-tracker-bot/internal/utils"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/shopspring/decimal"
)

func esc(s string) string {
	return tgbotapi.EscapeText(tgbotapi.ModeMarkdown, s)
}

func money(d decimal.Decimal) string {
	return utils.FormatMoney(d)
}

func formatProgress(p period.Progress, settings models.BudgetSettings, totals map[string]decimal.Decimal) string {
	var b strings.Builder
	b.WriteString("📊 *BUDGET PROGRESS*\n")
	b.WriteString("═══════════════════\n\n")
	fmt.Fprintf(&b, "🗓️ Period: %s (%s)\n", esc(p.Window.Label()), esc(settings.CyclePeriod.String()))
	fmt.Fprintf(&b, "   %s → %s\n\n", p.Window.Start, p.Window.LastDay())

	if !p.Budget.IsPositive() {
		fmt.Fprintf(&b, "💵 Spent: *%s*\n", money(p.Spent))
		b.WriteString("No budget set. Use /budget <amount> [cycle] to set one.\n")
	} else {
		fmt.Fprintf(&b, "💵 Spent: *%s* of %s\n", money(p.Spent), money(p.Budget))
		fmt.Fprintf(&b, "💰 Remaining: *%s*\n", money(p.Remaining))
		fmt.Fprintf(&b, "%s %d%%\n", utils.ProgressBar(p.Percentage), p.Percentage)
	}

	if len(totals) > 0 {
		b.WriteString("\n📈 *Category Breakdown:*\n")
		for _, cat := range reports.TopCategories(totals, 0) {
			pct := 0
			if p.Spent.IsPositive() {
				pct = int(cat.Amount.Div(p.Spent).Mul(decimal.NewFromInt(100)).Round(0).IntPart())
			}
			fmt.Fprintf(&b, "   %s *%s* (%d%%)\n   %s\n", esc(cat.Name), money(cat.Amount), pct, utils.ProgressBar(pct))
		}
	}
	return b.String()
}

func formatBudget(s models.BudgetSettings) string {
	auto := "off"
	if s.AutoResetEnabled {
		auto = "on"
	}
	return fmt.Sprintf("⚙️ *Budget settings*\n   Amount: %s\n   Cycle: %s\n   Start date: %s\n   Auto rollover: %s",
		money(s.Amount), esc(s.CyclePeriod.String()), s.StartDate, auto)
}

func formatHistory(expenses []models.Expense, limit int) string {
	if len(expenses) == 0 {
		return "No expenses in the current period."
	}
	if limit > 0 && len(expenses) > limit {
		expenses = expenses[:limit]
	}
	var b strings.Builder
	b.WriteString("*📜 Recent Expenses:*\n")
	for i, e := range expenses {
		fmt.Fprintf(&b, "%d. *%s* %s (%s) - %s `%s`\n",
			i+1, money(e.Amount), esc(e.Name), esc(e.Category), e.Date.Format("Jan 2"), shortID(e.ID))
	}
	b.WriteString("\nDelete one with /delete <id>")
	return b.String()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func formatArchiveReport(a models.ArchivedPeriod) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📦 *PERIOD CLOSED: %s*\n", esc(a.Label))
	b.WriteString("═══════════════════\n\n")
	fmt.Fprintf(&b, "💵 Total spent: *%s* in %d expenses\n", money(a.TotalExpenses), a.ExpenseCount)
	if a.TotalIncome.IsPositive() {
		fmt.Fprintf(&b, "💼 Income: %s\n", money(a.TotalIncome))
	}
	if a.ExpenseCount > 0 {
		fmt.Fprintf(&b, "   • Average expense: %s\n", money(a.AvgExpense))
		fmt.Fprintf(&b, "   • Biggest splurge: %s\n", money(a.HighestExpense))
		fmt.Fprintf(&b, "   • Smallest expense: %s\n", money(a.LowestExpense))
		fmt.Fprintf(&b, "   • Days with spending: %d\n", a.DaysWithSpending)
	}
	if len(a.CategoryBreakdown) > 0 {
		b.WriteString("\n🏷️ *Categories:*\n")
		for _, cat := range reports.TopCategories(a.CategoryBreakdown, 0) {
			fmt.Fprintf(&b, "   %s: %s\n", esc(cat.Name), money(cat.Amount))
		}
	}
	b.WriteString("\n🔄 *Starting fresh!* Budget and balance carry over.")
	return b.String()
}

func formatArchives(archives []models.ArchivedPeriod) string {
	if len(archives) == 0 {
		return "❌ No archived periods yet. Use /rollover to close the current one."
	}
	var b strings.Builder
	b.WriteString("🗄️ *Archived periods:*\n")
	for _, a := range archives {
		fmt.Fprintf(&b, "   • %s: *%s* (%d expenses) `%s`\n", esc(a.Label), money(a.TotalExpenses), a.ExpenseCount, a.Key)
	}
	b.WriteString("\nExport one with /export <key>")
	return b.String()
}

func formatComparison(c reports.Comparison) string {
	var b strings.Builder
	b.WriteString("📊 *PERIOD COMPARISON*\n")
	b.WriteString("═══════════════════════\n\n")
	fmt.Fprintf(&b, "🆕 %s: *%s* (%d expenses)\n", esc(c.Current.Label), money(c.Current.TotalExpenses), c.Current.ExpenseCount)
	fmt.Fprintf(&b, "📅 %s: *%s* (%d expenses)\n\n", esc(c.Previous.Label), money(c.Previous.TotalExpenses), c.Previous.ExpenseCount)

	emoji := "📈"
	if c.SpendingChange.IsNegative() {
		emoji = "📉"
	}
	fmt.Fprintf(&b, "%s Spending: %s (%s%%)\n", emoji, money(c.SpendingChange), signed(c.SpendingPercent))
	fmt.Fprintf(&b, "🧾 Expenses: %+d\n\n", c.ExpenseCountDiff)

	if len(c.TopCategories) > 0 {
		b.WriteString("🏆 *Top Categories:*\n")
		for _, cat := range c.TopCategories {
			change := " (new category)"
			if cat.ChangePercent != nil {
				switch {
				case cat.ChangePercent.IsZero():
					change = " (no change)"
				default:
					change = fmt.Sprintf(" (%s%%)", signed(*cat.ChangePercent))
				}
			}
			fmt.Fprintf(&b, "   %s: %s%s\n", esc(cat.Name), money(cat.Current), change)
		}
		b.WriteString("\n")
	}

	b.WriteString("💡 *Insights:*\n")
	switch {
	case c.AvgExpenseDiff.IsPositive():
		b.WriteString("   • Average expense amount increased\n")
	case c.AvgExpenseDiff.IsNegative():
		b.WriteString("   • Average expense amount decreased\n")
	}
	switch {
	case c.SpendingDaysDiff > 0:
		b.WriteString("   • More active spending days\n")
	case c.SpendingDaysDiff < 0:
		b.WriteString("   • Fewer active spending days\n")
	}
	b.WriteString("\n📄 Use /export compare to get the CSV")
	return b.String()
}

func formatTrends(r reports.TrendReport) string {
	var b strings.Builder
	b.WriteString("📈 *SPENDING TRENDS*\n")
	b.WriteString("═══════════════════\n\n")
	for _, p := range r.Series {
		emoji := "📊"
		switch p.Direction {
		case 1:
			emoji = "📈"
		case -1:
			emoji = "📉"
		}
		fmt.Fprintf(&b, "%s %s: %s\n", emoji, esc(p.Label), money(p.Total))
	}
	fmt.Fprintf(&b, "\n📊 *Average per period:* %s\n\n", money(r.AveragePerPeriod))

	if len(r.CategoryAverages) > 0 {
		b.WriteString("🏷️ *Category averages:*\n")
		for _, cat := range r.CategoryAverages {
			fmt.Fprintf(&b, "   %s: %s/period\n", esc(cat.Name), money(cat.Amount))
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "📱 Avg expenses/period: %s over %d periods\n", r.AvgExpenseCount.String(), len(r.Series))

	if r.Highest != nil && r.Lowest != nil {
		b.WriteString("\n🔍 *Insights:*\n")
		fmt.Fprintf(&b, "   • Highest spending: %s (%s)\n", esc(r.Highest.Label), money(r.Highest.TotalExpenses))
		fmt.Fprintf(&b, "   • Lowest spending: %s (%s)\n", esc(r.Lowest.Label), money(r.Lowest.TotalExpenses))
		if r.Volatility != "" {
			fmt.Fprintf(&b, "   • Spending volatility: %s%%\n", r.VolatilityPercent.StringFixed(1))
			switch r.Volatility {
			case reports.Consistent:
				b.WriteString("   • 🟢 Consistent spending pattern\n")
			case reports.Moderate:
				b.WriteString("   • 🟡 Moderate spending variation\n")
			default:
				b.WriteString("   • 🔴 High spending volatility\n")
			}
		}
	}
	return b.String()
}

func formatNotifications(ns []models.Notification, emptyText string) string {
	if len(ns) == 0 {
		return emptyText
	}
	var b strings.Builder
	for _, n := range ns {
		marker := ""
		if !n.Read {
			marker = "🔵 "
		}
		fmt.Fprintf(&b, "%s%s *%s*\n%s\n\n", marker, n.Icon, esc(n.Title), esc(n.Message))
	}
	return strings.TrimSpace(b.String())
}

func formatRolloverResult(res ledger.RolloverResult) string {
	if !res.Archived {
		return "ℹ️ Nothing to archive: there are no expenses in the current period."
	}
	return formatArchiveReport(res.Archive)
}

func signed(d decimal.Decimal) string {
	if d.IsPositive() {
		return "+" + d.StringFixed(1)
	}
	return d.StringFixed(1)
}
