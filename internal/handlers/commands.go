package handlers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"budget-tracker-bot/internal/config"
	"budget-tracker-bot/internal/insights"
	"budget-tracker-bot/internal/ledger"
	"budget-tracker-bot/internal/logger"
	"budget-tracker-bot/internal/models"
	"budget-tracker-bot/internal/reports"
	"budget-tracker-bot/internal/utils"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Sender is the part of *tgbotapi.BotAPI the handlers use.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

const (
	historyLimit   = 20
	compareTop     = 3
	trendsPeriods  = 6
	comparePeriods = 6
)

// UserID maps a Telegram chat to a ledger user.
func UserID(chatID int64) string {
	return fmt.Sprintf("tg-%d", chatID)
}

// CommandHandler handles bot commands
type CommandHandler struct {
	ledger   *ledger.Service
	insights *insights.Service
	config   *config.Config
	log      zerolog.Logger
}

// NewCommandHandler creates a new command handler
func NewCommandHandler(l *ledger.Service, ins *insights.Service, cfg *config.Config, log zerolog.Logger) *CommandHandler {
	return &CommandHandler{
		ledger:   l,
		insights: ins,
		config:   cfg,
		log:      logger.WithComponent(log, logger.ComponentBot),
	}
}

func (h *CommandHandler) reply(bot Sender, chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	if _, err := bot.Send(msg); err != nil {
		h.log.Error().Err(err).Int64("chat_id", chatID).Msg("Failed to send message")
	}
}

func (h *CommandHandler) fail(bot Sender, chatID int64, what string, err error) {
	h.log.Error().Err(err).Int64("chat_id", chatID).Msg(what)
	h.reply(bot, chatID, "⚠️ "+what+". Please try again later.")
}

// SendHelp sends help information
func (h *CommandHandler) SendHelp(bot Sender, chatID int64) {
	helpText := `*💰 Budget Tracker Bot*

*🏠 Tracking:*
• Send "25.50 lunch" to add an expense, then pick a category
• /history - Expenses of the current period
• /delete <id> - Delete an expense
• /income <amount> <source> - Record income
• /balance [amount|+delta|-delta] - Show or update balance

*🎯 Budget:*
• /progress - Spending against your budget
• /budget - Show settings
• /budget <amount> [weekly|biweekly|monthly|six_months] [start YYYY-MM-DD] [auto|manual]
• /rollover - Archive the period and start fresh

*📈 Reports:*
• /archives - Archived periods
• /compare - Compare the last two periods
• /trends - Spending trends
• /export [key|compare] - CSV export

*🔔 Insights:*
• /insights - Check your spending now
• /notifications - Notification log
• /readall - Mark all as read
• /clear - Clear notifications`

	h.reply(bot, chatID, helpText)
}

// SendProgress sends the current period progress
func (h *CommandHandler) SendProgress(ctx context.Context, bot Sender, chatID int64) {
	book := h.ledger.Book(UserID(chatID))
	snap, err := book.Snapshot(ctx)
	if err != nil {
		h.fail(bot, chatID, "Failed to calculate progress", err)
		return
	}
	h.reply(bot, chatID, formatProgress(snap.Progress, snap.Settings, snap.CategoryTotals))
}

// HandleBudget shows the settings, or replaces them when arguments are given.
func (h *CommandHandler) HandleBudget(ctx context.Context, bot Sender, chatID int64, args string) {
	book := h.ledger.Book(UserID(chatID))
	current, err := book.Budget(ctx)
	if err != nil {
		h.fail(bot, chatID, "Failed to load budget", err)
		return
	}
	if strings.TrimSpace(args) == "" {
		h.reply(bot, chatID, formatBudget(current))
		return
	}

	settings, err := parseBudgetArgs(strings.Fields(args), current, models.DateOf(h.ledger.Now()))
	if err != nil {
		h.reply(bot, chatID, "❌ "+err.Error()+"\nUsage: /budget <amount> [cycle] [start YYYY-MM-DD] [auto|manual]")
		return
	}
	if err := book.SetBudget(ctx, settings); err != nil {
		h.reply(bot, chatID, "❌ "+err.Error())
		return
	}
	h.reply(bot, chatID, "✅ Budget saved.\n\n"+formatBudget(settings))
}

// parseBudgetArgs reads "<amount> [cycle] [start] [auto|manual]" in any order
// after the amount. Unset fields keep their current value; a cycle change
// without an explicit start anchors the new cycle today.
func parseBudgetArgs(args []string, current models.BudgetSettings, today models.Date) (models.BudgetSettings, error) {
	if len(args) == 0 {
		return models.BudgetSettings{}, errors.New("amount is required")
	}
	amount, err := decimal.NewFromString(strings.ReplaceAll(strings.Trim(args[0], "$€£"), ",", "."))
	if err != nil {
		return models.BudgetSettings{}, utils.ErrInvalidAmountFormat
	}

	settings := current
	settings.Amount = amount.Round(2)
	startSet := false
	for _, arg := range args[1:] {
		switch strings.ToLower(arg) {
		case "auto", "on":
			settings.AutoResetEnabled = true
			continue
		case "manual", "off":
			settings.AutoResetEnabled = false
			continue
		}
		if d, err := models.ParseDate(arg); err == nil {
			settings.StartDate = d
			startSet = true
			continue
		}
		cycle, err := models.ParseCyclePeriod(arg)
		if err != nil {
			return models.BudgetSettings{}, fmt.Errorf("unknown option %q", arg)
		}
		settings.CyclePeriod = cycle
	}
	if !startSet && (settings.CyclePeriod != current.CyclePeriod || settings.StartDate.IsZero()) {
		settings.StartDate = today
	}
	return settings, settings.Validate()
}

// AddIncome records "<amount> <source> [YYYY-MM-DD]".
func (h *CommandHandler) AddIncome(ctx context.Context, bot Sender, chatID int64, args string) {
	fields := strings.Fields(args)
	if len(fields) < 2 {
		h.reply(bot, chatID, "Usage: /income <amount> <source> [YYYY-MM-DD]")
		return
	}
	amount, err := utils.ValidateAmount(fields[0])
	if err != nil {
		h.reply(bot, chatID, "❌ "+err.Error())
		return
	}
	in := models.Income{Amount: amount}
	rest := fields[1:]
	if d, err := models.ParseDate(rest[len(rest)-1]); err == nil && len(rest) > 1 {
		in.Date = d
		rest = rest[:len(rest)-1]
	}
	in.Source = strings.Join(rest, " ")

	saved, err := h.ledger.Book(UserID(chatID)).AddIncome(ctx, in)
	if err != nil {
		h.reply(bot, chatID, "❌ "+err.Error())
		return
	}
	h.reply(bot, chatID, fmt.Sprintf("💼 Added income %s from %s", money(saved.Amount), esc(saved.Source)))
}

// HandleBalance shows the balance, sets it ("1500") or moves it ("+200", "-50").
func (h *CommandHandler) HandleBalance(ctx context.Context, bot Sender, chatID int64, args string) {
	book := h.ledger.Book(UserID(chatID))
	arg := strings.TrimSpace(args)
	if arg == "" {
		balance, err := book.Balance(ctx)
		if err != nil {
			h.fail(bot, chatID, "Failed to load balance", err)
			return
		}
		h.reply(bot, chatID, fmt.Sprintf("🏦 Balance: *%s*", money(balance)))
		return
	}

	amount, err := decimal.NewFromString(strings.ReplaceAll(arg, ",", "."))
	if err != nil {
		h.reply(bot, chatID, "❌ "+utils.ErrInvalidAmountFormat.Error())
		return
	}
	var balance decimal.Decimal
	if strings.HasPrefix(arg, "+") || strings.HasPrefix(arg, "-") {
		balance, err = book.UpdateBalance(ctx, amount)
	} else {
		balance, err = book.SetBalance(ctx, amount)
	}
	if err != nil {
		h.fail(bot, chatID, "Failed to update balance", err)
		return
	}
	h.reply(bot, chatID, fmt.Sprintf("🏦 Balance updated: *%s*", money(balance)))
}

// Rollover archives the current period on demand.
func (h *CommandHandler) Rollover(ctx context.Context, bot Sender, chatID int64) {
	res, err := h.ledger.Book(UserID(chatID)).Rollover(ctx)
	if err != nil {
		h.fail(bot, chatID, "Failed to roll over the period", err)
		return
	}
	h.reply(bot, chatID, formatRolloverResult(res))
	if res.Archived {
		h.safeExportCSV(bot, chatID, &res.Archive)
	}
}

// SendHistory sends the live expenses, newest first
func (h *CommandHandler) SendHistory(ctx context.Context, bot Sender, chatID int64, args string) {
	expenses, err := h.ledger.Book(UserID(chatID)).Expenses(ctx)
	if err != nil {
		h.fail(bot, chatID, "Error fetching expense history", err)
		return
	}
	h.reply(bot, chatID, formatHistory(expenses, parseLimit(args, historyLimit)))
}

// DeleteExpense deletes the expense whose id starts with args.
func (h *CommandHandler) DeleteExpense(ctx context.Context, bot Sender, chatID int64, args string) {
	prefix := strings.TrimSpace(args)
	if prefix == "" {
		h.reply(bot, chatID, "Usage: /delete <id> (see /history)")
		return
	}
	book := h.ledger.Book(UserID(chatID))
	expenses, err := book.Expenses(ctx)
	if err != nil {
		h.fail(bot, chatID, "Error fetching expenses", err)
		return
	}

	var match *models.Expense
	for i := range expenses {
		if strings.HasPrefix(expenses[i].ID, prefix) {
			if match != nil {
				h.reply(bot, chatID, "❌ More than one expense matches, use a longer id.")
				return
			}
			match = &expenses[i]
		}
	}
	if match == nil {
		h.reply(bot, chatID, "❌ No expense with that id.")
		return
	}
	if err := book.DeleteExpense(ctx, match.ID); err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			h.reply(bot, chatID, "❌ No expense with that id.")
			return
		}
		h.fail(bot, chatID, "Failed to delete expense", err)
		return
	}
	h.reply(bot, chatID, fmt.Sprintf("🗑️ Deleted %s %s", money(match.Amount), esc(match.Name)))
}

// SendArchives lists archived periods
func (h *CommandHandler) SendArchives(ctx context.Context, bot Sender, chatID int64) {
	archives, err := h.ledger.Book(UserID(chatID)).Archives(ctx)
	if err != nil {
		h.fail(bot, chatID, "Error fetching archives", err)
		return
	}
	h.reply(bot, chatID, formatArchives(archives))
}

// SendComparison compares the two most recent periods
func (h *CommandHandler) SendComparison(ctx context.Context, bot Sender, chatID int64) {
	archives, err := h.ledger.Book(UserID(chatID)).Archives(ctx)
	if err != nil {
		h.fail(bot, chatID, "Error fetching archives", err)
		return
	}
	c, err := reports.Compare(archives, compareTop)
	switch {
	case errors.Is(err, reports.ErrNoArchives):
		h.reply(bot, chatID, "❌ No archived periods found for comparison.")
		return
	case errors.Is(err, reports.ErrNotEnoughArchives):
		h.reply(bot, chatID, "📊 Only one period archived. Need at least 2 periods for comparison.")
		return
	case err != nil:
		h.fail(bot, chatID, "Failed to compare periods", err)
		return
	}
	h.reply(bot, chatID, formatComparison(c))
}

// SendTrends analyzes spending trends
func (h *CommandHandler) SendTrends(ctx context.Context, bot Sender, chatID int64) {
	archives, err := h.ledger.Book(UserID(chatID)).Archives(ctx)
	if err != nil {
		h.fail(bot, chatID, "Error fetching archives", err)
		return
	}
	if len(archives) > trendsPeriods {
		archives = archives[:trendsPeriods]
	}
	r, err := reports.Trends(archives)
	if err != nil {
		h.reply(bot, chatID, "❌ No archived data found for trend analysis.")
		return
	}
	h.reply(bot, chatID, formatTrends(r))
}

// Export sends the CSV of the latest archive, a given archive key, or the
// comparison of recent archives.
func (h *CommandHandler) Export(ctx context.Context, bot Sender, chatID int64, args string) {
	book := h.ledger.Book(UserID(chatID))
	arg := strings.TrimSpace(args)

	switch arg {
	case "":
		archives, err := book.Archives(ctx)
		if err != nil || len(archives) == 0 {
			h.reply(bot, chatID, "❌ No archived data found.\nUsage: /export [key] or /export compare")
			return
		}
		h.safeExportCSV(bot, chatID, &archives[0])
	case "compare":
		archives, err := book.Archives(ctx)
		if err != nil || len(archives) < 2 {
			h.reply(bot, chatID, "❌ Need at least 2 archived periods for comparison.")
			return
		}
		if len(archives) > comparePeriods {
			archives = archives[:comparePeriods]
		}
		var buffer bytes.Buffer
		if err := utils.GenerateComparisonCSV(archives, h.ledger.Now(), &buffer); err != nil {
			h.fail(bot, chatID, "Failed to generate comparison CSV", err)
			return
		}
		doc := tgbotapi.NewDocument(chatID, tgbotapi.FileBytes{
			Name:  fmt.Sprintf("comparison_%s.csv", h.ledger.Now().Format("2006-01-02")),
			Bytes: buffer.Bytes(),
		})
		doc.Caption = fmt.Sprintf("📊 Period comparison report\n📈 %d periods analyzed", len(archives))
		if _, err := bot.Send(doc); err != nil {
			h.log.Error().Err(err).Msg("Failed to send comparison CSV")
		}
	default:
		archive, err := book.Archive(ctx, arg)
		if err != nil {
			h.reply(bot, chatID, fmt.Sprintf("❌ No archive found for %s", esc(arg)))
			return
		}
		h.safeExportCSV(bot, chatID, &archive)
	}
}

// safeExportCSV sends an archive as a CSV document, reporting failures in chat.
func (h *CommandHandler) safeExportCSV(bot Sender, chatID int64, archive *models.ArchivedPeriod) {
	var buffer bytes.Buffer
	if err := utils.GenerateArchiveCSV(archive, h.ledger.Now(), &buffer); err != nil {
		h.log.Error().Err(err).Str("period", archive.Key).Msg("Failed to generate CSV")
		h.reply(bot, chatID, "⚠️ CSV generation failed. Data is still archived.")
		return
	}

	doc := tgbotapi.NewDocument(chatID, tgbotapi.FileBytes{
		Name:  fmt.Sprintf("expenses_%s.csv", archive.Key),
		Bytes: buffer.Bytes(),
	})
	doc.Caption = fmt.Sprintf("📊 Expense data for %s\n💾 %d expenses, %s total",
		archive.Label, archive.ExpenseCount, money(archive.TotalExpenses))

	if _, err := bot.Send(doc); err != nil {
		h.log.Error().Err(err).Str("period", archive.Key).Msg("Failed to send CSV file")
		h.reply(bot, chatID, "⚠️ Failed to send CSV file. Data is archived, use /export later.")
	}
}

// SendInsights evaluates the rules now and sends what fired.
func (h *CommandHandler) SendInsights(ctx context.Context, bot Sender, chatID int64) {
	added, err := h.insights.EvaluateInsights(ctx, UserID(chatID))
	if err != nil {
		h.fail(bot, chatID, "Failed to evaluate insights", err)
		return
	}
	h.reply(bot, chatID, formatNotifications(added, "✅ Nothing new. See /notifications for earlier tips."))
}

// SendNotifications sends the notification log.
func (h *CommandHandler) SendNotifications(ctx context.Context, bot Sender, chatID int64) {
	userID := UserID(chatID)
	ns, err := h.insights.Notifications(ctx, userID)
	if err != nil {
		h.fail(bot, chatID, "Failed to load notifications", err)
		return
	}
	unread, err := h.insights.UnreadCount(ctx, userID)
	if err != nil {
		h.fail(bot, chatID, "Failed to load notifications", err)
		return
	}
	if len(ns) > historyLimit {
		ns = ns[:historyLimit]
	}
	header := fmt.Sprintf("🔔 *Notifications* (%d unread)\n\n", unread)
	h.reply(bot, chatID, header+formatNotifications(ns, "No notifications."))
}

// MarkAllRead marks the whole log as read.
func (h *CommandHandler) MarkAllRead(ctx context.Context, bot Sender, chatID int64) {
	if err := h.insights.MarkAllRead(ctx, UserID(chatID)); err != nil {
		h.fail(bot, chatID, "Failed to update notifications", err)
		return
	}
	h.reply(bot, chatID, "✅ All notifications marked as read.")
}

// ClearNotifications empties the log.
func (h *CommandHandler) ClearNotifications(ctx context.Context, bot Sender, chatID int64) {
	if err := h.insights.ClearAll(ctx, UserID(chatID)); err != nil {
		h.fail(bot, chatID, "Failed to clear notifications", err)
		return
	}
	h.reply(bot, chatID, "🧹 Notifications cleared.")
}

// RunAutoRollover checks every user for a finished period. The configured
// chat gets the period report and CSV.
func (h *CommandHandler) RunAutoRollover(ctx context.Context, bot Sender) {
	users, err := h.ledger.Users(ctx)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list users for rollover")
		return
	}
	chatUser := UserID(h.config.ChatID)
	for _, userID := range users {
		res, err := h.ledger.Book(userID).AutoRollover(ctx)
		if err != nil {
			h.log.Error().Err(err).Str("user_id", userID).Msg("Automatic rollover failed")
			continue
		}
		if bot == nil || userID != chatUser {
			continue
		}
		for i := range res.Closed {
			h.reply(bot, h.config.ChatID, formatArchiveReport(res.Closed[i]))
			h.safeExportCSV(bot, h.config.ChatID, &res.Closed[i])
		}
	}
}

// PushInsights evaluates every user and posts new notifications to the
// configured chat.
func (h *CommandHandler) PushInsights(ctx context.Context, bot Sender) {
	users, err := h.ledger.Users(ctx)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list users for insights")
		return
	}
	chatUser := UserID(h.config.ChatID)
	for _, userID := range users {
		added, err := h.insights.EvaluateInsights(ctx, userID)
		if err != nil {
			h.log.Error().Err(err).Str("user_id", userID).Msg("Insight evaluation failed")
			continue
		}
		if len(added) > 0 && bot != nil && userID == chatUser {
			h.reply(bot, h.config.ChatID, formatNotifications(added, ""))
		}
	}
}

func parseLimit(args string, def int) int {
	if n, err := strconv.Atoi(strings.TrimSpace(args)); err == nil && n > 0 {
		return n
	}
	return def
}
