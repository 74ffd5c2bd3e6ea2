package handlers

import (
	"context"
	"fmt"
	"strings"

	"budget-tracker-bot/internal/config"
	"budget-tracker-bot/internal/insights"
	"budget-tracker-bot/internal/ledger"
	"budget-tracker-bot/internal/logger"
	"budget-tracker-bot/internal/models"
	"budget-tracker-bot/internal/utils"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

const pendingCacheSize = 200

// EventHandler handles Telegram events
type EventHandler struct {
	ledger   *ledger.Service
	config   *config.Config
	commands *CommandHandler
	pending  *utils.PendingCache
	log      zerolog.Logger
}

// NewEventHandler creates a new event handler
func NewEventHandler(l *ledger.Service, ins *insights.Service, cfg *config.Config, log zerolog.Logger) *EventHandler {
	return &EventHandler{
		ledger:   l,
		config:   cfg,
		commands: NewCommandHandler(l, ins, cfg, log),
		pending:  utils.NewPendingCache(pendingCacheSize, cfg.PendingTTL),
		log:      logger.WithComponent(log, logger.ComponentBot),
	}
}

// Commands returns the command handler used for scheduled jobs.
func (h *EventHandler) Commands() *CommandHandler {
	return h.commands
}

// Pending returns the cache of expenses waiting for a category.
func (h *EventHandler) Pending() *utils.PendingCache {
	return h.pending
}

// HandleMessage handles incoming messages
func (h *EventHandler) HandleMessage(ctx context.Context, bot Sender, message *tgbotapi.Message) {
	if message.From != nil && message.From.IsBot {
		return
	}

	// Only process messages from the configured chat
	if !h.config.IsAuthorizedChat(message.Chat.ID) {
		return
	}

	if message.IsCommand() {
		h.handleCommand(ctx, bot, message)
		return
	}

	// Edits never change a booked expense.
	if message.EditDate != 0 {
		return
	}

	h.handleNewExpense(bot, message)
}

// handleCommand processes bot commands
func (h *EventHandler) handleCommand(ctx context.Context, bot Sender, message *tgbotapi.Message) {
	chatID := message.Chat.ID
	args := message.CommandArguments()
	h.log.Debug().Str("command", message.Command()).Int64("chat_id", chatID).Msg("Command received")

	switch message.Command() {
	case "help", "start":
		h.commands.SendHelp(bot, chatID)
	case "progress", "totals":
		h.commands.SendProgress(ctx, bot, chatID)
	case "budget":
		h.commands.HandleBudget(ctx, bot, chatID, args)
	case "income":
		h.commands.AddIncome(ctx, bot, chatID, args)
	case "balance":
		h.commands.HandleBalance(ctx, bot, chatID, args)
	case "rollover", "reset":
		h.commands.Rollover(ctx, bot, chatID)
	case "history":
		h.commands.SendHistory(ctx, bot, chatID, args)
	case "delete":
		h.commands.DeleteExpense(ctx, bot, chatID, args)
	case "archives":
		h.commands.SendArchives(ctx, bot, chatID)
	case "compare":
		h.commands.SendComparison(ctx, bot, chatID)
	case "trends":
		h.commands.SendTrends(ctx, bot, chatID)
	case "export":
		h.commands.Export(ctx, bot, chatID, args)
	case "insights":
		h.commands.SendInsights(ctx, bot, chatID)
	case "notifications":
		h.commands.SendNotifications(ctx, bot, chatID)
	case "readall":
		h.commands.MarkAllRead(ctx, bot, chatID)
	case "clear":
		h.commands.ClearNotifications(ctx, bot, chatID)
	default:
		h.commands.reply(bot, chatID, "Unknown command. Send /help for the list.")
	}
}

// handleNewExpense parks "<amount> <name>" until a category is picked.
func (h *EventHandler) handleNewExpense(bot Sender, message *tgbotapi.Message) {
	amount, name, err := utils.ParseExpenseText(message.Text)
	if err != nil {
		// Not an expense, ignore
		return
	}

	id := h.pending.Put(utils.PendingExpense{
		UserID:    UserID(message.Chat.ID),
		ChatID:    message.Chat.ID,
		Name:      name,
		Amount:    amount,
		Date:      models.DateOf(h.ledger.Now()),
		MessageID: message.MessageID,
	})

	msg := tgbotapi.NewMessage(message.Chat.ID,
		fmt.Sprintf("%s %s\nSelect a category:", money(amount), name))
	msg.ReplyMarkup = utils.BuildCategoryKeyboard(h.config.Categories, id)
	if _, err := bot.Send(msg); err != nil {
		h.log.Error().Err(err).Msg("Failed to send category selection")
	}
}

// HandleCallbackQuery handles inline button callbacks
func (h *EventHandler) HandleCallbackQuery(ctx context.Context, bot Sender, callback *tgbotapi.CallbackQuery) {
	if callback.Message == nil || !h.config.IsAuthorizedChat(callback.Message.Chat.ID) {
		return
	}

	answer := ""
	action, index, id, err := utils.ParseCallbackData(callback.Data)
	switch {
	case err != nil:
		h.log.Warn().Err(err).Str("data", callback.Data).Msg("Ignoring callback")
	case action == utils.ActionCategory:
		answer = h.handleCategorySelection(ctx, bot, callback.Message, index, id)
	case action == utils.ActionCancel:
		answer = h.handleCancel(bot, callback.Message, id)
	}

	// Answer the callback to remove loading state
	if _, err := bot.Request(tgbotapi.NewCallback(callback.ID, answer)); err != nil {
		h.log.Debug().Err(err).Msg("Failed to answer callback")
	}
}

// handleCategorySelection books the pending expense under the chosen category.
func (h *EventHandler) handleCategorySelection(ctx context.Context, bot Sender, message *tgbotapi.Message, index int, id string) string {
	if index < 0 || index >= len(h.config.Categories) {
		return "Unknown category"
	}
	p, ok := h.pending.Take(id)
	if !ok {
		h.edit(bot, message, "⌛ This expense expired. Please send it again.")
		return "Expired"
	}

	category := h.config.Categories[index]
	saved, err := h.ledger.Book(p.UserID).AddExpense(ctx, models.Expense{
		Name:     p.Name,
		Amount:   p.Amount,
		Category: category,
		Date:     p.Date,
	})
	if err != nil {
		h.log.Error().Err(err).Str("user_id", p.UserID).Msg("Failed to save expense")
		h.edit(bot, message, "❌ "+err.Error())
		return "Failed"
	}

	progress, err := h.ledger.Book(p.UserID).CurrentPeriodProgress(ctx)
	content := fmt.Sprintf("✅ Added %s %s to %s.", money(saved.Amount), esc(saved.Name), esc(category))
	if err == nil {
		content += fmt.Sprintf("\n%s %d%% of budget used, %s left",
			utils.ProgressBar(progress.Percentage), progress.Percentage, money(progress.Remaining))
	}
	h.edit(bot, message, content)
	return "Saved"
}

func (h *EventHandler) handleCancel(bot Sender, message *tgbotapi.Message, id string) string {
	h.pending.Take(id)
	if _, err := bot.Request(tgbotapi.NewDeleteMessage(message.Chat.ID, message.MessageID)); err != nil {
		h.log.Debug().Err(err).Msg("Failed to delete category selection")
	}
	return "Cancelled"
}

func (h *EventHandler) edit(bot Sender, message *tgbotapi.Message, text string) {
	edit := tgbotapi.NewEditMessageText(message.Chat.ID, message.MessageID, strings.TrimSpace(text))
	edit.ParseMode = tgbotapi.ModeMarkdown
	if _, err := bot.Send(edit); err != nil {
		h.log.Error().Err(err).Msg("Failed to edit message")
	}
}
