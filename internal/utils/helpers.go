package utils

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/shopspring/decimal"
)

var (
	ErrInvalidAmountFormat = errors.New("invalid amount format")
	ErrNonPositiveAmount   = errors.New("amount must be positive")
	ErrInvalidCallback     = errors.New("invalid callback data")
)

// DefaultExpenseName is used when a message carries only an amount.
const DefaultExpenseName = "Expense"

// Callback actions carried in inline keyboard data.
const (
	ActionCategory = "cat"
	ActionCancel   = "del"
)

// ValidateAmount validates and parses amount from string. A leading or
// trailing currency sign and a decimal comma are accepted.
func ValidateAmount(text string) (decimal.Decimal, error) {
	text = strings.TrimSpace(text)
	text = strings.Trim(text, "$€£")
	text = strings.ReplaceAll(text, ",", ".")

	amount, err := decimal.NewFromString(text)
	if err != nil {
		return decimal.Zero, ErrInvalidAmountFormat
	}
	if !amount.IsPositive() {
		return decimal.Zero, ErrNonPositiveAmount
	}
	return amount.Round(2), nil
}

// ParseExpenseText reads "<amount> <name>" or "<name> <amount>".
func ParseExpenseText(text string) (decimal.Decimal, string, error) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return decimal.Zero, "", ErrInvalidAmountFormat
	}

	if amount, err := ValidateAmount(fields[0]); err == nil {
		return amount, nameOrDefault(fields[1:]), nil
	} else if len(fields) == 1 {
		return decimal.Zero, "", err
	}

	last := len(fields) - 1
	amount, err := ValidateAmount(fields[last])
	if err != nil {
		return decimal.Zero, "", err
	}
	return amount, nameOrDefault(fields[:last]), nil
}

func nameOrDefault(words []string) string {
	if len(words) == 0 {
		return DefaultExpenseName
	}
	return strings.Join(words, " ")
}

// BuildCategoryKeyboard builds inline keyboard for category selection.
// Buttons reference categories by index to stay inside Telegram's 64 byte
// callback limit.
func BuildCategoryKeyboard(categories []string, pendingID string) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton

	// 2 buttons per row
	for i := 0; i < len(categories); i += 2 {
		row := []tgbotapi.InlineKeyboardButton{
			tgbotapi.NewInlineKeyboardButtonData(categories[i], CallbackData(ActionCategory, i, pendingID)),
		}
		if i+1 < len(categories) {
			row = append(row, tgbotapi.NewInlineKeyboardButtonData(categories[i+1], CallbackData(ActionCategory, i+1, pendingID)))
		}
		rows = append(rows, row)
	}

	cancelBtn := tgbotapi.NewInlineKeyboardButtonData("🗑️ Cancel", CallbackData(ActionCancel, 0, pendingID))
	rows = append(rows, []tgbotapi.InlineKeyboardButton{cancelBtn})

	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// CallbackData encodes an inline button payload.
func CallbackData(action string, index int, id string) string {
	return fmt.Sprintf("%s:%d:%s", action, index, id)
}

// ParseCallbackData decodes a payload built by CallbackData.
func ParseCallbackData(data string) (action string, index int, id string, err error) {
	parts := strings.SplitN(data, ":", 3)
	if len(parts) != 3 || parts[2] == "" {
		return "", 0, "", ErrInvalidCallback
	}
	index, err = strconv.Atoi(parts[1])
	if err != nil || index < 0 {
		return "", 0, "", ErrInvalidCallback
	}
	switch parts[0] {
	case ActionCategory, ActionCancel:
		return parts[0], index, parts[2], nil
	}
	return "", 0, "", ErrInvalidCallback
}

// FormatMoney renders an amount the way every bot message does.
func FormatMoney(d decimal.Decimal) string {
	return d.StringFixed(2) + "$"
}

// ProgressBar draws a ten cell bar, one cell per 10%.
func ProgressBar(percent int) string {
	bars := percent / 10
	if bars == 0 && percent > 0 {
		bars = 1
	}
	if bars > 10 {
		bars = 10
	}
	return strings.Repeat("█", bars) + strings.Repeat("░", 10-bars)
}
