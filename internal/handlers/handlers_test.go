package handlers

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"budget-tracker-bot/internal/config"
	"budget-tracker-bot/internal/insights"
	"budget-tracker-bot/internal/ledger"
	"budget-tracker-bot/internal/logger"
	"budget-tracker-bot/internal/models"
	"budget-tracker-bot/internal/store"
	"budget-tracker-bot/internal/utils"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/shopspring/decimal"
)

const testChatID int64 = 42

type firstRand struct{}

func (firstRand) Intn(int) int { return 0 }

type fakeSender struct {
	mu       sync.Mutex
	sent     []tgbotapi.Chattable
	requests []tgbotapi.Chattable
	nextID   int
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, c)
	f.nextID++
	return tgbotapi.Message{MessageID: f.nextID}, nil
}

func (f *fakeSender) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

// texts returns the text of every message and edit sent so far.
func (f *fakeSender) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.sent {
		switch m := c.(type) {
		case tgbotapi.MessageConfig:
			out = append(out, m.Text)
		case tgbotapi.EditMessageTextConfig:
			out = append(out, m.Text)
		}
	}
	return out
}

func (f *fakeSender) last() string {
	texts := f.texts()
	if len(texts) == 0 {
		return ""
	}
	return texts[len(texts)-1]
}

func (f *fakeSender) documents() []tgbotapi.DocumentConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []tgbotapi.DocumentConfig
	for _, c := range f.sent {
		if d, ok := c.(tgbotapi.DocumentConfig); ok {
			out = append(out, d)
		}
	}
	return out
}

type testEnv struct {
	events *EventHandler
	ledger *ledger.Service
	bot    *fakeSender
	now    *time.Time
}

func newTestEnv(t *testing.T, now time.Time) *testEnv {
	t.Helper()
	current := now
	l := ledger.NewService(store.NewMemory(),
		ledger.WithClock(func() time.Time { return current }),
		ledger.WithLocation(time.UTC),
		ledger.WithLogger(logger.Nop()))
	ins := insights.NewService(l, insights.WithRand(firstRand{}), insights.WithLogger(logger.Nop()))
	cfg := &config.Config{
		ChatID:     testChatID,
		Categories: []string{"Groceries", "Transport", "Fun"},
		PendingTTL: 30 * time.Minute,
	}
	return &testEnv{
		events: NewEventHandler(l, ins, cfg, logger.Nop()),
		ledger: l,
		bot:    &fakeSender{},
		now:    &current,
	}
}

func textMessage(chatID int64, text string) *tgbotapi.Message {
	return &tgbotapi.Message{
		MessageID: 7,
		From:      &tgbotapi.User{ID: 1, UserName: "alice"},
		Chat:      &tgbotapi.Chat{ID: chatID},
		Text:      text,
	}
}

func commandMessage(chatID int64, text string) *tgbotapi.Message {
	m := textMessage(chatID, text)
	cmd, _, _ := strings.Cut(text, " ")
	m.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(cmd)}}
	return m
}

func (e *testEnv) command(t *testing.T, text string) string {
	t.Helper()
	e.events.HandleMessage(context.Background(), e.bot, commandMessage(testChatID, text))
	return e.bot.last()
}

func (e *testEnv) book() *ledger.Book {
	return e.ledger.Book(UserID(testChatID))
}

func keyboardData(t *testing.T, c tgbotapi.Chattable) [][]string {
	t.Helper()
	msg, ok := c.(tgbotapi.MessageConfig)
	if !ok {
		t.Fatalf("expected a message, got %T", c)
	}
	markup, ok := msg.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	if !ok {
		t.Fatalf("expected an inline keyboard, got %T", msg.ReplyMarkup)
	}
	var rows [][]string
	for _, row := range markup.InlineKeyboard {
		var data []string
		for _, btn := range row {
			data = append(data, *btn.CallbackData)
		}
		rows = append(rows, data)
	}
	return rows
}

func callback(chatID int64, data string) *tgbotapi.CallbackQuery {
	return &tgbotapi.CallbackQuery{
		ID:      "cb-1",
		Data:    data,
		Message: &tgbotapi.Message{MessageID: 99, Chat: &tgbotapi.Chat{ID: chatID}},
	}
}

var wednesday = time.Date(2025, time.January, 15, 10, 0, 0, 0, time.UTC)

func TestExpenseFlowBooksSelectedCategory(t *testing.T) {
	env := newTestEnv(t, wednesday)
	ctx := context.Background()

	env.events.HandleMessage(ctx, env.bot, textMessage(testChatID, "25.50 lunch"))
	if len(env.bot.sent) != 1 {
		t.Fatalf("expected category prompt, got %d messages", len(env.bot.sent))
	}
	if env.events.Pending().Size() != 1 {
		t.Fatalf("expected one pending expense, got %d", env.events.Pending().Size())
	}

	rows := keyboardData(t, env.bot.sent[0])
	// second category on the first row
	env.events.HandleCallbackQuery(ctx, env.bot, callback(testChatID, rows[0][1]))

	expenses, err := env.book().Expenses(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(expenses) != 1 {
		t.Fatalf("expected 1 expense, got %d", len(expenses))
	}
	e := expenses[0]
	if e.Name != "lunch" || e.Category != "Transport" || !e.Amount.Equal(decimal.RequireFromString("25.50")) {
		t.Errorf("unexpected expense %+v", e)
	}
	if e.Date != models.NewDate(2025, time.January, 15) {
		t.Errorf("expected expense dated on the day it was typed, got %s", e.Date)
	}
	if env.events.Pending().Size() != 0 {
		t.Error("pending expense should be consumed")
	}
	if !strings.Contains(env.bot.last(), "Added 25.50$") {
		t.Errorf("unexpected confirmation %q", env.bot.last())
	}
	if len(env.bot.requests) != 1 {
		t.Errorf("expected the callback to be answered once, got %d requests", len(env.bot.requests))
	}

	// A second tap on the same keyboard must not book twice.
	env.events.HandleCallbackQuery(ctx, env.bot, callback(testChatID, rows[0][1]))
	expenses, _ = env.book().Expenses(ctx)
	if len(expenses) != 1 {
		t.Errorf("expected still 1 expense, got %d", len(expenses))
	}
	if !strings.Contains(env.bot.last(), "expired") {
		t.Errorf("expected expiry notice, got %q", env.bot.last())
	}
}

func TestExpenseFlowCancel(t *testing.T) {
	env := newTestEnv(t, wednesday)
	ctx := context.Background()

	env.events.HandleMessage(ctx, env.bot, textMessage(testChatID, "coffee 3"))
	rows := keyboardData(t, env.bot.sent[0])
	cancel := rows[len(rows)-1][0]
	if !strings.HasPrefix(cancel, utils.ActionCancel+":") {
		t.Fatalf("expected cancel button last, got %q", cancel)
	}

	env.events.HandleCallbackQuery(ctx, env.bot, callback(testChatID, cancel))

	if env.events.Pending().Size() != 0 {
		t.Error("cancel should drop the pending expense")
	}
	expenses, _ := env.book().Expenses(ctx)
	if len(expenses) != 0 {
		t.Errorf("expected no expenses, got %d", len(expenses))
	}
	var deleted bool
	for _, r := range env.bot.requests {
		if _, ok := r.(tgbotapi.DeleteMessageConfig); ok {
			deleted = true
		}
	}
	if !deleted {
		t.Error("expected the category prompt to be deleted")
	}
}

func TestHandleMessageIgnores(t *testing.T) {
	tests := []struct {
		name string
		msg  *tgbotapi.Message
	}{
		{"other chat", textMessage(7, "10 lunch")},
		{"not an amount", textMessage(testChatID, "hello there")},
		{"bot author", func() *tgbotapi.Message {
			m := textMessage(testChatID, "10 lunch")
			m.From.IsBot = true
			return m
		}()},
		{"edited", func() *tgbotapi.Message {
			m := textMessage(testChatID, "10 lunch")
			m.EditDate = 1
			return m
		}()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, wednesday)
			env.events.HandleMessage(context.Background(), env.bot, tt.msg)
			if len(env.bot.sent) != 0 {
				t.Errorf("expected no reply, got %v", env.bot.texts())
			}
			if env.events.Pending().Size() != 0 {
				t.Error("expected nothing pending")
			}
		})
	}
}

func TestCallbackFromOtherChatIgnored(t *testing.T) {
	env := newTestEnv(t, wednesday)
	env.events.HandleCallbackQuery(context.Background(), env.bot, callback(7, "cat:0:abc"))
	if len(env.bot.sent) != 0 || len(env.bot.requests) != 0 {
		t.Error("expected callback from another chat to be ignored")
	}
}

func TestParseBudgetArgs(t *testing.T) {
	today := models.NewDate(2025, time.January, 15)
	current := models.DefaultBudgetSettings(today)

	tests := []struct {
		name    string
		args    string
		want    models.BudgetSettings
		wantErr error
	}{
		{
			name: "amount only keeps cycle and start",
			args: "500",
			want: models.BudgetSettings{CyclePeriod: models.Monthly, Amount: decimal.NewFromInt(500), StartDate: models.NewDate(2025, time.January, 1)},
		},
		{
			name: "new cycle starts today",
			args: "120 weekly",
			want: models.BudgetSettings{CyclePeriod: models.Weekly, Amount: decimal.NewFromInt(120), StartDate: today},
		},
		{
			name: "explicit start and auto",
			args: "800 biweekly 2025-01-06 auto",
			want: models.BudgetSettings{CyclePeriod: models.Biweekly, Amount: decimal.NewFromInt(800), StartDate: models.NewDate(2025, time.January, 6), AutoResetEnabled: true},
		},
		{
			name:    "bad amount",
			args:    "lots",
			wantErr: utils.ErrInvalidAmountFormat,
		},
		{
			name:    "negative amount",
			args:    "-5",
			wantErr: models.ErrNegativeBudget,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseBudgetArgs(strings.Fields(tt.args), current, today)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.CyclePeriod != tt.want.CyclePeriod || !got.Amount.Equal(tt.want.Amount) ||
				got.StartDate != tt.want.StartDate || got.AutoResetEnabled != tt.want.AutoResetEnabled {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}

	if _, err := parseBudgetArgs([]string{"100", "yearly"}, current, today); err == nil {
		t.Error("expected unknown option error")
	}
}

func TestBudgetAndProgressCommands(t *testing.T) {
	env := newTestEnv(t, wednesday)
	ctx := context.Background()

	if reply := env.command(t, "/budget 100 monthly 2025-01-01"); !strings.Contains(reply, "Budget saved") {
		t.Fatalf("unexpected reply %q", reply)
	}
	settings, err := env.book().Budget(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !settings.Amount.Equal(decimal.NewFromInt(100)) || settings.CyclePeriod != models.Monthly {
		t.Errorf("unexpected settings %+v", settings)
	}

	if _, err := env.book().AddExpense(ctx, models.Expense{
		Name: "Coffee", Amount: decimal.RequireFromString("6.50"), Category: "Fun",
		Date: models.NewDate(2025, time.January, 10),
	}); err != nil {
		t.Fatal(err)
	}

	reply := env.command(t, "/progress")
	for _, want := range []string{"6.50$", "93.50$", "7%"} {
		if !strings.Contains(reply, want) {
			t.Errorf("progress reply missing %q:\n%s", want, reply)
		}
	}
}

func TestBalanceCommand(t *testing.T) {
	env := newTestEnv(t, wednesday)
	ctx := context.Background()

	env.command(t, "/balance 100")
	env.command(t, "/balance -30")
	reply := env.command(t, "/balance +5.25")
	if !strings.Contains(reply, "75.25$") {
		t.Errorf("unexpected reply %q", reply)
	}
	balance, err := env.book().Balance(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !balance.Equal(decimal.RequireFromString("75.25")) {
		t.Errorf("expected balance 75.25, got %s", balance)
	}
	if reply := env.command(t, "/balance abc"); !strings.Contains(reply, "❌") {
		t.Errorf("expected error reply, got %q", reply)
	}
}

func TestIncomeAndDeleteCommands(t *testing.T) {
	env := newTestEnv(t, wednesday)
	ctx := context.Background()

	env.command(t, "/income 2500 monthly salary 2025-01-01")
	incomes, err := env.book().Incomes(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(incomes) != 1 || incomes[0].Source != "monthly salary" || incomes[0].Date != models.NewDate(2025, time.January, 1) {
		t.Fatalf("unexpected incomes %+v", incomes)
	}

	saved, err := env.book().AddExpense(ctx, models.Expense{Name: "Taxi", Amount: decimal.NewFromInt(12), Category: "Transport"})
	if err != nil {
		t.Fatal(err)
	}
	if reply := env.command(t, "/delete zzzz"); !strings.Contains(reply, "No expense") {
		t.Errorf("unexpected reply %q", reply)
	}
	if reply := env.command(t, "/delete "+saved.ID[:8]); !strings.Contains(reply, "Deleted") {
		t.Errorf("unexpected reply %q", reply)
	}
	expenses, _ := env.book().Expenses(ctx)
	if len(expenses) != 0 {
		t.Errorf("expected expense to be deleted, got %d left", len(expenses))
	}
}

func TestRolloverCommand(t *testing.T) {
	env := newTestEnv(t, wednesday)
	ctx := context.Background()

	if reply := env.command(t, "/rollover"); !strings.Contains(reply, "Nothing to archive") {
		t.Errorf("unexpected reply %q", reply)
	}

	for _, amount := range []string{"10", "20"} {
		if _, err := env.book().AddExpense(ctx, models.Expense{Name: "Food", Amount: decimal.RequireFromString(amount), Category: "Groceries"}); err != nil {
			t.Fatal(err)
		}
	}
	if reply := env.command(t, "/rollover"); !strings.Contains(reply, "30.00$") {
		t.Errorf("expected the archive report, got %q", reply)
	}
	docs := env.bot.documents()
	if len(docs) != 1 {
		t.Fatalf("expected one CSV document, got %d", len(docs))
	}
	file, ok := docs[0].File.(tgbotapi.FileBytes)
	if !ok || file.Name != "expenses_monthly-2025-01.csv" {
		t.Errorf("unexpected document %+v", docs[0].File)
	}
	expenses, _ := env.book().Expenses(ctx)
	if len(expenses) != 0 {
		t.Errorf("live expenses should be cleared, got %d", len(expenses))
	}
	if reply := env.command(t, "/archives"); !strings.Contains(reply, "monthly-2025-01") {
		t.Errorf("archives should list the key, got %q", reply)
	}
}

func TestReportCommandsWithoutArchives(t *testing.T) {
	env := newTestEnv(t, wednesday)

	tests := []struct {
		command string
		want    string
	}{
		{"/compare", "No archived periods"},
		{"/trends", "No archived data"},
		{"/export", "No archived data"},
		{"/export monthly-2020-01", "No archive found"},
		{"/notifications", "No notifications"},
		{"/nonsense", "Unknown command"},
	}
	for _, tt := range tests {
		t.Run(tt.command, func(t *testing.T) {
			if reply := env.command(t, tt.command); !strings.Contains(reply, tt.want) {
				t.Errorf("expected %q in %q", tt.want, reply)
			}
		})
	}
}

func TestRunAutoRolloverReportsToChat(t *testing.T) {
	env := newTestEnv(t, wednesday)
	ctx := context.Background()

	env.command(t, "/budget 300 monthly 2025-01-01 auto")
	if _, err := env.book().AddExpense(ctx, models.Expense{Name: "Rent share", Amount: decimal.NewFromInt(150), Category: "Fun"}); err != nil {
		t.Fatal(err)
	}

	cmds := env.events.Commands()
	cmds.RunAutoRollover(ctx, env.bot)
	if len(env.bot.documents()) != 0 {
		t.Fatal("first run only records the current period")
	}

	*env.now = time.Date(2025, time.February, 1, 0, 5, 0, 0, time.UTC)
	cmds.RunAutoRollover(ctx, env.bot)

	if !strings.Contains(env.bot.last(), "PERIOD CLOSED") {
		t.Errorf("expected period report, got %q", env.bot.last())
	}
	if len(env.bot.documents()) != 1 {
		t.Errorf("expected the CSV to be sent, got %d documents", len(env.bot.documents()))
	}
	if _, err := env.book().Archive(ctx, "monthly-2025-01"); err != nil {
		t.Errorf("expected January archive: %v", err)
	}
}

func TestPushInsightsSendsNewNotifications(t *testing.T) {
	env := newTestEnv(t, wednesday)
	ctx := context.Background()

	env.command(t, "/budget 100 monthly 2025-01-01")
	if _, err := env.book().AddExpense(ctx, models.Expense{Name: "Concert", Amount: decimal.NewFromInt(95), Category: "Fun"}); err != nil {
		t.Fatal(err)
	}

	before := len(env.bot.texts())
	env.events.Commands().PushInsights(ctx, env.bot)
	texts := env.bot.texts()
	if len(texts) != before+1 || !strings.Contains(texts[len(texts)-1], "Budget alert") {
		t.Fatalf("expected a budget alert, got %v", texts[before:])
	}

	// Unread duplicates are not pushed again.
	env.events.Commands().PushInsights(ctx, env.bot)
	if got := len(env.bot.texts()); got != before+1 {
		t.Errorf("expected no new messages, got %d", got-before-1)
	}
}
