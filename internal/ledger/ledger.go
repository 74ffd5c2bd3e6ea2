// Package ledger keeps each user's live transactions, budget settings and
// balance, and closes budget periods into archives.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"budget-tracker-bot/internal/logger"
	"budget-tracker-bot/internal/models"
	"budget-tracker-bot/internal/period"
	"budget-tracker-bot/internal/store"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a record id or archive key does not exist.
var ErrNotFound = errors.New("not found")

// Record keys inside a user namespace.
const (
	keyExpenses       = "expenses"
	keyIncomes        = "incomes"
	keyBudgetSettings = "budget_settings"
	keyBalance        = "balance"
	keyArchivePrefix  = "archive:"

	keyRolloverMarker = "markers:rollover"
	keyBalanceUpdated = "markers:balance_updated"
)

// Service hands out per-user books that share one record store.
type Service struct {
	store store.RecordStore
	locks *store.KeyedMutex
	now   func() time.Time
	loc   *time.Location
	log   zerolog.Logger
}

type Option func(*Service)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLocation sets the zone in which calendar dates are evaluated.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.loc = loc
		}
	}
}

func WithLogger(log zerolog.Logger) Option {
	return func(s *Service) { s.log = logger.WithComponent(log, logger.ComponentLedger) }
}

// WithLocks shares a keyed mutex with other services touching the same users.
func WithLocks(locks *store.KeyedMutex) Option {
	return func(s *Service) {
		if locks != nil {
			s.locks = locks
		}
	}
}

func NewService(s store.RecordStore, opts ...Option) *Service {
	svc := &Service{
		store: s,
		locks: store.NewKeyedMutex(),
		now:   time.Now,
		loc:   time.Local,
		log:   logger.Nop(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Now returns the service clock in the configured location.
func (s *Service) Now() time.Time {
	return s.now().In(s.loc)
}

// Locks exposes the per-user mutex so other services can serialize with the ledger.
func (s *Service) Locks() *store.KeyedMutex {
	return s.locks
}

// Book returns the ledger of one user.
func (s *Service) Book(userID string) *Book {
	return &Book{
		svc:    s,
		userID: userID,
		store:  store.Namespace(s.store, store.UserPrefix(userID)),
		log:    s.log.With().Str("user_id", userID).Logger(),
	}
}

// Users lists every user that has at least one stored record, sorted by id.
func (s *Service) Users(ctx context.Context) ([]string, error) {
	entries, err := s.store.ScanPrefix(ctx, store.UserKeyPrefix)
	if err != nil {
		return nil, fmt.Errorf("scan users: %w", err)
	}
	seen := make(map[string]bool)
	var users []string
	for _, e := range entries {
		rest := strings.TrimPrefix(e.Key, store.UserKeyPrefix)
		escaped, _, ok := strings.Cut(rest, ":")
		if !ok || escaped == "" || seen[escaped] {
			continue
		}
		seen[escaped] = true
		users = append(users, store.UnescapeUserID(escaped))
	}
	sort.Strings(users)
	return users, nil
}

// Book is one user's ledger. Every method that writes holds the user lock
// for its whole read-modify-write.
type Book struct {
	svc    *Service
	userID string
	store  store.RecordStore
	log    zerolog.Logger
}

func (b *Book) UserID() string {
	return b.userID
}

// Store returns the user's namespaced record store.
func (b *Book) Store() store.RecordStore {
	return b.store
}

func (b *Book) lock() func() {
	return b.svc.locks.Lock(b.userID)
}

func (b *Book) withLog(ctx context.Context) context.Context {
	return logger.WithContext(ctx, b.log)
}

func (b *Book) today() models.Date {
	return models.DateOf(b.svc.Now())
}

// AddExpense validates and stores a new expense. A zero date means today.
func (b *Book) AddExpense(ctx context.Context, e models.Expense) (models.Expense, error) {
	ctx = b.withLog(ctx)
	e.Name = strings.TrimSpace(e.Name)
	e.Category = strings.TrimSpace(e.Category)
	if e.Date.IsZero() {
		e.Date = b.today()
	}
	if err := e.Validate(); err != nil {
		return models.Expense{}, err
	}
	e.ID = uuid.NewString()
	e.CreatedAt = b.svc.Now()

	unlock := b.lock()
	defer unlock()

	expenses, err := b.loadExpenses(ctx)
	if err != nil {
		return models.Expense{}, err
	}
	expenses = append(expenses, e)
	if err := store.Save(ctx, b.store, keyExpenses, expenses); err != nil {
		return models.Expense{}, err
	}

	b.log.Info().
		Str("expense_id", e.ID).
		Str("amount", e.Amount.StringFixed(2)).
		Str("category", e.Category).
		Msg("Expense added")
	return e, nil
}

// DeleteExpense removes the expense with the given id.
func (b *Book) DeleteExpense(ctx context.Context, id string) error {
	ctx = b.withLog(ctx)
	unlock := b.lock()
	defer unlock()

	expenses, err := b.loadExpenses(ctx)
	if err != nil {
		return err
	}
	kept := expenses[:0]
	for _, e := range expenses {
		if e.ID != id {
			kept = append(kept, e)
		}
	}
	if len(kept) == len(expenses) {
		return fmt.Errorf("expense %s: %w", id, ErrNotFound)
	}
	return store.Save(ctx, b.store, keyExpenses, kept)
}

// Expenses returns the live expenses, newest first.
func (b *Book) Expenses(ctx context.Context) ([]models.Expense, error) {
	expenses, err := b.loadExpenses(b.withLog(ctx))
	if err != nil {
		return nil, err
	}
	sortExpensesNewestFirst(expenses)
	return expenses, nil
}

// AddIncome validates and stores a new income. A zero date means today.
func (b *Book) AddIncome(ctx context.Context, in models.Income) (models.Income, error) {
	ctx = b.withLog(ctx)
	in.Source = strings.TrimSpace(in.Source)
	if in.Date.IsZero() {
		in.Date = b.today()
	}
	if err := in.Validate(); err != nil {
		return models.Income{}, err
	}
	in.ID = uuid.NewString()
	in.CreatedAt = b.svc.Now()

	unlock := b.lock()
	defer unlock()

	incomes, err := b.loadIncomes(ctx)
	if err != nil {
		return models.Income{}, err
	}
	incomes = append(incomes, in)
	if err := store.Save(ctx, b.store, keyIncomes, incomes); err != nil {
		return models.Income{}, err
	}

	b.log.Info().Str("income_id", in.ID).Str("amount", in.Amount.StringFixed(2)).Msg("Income added")
	return in, nil
}

// DeleteIncome removes the income with the given id.
func (b *Book) DeleteIncome(ctx context.Context, id string) error {
	ctx = b.withLog(ctx)
	unlock := b.lock()
	defer unlock()

	incomes, err := b.loadIncomes(ctx)
	if err != nil {
		return err
	}
	kept := incomes[:0]
	for _, in := range incomes {
		if in.ID != id {
			kept = append(kept, in)
		}
	}
	if len(kept) == len(incomes) {
		return fmt.Errorf("income %s: %w", id, ErrNotFound)
	}
	return store.Save(ctx, b.store, keyIncomes, kept)
}

// Incomes returns the live incomes, newest first.
func (b *Book) Incomes(ctx context.Context) ([]models.Income, error) {
	incomes, err := b.loadIncomes(b.withLog(ctx))
	if err != nil {
		return nil, err
	}
	sort.SliceStable(incomes, func(i, j int) bool {
		if !incomes[i].Date.Equal(incomes[j].Date.Time) {
			return incomes[i].Date.After(incomes[j].Date.Time)
		}
		return incomes[i].CreatedAt.After(incomes[j].CreatedAt)
	})
	return incomes, nil
}

// SetBudget replaces the budget settings wholesale.
func (b *Book) SetBudget(ctx context.Context, settings models.BudgetSettings) error {
	ctx = b.withLog(ctx)
	if err := settings.Validate(); err != nil {
		return err
	}
	unlock := b.lock()
	defer unlock()

	if err := store.Save(ctx, b.store, keyBudgetSettings, settings); err != nil {
		return err
	}
	b.log.Info().
		Str("cycle", settings.CyclePeriod.String()).
		Str("amount", settings.Amount.StringFixed(2)).
		Str("start_date", settings.StartDate.String()).
		Bool("auto_reset", settings.AutoResetEnabled).
		Msg("Budget settings saved")
	return nil
}

// Budget returns the stored settings, or the defaults when none are stored
// or the stored value is unusable.
func (b *Book) Budget(ctx context.Context) (models.BudgetSettings, error) {
	return b.loadBudget(b.withLog(ctx))
}

// Balance returns the current balance (zero when never set).
func (b *Book) Balance(ctx context.Context) (decimal.Decimal, error) {
	return b.loadBalance(b.withLog(ctx))
}

// SetBalance overwrites the balance.
func (b *Book) SetBalance(ctx context.Context, amount decimal.Decimal) (decimal.Decimal, error) {
	ctx = b.withLog(ctx)
	unlock := b.lock()
	defer unlock()

	if err := b.saveBalance(ctx, amount); err != nil {
		return decimal.Zero, err
	}
	return amount, nil
}

// UpdateBalance adds delta (which may be negative) to the balance.
func (b *Book) UpdateBalance(ctx context.Context, delta decimal.Decimal) (decimal.Decimal, error) {
	ctx = b.withLog(ctx)
	unlock := b.lock()
	defer unlock()

	current, err := b.loadBalance(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	updated := current.Add(delta)
	if err := b.saveBalance(ctx, updated); err != nil {
		return decimal.Zero, err
	}
	return updated, nil
}

// BalanceUpdatedAt returns when the balance was last written.
func (b *Book) BalanceUpdatedAt(ctx context.Context) (time.Time, bool, error) {
	var at time.Time
	ok, err := store.Load(b.withLog(ctx), b.store, keyBalanceUpdated, &at)
	return at, ok, err
}

// CurrentPeriodProgress measures live spending against the budget.
func (b *Book) CurrentPeriodProgress(ctx context.Context) (period.Progress, error) {
	ctx = b.withLog(ctx)
	settings, err := b.loadBudget(ctx)
	if err != nil {
		return period.Progress{}, err
	}
	expenses, err := b.loadExpenses(ctx)
	if err != nil {
		return period.Progress{}, err
	}
	return period.ComputeProgress(expenses, settings, b.svc.Now())
}

// CategoryTotals sums the current period's expenses per category.
func (b *Book) CategoryTotals(ctx context.Context) (map[string]decimal.Decimal, error) {
	ctx = b.withLog(ctx)
	settings, err := b.loadBudget(ctx)
	if err != nil {
		return nil, err
	}
	expenses, err := b.loadExpenses(ctx)
	if err != nil {
		return nil, err
	}
	start, err := period.Start(settings, b.svc.Now())
	if err != nil {
		return nil, err
	}
	return models.CategoryBreakdown(inPeriod(expenses, start)), nil
}

// Snapshot is a consistent read of everything the insight rules look at.
type Snapshot struct {
	Expenses            []models.Expense
	Incomes             []models.Income
	Settings            models.BudgetSettings
	Balance             decimal.Decimal
	BalanceUpdatedAt    time.Time
	Progress            period.Progress
	CategoryTotals      map[string]decimal.Decimal
	PreviousPeriodTotal decimal.Decimal
	Now                 time.Time
}

// Snapshot reads the whole book under the user lock.
func (b *Book) Snapshot(ctx context.Context) (Snapshot, error) {
	ctx = b.withLog(ctx)
	unlock := b.lock()
	defer unlock()

	now := b.svc.Now()
	snap := Snapshot{Now: now}
	var err error
	if snap.Settings, err = b.loadBudget(ctx); err != nil {
		return Snapshot{}, err
	}
	if snap.Expenses, err = b.loadExpenses(ctx); err != nil {
		return Snapshot{}, err
	}
	if snap.Incomes, err = b.loadIncomes(ctx); err != nil {
		return Snapshot{}, err
	}
	if snap.Balance, err = b.loadBalance(ctx); err != nil {
		return Snapshot{}, err
	}
	if _, err = store.Load(ctx, b.store, keyBalanceUpdated, &snap.BalanceUpdatedAt); err != nil {
		return Snapshot{}, err
	}
	if snap.Progress, err = period.ComputeProgress(snap.Expenses, snap.Settings, now); err != nil {
		return Snapshot{}, err
	}
	snap.CategoryTotals = models.CategoryBreakdown(inPeriod(snap.Expenses, snap.Progress.Window.Start))

	prev, err := snap.Progress.Window.Previous(snap.Settings)
	if err != nil {
		return Snapshot{}, err
	}
	var archived models.ArchivedPeriod
	found, err := store.Load(ctx, b.store, keyArchivePrefix+prev.Key(), &archived)
	if err != nil {
		return Snapshot{}, err
	}
	if found {
		snap.PreviousPeriodTotal = archived.TotalExpenses
	}
	sortExpensesNewestFirst(snap.Expenses)
	return snap, nil
}

func (b *Book) loadExpenses(ctx context.Context) ([]models.Expense, error) {
	var raw []models.Expense
	if _, err := store.Load(ctx, b.store, keyExpenses, &raw); err != nil {
		return nil, err
	}
	out := make([]models.Expense, 0, len(raw))
	for _, e := range raw {
		if e.ID == "" || e.Validate() != nil {
			b.log.Warn().Str("expense_id", e.ID).Msg("Invalid stored expense dropped")
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (b *Book) loadIncomes(ctx context.Context) ([]models.Income, error) {
	var raw []models.Income
	if _, err := store.Load(ctx, b.store, keyIncomes, &raw); err != nil {
		return nil, err
	}
	out := make([]models.Income, 0, len(raw))
	for _, in := range raw {
		if in.ID == "" || in.Validate() != nil {
			b.log.Warn().Str("income_id", in.ID).Msg("Invalid stored income dropped")
			continue
		}
		out = append(out, in)
	}
	return out, nil
}

func (b *Book) loadBudget(ctx context.Context) (models.BudgetSettings, error) {
	var settings models.BudgetSettings
	found, err := store.Load(ctx, b.store, keyBudgetSettings, &settings)
	if err != nil {
		return models.BudgetSettings{}, err
	}
	if !found || settings.Validate() != nil {
		return models.DefaultBudgetSettings(b.today()), nil
	}
	return settings, nil
}

func (b *Book) loadBalance(ctx context.Context) (decimal.Decimal, error) {
	var balance decimal.Decimal
	if _, err := store.Load(ctx, b.store, keyBalance, &balance); err != nil {
		return decimal.Zero, err
	}
	return balance, nil
}

func (b *Book) saveBalance(ctx context.Context, amount decimal.Decimal) error {
	if err := store.Save(ctx, b.store, keyBalance, amount); err != nil {
		return err
	}
	if err := store.Save(ctx, b.store, keyBalanceUpdated, b.svc.Now()); err != nil {
		return err
	}
	b.log.Info().Str("balance", amount.StringFixed(2)).Msg("Balance updated")
	return nil
}

func inPeriod(expenses []models.Expense, start models.Date) []models.Expense {
	var out []models.Expense
	for _, e := range expenses {
		if e.Date.OnOrAfter(start) {
			out = append(out, e)
		}
	}
	return out
}

func sortExpensesNewestFirst(expenses []models.Expense) {
	sort.SliceStable(expenses, func(i, j int) bool {
		if !expenses[i].Date.Equal(expenses[j].Date.Time) {
			return expenses[i].Date.After(expenses[j].Date.Time)
		}
		return expenses[i].CreatedAt.After(expenses[j].CreatedAt)
	})
}
