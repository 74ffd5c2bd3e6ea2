package ledger

import (
	"context"
	"fmt"
	"sort"

	"budget-tracker-bot/internal/models"
	"budget-tracker-bot/internal/period"
	"budget-tracker-bot/internal/store"

	"github.com/shopspring/decimal"
)

// RolloverResult reports what a rollover did. Archived is false when there
// was nothing to archive; that is a successful outcome, not an error.
type RolloverResult struct {
	Archived bool
	// Archive is the most recent period archived.
	Archive models.ArchivedPeriod
	// Closed lists every period archived, oldest first. A manual rollover
	// closes at most one; an automatic one after a gap can close several.
	Closed []models.ArchivedPeriod
}

// Rollover archives every live expense and income under the key of the
// current period, then clears both collections. Balance and budget
// settings are left as they are.
func (b *Book) Rollover(ctx context.Context) (RolloverResult, error) {
	ctx = b.withLog(ctx)
	unlock := b.lock()
	defer unlock()

	settings, err := b.loadBudget(ctx)
	if err != nil {
		return RolloverResult{}, err
	}
	w, err := period.Current(settings, b.svc.Now())
	if err != nil {
		return RolloverResult{}, err
	}

	expenses, err := b.loadExpenses(ctx)
	if err != nil {
		return RolloverResult{}, err
	}
	if len(expenses) == 0 {
		b.log.Info().Str("period", w.Key()).Msg("Rollover skipped, nothing to archive")
		return RolloverResult{}, nil
	}
	incomes, err := b.loadIncomes(ctx)
	if err != nil {
		return RolloverResult{}, err
	}

	archived, err := b.archive(ctx, w, expenses, incomes)
	if err != nil {
		return RolloverResult{}, err
	}
	if err := b.replaceLive(ctx, nil, nil); err != nil {
		return RolloverResult{}, err
	}
	if err := store.Save(ctx, b.store, keyRolloverMarker, w.Start); err != nil {
		return RolloverResult{}, err
	}
	return RolloverResult{Archived: true, Archive: archived, Closed: []models.ArchivedPeriod{archived}}, nil
}

// AutoRollover closes every period that ended since the last rollover once
// a new period has begun. Transactions dated before the current period are
// archived under the window their date falls in, one archive per window;
// anything already booked into the current period stays live. A window that
// already has an archive gets the late records merged into it. Incomes of a
// window without expenses stay live, like a manual rollover with nothing to
// archive. The first call for a user only records the current period.
func (b *Book) AutoRollover(ctx context.Context) (RolloverResult, error) {
	ctx = b.withLog(ctx)
	unlock := b.lock()
	defer unlock()

	settings, err := b.loadBudget(ctx)
	if err != nil {
		return RolloverResult{}, err
	}
	if !settings.AutoResetEnabled {
		return RolloverResult{}, nil
	}
	current, err := period.Current(settings, b.svc.Now())
	if err != nil {
		return RolloverResult{}, err
	}

	var marker models.Date
	found, err := store.Load(ctx, b.store, keyRolloverMarker, &marker)
	if err != nil {
		return RolloverResult{}, err
	}
	if !found || marker.IsZero() {
		return RolloverResult{}, store.Save(ctx, b.store, keyRolloverMarker, current.Start)
	}
	if !current.Start.After(marker.Time) {
		return RolloverResult{}, nil
	}

	expenses, err := b.loadExpenses(ctx)
	if err != nil {
		return RolloverResult{}, err
	}
	incomes, err := b.loadIncomes(ctx)
	if err != nil {
		return RolloverResult{}, err
	}
	oldExpenses, liveExpenses := splitExpenses(expenses, current.Start)
	oldIncomes, liveIncomes := splitIncomes(incomes, current.Start)

	groups, err := groupByWindow(settings, oldExpenses, oldIncomes)
	if err != nil {
		return RolloverResult{}, err
	}

	result := RolloverResult{}
	for _, g := range groups {
		if len(g.expenses) == 0 {
			liveIncomes = append(liveIncomes, g.incomes...)
			continue
		}
		archived, err := b.archiveMerged(ctx, g.window, g.expenses, g.incomes)
		if err != nil {
			return RolloverResult{}, err
		}
		result.Archived = true
		result.Archive = archived
		result.Closed = append(result.Closed, archived)
	}
	if result.Archived {
		if err := b.replaceLive(ctx, liveExpenses, liveIncomes); err != nil {
			return RolloverResult{}, err
		}
	} else {
		b.log.Info().Str("period", current.Key()).Msg("Automatic rollover found nothing to archive")
	}

	if err := store.Save(ctx, b.store, keyRolloverMarker, current.Start); err != nil {
		return RolloverResult{}, err
	}
	return result, nil
}

// windowGroup holds the transactions dated inside one window.
type windowGroup struct {
	window   period.Window
	expenses []models.Expense
	incomes  []models.Income
}

// groupByWindow buckets transactions by the window containing their date,
// oldest window first.
func groupByWindow(settings models.BudgetSettings, expenses []models.Expense, incomes []models.Income) ([]*windowGroup, error) {
	byKey := make(map[string]*windowGroup)
	var groups []*windowGroup
	lookup := func(day models.Date) (*windowGroup, error) {
		w, err := period.WindowAt(settings, day)
		if err != nil {
			return nil, err
		}
		g, ok := byKey[w.Key()]
		if !ok {
			g = &windowGroup{window: w}
			byKey[w.Key()] = g
			groups = append(groups, g)
		}
		return g, nil
	}

	for _, e := range expenses {
		g, err := lookup(e.Date)
		if err != nil {
			return nil, err
		}
		g.expenses = append(g.expenses, e)
	}
	for _, in := range incomes {
		g, err := lookup(in.Date)
		if err != nil {
			return nil, err
		}
		g.incomes = append(g.incomes, in)
	}

	sort.Slice(groups, func(i, j int) bool {
		return groups[i].window.Start.Before(groups[j].window.Start.Time)
	})
	return groups, nil
}

// archiveMerged archives a window, keeping the records of an archive already
// stored under the same key.
func (b *Book) archiveMerged(ctx context.Context, w period.Window, expenses []models.Expense, incomes []models.Income) (models.ArchivedPeriod, error) {
	var existing models.ArchivedPeriod
	found, err := store.Load(ctx, b.store, keyArchivePrefix+w.Key(), &existing)
	if err != nil {
		return models.ArchivedPeriod{}, err
	}
	if found {
		expenses = append(append([]models.Expense(nil), existing.Expenses...), expenses...)
		incomes = append(append([]models.Income(nil), existing.Incomes...), incomes...)
	}
	return b.archive(ctx, w, expenses, incomes)
}

func (b *Book) archive(ctx context.Context, w period.Window, expenses []models.Expense, incomes []models.Income) (models.ArchivedPeriod, error) {
	archived := BuildArchive(w, expenses, incomes)
	archived.SavedAt = b.svc.Now()

	if err := store.Save(ctx, b.store, keyArchivePrefix+archived.Key, archived); err != nil {
		return models.ArchivedPeriod{}, fmt.Errorf("archive %s: %w", archived.Key, err)
	}
	b.log.Info().
		Str("period", archived.Key).
		Int("expenses", archived.ExpenseCount).
		Str("total", archived.TotalExpenses.StringFixed(2)).
		Msg("Period archived")
	return archived, nil
}

func (b *Book) replaceLive(ctx context.Context, expenses []models.Expense, incomes []models.Income) error {
	if expenses == nil {
		expenses = []models.Expense{}
	}
	if incomes == nil {
		incomes = []models.Income{}
	}
	if err := store.Save(ctx, b.store, keyExpenses, expenses); err != nil {
		return err
	}
	return store.Save(ctx, b.store, keyIncomes, incomes)
}

// BuildArchive summarizes a closed window. SavedAt is left for the caller.
func BuildArchive(w period.Window, expenses []models.Expense, incomes []models.Income) models.ArchivedPeriod {
	snapshot := append([]models.Expense(nil), expenses...)
	sortExpensesNewestFirst(snapshot)

	total := models.SumExpenses(snapshot)
	archived := models.ArchivedPeriod{
		Key:               w.Key(),
		Cycle:             w.Cycle,
		Year:              w.Year,
		PeriodIndex:       w.Index,
		Label:             w.Label(),
		PeriodStart:       w.Start,
		PeriodEnd:         w.LastDay(),
		TotalExpenses:     total,
		ExpenseCount:      len(snapshot),
		CategoryBreakdown: models.CategoryBreakdown(snapshot),
		Expenses:          snapshot,
		TotalIncome:       models.SumIncomes(incomes),
		Incomes:           append([]models.Income(nil), incomes...),
	}

	if len(snapshot) == 0 {
		return archived
	}

	highest, lowest := snapshot[0].Amount, snapshot[0].Amount
	days := make(map[models.Date]bool)
	for _, e := range snapshot {
		if e.Amount.GreaterThan(highest) {
			highest = e.Amount
		}
		if e.Amount.LessThan(lowest) {
			lowest = e.Amount
		}
		days[e.Date] = true
	}
	archived.AvgExpense = total.Div(decimal.NewFromInt(int64(len(snapshot)))).Round(2)
	archived.HighestExpense = highest
	archived.LowestExpense = lowest
	archived.DaysWithSpending = len(days)
	return archived
}

// Archives lists every archived period, newest first.
func (b *Book) Archives(ctx context.Context) ([]models.ArchivedPeriod, error) {
	archives, err := store.LoadAll[models.ArchivedPeriod](b.withLog(ctx), b.store, keyArchivePrefix)
	if err != nil {
		return nil, err
	}
	SortArchives(archives)
	return archives, nil
}

// Archive returns the archive stored under key.
func (b *Book) Archive(ctx context.Context, key string) (models.ArchivedPeriod, error) {
	var archived models.ArchivedPeriod
	found, err := store.Load(b.withLog(ctx), b.store, keyArchivePrefix+key, &archived)
	if err != nil {
		return models.ArchivedPeriod{}, err
	}
	if !found {
		return models.ArchivedPeriod{}, fmt.Errorf("archive %s: %w", key, ErrNotFound)
	}
	return archived, nil
}

// SortArchives orders archives by year then period index, newest first.
// Archives of different cycles can share a year and index; the later
// period start wins those ties.
func SortArchives(archives []models.ArchivedPeriod) {
	sort.SliceStable(archives, func(i, j int) bool {
		a, c := archives[i], archives[j]
		if a.Year != c.Year {
			return a.Year > c.Year
		}
		if a.PeriodIndex != c.PeriodIndex {
			return a.PeriodIndex > c.PeriodIndex
		}
		return a.PeriodStart.After(c.PeriodStart.Time)
	})
}

func splitExpenses(expenses []models.Expense, start models.Date) (before, after []models.Expense) {
	for _, e := range expenses {
		if e.Date.OnOrAfter(start) {
			after = append(after, e)
		} else {
			before = append(before, e)
		}
	}
	return before, after
}

func splitIncomes(incomes []models.Income, start models.Date) (before, after []models.Income) {
	for _, in := range incomes {
		if in.Date.OnOrAfter(start) {
			after = append(after, in)
		} else {
			before = append(before, in)
		}
	}
	return before, after
}
