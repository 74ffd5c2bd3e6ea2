package insights

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"budget-tracker-bot/internal/ledger"
	"budget-tracker-bot/internal/logger"
	"budget-tracker-bot/internal/models"
	"budget-tracker-bot/internal/store"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	keyNotifications   = "notifications"
	keyBalanceReminder = "markers:balance_reminder"
	keyMonthEndReview  = "markers:month_end_reminder"
)

// Publisher receives every newly logged notification.
type Publisher interface {
	PublishNotification(ctx context.Context, userID string, n models.Notification) error
}

// Service evaluates the rules for a user and maintains their notification log.
type Service struct {
	ledger    *ledger.Service
	retention int
	rnd       Rand
	publisher Publisher
	log       zerolog.Logger
}

type Option func(*Service)

func WithRetention(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.retention = n
		}
	}
}

// WithRand replaces the tip picker, mostly for tests.
func WithRand(r Rand) Option {
	return func(s *Service) { s.rnd = r }
}

func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

func WithLogger(log zerolog.Logger) Option {
	return func(s *Service) { s.log = logger.WithComponent(log, logger.ComponentInsights) }
}

func NewService(l *ledger.Service, opts ...Option) *Service {
	s := &Service{
		ledger:    l,
		retention: DefaultRetention,
		rnd:       globalRand{},
		log:       logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// globalRand uses the auto-seeded, goroutine safe top level source.
type globalRand struct{}

func (globalRand) Intn(n int) int { return rand.Intn(n) }

func (s *Service) lock(userID string) func() {
	return s.ledger.Locks().Lock("notifications:" + userID)
}

// EvaluateInsights runs the rules against the user's current book and logs
// what fired. The returned slice holds only notifications that were added,
// duplicates of unread entries are dropped.
func (s *Service) EvaluateInsights(ctx context.Context, userID string) ([]models.Notification, error) {
	book := s.ledger.Book(userID)
	snap, err := book.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}

	unlock := s.lock(userID)
	added, err := s.evaluateLocked(ctx, book.Store(), snap)
	unlock()
	if err != nil {
		return nil, err
	}

	if s.publisher != nil {
		for _, n := range added {
			if err := s.publisher.PublishNotification(ctx, userID, n); err != nil {
				s.log.Error().Err(err).Str("user_id", userID).Str("notification_id", n.ID).Msg("Failed to publish notification")
			}
		}
	}
	return added, nil
}

func (s *Service) evaluateLocked(ctx context.Context, st store.RecordStore, snap ledger.Snapshot) ([]models.Notification, error) {
	var lastReminder time.Time
	if _, err := store.Load(ctx, st, keyBalanceReminder, &lastReminder); err != nil {
		return nil, err
	}
	var lastMonthEnd string
	if _, err := store.Load(ctx, st, keyMonthEndReview, &lastMonthEnd); err != nil {
		return nil, err
	}

	res := Evaluate(Input{
		Now:                 snap.Now,
		Expenses:            snap.Expenses,
		CategoryTotals:      snap.CategoryTotals,
		Spent:               snap.Progress.Spent,
		Budget:              snap.Progress.Budget,
		PreviousPeriodTotal: snap.PreviousPeriodTotal,
		BalanceUpdatedAt:    snap.BalanceUpdatedAt,
		LastBalanceReminder: lastReminder,
		LastMonthEndReview:  lastMonthEnd,
	}, s.rnd)

	nlog, err := s.load(ctx, st)
	if err != nil {
		return nil, err
	}
	var added []models.Notification
	for _, n := range res.Notifications {
		n.ID = uuid.NewString()
		if nlog.Push(n) {
			added = append(added, n)
		}
	}
	if len(added) > 0 {
		if err := store.Save(ctx, st, keyNotifications, nlog.Entries); err != nil {
			return nil, err
		}
	}

	if res.BalanceReminderFired {
		if err := store.Save(ctx, st, keyBalanceReminder, snap.Now); err != nil {
			return nil, err
		}
	}
	if res.MonthEndReviewFired != "" {
		if err := store.Save(ctx, st, keyMonthEndReview, res.MonthEndReviewFired); err != nil {
			return nil, err
		}
	}

	if len(added) > 0 {
		s.log.Info().Int("fired", len(res.Notifications)).Int("added", len(added)).Msg("Insights evaluated")
	}
	return added, nil
}

// Notifications returns the user's log, newest first.
func (s *Service) Notifications(ctx context.Context, userID string) ([]models.Notification, error) {
	nlog, err := s.load(ctx, s.userStore(userID))
	if err != nil {
		return nil, err
	}
	return nlog.Entries, nil
}

// UnreadCount returns how many notifications are unread.
func (s *Service) UnreadCount(ctx context.Context, userID string) (int, error) {
	nlog, err := s.load(ctx, s.userStore(userID))
	if err != nil {
		return 0, err
	}
	return nlog.Unread(), nil
}

// MarkRead flags one notification as read.
func (s *Service) MarkRead(ctx context.Context, userID, id string) error {
	return s.update(ctx, userID, func(nlog *NotificationLog) error {
		for i := range nlog.Entries {
			if nlog.Entries[i].ID == id {
				nlog.Entries[i].Read = true
				return nil
			}
		}
		return fmt.Errorf("notification %s: %w", id, ledger.ErrNotFound)
	})
}

// MarkAllRead flags every notification as read.
func (s *Service) MarkAllRead(ctx context.Context, userID string) error {
	return s.update(ctx, userID, func(nlog *NotificationLog) error {
		for i := range nlog.Entries {
			nlog.Entries[i].Read = true
		}
		return nil
	})
}

// ClearAll empties the log.
func (s *Service) ClearAll(ctx context.Context, userID string) error {
	return s.update(ctx, userID, func(nlog *NotificationLog) error {
		nlog.Entries = []models.Notification{}
		return nil
	})
}

func (s *Service) update(ctx context.Context, userID string, fn func(*NotificationLog) error) error {
	st := s.userStore(userID)
	unlock := s.lock(userID)
	defer unlock()

	nlog, err := s.load(ctx, st)
	if err != nil {
		return err
	}
	if err := fn(nlog); err != nil {
		return err
	}
	return store.Save(ctx, st, keyNotifications, nlog.Entries)
}

func (s *Service) load(ctx context.Context, st store.RecordStore) (*NotificationLog, error) {
	nlog := &NotificationLog{Retention: s.retention}
	if _, err := store.Load(ctx, st, keyNotifications, &nlog.Entries); err != nil {
		return nil, err
	}
	// a lowered retention applies on the next read
	nlog.truncate()
	return nlog, nil
}

func (s *Service) userStore(userID string) store.RecordStore {
	return s.ledger.Book(userID).Store()
}
