package insights

import "budget-tracker-bot/internal/models"

// DefaultRetention is the notification log cap used when none is configured.
const DefaultRetention = 50

// NotificationLog is a bounded list of notifications, newest first.
type NotificationLog struct {
	Entries   []models.Notification
	Retention int
}

// Push prepends n and evicts the oldest entries beyond the retention cap.
// It returns false, leaving the log untouched, when an unread entry with the
// same title and message is already present.
func (l *NotificationLog) Push(n models.Notification) bool {
	for _, existing := range l.Entries {
		if !existing.Read && existing.Title == n.Title && existing.Message == n.Message {
			return false
		}
	}
	l.Entries = append([]models.Notification{n}, l.Entries...)
	l.truncate()
	return true
}

func (l *NotificationLog) truncate() {
	limit := l.Retention
	if limit <= 0 {
		limit = DefaultRetention
	}
	if len(l.Entries) > limit {
		l.Entries = l.Entries[:limit]
	}
}

// Unread counts entries not yet marked read.
func (l *NotificationLog) Unread() int {
	n := 0
	for _, e := range l.Entries {
		if !e.Read {
			n++
		}
	}
	return n
}
