package models

import "time"

type NotificationType string

const (
	BudgetAlert   NotificationType = "budget_alert"
	SavingsTip    NotificationType = "savings_tip"
	SpendingTrend NotificationType = "spending_trend"
	Achievement   NotificationType = "achievement"
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Notification is one entry of a user's notification log.
type Notification struct {
	ID        string           `json:"id"`
	Type      NotificationType `json:"type"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	Icon      string           `json:"icon"`
	Timestamp time.Time        `json:"timestamp"`
	Priority  Priority         `json:"priority"`
	Read      bool             `json:"read"`
}
