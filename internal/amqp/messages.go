package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"budget-tracker-bot/internal/models"
)

// NotificationMessage is the body published for every new notification.
type NotificationMessage struct {
	UserID       string              `json:"user_id"`
	Notification models.Notification `json:"notification"`
	PublishedAt  time.Time           `json:"published_at"`
}

func NewNotificationMessage(userID string, n models.Notification, now time.Time) *NotificationMessage {
	return &NotificationMessage{
		UserID:       userID,
		Notification: n,
		PublishedAt:  now,
	}
}

func (m *NotificationMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func NotificationMessageFromJSON(data []byte) (*NotificationMessage, error) {
	var msg NotificationMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("unmarshal notification message: %w", err)
	}
	if msg.UserID == "" || msg.Notification.ID == "" {
		return nil, fmt.Errorf("notification message missing user or notification id")
	}
	return &msg, nil
}
