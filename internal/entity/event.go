package entity

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const isoMillisLayout = "2006-01-02T15:04:05.000Z"

// EventPublisher delivers a dashboard event to every connected session.
type EventPublisher interface {
	Publish(ctx context.Context, eventType string, payload any) error
}

// DashboardEvent is what travels on the event bus. Payload is the raw JSON
// body of the frame sent to browsers, without its type field.
type DashboardEvent struct {
	Type    string `json:"type"`
	Payload []byte `json:"payload"`
}

type SignalAddedEvent struct {
	Signal SignalView `json:"signal"`
}

type TriggeredAlert struct {
	ID            any      `json:"id"`
	UserID        *string  `json:"userId"`
	Symbol        string   `json:"symbol"`
	Direction     string   `json:"direction"`
	Threshold     *float64 `json:"threshold"`
	CurrentPrice  *float64 `json:"currentPrice"`
	Type          string   `json:"type"`
	AssetType     *string  `json:"assetType"`
	DisplaySymbol *string  `json:"displaySymbol"`
	DisplayName   *string  `json:"displayName"`
	CreatedAt     string   `json:"createdAt"`
	TriggeredAt   string   `json:"triggeredAt"`
	Active        bool     `json:"active"`
	Change        *float64 `json:"change"`
}

type AlertTriggeredEvent struct {
	Alert TriggeredAlert `json:"alert"`
}

type UserNotification struct {
	ID          string         `json:"id"`
	Level       string         `json:"level"`
	Title       string         `json:"title"`
	Body        string         `json:"body"`
	ActionLabel *string        `json:"actionLabel"`
	ActionHref  *string        `json:"actionHref"`
	Meta        map[string]any `json:"meta"`
	Timestamp   string         `json:"timestamp"`
	ExpiresAt   *string        `json:"expiresAt"`
}

type UserNotificationEvent struct {
	UserID       string           `json:"userId"`
	Notification UserNotification `json:"notification"`
}

// WithAction sets the call to action shown with the notification.
func (e UserNotificationEvent) WithAction(label, href string) UserNotificationEvent {
	e.Notification.ActionLabel = &label
	e.Notification.ActionHref = &href
	return e
}

type AccountDeletedEvent struct {
	UserID    string `json:"userId"`
	Reason    string `json:"reason"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// NewUserNotification stamps a notification with a fresh id and the current time.
func NewUserNotification(userID, level, title, body string) UserNotificationEvent {
	if level == "" {
		level = "info"
	}
	if title == "" {
		title = "Notification"
	}
	return UserNotificationEvent{
		UserID: userID,
		Notification: UserNotification{
			ID:        uuid.NewString(),
			Level:     level,
			Title:     title,
			Body:      body,
			Timestamp: FormatISOMillis(time.Now()),
		},
	}
}

// FormatISOMillis renders t the way browsers print Date.toISOString.
func FormatISOMillis(t time.Time) string {
	return t.UTC().Format(isoMillisLayout)
}
