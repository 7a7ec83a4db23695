package model

import "time"

// Routing keys
const (
	EventNotificationCreated = "notification.created"
)

// NotificationCreatedPayload notification.created 事件载荷
type NotificationCreatedPayload struct {
	NotificationID string           `json:"notification_id"`
	Type           NotificationType `json:"type"`
	Subject        string           `json:"subject"`
	Title          string           `json:"title"`
	Body           string           `json:"body"`
	Priority       Priority         `json:"priority"`
	CreatedAt      time.Time        `json:"created_at"`
	RequestID      string           `json:"request_id,omitempty"`
}
