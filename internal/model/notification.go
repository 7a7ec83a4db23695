package model

import (
	"fmt"
	"time"
)

// NotificationType 封闭枚举
type NotificationType string

const (
	NotificationBalanceAlert      NotificationType = "balance-alert"
	NotificationEveningSummary    NotificationType = "evening-summary"
	NotificationEnvironmentAlert  NotificationType = "environment-alert"
	NotificationTaskReminder      NotificationType = "task-reminder"
	NotificationMeetingSummary    NotificationType = "meeting-summary"
	NotificationCapabilityFailure NotificationType = "capability-failure"
)

func (t NotificationType) Valid() bool {
	switch t {
	case NotificationBalanceAlert, NotificationEveningSummary, NotificationEnvironmentAlert,
		NotificationTaskReminder, NotificationMeetingSummary, NotificationCapabilityFailure:
		return true
	}
	return false
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

func (p Priority) Valid() bool {
	return p == PriorityLow || p == PriorityMedium || p == PriorityHigh
}

// Notification 系统生成的提醒
type Notification struct {
	ID        string           `json:"id"`
	Type      NotificationType `json:"type"`
	Subject   string           `json:"subject"`
	Title     string           `json:"title"`
	Body      string           `json:"body"`
	CreatedAt time.Time        `json:"created_at"`
	Priority  Priority         `json:"priority"`
	Read      bool             `json:"read"`
	Metadata  map[string]any   `json:"metadata,omitempty"`
}

// Day returns the calendar day used by the dedup key.
func (n Notification) Day(loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return n.CreatedAt.In(loc).Format("2006-01-02")
}

// DedupKey (type, subject, day)
func (n Notification) DedupKey(loc *time.Location) string {
	return fmt.Sprintf("%s|%s|%s", n.Type, n.Subject, n.Day(loc))
}

func (n Notification) Validate() error {
	if !n.Type.Valid() {
		return fmt.Errorf("invalid notification type %q", n.Type)
	}
	if n.Priority != "" && !n.Priority.Valid() {
		return fmt.Errorf("invalid notification priority %q", n.Priority)
	}
	if n.Title == "" && n.Body == "" {
		return fmt.Errorf("notification needs a title or body")
	}
	return nil
}

// NotificationFilter list 过滤条件
type NotificationFilter struct {
	UnreadOnly bool
	Type       NotificationType
	Limit      int
}

func (f NotificationFilter) Match(n Notification) bool {
	if f.UnreadOnly && n.Read {
		return false
	}
	if f.Type != "" && n.Type != f.Type {
		return false
	}
	return true
}
