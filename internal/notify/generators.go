package notify

import (
	"fmt"

	"presentos/internal/model"
)

var suggestions = map[model.Dimension]string{
	model.Producer:      "Block an hour today for focused output.",
	model.Administrator: "Take ten minutes to tidy your task list and plan tomorrow.",
	model.Entrepreneur:  "Spend twenty minutes on a new idea or experiment.",
	model.Integrator:    "Reach out to someone on your team.",
}

// Suggestion for a lagging dimension.
func Suggestion(d model.Dimension) string {
	return suggestions[d]
}

func BalanceAlert(d model.Dimension, share float64) model.Notification {
	return model.Notification{
		Type:     model.NotificationBalanceAlert,
		Subject:  string(d),
		Title:    "PAEI Balance Alert",
		Body:     fmt.Sprintf("%s lagging at %.0f%%. %s", d.Name(), share*100, Suggestion(d)),
		Priority: model.PriorityHigh,
		Metadata: map[string]any{"dimension": string(d), "share": share},
	}
}

// EveningSummary mentions the lagging dimension when its share is below minShare.
func EveningSummary(b model.ExperienceBalance, taskCount int, minShare float64) model.Notification {
	body := fmt.Sprintf("%d actions completed today. Total XP: %d, level %d.", taskCount, b.Total, b.Level)

	lagging := model.Dimension("")
	for _, d := range model.Dimensions {
		if lagging == "" || b.Get(d) < b.Get(lagging) {
			lagging = d
		}
	}
	if b.Total > 0 && b.Share(lagging) < minShare {
		body += fmt.Sprintf(" %s lagging at %.0f%%. Suggestion: %s", lagging.Name(), b.Share(lagging)*100, Suggestion(lagging))
	}
	return model.Notification{
		Type:     model.NotificationEveningSummary,
		Subject:  "daily",
		Title:    "Quick check-in",
		Body:     body,
		Priority: model.PriorityMedium,
		Metadata: map[string]any{
			"P": b.P, "A": b.A, "E": b.E, "I": b.I, "total": b.Total,
			"task_count": taskCount,
		},
	}
}

func EnvironmentAlert(condition, location, action string) model.Notification {
	return model.Notification{
		Type:     model.NotificationEnvironmentAlert,
		Subject:  condition,
		Title:    condition,
		Body:     action,
		Priority: model.PriorityHigh,
		Metadata: map[string]any{"condition": condition, "location": location},
	}
}

func TaskReminder(title, due, taskID string) model.Notification {
	subject := taskID
	if subject == "" {
		subject = title
	}
	return model.Notification{
		Type:     model.NotificationTaskReminder,
		Subject:  subject,
		Title:    "Task due soon",
		Body:     fmt.Sprintf("'%s' is due %s", title, due),
		Priority: model.PriorityMedium,
		Metadata: map[string]any{"task_id": taskID, "due": due},
	}
}

func MeetingSummary(title, summary, meetingID string) model.Notification {
	subject := meetingID
	if subject == "" {
		subject = title
	}
	return model.Notification{
		Type:     model.NotificationMeetingSummary,
		Subject:  subject,
		Title:    "Meeting summary: " + title,
		Body:     summary,
		Priority: model.PriorityLow,
		Metadata: map[string]any{"meeting_id": meetingID},
	}
}

// CapabilityFailure 每个能力每天最多一条未读
func CapabilityFailure(capability string, f *model.Failure) model.Notification {
	priority := model.PriorityMedium
	if f.Kind == model.FailureUnauthorized {
		priority = model.PriorityHigh
	}
	return model.Notification{
		Type:     model.NotificationCapabilityFailure,
		Subject:  capability,
		Title:    fmt.Sprintf("%s is having trouble", capability),
		Body:     fmt.Sprintf("Last request to %s failed: %s", capability, f.Error()),
		Priority: priority,
		Metadata: map[string]any{"capability": capability, "kind": string(f.Kind)},
	}
}
