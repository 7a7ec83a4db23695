package orchestrator

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"presentos/internal/model"
	"presentos/internal/notify"
)

// GoalProgress 目标进度累加，GoalSource 同时实现时每次发放的经验计入当前目标
type GoalProgress interface {
	AddProgress(ctx context.Context, id string, xp int) error
}

// followUpData 能力返回 data 中会用到的字段，均为可选
type followUpData struct {
	TaskID    string `json:"task_id"`
	Title     string `json:"title"`
	Due       string `json:"due"`
	MeetingID string `json:"meeting_id"`
	Summary   string `json:"summary"`
}

// followUps 成功的主步骤衍生的通知：有截止时间的新待办、会议纪要
func followUps(results []model.CapabilityResult) []model.Notification {
	var out []model.Notification
	for _, r := range results {
		if !r.Succeeded() || r.Role != model.RolePrimary {
			continue
		}
		var data followUpData
		if len(r.Payload) > 0 {
			_ = json.Unmarshal(r.Payload, &data)
		}
		title := firstNonEmpty(data.Title, r.Intent.Param("title"))

		switch r.Intent.Kind {
		case model.KindCreateTask:
			due := firstNonEmpty(data.Due, r.Intent.Param("when"))
			if due == "" || title == "" {
				continue
			}
			out = append(out, notify.TaskReminder(title, due, data.TaskID))
		case model.KindSummarizeMeeting:
			summary := firstNonEmpty(data.Summary, r.Summary)
			if summary == "" {
				continue
			}
			out = append(out, notify.MeetingSummary(firstNonEmpty(title, "meeting"), summary, data.MeetingID))
		}
	}
	return out
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func (o *Orchestrator) enqueueFollowUps(ctx context.Context, log *zap.Logger, results []model.CapabilityResult) {
	if o.deps.Notifier == nil {
		return
	}
	for _, n := range followUps(results) {
		if _, err := o.deps.Notifier.Enqueue(context.WithoutCancel(ctx), n); err != nil {
			log.Warn("failed to enqueue follow-up notification",
				zap.String("type", string(n.Type)),
				zap.Error(err),
			)
		}
	}
}

// creditGoal 把本次发放的经验计入当前目标
func (o *Orchestrator) creditGoal(ctx context.Context, log *zap.Logger, awards []model.Award) {
	progress, ok := o.deps.Goals.(GoalProgress)
	if !ok || len(awards) == 0 {
		return
	}
	total := 0
	for _, a := range awards {
		total += a.Amount
	}
	ctx = context.WithoutCancel(ctx)
	goal, err := o.deps.Goals.ActiveGoal(ctx)
	if err != nil {
		log.Warn("failed to load active goal", zap.Error(err))
		return
	}
	if goal == nil {
		return
	}
	if err := progress.AddProgress(ctx, goal.ID, total); err != nil {
		log.Warn("failed to credit goal", zap.String("goal_id", goal.ID), zap.Error(err))
	}
}
