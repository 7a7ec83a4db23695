package synth

import (
	"fmt"
	"strings"

	"presentos/internal/model"
)

const clarification = "I'm not sure what you'd like me to do. Could you rephrase it, for example \"schedule a call with Sam tomorrow at 3pm\"?"

// Synthesizer 合并所有步骤结果；对任意输入都返回完整的回复
type Synthesizer struct {
	tieOrder []model.Dimension
}

func New(tieOrder []model.Dimension) *Synthesizer {
	return &Synthesizer{tieOrder: tieOrder}
}

// Clarify is the reply for an unresolved utterance: no tags, no awards.
func (s *Synthesizer) Clarify() model.Response {
	return model.Response{
		Text:              clarification,
		ActionTags:        []string{},
		AwardDescriptions: []string{},
		Clarification:     true,
	}
}

func (s *Synthesizer) Synthesize(intents []model.Intent, scores []model.DimensionScore, results []model.CapabilityResult, awards []model.Award) model.Response {
	resp := model.Response{
		DominantDimension: s.dominant(intents, scores),
		ActionTags:        []string{},
		AwardDescriptions: []string{},
		Awards:            awards,
	}

	var done, failed []string
	for _, r := range results {
		if r.Succeeded() {
			done = append(done, successLine(r))
			resp.ActionTags = append(resp.ActionTags, fmt.Sprintf("%s:%s", r.Capability, r.Intent.Kind))
			continue
		}
		line := failureLine(r)
		failed = append(failed, line)
		resp.Failures = append(resp.Failures, line)
	}
	for _, a := range awards {
		if a.Amount <= 0 {
			continue
		}
		resp.AwardDescriptions = append(resp.AwardDescriptions, Describe(a))
	}

	var b strings.Builder
	for _, l := range done {
		b.WriteString(l)
		b.WriteByte('\n')
	}
	if len(done) == 0 && len(failed) == 0 {
		b.WriteString("Nothing to do for that request.\n")
	}
	if len(failed) > 0 {
		if len(done) > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("Not completed:\n")
		for _, l := range failed {
			b.WriteString("- ")
			b.WriteString(l)
			b.WriteByte('\n')
		}
	}
	if len(resp.AwardDescriptions) > 0 {
		b.WriteString("\n")
		b.WriteString(strings.Join(resp.AwardDescriptions, ", "))
		b.WriteByte('\n')
	}
	resp.Text = strings.TrimRight(b.String(), "\n")
	return resp
}

// dominant 取置信度最高的意图，平分时取靠前的
func (s *Synthesizer) dominant(intents []model.Intent, scores []model.DimensionScore) model.Dimension {
	best := -1
	for i, in := range intents {
		if i >= len(scores) {
			break
		}
		if best < 0 || in.Confidence > intents[best].Confidence {
			best = i
		}
	}
	if best < 0 {
		return ""
	}
	return scores[best].Dominant(s.tieOrder)
}

// Describe "+10 Producer XP (task-management)"
func Describe(a model.Award) string {
	return fmt.Sprintf("+%d %s XP (%s)", a.Amount, a.Dimension.Name(), a.Capability)
}

func successLine(r model.CapabilityResult) string {
	if s := strings.TrimSpace(r.Summary); s != "" {
		return s
	}
	in := r.Intent
	switch in.Kind {
	case model.KindScheduleEvent:
		return withDetail("Scheduled", in.Param("title"), in.Param("when"))
	case model.KindCreateTask:
		return withDetail("Created task", in.Param("title"), in.Param("when"))
	case model.KindSendEmail:
		return withDetail("Sent email", in.Param("recipient"), "")
	case model.KindCheckStatus:
		if t := in.Param("target"); t != "" {
			return fmt.Sprintf("Checked your %s.", t)
		}
		return "Checked your status."
	case model.KindRunResearch:
		return withDetail("Research finished", in.Param("topic"), "")
	case model.KindSummarizeMeeting:
		return "Meeting summary is ready."
	case model.KindCheckFinance:
		return "Checked your finances."
	case model.KindCheckEnvironment:
		return "Checked current conditions."
	case model.KindRecallContact:
		return withDetail("Found contact", in.Param("person"), "")
	case model.KindSuggestReschedule:
		return withDetail("Conditions look great, consider moving things around", in.Param("condition"), "")
	}
	return fmt.Sprintf("%s completed %s.", r.Capability, in.Kind)
}

func withDetail(verb, what, when string) string {
	s := verb
	if what != "" {
		s += ": " + what
	}
	if when != "" {
		s += " (" + when + ")"
	}
	return s + "."
}

func failureLine(r model.CapabilityResult) string {
	what := strings.TrimSpace(r.Intent.Clause)
	if what == "" {
		what = string(r.Intent.Kind)
	}
	if r.Role == model.RoleSecondary {
		what = fmt.Sprintf("%s for %q", r.Capability, what)
	} else {
		what = fmt.Sprintf("%q (%s)", what, r.Capability)
	}
	return fmt.Sprintf("%s: %s", what, reason(r))
}

func reason(r model.CapabilityResult) string {
	f := r.Failure
	if f == nil {
		switch r.Status {
		case model.StatusTimeout:
			return "timed out"
		case model.StatusSkipped:
			return "skipped"
		}
		return "failed for an unknown reason"
	}
	switch f.Kind {
	case model.FailureTimeout:
		return "timed out"
	case model.FailureSkipped:
		return "skipped, " + f.Message
	case model.FailureUnauthorized:
		return "not authorized, please reconnect the account"
	case model.FailureRateLimited:
		return "rate limited, try again shortly"
	case model.FailureNotFound:
		return "not found"
	case model.FailureInvalidInput:
		if f.Message != "" {
			return "invalid request: " + f.Message
		}
		return "invalid request"
	case model.FailureUnavailable:
		return "service unavailable"
	}
	return f.Error()
}
