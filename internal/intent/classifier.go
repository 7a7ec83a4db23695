package intent

import (
	"context"
	"math"
	"regexp"
	"strings"

	"presentos/internal/model"
)

// Classifier classifies one clause. Implementations may wrap a model; the
// keyword classifier is the default.
type Classifier interface {
	Classify(ctx context.Context, clause string) (model.Intent, error)
}

type rule struct {
	kind   model.IntentKind
	strong []string
	weak   []string
}

// rules 顺序即平分时的优先级，具体的领域放在通用的 check-status 之前
var rules = []rule{
	{
		kind:   model.KindSummarizeMeeting,
		strong: []string{"meeting summary", "meeting notes", "recap", "minutes", "summarize", "summarise", "transcript"},
		weak:   []string{"meeting", "notes", "recording"},
	},
	{
		kind:   model.KindCheckFinance,
		strong: []string{"budget", "spending", "invoice", "invoices", "bill", "bills", "finance", "finances", "expenses"},
		weak:   []string{"money", "pay", "paid"},
	},
	{
		kind:   model.KindCheckEnvironment,
		strong: []string{"weather", "surf", "kite", "kitesurf", "wind", "forecast", "tide", "waves"},
		weak:   []string{"conditions", "outside", "rain"},
	},
	{
		kind:   model.KindRecallContact,
		strong: []string{"who is", "who's", "contact", "remember", "last talked", "reach out"},
		weak:   []string{"person", "connect"},
	},
	{
		kind:   model.KindRunResearch,
		strong: []string{"research", "look up", "investigate", "search for", "find out"},
		weak:   []string{"find", "search", "explore"},
	},
	{
		kind:   model.KindSendEmail,
		strong: []string{"send email", "send an email", "send a message", "email to", "reply to", "draft", "write to", "message"},
		weak:   []string{"send", "email", "reply"},
	},
	{
		kind:   model.KindScheduleEvent,
		strong: []string{"schedule", "book", "appointment", "sync", "meeting with", "set up a call", "put on my calendar", "reschedule"},
		weak:   []string{"calendar", "meeting", "call"},
	},
	{
		kind:   model.KindCreateTask,
		strong: []string{"task", "todo", "to do", "remind me", "add", "need to", "don't forget"},
		weak:   []string{"finish", "complete", "do"},
	},
	{
		kind:   model.KindCheckStatus,
		strong: []string{"check", "status", "show me", "what's on", "any new", "inbox", "progress", "how many"},
		weak:   []string{"update", "report", "unread"},
	},
}

const (
	strongHit  = 0.5
	weakHit    = 0.2
	extraHit   = 0.15
	targetHit  = 0.15
	confidence = 0.95
)

// KeywordClassifier 规则分类器：命中强关键词得 0.5，每多一次命中加 0.15
type KeywordClassifier struct{}

func NewKeywordClassifier() *KeywordClassifier { return &KeywordClassifier{} }

func (KeywordClassifier) Classify(ctx context.Context, clause string) (model.Intent, error) {
	if err := ctx.Err(); err != nil {
		return model.Intent{}, err
	}
	text := " " + normalize(clause) + " "

	var best model.Intent
	for _, r := range rules {
		score := scoreRule(text, r)
		if score == 0 {
			continue
		}
		params := extractParams(r.kind, clause, text)
		if r.kind == model.KindCheckStatus && params["target"] != "" {
			score += targetHit
		}
		score = math.Min(score, confidence)
		if score > best.Confidence {
			best = model.Intent{Kind: r.kind, Params: params, Confidence: round2(score), Clause: clause}
		}
	}
	if best.Kind == "" {
		return model.Intent{Clause: clause}, nil
	}
	return best, nil
}

func scoreRule(text string, r rule) float64 {
	strong, weak := 0, 0
	for _, kw := range r.strong {
		if strings.Contains(text, " "+kw+" ") {
			strong++
		}
	}
	for _, kw := range r.weak {
		if strings.Contains(text, " "+kw+" ") {
			weak++
		}
	}
	switch {
	case strong > 0:
		return strongHit + extraHit*float64(strong+weak-1)
	case weak > 0:
		return weakHit + 0.05*float64(weak-1)
	}
	return 0
}

func round2(f float64) float64 { return math.Round(f*100) / 100 }

var (
	timeRe   = regexp.MustCompile(`(?i)\b(?:(?:next\s+)?(?:monday|tuesday|wednesday|thursday|friday|saturday|sunday)|today|tonight|tomorrow|this (?:morning|afternoon|evening)|\d{1,2}(?::\d{2})?\s?(?:am|pm)|(?:at\s+)\d{1,2}:\d{2})\b`)
	personRe = regexp.MustCompile(`\b(?:to|with|from|about)\s+([A-Z][a-z]+(?:\s+(?:and\s+)?[A-Z][a-z]+)*)`)
	leadRe   = regexp.MustCompile(`(?i)^\s*(?:please\s+)?(?:schedule|book|set up|create|add|remind me to|make|send|draft|write|research|look up|find out|investigate|search for|summarize|summarise|recap|check)\s+(?:a\s+|an\s+|the\s+|my\s+)?`)
)

var targets = []struct {
	name  string
	words []string
}{
	{"email", []string{"email", "emails", "inbox", "mail", "mails"}},
	{"calendar", []string{"calendar", "schedule", "agenda", "meetings"}},
	{"finance", []string{"budget", "finances", "spending"}},
	{"tasks", []string{"tasks", "todos", "todo", "projects"}},
}

func extractParams(kind model.IntentKind, clause, text string) map[string]string {
	params := make(map[string]string)
	if when := timeRe.FindAllString(clause, -1); len(when) > 0 {
		params["when"] = strings.Join(when, " ")
	}
	if m := personRe.FindStringSubmatch(clause); m != nil {
		switch kind {
		case model.KindScheduleEvent:
			params["participants"] = m[1]
		case model.KindSendEmail:
			params["recipient"] = m[1]
		case model.KindRecallContact:
			params["person"] = m[1]
		}
	}
	switch kind {
	case model.KindCheckStatus:
		for _, t := range targets {
			for _, w := range t.words {
				if strings.Contains(text, " "+w+" ") {
					params["target"] = t.name
					break
				}
			}
			if params["target"] != "" {
				break
			}
		}
	case model.KindScheduleEvent, model.KindCreateTask:
		if title := titleOf(clause); title != "" {
			params["title"] = title
		}
	case model.KindRunResearch:
		if topic := titleOf(clause); topic != "" {
			params["topic"] = topic
		}
	}
	if len(params) == 0 {
		return nil
	}
	return params
}

// titleOf strips the leading verb and time expressions.
func titleOf(clause string) string {
	t := leadRe.ReplaceAllString(clause, "")
	t = timeRe.ReplaceAllString(t, "")
	t = personRe.ReplaceAllString(t, "")
	t = strings.Join(strings.Fields(t), " ")
	t = strings.TrimSuffix(strings.TrimSuffix(t, " on"), " at")
	return strings.TrimSpace(t)
}
