package model

import (
	"fmt"
	"time"
)

// Channel 请求来源
type Channel string

const (
	ChannelChat  Channel = "chat"
	ChannelVoice Channel = "voice"
	ChannelBot   Channel = "bot"
)

func ParseChannel(s string) (Channel, error) {
	switch Channel(s) {
	case ChannelChat, ChannelVoice, ChannelBot:
		return Channel(s), nil
	case "":
		return ChannelChat, nil
	}
	return "", fmt.Errorf("unknown channel %q", s)
}

// Utterance 一次用户输入，创建后不可修改
type Utterance struct {
	Text       string
	Channel    Channel
	ReceivedAt time.Time
	Speaker    string
}

// IntentKind 封闭枚举
type IntentKind string

const (
	KindCreateTask        IntentKind = "create-task"
	KindScheduleEvent     IntentKind = "schedule-event"
	KindSendEmail         IntentKind = "send-email"
	KindRunResearch       IntentKind = "run-research"
	KindCheckStatus       IntentKind = "check-status"
	KindSummarizeMeeting  IntentKind = "summarize-meeting"
	KindCheckFinance      IntentKind = "check-finance"
	KindCheckEnvironment  IntentKind = "check-environment"
	KindRecallContact     IntentKind = "recall-contact"
	KindSuggestReschedule IntentKind = "suggest-reschedule"
)

// IntentKinds every kind the resolver or evaluator can produce.
var IntentKinds = []IntentKind{
	KindCreateTask,
	KindScheduleEvent,
	KindSendEmail,
	KindRunResearch,
	KindCheckStatus,
	KindSummarizeMeeting,
	KindCheckFinance,
	KindCheckEnvironment,
	KindRecallContact,
	KindSuggestReschedule,
}

func (k IntentKind) Valid() bool {
	for _, v := range IntentKinds {
		if v == k {
			return true
		}
	}
	return false
}

// Intent 从一个子句中解析出的结构化意图
type Intent struct {
	Kind       IntentKind        `json:"kind"`
	Params     map[string]string `json:"params,omitempty"`
	Confidence float64           `json:"confidence"`
	Clause     string            `json:"clause"`
	// Index 子句在原文中的顺序
	Index int `json:"index"`
	// Injected 由评估器注入的低优先级意图
	Injected bool `json:"injected,omitempty"`
}

func (i Intent) Param(name string) string {
	if i.Params == nil {
		return ""
	}
	return i.Params[name]
}
