package registry

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"presentos/internal/model"
)

const DefaultTimeout = 10 * time.Second

// 固定的能力模块名称
const (
	TaskManagement      = "task-management"
	Scheduling          = "scheduling"
	Messaging           = "messaging"
	MeetingIntelligence = "meeting-intelligence"
	Finance             = "finance"
	Environment         = "environment"
	Research            = "research"
	RelationshipMemory  = "relationship-memory"
	DecisionLog         = "decision-log"
	ParticipantNotify   = "participant-notify"
)

var ErrNoCapability = errors.New("no capability registered for intent")

// Contract 能力模块调用约定
type Contract struct {
	Name string `yaml:"name"`
	// Serves intent kinds handled as primary; "check-status/email" narrows a kind by its target param
	Serves []string `yaml:"serves"`
	// Mutating 有副作用；ReadOnly 中的 kind 例外
	Mutating bool               `yaml:"mutating"`
	ReadOnly []model.IntentKind `yaml:"read_only"`
	Timeout  time.Duration      `yaml:"timeout"`
	// Retries for read-only invocations, capped at 1
	Retries   int    `yaml:"retries"`
	Secondary bool   `yaml:"secondary"`
	Endpoint  string `yaml:"endpoint"`
}

// MutatingFor reports whether invoking the capability for kind has side effects.
func (c Contract) MutatingFor(kind model.IntentKind) bool {
	if !c.Mutating {
		return false
	}
	for _, k := range c.ReadOnly {
		if k == kind {
			return false
		}
	}
	return true
}

// RetriesFor 有副作用的调用永不重试
func (c Contract) RetriesFor(kind model.IntentKind) int {
	if c.MutatingFor(kind) {
		return 0
	}
	return c.Retries
}

// Registry 静态映射：能力名称 -> 调用约定，启动后只读
type Registry struct {
	contracts map[string]Contract
	byKind    map[model.IntentKind]string
	byTarget  map[string]string
}

// New builds a registry. Later contracts with the same name replace earlier ones.
func New(contracts []Contract) (*Registry, error) {
	r := &Registry{
		contracts: make(map[string]Contract, len(contracts)),
		byKind:    make(map[model.IntentKind]string),
		byTarget:  make(map[string]string),
	}
	for _, c := range contracts {
		if c.Name == "" {
			return nil, fmt.Errorf("capability contract without name")
		}
		r.contracts[c.Name] = normalize(c)
	}

	for _, name := range r.Names() {
		for _, route := range r.contracts[name].Serves {
			kindStr, target, _ := strings.Cut(route, "/")
			k := model.IntentKind(kindStr)
			if !k.Valid() {
				return nil, fmt.Errorf("capability %s: unknown intent kind %q", name, kindStr)
			}
			if target != "" {
				r.byTarget[targetKey(k, target)] = name
				continue
			}
			if prev, ok := r.byKind[k]; ok && prev != name {
				return nil, fmt.Errorf("intent kind %s mapped to both %s and %s", k, prev, name)
			}
			r.byKind[k] = name
		}
	}
	return r, nil
}

func normalize(c Contract) Contract {
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.Retries < 0 {
		c.Retries = 0
	}
	if c.Retries > 1 {
		c.Retries = 1
	}
	return c
}

func targetKey(k model.IntentKind, target string) string {
	return string(k) + "/" + target
}

func (r *Registry) Get(name string) (Contract, bool) {
	c, ok := r.contracts[name]
	return c, ok
}

// Names sorted capability names.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.contracts))
	for n := range r.contracts {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// ForIntent resolves the primary capability for an intent, honouring its target param.
func (r *Registry) ForIntent(in model.Intent) (Contract, error) {
	if t := in.Param("target"); t != "" {
		if name, ok := r.byTarget[targetKey(in.Kind, t)]; ok {
			return r.contracts[name], nil
		}
	}
	if name, ok := r.byKind[in.Kind]; ok {
		return r.contracts[name], nil
	}
	return Contract{}, fmt.Errorf("%w: %s", ErrNoCapability, in.Kind)
}

// Validate fails when any kind has no default capability.
func (r *Registry) Validate(kinds []model.IntentKind) error {
	var missing []string
	for _, k := range kinds {
		if _, ok := r.byKind[k]; !ok {
			missing = append(missing, string(k))
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %v", ErrNoCapability, missing)
	}
	return nil
}

// ValidateAll 包括只由评估器注入的 suggest-reschedule
func (r *Registry) ValidateAll() error {
	return r.Validate(model.IntentKinds)
}

// Defaults 八个能力模块加两个次要能力
func Defaults() []Contract {
	return []Contract{
		{Name: TaskManagement, Serves: []string{"create-task", "check-status"}, Mutating: true, ReadOnly: []model.IntentKind{model.KindCheckStatus}, Retries: 1},
		{Name: Scheduling, Serves: []string{"schedule-event", "suggest-reschedule", "check-status/calendar"}, Mutating: true, ReadOnly: []model.IntentKind{model.KindCheckStatus, model.KindSuggestReschedule}, Retries: 1},
		{Name: Messaging, Serves: []string{"send-email", "check-status/email"}, Mutating: true, ReadOnly: []model.IntentKind{model.KindCheckStatus}, Retries: 1},
		{Name: MeetingIntelligence, Serves: []string{"summarize-meeting"}, Retries: 1},
		{Name: Finance, Serves: []string{"check-finance", "check-status/finance"}, Retries: 1},
		{Name: Environment, Serves: []string{"check-environment"}, Retries: 1},
		{Name: Research, Serves: []string{"run-research"}, Retries: 1, Timeout: 20 * time.Second},
		{Name: RelationshipMemory, Serves: []string{"recall-contact"}, Retries: 1},
		{Name: DecisionLog, Secondary: true, Mutating: true},
		{Name: ParticipantNotify, Secondary: true, Mutating: true},
	}
}
