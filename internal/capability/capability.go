package capability

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"presentos/internal/model"
)

// Request 发给能力模块的结构化任务
type Request struct {
	StepID    string                     `json:"step_id"`
	RequestID string                     `json:"request_id,omitempty"`
	Kind      model.IntentKind           `json:"kind"`
	Params    map[string]string          `json:"params,omitempty"`
	Context   model.ContextSnapshot      `json:"context"`
	Upstream  map[string]json.RawMessage `json:"upstream,omitempty"`
}

// Response 成功时的载荷；失败以 *model.Failure 返回
type Response struct {
	Summary string          `json:"summary"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Capability is one external module. Invoke returns a *model.Failure on failure.
type Capability interface {
	Name() string
	Invoke(ctx context.Context, req Request) (Response, error)
}

// Set 能力名称 -> 实现
type Set map[string]Capability

func NewSet(caps ...Capability) Set {
	s := make(Set, len(caps))
	for _, c := range caps {
		s[c.Name()] = c
	}
	return s
}

func (s Set) Get(name string) (Capability, bool) {
	c, ok := s[name]
	return c, ok
}

// Covers fails when a registered name has no implementation.
func (s Set) Covers(names []string) error {
	var missing []string
	for _, n := range names {
		if _, ok := s[n]; !ok {
			missing = append(missing, n)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("no implementation for capabilities %v", missing)
	}
	return nil
}

// Func adapts a function, used by tests and the local echo set.
type Func struct {
	N  string
	Fn func(ctx context.Context, req Request) (Response, error)
}

func (f Func) Name() string { return f.N }

func (f Func) Invoke(ctx context.Context, req Request) (Response, error) {
	return f.Fn(ctx, req)
}
