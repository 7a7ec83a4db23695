package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"presentos/internal/capability"
	"presentos/internal/model"
	"presentos/internal/registry"
	"presentos/pkg/logger"
	"presentos/pkg/metrics"
	"presentos/pkg/otel"
	"presentos/pkg/trace"
)

type Config struct {
	MaxConcurrency int           `yaml:"max_concurrency"`
	RetryBackoff   time.Duration `yaml:"retry_backoff"`
}

// Router 按依赖分波执行计划，同一波内的步骤并发
type Router struct {
	cfg      Config
	registry *registry.Registry
	caps     capability.Set
	logger   *zap.Logger
}

func New(cfg Config, reg *registry.Registry, caps capability.Set, logger *zap.Logger) *Router {
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 8
	}
	if cfg.RetryBackoff < 0 {
		cfg.RetryBackoff = 0
	}
	return &Router{cfg: cfg, registry: reg, caps: caps, logger: logger}
}

// Execute returns one result per step, in plan order. It never returns early
// on a step failure; cancellation of ctx turns running steps into Timeout and
// pending steps into Skipped.
func (r *Router) Execute(ctx context.Context, plan model.CapabilityPlan, snap model.ContextSnapshot) []model.CapabilityResult {
	results := make(map[string]model.CapabilityResult, len(plan.Steps))
	known := make(map[string]bool, len(plan.Steps))
	for _, s := range plan.Steps {
		known[s.ID] = true
	}

	pending := append([]model.PlanStep(nil), plan.Steps...)
	for len(pending) > 0 {
		var wave, rest []model.PlanStep
		for _, s := range pending {
			if depsDone(s, results, known) {
				wave = append(wave, s)
			} else {
				rest = append(rest, s)
			}
		}
		if len(wave) == 0 {
			// 循环依赖
			for _, s := range rest {
				results[s.ID] = skipped(s, "circular dependency")
			}
			break
		}

		out := make([]model.CapabilityResult, len(wave))
		g := new(errgroup.Group)
		g.SetLimit(r.cfg.MaxConcurrency)
		for i, s := range wave {
			if reason, skip := r.skipReason(ctx, s, results, known); skip {
				out[i] = skipped(s, reason)
				continue
			}
			upstream := upstreamOf(s, results)
			g.Go(func() error {
				out[i] = r.runStep(ctx, s, snap, upstream)
				return nil
			})
		}
		_ = g.Wait()

		for i, s := range wave {
			results[s.ID] = out[i]
			metrics.IncrementPlanStep(s.Capability, string(out[i].Status))
		}
		pending = rest
	}

	ordered := make([]model.CapabilityResult, 0, len(plan.Steps))
	for _, s := range plan.Steps {
		ordered = append(ordered, results[s.ID])
	}
	return ordered
}

func depsDone(s model.PlanStep, results map[string]model.CapabilityResult, known map[string]bool) bool {
	for _, d := range s.DependsOn {
		if !known[d] {
			continue
		}
		if _, ok := results[d]; !ok {
			return false
		}
	}
	return true
}

func (r *Router) skipReason(ctx context.Context, s model.PlanStep, results map[string]model.CapabilityResult, known map[string]bool) (string, bool) {
	for _, d := range s.DependsOn {
		if !known[d] {
			return fmt.Sprintf("unknown dependency %s", d), true
		}
		if !results[d].Succeeded() {
			return fmt.Sprintf("dependency %s did not succeed", d), true
		}
	}
	if ctx.Err() != nil {
		return "request budget exceeded before dispatch", true
	}
	return "", false
}

func skipped(s model.PlanStep, reason string) model.CapabilityResult {
	return model.CapabilityResult{
		StepID:     s.ID,
		Capability: s.Capability,
		Intent:     s.Intent,
		Role:       s.Role,
		Status:     model.StatusSkipped,
		Failure:    &model.Failure{Kind: model.FailureSkipped, Message: reason},
	}
}

func upstreamOf(s model.PlanStep, results map[string]model.CapabilityResult) map[string]json.RawMessage {
	if len(s.DependsOn) == 0 {
		return nil
	}
	up := make(map[string]json.RawMessage, len(s.DependsOn))
	for _, d := range s.DependsOn {
		if res, ok := results[d]; ok && res.Payload != nil {
			up[d] = res.Payload
		}
	}
	return up
}

// maxAttempts 有副作用的步骤最多派发一次，只读步骤最多两次
func (r *Router) maxAttempts(s model.PlanStep) int {
	if s.Mutating {
		return 1
	}
	retries := 0
	if c, ok := r.registry.Get(s.Capability); ok {
		retries = c.RetriesFor(s.Intent.Kind)
	}
	if retries > 1 {
		retries = 1
	}
	return 1 + retries
}

func (r *Router) runStep(ctx context.Context, s model.PlanStep, snap model.ContextSnapshot, upstream map[string]json.RawMessage) (res model.CapabilityResult) {
	res = model.CapabilityResult{
		StepID:     s.ID,
		Capability: s.Capability,
		Intent:     s.Intent,
		Role:       s.Role,
	}
	log := logger.WithTrace(ctx, r.logger).With(
		zap.String("step", s.ID),
		zap.String("capability", s.Capability),
	)

	ctx, span := otel.StartSpan(ctx, "router.step",
		attribute.String("step.id", s.ID),
		attribute.String("capability", s.Capability),
		attribute.String("intent.kind", string(s.Intent.Kind)),
		attribute.Bool("mutating", s.Mutating),
	)
	start := time.Now()
	defer func() {
		res.Elapsed = time.Since(start)
		var spanErr error
		if res.Failure != nil {
			spanErr = res.Failure
		}
		span.SetAttributes(attribute.Int("attempts", res.Attempts), attribute.String("status", string(res.Status)))
		otel.EndSpan(span, spanErr)
	}()

	c, ok := r.caps.Get(s.Capability)
	if !ok {
		res.Status = model.StatusFailed
		res.Failure = model.NewFailure(model.FailureUnavailable, "capability %s has no implementation", s.Capability)
		return res
	}

	req := capability.Request{
		StepID:    s.ID,
		RequestID: trace.FromContext(ctx),
		Kind:      s.Intent.Kind,
		Params:    s.Intent.Params,
		Context:   snap,
		Upstream:  upstream,
	}

	limit := r.maxAttempts(s)
	for {
		res.Attempts++
		resp, failure := r.attempt(ctx, c, s, req)
		if failure == nil {
			res.Status = model.StatusSucceeded
			res.Summary = resp.Summary
			res.Payload = payloadOf(resp)
			res.Failure = nil
			return res
		}
		res.Failure = failure
		res.Status = statusFor(failure)

		if res.Attempts >= limit || !failure.Kind.Transient() || ctx.Err() != nil {
			log.Warn("capability step failed",
				zap.String("kind", string(failure.Kind)),
				zap.Int("attempts", res.Attempts),
				zap.Error(failure),
			)
			return res
		}

		metrics.IncrementCapabilityRetry(s.Capability)
		log.Info("retrying read-only capability", zap.String("kind", string(failure.Kind)))
		if r.cfg.RetryBackoff > 0 {
			select {
			case <-ctx.Done():
				res.Status = model.StatusTimeout
				res.Failure = model.NewFailure(model.FailureTimeout, "request budget exceeded")
				return res
			case <-time.After(r.cfg.RetryBackoff):
			}
		}
	}
}

type outcome struct {
	resp capability.Response
	err  error
}

// attempt dispatches once and waits at most the step timeout.
func (r *Router) attempt(ctx context.Context, c capability.Capability, s model.PlanStep, req capability.Request) (capability.Response, *model.Failure) {
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = registry.DefaultTimeout
	}
	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- outcome{err: model.NewFailure(model.FailureUnavailable, "capability panic: %v", p)}
			}
		}()
		resp, err := c.Invoke(actx, req)
		done <- outcome{resp: resp, err: err}
	}()

	var out outcome
	select {
	case out = <-done:
	case <-actx.Done():
		out = outcome{err: actx.Err()}
	}

	var failure *model.Failure
	switch {
	case out.err == nil:
	case ctx.Err() != nil:
		failure = model.NewFailure(model.FailureTimeout, "request budget exceeded")
	case errors.Is(out.err, context.DeadlineExceeded) || actx.Err() != nil:
		failure = model.NewFailure(model.FailureTimeout, "no response within %s", timeout)
	default:
		failure = model.AsFailure(out.err)
	}

	status := "ok"
	if failure != nil {
		status = string(failure.Kind)
	}
	metrics.RecordCapabilityCall(s.Capability, status, time.Since(start))
	return out.resp, failure
}

func statusFor(f *model.Failure) model.StepStatus {
	if f.Kind == model.FailureTimeout {
		return model.StatusTimeout
	}
	return model.StatusFailed
}

func payloadOf(resp capability.Response) json.RawMessage {
	if len(resp.Data) > 0 {
		return resp.Data
	}
	if resp.Summary == "" {
		return nil
	}
	b, _ := json.Marshal(map[string]string{"summary": resp.Summary})
	return b
}
