package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"presentos/internal/contextstore"
	"presentos/internal/intent"
	"presentos/internal/ledger"
	"presentos/internal/model"
	"presentos/internal/paei"
	"presentos/internal/router"
	"presentos/internal/synth"
	"presentos/pkg/logger"
	"presentos/pkg/metrics"
	"presentos/pkg/otel"
	"presentos/pkg/trace"
)

const DefaultBudget = 30 * time.Second

// ErrEmptyRequest 空输入
var ErrEmptyRequest = errors.New("empty request")

// Notifier 能力失败通知的去向，由 notify.Queue 实现
type Notifier interface {
	Enqueue(ctx context.Context, n model.Notification) (model.Notification, error)
}

// GoalSource 提供当前最高优先级目标
type GoalSource interface {
	ActiveGoal(ctx context.Context) (*model.Goal, error)
}

type Request struct {
	Text    string        `json:"text"`
	Channel model.Channel `json:"channel"`
	Speaker string        `json:"speaker,omitempty"`
}

type Reply struct {
	Text              string                  `json:"text"`
	DominantDimension model.Dimension         `json:"dominant_dimension,omitempty"`
	ActionTags        []string                `json:"action_tags"`
	ExperienceAwarded []string                `json:"experience_awarded"`
	Balance           model.ExperienceBalance `json:"balance"`
	RequestID         string                  `json:"request_id"`
	Clarification     bool                    `json:"clarification,omitempty"`
	Failures          []string                `json:"failures,omitempty"`
}

type Config struct {
	Budget time.Duration `yaml:"budget"`
}

// Deps 编排所需的各个组件
type Deps struct {
	Resolver    *intent.Resolver
	Context     *contextstore.Store
	Evaluator   *paei.Evaluator
	Router      *router.Router
	Synthesizer *synth.Synthesizer
	Ledger      *ledger.Ledger
	Notifier    Notifier
	Goals       GoalSource
}

// Orchestrator 一次请求的完整流水线：解析、评估、分派、合成、记账
type Orchestrator struct {
	cfg    Config
	deps   Deps
	logger *zap.Logger
	now    func() time.Time
}

func New(cfg Config, deps Deps, logger *zap.Logger) *Orchestrator {
	if cfg.Budget <= 0 {
		cfg.Budget = DefaultBudget
	}
	return &Orchestrator{cfg: cfg, deps: deps, logger: logger, now: time.Now}
}

// Handle never panics; unresolved input yields a clarification reply with no side effects.
func (o *Orchestrator) Handle(ctx context.Context, req Request) (reply Reply, err error) {
	ctx, requestID := trace.Ensure(ctx)
	ctx, cancel := context.WithTimeout(ctx, o.cfg.Budget)
	defer cancel()

	channel := req.Channel
	if channel == "" {
		channel = model.ChannelChat
	}
	log := logger.WithTrace(ctx, o.logger).With(zap.String("channel", string(channel)))

	ctx, span := otel.StartSpan(ctx, "orchestrator.handle",
		attribute.String("channel", string(channel)),
		attribute.String("request_id", requestID),
	)
	start := time.Now()
	outcome := "ok"
	defer func() {
		if r := recover(); r != nil {
			log.Error("orchestration panicked", zap.Any("panic", r), zap.Stack("stack"))
			reply = Reply{RequestID: requestID, ActionTags: []string{}, ExperienceAwarded: []string{}}
			err = fmt.Errorf("orchestration failed: %v", r)
			outcome = "error"
		}
		metrics.RecordOrchestration(string(channel), outcome, time.Since(start))
		otel.EndSpan(span, err)
	}()

	reply, outcome, err = o.handle(ctx, log, req, channel)
	reply.RequestID = requestID
	if err != nil {
		outcome = "error"
		log.Error("orchestration failed", zap.Error(err))
	}
	return reply, err
}

func (o *Orchestrator) handle(ctx context.Context, log *zap.Logger, req Request, channel model.Channel) (Reply, string, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return Reply{}, "error", ErrEmptyRequest
	}

	utterance := model.Utterance{
		Text:       text,
		Channel:    channel,
		ReceivedAt: o.now(),
		Speaker:    req.Speaker,
	}
	intents, err := o.deps.Resolver.Resolve(ctx, utterance)
	if errors.Is(err, intent.ErrUnresolvedIntent) {
		log.Info("utterance unresolved, asking for clarification")
		return o.reply(ctx, log, o.deps.Synthesizer.Clarify()), "unresolved", nil
	}
	if err != nil {
		return Reply{}, "error", fmt.Errorf("resolve intent: %w", err)
	}

	snap := o.deps.Context.Current()
	if o.deps.Evaluator.NeedsFresh(intents, snap) {
		fresh, err := o.deps.Context.Fresh(ctx)
		if err != nil {
			log.Warn("context refresh incomplete, using what we have", zap.Error(err))
		}
		snap = fresh
	}

	scores, plan, err := o.deps.Evaluator.Plan(intents, snap)
	if err != nil {
		return Reply{}, "error", fmt.Errorf("plan: %w", err)
	}
	log.Info("plan built",
		zap.Int("intents", len(intents)),
		zap.Int("steps", len(plan.Steps)),
	)

	results := o.deps.Router.Execute(ctx, plan, snap)

	// 预算耗尽时已成功的步骤仍要记账
	awards, err := o.deps.Ledger.AwardForResults(context.WithoutCancel(ctx), plan, results)
	if err != nil {
		// 记账失败不影响已完成的动作
		log.Error("experience award incomplete", zap.Error(err))
	}

	o.creditGoal(ctx, log, awards)
	o.reportFailures(ctx, log, results)
	o.enqueueFollowUps(ctx, log, results)

	resp := o.deps.Synthesizer.Synthesize(intents, scores, results, awards)
	return o.reply(ctx, log, resp), "ok", nil
}

// reportFailures 每个失败步骤发一条能力失败通知，跳过的不算
func (o *Orchestrator) reportFailures(ctx context.Context, log *zap.Logger, results []model.CapabilityResult) {
	if o.deps.Notifier == nil {
		return
	}
	for _, r := range results {
		if r.Succeeded() || r.Status == model.StatusSkipped || r.Failure == nil {
			continue
		}
		// 预算耗尽后通知仍要写入
		nctx := context.WithoutCancel(ctx)
		if _, err := o.deps.Notifier.Enqueue(nctx, notifyFailure(r)); err != nil {
			log.Warn("failed to enqueue capability failure",
				zap.String("capability", r.Capability),
				zap.Error(err),
			)
		}
	}
}

func (o *Orchestrator) reply(ctx context.Context, log *zap.Logger, resp model.Response) Reply {
	out := Reply{
		Text:              resp.Text,
		DominantDimension: resp.DominantDimension,
		ActionTags:        resp.ActionTags,
		ExperienceAwarded: resp.AwardDescriptions,
		Clarification:     resp.Clarification,
		Failures:          resp.Failures,
	}
	balance, err := o.deps.Ledger.Balance(context.WithoutCancel(ctx))
	if err != nil {
		log.Warn("failed to load balance", zap.Error(err))
	}
	out.Balance = balance
	return out
}

func (o *Orchestrator) Balance(ctx context.Context) (model.ExperienceBalance, error) {
	return o.deps.Ledger.Balance(ctx)
}

// ActiveGoal returns nil when no goal source is configured or no goal is active.
func (o *Orchestrator) ActiveGoal(ctx context.Context) (*model.Goal, error) {
	if o.deps.Goals == nil {
		return nil, nil
	}
	return o.deps.Goals.ActiveGoal(ctx)
}
