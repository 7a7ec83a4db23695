package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"presentos/internal/capability"
	"presentos/internal/model"
	"presentos/internal/notify"
)

// Locker 多实例下保证同一任务只跑一次，由 util.Deduper 实现
type Locker interface {
	AcquireOnce(ctx context.Context, key string) bool
}

type Enqueuer interface {
	Enqueue(ctx context.Context, n model.Notification) (model.Notification, error)
}

type BalanceSource interface {
	Balance(ctx context.Context) (model.ExperienceBalance, error)
}

// ContextSource 由 contextstore.Store 实现
type ContextSource interface {
	Refresh(ctx context.Context) (model.ContextSnapshot, error)
}

// TaskCounter 今天完成的任务数
type TaskCounter interface {
	CompletedToday(ctx context.Context) (int, error)
}

const defaultSummaryHour = 20

type Config struct {
	RefreshInterval time.Duration `yaml:"refresh_interval"`
	// SummaryHour 0-23，未设置时 20 点；0 表示午夜
	SummaryHour *int    `yaml:"summary_hour"`
	MinShare    float64 `yaml:"min_share"`
	Location    string  `yaml:"location"`
}

// Scheduler 后台任务：情境刷新、环境提醒、每晚小结
type Scheduler struct {
	cfg         Config
	summaryHour int
	loc         *time.Location
	context     ContextSource
	balance     BalanceSource
	tasks       TaskCounter
	queue       Enqueuer
	locker      Locker
	logger      *zap.Logger
	now         func() time.Time
}

func New(cfg Config, ctxSrc ContextSource, balance BalanceSource, tasks TaskCounter, queue Enqueuer, locker Locker, logger *zap.Logger) (*Scheduler, error) {
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = time.Minute
	}
	hour := defaultSummaryHour
	if cfg.SummaryHour != nil {
		if *cfg.SummaryHour < 0 || *cfg.SummaryHour > 23 {
			return nil, fmt.Errorf("summary_hour %d out of range 0-23", *cfg.SummaryHour)
		}
		hour = *cfg.SummaryHour
	}
	if cfg.MinShare <= 0 {
		cfg.MinShare = 0.2
	}
	loc := time.UTC
	if cfg.Location != "" {
		l, err := time.LoadLocation(cfg.Location)
		if err != nil {
			return nil, fmt.Errorf("load location %q: %w", cfg.Location, err)
		}
		loc = l
	}
	return &Scheduler{
		cfg:         cfg,
		summaryHour: hour,
		loc:         loc,
		context:     ctxSrc,
		balance:     balance,
		tasks:       tasks,
		queue:       queue,
		locker:      locker,
		logger:      logger,
		now:         time.Now,
	}, nil
}

func (s *Scheduler) WithClock(now func() time.Time) *Scheduler {
	s.now = now
	return s
}

// Start 阻塞直到 ctx 取消
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("Starting scheduler",
		zap.Duration("refresh_interval", s.cfg.RefreshInterval),
		zap.Int("summary_hour", s.summaryHour),
	)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.refreshLoop(ctx)
	}()
	go func() {
		defer wg.Done()
		s.summaryLoop(ctx)
	}()
	wg.Wait()
	s.logger.Info("Scheduler stopped")
}

func (s *Scheduler) refreshLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RefreshInterval)
	defer ticker.Stop()

	s.RefreshContext(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RefreshContext(ctx)
		}
	}
}

// RefreshContext 刷新情境；环境有利时提醒一次（队列按天去重）
func (s *Scheduler) RefreshContext(ctx context.Context) {
	snap, err := s.context.Refresh(ctx)
	if err != nil {
		s.logger.Warn("context refresh incomplete", zap.Error(err))
	}
	if !snap.Valid(model.ContextEnvironment, s.now()) || !snap.Environment.Favorable {
		return
	}
	env := snap.Environment
	action := fmt.Sprintf("Conditions look good between %s and %s.",
		env.Window.Start.In(s.loc).Format("15:04"),
		env.Window.End.In(s.loc).Format("15:04"),
	)
	if _, err := s.queue.Enqueue(ctx, notify.EnvironmentAlert(env.Condition, "", action)); err != nil {
		s.logger.Warn("failed to enqueue environment alert", zap.Error(err))
	}
}

// NextSummary 下一次小结的时间
func (s *Scheduler) NextSummary(now time.Time) time.Time {
	now = now.In(s.loc)
	next := time.Date(now.Year(), now.Month(), now.Day(), s.summaryHour, 0, 0, 0, s.loc)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

func (s *Scheduler) summaryLoop(ctx context.Context) {
	for {
		delay := s.NextSummary(s.now()).Sub(s.now())
		s.logger.Info("evening summary scheduled", zap.Duration("delay", delay))

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		if err := s.EveningSummary(ctx); err != nil {
			s.logger.Error("evening summary failed", zap.Error(err))
		}
	}
}

// EveningSummary builds and enqueues today's summary unless another replica already did.
func (s *Scheduler) EveningSummary(ctx context.Context) error {
	day := s.now().In(s.loc).Format("2006-01-02")
	if s.locker != nil && !s.locker.AcquireOnce(ctx, "evening-summary:"+day) {
		return nil
	}

	b, err := s.balance.Balance(ctx)
	if err != nil {
		return fmt.Errorf("load balance: %w", err)
	}
	count := 0
	if s.tasks != nil {
		n, err := s.tasks.CompletedToday(ctx)
		if err != nil {
			s.logger.Warn("task count unavailable", zap.Error(err))
		} else {
			count = n
		}
	}

	if _, err := s.queue.Enqueue(ctx, notify.EveningSummary(b, count, s.cfg.MinShare)); err != nil {
		return fmt.Errorf("enqueue summary: %w", err)
	}
	s.logger.Info("evening summary enqueued", zap.String("day", day), zap.Int("tasks", count))
	return nil
}

// CapabilityTaskCounter asks the task-management capability for today's completed count.
type CapabilityTaskCounter struct {
	Capability capability.Capability
}

func (c CapabilityTaskCounter) CompletedToday(ctx context.Context) (int, error) {
	resp, err := c.Capability.Invoke(ctx, capability.Request{
		StepID: "scheduler.evening-summary",
		Kind:   model.KindCheckStatus,
		Params: map[string]string{"target": "tasks", "period": "today"},
	})
	if err != nil {
		return 0, err
	}
	var data struct {
		Completed int `json:"completed"`
	}
	if len(resp.Data) > 0 {
		if err := json.Unmarshal(resp.Data, &data); err != nil {
			return 0, fmt.Errorf("decode task count: %w", err)
		}
	}
	return data.Completed, nil
}
