package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"presentos/internal/model"
	"presentos/internal/notify"
	"presentos/pkg/logger"
	"presentos/pkg/metrics"
)

// ErrLedgerConflict 乐观并发冲突：写入时版本号已变化
var ErrLedgerConflict = errors.New("ledger conflict")

// Store 账本存储，写入以版本号做 compare-and-swap
type Store interface {
	Load(ctx context.Context) (model.ExperienceBalance, error)
	// CompareAndSwap stores next only when the stored version equals expected.
	CompareAndSwap(ctx context.Context, expected int64, next model.ExperienceBalance) error
}

// Enqueuer 余额告警的去向
type Enqueuer interface {
	Enqueue(ctx context.Context, n model.Notification) (model.Notification, error)
}

type Config struct {
	// Awards per capability; secondaries award nothing
	Awards       map[string]int `yaml:"awards"`
	LevelK       float64        `yaml:"level_k"`
	MinSample    int            `yaml:"min_sample"`
	MinShare     float64        `yaml:"min_share"`
	MaxRetries   int            `yaml:"max_retries"`
	RetryBackoff time.Duration  `yaml:"retry_backoff"`
}

func DefaultAwards() map[string]int {
	return map[string]int{
		"task-management":      10,
		"scheduling":           8,
		"messaging":            5,
		"meeting-intelligence": 6,
		"finance":              4,
		"environment":          2,
		"research":             7,
		"relationship-memory":  4,
	}
}

func (c Config) withDefaults() Config {
	awards := DefaultAwards()
	for k, v := range c.Awards {
		awards[k] = v
	}
	c.Awards = awards
	if c.LevelK <= 0 {
		c.LevelK = 50
	}
	if c.MinSample <= 0 {
		c.MinSample = 100
	}
	if c.MinShare <= 0 {
		c.MinShare = 0.2
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 5
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 5 * time.Millisecond
	}
	return c
}

// Ledger 经验账本
type Ledger struct {
	cfg    Config
	store  Store
	alerts Enqueuer
	logger *zap.Logger
}

func New(cfg Config, store Store, alerts Enqueuer, logger *zap.Logger) *Ledger {
	return &Ledger{cfg: cfg.withDefaults(), store: store, alerts: alerts, logger: logger}
}

func (l *Ledger) Balance(ctx context.Context) (model.ExperienceBalance, error) {
	b, err := l.store.Load(ctx)
	if err != nil {
		return model.ExperienceBalance{}, fmt.Errorf("load balance: %w", err)
	}
	b.Level = model.LevelFor(b.Total, l.cfg.LevelK)
	return b, nil
}

// Award adds amount to d atomically, retrying version conflicts a bounded number of times.
func (l *Ledger) Award(ctx context.Context, d model.Dimension, amount int) (model.ExperienceBalance, error) {
	if !d.Valid() {
		return model.ExperienceBalance{}, fmt.Errorf("invalid dimension %q", d)
	}
	if amount < 0 {
		return model.ExperienceBalance{}, fmt.Errorf("negative award %d", amount)
	}
	log := logger.WithTrace(ctx, l.logger)

	var next model.ExperienceBalance
	for attempt := 1; ; attempt++ {
		cur, err := l.store.Load(ctx)
		if err != nil {
			return model.ExperienceBalance{}, fmt.Errorf("load balance: %w", err)
		}
		next = cur.Add(d, amount)
		next.Level = model.LevelFor(next.Total, l.cfg.LevelK)
		next.Version = cur.Version + 1

		err = l.store.CompareAndSwap(ctx, cur.Version, next)
		if err == nil {
			break
		}
		if !errors.Is(err, ErrLedgerConflict) {
			return model.ExperienceBalance{}, fmt.Errorf("store balance: %w", err)
		}
		if attempt >= l.cfg.MaxRetries {
			metrics.IncrementLedgerConflict("dropped")
			log.Error("experience award dropped after repeated conflicts",
				zap.String("dimension", string(d)),
				zap.Int("amount", amount),
				zap.Int("attempts", attempt),
				zap.Int64("last_version", cur.Version),
			)
			return model.ExperienceBalance{}, fmt.Errorf("award %d to %s: %w", amount, d, err)
		}
		metrics.IncrementLedgerConflict("retried")
		select {
		case <-ctx.Done():
			return model.ExperienceBalance{}, ctx.Err()
		case <-time.After(time.Duration(attempt) * l.cfg.RetryBackoff):
		}
	}

	if !next.Consistent() {
		// 不应发生：Add 总是同时更新 Total
		log.Error("experience balance inconsistent", zap.Any("balance", next))
	}
	metrics.AddExperience(string(d), amount)
	l.checkBalance(ctx, next)
	return next, nil
}

// checkBalance 样本足够后任一维度占比过低则告警，去重由通知队列保证
func (l *Ledger) checkBalance(ctx context.Context, b model.ExperienceBalance) {
	if l.alerts == nil || b.Total < l.cfg.MinSample {
		return
	}
	for _, d := range model.Dimensions {
		share := b.Share(d)
		if share >= l.cfg.MinShare {
			continue
		}
		if _, err := l.alerts.Enqueue(ctx, notify.BalanceAlert(d, share)); err != nil {
			logger.WithTrace(ctx, l.logger).Error("failed to enqueue balance alert",
				zap.String("dimension", string(d)),
				zap.Error(err),
			)
		}
	}
}

// AwardForResults awards succeeded primary steps per the capability table.
func (l *Ledger) AwardForResults(ctx context.Context, plan model.CapabilityPlan, results []model.CapabilityResult) ([]model.Award, error) {
	var awards []model.Award
	var errs []error
	for _, res := range results {
		if !res.Succeeded() {
			continue
		}
		step, ok := plan.Step(res.StepID)
		if !ok || step.Role != model.RolePrimary {
			continue
		}
		amount := l.cfg.Awards[step.Capability]
		if amount <= 0 || !step.Dimension.Valid() {
			continue
		}
		if _, err := l.Award(ctx, step.Dimension, amount); err != nil {
			errs = append(errs, err)
			continue
		}
		awards = append(awards, model.Award{
			Dimension:  step.Dimension,
			Amount:     amount,
			Capability: step.Capability,
			StepID:     step.ID,
		})
	}
	return awards, errors.Join(errs...)
}
