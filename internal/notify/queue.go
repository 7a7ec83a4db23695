package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"presentos/internal/model"
	"presentos/pkg/logger"
	"presentos/pkg/metrics"
	"presentos/pkg/util"
)

var ErrNotFound = errors.New("notification not found")

// Store 持久化通知。Upsert 负责去重：同一天同 (type, subject) 的未读通知只保留一条
type Store interface {
	Upsert(ctx context.Context, n model.Notification, day string) (stored model.Notification, deduplicated bool, err error)
	List(ctx context.Context, f model.NotificationFilter) ([]model.Notification, error)
	MarkRead(ctx context.Context, id string) error
	MarkAllRead(ctx context.Context) (int, error)
	UnreadCount(ctx context.Context) (int, error)
}

type Config struct {
	Retention  int    `yaml:"retention"`
	Location   string `yaml:"location"`
	MaxRetries int    `yaml:"max_retries"`
}

// Queue 通知队列，本身不关心触发来源
type Queue struct {
	store   Store
	loc     *time.Location
	retries int
	logger  *zap.Logger
	now     func() time.Time
}

func NewQueue(cfg Config, store Store, logger *zap.Logger) (*Queue, error) {
	loc := time.UTC
	if cfg.Location != "" {
		l, err := time.LoadLocation(cfg.Location)
		if err != nil {
			return nil, fmt.Errorf("load location %q: %w", cfg.Location, err)
		}
		loc = l
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	return &Queue{store: store, loc: loc, retries: cfg.MaxRetries, logger: logger, now: time.Now}, nil
}

// WithClock overrides the clock used for CreatedAt.
func (q *Queue) WithClock(now func() time.Time) *Queue {
	q.now = now
	return q
}

// Enqueue stores n or refreshes the matching unread entry of the same day.
func (q *Queue) Enqueue(ctx context.Context, n model.Notification) (model.Notification, error) {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = q.now()
	}
	if n.Priority == "" {
		n.Priority = model.PriorityMedium
	}
	n.Read = false
	if err := n.Validate(); err != nil {
		return model.Notification{}, err
	}

	var stored model.Notification
	var dedup bool
	err := q.retry(ctx, "enqueue", func() error {
		var err error
		stored, dedup, err = q.store.Upsert(ctx, n, n.Day(q.loc))
		return err
	})
	if err != nil {
		return model.Notification{}, err
	}

	metrics.IncrementNotification(string(n.Type), dedup)
	logger.WithTrace(ctx, q.logger).Info("notification enqueued",
		zap.String("id", stored.ID),
		zap.String("type", string(stored.Type)),
		zap.String("subject", stored.Subject),
		zap.Bool("deduplicated", dedup),
	)
	return stored, nil
}

// List 按时间倒序
func (q *Queue) List(ctx context.Context, f model.NotificationFilter) ([]model.Notification, error) {
	var out []model.Notification
	err := q.retry(ctx, "list", func() error {
		var err error
		out, err = q.store.List(ctx, f)
		return err
	})
	return out, err
}

func (q *Queue) MarkRead(ctx context.Context, id string) error {
	return q.retry(ctx, "mark_read", func() error {
		return q.store.MarkRead(ctx, id)
	})
}

func (q *Queue) MarkAllRead(ctx context.Context) (int, error) {
	var n int
	err := q.retry(ctx, "mark_all_read", func() error {
		var err error
		n, err = q.store.MarkAllRead(ctx)
		return err
	})
	return n, err
}

func (q *Queue) UnreadCount(ctx context.Context) (int, error) {
	var n int
	err := q.retry(ctx, "unread_count", func() error {
		var err error
		n, err = q.store.UnreadCount(ctx)
		return err
	})
	return n, err
}

// retry 仅对可重试的存储错误做有限次重试
func (q *Queue) retry(ctx context.Context, op string, fn func() error) error {
	var err error
	for attempt := 1; attempt <= q.retries; attempt++ {
		err = fn()
		if err == nil || errors.Is(err, ErrNotFound) {
			return err
		}
		retryable, errType := util.IsRetryableError(err)
		if !retryable || ctx.Err() != nil {
			break
		}
		q.logger.Warn("notification store error, retrying",
			zap.String("op", op),
			zap.String("error_type", errType),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * 20 * time.Millisecond):
		}
	}
	q.logger.Error("notification store error", zap.String("op", op), zap.Error(err))
	return fmt.Errorf("notification %s: %w", op, err)
}
