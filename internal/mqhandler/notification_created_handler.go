package mqhandler

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"presentos/internal/model"
	"presentos/pkg/logger"
	"presentos/pkg/mq"
)

// Deliverer 把通知推送到外部渠道
type Deliverer interface {
	Channel() string
	Deliver(ctx context.Context, p model.NotificationCreatedPayload) error
}

// Locker 由 util.Deduper 实现
type Locker interface {
	AcquireOnce(ctx context.Context, key string) bool
	Release(ctx context.Context, key string)
}

// AttemptCounter 由 util.RetryCounter 实现
type AttemptCounter interface {
	IncrementAndGet(ctx context.Context, key string) (int64, error)
	Reset(ctx context.Context, key string) error
}

// DeliveryRecorder 由 repository.NotificationRepository 实现
type DeliveryRecorder interface {
	MarkDelivered(ctx context.Context, id, channel string) error
}

type NotificationCreatedHandler struct {
	deliverers []Deliverer
	locker     Locker
	recorder   DeliveryRecorder
	attempts   AttemptCounter
	maxAttempt int64
	minimum    model.Priority
	logger     *zap.Logger
}

func NewNotificationCreatedHandler(
	deliverers []Deliverer,
	locker Locker,
	recorder DeliveryRecorder,
	minimum model.Priority,
	logger *zap.Logger,
) *NotificationCreatedHandler {
	if minimum == "" {
		minimum = model.PriorityLow
	}
	return &NotificationCreatedHandler{
		deliverers: deliverers,
		locker:     locker,
		recorder:   recorder,
		minimum:    minimum,
		logger:     logger,
	}
}

// WithAttemptLimit 某渠道累计失败 max 次后放弃该通知在该渠道的投递
func (h *NotificationCreatedHandler) WithAttemptLimit(counter AttemptCounter, max int) *NotificationCreatedHandler {
	if counter != nil && max > 0 {
		h.attempts, h.maxAttempt = counter, int64(max)
	}
	return h
}

var priorityRank = map[model.Priority]int{
	model.PriorityLow:    0,
	model.PriorityMedium: 1,
	model.PriorityHigh:   2,
}

func (h *NotificationCreatedHandler) Handle(ctx context.Context, raw json.RawMessage) error {
	var p model.NotificationCreatedPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return fmt.Errorf("%w: decode notification.created: %v", mq.ErrPermanent, err)
	}
	if p.NotificationID == "" {
		return fmt.Errorf("%w: notification.created without id", mq.ErrPermanent)
	}
	log := logger.WithTrace(ctx, h.logger).With(
		zap.String("notification_id", p.NotificationID),
		zap.String("type", string(p.Type)),
	)

	if priorityRank[p.Priority] < priorityRank[h.minimum] {
		log.Debug("notification below push priority, skipping")
		return nil
	}

	var firstErr error
	for _, d := range h.deliverers {
		// 至少一次投递，按渠道去重
		key := "notification:" + p.NotificationID + ":" + d.Channel()
		if h.locker != nil && !h.locker.AcquireOnce(ctx, key) {
			continue
		}
		if err := d.Deliver(ctx, p); err != nil {
			if h.exhausted(ctx, log, key, d.Channel()) {
				// 锁不释放，之后的重投直接跳过
				continue
			}
			if h.locker != nil {
				h.locker.Release(ctx, key)
			}
			log.Warn("notification delivery failed", zap.String("channel", d.Channel()), zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if h.attempts != nil {
			if err := h.attempts.Reset(ctx, key); err != nil {
				log.Debug("failed to reset delivery attempts", zap.Error(err))
			}
		}
		if h.recorder != nil {
			if err := h.recorder.MarkDelivered(ctx, p.NotificationID, d.Channel()); err != nil {
				log.Warn("failed to record delivery", zap.String("channel", d.Channel()), zap.Error(err))
			}
		}
		log.Info("notification delivered", zap.String("channel", d.Channel()))
	}
	return firstErr
}

// exhausted 记录一次失败，达到上限时返回 true
func (h *NotificationCreatedHandler) exhausted(ctx context.Context, log *zap.Logger, key, channel string) bool {
	if h.attempts == nil {
		return false
	}
	n, err := h.attempts.IncrementAndGet(ctx, key)
	if err != nil {
		log.Warn("failed to count delivery attempt", zap.String("channel", channel), zap.Error(err))
		return false
	}
	if n < h.maxAttempt {
		return false
	}
	log.Error("giving up on notification delivery",
		zap.String("channel", channel),
		zap.Int64("attempts", n),
	)
	return true
}
