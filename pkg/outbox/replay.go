package outbox

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// replayStore 由 Repository 实现
type replayStore interface {
	GetEventByID(ctx context.Context, id int64) (*Event, error)
	GetFailedEvents(ctx context.Context, limit int) ([]*Event, error)
	MarkAsSent(ctx context.Context, eventID int64) error
	MarkAsFailed(ctx context.Context, eventID int64, maxRetries int) error
}

// ReplayService 手动重放 outbox 事件，一般用于重试耗尽的 failed 事件
type ReplayService struct {
	repo      replayStore
	publisher EventPublisher
	logger    *zap.Logger
}

func NewReplayService(repo *Repository, publisher EventPublisher, logger *zap.Logger) *ReplayService {
	return newReplayService(repo, publisher, logger)
}

func newReplayService(repo replayStore, publisher EventPublisher, logger *zap.Logger) *ReplayService {
	return &ReplayService{repo: repo, publisher: publisher, logger: logger}
}

// ReplayEvent 重新发布单个事件；已发送的事件也会再发一次，消费端按 id 去重
func (s *ReplayService) ReplayEvent(ctx context.Context, eventID int64) error {
	event, err := s.repo.GetEventByID(ctx, eventID)
	if err != nil {
		return err
	}
	return s.replay(ctx, event)
}

func (s *ReplayService) replay(ctx context.Context, event *Event) error {
	if err := publish(ctx, s.publisher, event); err != nil {
		// 保持 failed，不再进入自动重试
		if markErr := s.repo.MarkAsFailed(ctx, event.ID, 1); markErr != nil {
			return errors.Join(err, markErr)
		}
		return err
	}
	if err := s.repo.MarkAsSent(ctx, event.ID); err != nil {
		return fmt.Errorf("event %d published but not marked: %w", event.ID, err)
	}
	return nil
}

// ReplayFailedEvents 返回成功重放的数量，单个失败不影响其余事件
func (s *ReplayService) ReplayFailedEvents(ctx context.Context, limit int) (int, error) {
	events, err := s.repo.GetFailedEvents(ctx, limit)
	if err != nil {
		return 0, err
	}

	replayed := 0
	for _, event := range events {
		if err := s.replay(ctx, event); err != nil {
			s.logger.Warn("replay failed",
				zap.Int64("event_id", event.ID),
				zap.String("routing_key", event.RoutingKey),
				zap.Error(err),
			)
			continue
		}
		replayed++
	}
	s.logger.Info("outbox replay finished", zap.Int("replayed", replayed), zap.Int("candidates", len(events)))
	return replayed, nil
}
