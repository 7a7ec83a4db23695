package mq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"presentos/pkg/metrics"
	"presentos/pkg/otel"
	"presentos/pkg/trace"
)

// ErrPermanent 标记不可重试的处理错误，消息会被转入死信队列
var ErrPermanent = errors.New("permanent message failure")

type MessageHandler func(ctx context.Context, data json.RawMessage) error

type Consumer struct {
	channel    *amqp091.Channel
	queue      amqp091.Queue
	routingKey string
	name       string
	handler    MessageHandler
	conn       *amqp091.Connection
	logger     *zap.Logger
}

// NewConsumer 声明队列并绑定到 routingKey，同时准备对应的死信队列
func NewConsumer(ctx context.Context, url string, dialAttempts int, queueName, routingKey string, logger *zap.Logger) (*Consumer, error) {
	conn, err := Dial(ctx, url, dialAttempts)
	if err != nil {
		return nil, err
	}
	ch, err := openChannel(conn)
	if err != nil {
		return nil, err
	}

	closeAll := func() {
		ch.Close()
		conn.Close()
	}

	if err := declareDeadLetterQueue(ch, routingKey); err != nil {
		closeAll()
		return nil, err
	}

	q, err := ch.QueueDeclare(queueName, true, false, false, false, nil)
	if err != nil {
		closeAll()
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}

	if err := ch.QueueBind(q.Name, routingKey, ExchangeName, false, nil); err != nil {
		closeAll()
		return nil, fmt.Errorf("failed to bind queue: %w", err)
	}

	if err := ch.Qos(10, 0, false); err != nil {
		closeAll()
		return nil, fmt.Errorf("failed to set qos: %w", err)
	}

	logger.Info("Consumer initialized",
		zap.String("routing_key", routingKey),
		zap.String("queue", queueName),
		zap.String("exchange", ExchangeName),
	)

	return &Consumer{
		conn:       conn,
		channel:    ch,
		queue:      q,
		routingKey: routingKey,
		name:       queueName,
		logger:     logger,
	}, nil
}

func (c *Consumer) SetHandler(h MessageHandler) {
	c.handler = h
}

func (c *Consumer) Close() {
	if c.channel != nil {
		_ = c.channel.Close()
	}
	if c.conn != nil {
		_ = c.conn.Close()
	}
}

// StartConsuming blocks until ctx is cancelled or the delivery channel closes.
func (c *Consumer) StartConsuming(ctx context.Context) error {
	if c.handler == nil {
		return fmt.Errorf("consumer handler not set")
	}

	deliveries, err := c.channel.Consume(
		c.queue.Name,
		c.name,
		false, // 手动ack
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	c.logger.Info("Consumer started consuming messages",
		zap.String("routing_key", c.routingKey),
		zap.String("queue", c.queue.Name),
	)

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("delivery channel closed")
			}
			c.handle(ctx, msg)
		}
	}
}

// handle 保证每条消息都会被 ack 或 nack
func (c *Consumer) handle(ctx context.Context, msg amqp091.Delivery) {
	start := time.Now()
	if id, ok := msg.Headers[trace.HeaderName()].(string); ok && id != "" {
		ctx = trace.WithContext(ctx, id)
	}

	ctx, span := otel.MQConsumeSpan(ctx, c.queue.Name, c.routingKey, msg.Headers)
	var handleErr error
	defer func() {
		otel.EndSpan(span, handleErr)
	}()

	defer func() {
		if r := recover(); r != nil {
			handleErr = fmt.Errorf("panic: %v", r)
			c.logger.Error("Handler panic recovered",
				zap.String("routing_key", c.routingKey),
				zap.Any("panic", r),
			)
			c.deadLetter(ctx, msg, fmt.Sprintf("panic: %v", r))
		}
	}()

	err := c.handler(ctx, msg.Body)
	handleErr = err
	metrics.RecordMQConsumeLatency(c.routingKey, c.queue.Name, time.Since(start))

	switch {
	case err == nil:
		if ackErr := msg.Ack(false); ackErr != nil {
			c.logger.Error("Failed to ack message", zap.String("routing_key", c.routingKey), zap.Error(ackErr))
		}
	case errors.Is(err, ErrPermanent):
		c.logger.Warn("Permanent handler error, dead-lettering",
			zap.String("routing_key", c.routingKey),
			zap.Error(err),
		)
		c.deadLetter(ctx, msg, err.Error())
	default:
		c.logger.Error("Handler error, requeueing",
			zap.String("routing_key", c.routingKey),
			zap.String("queue", c.queue.Name),
			zap.Error(err),
		)
		// 已经重投过的消息不再重新入队，避免无限循环
		requeue := !msg.Redelivered
		if nackErr := msg.Nack(false, requeue); nackErr != nil {
			c.logger.Error("Failed to nack message", zap.String("routing_key", c.routingKey), zap.Error(nackErr))
		}
		if !requeue {
			c.deadLetter(ctx, msg, err.Error())
		}
	}
}

func (c *Consumer) deadLetter(ctx context.Context, msg amqp091.Delivery, reason string) {
	if err := c.channel.PublishWithContext(ctx, DLQExchangeName, c.routingKey, false, false,
		deadLetterPublishing(msg.Body, reason, c.name)); err != nil {
		c.logger.Error("Failed to publish to DLQ", zap.String("routing_key", c.routingKey), zap.Error(err))
	}
	// Nack 之后的 Ack 会返回错误，忽略即可
	_ = msg.Ack(false)
}
