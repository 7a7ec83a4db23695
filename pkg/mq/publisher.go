package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rabbitmq/amqp091-go"

	"presentos/pkg/otel"
	"presentos/pkg/trace"
)

// Publisher 发布领域事件；amqp channel 不是并发安全的，发布时串行
type Publisher struct {
	conn    *amqp091.Connection
	channel *amqp091.Channel
	source  string
	mu      sync.Mutex
}

// NewPublisher source 写入 AppId，便于消费端区分来源进程
func NewPublisher(ctx context.Context, url, source string, dialAttempts int) (*Publisher, error) {
	conn, err := Dial(ctx, url, dialAttempts)
	if err != nil {
		return nil, err
	}
	ch, err := openChannel(conn)
	if err != nil {
		return nil, err
	}
	return &Publisher{conn: conn, channel: ch, source: source}, nil
}

func (p *Publisher) Close() {
	if p.channel != nil {
		_ = p.channel.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
}

// Ping 供 readiness 检查使用
func (p *Publisher) Ping(context.Context) error {
	if p.conn == nil || p.conn.IsClosed() {
		return fmt.Errorf("rabbitmq connection closed")
	}
	return nil
}

// PublishWithContext 以 JSON 发布 payload；request id 与 otel trace 上下文随 header 传递
func (p *Publisher) PublishWithContext(ctx context.Context, routingKey string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", routingKey, err)
	}

	headers := amqp091.Table{}
	if id := trace.FromContext(ctx); id != "" {
		headers[trace.HeaderName()] = id
	}
	ctx, span := otel.MQPublishSpan(ctx, ExchangeName, routingKey, headers)

	p.mu.Lock()
	err = p.channel.PublishWithContext(ctx, ExchangeName, routingKey, false, false, amqp091.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp091.Persistent,
		Headers:      headers,
		AppId:        p.source,
	})
	p.mu.Unlock()

	otel.EndSpan(span, err)
	if err != nil {
		return fmt.Errorf("publish %s: %w", routingKey, err)
	}
	return nil
}
