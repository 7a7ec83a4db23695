package mq

import (
	"context"
	"fmt"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

const (
	// ExchangeName 领域事件 topic exchange
	ExchangeName = "presentos.events"
	// DLQExchangeName 处理失败的消息转到这里，队列名为 <routing key>.dlq
	DLQExchangeName = "presentos.events.dlq"
)

// Dial 连接 RabbitMQ；broker 常晚于服务就绪，失败时按线性退避重试 attempts 次
func Dial(ctx context.Context, url string, attempts int) (*amqp091.Connection, error) {
	if attempts <= 0 {
		attempts = 1
	}
	var lastErr error
	for i := 1; i <= attempts; i++ {
		conn, err := amqp091.Dial(url)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		if i == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(i) * time.Second):
		}
	}
	return nil, fmt.Errorf("dial rabbitmq after %d attempts: %w", attempts, lastErr)
}

// declareTopology 声明事件 exchange 与死信 exchange，两者都是 durable topic
func declareTopology(ch *amqp091.Channel) error {
	for _, name := range []string{ExchangeName, DLQExchangeName} {
		if err := ch.ExchangeDeclare(name, amqp091.ExchangeTopic, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare exchange %s: %w", name, err)
		}
	}
	return nil
}

func dlqName(routingKey string) string {
	return routingKey + ".dlq"
}

func declareDeadLetterQueue(ch *amqp091.Channel, routingKey string) error {
	q, err := ch.QueueDeclare(dlqName(routingKey), true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("declare dlq %s: %w", dlqName(routingKey), err)
	}
	if err := ch.QueueBind(q.Name, routingKey, DLQExchangeName, false, nil); err != nil {
		return fmt.Errorf("bind dlq %s: %w", q.Name, err)
	}
	return nil
}

// openChannel 打开 channel 并声明拓扑，失败时关闭连接
func openChannel(conn *amqp091.Connection) (*amqp091.Channel, error) {
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := declareTopology(ch); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}
	return ch, nil
}

// deadLetterPublishing 原始 body 加失败原因与来源队列
func deadLetterPublishing(body []byte, reason, queue string) amqp091.Publishing {
	return amqp091.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp091.Persistent,
		Timestamp:    time.Now(),
		Headers: amqp091.Table{
			"x-original-error": reason,
			"x-failed-at":      queue,
		},
	}
}
