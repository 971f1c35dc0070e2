package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"kahani-story-api/internal/application/story"
	"kahani-story-api/internal/config"
	"kahani-story-api/pkg/logger"
	"kahani-story-api/pkg/metrics"
)

const driverRabbitMQ = "rabbitmq"

// RabbitQueue 基于 RabbitMQ 持久队列的任务投递，实现 story.JobQueue
type RabbitQueue struct {
	conn     *amqp.Connection
	queue    string
	prefetch int

	mu      sync.Mutex
	pubChan *amqp.Channel
}

// NewRabbitQueue 连接 broker 并声明持久队列（含死信交换机）
func NewRabbitQueue(cfg config.RabbitMQConfig) (*RabbitQueue, error) {
	if cfg.Queue == "" {
		cfg.Queue = "story_jobs"
	}
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = 4
	}
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("rabbitmq channel: %w", err)
	}
	if err := declareQueue(ch, cfg.Queue); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}
	return &RabbitQueue{conn: conn, queue: cfg.Queue, prefetch: cfg.Prefetch, pubChan: ch}, nil
}

func declareQueue(ch *amqp.Channel, queue string) error {
	dlx := queue + "_dlx"
	if err := ch.ExchangeDeclare(dlx, amqp.ExchangeDirect, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare dead letter exchange: %w", err)
	}
	if _, err := ch.QueueDeclare(queue+"_dlq", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare dead letter queue: %w", err)
	}
	if err := ch.QueueBind(queue+"_dlq", "dlq", dlx, false, nil); err != nil {
		return fmt.Errorf("bind dead letter queue: %w", err)
	}
	args := amqp.Table{
		"x-dead-letter-exchange":    dlx,
		"x-dead-letter-routing-key": "dlq",
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, args); err != nil {
		return fmt.Errorf("declare queue %s: %w", queue, err)
	}
	return nil
}

var _ story.JobQueue = (*RabbitQueue)(nil)

// Enqueue 以持久消息发布任务
func (q *RabbitQueue) Enqueue(ctx context.Context, task story.Task) error {
	msg, err := newTaskMessage(ctx, task)
	if err != nil {
		return err
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pubChan.PublishWithContext(ctx, "", q.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    msg.ID,
		Timestamp:    time.Now(),
		Type:         msg.Type,
		Body:         body,
	})
}

// Consume 阻塞消费直到 ctx 结束；首次失败重新入队一次，再失败进入死信队列
func (q *RabbitQueue) Consume(ctx context.Context, handler story.TaskHandler) error {
	ch, err := q.conn.Channel()
	if err != nil {
		return fmt.Errorf("rabbitmq consumer channel: %w", err)
	}
	defer ch.Close()

	if err := ch.Qos(q.prefetch, 0, false); err != nil {
		return fmt.Errorf("rabbitmq qos: %w", err)
	}
	deliveries, err := ch.Consume(q.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("rabbitmq consume: %w", err)
	}

	ctx = logger.WithContext(ctx, logger.WorkerKey, "rabbitmq")
	logger.Info(ctx, "rabbitmq consumer started", "queue", q.queue, "prefetch", q.prefetch)
	handle := TaskHandler(handler)

	var wg sync.WaitGroup
	defer wg.Wait()
	sem := make(chan struct{}, q.prefetch)
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("rabbitmq delivery channel closed")
			}
			sem <- struct{}{}
			wg.Add(1)
			go func(d amqp.Delivery) {
				defer func() { <-sem; wg.Done() }()
				q.handleDelivery(ctx, d, handle)
			}(d)
		}
	}
}

func (q *RabbitQueue) handleDelivery(ctx context.Context, d amqp.Delivery, handle MessageHandler) {
	var msg Message
	if err := json.Unmarshal(d.Body, &msg); err != nil {
		logger.Error(ctx, "malformed rabbitmq message", err, "delivery_tag", d.DeliveryTag)
		_ = d.Nack(false, false)
		metrics.QueueProcessed.WithLabelValues(driverRabbitMQ, "dead_letter").Inc()
		return
	}

	ctx = logger.WithContext(ctx, logger.JobIDKey, msg.ID)
	if reqID := msg.GetMetadata("request_id"); reqID != "" {
		ctx = logger.WithContext(ctx, logger.RequestIDKey, reqID)
	}

	if err := handle(ctx, &msg); err != nil {
		requeue := !d.Redelivered && !errors.Is(err, ErrMalformedMessage)
		logger.Error(ctx, "rabbitmq handler failed", err, "requeue", requeue)
		if nackErr := d.Nack(false, requeue); nackErr != nil {
			logger.Error(ctx, "failed to nack message", nackErr)
		}
		status := "dead_letter"
		if requeue {
			status = "retry"
		}
		metrics.QueueProcessed.WithLabelValues(driverRabbitMQ, status).Inc()
		return
	}

	if err := d.Ack(false); err != nil {
		logger.Error(ctx, "failed to ack message", err)
		return
	}
	metrics.QueueProcessed.WithLabelValues(driverRabbitMQ, "success").Inc()
}

// Close 关闭通道与连接
func (q *RabbitQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.pubChan != nil {
		_ = q.pubChan.Close()
	}
	return q.conn.Close()
}
