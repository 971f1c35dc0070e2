package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"kahani-story-api/internal/application/story"
	"kahani-story-api/pkg/logger"
	pkgtracer "kahani-story-api/pkg/tracer"
)

var tracer = otel.Tracer("messaging")

// Producer 基于 Redis Stream 的消息生产者，实现 story.JobQueue
type Producer struct {
	client *redis.Client
	stream Stream
	maxLen int64
}

// NewProducer 创建消息生产者
func NewProducer(client *redis.Client, stream Stream, maxLen int64) *Producer {
	if stream == "" {
		stream = DefaultStream
	}
	if maxLen <= 0 {
		maxLen = 100000
	}
	return &Producer{client: client, stream: stream, maxLen: maxLen}
}

var _ story.JobQueue = (*Producer)(nil)

// Publish 发布消息到流
func (p *Producer) Publish(ctx context.Context, msg *Message) (string, error) {
	ctx, span := tracer.Start(ctx, "producer.Publish",
		trace.WithAttributes(
			attribute.String("stream", string(p.stream)),
			attribute.String("message.id", msg.ID),
			attribute.String("message.type", msg.Type),
		))
	defer span.End()

	data, err := json.Marshal(msg)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("failed to marshal message: %w", err)
	}

	result, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: string(p.stream),
		MaxLen: p.maxLen,
		Approx: true,
		Values: map[string]interface{}{
			"data": string(data),
		},
	}).Result()
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("failed to publish message: %w", err)
	}

	span.SetAttributes(attribute.String("stream.message_id", result))
	return result, nil
}

// Enqueue 投递故事任务
func (p *Producer) Enqueue(ctx context.Context, task story.Task) error {
	msg, err := newTaskMessage(ctx, task)
	if err != nil {
		return err
	}
	id, err := p.Publish(ctx, msg)
	if err != nil {
		return err
	}
	logger.Debug(ctx, "story job published", "stream", p.stream, "stream_message_id", id)
	return nil
}

func newTaskMessage(ctx context.Context, task story.Task) (*Message, error) {
	msg, err := NewMessage(task.JobID, MessageTypeStoryJob, task)
	if err != nil {
		return nil, err
	}
	msg.SetMetadata("request_id", task.RequestID)
	msg.SetMetadata("trace_id", pkgtracer.TraceID(ctx))
	msg.SetMetadata("job_kind", string(task.Kind))
	return msg, nil
}

// TaskHandler 把消息载荷解析为 story.Task 后交给 handler
func TaskHandler(handler story.TaskHandler) MessageHandler {
	return func(ctx context.Context, msg *Message) error {
		var task story.Task
		if err := msg.UnmarshalPayload(&task); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformedMessage, err)
		}
		if task.JobID == "" {
			return fmt.Errorf("%w: missing job id", ErrMalformedMessage)
		}
		return handler(ctx, task)
	}
}
