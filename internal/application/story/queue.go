package story

import (
	"context"

	"kahani-story-api/internal/domain/entity"
)

// Task 投递给后台执行的任务消息
type Task struct {
	JobID     string         `json:"job_id"`
	Kind      entity.JobKind `json:"kind"`
	RequestID string         `json:"request_id,omitempty"`
}

// JobQueue 后台执行通道（进程内 worker 池、Redis Stream 或 RabbitMQ）
type JobQueue interface {
	Enqueue(ctx context.Context, task Task) error
}

// TaskHandler 消费端的处理函数
type TaskHandler func(ctx context.Context, task Task) error
