package messaging

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"kahani-story-api/internal/application/story"
	"kahani-story-api/pkg/logger"
	"kahani-story-api/pkg/metrics"
)

const driverLocal = "local"

// ErrQueueFull 进程内队列已满
var ErrQueueFull = errors.New("local job queue is full")

// LocalQueue 进程内有界队列，由 Run 启动的 worker 池消费
type LocalQueue struct {
	tasks chan story.Task
}

// NewLocalQueue size<=0 时使用 64
func NewLocalQueue(size int) *LocalQueue {
	if size <= 0 {
		size = 64
	}
	return &LocalQueue{tasks: make(chan story.Task, size)}
}

var _ story.JobQueue = (*LocalQueue)(nil)

// Enqueue 不阻塞；队列满时返回 ErrQueueFull
func (q *LocalQueue) Enqueue(ctx context.Context, task story.Task) error {
	select {
	case q.tasks <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrQueueFull
	}
}

// Len 排队中的任务数
func (q *LocalQueue) Len() int { return len(q.tasks) }

// Run 启动 concurrency 个 worker，阻塞直到 ctx 结束
func (q *LocalQueue) Run(ctx context.Context, concurrency int, handler story.TaskHandler) error {
	if concurrency <= 0 {
		concurrency = 1
	}
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < concurrency; i++ {
		worker := i
		g.Go(func() error {
			wctx := logger.WithContext(ctx, logger.WorkerKey, worker)
			for {
				select {
				case <-ctx.Done():
					return nil
				case task := <-q.tasks:
					if err := handler(wctx, task); err != nil {
						logger.Error(wctx, "local worker failed to process job", err, "job_id", task.JobID)
						metrics.QueueProcessed.WithLabelValues(driverLocal, "error").Inc()
						continue
					}
					metrics.QueueProcessed.WithLabelValues(driverLocal, "success").Inc()
				}
			}
		})
	}
	logger.Info(ctx, "local worker pool started", "concurrency", concurrency)
	return g.Wait()
}
