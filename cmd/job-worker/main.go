// Package main 异步任务执行器入口（job-worker）
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"kahani-story-api/internal/config"
	"kahani-story-api/internal/infrastructure/messaging"
	"kahani-story-api/internal/wire"
	"kahani-story-api/pkg/logger"
	"kahani-story-api/pkg/tracer"
)

// Version 构建时通过 -ldflags 注入
var Version = "dev"

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.Observability.Logging.Level, cfg.Observability.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdown, err := tracer.Init(ctx, tracer.Config{
		ServiceName: "job-worker",
		Version:     Version,
		Environment: cfg.App.Env,
		Endpoint:    cfg.Observability.Tracing.Endpoint,
		SampleRate:  cfg.Observability.Tracing.SampleRate,
		Enabled:     cfg.Observability.Tracing.Enabled,
	})
	if err != nil {
		logger.Fatal(ctx, "failed to init tracer", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	w, cleanup, err := wire.InitializeWorker(ctx, cfg)
	if err != nil {
		logger.Fatal(ctx, "failed to initialize worker", err)
	}
	defer cleanup()

	if cfg.Storage.Driver == "" || cfg.Storage.Driver == "memory" {
		logger.Warn(ctx, "job-worker uses in-memory storage, jobs submitted to api-gateway are not visible here")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		w.Janitor.Run(gctx)
		return nil
	})

	switch {
	case w.Dispatcher.Redis != nil:
		consumers, err := startStreamConsumers(gctx, cfg, w)
		if err != nil {
			logger.Fatal(ctx, "failed to start consumer", err)
		}
		g.Go(func() error {
			consumers[0].MonitorDLQ(gctx, cfg.Messaging.RedisStream.DLQCheckInterval, 0)
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			for _, c := range consumers {
				c.Stop()
			}
			for _, c := range consumers {
				<-c.Done()
			}
			return nil
		})
	case w.Dispatcher.Rabbit != nil:
		g.Go(func() error {
			return w.Dispatcher.Rabbit.Consume(gctx, w.Orchestrator.Process)
		})
	default:
		logger.Fatal(ctx, "job-worker needs a shared queue", fmt.Errorf("messaging driver %q runs jobs inside api-gateway", w.Dispatcher.Driver))
	}

	log := logger.FromContext(ctx)
	log.Info("job-worker started", "driver", w.Dispatcher.Driver, "concurrency", cfg.Worker.Concurrency)

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error(ctx, "job-worker stopped with error", err)
	}
	log.Info("job-worker shutting down")
}

// startStreamConsumers 每个并发槽位一个消费者，共享同一个消费组
func startStreamConsumers(ctx context.Context, cfg *config.Config, w *wire.Worker) ([]*messaging.Consumer, error) {
	n := cfg.Worker.Concurrency
	if n <= 0 {
		n = 1
	}
	base := hostnameConsumerName()
	consumers := make([]*messaging.Consumer, 0, n)
	for i := 0; i < n; i++ {
		c := messaging.NewConsumer(
			w.Dispatcher.Redis.Redis(),
			messaging.ConsumerConfigFrom(cfg.Messaging.RedisStream, fmt.Sprintf("%s-%d", base, i)),
		)
		c.RegisterHandler(messaging.MessageTypeStoryJob, messaging.TaskHandler(w.Orchestrator.Process))
		if err := c.Start(ctx); err != nil {
			for _, started := range consumers {
				started.Stop()
			}
			return nil, err
		}
		consumers = append(consumers, c)
	}
	return consumers, nil
}

func hostnameConsumerName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}
