package wire

import (
	"context"
	"fmt"

	"github.com/google/wire"

	"kahani-story-api/internal/application/story"
	"kahani-story-api/internal/config"
	"kahani-story-api/internal/domain/repository"
	"kahani-story-api/internal/infrastructure/fixture"
	"kahani-story-api/internal/infrastructure/llm"
	"kahani-story-api/internal/infrastructure/messaging"
	"kahani-story-api/internal/infrastructure/persistence/memory"
	"kahani-story-api/internal/infrastructure/persistence/postgres"
	"kahani-story-api/internal/infrastructure/persistence/redis"
	"kahani-story-api/internal/infrastructure/speech"
	"kahani-story-api/internal/infrastructure/storage"
	"kahani-story-api/internal/infrastructure/throttle"
	"kahani-story-api/internal/infrastructure/vision"
	"kahani-story-api/internal/interfaces/http/handler"
	"kahani-story-api/internal/interfaces/http/middleware"
	"kahani-story-api/internal/interfaces/http/router"
	einoobs "kahani-story-api/internal/observability/eino"
	"kahani-story-api/internal/workflow/chain"
	"kahani-story-api/internal/workflow/port"
	"kahani-story-api/internal/workflow/prompt"
	"kahani-story-api/pkg/logger"
)

const (
	driverLocal       = "local"
	driverRedisStream = "redis_stream"
	driverRabbitMQ    = "rabbitmq"

	providerFixture = "fixture"
)

// App api-gateway 进程依赖
type App struct {
	Config       *config.Config
	Router       *router.Router
	Orchestrator *story.Orchestrator
	Janitor      *story.Janitor
	Dispatcher   *Dispatcher
}

// Worker job-worker 进程依赖
type Worker struct {
	Config       *config.Config
	Orchestrator *story.Orchestrator
	Janitor      *story.Janitor
	Dispatcher   *Dispatcher
}

// Dispatcher 投递端及其对应的消费端，按 messaging.driver 只填充一种
type Dispatcher struct {
	Driver string
	Queue  story.JobQueue

	Local  *messaging.LocalQueue
	Rabbit *messaging.RabbitQueue
	// Redis redis_stream 驱动下消费者使用的连接
	Redis *redis.Client
}

// StoreSet 存储与缓存
var StoreSet = wire.NewSet(
	ProvidePostgresClient,
	ProvideRedisClient,
	ProvideStoryJobRepository,
	ProvideAudioStore,
)

// StorySet 故事编排
var StorySet = wire.NewSet(
	ProvideStoryCatalog,
	ProvideCollaborators,
	ProvideDispatcher,
	ProvideOrchestrator,
	ProvideJanitor,
)

// RouterSet HTTP 层
var RouterSet = wire.NewSet(
	ProvideSamples,
	ProvideHealthChecks,
	ProvideHealthHandler,
	ProvideRateLimiter,
	handler.NewStoryHandler,
	handler.NewCatalogHandler,
	wire.Bind(new(handler.StoryService), new(*story.Orchestrator)),
	wire.Struct(new(router.Handlers), "*"),
	router.New,
)

// ProvidePostgresClient storage.driver 不是 postgres 时返回 nil
func ProvidePostgresClient(cfg *config.Config) (*postgres.Client, func(), error) {
	if cfg.Storage.Driver != "postgres" {
		return nil, func() {}, nil
	}
	client, err := postgres.NewClient(&cfg.Database.Postgres)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		_ = client.Close()
	}
	return client, cleanup, nil
}

// ProvideRedisClient cache.redis.enabled 为 false 时返回 nil
func ProvideRedisClient(ctx context.Context, cfg *config.Config) (*redis.Client, func(), error) {
	if !cfg.Cache.Redis.Enabled {
		logger.Info(ctx, "redis disabled")
		return nil, func() {}, nil
	}
	client, err := redis.NewClient(&cfg.Cache.Redis)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		_ = client.Close()
	}
	return client, cleanup, nil
}

// ProvideStoryJobRepository 启用 Redis 时在底层存储前加终态快照缓存
func ProvideStoryJobRepository(cfg *config.Config, pg *postgres.Client, rc *redis.Client) (repository.StoryJobRepository, error) {
	var repo repository.StoryJobRepository
	switch cfg.Storage.Driver {
	case "", "memory":
		repo = memory.NewStoryJobRepository()
	case "postgres":
		if pg == nil {
			return nil, fmt.Errorf("postgres storage requires a database client")
		}
		repo = postgres.NewStoryJobRepository(pg)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}

	if rc != nil {
		repo = redis.NewSnapshotRepository(repo, redis.NewCache(rc), cfg.Cache.Redis.SnapshotTTL)
	}
	return repo, nil
}

// ProvideAudioStore 本地音频目录
func ProvideAudioStore(cfg *config.Config) (*storage.LocalAudioStore, error) {
	return storage.NewLocalAudioStore(cfg.Storage.Audio)
}

// ProvideStoryCatalog 语言、语气、音色目录
func ProvideStoryCatalog(cfg *config.Config) (*config.StoryCatalog, error) {
	return config.NewStoryCatalog(cfg.Story)
}

// ProvideSamples 内置示例
func ProvideSamples() (*fixture.Samples, error) {
	return fixture.LoadSamples()
}

// ProvideCollaborators 按配置选择生成、旁白、视觉实现，并包上限速
func ProvideCollaborators(ctx context.Context, cfg *config.Config, catalog *config.StoryCatalog, audio *storage.LocalAudioStore) (story.Collaborators, error) {
	var generator port.StoryGenerator
	switch cfg.LLM.DefaultProvider {
	case "", providerFixture:
		generator = fixture.NewGenerator(0)
	default:
		if _, ok := cfg.LLM.Providers[cfg.LLM.DefaultProvider]; !ok {
			return story.Collaborators{}, fmt.Errorf("llm provider %q not configured", cfg.LLM.DefaultProvider)
		}
		einoobs.Init()
		generator = chain.NewStoryChain(llm.NewEinoFactory(cfg), cfg.LLM.DefaultProvider)
	}

	var synth speech.Synthesizer
	switch cfg.Speech.Provider {
	case "openai":
		synth = speech.NewOpenAISynthesizer(cfg.Speech.OpenAI)
	case "azure":
		synth = speech.NewAzureSynthesizer(cfg.Speech.Azure)
	case "", providerFixture:
		synth = fixture.NewSynthesizer(0)
	default:
		return story.Collaborators{}, fmt.Errorf("unknown speech provider %q", cfg.Speech.Provider)
	}

	var describer port.ImageDescriber
	switch cfg.Vision.Provider {
	case "openai":
		describer = vision.NewCachedDescriber(vision.NewOpenAIDescriber(cfg.Vision), cfg.Vision.CacheTTL)
	case "", providerFixture:
		describer = fixture.NewDescriber()
	default:
		return story.Collaborators{}, fmt.Errorf("unknown vision provider %q", cfg.Vision.Provider)
	}

	logger.Info(ctx, "story collaborators selected",
		"llm", cfg.LLM.DefaultProvider,
		"speech", cfg.Speech.Provider,
		"vision", cfg.Vision.Provider,
	)

	return story.Collaborators{
		Generator: throttle.Generator(generator, throttle.NewLimiter(cfg.LLM.RateLimit)),
		Narrator:  throttle.Narrator(speech.NewNarrator(synth, audio, catalog), throttle.NewLimiter(cfg.Speech.RateLimit)),
		Describer: throttle.Describer(describer, throttle.NewLimiter(cfg.Vision.RateLimit)),
		Audio:     audio,
	}, nil
}

// ProvideDispatcher 按 messaging.driver 创建任务队列
func ProvideDispatcher(ctx context.Context, cfg *config.Config, rc *redis.Client) (*Dispatcher, func(), error) {
	d := &Dispatcher{Driver: cfg.Messaging.Driver}
	switch cfg.Messaging.Driver {
	case "", driverLocal:
		d.Driver = driverLocal
		d.Local = messaging.NewLocalQueue(cfg.Worker.QueueSize)
		d.Queue = d.Local
	case driverRedisStream:
		if rc == nil {
			return nil, nil, fmt.Errorf("redis_stream messaging requires cache.redis.enabled")
		}
		rs := cfg.Messaging.RedisStream
		d.Redis = rc
		d.Queue = messaging.NewProducer(rc.Redis(), messaging.Stream(rs.Stream), int64(rs.MaxLen))
	case driverRabbitMQ:
		q, err := messaging.NewRabbitQueue(cfg.Messaging.RabbitMQ)
		if err != nil {
			return nil, nil, err
		}
		d.Rabbit = q
		d.Queue = q
		logger.Info(ctx, "job queue ready", "driver", d.Driver)
		return d, func() { _ = q.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown messaging driver %q", cfg.Messaging.Driver)
	}
	logger.Info(ctx, "job queue ready", "driver", d.Driver)
	return d, func() {}, nil
}

// ProvideOrchestrator 组装编排器
func ProvideOrchestrator(cfg *config.Config, catalog *config.StoryCatalog, repo repository.StoryJobRepository, collab story.Collaborators, d *Dispatcher) *story.Orchestrator {
	return story.NewOrchestrator(
		repo,
		story.NewNormalizer(catalog),
		prompt.NewBuilder(prompt.NewRegistry(), catalog),
		collab,
		d.Queue,
		story.OptionsFromConfig(cfg),
	)
}

// ProvideJanitor 过期任务清理与卡死任务收尾
func ProvideJanitor(cfg *config.Config, repo repository.StoryJobRepository, audio *storage.LocalAudioStore, orchestrator *story.Orchestrator) *story.Janitor {
	return story.NewJanitor(repo, audio, cfg.Worker.Retention, cfg.Worker.CleanupInterval).
		WithStallReaper(orchestrator, cfg.Worker.StallTimeout)
}

// ProvideHealthChecks 未启用的依赖以 nil 登记，就绪检查显示为 disabled
func ProvideHealthChecks(pg *postgres.Client, rc *redis.Client) map[string]handler.HealthChecker {
	checks := map[string]handler.HealthChecker{
		"postgres": nil,
		"redis":    nil,
	}
	if pg != nil {
		checks["postgres"] = pg
	}
	if rc != nil {
		checks["redis"] = rc
	}
	return checks
}

// ProvideHealthHandler 健康检查处理器
func ProvideHealthHandler(cfg *config.Config, checks map[string]handler.HealthChecker) *handler.HealthHandler {
	return handler.NewHealthHandler(cfg.App.Version, checks)
}

// ProvideRateLimiter 接口限流依赖 Redis，未启用时返回 nil
func ProvideRateLimiter(ctx context.Context, cfg *config.Config, rc *redis.Client) middleware.RateLimiter {
	if !cfg.Security.RateLimit.Enabled {
		return nil
	}
	if rc == nil {
		logger.Warn(ctx, "rate limit enabled but redis is disabled, requests are not limited")
		return nil
	}
	return redis.NewRateLimiter(rc)
}
