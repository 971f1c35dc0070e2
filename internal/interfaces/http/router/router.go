// Package router 提供 HTTP 路由配置
package router

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"kahani-story-api/internal/config"
	"kahani-story-api/internal/interfaces/http/handler"
	"kahani-story-api/internal/interfaces/http/middleware"
)

// Handlers 路由依赖的处理器
type Handlers struct {
	Health  *handler.HealthHandler
	Story   *handler.StoryHandler
	Catalog *handler.CatalogHandler
}

// Router HTTP 路由器
type Router struct {
	engine  *gin.Engine
	cfg     *config.Config
	limiter middleware.RateLimiter
}

// New 创建新的路由器；limiter 为 nil 时不限流
func New(cfg *config.Config, handlers Handlers, limiter middleware.RateLimiter) *Router {
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := &Router{
		engine:  gin.New(),
		cfg:     cfg,
		limiter: limiter,
	}
	r.setupMiddleware()
	r.setupRoutes(handlers)
	return r
}

// Engine 返回 Gin Engine
func (r *Router) Engine() *gin.Engine {
	return r.engine
}

func (r *Router) setupMiddleware() {
	r.engine.Use(middleware.Recovery())
	r.engine.Use(middleware.RequestID())

	r.engine.Use(middleware.CORS(middleware.CORSConfig{
		AllowedOrigins: r.cfg.Security.CORS.AllowedOrigins,
		AllowedMethods: r.cfg.Security.CORS.AllowedMethods,
		AllowedHeaders: r.cfg.Security.CORS.AllowedHeaders,
	}))

	skip := []string{"/health", "/ready", "/live", r.metricsPath()}
	if base := r.cfg.Storage.Audio.BaseURL; base != "" {
		skip = append(skip, base)
	}

	if r.cfg.Observability.Tracing.Enabled {
		r.engine.Use(middleware.Trace(r.cfg.App.Name, skip...))
		r.engine.Use(middleware.TraceContext())
	}

	if r.cfg.Observability.Metrics.Enabled {
		r.engine.Use(middleware.Metrics(skip...))
	}
}

func (r *Router) metricsPath() string {
	if p := r.cfg.Observability.Metrics.Path; p != "" {
		return p
	}
	return "/metrics"
}

func (r *Router) setupRoutes(h Handlers) {
	r.engine.GET("/health", h.Health.Health)
	r.engine.GET("/ready", h.Health.Ready)
	r.engine.GET("/live", h.Health.Live)

	if r.cfg.Observability.Metrics.Enabled {
		r.engine.GET(r.metricsPath(), gin.WrapH(promhttp.Handler()))
	}

	audio := r.cfg.Storage.Audio
	if audio.Dir != "" && audio.BaseURL != "" {
		r.engine.Static(audio.BaseURL, audio.Dir)
	}

	v1 := r.engine.Group("/v1")
	v1.Use(middleware.RateLimit(middleware.RateLimitConfig{
		Enabled: r.cfg.Security.RateLimit.Enabled,
		Limit:   r.cfg.Security.RateLimit.Limit,
		Window:  r.cfg.Security.RateLimit.Window,
	}, r.limiter))

	stories := v1.Group("/stories")
	{
		stories.POST("", h.Story.SubmitStory)
		stories.GET("", h.Story.ListStories)
		stories.GET("/:id", h.Story.GetStory)
		stories.DELETE("/:id", h.Story.DeleteStory)
		stories.GET("/:id/events", h.Story.StreamEvents)
		stories.POST("/:id/narrations", h.Story.Renarrate)
		stories.GET("/:id/narrations", h.Story.ListNarrations)
	}

	v1.GET("/catalog", h.Catalog.GetCatalog)
	voices := v1.Group("/voices")
	{
		voices.GET("", h.Catalog.ListVoices)
		voices.GET("/presets", h.Catalog.ListVoicePresets)
		voices.GET("/emotions", h.Catalog.ListEmotions)
	}
	v1.GET("/samples", h.Catalog.ListSamples)
}
