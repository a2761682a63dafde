// Package wire 手工组装应用依赖
package wire

import (
	"context"
	"time"

	"drm-scribe-orchestra/internal/application/orchestrator"
	"drm-scribe-orchestra/internal/application/quota"
	"drm-scribe-orchestra/internal/config"
	"drm-scribe-orchestra/internal/domain/service"
	"drm-scribe-orchestra/internal/infrastructure/persistence/postgres"
	"drm-scribe-orchestra/internal/infrastructure/persistence/redis"
	"drm-scribe-orchestra/internal/infrastructure/realtime"
	"drm-scribe-orchestra/internal/interfaces/http/handler"
	"drm-scribe-orchestra/internal/interfaces/http/middleware"
	"drm-scribe-orchestra/internal/interfaces/http/router"
	einoobs "drm-scribe-orchestra/internal/observability/eino"
	"drm-scribe-orchestra/internal/workflow/prompt"
	"drm-scribe-orchestra/pkg/logger"
)

// janitorInterval 过期会话的清理周期
const janitorInterval = time.Minute

// App API 网关的顶层依赖
type App struct {
	Router       *router.Router
	Orchestrator *orchestrator.Orchestrator
}

// DataLayer 数据层依赖容器；未启用的组件为 nil
type DataLayer struct {
	RedisClient *redis.Client
	PgClient    *postgres.Client
}

// InitializeDataLayer 初始化数据层
func InitializeDataLayer(ctx context.Context, cfg *config.Config) (*DataLayer, func(), error) {
	redisClient, cleanupRedis, err := ProvideRedisClient(cfg)
	if err != nil {
		return nil, nil, err
	}
	pgClient, cleanupPg, err := ProvidePostgresClient(ctx, cfg)
	if err != nil {
		cleanupRedis()
		return nil, nil, err
	}
	cleanup := func() {
		cleanupPg()
		cleanupRedis()
	}
	return &DataLayer{RedisClient: redisClient, PgClient: pgClient}, cleanup, nil
}

// InitializeApp 初始化 API 网关：编排器、SSE、通知流、用量台账与全部路由
func InitializeApp(ctx context.Context, cfg *config.Config, version string) (*App, func(), error) {
	data, cleanupData, err := InitializeDataLayer(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	recorder := ProvideUsageRecorder(data.PgClient)
	initCallbacks(recorder)

	registry := prompt.NewRegistry()
	gen := ProvideContentGenerator(cfg, registry)
	invoker := ProvideInvoker(cfg, gen)

	hub := realtime.NewHub()
	producer := ProvideMessagingProducer(cfg, data.RedisClient)
	store := ProvideSessionStore(cfg, data.RedisClient)
	orc := ProvideOrchestrator(cfg, invoker, registry, store, ProvideNotifier(cfg, hub, producer))

	janitorCtx, stopJanitor := context.WithCancel(context.WithoutCancel(ctx))
	go orc.RunJanitor(janitorCtx, janitorInterval, cfg.Session.TTL)

	handlers := router.Handlers{
		Health:   handler.NewHealthHandler(version, healthChecks(data)),
		Session:  handler.NewSessionHandler(orc),
		Stream:   handler.NewStreamHandler(orc, hub),
		Function: handler.NewFunctionHandler(gen),
		Catalog:  handler.NewCatalogHandler(),
	}
	if recorder != nil {
		handlers.Usage = handler.NewUsageHandler(recorder, cfg.Generation.ProjectID)
	}

	r := router.New(cfg, handlers, rateLimiter(data.RedisClient))
	logger.Info(ctx, "app initialized",
		"invoker", invokerKind(invoker),
		"session_store", cfg.Session.Store,
		"redis", data.RedisClient != nil,
		"postgres", data.PgClient != nil,
		"notification_stream", producer != nil,
	)

	cleanup := func() {
		stopJanitor()
		cleanupData()
	}
	return &App{Router: r, Orchestrator: orc}, cleanup, nil
}

// InitializeFunction 初始化独立部署的生成函数：只暴露生成端点与健康检查
func InitializeFunction(ctx context.Context, cfg *config.Config, version string) (*router.Router, func(), error) {
	data, cleanupData, err := InitializeDataLayer(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	initCallbacks(ProvideUsageRecorder(data.PgClient))

	gen := ProvideContentGenerator(cfg, prompt.NewRegistry())
	r := router.New(cfg, router.Handlers{
		Health:   handler.NewHealthHandler(version, healthChecks(data)),
		Function: handler.NewFunctionHandler(gen),
	}, rateLimiter(data.RedisClient))
	return r, cleanupData, nil
}

// initCallbacks 注册 Eino 全局回调；未启用用量台账时只采集指标与追踪
func initCallbacks(recorder *quota.LLMUsageRecorder) {
	if recorder == nil {
		einoobs.Init(nil)
		return
	}
	einoobs.Init(recorder)
}

func healthChecks(data *DataLayer) map[string]handler.HealthChecker {
	checks := make(map[string]handler.HealthChecker, 2)
	if data.RedisClient != nil {
		checks["redis"] = data.RedisClient
	}
	if data.PgClient != nil {
		checks["postgres"] = data.PgClient
	}
	return checks
}

func rateLimiter(client *redis.Client) middleware.RateLimiter {
	if client == nil {
		return nil
	}
	return redis.NewRateLimiter(client)
}

func invokerKind(inv service.ContentInvoker) string {
	if _, ok := inv.(*orchestrator.LocalInvoker); ok {
		return "local"
	}
	return "remote"
}
