package wire

import (
	"context"
	"net/http"
	"time"

	"drm-scribe-orchestra/internal/application/content"
	"drm-scribe-orchestra/internal/application/orchestrator"
	"drm-scribe-orchestra/internal/application/quota"
	"drm-scribe-orchestra/internal/config"
	"drm-scribe-orchestra/internal/domain/repository"
	"drm-scribe-orchestra/internal/domain/service"
	"drm-scribe-orchestra/internal/infrastructure/llm"
	"drm-scribe-orchestra/internal/infrastructure/messaging"
	"drm-scribe-orchestra/internal/infrastructure/persistence/memory"
	"drm-scribe-orchestra/internal/infrastructure/persistence/postgres"
	"drm-scribe-orchestra/internal/infrastructure/persistence/redis"
	"drm-scribe-orchestra/internal/infrastructure/realtime"
	"drm-scribe-orchestra/internal/infrastructure/remote"
	"drm-scribe-orchestra/internal/workflow/prompt"
	"drm-scribe-orchestra/pkg/logger"
)

// notifyTimeout 单条通知写入 Redis Stream 的超时
const notifyTimeout = 2 * time.Second

// ProvideRedisClient 创建 Redis 客户端；未启用时返回 nil
func ProvideRedisClient(cfg *config.Config) (*redis.Client, func(), error) {
	if !cfg.Cache.Redis.Enabled {
		return nil, func() {}, nil
	}
	client, err := redis.NewClient(&cfg.Cache.Redis)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		if err := client.Close(); err != nil {
			logger.Warn(context.Background(), "failed to close redis client", "error", err.Error())
		}
	}
	return client, cleanup, nil
}

// ProvidePostgresClient 创建 PostgreSQL 客户端并迁移用量表；未启用时返回 nil
func ProvidePostgresClient(ctx context.Context, cfg *config.Config) (*postgres.Client, func(), error) {
	if !cfg.Database.Postgres.Enabled {
		return nil, func() {}, nil
	}
	client, err := postgres.NewClient(&cfg.Database.Postgres)
	if err != nil {
		return nil, nil, err
	}
	if err := client.Migrate(ctx); err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	cleanup := func() {
		if err := client.Close(); err != nil {
			logger.Warn(context.Background(), "failed to close postgres client", "error", err.Error())
		}
	}
	return client, cleanup, nil
}

// ProvideMessagingProducer 创建 Redis Stream 生产者；未启用或无 Redis 时返回 nil
func ProvideMessagingProducer(cfg *config.Config, client *redis.Client) *messaging.Producer {
	if !cfg.Messaging.RedisStream.Enabled || client == nil {
		return nil
	}
	return messaging.NewProducer(client.Redis(), messaging.Stream(cfg.Messaging.RedisStream.Stream), int64(cfg.Messaging.RedisStream.MaxLen))
}

// ProvideSessionStore 按配置选择会话快照存储
func ProvideSessionStore(cfg *config.Config, client *redis.Client) repository.SessionStore {
	if cfg.Session.Store == "redis" {
		if client != nil {
			return redis.NewSessionStore(client, cfg.Session.KeyPrefix, cfg.Session.TTL)
		}
		logger.Warn(context.Background(), "session.store is redis but redis is disabled; falling back to memory")
	}
	return memory.NewSessionStore(cfg.Session.TTL)
}

// ProvideUsageRecorder 创建用量记录器；未启用 PostgreSQL 时返回 nil
func ProvideUsageRecorder(pg *postgres.Client) *quota.LLMUsageRecorder {
	if pg == nil {
		return nil
	}
	return quota.NewLLMUsageRecorder(postgres.NewLLMUsageEventRepository(pg))
}

// ProvideContentGenerator 创建进程内生成器
func ProvideContentGenerator(cfg *config.Config, registry *prompt.Registry) *content.Generator {
	factory := llm.NewEinoFactory(&cfg.LLM)
	provider := cfg.LLM.DefaultProvider
	providerCfg := cfg.LLM.Providers[provider]
	return content.NewGenerator(factory, registry, content.Options{
		Provider:    provider,
		Model:       factory.ModelName(provider),
		Temperature: providerCfg.Temperature,
	})
}

// ProvideInvoker 配置了远程函数地址时走 HTTP，否则直接调用进程内生成器
func ProvideInvoker(cfg *config.Config, gen *content.Generator) service.ContentInvoker {
	if cfg.Generation.FunctionURL == "" {
		return orchestrator.NewLocalInvoker(gen)
	}
	return remote.NewClient(remote.Config{
		URL:     cfg.Generation.FunctionURL,
		APIKey:  cfg.Generation.FunctionAPIKey,
		Timeout: cfg.Generation.HTTPTimeout,
	}, &http.Client{Timeout: cfg.Generation.HTTPTimeout})
}

// ProvideNotifier 把编排通知同时推给 SSE Hub 与 Redis Stream
func ProvideNotifier(cfg *config.Config, hub *realtime.Hub, producer *messaging.Producer) orchestrator.Notifier {
	notifiers := orchestrator.MultiNotifier{HubNotifier(hub)}
	if producer != nil {
		notifiers = append(notifiers, StreamNotifier(producer, cfg.Generation.ProjectID))
	}
	return notifiers
}

// HubNotifier 以会话 ID 为频道广播通知
func HubNotifier(hub *realtime.Hub) orchestrator.Notifier {
	return orchestrator.NotifierFunc(func(ctx context.Context, n orchestrator.Notification) {
		hub.Broadcast(ctx, realtime.Event{Channel: n.SessionID, Name: string(n.Kind), Data: n})
	})
}

// StreamNotifier 把通知追加到 Redis Stream；失败只记录日志
func StreamNotifier(producer *messaging.Producer, projectID string) orchestrator.Notifier {
	return orchestrator.NotifierFunc(func(ctx context.Context, n orchestrator.Notification) {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
		defer cancel()
		if _, err := producer.PublishEvent(ctx, string(n.Kind), projectID, n.SessionID, n); err != nil {
			logger.Warn(ctx, "failed to publish notification", "session_id", n.SessionID, "kind", string(n.Kind), "error", err.Error())
		}
	})
}

// ProvideOrchestrator 创建编排器
func ProvideOrchestrator(cfg *config.Config, invoker service.ContentInvoker, registry *prompt.Registry, store repository.SessionStore, notifier orchestrator.Notifier) *orchestrator.Orchestrator {
	return orchestrator.New(invoker, registry, store, notifier, orchestrator.Config{
		ProjectID:       cfg.Generation.ProjectID,
		Mode:            cfg.Generation.Mode,
		MaxConcurrency:  cfg.Generation.MaxConcurrency,
		MissingUpstream: cfg.Generation.MissingUpstream,
	})
}
