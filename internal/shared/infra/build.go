package infra

import (
	"context"
	"fmt"
	"log"

	"payments-portal/internal/config"
	"payments-portal/internal/shared/eventbus"
	redisbus "payments-portal/internal/shared/eventbus/redis"
	"payments-portal/internal/shared/ratelimit"
	"payments-portal/internal/shared/storage/memstore"
	"payments-portal/internal/shared/storage/mongostore"
)

// New 按配置初始化基础设施
//
//   - database.driver: mongodb → mongostore，memory → memstore
//   - redis.url 非空：事件总线使用 Redis Streams
//   - rate_limit.backend: redis → 限流计数存 Redis，否则进程内存
//
// 任一步失败时关闭已建立的连接并返回错误。
func New(ctx context.Context, cfg *config.Config) (*Infrastructure, error) {
	inf := &Infrastructure{}

	switch cfg.Database.Driver {
	case config.DriverMemory:
		log.Printf("[infra] Using in-memory storage, data is lost on restart")
		inf.Storage = memstore.NewStore()
	default:
		store, err := mongostore.NewStore(ctx, cfg.Database.URI, cfg.Database.Name)
		if err != nil {
			return nil, err
		}
		log.Printf("[infra] Connected to MongoDB database %s", store.DatabaseName())
		inf.Storage = store
	}

	if cfg.Redis.URL != "" {
		client, err := NewRedisClient(ctx, cfg.Redis.URL, cfg.Redis.Password)
		if err != nil {
			inf.Close()
			return nil, err
		}
		inf.Redis = client
		inf.EventBus = redisbus.NewStoreFromClient(client)
	} else {
		inf.EventBus = eventbus.NewLocal()
	}

	switch cfg.RateLimit.Backend {
	case config.BackendRedis:
		if inf.Redis == nil {
			inf.Close()
			return nil, fmt.Errorf("rate limit backend redis requires redis.url")
		}
		window, err := ratelimit.NewRedisWindowStore(inf.Redis, "payments:")
		if err != nil {
			inf.Close()
			return nil, err
		}
		inf.RateLimit = ratelimit.NewRedisStore(inf.Redis, "payments:")
		inf.RateWindow = window
	default:
		inf.RateLimit = ratelimit.NewMemoryStore()
		inf.RateWindow = ratelimit.NewMemoryWindowStore()
	}

	return inf, nil
}
