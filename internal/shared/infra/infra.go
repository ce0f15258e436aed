// Package infra 基础设施聚合层
//
// 提供统一的基础设施初始化和依赖注入，包括：
//   - Storage：持久化存储（MongoDB / 内存）
//   - Redis：可选，多实例部署时共享事件流和限流计数
//   - EventBus：付款事件总线（进程内 / Redis Streams）
//   - RateLimit：登录退避计数存储（内存 / Redis）
//   - RateWindow：全局固定窗口限流计数（内存 / Redis）
package infra

import (
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"

	"payments-portal/internal/shared/eventbus"
	"payments-portal/internal/shared/ratelimit"
	"payments-portal/internal/shared/storage"
	"payments-portal/internal/shared/storage/memstore"
)

// Infrastructure 基础设施聚合结构
type Infrastructure struct {
	// Storage 持久化存储
	Storage storage.PersistentStore

	// Redis 未配置时为 nil
	Redis *redis.Client

	// EventBus 付款事件总线
	EventBus eventbus.PaymentEventBus

	// RateLimit 登录退避计数存储
	RateLimit ratelimit.Store

	// RateWindow 全局限流窗口计数
	RateWindow limiter.Store
}

// Close 关闭所有基础设施连接
func (i *Infrastructure) Close() error {
	var lastErr error

	if i.EventBus != nil {
		if err := i.EventBus.Close(); err != nil {
			lastErr = err
		}
	}

	if i.Storage != nil {
		if err := i.Storage.Close(); err != nil {
			lastErr = err
		}
	}

	if i.Redis != nil {
		if err := i.Redis.Close(); err != nil {
			lastErr = err
		}
	}

	return lastErr
}

// NewMemoryInfrastructure 创建纯内存的基础设施（本地开发和测试）
func NewMemoryInfrastructure() *Infrastructure {
	return &Infrastructure{
		Storage:    memstore.NewStore(),
		EventBus:   eventbus.NewLocal(),
		RateLimit:  ratelimit.NewMemoryStore(),
		RateWindow: ratelimit.NewMemoryWindowStore(),
	}
}
