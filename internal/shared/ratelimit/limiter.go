package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"
)

// windowPrefix 全局限流计数键前缀
const windowPrefix = "rl"

// NewMemoryWindowStore 进程内固定窗口计数
func NewMemoryWindowStore() limiter.Store {
	return memory.NewStoreWithOptions(limiter.StoreOptions{
		Prefix:          windowPrefix,
		CleanUpInterval: time.Minute,
	})
}

// NewRedisWindowStore 多实例共享的固定窗口计数，prefix 与 RedisStore 保持一致
func NewRedisWindowStore(client *redis.Client, prefix string) (limiter.Store, error) {
	store, err := sredis.NewStoreWithOptions(client, limiter.StoreOptions{
		Prefix: prefix + windowPrefix,
	})
	if err != nil {
		return nil, fmt.Errorf("ratelimit: redis window store: %w", err)
	}
	return store, nil
}

// Limiter 固定窗口限流：每个 key 在 window 内最多 max 次请求
type Limiter struct {
	inner *limiter.Limiter
}

// Decision 一次限流判定结果
type Decision struct {
	Allowed   bool
	Limit     int64
	Remaining int64
	ResetIn   time.Duration
}

// NewLimiter 创建限流器
func NewLimiter(store limiter.Store, window time.Duration, max int) *Limiter {
	rate := limiter.Rate{Period: window, Limit: int64(max)}
	return &Limiter{inner: limiter.New(store, rate)}
}

// Allow 记录一次请求并返回是否放行
func (l *Limiter) Allow(ctx context.Context, key string) (Decision, error) {
	res, err := l.inner.Get(ctx, key)
	if err != nil {
		return Decision{}, err
	}
	resetIn := time.Until(time.Unix(res.Reset, 0))
	if resetIn < 0 {
		resetIn = 0
	}
	return Decision{
		Allowed:   !res.Reached,
		Limit:     res.Limit,
		Remaining: res.Remaining,
		ResetIn:   resetIn,
	}, nil
}
